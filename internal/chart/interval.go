package chart

import (
	"time"

	"alertcharts/internal/models"
)

// TargetBucketCount is the number of histogram buckets a window aims for.
const TargetBucketCount = 30

// Interval is a histogram bucket width.
type Interval struct {
	// Name is the backend fixed_interval expression, e.g. "30m".
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// Millis returns the bucket width in epoch milliseconds.
func (i Interval) Millis() int64 {
	return i.Duration.Milliseconds()
}

// Intervals is the candidate ladder, coarsest first. Do not mutate.
var Intervals = []Interval{
	{Name: "1d", Duration: 24 * time.Hour},
	{Name: "18h", Duration: 18 * time.Hour},
	{Name: "12h", Duration: 12 * time.Hour},
	{Name: "6h", Duration: 6 * time.Hour},
	{Name: "3h", Duration: 3 * time.Hour},
	{Name: "1h", Duration: time.Hour},
	{Name: "30m", Duration: 30 * time.Minute},
	{Name: "20m", Duration: 20 * time.Minute},
	{Name: "10m", Duration: 10 * time.Minute},
	{Name: "5m", Duration: 5 * time.Minute},
	{Name: "3m", Duration: 3 * time.Minute},
	{Name: "1m", Duration: time.Minute},
}

// SelectInterval picks the largest ladder entry that still yields at least
// TargetBucketCount buckets over span. Spans longer than the ladder covers
// (30 days) clamp to the coarsest entry.
func SelectInterval(span time.Duration) Interval {
	finest := Intervals[len(Intervals)-1]
	if span <= 0 {
		return finest
	}
	target := span / TargetBucketCount
	if span%TargetBucketCount != 0 {
		target++
	}
	if target < finest.Duration {
		return finest
	}
	for _, candidate := range Intervals {
		if candidate.Duration <= target {
			return candidate
		}
	}
	return finest
}

// SelectWindowInterval is SelectInterval over the window length.
func SelectWindowInterval(window models.TimeWindow) Interval {
	return SelectInterval(window.Duration())
}
