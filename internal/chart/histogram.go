package chart

import (
	"time"

	"alertcharts/internal/models"
)

// maxHistogramBuckets caps local bucketing for windows far beyond the ladder.
const maxHistogramBuckets = 2000

type span struct {
	start, end time.Time
}

// BuildHistogram counts, per interval-wide bucket of window, the alerts whose
// active span overlaps that bucket. Buckets are aligned on window.Start and
// the last one is truncated at window.End.
func BuildHistogram(alerts []models.AlertRecord, window models.TimeWindow, interval Interval) []models.HistogramBucket {
	buckets := buildTimeBuckets(window, interval.Duration)
	if len(buckets) == 0 {
		return buckets
	}
	for _, alert := range alerts {
		if !Visible(alert, window) {
			continue
		}
		active := alertSpan(alert, window)
		acked := alert.AcknowledgedTime != nil && !alert.AcknowledgedTime.After(window.End)
		for i := range buckets {
			if !overlaps(buckets[i], active, i == len(buckets)-1) {
				continue
			}
			buckets[i].Count++
			if acked && alert.AcknowledgedTime.Before(buckets[i].End) {
				buckets[i].Acknowledged++
			}
			if alert.State == models.AlertStateError {
				buckets[i].Errors++
			}
		}
	}
	return buckets
}

func buildTimeBuckets(window models.TimeWindow, width time.Duration) []models.HistogramBucket {
	if width <= 0 || !window.End.After(window.Start) {
		return nil
	}
	count := int(window.Duration() / width)
	if window.Duration()%width != 0 {
		count++
	}
	if count > maxHistogramBuckets {
		count = maxHistogramBuckets
	}
	result := make([]models.HistogramBucket, 0, count)
	current := window.Start
	for i := 0; i < count; i++ {
		end := current.Add(width)
		if end.After(window.End) || i == count-1 {
			end = window.End
		}
		result = append(result, models.HistogramBucket{Start: current, End: end})
		current = end
	}
	return result
}

// alertSpan is the alert's lifetime clipped to window; open alerts run to window.End.
func alertSpan(alert models.AlertRecord, window models.TimeWindow) span {
	end := window.End
	if alert.EndTime != nil {
		end = window.Clamp(*alert.EndTime)
	}
	return span{start: window.Clamp(alert.StartTime), end: end}
}

// overlaps treats buckets as half-open [start, end), except the last one
// which also holds window.End. A zero-length span counts for the bucket
// containing its instant.
func overlaps(bucket models.HistogramBucket, s span, last bool) bool {
	if s.end.Equal(s.start) {
		if s.start.Before(bucket.Start) {
			return false
		}
		return s.start.Before(bucket.End) || (last && s.start.Equal(bucket.End))
	}
	return s.start.Before(bucket.End) && s.end.After(bucket.Start)
}

// BuildStartHistogram counts alerts by the bucket their start time falls in,
// matching the backend date_histogram on start_time. Buckets are aligned on
// the Unix epoch, keep their full width and cover every instant of window.
// Only Count is filled.
func BuildStartHistogram(alerts []models.AlertRecord, window models.TimeWindow, interval Interval) []models.HistogramBucket {
	width := interval.Duration
	if width < time.Millisecond || window.Start.After(window.End) {
		return nil
	}
	first := epochFloor(window.Start, width)
	count := int(epochFloor(window.End, width).Sub(first)/width) + 1
	if count > maxHistogramBuckets {
		count = maxHistogramBuckets
	}
	buckets := make([]models.HistogramBucket, count)
	for i := range buckets {
		start := first.Add(time.Duration(i) * width)
		buckets[i] = models.HistogramBucket{Start: start, End: start.Add(width)}
	}
	for _, alert := range alerts {
		if !window.Contains(alert.StartTime) {
			continue
		}
		i := int(alert.StartTime.Sub(first) / width)
		if i >= count {
			continue
		}
		buckets[i].Count++
	}
	return buckets
}

// epochFloor rounds t down to a multiple of width counted from the Unix epoch.
func epochFloor(t time.Time, width time.Duration) time.Time {
	ms, w := t.UnixMilli(), width.Milliseconds()
	floor := ms / w * w
	if ms < 0 && ms%w != 0 {
		floor -= w
	}
	return time.UnixMilli(floor).UTC()
}
