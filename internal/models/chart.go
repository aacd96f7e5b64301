package models

import (
	"errors"
	"time"
)

// ErrInvalidWindow is returned when a window ends before it starts.
var ErrInvalidWindow = errors.New("window start must not be after window end")

// TimeWindow is the visible range of a chart.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate checks the Start <= End precondition.
func (w TimeWindow) Validate() error {
	if w.Start.After(w.End) {
		return ErrInvalidWindow
	}
	return nil
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether ts lies within [Start, End].
func (w TimeWindow) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && !ts.After(w.End)
}

// Clamp moves ts into [Start, End].
func (w TimeWindow) Clamp(ts time.Time) time.Time {
	if ts.Before(w.Start) {
		return w.Start
	}
	if ts.After(w.End) {
		return w.End
	}
	return ts
}

// PointState is the state of a chart series at a point in time.
type PointState string

const (
	PointNoAlert      PointState = "NO_ALERT"
	PointActive       PointState = "ACTIVE"
	PointAcknowledged PointState = "ACKNOWLEDGED"
	PointCompleted    PointState = "COMPLETED"
	PointError        PointState = "ERROR"
)

var pointCodes = map[PointState]int{
	PointNoAlert:      0,
	PointActive:       1,
	PointAcknowledged: 2,
	PointCompleted:    3,
	PointError:        4,
}

// Code is the numeric y value used by the chart renderer.
func (s PointState) Code() int {
	code, ok := pointCodes[s]
	if !ok {
		return 0
	}
	return code
}

// DataPoint is one state transition in a rendered series.
type DataPoint struct {
	Timestamp time.Time      `json:"timestamp"`
	State     PointState     `json:"state"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// ChartPoint is the renderer-facing form of a DataPoint.
type ChartPoint struct {
	X     int64          `json:"x"`
	Y     int            `json:"y"`
	State PointState     `json:"state"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// TriggerSeries holds the chart series for one trigger.
type TriggerSeries struct {
	TriggerID   string       `json:"trigger_id"`
	TriggerName string       `json:"trigger_name"`
	Points      []ChartPoint `json:"points"`
}

// HistogramBucket counts alerts overlapping one interval of the window.
type HistogramBucket struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Count        int       `json:"count"`
	Acknowledged int       `json:"acknowledged"`
	Errors       int       `json:"errors"`
}
