package metrics

import (
	"math"
	"sort"
	"time"

	"alertcharts/internal/models"
)

// TriggerStats summarises alert activity of one trigger inside a window.
type TriggerStats struct {
	TriggerID       string                    `json:"trigger_id"`
	TriggerName     string                    `json:"trigger_name"`
	TotalAlerts     int                       `json:"total_alerts"`
	States          map[models.AlertState]int `json:"states"`
	AlertingPercent float64                   `json:"alerting_percent"`
	LastState       models.AlertState         `json:"last_state,omitempty"`
	LastStarted     string                    `json:"last_started,omitempty"`
}

type interval struct {
	start, end time.Time
}

// ComputeTriggerStats aggregates per-trigger statistics for alerts overlapping window.
func ComputeTriggerStats(alerts []models.AlertRecord, window models.TimeWindow) []TriggerStats {
	type acc struct {
		name      string
		states    map[models.AlertState]int
		total     int
		spans     []interval
		lastState models.AlertState
		lastStart time.Time
	}
	state := make(map[string]*acc)
	for _, alert := range alerts {
		if alert.StartTime.After(window.End) {
			continue
		}
		if alert.EndTime != nil && alert.EndTime.Before(window.Start) {
			continue
		}
		target := state[alert.TriggerID]
		if target == nil {
			target = &acc{name: alert.TriggerName, states: make(map[models.AlertState]int)}
			state[alert.TriggerID] = target
		}
		if target.name == "" {
			target.name = alert.TriggerName
		}
		target.total++
		target.states[alert.State]++

		end := window.End
		if alert.EndTime != nil {
			end = window.Clamp(*alert.EndTime)
		}
		target.spans = append(target.spans, interval{start: window.Clamp(alert.StartTime), end: end})

		if target.lastStart.IsZero() || alert.StartTime.After(target.lastStart) {
			target.lastStart = alert.StartTime
			target.lastState = alert.State
		}
	}
	if len(state) == 0 {
		return nil
	}

	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	length := window.Duration()
	results := make([]TriggerStats, 0, len(keys))
	for _, id := range keys {
		data := state[id]
		percent := 0.0
		if length > 0 {
			percent = float64(unionLength(data.spans)) / float64(length) * 100
		}
		result := TriggerStats{
			TriggerID:       id,
			TriggerName:     data.name,
			TotalAlerts:     data.total,
			States:          data.states,
			AlertingPercent: round2(percent),
			LastState:       data.lastState,
		}
		if !data.lastStart.IsZero() {
			result.LastStarted = data.lastStart.UTC().Format(time.RFC3339)
		}
		results = append(results, result)
	}
	return results
}

// unionLength returns the total time covered by spans, counting overlaps once.
func unionLength(spans []interval) time.Duration {
	if len(spans) == 0 {
		return 0
	}
	sort.Slice(spans, func(i, j int) bool {
		return spans[i].start.Before(spans[j].start)
	})
	var total time.Duration
	current := spans[0]
	for _, s := range spans[1:] {
		if s.start.After(current.end) {
			total += current.end.Sub(current.start)
			current = s
			continue
		}
		if s.end.After(current.end) {
			current.end = s.end
		}
	}
	total += current.end.Sub(current.start)
	return total
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
