package chart

import (
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"alertcharts/internal/models"
)

// Visible reports whether any part of the alert's lifecycle falls inside window.
func Visible(alert models.AlertRecord, window models.TimeWindow) bool {
	if alert.StartTime.After(window.End) {
		return false
	}
	if alert.EndTime != nil && alert.EndTime.Before(window.Start) {
		return false
	}
	return true
}

// GenerateFirstDataPoints returns the points that establish the series state
// before the alert's own transitions. lastEndTime is the end of the previous
// alert in the same trigger's series, or nil for the first one.
func GenerateFirstDataPoints(alert models.AlertRecord, window models.TimeWindow, lastEndTime *time.Time) []models.DataPoint {
	if !Visible(alert, window) {
		return nil
	}
	if alert.StartTime.Before(window.Start) {
		return []models.DataPoint{newPoint(window.Start, models.PointActive, alert)}
	}

	boundary := window.Start
	if lastEndTime != nil {
		boundary = lastEndTime.UTC()
		if boundary.Before(window.Start) {
			boundary = window.Start
		}
		if boundary.After(alert.StartTime) {
			boundary = alert.StartTime
		}
	}
	return []models.DataPoint{
		{Timestamp: boundary, State: models.PointNoAlert},
		newPoint(alert.StartTime, models.PointActive, alert),
	}
}

// DataPointsGenerator returns the alert's state transitions clipped to window.
// Timestamps before the window collapse onto window.Start; transitions after
// window.End are dropped. When several transitions land on one timestamp only
// the last survives, so timestamps are strictly increasing.
func DataPointsGenerator(alert models.AlertRecord, window models.TimeWindow) []models.DataPoint {
	if !Visible(alert, window) {
		return nil
	}
	points := make([]models.DataPoint, 0, 3)
	points = append(points, newPoint(window.Clamp(alert.StartTime), models.PointActive, alert))

	if ack := alert.AcknowledgedTime; ack != nil && !ack.After(window.End) {
		points = append(points, newPoint(window.Clamp(*ack), models.PointAcknowledged, alert))
	}

	if end := alert.EndTime; end != nil && !end.After(window.End) {
		if state, ok := terminalState(alert.State); ok {
			points = append(points, newPoint(window.Clamp(*end), state, alert))
		}
	}
	return collapse(points)
}

// BuildSeries assembles the full chart series for the alerts of one trigger.
// Overlapping alerts form one run; inside a run the series shows the state of
// the latest-started alert still running, and only the end of the whole run
// produces a terminal point.
func BuildSeries(alerts []models.AlertRecord, window models.TimeWindow) []models.DataPoint {
	visible := lo.Filter(alerts, func(a models.AlertRecord, _ int) bool {
		return Visible(a, window)
	})
	if len(visible) == 0 {
		return []models.DataPoint{{Timestamp: window.Start, State: models.PointNoAlert}}
	}
	sort.SliceStable(visible, func(i, j int) bool {
		if visible[i].StartTime.Equal(visible[j].StartTime) {
			return visible[i].ID < visible[j].ID
		}
		return visible[i].StartTime.Before(visible[j].StartTime)
	})

	series := make([]models.DataPoint, 0, len(visible)*4)
	var lastEnd *time.Time
	runs := splitRuns(visible)
	for i, r := range runs {
		// Keep only the NO_ALERT boundary; the sweep emits the opening state.
		first := GenerateFirstDataPoints(r.alerts[0], window, lastEnd)
		series = append(series, first[:len(first)-1]...)
		series = append(series, r.points(window)...)

		if r.end == nil {
			break
		}
		lastEnd = r.end
		if i == len(runs)-1 && r.terminal && !r.end.After(window.End) {
			series = append(series, models.DataPoint{Timestamp: window.Clamp(*r.end), State: models.PointNoAlert})
		}
	}

	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})
	return dedupe(series)
}

// run is a maximal group of alerts whose active spans overlap.
type run struct {
	alerts []models.AlertRecord
	// end is the latest end time, nil while any member is open.
	end *time.Time
	// terminal reports whether the alert closing the run has a terminal point.
	terminal bool
}

// splitRuns groups alerts sorted by start time into overlapping runs. An alert
// starting exactly when the run ends opens a new run.
func splitRuns(sorted []models.AlertRecord) []run {
	var runs []run
	for _, alert := range sorted {
		if n := len(runs); n > 0 {
			cur := &runs[n-1]
			if cur.end == nil || alert.StartTime.Before(*cur.end) {
				cur.add(alert)
				continue
			}
		}
		runs = append(runs, run{})
		runs[len(runs)-1].add(alert)
	}
	return runs
}

func (r *run) add(alert models.AlertRecord) {
	first := len(r.alerts) == 0
	r.alerts = append(r.alerts, alert)
	if !first && r.end == nil {
		return
	}
	if alert.EndTime == nil {
		r.end, r.terminal = nil, false
		return
	}
	if first || !alert.EndTime.Before(*r.end) {
		end := *alert.EndTime
		r.end = &end
		_, r.terminal = terminalState(alert.State)
	}
}

// points sweeps the transition instants of the run. At each instant the
// latest-started alert still running decides the state; once nothing runs
// the alert that ended last closes the run.
func (r run) points(window models.TimeWindow) []models.DataPoint {
	instants := make([]time.Time, 0, len(r.alerts)*3)
	for _, alert := range r.alerts {
		instants = append(instants, window.Clamp(alert.StartTime))
		if ack := alert.AcknowledgedTime; ack != nil && !ack.After(window.End) {
			instants = append(instants, window.Clamp(*ack))
		}
		if end := alert.EndTime; end != nil && !end.After(window.End) {
			instants = append(instants, window.Clamp(*end))
		}
	}
	sort.Slice(instants, func(i, j int) bool { return instants[i].Before(instants[j]) })

	var (
		out       []models.DataPoint
		lastID    string
		lastState models.PointState
	)
	emit := func(ts time.Time, state models.PointState, alert models.AlertRecord) {
		if state == lastState && alert.ID == lastID {
			return
		}
		out = append(out, newPoint(ts, state, alert))
		lastID, lastState = alert.ID, state
	}

	for i, ts := range instants {
		if i > 0 && ts.Equal(instants[i-1]) {
			continue
		}
		if owner, ok := r.runningAt(ts); ok {
			state := models.PointActive
			if ack := owner.AcknowledgedTime; ack != nil && !ack.After(ts) {
				state = models.PointAcknowledged
			}
			emit(ts, state, owner)
			continue
		}
		if r.end == nil || r.end.After(window.End) || !window.Clamp(*r.end).Equal(ts) {
			continue
		}
		closer := r.closer()
		if len(out) == 0 {
			emit(ts, models.PointActive, closer)
		}
		if state, ok := terminalState(closer.State); ok {
			emit(ts, state, closer)
		}
	}
	return out
}

// runningAt returns the latest-started alert whose span [start, end) holds ts.
func (r run) runningAt(ts time.Time) (models.AlertRecord, bool) {
	for i := len(r.alerts) - 1; i >= 0; i-- {
		alert := r.alerts[i]
		if alert.StartTime.After(ts) {
			continue
		}
		if alert.EndTime == nil || alert.EndTime.After(ts) {
			return alert, true
		}
	}
	return models.AlertRecord{}, false
}

// closer is the latest-started alert ending together with the run.
func (r run) closer() models.AlertRecord {
	for i := len(r.alerts) - 1; i >= 0; i-- {
		if end := r.alerts[i].EndTime; end != nil && end.Equal(*r.end) {
			return r.alerts[i]
		}
	}
	return r.alerts[len(r.alerts)-1]
}

// BuildTriggerSeries groups alerts by trigger and builds one series per trigger.
func BuildTriggerSeries(alerts []models.AlertRecord, window models.TimeWindow) []models.TriggerSeries {
	groups := lo.GroupBy(alerts, func(a models.AlertRecord) string {
		return a.TriggerID
	})
	ids := lo.Keys(groups)
	names := make(map[string]string, len(ids))
	for id, group := range groups {
		for _, alert := range group {
			if alert.TriggerName != "" {
				names[id] = alert.TriggerName
				break
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := strings.ToLower(names[ids[i]]), strings.ToLower(names[ids[j]])
		if a == b {
			return ids[i] < ids[j]
		}
		return a < b
	})

	result := make([]models.TriggerSeries, 0, len(ids))
	for _, id := range ids {
		result = append(result, models.TriggerSeries{
			TriggerID:   id,
			TriggerName: names[id],
			Points:      ChartPoints(BuildSeries(groups[id], window)),
		})
	}
	return result
}

// ChartPoints converts data points into renderer x/y pairs.
func ChartPoints(points []models.DataPoint) []models.ChartPoint {
	return lo.Map(points, func(p models.DataPoint, _ int) models.ChartPoint {
		return models.ChartPoint{
			X:     p.Timestamp.UnixMilli(),
			Y:     p.State.Code(),
			State: p.State,
			Meta:  p.Meta,
		}
	})
}

// terminalState maps the record's state to its end-of-life point. Deleted
// alerts have no terminal point.
func terminalState(state models.AlertState) (models.PointState, bool) {
	switch state {
	case models.AlertStateDeleted:
		return "", false
	case models.AlertStateError:
		return models.PointError, true
	default:
		return models.PointCompleted, true
	}
}

func newPoint(ts time.Time, state models.PointState, alert models.AlertRecord) models.DataPoint {
	meta := map[string]any{"alert_id": alert.ID}
	if alert.Severity != "" {
		meta["severity"] = alert.Severity
	}
	if state == models.PointError && alert.ErrorMessage != "" {
		meta["error"] = alert.ErrorMessage
	}
	return models.DataPoint{Timestamp: ts, State: state, Meta: meta}
}

// collapse keeps only the last of consecutive points sharing a timestamp.
func collapse(points []models.DataPoint) []models.DataPoint {
	if len(points) < 2 {
		return points
	}
	out := points[:1]
	for _, p := range points[1:] {
		if out[len(out)-1].Timestamp.Equal(p.Timestamp) {
			out[len(out)-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

// dedupe drops a point when it repeats the previous point's timestamp and state.
func dedupe(points []models.DataPoint) []models.DataPoint {
	if len(points) < 2 {
		return points
	}
	out := points[:1]
	for _, p := range points[1:] {
		prev := out[len(out)-1]
		if prev.State == p.State && prev.Timestamp.Equal(p.Timestamp) {
			continue
		}
		out = append(out, p)
	}
	return out
}
