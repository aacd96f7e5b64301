package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AlertState is the lifecycle state reported by the alerting backend.
type AlertState string

const (
	AlertStateActive       AlertState = "ACTIVE"
	AlertStateAcknowledged AlertState = "ACKNOWLEDGED"
	AlertStateCompleted    AlertState = "COMPLETED"
	AlertStateError        AlertState = "ERROR"
	AlertStateDeleted      AlertState = "DELETED"
)

// AlertStates lists every known alert state in lifecycle order.
var AlertStates = []AlertState{
	AlertStateActive,
	AlertStateAcknowledged,
	AlertStateCompleted,
	AlertStateError,
	AlertStateDeleted,
}

// ParseAlertState normalises a backend state string.
func ParseAlertState(raw string) (AlertState, error) {
	state := AlertState(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range AlertStates {
		if state == known {
			return state, nil
		}
	}
	return "", fmt.Errorf("unknown alert state %q", raw)
}

// AlertRecord is a single alert as returned by the backend.
type AlertRecord struct {
	ID                   string
	Version              int64
	MonitorID            string
	MonitorName          string
	TriggerID            string
	TriggerName          string
	State                AlertState
	Severity             string
	StartTime            time.Time
	AcknowledgedTime     *time.Time
	EndTime              *time.Time
	LastNotificationTime *time.Time
	ErrorMessage         string
	Meta                 map[string]any
}

// Open reports whether the alert has not reached an end time yet.
func (a AlertRecord) Open() bool {
	return a.EndTime == nil
}

// alertWire mirrors the backend JSON shape with epoch-millisecond timestamps.
type alertWire struct {
	ID                   string         `json:"id"`
	Version              int64          `json:"version"`
	MonitorID            string         `json:"monitor_id"`
	MonitorName          string         `json:"monitor_name"`
	TriggerID            string         `json:"trigger_id"`
	TriggerName          string         `json:"trigger_name"`
	State                string         `json:"state"`
	Severity             string         `json:"severity"`
	StartTime            *int64         `json:"start_time"`
	AcknowledgedTime     *int64         `json:"acknowledged_time"`
	EndTime              *int64         `json:"end_time"`
	LastNotificationTime *int64         `json:"last_notification_time"`
	ErrorMessage         string         `json:"error_message,omitempty"`
	Meta                 map[string]any `json:"meta,omitempty"`
}

// MarshalJSON encodes the record using epoch-millisecond timestamps.
func (a AlertRecord) MarshalJSON() ([]byte, error) {
	start := a.StartTime.UnixMilli()
	return json.Marshal(alertWire{
		ID:                   a.ID,
		Version:              a.Version,
		MonitorID:            a.MonitorID,
		MonitorName:          a.MonitorName,
		TriggerID:            a.TriggerID,
		TriggerName:          a.TriggerName,
		State:                string(a.State),
		Severity:             a.Severity,
		StartTime:            &start,
		AcknowledgedTime:     millisPtr(a.AcknowledgedTime),
		EndTime:              millisPtr(a.EndTime),
		LastNotificationTime: millisPtr(a.LastNotificationTime),
		ErrorMessage:         a.ErrorMessage,
		Meta:                 a.Meta,
	})
}

// UnmarshalJSON decodes the backend wire format.
func (a *AlertRecord) UnmarshalJSON(data []byte) error {
	var wire alertWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	state, err := ParseAlertState(wire.State)
	if err != nil {
		return err
	}
	if wire.StartTime == nil {
		return fmt.Errorf("alert %s is missing start_time", wire.ID)
	}
	*a = AlertRecord{
		ID:                   wire.ID,
		Version:              wire.Version,
		MonitorID:            wire.MonitorID,
		MonitorName:          wire.MonitorName,
		TriggerID:            wire.TriggerID,
		TriggerName:          wire.TriggerName,
		State:                state,
		Severity:             wire.Severity,
		StartTime:            time.UnixMilli(*wire.StartTime).UTC(),
		AcknowledgedTime:     timePtr(wire.AcknowledgedTime),
		EndTime:              timePtr(wire.EndTime),
		LastNotificationTime: timePtr(wire.LastNotificationTime),
		ErrorMessage:         wire.ErrorMessage,
		Meta:                 wire.Meta,
	}
	return nil
}

func millisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func timePtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}
