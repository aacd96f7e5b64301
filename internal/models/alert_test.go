package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertRecordUnmarshal(t *testing.T) {
	raw := `{
		"id": "a1",
		"version": 3,
		"monitor_id": "m1",
		"monitor_name": "cpu monitor",
		"trigger_id": "t1",
		"trigger_name": "cpu high",
		"state": "acknowledged",
		"severity": "1",
		"start_time": 1540803600000,
		"acknowledged_time": 1540803720000,
		"end_time": null,
		"last_notification_time": null
	}`

	var alert AlertRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &alert))
	assert.Equal(t, "a1", alert.ID)
	assert.Equal(t, int64(3), alert.Version)
	assert.Equal(t, AlertStateAcknowledged, alert.State)
	assert.Equal(t, time.Date(2018, 10, 29, 9, 0, 0, 0, time.UTC), alert.StartTime)
	require.NotNil(t, alert.AcknowledgedTime)
	assert.Equal(t, time.Date(2018, 10, 29, 9, 2, 0, 0, time.UTC), *alert.AcknowledgedTime)
	assert.Nil(t, alert.EndTime)
	assert.True(t, alert.Open())
}

func TestAlertRecordUnmarshalRejectsBadInput(t *testing.T) {
	var alert AlertRecord
	err := json.Unmarshal([]byte(`{"id":"a1","state":"SNOOZED","start_time":1}`), &alert)
	assert.ErrorContains(t, err, "unknown alert state")

	err = json.Unmarshal([]byte(`{"id":"a1","state":"ACTIVE"}`), &alert)
	assert.ErrorContains(t, err, "missing start_time")
}

func TestAlertRecordMarshalUsesMillis(t *testing.T) {
	end := time.Date(2018, 10, 29, 9, 30, 0, 0, time.UTC)
	alert := AlertRecord{
		ID:        "a1",
		State:     AlertStateCompleted,
		StartTime: time.Date(2018, 10, 29, 9, 0, 0, 0, time.UTC),
		EndTime:   &end,
	}
	data, err := json.Marshal(alert)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(1540803600000), decoded["start_time"])
	assert.Equal(t, float64(1540805400000), decoded["end_time"])
	assert.Nil(t, decoded["acknowledged_time"])
	assert.Equal(t, "COMPLETED", decoded["state"])
}

func TestTimeWindow(t *testing.T) {
	start := time.Date(2018, 10, 29, 9, 0, 0, 0, time.UTC)
	window := TimeWindow{Start: start, End: start.Add(time.Hour)}
	require.NoError(t, window.Validate())
	assert.Equal(t, time.Hour, window.Duration())
	assert.True(t, window.Contains(start))
	assert.True(t, window.Contains(window.End))
	assert.False(t, window.Contains(start.Add(-time.Second)))
	assert.Equal(t, start, window.Clamp(start.Add(-time.Hour)))
	assert.Equal(t, window.End, window.Clamp(window.End.Add(time.Hour)))

	inverted := TimeWindow{Start: window.End, End: start}
	assert.ErrorIs(t, inverted.Validate(), ErrInvalidWindow)
}

func TestPointStateCodes(t *testing.T) {
	assert.Equal(t, 0, PointNoAlert.Code())
	assert.Equal(t, 1, PointActive.Code())
	assert.Equal(t, 2, PointAcknowledged.Code())
	assert.Equal(t, 3, PointCompleted.Code())
	assert.Equal(t, 4, PointError.Code())
}

func TestMonitorTriggerName(t *testing.T) {
	m := Monitor{Triggers: []Trigger{{ID: "t1", Name: "cpu high"}}}
	assert.Equal(t, "cpu high", m.TriggerName("t1"))
	assert.Equal(t, "", m.TriggerName("missing"))
}
