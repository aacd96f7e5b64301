package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertcharts/internal/models"
)

func at(hour, minute int) time.Time {
	return time.Date(2018, 10, 29, hour, minute, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time {
	return &t
}

func TestComputeTriggerStats(t *testing.T) {
	window := models.TimeWindow{Start: at(9, 0), End: at(10, 0)}
	alerts := []models.AlertRecord{
		{ID: "1", TriggerID: "t1", TriggerName: "cpu", StartTime: at(9, 0), EndTime: ptr(at(9, 30)), State: models.AlertStateCompleted},
		{ID: "2", TriggerID: "t1", TriggerName: "cpu", StartTime: at(9, 15), EndTime: ptr(at(9, 45)), State: models.AlertStateCompleted},
		{ID: "3", TriggerID: "t2", TriggerName: "disk", StartTime: at(8, 0), State: models.AlertStateActive},
		{ID: "4", TriggerID: "t3", TriggerName: "late", StartTime: at(10, 30), State: models.AlertStateActive},
	}

	stats := ComputeTriggerStats(alerts, window)
	require.Len(t, stats, 2)

	cpu := stats[0]
	assert.Equal(t, "t1", cpu.TriggerID)
	assert.Equal(t, "cpu", cpu.TriggerName)
	assert.Equal(t, 2, cpu.TotalAlerts)
	assert.Equal(t, 2, cpu.States[models.AlertStateCompleted])
	assert.InDelta(t, 75.0, cpu.AlertingPercent, 0.001)
	assert.Equal(t, models.AlertStateCompleted, cpu.LastState)
	assert.Equal(t, "2018-10-29T09:15:00Z", cpu.LastStarted)

	disk := stats[1]
	assert.Equal(t, "t2", disk.TriggerID)
	assert.InDelta(t, 100.0, disk.AlertingPercent, 0.001)
	assert.Equal(t, models.AlertStateActive, disk.LastState)
}

func TestComputeTriggerStatsEmpty(t *testing.T) {
	window := models.TimeWindow{Start: at(9, 0), End: at(10, 0)}
	assert.Nil(t, ComputeTriggerStats(nil, window))
}

func TestUnionLength(t *testing.T) {
	spans := []interval{
		{start: at(9, 40), end: at(9, 50)},
		{start: at(9, 0), end: at(9, 10)},
		{start: at(9, 5), end: at(9, 20)},
	}
	assert.Equal(t, 30*time.Minute, unionLength(spans))
	assert.Zero(t, unionLength(nil))
}
