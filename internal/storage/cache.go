package storage

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"alertcharts/internal/models"
)

// Snapshot is a fetched set of alerts for one monitor.
type Snapshot struct {
	Alerts    []models.AlertRecord
	Window    models.TimeWindow
	FetchedAt time.Time
}

// Covers reports whether the snapshot was fetched for a window spanning w,
// allowing w to end up to slack after the fetched window.
func (s Snapshot) Covers(w models.TimeWindow, slack time.Duration) bool {
	return !s.Window.Start.After(w.Start) && !w.End.After(s.Window.End.Add(slack))
}

// AlertCache keeps recent alert snapshots keyed by data source and monitor.
type AlertCache struct {
	entries *lru.Cache[string, Snapshot]
	ttl     time.Duration
	now     func() time.Time
}

// NewAlertCache creates a cache holding at most size snapshots for ttl each.
func NewAlertCache(size int, ttl time.Duration) (*AlertCache, error) {
	entries, err := lru.New[string, Snapshot](size)
	if err != nil {
		return nil, fmt.Errorf("create alert cache: %w", err)
	}
	return &AlertCache{entries: entries, ttl: ttl, now: time.Now}, nil
}

func cacheKey(dataSource, monitorID string) string {
	return dataSource + "::" + monitorID
}

// Get returns a fresh snapshot covering window, if one is cached.
func (c *AlertCache) Get(dataSource, monitorID string, window models.TimeWindow) (Snapshot, bool) {
	key := cacheKey(dataSource, monitorID)
	snap, ok := c.entries.Get(key)
	if !ok {
		return Snapshot{}, false
	}
	if c.ttl > 0 && c.now().Sub(snap.FetchedAt) > c.ttl {
		c.entries.Remove(key)
		return Snapshot{}, false
	}
	if !snap.Covers(window, c.ttl) {
		return Snapshot{}, false
	}
	out := snap
	out.Alerts = make([]models.AlertRecord, len(snap.Alerts))
	copy(out.Alerts, snap.Alerts)
	return out, true
}

// Put stores alerts fetched for window.
func (c *AlertCache) Put(dataSource, monitorID string, window models.TimeWindow, alerts []models.AlertRecord) {
	copied := make([]models.AlertRecord, len(alerts))
	copy(copied, alerts)
	c.entries.Add(cacheKey(dataSource, monitorID), Snapshot{
		Alerts:    copied,
		Window:    window,
		FetchedAt: c.now(),
	})
}

// Invalidate drops the snapshot of one monitor.
func (c *AlertCache) Invalidate(dataSource, monitorID string) {
	c.entries.Remove(cacheKey(dataSource, monitorID))
}

// Len returns the number of cached snapshots.
func (c *AlertCache) Len() int {
	return c.entries.Len()
}
