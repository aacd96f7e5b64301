package watch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"alertcharts/internal/config"
	"alertcharts/internal/models"
)

// Refreshable reloads the cached alerts of a monitor.
type Refreshable interface {
	Refresh(ctx context.Context, dataSource, monitorID string, window models.TimeWindow) error
	Now() time.Time
}

// RefreshReport counts the outcomes of one refresh round.
type RefreshReport struct {
	OK     int
	Failed int
}

// Refresher keeps the alert cache warm for watched monitors on a cron schedule.
type Refresher struct {
	service  Refreshable
	monitors []config.WatchMonitor
	window   time.Duration
	schedule string
	logger   *zap.Logger

	pool *pond.WorkerPool

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRefresher creates a refresher for the watch configuration.
func NewRefresher(service Refreshable, cfg config.Watch, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	window := time.Duration(cfg.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Hour
	}
	return &Refresher{
		service:  service,
		monitors: cfg.Monitors,
		window:   window,
		schedule: cfg.Schedule,
		logger:   logger,
		pool:     pond.New(workers, len(cfg.Monitors)+workers),
	}
}

// Start schedules refresh rounds and runs the first one immediately.
// It is a no-op when no monitors are watched or the refresher already runs.
func (r *Refresher) Start(ctx context.Context) error {
	if len(r.monitors) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(r.schedule, func() { r.RunOnce(loopCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule refresh %q: %w", r.schedule, err)
	}
	r.cron = c
	r.cancel = cancel
	c.Start()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.RunOnce(loopCtx)
	}()

	r.logger.Info("alert refresher started",
		zap.String("schedule", r.schedule),
		zap.Int("monitors", len(r.monitors)),
	)
	return nil
}

// Stop halts scheduling, waits for the running round and releases the pool.
func (r *Refresher) Stop() {
	r.mu.Lock()
	c, cancel := r.cron, r.cancel
	r.cron, r.cancel = nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}
	r.wg.Wait()
	r.pool.StopAndWait()
}

// RunOnce refreshes every watched monitor once, fanning out over the pool.
func (r *Refresher) RunOnce(ctx context.Context) RefreshReport {
	now := r.service.Now()
	window := models.TimeWindow{Start: now.Add(-r.window), End: now}

	var ok, failed atomic.Int64
	group := r.pool.Group()
	for _, m := range r.monitors {
		m := m
		group.Submit(func() {
			if ctx.Err() != nil {
				failed.Add(1)
				return
			}
			if err := r.service.Refresh(ctx, m.DataSource, m.MonitorID, window); err != nil {
				failed.Add(1)
				r.logger.Warn("refresh monitor failed",
					zap.String("monitor_id", m.MonitorID),
					zap.String("data_source", m.DataSource),
					zap.Error(err),
				)
				return
			}
			ok.Add(1)
		})
	}
	group.Wait()

	report := RefreshReport{OK: int(ok.Load()), Failed: int(failed.Load())}
	r.logger.Debug("refresh round finished", zap.Int("ok", report.OK), zap.Int("failed", report.Failed))
	return report
}
