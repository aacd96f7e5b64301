package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"alertcharts/internal/alerting"
	"alertcharts/internal/chart"
	"alertcharts/internal/metrics"
	"alertcharts/internal/models"
	"alertcharts/internal/storage"
)

// Recorder receives operational measurements. Implementations must be safe
// for concurrent use.
type Recorder interface {
	CacheLookup(hit bool)
	ChartBuilt(took time.Duration)
	RefreshResult(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) CacheLookup(bool)         {}
func (nopRecorder) ChartBuilt(time.Duration) {}
func (nopRecorder) RefreshResult(string)     {}

// ChartPayload is everything a monitor chart needs for one window.
type ChartPayload struct {
	MonitorID   string                   `json:"monitor_id"`
	DataSource  string                   `json:"data_source"`
	Window      models.TimeWindow        `json:"window"`
	Interval    chart.Interval           `json:"interval"`
	Triggers    []models.TriggerSeries   `json:"triggers"`
	// Histogram counts the alerts active in each window-aligned bucket.
	Histogram   []models.HistogramBucket `json:"histogram"`
	Stats       []metrics.TriggerStats   `json:"stats"`
	Cached      bool                     `json:"cached"`
	GeneratedAt time.Time                `json:"generated_at"`
}

// HistogramPayload is the bucketed alert count for one window. Buckets count
// alert starts per epoch-aligned interval whichever Source produced them.
type HistogramPayload struct {
	MonitorID string                   `json:"monitor_id"`
	Window    models.TimeWindow        `json:"window"`
	Interval  chart.Interval           `json:"interval"`
	Buckets   []models.HistogramBucket `json:"buckets"`
	Source    string                   `json:"source"`
}

// Service combines backend access with the alert cache.
type Service struct {
	registry *alerting.Registry
	cache    *storage.AlertCache
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires a dashboard service. cache, recorder and logger may be nil.
func NewService(registry *alerting.Registry, cache *storage.AlertCache, recorder Recorder, logger *zap.Logger) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry: registry,
		cache:    cache,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Now returns the service clock in UTC.
func (s *Service) Now() time.Time {
	return s.now().UTC()
}

func (s *Service) client(dataSource string) (*alerting.Client, error) {
	return s.registry.Client(dataSource)
}

// Alerts returns the alerts of a monitor overlapping window, from cache when possible.
func (s *Service) Alerts(ctx context.Context, dataSource, monitorID string, window models.TimeWindow) ([]models.AlertRecord, bool, error) {
	cli, err := s.client(dataSource)
	if err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		snap, ok := s.cache.Get(cli.ID(), monitorID, window)
		s.recorder.CacheLookup(ok)
		if ok {
			return snap.Alerts, true, nil
		}
	}
	alerts, err := cli.AlertsInWindow(ctx, monitorID, window)
	if err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		s.cache.Put(cli.ID(), monitorID, window, alerts)
	}
	return alerts, false, nil
}

// Refresh fetches a monitor's alerts for window and replaces the cached snapshot.
func (s *Service) Refresh(ctx context.Context, dataSource, monitorID string, window models.TimeWindow) error {
	cli, err := s.client(dataSource)
	if err != nil {
		s.recorder.RefreshResult("error")
		return err
	}
	alerts, err := cli.AlertsInWindow(ctx, monitorID, window)
	if err != nil {
		s.recorder.RefreshResult("error")
		return fmt.Errorf("refresh monitor %s: %w", monitorID, err)
	}
	if s.cache != nil {
		s.cache.Put(cli.ID(), monitorID, window, alerts)
	}
	s.recorder.RefreshResult("ok")
	return nil
}

// Chart builds the chart payload of a monitor for window.
func (s *Service) Chart(ctx context.Context, dataSource, monitorID string, window models.TimeWindow) (ChartPayload, error) {
	if err := window.Validate(); err != nil {
		return ChartPayload{}, err
	}
	alerts, cached, err := s.Alerts(ctx, dataSource, monitorID, window)
	if err != nil {
		return ChartPayload{}, err
	}

	start := time.Now()
	interval := chart.SelectWindowInterval(window)
	payload := ChartPayload{
		MonitorID:   monitorID,
		DataSource:  s.resolvedID(dataSource),
		Window:      window,
		Interval:    interval,
		Triggers:    chart.BuildTriggerSeries(alerts, window),
		Histogram:   chart.BuildHistogram(alerts, window, interval),
		Stats:       metrics.ComputeTriggerStats(alerts, window),
		Cached:      cached,
		GeneratedAt: s.Now(),
	}
	if payload.Stats == nil {
		payload.Stats = []metrics.TriggerStats{}
	}
	s.recorder.ChartBuilt(time.Since(start))
	return payload, nil
}

// Histogram asks the backend for bucketed alert counts and falls back to
// local bucketing of the window's alerts when the aggregation fails.
func (s *Service) Histogram(ctx context.Context, dataSource, monitorID string, window models.TimeWindow) (HistogramPayload, error) {
	if err := window.Validate(); err != nil {
		return HistogramPayload{}, err
	}
	cli, err := s.client(dataSource)
	if err != nil {
		return HistogramPayload{}, err
	}
	interval := chart.SelectWindowInterval(window)
	payload := HistogramPayload{
		MonitorID: monitorID,
		Window:    window,
		Interval:  interval,
		Source:    "backend",
	}

	buckets, err := cli.AlertHistogram(ctx, monitorID, window, interval)
	if err == nil {
		payload.Buckets = buckets
		return payload, nil
	}
	if ctx.Err() != nil {
		return HistogramPayload{}, err
	}
	s.logger.Warn("backend histogram failed, bucketing locally",
		zap.String("monitor_id", monitorID),
		zap.Error(err),
	)
	alerts, _, lerr := s.Alerts(ctx, dataSource, monitorID, window)
	if lerr != nil {
		return HistogramPayload{}, errors.Join(err, lerr)
	}
	payload.Buckets = chart.BuildStartHistogram(alerts, window, interval)
	payload.Source = "local"
	return payload, nil
}

// SearchAlerts proxies an alert listing.
func (s *Service) SearchAlerts(ctx context.Context, dataSource string, q alerting.AlertQuery) (alerting.AlertPage, error) {
	cli, err := s.client(dataSource)
	if err != nil {
		return alerting.AlertPage{}, err
	}
	return cli.SearchAlerts(ctx, q)
}

// Monitor fetches one monitor definition.
func (s *Service) Monitor(ctx context.Context, dataSource, monitorID string) (models.Monitor, error) {
	cli, err := s.client(dataSource)
	if err != nil {
		return models.Monitor{}, err
	}
	return cli.GetMonitor(ctx, monitorID)
}

// Acknowledge acknowledges alerts and drops the monitor's cached snapshot.
func (s *Service) Acknowledge(ctx context.Context, dataSource, monitorID string, alertIDs []string) (alerting.AcknowledgeResult, error) {
	cli, err := s.client(dataSource)
	if err != nil {
		return alerting.AcknowledgeResult{}, err
	}
	result, err := cli.AcknowledgeAlerts(ctx, monitorID, alertIDs)
	if err != nil {
		return alerting.AcknowledgeResult{}, err
	}
	if s.cache != nil {
		s.cache.Invalidate(cli.ID(), monitorID)
	}
	s.logger.Info("alerts acknowledged",
		zap.String("data_source", cli.ID()),
		zap.String("monitor_id", monitorID),
		zap.Int("success", len(result.Success)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func (s *Service) resolvedID(dataSource string) string {
	if dataSource == "" {
		return s.registry.DefaultID()
	}
	return dataSource
}
