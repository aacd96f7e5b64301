package watch

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"alertcharts/internal/models"
)

// Pinger is a data source that can be probed.
type Pinger interface {
	ID() string
	Ping(ctx context.Context) error
}

// SourceSummary is the availability of one data source over the kept history.
type SourceSummary struct {
	DataSource          string              `json:"data_source"`
	AvailabilityPercent float64             `json:"availability_percent"`
	Samples             int                 `json:"samples"`
	Latest              *models.ProbeSample `json:"latest,omitempty"`
}

// Prober periodically pings every data source and keeps recent samples.
type Prober struct {
	targets    []Pinger
	interval   time.Duration
	timeout    time.Duration
	maxHistory int
	logger     *zap.Logger

	mu      sync.RWMutex
	latest  map[string]models.ProbeSample
	history []models.ProbeSample

	lifecycle sync.Mutex
	started   bool
	stopped   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewProber configures a prober; maxHistory bounds the kept samples across all sources.
func NewProber(targets []Pinger, interval time.Duration, maxHistory int, logger *zap.Logger) *Prober {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if maxHistory <= 0 {
		maxHistory = 1440
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := interval / 2
	if timeout > 10*time.Second {
		timeout = 10 * time.Second
	}
	return &Prober{
		targets:    targets,
		interval:   interval,
		timeout:    timeout,
		maxHistory: maxHistory,
		logger:     logger,
		latest:     make(map[string]models.ProbeSample),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start launches the probing loop in a goroutine. It does nothing once the
// loop runs or the prober was stopped.
func (p *Prober) Start() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	go p.run()
}

// Stop requests graceful loop termination and waits until it is done.
// Stopping a prober that never started returns at once.
func (p *Prober) Stop() {
	p.lifecycle.Lock()
	if !p.started {
		p.stopped = true
		p.lifecycle.Unlock()
		return
	}
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	p.lifecycle.Unlock()
	<-p.doneCh
}

func (p *Prober) run() {
	defer close(p.doneCh)

	p.ProbeOnce(context.Background())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.ProbeOnce(context.Background())
		case <-p.stopCh:
			return
		}
	}
}

// ProbeOnce pings every target once and records the samples.
func (p *Prober) ProbeOnce(ctx context.Context) []models.ProbeSample {
	samples := make([]models.ProbeSample, 0, len(p.targets))
	for _, target := range p.targets {
		probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
		started := time.Now()
		err := target.Ping(probeCtx)
		cancel()

		sample := models.ProbeSample{
			DataSource: target.ID(),
			CheckedAt:  time.Now().UTC(),
		}
		if err != nil {
			sample.Error = err.Error()
			if errors.Is(err, context.DeadlineExceeded) {
				sample.Error = "probe timed out"
			}
			p.logger.Warn("data source probe failed", zap.String("data_source", target.ID()), zap.Error(err))
		} else {
			sample.OK = true
			sample.LatencyMs = int64(time.Since(started) / time.Millisecond)
		}
		samples = append(samples, sample)
	}

	p.mu.Lock()
	for _, sample := range samples {
		p.latest[sample.DataSource] = sample
	}
	p.history = append(p.history, samples...)
	if len(p.history) > p.maxHistory {
		p.history = p.history[len(p.history)-p.maxHistory:]
	}
	p.mu.Unlock()
	return samples
}

// Latest returns the most recent sample of a data source.
func (p *Prober) Latest(dataSource string) (models.ProbeSample, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	sample, ok := p.latest[dataSource]
	return sample, ok
}

// History returns a copy of the kept samples, oldest first.
func (p *Prober) History() []models.ProbeSample {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.history) == 0 {
		return nil
	}
	out := make([]models.ProbeSample, len(p.history))
	copy(out, p.history)
	return out
}

// Summary reports per-source availability over the kept history, ordered by source id.
func (p *Prober) Summary() []SourceSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	type acc struct{ ok, total int }
	counts := make(map[string]*acc)
	for _, sample := range p.history {
		c := counts[sample.DataSource]
		if c == nil {
			c = &acc{}
			counts[sample.DataSource] = c
		}
		c.total++
		if sample.OK {
			c.ok++
		}
	}

	ids := make([]string, 0, len(p.targets))
	for _, target := range p.targets {
		ids = append(ids, target.ID())
	}
	sort.Strings(ids)

	out := make([]SourceSummary, 0, len(ids))
	for _, id := range ids {
		summary := SourceSummary{DataSource: id}
		if c := counts[id]; c != nil && c.total > 0 {
			summary.Samples = c.total
			summary.AvailabilityPercent = math.Round(float64(c.ok)/float64(c.total)*10000) / 100
		}
		if latest, ok := p.latest[id]; ok {
			latest := latest
			summary.Latest = &latest
		}
		out = append(out, summary)
	}
	return out
}
