package watch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	id    string
	fails atomic.Int32
	block bool
}

func (f *fakePinger) ID() string { return f.id }

func (f *fakePinger) Ping(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.fails.Load() > 0 {
		f.fails.Add(-1)
		return errors.New("connection refused")
	}
	return nil
}

func TestProberSummary(t *testing.T) {
	healthy := &fakePinger{id: "b-prod"}
	flaky := &fakePinger{id: "a-staging"}
	flaky.fails.Store(1)

	p := NewProber([]Pinger{healthy, flaky}, time.Minute, 100, nil)
	first := p.ProbeOnce(context.Background())
	require.Len(t, first, 2)
	p.ProbeOnce(context.Background())

	summary := p.Summary()
	require.Len(t, summary, 2)
	assert.Equal(t, "a-staging", summary[0].DataSource)
	assert.Equal(t, 50.0, summary[0].AvailabilityPercent)
	assert.Equal(t, 2, summary[0].Samples)
	require.NotNil(t, summary[0].Latest)
	assert.True(t, summary[0].Latest.OK)

	assert.Equal(t, "b-prod", summary[1].DataSource)
	assert.Equal(t, 100.0, summary[1].AvailabilityPercent)

	latest, ok := p.Latest("a-staging")
	require.True(t, ok)
	assert.True(t, latest.OK)
	_, ok = p.Latest("unknown")
	assert.False(t, ok)
}

func TestProberTimeout(t *testing.T) {
	p := NewProber([]Pinger{&fakePinger{id: "slow", block: true}}, 20*time.Millisecond, 10, nil)
	samples := p.ProbeOnce(context.Background())
	require.Len(t, samples, 1)
	assert.False(t, samples[0].OK)
	assert.Equal(t, "probe timed out", samples[0].Error)
}

func TestProberHistoryBounded(t *testing.T) {
	p := NewProber([]Pinger{&fakePinger{id: "a"}, &fakePinger{id: "b"}}, time.Minute, 3, nil)
	p.ProbeOnce(context.Background())
	p.ProbeOnce(context.Background())

	history := p.History()
	require.Len(t, history, 3)
	assert.Equal(t, "b", history[0].DataSource)
}

func TestProberSummaryWithoutSamples(t *testing.T) {
	p := NewProber([]Pinger{&fakePinger{id: "a"}}, time.Minute, 3, nil)
	summary := p.Summary()
	require.Len(t, summary, 1)
	assert.Zero(t, summary[0].Samples)
	assert.Nil(t, summary[0].Latest)
	assert.Nil(t, p.History())
}

func TestProberStartStop(t *testing.T) {
	p := NewProber([]Pinger{&fakePinger{id: "a"}}, time.Hour, 3, nil)
	p.Start()
	require.Eventually(t, func() bool {
		_, ok := p.Latest("a")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	p.Stop()
	p.Stop()
}

func TestProberStopWithoutStart(t *testing.T) {
	p := NewProber([]Pinger{&fakePinger{id: "a"}}, time.Hour, 3, nil)
	done := make(chan struct{})
	go func() {
		p.Stop()
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a prober that never started")
	}

	p.Start()
	time.Sleep(50 * time.Millisecond)
	_, ok := p.Latest("a")
	assert.False(t, ok, "Start after Stop must not launch the loop")
}

func TestProberConcurrentStop(t *testing.T) {
	p := NewProber([]Pinger{&fakePinger{id: "a"}}, time.Hour, 3, nil)
	p.Start()
	p.Start()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Stop()
		}()
	}
	wg.Wait()
}
