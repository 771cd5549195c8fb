package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/tokenmeter/pkg/config"
	"mercator-hq/tokenmeter/pkg/telemetry/logging"
	"mercator-hq/tokenmeter/pkg/telemetry/metrics"
	"mercator-hq/tokenmeter/pkg/usage"
)

type fakePublisher struct {
	mu       sync.Mutex
	records  []*usage.Record
	errCodes []string
	flushes  int
}

func (p *fakePublisher) Record(_ context.Context, rec *usage.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
	return nil
}

func (p *fakePublisher) RecordError(_ context.Context, _, _, code, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errCodes = append(p.errCodes, code)
	return nil
}

func (p *fakePublisher) Flush(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes++
	return nil
}

func (p *fakePublisher) counts() (records, flushes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records), p.flushes
}

// fakeStore counts completed Put calls. Its behaviour is swapped through
// the put hook.
type fakeStore struct {
	calls atomic.Int64
	mu    sync.Mutex
	put   func(ctx context.Context, rec *usage.Record) error
}

func (s *fakeStore) Put(ctx context.Context, rec *usage.Record) error {
	s.mu.Lock()
	put := s.put
	s.mu.Unlock()

	var err error
	if put != nil {
		err = put(ctx, rec)
	}
	s.calls.Add(1)
	return err
}

func (s *fakeStore) setPut(fn func(ctx context.Context, rec *usage.Record) error) {
	s.mu.Lock()
	s.put = fn
	s.mu.Unlock()
}

func testConfig() config.DispatcherConfig {
	return config.DispatcherConfig{
		QueueSize:     100,
		FlushInterval: time.Hour,
		WriteTimeout:  time.Second,
		ShutdownGrace: 5 * time.Second,
		CircuitBreaker: config.CircuitBreakerConfig{
			FailureThreshold: 3,
			RecoveryTimeout:  time.Minute,
		},
	}
}

func testRecord(agent string) *usage.Record {
	return usage.NewRecord(time.Now(), agent, "model", "", 10, 5, 0.001)
}

func flush(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.FlushAll(ctx))
}

func TestDispatcher_DeliversToBothSinks(t *testing.T) {
	pub := &fakePublisher{}
	st := &fakeStore{}
	d := New(testConfig(), pub, st)
	defer d.Close(context.Background())

	for i := 0; i < 5; i++ {
		d.Submit(context.Background(), testRecord("agent"))
	}
	flush(t, d)

	records, flushes := pub.counts()
	assert.Equal(t, 5, records)
	assert.Equal(t, 1, flushes)
	assert.EqualValues(t, 5, st.calls.Load())

	stats := d.Stats()
	assert.EqualValues(t, 6, stats[SinkMetrics].Delivered)
	assert.EqualValues(t, 5, stats[SinkStore].Delivered)
	assert.Equal(t, "closed", stats[SinkStore].Breaker)
}

func TestDispatcher_SubmitDoesNotWaitForSinks(t *testing.T) {
	release := make(chan struct{})
	st := &fakeStore{}
	st.setPut(func(context.Context, *usage.Record) error {
		<-release
		return nil
	})
	cfg := testConfig()
	cfg.WriteTimeout = 10 * time.Second
	d := New(cfg, nil, st)
	defer d.Close(context.Background())

	start := time.Now()
	for i := 0; i < 10; i++ {
		d.Submit(context.Background(), testRecord("agent"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.EqualValues(t, 0, st.calls.Load(), "no sink call may complete before Submit returns")

	close(release)
	flush(t, d)
	assert.EqualValues(t, 10, st.calls.Load())
}

func TestDispatcher_BreakerSkipsFailingSink(t *testing.T) {
	clock := newFakeClock()
	st := &fakeStore{}
	st.setPut(func(context.Context, *usage.Record) error { return errors.New("table unavailable") })

	d := New(testConfig(), nil, st, WithClock(clock.Now))
	defer d.Close(context.Background())

	for i := 0; i < 5; i++ {
		d.Submit(context.Background(), testRecord("agent"))
	}
	flush(t, d)

	assert.EqualValues(t, 3, st.calls.Load(), "calls stop once the breaker opens")
	assert.Equal(t, StateOpen, d.Breaker(SinkStore).State())
	stats := d.Stats()[SinkStore]
	assert.EqualValues(t, 3, stats.Failed)
	assert.EqualValues(t, 2, stats.Skipped)

	// Still open before the recovery timeout.
	d.Submit(context.Background(), testRecord("agent"))
	flush(t, d)
	assert.EqualValues(t, 3, st.calls.Load())

	// Trial call after the timeout closes the breaker on success.
	clock.Advance(time.Minute)
	st.setPut(nil)
	d.Submit(context.Background(), testRecord("agent"))
	d.Submit(context.Background(), testRecord("agent"))
	flush(t, d)
	assert.EqualValues(t, 5, st.calls.Load())
	assert.Equal(t, StateClosed, d.Breaker(SinkStore).State())
}

func TestDispatcher_SinksAreIndependent(t *testing.T) {
	pub := &fakePublisher{}
	st := &fakeStore{}
	st.setPut(func(context.Context, *usage.Record) error { return errors.New("down") })

	d := New(testConfig(), pub, st)
	defer d.Close(context.Background())

	for i := 0; i < 10; i++ {
		d.Submit(context.Background(), testRecord("agent"))
	}
	flush(t, d)

	records, _ := pub.counts()
	assert.Equal(t, 10, records)
	assert.Equal(t, StateClosed, d.Breaker(SinkMetrics).State())
	assert.Equal(t, StateOpen, d.Breaker(SinkStore).State())
}

func TestDispatcher_RecoversFromPanic(t *testing.T) {
	st := &fakeStore{}
	var first atomic.Bool
	st.setPut(func(context.Context, *usage.Record) error {
		if first.CompareAndSwap(false, true) {
			panic("nil map")
		}
		return nil
	})

	d := New(testConfig(), nil, st)
	defer d.Close(context.Background())

	d.Submit(context.Background(), testRecord("a"))
	d.Submit(context.Background(), testRecord("b"))
	flush(t, d)

	stats := d.Stats()[SinkStore]
	assert.EqualValues(t, 1, stats.Failed)
	assert.EqualValues(t, 1, stats.Delivered)
}

func TestDispatcher_WriteTimeout(t *testing.T) {
	st := &fakeStore{}
	var got atomic.Value
	st.setPut(func(ctx context.Context, _ *usage.Record) error {
		<-ctx.Done()
		got.Store(ctx.Err())
		return ctx.Err()
	})
	cfg := testConfig()
	cfg.WriteTimeout = 20 * time.Millisecond

	d := New(cfg, nil, st)
	defer d.Close(context.Background())

	d.Submit(context.Background(), testRecord("a"))
	flush(t, d)

	assert.Equal(t, context.DeadlineExceeded, got.Load())
	assert.EqualValues(t, 1, d.Stats()[SinkStore].Failed)
}

func TestDispatcher_SinkCallKeepsValuesNotCancellation(t *testing.T) {
	st := &fakeStore{}
	var incident atomic.Value
	var ctxErr atomic.Value
	st.setPut(func(ctx context.Context, _ *usage.Record) error {
		incident.Store(logging.GetIncidentID(ctx))
		ctxErr.Store(ctx.Err() == nil)
		return nil
	})

	d := New(testConfig(), nil, st)
	defer d.Close(context.Background())

	ctx, cancel := context.WithCancel(logging.WithIncidentID(context.Background(), "INC-9"))
	d.Submit(ctx, testRecord("a"))
	cancel()
	flush(t, d)

	assert.Equal(t, "INC-9", incident.Load())
	assert.Equal(t, true, ctxErr.Load(), "request cancellation must not reach the sink")
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	release := make(chan struct{})
	st := &fakeStore{}
	st.setPut(func(context.Context, *usage.Record) error {
		<-release
		return nil
	})
	cfg := testConfig()
	cfg.QueueSize = 2
	cfg.WriteTimeout = 10 * time.Second

	d := New(cfg, nil, st)
	defer d.Close(context.Background())

	for i := 0; i < 6; i++ {
		d.Submit(context.Background(), testRecord("agent"))
	}
	close(release)
	flush(t, d)

	stats := d.Stats()[SinkStore]
	assert.GreaterOrEqual(t, stats.Dropped, int64(3))
	assert.EqualValues(t, 6, stats.Delivered+stats.Dropped)
}

func TestDispatcher_SubmitError(t *testing.T) {
	pub := &fakePublisher{}
	st := &fakeStore{}
	d := New(testConfig(), pub, st)
	defer d.Close(context.Background())

	d.SubmitError(context.Background(), "agent", "model", "ThrottlingException", "")
	flush(t, d)

	pub.mu.Lock()
	assert.Equal(t, []string{"ThrottlingException"}, pub.errCodes)
	pub.mu.Unlock()
	assert.EqualValues(t, 0, st.calls.Load())
}

func TestDispatcher_PeriodicFlush(t *testing.T) {
	pub := &fakePublisher{}
	cfg := testConfig()
	cfg.FlushInterval = 10 * time.Millisecond

	d := New(cfg, pub, nil)
	defer d.Close(context.Background())

	require.Eventually(t, func() bool {
		_, flushes := pub.counts()
		return flushes >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDispatcher_CloseDrainsAndFlushes(t *testing.T) {
	pub := &fakePublisher{}
	st := &fakeStore{}
	st.setPut(func(context.Context, *usage.Record) error {
		time.Sleep(time.Millisecond)
		return nil
	})

	d := New(testConfig(), pub, st)
	for i := 0; i < 20; i++ {
		d.Submit(context.Background(), testRecord("agent"))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.EqualValues(t, 20, st.calls.Load())
	records, flushes := pub.counts()
	assert.Equal(t, 20, records)
	assert.Equal(t, 1, flushes)

	// Intake is stopped after Close.
	d.Submit(context.Background(), testRecord("late"))
	assert.EqualValues(t, 1, d.Stats()[SinkStore].Dropped)
	assert.ErrorIs(t, d.FlushAll(context.Background()), ErrClosed)
	assert.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_CloseGraceElapses(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	st := &fakeStore{}
	st.setPut(func(context.Context, *usage.Record) error {
		<-release
		return nil
	})
	cfg := testConfig()
	cfg.ShutdownGrace = 20 * time.Millisecond
	cfg.WriteTimeout = 10 * time.Second

	d := New(cfg, nil, st)
	d.Submit(context.Background(), testRecord("a"))
	d.Submit(context.Background(), testRecord("b"))

	assert.ErrorIs(t, d.Close(context.Background()), ErrDrainTimeout)
}

func TestDispatcher_SubmitDuringCloseWithPendingFlush(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{}, 1)
	st := &fakeStore{}
	st.setPut(func(context.Context, *usage.Record) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})
	cfg := testConfig()
	cfg.QueueSize = 1
	cfg.WriteTimeout = 10 * time.Second
	cfg.ShutdownGrace = 50 * time.Millisecond

	d := New(cfg, nil, st)
	d.Submit(context.Background(), testRecord("a"))
	<-started
	d.Submit(context.Background(), testRecord("b"))
	require.Equal(t, 1, d.Stats()[SinkStore].Queued)

	flushErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		flushErr <- d.FlushAll(ctx)
	}()
	time.Sleep(20 * time.Millisecond)

	closeErr := make(chan error, 1)
	go func() { closeErr <- d.Close(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	submitted := make(chan struct{})
	go func() {
		d.Submit(context.Background(), testRecord("late"))
		close(submitted)
	}()

	select {
	case <-submitted:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Submit blocked while Close waited on a pending FlushAll")
	}

	select {
	case err := <-flushErr:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("FlushAll did not return after Close began")
	}
	select {
	case err := <-closeErr:
		assert.ErrorIs(t, err, ErrDrainTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.GreaterOrEqual(t, d.Stats()[SinkStore].Dropped, int64(1))
}

func TestDispatcher_NilSinks(t *testing.T) {
	d := New(config.DispatcherConfig{}, nil, nil)

	d.Submit(context.Background(), testRecord("agent"))
	d.SubmitError(context.Background(), "agent", "model", "Unknown", "")
	require.NoError(t, d.FlushAll(context.Background()))
	assert.Empty(t, d.Stats())
	assert.Nil(t, d.Breaker(SinkStore))
	assert.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_Metrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	dm := metrics.NewDispatchMetrics(&config.MetricsConfig{Namespace: "tokenmeter"}, registry)

	st := &fakeStore{}
	st.setPut(func(context.Context, *usage.Record) error { return errors.New("down") })
	cfg := testConfig()
	cfg.CircuitBreaker.FailureThreshold = 1

	d := New(cfg, nil, st, WithMetrics(dm))
	defer d.Close(context.Background())

	d.Submit(context.Background(), testRecord("a"))
	d.Submit(context.Background(), testRecord("b"))
	flush(t, d)

	families, err := registry.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "," + lp.GetName() + "=" + lp.GetValue()
			}
			if m.GetCounter() != nil {
				values[key] = m.GetCounter().GetValue()
			} else if m.GetGauge() != nil {
				values[key] = m.GetGauge().GetValue()
			}
		}
	}

	assert.Equal(t, 1.0, values["tokenmeter_dispatch_total,outcome=failed,sink=store"])
	assert.Equal(t, 1.0, values["tokenmeter_dispatch_total,outcome=skipped,sink=store"])
	assert.Equal(t, float64(StateOpen), values["tokenmeter_circuit_breaker_state,sink=store"])
}

func TestDispatcher_IncidentContext(t *testing.T) {
	d := New(testConfig(), nil, nil)
	defer d.Close(context.Background())

	err := d.IncidentContext(context.Background(), "INC-1", nil, func(ctx context.Context) error {
		assert.Len(t, d.Incidents().Active(), 1)
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, d.Incidents().Active())
}
