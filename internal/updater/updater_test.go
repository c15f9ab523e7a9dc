package updater

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconfigure-gui/internal/params"
	"reconfigure-gui/internal/remote"
)

type fakeClient struct {
	mu       sync.Mutex
	config   params.Config
	fetchErr error
	fetches  int
	updates  []params.Config
	updErr   error
	pushed   chan params.Config
}

func newFakeClient(cfg params.Config) *fakeClient {
	return &fakeClient{config: cfg}
}

func (f *fakeClient) Node() string { return "/n1" }

func (f *fakeClient) GroupDescriptions(ctx context.Context) (params.GroupDescription, error) {
	return params.GroupDescription{}, nil
}

func (f *fakeClient) Configuration(ctx context.Context) (params.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.config.Clone(), nil
}

func (f *fakeClient) UpdateConfiguration(ctx context.Context, delta params.Config) (params.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, delta)
	if f.updErr != nil {
		return nil, f.updErr
	}
	for k, v := range delta {
		f.config[k] = v
	}
	return f.config.Clone(), nil
}

func (f *fakeClient) Notifications() <-chan params.Config {
	if f.pushed == nil {
		return nil
	}
	return f.pushed
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) set(name string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config[name] = v
}

func (f *fakeClient) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

type fakeEditor struct {
	name  string
	mu    sync.Mutex
	value any
	sets  []any
}

func (e *fakeEditor) Name() string { return e.name }

func (e *fakeEditor) Value() any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

func (e *fakeEditor) SetFromRemote(v any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value = v
	e.sets = append(e.sets, v)
}

func (e *fakeEditor) setCalls() []any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]any(nil), e.sets...)
}

func newTestUpdater(c remote.Client, opts Options) *Updater {
	logger, _ := logtest.NewNullLogger()
	return New(c, logger, opts)
}

func TestReconcileOnlyTouchesDifferingEditors(t *testing.T) {
	client := newFakeClient(params.Config{"a": int64(1), "b": int64(2)})
	a := &fakeEditor{name: "a", value: int64(1)}
	b := &fakeEditor{name: "b", value: int64(2)}

	u := newTestUpdater(client, Options{})
	u.Register(a)
	u.Register(b)

	require.NoError(t, u.Reconcile(context.Background()))
	assert.Empty(t, a.setCalls())
	assert.Empty(t, b.setCalls())

	client.set("a", int64(5))
	require.NoError(t, u.Reconcile(context.Background()))
	assert.Equal(t, []any{int64(5)}, a.setCalls())
	assert.Empty(t, b.setCalls())
}

func TestReconcileComparesAcrossNumericTypes(t *testing.T) {
	client := newFakeClient(params.Config{"gain": float64(3)})
	e := &fakeEditor{name: "gain", value: int64(3)}

	u := newTestUpdater(client, Options{})
	u.Register(e)

	require.NoError(t, u.Reconcile(context.Background()))
	assert.Empty(t, e.setCalls())
}

func TestSubmitPreservesOrder(t *testing.T) {
	client := newFakeClient(params.Config{"x": int64(0), "y": int64(0), "z": "a"})
	u := newTestUpdater(client, Options{})

	require.NoError(t, u.Submit("y", int64(4)))
	require.NoError(t, u.Submit("x", int64(1)))
	require.NoError(t, u.Submit("z", "b"))
	require.NoError(t, u.Submit("x", int64(2)))

	assert.Equal(t, []params.Config{
		{"y": int64(4)},
		{"x": int64(1)},
		{"z": "b"},
		{"x": int64(2)},
	}, client.updates)
}

func TestSubmitFailureIsReportedAndLeavesEditor(t *testing.T) {
	client := newFakeClient(params.Config{"x": int64(0)})
	client.updErr = fmt.Errorf("node gone: %w", remote.ErrRemoteUpdateFailed)
	e := &fakeEditor{name: "x", value: int64(7)}

	var reported []error
	u := newTestUpdater(client, Options{OnError: func(err error) { reported = append(reported, err) }})
	u.Register(e)

	err := u.Submit("x", int64(7))
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrRemoteUpdateFailed)
	require.Len(t, reported, 1)
	assert.Equal(t, int64(7), e.Value())
	assert.Empty(t, e.setCalls())
}

func TestSubmitAfterStop(t *testing.T) {
	client := newFakeClient(params.Config{})
	u := newTestUpdater(client, Options{})
	u.Start()
	u.Stop()

	assert.ErrorIs(t, u.Submit("x", int64(1)), ErrStopped)
	assert.Empty(t, client.updates)
}

func TestLoopConvergesEditors(t *testing.T) {
	client := newFakeClient(params.Config{"a": int64(1)})
	e := &fakeEditor{name: "a", value: int64(1)}

	u := newTestUpdater(client, Options{ReconcileInterval: 5 * time.Millisecond})
	u.Register(e)
	u.Start()
	defer u.Stop()

	client.set("a", int64(9))
	require.Eventually(t, func() bool {
		return params.Equal(e.Value(), int64(9))
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, e.setCalls(), 1)
}

func TestNoSetFromRemoteAfterStop(t *testing.T) {
	client := newFakeClient(params.Config{"a": int64(0)})
	e := &fakeEditor{name: "a", value: int64(0)}

	var counter atomic.Int64
	u := newTestUpdater(client, Options{ReconcileInterval: time.Millisecond})
	u.Register(e)
	u.Start()

	// keep the remote value moving so every cycle has work to do
	stopWriter := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-stopWriter:
				return
			default:
				client.set("a", counter.Add(1))
				time.Sleep(100 * time.Microsecond)
			}
		}
	}()

	require.Eventually(t, func() bool { return len(e.setCalls()) > 0 }, time.Second, time.Millisecond)
	u.Stop()
	calls := len(e.setCalls())

	time.Sleep(20 * time.Millisecond)
	close(stopWriter)
	<-writerDone

	assert.Equal(t, calls, len(e.setCalls()))
	assert.False(t, u.Running())
}

func TestQueuedApplyIsDroppedAfterStop(t *testing.T) {
	client := newFakeClient(params.Config{"a": int64(2)})
	e := &fakeEditor{name: "a", value: int64(1)}

	// queue UI work instead of running it, like an event loop that is busy
	var queued []func()
	var qmu sync.Mutex
	dispatch := func(f func()) {
		qmu.Lock()
		defer qmu.Unlock()
		queued = append(queued, f)
	}

	u := newTestUpdater(client, Options{Dispatch: dispatch})
	u.Register(e)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	require.NoError(t, u.Reconcile(ctx))

	u.Stop()

	qmu.Lock()
	pending := queued
	qmu.Unlock()
	require.Len(t, pending, 1)
	pending[0]()

	assert.Empty(t, e.setCalls())
}

func TestPushedSnapshotsAreApplied(t *testing.T) {
	client := newFakeClient(params.Config{"mode": "auto"})
	client.pushed = make(chan params.Config, 1)
	e := &fakeEditor{name: "mode", value: "auto"}

	u := newTestUpdater(client, Options{ReconcileInterval: time.Hour})
	u.Register(e)
	u.Start()
	defer u.Stop()

	client.pushed <- params.Config{"mode": "manual"}
	require.Eventually(t, func() bool { return e.Value() == "manual" }, time.Second, time.Millisecond)
	assert.Zero(t, client.fetchCount())
}

func TestRepeatedFetchFailuresMarkNodeUnresponsive(t *testing.T) {
	client := newFakeClient(params.Config{"a": int64(1)})
	client.fetchErr = fmt.Errorf("connection refused: %w", remote.ErrRemoteFetchFailed)

	var states []bool
	u := newTestUpdater(client, Options{
		FailureThreshold: 3,
		CoolDown:         time.Hour,
		OnStateChange:    func(responsive bool) { states = append(states, responsive) },
	})

	for range 3 {
		err := u.Reconcile(context.Background())
		assert.True(t, errors.Is(err, remote.ErrRemoteFetchFailed))
	}
	assert.Equal(t, []bool{false}, states)

	// open breaker: cycles are skipped without touching the network
	require.NoError(t, u.Reconcile(context.Background()))
	assert.Equal(t, 3, client.fetchCount())
}

func TestStartIsIdempotent(t *testing.T) {
	client := newFakeClient(params.Config{})
	u := newTestUpdater(client, Options{})
	u.Start()
	u.Start()
	assert.True(t, u.Running())
	u.Stop()
	u.Stop()
	assert.False(t, u.Running())

	// a stopped updater cannot be restarted
	u.Start()
	assert.False(t, u.Running())
}
