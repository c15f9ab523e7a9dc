// Package updater keeps editor widgets and a node's parameter server in step.
//
// Local edits are sent to the node synchronously, one request per edit, in
// the order they are made. A single background goroutine fetches the node's
// configuration on a fixed cadence (or receives pushed snapshots) and hands
// each snapshot to the UI thread, where only editors whose displayed value
// differs are updated.
package updater

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"reconfigure-gui/internal/metrics"
	"reconfigure-gui/internal/params"
	"reconfigure-gui/internal/remote"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("updater stopped")

// Editor is the part of a parameter control the updater drives.
type Editor interface {
	Name() string
	// Value returns the value currently displayed.
	Value() any
	// SetFromRemote displays v without reporting it as a local edit.
	SetFromRemote(v any)
}

// Dispatcher runs f on the UI thread. It must not block on f.
type Dispatcher func(f func())

// Options tune an Updater. Zero values select the defaults.
type Options struct {
	ReconcileInterval time.Duration
	UpdateTimeout     time.Duration
	// FailureThreshold consecutive fetch failures mark the node unresponsive.
	FailureThreshold uint32
	// CoolDown is how long fetches are skipped once the node is unresponsive.
	CoolDown time.Duration

	Dispatch      Dispatcher
	OnError       func(error)
	OnStateChange func(responsive bool)
	Metrics       *metrics.Panel
}

func (o Options) withDefaults() Options {
	if o.ReconcileInterval <= 0 {
		o.ReconcileInterval = 250 * time.Millisecond
	}
	if o.UpdateTimeout <= 0 {
		o.UpdateTimeout = 2 * time.Second
	}
	if o.FailureThreshold == 0 {
		o.FailureThreshold = 5
	}
	if o.CoolDown <= 0 {
		o.CoolDown = 2 * time.Second
	}
	if o.Dispatch == nil {
		o.Dispatch = func(f func()) { f() }
	}
	return o
}

// Updater bridges editors and a remote parameter client.
type Updater struct {
	client  remote.Client
	logger  *logrus.Logger
	opts    Options
	breaker *gobreaker.CircuitBreaker

	mu      sync.Mutex
	editors []Editor
	running bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}

	// applyMu is held while a snapshot is written into editors.
	applyMu sync.Mutex
}

// New creates a stopped updater for client.
func New(client remote.Client, logger *logrus.Logger, opts Options) *Updater {
	u := &Updater{
		client: client,
		logger: logger,
		opts:   opts.withDefaults(),
	}

	u.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        client.Node(),
		MaxRequests: 1,
		Timeout:     u.opts.CoolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= u.opts.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			u.logger.WithFields(logrus.Fields{
				"node": name,
				"from": from.String(),
				"to":   to.String(),
			}).Warn("Node responsiveness changed")
			if u.opts.OnStateChange == nil || to == gobreaker.StateHalfOpen {
				return
			}
			responsive := to == gobreaker.StateClosed
			u.opts.Dispatch(func() { u.opts.OnStateChange(responsive) })
		},
	})

	return u
}

// Register adds an editor to the reconciliation set.
func (u *Updater) Register(e Editor) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.editors = append(u.editors, e)
}

// Editors returns the registered editors in registration order.
func (u *Updater) Editors() []Editor {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]Editor(nil), u.editors...)
}

// Running reports whether the inbound loop is active.
func (u *Updater) Running() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.running
}

// Start begins periodic inbound reconciliation. Editors are assumed to
// already show the values fetched at connect time, so no cycle runs until
// the first interval elapses or a snapshot is pushed.
func (u *Updater) Start() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.running || u.stopped {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	u.running = true
	u.cancel = cancel
	u.done = make(chan struct{})

	go u.loop(ctx, u.done)
}

// Stop halts reconciliation and waits for the loop to exit. Once Stop
// returns, no editor receives SetFromRemote from this updater.
func (u *Updater) Stop() {
	u.mu.Lock()
	cancel, done := u.cancel, u.done
	u.running = false
	u.stopped = true
	u.cancel, u.done = nil, nil
	u.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	// wait out an apply running on another goroutine
	u.applyMu.Lock()
	u.applyMu.Unlock()
}

// Submit sends a single-parameter change to the node. The call blocks for
// one round trip. A failure is reported and returned; the editor keeps
// displaying the value the user chose.
func (u *Updater) Submit(name string, value any) error {
	u.mu.Lock()
	stopped := u.stopped
	u.mu.Unlock()
	if stopped {
		return ErrStopped
	}

	ctx, cancel := context.WithTimeout(context.Background(), u.opts.UpdateTimeout)
	defer cancel()

	start := time.Now()
	_, err := u.client.UpdateConfiguration(ctx, params.Config{name: value})
	elapsed := time.Since(start)

	fields := logrus.Fields{
		"node":    u.client.Node(),
		"param":   name,
		"value":   value,
		"elapsed": elapsed,
	}
	if err != nil {
		u.opts.Metrics.Update(metrics.ResultFailed, elapsed)
		u.logger.WithFields(fields).WithError(err).Error("Parameter update failed")
		err = fmt.Errorf("set %s: %w", name, err)
		u.report(err)
		return err
	}

	u.opts.Metrics.Update(metrics.ResultOK, elapsed)
	u.logger.WithFields(fields).Debug("Parameter updated")
	return nil
}

func (u *Updater) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(u.opts.ReconcileInterval)
	defer ticker.Stop()

	pushed := u.client.Notifications()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := u.Reconcile(ctx); err != nil && ctx.Err() == nil {
				u.report(err)
			}
		case cfg, ok := <-pushed:
			if !ok {
				pushed = nil
				continue
			}
			u.apply(ctx, cfg)
		}
	}
}

// Reconcile runs one inbound cycle: fetch the node's configuration and apply
// it to the editors. It returns once the snapshot has been applied.
func (u *Updater) Reconcile(ctx context.Context) error {
	out, err := u.breaker.Execute(func() (interface{}, error) {
		return u.client.Configuration(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			u.opts.Metrics.ReconcileCycle(metrics.ResultSkipped, 0)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		u.opts.Metrics.ReconcileCycle(metrics.ResultFailed, 0)
		u.logger.WithField("node", u.client.Node()).WithError(err).Warn("Fetching remote configuration failed")
		return fmt.Errorf("reconcile: %w", err)
	}

	u.apply(ctx, out.(params.Config))
	return nil
}

// apply hands cfg to the UI thread and waits until it has been written or
// ctx ends.
func (u *Updater) apply(ctx context.Context, cfg params.Config) {
	applied := make(chan int, 1)

	u.opts.Dispatch(func() {
		u.applyMu.Lock()
		defer u.applyMu.Unlock()

		u.mu.Lock()
		active := !u.stopped
		editors := append([]Editor(nil), u.editors...)
		u.mu.Unlock()

		n := 0
		if active {
			n = applyConfig(editors, cfg)
		}
		applied <- n
	})

	select {
	case n := <-applied:
		u.opts.Metrics.ReconcileCycle(metrics.ResultOK, n)
		if n > 0 {
			u.logger.WithFields(logrus.Fields{
				"node":    u.client.Node(),
				"changed": n,
			}).Debug("Applied remote configuration")
		}
	case <-ctx.Done():
	}
}

// applyConfig writes every differing value of cfg into its editor and
// returns how many editors changed.
func applyConfig(editors []Editor, cfg params.Config) int {
	n := 0
	for _, e := range editors {
		v, ok := cfg[e.Name()]
		if !ok || params.Equal(e.Value(), v) {
			continue
		}
		e.SetFromRemote(v)
		n++
	}
	return n
}

func (u *Updater) report(err error) {
	if u.opts.OnError == nil {
		return
	}
	u.opts.Dispatch(func() { u.opts.OnError(err) })
}
