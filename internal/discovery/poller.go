// Package discovery keeps a displayed node list in step with the registry.
package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"reconfigure-gui/internal/metrics"
	"reconfigure-gui/internal/remote"
)

// Sink receives incremental changes to the node list.
type Sink interface {
	Add(node string)
	Remove(node string)
	Clear()
}

// Diff returns the nodes of prev missing from next and the nodes of next
// missing from prev, each in the order of its source slice.
func Diff(prev, next []string) (removed, added []string) {
	inNext := make(map[string]struct{}, len(next))
	for _, n := range next {
		inNext[n] = struct{}{}
	}
	inPrev := make(map[string]struct{}, len(prev))
	for _, n := range prev {
		inPrev[n] = struct{}{}
		if _, ok := inNext[n]; !ok {
			removed = append(removed, n)
		}
	}
	for _, n := range next {
		if _, ok := inPrev[n]; !ok {
			added = append(added, n)
		}
	}
	return removed, added
}

// Poller periodically lists nodes and forwards changes to a Sink.
type Poller struct {
	discovery remote.Discovery
	sink      Sink
	interval  time.Duration
	logger    *logrus.Logger
	metrics   *metrics.Panel

	// Dispatch runs sink updates on the UI thread.
	dispatch func(func())

	mu     sync.Mutex
	last   []string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a poller. dispatch may be nil, in which case sink
// updates run on the polling goroutine.
func NewPoller(d remote.Discovery, sink Sink, interval time.Duration, logger *logrus.Logger, m *metrics.Panel, dispatch func(func())) *Poller {
	if dispatch == nil {
		dispatch = func(f func()) { f() }
	}
	return &Poller{
		discovery: d,
		sink:      sink,
		interval:  interval,
		logger:    logger,
		metrics:   m,
		dispatch:  dispatch,
	}
}

// Start launches the polling loop. The first poll runs immediately.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(ctx, p.done)
}

// Stop cancels the loop and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.Poll(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll performs one discovery round.
func (p *Poller) Poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, p.interval*10)
	defer cancel()

	nodes, err := p.discovery.ListNodes(pollCtx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.metrics.DiscoveryPoll(metrics.ResultFailed)
		p.logger.WithError(err).Debug("Node discovery failed, keeping current list")
		return
	}
	p.metrics.DiscoveryPoll(metrics.ResultOK)

	p.mu.Lock()
	prev := p.last
	p.last = append([]string(nil), nodes...)
	p.mu.Unlock()

	switch {
	case len(nodes) == 0:
		if len(prev) == 0 {
			return
		}
		p.logger.Info("No reconfigurable nodes left")
		p.dispatch(p.sink.Clear)
	case len(prev) == 0:
		p.dispatch(func() {
			for _, n := range nodes {
				p.sink.Add(n)
			}
		})
	default:
		removed, added := Diff(prev, nodes)
		if len(removed) == 0 && len(added) == 0 {
			return
		}
		p.logger.WithFields(logrus.Fields{
			"added":   added,
			"removed": removed,
		}).Debug("Node list changed")
		p.dispatch(func() {
			for _, n := range removed {
				p.sink.Remove(n)
			}
			for _, n := range added {
				p.sink.Add(n)
			}
		})
	}
}
