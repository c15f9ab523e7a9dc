// Prometheus collectors for the panel and the parameter node daemon
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reconfigure"

// Result labels
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Panel holds the collectors of the GUI side. A nil *Panel records nothing.
type Panel struct {
	discoveryPolls  *prometheus.CounterVec
	connects        *prometheus.CounterVec
	reconcileCycles *prometheus.CounterVec
	remoteApplied   prometheus.Counter
	updates         *prometheus.CounterVec
	updateDuration  prometheus.Histogram
	activeEditors   prometheus.Gauge
}

// NewPanel registers the panel collectors on reg.
func NewPanel(reg prometheus.Registerer) *Panel {
	factory := promauto.With(reg)

	return &Panel{
		discoveryPolls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "panel",
			Name:      "discovery_polls_total",
			Help:      "Node discovery polls by result",
		}, []string{"result"}),

		connects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "panel",
			Name:      "connects_total",
			Help:      "Connection attempts by result",
		}, []string{"result"}),

		reconcileCycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "panel",
			Name:      "reconcile_cycles_total",
			Help:      "Inbound reconciliation cycles by result",
		}, []string{"result"}),

		remoteApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "panel",
			Name:      "remote_values_applied_total",
			Help:      "Editor values replaced by a differing remote value",
		}),

		updates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "panel",
			Name:      "updates_total",
			Help:      "Outbound parameter updates by result",
		}, []string{"result"}),

		updateDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "panel",
			Name:      "update_duration_seconds",
			Help:      "Round trip of outbound parameter updates",
			Buckets:   prometheus.DefBuckets,
		}),

		activeEditors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "panel",
			Name:      "active_editors",
			Help:      "Editors bound to the connected node",
		}),
	}
}

func (p *Panel) DiscoveryPoll(result string) {
	if p == nil {
		return
	}
	p.discoveryPolls.WithLabelValues(result).Inc()
}

func (p *Panel) Connect(result string) {
	if p == nil {
		return
	}
	p.connects.WithLabelValues(result).Inc()
}

func (p *Panel) ReconcileCycle(result string, applied int) {
	if p == nil {
		return
	}
	p.reconcileCycles.WithLabelValues(result).Inc()
	if applied > 0 {
		p.remoteApplied.Add(float64(applied))
	}
}

func (p *Panel) Update(result string, elapsed time.Duration) {
	if p == nil {
		return
	}
	p.updates.WithLabelValues(result).Inc()
	p.updateDuration.Observe(elapsed.Seconds())
}

func (p *Panel) SetActiveEditors(n int) {
	if p == nil {
		return
	}
	p.activeEditors.Set(float64(n))
}

// Node holds the collectors of a parameter node or registry. A nil *Node
// records nothing.
type Node struct {
	updates       *prometheus.CounterVec
	watchers      prometheus.Gauge
	registrations *prometheus.CounterVec
	liveNodes     prometheus.Gauge
}

// NewNode registers the daemon collectors on reg.
func NewNode(reg prometheus.Registerer) *Node {
	factory := promauto.With(reg)

	return &Node{
		updates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "updates_total",
			Help:      "Configuration updates received by result",
		}, []string{"result"}),

		watchers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "watchers",
			Help:      "Connected change-notification subscribers",
		}),

		registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "registrations_total",
			Help:      "Node registrations by result",
		}, []string{"result"}),

		liveNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "live_nodes",
			Help:      "Nodes with an unexpired registration",
		}),
	}
}

func (n *Node) Update(result string) {
	if n == nil {
		return
	}
	n.updates.WithLabelValues(result).Inc()
}

func (n *Node) WatcherAdded() {
	if n == nil {
		return
	}
	n.watchers.Inc()
}

func (n *Node) WatcherRemoved() {
	if n == nil {
		return
	}
	n.watchers.Dec()
}

func (n *Node) Registration(result string) {
	if n == nil {
		return
	}
	n.registrations.WithLabelValues(result).Inc()
}

func (n *Node) SetLiveNodes(count int) {
	if n == nil {
		return
	}
	n.liveNodes.Set(float64(count))
}
