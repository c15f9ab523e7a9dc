// Client panel: the editors of one connected node
package gui

import (
	"context"
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"reconfigure-gui/internal/metrics"
	"reconfigure-gui/internal/params"
	"reconfigure-gui/internal/remote"
	"reconfigure-gui/internal/updater"
)

// PanelOptions configures a ClientPanel.
type PanelOptions struct {
	ConnectTimeout    time.Duration
	ReconcileInterval time.Duration
	UpdateTimeout     time.Duration

	// Dispatch runs editor updates on the UI thread. Defaults to fyne.Do.
	Dispatch      updater.Dispatcher
	OnError       func(error)
	OnStateChange func(responsive bool)
	Metrics       *metrics.Panel
}

// ClientPanel shows one editor per parameter of a node and keeps them in
// step with it through an Updater.
type ClientPanel struct {
	node    string
	client  remote.Client
	updater *updater.Updater
	logger  *logrus.Logger
	metrics *metrics.Panel

	editors []Editor
	grid    *fyne.Container
	card    *widget.Card
	closed  bool
}

// ConnectNode opens a client to node and fetches its parameter descriptions.
// On failure nothing stays open.
func ConnectNode(ctx context.Context, dialer remote.Dialer, node string, timeout time.Duration, logger *logrus.Logger, m *metrics.Panel) (remote.Client, params.GroupDescription, error) {
	if timeout <= 0 {
		timeout = remote.DefaultConnectTimeout
	}
	log := logger.WithField("node", node)
	log.WithField("timeout", timeout).Info("Connecting to node")

	client, err := dialer.Connect(ctx, node, timeout)
	if err != nil {
		m.Connect(metrics.ResultFailed)
		log.WithError(err).Warn("Connection failed")
		return nil, params.GroupDescription{}, fmt.Errorf("connect to %s: %w", node, err)
	}

	descCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	desc, err := client.GroupDescriptions(descCtx)
	if err != nil {
		m.Connect(metrics.ResultFailed)
		log.WithError(err).Warn("Fetching parameter descriptions failed")
		if cerr := client.Close(); cerr != nil {
			log.WithError(cerr).Debug("Closing client failed")
		}
		return nil, params.GroupDescription{}, fmt.Errorf("describe %s: %w", node, err)
	}

	m.Connect(metrics.ResultOK)
	log.WithField("params", len(desc.Parameters)).Info("Connected to node")
	return client, desc, nil
}

// NewClientPanel builds the editors for desc and starts reconciliation.
// Must be called on the UI thread. The panel owns client from here on.
func NewClientPanel(client remote.Client, desc params.GroupDescription, logger *logrus.Logger, opts PanelOptions) *ClientPanel {
	if opts.Dispatch == nil {
		opts.Dispatch = fyne.Do
	}

	p := &ClientPanel{
		node:    client.Node(),
		client:  client,
		logger:  logger,
		metrics: opts.Metrics,
		grid:    container.New(layout.NewFormLayout()),
	}

	p.updater = updater.New(client, logger, updater.Options{
		ReconcileInterval: opts.ReconcileInterval,
		UpdateTimeout:     opts.UpdateTimeout,
		Dispatch:          opts.Dispatch,
		OnError:           opts.OnError,
		OnStateChange:     opts.OnStateChange,
		Metrics:           opts.Metrics,
	})

	for _, d := range desc.Parameters {
		ed, ok := NewEditor(d, p.updater, logger)
		if !ok {
			logger.WithFields(logrus.Fields{
				"node":  p.node,
				"param": d.Name,
				"type":  d.Type.String(),
			}).Warn("Skipping parameter of unsupported type")
			continue
		}
		ed.Display(p.grid, len(p.editors))
		p.updater.Register(ed)
		p.editors = append(p.editors, ed)
	}

	title := p.node
	if desc.Name != "" {
		title = fmt.Sprintf("%s (%s)", p.node, desc.Name)
	}
	p.card = widget.NewCard(title, fmt.Sprintf("%d parameters", len(p.editors)), container.NewVScroll(p.grid))

	p.metrics.SetActiveEditors(len(p.editors))
	p.updater.Start()
	return p
}

// OpenClientPanel connects to node and builds its panel in one call. Used
// where blocking the caller for the connect timeout is acceptable.
func OpenClientPanel(ctx context.Context, dialer remote.Dialer, node string, logger *logrus.Logger, opts PanelOptions) (*ClientPanel, error) {
	client, desc, err := ConnectNode(ctx, dialer, node, opts.ConnectTimeout, logger, opts.Metrics)
	if err != nil {
		return nil, err
	}
	return NewClientPanel(client, desc, logger, opts), nil
}

func (p *ClientPanel) Node() string {
	return p.node
}

func (p *ClientPanel) Editors() []Editor {
	return append([]Editor(nil), p.editors...)
}

// Editor returns the editor for a parameter.
func (p *ClientPanel) Editor(name string) (Editor, bool) {
	for _, e := range p.editors {
		if e.Name() == name {
			return e, true
		}
	}
	return nil, false
}

func (p *ClientPanel) GetContainer() fyne.CanvasObject {
	return p.card
}

// Close stops reconciliation, then closes the connection and discards the
// editors. Safe to call more than once.
func (p *ClientPanel) Close() {
	if p.closed {
		return
	}
	p.closed = true

	p.updater.Stop()
	if err := p.client.Close(); err != nil {
		p.logger.WithField("node", p.node).WithError(err).Debug("Closing client failed")
	}

	p.grid.RemoveAll()
	p.editors = nil
	p.metrics.SetActiveEditors(0)
	p.logger.WithField("node", p.node).Info("Disconnected from node")
}
