// Main window: node selector on top, the connected node's editors below
package gui

import (
	"context"
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"reconfigure-gui/internal/config"
	"reconfigure-gui/internal/discovery"
	"reconfigure-gui/internal/metrics"
	"reconfigure-gui/internal/remote"
	"reconfigure-gui/internal/updater"
)

// Application is the reconfigure window.
type Application struct {
	app     fyne.App
	window  fyne.Window
	logger  *logrus.Logger
	cfg     config.Config
	metrics *metrics.Panel

	discovery remote.Discovery
	dialer    remote.Dialer
	poller    *discovery.Poller

	// GUI components
	selector    *NodeSelector
	menuHandler *MenuHandler
	panel       *ClientPanel
	panelHolder *fyne.Container
	statusCard  *widget.Card

	// connectGen identifies the newest connection attempt; results of
	// older attempts are discarded.
	connectGen uint64
	cancelDial context.CancelFunc

	// spawn runs blocking work off the UI thread; dispatch hands results
	// back to it.
	spawn    func(func())
	dispatch updater.Dispatcher
}

func NewApplication(app fyne.App, cfg config.Config, disc remote.Discovery, dialer remote.Dialer, logger *logrus.Logger, m *metrics.Panel) *Application {
	window := app.NewWindow("Reconfigure")
	window.Resize(fyne.NewSize(640, 720))
	window.CenterOnScreen()

	a := &Application{
		app:       app,
		window:    window,
		logger:    logger,
		cfg:       cfg,
		metrics:   m,
		discovery: disc,
		dialer:    dialer,
		spawn:     func(f func()) { go f() },
		dispatch:  fyne.Do,
	}

	a.initializeGUI()
	a.setupLayout()
	a.setupCallbacks()

	return a
}

func (a *Application) initializeGUI() {
	a.selector = NewNodeSelector(a.logger)
	a.menuHandler = NewMenuHandler(a.window, a.logger)
	a.poller = discovery.NewPoller(a.discovery, a.selector, a.cfg.PollInterval, a.logger, a.metrics, a.dispatch)
}

func (a *Application) setupLayout() {
	a.statusCard = widget.NewCard("Status", "", widget.NewLabel("Waiting for nodes"))

	top := container.NewVBox(
		widget.NewCard("Node", "", a.selector.GetContainer()),
		a.statusCard,
		widget.NewSeparator(),
	)
	a.panelHolder = container.NewStack()

	a.window.SetMainMenu(a.menuHandler.GetMainMenu())
	a.window.SetContent(container.NewBorder(top, nil, nil, nil, a.panelHolder))
}

func (a *Application) setupCallbacks() {
	a.selector.SetCallbacks(
		// onSelected
		a.Connect,
		// onRemoved
		func(node string) {
			if a.panel != nil && a.panel.Node() == node {
				a.Disconnect()
				a.updateStatusMessage(fmt.Sprintf("%s disappeared", node))
			}
		},
		// onCleared
		func() {
			a.Disconnect()
			a.updateStatusMessage("Waiting for nodes")
		},
	)

	a.menuHandler.SetCallbacks(
		// onReconnect
		func() {
			if node := a.selector.Selected(); node != "" {
				a.Connect(node)
			}
		},
		// onDisconnect
		func() {
			a.Disconnect()
			a.updateStatusMessage("Disconnected")
		},
	)
}

// Connect tears down the current panel and connects to node in the
// background. Must be called on the UI thread.
func (a *Application) Connect(node string) {
	a.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	a.cancelDial = cancel
	a.connectGen++
	gen := a.connectGen

	a.updateStatusMessage(fmt.Sprintf("Connecting to %s...", node))

	a.spawn(func() {
		client, desc, err := ConnectNode(ctx, a.dialer, node, a.cfg.ConnectTimeout, a.logger, a.metrics)
		a.dispatch(func() {
			if gen != a.connectGen {
				if client != nil {
					_ = client.Close()
				}
				return
			}
			a.cancelDial = nil
			cancel()

			if err != nil {
				a.showError("Connection Failed", err)
				return
			}
			a.install(NewClientPanel(client, desc, a.logger, a.panelOptions(client)))
			a.updateStatusMessage(fmt.Sprintf("Connected to %s", node))
		})
	})
}

// Disconnect closes the current panel and abandons a pending connection.
func (a *Application) Disconnect() {
	a.connectGen++
	if a.cancelDial != nil {
		a.cancelDial()
		a.cancelDial = nil
	}
	if a.panel == nil {
		return
	}
	a.panel.Close()
	a.panel = nil
	a.panelHolder.RemoveAll()
}

func (a *Application) install(p *ClientPanel) {
	a.panel = p
	a.panelHolder.Objects = []fyne.CanvasObject{p.GetContainer()}
	a.panelHolder.Refresh()
}

// panelOptions builds the options of the panel for client. Its callbacks
// are dropped once that panel is no longer the current one.
func (a *Application) panelOptions(client remote.Client) PanelOptions {
	node := client.Node()
	current := func() bool {
		return a.panel != nil && a.panel.client == client
	}

	return PanelOptions{
		ConnectTimeout:    a.cfg.ConnectTimeout,
		ReconcileInterval: a.cfg.ReconcileInterval,
		UpdateTimeout:     a.cfg.UpdateTimeout,
		Dispatch:          a.dispatch,
		OnError: func(err error) {
			if !current() {
				return
			}
			a.updateStatusMessage(fmt.Sprintf("Error: %s", err))
		},
		OnStateChange: func(responsive bool) {
			if !current() {
				return
			}
			if responsive {
				a.updateStatusMessage(fmt.Sprintf("Connected to %s", node))
			} else {
				a.updateStatusMessage(fmt.Sprintf("%s is not responding", node))
			}
		},
		Metrics: a.metrics,
	}
}

func (a *Application) updateStatusMessage(message string) {
	if a.statusCard != nil {
		a.statusCard.SetContent(widget.NewLabel(message))
	}
}

func (a *Application) ShowAndRun() {
	a.logger.WithField("registry", a.cfg.RegistryURL).Info("Showing main window")

	a.poller.Start()
	a.window.SetCloseIntercept(func() {
		a.cleanup()
		a.app.Quit()
	})

	a.window.ShowAndRun()
}

func (a *Application) cleanup() {
	a.logger.Info("Cleaning up application resources")
	a.poller.Stop()
	a.Disconnect()
}

func (a *Application) showError(title string, err error) {
	a.logger.WithError(err).Error(title)
	dialog.ShowError(err, a.window)
	a.updateStatusMessage(fmt.Sprintf("%s: %s", title, err))
}
