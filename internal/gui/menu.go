// Menu handler for application actions
package gui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"
)

// MenuHandler handles menu actions
type MenuHandler struct {
	window fyne.Window
	logger *logrus.Logger

	onReconnect  func()
	onDisconnect func()
}

func NewMenuHandler(window fyne.Window, logger *logrus.Logger) *MenuHandler {
	return &MenuHandler{
		window: window,
		logger: logger,
	}
}

func (mh *MenuHandler) GetMainMenu() *fyne.MainMenu {
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Reconnect", func() {
			mh.logger.Info("Reconnect requested")
			if mh.onReconnect != nil {
				mh.onReconnect()
			}
		}),
		fyne.NewMenuItem("Disconnect", func() {
			mh.logger.Info("Disconnect requested")
			if mh.onDisconnect != nil {
				mh.onDisconnect()
			}
		}),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Quit", func() {
			mh.window.Close()
		}),
	)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", mh.showAbout),
	)

	return fyne.NewMainMenu(fileMenu, helpMenu)
}

func (mh *MenuHandler) showAbout() {
	content := container.NewVBox(
		widget.NewLabel("Reconfigure"),
		widget.NewSeparator(),
		widget.NewLabel("Edit the parameters of running nodes."),
		widget.NewLabel("Pick a node to see its parameters; changes are"),
		widget.NewLabel("sent immediately and remote changes show up live."),
		widget.NewSeparator(),
		widget.NewLabel("Built with Go and Fyne v2.6"),
	)

	aboutDialog := dialog.NewCustom("About", "Close", content, mh.window)
	aboutDialog.Resize(fyne.NewSize(400, 240))
	aboutDialog.Show()
}

func (mh *MenuHandler) SetCallbacks(onReconnect, onDisconnect func()) {
	mh.onReconnect = onReconnect
	mh.onDisconnect = onDisconnect
}
