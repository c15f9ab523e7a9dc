package gui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"reconfigure-gui/internal/params"
)

type stringEditor struct {
	editorBase
	entry *widget.Entry
}

func newStringEditor(desc params.Description, submitter Submitter, logger *logrus.Logger) Editor {
	e := &stringEditor{}
	e.init(desc, submitter, logger)

	e.entry = widget.NewEntry()
	e.entry.SetText(formatValue(e.Value()))
	e.entry.OnSubmitted = func(text string) {
		e.commit(text)
	}
	return e
}

func (e *stringEditor) SetFromRemote(v any) {
	nv, ok := e.remote(v)
	if !ok {
		return
	}
	e.withoutEcho(func() {
		e.entry.SetText(formatValue(nv))
	})
}

func (e *stringEditor) Display(grid *fyne.Container, row int) {
	e.display(grid, row, e.entry)
}
