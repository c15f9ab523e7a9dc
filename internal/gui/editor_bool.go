package gui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"reconfigure-gui/internal/params"
)

type boolEditor struct {
	editorBase
	check *widget.Check
}

func newBoolEditor(desc params.Description, submitter Submitter, logger *logrus.Logger) Editor {
	e := &boolEditor{}
	e.init(desc, submitter, logger)

	e.check = widget.NewCheck("", nil)
	e.check.SetChecked(e.Value() == true)
	e.check.OnChanged = func(checked bool) {
		e.commit(checked)
	}
	return e
}

func (e *boolEditor) SetFromRemote(v any) {
	nv, ok := e.remote(v)
	if !ok {
		return
	}
	e.withoutEcho(func() {
		e.check.SetChecked(nv == true)
	})
}

func (e *boolEditor) Display(grid *fyne.Container, row int) {
	e.display(grid, row, e.check)
}
