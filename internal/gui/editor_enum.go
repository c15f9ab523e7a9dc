package gui

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"reconfigure-gui/internal/params"
)

// enumEditor offers the declared choices by name and sends the chosen
// choice's value.
type enumEditor struct {
	editorBase
	combo *widget.Select
}

func newEnumEditor(desc params.Description, submitter Submitter, logger *logrus.Logger) Editor {
	e := &enumEditor{}
	e.init(desc, submitter, logger)

	names := make([]string, 0, len(desc.Choices))
	for _, c := range desc.Choices {
		names = append(names, choiceLabel(c))
	}

	e.combo = widget.NewSelect(names, nil)
	e.combo.PlaceHolder = "(unset)"
	if c, ok := desc.ChoiceFor(e.Value()); ok {
		e.combo.SetSelected(choiceLabel(c))
	}
	e.combo.OnChanged = e.selected
	return e
}

func (e *enumEditor) selected(label string) {
	for _, c := range e.desc.Choices {
		if choiceLabel(c) != label {
			continue
		}
		v, err := e.desc.Normalize(c.Value)
		if err != nil {
			e.logger.WithField("param", e.desc.Name).WithError(err).Warn("Invalid choice value")
			return
		}
		e.commit(v)
		return
	}
}

func (e *enumEditor) SetFromRemote(v any) {
	nv, ok := e.remote(v)
	if !ok {
		return
	}
	e.withoutEcho(func() {
		c, ok := e.desc.ChoiceFor(nv)
		if !ok {
			e.logger.WithFields(logrus.Fields{"param": e.desc.Name, "value": nv}).Warn("Remote value matches no choice")
			e.combo.ClearSelected()
			return
		}
		e.combo.SetSelected(choiceLabel(c))
	})
}

func (e *enumEditor) Display(grid *fyne.Container, row int) {
	e.display(grid, row, e.combo)
}

func choiceLabel(c params.Choice) string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprint(c.Value)
}
