// Parameter editors: one form control per declared parameter
package gui

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"reconfigure-gui/internal/params"
	"reconfigure-gui/internal/updater"
)

// Submitter receives local edits.
type Submitter interface {
	Submit(name string, value any) error
}

// Editor is a form control bound to one parameter.
type Editor interface {
	updater.Editor
	Description() params.Description
	// Display inserts the editor's label and control into a two-column
	// form grid at the given row.
	Display(grid *fyne.Container, row int)
}

type editorFactory func(desc params.Description, submitter Submitter, logger *logrus.Logger) Editor

var editorFactories = map[params.Type]editorFactory{
	params.Bool:   newBoolEditor,
	params.Int:    newIntEditor,
	params.Double: newDoubleEditor,
	params.String: newStringEditor,
	params.Enum:   newEnumEditor,
}

// NewEditor builds the editor for desc. Parameters with choices always get
// the enum editor. ok is false for types without an editor.
func NewEditor(desc params.Description, submitter Submitter, logger *logrus.Logger) (ed Editor, ok bool) {
	if desc.IsEnum() {
		return newEnumEditor(desc, submitter, logger), true
	}
	factory, ok := editorFactories[desc.Type]
	if !ok {
		return nil, false
	}
	return factory(desc, submitter, logger), true
}

// editorBase holds what every editor variant shares.
type editorBase struct {
	desc      params.Description
	submitter Submitter
	logger    *logrus.Logger

	// applying is set while a remote value is written into the widgets so
	// their change callbacks do not echo it back as an edit.
	applying atomic.Bool

	mu    sync.Mutex
	value any
}

// init sets up the base with the parameter's default as displayed value.
func (b *editorBase) init(desc params.Description, submitter Submitter, logger *logrus.Logger) {
	initial, err := desc.Validate(desc.Default)
	if err != nil {
		logger.WithField("param", desc.Name).WithError(err).Warn("Invalid default value")
		initial = zeroValue(desc.ScalarType())
	}
	b.desc = desc
	b.submitter = submitter
	b.logger = logger
	b.value = initial
}

func (b *editorBase) Name() string                    { return b.desc.Name }
func (b *editorBase) Description() params.Description { return b.desc }

func (b *editorBase) Value() any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

func (b *editorBase) setValue(v any) {
	b.mu.Lock()
	b.value = v
	b.mu.Unlock()
}

// remote normalises a value received from the node.
func (b *editorBase) remote(v any) (any, bool) {
	nv, err := b.desc.Normalize(v)
	if err != nil {
		b.logger.WithField("param", b.desc.Name).WithError(err).Warn("Ignoring remote value")
		return nil, false
	}
	b.setValue(nv)
	return nv, true
}

// withoutEcho runs f with widget callbacks suppressed.
func (b *editorBase) withoutEcho(f func()) {
	b.applying.Store(true)
	defer b.applying.Store(false)
	f()
}

// commit records a local edit and sends it to the node. Edits equal to the
// displayed value are not sent.
func (b *editorBase) commit(v any) {
	if b.applying.Load() {
		return
	}
	if params.Equal(b.Value(), v) {
		return
	}
	b.setValue(v)
	if b.submitter == nil {
		return
	}
	// failures are reported by the submitter; the control keeps the new value
	_ = b.submitter.Submit(b.desc.Name, v)
}

// display places label and control at row in a form grid.
func (b *editorBase) display(grid *fyne.Container, row int, control fyne.CanvasObject) {
	label := widget.NewLabelWithStyle(b.desc.Name, fyne.TextAlignTrailing, fyne.TextStyle{Bold: true})

	content := control
	if b.desc.Description != "" {
		hint := widget.NewLabelWithStyle(b.desc.Description, fyne.TextAlignLeading, fyne.TextStyle{Italic: true})
		hint.Wrapping = fyne.TextWrapWord
		content = container.NewVBox(control, hint)
	}

	at := row * 2
	if at < 0 || at > len(grid.Objects) {
		at = len(grid.Objects)
	}
	objects := make([]fyne.CanvasObject, 0, len(grid.Objects)+2)
	objects = append(objects, grid.Objects[:at]...)
	objects = append(objects, label, content)
	objects = append(objects, grid.Objects[at:]...)
	grid.Objects = objects
	grid.Refresh()
}

func zeroValue(t params.Type) any {
	switch t {
	case params.Bool:
		return false
	case params.Int:
		return int64(0)
	case params.Double:
		return 0.0
	default:
		return ""
	}
}

func formatValue(v any) string {
	switch n := v.(type) {
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64)
	case string:
		return n
	default:
		return fmt.Sprint(v)
	}
}
