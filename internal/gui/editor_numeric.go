package gui

import (
	"math"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"reconfigure-gui/internal/params"
)

const doubleSliderSteps = 100

// numericEditor edits int and double parameters with a slider and a text
// entry. The slider is omitted when the description has no bounds.
type numericEditor struct {
	editorBase
	integer bool
	slider  *widget.Slider
	entry   *widget.Entry
	control fyne.CanvasObject
}

func newIntEditor(desc params.Description, submitter Submitter, logger *logrus.Logger) Editor {
	return newNumericEditor(desc, submitter, logger, true)
}

func newDoubleEditor(desc params.Description, submitter Submitter, logger *logrus.Logger) Editor {
	return newNumericEditor(desc, submitter, logger, false)
}

func newNumericEditor(desc params.Description, submitter Submitter, logger *logrus.Logger, integer bool) *numericEditor {
	e := &numericEditor{integer: integer}
	e.init(desc, submitter, logger)

	e.entry = widget.NewEntry()
	e.entry.SetText(formatValue(e.Value()))
	e.entry.OnSubmitted = e.entrySubmitted

	lo, hi, bounded := desc.Bounds()
	if !bounded {
		e.control = e.entry
		return e
	}

	e.slider = widget.NewSlider(lo, hi)
	if integer {
		e.slider.Step = 1
	} else if hi > lo {
		e.slider.Step = (hi - lo) / doubleSliderSteps
	}
	if f, ok := asFloat(e.Value()); ok {
		e.slider.SetValue(f)
	}
	e.slider.OnChanged = func(v float64) {
		if e.applying.Load() {
			return
		}
		// keep the entry in step while dragging; the edit is sent when the drag ends
		e.entry.SetText(formatValue(e.coerce(v)))
	}
	e.slider.OnChangeEnded = func(v float64) {
		e.commit(e.coerce(v))
	}

	e.control = container.New(layout.NewGridLayoutWithColumns(2), e.slider, e.entry)
	return e
}

// coerce converts a float from the slider or entry to the parameter's type,
// clamped to its bounds.
func (e *numericEditor) coerce(f float64) any {
	if e.integer {
		return e.desc.Clamp(int64(math.Round(f)))
	}
	return e.desc.Clamp(f)
}

func (e *numericEditor) entrySubmitted(text string) {
	text = strings.TrimSpace(text)

	var (
		v   any
		err error
	)
	if e.integer {
		var n int64
		n, err = strconv.ParseInt(text, 10, 64)
		v = e.desc.Clamp(n)
	} else {
		var f float64
		f, err = strconv.ParseFloat(text, 64)
		if err == nil && (math.IsNaN(f) || math.IsInf(f, 0)) {
			err = strconv.ErrSyntax
		}
		v = e.desc.Clamp(f)
	}
	if err != nil {
		e.logger.WithFields(logrus.Fields{"param": e.desc.Name, "input": text}).Debug("Rejected numeric input")
		e.show(e.Value())
		return
	}

	e.show(v)
	e.commit(v)
}

// show writes v into the widgets without triggering edits.
func (e *numericEditor) show(v any) {
	e.withoutEcho(func() {
		e.entry.SetText(formatValue(v))
		if e.slider != nil {
			if f, ok := asFloat(v); ok {
				e.slider.SetValue(f)
			}
		}
	})
}

func (e *numericEditor) SetFromRemote(v any) {
	nv, ok := e.remote(v)
	if !ok {
		return
	}
	e.show(nv)
}

func (e *numericEditor) Display(grid *fyne.Container, row int) {
	e.display(grid, row, e.control)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
