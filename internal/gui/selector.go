package gui

import (
	"slices"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"
)

// NodeSelector is the drop-down listing discovered nodes. It receives list
// changes from a discovery.Poller and must only be touched on the UI thread.
type NodeSelector struct {
	combo  *widget.Select
	nodes  []string
	logger *logrus.Logger

	// updating suppresses selection events caused by list maintenance.
	updating bool

	onSelected func(node string)
	onRemoved  func(node string)
	onCleared  func()
}

func NewNodeSelector(logger *logrus.Logger) *NodeSelector {
	s := &NodeSelector{logger: logger}
	s.combo = widget.NewSelect(nil, s.selected)
	s.combo.PlaceHolder = "(no nodes)"
	return s
}

// SetCallbacks installs the selection, removal and clear handlers.
func (s *NodeSelector) SetCallbacks(onSelected, onRemoved func(string), onCleared func()) {
	s.onSelected = onSelected
	s.onRemoved = onRemoved
	s.onCleared = onCleared
}

func (s *NodeSelector) GetContainer() fyne.CanvasObject {
	return s.combo
}

// Nodes returns the listed nodes in display order.
func (s *NodeSelector) Nodes() []string {
	return slices.Clone(s.nodes)
}

// Selected returns the chosen node or "".
func (s *NodeSelector) Selected() string {
	return s.combo.Selected
}

// Select chooses node as if the user had picked it.
func (s *NodeSelector) Select(node string) {
	if !slices.Contains(s.nodes, node) {
		return
	}
	if s.combo.Selected == node {
		s.selected(node)
		return
	}
	s.combo.SetSelected(node)
}

func (s *NodeSelector) Add(node string) {
	if slices.Contains(s.nodes, node) {
		return
	}
	s.nodes = append(s.nodes, node)
	s.refresh()
	s.logger.WithField("node", node).Debug("Node discovered")
}

func (s *NodeSelector) Remove(node string) {
	i := slices.Index(s.nodes, node)
	if i < 0 {
		return
	}
	s.nodes = slices.Delete(s.nodes, i, i+1)

	wasSelected := s.combo.Selected == node
	if wasSelected {
		s.clearSelection()
	}
	s.refresh()
	s.logger.WithField("node", node).Debug("Node disappeared")

	if s.onRemoved != nil {
		s.onRemoved(node)
	}
}

func (s *NodeSelector) Clear() {
	if len(s.nodes) == 0 && s.combo.Selected == "" {
		return
	}
	s.nodes = nil
	s.clearSelection()
	s.refresh()

	if s.onCleared != nil {
		s.onCleared()
	}
}

func (s *NodeSelector) refresh() {
	s.updating = true
	defer func() { s.updating = false }()
	s.combo.SetOptions(slices.Clone(s.nodes))
}

func (s *NodeSelector) clearSelection() {
	s.updating = true
	defer func() { s.updating = false }()
	s.combo.ClearSelected()
}

func (s *NodeSelector) selected(node string) {
	if s.updating || node == "" {
		return
	}
	if s.onSelected != nil {
		s.onSelected(node)
	}
}
