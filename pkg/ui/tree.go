package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/samsartor/checkpointui/pkg/model"
)

// TreeItem is one visible row of the module tree.
type TreeItem struct {
	Mod      *model.Module
	Depth    int
	Expanded bool
}

// IsTensor reports whether the row is a leaf tensor rather than a module.
func (it TreeItem) IsTensor() bool {
	return it.Mod.Tensor != nil && len(it.Mod.Children) == 0
}

// Tree renders the checkpoint's module hierarchy. Navigation can descend
// into a module with the right arrow, making it the temporary root; the
// left arrow backs out and restores the previous cursor position.
type Tree struct {
	root     *model.Module
	split    model.PathSplit
	expanded map[string]bool

	// history holds the roots (and cursor positions) we descended through.
	history []treeFrame

	visible []TreeItem
	cursor  int
	offset  int
}

type treeFrame struct {
	root   *model.Module
	cursor int
	offset int
}

// NewTree builds a tree over the given root module. The root's immediate
// children start expanded so a fresh checkpoint shows its top level.
func NewTree(root *model.Module, split model.PathSplit) *Tree {
	t := &Tree{
		root:     root,
		split:    split,
		expanded: make(map[string]bool),
	}
	t.expanded[root.FullName] = true
	t.Rebuild()
	return t
}

// SetRoot swaps in a freshly loaded module tree, keeping expansion state
// and the cursor's tensor selection where the names still exist.
func (t *Tree) SetRoot(root *model.Module) {
	var selected string
	if it := t.Selected(); it != nil {
		selected = it.Mod.FullName
	}
	t.root = root
	t.history = nil
	t.expanded[root.FullName] = true
	t.Rebuild()
	if selected != "" {
		t.SelectName(selected)
	}
}

// Rebuild recomputes the visible rows from the expansion state. Children
// of an expanded module appear depth-first, modules before tensors.
func (t *Tree) Rebuild() {
	t.visible = t.visible[:0]
	t.appendVisible(t.root, 0)
	if t.cursor >= len(t.visible) {
		t.cursor = len(t.visible) - 1
	}
	if t.cursor < 0 {
		t.cursor = 0
	}
}

func (t *Tree) appendVisible(m *model.Module, depth int) {
	for _, name := range m.ChildNames() {
		child := m.Children[name]
		leaf := child.Tensor != nil && len(child.Children) == 0
		exp := !leaf && t.expanded[child.FullName]
		t.visible = append(t.visible, TreeItem{Mod: child, Depth: depth, Expanded: exp})
		if exp {
			t.appendVisible(child, depth+1)
		}
	}
}

// Selected returns the row under the cursor, or nil for an empty tree.
func (t *Tree) Selected() *TreeItem {
	if t.cursor < 0 || t.cursor >= len(t.visible) {
		return nil
	}
	return &t.visible[t.cursor]
}

// SelectName moves the cursor to the row with the given full name if it
// is currently visible.
func (t *Tree) SelectName(fullName string) bool {
	for i := range t.visible {
		if t.visible[i].Mod.FullName == fullName {
			t.cursor = i
			return true
		}
	}
	return false
}

// MoveUp moves the cursor one row up.
func (t *Tree) MoveUp() {
	if t.cursor > 0 {
		t.cursor--
	}
}

// MoveDown moves the cursor one row down.
func (t *Tree) MoveDown() {
	if t.cursor < len(t.visible)-1 {
		t.cursor++
	}
}

// MoveTop jumps to the first row.
func (t *Tree) MoveTop() { t.cursor = 0 }

// MoveBottom jumps to the last row.
func (t *Tree) MoveBottom() {
	if n := len(t.visible); n > 0 {
		t.cursor = n - 1
	}
}

// ToggleExpanded flips the expansion state of the module under the
// cursor. Tensors ignore the toggle.
func (t *Tree) ToggleExpanded() {
	it := t.Selected()
	if it == nil || it.IsTensor() {
		return
	}
	name := it.Mod.FullName
	t.expanded[name] = !t.expanded[name]
	t.Rebuild()
}

// EnterModule descends into the module under the cursor, making it the
// root of the view. Tensors cannot be entered.
func (t *Tree) EnterModule() {
	it := t.Selected()
	if it == nil || it.IsTensor() || len(it.Mod.Children) == 0 {
		return
	}
	t.history = append(t.history, treeFrame{root: t.root, cursor: t.cursor, offset: t.offset})
	t.root = it.Mod
	t.expanded[it.Mod.FullName] = true
	t.cursor = 0
	t.offset = 0
	t.Rebuild()
}

// ExitModule backs out to the previous root, restoring the cursor to the
// module we descended into.
func (t *Tree) ExitModule() {
	if len(t.history) == 0 {
		return
	}
	frame := t.history[len(t.history)-1]
	t.history = t.history[:len(t.history)-1]
	t.root = frame.root
	t.cursor = frame.cursor
	t.offset = frame.offset
	t.Rebuild()
}

// Root returns the current view root.
func (t *Tree) Root() *model.Module { return t.root }

// Len returns the number of visible rows.
func (t *Tree) Len() int { return len(t.visible) }

// View renders the visible rows into a width x height block, scrolling
// so the cursor stays on screen.
func (t *Tree) View(width, height int, focused bool) string {
	if height <= 0 || width <= 0 {
		return ""
	}
	if t.cursor < t.offset {
		t.offset = t.cursor
	}
	if t.cursor >= t.offset+height {
		t.offset = t.cursor - height + 1
	}
	if t.offset < 0 {
		t.offset = 0
	}

	var b strings.Builder
	for row := 0; row < height; row++ {
		i := t.offset + row
		if row > 0 {
			b.WriteByte('\n')
		}
		if i >= len(t.visible) {
			continue
		}
		line := t.renderRow(t.visible[i], width)
		if i == t.cursor && focused {
			line = selectedRowStyle.Render(line)
		}
		b.WriteString(line)
	}
	return b.String()
}

func (t *Tree) renderRow(it TreeItem, width int) string {
	indent := strings.Repeat("  ", it.Depth)

	var marker string
	switch {
	case it.IsTensor():
		marker = "  "
	case it.Expanded:
		marker = "▼ "
	default:
		marker = "▶ "
	}

	var name, annot string
	var nameStyle lipgloss.Style
	if it.IsTensor() {
		nameStyle = tensorStyle
		name = it.Mod.Name
		annot = shapeStyle.Render(FormatShape(it.Mod.Tensor.Shape)) + " " +
			dtypeStyle.Render(string(it.Mod.Tensor.DType))
	} else {
		nameStyle = moduleStyle
		name = it.Mod.Name
		annot = countStyle.Render(FormatCount(it.Mod.TotalParams)) + " " +
			sizeStyle.Render(FormatBytes(it.Mod.TotalBytes))
	}

	markerW := lipgloss.Width(marker)
	plainAnnot := lipgloss.Width(annot)
	nameBudget := width - len(indent) - markerW - plainAnnot - 1
	if nameBudget < 4 {
		// Not enough room for the annotation, spend it all on the name.
		annot = ""
		plainAnnot = 0
		nameBudget = width - len(indent) - markerW
	}
	name = Truncate(name, nameBudget)

	pad := width - len(indent) - markerW - lipgloss.Width(name) - plainAnnot
	if pad < 1 {
		pad = 1
	}
	return indent + marker + nameStyle.Render(name) + strings.Repeat(" ", pad) + annot
}
