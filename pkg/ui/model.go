package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/samsartor/checkpointui/pkg/analysis"
	"github.com/samsartor/checkpointui/pkg/config"
	"github.com/samsartor/checkpointui/pkg/debug"
	"github.com/samsartor/checkpointui/pkg/model"
	"github.com/samsartor/checkpointui/pkg/safetensors"
	"github.com/samsartor/checkpointui/pkg/watcher"
)

// Panel identifies the focused panel. Tab cycles through them; the
// analysis panel only joins the cycle while a tensor is selected.
type Panel int

const (
	PanelTree Panel = iota
	PanelInfo
	PanelAnalysis
	panelCount
)

func (p Panel) next(analysisVisible bool) Panel {
	n := (p + 1) % panelCount
	if n == PanelAnalysis && !analysisVisible {
		n = PanelTree
	}
	return n
}

func (p Panel) prev(analysisVisible bool) Panel {
	n := (p + panelCount - 1) % panelCount
	if n == PanelAnalysis && !analysisVisible {
		n = PanelInfo
	}
	return n
}

// analysisState caches the latest published results so the view does
// not lose them between polls. The session's cells only ever carry
// results for the current selection, so no staleness check is needed
// here.
type analysisState struct {
	histogram *analysis.Histogram
	spectrum  *analysis.Spectrum
	failure   error
}

// workerPollTickMsg drives the periodic poll of the analysis session.
type workerPollTickMsg struct{}

// FileChangedMsg arrives when the watched checkpoint file changes.
type FileChangedMsg struct{}

const workerPollInterval = 120 * time.Millisecond

func workerPollTickCmd() tea.Cmd {
	return tea.Tick(workerPollInterval, func(time.Time) tea.Msg {
		return workerPollTickMsg{}
	})
}

// WatchFileCmd blocks on the watcher's change channel and converts the
// notification into a message. The update loop re-issues it after each
// change to keep listening.
func WatchFileCmd(w *watcher.Watcher) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-w.Changed(); !ok {
			return nil
		}
		return FileChangedMsg{}
	}
}

// Model is the top-level bubbletea model for the checkpoint viewer.
type Model struct {
	cfg  config.Config
	path string

	source  model.TensorSource
	session *analysis.Session
	watcher *watcher.Watcher

	tree     *Tree
	meta     map[string]any
	metaView viewport.Model

	panel    Panel
	width    int
	height   int
	status   string
	loadErr  error
	selected string // full name of the tensor handed to the session
	results  analysisState
	quitting bool
}

// New opens the checkpoint at path and assembles the viewer. The watcher
// is optional; pass nil to disable live reload.
func New(path string, cfg config.Config, source model.TensorSource, session *analysis.Session, w *watcher.Watcher) (*Model, error) {
	root, err := source.Module(model.PathSplit{Delim: cfg.Delimiter})
	if err != nil {
		return nil, err
	}
	if cfg.FlattenTree() {
		root.FlattenSingleChildren()
	}
	meta, err := source.Metadata()
	if err != nil {
		return nil, err
	}

	m := &Model{
		cfg:     cfg,
		path:    path,
		source:  source,
		session: session,
		watcher: w,
		tree:    NewTree(root, model.PathSplit{Delim: cfg.Delimiter}),
		meta:    meta,
	}
	m.metaView = viewport.New(0, 0)
	m.metaView.SetContent(m.metadataContent())
	return m, nil
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{workerPollTickCmd()}
	if m.watcher != nil {
		cmds = append(cmds, WatchFileCmd(m.watcher))
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layoutMetaView()
		return m, nil

	case workerPollTickMsg:
		m.session.Tick()
		m.syncSelection()
		m.pollResults()
		return m, workerPollTickCmd()

	case FileChangedMsg:
		debug.Log("file change notification for %s", m.path)
		if err := m.reload(); err != nil {
			m.loadErr = err
			m.status = "reload failed"
		} else {
			m.loadErr = nil
			m.status = "reloaded after change on disk"
		}
		return m, WatchFileCmd(m.watcher)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		m.panel = m.panel.next(m.analysisVisible())
	case "shift+tab":
		m.panel = m.panel.prev(m.analysisVisible())

	case "up", "k":
		switch m.panel {
		case PanelTree:
			m.tree.MoveUp()
		case PanelInfo:
			m.metaView, _ = m.metaView.Update(msg)
		}
	case "down", "j":
		switch m.panel {
		case PanelTree:
			m.tree.MoveDown()
		case PanelInfo:
			m.metaView, _ = m.metaView.Update(msg)
		}
	case "home", "g":
		if m.panel == PanelTree {
			m.tree.MoveTop()
		}
	case "end", "G":
		if m.panel == PanelTree {
			m.tree.MoveBottom()
		}
	case "right", "l":
		if m.panel == PanelTree {
			m.tree.EnterModule()
		}
	case "left", "h":
		if m.panel == PanelTree {
			m.tree.ExitModule()
		}
	case " ", "enter":
		if m.panel == PanelTree {
			m.tree.ToggleExpanded()
		}

	case "y":
		if it := m.tree.Selected(); it != nil {
			if err := clipboard.WriteAll(it.Mod.FullName); err != nil {
				m.status = "clipboard unavailable"
			} else {
				m.status = fmt.Sprintf("copied %q", it.Mod.FullName)
			}
		}

	case "c":
		m.session.CancelCurrent()
		m.status = "analysis cancelled"

	case "r":
		if err := m.reload(); err != nil {
			m.loadErr = err
			m.status = "reload failed"
		} else {
			m.loadErr = nil
			m.status = "reloaded " + m.source.Display()
		}
	}
	return m, nil
}

// syncSelection hands the tensor under the cursor to the analysis
// session. Selecting an already selected tensor is a no-op; moving the
// cursor to a module deselects.
func (m *Model) syncSelection() {
	it := m.tree.Selected()
	if it == nil || !it.IsTensor() {
		if m.selected != "" {
			m.session.Deselect()
			m.selected = ""
			m.results = analysisState{}
		}
		return
	}
	name := it.Mod.FullName
	if name == m.selected {
		return
	}
	m.session.Select(*it.Mod.Tensor)
	m.selected = name
	m.results = analysisState{}
	m.status = ""
}

func (m *Model) pollResults() {
	if m.selected == "" {
		return
	}
	if m.results.histogram == nil {
		if h, ok := m.session.PollHistogram(); ok {
			m.results.histogram = &h
		}
	}
	if m.results.spectrum == nil {
		if s, ok := m.session.PollSpectrum(); ok {
			m.results.spectrum = &s
		}
	}
	if m.results.failure == nil {
		if err, ok := m.session.PollFailure(); ok {
			m.results.failure = err
		}
	}
}

// reload reopens the checkpoint and swaps the module tree in place,
// keeping expansion and selection state where names still match.
func (m *Model) reload() error {
	src, err := safetensors.Open(m.path)
	if err != nil {
		return err
	}
	root, err := src.Module(model.PathSplit{Delim: m.cfg.Delimiter})
	if err != nil {
		src.Close()
		return err
	}
	if m.cfg.FlattenTree() {
		root.FlattenSingleChildren()
	}
	meta, err := src.Metadata()
	if err != nil {
		src.Close()
		return err
	}

	m.session.Deselect()
	m.selected = ""
	m.results = analysisState{}
	if err := m.source.Close(); err != nil {
		debug.Log("closing previous source: %v", err)
	}
	m.source = src
	m.session.SetSource(src)
	m.meta = meta
	m.metaView.SetContent(m.metadataContent())
	m.tree.SetRoot(root)
	return nil
}

// layoutMetaView sizes the metadata viewport to match the info panel
// split used in View.
func (m *Model) layoutMetaView() {
	width := m.width / 2
	if m.analysisVisible() {
		width = m.width / 3
	}
	mainHeight := m.height - 2
	selH := (mainHeight - 3) / 2
	m.metaView.Width = width - 4
	m.metaView.Height = mainHeight - 3 - selH - 2
	if m.metaView.Height < 1 {
		m.metaView.Height = 1
	}
}

func (m *Model) analysisVisible() bool {
	return m.selected != ""
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "loading..."
	}

	top := m.renderTopBar()
	help := m.renderHelp()
	mainHeight := m.height - lipgloss.Height(top) - lipgloss.Height(help)
	if mainHeight < 3 {
		mainHeight = 3
	}

	var main string
	if m.analysisVisible() {
		w := m.width / 3
		main = lipgloss.JoinHorizontal(lipgloss.Top,
			m.renderTreePanel(w, mainHeight),
			m.renderInfoPanel(w, mainHeight),
			m.renderAnalysisPanel(m.width-2*w, mainHeight),
		)
	} else {
		w := m.width / 2
		main = lipgloss.JoinHorizontal(lipgloss.Top,
			m.renderTreePanel(w, mainHeight),
			m.renderInfoPanel(m.width-w, mainHeight),
		)
	}
	return lipgloss.JoinVertical(lipgloss.Left, top, main, help)
}

func (m *Model) renderTopBar() string {
	file := Truncate(m.source.Display(), m.width/2)
	line := titleStyle.Render("checkpointui") + "  " + mutedStyle.Render(file)
	rest := m.width - lipgloss.Width(line) - 2
	switch {
	case m.loadErr != nil:
		line += "  " + errorStyle.Render(Truncate(m.loadErr.Error(), rest))
	case m.status != "":
		line += "  " + statusStyle.Render(Truncate(m.status, rest))
	}
	return line
}

func (m *Model) renderHelp() string {
	return helpStyle.Render(Truncate(
		"↑/↓: navigate | ←/→: exit/enter module | space/enter: expand | tab: switch panel | y: copy path | c: cancel | r: reload | q: quit",
		m.width))
}

// panelFrame wraps content in a bordered panel with a title, focused
// panels get the highlight border and a "*" title suffix.
func (m *Model) panelFrame(title, content string, width, height int, focused bool) string {
	style := panelStyle
	if focused {
		style = panelFocusStyle
		title += " *"
	}
	inner := titleStyle.Render(Truncate(title, width-4)) + "\n" + content
	return style.Width(width - 2).Height(height - 2).Render(inner)
}

func (m *Model) renderTreePanel(width, height int) string {
	content := m.tree.View(width-4, height-3, m.panel == PanelTree)
	return m.panelFrame("Modules", content, width, height, m.panel == PanelTree)
}

// renderInfoPanel shows the selected item on top and file metadata on
// the bottom, split evenly.
func (m *Model) renderInfoPanel(width, height int) string {
	innerW := width - 4
	selH := (height - 3) / 2
	metaH := height - 3 - selH - 1

	var b strings.Builder
	b.WriteString(m.renderSelectedInfo(innerW, selH))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("File"))
	b.WriteString("\n")
	m.metaView.Width = innerW
	m.metaView.Height = metaH - 1
	b.WriteString(m.metaView.View())
	return m.panelFrame("Info", b.String(), width, height, m.panel == PanelInfo)
}

func (m *Model) renderSelectedInfo(width, height int) string {
	it := m.tree.Selected()
	if it == nil {
		return mutedStyle.Render("nothing selected")
	}
	var lines []string
	if it.IsTensor() {
		info := it.Mod.Tensor
		lines = append(lines,
			labelStyle.Render("Tensor ")+tensorStyle.Render(Truncate(info.Name, width-7)),
			labelStyle.Render("Shape  ")+shapeStyle.Render(FormatShape(info.Shape)),
			labelStyle.Render("DType  ")+dtypeStyle.Render(string(info.DType)),
			labelStyle.Render("Params ")+countStyle.Render(FormatCount(info.Elems())),
			labelStyle.Render("Size   ")+sizeStyle.Render(FormatBytes(tensorByteSize(*info))),
		)
		if info.Shard != "" {
			lines = append(lines, labelStyle.Render("Shard  ")+mutedStyle.Render(info.Shard))
		}
	} else {
		lines = append(lines,
			labelStyle.Render("Module  ")+moduleStyle.Render(Truncate(it.Mod.FullName, width-8)),
			labelStyle.Render("Tensors ")+countStyle.Render(fmt.Sprintf("%d", it.Mod.TotalTensors)),
			labelStyle.Render("Params  ")+countStyle.Render(FormatCount(it.Mod.TotalParams)),
			labelStyle.Render("Size    ")+sizeStyle.Render(FormatBytes(it.Mod.TotalBytes)),
		)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderAnalysisPanel(width, height int) string {
	innerW := width - 4
	innerH := height - 3

	var b strings.Builder
	switch {
	case m.results.failure != nil:
		b.WriteString(errorStyle.Render("analysis failed"))
		b.WriteString("\n")
		b.WriteString(Truncate(m.results.failure.Error(), innerW*2))
	default:
		chartH := innerH/2 - 1
		if chartH < 2 {
			chartH = 2
		}
		b.WriteString(labelStyle.Render("Histogram"))
		b.WriteString("\n")
		if m.results.histogram != nil {
			b.WriteString(RenderBarChart(m.results.histogram.Chart, innerW, chartH, histogramBarStyle))
		} else {
			b.WriteString(mutedStyle.Render("computing..."))
		}
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Singular Values"))
		b.WriteString("\n")
		switch {
		case m.results.spectrum != nil:
			b.WriteString(RenderBarChart(m.results.spectrum.Chart, innerW, chartH, spectrumBarStyle))
		case m.selectedIsMatrix():
			b.WriteString(mutedStyle.Render("computing..."))
		default:
			b.WriteString(mutedStyle.Render("only 2-D tensors have a spectrum"))
		}
	}
	return m.panelFrame("Analysis", b.String(), width, height, m.panel == PanelAnalysis)
}

func (m *Model) selectedIsMatrix() bool {
	it := m.tree.Selected()
	return it != nil && it.IsTensor() && len(it.Mod.Tensor.Shape) == 2
}

func (m *Model) metadataContent() string {
	if len(m.meta) == 0 {
		return mutedStyle.Render("no metadata")
	}
	keys := make([]string, 0, len(m.meta))
	for k := range m.meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(labelStyle.Render(k) + ": " + FormatMetadataValue(m.meta[k]))
	}
	return b.String()
}
