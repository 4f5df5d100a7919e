// Package tui is a terminal reader for paginated feeds. Its scroll position
// drives a scroll.Engine, so new pages load as the reader nears the end.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/feedscroll/internal/logger"
	"github.com/jmylchreest/feedscroll/internal/render"
	"github.com/jmylchreest/feedscroll/pkg/parser"
	"github.com/jmylchreest/feedscroll/pkg/position"
	"github.com/jmylchreest/feedscroll/pkg/scroll"
	fsview "github.com/jmylchreest/feedscroll/pkg/viewport"
)

// Engine messages forwarded into the program.
type (
	loadStartMsg struct{}
	pageMsg      scroll.LoadEnd
	loadErrMsg   scroll.LoadError
	finishedMsg  struct{}
	readyMsg     struct{}
)

// Lines reserved for the title and status bar.
const reservedLines = 3

// Options configures the reader.
type Options struct {
	Title    string
	Renderer *render.Renderer
	Context  context.Context
}

// Model is the bubbletea model of the reader.
type Model struct {
	engine *scroll.Engine
	screen *fsview.Virtual
	view   viewport.Model
	styles *Styles

	renderer *render.Renderer
	ctx      context.Context
	title    string

	blocks  []string
	items   int
	width   int
	height  int
	started bool

	loading  bool
	ready    bool
	finished bool
	lastErr  error
}

// New creates a reader over engine. screen must be the viewport the engine
// watches; initial holds the items of the first page.
func New(engine *scroll.Engine, screen *fsview.Virtual, initial []parser.Item, opts Options) *Model {
	if opts.Renderer == nil {
		opts.Renderer = render.New(render.FormatText)
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}

	m := &Model{
		engine:   engine,
		screen:   screen,
		view:     viewport.New(0, 0),
		styles:   NewStyles(),
		renderer: opts.Renderer,
		ctx:      opts.Context,
		title:    opts.Title,
		finished: engine.Finished(),
	}
	m.appendItems(initial)
	return m
}

// Attach forwards engine events to send, usually (*tea.Program).Send.
func (m *Model) Attach(send func(tea.Msg)) error {
	if _, err := m.engine.OnLoadStart(func() { send(loadStartMsg{}) }); err != nil {
		return err
	}
	if _, err := m.engine.OnLoadEnd(func(p scroll.LoadEnd) { send(pageMsg(p)) }); err != nil {
		return err
	}
	if _, err := m.engine.OnLoadError(func(p scroll.LoadError) { send(loadErrMsg(p)) }); err != nil {
		return err
	}
	if _, err := m.engine.OnFinished(func() { send(finishedMsg{}) }); err != nil {
		return err
	}
	if _, err := m.engine.OnLoadReady(func() { send(readyMsg{}) }); err != nil {
		return err
	}
	return nil
}

// Init returns an initial command
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.view.Width = msg.Width
		m.view.Height = max(msg.Height-reservedLines, 1)
		m.refreshContent()
		m.syncScreen()
		if !m.started {
			m.started = true
			cmds = append(cmds, m.startCmd())
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "n":
			return m, m.loadCmd()
		case "G", "end":
			m.view.GotoBottom()
			m.syncScreen()
			return m, nil
		case "g", "home":
			m.view.GotoTop()
			m.syncScreen()
			return m, nil
		}

	case loadStartMsg:
		m.loading = true
		m.ready = false
		m.lastErr = nil
		return m, nil

	case pageMsg:
		m.loading = false
		m.appendItems(msg.Items)
		m.refreshContent()
		m.syncScreen()
		// Rearm only once the page is on screen.
		if msg.Resume != nil {
			resume := msg.Resume
			return m, func() tea.Msg {
				resume()
				return nil
			}
		}
		return m, nil

	case loadErrMsg:
		m.loading = false
		m.lastErr = msg.Err
		return m, nil

	case finishedMsg:
		m.finished = true
		return m, nil

	case readyMsg:
		m.ready = true
		return m, nil
	}

	var cmd tea.Cmd
	m.view, cmd = m.view.Update(msg)
	m.syncScreen()
	return m, cmd
}

// View renders the UI
func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var sb strings.Builder
	title := m.title
	if title == "" {
		title = "feedscroll"
	}
	sb.WriteString(m.styles.Title.Render(title))
	sb.WriteString("\n")
	sb.WriteString(m.view.View())
	sb.WriteString("\n")
	sb.WriteString(m.statusLine())
	return sb.String()
}

func (m *Model) statusLine() string {
	base := fmt.Sprintf("page %d · %s items · %3.f%%",
		m.engine.Page(), humanize.Comma(int64(m.items)), m.view.ScrollPercent()*100)

	var state string
	switch {
	case m.loading:
		state = m.styles.StatusLoading.Render("loading…")
	case m.lastErr != nil:
		state = m.styles.StatusError.Render("error: " + m.lastErr.Error() + " (n to retry)")
	case m.finished:
		state = m.styles.StatusDone.Render("end of feed")
	case m.ready:
		state = m.styles.StatusLoading.Render("more available (n to load)")
	}

	line := m.styles.Status.Render(base)
	if state != "" {
		line += "  " + state
	}
	return line + "  " + m.styles.Help.Render("q quit · n load · g/G top/bottom")
}

func (m *Model) appendItems(items []parser.Item) {
	for _, item := range items {
		text, err := m.renderer.Render(item)
		if err != nil {
			logger.Warn("failed to render item", "error", err)
			text = item.Text
		}
		if text == "" {
			continue
		}
		m.blocks = append(m.blocks, text)
		m.items++
	}
}

func (m *Model) refreshContent() {
	if m.width == 0 {
		return
	}
	wrap := lipgloss.NewStyle().Width(m.width)
	sep := m.styles.Separator.Render(strings.Repeat("─", max(m.width, 1)))

	rendered := make([]string, len(m.blocks))
	for i, b := range m.blocks {
		rendered[i] = wrap.Render(b)
	}
	m.view.SetContent(strings.Join(rendered, "\n"+sep+"\n"))
}

// syncScreen mirrors the terminal viewport, in lines, into the engine's
// viewport.
func (m *Model) syncScreen() {
	m.screen.Update(position.Metrics{
		ViewportHeight: float64(m.view.Height),
		ScrollOffset:   float64(m.view.YOffset),
		DocumentHeight: float64(m.view.TotalLineCount()),
	})
}

func (m *Model) startCmd() tea.Cmd {
	return func() tea.Msg {
		m.engine.Start()
		return nil
	}
}

func (m *Model) loadCmd() tea.Cmd {
	return func() tea.Msg {
		// Failures arrive as load:error.
		if _, err := m.engine.Load(m.ctx); err != nil {
			logger.Debug("manual load failed", "error", err)
		}
		return nil
	}
}
