// Package console is an interactive terminal view over tmux sessions: a
// session list, a live tail of the selected session's capture log, and a
// prompt box that delivers text to the session's active pane.
package console

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/timvw/pane-relay/internal/config"
	"github.com/timvw/pane-relay/internal/logging"
	"github.com/timvw/pane-relay/internal/model"
	"github.com/timvw/pane-relay/internal/parser"
)

// SessionLister lists tmux sessions.
type SessionLister interface {
	ListSessions(ctx context.Context) ([]model.Session, error)
}

// LogTailer returns the last lines of a session's capture log.
type LogTailer interface {
	TailLog(session model.SessionID, n int) ([]string, error)
}

// PromptDeliverer hands a prompt to a pane.
type PromptDeliverer interface {
	Deliver(ctx context.Context, pane model.PaneID, session model.SessionID, content string) error
}

const defaultTailLines = 200

// Console runs the interactive view.
type Console struct {
	Sessions  SessionLister
	Logs      LogTailer
	Deliverer PromptDeliverer
	// Exclude hides sessions by name; a trailing * matches a prefix.
	Exclude         []string
	RefreshInterval time.Duration // 0 disables auto-refresh
	TailLines       int
	Theme           Theme
	Logger          *slog.Logger
}

type viewMode int

const (
	modeList viewMode = iota
	modeTextInput
)

// messages
type sessionsMsg struct {
	sessions []model.Session
	err      error
}

type tailMsg struct {
	session model.SessionID
	lines   []string
	err     error
}

type sentMsg struct {
	session string
	pane    model.PaneID
	text    string
	err     error
}

type tickMsg struct{}

type tuiModel struct {
	ctx     context.Context
	lister  SessionLister
	logs    LogTailer
	deliver PromptDeliverer
	exclude []string

	refreshInterval time.Duration
	tailLines       int
	st              styles
	logger          *slog.Logger

	sessions []model.Session
	cursor   int
	tail     []string
	mode     viewMode

	textInput textinput.Model

	width  int
	height int

	refreshing   bool
	refreshCount int
	message      string
}

func (c *Console) newModel(ctx context.Context) *tuiModel {
	ti := textinput.New()
	ti.Placeholder = "Type a prompt and press Enter..."
	ti.CharLimit = 4096
	ti.Width = 80

	theme := c.Theme
	if theme == (Theme{}) {
		theme = DarkTheme()
	}
	n := c.TailLines
	if n <= 0 {
		n = defaultTailLines
	}
	return &tuiModel{
		ctx:             ctx,
		lister:          c.Sessions,
		logs:            c.Logs,
		deliver:         c.Deliverer,
		exclude:         c.Exclude,
		refreshInterval: c.RefreshInterval,
		tailLines:       n,
		st:              newStyles(theme),
		logger:          logging.ForComponent(c.Logger, logging.CompConsole),
		textInput:       ti,
	}
}

// Run blocks until the user quits.
func (c *Console) Run(ctx context.Context) error {
	p := tea.NewProgram(c.newModel(ctx), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m *tuiModel) Init() tea.Cmd {
	m.refreshing = true
	return m.doRefresh()
}

func (m *tuiModel) scheduleTick() tea.Cmd {
	if m.refreshInterval <= 0 {
		return nil
	}
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m *tuiModel) doRefresh() tea.Cmd {
	lister := m.lister
	ctx := m.ctx
	return func() tea.Msg {
		sessions, err := lister.ListSessions(ctx)
		return sessionsMsg{sessions: sessions, err: err}
	}
}

func (m *tuiModel) doTail() tea.Cmd {
	s := m.selected()
	if s == nil || m.logs == nil {
		return nil
	}
	id := s.ID
	logs := m.logs
	n := m.tailLines
	return func() tea.Msg {
		lines, err := logs.TailLog(id, n)
		return tailMsg{session: id, lines: lines, err: err}
	}
}

func (m *tuiModel) doSend(s model.Session, text string) tea.Cmd {
	pane, ok := s.FirstPane()
	if !ok {
		m.message = fmt.Sprintf("Session %s has no panes", s.Name)
		return nil
	}
	deliver := m.deliver
	ctx := m.ctx
	return func() tea.Msg {
		err := deliver.Deliver(ctx, pane.ID, s.ID, text)
		return sentMsg{session: s.Name, pane: pane.ID, text: text, err: err}
	}
}

// visible drops excluded sessions, keeping tmux's order.
func (m *tuiModel) visible(sessions []model.Session) []model.Session {
	out := sessions[:0:0]
	for _, s := range sessions {
		if config.MatchesExcludeList(s.Name, m.exclude) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (m *tuiModel) selected() *model.Session {
	if m.cursor < 0 || m.cursor >= len(m.sessions) {
		return nil
	}
	return &m.sessions[m.cursor]
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.mode == modeTextInput {
			return m.handleTextInputKey(msg)
		}
		return m.handleListKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case sessionsMsg:
		m.refreshing = false
		if msg.err != nil {
			m.message = fmt.Sprintf("Refresh error: %v", msg.err)
			return m, m.scheduleTick()
		}
		var prev model.SessionID
		if s := m.selected(); s != nil {
			prev = s.ID
		}
		m.sessions = m.visible(msg.sessions)
		m.refreshCount++
		m.cursor = 0
		for i, s := range m.sessions {
			if s.ID == prev {
				m.cursor = i
				break
			}
		}
		return m, tea.Batch(m.doTail(), m.scheduleTick())

	case tailMsg:
		s := m.selected()
		if s == nil || s.ID != msg.session {
			return m, nil
		}
		if msg.err != nil {
			m.message = fmt.Sprintf("Log error: %v", msg.err)
			return m, nil
		}
		m.tail = msg.lines
		return m, nil

	case sentMsg:
		if msg.err != nil {
			m.message = fmt.Sprintf("Send failed: %v", msg.err)
			m.logger.Warn("console_send_failed", slog.String("pane", string(msg.pane)), slog.String("error", msg.err.Error()))
		} else {
			m.message = fmt.Sprintf("Sent '%s' to %s (%s)", truncate(msg.text, 40), msg.session, msg.pane)
		}
		return m, m.doTail()

	case tickMsg:
		if m.refreshing || m.mode == modeTextInput {
			return m, m.scheduleTick()
		}
		m.refreshing = true
		return m, m.doRefresh()
	}

	return m, nil
}

func (m *tuiModel) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.tail = nil
			return m, m.doTail()
		}

	case "down", "j":
		if m.cursor < len(m.sessions)-1 {
			m.cursor++
			m.tail = nil
			return m, m.doTail()
		}

	case "enter", "t":
		if m.selected() == nil {
			return m, nil
		}
		m.mode = modeTextInput
		m.textInput.SetValue("")
		m.textInput.Focus()
		return m, textinput.Blink

	case "r":
		m.refreshing = true
		m.message = ""
		return m, m.doRefresh()
	}
	return m, nil
}

func (m *tuiModel) handleTextInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeList
		m.textInput.Blur()
		return m, nil

	case "enter":
		text := m.textInput.Value()
		m.mode = modeList
		m.textInput.Blur()
		s := m.selected()
		if strings.TrimSpace(text) == "" || s == nil {
			return m, nil
		}
		return m, m.doSend(*s, text)
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *tuiModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	var b strings.Builder

	b.WriteString(m.st.title.Render("Pane Relay"))
	b.WriteString("  ")
	b.WriteString(m.st.dim.Render("↑↓=select  Enter/t=prompt  r=refresh  q=quit"))
	if m.refreshing {
		b.WriteString("  ")
		b.WriteString(m.st.busy.Render("refreshing..."))
	}
	b.WriteString("\n")

	if len(m.sessions) == 0 {
		if m.refreshing {
			b.WriteString("  Listing sessions...\n")
		} else {
			b.WriteString("  No sessions found.\n")
		}
		m.writeFooter(&b)
		return b.String()
	}

	nameWidth := 12
	for _, s := range m.sessions {
		if len(s.Name)+10 > nameWidth {
			nameWidth = len(s.Name) + 10
		}
	}
	sep := m.st.header.Render(" | ")
	tailWidth := m.width - nameWidth - 3
	if tailWidth < 20 {
		tailWidth = 20
	}

	panelHeight := m.height - 4
	if m.mode == modeTextInput {
		panelHeight -= 2
	}
	if panelHeight < 3 {
		panelHeight = 3
	}

	tail := m.tail
	if len(tail) > panelHeight {
		tail = tail[len(tail)-panelHeight:]
	}

	for row := 0; row < panelHeight; row++ {
		left := ""
		if row < len(m.sessions) {
			left = m.renderSessionRow(row)
		}
		right := ""
		if row < len(tail) {
			right = m.renderLogLine(tail[row], tailWidth)
		}
		if left == "" && right == "" {
			continue
		}
		b.WriteString(padRight(left, nameWidth))
		b.WriteString(sep)
		b.WriteString(right)
		b.WriteString("\n")
	}

	if m.mode == modeTextInput {
		if s := m.selected(); s != nil {
			b.WriteString(m.st.title.Render("Prompt for " + s.Name))
			b.WriteString("\n")
		}
		b.WriteString(m.textInput.View())
		b.WriteString("\n")
	}

	m.writeFooter(&b)
	return b.String()
}

func (m *tuiModel) writeFooter(b *strings.Builder) {
	attached := 0
	for _, s := range m.sessions {
		if s.Attached {
			attached++
		}
	}
	summary := fmt.Sprintf("  %d sessions | %d attached | refresh #%d", len(m.sessions), attached, m.refreshCount)
	b.WriteString(m.st.dim.Render(summary))
	b.WriteString("\n")
	if m.message != "" {
		b.WriteString(m.st.dim.Render("  " + m.message))
		b.WriteString("\n")
	}
}

func (m *tuiModel) renderSessionRow(i int) string {
	s := m.sessions[i]
	icon := "○"
	if s.Attached {
		icon = m.st.attached.Render("●")
	}
	label := fmt.Sprintf("%s %s (%d)", icon, s.Name, len(s.Windows))
	if i == m.cursor {
		return m.st.selected.Render("> " + label)
	}
	return "  " + label
}

func (m *tuiModel) renderLogLine(line string, width int) string {
	line = truncate(strings.TrimRight(line, "\r"), width)
	switch parser.Parse(line).Kind {
	case parser.KindError:
		return m.st.err.Render(line)
	case parser.KindToolCall:
		return m.st.tool.Render(line)
	default:
		return m.st.text.Render(line)
	}
}

// truncate cuts a string to at most maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// padRight pads a string with spaces to reach the desired visible width.
func padRight(s string, width int) string {
	visible := visibleLen(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

// visibleLen returns the visible length of a string, ignoring ANSI escape sequences.
func visibleLen(s string) int {
	n := 0
	inEscape := false
	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
			continue
		}
		if inEscape {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
			continue
		}
		n++
	}
	return n
}
