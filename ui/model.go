// Package ui is the terminal front end: a live playback panel, the
// session list with fuzzy filtering, and the keyboard surface that feeds
// the global shortcut layer.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/sahilm/fuzzy"

	"github.com/harklabs/hark/internal/playback"
	"github.com/harklabs/hark/internal/player"
	"github.com/harklabs/hark/internal/queue"
	"github.com/harklabs/hark/internal/session"
)

const refreshInterval = 500 * time.Millisecond

type refreshMsg time.Time

// PlayerStateMsg carries a player lifecycle change into the UI loop.
type PlayerStateMsg struct {
	State player.State
}

// PlayerTimeMsg carries a position update into the UI loop.
type PlayerTimeMsg struct {
	Position float64
	Duration float64
}

// PlayerErrorMsg carries a playback failure into the UI loop.
type PlayerErrorMsg struct {
	Message string
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF79C6"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F1FA8C"))
	activeDot     = lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B")).Render("●")
	idleDot       = dimStyle.Render("○")
)

// Model is the root bubbletea model.
type Model struct {
	ctrl     *queue.Controller
	state    *playback.State
	sessions *session.Store
	status   *StatusDisplay

	spin     spinner.Model
	filter   textinput.Model
	cursor   int
	width    int
	height   int
	quitting bool

	playerState player.State
}

// NewModel builds the root model over the control surfaces.
func NewModel(ctrl *queue.Controller, state *playback.State, sessions *session.Store) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AAFF"))

	ti := textinput.New()
	ti.Placeholder = "filter sessions"
	ti.Prompt = "/ "
	ti.CharLimit = 64

	return Model{
		ctrl:     ctrl,
		state:    state,
		sessions: sessions,
		status:   NewStatusDisplay(),
		spin:     sp,
		filter:   ti,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, refreshTick())
}

func refreshTick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case refreshMsg:
		m.status.SetSnapshot(m.state.Snapshot())
		return m, refreshTick()

	case PlayerStateMsg:
		m.playerState = msg.State
		m.status.SetState(msg.State)
		return m, nil

	case PlayerTimeMsg:
		m.status.SetTime(msg.Position, msg.Duration)
		return m, nil

	case PlayerErrorMsg:
		m.status.SetError(msg.Message)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	focused := m.filter.Focused()

	if ev, ok := translateKey(msg, focused); ok {
		if m.ctrl.HandleShortcut(context.Background(), ev) {
			m.status.SetSnapshot(m.state.Snapshot())
			return m, nil
		}
	}

	if focused {
		switch msg.String() {
		case "esc", "enter":
			m.filter.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.cursor = 0
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "/":
		m.filter.Focus()
		return m, textinput.Blink
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.visibleSessions())-1 {
			m.cursor++
		}
	}
	return m, nil
}

// keyChords maps terminal chords onto the global shortcut surface.
var keyChords = map[string]queue.KeyEvent{
	" ":               {Code: queue.KeySpace},
	"ctrl+right":      {Code: queue.KeyArrowRight, Ctrl: true},
	"f4":              {Code: queue.KeyF4},
	"ctrl+left":       {Code: queue.KeyArrowLeft, Ctrl: true},
	"ctrl+up":         {Code: queue.KeyArrowUp, Ctrl: true},
	"ctrl+down":       {Code: queue.KeyArrowDown, Ctrl: true},
	"ctrl+shift+up":   {Code: queue.KeyArrowUp, Ctrl: true, Shift: true},
	"ctrl+shift+down": {Code: queue.KeyArrowDown, Ctrl: true, Shift: true},
	"ctrl+r":          {Code: queue.KeyR, Ctrl: true},
	"ctrl+s":          {Code: queue.KeyS, Ctrl: true},
	"esc":             {Code: queue.KeyEscape},
}

// translateKey converts a terminal key press into a shortcut event.
// Escape is withheld while the filter is focused so it can close the
// filter instead of clearing the queue.
func translateKey(msg tea.KeyMsg, textInputFocused bool) (queue.KeyEvent, bool) {
	chord := msg.String()
	if textInputFocused && chord == "esc" {
		return queue.KeyEvent{}, false
	}
	ev, ok := keyChords[chord]
	if !ok {
		return queue.KeyEvent{}, false
	}
	ev.TextInputFocused = textInputFocused
	return ev, true
}

// visibleSessions applies the fuzzy filter, newest activity first.
func (m Model) visibleSessions() []session.Session {
	list := m.sessions.Load()
	query := strings.TrimSpace(m.filter.Value())
	if query == "" {
		return list
	}

	names := make([]string, len(list))
	for i, s := range list {
		names[i] = s.Name
	}

	matches := fuzzy.Find(query, names)
	out := make([]session.Session, 0, len(matches))
	for _, match := range matches {
		out = append(out, list[match.Index])
	}
	return out
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	width := m.width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("hark"))
	b.WriteString("\n\n")

	if m.playerState == player.StateBuffering {
		b.WriteString(m.spin.View())
		b.WriteString(dimStyle.Render(" buffering"))
		b.WriteString("\n")
	}

	if cur := m.state.Current(); cur != nil {
		b.WriteString(wordwrap.String(cur.Text, min(width-2, 76)))
		b.WriteString("\n")
	}

	b.WriteString(m.status.DetailedStatus(width))
	b.WriteString("\n\n")
	b.WriteString(m.renderSessions())
	b.WriteString("\n")

	if m.filter.Focused() || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n")
	}

	b.WriteString(dimStyle.Render("space play/pause · ctrl+→ skip · ctrl+← replay · esc stop · / filter · q quit"))
	return b.String()
}

func (m Model) renderSessions() string {
	list := m.visibleSessions()
	if len(list) == 0 {
		return dimStyle.Render("no sessions")
	}

	now := time.Now()
	var lines []string
	for i, s := range list {
		dot := idleDot
		if session.IsActive(s, now) {
			dot = activeDot
		}
		swatch := lipgloss.NewStyle().Foreground(lipgloss.Color(s.Color)).Render("▍")
		line := fmt.Sprintf("%s %s %s %s", dot, swatch, s.Name,
			dimStyle.Render(session.RelativeTime(s.LastActivity, now)))
		if i == m.cursor {
			line = selectedStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
