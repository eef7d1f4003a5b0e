package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/harklabs/hark/internal/playback"
	"github.com/harklabs/hark/internal/player"
)

// StatusDisplay renders playback status for the status bar and the
// detail panel.
type StatusDisplay struct {
	state        player.State
	snapshot     playback.Snapshot
	position     float64
	duration     float64
	errorMessage string
}

// NewStatusDisplay creates an idle status display.
func NewStatusDisplay() *StatusDisplay {
	return &StatusDisplay{state: player.StateIdle}
}

// SetState records the player's lifecycle phase.
func (s *StatusDisplay) SetState(state player.State) {
	s.state = state
	if state != player.StateError {
		s.errorMessage = ""
	}
}

// SetSnapshot records the queue-level view.
func (s *StatusDisplay) SetSnapshot(snap playback.Snapshot) {
	s.snapshot = snap
}

// SetTime records playback position. duration is 0 while unknown.
func (s *StatusDisplay) SetTime(position, duration float64) {
	s.position = position
	s.duration = duration
}

// SetError records a playback failure message.
func (s *StatusDisplay) SetError(message string) {
	s.state = player.StateError
	s.errorMessage = message
}

// CompactStatus returns the one-segment status bar string.
func (s *StatusDisplay) CompactStatus() string {
	if s.state == player.StateIdle && s.snapshot.Current == nil {
		return ""
	}

	icon, color := s.stateLook()
	style := lipgloss.NewStyle().Foreground(color)
	status := style.Render(fmt.Sprintf("%s hark", icon))

	if pending := countPending(s.snapshot.Queue); pending > 0 {
		dim := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
		status += dim.Render(fmt.Sprintf(" +%d", pending))
	}
	if s.snapshot.Speed != 1.0 {
		dim := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
		status += dim.Render(fmt.Sprintf(" %.2gx", s.snapshot.Speed))
	}
	return status
}

// DetailedStatus returns the multi-line panel view.
func (s *StatusDisplay) DetailedStatus(width int) string {
	var lines []string

	header := lipgloss.NewStyle().Bold(true)
	lines = append(lines, header.Render("Playback"))

	icon, color := s.stateLook()
	stateStyle := lipgloss.NewStyle().Foreground(color)
	lines = append(lines, stateStyle.Render(fmt.Sprintf("State: %s %s", icon, s.stateLabel())))

	if cur := s.snapshot.Current; cur != nil {
		text := truncate.StringWithTail(cur.Text, uint(max(width-2, 10)), "...")
		lines = append(lines, "Reading: "+text)
	}

	if s.duration > 0 && width > 20 {
		lines = append(lines,
			fmt.Sprintf("Position: %s / %s", formatClock(s.position), formatClock(s.duration)),
			s.renderProgressBar(width-4),
		)
	}

	if pending := countPending(s.snapshot.Queue); pending > 0 {
		lines = append(lines, fmt.Sprintf("Queued: %d", pending))
	}

	if s.errorMessage != "" {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
		msg := truncate.StringWithTail(s.errorMessage, uint(max(width-9, 10)), "...")
		lines = append(lines, errStyle.Render("Error: "+msg))
	}

	return strings.Join(lines, "\n")
}

func (s *StatusDisplay) renderProgressBar(width int) string {
	if width < 10 || s.duration <= 0 {
		return ""
	}

	progress := s.position / s.duration
	if progress > 1 {
		progress = 1
	}
	filledWidth := int(progress * float64(width))

	_, color := s.stateLook()
	filled := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filledWidth))
	empty := lipgloss.NewStyle().Foreground(lipgloss.Color("#333333")).Render(strings.Repeat("░", width-filledWidth))
	return filled + empty
}

func (s *StatusDisplay) stateLabel() string {
	if s.snapshot.IsPaused && s.state == player.StatePlaying {
		return "paused"
	}
	return s.state.String()
}

func (s *StatusDisplay) stateLook() (string, lipgloss.Color) {
	if s.snapshot.IsPaused && s.state == player.StatePlaying {
		return "⏸", lipgloss.Color("#FFFF00")
	}
	switch s.state {
	case player.StateBuffering:
		return "⟳", lipgloss.Color("#00AAFF")
	case player.StatePlaying:
		return "▶", lipgloss.Color("#00FF00")
	case player.StateEnded:
		return "■", lipgloss.Color("#888888")
	case player.StateError:
		return "✗", lipgloss.Color("#FF0000")
	default:
		return "○", lipgloss.Color("#666666")
	}
}

func countPending(items []playback.Item) int {
	n := 0
	for _, it := range items {
		if it.Status == playback.StatusPending {
			n++
		}
	}
	return n
}

// formatClock renders seconds as m:ss.
func formatClock(seconds float64) string {
	if seconds < 0 {
		return "0:00"
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
