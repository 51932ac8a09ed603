package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"muehle-agent/internal/adapter/tui/theme"
)

// StatusBarModel renders a bottom status bar: the short key help on the
// left, the players and a transient message on the right.
type StatusBarModel struct {
	Help    string // rendered by bubbles/help
	Players string // e.g. "white: off  black: hard"
	Message string
	IsError bool
	width   int
}

// NewStatusBar creates an empty status bar.
func NewStatusBar() StatusBarModel {
	return StatusBarModel{}
}

// SetWidth updates the available width.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// View renders the status bar as a single line.
func (m StatusBarModel) View() string {
	left := m.Help

	var parts []string
	if m.Players != "" {
		parts = append(parts, theme.TextMuted.Render(m.Players))
	}
	if m.Message != "" {
		style := theme.TextInfo
		prefix := ""
		if m.IsError {
			style = theme.TextError
			prefix = theme.Symbols.Warning + " "
		}
		parts = append(parts, style.Render(prefix+m.Message))
	}
	right := strings.Join(parts, " "+theme.Symbols.Bullet+" ")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}

	bar := left + strings.Repeat(" ", gap) + right
	return theme.StatusBar.Width(m.width).Render(bar)
}
