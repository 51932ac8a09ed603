// Package theme provides the colours and styles of the terminal board.
// All styles use adaptive colors that work on both light and dark terminals.
//
// NO_COLOR (https://no-color.org/) is respected automatically by lipgloss via
// its color profile detection.
package theme

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	ColorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}

	ColorBorder = lipgloss.AdaptiveColor{Light: "#bdbdbd", Dark: "#616161"}
	ColorBgAlt  = lipgloss.AdaptiveColor{Light: "#f5f5f5", Dark: "#2d2d2d"}
	ColorFgDim  = lipgloss.AdaptiveColor{Light: "#9e9e9e", Dark: "#757575"}

	// The board background, 0x3F2832 in the graphical client.
	ColorBoard = lipgloss.AdaptiveColor{Light: "#d7ccc8", Dark: "#3f2832"}
)

var (
	Bold = lipgloss.NewStyle().Bold(true)
	Dim  = lipgloss.NewStyle().Faint(true)

	TextSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	TextError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	TextWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	TextInfo    = lipgloss.NewStyle().Foreground(ColorInfo)
	TextAccent  = lipgloss.NewStyle().Foreground(ColorAccent)
	TextMuted   = lipgloss.NewStyle().Foreground(ColorMuted)
)

// Board styles.
var (
	BoardFrame = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 2)

	Line = lipgloss.NewStyle().Foreground(ColorMuted)

	PieceWhite = lipgloss.NewStyle().Bold(true)
	PieceBlack = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)

	// Movable pieces and legal destinations of the human player.
	Highlight = lipgloss.NewStyle().Foreground(ColorInfo).Underline(true)
	// Pieces that may be captured, and the winner's pieces at the end.
	Capture = lipgloss.NewStyle().Foreground(ColorError).Bold(true)

	Cursor = lipgloss.NewStyle().Reverse(true)
)

// Side panel and status bar.
var (
	Panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1)

	PanelTitle = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)

	StatLabel = lipgloss.NewStyle().Foreground(ColorMuted)
	StatValue = lipgloss.NewStyle().Foreground(ColorInfo).Bold(true)

	StatusBar = lipgloss.NewStyle().
			Foreground(ColorFgDim).
			Background(ColorBgAlt).
			Padding(0, 1)

	StatusKey = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
)
