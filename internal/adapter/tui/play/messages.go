// Package play implements the Bubble Tea board for playing against the
// engine or a loaded guest module.
package play

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"muehle-agent/internal/domain"
)

// EventBusMsg wraps a domain.Event from the EventBus subscription.
type EventBusMsg struct {
	Event domain.Event
}

// tickMsg drives one frame.
type tickMsg time.Time

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}
