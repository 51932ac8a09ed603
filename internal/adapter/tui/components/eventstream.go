package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"muehle-agent/internal/adapter/tui/theme"
	"muehle-agent/internal/domain"
)

const maxEventEntries = 200

// EventStreamModel displays a scrollable stream of game events and keeps
// following the newest one while scrolled to the bottom.
type EventStreamModel struct {
	Viewport viewport.Model
	events   []domain.Event
	ready    bool
	atBottom bool
}

// NewEventStream creates an event stream viewer.
func NewEventStream() EventStreamModel {
	return EventStreamModel{atBottom: true}
}

// SetSize sets the viewport dimensions.
func (m *EventStreamModel) SetSize(w, h int) {
	if !m.ready {
		m.Viewport = viewport.New(w, h)
		m.Viewport.MouseWheelEnabled = true
		m.Viewport.MouseWheelDelta = 3
		m.ready = true
	} else {
		m.Viewport.Width = w
		m.Viewport.Height = h
	}
	m.refreshContent()
}

// AddEvent appends an event and auto-scrolls if at bottom.
func (m *EventStreamModel) AddEvent(event domain.Event) {
	m.events = append(m.events, event)
	if len(m.events) > maxEventEntries {
		m.events = m.events[len(m.events)-maxEventEntries:]
	}
	m.refreshContent()
	if m.atBottom && m.ready {
		m.Viewport.GotoBottom()
	}
}

// Update handles viewport scrolling.
func (m EventStreamModel) Update(msg tea.Msg) (EventStreamModel, tea.Cmd) {
	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	m.atBottom = m.Viewport.AtBottom()
	return m, cmd
}

// EventCount returns the number of buffered events.
func (m EventStreamModel) EventCount() int {
	return len(m.events)
}

// View renders the event stream.
func (m EventStreamModel) View() string {
	if !m.ready {
		return ""
	}
	return m.Viewport.View()
}

func (m *EventStreamModel) refreshContent() {
	if !m.ready {
		return
	}
	if len(m.events) == 0 {
		m.Viewport.SetContent(theme.TextMuted.Render("Waiting for events..."))
		return
	}

	var sb strings.Builder
	for _, evt := range m.events {
		sb.WriteString(FormatEvent(evt))
		sb.WriteByte('\n')
	}
	m.Viewport.SetContent(sb.String())
}

// FormatEvent renders one event line, coloured by category.
func FormatEvent(evt domain.Event) string {
	typ := fmt.Sprintf("%-16s", evt.Type)
	var styled string
	switch {
	case strings.HasPrefix(string(evt.Type), "move."):
		styled = theme.TextInfo.Render(typ)
	case strings.HasPrefix(string(evt.Type), "game."):
		styled = theme.TextAccent.Render(typ)
	case evt.Type == domain.EventGuestTrapped:
		styled = theme.TextError.Render(typ)
	case strings.HasPrefix(string(evt.Type), "search."):
		styled = theme.TextWarning.Render(typ)
	default:
		styled = theme.TextMuted.Render(typ)
	}
	return fmt.Sprintf("%s %s %s",
		theme.Dim.Render(evt.Timestamp.Format("15:04:05")),
		styled,
		theme.TextMuted.Render(summarize(evt.Payload)),
	)
}

// summarize shortens a JSON payload to fit one line.
func summarize(payload []byte) string {
	s := strings.TrimSpace(string(payload))
	if s == "" || s == "null" {
		return ""
	}
	const limit = 48
	if len(s) > limit {
		return s[:limit-3] + "..."
	}
	return s
}
