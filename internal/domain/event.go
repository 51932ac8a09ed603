package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventGameStarted  EventType = "game.started"
	EventMoveApplied  EventType = "move.applied"
	EventGameFinished EventType = "game.finished"
	EventGameLoaded   EventType = "game.loaded"

	EventSearchStarted   EventType = "search.started"
	EventSearchCompleted EventType = "search.completed"
	EventSearchFailed    EventType = "search.failed"

	// Host events.
	EventGuestLoaded  EventType = "guest.loaded"
	EventGuestClosed  EventType = "guest.closed"
	EventGuestTrapped EventType = "guest.trapped"
	EventScenePresent EventType = "scene.presented"

	// Gateway session events.
	EventSessionCreated EventType = "session.created"
	EventSessionClosed  EventType = "session.closed"

	// Scheduler / self-play events.
	EventSchedulerFired   EventType = "scheduler.fired"
	EventSelfPlayFinished EventType = "selfplay.finished"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an Event stamped with the current time. A payload that
// cannot be marshalled is dropped.
func NewEvent(typ EventType, sessionID string, payload any) Event {
	ev := Event{Type: typ, Timestamp: time.Now(), SessionID: sessionID}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Payload = data
		}
	}
	return ev
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// MovePayload is published with EventMoveApplied.
type MovePayload struct {
	Ply     int    `json:"ply"`
	Color   string `json:"color"`
	From    *int   `json:"from,omitempty"`
	To      int    `json:"to"`
	Capture *int   `json:"capture,omitempty"`
	Board   string `json:"board"`
}

// SearchPayload is published with EventSearchCompleted.
type SearchPayload struct {
	Color      string `json:"color"`
	Difficulty string `json:"difficulty"`
	Depth      int    `json:"depth"`
	Nodes      int64  `json:"nodes"`
	Score      int64  `json:"score"`
	ElapsedMS  int64  `json:"elapsed_ms"`
}

// GameFinishedPayload is published with EventGameFinished and EventSelfPlayFinished.
type GameFinishedPayload struct {
	GameID string `json:"game_id,omitempty"`
	Winner string `json:"winner"`
	Plies  int    `json:"plies"`
	Board  string `json:"board"`
}
