// Package history records interactive games, played in the terminal or
// over the gateway, into the game store by following engine events.
package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"muehle-agent/internal/agent"
	"muehle-agent/internal/domain"
)

// HumanPlayer is stored for a side no computer plays.
const HumanPlayer = "human"

type session struct {
	gameID       string // empty once the game is finished
	white, black string
}

// Recorder turns the events of engine sessions into game records. Events
// without a session id, and sessions it did not see start, are ignored.
type Recorder struct {
	store  domain.GameStore
	source func(sessionID string) string
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewRecorder creates a recorder. source names the GameRecord.Source of a
// session; nil records everything as domain.SourceLocal.
func NewRecorder(store domain.GameStore, source func(sessionID string) string, logger *slog.Logger) *Recorder {
	if source == nil {
		source = func(string) string { return domain.SourceLocal }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:    store,
		source:   source,
		logger:   logger.With("component", "history"),
		sessions: make(map[string]*session),
	}
}

// Attach subscribes to bus and returns the unsubscribe func. A single
// subscription keeps the events of a session in order.
func (r *Recorder) Attach(bus domain.EventBus) func() {
	return bus.SubscribeAll(r.Handle)
}

// Handle records one event.
func (r *Recorder) Handle(ctx context.Context, ev domain.Event) {
	if ev.SessionID == "" {
		return
	}
	var err error
	switch ev.Type {
	case domain.EventGameStarted:
		var p struct{ White, Black string }
		if err = json.Unmarshal(ev.Payload, &p); err == nil {
			err = r.start(ctx, ev.SessionID, player(p.White), player(p.Black))
		}
	case domain.EventGameLoaded:
		err = r.restart(ctx, ev.SessionID)
	case domain.EventMoveApplied:
		var p domain.MovePayload
		if err = json.Unmarshal(ev.Payload, &p); err == nil {
			err = r.move(ctx, ev.SessionID, p)
		}
	case domain.EventGameFinished:
		var p domain.GameFinishedPayload
		if err = json.Unmarshal(ev.Payload, &p); err == nil {
			err = r.finish(ctx, ev.SessionID, p)
		}
	case domain.EventSessionClosed:
		r.mu.Lock()
		delete(r.sessions, ev.SessionID)
		r.mu.Unlock()
	}
	if err != nil {
		r.logger.Warn("history record failed", "session", ev.SessionID, "event", ev.Type, "error", err)
	}
}

// player names a side the way self-play records do: the difficulty of a
// computer player, or HumanPlayer.
func player(difficulty string) string {
	d, err := agent.ParseDifficulty(difficulty)
	if err != nil || d == agent.Off {
		return HumanPlayer
	}
	return d.String()
}

func (r *Recorder) start(ctx context.Context, sessionID, white, black string) error {
	rec, err := r.store.CreateGame(ctx, domain.GameRecord{
		Source: r.source(sessionID),
		White:  white,
		Black:  black,
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.sessions[sessionID] = &session{gameID: rec.ID, white: white, black: black}
	r.mu.Unlock()
	r.logger.Debug("recording game", "session", sessionID, "game_id", rec.ID)
	return nil
}

// restart begins a new record with the players of the running one.
func (r *Recorder) restart(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.start(ctx, sessionID, s.white, s.black)
}

func (r *Recorder) move(ctx context.Context, sessionID string, p domain.MovePayload) error {
	r.mu.Lock()
	gameID := r.gameID(sessionID)
	r.mu.Unlock()
	if gameID == "" {
		return nil
	}
	return r.store.AppendMove(ctx, gameID, domain.MoveRecord{
		Ply:     p.Ply,
		Color:   p.Color,
		From:    p.From,
		To:      p.To,
		Capture: p.Capture,
		Board:   p.Board,
	})
}

func (r *Recorder) finish(ctx context.Context, sessionID string, p domain.GameFinishedPayload) error {
	r.mu.Lock()
	gameID := r.gameID(sessionID)
	if gameID != "" {
		r.sessions[sessionID].gameID = ""
	}
	r.mu.Unlock()
	if gameID == "" {
		return nil
	}
	return r.store.FinishGame(ctx, gameID, p.Winner, p.Board, p.Plies)
}

// gameID returns the unfinished game of a session. Caller holds mu.
func (r *Recorder) gameID(sessionID string) string {
	if s, ok := r.sessions[sessionID]; ok {
		return s.gameID
	}
	return ""
}

// Active returns the unfinished game recorded for a session.
func (r *Recorder) Active(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.gameID(sessionID)
	return id, id != ""
}
