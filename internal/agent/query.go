package agent

import (
	"context"
	"fmt"
	"strings"

	"muehle-agent/internal/board"
	"muehle-agent/internal/domain"
	"muehle-agent/internal/game"
)

// Query is one line of the analyze protocol: "<P|M> <W|B> <24-char board>".
type Query struct {
	Phase PhaseKind
	Color board.Token
	Board board.Board
}

// ParseQuery parses a single protocol line.
func ParseQuery(line string) (Query, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return Query{}, fmt.Errorf("%w: want \"<P|M> <W|B> <board>\", got %q", domain.ErrInvalidInput, line)
	}
	var q Query
	switch fields[0] {
	case "P":
		q.Phase = PhaseSet
	case "M":
		q.Phase = PhaseMove
	default:
		return Query{}, fmt.Errorf("%w: unknown phase %q", domain.ErrInvalidInput, fields[0])
	}
	if len(fields[1]) != 1 {
		return Query{}, fmt.Errorf("%w: unknown color %q", domain.ErrInvalidInput, fields[1])
	}
	c, err := board.ParseColor(fields[1])
	if err != nil {
		return Query{}, err
	}
	q.Color = c
	b, err := board.Decode(fields[2])
	if err != nil {
		return Query{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	q.Board = b
	return q, nil
}

// Game builds the position to search. step is the number of half-moves
// already played; it decides how many pieces are still in hand while placing.
func (q Query) Game(step int) (*game.Game, error) {
	setupLeft := 0
	if q.Phase == PhaseSet {
		setupLeft = min(max(game.SetupPieces-step, 1), game.SetupPieces)
	}
	return game.FromPosition(q.Board, q.Color, game.Normal, setupLeft)
}

// FormatResult renders a search result as a protocol answer.
func FormatResult(res Result) string {
	return fmt.Sprintf("%s score=%d depth=%d", res.Action, res.Score, res.Depth)
}

// LineSession answers protocol lines from one client in order. It tracks the
// half-move counter across lines: the first line from Black starts at step 1
// and every answer advances it by two.
type LineSession struct {
	agent      *Agent
	difficulty Difficulty
	step       int
	started    bool
}

// NewLineSession returns a session searching at difficulty d.
func (a *Agent) NewLineSession(d Difficulty) *LineSession {
	return &LineSession{agent: a, difficulty: d}
}

// Step returns the current half-move counter.
func (s *LineSession) Step() int { return s.step }

// Answer parses line, searches, and returns the formatted reply.
func (s *LineSession) Answer(ctx context.Context, line string) (string, error) {
	q, err := ParseQuery(line)
	if err != nil {
		return "", err
	}
	if !s.started {
		s.started = true
		if q.Color == board.Black {
			s.step = 1
		}
	}
	g, err := q.Game(s.step)
	if err != nil {
		return "", err
	}
	res, err := s.agent.Analyze(ctx, "", g, s.difficulty)
	if err != nil {
		return "", err
	}
	s.step += 2
	return FormatResult(res), nil
}
