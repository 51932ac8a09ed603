package agent

import (
	"muehle-agent/internal/board"
	"muehle-agent/internal/game"
)

// PhaseKind distinguishes placing from moving.
type PhaseKind int

const (
	PhaseSet PhaseKind = iota
	PhaseMove
)

func (k PhaseKind) String() string {
	if k == PhaseSet {
		return "Set"
	}
	return "Move"
}

// Phase is the game phase at a search node. Step counts half-moves; in the
// Set phase it equals the number of pieces already placed.
type Phase struct {
	Kind PhaseKind
	Step int
}

// Next returns the phase one half-move later.
func (p Phase) Next() Phase {
	n := Phase{Kind: p.Kind, Step: p.Step + 1}
	if n.Kind == PhaseSet && n.Step >= game.SetupPieces {
		n.Kind = PhaseMove
	}
	return n
}

// PhaseOf returns the phase of g's current position.
func PhaseOf(g *game.Game) Phase {
	if g.SetupLeft() > 0 {
		return Phase{Kind: PhaseSet, Step: game.SetupPieces - g.SetupLeft()}
	}
	return Phase{Kind: PhaseMove}
}

// expand calls emit for every position color can reach in one turn. Capture
// is -1 when the turn does not close a mill; from is -1 for placements.
func expand(b board.Board, color board.Token, ph Phase, emit func(next board.Board, from, to, capture board.Point)) {
	withCaptures := func(moved board.Board, from, to board.Point) {
		if !board.IsMillClosing(b, moved, color) {
			emit(moved, from, to, -1)
			return
		}
		victim := color.Opponent()
		captured := false
		for p := board.Point(0); p < board.Points; p++ {
			if moved.CanCapture(p, color) {
				emit(moved.With(p, board.Empty), from, to, p)
				captured = true
			}
		}
		if !captured && moved.Count(victim) == 0 {
			emit(moved, from, to, -1)
		}
	}

	if ph.Kind == PhaseSet {
		for p := board.Point(0); p < board.Points; p++ {
			if b.At(p) == board.Empty {
				withCaptures(b.With(p, color), -1, p)
			}
		}
		return
	}

	count := b.Count(color)
	for from := board.Point(0); from < board.Points; from++ {
		if b.At(from) != color {
			continue
		}
		lifted := b.With(from, board.Empty)
		if count == 3 {
			for to := board.Point(0); to < board.Points; to++ {
				if to != from && b.At(to) == board.Empty {
					withCaptures(lifted.With(to, color), from, to)
				}
			}
			continue
		}
		for _, to := range board.Neighbours(from) {
			if b.At(to) == board.Empty {
				withCaptures(lifted.With(to, color), from, to)
			}
		}
	}
}

// Successors returns every board color can reach in one turn, captures
// included.
func Successors(b board.Board, color board.Token, ph Phase) []board.Board {
	out := make([]board.Board, 0, 32)
	expand(b, color, ph, func(next board.Board, _, _, _ board.Point) {
		out = append(out, next)
	})
	return out
}

// Candidate is a root successor with the action that produces it.
type Candidate struct {
	Board  board.Board
	Action game.Action
}

// Candidates returns the root successors of g together with their actions.
// In the Take state the candidates are the legal captures.
func Candidates(g *game.Game) []Candidate {
	b := g.Board()
	if c := g.Carry(); c != nil {
		b = b.With(c.Point, c.Color)
	}
	color := g.Turn()

	var out []Candidate
	if g.State() == game.Take {
		for _, p := range b.CapturablePoints(color) {
			out = append(out, Candidate{Board: b.With(p, board.Empty), Action: game.Action{To: p}})
		}
		return out
	}

	expand(b, color, PhaseOf(g), func(next board.Board, from, to, capture board.Point) {
		a := game.Place(to)
		if from >= 0 {
			a = game.Move(from, to)
		}
		if capture >= 0 {
			a = a.WithCapture(capture)
		}
		out = append(out, Candidate{Board: next, Action: a})
	})
	return out
}
