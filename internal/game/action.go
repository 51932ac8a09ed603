package game

import (
	"fmt"
	"strings"

	"muehle-agent/internal/board"
)

// Action is one complete turn: an optional origin (nil while placing), a
// destination, and an optional capture.
type Action struct {
	From    *board.Point `json:"from,omitempty"`
	To      board.Point  `json:"to"`
	Capture *board.Point `json:"capture,omitempty"`
}

// Place builds a setup-phase action.
func Place(to board.Point) Action { return Action{To: to} }

// Move builds a movement-phase action.
func Move(from, to board.Point) Action { return Action{From: &from, To: to} }

// WithCapture returns a copy of a that also captures on p.
func (a Action) WithCapture(p board.Point) Action {
	a.Capture = &p
	return a
}

// String renders the action in the analyze notation: "<from|-> <to> <capture|->"
// with 1-based points.
func (a Action) String() string {
	part := func(p *board.Point) string {
		if p == nil {
			return "-"
		}
		return p.Human()
	}
	return strings.Join([]string{part(a.From), a.To.Human(), part(a.Capture)}, " ")
}

// ActionFromBoards derives the action color played to turn before into after.
func ActionFromBoards(before, after board.Board, color board.Token) (Action, error) {
	var (
		a       Action
		gained  []board.Point
		lost    []board.Point
		removed []board.Point
	)
	for p := board.Point(0); p < board.Points; p++ {
		was, now := before.At(p), after.At(p)
		switch {
		case was == now:
		case now == color && was == board.Empty:
			gained = append(gained, p)
		case was == color && now == board.Empty:
			lost = append(lost, p)
		case was == color.Opponent() && now == board.Empty:
			removed = append(removed, p)
		default:
			return a, fmt.Errorf("boards differ inconsistently at point %d", p)
		}
	}
	if len(gained) != 1 || len(lost) > 1 || len(removed) > 1 {
		return a, fmt.Errorf("boards are not one turn apart (+%d -%d x%d)", len(gained), len(lost), len(removed))
	}
	a.To = gained[0]
	if len(lost) == 1 {
		a.From = &lost[0]
	}
	if len(removed) == 1 {
		a.Capture = &removed[0]
	}
	return a, nil
}
