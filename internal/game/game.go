// Package game holds the Nine Men's Morris state machine driven by pointer
// input: a piece is picked up on button down and dropped on button up.
package game

import (
	"encoding/json"
	"fmt"

	"muehle-agent/internal/board"
	"muehle-agent/internal/domain"
)

// SetupPieces is the number of pieces placed during the setup phase.
const SetupPieces = 18

// State is the phase of the state machine.
type State int

const (
	Setup State = iota
	Normal
	Take
	Win
)

func (s State) String() string {
	switch s {
	case Setup:
		return "Setup"
	case Take:
		return "Take"
	case Win:
		return "Win"
	default:
		return "Normal"
	}
}

// ParseState parses the text form. Unknown text is Normal.
func ParseState(s string) State {
	switch s {
	case "Setup":
		return Setup
	case "Take":
		return Take
	case "Win":
		return Win
	default:
		return Normal
	}
}

// Carry is a piece lifted off the board and not yet dropped.
type Carry struct {
	Point board.Point
	Color board.Token
}

// Game is a single match.
type Game struct {
	board     board.Board
	turn      board.Token
	carry     *Carry
	state     State
	setupLeft int
}

// New returns a game at the start of the setup phase with White to move.
func New() *Game {
	return &Game{turn: board.White, state: Setup, setupLeft: SetupPieces}
}

// FromPosition builds a game from its persisted parts and recomputes the state.
func FromPosition(b board.Board, turn board.Token, state State, setupLeft int) (*Game, error) {
	if !turn.IsColor() {
		return nil, fmt.Errorf("%w: player to move must be White or Black", domain.ErrInvalidInput)
	}
	if setupLeft < 0 || setupLeft > SetupPieces {
		return nil, fmt.Errorf("%w: setup pieces left %d out of range", domain.ErrInvalidInput, setupLeft)
	}
	g := &Game{board: b, turn: turn, state: state, setupLeft: setupLeft}
	g.UpdateState(nil)
	return g, nil
}

// Reset restarts the game in place.
func (g *Game) Reset() { *g = *New() }

// Clone returns an independent copy.
func (g *Game) Clone() *Game {
	c := *g
	if g.carry != nil {
		cp := *g.carry
		c.carry = &cp
	}
	return &c
}

func (g *Game) Board() board.Board { return g.board }
func (g *Game) Turn() board.Token { return g.turn }
func (g *Game) State() State { return g.state }
func (g *Game) SetupLeft() int { return g.setupLeft }
func (g *Game) Carry() *Carry { return g.carry }
func (g *Game) At(p board.Point) board.Token { return g.board.At(p) }

// InHand returns how many pieces color c still has to place.
func (g *Game) InHand(c board.Token) int {
	if c == board.White {
		return g.setupLeft / 2
	}
	return g.setupLeft/2 + g.setupLeft%2
}

// PieceCount returns the number of c's pieces on the board, excluding a
// lifted piece.
func (g *Game) PieceCount(c board.Token) int { return g.board.Count(c) }

// Winner returns the winning color or board.Empty.
func (g *Game) Winner() board.Token {
	if g.setupLeft > 0 {
		return board.Empty
	}
	return g.board.Loser().Opponent()
}

func (g *Game) nextTurn() { g.turn = g.turn.Opponent() }

// UpdateState moves the machine to next, if given, then normalises it.
// Win is sticky; Take survives until the capture is made.
func (g *Game) UpdateState(next *State) {
	if g.state == Win {
		return
	}
	if next != nil {
		g.state = *next
	}
	if g.state == Take {
		return
	}
	switch {
	case g.setupLeft > 0:
		g.state = Setup
	case g.board.Loser() != board.Empty:
		g.state = Win
	default:
		g.state = Normal
	}
}

func (g *Game) toState(s State) { g.UpdateState(&s) }

// UndoCarry puts a lifted piece back where it came from.
func (g *Game) UndoCarry() {
	if g.carry == nil {
		return
	}
	g.board = g.board.With(g.carry.Point, g.carry.Color)
	g.carry = nil
}

// ButtonDown lifts the player's piece on p during the movement phase.
func (g *Game) ButtonDown(p board.Point) error {
	if !p.Valid() {
		return fmt.Errorf("%w: point %d", domain.ErrOffBoard, p)
	}
	if g.state != Normal {
		return nil
	}
	if g.carry != nil {
		g.UndoCarry()
	}
	color := g.board.At(p)
	if color != g.turn {
		return domain.NewDomainError("Game.ButtonDown", domain.ErrNotYourPiece, fmt.Sprintf("point %d holds %s", p, color))
	}
	g.board = g.board.With(p, board.Empty)
	g.carry = &Carry{Point: p, Color: color}
	return nil
}

// ButtonUp places, drops or captures on p depending on the state. A carried
// piece that was not dropped returns to its origin.
func (g *Game) ButtonUp(p board.Point) error {
	if !p.Valid() {
		g.UndoCarry()
		return fmt.Errorf("%w: point %d", domain.ErrOffBoard, p)
	}

	var err error
	switch g.state {
	case Setup:
		err = g.place(p)
	case Normal:
		err = g.drop(p)
	case Take:
		err = g.capture(p)
	}

	g.UndoCarry()
	g.UpdateState(nil)
	return err
}

func (g *Game) place(p board.Point) error {
	if g.board.At(p) != board.Empty {
		return domain.NewDomainError("Game.ButtonUp", domain.ErrIllegalMove, fmt.Sprintf("point %d is occupied", p))
	}
	g.board = g.board.With(p, g.turn)
	g.setupLeft--
	if g.board.IsPartOfMill(p, g.turn) {
		g.toState(Take)
	} else {
		g.nextTurn()
	}
	return nil
}

func (g *Game) drop(p board.Point) error {
	if g.carry == nil {
		return nil
	}
	c := *g.carry
	if !g.board.IsMoveValid(c.Point, p, g.PieceCount(c.Color)+1) {
		return domain.NewDomainError("Game.ButtonUp", domain.ErrIllegalMove, fmt.Sprintf("%d to %d", c.Point, p))
	}
	before := g.board.With(c.Point, c.Color)
	g.board = g.board.With(p, c.Color)
	g.carry = nil
	if board.IsMillClosing(before, g.board, c.Color) {
		g.toState(Take)
	} else {
		g.nextTurn()
	}
	return nil
}

func (g *Game) capture(p board.Point) error {
	if !g.board.CanCapture(p, g.turn) {
		return domain.NewDomainError("Game.ButtonUp", domain.ErrIllegalMove, fmt.Sprintf("point %d cannot be captured", p))
	}
	g.board = g.board.With(p, board.Empty)
	g.nextTurn()
	g.toState(Normal)
	return nil
}

// Apply replays a computed action through the pointer input path.
func (g *Game) Apply(a Action) error {
	if g.state == Win {
		return domain.NewDomainError("Game.Apply", domain.ErrGameOver, "")
	}
	if a.From != nil {
		if err := g.ButtonDown(*a.From); err != nil {
			return domain.WrapOp("Game.Apply", err)
		}
	}
	if err := g.ButtonUp(a.To); err != nil {
		return domain.WrapOp("Game.Apply", err)
	}
	if a.Capture != nil {
		if g.state != Take {
			return domain.NewDomainError("Game.Apply", domain.ErrIllegalMove, "capture without a closed mill")
		}
		if err := g.ButtonUp(*a.Capture); err != nil {
			return domain.WrapOp("Game.Apply", err)
		}
	}
	return nil
}

type gameJSON struct {
	Board       string `json:"board"`
	Turn        string `json:"player_turn"`
	State       string `json:"state"`
	SetupLeft   int    `json:"setup_pieces_left"`
	WhiteInHand int    `json:"white_in_hand"`
	BlackInHand int    `json:"black_in_hand"`
	Carry       *int   `json:"carry,omitempty"`
	Winner      string `json:"winner,omitempty"`
	Capturable  []int  `json:"capturable,omitempty"`
}

// MarshalJSON renders a read-only view of the game.
func (g *Game) MarshalJSON() ([]byte, error) {
	v := gameJSON{
		Board:       g.board.Encode(),
		Turn:        g.turn.String(),
		State:       g.state.String(),
		SetupLeft:   g.setupLeft,
		WhiteInHand: g.InHand(board.White),
		BlackInHand: g.InHand(board.Black),
	}
	if g.carry != nil {
		p := int(g.carry.Point)
		v.Carry = &p
	}
	if w := g.Winner(); w != board.Empty {
		v.Winner = w.String()
	}
	if g.state == Take {
		for _, p := range g.board.CapturablePoints(g.turn) {
			v.Capturable = append(v.Capturable, int(p))
		}
	}
	return json.Marshal(v)
}
