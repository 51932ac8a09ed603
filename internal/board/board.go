// Package board implements the Nine Men's Morris position as a 48-bit bitboard
// together with the rule helpers that operate on it.
//
// Points are numbered 0..23 as ring*8+slot. Ring 0 is the outer square, ring
// 2 the inner one. Slots run clockwise from the top middle:
//
//	7 ---- 0 ---- 1
//	|      |      |
//	6      .      2
//	|      |      |
//	5 ---- 4 ---- 3
package board

import (
	"fmt"
	"strings"

	"muehle-agent/internal/domain"
)

// Points is the number of points on the board.
const Points = 24

// Point identifies an intersection, 0..23.
type Point int

// Ring returns the square the point lies on (0 outer, 2 inner).
func (p Point) Ring() int { return int(p) / 8 }

// Slot returns the clockwise position on the ring, starting top middle.
func (p Point) Slot() int { return int(p) % 8 }

// Valid reports whether p is on the board.
func (p Point) Valid() bool { return p >= 0 && p < Points }

// Human returns the 1-based notation used by the analyze protocol.
func (p Point) Human() string { return fmt.Sprintf("%d", int(p)+1) }

// Token is the 2-bit content of a point.
type Token uint8

const (
	Empty Token = 0b00
	Black Token = 0b10
	White Token = 0b11
)

// Opponent swaps White and Black. Anything else maps to Empty.
func (t Token) Opponent() Token {
	switch t {
	case White:
		return Black
	case Black:
		return White
	default:
		return Empty
	}
}

// IsColor reports whether t is White or Black.
func (t Token) IsColor() bool { return t == White || t == Black }

func (t Token) String() string {
	switch t {
	case White:
		return "White"
	case Black:
		return "Black"
	default:
		return "Empty"
	}
}

// Char returns the snapshot character for the token.
func (t Token) Char() byte {
	switch t {
	case White:
		return 'W'
	case Black:
		return 'B'
	default:
		return 'E'
	}
}

// ParseColor parses "White"/"Black" (or "W"/"B"), case-insensitively.
func ParseColor(s string) (Token, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, nil
	case "black", "b":
		return Black, nil
	default:
		return Empty, fmt.Errorf("%w: unknown color %q", domain.ErrInvalidInput, s)
	}
}

// Board holds 24 tokens in the low 48 bits; point p lives at bits 46-2p.
type Board uint64

const boardMask Board = 1<<48 - 1

func shift(p Point) uint { return uint(46 - 2*int(p)) }

// At returns the token on p.
func (b Board) At(p Point) Token {
	return Token((b >> shift(p)) & 0b11)
}

// With returns a copy of b with p set to t.
func (b Board) With(p Point, t Token) Board {
	s := shift(p)
	return (b &^ (0b11 << s)) | Board(t&0b11)<<s
}

// Count returns the number of pieces of color c.
func (b Board) Count(c Token) int {
	n := 0
	for p := Point(0); p < Points; p++ {
		if b.At(p) == c {
			n++
		}
	}
	return n
}

// Empties lists the empty points in ascending order.
func (b Board) Empties() []Point {
	out := make([]Point, 0, Points)
	for p := Point(0); p < Points; p++ {
		if b.At(p) == Empty {
			out = append(out, p)
		}
	}
	return out
}

// PointsOf lists the points holding color c in ascending order.
func (b Board) PointsOf(c Token) []Point {
	out := make([]Point, 0, 9)
	for p := Point(0); p < Points; p++ {
		if b.At(p) == c {
			out = append(out, p)
		}
	}
	return out
}

// PointMobility returns the number of empty neighbours of p.
func (b Board) PointMobility(p Point) int {
	n := 0
	for _, q := range neighbours[p] {
		if b.At(q) == Empty {
			n++
		}
	}
	return n
}

// Mobility returns the number of sliding moves available to color c.
func (b Board) Mobility(c Token) int {
	n := 0
	for p := Point(0); p < Points; p++ {
		if b.At(p) == c {
			n += b.PointMobility(p)
		}
	}
	return n
}

// Reverse swaps the colours of every piece.
func (b Board) Reverse() Board {
	var out Board
	for p := Point(0); p < Points; p++ {
		out = out.With(p, b.At(p).Opponent())
	}
	return out
}

// Encode returns the 24-character E/B/W form in point order.
func (b Board) Encode() string {
	var sb strings.Builder
	sb.Grow(Points)
	for p := Point(0); p < Points; p++ {
		sb.WriteByte(b.At(p).Char())
	}
	return sb.String()
}

// Decode parses the 24-character E/B/W form. Surrounding whitespace is ignored.
func Decode(s string) (Board, error) {
	s = strings.TrimSpace(s)
	if len(s) != Points {
		return 0, fmt.Errorf("%w: board needs %d characters, got %d", domain.ErrSnapshotFormat, Points, len(s))
	}
	var b Board
	for i := 0; i < Points; i++ {
		var t Token
		switch s[i] {
		case 'W':
			t = White
		case 'B':
			t = Black
		case 'E':
			t = Empty
		default:
			return 0, fmt.Errorf("%w: invalid character %q at %d", domain.ErrSnapshotFormat, s[i], i)
		}
		b = b.With(Point(i), t)
	}
	return b & boardMask, nil
}

// MustDecode is Decode for literals in tests and tables; it panics on error.
func MustDecode(s string) Board {
	b, err := Decode(s)
	if err != nil {
		panic(err)
	}
	return b
}

// String renders the board as an ASCII diagram.
func (b Board) String() string {
	c := func(p Point) byte { return b.At(p).Char() }
	rows := []string{
		fmt.Sprintf("%c------------%c------------%c", c(7), c(0), c(1)),
		"|            |            |",
		fmt.Sprintf("|   %c--------%c--------%c   |", c(15), c(8), c(9)),
		"|   |        |        |   |",
		fmt.Sprintf("|   |   %c----%c----%c   |   |", c(23), c(16), c(17)),
		"|   |   |         |   |   |",
		fmt.Sprintf("%c---%c---%c         %c---%c---%c", c(6), c(14), c(22), c(18), c(10), c(2)),
		"|   |   |         |   |   |",
		fmt.Sprintf("|   |   %c----%c----%c   |   |", c(21), c(20), c(19)),
		"|   |        |        |   |",
		fmt.Sprintf("|   %c--------%c--------%c   |", c(13), c(12), c(11)),
		"|            |            |",
		fmt.Sprintf("%c------------%c------------%c", c(5), c(4), c(3)),
	}
	return strings.Join(rows, "\n")
}
