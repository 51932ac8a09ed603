package components

import (
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"muehle-agent/internal/adapter/tui/theme"
	"muehle-agent/internal/agent"
	"muehle-agent/internal/board"
	"muehle-agent/internal/engine"
)

// Mark is what a scene shows on one point.
type Mark int

const (
	MarkNone Mark = iota
	MarkWhite
	MarkBlack
	// MarkTarget is an empty point the player may place or drop on.
	MarkTarget
)

// Cell is the decoded state of one point.
type Cell struct {
	Mark      Mark
	Highlight bool // movable piece or legal destination
	Capture   bool // capturable piece, or the winner's pieces
}

// BoardView is a scene decoded back into board terms. It only relies on
// sprite names and positions, so it works for any guest that draws with
// the standard image keys.
type BoardView struct {
	Cells [board.Points]Cell
	// Carry is the piece following the pointer, MarkNone when nothing is held.
	Carry     Mark
	SetupLeft int // -1 when the scene has no setup panel
	Panel     int // white*4+black, -1 when the scene has no difficulty panel

	State, Turn, Winner string
	Thinking            bool
	Frame               uint64
}

// Difficulties returns the names of both players' levels.
func (v BoardView) Difficulties() (white, black string, ok bool) {
	if v.Panel < 0 {
		return "", "", false
	}
	return strings.ToLower(agent.Difficulty(v.Panel / 4).String()),
		strings.ToLower(agent.Difficulty(v.Panel % 4).String()), true
}

// centerTolerance is how far in logical pixels a sprite may be off a point
// centre and still count as drawn on that point.
const centerTolerance = 0.5

// ReadScene decodes the sprites of s.
func ReadScene(s engine.Scene) BoardView {
	v := BoardView{
		SetupLeft: -1,
		Panel:     -1,
		State:     s.State,
		Turn:      s.Turn,
		Winner:    s.Winner,
		Thinking:  s.Thinking,
		Frame:     s.Frame,
	}
	layout := engine.NewLayout(s.Width, s.Height)

	for _, sp := range s.Sprites {
		if n, ok := panelNumber(sp.Image, "bottom panel setup "); ok {
			v.SetupLeft = n
			continue
		}
		if n, ok := panelNumber(sp.Image, "bottom panel "); ok {
			v.Panel = n
			continue
		}
		cell, ok := parseImage(sp.Image)
		if !ok {
			continue
		}
		lx, ly := layout.ToLogical(sp.X, sp.Y)
		cx, cy := lx+engine.PieceSize/2, ly+engine.PieceSize/2
		p, err := engine.PointAt(cx, cy)
		if err == nil {
			px, py := engine.PointCenter(p)
			if math.Abs(px-cx) <= centerTolerance && math.Abs(py-cy) <= centerTolerance {
				v.Cells[p] = cell
				continue
			}
		}
		// Pieces off a point centre follow the pointer.
		if cell.Mark == MarkWhite || cell.Mark == MarkBlack {
			v.Carry = cell.Mark
		}
	}
	return v
}

func panelNumber(image, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(image, prefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	return n, err == nil
}

func parseImage(image string) (Cell, bool) {
	switch image {
	case "white":
		return Cell{Mark: MarkWhite}, true
	case "black":
		return Cell{Mark: MarkBlack}, true
	case "white outlined":
		return Cell{Mark: MarkWhite, Highlight: true}, true
	case "black outlined":
		return Cell{Mark: MarkBlack, Highlight: true}, true
	case "take white":
		return Cell{Mark: MarkWhite, Capture: true}, true
	case "take black":
		return Cell{Mark: MarkBlack, Capture: true}, true
	case "empty white outlined", "empty black outlined", engine.ImageOutline:
		return Cell{Mark: MarkTarget, Highlight: true}, true
	}
	return Cell{}, false
}

// Board grid: three nested squares on a 7x7 lattice, drawn 4 columns and
// 2 rows per lattice step.
const (
	gridCols = 6*4 + 1
	gridRows = 6*2 + 1
)

// GridPos returns the lattice coordinates of p, both in 0..6.
func GridPos(p board.Point) (gx, gy int) {
	near, far := p.Ring(), 6-p.Ring()
	switch p.Slot() {
	case 0:
		return 3, near
	case 1:
		return far, near
	case 2:
		return far, 3
	case 3:
		return far, far
	case 4:
		return 3, far
	case 5:
		return near, far
	case 6:
		return near, 3
	default:
		return near, near
	}
}

// Move returns the point nearest to from in direction (dx, dy), one of
// which is zero. It returns from when nothing lies that way.
func Move(from board.Point, dx, dy int) board.Point {
	fx, fy := GridPos(from)
	best, bestCost := from, math.MaxInt
	for p := board.Point(0); p < board.Points; p++ {
		x, y := GridPos(p)
		along, across := (x-fx)*dx+(y-fy)*dy, abs((x-fx)*dy)+abs((y-fy)*dx)
		if along <= 0 {
			continue
		}
		if cost := along + 3*across; cost < bestCost {
			best, bestCost = p, cost
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// RenderBoard draws v as text. The cursor point is shown in reverse video
// when showCursor is set.
func RenderBoard(v BoardView, cursor board.Point, showCursor bool) string {
	var grid [gridRows][gridCols]string
	for y := range grid {
		for x := range grid[y] {
			grid[y][x] = " "
		}
	}
	hline := func(row, from, to int) {
		for x := from; x <= to; x++ {
			grid[row][x] = theme.Line.Render(theme.Symbols.LineH)
		}
	}
	vline := func(col, from, to int) {
		for y := from; y <= to; y++ {
			grid[y][col] = theme.Line.Render(theme.Symbols.LineV)
		}
	}
	for r := 0; r < 3; r++ {
		near, far := r, 6-r
		hline(near*2, near*4, far*4)
		hline(far*2, near*4, far*4)
		vline(near*4, near*2, far*2)
		vline(far*4, near*2, far*2)
	}
	vline(12, 0, 4)
	vline(12, 8, 12)
	hline(6, 0, 8)
	hline(6, 16, 24)

	for p := board.Point(0); p < board.Points; p++ {
		gx, gy := GridPos(p)
		glyph := cellGlyph(v.Cells[p])
		if showCursor && p == cursor {
			glyph = theme.Cursor.Render(cellText(v.Cells[p]))
		}
		grid[gy*2][gx*4] = glyph
	}

	lines := make([]string, gridRows)
	for y := range grid {
		lines[y] = strings.Join(grid[y][:], "")
	}
	return theme.BoardFrame.Render(strings.Join(lines, "\n"))
}

func cellText(c Cell) string {
	switch c.Mark {
	case MarkWhite:
		return theme.Symbols.White
	case MarkBlack:
		return theme.Symbols.Black
	case MarkTarget:
		return theme.Symbols.Target
	}
	return theme.Symbols.Point
}

func cellGlyph(c Cell) string {
	text := cellText(c)
	var style lipgloss.Style
	switch {
	case c.Capture:
		style = theme.Capture
	case c.Highlight:
		style = theme.Highlight
	case c.Mark == MarkWhite:
		style = theme.PieceWhite
	case c.Mark == MarkBlack:
		style = theme.PieceBlack
	default:
		style = theme.Line
	}
	return style.Render(text)
}

// MarkName is the player name for a piece mark.
func MarkName(m Mark) string {
	switch m {
	case MarkWhite:
		return "white"
	case MarkBlack:
		return "black"
	}
	return ""
}
