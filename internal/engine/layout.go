package engine

import (
	"fmt"
	"math"

	"muehle-agent/internal/board"
	"muehle-agent/internal/domain"
)

// Logical canvas. The board image is square; the setup panel and the
// difficulty panel are stacked below it.
const (
	CanvasWidth       = 1280.0
	BoardHeight       = 1280.0
	SetupPanelHeight  = 80.0
	BottomPanelHeight = 240.0
	CanvasHeight      = BoardHeight + SetupPanelHeight + BottomPanelHeight

	// PieceSize is the edge of a piece sprite in logical pixels.
	PieceSize = 160.0
	// HitRadius is how far from a point's centre, on each axis, a click
	// still selects it.
	HitRadius = 65.0

	panelTop      = BoardHeight + SetupPanelHeight
	panelRowH     = 120.0
	panelColW     = CanvasWidth / 4
	restartLeft   = 1120.0
	restartTop    = BoardHeight
	restartBottom = BoardHeight + SetupPanelHeight
)

// Layout maps between window pixels and the logical canvas.
type Layout struct {
	Width, Height    float64
	Scale            float64
	OffsetX, OffsetY float64
}

// NewLayout fits the canvas into a width x height window, centred.
func NewLayout(width, height float64) Layout {
	if width <= 0 || height <= 0 {
		width, height = CanvasWidth, CanvasHeight
	}
	scale := width / CanvasWidth
	if width/height > CanvasWidth/CanvasHeight {
		scale = height / CanvasHeight
	}
	return Layout{
		Width:   width,
		Height:  height,
		Scale:   scale,
		OffsetX: (width - CanvasWidth*scale) / 2,
		OffsetY: (height - CanvasHeight*scale) / 2,
	}
}

// ToLogical converts window coordinates to canvas coordinates.
func (l Layout) ToLogical(x, y float64) (float64, float64) {
	return (x - l.OffsetX) / l.Scale, (y - l.OffsetY) / l.Scale
}

// ToScreen converts canvas coordinates to window coordinates.
func (l Layout) ToScreen(lx, ly float64) (float64, float64) {
	return lx*l.Scale + l.OffsetX, ly*l.Scale + l.OffsetY
}

// PointCenter returns the logical centre of p.
func PointCenter(p board.Point) (x, y float64) {
	ring := float64(p.Ring())
	near := 170 + 160*ring
	far := 1110 - 160*ring
	switch p.Slot() {
	case 0:
		return 640, near
	case 1:
		return far, near
	case 2:
		return far, 640
	case 3:
		return far, far
	case 4:
		return 640, far
	case 5:
		return near, far
	case 6:
		return near, 640
	default:
		return near, near
	}
}

// PointAt returns the point whose hit square, HitRadius either side of its
// centre, contains (lx, ly).
func PointAt(lx, ly float64) (board.Point, error) {
	for p := board.Point(0); p < board.Points; p++ {
		cx, cy := PointCenter(p)
		if math.Abs(lx-cx) <= HitRadius && math.Abs(ly-cy) <= HitRadius {
			return p, nil
		}
	}
	return -1, fmt.Errorf("%w: (%.0f, %.0f)", domain.ErrOffBoard, lx, ly)
}

// PanelIndexAt returns row*4+col of the difficulty panel cell under
// (lx, ly). Row 0 is White, row 1 is Black; columns are Off..Hard.
func PanelIndexAt(lx, ly float64) (int, bool) {
	if lx < 0 || lx >= CanvasWidth || ly < panelTop || ly >= CanvasHeight {
		return 0, false
	}
	row := int((ly - panelTop) / panelRowH)
	col := int(lx / panelColW)
	return row*4 + col, true
}

// RestartHit reports whether (lx, ly) is on the restart button.
func RestartHit(lx, ly float64) bool {
	return lx >= restartLeft && lx <= CanvasWidth && ly >= restartTop && ly <= restartBottom
}
