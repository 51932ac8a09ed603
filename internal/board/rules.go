package board

// Mill is a line of three points.
type Mill [3]Point

var (
	neighbours [Points][]Point
	mills      []Mill
	millsOf    [Points][]Mill
)

func init() {
	for p := Point(0); p < Points; p++ {
		ring, slot := p.Ring(), p.Slot()
		neighbours[p] = append(neighbours[p],
			Point(ring*8+(slot+1)%8),
			Point(ring*8+(slot+7)%8),
		)
		if slot%2 == 0 {
			if ring > 0 {
				neighbours[p] = append(neighbours[p], p-8)
			}
			if ring < 2 {
				neighbours[p] = append(neighbours[p], p+8)
			}
		}
	}

	for ring := 0; ring < 3; ring++ {
		base := Point(ring * 8)
		mills = append(mills,
			Mill{base + 7, base + 0, base + 1},
			Mill{base + 1, base + 2, base + 3},
			Mill{base + 3, base + 4, base + 5},
			Mill{base + 5, base + 6, base + 7},
		)
	}
	for _, s := range []Point{0, 2, 4, 6} {
		mills = append(mills, Mill{s, s + 8, s + 16})
	}

	for _, m := range mills {
		for _, p := range m {
			millsOf[p] = append(millsOf[p], m)
		}
	}
}

// Neighbours returns the points adjacent to p.
func Neighbours(p Point) []Point { return neighbours[p] }

// Mills returns all 16 lines.
func Mills() []Mill { return mills }

// MillsThrough returns the lines that contain p.
func MillsThrough(p Point) []Mill { return millsOf[p] }

// IsAdjacent reports whether a and b are connected by a line segment.
func IsAdjacent(a, b Point) bool {
	for _, q := range neighbours[a] {
		if q == b {
			return true
		}
	}
	return false
}

// Closed reports whether every point of m holds color c.
func (m Mill) Closed(b Board, c Token) bool {
	return b.At(m[0]) == c && b.At(m[1]) == c && b.At(m[2]) == c
}

// IsPartOfMill reports whether p holds c and lies in a closed mill of c.
func (b Board) IsPartOfMill(p Point, c Token) bool {
	if b.At(p) != c {
		return false
	}
	for _, m := range millsOf[p] {
		if m.Closed(b, c) {
			return true
		}
	}
	return false
}

// MillCount returns the number of closed mills of color c.
func (b Board) MillCount(c Token) int {
	n := 0
	for _, m := range mills {
		if m.Closed(b, c) {
			n++
		}
	}
	return n
}

// IsMillClosing reports whether after contains a closed mill of c that is
// not closed in before.
func IsMillClosing(before, after Board, c Token) bool {
	for _, m := range mills {
		if m.Closed(after, c) && !m.Closed(before, c) {
			return true
		}
	}
	return false
}

// CanCapture reports whether attacker may remove the piece on p. Pieces in a
// mill are protected unless every piece of their owner is in a mill.
func (b Board) CanCapture(p Point, attacker Token) bool {
	victim := attacker.Opponent()
	if victim == Empty || b.At(p) != victim {
		return false
	}
	if !b.IsPartOfMill(p, victim) {
		return true
	}
	for q := Point(0); q < Points; q++ {
		if b.At(q) == victim && !b.IsPartOfMill(q, victim) {
			return false
		}
	}
	return true
}

// CapturablePoints lists every point attacker may capture.
func (b Board) CapturablePoints(attacker Token) []Point {
	var out []Point
	for p := Point(0); p < Points; p++ {
		if b.CanCapture(p, attacker) {
			out = append(out, p)
		}
	}
	return out
}

// IsMoveValid reports whether a piece on from may move to to on board b,
// where pieceCount is the mover's number of pieces including the moving one.
// A side with exactly three pieces flies.
func (b Board) IsMoveValid(from, to Point, pieceCount int) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	if b.At(to) != Empty {
		return false
	}
	return pieceCount == 3 || IsAdjacent(from, to)
}

// Loser returns the color that has lost on b once the setup phase is over,
// or Empty. White is checked first.
func (b Board) Loser() Token {
	if lost(b, White) {
		return White
	}
	if lost(b, Black) {
		return Black
	}
	return Empty
}

func lost(b Board, c Token) bool {
	n := b.Count(c)
	return n < 3 || (n > 3 && b.Mobility(c) == 0)
}
