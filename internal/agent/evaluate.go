package agent

import "muehle-agent/internal/board"

// WinScore is the magnitude of a decided position. Wins found sooner score
// higher because the step is subtracted.
const WinScore int64 = 1 << 30

const (
	pieceWeight    = 1000
	mobilityWeight = 1
)

// Evaluate scores b from White's point of view.
func Evaluate(b board.Board, ph Phase) int64 {
	if score, ok := terminal(b, ph); ok {
		return score
	}
	wc, bc := int64(b.Count(board.White)), int64(b.Count(board.Black))
	wm, bm := int64(b.Mobility(board.White)), int64(b.Mobility(board.Black))
	return pieceWeight*(wc-bc) + mobilityWeight*(wm-bm)
}

// terminal reports the decided score of b in the movement phase.
func terminal(b board.Board, ph Phase) (int64, bool) {
	if ph.Kind != PhaseMove {
		return 0, false
	}
	if lost(b, board.Black) {
		return WinScore - int64(ph.Step), true
	}
	if lost(b, board.White) {
		return -WinScore + int64(ph.Step), true
	}
	return 0, false
}

func lost(b board.Board, c board.Token) bool {
	n := b.Count(c)
	return n < 3 || (n > 3 && b.Mobility(c) == 0)
}

// IsDecisive reports whether score is a forced win or loss.
func IsDecisive(score int64) bool {
	return score >= WinScore-1<<16 || score <= -WinScore+1<<16
}
