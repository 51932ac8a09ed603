package agent

import (
	"context"
	"errors"
	"math"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"muehle-agent/internal/board"
	"muehle-agent/internal/domain"
	"muehle-agent/internal/game"
)

// DefaultMaxDepth bounds iterative deepening when no depth limit is given.
const DefaultMaxDepth = 64

// checkInterval is how many nodes a walker visits between deadline checks.
const checkInterval = 1024

// Limits bound a single search.
type Limits struct {
	MaxDepth   int
	TimeBudget time.Duration
}

// Result describes the outcome of a search.
type Result struct {
	Action  game.Action
	Score   int64
	Depth   int // deepest fully completed iteration; 0 means fallback move
	Nodes   int64
	Elapsed time.Duration
}

// Searcher runs iterative-deepening alpha-beta with a parallel root.
type Searcher struct {
	workers int
}

// NewSearcher returns a searcher that evaluates at most workers root moves
// at once. workers <= 0 means GOMAXPROCS.
func NewSearcher(workers int) *Searcher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Searcher{workers: workers}
}

// Search picks an action for the player to move in g. g is not modified.
func (s *Searcher) Search(ctx context.Context, g *game.Game, lim Limits) (Result, error) {
	start := time.Now()

	if g.State() == game.Win {
		return Result{}, domain.NewDomainError("Searcher.Search", domain.ErrGameOver, "")
	}
	cands := Candidates(g)
	if len(cands) == 0 {
		return Result{}, domain.NewDomainError("Searcher.Search", domain.ErrNoMoves, g.Turn().String())
	}

	color := g.Turn()
	childPhase := PhaseOf(g)
	if g.State() != game.Take {
		childPhase = childPhase.Next()
	}
	maximizing := color == board.White

	order(cands, maximizing, func(c Candidate) int64 { return Evaluate(c.Board, childPhase) })

	res := Result{Action: cands[0].Action, Score: Evaluate(cands[0].Board, childPhase)}

	if lim.TimeBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, lim.TimeBudget)
		defer cancel()
	}
	maxDepth := lim.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	var nodes atomic.Int64
	for depth := 1; depth <= maxDepth; depth++ {
		scores, err := s.searchRoot(ctx, cands, depth, color.Opponent(), childPhase, &nodes)
		if err != nil {
			if errors.Is(err, domain.ErrSearchTimeout) {
				break
			}
			return res, err
		}

		best := 0
		for i := 1; i < len(scores); i++ {
			if (maximizing && scores[i] > scores[best]) || (!maximizing && scores[i] < scores[best]) {
				best = i
			}
		}
		res.Action = cands[best].Action
		res.Score = scores[best]
		res.Depth = depth

		if len(cands) == 1 || IsDecisive(res.Score) {
			break
		}

		// Search the previous iteration's best lines first next time.
		byScore := make(map[board.Board]int64, len(cands))
		for i, c := range cands {
			byScore[c.Board] = scores[i]
		}
		order(cands, maximizing, func(c Candidate) int64 { return byScore[c.Board] })
	}

	res.Nodes = nodes.Load()
	res.Elapsed = time.Since(start)
	return res, nil
}

func (s *Searcher) searchRoot(ctx context.Context, cands []Candidate, depth int, next board.Token, ph Phase, nodes *atomic.Int64) ([]int64, error) {
	if ctx.Err() != nil {
		return nil, domain.ErrSearchTimeout
	}
	scores := make([]int64, len(cands))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workers)
	for i, c := range cands {
		i, c := i, c
		eg.Go(func() error {
			w := &walker{ctx: egCtx}
			score, err := w.minimax(c.Board, depth-1, math.MinInt64, math.MaxInt64, next, ph)
			nodes.Add(w.nodes)
			if err != nil {
				return err
			}
			scores[i] = score
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// order sorts cands best-first for the mover, keeping the existing order on ties.
func order(cands []Candidate, maximizing bool, score func(Candidate) int64) {
	keys := make(map[board.Board]int64, len(cands))
	for _, c := range cands {
		keys[c.Board] = score(c)
	}
	slices.SortStableFunc(cands, func(a, b Candidate) int {
		ka, kb := keys[a.Board], keys[b.Board]
		if maximizing {
			ka, kb = kb, ka
		}
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		default:
			return 0
		}
	})
}

// walker is the per-goroutine state of one alpha-beta descent.
type walker struct {
	ctx   context.Context
	nodes int64
}

type scored struct {
	b     board.Board
	score int64
}

func (w *walker) minimax(b board.Board, depth int, alpha, beta int64, color board.Token, ph Phase) (int64, error) {
	w.nodes++
	if w.nodes%checkInterval == 0 && w.ctx.Err() != nil {
		return 0, domain.ErrSearchTimeout
	}

	if score, ok := terminal(b, ph); ok {
		return score, nil
	}
	if depth == 0 {
		return Evaluate(b, ph), nil
	}

	next := ph.Next()
	maximizing := color == board.White
	children := make([]scored, 0, 32)
	expand(b, color, ph, func(nb board.Board, _, _, _ board.Point) {
		children = append(children, scored{b: nb, score: Evaluate(nb, next)})
	})
	if len(children) == 0 {
		return Evaluate(b, ph), nil
	}
	slices.SortStableFunc(children, func(x, y scored) int {
		if maximizing {
			return compare(y.score, x.score)
		}
		return compare(x.score, y.score)
	})

	if maximizing {
		best := int64(math.MinInt64)
		for _, c := range children {
			v, err := w.minimax(c.b, depth-1, alpha, beta, color.Opponent(), next)
			if err != nil {
				return 0, err
			}
			best = max(best, v)
			alpha = max(alpha, v)
			if beta <= alpha {
				break
			}
		}
		return best, nil
	}

	best := int64(math.MaxInt64)
	for _, c := range children {
		v, err := w.minimax(c.b, depth-1, alpha, beta, color.Opponent(), next)
		if err != nil {
			return 0, err
		}
		best = min(best, v)
		beta = min(beta, v)
		if beta <= alpha {
			break
		}
	}
	return best, nil
}

func compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
