package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"muehle-agent/internal/domain"
	"muehle-agent/internal/game"
	"muehle-agent/internal/infra/tracer"
)

// Difficulty selects the search limits for a computer player.
type Difficulty int

const (
	Off Difficulty = iota
	Easy
	Medium
	Hard
)

var difficultyNames = [...]string{"Off", "Easy", "Medium", "Hard"}

func (d Difficulty) String() string {
	if d < Off || d > Hard {
		return fmt.Sprintf("Difficulty(%d)", int(d))
	}
	return difficultyNames[d]
}

// ParseDifficulty accepts the names case-insensitively.
func ParseDifficulty(s string) (Difficulty, error) {
	for i, n := range difficultyNames {
		if strings.EqualFold(s, n) {
			return Difficulty(i), nil
		}
	}
	return Off, fmt.Errorf("%w: unknown difficulty %q", domain.ErrInvalidInput, s)
}

// Levels maps each playing difficulty to its search limits.
type Levels map[Difficulty]Limits

// DefaultLevels returns the built-in limits.
func DefaultLevels() Levels {
	return Levels{
		Easy:   {MaxDepth: 1},
		Medium: {MaxDepth: 3},
		Hard:   {MaxDepth: DefaultMaxDepth, TimeBudget: 980 * time.Millisecond},
	}
}

// Recorder receives search measurements.
type Recorder interface {
	ObserveSearch(difficulty string, res Result, err error)
}

// Deps holds injected dependencies for the agent.
type Deps struct {
	Searcher *Searcher
	Levels   Levels
	Logger   *slog.Logger
	Bus      domain.EventBus // optional, nil = no events
	Recorder Recorder        // optional, nil = no metrics
}

// Agent picks moves for computer-controlled players.
type Agent struct {
	deps Deps
}

// New creates an agent, filling in defaults for missing dependencies.
func New(deps Deps) *Agent {
	if deps.Searcher == nil {
		deps.Searcher = NewSearcher(0)
	}
	if deps.Levels == nil {
		deps.Levels = DefaultLevels()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Agent{deps: deps}
}

// Limits returns the search limits configured for d.
func (a *Agent) Limits(d Difficulty) (Limits, bool) {
	lim, ok := a.deps.Levels[d]
	return lim, ok
}

// ComputeStep returns the action the computer plays in g at difficulty d,
// or nil when d is Off.
func (a *Agent) ComputeStep(ctx context.Context, g *game.Game, d Difficulty) (*game.Action, error) {
	return a.ComputeStepForSession(ctx, "", g, d)
}

// ComputeStepForSession is ComputeStep with events tagged for a session.
func (a *Agent) ComputeStepForSession(ctx context.Context, sessionID string, g *game.Game, d Difficulty) (*game.Action, error) {
	if d == Off {
		return nil, nil
	}
	res, err := a.Analyze(ctx, sessionID, g, d)
	if err != nil {
		return nil, err
	}
	return &res.Action, nil
}

// Analyze runs a search at difficulty d and returns the full result.
func (a *Agent) Analyze(ctx context.Context, sessionID string, g *game.Game, d Difficulty) (Result, error) {
	lim, ok := a.deps.Levels[d]
	if !ok {
		return Result{}, fmt.Errorf("%w: no limits for difficulty %s", domain.ErrInvalidInput, d)
	}
	return a.run(ctx, sessionID, g, d.String(), lim)
}

// AnalyzeWithLimits runs a search with explicit limits.
func (a *Agent) AnalyzeWithLimits(ctx context.Context, g *game.Game, lim Limits) (Result, error) {
	return a.run(ctx, "", g, "custom", lim)
}

func (a *Agent) run(ctx context.Context, sessionID string, g *game.Game, label string, lim Limits) (Result, error) {
	color := g.Turn().String()
	ctx, span := tracer.StartSpan(ctx, "agent.search",
		trace.WithAttributes(
			tracer.StringAttr("agent.color", color),
			tracer.StringAttr("agent.difficulty", label),
			tracer.IntAttr("agent.max_depth", lim.MaxDepth),
		),
	)
	defer span.End()

	a.publishEvent(ctx, domain.EventSearchStarted, sessionID, domain.SearchPayload{Color: color, Difficulty: label})

	res, err := a.deps.Searcher.Search(ctx, g, lim)
	if a.deps.Recorder != nil {
		a.deps.Recorder.ObserveSearch(label, res, err)
	}
	if err != nil {
		tracer.RecordError(span, err)
		a.deps.Logger.Warn("search failed", "color", color, "difficulty", label, "error", err)
		a.publishEvent(ctx, domain.EventSearchFailed, sessionID, domain.SearchPayload{Color: color, Difficulty: label})
		return res, err
	}

	span.SetAttributes(
		tracer.IntAttr("agent.depth", res.Depth),
		tracer.Int64Attr("agent.nodes", res.Nodes),
	)
	tracer.SetOK(span)

	a.deps.Logger.Debug("search completed",
		"color", color,
		"difficulty", label,
		"action", res.Action.String(),
		"score", res.Score,
		"depth", res.Depth,
		"nodes", res.Nodes,
		"elapsed", res.Elapsed,
	)
	a.publishEvent(ctx, domain.EventSearchCompleted, sessionID, domain.SearchPayload{
		Color:      color,
		Difficulty: label,
		Depth:      res.Depth,
		Nodes:      res.Nodes,
		Score:      res.Score,
		ElapsedMS:  res.Elapsed.Milliseconds(),
	})
	return res, nil
}

func (a *Agent) publishEvent(ctx context.Context, typ domain.EventType, sessionID string, payload any) {
	if a.deps.Bus == nil {
		return
	}
	a.deps.Bus.Publish(ctx, domain.NewEvent(typ, sessionID, payload))
}
