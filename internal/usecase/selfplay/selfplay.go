// Package selfplay plays computer-vs-computer games and records them in the
// game history.
package selfplay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"muehle-agent/internal/agent"
	"muehle-agent/internal/board"
	"muehle-agent/internal/domain"
	"muehle-agent/internal/game"
	"muehle-agent/internal/usecase/scheduling"
)

// DefaultMaxPlies ends a game as a draw when Options.MaxPlies is unset.
const DefaultMaxPlies = 200

// Mover computes the next action for the side to move.
type Mover interface {
	ComputeStepForSession(ctx context.Context, sessionID string, g *game.Game, d agent.Difficulty) (*game.Action, error)
}

// Recorder counts finished games.
type Recorder interface {
	GameFinished(winner string)
}

// Options selects the players and limits of a batch.
type Options struct {
	Games    int
	White    agent.Difficulty
	Black    agent.Difficulty
	MaxPlies int
}

// Summary is the outcome of a batch.
type Summary struct {
	Games     []domain.GameRecord `json:"games"`
	WhiteWins int                 `json:"white_wins"`
	BlackWins int                 `json:"black_wins"`
	Draws     int                 `json:"draws"`
}

// Deps holds injected dependencies for the runner.
type Deps struct {
	Mover    Mover
	Store    domain.GameStore
	Bus      domain.EventBus // optional
	Recorder Recorder        // optional
	Logger   *slog.Logger
	Defaults Options
}

// Runner plays self-play batches.
type Runner struct {
	deps Deps
}

// New creates a runner.
func New(deps Deps) *Runner {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Defaults.Games <= 0 {
		deps.Defaults.Games = 1
	}
	if deps.Defaults.White == agent.Off {
		deps.Defaults.White = agent.Medium
	}
	if deps.Defaults.Black == agent.Off {
		deps.Defaults.Black = agent.Medium
	}
	if deps.Defaults.MaxPlies <= 0 {
		deps.Defaults.MaxPlies = DefaultMaxPlies
	}
	return &Runner{deps: deps}
}

// Run plays opts.Games games one after another. Zero fields in opts take the
// runner's defaults. A cancelled context stops the batch between turns; the
// games finished so far are returned with the error.
func (r *Runner) Run(ctx context.Context, opts Options) (Summary, error) {
	opts = r.withDefaults(opts)
	var sum Summary

	for i := 0; i < opts.Games; i++ {
		rec, err := r.PlayGame(ctx, opts.White, opts.Black, opts.MaxPlies)
		if err != nil {
			return sum, fmt.Errorf("selfplay game %d: %w", i+1, err)
		}
		sum.Games = append(sum.Games, rec)
		switch rec.Winner {
		case domain.ResultWhite:
			sum.WhiteWins++
		case domain.ResultBlack:
			sum.BlackWins++
		default:
			sum.Draws++
		}
	}

	r.deps.Logger.Info("selfplay batch finished",
		"games", len(sum.Games),
		"white_wins", sum.WhiteWins,
		"black_wins", sum.BlackWins,
		"draws", sum.Draws,
	)
	if r.deps.Bus != nil {
		r.deps.Bus.Publish(ctx, domain.NewEvent(domain.EventSelfPlayFinished, "", sum))
	}
	return sum, nil
}

func (r *Runner) withDefaults(opts Options) Options {
	d := r.deps.Defaults
	if opts.Games <= 0 {
		opts.Games = d.Games
	}
	if opts.White == agent.Off {
		opts.White = d.White
	}
	if opts.Black == agent.Off {
		opts.Black = d.Black
	}
	if opts.MaxPlies <= 0 {
		opts.MaxPlies = d.MaxPlies
	}
	return opts
}

// PlayGame plays one game from the initial position and stores every turn.
func (r *Runner) PlayGame(ctx context.Context, white, black agent.Difficulty, maxPlies int) (domain.GameRecord, error) {
	rec, err := r.deps.Store.CreateGame(ctx, domain.GameRecord{
		Source: domain.SourceSelfPlay,
		White:  white.String(),
		Black:  black.String(),
	})
	if err != nil {
		return rec, err
	}
	logger := r.deps.Logger.With("game_id", rec.ID)
	logger.Debug("selfplay game started", "white", white, "black", black)

	g := game.New()
	ply := 0
	winner := domain.ResultDraw
	for {
		if g.State() == game.Win {
			winner = g.Winner().String()
			break
		}
		if ply >= maxPlies {
			break
		}

		color := g.Turn()
		d := white
		if color == board.Black {
			d = black
		}
		act, err := r.deps.Mover.ComputeStepForSession(ctx, rec.ID, g.Clone(), d)
		if errors.Is(err, domain.ErrNoMoves) {
			// The side to move is stuck, which only happens when it cannot
			// complete a capture.
			winner = color.Opponent().String()
			break
		}
		if err != nil {
			return rec, err
		}
		if err := g.Apply(*act); err != nil {
			return rec, fmt.Errorf("apply %s for %s: %w", act, color, err)
		}

		ply++
		if err := r.deps.Store.AppendMove(ctx, rec.ID, moveRecord(ply, color, *act, g.Board())); err != nil {
			return rec, err
		}
	}

	final := g.Board().Encode()
	if err := r.deps.Store.FinishGame(ctx, rec.ID, winner, final, ply); err != nil {
		return rec, err
	}
	now := time.Now().UTC()
	rec.Winner, rec.Plies, rec.FinalBoard, rec.FinishedAt = winner, ply, final, &now

	logger.Info("selfplay game finished", "winner", winner, "plies", ply)
	if r.deps.Recorder != nil {
		r.deps.Recorder.GameFinished(winner)
	}
	if r.deps.Bus != nil {
		r.deps.Bus.Publish(ctx, domain.NewEvent(domain.EventGameFinished, rec.ID, domain.GameFinishedPayload{
			GameID: rec.ID,
			Winner: winner,
			Plies:  ply,
			Board:  final,
		}))
	}
	return rec, nil
}

func moveRecord(ply int, color board.Token, a game.Action, after board.Board) domain.MoveRecord {
	mv := domain.MoveRecord{
		Ply:   ply,
		Color: color.String(),
		To:    int(a.To),
		Board: after.Encode(),
	}
	if a.From != nil {
		from := int(*a.From)
		mv.From = &from
	}
	if a.Capture != nil {
		c := int(*a.Capture)
		mv.Capture = &c
	}
	return mv
}

// Action adapts the runner to a scheduler action. Task fields override the
// runner's defaults; unknown difficulty names fail the run.
func (r *Runner) Action() scheduling.ActionFunc {
	return func(ctx context.Context, task scheduling.ScheduledTask) error {
		opts := Options{Games: task.Games}
		var err error
		if task.White != "" {
			if opts.White, err = agent.ParseDifficulty(task.White); err != nil {
				return err
			}
		}
		if task.Black != "" {
			if opts.Black, err = agent.ParseDifficulty(task.Black); err != nil {
				return err
			}
		}
		_, err = r.Run(ctx, opts)
		return err
	}
}
