package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"muehle-agent/internal/domain"
)

// Default runner settings.
const (
	DefaultFPS      = 30
	DefaultMaxTraps = 5
)

// RunnerConfig configures the frame loop.
type RunnerConfig struct {
	FPS int
	// MaxTraps is the number of consecutive trapped or timed out frames
	// after which the loop stops.
	MaxTraps uint32
	// MaxFrames stops the loop after that many frames; 0 runs until the
	// context is done.
	MaxFrames int
}

// Runner ticks a guest at a fixed rate. Frames go through a circuit breaker
// that opens after MaxTraps consecutive guest failures; an open breaker ends
// the loop. Input errors returned by a frame do not count as failures.
type Runner struct {
	table   domain.ExportTable
	cfg     RunnerConfig
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *slog.Logger
}

// NewRunner creates a frame loop for table, typically an *Instance.
func NewRunner(table domain.ExportTable, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.MaxTraps == 0 {
		cfg.MaxTraps = DefaultMaxTraps
	}
	maxTraps := cfg.MaxTraps

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "guest-frame",
		MaxRequests: 1,
		// The loop ends as soon as the breaker opens; Timeout never elapses.
		Timeout: time.Hour,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxTraps
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !(errors.Is(err, domain.ErrGuestTrap) || errors.Is(err, domain.ErrTimeout))
		},
	})

	return &Runner{table: table, cfg: cfg, breaker: cb, logger: logger}
}

// Step runs one frame through the breaker.
func (r *Runner) Step(ctx context.Context) error {
	_, err := r.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, r.table.Frame(ctx)
	})
	return err
}

// Run ticks until ctx is done, MaxFrames is reached, the guest closes, or
// the breaker opens. It returns nil for the first two.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(r.cfg.FPS))
	defer ticker.Stop()

	frames := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		err := r.Step(ctx)
		frames++
		switch {
		case err == nil:
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return fmt.Errorf("%w: %d consecutive failed frames", domain.ErrGuestTrap, r.cfg.MaxTraps)
		case errors.Is(err, domain.ErrHostClosed):
			return err
		case errors.Is(err, domain.ErrGuestTrap), errors.Is(err, domain.ErrTimeout):
			r.logger.Warn("frame failed", "frame", frames, "error", err)
		default:
			r.logger.Debug("frame returned an error", "frame", frames, "error", err)
		}

		if r.cfg.MaxFrames > 0 && frames >= r.cfg.MaxFrames {
			return nil
		}
	}
}

// Stopped reports whether an error from Step means no further frames will
// run: the breaker is open or the guest has been closed.
func Stopped(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) ||
		errors.Is(err, domain.ErrHostClosed)
}

// State reports the breaker state.
func (r *Runner) State() gobreaker.State { return r.breaker.State() }
