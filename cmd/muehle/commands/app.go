package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"muehle-agent/internal/adapter/store"
	"muehle-agent/internal/agent"
	"muehle-agent/internal/host"
	"muehle-agent/internal/infra/config"
	"muehle-agent/internal/infra/logger"
	"muehle-agent/internal/infra/metrics"
	"muehle-agent/internal/infra/netguard"
	"muehle-agent/internal/infra/tracer"
	"muehle-agent/internal/usecase/eventbus"
	"muehle-agent/internal/usecase/selfplay"
)

// App holds the components shared by every command. Expensive parts (the
// game store) are opened on first use.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Bus     *eventbus.Bus
	Metrics *metrics.Metrics // nil when disabled
	Agent   *agent.Agent

	store   *store.SQLiteGameStore
	closers []func(context.Context) error
}

// newApp loads the configuration and builds the ambient stack. A terminal
// UI owns the screen, so tui moves logs that would go to the terminal into
// a file next to the game store.
func newApp(ctx context.Context, path string, tui bool) (*App, error) {
	// --- Config ---
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if tui {
		switch strings.ToLower(cfg.Logger.Output) {
		case "", "stdout", "stderr":
			cfg.Logger.Output = filepath.Join(filepath.Dir(cfg.Store.Path), "muehle.log")
			if err := os.MkdirAll(filepath.Dir(cfg.Logger.Output), 0o700); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
	}

	// --- Logger & Tracer ---
	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	slog.SetDefault(log)

	a := &App{Config: cfg, Logger: log}
	a.closers = append(a.closers, func(context.Context) error { return closeLog() })

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("setup tracer: %w", err)
	}
	a.closers = append(a.closers, shutdownTracer)

	// --- Event bus ---
	a.Bus = eventbus.New(log)
	a.closers = append(a.closers, func(context.Context) error {
		a.Bus.Close()
		if n := a.Bus.Dropped(); n > 0 {
			log.Warn("events dropped", "count", n)
		}
		return nil
	})

	// --- Metrics ---
	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New(cfg.Metrics.Namespace)
	}

	// --- Agent ---
	levels, err := levelsFromConfig(cfg.Agent.Levels)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	deps := agent.Deps{
		Searcher: agent.NewSearcher(cfg.Agent.Workers),
		Levels:   levels,
		Logger:   log,
		Bus:      a.Bus,
	}
	if a.Metrics != nil {
		deps.Recorder = a.Metrics
	}
	a.Agent = agent.New(deps)

	log.Debug("app ready", "config", path, "store", cfg.Store.Path)
	return a, nil
}

// levelsFromConfig overrides the default search budgets with the
// configured ones.
func levelsFromConfig(cfgLevels map[string]config.LevelConfig) (agent.Levels, error) {
	levels := agent.DefaultLevels()
	for name, lc := range cfgLevels {
		d, err := agent.ParseDifficulty(name)
		if err != nil {
			return nil, fmt.Errorf("agent.levels: %w", err)
		}
		levels[d] = agent.Limits{MaxDepth: lc.MaxDepth, TimeBudget: lc.TimeBudget}
	}
	return levels, nil
}

// Store opens the game store on first use.
func (a *App) Store() (*store.SQLiteGameStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	if err := os.MkdirAll(filepath.Dir(a.Config.Store.Path), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewSQLiteGameStore(a.Config.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open game store: %w", err)
	}
	a.store = st
	a.closers = append(a.closers, func(context.Context) error { return st.Close() })
	return st, nil
}

// SelfPlay builds a self-play runner over the game store.
func (a *App) SelfPlay() (*selfplay.Runner, error) {
	st, err := a.Store()
	if err != nil {
		return nil, err
	}
	white, err := agent.ParseDifficulty(a.Config.SelfPlay.White)
	if err != nil {
		return nil, fmt.Errorf("selfplay.white: %w", err)
	}
	black, err := agent.ParseDifficulty(a.Config.SelfPlay.Black)
	if err != nil {
		return nil, fmt.Errorf("selfplay.black: %w", err)
	}
	deps := selfplay.Deps{
		Mover:  a.Agent,
		Store:  st,
		Bus:    a.Bus,
		Logger: a.Logger,
		Defaults: selfplay.Options{
			Games:    a.Config.SelfPlay.Games,
			White:    white,
			Black:    black,
			MaxPlies: a.Config.SelfPlay.MaxPlies,
		},
	}
	if a.Metrics != nil {
		deps.Recorder = a.Metrics
	}
	return selfplay.New(deps), nil
}

// Players returns the configured computer players of a local game.
func (a *App) Players() (white, black agent.Difficulty, err error) {
	if white, err = agent.ParseDifficulty(a.Config.Game.White); err != nil {
		return 0, 0, fmt.Errorf("game.white: %w", err)
	}
	if black, err = agent.ParseDifficulty(a.Config.Game.Black); err != nil {
		return 0, 0, fmt.Errorf("game.black: %w", err)
	}
	return white, black, nil
}

// HostRuntime creates a wazero runtime from the host section.
func (a *App) HostRuntime(ctx context.Context) (*host.Runtime, error) {
	h := a.Config.Host
	hc := host.DefaultConfig()
	hc.MaxMemoryPages = uint32(h.MaxMemoryMB) * 16 // 64 KiB pages
	hc.MaxModuleBytes = int64(h.MaxModuleMB) << 20
	hc.CallTimeout = h.CallTimeout
	hc.FetchTimeout = h.FetchTimeout
	hc.CacheDir = h.CacheDir

	opts := []host.Option{host.WithBus(a.Bus)}
	if a.Metrics != nil {
		opts = append(opts, host.WithRecorder(a.Metrics))
	}
	if h.BlockPrivateURLs {
		opts = append(opts, host.WithHTTPClient(netguard.Client()))
	}
	rt, err := host.NewRuntime(ctx, hc, a.Logger, opts...)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rt.Close)
	return rt, nil
}

// Close releases everything in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

