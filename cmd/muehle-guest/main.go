//go:build wasip1

// Command muehle-guest is the engine built as a WASM reactor. A host loads
// it, calls main once and then drives it through the exported table:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o muehle.wasm ./cmd/muehle-guest
package main

import (
	"context"
	"log/slog"
	"os"

	"muehle-agent/internal/agent"
	"muehle-agent/internal/engine"
)

var (
	ctx = context.Background()
	eng *engine.Engine
	log *slog.Logger
)

func init() {
	log = slog.New(&hostHandler{level: slog.LevelInfo})
	if os.Getenv("MUEHLE_DEBUG") != "" {
		log = slog.New(&hostHandler{level: slog.LevelDebug})
	}

	// The guest has one thread: the search runs inside frame.
	mover := agent.New(agent.Deps{
		Searcher: agent.NewSearcher(1),
		Levels:   agent.DefaultLevels(),
		Logger:   log,
	})
	white, black := difficulty("MUEHLE_WHITE", agent.Off), difficulty("MUEHLE_BLACK", agent.Medium)
	eng = engine.New(engine.Options{
		Platform:   hostPlatform{},
		Presenter:  hostPresenter{},
		Mover:      mover,
		Logger:     log,
		White:      white,
		Black:      black,
		LoadPath:   os.Getenv("MUEHLE_LOAD"),
		SyncSearch: true,
	})
}

func difficulty(env string, def agent.Difficulty) agent.Difficulty {
	v, ok := os.LookupEnv(env)
	if !ok {
		return def
	}
	d, err := agent.ParseDifficulty(v)
	if err != nil {
		log.Warn("ignoring difficulty", "env", env, "error", err)
		return def
	}
	return d
}

// main is unused in a reactor; the host calls the main export instead.
func main() {}
