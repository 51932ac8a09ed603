// Package engine drives a game from pointer, keyboard and file input and
// renders it into a Scene. It implements the module export table natively,
// so the same engine runs inside the WASM guest, behind the websocket
// gateway and in the terminal UI.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"muehle-agent/internal/agent"
	"muehle-agent/internal/board"
	"muehle-agent/internal/domain"
	"muehle-agent/internal/game"
)

// Mover computes the computer's next action.
type Mover interface {
	ComputeStepForSession(ctx context.Context, sessionID string, g *game.Game, d agent.Difficulty) (*game.Action, error)
}

// Presenter receives the rendered scene at the end of every frame.
type Presenter interface {
	Present(ctx context.Context, scene Scene) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, scene Scene) error

func (f PresenterFunc) Present(ctx context.Context, scene Scene) error { return f(ctx, scene) }

// Options configures an Engine. Only Mover is required when a side is
// computer controlled.
type Options struct {
	Platform  domain.Platform
	Presenter Presenter
	Mover     Mover
	Bus       domain.EventBus
	Logger    *slog.Logger
	SessionID string

	White, Black agent.Difficulty
	// LoadPath is requested from the platform when main runs.
	LoadPath string
	// SyncSearch computes computer moves inside Frame instead of on a
	// background goroutine. Hosts without threads need it.
	SyncSearch bool

	Width, Height float64
}

type searchOutcome struct {
	gen    uint64
	action *game.Action
	err    error
}

type droppedFile struct {
	path string
	data []byte
}

// Engine is safe for concurrent use; input and frames are serialised by an
// internal mutex.
type Engine struct {
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	game         *game.Game
	white, black agent.Difficulty
	layout       Layout
	mouseX       float64
	mouseY       float64
	forceDraw    bool
	frames       uint64
	scene        Scene

	// Turn bookkeeping for move events.
	turnStart board.Board
	turnColor board.Token
	ply       int
	finished  bool

	// gen invalidates in-flight searches whenever the position is replaced.
	gen        uint64
	searching  bool
	outcome    *searchOutcome
	stopSearch func()

	dropped []droppedFile
	loads   map[int32]string
}

// New creates an engine with a fresh game.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SessionID != "" {
		logger = logger.With("session", opts.SessionID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		opts:   opts,
		logger: logger.With("component", "engine"),
		ctx:    ctx,
		cancel: cancel,
		game:   game.New(),
		white:  opts.White,
		black:  opts.Black,
		layout: NewLayout(opts.Width, opts.Height),
		loads:  make(map[int32]string),
	}
	e.resetTurn()
	return e
}

// Close stops any background search and waits for it.
func (e *Engine) Close() error {
	e.cancel()
	e.wg.Wait()
	return nil
}

// Main starts the game and requests the startup snapshot, if any.
func (e *Engine) Main(ctx context.Context, _, _ int32) (int32, error) {
	e.mu.Lock()
	path := e.opts.LoadPath
	if path != "" && e.opts.Platform != nil {
		id := e.opts.Platform.LoadFile(path)
		e.loads[id] = path
		e.logger.Info("snapshot requested", "path", path, "id", id)
	}
	payload := e.startedPayload()
	e.mu.Unlock()

	e.publish(ctx, domain.EventGameStarted, payload)
	return 0, nil
}

// Frame advances the computer player and renders.
func (e *Engine) Frame(ctx context.Context) error {
	e.mu.Lock()
	e.frames++
	if e.forceDraw {
		e.forceDraw = false
	} else {
		e.stepComputer(ctx)
	}
	scene := e.renderLocked()
	e.mu.Unlock()

	if e.opts.Presenter == nil {
		return nil
	}
	if err := e.opts.Presenter.Present(ctx, scene); err != nil {
		return domain.WrapOp("Engine.Frame", err)
	}
	return nil
}

// stepComputer applies a finished search or starts a new one. Caller holds mu.
func (e *Engine) stepComputer(ctx context.Context) {
	if out := e.outcome; out != nil {
		e.outcome = nil
		if out.gen == e.gen {
			e.applyComputer(ctx, out.action, out.err)
			return
		}
	}
	if e.searching || e.game.State() == game.Win {
		return
	}
	d, ok := e.computerDifficulty()
	if !ok || e.opts.Mover == nil {
		return
	}

	snapshot := e.game.Clone()
	if e.opts.SyncSearch {
		action, err := e.opts.Mover.ComputeStepForSession(ctx, e.opts.SessionID, snapshot, d)
		e.applyComputer(ctx, action, err)
		return
	}

	gen := e.gen
	searchCtx, cancel := context.WithCancel(e.ctx)
	e.searching = true
	e.stopSearch = cancel
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		action, err := e.opts.Mover.ComputeStepForSession(searchCtx, e.opts.SessionID, snapshot, d)

		e.mu.Lock()
		defer e.mu.Unlock()
		if gen == e.gen {
			e.searching = false
			e.stopSearch = nil
			e.outcome = &searchOutcome{gen: gen, action: action, err: err}
		}
	}()
}

func (e *Engine) applyComputer(ctx context.Context, action *game.Action, err error) {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		e.logger.Warn("computer move failed", "error", err)
		e.game.UpdateState(nil)
		e.forceDraw = true
		return
	}
	if action == nil {
		return
	}
	next := e.game.Clone()
	if err := next.Apply(*action); err != nil {
		e.logger.Warn("invalid move from computer", "action", action.String(), "error", err)
		e.game.UpdateState(nil)
		e.forceDraw = true
		return
	}
	e.game = next
	e.logger.Debug("computer moved", "action", action.String())
	e.afterChange(ctx)
}

func (e *Engine) computerDifficulty() (agent.Difficulty, bool) {
	switch e.game.Turn() {
	case board.White:
		return e.white, e.white != agent.Off
	case board.Black:
		return e.black, e.black != agent.Off
	}
	return agent.Off, false
}

// invalidate drops any in-flight or finished search. Caller holds mu.
func (e *Engine) invalidate() {
	e.gen++
	e.outcome = nil
	e.searching = false
	if e.stopSearch != nil {
		e.stopSearch()
		e.stopSearch = nil
	}
}

func (e *Engine) resetTurn() {
	e.turnStart = e.game.Board()
	e.turnColor = e.game.Turn()
	e.finished = e.game.State() == game.Win
}

// afterChange publishes a move once the turn has passed and the result once
// the game is decided. Caller holds mu.
func (e *Engine) afterChange(ctx context.Context) {
	g := e.game
	if g.Turn() != e.turnColor {
		if a, err := game.ActionFromBoards(e.turnStart, g.Board(), e.turnColor); err == nil {
			e.ply++
			e.publish(ctx, domain.EventMoveApplied, movePayload(e.ply, e.turnColor, a, g.Board()))
		} else {
			e.logger.Debug("move not derivable", "error", err)
		}
		e.turnStart = g.Board()
		e.turnColor = g.Turn()
	}
	if g.State() == game.Win && !e.finished {
		e.finished = true
		winner := g.Winner()
		e.logger.Info("game finished", "winner", winner.String(), "plies", e.ply)
		e.publish(ctx, domain.EventGameFinished, domain.GameFinishedPayload{
			Winner: winner.String(),
			Plies:  e.ply,
			Board:  g.Board().Encode(),
		})
	}
}

func movePayload(ply int, color board.Token, a game.Action, b board.Board) domain.MovePayload {
	p := domain.MovePayload{Ply: ply, Color: color.String(), To: int(a.To), Board: b.Encode()}
	if a.From != nil {
		from := int(*a.From)
		p.From = &from
	}
	if a.Capture != nil {
		c := int(*a.Capture)
		p.Capture = &c
	}
	return p
}

// Restart begins a new game, keeping the difficulties.
func (e *Engine) Restart(ctx context.Context) {
	e.mu.Lock()
	e.restartLocked()
	payload := e.startedPayload()
	e.mu.Unlock()
	e.publish(ctx, domain.EventGameStarted, payload)
}

func (e *Engine) startedPayload() map[string]any {
	return map[string]any{
		"white": e.white.String(),
		"black": e.black.String(),
		"board": e.game.Board().Encode(),
	}
}

func (e *Engine) restartLocked() {
	e.invalidate()
	e.game = game.New()
	e.ply = 0
	e.forceDraw = true
	e.resetTurn()
	e.logger.Info("game restarted")
}

// LoadGame replaces the position.
func (e *Engine) LoadGame(ctx context.Context, g *game.Game, source string) {
	e.mu.Lock()
	e.invalidate()
	e.game = g.Clone()
	e.ply = 0
	e.forceDraw = true
	e.resetTurn()
	e.mu.Unlock()

	e.logger.Info("snapshot loaded", "source", source, "state", g.State().String(), "turn", g.Turn().String())
	e.publish(ctx, domain.EventGameLoaded, map[string]any{
		"source": source,
		"board":  g.Board().Encode(),
		"state":  g.State().String(),
		"turn":   g.Turn().String(),
	})
}

func (e *Engine) loadText(ctx context.Context, text, source string) error {
	g, err := game.LoadString(text)
	if err != nil {
		return domain.NewDomainError("Engine.Load", err, source)
	}
	e.LoadGame(ctx, g, source)
	return nil
}

// SetDifficulty changes the computer level for color c.
func (e *Engine) SetDifficulty(c board.Token, d agent.Difficulty) error {
	if d < agent.Off || d > agent.Hard {
		return fmt.Errorf("%w: difficulty %d", domain.ErrInvalidInput, int(d))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch c {
	case board.White:
		e.white = d
	case board.Black:
		e.black = d
	default:
		return fmt.Errorf("%w: color %s", domain.ErrInvalidInput, c)
	}
	e.invalidate()
	// The next button up is swallowed, so a lifted piece must go back now.
	e.game.UndoCarry()
	e.forceDraw = true
	return nil
}

// Difficulties returns the current computer levels.
func (e *Engine) Difficulties() (white, black agent.Difficulty) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.white, e.black
}

// Game returns a copy of the current game.
func (e *Engine) Game() *game.Game {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.game.Clone()
}

// Snapshot returns the current position in snapshot text form.
func (e *Engine) Snapshot() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.game.SnapshotString()
}

// Plies returns the number of completed turns since the last start or load.
func (e *Engine) Plies() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ply
}

// Scene returns the most recently rendered frame, rendering one if none
// exists yet.
func (e *Engine) Scene() Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scene.Sprites == nil {
		return e.renderLocked()
	}
	return e.scene
}

// Render draws the current state without advancing the computer player.
func (e *Engine) Render() Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.renderLocked()
}

// Thinking reports whether a background search is in flight.
func (e *Engine) Thinking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.searching
}

func (e *Engine) renderLocked() Scene {
	g := e.game
	s := Scene{
		Frame:      e.frames,
		Width:      e.layout.Width,
		Height:     e.layout.Height,
		Background: Background,
		State:      g.State().String(),
		Turn:       g.Turn().String(),
		Thinking:   e.searching,
		Sprites:    buildScene(g, e.layout, e.white, e.black, e.mouseX, e.mouseY),
	}
	if g.State() == game.Win {
		s.Winner = g.Winner().String()
	}
	e.scene = s
	return s
}

func (e *Engine) publish(ctx context.Context, typ domain.EventType, payload any) {
	if e.opts.Bus == nil {
		return
	}
	e.opts.Bus.Publish(ctx, domain.NewEvent(typ, e.opts.SessionID, payload))
}
