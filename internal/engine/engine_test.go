package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muehle-agent/internal/agent"
	"muehle-agent/internal/board"
	"muehle-agent/internal/domain"
	"muehle-agent/internal/game"
)

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *recordingBus) Close()                                                 {}

func (b *recordingBus) count(typ domain.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ev := range b.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type fakePlatform struct {
	mu        sync.Mutex
	files     map[string][]byte
	loaded    map[int32][]byte
	nextID    int32
	clipboard string
}

func (p *fakePlatform) LoadFile(path string) int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	if p.loaded == nil {
		p.loaded = make(map[int32][]byte)
	}
	if data, ok := p.files[path]; ok {
		p.loaded[p.nextID] = data
	}
	return p.nextID
}

func (p *fakePlatform) TakeFile(id int32) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.loaded[id]
	delete(p.loaded, id)
	return data, ok
}

func (p *fakePlatform) SetClipboard(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clipboard = text
}

// scriptedMover returns a fixed action, optionally blocking until released.
type scriptedMover struct {
	action  *game.Action
	err     error
	release chan struct{}
	calls   int
	mu      sync.Mutex
}

func (m *scriptedMover) ComputeStepForSession(ctx context.Context, _ string, _ *game.Game, _ agent.Difficulty) (*game.Action, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.action, m.err
}

func newTestEngine(t *testing.T, opts Options) (*Engine, *recordingBus) {
	t.Helper()
	bus := &recordingBus{}
	opts.Bus = bus
	if opts.Width == 0 {
		opts.Width, opts.Height = CanvasWidth, CanvasHeight
	}
	e := New(opts)
	t.Cleanup(func() { _ = e.Close() })
	return e, bus
}

func click(t *testing.T, e *Engine, p board.Point) error {
	t.Helper()
	x, y := PointCenter(p)
	if err := e.MouseDown(context.Background(), x, y, domain.MouseLeft); err != nil {
		return err
	}
	return e.MouseUp(context.Background(), x, y, domain.MouseLeft)
}

func drag(t *testing.T, e *Engine, from, to board.Point) error {
	t.Helper()
	ctx := context.Background()
	fx, fy := PointCenter(from)
	tx, ty := PointCenter(to)
	if err := e.MouseDown(ctx, fx, fy, domain.MouseLeft); err != nil {
		return err
	}
	require.NoError(t, e.MouseMove(ctx, tx, ty))
	return e.MouseUp(ctx, tx, ty, domain.MouseLeft)
}

func TestEngine_HumanPlacement(t *testing.T) {
	e, bus := newTestEngine(t, Options{})
	ctx := context.Background()

	require.NoError(t, click(t, e, 0))
	require.NoError(t, e.Frame(ctx))
	require.NoError(t, click(t, e, 1))

	g := e.Game()
	assert.Equal(t, board.White, g.At(0))
	assert.Equal(t, board.Black, g.At(1))
	assert.Equal(t, 16, g.SetupLeft())
	assert.Equal(t, 2, bus.count(domain.EventMoveApplied))
	assert.Equal(t, 2, e.Plies())
}

func TestEngine_MouseUpIgnoredUntilFrame(t *testing.T) {
	e, _ := newTestEngine(t, Options{})

	require.NoError(t, click(t, e, 0))
	require.NoError(t, click(t, e, 1))
	assert.Equal(t, board.Empty, e.Game().At(1), "second release lands before the first move is drawn")
}

func TestEngine_OccupiedPointRejected(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	require.NoError(t, click(t, e, 0))
	require.NoError(t, e.Frame(context.Background()))

	err := click(t, e, 0)
	assert.True(t, errors.Is(err, domain.ErrIllegalMove))
	assert.Equal(t, board.Black, e.Game().Turn())
}

func TestEngine_DragAndOffBoardRelease(t *testing.T) {
	g, err := game.FromPosition(board.MustDecode("WWEEEEEWBBEEEEEBEEEEEEEE"), board.White, game.Normal, 0)
	require.NoError(t, err)
	e, bus := newTestEngine(t, Options{})
	ctx := context.Background()
	e.LoadGame(ctx, g, "test")
	require.NoError(t, e.Frame(ctx))

	x, y := PointCenter(1)
	require.NoError(t, e.MouseDown(ctx, x, y, domain.MouseLeft))
	require.NotNil(t, e.Game().Carry())
	require.NoError(t, e.MouseUp(ctx, 640, 640, domain.MouseLeft))
	assert.Nil(t, e.Game().Carry())
	assert.Equal(t, board.White, e.Game().At(1))

	require.NoError(t, drag(t, e, 1, 2))
	assert.Equal(t, board.White, e.Game().At(2))
	assert.Equal(t, board.Black, e.Game().Turn())
	assert.Equal(t, 1, bus.count(domain.EventMoveApplied))
	assert.Equal(t, 1, bus.count(domain.EventGameLoaded))
}

func TestEngine_PickUpWrongColor(t *testing.T) {
	g, err := game.FromPosition(board.MustDecode("WWEEEEEWBBEEEEEBEEEEEEEE"), board.White, game.Normal, 0)
	require.NoError(t, err)
	e, _ := newTestEngine(t, Options{})
	e.LoadGame(context.Background(), g, "test")

	x, y := PointCenter(8)
	err = e.MouseDown(context.Background(), x, y, domain.MouseLeft)
	assert.True(t, errors.Is(err, domain.ErrNotYourPiece))
}

func TestEngine_PanelAndRestart(t *testing.T) {
	e, bus := newTestEngine(t, Options{})
	ctx := context.Background()

	require.NoError(t, e.MouseDown(ctx, 330, 1400, domain.MouseLeft))
	require.NoError(t, e.MouseDown(ctx, 1000, 1550, domain.MouseLeft))
	w, b := e.Difficulties()
	assert.Equal(t, agent.Easy, w)
	assert.Equal(t, agent.Hard, b)

	require.NoError(t, e.MouseDown(ctx, 10, 1370, domain.MouseLeft))
	require.NoError(t, e.Frame(ctx))
	require.NoError(t, click(t, e, 5))
	assert.Equal(t, board.White, e.Game().At(5))

	require.NoError(t, e.MouseDown(ctx, 1200, 1300, domain.MouseLeft))
	assert.Equal(t, board.Empty, e.Game().At(5))
	assert.Equal(t, 0, e.Plies())
	assert.Equal(t, 1, bus.count(domain.EventGameStarted))
}

func TestEngine_ComputerTurnBlocksInput(t *testing.T) {
	e, _ := newTestEngine(t, Options{White: agent.Easy})
	require.NoError(t, click(t, e, 0))
	assert.Equal(t, board.Empty, e.Game().At(0))
}

func TestEngine_SyncComputerMove(t *testing.T) {
	a := game.Place(3)
	mover := &scriptedMover{action: &a}
	e, bus := newTestEngine(t, Options{Mover: mover, White: agent.Medium, SyncSearch: true})

	require.NoError(t, e.Frame(context.Background()))
	assert.Equal(t, board.White, e.Game().At(3))
	assert.Equal(t, board.Black, e.Game().Turn())
	assert.Equal(t, 1, bus.count(domain.EventMoveApplied))
}

func TestEngine_BackgroundComputerMove(t *testing.T) {
	a := game.Place(4)
	mover := &scriptedMover{action: &a, release: make(chan struct{})}
	e, _ := newTestEngine(t, Options{Mover: mover, Black: agent.Easy})
	ctx := context.Background()

	require.NoError(t, click(t, e, 0))
	require.NoError(t, e.Frame(ctx)) // draws the human move
	require.NoError(t, e.Frame(ctx)) // starts the search
	assert.True(t, e.Thinking())
	assert.True(t, e.Scene().Thinking)

	close(mover.release)
	require.Eventually(t, func() bool { return !e.Thinking() }, time.Second, 5*time.Millisecond)
	require.NoError(t, e.Frame(ctx))
	assert.Equal(t, board.Black, e.Game().At(4))
	assert.Equal(t, board.White, e.Game().Turn())
}

func TestEngine_RestartDiscardsSearch(t *testing.T) {
	a := game.Place(4)
	mover := &scriptedMover{action: &a, release: make(chan struct{})}
	e, _ := newTestEngine(t, Options{Mover: mover, White: agent.Easy})
	ctx := context.Background()

	require.NoError(t, e.Frame(ctx))
	require.True(t, e.Thinking())
	e.Restart(ctx)
	assert.False(t, e.Thinking())

	close(mover.release)
	require.NoError(t, e.Frame(ctx)) // restart forces a plain redraw
	require.NoError(t, e.Frame(ctx))
	assert.Equal(t, board.Empty, e.Game().At(4))
}

func TestEngine_InvalidComputerMove(t *testing.T) {
	a := game.Place(0).WithCapture(5)
	mover := &scriptedMover{action: &a}
	e, bus := newTestEngine(t, Options{Mover: mover, White: agent.Easy, SyncSearch: true})

	require.NoError(t, e.Frame(context.Background()))
	g := e.Game()
	assert.Equal(t, 18, g.SetupLeft())
	assert.Equal(t, board.White, g.Turn())
	assert.Equal(t, 0, bus.count(domain.EventMoveApplied))
}

func TestEngine_ComputerVsComputer(t *testing.T) {
	mover := agent.New(agent.Deps{Searcher: agent.NewSearcher(2)})
	e, bus := newTestEngine(t, Options{Mover: mover, White: agent.Easy, Black: agent.Easy, SyncSearch: true})
	ctx := context.Background()

	for i := 0; i < 60 && e.Game().State() != game.Win; i++ {
		require.NoError(t, e.Frame(ctx))
	}
	assert.GreaterOrEqual(t, e.Plies(), 18)
	assert.Equal(t, e.Plies(), bus.count(domain.EventMoveApplied))
}

func TestEngine_GameFinishedOnce(t *testing.T) {
	// White to capture on 9 leaves Black with two pieces.
	g, err := game.FromPosition(board.MustDecode("EWWWEEEEBBEEEEEEEEEBEEEE"), board.White, game.Take, 0)
	require.NoError(t, err)
	e, bus := newTestEngine(t, Options{})
	ctx := context.Background()
	e.LoadGame(ctx, g, "test")
	require.NoError(t, e.Frame(ctx))

	require.NoError(t, click(t, e, 9))
	require.Equal(t, game.Win, e.Game().State())
	assert.Equal(t, 1, bus.count(domain.EventGameFinished))

	require.NoError(t, e.Frame(ctx))
	require.NoError(t, click(t, e, 10))
	assert.Equal(t, board.Empty, e.Game().At(10))
	assert.Equal(t, 1, bus.count(domain.EventGameFinished))
	assert.Equal(t, "White", e.Scene().Winner)
}

func TestEngine_Keys(t *testing.T) {
	platform := &fakePlatform{}
	e, _ := newTestEngine(t, Options{Platform: platform})
	ctx := context.Background()

	require.NoError(t, e.KeyDown(ctx, domain.Key3, 0, 0))
	require.NoError(t, e.KeyDown(ctx, domain.Key2, domain.ModShift, 0))
	w, b := e.Difficulties()
	assert.Equal(t, agent.Medium, w)
	assert.Equal(t, agent.Easy, b)

	require.NoError(t, e.KeyDown(ctx, domain.Key1, 0, 0))
	require.NoError(t, e.Frame(ctx))
	require.NoError(t, click(t, e, 7))
	require.NoError(t, e.KeyDown(ctx, domain.KeyC, domain.ModCtrl, 0))
	assert.Contains(t, platform.clipboard, "board: EEEEEEEW")
	assert.Contains(t, platform.clipboard, "player_turn: Black")

	require.NoError(t, e.KeyDown(ctx, domain.KeyR, 0, 0))
	assert.Equal(t, board.Empty, e.Game().At(7))
}

func TestEngine_EscapeUndoesCarry(t *testing.T) {
	g, err := game.FromPosition(board.MustDecode("WWEEEEEWBBEEEEEBEEEEEEEE"), board.White, game.Normal, 0)
	require.NoError(t, err)
	e, _ := newTestEngine(t, Options{})
	ctx := context.Background()
	e.LoadGame(ctx, g, "test")

	x, y := PointCenter(0)
	require.NoError(t, e.MouseDown(ctx, x, y, domain.MouseLeft))
	require.NotNil(t, e.Game().Carry())
	require.NoError(t, e.KeyDown(ctx, domain.KeyEscape, 0, 0))
	assert.Nil(t, e.Game().Carry())
	assert.Equal(t, board.White, e.Game().At(0))
}

func TestEngine_Touch(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	ctx := context.Background()
	x, y := PointCenter(12)

	require.NoError(t, e.Touch(ctx, domain.TouchStarted, x, y, 1))
	require.NoError(t, e.Touch(ctx, domain.TouchEnded, x, y, 1))
	assert.Equal(t, board.White, e.Game().At(12))

	err := e.Touch(ctx, 9, x, y, 1)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestEngine_ClipboardPaste(t *testing.T) {
	e, bus := newTestEngine(t, Options{})
	ctx := context.Background()

	require.NoError(t, e.ClipboardPaste(ctx, "WWEEEEEWBBEEEEEBEEEEEEEE\n"))
	g := e.Game()
	assert.Equal(t, game.Normal, g.State())
	assert.Equal(t, board.White, g.At(7))
	assert.Equal(t, 1, bus.count(domain.EventGameLoaded))

	err := e.ClipboardPaste(ctx, "not a board")
	assert.True(t, errors.Is(err, domain.ErrSnapshotFormat))
}

func TestEngine_FileDrop(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	ctx := context.Background()
	snap := "board: WEEEEEEEEEEEEEEEEEEEEEEB\nplayer_turn: White\nstate: Setup\nsetup_pieces_left: 16\n"

	require.NoError(t, e.FilesDroppedStart(ctx))
	require.NoError(t, e.FileDropped(ctx, "notes.txt", []byte("hello")))
	require.NoError(t, e.FileDropped(ctx, "game.muehle", []byte(snap)))
	require.NoError(t, e.FilesDroppedFinish(ctx))

	g := e.Game()
	assert.Equal(t, 16, g.SetupLeft())
	assert.Equal(t, board.Black, g.At(23))

	require.NoError(t, e.FilesDroppedStart(ctx))
	require.NoError(t, e.FileDropped(ctx, "notes.txt", []byte("hello")))
	err := e.FilesDroppedFinish(ctx)
	assert.True(t, errors.Is(err, domain.ErrSnapshotFormat))
}

func TestEngine_MainLoadsStartupFile(t *testing.T) {
	platform := &fakePlatform{files: map[string][]byte{
		"start.txt": []byte("WWEEEEEWBBEEEEEBEEEEEEEE"),
	}}
	e, bus := newTestEngine(t, Options{Platform: platform, LoadPath: "start.txt"})
	ctx := context.Background()

	code, err := e.Main(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(0), code)
	assert.Equal(t, 1, bus.count(domain.EventGameStarted))

	require.NoError(t, e.FileLoaded(ctx, 1))
	assert.Equal(t, board.White, e.Game().At(0))

	err = e.FileLoaded(ctx, 1)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestEngine_PresenterReceivesScene(t *testing.T) {
	var got []Scene
	e, _ := newTestEngine(t, Options{Presenter: PresenterFunc(func(_ context.Context, s Scene) error {
		got = append(got, s)
		return nil
	})})
	ctx := context.Background()

	require.NoError(t, e.Frame(ctx))
	require.NoError(t, e.Frame(ctx))
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[1].Frame)
	assert.Equal(t, "Setup", got[1].State)

	boom := errors.New("gpu lost")
	e2, _ := newTestEngine(t, Options{Presenter: PresenterFunc(func(context.Context, Scene) error { return boom })})
	assert.True(t, errors.Is(e2.Frame(ctx), boom))
}

func TestEngine_Resize(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	ctx := context.Background()
	require.NoError(t, e.Resize(ctx, 640, 800))

	x, y := PointCenter(0)
	require.NoError(t, e.MouseDown(ctx, x/2, y/2, domain.MouseLeft))
	require.NoError(t, e.MouseUp(ctx, x/2, y/2, domain.MouseLeft))
	assert.Equal(t, board.White, e.Game().At(0))

	require.NoError(t, e.Frame(ctx))
	s := e.Scene()
	assert.Equal(t, 640.0, s.Width)
	assert.Equal(t, ImageBoard, s.Sprites[0].Image)
	assert.Equal(t, 0.5, s.Sprites[0].Scale)
}

func TestEngine_ResizeDuringDrag(t *testing.T) {
	g, err := game.FromPosition(board.MustDecode("WWEEEEEWBBEEEEEBEEEEEEEE"), board.White, game.Normal, 0)
	require.NoError(t, err)
	e, bus := newTestEngine(t, Options{})
	ctx := context.Background()
	e.LoadGame(ctx, g, "test")
	require.NoError(t, e.Frame(ctx))

	fx, fy := PointCenter(1)
	tx, ty := PointCenter(2)
	require.NoError(t, e.MouseDown(ctx, fx, fy, domain.MouseLeft))
	require.NoError(t, e.Resize(ctx, CanvasWidth, CanvasHeight))
	require.NoError(t, e.MouseUp(ctx, tx, ty, domain.MouseLeft))

	assert.Nil(t, e.Game().Carry())
	assert.Equal(t, board.White, e.Game().At(2))
	assert.Equal(t, 1, bus.count(domain.EventMoveApplied))
}

func TestEngine_SetDifficultyDropsCarry(t *testing.T) {
	g, err := game.FromPosition(board.MustDecode("WWEEEEEWBBEEEEEBEEEEEEEE"), board.White, game.Normal, 0)
	require.NoError(t, err)
	e, _ := newTestEngine(t, Options{})
	ctx := context.Background()
	e.LoadGame(ctx, g, "test")
	require.NoError(t, e.Frame(ctx))

	x, y := PointCenter(1)
	require.NoError(t, e.MouseDown(ctx, x, y, domain.MouseLeft))
	require.NotNil(t, e.Game().Carry())
	require.NoError(t, e.SetDifficulty(board.Black, agent.Easy))

	assert.Nil(t, e.Game().Carry())
	assert.Equal(t, board.White, e.Game().At(1))
}

func TestEngine_SetDifficultyValidates(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	assert.True(t, errors.Is(e.SetDifficulty(board.White, agent.Difficulty(9)), domain.ErrInvalidInput))
	assert.True(t, errors.Is(e.SetDifficulty(board.Empty, agent.Easy), domain.ErrInvalidInput))
	require.NoError(t, e.SetDifficulty(board.Black, agent.Hard))
	_, b := e.Difficulties()
	assert.Equal(t, agent.Hard, b)
}
