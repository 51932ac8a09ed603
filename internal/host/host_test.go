package host

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muehle-agent/internal/domain"
	"muehle-agent/internal/engine"
	"muehle-agent/pkg/guestsdk"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

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

type callRecorder struct {
	mu    sync.Mutex
	calls map[string]int
	errs  int
}

func (r *callRecorder) ObserveGuestCall(export string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[export]++
	if err != nil {
		r.errs++
	}
}

func newTestRuntime(t *testing.T, cfg Config, opts ...Option) *Runtime {
	t.Helper()
	ctx := context.Background()
	rt, err := NewRuntime(ctx, cfg, newTestLogger(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close(ctx) })
	return rt
}

type scenes struct {
	mu  sync.Mutex
	all []engine.Scene
}

func (s *scenes) Present(_ context.Context, scene engine.Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, scene)
	return nil
}

func (s *scenes) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.all)
}

func staticFiles(files map[string]string) func(context.Context, string) ([]byte, error) {
	return func(_ context.Context, path string) ([]byte, error) {
		data, ok := files[path]
		if !ok {
			return nil, os.ErrNotExist
		}
		return []byte(data), nil
	}
}

func TestRuntime_NewAndClose(t *testing.T) {
	ctx := context.Background()
	rt, err := NewRuntime(ctx, Config{}, newTestLogger())
	require.NoError(t, err)
	require.NotNil(t, rt.Inner())
	assert.Equal(t, DefaultConfig().CallTimeout, rt.Config().CallTimeout)
	require.NoError(t, rt.Close(ctx))
}

func TestRuntime_CompileInvalidModule(t *testing.T) {
	rt := newTestRuntime(t, Config{})
	_, err := Compile(context.Background(), rt, []byte("not a wasm binary"))
	require.ErrorIs(t, err, domain.ErrModuleLoad)
}

func TestRuntime_CacheDir(t *testing.T) {
	rt := newTestRuntime(t, Config{CacheDir: t.TempDir()})
	_, err := Compile(context.Background(), rt, testGuest(nil))
	require.NoError(t, err)
}

func TestValidate_CompleteTable(t *testing.T) {
	rt := newTestRuntime(t, Config{})
	compiled, err := rt.Inner().CompileModule(context.Background(), testGuest(nil))
	require.NoError(t, err)
	assert.NoError(t, Validate(compiled))
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	rt := newTestRuntime(t, Config{})
	wasm := buildModule(nil, []wasmFunc{
		{export: guestsdk.ExportFrame, params: []byte{tI32}},
		{export: guestsdk.ExportAllocateVecU8, params: []byte{tI32}, results: []byte{tI32}, body: i32c(0)},
		{export: guestsdk.ExportCrateVersion, results: []byte{tF64}, body: []byte{0x44, 0, 0, 0, 0, 0, 0, 0, 0}},
	}, nil, false)
	compiled, err := rt.Inner().CompileModule(context.Background(), wasm)
	require.NoError(t, err)

	err = Validate(compiled)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExportMissing)
	assert.ErrorIs(t, err, domain.ErrExportSignature)
	msg := err.Error()
	assert.Contains(t, msg, "mouse_move")
	assert.Contains(t, msg, "on_clipboard_paste")
	assert.Contains(t, msg, "memory")
	assert.Contains(t, msg, "frame is (i32)->(), want ()->()")
	assert.Contains(t, msg, "crate_version is ()->(f64), want ()->(i32)")
	assert.NotContains(t, msg, "allocate_vec_u8")

	_, err = InitSync(context.Background(), rt, wasm, Options{})
	assert.ErrorIs(t, err, domain.ErrExportMissing)
}

func TestInstance_ForwardsArguments(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t, Config{})
	inst, err := InitSync(ctx, rt, testGuest(nil), Options{ReadFile: staticFiles(nil)})
	require.NoError(t, err)

	require.NoError(t, inst.MouseDown(ctx, 12.5, 3, domain.MouseMiddle))
	mem := inst.mod.Memory()
	button, ok := mem.ReadUint32Le(buttonAddr)
	require.True(t, ok)
	assert.Equal(t, uint32(domain.MouseMiddle), button)
	x, ok := mem.ReadFloat64Le(mouseXAddr)
	require.True(t, ok)
	assert.Equal(t, 12.5, x)

	require.NoError(t, inst.Touch(ctx, domain.TouchStarted, 1, 2, 9))
	id, _ := mem.ReadUint32Le(touchIDAddr)
	assert.Equal(t, uint32(9), id)

	for _, call := range []func() error{
		func() error { return inst.MouseMove(ctx, 1, 2) },
		func() error { return inst.RawMouseMove(ctx, 1, 2) },
		func() error { return inst.MouseUp(ctx, 1, 2, domain.MouseLeft) },
		func() error { return inst.MouseWheel(ctx, 0, 1) },
		func() error { return inst.KeyDown(ctx, domain.KeyR, 0, 0) },
		func() error { return inst.KeyUp(ctx, domain.KeyR, 0) },
		func() error { return inst.KeyPress(ctx, 'r') },
		func() error { return inst.Resize(ctx, 640, 800) },
	} {
		assert.NoError(t, call())
	}

	v, ok, err := inst.CrateVersion(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(42), v)
}

func TestInstance_FramePresentsScene(t *testing.T) {
	ctx := context.Background()
	bus := &recordingBus{}
	rt := newTestRuntime(t, Config{}, WithBus(bus))
	sc := &scenes{}
	inst, err := InitSync(ctx, rt, testGuest(nil), Options{Presenter: sc, ReadFile: staticFiles(nil)})
	require.NoError(t, err)

	_, ok := inst.Scene()
	assert.False(t, ok)

	require.NoError(t, inst.Frame(ctx))
	scene, ok := inst.Scene()
	require.True(t, ok)
	assert.Equal(t, uint64(7), scene.Frame)
	assert.Equal(t, "Normal", scene.State)
	require.Len(t, scene.Sprites, 1)
	assert.Equal(t, engine.ImageBoard, scene.Sprites[0].Image)
	assert.Equal(t, 1, sc.len())
	assert.Equal(t, 1, bus.count(domain.EventGuestLoaded))
	assert.Equal(t, 1, bus.count(domain.EventScenePresent))
}

func TestInstance_ClipboardPasteWritesGuestMemory(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t, Config{})
	var copied string
	inst, err := InitSync(ctx, rt, testGuest(nil), Options{
		ReadFile:  staticFiles(nil),
		Clipboard: func(text string) { copied = text },
	})
	require.NoError(t, err)

	text := "BBEEEWWEWBWBWEBWEWBWEBEB"
	require.NoError(t, inst.ClipboardPaste(ctx, text))

	got, ok := inst.mod.Memory().Read(allocAddr, uint32(len(text)))
	require.True(t, ok)
	assert.Equal(t, text, string(got))
	assert.Equal(t, text, inst.Clipboard())
	assert.Equal(t, text, copied)

	require.NoError(t, inst.ClipboardPaste(ctx, ""), "an empty paste passes a null buffer")
	assert.Equal(t, "", inst.Clipboard())
}

func TestInstance_StartupFileLoad(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t, Config{})
	inst, err := InitSync(ctx, rt, testGuest(nil), Options{
		ReadFile: staticFiles(map[string]string{startupPath: "hello file"}),
	})
	require.NoError(t, err)

	inst.WaitLoads()
	assert.Equal(t, int32(10), inst.bufferSize(1))
	require.NoError(t, inst.Frame(ctx))
	assert.Equal(t, "hello file", inst.Clipboard())
	assert.Equal(t, int32(-1), inst.bufferSize(1), "the buffer is released once taken")
}

func TestInstance_MissingStartupFile(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t, Config{})
	inst, err := InitSync(ctx, rt, testGuest(nil), Options{ReadFile: staticFiles(nil)})
	require.NoError(t, err)

	inst.WaitLoads()
	require.NoError(t, inst.Frame(ctx), "a failed load is still announced")
	assert.Equal(t, "", inst.Clipboard())
}

func TestInstance_DropFiles(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t, Config{})
	inst, err := InitSync(ctx, rt, testGuest(nil), Options{ReadFile: staticFiles(nil)})
	require.NoError(t, err)

	err = inst.DropFiles(ctx, []DroppedFile{{Path: "a.txt", Data: []byte("WWW")}})
	require.NoError(t, err)
	assert.Equal(t, "WWW", inst.Clipboard())
}

func TestInstance_TrapBecomesError(t *testing.T) {
	ctx := context.Background()
	bus := &recordingBus{}
	rec := &callRecorder{}
	rt := newTestRuntime(t, Config{}, WithBus(bus), WithRecorder(rec))
	inst, err := InitSync(ctx, rt, testGuest(map[string][]byte{guestsdk.ExportFrame: trapBody}), Options{ReadFile: staticFiles(nil)})
	require.NoError(t, err)

	err = inst.Frame(ctx)
	require.ErrorIs(t, err, domain.ErrGuestTrap)
	assert.Equal(t, domain.CodeGuestTrap, domain.ErrorCodeOf(err))
	assert.Equal(t, 1, bus.count(domain.EventGuestTrapped))
	assert.Equal(t, 1, rec.calls[guestsdk.ExportFrame])
	assert.Equal(t, 1, rec.errs)

	assert.NoError(t, inst.MouseMove(ctx, 1, 1), "a trap does not poison later calls")
}

func TestInstance_Timeout(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t, Config{CallTimeout: 50 * time.Millisecond})
	inst, err := InitSync(ctx, rt, testGuest(map[string][]byte{guestsdk.ExportFrame: infiniteLoop}), Options{ReadFile: staticFiles(nil)})
	require.NoError(t, err)

	err = inst.Frame(ctx)
	require.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, domain.CodeWASMTimeout, domain.ErrorCodeOf(err))

	err = inst.MouseMove(ctx, 1, 1)
	assert.ErrorIs(t, err, domain.ErrHostClosed, "a timed out guest is closed")
}

func TestInstance_Close(t *testing.T) {
	ctx := context.Background()
	bus := &recordingBus{}
	rt := newTestRuntime(t, Config{}, WithBus(bus))
	inst, err := InitSync(ctx, rt, testGuest(nil), Options{ReadFile: staticFiles(nil)})
	require.NoError(t, err)

	require.NoError(t, inst.Close(ctx))
	require.NoError(t, inst.Close(ctx))
	assert.Nil(t, rt.lookup(inst.Name()))
	assert.ErrorIs(t, inst.Frame(ctx), domain.ErrHostClosed)
	assert.Equal(t, 1, bus.count(domain.EventGuestClosed))
}

func TestRuntime_SeveralInstances(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t, Config{})
	compiled, err := Compile(ctx, rt, testGuest(nil))
	require.NoError(t, err)

	a, err := InitCompiled(ctx, rt, compiled, Options{Name: "a", ReadFile: staticFiles(nil)})
	require.NoError(t, err)
	b, err := InitCompiled(ctx, rt, compiled, Options{Name: "b", ReadFile: staticFiles(nil)})
	require.NoError(t, err)
	assert.NotEqual(t, a.Name(), b.Name())

	require.NoError(t, a.ClipboardPaste(ctx, "from a"))
	require.NoError(t, b.ClipboardPaste(ctx, "from b"))
	assert.Equal(t, "from a", a.Clipboard())
	assert.Equal(t, "from b", b.Clipboard())
}

func TestInit_PathReaderURLAndAsync(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t, Config{})
	wasm := testGuest(nil)

	path := filepath.Join(t.TempDir(), "guest.wasm")
	require.NoError(t, os.WriteFile(path, wasm, 0o644))
	inst, err := Init(ctx, rt, path, Options{ReadFile: staticFiles(nil)})
	require.NoError(t, err)
	assert.NotNil(t, inst)

	inst, err = InitReader(ctx, rt, bytes.NewReader(wasm), Options{ReadFile: staticFiles(nil)})
	require.NoError(t, err)
	assert.NotNil(t, inst)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/guest.wasm" {
			http.NotFound(w, r)
			return
		}
		w.Write(wasm)
	}))
	defer srv.Close()

	res := <-InitAsync(ctx, rt, srv.URL+"/guest.wasm", Options{ReadFile: staticFiles(nil)})
	require.NoError(t, res.Err)
	require.NotNil(t, res.Instance)

	_, err = Init(ctx, rt, srv.URL+"/missing.wasm", Options{})
	assert.ErrorIs(t, err, domain.ErrModuleLoad)
	_, err = Init(ctx, rt, filepath.Join(t.TempDir(), "nope.wasm"), Options{})
	assert.ErrorIs(t, err, domain.ErrModuleLoad)
}

func TestInit_ModuleTooLarge(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t, Config{MaxModuleBytes: 16})
	_, err := InitSync(ctx, rt, testGuest(nil), Options{})
	assert.ErrorIs(t, err, domain.ErrModuleLoad)

	_, err = InitReader(ctx, rt, bytes.NewReader(testGuest(nil)), Options{})
	assert.ErrorIs(t, err, domain.ErrModuleLoad)
}

func TestRunner_StopsAfterMaxFrames(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t, Config{})
	sc := &scenes{}
	inst, err := InitSync(ctx, rt, testGuest(nil), Options{Presenter: sc, ReadFile: staticFiles(nil)})
	require.NoError(t, err)

	r := NewRunner(inst, RunnerConfig{FPS: 200, MaxFrames: 5}, newTestLogger())
	require.NoError(t, r.Run(ctx))
	assert.Equal(t, 5, sc.len())
}

func TestRunner_OpensAfterConsecutiveTraps(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t, Config{})
	inst, err := InitSync(ctx, rt, testGuest(map[string][]byte{guestsdk.ExportFrame: trapBody}), Options{ReadFile: staticFiles(nil)})
	require.NoError(t, err)

	r := NewRunner(inst, RunnerConfig{FPS: 200, MaxTraps: 3}, newTestLogger())
	err = r.Run(ctx)
	require.ErrorIs(t, err, domain.ErrGuestTrap)
	assert.Equal(t, "open", r.State().String())
}

// frameTable overrides Frame on an otherwise unimplemented export table.
type frameTable struct {
	domain.ExportTable
	frame func(ctx context.Context) error
}

func (f frameTable) Frame(ctx context.Context) error { return f.frame(ctx) }

func TestRunner_InputErrorsDoNotTrip(t *testing.T) {
	ctx := context.Background()
	table := frameTable{frame: func(context.Context) error { return domain.ErrIllegalMove }}
	r := NewRunner(table, RunnerConfig{FPS: 500, MaxTraps: 2, MaxFrames: 10}, newTestLogger())
	require.NoError(t, r.Run(ctx))
	assert.Equal(t, "closed", r.State().String())
}

func TestRunner_StopsWhenGuestCloses(t *testing.T) {
	ctx := context.Background()
	closed := domain.NewSubSystemError("host", "Instance.frame", domain.ErrHostClosed, "exit code 0")
	table := frameTable{frame: func(context.Context) error { return closed }}
	r := NewRunner(table, RunnerConfig{FPS: 500}, newTestLogger())
	err := r.Run(ctx)
	assert.True(t, errors.Is(err, domain.ErrHostClosed))
}

func TestRunner_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	table := frameTable{frame: func(context.Context) error { return nil }}
	r := NewRunner(table, RunnerConfig{FPS: 100}, newTestLogger())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

func TestRunner_StepReportsStopped(t *testing.T) {
	ctx := context.Background()
	trap := domain.NewSubSystemError("host", "Instance.frame", domain.ErrGuestTrap, "unreachable")
	table := frameTable{frame: func(context.Context) error { return trap }}
	r := NewRunner(table, RunnerConfig{MaxTraps: 2}, newTestLogger())

	err := r.Step(ctx)
	require.ErrorIs(t, err, domain.ErrGuestTrap)
	assert.False(t, Stopped(err))
	require.Error(t, r.Step(ctx))

	err = r.Step(ctx)
	assert.True(t, Stopped(err), "third step after two traps: %v", err)
	assert.True(t, Stopped(domain.ErrHostClosed))
	assert.False(t, Stopped(domain.ErrIllegalMove))
}
