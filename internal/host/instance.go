package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.opentelemetry.io/otel/trace"

	"muehle-agent/internal/domain"
	"muehle-agent/internal/engine"
	"muehle-agent/internal/infra/tracer"
	"muehle-agent/pkg/guestsdk"
)

// Options configures an Instance.
type Options struct {
	// Name prefixes the module name; a sequence number is appended.
	Name string
	// Presenter receives every scene the guest presents.
	Presenter engine.Presenter
	// Clipboard receives clipboard_set text.
	Clipboard func(text string)
	// ReadFile serves fs_load_file. The default reads local paths and
	// fetches http(s) URLs.
	ReadFile func(ctx context.Context, path string) ([]byte, error)
	// Stdout and Stderr receive the guest's WASI output; nil discards it.
	Stdout, Stderr io.Writer
}

// DroppedFile is one file of a drop gesture.
type DroppedFile struct {
	Path string
	Data []byte
}

// Instance is a loaded guest. It implements domain.ExportTable by forwarding
// each method to the matching export. Calls are serialised.
type Instance struct {
	rt      *Runtime
	mod     api.Module
	name    string
	logger  *slog.Logger
	timeout time.Duration
	opts    Options
	fns     map[string]api.Function

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	callMu sync.Mutex

	mu        sync.Mutex
	scene     *engine.Scene
	clipboard string
	nextLoad  int32
	buffers   map[int32][]byte
	ready     []int32
	closed    bool
}

var _ domain.ExportTable = (*Instance)(nil)

func newInstance(ctx context.Context, rt *Runtime, compiled wazero.CompiledModule, opts Options) (*Instance, error) {
	name := rt.newName(opts.Name)
	logger := rt.logger.With("guest", name)
	if opts.ReadFile == nil {
		opts.ReadFile = rt.readLocation
	}

	modCfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions(). // _initialize and main are called explicitly
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep()
	if opts.Stdout != nil {
		modCfg = modCfg.WithStdout(opts.Stdout)
	}
	if opts.Stderr != nil {
		modCfg = modCfg.WithStderr(opts.Stderr)
	}

	mod, err := rt.inner.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: instantiate guest: %v", domain.ErrModuleLoad, err)
	}

	lifetime, cancel := context.WithCancel(context.WithoutCancel(ctx))
	inst := &Instance{
		rt:      rt,
		mod:     mod,
		name:    name,
		logger:  logger,
		timeout: rt.config.CallTimeout,
		opts:    opts,
		fns:     make(map[string]api.Function),
		ctx:     lifetime,
		cancel:  cancel,
		buffers: make(map[int32][]byte),
	}
	for _, e := range guestsdk.RequiredExports {
		inst.fns[e.Name] = mod.ExportedFunction(e.Name)
	}
	for _, e := range guestsdk.OptionalExports {
		if fn := mod.ExportedFunction(e.Name); fn != nil {
			inst.fns[e.Name] = fn
		}
	}
	rt.register(inst)

	if err := inst.start(ctx); err != nil {
		inst.Close(ctx)
		return nil, err
	}

	logger.Info("wasm guest loaded")
	rt.publish(ctx, domain.EventGuestLoaded, name, map[string]string{"guest": name})
	return inst, nil
}

// start runs the reactor initialiser and main(0, 0).
func (i *Instance) start(ctx context.Context) error {
	if _, ok := i.fns[guestsdk.ExportInitialize]; ok {
		if _, err := i.call(ctx, guestsdk.ExportInitialize); err != nil {
			return err
		}
	}
	if _, ok := i.fns[guestsdk.ExportWbindgenStart]; ok {
		if _, err := i.call(ctx, guestsdk.ExportWbindgenStart); err != nil {
			return err
		}
	}
	_, err := i.Main(ctx, 0, 0)
	return err
}

// Name returns the module name of the guest.
func (i *Instance) Name() string { return i.name }

// Close closes the guest module and forgets pending loads. It is idempotent.
func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	i.mu.Unlock()

	i.cancel()
	i.wg.Wait()
	i.rt.unregister(i.name)

	i.callMu.Lock()
	defer i.callMu.Unlock()
	err := i.mod.Close(ctx)
	i.logger.Info("wasm guest closed")
	i.rt.publish(ctx, domain.EventGuestClosed, i.name, map[string]string{"guest": i.name})
	return err
}

// Scene returns the last scene the guest presented.
func (i *Instance) Scene() (engine.Scene, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.scene == nil {
		return engine.Scene{}, false
	}
	return *i.scene, true
}

// Clipboard returns the last text the guest put on the clipboard.
func (i *Instance) Clipboard() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.clipboard
}

// CrateVersion returns the guest's crate_version, when exported.
func (i *Instance) CrateVersion(ctx context.Context) (int32, bool, error) {
	if _, ok := i.fns[guestsdk.ExportCrateVersion]; !ok {
		return 0, false, nil
	}
	res, err := i.call(ctx, guestsdk.ExportCrateVersion)
	if err != nil {
		return 0, true, err
	}
	return api.DecodeI32(res[0]), true, nil
}

// call invokes one export with the per-call timeout.
func (i *Instance) call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	i.callMu.Lock()
	defer i.callMu.Unlock()
	return i.callLocked(ctx, name, args...)
}

func (i *Instance) callLocked(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	op := "Instance." + name
	fn := i.fns[name]
	if fn == nil {
		return nil, domain.NewSubSystemError("host", op, domain.ErrExportMissing, name)
	}
	if i.mod.IsClosed() {
		return nil, domain.NewSubSystemError("host", op, domain.ErrHostClosed, i.name)
	}

	ctx, span := tracer.StartSpan(ctx, "host.call",
		trace.WithAttributes(
			tracer.StringAttr("host.guest", i.name),
			tracer.StringAttr("host.export", name),
		),
	)
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	start := time.Now()
	res, err := fn.Call(callCtx, args...)
	err = i.classify(callCtx, op, err)
	if i.rt.recorder != nil {
		i.rt.recorder.ObserveGuestCall(name, time.Since(start), err)
	}
	if err != nil {
		tracer.RecordError(span, err)
		if errors.Is(err, domain.ErrGuestTrap) || errors.Is(err, domain.ErrTimeout) {
			i.logger.Warn("guest call failed", "export", name, "error", err)
			i.rt.publish(ctx, domain.EventGuestTrapped, i.name, map[string]string{
				"guest":  i.name,
				"export": name,
				"error":  err.Error(),
			})
		}
		return nil, err
	}
	tracer.SetOK(span)
	return res, nil
}

func (i *Instance) classify(callCtx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return domain.NewSubSystemError("host", op, domain.ErrTimeout, i.timeout.String())
	}
	var exit *sys.ExitError
	if errors.As(err, &exit) {
		return domain.NewSubSystemError("host", op, domain.ErrHostClosed, fmt.Sprintf("exit code %d", exit.ExitCode()))
	}
	return domain.NewSubSystemError("host", op, domain.ErrGuestTrap, err.Error())
}

// writeBytes copies data into a buffer obtained from allocate_vec_u8.
func (i *Instance) writeBytes(ctx context.Context, data []byte) (uint32, uint32, error) {
	if len(data) == 0 {
		return 0, 0, nil
	}
	res, err := i.callLocked(ctx, guestsdk.ExportAllocateVecU8, api.EncodeI32(int32(len(data))))
	if err != nil {
		return 0, 0, err
	}
	ptr := uint32(res[0])
	if err := writeAt(i.mod, ptr, data); err != nil {
		return 0, 0, err
	}
	return ptr, uint32(len(data)), nil
}

// --- domain.ExportTable ---

// Main implements domain.ExportTable.
func (i *Instance) Main(ctx context.Context, argc, argv int32) (int32, error) {
	res, err := i.call(ctx, guestsdk.ExportMain, api.EncodeI32(argc), api.EncodeI32(argv))
	if err != nil {
		return 0, err
	}
	return api.DecodeI32(res[0]), nil
}

// Frame delivers completed file loads through file_loaded, then calls frame.
func (i *Instance) Frame(ctx context.Context) error {
	for _, id := range i.takeReady() {
		if err := i.FileLoaded(ctx, id); err != nil {
			return err
		}
	}
	_, err := i.call(ctx, guestsdk.ExportFrame)
	return err
}

// MouseMove implements domain.ExportTable.
func (i *Instance) MouseMove(ctx context.Context, x, y float64) error {
	_, err := i.call(ctx, guestsdk.ExportMouseMove, api.EncodeF64(x), api.EncodeF64(y))
	return err
}

// RawMouseMove implements domain.ExportTable.
func (i *Instance) RawMouseMove(ctx context.Context, dx, dy float64) error {
	_, err := i.call(ctx, guestsdk.ExportRawMouseMove, api.EncodeF64(dx), api.EncodeF64(dy))
	return err
}

// MouseDown implements domain.ExportTable.
func (i *Instance) MouseDown(ctx context.Context, x, y float64, button int32) error {
	_, err := i.call(ctx, guestsdk.ExportMouseDown, api.EncodeF64(x), api.EncodeF64(y), api.EncodeI32(button))
	return err
}

// MouseUp implements domain.ExportTable.
func (i *Instance) MouseUp(ctx context.Context, x, y float64, button int32) error {
	_, err := i.call(ctx, guestsdk.ExportMouseUp, api.EncodeF64(x), api.EncodeF64(y), api.EncodeI32(button))
	return err
}

// MouseWheel implements domain.ExportTable.
func (i *Instance) MouseWheel(ctx context.Context, dx, dy float64) error {
	_, err := i.call(ctx, guestsdk.ExportMouseWheel, api.EncodeF64(dx), api.EncodeF64(dy))
	return err
}

// KeyDown implements domain.ExportTable.
func (i *Instance) KeyDown(ctx context.Context, keycode, modifiers, repeat int32) error {
	_, err := i.call(ctx, guestsdk.ExportKeyDown, api.EncodeI32(keycode), api.EncodeI32(modifiers), api.EncodeI32(repeat))
	return err
}

// KeyUp implements domain.ExportTable.
func (i *Instance) KeyUp(ctx context.Context, keycode, modifiers int32) error {
	_, err := i.call(ctx, guestsdk.ExportKeyUp, api.EncodeI32(keycode), api.EncodeI32(modifiers))
	return err
}

// KeyPress implements domain.ExportTable.
func (i *Instance) KeyPress(ctx context.Context, char int32) error {
	_, err := i.call(ctx, guestsdk.ExportKeyPress, api.EncodeI32(char))
	return err
}

// Resize implements domain.ExportTable.
func (i *Instance) Resize(ctx context.Context, width, height float64) error {
	_, err := i.call(ctx, guestsdk.ExportResize, api.EncodeF64(width), api.EncodeF64(height))
	return err
}

// Touch implements domain.ExportTable.
func (i *Instance) Touch(ctx context.Context, phase int32, x, y float64, id int32) error {
	_, err := i.call(ctx, guestsdk.ExportTouch, api.EncodeI32(phase), api.EncodeF64(x), api.EncodeF64(y), api.EncodeI32(id))
	return err
}

// FilesDroppedStart implements domain.ExportTable.
func (i *Instance) FilesDroppedStart(ctx context.Context) error {
	_, err := i.call(ctx, guestsdk.ExportFilesDroppedStart)
	return err
}

// FilesDroppedFinish implements domain.ExportTable.
func (i *Instance) FilesDroppedFinish(ctx context.Context) error {
	_, err := i.call(ctx, guestsdk.ExportFilesDroppedFinish)
	return err
}

// FileDropped copies path and data into the guest and calls on_file_dropped.
func (i *Instance) FileDropped(ctx context.Context, path string, data []byte) error {
	i.callMu.Lock()
	defer i.callMu.Unlock()

	pathPtr, pathLen, err := i.writeBytes(ctx, []byte(path))
	if err != nil {
		return err
	}
	dataPtr, dataLen, err := i.writeBytes(ctx, data)
	if err != nil {
		return err
	}
	_, err = i.callLocked(ctx, guestsdk.ExportFileDropped,
		uint64(pathPtr), uint64(pathLen), uint64(dataPtr), uint64(dataLen))
	return err
}

// DropFiles runs a whole drop gesture.
func (i *Instance) DropFiles(ctx context.Context, files []DroppedFile) error {
	if err := i.FilesDroppedStart(ctx); err != nil {
		return err
	}
	for _, f := range files {
		if err := i.FileDropped(ctx, f.Path, f.Data); err != nil {
			return err
		}
	}
	return i.FilesDroppedFinish(ctx)
}

// FileLoaded implements domain.ExportTable.
func (i *Instance) FileLoaded(ctx context.Context, id int32) error {
	_, err := i.call(ctx, guestsdk.ExportFileLoaded, api.EncodeI32(id))
	return err
}

// ClipboardPaste copies text into the guest and calls on_clipboard_paste.
func (i *Instance) ClipboardPaste(ctx context.Context, text string) error {
	i.callMu.Lock()
	defer i.callMu.Unlock()

	ptr, size, err := i.writeBytes(ctx, []byte(text))
	if err != nil {
		return err
	}
	_, err = i.callLocked(ctx, guestsdk.ExportClipboardPaste, uint64(ptr), uint64(size))
	return err
}

// --- host function state ---

func (i *Instance) present(ctx context.Context, data []byte) {
	scene, err := engine.DecodeScene(data)
	if err != nil {
		i.logger.Warn("wasm present: invalid scene", "error", err)
		return
	}
	i.mu.Lock()
	i.scene = &scene
	i.mu.Unlock()

	if i.opts.Presenter != nil {
		if err := i.opts.Presenter.Present(ctx, scene); err != nil {
			i.logger.Warn("present failed", "error", err)
		}
	}
	i.rt.publish(ctx, domain.EventScenePresent, i.name, map[string]any{"frame": scene.Frame})
}

func (i *Instance) setClipboard(text string) {
	i.mu.Lock()
	i.clipboard = text
	i.mu.Unlock()
	if i.opts.Clipboard != nil {
		i.opts.Clipboard(text)
	}
}

// loadFile starts reading path in the background. The id is announced to
// the guest on the next Frame once the bytes are available.
func (i *Instance) loadFile(path string) int32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return -1
	}
	i.nextLoad++
	id := i.nextLoad

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		data, err := i.opts.ReadFile(i.ctx, path)
		if err != nil {
			i.logger.Warn("file load failed", "path", path, "error", err)
			data = nil
		}
		i.mu.Lock()
		defer i.mu.Unlock()
		if i.closed {
			return
		}
		if err == nil {
			i.buffers[id] = data
		}
		i.ready = append(i.ready, id)
	}()
	return id
}

// WaitLoads blocks until every started file load has completed.
func (i *Instance) WaitLoads() { i.wg.Wait() }

func (i *Instance) takeReady() []int32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	ready := i.ready
	i.ready = nil
	return ready
}

func (i *Instance) bufferSize(id int32) int32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	data, ok := i.buffers[id]
	if !ok {
		return -1
	}
	return int32(len(data))
}

func (i *Instance) takeBuffer(id int32) ([]byte, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	data, ok := i.buffers[id]
	delete(i.buffers, id)
	return data, ok
}

// readLocation reads a local file or fetches an http(s) URL, bounded by
// MaxModuleBytes.
func (r *Runtime) readLocation(ctx context.Context, location string) ([]byte, error) {
	if isURL(location) {
		return r.fetch(ctx, location)
	}
	f, err := os.Open(location)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLimited(f, r.config.MaxModuleBytes)
}

func (r *Runtime) fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return readLimited(resp.Body, r.config.MaxModuleBytes)
}

func readLimited(rd io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(rd, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: larger than %d bytes", domain.ErrLimitReached, max)
	}
	return data, nil
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
