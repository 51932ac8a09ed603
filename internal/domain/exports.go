package domain

import "context"

// ExportTable is the set of entry points a muehle module makes callable from
// its host. The headless engine implements it natively; a loaded WASM guest
// implements it through typed forwarders.
type ExportTable interface {
	Main(ctx context.Context, argc, argv int32) (int32, error)
	Frame(ctx context.Context) error

	MouseMove(ctx context.Context, x, y float64) error
	RawMouseMove(ctx context.Context, dx, dy float64) error
	MouseDown(ctx context.Context, x, y float64, button int32) error
	MouseUp(ctx context.Context, x, y float64, button int32) error
	MouseWheel(ctx context.Context, dx, dy float64) error

	KeyDown(ctx context.Context, keycode, modifiers, repeat int32) error
	KeyUp(ctx context.Context, keycode, modifiers int32) error
	KeyPress(ctx context.Context, char int32) error

	Resize(ctx context.Context, width, height float64) error
	Touch(ctx context.Context, phase int32, x, y float64, id int32) error

	FilesDroppedStart(ctx context.Context) error
	FilesDroppedFinish(ctx context.Context) error
	FileDropped(ctx context.Context, path string, data []byte) error
	FileLoaded(ctx context.Context, id int32) error
	ClipboardPaste(ctx context.Context, text string) error
}

// Mouse buttons as carried by mouse_down / mouse_up.
const (
	MouseLeft   int32 = 0
	MouseRight  int32 = 1
	MouseMiddle int32 = 2
)

// Touch phases as carried by touch.
const (
	TouchStarted   int32 = 0
	TouchMoved     int32 = 1
	TouchEnded     int32 = 2
	TouchCancelled int32 = 3
)

// Key modifier bits as carried by key_down / key_up.
const (
	ModShift int32 = 0x01
	ModCtrl  int32 = 0x02
	ModAlt   int32 = 0x04
	ModLogo  int32 = 0x08
)

// Keycodes used by the engine.
const (
	KeySpace  int32 = 32
	Key1      int32 = 49
	Key2      int32 = 50
	Key3      int32 = 51
	Key4      int32 = 52
	KeyB      int32 = 66
	KeyC      int32 = 67
	KeyR      int32 = 82
	KeyS      int32 = 83
	KeyV      int32 = 86
	KeyW      int32 = 87
	KeyEscape int32 = 256
)

// Platform is the outward side of the export table: the services the engine
// asks of whatever hosts it.
type Platform interface {
	// LoadFile starts an asynchronous load; completion arrives via file_loaded(id).
	LoadFile(path string) int32
	// TakeFile returns the bytes of a completed load.
	TakeFile(id int32) ([]byte, bool)
	SetClipboard(text string)
}
