//go:build wasip1

package main

import (
	"unsafe"

	"muehle-agent/pkg/guestsdk"
)

// pinned holds the buffers handed out by allocate_vec_u8 until the export
// that consumes them runs. The map keeps them reachable; the GC does not
// move heap objects.
var pinned = map[uint32][]byte{}

//go:wasmexport allocate_vec_u8
func allocateVecU8(size int32) int32 {
	if size < 0 {
		return 0
	}
	buf := make([]byte, max(size, 1))
	ptr := uint32(uintptr(unsafe.Pointer(&buf[0])))
	pinned[ptr] = buf[:size]
	return int32(ptr)
}

// take releases a pinned buffer and returns its first size bytes.
func take(ptr, size int32) []byte {
	if size <= 0 && ptr == 0 {
		return nil
	}
	buf, ok := pinned[uint32(ptr)]
	if !ok {
		log.Warn("unknown guest buffer", "ptr", ptr)
		return nil
	}
	delete(pinned, uint32(ptr))
	if int(size) < len(buf) {
		buf = buf[:max(size, 0)]
	}
	return buf
}

// check logs an error returned by the engine; exports have no error result.
func check(export string, err error) {
	if err != nil {
		log.Debug("input rejected", "export", export, "error", err)
	}
}

//go:wasmexport main
func guestMain(argc, argv int32) int32 {
	code, err := eng.Main(ctx, argc, argv)
	check(guestsdk.ExportMain, err)
	return code
}

//go:wasmexport crate_version
func crateVersion() int32 { return 1 }

//go:wasmexport frame
func frame() { check(guestsdk.ExportFrame, eng.Frame(ctx)) }

//go:wasmexport mouse_move
func mouseMove(x, y float64) { check(guestsdk.ExportMouseMove, eng.MouseMove(ctx, x, y)) }

//go:wasmexport raw_mouse_move
func rawMouseMove(dx, dy float64) { check(guestsdk.ExportRawMouseMove, eng.RawMouseMove(ctx, dx, dy)) }

//go:wasmexport mouse_down
func mouseDown(x, y float64, button int32) {
	check(guestsdk.ExportMouseDown, eng.MouseDown(ctx, x, y, button))
}

//go:wasmexport mouse_up
func mouseUp(x, y float64, button int32) {
	check(guestsdk.ExportMouseUp, eng.MouseUp(ctx, x, y, button))
}

//go:wasmexport mouse_wheel
func mouseWheel(dx, dy float64) { check(guestsdk.ExportMouseWheel, eng.MouseWheel(ctx, dx, dy)) }

//go:wasmexport key_down
func keyDown(keycode, modifiers, repeat int32) {
	check(guestsdk.ExportKeyDown, eng.KeyDown(ctx, keycode, modifiers, repeat))
}

//go:wasmexport key_up
func keyUp(keycode, modifiers int32) { check(guestsdk.ExportKeyUp, eng.KeyUp(ctx, keycode, modifiers)) }

//go:wasmexport key_press
func keyPress(char int32) { check(guestsdk.ExportKeyPress, eng.KeyPress(ctx, char)) }

//go:wasmexport resize
func resize(width, height float64) { check(guestsdk.ExportResize, eng.Resize(ctx, width, height)) }

//go:wasmexport touch
func touch(phase int32, x, y float64, id int32) {
	check(guestsdk.ExportTouch, eng.Touch(ctx, phase, x, y, id))
}

//go:wasmexport on_files_dropped_start
func filesDroppedStart() { check(guestsdk.ExportFilesDroppedStart, eng.FilesDroppedStart(ctx)) }

//go:wasmexport on_files_dropped_finish
func filesDroppedFinish() { check(guestsdk.ExportFilesDroppedFinish, eng.FilesDroppedFinish(ctx)) }

//go:wasmexport on_file_dropped
func fileDropped(pathPtr, pathLen, dataPtr, dataLen int32) {
	path := string(take(pathPtr, pathLen))
	data := take(dataPtr, dataLen)
	check(guestsdk.ExportFileDropped, eng.FileDropped(ctx, path, data))
}

//go:wasmexport file_loaded
func fileLoaded(id int32) { check(guestsdk.ExportFileLoaded, eng.FileLoaded(ctx, id)) }

//go:wasmexport on_clipboard_paste
func clipboardPaste(ptr, size int32) {
	text := string(take(ptr, size))
	check(guestsdk.ExportClipboardPaste, eng.ClipboardPaste(ctx, text))
}
