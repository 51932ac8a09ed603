//go:build wasip1

package guestsdk

import "unsafe"

//go:wasmimport muehle_v1 log
func hostLog(level int32, ptr unsafe.Pointer, size int32)

//go:wasmimport muehle_v1 present
func hostPresent(ptr unsafe.Pointer, size int32)

//go:wasmimport muehle_v1 clipboard_set
func hostClipboardSet(ptr unsafe.Pointer, size int32)

//go:wasmimport muehle_v1 fs_load_file
func hostLoadFile(ptr unsafe.Pointer, size int32) int32

//go:wasmimport muehle_v1 fs_get_buffer_size
func hostBufferSize(id int32) int32

//go:wasmimport muehle_v1 fs_take_buffer
func hostTakeBuffer(id int32, ptr unsafe.Pointer, max int32) int32

func bytesPtr(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

// Log writes a message to the host log.
func Log(level int32, msg string) {
	b := []byte(msg)
	hostLog(level, bytesPtr(b), int32(len(b)))
}

// Present hands a rendered scene to the host.
func Present(sceneJSON []byte) {
	hostPresent(bytesPtr(sceneJSON), int32(len(sceneJSON)))
}

// SetClipboard replaces the host clipboard.
func SetClipboard(text string) {
	b := []byte(text)
	hostClipboardSet(bytesPtr(b), int32(len(b)))
}

// LoadFile starts an asynchronous load and returns its id.
func LoadFile(path string) int32 {
	b := []byte(path)
	return hostLoadFile(bytesPtr(b), int32(len(b)))
}

// TakeFile returns the bytes of a completed load.
func TakeFile(id int32) ([]byte, bool) {
	n := hostBufferSize(id)
	if n < 0 {
		return nil, false
	}
	buf := make([]byte, n)
	got := hostTakeBuffer(id, bytesPtr(buf), n)
	if got < 0 {
		return nil, false
	}
	return buf[:got], true
}
