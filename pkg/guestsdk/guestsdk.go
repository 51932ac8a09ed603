// Package guestsdk describes the contract between a muehle WASM guest and its
// host.
//
// A guest is a WASI preview1 reactor (GOOS=wasip1, -buildmode=c-shared) that
// exports the muehle table and imports host services from the muehle_v1
// module.
//
// # Host Functions (muehle_v1 module)
//
//   - log(level i32, ptr i32, len i32)
//     Write a log message. Levels: 0=debug, 1=info, 2=warn, 3=error.
//
//   - present(ptr i32, len i32)
//     Hand the rendered scene, as JSON, to the host at the end of a frame.
//
//   - clipboard_set(ptr i32, len i32)
//     Replace the host clipboard with UTF-8 text.
//
//   - fs_load_file(ptr i32, len i32) -> id i32
//     Start loading a file or URL. Completion arrives through the
//     file_loaded(id) export.
//
//   - fs_get_buffer_size(id i32) -> i32
//     Size of a completed load, or -1 when the id is unknown or still pending.
//
//   - fs_take_buffer(id i32, ptr i32, max i32) -> i32
//     Copy up to max bytes of a completed load into guest memory at ptr and
//     release it. Returns the number of bytes copied, or -1.
//
// # Exports
//
// Every name in RequiredExports must be exported with the listed signature,
// together with a memory named "memory". Bytes travel from the host to the
// guest through allocate_vec_u8: the host asks for a buffer, writes into it
// and passes (ptr, len) to the consuming export, which releases the buffer.
package guestsdk

// HostModule is the import module name of the host functions.
const HostModule = "muehle_v1"

// Host function names.
const (
	FuncLog             = "log"
	FuncPresent         = "present"
	FuncClipboardSet    = "clipboard_set"
	FuncFSLoadFile      = "fs_load_file"
	FuncFSGetBufferSize = "fs_get_buffer_size"
	FuncFSTakeBuffer    = "fs_take_buffer"
)

// LogLevel constants for the host log function.
const (
	LogDebug int32 = 0
	LogInfo  int32 = 1
	LogWarn  int32 = 2
	LogError int32 = 3
)

// Export names.
const (
	ExportMain               = "main"
	ExportFrame              = "frame"
	ExportMouseMove          = "mouse_move"
	ExportRawMouseMove       = "raw_mouse_move"
	ExportMouseDown          = "mouse_down"
	ExportMouseUp            = "mouse_up"
	ExportMouseWheel         = "mouse_wheel"
	ExportKeyDown            = "key_down"
	ExportKeyUp              = "key_up"
	ExportKeyPress           = "key_press"
	ExportResize             = "resize"
	ExportTouch              = "touch"
	ExportFilesDroppedStart  = "on_files_dropped_start"
	ExportFilesDroppedFinish = "on_files_dropped_finish"
	ExportFileDropped        = "on_file_dropped"
	ExportFileLoaded         = "file_loaded"
	ExportAllocateVecU8      = "allocate_vec_u8"
	ExportClipboardPaste     = "on_clipboard_paste"

	ExportCrateVersion      = "crate_version"
	ExportAudioCrateVersion = "macroquad_audio_crate_version"
	ExportWbindgenStart     = "__wbindgen_start"
	ExportInitialize        = "_initialize"
	ExportMemory            = "memory"
)

// ValueType mirrors the WASM value type bytes.
type ValueType byte

const (
	I32 ValueType = 0x7f
	I64 ValueType = 0x7e
	F32 ValueType = 0x7d
	F64 ValueType = 0x7c
)

func (v ValueType) String() string {
	switch v {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	}
	return "unknown"
}

// Signature is the parameter and result types of an export.
type Signature struct {
	Params  []ValueType
	Results []ValueType
}

// Export is one entry of the table.
type Export struct {
	Name string
	Signature
}

func sig(params []ValueType, results ...ValueType) Signature {
	return Signature{Params: params, Results: results}
}

// RequiredExports lists the table in declaration order.
var RequiredExports = []Export{
	{ExportMain, sig([]ValueType{I32, I32}, I32)},
	{ExportFrame, sig(nil)},
	{ExportMouseMove, sig([]ValueType{F64, F64})},
	{ExportRawMouseMove, sig([]ValueType{F64, F64})},
	{ExportMouseDown, sig([]ValueType{F64, F64, I32})},
	{ExportMouseUp, sig([]ValueType{F64, F64, I32})},
	{ExportMouseWheel, sig([]ValueType{F64, F64})},
	{ExportKeyDown, sig([]ValueType{I32, I32, I32})},
	{ExportKeyUp, sig([]ValueType{I32, I32})},
	{ExportKeyPress, sig([]ValueType{I32})},
	{ExportResize, sig([]ValueType{F64, F64})},
	{ExportTouch, sig([]ValueType{I32, F64, F64, I32})},
	{ExportFilesDroppedStart, sig(nil)},
	{ExportFilesDroppedFinish, sig(nil)},
	{ExportFileDropped, sig([]ValueType{I32, I32, I32, I32})},
	{ExportFileLoaded, sig([]ValueType{I32})},
	{ExportAllocateVecU8, sig([]ValueType{I32}, I32)},
	{ExportClipboardPaste, sig([]ValueType{I32, I32})},
}

// OptionalExports are checked only when present.
var OptionalExports = []Export{
	{ExportCrateVersion, sig(nil, I32)},
	{ExportAudioCrateVersion, sig(nil, I32)},
	{ExportWbindgenStart, sig(nil)},
	{ExportInitialize, sig(nil)},
}
