package host

import (
	"muehle-agent/pkg/guestsdk"
)

// Value types and opcodes used by the hand-assembled test guests.
const (
	tI32 byte = 0x7f
	tF64 byte = 0x7c

	opUnreachable byte = 0x00
	opLoop        byte = 0x03
	opBr          byte = 0x0c
	opEnd         byte = 0x0b
	opCall        byte = 0x10
	opDrop        byte = 0x1a
	opLocalGet    byte = 0x20
	opLocalSet    byte = 0x21
	opI32Store    byte = 0x36
	opF64Store    byte = 0x39
	opI32Const    byte = 0x41
)

type wasmImport struct {
	module, name    string
	params, results []byte
}

type wasmFunc struct {
	export          string
	params, results []byte
	locals          []byte
	body            []byte
}

type wasmData struct {
	offset int32
	bytes  []byte
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func vec(items ...[]byte) []byte {
	out := uleb(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func name(s string) []byte { return append(uleb(uint32(len(s))), s...) }

func section(id byte, content []byte) []byte {
	return append(append([]byte{id}, uleb(uint32(len(content)))...), content...)
}

func funcType(params, results []byte) []byte {
	out := []byte{0x60}
	out = append(out, uleb(uint32(len(params)))...)
	out = append(out, params...)
	out = append(out, uleb(uint32(len(results)))...)
	return append(out, results...)
}

// buildModule assembles a module with one type per function, a single
// one-page memory exported as "memory" when withMemory is set, and active
// data segments.
func buildModule(imports []wasmImport, funcs []wasmFunc, data []wasmData, withMemory bool) []byte {
	var types, imps, fnIdx, exports, bodies, segs [][]byte

	for i, im := range imports {
		types = append(types, funcType(im.params, im.results))
		imps = append(imps, append(append(name(im.module), name(im.name)...), append([]byte{0x00}, uleb(uint32(i))...)...))
	}
	for i, f := range funcs {
		typeIdx := uint32(len(imports) + i)
		types = append(types, funcType(f.params, f.results))
		fnIdx = append(fnIdx, uleb(typeIdx))
		if f.export != "" {
			exports = append(exports, append(name(f.export), append([]byte{0x00}, uleb(uint32(len(imports)+i))...)...))
		}
		var locals [][]byte
		for _, l := range f.locals {
			locals = append(locals, []byte{0x01, l})
		}
		code := append(vec(locals...), f.body...)
		code = append(code, opEnd)
		bodies = append(bodies, append(uleb(uint32(len(code))), code...))
	}
	if withMemory {
		exports = append(exports, append(name(guestsdk.ExportMemory), 0x02, 0x00))
	}
	for _, d := range data {
		seg := []byte{0x00, opI32Const}
		seg = append(seg, sleb(d.offset)...)
		seg = append(seg, opEnd)
		seg = append(seg, uleb(uint32(len(d.bytes)))...)
		seg = append(seg, d.bytes...)
		segs = append(segs, seg)
	}

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = append(out, section(1, vec(types...))...)
	if len(imps) > 0 {
		out = append(out, section(2, vec(imps...))...)
	}
	out = append(out, section(3, vec(fnIdx...))...)
	if withMemory || len(segs) > 0 {
		out = append(out, section(5, vec([]byte{0x00, 0x01}))...)
	}
	out = append(out, section(7, vec(exports...))...)
	out = append(out, section(10, vec(bodies...))...)
	if len(segs) > 0 {
		out = append(out, section(11, vec(segs...))...)
	}
	return out
}

// Host function indices in testImports order.
const (
	hostLogIdx = iota
	hostPresentIdx
	hostClipboardIdx
	hostLoadFileIdx
	hostBufferSizeIdx
	hostTakeBufferIdx
)

var testImports = []wasmImport{
	{guestsdk.HostModule, guestsdk.FuncLog, []byte{tI32, tI32, tI32}, nil},
	{guestsdk.HostModule, guestsdk.FuncPresent, []byte{tI32, tI32}, nil},
	{guestsdk.HostModule, guestsdk.FuncClipboardSet, []byte{tI32, tI32}, nil},
	{guestsdk.HostModule, guestsdk.FuncFSLoadFile, []byte{tI32, tI32}, []byte{tI32}},
	{guestsdk.HostModule, guestsdk.FuncFSGetBufferSize, []byte{tI32}, []byte{tI32}},
	{guestsdk.HostModule, guestsdk.FuncFSTakeBuffer, []byte{tI32, tI32, tI32}, []byte{tI32}},
}

// Guest memory layout.
const (
	sceneAddr     = 64
	pathAddr      = 512
	logAddr       = 768
	allocAddr     = 1024
	fileBufAddr   = 2048
	buttonAddr    = 0
	mouseXAddr    = 8
	touchIDAddr   = 16
	startupPath   = "startup.txt"
	guestLogLine  = "frame rendered"
	testSceneJSON = `{"frame":7,"width":1280,"height":1600,"background":4139058,"state":"Normal","turn":"White","sprites":[{"image":"board","x":0,"y":0,"scale":1}]}`
)

func i32c(v int32) []byte { return append([]byte{opI32Const}, sleb(v)...) }
func get(i uint32) []byte { return append([]byte{opLocalGet}, uleb(i)...) }
func call(i uint32) []byte { return append([]byte{opCall}, uleb(i)...) }

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// testGuest builds a guest implementing the whole table. overrides replaces
// the body of the named exports.
func testGuest(overrides map[string][]byte) []byte {
	bodies := map[string][]byte{
		// main: start loading startupPath, return 0.
		guestsdk.ExportMain: cat(i32c(pathAddr), i32c(int32(len(startupPath))), call(hostLoadFileIdx), []byte{opDrop}, i32c(0)),
		// frame: log and present the static scene.
		guestsdk.ExportFrame: cat(
			i32c(guestsdk.LogInfo), i32c(logAddr), i32c(int32(len(guestLogLine))), call(hostLogIdx),
			i32c(sceneAddr), i32c(int32(len(testSceneJSON))), call(hostPresentIdx),
		),
		// mouse_down: store button at 0 and x at 8.
		guestsdk.ExportMouseDown: cat(
			i32c(buttonAddr), get(2), []byte{opI32Store, 0x02, 0x00},
			i32c(mouseXAddr), get(0), []byte{opF64Store, 0x03, 0x00},
		),
		// touch: store id at 16.
		guestsdk.ExportTouch: cat(i32c(touchIDAddr), get(3), []byte{opI32Store, 0x02, 0x00}),
		// on_file_dropped: echo the file bytes to the clipboard.
		guestsdk.ExportFileDropped: cat(get(2), get(3), call(hostClipboardIdx)),
		// file_loaded: take the buffer and echo it to the clipboard.
		guestsdk.ExportFileLoaded: cat(
			get(0), call(hostBufferSizeIdx), []byte{opLocalSet, 0x01},
			get(0), i32c(fileBufAddr), get(1), call(hostTakeBufferIdx), []byte{opDrop},
			i32c(fileBufAddr), get(1), call(hostClipboardIdx),
		),
		guestsdk.ExportAllocateVecU8: i32c(allocAddr),
		// on_clipboard_paste: echo the text back to the clipboard.
		guestsdk.ExportClipboardPaste: cat(get(0), get(1), call(hostClipboardIdx)),
		guestsdk.ExportCrateVersion:   i32c(42),
	}
	for k, v := range overrides {
		bodies[k] = v
	}

	var funcs []wasmFunc
	exports := append(append([]guestsdk.Export{}, guestsdk.RequiredExports...), guestsdk.OptionalExports[0])
	for _, e := range exports {
		f := wasmFunc{export: e.Name, params: valueBytes(e.Params), results: valueBytes(e.Results), body: bodies[e.Name]}
		if e.Name == guestsdk.ExportFileLoaded {
			f.locals = []byte{tI32}
		}
		funcs = append(funcs, f)
	}
	data := []wasmData{
		{sceneAddr, []byte(testSceneJSON)},
		{pathAddr, []byte(startupPath)},
		{logAddr, []byte(guestLogLine)},
	}
	return buildModule(testImports, funcs, data, true)
}

func valueBytes(ts []guestsdk.ValueType) []byte {
	out := make([]byte, len(ts))
	for i, t := range ts {
		out[i] = byte(t)
	}
	return out
}

var (
	trapBody     = []byte{opUnreachable}
	infiniteLoop = []byte{opLoop, 0x40, opBr, 0x00, opEnd}
)
