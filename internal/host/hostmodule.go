package host

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"muehle-agent/internal/domain"
	"muehle-agent/pkg/guestsdk"
)

var (
	i32x1 = []api.ValueType{api.ValueTypeI32}
	i32x2 = []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}
	i32x3 = []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}
)

// registerHostModule instantiates the muehle_v1 module. Every function
// resolves the calling guest by module name, so one host module serves all
// instances of the runtime.
func (r *Runtime) registerHostModule(ctx context.Context) error {
	builder := r.inner.NewHostModuleBuilder(guestsdk.HostModule)

	// log(level, ptr, len)
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			inst := r.lookup(mod.Name())
			if inst == nil {
				return
			}
			msg, err := ReadString(mod, uint32(stack[1]), uint32(stack[2]))
			if err != nil {
				inst.logger.Error("wasm log: read failed", "error", err)
				return
			}
			switch level := api.DecodeI32(stack[0]); {
			case level <= guestsdk.LogDebug:
				inst.logger.Debug(msg)
			case level == guestsdk.LogInfo:
				inst.logger.Info(msg)
			case level == guestsdk.LogWarn:
				inst.logger.Warn(msg)
			default:
				inst.logger.Error(msg)
			}
		}), i32x3, nil).
		Export(guestsdk.FuncLog)

	// present(ptr, len)
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			inst := r.lookup(mod.Name())
			if inst == nil {
				return
			}
			data, err := ReadBytes(mod, uint32(stack[0]), uint32(stack[1]))
			if err != nil {
				inst.logger.Error("wasm present: read failed", "error", err)
				return
			}
			inst.present(ctx, data)
		}), i32x2, nil).
		Export(guestsdk.FuncPresent)

	// clipboard_set(ptr, len)
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			inst := r.lookup(mod.Name())
			if inst == nil {
				return
			}
			text, err := ReadString(mod, uint32(stack[0]), uint32(stack[1]))
			if err != nil {
				inst.logger.Error("wasm clipboard_set: read failed", "error", err)
				return
			}
			inst.setClipboard(text)
		}), i32x2, nil).
		Export(guestsdk.FuncClipboardSet)

	// fs_load_file(ptr, len) -> id
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			ptr, size := uint32(stack[0]), uint32(stack[1])
			stack[0] = api.EncodeI32(-1)
			inst := r.lookup(mod.Name())
			if inst == nil {
				return
			}
			path, err := ReadString(mod, ptr, size)
			if err != nil {
				inst.logger.Error("wasm fs_load_file: read failed", "error", err)
				return
			}
			stack[0] = api.EncodeI32(inst.loadFile(path))
		}), i32x2, i32x1).
		Export(guestsdk.FuncFSLoadFile)

	// fs_get_buffer_size(id) -> size
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			size := int32(-1)
			if inst := r.lookup(mod.Name()); inst != nil {
				size = inst.bufferSize(api.DecodeI32(stack[0]))
			}
			stack[0] = api.EncodeI32(size)
		}), i32x1, i32x1).
		Export(guestsdk.FuncFSGetBufferSize)

	// fs_take_buffer(id, ptr, max) -> copied
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			id, ptr, max := api.DecodeI32(stack[0]), uint32(stack[1]), api.DecodeI32(stack[2])
			stack[0] = api.EncodeI32(-1)
			inst := r.lookup(mod.Name())
			if inst == nil || max < 0 {
				return
			}
			data, ok := inst.takeBuffer(id)
			if !ok {
				return
			}
			if int(max) < len(data) {
				data = data[:max]
			}
			if len(data) > 0 && !mod.Memory().Write(ptr, data) {
				inst.logger.Error("wasm fs_take_buffer: write out of bounds", "ptr", ptr, "len", len(data))
				return
			}
			stack[0] = api.EncodeI32(int32(len(data)))
		}), i32x3, i32x1).
		Export(guestsdk.FuncFSTakeBuffer)

	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("%w: instantiate host module: %v", domain.ErrModuleLoad, err)
	}
	return nil
}
