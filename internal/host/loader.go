package host

import (
	"context"
	"fmt"
	"io"

	"github.com/tetratelabs/wazero"

	"muehle-agent/internal/domain"
)

// InitResult is delivered by InitAsync.
type InitResult struct {
	Instance *Instance
	Err      error
}

// Compile compiles and validates a module without instantiating it.
func Compile(ctx context.Context, rt *Runtime, wasm []byte) (wazero.CompiledModule, error) {
	if int64(len(wasm)) > rt.config.MaxModuleBytes {
		return nil, fmt.Errorf("%w: module is %d bytes, limit %d", domain.ErrModuleLoad, len(wasm), rt.config.MaxModuleBytes)
	}
	compiled, err := rt.inner.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("%w: compile: %v", domain.ErrModuleLoad, err)
	}
	if err := Validate(compiled); err != nil {
		compiled.Close(ctx)
		return nil, err
	}
	return compiled, nil
}

// InitSync compiles, validates and instantiates wasm.
func InitSync(ctx context.Context, rt *Runtime, wasm []byte, opts Options) (*Instance, error) {
	compiled, err := Compile(ctx, rt, wasm)
	if err != nil {
		return nil, err
	}
	return InitCompiled(ctx, rt, compiled, opts)
}

// InitCompiled validates and instantiates an already compiled module. The
// compiled module can be instantiated again.
func InitCompiled(ctx context.Context, rt *Runtime, compiled wazero.CompiledModule, opts Options) (*Instance, error) {
	if err := Validate(compiled); err != nil {
		return nil, err
	}
	return newInstance(ctx, rt, compiled, opts)
}

// InitReader reads the whole module from r, bounded by MaxModuleBytes.
func InitReader(ctx context.Context, rt *Runtime, r io.Reader, opts Options) (*Instance, error) {
	wasm, err := readLimited(r, rt.config.MaxModuleBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: read module: %v", domain.ErrModuleLoad, err)
	}
	return InitSync(ctx, rt, wasm, opts)
}

// Init loads a module from a local path or an http(s) URL.
func Init(ctx context.Context, rt *Runtime, location string, opts Options) (*Instance, error) {
	wasm, err := rt.readLocation(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrModuleLoad, location, err)
	}
	rt.logger.Debug("wasm module read", "location", location, "bytes", len(wasm))
	return InitSync(ctx, rt, wasm, opts)
}

// InitAsync runs Init on a goroutine. The channel yields exactly one result
// and is then closed.
func InitAsync(ctx context.Context, rt *Runtime, location string, opts Options) <-chan InitResult {
	ch := make(chan InitResult, 1)
	go func() {
		defer close(ch)
		inst, err := Init(ctx, rt, location, opts)
		ch <- InitResult{Instance: inst, Err: err}
	}()
	return ch
}
