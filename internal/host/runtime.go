// Package host loads muehle WASM guests with wazero and drives them through
// the export table.
package host

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"muehle-agent/internal/domain"
)

// Config holds configuration for the WASM runtime.
type Config struct {
	// MaxMemoryPages is the maximum number of 64KB WASM memory pages.
	// Default 1024 = 64MB.
	MaxMemoryPages uint32
	// MaxModuleBytes bounds a module read from disk or fetched over HTTP.
	MaxModuleBytes int64
	// CallTimeout bounds a single call into the guest.
	CallTimeout time.Duration
	// FetchTimeout bounds downloading a module from a URL.
	FetchTimeout time.Duration
	// CacheDir keeps compiled modules across runs; empty caches in memory.
	CacheDir string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxMemoryPages: 1024,
		MaxModuleBytes: 32 << 20,
		CallTimeout:    2 * time.Second,
		FetchTimeout:   30 * time.Second,
	}
}

// Recorder receives per-call measurements.
type Recorder interface {
	ObserveGuestCall(export string, d time.Duration, err error)
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithBus publishes guest lifecycle events.
func WithBus(bus domain.EventBus) Option { return func(r *Runtime) { r.bus = bus } }

// WithRecorder records guest call metrics.
func WithRecorder(rec Recorder) Option { return func(r *Runtime) { r.recorder = rec } }

// WithHTTPClient replaces the client used to fetch modules by URL.
func WithHTTPClient(c *http.Client) Option { return func(r *Runtime) { r.client = c } }

// Runtime wraps a wazero.Runtime with WASI and the muehle_v1 host module
// already instantiated. Several guests can share one Runtime.
type Runtime struct {
	inner    wazero.Runtime
	cache    wazero.CompilationCache
	config   Config
	logger   *slog.Logger
	bus      domain.EventBus
	recorder Recorder
	client   *http.Client

	mu        sync.RWMutex
	instances map[string]*Instance
	nextID    atomic.Uint64
}

// NewRuntime creates a new WASM runtime. The caller must call Close when done.
func NewRuntime(ctx context.Context, cfg Config, logger *slog.Logger, opts ...Option) (*Runtime, error) {
	def := DefaultConfig()
	if cfg.MaxMemoryPages == 0 {
		cfg.MaxMemoryPages = def.MaxMemoryPages
	}
	if cfg.MaxModuleBytes <= 0 {
		cfg.MaxModuleBytes = def.MaxModuleBytes
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}

	var (
		cache wazero.CompilationCache
		err   error
	)
	if cfg.CacheDir != "" {
		cache, err = wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("%w: compilation cache %s: %v", domain.ErrModuleLoad, cfg.CacheDir, err)
		}
	} else {
		cache = wazero.NewCompilationCache()
	}

	rtCfg := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithMemoryLimitPages(cfg.MaxMemoryPages).
		WithCompilationCache(cache)

	r := &Runtime{
		inner:     wazero.NewRuntimeWithConfig(ctx, rtCfg),
		cache:     cache,
		config:    cfg,
		logger:    logger,
		client:    &http.Client{},
		instances: make(map[string]*Instance),
	}
	for _, opt := range opts {
		opt(r)
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r.inner); err != nil {
		r.inner.Close(ctx)
		return nil, fmt.Errorf("%w: instantiate wasi: %v", domain.ErrModuleLoad, err)
	}
	if err := r.registerHostModule(ctx); err != nil {
		r.inner.Close(ctx)
		return nil, err
	}

	logger.Info("wasm runtime created",
		"max_memory_pages", cfg.MaxMemoryPages,
		"max_memory_mb", cfg.MaxMemoryPages*64/1024,
		"cache_dir", cfg.CacheDir,
	)
	return r, nil
}

// Inner returns the underlying wazero.Runtime.
func (r *Runtime) Inner() wazero.Runtime {
	return r.inner
}

// Config returns the effective configuration.
func (r *Runtime) Config() Config { return r.config }

// Close releases all resources held by the runtime, including every guest.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	instances := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		instances = append(instances, inst)
	}
	r.mu.Unlock()
	for _, inst := range instances {
		inst.Close(ctx)
	}

	if err := r.inner.Close(ctx); err != nil {
		return fmt.Errorf("%w: close runtime: %v", domain.ErrHostClosed, err)
	}
	if err := r.cache.Close(ctx); err != nil {
		r.logger.Warn("close compilation cache failed", "error", err)
	}
	r.logger.Info("wasm runtime closed")
	return nil
}

func (r *Runtime) newName(prefix string) string {
	if prefix == "" {
		prefix = "guest"
	}
	return fmt.Sprintf("%s-%d", prefix, r.nextID.Add(1))
}

func (r *Runtime) register(inst *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[inst.name] = inst
}

func (r *Runtime) unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, name)
}

// lookup finds the instance a host function call came from.
func (r *Runtime) lookup(name string) *Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instances[name]
}

func (r *Runtime) publish(ctx context.Context, typ domain.EventType, sessionID string, payload any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(ctx, domain.NewEvent(typ, sessionID, payload))
}
