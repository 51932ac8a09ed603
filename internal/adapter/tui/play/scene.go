package play

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"muehle-agent/internal/domain"
	"muehle-agent/internal/engine"
)

// SceneBox keeps the last scene and clipboard text an export table handed
// out. It is the presenter for both the engine and a loaded guest.
type SceneBox struct {
	mu        sync.Mutex
	scene     engine.Scene
	has       bool
	clipboard string
}

var _ engine.Presenter = (*SceneBox)(nil)

// NewSceneBox creates an empty box.
func NewSceneBox() *SceneBox { return &SceneBox{} }

// Present stores scene.
func (b *SceneBox) Present(_ context.Context, scene engine.Scene) error {
	b.mu.Lock()
	b.scene, b.has = scene, true
	b.mu.Unlock()
	return nil
}

// Latest returns the last presented scene.
func (b *SceneBox) Latest() (engine.Scene, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scene, b.has
}

// SetClipboard stores copied text.
func (b *SceneBox) SetClipboard(text string) {
	b.mu.Lock()
	b.clipboard = text
	b.mu.Unlock()
}

// Clipboard returns the last copied text.
func (b *SceneBox) Clipboard() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clipboard
}

// LocalPlatform serves an in-process engine: file loads read the local
// file system in the background and complete on a later frame.
type LocalPlatform struct {
	box    *SceneBox
	logger *slog.Logger
	read   func(path string) ([]byte, error)

	mu    sync.Mutex
	next  int32
	files map[int32][]byte
	ready []int32
	wg    sync.WaitGroup
}

var _ domain.Platform = (*LocalPlatform)(nil)

// NewLocalPlatform creates a platform whose clipboard is box.
func NewLocalPlatform(box *SceneBox, logger *slog.Logger) *LocalPlatform {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalPlatform{
		box:    box,
		logger: logger,
		read:   os.ReadFile,
		files:  make(map[int32][]byte),
	}
}

// LoadFile starts reading path. A failed read still completes, so that the
// engine reports the missing file.
func (p *LocalPlatform) LoadFile(path string) int32 {
	p.mu.Lock()
	id := p.next
	p.next++
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		data, err := p.read(path)
		p.mu.Lock()
		defer p.mu.Unlock()
		if err != nil {
			p.logger.Warn("file load failed", "path", path, "error", err)
		} else {
			p.files[id] = data
		}
		p.ready = append(p.ready, id)
	}()
	return id
}

// TakeFile returns and forgets the bytes of load id.
func (p *LocalPlatform) TakeFile(id int32) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.files[id]
	delete(p.files, id)
	return data, ok
}

// SetClipboard stores text in the scene box.
func (p *LocalPlatform) SetClipboard(text string) { p.box.SetClipboard(text) }

// Ready drains the ids of completed loads.
func (p *LocalPlatform) Ready() []int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := p.ready
	p.ready = nil
	return ids
}

// Wait blocks until every started load has completed.
func (p *LocalPlatform) Wait() { p.wg.Wait() }
