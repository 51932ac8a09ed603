package engine

import (
	"context"
	"errors"
	"fmt"

	"muehle-agent/internal/agent"
	"muehle-agent/internal/board"
	"muehle-agent/internal/domain"
	"muehle-agent/internal/game"
)

var _ domain.ExportTable = (*Engine)(nil)

// MouseMove tracks the pointer for drawing the carried piece.
func (e *Engine) MouseMove(_ context.Context, x, y float64) error {
	e.mu.Lock()
	e.mouseX, e.mouseY = x, y
	e.mu.Unlock()
	return nil
}

func (e *Engine) RawMouseMove(context.Context, float64, float64) error { return nil }
func (e *Engine) MouseWheel(context.Context, float64, float64) error   { return nil }

// MouseDown handles the difficulty panel, the restart button and picking up
// a piece, in that order.
func (e *Engine) MouseDown(ctx context.Context, x, y float64, button int32) error {
	if button != domain.MouseLeft {
		return nil
	}
	e.mu.Lock()
	e.mouseX, e.mouseY = x, y
	lx, ly := e.layout.ToLogical(x, y)

	if idx, ok := PanelIndexAt(lx, ly); ok {
		e.setPanelLocked(idx)
		e.mu.Unlock()
		return nil
	}
	if RestartHit(lx, ly) {
		e.restartLocked()
		payload := e.startedPayload()
		e.mu.Unlock()
		e.publish(ctx, domain.EventGameStarted, payload)
		return nil
	}
	defer e.mu.Unlock()

	if _, computer := e.computerDifficulty(); computer {
		return nil
	}
	p, err := PointAt(lx, ly)
	if err != nil {
		e.game.UndoCarry()
		return nil
	}
	if err := e.game.ButtonDown(p); err != nil {
		e.logger.Debug("pick up rejected", "point", p.Human(), "turn", e.game.Turn().String(), "error", err)
		return err
	}
	return nil
}

// MouseUp drops, places or captures on the point under the pointer.
func (e *Engine) MouseUp(ctx context.Context, x, y float64, button int32) error {
	if button != domain.MouseLeft {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mouseX, e.mouseY = x, y

	if _, computer := e.computerDifficulty(); computer || e.forceDraw {
		return nil
	}
	lx, ly := e.layout.ToLogical(x, y)
	p, err := PointAt(lx, ly)
	if err != nil {
		e.game.UndoCarry()
		return nil
	}
	if err := e.game.ButtonUp(p); err != nil {
		e.logger.Debug("move rejected", "point", p.Human(), "turn", e.game.Turn().String(), "error", err)
		return err
	}
	e.forceDraw = true
	e.afterChange(ctx)
	return nil
}

// setPanelLocked applies a click on cell idx of the difficulty panel.
func (e *Engine) setPanelLocked(idx int) {
	d := agent.Difficulty(idx % 4)
	if idx < 4 {
		e.white = d
	} else {
		e.black = d
	}
	e.invalidate()
	e.forceDraw = true
	e.logger.Info("difficulty changed", "white", e.white.String(), "black", e.black.String())
}

// Touch maps the first finger onto the mouse handlers.
func (e *Engine) Touch(ctx context.Context, phase int32, x, y float64, _ int32) error {
	switch phase {
	case domain.TouchStarted:
		return e.MouseDown(ctx, x, y, domain.MouseLeft)
	case domain.TouchMoved:
		return e.MouseMove(ctx, x, y)
	case domain.TouchEnded:
		return e.MouseUp(ctx, x, y, domain.MouseLeft)
	case domain.TouchCancelled:
		e.mu.Lock()
		e.game.UndoCarry()
		e.mu.Unlock()
		return nil
	}
	return fmt.Errorf("%w: touch phase %d", domain.ErrInvalidInput, phase)
}

// Resize recomputes the layout for the new window size.
func (e *Engine) Resize(_ context.Context, width, height float64) error {
	e.mu.Lock()
	e.layout = NewLayout(width, height)
	e.mu.Unlock()
	return nil
}

// KeyDown handles the keyboard shortcuts.
func (e *Engine) KeyDown(ctx context.Context, keycode, modifiers, repeat int32) error {
	if repeat != 0 {
		return nil
	}
	ctrl := modifiers&domain.ModCtrl != 0
	shift := modifiers&domain.ModShift != 0

	switch {
	case keycode == domain.KeyR && !ctrl:
		e.Restart(ctx)
	case keycode == domain.KeyEscape:
		e.mu.Lock()
		e.game.UndoCarry()
		e.mu.Unlock()
	case keycode >= domain.Key1 && keycode <= domain.Key4 && !ctrl:
		color := board.White
		if shift {
			color = board.Black
		}
		return e.SetDifficulty(color, agent.Difficulty(keycode-domain.Key1))
	case keycode == domain.KeyC && ctrl:
		return e.copySnapshot()
	case keycode == domain.KeyV && ctrl:
		// The host answers with on_clipboard_paste.
		e.logger.Debug("paste requested")
	}
	return nil
}

func (e *Engine) KeyUp(context.Context, int32, int32) error { return nil }
func (e *Engine) KeyPress(context.Context, int32) error     { return nil }

func (e *Engine) copySnapshot() error {
	if e.opts.Platform == nil {
		return fmt.Errorf("%w: no platform for clipboard", domain.ErrDisabled)
	}
	text := e.Snapshot()
	e.opts.Platform.SetClipboard(text)
	e.logger.Info("snapshot copied to clipboard")
	return nil
}

// ClipboardPaste loads pasted text as a snapshot or a bare board.
func (e *Engine) ClipboardPaste(ctx context.Context, text string) error {
	return e.loadText(ctx, text, "clipboard")
}

// FilesDroppedStart begins a new drop.
func (e *Engine) FilesDroppedStart(context.Context) error {
	e.mu.Lock()
	e.dropped = e.dropped[:0]
	e.mu.Unlock()
	return nil
}

// FileDropped collects one dropped file.
func (e *Engine) FileDropped(_ context.Context, path string, data []byte) error {
	e.mu.Lock()
	e.dropped = append(e.dropped, droppedFile{path: path, data: append([]byte(nil), data...)})
	e.mu.Unlock()
	return nil
}

// FilesDroppedFinish loads the first dropped file that parses as a snapshot.
func (e *Engine) FilesDroppedFinish(ctx context.Context) error {
	e.mu.Lock()
	files := e.dropped
	e.dropped = nil
	e.mu.Unlock()

	var errs []error
	for _, f := range files {
		g, err := game.LoadString(string(f.data))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.path, err))
			continue
		}
		e.LoadGame(ctx, g, f.path)
		return nil
	}
	if len(files) == 0 {
		return nil
	}
	return domain.NewDomainError("Engine.FilesDroppedFinish", domain.ErrSnapshotFormat, errors.Join(errs...).Error())
}

// FileLoaded completes a load started through the platform.
func (e *Engine) FileLoaded(ctx context.Context, id int32) error {
	e.mu.Lock()
	path, ok := e.loads[id]
	delete(e.loads, id)
	e.mu.Unlock()
	if !ok {
		return domain.NewDomainError("Engine.FileLoaded", domain.ErrNotFound, fmt.Sprintf("load id %d", id))
	}
	if e.opts.Platform == nil {
		return fmt.Errorf("%w: no platform for file loads", domain.ErrDisabled)
	}
	data, ok := e.opts.Platform.TakeFile(id)
	if !ok {
		return domain.NewDomainError("Engine.FileLoaded", domain.ErrNotFound, path)
	}
	return e.loadText(ctx, string(data), path)
}
