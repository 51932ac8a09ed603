//go:build wasip1

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"muehle-agent/internal/engine"
	"muehle-agent/pkg/guestsdk"
)

// hostPlatform serves file loads and the clipboard from the host module.
type hostPlatform struct{}

func (hostPlatform) LoadFile(path string) int32 { return guestsdk.LoadFile(path) }
func (hostPlatform) TakeFile(id int32) ([]byte, bool) { return guestsdk.TakeFile(id) }
func (hostPlatform) SetClipboard(text string) { guestsdk.SetClipboard(text) }

// hostPresenter hands every frame to the host as JSON.
type hostPresenter struct{}

func (hostPresenter) Present(_ context.Context, s engine.Scene) error {
	data, err := engine.EncodeScene(s)
	if err != nil {
		return err
	}
	guestsdk.Present(data)
	return nil
}

// hostHandler is a slog.Handler writing "msg key=value ..." lines to the
// host log.
type hostHandler struct {
	level slog.Level
	attrs []slog.Attr
	group string
}

func (h *hostHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.level }

func (h *hostHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	write := func(a slog.Attr) bool {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		fmt.Fprintf(&b, " %s=%v", key, a.Value)
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(write)
	guestsdk.Log(hostLevel(r.Level), b.String())
	return nil
}

func (h *hostHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &c
}

func (h *hostHandler) WithGroup(name string) slog.Handler {
	c := *h
	if c.group != "" {
		name = c.group + "." + name
	}
	c.group = name
	return &c
}

func hostLevel(l slog.Level) int32 {
	switch {
	case l >= slog.LevelError:
		return guestsdk.LogError
	case l >= slog.LevelWarn:
		return guestsdk.LogWarn
	case l >= slog.LevelInfo:
		return guestsdk.LogInfo
	default:
		return guestsdk.LogDebug
	}
}
