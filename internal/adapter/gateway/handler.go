package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"muehle-agent/internal/agent"
	"muehle-agent/internal/board"
	"muehle-agent/internal/domain"
	"muehle-agent/internal/engine"
	"muehle-agent/internal/game"
	"muehle-agent/pkg/guestsdk"
)

// RPC methods beyond the export table.
const (
	MethodState         = "state"
	MethodSnapshot      = "snapshot"
	MethodSetDifficulty = "set_difficulty"
)

// EventClipboard carries text the session put on the clipboard.
const EventClipboard domain.EventType = "clipboard.set"

// RPCHandler handles one method against the session's engine.
type RPCHandler func(ctx context.Context, e *engine.Engine, payload json.RawMessage) (any, error)

type pointerArgs struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Button int32   `json:"button"`
}

type deltaArgs struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

type keyArgs struct {
	Keycode   int32 `json:"keycode"`
	Modifiers int32 `json:"modifiers"`
	Repeat    int32 `json:"repeat"`
}

type charArgs struct {
	Char int32 `json:"char"`
}

type sizeArgs struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type touchArgs struct {
	Phase int32   `json:"phase"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	ID    int32   `json:"id"`
}

type fileArgs struct {
	Path string `json:"path"`
	Data []byte `json:"data"` // base64 in JSON
}

type loadedArgs struct {
	ID int32 `json:"id"`
}

type pasteArgs struct {
	Text string `json:"text"`
}

type difficultyArgs struct {
	Color      string `json:"color"`
	Difficulty string `json:"difficulty"`
}

// StateResult is the reply to the state method.
type StateResult struct {
	Game     *game.Game `json:"game"`
	White    string     `json:"white"`
	Black    string     `json:"black"`
	Plies    int        `json:"plies"`
	Thinking bool       `json:"thinking"`
}

// SnapshotResult is the reply to the snapshot method.
type SnapshotResult struct {
	Snapshot string `json:"snapshot"`
}

// decode unmarshals payload into a T. An empty payload yields the zero value.
func decode[T any](method string, payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, domain.NewSubSystemError("gateway", method, domain.ErrRPCInvalidPayload, err.Error())
	}
	return v, nil
}

// withArgs decodes the payload, runs call and replies with the rendered scene.
func withArgs[T any](method string, call func(ctx context.Context, e *engine.Engine, args T) error) RPCHandler {
	return func(ctx context.Context, e *engine.Engine, payload json.RawMessage) (any, error) {
		args, err := decode[T](method, payload)
		if err != nil {
			return nil, err
		}
		if err := call(ctx, e, args); err != nil {
			return nil, err
		}
		return e.Render(), nil
	}
}

func noArgs(method string, call func(ctx context.Context, e *engine.Engine) error) RPCHandler {
	return withArgs(method, func(ctx context.Context, e *engine.Engine, _ struct{}) error {
		return call(ctx, e)
	})
}

var rpcMethods = map[string]RPCHandler{
	guestsdk.ExportMain: noArgs(guestsdk.ExportMain, func(ctx context.Context, e *engine.Engine) error {
		_, err := e.Main(ctx, 0, 0)
		return err
	}),
	guestsdk.ExportFrame: noArgs(guestsdk.ExportFrame, func(ctx context.Context, e *engine.Engine) error {
		return e.Frame(ctx)
	}),
	guestsdk.ExportMouseMove: withArgs(guestsdk.ExportMouseMove, func(ctx context.Context, e *engine.Engine, a pointerArgs) error {
		return e.MouseMove(ctx, a.X, a.Y)
	}),
	guestsdk.ExportRawMouseMove: withArgs(guestsdk.ExportRawMouseMove, func(ctx context.Context, e *engine.Engine, a deltaArgs) error {
		return e.RawMouseMove(ctx, a.DX, a.DY)
	}),
	guestsdk.ExportMouseDown: withArgs(guestsdk.ExportMouseDown, func(ctx context.Context, e *engine.Engine, a pointerArgs) error {
		return e.MouseDown(ctx, a.X, a.Y, a.Button)
	}),
	guestsdk.ExportMouseUp: withArgs(guestsdk.ExportMouseUp, func(ctx context.Context, e *engine.Engine, a pointerArgs) error {
		return e.MouseUp(ctx, a.X, a.Y, a.Button)
	}),
	guestsdk.ExportMouseWheel: withArgs(guestsdk.ExportMouseWheel, func(ctx context.Context, e *engine.Engine, a deltaArgs) error {
		return e.MouseWheel(ctx, a.DX, a.DY)
	}),
	guestsdk.ExportKeyDown: withArgs(guestsdk.ExportKeyDown, func(ctx context.Context, e *engine.Engine, a keyArgs) error {
		return e.KeyDown(ctx, a.Keycode, a.Modifiers, a.Repeat)
	}),
	guestsdk.ExportKeyUp: withArgs(guestsdk.ExportKeyUp, func(ctx context.Context, e *engine.Engine, a keyArgs) error {
		return e.KeyUp(ctx, a.Keycode, a.Modifiers)
	}),
	guestsdk.ExportKeyPress: withArgs(guestsdk.ExportKeyPress, func(ctx context.Context, e *engine.Engine, a charArgs) error {
		return e.KeyPress(ctx, a.Char)
	}),
	guestsdk.ExportResize: withArgs(guestsdk.ExportResize, func(ctx context.Context, e *engine.Engine, a sizeArgs) error {
		return e.Resize(ctx, a.Width, a.Height)
	}),
	guestsdk.ExportTouch: withArgs(guestsdk.ExportTouch, func(ctx context.Context, e *engine.Engine, a touchArgs) error {
		return e.Touch(ctx, a.Phase, a.X, a.Y, a.ID)
	}),
	guestsdk.ExportFilesDroppedStart: noArgs(guestsdk.ExportFilesDroppedStart, func(ctx context.Context, e *engine.Engine) error {
		return e.FilesDroppedStart(ctx)
	}),
	guestsdk.ExportFilesDroppedFinish: noArgs(guestsdk.ExportFilesDroppedFinish, func(ctx context.Context, e *engine.Engine) error {
		return e.FilesDroppedFinish(ctx)
	}),
	guestsdk.ExportFileDropped: withArgs(guestsdk.ExportFileDropped, func(ctx context.Context, e *engine.Engine, a fileArgs) error {
		return e.FileDropped(ctx, a.Path, a.Data)
	}),
	guestsdk.ExportFileLoaded: withArgs(guestsdk.ExportFileLoaded, func(ctx context.Context, e *engine.Engine, a loadedArgs) error {
		return e.FileLoaded(ctx, a.ID)
	}),
	guestsdk.ExportClipboardPaste: withArgs(guestsdk.ExportClipboardPaste, func(ctx context.Context, e *engine.Engine, a pasteArgs) error {
		return e.ClipboardPaste(ctx, a.Text)
	}),

	MethodState: func(_ context.Context, e *engine.Engine, _ json.RawMessage) (any, error) {
		white, black := e.Difficulties()
		return StateResult{
			Game:     e.Game(),
			White:    white.String(),
			Black:    black.String(),
			Plies:    e.Plies(),
			Thinking: e.Thinking(),
		}, nil
	},
	MethodSnapshot: func(_ context.Context, e *engine.Engine, _ json.RawMessage) (any, error) {
		return SnapshotResult{Snapshot: e.Snapshot()}, nil
	},
	MethodSetDifficulty: withArgs(MethodSetDifficulty, func(_ context.Context, e *engine.Engine, a difficultyArgs) error {
		c, err := board.ParseColor(a.Color)
		if err != nil {
			return err
		}
		d, err := agent.ParseDifficulty(a.Difficulty)
		if err != nil {
			return err
		}
		return e.SetDifficulty(c, d)
	}),
}

// Methods lists every RPC method the gateway serves.
func Methods() []string {
	out := make([]string, 0, len(rpcMethods))
	for m := range rpcMethods {
		out = append(out, m)
	}
	return out
}

func (s *Server) dispatch(ctx context.Context, cc *clientConn, req Frame) (json.RawMessage, error) {
	handler, ok := rpcMethods[req.Method]
	if !ok {
		return nil, domain.NewSubSystemError("gateway", "dispatch", domain.ErrRPCMethodNotFound, req.Method)
	}
	if err := s.deps.Authz.Authorize(ctx, cc.roles, methodPermission(req.Method)); err != nil {
		return nil, domain.NewSubSystemError("gateway", req.Method, err, "")
	}
	out, err := handler(ctx, cc.engine, req.Payload)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("gateway: encode %s result: %w", req.Method, err)
	}
	return data, nil
}

// connPlatform gives a session's engine a clipboard that reaches the client.
// Sessions have no file system, so loads always fail.
type connPlatform struct {
	s  *Server
	cc *clientConn
}

func (p *connPlatform) LoadFile(string) int32         { return -1 }
func (p *connPlatform) TakeFile(int32) ([]byte, bool) { return nil, false }

func (p *connPlatform) SetClipboard(text string) {
	payload, err := json.Marshal(domain.NewEvent(EventClipboard, p.cc.id, map[string]string{"text": text}))
	if err != nil {
		return
	}
	p.s.send(p.cc, Frame{Type: FrameTypeEvent, Payload: payload})
}
