package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/oklog/ulid/v2"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"muehle-agent/internal/agent"
	"muehle-agent/internal/domain"
	"muehle-agent/internal/engine"
	"muehle-agent/internal/infra/config"
	"muehle-agent/internal/infra/metrics"
	"muehle-agent/internal/infra/middleware"
)

// Deps holds the collaborators of the gateway.
type Deps struct {
	Agent   *agent.Agent
	Bus     domain.EventBus
	Auth    Authenticator
	Authz   domain.Authorizer // default RBACAuthorizer
	Metrics *metrics.Metrics  // optional
	Logger  *slog.Logger
	Config  config.GatewayConfig

	// White and Black are the computer players of a new session.
	White, Black agent.Difficulty
}

// clientConn tracks a single WebSocket connection and its engine session.
type clientConn struct {
	id        string
	info      *ClientInfo
	roles     []domain.AuthRole
	ws        *websocket.Conn
	engine    *engine.Engine
	sendCh    chan Frame // buffered outbound queue
	done      chan struct{}
	closeOnce sync.Once
}

func (cc *clientConn) close() { cc.closeOnce.Do(func() { close(cc.done) }) }

// Server is the WebSocket gateway. Every connection owns one engine session
// driven by RPC requests; events of that session are forwarded to it.
type Server struct {
	deps    Deps
	logger  *slog.Logger
	clients sync.Map // session ID -> *clientConn
	limiter *middleware.KeyedLimiter
	started time.Time
	total   atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	httpSrv   *http.Server
	boundAddr string
}

// NewServer creates a gateway server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Agent == nil {
		deps.Agent = agent.New(agent.Deps{Logger: deps.Logger, Bus: deps.Bus})
	}
	if deps.Auth == nil {
		deps.Auth = openAuth{}
	}
	if deps.Authz == nil {
		deps.Authz = RBACAuthorizer{}
	}
	if deps.Config.EventsPerSecond <= 0 {
		deps.Config.EventsPerSecond = 60
	}
	if deps.Config.EventBurst <= 0 {
		deps.Config.EventBurst = int(deps.Config.EventsPerSecond)
	}
	if deps.Config.ShutdownTimeout <= 0 {
		deps.Config.ShutdownTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		deps:    deps,
		logger:  deps.Logger.With("component", "gateway"),
		limiter: middleware.NewKeyedLimiter(ctx, deps.Config.EventsPerSecond, deps.Config.EventBurst),
		started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Handler builds the HTTP routes: /ws, /healthz, /metrics and /api/*.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if s.deps.Metrics != nil {
		r.Use(s.deps.Metrics.Middleware)
	}
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)
	if len(s.deps.Config.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.deps.Config.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}
	r.Get("/ws", s.handleUpgrade)

	r.Route("/api", func(r chi.Router) {
		if n := s.deps.Config.HTTPRequestsPer; n > 0 {
			r.Use(httprate.Limit(n, time.Minute, httprate.WithKeyFuncs(s.clientKey)))
		}
		r.With(s.requireAuth(domain.PermAnalyze)).Post("/analyze", s.handleAnalyze)
		r.With(s.requireAuth(domain.PermStatus)).Get("/status", s.handleStatus)
	})
	return r
}

// clientKey keys the HTTP rate limit by client address, looking through
// trusted proxies.
func (s *Server) clientKey(r *http.Request) (string, error) {
	return middleware.ClientIP(r, s.deps.Config.TrustedProxies), nil
}

// Start begins accepting connections on the configured address. It blocks
// until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.deps.Config.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()
	s.httpSrv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	s.logger.Info("gateway started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop closes every connection and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	s.clients.Range(func(key, value any) bool {
		cc := value.(*clientConn)
		cc.close()
		cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
		return true
	})

	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, s.deps.Config.ShutdownTimeout)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// BoundAddr returns the actual address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

// Sessions returns the number of connected sessions.
func (s *Server) Sessions() int {
	n := 0
	s.clients.Range(func(_, _ any) bool { n++; return true })
	return n
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Auth.Authenticate(tokenFrom(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	roles := rolesOf(info)
	if err := s.deps.Authz.Authorize(r.Context(), roles, domain.PermGameWatch); err != nil {
		writeError(w, http.StatusForbidden, err)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: append([]string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		}, s.deps.Config.CORSOrigins...),
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	cc := &clientConn{
		id:     ulid.Make().String(),
		info:   info,
		roles:  roles,
		ws:     ws,
		sendCh: make(chan Frame, 64),
		done:   make(chan struct{}),
	}
	cc.engine = engine.New(engine.Options{
		Platform:  &connPlatform{s: s, cc: cc},
		Mover:     s.deps.Agent,
		Bus:       s.deps.Bus,
		Logger:    s.deps.Logger,
		SessionID: cc.id,
		White:     s.deps.White,
		Black:     s.deps.Black,
	})
	unsub := s.subscribe(cc.id, func(_ context.Context, ev domain.Event) {
		payload, err := json.Marshal(ev)
		if err != nil {
			return
		}
		s.send(cc, Frame{Type: FrameTypeEvent, Payload: payload})
	})

	s.clients.Store(cc.id, cc)
	s.total.Add(1)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ConnOpened()
	}
	logger := s.logger.With("session", cc.id, "client", info.Name,
		"remote", middleware.ClientIP(r, s.deps.Config.TrustedProxies))
	logger.Info("gateway client connected")
	s.publish(domain.EventSessionCreated, cc.id, map[string]string{"client": info.Name})

	go s.writeLoop(cc)

	ctx := r.Context()
	if _, err := cc.engine.Main(ctx, 0, 0); err != nil {
		logger.Warn("engine main failed", "error", err)
	}
	s.readLoop(ctx, cc)

	cc.close()
	unsub()
	cc.engine.Close()
	s.clients.Delete(cc.id)
	s.limiter.Forget(cc.id)
	ws.Close(websocket.StatusNormalClosure, "")
	if s.deps.Metrics != nil {
		s.deps.Metrics.ConnClosed()
	}
	s.publish(domain.EventSessionClosed, cc.id, map[string]int{"plies": cc.engine.Plies()})
	logger.Info("gateway client disconnected")
}

// sessionSubscriber is implemented by buses that can filter by session.
type sessionSubscriber interface {
	SubscribeSession(sessionID string, handler domain.EventHandler) func()
}

func (s *Server) subscribe(sessionID string, handler domain.EventHandler) func() {
	if s.deps.Bus == nil {
		return func() {}
	}
	if ss, ok := s.deps.Bus.(sessionSubscriber); ok {
		return ss.SubscribeSession(sessionID, handler)
	}
	return s.deps.Bus.SubscribeAll(func(ctx context.Context, ev domain.Event) {
		if ev.SessionID == sessionID {
			handler(ctx, ev)
		}
	})
}

func (s *Server) publish(typ domain.EventType, sessionID string, payload any) {
	if s.deps.Bus == nil {
		return
	}
	s.deps.Bus.Publish(s.ctx, domain.NewEvent(typ, sessionID, payload))
}

// readLoop dispatches requests in arrival order; the engine sees one
// caller at a time.
func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		default:
		}

		var frame Frame
		if err := wsjson.Read(ctx, cc.ws, &frame); err != nil {
			return
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.Frame("in")
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		if !s.limiter.Allow(cc.id) {
			s.respond(cc, frame.ID, nil, domain.NewSubSystemError("gateway", frame.Method, domain.ErrRateLimit, ""))
			continue
		}
		result, err := s.dispatch(ctx, cc, frame)
		s.respond(cc, frame.ID, result, err)
	}
}

func (s *Server) writeLoop(cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		case frame := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
			err := wsjson.Write(ctx, cc.ws, frame)
			cancel()
			if err != nil {
				return
			}
			if s.deps.Metrics != nil {
				s.deps.Metrics.Frame("out")
			}
		}
	}
}

// send queues a frame; a full queue drops it.
func (s *Server) send(cc *clientConn, frame Frame) {
	select {
	case <-cc.done:
	case cc.sendCh <- frame:
	default:
		s.logger.Warn("gateway: dropped frame for slow client", "session", cc.id, "type", frame.Type)
	}
}

func (s *Server) respond(cc *clientConn, id uint64, result json.RawMessage, err error) {
	resp := Frame{Type: FrameTypeResponse, ID: id, Payload: result}
	if err != nil {
		resp.Error = err.Error()
		resp.Code = string(domain.ErrorCodeOf(err))
	}
	s.send(cc, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(domain.ErrorCodeOf(err)),
	})
}

// requireAuth authenticates /api requests and checks that the client's
// roles grant perm.
func (s *Server) requireAuth(perm domain.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := s.deps.Auth.Authenticate(tokenFrom(r))
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			roles := rolesOf(info)
			if err := s.deps.Authz.Authorize(r.Context(), roles, perm); err != nil {
				writeError(w, http.StatusForbidden, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(domain.ContextWithRoles(r.Context(), roles)))
		})
	}
}
