// Package metrics exposes Prometheus instruments for search, guest calls,
// the gateway and HTTP routes.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"muehle-agent/internal/agent"
	"muehle-agent/internal/domain"
)

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	reg *prometheus.Registry

	searches       *prometheus.CounterVec
	searchNodes    prometheus.Histogram
	searchDepth    prometheus.Histogram
	searchDuration *prometheus.HistogramVec

	guestCalls        *prometheus.CounterVec
	guestCallDuration *prometheus.HistogramVec

	gatewayConns  prometheus.Gauge
	gatewayFrames *prometheus.CounterVec

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	games *prometheus.CounterVec
}

// New registers every instrument under namespace.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_total",
			Help:      "Searches run by the computer player",
		}, []string{"difficulty", "outcome"}),
		searchNodes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_nodes",
			Help:      "Nodes visited per search",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 10),
		}),
		searchDepth: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_depth",
			Help:      "Deepest completed iteration per search",
			Buckets:   prometheus.LinearBuckets(0, 1, 12),
		}),
		searchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Wall time per search",
			Buckets:   prometheus.DefBuckets,
		}, []string{"difficulty"}),
		guestCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guest_calls_total",
			Help:      "Calls into the WASM guest by export",
		}, []string{"export", "outcome"}),
		guestCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "guest_call_duration_seconds",
			Help:      "Duration of calls into the WASM guest",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 2},
		}, []string{"export"}),
		gatewayConns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gateway_connections",
			Help:      "Open websocket connections",
		}),
		gatewayFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_frames_total",
			Help:      "Websocket frames by direction",
		}, []string{"direction"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		games: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_total",
			Help:      "Finished games by winner",
		}, []string{"winner"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveSearch implements agent.Recorder.
func (m *Metrics) ObserveSearch(difficulty string, res agent.Result, err error) {
	m.searches.WithLabelValues(difficulty, outcome(err)).Inc()
	if err != nil {
		return
	}
	m.searchNodes.Observe(float64(res.Nodes))
	m.searchDepth.Observe(float64(res.Depth))
	m.searchDuration.WithLabelValues(difficulty).Observe(res.Elapsed.Seconds())
}

// ObserveGuestCall records one call into a guest export.
func (m *Metrics) ObserveGuestCall(export string, d time.Duration, err error) {
	m.guestCalls.WithLabelValues(export, outcome(err)).Inc()
	m.guestCallDuration.WithLabelValues(export).Observe(d.Seconds())
}

// ConnOpened and ConnClosed track open websocket connections.
func (m *Metrics) ConnOpened() { m.gatewayConns.Inc() }
func (m *Metrics) ConnClosed() { m.gatewayConns.Dec() }

// Frame counts a websocket frame; direction is "in", "out" or "dropped".
func (m *Metrics) Frame(direction string) { m.gatewayFrames.WithLabelValues(direction).Inc() }

// GameFinished counts a finished game. winner is "White", "Black" or "draw".
func (m *Metrics) GameFinished(winner string) { m.games.WithLabelValues(winner).Inc() }

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, domain.ErrSearchTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrGuestTrap):
		return "trap"
	default:
		return "error"
	}
}

// Middleware records HTTP metrics, labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		status := strconv.Itoa(ww.status)
		m.httpRequests.WithLabelValues(r.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Hijack passes through so websocket upgrades work behind the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
