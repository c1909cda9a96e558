// Package sse implements the Server-Sent Events scenario engine: one stream
// per accepted request, a timer-driven emit loop with strictly increasing
// ids, Last-Event-ID resumption, and scenario-triggered termination.
package sse

import (
	"encoding/json"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/streamdouble/streamdouble/internal/config"
	"github.com/streamdouble/streamdouble/internal/conn"
	"github.com/streamdouble/streamdouble/internal/metrics"
	"github.com/streamdouble/streamdouble/internal/router"
	"github.com/streamdouble/streamdouble/internal/status"
)

type Server struct {
	cfg      atomic.Pointer[config.SSEConfig]
	registry *conn.Registry
	metrics  *metrics.Registry
	status   *status.Reporter

	seedMu sync.Mutex
	seed   *rand.Rand

	connections  *metrics.CounterVec
	frames       *metrics.CounterVec
	terminations *metrics.CounterVec
	resumptions  *metrics.CounterVec
	static       *metrics.CounterVec
}

type ServerOption func(s *Server)

// WithSeed makes the random cadence and payloads reproducible.
func WithSeed(seed uint64) ServerOption {
	return func(s *Server) {
		s.seed = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

func NewServer(cfg config.SSEConfig, opts ...ServerOption) *Server {
	s := &Server{
		registry: conn.NewRegistry(),
		metrics:  metrics.NewRegistry(),
		seed:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	s.cfg.Store(&cfg)
	s.status = status.NewReporter(conn.SSE.String(), s.registry)

	s.connections = s.metrics.Counter("sse_connections_total", "Accepted SSE streams by scenario.", "scenario")
	s.frames = s.metrics.Counter("sse_frames_sent_total", "SSE frames written by scenario.", "scenario")
	s.terminations = s.metrics.Counter("sse_terminations_total", "SSE streams ended, by scenario and reason.", "scenario", "reason")
	s.resumptions = s.metrics.Counter("sse_resumptions_total", "SSE streams resumed from Last-Event-ID.", "scenario")
	s.static = s.metrics.Counter("sse_static_responses_total", "Non-streaming responses by scenario and status.", "scenario", "status")
	s.metrics.GaugeFunc("sse_open_connections", "SSE streams currently open.", func() float64 {
		return float64(s.registry.Len())
	})

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetConfig swaps the configuration used by connections accepted from now
// on. Paths are fixed at construction; only cadences and limits change.
func (s *Server) SetConfig(cfg config.SSEConfig) {
	s.cfg.Store(&cfg)
}

func (s *Server) config() config.SSEConfig {
	return *s.cfg.Load()
}

func (s *Server) Registry() *conn.Registry {
	return s.registry
}

func (s *Server) Metrics() *metrics.Registry {
	return s.metrics
}

// Routes returns one route per scenario plus the status and metrics
// endpoints.
func (s *Server) Routes() []router.Route {
	table := Scenarios(s.config())
	routes := make([]router.Route, 0, len(table)+2)
	for _, sc := range table {
		routes = append(routes, router.Route{
			Name:        sc.Name,
			Path:        sc.Path,
			Description: sc.Description,
			Handler:     s.scenarioHandler(sc.Name),
			Prefix:      sc.Prefix,
		})
	}
	routes = append(routes,
		router.Route{Name: "status", Path: "/status.json", Description: "live connections", Handler: s.status},
		router.Route{Name: "metrics", Path: "/metrics", Description: "counters", Handler: s.metrics.Handler()},
	)
	return routes
}

func (s *Server) Handler() http.Handler {
	return router.New("SSE scenarios", s.Routes()...)
}

func (s *Server) scenarioHandler(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := s.config()
		sc, ok := find(Scenarios(cfg), name)
		if !ok {
			http.NotFound(w, r)
			return
		}
		if sc.Kind == RandomJSON && r.Method == http.MethodPost {
			body, err := requestBody(r)
			if err != nil {
				log.Printf("sse: %s: read request body: %v", sc.Path, err)
			}
			log.Printf("sse: %s %s %s body=%v", r.Method, sc.Path, r.RemoteAddr, body)
		}
		if sc.Kind.Streaming() {
			s.serveStream(cfg, sc, w, r)
			return
		}
		s.serveStatic(cfg, sc, w)
	})
}

const maxRequestBody = 1 << 20

// requestBody reads a POST body for logging. JSON bodies are decoded; anything
// else is kept as the raw string. An empty body is nil.
func requestBody(r *http.Request) (any, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data), nil
	}
	return v, nil
}

func (s *Server) newRand() *rand.Rand {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()
	return rand.New(rand.NewPCG(s.seed.Uint64(), s.seed.Uint64()))
}

func (s *Server) serveStream(cfg config.SSEConfig, sc Scenario, w http.ResponseWriter, r *http.Request) {
	headers := w.Header()
	headers.Del("Content-Type")
	headers.Set("Content-Type", "text/event-stream; charset=utf-8")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	if cfg.CORSAllowOrigin != "" {
		headers.Set("Access-Control-Allow-Origin", cfg.CORSAllowOrigin)
	}
	w.WriteHeader(http.StatusOK)

	// the peer must see a live stream before the first event arrives
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		log.Printf("sse: %s: flush headers: %v", sc.Path, err)
		return
	}

	start, resumed := resumeFrom(r)
	info := conn.New(conn.SSE, sc.Name, sc.Path, r.RemoteAddr)
	st := newStream(sc, info, w, s.newRand(), start, resumed)
	st.onFrame = func() { s.frames.Inc(sc.Name) }

	s.registry.Add(info)
	defer s.registry.Remove(info)
	s.connections.Inc(sc.Name)
	if resumed {
		s.resumptions.Inc(sc.Name)
	}

	log.Printf("sse: CONNECT %s %s id=%d first=%d resumed=%t", sc.Path, r.RemoteAddr, info.ID, start, resumed)

	st.start()
	reason := st.wait(r)

	log.Printf("sse: DISCONNECT %s %s id=%d frames=%d reason=%s", sc.Path, r.RemoteAddr, info.ID, info.FramesSent(), reason)
	s.terminations.Inc(sc.Name, reason.String())

	if reason == endSevered {
		sever(rc)
	}
}

// sever destroys the transport without ending the response, so the peer sees
// a truncated stream rather than a clean end-of-stream.
func sever(rc *http.ResponseController) {
	c, _, err := rc.Hijack()
	if err == nil {
		c.Close()
		return
	}
	panic(http.ErrAbortHandler)
}
