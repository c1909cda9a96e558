// Package ws implements the WebSocket scenario engine: subprotocol
// negotiation at upgrade, per-frame classification, heartbeat replies or
// deliberate silence, close handshakes with chosen status codes and a
// periodic notifier.
package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/streamdouble/streamdouble/internal/config"
	"github.com/streamdouble/streamdouble/internal/conn"
	"github.com/streamdouble/streamdouble/internal/metrics"
	"github.com/streamdouble/streamdouble/internal/router"
	"github.com/streamdouble/streamdouble/internal/status"
)

type Server struct {
	cfg      atomic.Pointer[config.WebSocketConfig]
	registry *conn.Registry
	metrics  *metrics.Registry
	status   *status.Reporter
	hub      *hub
	upgrader websocket.Upgrader

	connections   *metrics.CounterVec
	negotiations  *metrics.CounterVec
	frames        *metrics.CounterVec
	received      *metrics.CounterVec
	heartbeats    *metrics.CounterVec
	closes        *metrics.CounterVec
	notifications *metrics.CounterVec
}

func NewServer(cfg config.WebSocketConfig) *Server {
	s := &Server{
		registry: conn.NewRegistry(),
		metrics:  metrics.NewRegistry(),
		hub:      newHub(),
		upgrader: websocket.Upgrader{
			// test clients connect from anywhere
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.cfg.Store(&cfg)
	s.status = status.NewReporter(conn.WebSocket.String(), s.registry)

	s.connections = s.metrics.Counter("ws_connections_total", "Accepted WebSocket sessions by scenario.", "scenario")
	s.negotiations = s.metrics.Counter("ws_subprotocol_negotiations_total", "Subprotocol negotiation results.", "scenario", "protocol")
	s.frames = s.metrics.Counter("ws_frames_sent_total", "Data frames written by scenario.", "scenario")
	s.received = s.metrics.Counter("ws_frames_received_total", "Inbound data frames by scenario and classification.", "scenario", "kind")
	s.heartbeats = s.metrics.Counter("ws_heartbeats_total", "Heartbeat probes by scenario and action.", "scenario", "action")
	s.closes = s.metrics.Counter("ws_closes_total", "Close handshakes by scenario, code and initiator.", "scenario", "code", "initiator")
	s.notifications = s.metrics.Counter("ws_notifications_total", "Unsolicited notifications pushed.", "scenario")
	s.metrics.GaugeFunc("ws_open_connections", "WebSocket sessions currently open.", func() float64 {
		return float64(s.registry.Len())
	})
	return s
}

// SetConfig swaps the configuration used by sessions accepted from now on.
func (s *Server) SetConfig(cfg config.WebSocketConfig) {
	s.cfg.Store(&cfg)
}

func (s *Server) config() config.WebSocketConfig {
	return *s.cfg.Load()
}

func (s *Server) Registry() *conn.Registry {
	return s.registry
}

func (s *Server) Metrics() *metrics.Registry {
	return s.metrics
}

func (s *Server) Routes() []router.Route {
	table := Scenarios()
	routes := make([]router.Route, 0, len(table)+2)
	for _, sc := range table {
		routes = append(routes, router.Route{
			Name:        sc.Name,
			Path:        sc.Path,
			Description: sc.Description,
			Handler:     s.scenarioHandler(sc),
		})
	}
	routes = append(routes,
		router.Route{Name: "status", Path: "/status.json", Description: "live connections", Handler: s.status},
		router.Route{Name: "metrics", Path: "/metrics", Description: "counters", Handler: s.metrics.Handler()},
	)
	return routes
}

func (s *Server) Handler() http.Handler {
	return router.New("WebSocket scenarios", s.Routes()...)
}

// Shutdown sends going-away to every open session and waits for them to
// finish until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	if n := s.hub.closeAll(websocket.CloseGoingAway); n > 0 {
		log.Printf("ws: closing %d sessions", n)
	}
	return s.hub.wait(ctx)
}

func (s *Server) scenarioHandler(sc Scenario) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := s.config()

		var header http.Header
		var protocol string
		if sc.Negotiate {
			protocol = Negotiate(websocket.Subprotocols(r), cfg.Subprotocols)
			if protocol != "" {
				header = http.Header{}
				header.Set("Sec-WebSocket-Protocol", protocol)
			}
			s.negotiations.Inc(sc.Name, protocolLabel(protocol))
		}

		c, err := s.upgrader.Upgrade(w, r, header)
		if err != nil {
			log.Printf("ws: %s upgrade error: %v", sc.Path, err)
			return
		}

		info := conn.New(conn.WebSocket, sc.Name, sc.Path, r.RemoteAddr)
		sess := newSession(s, sc, cfg, c, info, protocol)

		s.registry.Add(info)
		s.hub.add(sess)
		s.connections.Inc(sc.Name)
		defer func() {
			s.hub.remove(sess)
			s.registry.Remove(info)
		}()

		log.Printf("ws: CONNECT %s %s id=%d protocol=%q", sc.Path, r.RemoteAddr, info.ID, protocol)

		sess.open()
		err = sess.run()

		log.Printf("ws: DISCONNECT %s %s id=%d frames=%d reason=%s", sc.Path, r.RemoteAddr, info.ID, info.FramesSent(), endReason(err))
	})
}

func protocolLabel(protocol string) string {
	if protocol == "" {
		return "none"
	}
	return protocol
}

func endReason(err error) string {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Error()
	}
	return "transport: " + err.Error()
}
