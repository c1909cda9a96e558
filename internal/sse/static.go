package sse

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/streamdouble/streamdouble/internal/config"
)

// serveStatic answers the single-shot scenarios: a well-formed response that
// is not an event stream, or a fixed error status.
func (s *Server) serveStatic(cfg config.SSEConfig, sc Scenario, w http.ResponseWriter) {
	if cfg.CORSAllowOrigin != "" {
		w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowOrigin)
	}
	s.static.Inc(sc.Name, strconv.Itoa(sc.Status))

	switch sc.Kind {
	case NotStream:
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(sc.Status)
		body := notStreamPayload{
			Message:   "This is not an event stream",
			Type:      "json",
			Timestamp: timestamp(),
		}
		if err := json.NewEncoder(w).Encode(body); err != nil {
			log.Printf("sse: %s: write body: %v", sc.Path, err)
		}
	case StatusError:
		http.Error(w, sc.Body, sc.Status)
	default:
		http.Error(w, "500 scenario "+sc.Name+" has no static response", http.StatusInternalServerError)
	}
}
