package sse

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/streamdouble/streamdouble/internal/config"
)

// Kind is the closed set of behaviours an SSE path can have.
type Kind int

const (
	RandomJSON Kind = iota
	PlainText
	Resumable
	Finite
	NotStream
	StatusError
)

var kindNames = map[Kind]string{
	RandomJSON:  "random-json",
	PlainText:   "plain-text",
	Resumable:   "resumable",
	Finite:      "finite",
	NotStream:   "not-stream",
	StatusError: "status-error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Streaming reports whether connections of this kind run an emit loop.
func (k Kind) Streaming() bool {
	switch k {
	case RandomJSON, PlainText, Resumable, Finite:
		return true
	}
	return false
}

type Scenario struct {
	Name        string
	Path        string
	Prefix      bool
	Kind        Kind
	Description string

	// streaming scenarios
	Event    string
	MinDelay time.Duration
	MaxDelay time.Duration
	Limit    int // frames before the scenario ends the session, 0 for never
	Grace    time.Duration // pause between the last frame and the ending

	// static scenarios
	Status int
	Body   string
}

// Scenarios returns the SSE scenario table for cfg.
func Scenarios(cfg config.SSEConfig) []Scenario {
	return []Scenario{
		{
			Name:        "stream",
			Path:        "/sse",
			Kind:        RandomJSON,
			Description: "endless JSON events at random intervals; POST bodies are logged",
			Event:       "randomJsonEvent",
			MinDelay:    cfg.RandomMinDelay,
			MaxDelay:    cfg.RandomMaxDelay,
		},
		{
			Name:        "text",
			Path:        "/sse-text",
			Kind:        PlainText,
			Description: "endless plain-text events at a fixed interval",
			Event:       "textEvent",
			MinDelay:    cfg.TextInterval,
			MaxDelay:    cfg.TextInterval,
		},
		{
			Name:        "reconnect",
			Path:        "/sse-reconnect",
			Kind:        Resumable,
			Description: "fresh sessions are severed after a few events; resumed sessions (Last-Event-ID) continue",
			Event:       "reconnectEvent",
			MinDelay:    cfg.ReconnectInterval,
			MaxDelay:    cfg.ReconnectInterval,
			Limit:       cfg.ReconnectLimit,
			Grace:       cfg.DisconnectGrace,
		},
		{
			Name:        "disconnect",
			Path:        "/sse-disconnect",
			Kind:        Finite,
			Description: "a few events, then the stream ends cleanly",
			Event:       "disconnectEvent",
			MinDelay:    cfg.FiniteInterval,
			MaxDelay:    cfg.FiniteInterval,
			Limit:       cfg.FiniteLimit,
			Grace:       cfg.DisconnectGrace,
		},
		{
			Name:        "not-stream",
			Path:        "/non-sse",
			Kind:        NotStream,
			Description: "a plain JSON response instead of an event stream",
			Status:      http.StatusOK,
		},
		{
			Name:        "error-404",
			Path:        "/nonexistent",
			Prefix:      true,
			Kind:        StatusError,
			Description: "404 for this path and everything below it",
			Status:      http.StatusNotFound,
			Body:        "Not Found: The requested resource does not exist.",
		},
		{
			Name:        "error-500",
			Path:        "/error-500",
			Kind:        StatusError,
			Description: "always 500",
			Status:      http.StatusInternalServerError,
			Body:        "Internal Server Error",
		},
		{
			Name:        "error-401",
			Path:        "/error-401",
			Kind:        StatusError,
			Description: "always 401",
			Status:      http.StatusUnauthorized,
			Body:        "Unauthorized",
		},
	}
}

func find(table []Scenario, name string) (Scenario, bool) {
	for _, sc := range table {
		if sc.Name == name {
			return sc, true
		}
	}
	return Scenario{}, false
}

// delay picks the wait before the next frame: fixed when the bounds agree,
// otherwise uniform over [MinDelay, MaxDelay].
func (sc Scenario) delay(rng *rand.Rand) time.Duration {
	if sc.MaxDelay <= sc.MinDelay {
		return sc.MinDelay
	}
	return sc.MinDelay + time.Duration(rng.Int64N(int64(sc.MaxDelay-sc.MinDelay)+1))
}

// ending is how a session stops.
type ending int

const (
	endNone ending = iota
	endPeerGone
	endSevered
	endCompleted
)

var endingNames = map[ending]string{
	endNone:      "none",
	endPeerGone:  "peer_gone",
	endSevered:   "severed",
	endCompleted: "completed",
}

func (e ending) String() string {
	if s, ok := endingNames[e]; ok {
		return s
	}
	return "unknown"
}

// endingFor is the termination a scenario applies once Limit frames have
// been sent. Resumed sessions of the resumable scenario run forever.
func (sc Scenario) endingFor(resumed bool) ending {
	if sc.Limit <= 0 {
		return endNone
	}
	switch sc.Kind {
	case Resumable:
		if resumed {
			return endNone
		}
		return endSevered
	case Finite:
		return endCompleted
	}
	return endNone
}

var (
	randomMessages = []string{
		"user signed in",
		"order created",
		"data sync complete",
		"system resource warning",
		"user signed out",
		"file uploaded",
		"api call timed out",
		"database backup complete",
	}
	randomTypes    = []string{"info", "success", "warning", "error"}
	randomStatuses = []string{"active", "inactive"}
)

type randomPayload struct {
	ID        uint64 `json:"id"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Value     int    `json:"value"`
	Status    string `json:"status"`
}

// eventPayload is the body of the reconnect and disconnect scenarios.
type eventPayload struct {
	ID        uint64 `json:"id"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	Type      string `json:"type"`
}

type notStreamPayload struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// frame builds the event for sequence id. sent is the number of frames the
// session has already written.
func (sc Scenario) frame(id uint64, sent int, rng *rand.Rand) (Frame, error) {
	f := Frame{ID: id, Event: sc.Event}

	var v any
	switch sc.Kind {
	case RandomJSON:
		v = randomPayload{
			ID:        id,
			Timestamp: timestamp(),
			Message:   randomMessages[rng.IntN(len(randomMessages))],
			Type:      randomTypes[rng.IntN(len(randomTypes))],
			Value:     rng.IntN(100),
			Status:    randomStatuses[rng.IntN(len(randomStatuses))],
		}
	case PlainText:
		f.Data = []byte(fmt.Sprintf("Text message %d - %s", id, time.Now().Format(time.TimeOnly)))
		return f, nil
	case Resumable:
		v = eventPayload{
			ID:        id,
			Timestamp: timestamp(),
			Message:   fmt.Sprintf("Message %d", id),
			Type:      "info",
		}
	case Finite:
		v = eventPayload{
			ID:        id,
			Timestamp: timestamp(),
			Message:   fmt.Sprintf("Message %d (closing after %d)", sent+1, sc.Limit),
			Type:      "info",
		}
	default:
		return f, fmt.Errorf("sse: scenario %s (%s) does not stream", sc.Name, sc.Kind)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return f, fmt.Errorf("sse: encode %s payload: %w", sc.Kind, err)
	}
	f.Data = data
	return f, nil
}
