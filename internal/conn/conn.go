// Package conn holds the per-connection bookkeeping shared by the SSE and
// WebSocket engines: identity, liveness, cancellable timers and the registry
// of live connections a listener reports on.
package conn

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by writes attempted after a connection has been torn
// down, whether by the peer or by a scenario.
var ErrClosed = errors.New("conn: connection closed")

type Kind int

const (
	SSE Kind = iota
	WebSocket
)

var kindNames = map[Kind]string{
	SSE:       "sse",
	WebSocket: "websocket",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for kind, name := range kindNames {
		if name == s {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("conn: unknown transport %q", s)
}

var lastID atomic.Uint64

// Info describes one accepted transport session.
type Info struct {
	ID         uint64
	Kind       Kind
	Scenario   string
	Path       string
	RemoteAddr string
	Created    time.Time

	closed     atomic.Bool
	framesSent atomic.Uint64
}

func New(kind Kind, scenario, path, remoteAddr string) *Info {
	return &Info{
		ID:         lastID.Add(1),
		Kind:       kind,
		Scenario:   scenario,
		Path:       path,
		RemoteAddr: remoteAddr,
		Created:    time.Now(),
	}
}

// Live reports whether the connection has not been torn down yet.
func (i *Info) Live() bool {
	return !i.closed.Load()
}

// MarkClosed clears the liveness flag. It returns true only for the call that
// actually performed the transition.
func (i *Info) MarkClosed() bool {
	return i.closed.CompareAndSwap(false, true)
}

func (i *Info) FrameSent() {
	i.framesSent.Add(1)
}

func (i *Info) FramesSent() uint64 {
	return i.framesSent.Load()
}

type Status struct {
	ID         uint64 `json:"id"`
	Kind       Kind   `json:"transport"`
	Scenario   string `json:"scenario"`
	Path       string `json:"request_path"`
	RemoteAddr string `json:"client_ip"`
	Created    int64  `json:"created_at"`
	AgeSeconds int64  `json:"age_seconds"`
	FramesSent uint64 `json:"frames_sent"`
	Live       bool   `json:"live"`
}

func (i *Info) Status() Status {
	return Status{
		ID:         i.ID,
		Kind:       i.Kind,
		Scenario:   i.Scenario,
		Path:       i.Path,
		RemoteAddr: i.RemoteAddr,
		Created:    i.Created.Unix(),
		AgeSeconds: int64(time.Since(i.Created).Seconds()),
		FramesSent: i.FramesSent(),
		Live:       i.Live(),
	}
}
