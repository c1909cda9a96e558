package ws

import (
	"context"
	"sync"
)

// hub tracks the sessions of one listener so they can be closed together.
type hub struct {
	mu       sync.RWMutex
	sessions map[*session]bool
}

func newHub() *hub {
	return &hub{sessions: make(map[*session]bool)}
}

func (h *hub) add(s *session) {
	h.mu.Lock()
	h.sessions[s] = true
	h.mu.Unlock()
}

func (h *hub) remove(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
}

func (h *hub) snapshot() []*session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sessions := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// closeAll starts a close handshake with code on every open session and
// returns how many were asked to close.
func (h *hub) closeAll(code int) int {
	n := 0
	for _, s := range h.snapshot() {
		if s.close(code) {
			n++
		}
	}
	return n
}

// wait blocks until every session present when it is called has been torn
// down, or ctx is done.
func (h *hub) wait(ctx context.Context) error {
	for _, s := range h.snapshot() {
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
