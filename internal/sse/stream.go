package sse

import (
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/streamdouble/streamdouble/internal/conn"
)

// stream is the state owned by one accepted SSE connection. Everything after
// construction is driven by its timer; the handler goroutine only waits for
// the session to end.
type stream struct {
	scenario Scenario
	info     *conn.Info
	w        http.ResponseWriter
	rc       *http.ResponseController
	rng      *rand.Rand
	onFrame  func()

	mu      sync.Mutex
	next    uint64
	sent    int
	resumed bool
	ended   bool
	timer   conn.Timer
	done    chan ending
}

func newStream(sc Scenario, info *conn.Info, w http.ResponseWriter, rng *rand.Rand, start uint64, resumed bool) *stream {
	return &stream{
		scenario: sc,
		info:     info,
		w:        w,
		rc:       http.NewResponseController(w),
		rng:      rng,
		next:     start,
		resumed:  resumed,
		done:     make(chan ending, 1),
	}
}

// resumeFrom decides where numbering starts. A Last-Event-ID header (or the
// lastEventId query parameter some EventSource polyfills use) holding a
// non-negative integer resumes at that value plus one.
func resumeFrom(r *http.Request) (start uint64, resumed bool) {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("lastEventId")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1, false
	}
	token, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || token == math.MaxUint64 {
		return 1, false
	}
	return token + 1, true
}

// start writes the first frame right away; later frames follow the
// scenario's cadence.
func (s *stream) start() {
	s.tick()
}

// schedule must be called with s.mu held.
func (s *stream) schedule() {
	s.timer.Schedule(s.scenario.delay(s.rng), s.tick)
}

func (s *stream) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}

	f, err := s.scenario.frame(s.next, s.sent, s.rng)
	if err != nil {
		s.finish(endPeerGone)
		return
	}
	if err := s.write(f.Format()); err != nil {
		s.finish(endPeerGone)
		return
	}
	s.next++
	s.sent++
	s.info.FrameSent()
	if s.onFrame != nil {
		s.onFrame()
	}

	if s.scenario.Limit > 0 && s.sent >= s.scenario.Limit {
		switch s.scenario.endingFor(s.resumed) {
		case endSevered:
			s.timer.Schedule(s.scenario.Grace, s.sever)
			return
		case endCompleted:
			s.timer.Schedule(s.scenario.Grace, s.complete)
			return
		}
	}
	s.schedule()
}

func (s *stream) sever() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finish(endSevered)
}

func (s *stream) complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finish(endCompleted)
}

// stop ends the session from the handler side, typically because the
// request context is done.
func (s *stream) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finish(endPeerGone)
}

// finish must be called with s.mu held. The timer is stopped before the
// handler is told to release the connection.
func (s *stream) finish(e ending) {
	if s.ended {
		return
	}
	s.ended = true
	s.timer.Stop()
	s.info.MarkClosed()
	s.done <- e
}

func (s *stream) write(b []byte) error {
	if _, err := s.w.Write(b); err != nil {
		return fmt.Errorf("%w: %v", conn.ErrClosed, err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("%w: %v", conn.ErrClosed, err)
	}
	return nil
}

// wait blocks until the session ends on its own or the peer goes away, and
// reports how it ended.
func (s *stream) wait(r *http.Request) ending {
	select {
	case e := <-s.done:
		return e
	case <-r.Context().Done():
		s.stop()
		return <-s.done
	}
}
