package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/streamdouble/streamdouble/internal/config"
	"github.com/streamdouble/streamdouble/internal/conn"
)

type State int

const (
	Connecting State = iota
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	}
	return "closed"
}

// wsConn is the subset of *websocket.Conn a session drives.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetCloseHandler(h func(code int, text string) error)
	Close() error
}

// session owns one accepted socket. mu guards the state and serializes every
// write, since gorilla allows a single concurrent writer.
type session struct {
	srv      *Server
	scenario Scenario
	cfg      config.WebSocketConfig
	conn     wsConn
	info     *conn.Info
	protocol string

	mu       sync.Mutex
	state    State
	seq      uint64
	notifier conn.Timer
	grace    conn.Timer

	// done is closed once teardown has released the session.
	done     chan struct{}
	doneOnce sync.Once
}

func newSession(srv *Server, sc Scenario, cfg config.WebSocketConfig, c wsConn, info *conn.Info, protocol string) *session {
	s := &session{
		srv:      srv,
		scenario: sc,
		cfg:      cfg,
		conn:     c,
		info:     info,
		protocol: protocol,
		done:     make(chan struct{}),
	}
	c.SetCloseHandler(s.onPeerClose)
	return s
}

func (s *session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// open moves the session to Open, greets the peer and starts the notifier
// for scenarios that push unsolicited traffic.
func (s *session) open() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Connecting {
		return
	}
	s.state = Open

	welcome := WelcomeMessage{
		Type:      MsgWelcome,
		Message:   "connected",
		Timestamp: timestamp(),
		Scenario:  s.scenario.Name,
		Heartbeat: s.scenario.Heartbeat.String(),
		Reconnect: s.scenario.Reconnect,
	}
	if s.protocol != "" {
		welcome.Protocol = &s.protocol
	}
	if err := s.sendLocked(welcome); err != nil {
		return
	}
	if s.scenario.Notify {
		s.scheduleNotify()
	}
}

// run reads until the socket fails or completes a close handshake, then
// tears the session down. It returns how the session ended.
func (s *session) run() error {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			s.teardown()
			return err
		}
		s.handle(mt, data)
	}
}

func (s *session) handle(mt int, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ws: %s id=%d: message handler panic: %v", s.scenario.Path, s.info.ID, r)
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.state == Open {
				s.sendLocked(ErrorMessage{Type: MsgError, Message: fmt.Sprint(r), Timestamp: timestamp()})
			}
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Open {
		log.Printf("ws: %s id=%d: ignoring %d byte frame while %s", s.scenario.Path, s.info.ID, len(data), s.state)
		return
	}

	in := classify(s.scenario, mt, data)
	s.srv.received.Inc(s.scenario.Name, in.kind.String())

	switch in.kind {
	case inHeartbeat:
		pong := TextPong
		if in.messageType == websocket.BinaryMessage {
			pong = BinaryPong
		}
		s.heartbeatLocked(in.messageType, pong)
	case inCommand:
		s.commandLocked(in.messageType, in.cmd)
	case inText:
		s.sendLocked(TextEchoMessage{Type: MsgEcho, Message: string(data), Timestamp: timestamp()})
	case inBinary:
		s.writeLocked(websocket.BinaryMessage, data)
	}
}

// heartbeatLocked answers a probe with pong in the frame type the probe
// arrived in. Only HeartbeatReply scenarios answer.
func (s *session) heartbeatLocked(messageType int, pong string) {
	if s.scenario.Heartbeat != HeartbeatReply {
		s.srv.heartbeats.Inc(s.scenario.Name, "ignored")
		return
	}
	if err := s.writeLocked(messageType, []byte(pong)); err == nil {
		s.srv.heartbeats.Inc(s.scenario.Name, "replied")
	}
}

func (s *session) commandLocked(messageType int, cmd Command) {
	if code, ok := cmd.CloseCode(); ok {
		s.closeLocked(code)
		return
	}

	switch cmd.Type {
	case CmdPing:
		s.heartbeatLocked(messageType, TextPong)
	case CmdEcho:
		s.sendLocked(EchoMessage{Type: MsgEcho, Original: cmd.Raw, Timestamp: timestamp()})
	default:
		s.sendLocked(ResponseMessage{Type: MsgResponse, Received: cmd.Raw, Timestamp: timestamp()})
	}
}

// close starts a server-initiated close with code. It is a no-op unless the
// session is Open.
func (s *session) close(code int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked(code)
}

func (s *session) closeLocked(code int) bool {
	if s.state != Open {
		log.Printf("ws: %s id=%d: close %d ignored while %s", s.scenario.Path, s.info.ID, code, s.state)
		return false
	}
	s.state = Closing
	s.notifier.Stop()
	s.srv.closes.Inc(s.scenario.Name, fmt.Sprint(code), "server")

	// 1006 must never appear in a close frame; the peer only observes it
	// when the transport disappears without one.
	if code == websocket.CloseAbnormalClosure {
		log.Printf("ws: %s id=%d: dropping transport without close frame", s.scenario.Path, s.info.ID)
		s.conn.Close()
		return true
	}

	msg := websocket.FormatCloseMessage(code, closeReason(code))
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		log.Printf("ws: %s id=%d: write close %d: %v", s.scenario.Path, s.info.ID, code, err)
		s.conn.Close()
		return true
	}
	log.Printf("ws: %s id=%d: sent close %d", s.scenario.Path, s.info.ID, code)
	s.grace.Schedule(s.cfg.CloseGrace, s.expireGrace)
	return true
}

func closeReason(code int) string {
	for _, action := range closeCommands {
		if action.code == code {
			return action.reason
		}
	}
	return ""
}

// expireGrace drops a transport whose peer never answered our close frame.
func (s *session) expireGrace() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closing {
		log.Printf("ws: %s id=%d: no close reply within %v", s.scenario.Path, s.info.ID, s.cfg.CloseGrace)
		s.conn.Close()
	}
}

// onPeerClose replaces gorilla's default close handler. A peer-initiated
// close is echoed once; the reply to our own close frame needs no answer.
func (s *session) onPeerClose(code int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Open {
		return nil
	}
	s.state = Closing
	s.notifier.Stop()
	s.srv.closes.Inc(s.scenario.Name, fmt.Sprint(code), "client")

	msg := websocket.FormatCloseMessage(code, "")
	if code == websocket.CloseNoStatusReceived {
		msg = websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	}
	err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		log.Printf("ws: %s id=%d: echo close %d: %v", s.scenario.Path, s.info.ID, code, err)
	}
	return nil
}

// teardown releases everything the session owns. Both timers are stopped
// before the transport is closed.
func (s *session) teardown() {
	s.mu.Lock()
	s.state = Closed
	s.notifier.Stop()
	s.grace.Stop()
	s.info.MarkClosed()
	s.mu.Unlock()

	s.conn.Close()
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *session) sendLocked(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("ws: %s id=%d: encode %T: %v", s.scenario.Path, s.info.ID, v, err)
		msg, _ := json.Marshal(ErrorMessage{Type: MsgError, Message: err.Error(), Timestamp: timestamp()})
		return s.writeLocked(websocket.TextMessage, msg)
	}
	return s.writeLocked(websocket.TextMessage, data)
}

// writeLocked writes one data frame. A failed write means the peer is gone:
// scheduled work stops and the transport is closed so the read loop ends.
func (s *session) writeLocked(messageType int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return s.writeFailed(err)
	}
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		return s.writeFailed(err)
	}
	s.info.FrameSent()
	s.srv.frames.Inc(s.scenario.Name)
	return nil
}

func (s *session) writeFailed(err error) error {
	log.Printf("ws: %s id=%d: write: %v", s.scenario.Path, s.info.ID, err)
	s.notifier.Stop()
	s.conn.Close()
	return fmt.Errorf("%w: %v", conn.ErrClosed, err)
}
