package ws

import "fmt"

// scheduleNotify arms the notifier. Must be called with s.mu held.
func (s *session) scheduleNotify() {
	s.notifier.Schedule(s.cfg.NotifyInterval, s.notify)
}

// notify pushes one unsolicited message and re-arms, until the session is
// no longer Open.
func (s *session) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Open {
		s.notifier.Stop()
		return
	}

	s.seq++
	msg := NotificationMessage{
		Type:      MsgNotification,
		Message:   fmt.Sprintf("Periodic test message %d", s.seq),
		Timestamp: timestamp(),
		Seq:       s.seq,
	}
	if err := s.sendLocked(msg); err != nil {
		return
	}
	s.srv.notifications.Inc(s.scenario.Name)
	s.scheduleNotify()
}
