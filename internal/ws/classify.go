package ws

import (
	"bytes"

	"github.com/gorilla/websocket"
)

type inboundKind int

const (
	inHeartbeat inboundKind = iota
	inCommand
	inText
	inBinary
)

func (k inboundKind) String() string {
	switch k {
	case inHeartbeat:
		return "heartbeat"
	case inCommand:
		return "command"
	case inText:
		return "text"
	}
	return "binary"
}

type inbound struct {
	kind        inboundKind
	messageType int
	data        []byte
	cmd         Command
}

// classify sorts an inbound data frame. Order matters: heartbeat probes are
// recognized before anything is parsed, and binary frames are only tried as
// commands when the scenario is lenient about framing.
func classify(sc Scenario, messageType int, data []byte) inbound {
	in := inbound{messageType: messageType, data: data}

	if sc.Heartbeat != HeartbeatNone && isProbe(messageType, data) {
		in.kind = inHeartbeat
		return in
	}

	switch messageType {
	case websocket.TextMessage:
		if cmd, ok := ParseCommand(data); ok {
			in.kind, in.cmd = inCommand, cmd
			return in
		}
		in.kind = inText
	default:
		if sc.LenientBinary {
			if cmd, ok := ParseCommand(data); ok {
				in.kind, in.cmd = inCommand, cmd
				return in
			}
		}
		in.kind = inBinary
	}
	return in
}

func isProbe(messageType int, data []byte) bool {
	if messageType == websocket.TextMessage {
		return string(bytes.TrimSpace(data)) == TextPing
	}
	return string(data) == BinaryPing
}
