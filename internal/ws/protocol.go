package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// Heartbeat probes and replies. A text probe gets the text reply and a
// binary probe the binary one.
const (
	TextPing   = `{"type":"ping"}`
	TextPong   = `{"type":"pong"}`
	BinaryPing = "PING"
	BinaryPong = "PONG"
)

type MessageType string

const (
	MsgWelcome      MessageType = "welcome"
	MsgEcho         MessageType = "echo"
	MsgResponse     MessageType = "response"
	MsgError        MessageType = "error"
	MsgNotification MessageType = "notification"
)

type WelcomeMessage struct {
	Type      MessageType `json:"type"`
	Message   string      `json:"message"`
	Timestamp string      `json:"timestamp"`
	Protocol  *string     `json:"protocol"`
	Scenario  string      `json:"scenario"`
	Heartbeat string      `json:"heartbeat"`
	Reconnect bool        `json:"reconnect"`
}

// EchoMessage returns an echo command as it was received.
type EchoMessage struct {
	Type      MessageType     `json:"type"`
	Original  json.RawMessage `json:"original"`
	Timestamp string          `json:"timestamp"`
}

// TextEchoMessage returns a text frame that is not JSON.
type TextEchoMessage struct {
	Type      MessageType `json:"type"`
	Message   string      `json:"message"`
	Timestamp string      `json:"timestamp"`
}

// ResponseMessage acknowledges a command with an unrecognized type.
type ResponseMessage struct {
	Type      MessageType     `json:"type"`
	Received  json.RawMessage `json:"received"`
	Timestamp string          `json:"timestamp"`
}

type ErrorMessage struct {
	Type      MessageType `json:"type"`
	Message   string      `json:"message"`
	Timestamp string      `json:"timestamp"`
}

type NotificationMessage struct {
	Type      MessageType `json:"type"`
	Message   string      `json:"message"`
	Timestamp string      `json:"timestamp"`
	Seq       uint64      `json:"seq"`
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

type CommandType string

const (
	CmdPing             CommandType = "ping"
	CmdEcho             CommandType = "echo"
	CmdClose            CommandType = "close"
	CmdCloseAbnormal    CommandType = "close-abnormal"
	CmdCloseGoingAway   CommandType = "close-going-away"
	CmdCloseServerError CommandType = "close-server-error"
)

// Command is an inbound JSON object with a string "type" discriminator. Raw
// keeps the message exactly as received.
type Command struct {
	Type CommandType
	Raw  json.RawMessage
}

// ParseCommand reports whether data is a JSON object carrying a string type.
func ParseCommand(data []byte) (Command, bool) {
	var probe struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.Type == nil {
		return Command{}, false
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return Command{Type: CommandType(*probe.Type), Raw: raw}, true
}

type closeAction struct {
	code   int
	reason string
}

var closeCommands = map[CommandType]closeAction{
	CmdClose:            {websocket.CloseNormalClosure, "normal closure"},
	CmdCloseGoingAway:   {websocket.CloseGoingAway, "going away"},
	CmdCloseAbnormal:    {websocket.CloseAbnormalClosure, "abnormal closure"},
	CmdCloseServerError: {websocket.CloseInternalServerErr, "server error"},
}

// CloseCode returns the status code a close command asks for.
func (c Command) CloseCode() (int, bool) {
	action, ok := closeCommands[c.Type]
	return action.code, ok
}
