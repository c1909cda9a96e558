package ws

// HeartbeatMode is how a scenario answers heartbeat probes.
type HeartbeatMode int

const (
	// HeartbeatNone treats the probe as ordinary data.
	HeartbeatNone HeartbeatMode = iota
	// HeartbeatReply answers every probe in the encoding it arrived in.
	HeartbeatReply
	// HeartbeatSilent swallows probes so the peer's liveness check times out.
	HeartbeatSilent
)

func (m HeartbeatMode) String() string {
	switch m {
	case HeartbeatReply:
		return "reply"
	case HeartbeatSilent:
		return "silent"
	}
	return "none"
}

type Scenario struct {
	Name        string
	Path        string
	Description string

	// Negotiate enables subprotocol selection at the handshake.
	Negotiate bool
	// Notify pushes a notification every NotifyInterval while open.
	Notify    bool
	Heartbeat HeartbeatMode
	// LenientBinary lets a binary frame holding a JSON command act as one.
	LenientBinary bool
	// Reconnect is advertised in the welcome so clients know a reconnect
	// after a timeout is expected.
	Reconnect bool
}

// Scenarios is the WebSocket scenario table.
func Scenarios() []Scenario {
	return []Scenario{
		{
			Name:        "base",
			Path:        "/ws",
			Description: "plain socket: commands, echo and notifications",
			Notify:      true,
		},
		{
			Name:        "subprotocol",
			Path:        "/ws-subprotocol",
			Description: "negotiates a subprotocol",
			Negotiate:   true,
			Notify:      true,
		},
		{
			Name:        "heartbeat",
			Path:        "/ws-heartbeat",
			Description: "answers " + TextPing + " with " + TextPong,
			Notify:      true,
			Heartbeat:   HeartbeatReply,
		},
		{
			Name:          "full",
			Path:          "/ws-full",
			Description:   "subprotocol, heartbeat replies and binary commands",
			Negotiate:     true,
			Notify:        true,
			Heartbeat:     HeartbeatReply,
			LenientBinary: true,
		},
		{
			Name:        "reconnect",
			Path:        "/ws-reconnect",
			Description: "close commands for reconnect testing",
			Notify:      true,
			Reconnect:   true,
		},
		{
			Name:        "heartbeat-timeout",
			Path:        "/ws-heartbeat-timeout",
			Description: "never answers heartbeats",
			Heartbeat:   HeartbeatSilent,
		},
		{
			Name:        "heartbeat-timeout-reconnect",
			Path:        "/ws-heartbeat-timeout-reconnect",
			Description: "never answers heartbeats; clients are expected to reconnect",
			Heartbeat:   HeartbeatSilent,
			Reconnect:   true,
		},
		{
			Name:          "heartbeat-binary",
			Path:          "/ws-heartbeat-binary",
			Description:   "answers " + BinaryPing + " with " + BinaryPong + " in binary frames and accepts binary commands",
			Notify:        true,
			Heartbeat:     HeartbeatReply,
			LenientBinary: true,
		},
	}
}

// Negotiate picks the subprotocol for a handshake: the first name the client
// offered that the server supports. An empty result means none.
func Negotiate(offered, supported []string) string {
	for _, want := range offered {
		for _, have := range supported {
			if want == have {
				return want
			}
		}
	}
	return ""
}
