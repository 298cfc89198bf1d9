package surge

// Action tags a ProtocolMessage with its wire meaning. Unknown values
// decode to ActionUnknown rather than failing the frame.
type Action int

const (
	ActionUnknown Action = iota
	ActionConnected
	ActionDisconnected
	ActionClosed
	ActionError
	ActionAttach
	ActionAttached
	ActionDetach
	ActionDetached
	ActionMessage
	ActionPresence
	ActionAck
	ActionNack
	ActionHeartbeat
	ActionSync
	ActionClose
)

var actionNames = map[Action]string{
	ActionConnected:    "connected",
	ActionDisconnected: "disconnected",
	ActionClosed:       "closed",
	ActionError:        "error",
	ActionAttach:       "attach",
	ActionAttached:     "attached",
	ActionDetach:       "detach",
	ActionDetached:     "detached",
	ActionMessage:      "message",
	ActionPresence:     "presence",
	ActionAck:          "ack",
	ActionNack:         "nack",
	ActionHeartbeat:    "heartbeat",
	ActionSync:         "sync",
	ActionClose:        "close",
}

var namesToAction = func() map[string]Action {
	m := make(map[string]Action, len(actionNames))
	for k, v := range actionNames {
		m[v] = k
	}
	return m
}()

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// ActionFromString maps a wire action name to an Action, returning
// ActionUnknown for anything unrecognized so dispatch can ignore it with a
// warning instead of failing the frame (spec.md 4.1).
func ActionFromString(name string) Action {
	if a, ok := namesToAction[name]; ok {
		return a
	}
	return ActionUnknown
}

// AckRequired reports whether frames carrying this action require a
// server Ack/Nack. This is a pure function of the action, per spec.md 4.1.
func (a Action) AckRequired() bool {
	switch a {
	case ActionMessage, ActionPresence, ActionClose, ActionAttach, ActionDetach:
		return true
	default:
		return false
	}
}

// ProtocolMessage is the typed record exchanged over the wire. It
// round-trips through Codec.Encode/Decode (internal/wire) without loss for
// any message built from a known Action (spec.md 4.1, P5).
type ProtocolMessage struct {
	Action           Action
	MsgSerial        *int64
	ConnectionSerial *int64
	ConnectionID     string
	ConnectionKey    string
	Channel          string
	Payload          []byte
	Count            int
	Error            *Error
}

// Clone returns a copy whose MsgSerial, ConnectionSerial and Payload can
// be mutated without affecting m; the Error pointer is shared.
func (m *ProtocolMessage) Clone() *ProtocolMessage {
	if m == nil {
		return nil
	}
	c := *m
	if m.MsgSerial != nil {
		v := *m.MsgSerial
		c.MsgSerial = &v
	}
	if m.ConnectionSerial != nil {
		v := *m.ConnectionSerial
		c.ConnectionSerial = &v
	}
	if m.Payload != nil {
		c.Payload = append([]byte(nil), m.Payload...)
	}
	return &c
}
