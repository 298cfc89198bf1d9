package surge

import "github.com/surgemsg/surge-go/internal/wire"

// Codec encodes and decodes ProtocolMessage frames for the wire (C2).
type Codec struct {
	inner wire.Codec
}

// NewCodec builds a Codec for the negotiated format. Only "json" is
// implemented; "msgpack" and any other value return InvalidArgument.
func NewCodec(format string) (*Codec, error) {
	inner, err := wire.NewCodec(wire.Format(format))
	if err != nil {
		return nil, NewError(InvalidArgument, err)
	}
	return &Codec{inner: inner}, nil
}

// Encode serializes a ProtocolMessage to its wire bytes.
func (c *Codec) Encode(m *ProtocolMessage) ([]byte, error) {
	if m == nil {
		return nil, NewError(InvalidArgument, "nil message")
	}
	e := &wire.Envelope{
		Action:           m.Action.String(),
		MsgSerial:        m.MsgSerial,
		ConnectionSerial: m.ConnectionSerial,
		ConnectionID:     m.ConnectionID,
		ConnectionKey:    m.ConnectionKey,
		Channel:          m.Channel,
		Payload:          m.Payload,
		Count:            m.Count,
	}
	if m.Error != nil {
		e.HasError = true
		e.ErrorCode = int(m.Error.Kind)
		e.ErrorMessage = m.Error.Message
	}
	data, err := c.inner.Encode(e)
	if err != nil {
		return nil, NewError(ProtocolViolation, err)
	}
	return data, nil
}

// Decode parses wire bytes into a ProtocolMessage. Unknown action values
// decode to ActionUnknown rather than failing (spec.md 4.1); callers are
// expected to ignore ActionUnknown frames with a warning at dispatch time.
func (c *Codec) Decode(data []byte) (*ProtocolMessage, error) {
	e, err := c.inner.Decode(data)
	if err != nil {
		return nil, NewError(ProtocolViolation, err)
	}
	m := &ProtocolMessage{
		Action:           ActionFromString(e.Action),
		MsgSerial:        e.MsgSerial,
		ConnectionSerial: e.ConnectionSerial,
		ConnectionID:     e.ConnectionID,
		ConnectionKey:    e.ConnectionKey,
		Channel:          e.Channel,
		Payload:          e.Payload,
		Count:            e.Count,
	}
	if e.HasError {
		m.Error = &Error{Kind: ErrorKind(e.ErrorCode), Message: e.ErrorMessage}
	}
	return m, nil
}
