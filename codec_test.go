package surge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodecRoundTripsKnownAction(t *testing.T) {
	c, err := NewCodec("json")
	require.NoError(t, err)

	serial := int64(5)
	original := &ProtocolMessage{
		Action:    ActionMessage,
		MsgSerial: &serial,
		Channel:   "orders",
		Payload:   []byte(`{"hello":"world"}`),
		Count:     1,
	}

	data, err := c.Encode(original)
	require.NoError(t, err)

	decoded, err := c.Decode(data)
	require.NoError(t, err)
	require.Equal(t, original.Action, decoded.Action)
	require.Equal(t, *original.MsgSerial, *decoded.MsgSerial)
	require.Equal(t, original.Channel, decoded.Channel)
	require.Equal(t, original.Payload, decoded.Payload)
}

func TestCodecDecodeUnknownActionDoesNotFail(t *testing.T) {
	c, err := NewCodec("json")
	require.NoError(t, err)

	// An Action outside the known set encodes under the name "unknown",
	// which no known action uses, so this frame carries a well-formed but
	// foreign action value on the wire.
	data, err := c.Encode(&ProtocolMessage{Action: Action(99)})
	require.NoError(t, err)

	decoded, err := c.Decode(data)
	require.NoError(t, err)
	require.Equal(t, ActionUnknown, decoded.Action)
}

func TestCodecRoundTripsConnectedIdentity(t *testing.T) {
	c, err := NewCodec("json")
	require.NoError(t, err)

	serial := int64(9)
	original := &ProtocolMessage{
		Action:           ActionConnected,
		ConnectionID:     "conn-1",
		ConnectionKey:    "key-1",
		ConnectionSerial: &serial,
	}

	data, err := c.Encode(original)
	require.NoError(t, err)

	decoded, err := c.Decode(data)
	require.NoError(t, err)
	require.Equal(t, original.ConnectionID, decoded.ConnectionID)
	require.Equal(t, original.ConnectionKey, decoded.ConnectionKey)
	require.Equal(t, *original.ConnectionSerial, *decoded.ConnectionSerial)
}

func TestNewCodecRejectsMsgpack(t *testing.T) {
	_, err := NewCodec("msgpack")
	require.Error(t, err)
}

func TestNewCodecRejectsUnknownFormat(t *testing.T) {
	_, err := NewCodec("protobuf")
	require.Error(t, err)
}
