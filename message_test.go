package surge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActionFromStringUnknownFallsBack(t *testing.T) {
	require.Equal(t, ActionUnknown, ActionFromString("not-a-real-action"))
	require.Equal(t, ActionMessage, ActionFromString("message"))
}

func TestAckRequiredActions(t *testing.T) {
	require.True(t, ActionMessage.AckRequired())
	require.True(t, ActionPresence.AckRequired())
	require.True(t, ActionAttach.AckRequired())
	require.True(t, ActionDetach.AckRequired())
	require.True(t, ActionClose.AckRequired())

	require.False(t, ActionHeartbeat.AckRequired())
	require.False(t, ActionConnected.AckRequired())
	require.False(t, ActionAck.AckRequired())
}

func TestProtocolMessageCloneIsIndependent(t *testing.T) {
	serial := int64(3)
	original := &ProtocolMessage{MsgSerial: &serial, Payload: []byte("abc")}
	clone := original.Clone()

	*clone.MsgSerial = 99
	clone.Payload[0] = 'z'

	require.Equal(t, int64(3), *original.MsgSerial)
	require.Equal(t, byte('a'), original.Payload[0])
}
