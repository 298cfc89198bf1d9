package surge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerialCounterStartsAtZero(t *testing.T) {
	c := NewSerialCounter()
	require.Equal(t, int64(0), c.Next())
	require.Equal(t, int64(1), c.Next())
}

func TestSerialCounterRollback(t *testing.T) {
	c := NewSerialCounter()
	c.Next() // 0
	c.Next() // 1
	c.Rollback()
	require.Equal(t, int64(1), c.Next())
}

func TestSerialCounterReset(t *testing.T) {
	c := NewSerialCounter()
	c.Next()
	c.Next()
	c.Reset()
	require.Equal(t, int64(0), c.Next())
}

func TestAccountantAssignStampsMsgSerial(t *testing.T) {
	a := NewAccountant()
	msg := &ProtocolMessage{Action: ActionMessage}
	serial := a.Assign(msg)
	require.NotNil(t, msg.MsgSerial)
	require.Equal(t, serial, *msg.MsgSerial)
	require.Equal(t, int64(0), serial)
}

func TestAccountantResolveAckContiguousRange(t *testing.T) {
	a := NewAccountant()
	results := make([]chan error, 3)
	for i := 0; i < 3; i++ {
		msg := &ProtocolMessage{Action: ActionMessage}
		serial := a.Assign(msg)
		result := make(chan error, 1)
		results[i] = result
		a.TrackPending(&queueItem{msg: msg, serial: serial, result: result})
	}

	require.Equal(t, []int64{0, 1, 2}, a.PendingSerials())

	require.NoError(t, a.ResolveAck(0, 3))
	for _, r := range results {
		require.NoError(t, <-r)
	}
	require.Equal(t, 0, a.PendingLen())
}

func TestAccountantResolveAckRejectsNonContiguousRange(t *testing.T) {
	a := NewAccountant()
	msg := &ProtocolMessage{Action: ActionMessage}
	serial := a.Assign(msg)
	a.TrackPending(&queueItem{msg: msg, serial: serial, result: make(chan error, 1)})

	err := a.ResolveAck(5, 1)
	require.Error(t, err)
}

func TestAccountantResolveNackRejectsWithFrameError(t *testing.T) {
	a := NewAccountant()
	msg := &ProtocolMessage{Action: ActionMessage}
	serial := a.Assign(msg)
	result := make(chan error, 1)
	a.TrackPending(&queueItem{msg: msg, serial: serial, result: result})

	frameErr := NewError(ServerError, "rejected")
	require.NoError(t, a.ResolveNack(serial, 1, frameErr))

	gotErr := <-result
	require.ErrorIs(t, gotErr, frameErr)
}

func TestAccountantResolveNackWithoutErrorStillRejects(t *testing.T) {
	a := NewAccountant()
	msg := &ProtocolMessage{Action: ActionMessage}
	serial := a.Assign(msg)
	result := make(chan error, 1)
	a.TrackPending(&queueItem{msg: msg, serial: serial, result: result})

	require.NoError(t, a.ResolveNack(serial, 1, nil))

	gotErr := <-result
	require.Error(t, gotErr, "a nack must never resolve as success")
	require.ErrorIs(t, gotErr, NewError(ServerError))
}

func TestAccountantDrainForReplayPreservesChannel(t *testing.T) {
	a := NewAccountant()
	msg := &ProtocolMessage{Action: ActionMessage}
	serial := a.Assign(msg)
	result := make(chan error, 1)
	a.TrackPending(&queueItem{msg: msg, serial: serial, result: result})

	items := a.DrainForReplay()
	require.Len(t, items, 1)
	require.Same(t, result, items[0].result)
	require.Equal(t, 0, a.PendingLen())
}

func TestAccountantRejectAllResetsCounter(t *testing.T) {
	a := NewAccountant()
	msg := &ProtocolMessage{Action: ActionMessage}
	a.Assign(msg)
	result := make(chan error, 1)
	a.TrackPending(&queueItem{msg: msg, serial: *msg.MsgSerial, result: result})

	a.RejectAll(NewError(ConnectionReset, "reset"))
	require.Error(t, <-result)
	require.Equal(t, int64(0), a.counter.Next())
}
