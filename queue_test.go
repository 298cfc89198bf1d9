package surge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutgoingQueueFIFO(t *testing.T) {
	q := NewOutgoingQueue()
	q.Push(&ProtocolMessage{Channel: "a"}, nil)
	q.Push(&ProtocolMessage{Channel: "b"}, nil)

	first, ok := q.PopFront()
	require.True(t, ok)
	require.Equal(t, "a", first.msg.Channel)

	second, ok := q.PopFront()
	require.True(t, ok)
	require.Equal(t, "b", second.msg.Channel)

	_, ok = q.PopFront()
	require.False(t, ok)
}

func TestOutgoingQueuePushItemsFrontPreservesOrder(t *testing.T) {
	q := NewOutgoingQueue()
	q.Push(&ProtocolMessage{Channel: "new"}, nil)

	replay := []*queueItem{
		{msg: &ProtocolMessage{Channel: "replay1"}},
		{msg: &ProtocolMessage{Channel: "replay2"}},
	}
	q.PushItemsFront(replay)

	first, _ := q.PopFront()
	require.Equal(t, "replay1", first.msg.Channel)
	second, _ := q.PopFront()
	require.Equal(t, "replay2", second.msg.Channel)
	third, _ := q.PopFront()
	require.Equal(t, "new", third.msg.Channel)
}

func TestPendingQueueResolveRangeOutOfBounds(t *testing.T) {
	q := NewPendingQueue()
	q.Append(&queueItem{serial: 0})
	q.Append(&queueItem{serial: 1})

	_, ok := q.ResolveRange(1, 2, nil)
	require.False(t, ok, "range extending past the highest pending serial must be rejected")
}

func TestPendingQueueRejectAllClosesChannels(t *testing.T) {
	q := NewPendingQueue()
	r1 := make(chan error, 1)
	r2 := make(chan error, 1)
	q.Append(&queueItem{serial: 0, result: r1})
	q.Append(&queueItem{serial: 1, result: r2})

	q.RejectAll(NewError(ConnectionReset, "reset"))

	require.Error(t, <-r1)
	require.Error(t, <-r2)
	require.Equal(t, 0, q.Len())
}
