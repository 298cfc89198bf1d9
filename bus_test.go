package surge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusPublishInvokesHandlersInSubscriptionOrder(t *testing.T) {
	bus := NewBus(nil)
	var order []int

	bus.Subscribe(EventProtocolMessage, func(*ProtocolMessage) { order = append(order, 1) })
	bus.Subscribe(EventProtocolMessage, func(*ProtocolMessage) { order = append(order, 2) })
	bus.Subscribe(EventProtocolMessage, func(*ProtocolMessage) { order = append(order, 3) })

	require.NoError(t, bus.Publish(EventProtocolMessage, &ProtocolMessage{Action: ActionHeartbeat}))
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestBusRejectsUnknownEventName(t *testing.T) {
	bus := NewBus(nil)
	_, err := bus.Subscribe(BusEvent("not_a_real_event"), func(*ProtocolMessage) {})
	require.Error(t, err)

	err = bus.Publish(BusEvent("not_a_real_event"), &ProtocolMessage{})
	require.Error(t, err)
}

func TestBusContainsPanickingHandler(t *testing.T) {
	bus := NewBus(nil)
	var panicked bool
	var reachedSecond bool

	bus.Subscribe(EventProtocolMessage, func(*ProtocolMessage) {
		panicked = true
		panic("boom")
	})
	bus.Subscribe(EventProtocolMessage, func(*ProtocolMessage) {
		reachedSecond = true
	})

	require.NoError(t, bus.Publish(EventProtocolMessage, &ProtocolMessage{}))
	require.True(t, panicked)
	require.True(t, reachedSecond)
}

func TestBusOnPanicCallback(t *testing.T) {
	var captured interface{}
	bus := NewBus(func(event BusEvent, r interface{}) {
		captured = r
	})
	bus.Subscribe(EventProtocolMessage, func(*ProtocolMessage) { panic("boom") })
	bus.Publish(EventProtocolMessage, &ProtocolMessage{})

	require.Equal(t, "boom", captured)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(nil)
	var calls int
	tok, _ := bus.Subscribe(EventProtocolMessage, func(*ProtocolMessage) { calls++ })
	bus.Publish(EventProtocolMessage, &ProtocolMessage{})
	bus.Unsubscribe(tok)
	bus.Publish(EventProtocolMessage, &ProtocolMessage{})

	require.Equal(t, 1, calls)
}

func TestBusSubscribeOnceFiresExactlyOnce(t *testing.T) {
	bus := NewBus(nil)
	var calls int
	bus.SubscribeOnce(EventProtocolMessage, func(*ProtocolMessage) { calls++ })

	bus.Publish(EventProtocolMessage, &ProtocolMessage{})
	bus.Publish(EventProtocolMessage, &ProtocolMessage{})

	require.Equal(t, 1, calls)
}
