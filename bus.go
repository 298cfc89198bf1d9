package surge

import "sync"

// BusEvent names a valid message bus event. Exactly one event name is
// valid per spec.md 4.2: "protocol_message". Anything else is
// InvalidArgument.
type BusEvent string

// EventProtocolMessage is the sole valid bus event name.
const EventProtocolMessage BusEvent = "protocol_message"

// SubscriptionToken identifies a subscription for later Unsubscribe.
type SubscriptionToken uint64

type busHandler struct {
	token   SubscriptionToken
	handler func(*ProtocolMessage)
}

// Bus is an in-process pub/sub hub for protocol frames (spec.md 4.2,
// design note "Event emitter / mixin composition"). Two independent Bus
// instances exist per connection: one for incoming frames, one for
// outgoing. Handlers run synchronously, in subscription order, on the
// publishing goroutine; a handler's own error/panic never stops later
// handlers from running and never reorders frames.
type Bus struct {
	mu       sync.Mutex
	nextTok  SubscriptionToken
	handlers map[BusEvent][]busHandler
	onPanic  func(event BusEvent, recovered interface{})
}

// NewBus returns an empty Bus. onPanic, if non-nil, is invoked (off the
// publish path's error return) whenever a handler panics, so a panicking
// subscriber is contained instead of tearing down the connection
// (spec.md section 7: "Handler exceptions are logged and swallowed to
// preserve ordering; they never tear down the connection.").
func NewBus(onPanic func(event BusEvent, recovered interface{})) *Bus {
	return &Bus{
		handlers: make(map[BusEvent][]busHandler),
		onPanic:  onPanic,
	}
}

// Subscribe registers handler for event, returning a token usable with
// Unsubscribe. Only EventProtocolMessage is accepted.
func (b *Bus) Subscribe(event BusEvent, handler func(*ProtocolMessage)) (SubscriptionToken, error) {
	if event != EventProtocolMessage {
		return 0, NewError(InvalidArgument, "invalid bus event: "+string(event))
	}
	if handler == nil {
		return 0, NewError(InvalidArgument, "nil handler")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextTok++
	tok := b.nextTok
	b.handlers[event] = append(b.handlers[event], busHandler{token: tok, handler: handler})
	return tok, nil
}

// Unsubscribe removes a previously registered handler. Unsubscribing an
// unknown token is a no-op.
func (b *Bus) Unsubscribe(token SubscriptionToken) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for event, list := range b.handlers {
		for i, h := range list {
			if h.token == token {
				b.handlers[event] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish invokes every handler subscribed to event, synchronously, in
// subscription order. A handler that panics is recovered and reported to
// onPanic; later handlers still run.
func (b *Bus) Publish(event BusEvent, msg *ProtocolMessage) error {
	if event != EventProtocolMessage {
		return NewError(InvalidArgument, "invalid bus event: "+string(event))
	}

	b.mu.Lock()
	// snapshot under lock so a handler subscribing/unsubscribing mid-publish
	// can't mutate the slice we're iterating.
	list := append([]busHandler(nil), b.handlers[event]...)
	b.mu.Unlock()

	for _, h := range list {
		b.invoke(event, h.handler, msg)
	}
	return nil
}

func (b *Bus) invoke(event BusEvent, handler func(*ProtocolMessage), msg *ProtocolMessage) {
	defer func() {
		if r := recover(); r != nil && b.onPanic != nil {
			b.onPanic(event, r)
		}
	}()
	handler(msg)
}

// SubscribeOnce registers a handler that unsubscribes itself after its
// first invocation.
func (b *Bus) SubscribeOnce(event BusEvent, handler func(*ProtocolMessage)) (SubscriptionToken, error) {
	var tok SubscriptionToken
	var err error
	var tokSet bool
	var mu sync.Mutex
	var once sync.Once

	wrapped := func(m *ProtocolMessage) {
		once.Do(func() {
			mu.Lock()
			t := tok
			set := tokSet
			mu.Unlock()
			if set {
				b.Unsubscribe(t)
			}
			handler(m)
		})
	}

	tok, err = b.Subscribe(event, wrapped)
	if err != nil {
		return 0, err
	}
	mu.Lock()
	tokSet = true
	mu.Unlock()
	return tok, nil
}
