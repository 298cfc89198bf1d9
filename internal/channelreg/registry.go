// Package channelreg is a minimal stand-in for the real per-channel
// attach/detach protocol and subscriber registry, which spec.md section 1
// places out of scope ("Per-channel attach/detach protocol and message
// subscriber registry. (consumes dispatch output)"). It exists only so
// the Incoming Dispatcher's "publish on the incoming bus for
// channel/presence subscribers" rule (spec.md 4.5 rule 9) has something
// observable to hand frames to in tests — it does not implement attach,
// detach, or subscription filtering semantics.
package channelreg

import "sync"

// Frame is the minimal shape the registry records; it intentionally
// avoids depending on the surge package's ProtocolMessage type so this
// stub stays a leaf with no import-cycle risk.
type Frame struct {
	Channel string
	Payload []byte
}

// Registry records frames delivered per channel, in arrival order.
type Registry struct {
	mu     sync.Mutex
	frames map[string][]Frame
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{frames: make(map[string][]Frame)}
}

// Deliver records a frame for its channel.
func (r *Registry) Deliver(channel string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[channel] = append(r.frames[channel], Frame{Channel: channel, Payload: payload})
}

// Frames returns the frames recorded for channel, in arrival order.
func (r *Registry) Frames(channel string) []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames[channel]...)
}
