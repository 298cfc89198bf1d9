package surge

import "github.com/surgemsg/surge-go/internal/channelreg"

// IncomingDispatcher is the Incoming Dispatcher component (C6). It decodes
// inbound frames, keeps resume bookkeeping current, resolves acks/nacks
// against the Accountant, routes channel/presence frames to the channel
// registry stand-in, and republishes every decoded frame on the incoming
// bus for subscribers (spec.md section 3, 4.5). Control-plane actions
// (Connected/Disconnected/Closed/Error/Sync/Attached/Detached) are handed
// to OnControlFrame, since only the Connection Manager is allowed to drive
// StateMachine transitions. Grounded on amps/message_router.go's
// action-switch dispatch loop.
type IncomingDispatcher struct {
	codec      *Codec
	accountant *Accountant
	registry   *channelreg.Registry
	bus        *Bus
	recovery   *recoveryState
	logger     *Logger

	// OnControlFrame is invoked for Connected/Disconnected/Closed/Error/
	// Sync/Attached/Detached frames. Set by the Connection Manager.
	OnControlFrame func(msg *ProtocolMessage)
}

// NewIncomingDispatcher builds an IncomingDispatcher.
func NewIncomingDispatcher(codec *Codec, accountant *Accountant, registry *channelreg.Registry, bus *Bus, recovery *recoveryState, logger *Logger) *IncomingDispatcher {
	return &IncomingDispatcher{codec: codec, accountant: accountant, registry: registry, bus: bus, recovery: recovery, logger: logger}
}

// HandleFrame decodes raw and applies spec.md 4.5's per-action rules:
//
//  1. Any frame carrying a ConnectionSerial advances ResumeInfo's
//     lastConnectionSerial.
//  2. Connected/Disconnected/Closed/Error/Sync/Attached/Detached frames are
//     forwarded to OnControlFrame for the manager to act on.
//  3. Ack resolves the matching contiguous pending range.
//  4. Nack rejects the matching contiguous pending range with the frame's
//     error.
//  5. Heartbeat is not special-cased beyond bookkeeping; ping() observes it
//     via a bus subscription.
//  6. Message/Presence frames are delivered to the channel registry
//     stand-in.
//  7. Every other successfully decoded frame is published on the incoming
//     bus (rule 9: "for channel/presence subscribers") so a subscriber
//     observing raw traffic sees it; the exceptions are items 8 and 9.
//  8. An Action of ActionUnknown is logged and otherwise ignored (no
//     publish), matching the "ignore with a warning" rule from 4.1 — a
//     frame this dispatcher doesn't recognize can't be meaningfully handed
//     to subscribers expecting a known shape.
//  9. A malformed ack/nack (nil MsgSerial, or a range that does not match
//     the pending queue contiguously) is a ProtocolViolation returned to
//     the caller, who is expected to escalate it into a Failed transition.
func (d *IncomingDispatcher) HandleFrame(raw []byte) error {
	msg, err := d.codec.Decode(raw)
	if err != nil {
		return err
	}

	if msg.ConnectionSerial != nil {
		d.recovery.UpdateLastConnectionSerial(*msg.ConnectionSerial)
	}

	switch msg.Action {
	case ActionUnknown:
		d.logger.Debugf("ignoring frame with unrecognized action")
		return nil

	case ActionAck:
		if msg.MsgSerial == nil {
			return NewError(ProtocolViolation, "ack frame missing msgSerial")
		}
		if err := d.accountant.ResolveAck(*msg.MsgSerial, msg.Count); err != nil {
			return err
		}

	case ActionNack:
		if msg.MsgSerial == nil {
			return NewError(ProtocolViolation, "nack frame missing msgSerial")
		}
		var frameErr error
		if msg.Error != nil {
			frameErr = msg.Error
		}
		if err := d.accountant.ResolveNack(*msg.MsgSerial, msg.Count, frameErr); err != nil {
			return err
		}

	case ActionMessage, ActionPresence:
		d.registry.Deliver(msg.Channel, msg.Payload)

	case ActionConnected, ActionDisconnected, ActionClosed, ActionError, ActionSync, ActionAttached, ActionDetached:
		if d.OnControlFrame != nil {
			d.OnControlFrame(msg)
		}
	}

	return d.bus.Publish(EventProtocolMessage, msg)
}
