package surge

import (
	"sync"

	"github.com/surgemsg/surge-go/internal/scheduler"
)

// OutgoingDispatcher is the Outgoing Dispatcher component (C5). It drains
// OutgoingQueue onto a Transport whenever the connection is Connected and
// the queue is non-empty, triggered by a publish on the outgoing bus or by
// entry into StateConnected (spec.md section 3, 4.4). Grounded on
// amps/client.go's publish-store flush loop, generalized from AMPS's
// length-prefixed frame writer to the Codec abstraction.
type OutgoingDispatcher struct {
	// mu serializes concurrent Drain calls (a bus publish racing entry
	// into Connected) so frames keep their enqueue order on the wire.
	mu sync.Mutex

	queue      *OutgoingQueue
	accountant *Accountant
	codec      *Codec
	sched      scheduler.Scheduler
	logger     *Logger
}

// NewOutgoingDispatcher builds an OutgoingDispatcher over the given queue,
// accountant, codec, and scheduler.
func NewOutgoingDispatcher(queue *OutgoingQueue, accountant *Accountant, codec *Codec, sched scheduler.Scheduler, logger *Logger) *OutgoingDispatcher {
	return &OutgoingDispatcher{queue: queue, accountant: accountant, codec: codec, sched: sched, logger: logger}
}

// Drain pops and transmits frames in FIFO order over transport until the
// queue is empty or a send fails. An ack-required frame is appended to the
// PendingQueue before it is handed to the transport (I3,
// "pending-before-wire"), so a reconnect's replay logic always has it even
// if the write itself fails partway through. Draining yields between
// frames (spec.md 4.4: "non-blocking; yields after each batch") so a large
// backlog can't starve the incoming path on a single goroutine.
func (d *OutgoingDispatcher) Drain(transport Transport) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		item, ok := d.queue.PopFront()
		if !ok {
			return nil
		}

		frame, err := d.codec.Encode(item.msg)
		if err != nil {
			if item.result != nil {
				item.result <- err
				close(item.result)
			}
			d.logger.Debugf("dropping frame that failed to encode: " + err.Error())
			continue
		}

		if item.msg.Action.AckRequired() {
			d.accountant.TrackPending(item)
		}

		if err := transport.Send(frame); err != nil {
			// The frame is already durably tracked in the pending queue (if
			// ack-required) or was a fire-and-forget frame that is now
			// simply lost; either way the remainder of the outgoing queue
			// stays queued for the next successful drain.
			return err
		}

		d.sched.Yield()
	}
}
