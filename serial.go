package surge

import "sync"

// SerialCounter assigns monotonically increasing serials to ack-required
// frames (spec.md section 3). It starts at -1 and is pre-incremented
// before use, so the first assigned serial is 0. Assignment is
// transactional: Rollback undoes a Next() if the enqueue that consumed it
// subsequently fails.
type SerialCounter struct {
	mu      sync.Mutex
	current int64
}

// NewSerialCounter returns a SerialCounter ready to hand out 0 as its
// first serial.
func NewSerialCounter() *SerialCounter {
	return &SerialCounter{current: -1}
}

// Next pre-increments and returns the new serial.
func (c *SerialCounter) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current++
	return c.current
}

// Rollback undoes the most recent Next() call, for use when an enqueue
// transaction aborts after assignment (spec.md section 3, "Assignment is
// transactional").
func (c *SerialCounter) Rollback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current--
}

// Reset restarts the counter at -1 (next Next() yields 0 again), used on
// a new connection generation.
func (c *SerialCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = -1
}

// Accountant is the Ack/Serial Accounting component (C9): it owns the
// SerialCounter and PendingQueue for one connection generation and
// enforces I1-I3. It is grounded on amps/message_router.go's
// ack-vs-pending matching, generalized from string command ids to a
// contiguous numeric serial range.
type Accountant struct {
	counter *SerialCounter
	pending *PendingQueue
}

// NewAccountant returns an Accountant with a fresh counter and queue.
func NewAccountant() *Accountant {
	return &Accountant{counter: NewSerialCounter(), pending: NewPendingQueue()}
}

// Assign returns the next serial for an ack-required frame and stamps it
// onto msg. Call Rollback if the caller fails to enqueue msg afterward.
func (a *Accountant) Assign(msg *ProtocolMessage) int64 {
	serial := a.counter.Next()
	msg.MsgSerial = &serial
	return serial
}

// Rollback undoes the most recent Assign.
func (a *Accountant) Rollback() { a.counter.Rollback() }

// TrackPending records item (already carrying its assigned serial via
// msg.MsgSerial) as awaiting ack. This must be called before the frame is
// handed to the transport (spec.md 4.4: "pending-before-wire"; I3).
func (a *Accountant) TrackPending(item *queueItem) {
	if item.msg.MsgSerial != nil {
		item.serial = *item.msg.MsgSerial
	}
	a.pending.Append(item)
}

// PendingSerials exposes the current contiguous run for invariant checks
// (P2) and tests.
func (a *Accountant) PendingSerials() []int64 { return a.pending.Serials() }

// PendingLen reports how many frames are awaiting ack.
func (a *Accountant) PendingLen() int { return a.pending.Len() }

// ResolveAck matches an inbound Ack frame against the pending queue,
// resolving every entry with serial in [from, from+count-1] (spec.md 4.5
// rule 3). A non-contiguous/out-of-range match is a ProtocolViolation per
// the Open Question decision in DESIGN.md: acks are never silently
// truncated against the queue.
func (a *Accountant) ResolveAck(from int64, count int) error {
	if _, ok := a.pending.ResolveRange(from, count, nil); !ok {
		return NewError(ProtocolViolation, "ack does not match a contiguous pending range")
	}
	return nil
}

// ResolveNack matches an inbound Nack frame against the pending queue,
// rejecting every matched entry with frameErr (spec.md 4.5 rule 4). A
// Nack that carries no error of its own still rejects: the awaiter must
// never observe a negative acknowledgement as success.
func (a *Accountant) ResolveNack(from int64, count int, frameErr error) error {
	if frameErr == nil {
		frameErr = NewError(ServerError, "nack without error detail")
	}
	if _, ok := a.pending.ResolveRange(from, count, frameErr); !ok {
		return NewError(ProtocolViolation, "nack does not match a contiguous pending range")
	}
	return nil
}

// DrainForReplay removes every pending entry (for resumable reconnect
// replay) without resolving their awaiters — the items are handed back to
// the caller to re-enqueue ahead of the outgoing queue (spec.md
// scenario 2).
func (a *Accountant) DrainForReplay() []*queueItem { return a.pending.DrainForReplay() }

// RejectAll rejects every pending entry with err (ConnectionReset on
// generation change, or the terminal error on Failed/Closed — spec.md
// 4.8 failure semantics) and resets the serial counter for the next
// generation.
func (a *Accountant) RejectAll(err error) {
	a.pending.RejectAll(err)
	a.counter.Reset()
}
