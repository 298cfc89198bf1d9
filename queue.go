package surge

import "sync"

// queueItem pairs a frame with the channel its sender (if any) is
// awaiting resolution on. Non-ack-required frames carry a nil result.
type queueItem struct {
	msg    *ProtocolMessage
	serial int64 // meaningful only once the item is ack-required and assigned
	result chan error
}

// OutgoingQueue is the ordered sequence of frames awaiting transmission
// (spec.md section 3). FIFO; a frame leaves only to the transport (on
// success) or to the PendingQueue (if ack-required).
type OutgoingQueue struct {
	mu    sync.Mutex
	items []*queueItem
}

// NewOutgoingQueue returns an empty OutgoingQueue.
func NewOutgoingQueue() *OutgoingQueue { return &OutgoingQueue{} }

// Push appends msg (with its optional ack-awaiter result channel) to the
// tail of the queue.
func (q *OutgoingQueue) Push(msg *ProtocolMessage, result chan error) {
	q.mu.Lock()
	q.items = append(q.items, &queueItem{msg: msg, result: result})
	q.mu.Unlock()
}

// PushItemsFront prepends items, preserving their relative order, used to
// replay pending frames (with their ORIGINAL awaiter channels intact)
// ahead of anything newly queued on resume (spec.md section 3, PendingQueue
// invariant; scenario 2).
func (q *OutgoingQueue) PushItemsFront(items []*queueItem) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(append([]*queueItem(nil), items...), q.items...)
	q.mu.Unlock()
}

// PopFront removes and returns the head of the queue, or (nil, false) if
// empty.
func (q *OutgoingQueue) PopFront() (*queueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	m := q.items[0]
	q.items = q.items[1:]
	return m, true
}

// Len reports the current queue length.
func (q *OutgoingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns every currently queued item, in order, used
// to reject unsent frames on a fatal error and to restamp unsent frames
// when a new connection id replaces the old session.
func (q *OutgoingQueue) Drain() []*queueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// PendingQueue is the ordered sequence of ack-required frames awaiting
// ACK/NACK (spec.md section 3). Invariant I2: serials form a contiguous,
// strictly increasing run at any instant this queue is observed.
type PendingQueue struct {
	mu    sync.Mutex
	items []*queueItem
}

// NewPendingQueue returns an empty PendingQueue.
func NewPendingQueue() *PendingQueue { return &PendingQueue{} }

// Append adds item to the tail. Callers must append in strictly
// increasing serial order (enforced by SerialCounter upstream) so I2
// holds without this type needing to re-sort.
func (q *PendingQueue) Append(item *queueItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// Len reports how many entries are pending.
func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Serials returns the serials currently pending, in queue order, for
// invariant checks (P2) and tests.
func (q *PendingQueue) Serials() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]int64, len(q.items))
	for i, e := range q.items {
		out[i] = e.serial
	}
	return out
}

// ResolveRange resolves (err == nil) or rejects (err != nil) every entry
// with serial in [from, from+count-1], removing them from the queue, and
// returns how many entries matched. A non-contiguous or out-of-range
// match is reported to the caller via ok=false so it can raise
// ProtocolViolation (spec.md 4.5 rules 3-4; "Open Questions": an ack
// beyond the highest pending serial is rejected as a violation rather
// than silently truncating the queue).
func (q *PendingQueue) ResolveRange(from int64, count int, err error) (matched int, ok bool) {
	if count <= 0 {
		count = 1
	}
	to := from + int64(count) - 1

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return 0, false
	}
	lowest := q.items[0].serial
	highest := q.items[len(q.items)-1].serial
	if from < lowest || to > highest {
		return 0, false
	}

	var remaining []*queueItem
	for _, e := range q.items {
		if e.serial >= from && e.serial <= to {
			if e.result != nil {
				e.result <- err
				close(e.result)
			}
			matched++
		} else {
			remaining = append(remaining, e)
		}
	}
	q.items = remaining
	return matched, true
}

// DrainForReplay removes every pending entry and returns them (with
// their original awaiter channels intact) in queue order, used when a
// Disconnected transition is resumable and the pending queue must be
// replayed ahead of the outgoing queue (spec.md section 3, PendingQueue
// invariant; scenario 2).
func (q *PendingQueue) DrainForReplay() []*queueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// RejectAll rejects every pending entry with err and empties the queue,
// used on ConnectionReset / terminal Failed-or-Closed (spec.md 4.8
// failure semantics).
func (q *PendingQueue) RejectAll(err error) {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for _, e := range items {
		if e.result != nil {
			e.result <- err
			close(e.result)
		}
	}
}
