package surge

import "sync"

// ConnectionState is the tagged enum from spec.md section 3.
type ConnectionState int

const (
	StateInitialized ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateSuspended
	StateClosing
	StateClosed
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateSuspended:
		return "suspended"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// transitionTable is the authoritative move list from spec.md section 4.3.
// Grounded on risa-org-scl/session/session.go's isValidTransition table
// shape, generalized to the connection subsystem's eight states.
var transitionTable = map[ConnectionState]map[ConnectionState]bool{
	StateInitialized:  {StateConnecting: true, StateClosed: true},
	StateConnecting:   {StateConnected: true, StateDisconnected: true, StateSuspended: true, StateFailed: true, StateClosing: true},
	StateConnected:    {StateDisconnected: true, StateSuspended: true, StateClosing: true, StateFailed: true},
	StateDisconnected: {StateConnecting: true, StateSuspended: true, StateClosing: true, StateFailed: true},
	StateSuspended:    {StateConnecting: true, StateClosing: true, StateFailed: true},
	StateClosing:      {StateClosed: true, StateFailed: true},
	StateClosed:       {StateConnecting: true},
	StateFailed:       {StateConnecting: true},
}

// CanTransition reports whether from->to is an allowed move (P4).
func CanTransition(from, to ConnectionState) bool {
	return transitionTable[from][to]
}

// StateChangeEvent is emitted on every transition (spec.md 4.3).
type StateChangeEvent struct {
	Previous   ConnectionState
	Current    ConnectionState
	Generation uint64
	Error      *Error
}

// StateMachine is the authoritative connection lifecycle owner (C4). The
// Facade exclusively owns one StateMachine per Client (spec.md section 3,
// "Lifecycle ownership").
type StateMachine struct {
	mu         sync.Mutex
	current    ConnectionState
	generation uint64
	lastErr    *Error
	listeners  []func(StateChangeEvent)

	// waiters are deferred completions keyed on a target state; they
	// resolve on arrival at that state and reject on any terminal
	// transition to a different state (spec.md 4.3).
	waiters []stateWaiter
}

type stateWaiter struct {
	target ConnectionState
	ch     chan StateChangeEvent
}

// NewStateMachine returns a StateMachine starting in StateInitialized.
func NewStateMachine() *StateMachine {
	return &StateMachine{current: StateInitialized}
}

// Current returns the current state and generation.
func (sm *StateMachine) Current() (ConnectionState, uint64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.current, sm.generation
}

// OnChange registers a listener invoked, in registration order, on every
// successful transition (spec.md: "state-change listeners receive events
// in transition order").
func (sm *StateMachine) OnChange(fn func(StateChangeEvent)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, fn)
}

// LastError returns the error attached to the most recent transition into
// Disconnected, Suspended, Closing, Closed or Failed, if any.
func (sm *StateMachine) LastError() *Error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.lastErr
}

// Transition attempts from->to. Disallowed moves return
// InvalidStateTransition and leave the machine untouched (P4). A
// successful transition into StateConnected increments the generation
// counter (spec.md section 3, "Carries a generation counter incremented
// on every successful Connected").
func (sm *StateMachine) Transition(to ConnectionState, err *Error) (StateChangeEvent, error) {
	sm.mu.Lock()

	from := sm.current
	if !transitionTable[from][to] {
		sm.mu.Unlock()
		return StateChangeEvent{}, NewError(InvalidStateTransition,
			from.String()+" -> "+to.String())
	}

	sm.current = to
	if to == StateConnected {
		sm.generation++
	}
	if isTerminalish(to) {
		sm.lastErr = err
	}
	event := StateChangeEvent{Previous: from, Current: to, Generation: sm.generation, Error: err}

	// Waiters resolve on arrival at their target, and reject only on a
	// transition to a truly terminal state (Closed/Failed) that is not
	// their target — a plain Disconnected/Suspended hop must NOT wake a
	// waiter for Connected, because the manager is expected to keep
	// retrying toward it (spec.md 4.3).
	var remaining []stateWaiter
	for _, w := range sm.waiters {
		switch {
		case w.target == to:
			w.ch <- event
			close(w.ch)
		case isTerminal(to):
			w.ch <- event
			close(w.ch)
		default:
			remaining = append(remaining, w)
		}
	}
	sm.waiters = remaining

	listeners := append([]func(StateChangeEvent){}, sm.listeners...)
	sm.mu.Unlock()

	for _, l := range listeners {
		l(event)
	}

	return event, nil
}

// isTerminalish reports whether a state is one that should latch an
// error_reason (closing/closed/failed/disconnected/suspended all count as
// "a transition that might carry an explanation" per spec.md section 7).
func isTerminalish(s ConnectionState) bool {
	switch s {
	case StateDisconnected, StateSuspended, StateClosing, StateClosed, StateFailed:
		return true
	default:
		return false
	}
}

// isTerminal reports whether s has no further automatic progress within
// the current connection attempt — only Closed and Failed qualify; a
// fresh Connect() call is a new attempt, not a continuation.
func isTerminal(s ConnectionState) bool {
	return s == StateClosed || s == StateFailed
}

// AwaitState returns a channel that receives exactly one StateChangeEvent:
// the next transition whose Current == target, OR the next transition to
// a different terminal state (spec.md 4.3: "reject on any terminal
// transition to a different state"). Callers distinguish success from
// rejection by comparing event.Current to target.
func (sm *StateMachine) AwaitState(target ConnectionState) <-chan StateChangeEvent {
	ch := make(chan StateChangeEvent, 1)
	sm.mu.Lock()
	if sm.current == target {
		sm.mu.Unlock()
		ch <- StateChangeEvent{Previous: sm.current, Current: sm.current, Generation: sm.generation}
		close(ch)
		return ch
	}
	sm.waiters = append(sm.waiters, stateWaiter{target: target, ch: ch})
	sm.mu.Unlock()
	return ch
}
