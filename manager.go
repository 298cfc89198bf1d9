package surge

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/surgemsg/surge-go/internal/channelreg"
	"github.com/surgemsg/surge-go/internal/scheduler"
	"golang.org/x/sync/errgroup"
)

// maxDisconnectedRetries bounds how many consecutive Disconnected retries
// are attempted with the exponential strategy before the manager escalates
// to Suspended's fixed, indefinite retry cadence (spec.md 4.6 table).
const maxDisconnectedRetries = 3

// closeDeadline bounds how long the close sequence waits for a Closed
// frame before forcing the local state to Closed anyway (spec.md 4.7,
// "close sequence").
const closeDeadline = 10 * time.Second

// Manager is the Connection Manager component (C7). It owns the Transport
// for the current connection attempt, drives host/retry selection, builds
// the open-sequence query, and is the only component allowed to drive
// StateMachine transitions. Grounded on amps/ha_client.go's
// reconnect-with-failover loop, generalized from AMPS's server-pool
// round robin to the host-cursor-plus-backoff-strategy model spec.md 4.6
// describes.
type Manager struct {
	mu sync.Mutex

	opts   *ClientOptions
	state  *StateMachine
	host   *HostCursor
	discBO ReconnectStrategy
	suspBO ReconnectStrategy

	newTransport func() Transport
	transport    Transport

	codec      *Codec
	accountant *Accountant
	outQueue   *OutgoingQueue
	outDisp    *OutgoingDispatcher
	inDisp     *IncomingDispatcher
	recovery   *recoveryState
	sched      scheduler.Scheduler
	logger     *Logger
	auth       Authenticator
	registry   *channelreg.Registry

	connID         string
	closeRequested bool
	disconnectRuns int
	cancelRetry    func()

	// baseCtx outlives any single Connect call and is canceled only by
	// Close: the read loop binds to it, not to the caller's connect
	// context, so an expired handshake timeout can't tear down a live
	// connection (spec.md section 3, "The manager exclusively owns
	// transport handles").
	baseCtx    context.Context
	cancelBase context.CancelFunc

	// readGroup tracks the in-flight readLoop goroutine for the current
	// connection attempt so Close can wait for it to unwind instead of
	// leaking it (spec.md section 5's generation-token continuations, made
	// concrete with golang.org/x/sync/errgroup rather than a bare
	// WaitGroup, since a failed readLoop's error is worth observing).
	readGroup *errgroup.Group
}

// ManagerDeps bundles the shared components a Manager wires together,
// grounded on the Client/Facade composition spec.md section 3 describes.
type ManagerDeps struct {
	Opts         *ClientOptions
	State        *StateMachine
	Host         *HostCursor
	NewTransport func() Transport
	Codec        *Codec
	Accountant   *Accountant
	OutQueue     *OutgoingQueue
	Recovery     *recoveryState
	Sched        scheduler.Scheduler
	Logger       *Logger
	Registry     *channelreg.Registry
	IncomingBus  *Bus
}

// NewManager builds a Manager and wires the Outgoing/Incoming dispatchers
// over the shared queue, accountant, and codec.
func NewManager(d ManagerDeps) *Manager {
	m := &Manager{
		opts:         d.Opts,
		state:        d.State,
		host:         d.Host,
		discBO:       NewExponentialDelayStrategy(15*time.Second, 30*time.Second),
		suspBO:       NewFixedDelayStrategy(30 * time.Second),
		newTransport: d.NewTransport,
		codec:        d.Codec,
		accountant:   d.Accountant,
		outQueue:     d.OutQueue,
		recovery:     d.Recovery,
		sched:        d.Sched,
		logger:       d.Logger,
		auth:         d.Opts.authenticator(),
		registry:     d.Registry,
		connID:       uuid.NewString(),
	}
	m.baseCtx, m.cancelBase = context.WithCancel(context.Background())
	m.outDisp = NewOutgoingDispatcher(d.OutQueue, d.Accountant, d.Codec, d.Sched, d.Logger)
	m.inDisp = NewIncomingDispatcher(d.Codec, d.Accountant, d.Registry, d.IncomingBus, d.Recovery, d.Logger)
	m.inDisp.OnControlFrame = m.handleControlFrame
	return m
}

// Connect starts (or resumes) the connection sequence. It is idempotent
// with respect to the state machine: calling it while already
// Connecting/Connected is a no-op beyond returning the existing await.
func (m *Manager) Connect(ctx context.Context) <-chan StateChangeEvent {
	cur, _ := m.state.Current()
	if cur == StateConnecting || cur == StateConnected {
		return m.state.AwaitState(StateConnected)
	}
	if _, err := m.state.Transition(StateConnecting, nil); err != nil {
		ch := make(chan StateChangeEvent, 1)
		ch <- StateChangeEvent{Current: cur, Error: NewError(InvalidStateTransition)}
		close(ch)
		return ch
	}

	// Reopening after a Close (Closed -> Connecting) needs a fresh base
	// context and a cleared close flag, or the new session's read loop
	// would be born canceled.
	m.mu.Lock()
	m.closeRequested = false
	select {
	case <-m.baseCtx.Done():
		m.baseCtx, m.cancelBase = context.WithCancel(context.Background())
	default:
	}
	m.mu.Unlock()

	await := m.state.AwaitState(StateConnected)
	go m.attempt(ctx, cur)
	return await
}

// attempt runs one open-sequence: build the handshake query, dial the
// transport, and — on success — start the read loop. ctx bounds only the
// handshake (auth-params fetch + dial); the read loop runs under the
// manager's own baseCtx so it survives the caller's connect deadline.
// previousState informs HostCursor's fallback-eligibility rule
// (spec.md 4.6).
func (m *Manager) attempt(ctx context.Context, previousState ConnectionState) {
	_, generation := m.state.Current()

	host := m.host.NextHost(previousState)
	query, err := m.buildQuery(ctx)
	if err != nil {
		var e *Error
		if !errors.As(err, &e) {
			e = NewError(ConnectionError, err)
		}
		m.onOpenFailure(generation, e)
		return
	}

	transport := m.newTransport()
	if err := transport.Open(ctx, host, query, m.opts.tlsEnabled()); err != nil {
		m.onOpenFailure(generation, NewError(ConnectionError, err))
		return
	}

	group, groupCtx := errgroup.WithContext(m.base())
	m.mu.Lock()
	m.transport = transport
	m.readGroup = group
	m.mu.Unlock()

	group.Go(func() error {
		m.readLoop(groupCtx, transport)
		return nil
	})
}

// buildQuery assembles the handshake query string: auth params, client id,
// wire format, echo flag, and at most one of resume/recover (spec.md
// section 6, "External Interfaces").
func (m *Manager) buildQuery(ctx context.Context) (url.Values, error) {
	v := url.Values{}
	if m.auth != nil {
		params, err := m.auth.Params(ctx)
		if err != nil {
			// A transport-level failure fetching auth params stays
			// retryable; only an actual credential rejection is terminal.
			var e *Error
			if errors.As(err, &e) {
				return nil, e
			}
			return nil, NewError(AuthFailure, err)
		}
		for k, vals := range params {
			for _, val := range vals {
				v.Add(k, val)
			}
		}
	}
	clientID := m.opts.ClientID
	if clientID == "" {
		clientID = m.connID
	}
	v.Set("client_id", clientID)
	v.Set("format", m.opts.Format)
	if m.opts.echoMessages() {
		v.Set("echo", "true")
	} else {
		v.Set("echo", "false")
	}
	v.Set("timestamp", strconv.FormatInt(m.sched.Now().UnixMilli(), 10))

	if resume := m.recovery.Resume(); resume != nil && resume.Key != "" {
		v.Set("resume", resume.Key)
		v.Set("connection_serial", strconv.FormatInt(resume.LastConnectionSerial, 10))
	} else if rec := m.recovery.TakeRecover(); rec != nil {
		v.Set("recover", rec.RecoverKey)
		v.Set("connection_serial", strconv.FormatInt(rec.Serial, 10))
	}
	return v, nil
}

// readLoop pumps frames from transport into the IncomingDispatcher until
// Recv fails or ctx is done. transport pins this goroutine to the attempt
// that started it; a stale readLoop left running after a newer attempt has
// replaced m.transport silently stops once it notices the mismatch, per
// spec.md section 5's generation-token continuation-dropping design. Identity
// of the transport, not the state machine's generation counter, is what
// actually distinguishes "this attempt" from "a newer one" here: generation
// advances the moment this same loop's own Connected frame lands, so a
// comparison against the generation captured at attempt start would go stale
// on its own first successful connection.
func (m *Manager) readLoop(ctx context.Context, transport Transport) {
	for {
		raw, err := transport.Recv(ctx)
		if !m.isCurrentTransport(transport) {
			return
		}
		if err != nil {
			m.onTransportClosed(transport, err)
			return
		}
		if err := m.inDisp.HandleFrame(raw); err != nil {
			m.onProtocolError(transport, err)
			return
		}
	}
}

func (m *Manager) isCurrentTransport(t Transport) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transport == t
}

func (m *Manager) base() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baseCtx
}

func (m *Manager) cancelCurrentBase() {
	m.mu.Lock()
	cancel := m.cancelBase
	m.mu.Unlock()
	cancel()
}

// handleControlFrame is the IncomingDispatcher's callback for
// control-plane actions; it is the sole place StateMachine transitions are
// driven from inbound traffic (spec.md 4.5).
func (m *Manager) handleControlFrame(msg *ProtocolMessage) {
	switch msg.Action {
	case ActionConnected:
		m.onConnected(msg)
	case ActionDisconnected:
		m.onDisconnected(msg.Error)
	case ActionClosed:
		m.onClosed()
	case ActionError:
		if msg.Channel != "" {
			// Channel-scoped error: delivered to channel subscribers via
			// the incoming bus, never a connection-level failure.
			return
		}
		m.onFatalError(msg.Error)
	case ActionSync, ActionAttached, ActionDetached:
		// No state-machine action; already published to the incoming bus
		// for channel-level subscribers.
	}
}

func (m *Manager) onConnected(msg *ProtocolMessage) {
	prev := m.recovery.Identity()
	resumed := prev == nil || msg.ConnectionID == "" || prev.ID == msg.ConnectionID

	event, err := m.state.Transition(StateConnected, nil)
	if err != nil {
		m.logger.Debugf("ignoring Connected frame: " + err.Error())
		return
	}
	m.logger.Event(zerolog.InfoLevel, m.connID, event.Generation, StateConnected.String(), "connected").
		Str("remote_conn_id", msg.ConnectionID).Msg("connection established")

	if msg.ConnectionID != "" {
		m.recovery.SetIdentity(msg.ConnectionID, msg.ConnectionKey)
		var last int64
		if msg.ConnectionSerial != nil {
			last = *msg.ConnectionSerial
		}
		m.recovery.SetResume(&ResumeInfo{Key: msg.ConnectionKey, LastConnectionSerial: last})
	}

	m.host.ReportConnected()
	m.discBO.Reset()
	m.suspBO.Reset()
	m.recovery.DisableRecover()
	m.mu.Lock()
	m.disconnectRuns = 0
	m.mu.Unlock()

	if resumed {
		// Same server-side session: replay pending frames with their
		// original serials and awaiters (scenario: resume on disconnect).
		replay := m.accountant.DrainForReplay()
		m.outQueue.PushItemsFront(replay)
	} else {
		// The server assigned a fresh connection id, so the old session's
		// pending frames can never be acked; reject them and restamp any
		// still-unsent ack-required frames against the reset counter so
		// serials start from 0 on this generation (I1, failure semantics).
		m.accountant.RejectAll(NewError(ConnectionReset, "connection id changed"))
		queued := m.outQueue.Drain()
		for _, item := range queued {
			if item.msg.Action.AckRequired() {
				item.serial = m.accountant.Assign(item.msg)
			}
		}
		m.outQueue.PushItemsFront(queued)
	}
	m.TriggerDrain()
}

func (m *Manager) onDisconnected(frameErr *Error) {
	m.closeTransportLocked()
	m.scheduleRetry(StateDisconnected, frameErr)
}

func (m *Manager) onClosed() {
	m.closeTransportLocked()
	m.accountant.RejectAll(NewError(ConnectionReset, "connection closed"))
	m.recovery.ClearResume()
	m.recovery.ClearIdentity()
	m.recovery.DisableRecover()
	m.state.Transition(StateClosed, nil)
}

func (m *Manager) onFatalError(frameErr *Error) {
	if frameErr == nil {
		frameErr = NewError(ServerError, "fatal error frame")
	}
	m.closeTransportLocked()
	m.accountant.RejectAll(frameErr)
	for _, item := range m.outQueue.Drain() {
		if item.result != nil {
			item.result <- frameErr
			close(item.result)
		}
	}
	m.recovery.ClearResume()
	m.recovery.ClearIdentity()
	m.recovery.DisableRecover()
	if event, err := m.state.Transition(StateFailed, frameErr); err == nil {
		m.logger.Event(zerolog.ErrorLevel, m.connID, event.Generation, StateFailed.String(), "failed").
			Err(frameErr).Msg("connection failed")
	}
}

func (m *Manager) onOpenFailure(generation uint64, err *Error) {
	if _, curGen := m.state.Current(); curGen != generation {
		return
	}
	if err.Kind == AuthFailure {
		// Rejected credentials are terminal: no fallback hosts, no retry
		// budget (spec.md section 7).
		m.onFatalError(err)
		return
	}
	m.scheduleRetry(StateDisconnected, err)
}

func (m *Manager) onTransportClosed(t Transport, err error) {
	m.mu.Lock()
	if m.transport != t {
		m.mu.Unlock()
		return
	}
	m.transport = nil
	m.mu.Unlock()
	t.Close()
	m.scheduleRetry(StateDisconnected, NewError(ConnectionError, err))
}

func (m *Manager) onProtocolError(t Transport, err error) {
	if !m.isCurrentTransport(t) {
		return
	}
	m.onFatalError(NewError(ProtocolViolation, err))
}

// scheduleRetry transitions into Disconnected (or, past
// maxDisconnectedRetries, Suspended) and arms the matching
// ReconnectStrategy's delay before retrying (spec.md 4.6).
func (m *Manager) scheduleRetry(from ConnectionState, frameErr *Error) {
	m.mu.Lock()
	if m.closeRequested {
		m.mu.Unlock()
		m.state.Transition(StateClosed, nil)
		return
	}
	m.disconnectRuns++
	target := StateDisconnected
	strategy := m.discBO
	if m.disconnectRuns > maxDisconnectedRetries {
		target = StateSuspended
		strategy = m.suspBO
	}
	m.mu.Unlock()

	event, err := m.state.Transition(target, frameErr)
	if err != nil {
		return
	}

	delay := strategy.NextDelay(m.host.primaryHost())
	m.logger.Event(zerolog.WarnLevel, m.connID, event.Generation, target.String(), "retry_scheduled").
		Dur("delay", delay).Msg("scheduling reconnect")
	cancel := m.sched.AfterDelay(delay, func() {
		m.retry(event.Generation, target)
	})
	m.mu.Lock()
	m.cancelRetry = cancel
	m.mu.Unlock()
}

func (m *Manager) retry(generation uint64, from ConnectionState) {
	if _, curGen := m.state.Current(); curGen != generation {
		return
	}
	m.mu.Lock()
	closeRequested := m.closeRequested
	m.mu.Unlock()
	if closeRequested {
		return
	}
	if _, err := m.state.Transition(StateConnecting, nil); err != nil {
		return
	}
	go m.attempt(m.base(), from)
}

// TriggerDrain hands the outgoing queue to the dispatcher over the
// currently-open transport, if any (spec.md 4.4: drain is triggered by a
// publish on the outgoing bus or by entry into Connected).
func (m *Manager) TriggerDrain() {
	cur, _ := m.state.Current()
	if cur != StateConnected && cur != StateClosing {
		// The transport may already be open while still awaiting the
		// Connected frame; nothing drains until the state machine says so.
		return
	}
	m.mu.Lock()
	transport := m.transport
	m.mu.Unlock()
	if transport == nil {
		return
	}
	if err := m.outDisp.Drain(transport); err != nil {
		m.onTransportClosed(transport, err)
	}
}

func (m *Manager) closeTransportLocked() {
	m.mu.Lock()
	t := m.transport
	m.transport = nil
	m.mu.Unlock()
	if t != nil {
		t.Close()
	}
}

// Close runs the close sequence (spec.md 4.7): transition to Closing, send
// a Close frame if connected, and wait up to closeDeadline for the server's
// Closed frame before forcing local Closed state regardless.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closeRequested = true
	if m.cancelRetry != nil {
		m.cancelRetry()
	}
	transport := m.transport
	m.mu.Unlock()

	cur, _ := m.state.Current()
	switch cur {
	case StateClosed:
		return nil
	case StateFailed:
		return NewError(InvalidStateTransition, "close from failed")
	case StateInitialized:
		// No session was ever opened; nothing to hand-shake with.
		m.state.Transition(StateClosed, nil)
		m.cancelCurrentBase()
		return nil
	}
	if _, err := m.state.Transition(StateClosing, nil); err != nil {
		// Already mid-transition elsewhere; fall through to best-effort wait.
	}
	m.recovery.ClearResume()

	if transport != nil {
		// The Close frame is ack-required, so it goes through the same
		// serial-assignment and pending-before-wire path as any other
		// ack-required frame (I1, I3); its pending entry is released by
		// the server's Closed frame via RejectAll.
		closeMsg := &ProtocolMessage{Action: ActionClose}
		m.accountant.Assign(closeMsg)
		m.outQueue.Push(closeMsg, nil)
		m.TriggerDrain()
	}

	wait := m.state.AwaitState(StateClosed)
	var closeErr error
	select {
	case <-wait:
	case <-time.After(closeDeadline):
		m.closeTransportLocked()
		m.state.Transition(StateClosed, nil)
	case <-ctx.Done():
		m.closeTransportLocked()
		m.state.Transition(StateClosed, nil)
		closeErr = ctx.Err()
	}

	// Cancel after the handshake wait so the Closed-frame exchange above
	// ran over a live read loop; anything still blocked in Recv now
	// unwinds.
	m.cancelCurrentBase()

	m.mu.Lock()
	group := m.readGroup
	m.mu.Unlock()
	if group != nil {
		group.Wait()
	}
	return closeErr
}
