package surge

import (
	"context"
	"sync"
	"time"

	"github.com/surgemsg/surge-go/internal/channelreg"
	"github.com/surgemsg/surge-go/internal/scheduler"
)

// Client is the Connection Facade component (C8): the single public
// entry point aggregating the state machine, accountant, queues, bus
// pair, and manager behind connect()/close()/send()/ping(). Grounded on
// amps/client.go's Client type, generalized from AMPS's command-oriented
// surface to the realtime connection subsystem's send/ack model.
type Client struct {
	opts *ClientOptions

	state      *StateMachine
	accountant *Accountant
	outQueue   *OutgoingQueue
	codec      *Codec
	registry   *channelreg.Registry

	incomingBus *Bus
	outgoingBus *Bus

	manager *Manager
	logger  *Logger
	sched   scheduler.Scheduler
}

// NewClient validates opts and assembles a Client ready to Connect. No
// network activity happens until Connect is called.
func NewClient(opts *ClientOptions) (*Client, error) {
	return newClient(opts, func() Transport {
		return &WebsocketTransport{HandshakeTimeout: opts.HTTPOpenTimeout}
	}, scheduler.NewRealScheduler())
}

// newClient is NewClient's implementation, parameterized over the
// transport factory and scheduler so tests can substitute a MockTransport
// and a FakeScheduler without a real socket or wall-clock delay.
func newClient(opts *ClientOptions, newTransport func() Transport, sched scheduler.Scheduler) (*Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Format == "" {
		opts.Format = "json"
	}

	codec, err := NewCodec(opts.Format)
	if err != nil {
		return nil, err
	}
	recover, err := ParseRecoverInfo(opts.Recover)
	if err != nil {
		return nil, err
	}

	logger := NopLogger()
	if opts.LogLevel != "" || opts.LogFilePath != "" {
		logger = NewLogger(opts.LogLevel, opts.LogFilePath)
	}

	c := &Client{
		opts:       opts,
		state:      NewStateMachine(),
		accountant: NewAccountant(),
		outQueue:   NewOutgoingQueue(),
		codec:      codec,
		registry:   channelreg.New(),
		logger:     logger,
		sched:      sched,
	}
	c.incomingBus = NewBus(func(event BusEvent, r interface{}) {
		c.logger.Debugf("recovered panic in incoming bus subscriber")
	})
	c.outgoingBus = NewBus(func(event BusEvent, r interface{}) {
		c.logger.Debugf("recovered panic in outgoing bus subscriber")
	})
	c.outgoingBus.Subscribe(EventProtocolMessage, func(*ProtocolMessage) {
		c.manager.TriggerDrain()
	})

	recoveryState := newRecoveryState(recover)
	c.manager = NewManager(ManagerDeps{
		Opts:         opts,
		State:        c.state,
		Host:         NewHostCursor(opts.Environment, opts.CustomHost),
		NewTransport: newTransport,
		Codec:        codec,
		Accountant:   c.accountant,
		OutQueue:     c.outQueue,
		Recovery:     recoveryState,
		Sched:        sched,
		Logger:       logger,
		Registry:     c.registry,
		IncomingBus:  c.incomingBus,
	})

	return c, nil
}

// Connect starts the connection sequence and returns a channel that
// resolves once the connection reaches Connected or a terminal state
// other than Connected (spec.md 4.3, 4.6).
func (c *Client) Connect(ctx context.Context) <-chan StateChangeEvent {
	return c.manager.Connect(ctx)
}

// Close runs the close sequence and blocks until the connection reaches
// Closed or ctx is done (spec.md 4.7).
func (c *Client) Close(ctx context.Context) error {
	return c.manager.Close(ctx)
}

// State returns the current connection state and generation.
func (c *Client) State() (ConnectionState, uint64) {
	return c.state.Current()
}

// OnStateChange registers a listener for every transition (spec.md 4.3).
func (c *Client) OnStateChange(fn func(StateChangeEvent)) {
	c.state.OnChange(fn)
}

// Send enqueues msg for transmission. Ack-required actions are assigned a
// serial transactionally and return a channel that resolves with nil on
// Ack, or the frame/connection error on Nack/reset; non-ack-required
// actions return a channel that closes immediately with a nil error once
// queued (spec.md section 3, "send(message)").
func (c *Client) Send(msg *ProtocolMessage) <-chan error {
	result := make(chan error, 1)
	item := msg

	if msg.Action.AckRequired() {
		c.accountant.Assign(item)
	}

	var awaiter chan error
	if msg.Action.AckRequired() {
		awaiter = make(chan error, 1)
	}

	c.outQueue.Push(item, awaiter)

	if awaiter == nil {
		result <- nil
		close(result)
	} else {
		go func() {
			err, ok := <-awaiter
			if !ok {
				err = NewError(ConnectionReset, "connection closed before ack")
			}
			result <- err
			close(result)
		}()
	}

	c.outgoingBus.Publish(EventProtocolMessage, item)
	return result
}

// Ping sends a Heartbeat frame and resolves with the round-trip time to
// the next inbound Heartbeat (spec.md 4.7). It fails immediately from
// Initialized/Closed/Failed. There is no implicit deadline: callers
// bound the wait through ctx (spec.md section 5). The heartbeat
// subscription is registered before the frame is sent so a fast server
// can't win the race.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	cur, _ := c.state.Current()
	switch cur {
	case StateInitialized, StateClosed, StateFailed:
		return 0, NewError(InvalidStateTransition, "ping from "+cur.String())
	}

	done := make(chan struct{})
	var once sync.Once
	tok, err := c.incomingBus.Subscribe(EventProtocolMessage, func(m *ProtocolMessage) {
		if m.Action == ActionHeartbeat {
			once.Do(func() { close(done) })
		}
	})
	if err != nil {
		return 0, err
	}
	defer c.incomingBus.Unsubscribe(tok)

	start := c.sched.Now()
	c.Send(&ProtocolMessage{Action: ActionHeartbeat})

	select {
	case <-done:
		return c.sched.Now().Sub(start), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// RecoveryKey returns the "{key}:{serial}" string a caller can persist to
// resume this connection from a fresh Client later (spec.md section 6,
// P6). It is empty until the first successful Connected.
func (c *Client) RecoveryKey() string {
	return c.manager.recovery.Resume().RecoveryKey()
}

// Subscribe registers handler for every decoded inbound frame (spec.md
// 4.2's incoming bus).
func (c *Client) Subscribe(handler func(*ProtocolMessage)) (SubscriptionToken, error) {
	return c.incomingBus.Subscribe(EventProtocolMessage, handler)
}

// Unsubscribe removes a previously registered inbound handler.
func (c *Client) Unsubscribe(token SubscriptionToken) {
	c.incomingBus.Unsubscribe(token)
}
