// Package correlator implements the caller side of the bridge: it issues calls
// with unique correlation ids and settles their futures when replies arrive.
package correlator

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/kbridge/internal/core/ports"
	"go.trai.ch/zerr"
)

// Future is the eventual outcome of an issued call.
type Future struct {
	id       string
	function string
	done     chan struct{}
	result   any
	err      error
}

func newFuture(id, function string) *Future {
	return &Future{id: id, function: function, done: make(chan struct{})}
}

// ID returns the correlation id of the call.
func (f *Future) ID() string { return f.id }

// Function returns the called function name.
func (f *Future) Function() string { return f.function }

// Done is closed once the call is settled.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await blocks until the call is settled or ctx is done.
// Abandoning a future does not cancel the remote computation.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) settle(result any, err error) {
	f.result, f.err = result, err
	close(f.done)
}

// Correlator matches replies to pending calls and tracks the worker state.
type Correlator struct {
	transport ports.Transport
	logger    ports.Logger
	prefix    string
	seq       atomic.Uint64

	onError  func(id, function string, err error)
	onState  func(domain.WorkerState)
	onSignal func(domain.Signal)

	mu      sync.Mutex
	pending map[string]*Future
	state   domain.WorkerState
	ready   chan struct{}
	closed  bool
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithErrorHook is called for every failure reply, after the future is rejected.
func WithErrorHook(hook func(id, function string, err error)) Option {
	return func(c *Correlator) { c.onError = hook }
}

// WithStateHook is called on every worker state change.
func WithStateHook(hook func(domain.WorkerState)) Option {
	return func(c *Correlator) { c.onState = hook }
}

// WithSignalHook receives every control signal.
func WithSignalHook(hook func(domain.Signal)) Option {
	return func(c *Correlator) { c.onSignal = hook }
}

// WithLogger sets the correlator logger.
func WithLogger(logger ports.Logger) Option {
	return func(c *Correlator) { c.logger = logger }
}

// New creates a Correlator that sends requests over transport.
func New(transport ports.Transport, opts ...Option) *Correlator {
	c := &Correlator{
		transport: transport,
		logger:    ports.NopLogger{},
		prefix:    uuid.Must(uuid.NewV7()).String(),
		pending:   make(map[string]*Future),
		state:     domain.WorkerStateUninitialised,
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// nextID returns an id that is unique for the lifetime of the process.
func (c *Correlator) nextID() string {
	return c.prefix + "-" + strconv.FormatUint(c.seq.Add(1), 10)
}

// Issue sends a call and returns its future without waiting for the reply.
func (c *Correlator) Issue(ctx context.Context, functionName string, inputs map[string]any) (*Future, error) {
	f := newFuture(c.nextID(), functionName)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, zerr.With(zerr.Wrap(domain.ErrTransportClosed, "cannot issue call"), "function", functionName)
	}
	c.pending[f.id] = f
	changed := c.recomputeLocked()
	c.mu.Unlock()
	c.notify(changed)

	if err := c.transport.Send(ctx, domain.NewRequest(f.id, functionName, inputs)); err != nil {
		c.mu.Lock()
		delete(c.pending, f.id)
		changed := c.recomputeLocked()
		c.mu.Unlock()
		c.notify(changed)
		return nil, zerr.With(zerr.Wrap(err, "failed to send request"), "function", functionName)
	}
	return f, nil
}

// Call issues a call and waits for its outcome.
func (c *Correlator) Call(ctx context.Context, functionName string, inputs map[string]any) (any, error) {
	f, err := c.Issue(ctx, functionName, inputs)
	if err != nil {
		return nil, err
	}
	return f.Await(ctx)
}

// StartRound marks the beginning of a computation round on the worker.
func (c *Correlator) StartRound(ctx context.Context) error {
	_, err := c.Call(ctx, domain.FunctionStartRound, map[string]any{})
	return err
}

// Flush disposes every cached entry on the worker.
func (c *Correlator) Flush(ctx context.Context) error {
	_, err := c.Call(ctx, domain.FunctionFlushCache, map[string]any{})
	return err
}

// OnMessage routes one inbound message.
// Replies whose id matches no pending call are ignored.
func (c *Correlator) OnMessage(msg domain.Message) {
	if msg.IsSignal() {
		c.onControl(msg.Signal)
		return
	}

	c.mu.Lock()
	f, ok := c.pending[msg.ID]
	if ok {
		delete(c.pending, msg.ID)
	}
	changed := c.recomputeLocked()
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("ignoring reply without pending call", "id", msg.ID)
		return
	}

	if msg.Failed() {
		err := zerr.With(zerr.Wrap(domain.ErrRemoteCall, msg.Error), "function", f.function)
		f.settle(nil, err)
		if c.onError != nil {
			c.onError(f.id, f.function, err)
		}
	} else {
		f.settle(msg.Result, nil)
	}
	c.notify(changed)
}

func (c *Correlator) onControl(s domain.Signal) {
	if c.onSignal != nil {
		c.onSignal(s)
	}
	if s != domain.SignalInitialised {
		return
	}

	c.mu.Lock()
	if c.state.IsReady() {
		c.mu.Unlock()
		c.logger.Debug("worker announced itself twice")
		return
	}
	c.state = domain.WorkerStateInitialised
	close(c.ready)
	// Calls issued before the announcement make the worker busy right away.
	next := c.recomputeLocked()
	c.mu.Unlock()

	c.notify(domain.WorkerStateInitialised)
	c.notify(next)
}

// Listen feeds inbound messages to OnMessage until the transport closes.
// Pending calls are then rejected with domain.ErrTransportClosed.
func (c *Correlator) Listen(ctx context.Context) error {
	for {
		msg, err := c.transport.Receive(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrTransportClosed) {
				c.rejectAll(err)
				return nil
			}
			return zerr.Wrap(err, "failed to receive reply")
		}
		c.OnMessage(msg)
	}
}

// rejectAll fails every pending call and refuses new ones.
func (c *Correlator) rejectAll(cause error) {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]*Future)
	changed := c.recomputeLocked()
	c.mu.Unlock()

	for _, f := range pending {
		f.settle(nil, zerr.With(zerr.Wrap(cause, "worker went away"), "function", f.function))
	}
	c.notify(changed)
}

// Ready is closed once the worker announced itself.
func (c *Correlator) Ready() <-chan struct{} {
	return c.ready
}

// State returns the current worker state.
func (c *Correlator) State() domain.WorkerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the number of unsettled calls.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// recomputeLocked derives Idle or Busy from the pending count once the worker is ready.
// It returns the new state when it changed, or the empty state.
func (c *Correlator) recomputeLocked() domain.WorkerState {
	if !c.state.IsReady() {
		return ""
	}
	next := domain.WorkerStateIdle
	if len(c.pending) > 0 {
		next = domain.WorkerStateBusy
	}
	if next == c.state || (next == domain.WorkerStateIdle && c.state == domain.WorkerStateInitialised) {
		return ""
	}
	c.state = next
	return next
}

func (c *Correlator) notify(state domain.WorkerState) {
	if state == "" || c.onState == nil {
		return
	}
	c.onState(state)
}
