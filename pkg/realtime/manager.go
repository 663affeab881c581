package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/tabsync/pkg/backoff"
	"github.com/dmitrymomot/tabsync/pkg/logger"
	"github.com/dmitrymomot/tabsync/pkg/scheduler"
	"github.com/dmitrymomot/tabsync/pkg/statemachine"
)

const (
	jobReconnect = "reconnect"
	jobHeartbeat = "heartbeat"
)

// Manager owns the lifecycle of one realtime connection.
type Manager struct {
	dialer   Dialer
	tokens   TokenSource
	config   Config
	backoff  backoff.Strategy
	registry *Registry
	metrics  *Metrics
	now      func() time.Time
	logger   *slog.Logger
	fsm      *statemachine.Machine[State, trigger]
	sched    *scheduler.Scheduler

	// bindMu orders binding a new connection against tearing one down
	bindMu sync.Mutex

	mu         sync.Mutex
	conn       Conn
	connCancel context.CancelFunc
	// gen is bumped whenever pending dials and reconnects must be abandoned
	gen         uint64
	failures    int
	lastUpdate  time.Time
	err         error
	intentional bool
	closed      bool
	wg          sync.WaitGroup
}

// NewManager creates a disconnected manager.
func NewManager(dialer Dialer, tokens TokenSource, opts ...Option) *Manager {
	m := &Manager{
		dialer: dialer,
		tokens: tokens,
		config: DefaultConfig(),
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logger.Component("realtime"))
	if m.registry == nil {
		m.registry = NewRegistry(m.logger)
	}
	if m.backoff == nil {
		m.backoff = backoff.Exponential{Base: m.config.BackoffBase, Max: m.config.BackoffMax, Multiplier: 2}
	}
	if m.config.MaxAttempts <= 0 {
		m.config.MaxAttempts = 1
	}
	m.sched = scheduler.New(scheduler.WithLogger(m.logger))
	m.fsm = newConnectionMachine(func(from, to State, ev trigger) {
		m.metrics.setState(to)
		m.logger.Debug("connection state changed",
			slog.String("from", string(from)), logger.State(to), logger.Event(string(ev)))
	})
	m.metrics.setState(StateDisconnected)
	return m
}

// Registry returns the subscription registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Subscribe registers h for name; see Registry.Subscribe.
func (m *Manager) Subscribe(name EventName, h Handler) Subscription {
	return m.registry.Subscribe(name, h)
}

// Unsubscribe removes one handler.
func (m *Manager) Unsubscribe(sub Subscription) bool {
	return m.registry.Unsubscribe(sub)
}

// UnsubscribeAll removes every handler of name.
func (m *Manager) UnsubscribeAll(name EventName) int {
	return m.registry.UnsubscribeAll(name)
}

// SubscribeToRoom adds a room membership; see Registry.SubscribeToRoom.
func (m *Manager) SubscribeToRoom(ctx context.Context, room Room) error {
	return m.registry.SubscribeToRoom(ctx, room)
}

// UnsubscribeFromRoom drops a room membership.
func (m *Manager) UnsubscribeFromRoom(ctx context.Context, room Room) error {
	return m.registry.UnsubscribeFromRoom(ctx, room)
}

// Status returns a snapshot of the connection.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.fsm.Current()
	return Status{
		State:      state,
		Connected:  state == StateConnected,
		LastUpdate: m.lastUpdate,
		Err:        m.err,
		Failures:   m.failures,
	}
}

// Connect opens the connection unless it is already open or opening.
// Transport failures are retried in the background; the returned error
// describes the first attempt only.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.fsm.Is(StateConnecting, StateConnected) {
		m.mu.Unlock()
		return nil
	}
	m.intentional = false
	m.failures = 0
	m.err = nil
	gen := m.gen
	m.mu.Unlock()

	m.sched.Cancel(jobReconnect)
	return m.attempt(ctx, gen)
}

// Disconnect closes the connection on purpose; no reconnect follows.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	m.intentional = true
	m.failures = 0
	m.err = nil
	conn, cancel := m.detach(ctx)
	m.mu.Unlock()

	m.release(conn, cancel, "client disconnect", true)
	return nil
}

// RetryConnection abandons any pending attempt or stale connection, resets
// the retry budget and connects again.
func (m *Manager) RetryConnection(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.intentional = false
	m.failures = 0
	m.err = nil
	conn, cancel := m.detach(ctx)
	gen := m.gen
	m.mu.Unlock()

	m.release(conn, cancel, "retry", false)
	return m.attempt(ctx, gen)
}

// Emit sends an event on the open connection.
func (m *Manager) Emit(ctx context.Context, name EventName, data any) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return m.write(ctx, conn, name, data)
}

// Close disconnects, stops every timer and waits for the read loop.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	err := m.Disconnect(context.Background())
	m.sched.Stop()
	m.wg.Wait()
	return err
}

// attempt runs one connect attempt for generation gen.
func (m *Manager) attempt(ctx context.Context, gen uint64) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.gen != gen {
		m.mu.Unlock()
		return nil
	}
	if err := m.fsm.Fire(ctx, triggerDial, nil); err != nil {
		// Another attempt is already in flight
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	token, err := m.tokens(ctx)
	switch {
	case err != nil && !IsAuthError(err):
		err = &AuthError{Reason: err.Error()}
	case err == nil && token == "":
		err = &AuthError{Reason: "no session token"}
	}
	if err != nil {
		m.fail(ctx, gen, err)
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.config.DialTimeout)
	conn, err := m.dialer.Dial(dialCtx, m.config.URL, token)
	cancel()
	if err != nil {
		var te *TransportError
		if !IsAuthError(err) && !errors.As(err, &te) {
			err = &TransportError{Op: "dial", Err: err}
		}
		m.fail(ctx, gen, err)
		return err
	}

	m.open(ctx, gen, conn)
	return nil
}

func (m *Manager) fail(ctx context.Context, gen uint64, cause error) {
	m.mu.Lock()
	if m.closed || m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.failures++
	attempt := m.failures
	_ = m.fsm.Fire(ctx, triggerFail, nil)

	retry := false
	var delay time.Duration
	switch {
	case IsAuthError(cause):
		m.err = cause
	case m.failures >= m.config.MaxAttempts:
		m.err = errors.Join(ErrRetryBudgetExhausted, cause)
	default:
		retry = true
		delay = m.backoff.Delay(m.failures - 1)
	}
	surfaced := m.err
	m.mu.Unlock()

	m.metrics.connectFailed(cause)
	if surfaced != nil {
		m.logger.ErrorContext(ctx, "realtime connection failed", logger.Attempt(attempt), logger.Error(surfaced))
	} else {
		m.logger.WarnContext(ctx, "realtime connect attempt failed",
			logger.Attempt(attempt), logger.Duration(delay), logger.Error(cause))
	}
	m.registry.Dispatch(ConnectError{Err: cause, Attempt: attempt, At: m.now()})

	if retry {
		m.scheduleReconnect(gen, delay)
	}
}

func (m *Manager) open(ctx context.Context, gen uint64, conn Conn) {
	m.mu.Lock()
	if m.closed || m.gen != gen {
		m.mu.Unlock()
		_ = conn.Close("superseded")
		return
	}
	connCtx, cancel := context.WithCancel(context.Background())
	m.conn = conn
	m.connCancel = cancel
	m.failures = 0
	m.err = nil
	_ = m.fsm.Fire(ctx, triggerOpen, nil)
	m.wg.Add(1)
	m.mu.Unlock()

	go m.readLoop(connCtx, conn)
	m.metrics.connected()

	m.bindMu.Lock()
	rooms, err := m.registry.Bind(ctx, m.boundEmitter(conn))
	if err != nil {
		m.logger.WarnContext(ctx, "room replay incomplete", logger.Error(err))
	}
	if m.config.HeartbeatInterval > 0 {
		_ = m.sched.Every(jobHeartbeat, m.config.HeartbeatInterval, func(ctx context.Context) {
			m.ping(ctx, conn)
		})
	}
	live := m.isCurrent(conn)
	if !live {
		// Dropped or disconnected during the replay
		m.sched.Cancel(jobHeartbeat)
		m.registry.Unbind()
	}
	m.bindMu.Unlock()
	if !live {
		m.logger.DebugContext(ctx, "connection lost during room replay")
		return
	}

	m.logger.InfoContext(ctx, "realtime connected", slog.Int("rooms", len(rooms)))
	m.registry.Dispatch(Connected{At: m.now(), Rooms: rooms})
}

func (m *Manager) readLoop(ctx context.Context, conn Conn) {
	defer m.wg.Done()

	for {
		env, err := conn.Read(ctx)
		if err != nil {
			var pe *ProtocolError
			if errors.As(err, &pe) {
				m.metrics.protocolError()
				m.logger.Warn("dropping malformed frame", logger.Error(err))
				continue
			}
			m.dropped(conn, err)
			return
		}
		m.receive(env)
	}
}

func (m *Manager) receive(env Envelope) {
	switch env.Event {
	case EventConnect, EventDisconnect, EventConnectError:
		m.logger.Debug("ignoring reserved event from server", logger.Event(string(env.Event)))
		return
	}

	e, err := Decode(env)
	if err != nil {
		m.metrics.protocolError()
		m.logger.Warn("dropping malformed event", logger.Event(string(env.Event)), logger.Error(err))
		return
	}
	name := e.EventName()
	m.metrics.received(name)
	if name == EventPong || isDomain(name) {
		m.mu.Lock()
		m.lastUpdate = m.now()
		m.mu.Unlock()
	}
	m.registry.Dispatch(e)
}

// dropped handles the loss of conn by anything but Disconnect.
func (m *Manager) dropped(conn Conn, cause error) {
	m.mu.Lock()
	if m.conn != conn {
		// Disconnect or RetryConnection already took care of it
		m.mu.Unlock()
		return
	}
	m.conn = nil
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	_ = m.fsm.Fire(context.Background(), triggerDrop, nil)
	reconnect := !m.intentional && !m.closed
	gen := m.gen
	m.mu.Unlock()

	m.unbind()
	_ = conn.Close("dropped")

	m.logger.Warn("realtime connection lost", logger.Error(cause))
	m.registry.Dispatch(Disconnected{Reason: cause.Error(), At: m.now()})

	if reconnect {
		m.scheduleReconnect(gen, m.backoff.Delay(0))
	}
}

// detach must be called with the lock held. It abandons pending work and
// moves the machine to disconnected.
func (m *Manager) detach(ctx context.Context) (Conn, context.CancelFunc) {
	m.gen++
	conn, cancel := m.conn, m.connCancel
	m.conn, m.connCancel = nil, nil
	if !m.fsm.Is(StateDisconnected) {
		_ = m.fsm.Fire(ctx, triggerClose, nil)
	}
	return conn, cancel
}

func (m *Manager) release(conn Conn, cancel context.CancelFunc, reason string, intentional bool) {
	m.sched.Cancel(jobReconnect)
	if conn == nil {
		m.sched.Cancel(jobHeartbeat)
		return
	}
	m.unbind()
	_ = conn.Close(reason)
	if cancel != nil {
		cancel()
	}
	m.logger.Info("realtime disconnected", slog.String("reason", reason))
	m.registry.Dispatch(Disconnected{Reason: reason, Intentional: intentional, At: m.now()})
}

func (m *Manager) scheduleReconnect(gen uint64, delay time.Duration) {
	err := m.sched.After(jobReconnect, delay, func(ctx context.Context) {
		_ = m.attempt(ctx, gen)
	})
	if err != nil {
		m.logger.Debug("reconnect not scheduled", logger.Error(err))
	}
}

func (m *Manager) ping(ctx context.Context, conn Conn) {
	if err := m.write(ctx, conn, EventPing, Ping{At: m.now()}); err != nil {
		// The transport reports real disconnects on its own
		m.logger.DebugContext(ctx, "heartbeat write failed", logger.Error(err))
		return
	}
	m.metrics.heartbeat()
}

func (m *Manager) write(ctx context.Context, conn Conn, name EventName, data any) error {
	env, err := NewEnvelope(name, data)
	if err != nil {
		return &ProtocolError{Event: name, Err: err}
	}
	if m.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.WriteTimeout)
		defer cancel()
	}
	return conn.Write(ctx, env)
}

// boundEmitter writes to conn only while it is the current connection.
func (m *Manager) boundEmitter(conn Conn) Emitter {
	return EmitterFunc(func(ctx context.Context, name EventName, data any) error {
		if !m.isCurrent(conn) {
			return ErrNotConnected
		}
		return m.write(ctx, conn, name, data)
	})
}

func (m *Manager) isCurrent(conn Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn == conn
}

// unbind stops the heartbeat and detaches the registry once any bind in
// progress has finished.
func (m *Manager) unbind() {
	m.bindMu.Lock()
	defer m.bindMu.Unlock()
	m.sched.Cancel(jobHeartbeat)
	m.registry.Unbind()
}
