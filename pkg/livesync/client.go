package livesync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/tabsync/pkg/backoff"
	"github.com/dmitrymomot/tabsync/pkg/broadcast"
	"github.com/dmitrymomot/tabsync/pkg/logger"
	"github.com/dmitrymomot/tabsync/pkg/realtime"
	"github.com/dmitrymomot/tabsync/pkg/session"
	"github.com/dmitrymomot/tabsync/pkg/storage"
	"github.com/dmitrymomot/tabsync/pkg/tabsync"
)

const resubscribeDelay = 10 * time.Millisecond

// Snapshot is the read-only status consumers render.
type Snapshot struct {
	IsConnected      bool
	ConnectionStatus realtime.State
	// LastUpdate is when the last pong or domain event arrived.
	LastUpdate time.Time
	// Error is an AuthError or retry budget exhaustion, nil otherwise.
	Error error

	TabID    string
	IsNewTab bool
}

// Client is one tab: its session coordinator and its realtime connection.
type Client struct {
	config  Config
	tabID   string
	now     func() time.Time
	backoff backoff.Strategy
	metrics *realtime.Metrics
	logger  *slog.Logger

	coord   *tabsync.Coordinator
	manager *realtime.Manager

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	// ended holds ErrSessionExpired after an expiry until the next login.
	ended error
}

// New builds a client over the shared and tab-local stores. Nothing runs
// until Start.
func New(shared storage.Shared, local storage.Local, dialer realtime.Dialer, opts ...Option) *Client {
	c := &Client{
		config: DefaultConfig(),
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.coord = tabsync.New(shared, local,
		tabsync.WithConfig(c.config.Tabsync),
		tabsync.WithSessionConfig(c.config.Session),
		tabsync.WithTabID(c.tabID),
		tabsync.WithClock(c.now),
		tabsync.WithLogger(c.logger),
	)
	c.tabID = c.coord.TabID()
	c.logger = c.logger.With(logger.Component("livesync"), logger.TabID(c.tabID))

	mopts := []realtime.Option{
		realtime.WithConfig(c.config.Realtime),
		realtime.WithClock(c.now),
		realtime.WithLogger(c.logger),
		realtime.WithMetrics(c.metrics),
	}
	if c.backoff != nil {
		mopts = append(mopts, realtime.WithBackoff(c.backoff))
	}
	c.manager = realtime.NewManager(dialer, c.token, mopts...)
	c.manager.Subscribe(realtime.EventConnectError, c.onConnectError)
	return c
}

// TabID returns the tab identity.
func (c *Client) TabID() string { return c.tabID }

// Coordinator returns the tab's session coordinator.
func (c *Client) Coordinator() *tabsync.Coordinator { return c.coord }

// Manager returns the tab's connection manager.
func (c *Client) Manager() *realtime.Manager { return c.manager }

// Registry returns the subscription registry, for realtime.On.
func (c *Client) Registry() *realtime.Registry { return c.manager.Registry() }

// Start classifies the tab, starts following session transitions and
// connects when the tab already holds a session. Connection failures do
// not fail Start; they show up in Snapshot.
func (c *Client) Start(ctx context.Context) (tabsync.Startup, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return tabsync.StartupNewTab, ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return c.coord.Startup(), nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	// Subscribe before Start so no transition is missed.
	events := c.coord.Events(runCtx)
	startup, err := c.coord.Start(ctx)
	if err != nil {
		c.mu.Unlock()
		cancel()
		return startup, err
	}

	c.cancel = cancel
	c.done = make(chan struct{})
	c.started = true
	go c.follow(runCtx, events, c.done)
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "client started", slog.String("startup", startup.String()))

	if _, err := c.coord.Session(ctx); err == nil {
		c.connect(ctx)
	}
	return startup, nil
}

// Snapshot returns the current connection status.
func (c *Client) Snapshot() Snapshot {
	st := c.manager.Status()
	snap := Snapshot{
		IsConnected:      st.Connected,
		ConnectionStatus: st.State,
		LastUpdate:       st.LastUpdate,
		Error:            st.Err,
		TabID:            c.tabID,
		IsNewTab:         c.coord.IsNewTab(),
	}
	if snap.Error == nil {
		c.mu.Lock()
		snap.Error = c.ended
		c.mu.Unlock()
	}
	return snap
}

// Session returns the tab's current session.
func (c *Client) Session(ctx context.Context) (session.Record, error) {
	return c.coord.Session(ctx)
}

// Authorize grants or denies access to a route; see tabsync.Coordinator.Authorize.
func (c *Client) Authorize(ctx context.Context, protected bool) (session.Record, error) {
	return c.coord.Authorize(ctx, protected)
}

// Login creates a session for this tab. The connection follows.
func (c *Client) Login(ctx context.Context, token string, user session.User, role session.Role) (session.Record, error) {
	if err := c.ready(); err != nil {
		return session.Record{}, err
	}
	return c.coord.Login(ctx, token, user, role)
}

// AssignToken creates or replaces the session from a token alone.
func (c *Client) AssignToken(ctx context.Context, token string) (session.Record, error) {
	if err := c.ready(); err != nil {
		return session.Record{}, err
	}
	return c.coord.AssignToken(ctx, token)
}

// SwitchRole changes the session role; the connection is re-established.
func (c *Client) SwitchRole(ctx context.Context, role session.Role) (session.Record, error) {
	if err := c.ready(); err != nil {
		return session.Record{}, err
	}
	return c.coord.SwitchRole(ctx, role)
}

// Touch records user activity.
func (c *Client) Touch(ctx context.Context) error {
	return c.coord.Touch(ctx)
}

// Logout ends the session here and in the user's other tabs.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.coord.Logout(ctx)
}

// Subscribe registers h for events named name.
func (c *Client) Subscribe(name realtime.EventName, h realtime.Handler) realtime.Subscription {
	return c.manager.Subscribe(name, h)
}

// Unsubscribe removes one subscription.
func (c *Client) Unsubscribe(sub realtime.Subscription) bool {
	return c.manager.Unsubscribe(sub)
}

// UnsubscribeAll removes every handler for name.
func (c *Client) UnsubscribeAll(name realtime.EventName) int {
	return c.manager.UnsubscribeAll(name)
}

// Emit sends an event on the open connection.
func (c *Client) Emit(ctx context.Context, name realtime.EventName, data any) error {
	return c.manager.Emit(ctx, name, data)
}

// SubscribeToRoom adds a room membership.
func (c *Client) SubscribeToRoom(ctx context.Context, room realtime.Room) error {
	return c.manager.SubscribeToRoom(ctx, room)
}

// UnsubscribeFromRoom drops a room membership.
func (c *Client) UnsubscribeFromRoom(ctx context.Context, room realtime.Room) error {
	return c.manager.UnsubscribeFromRoom(ctx, room)
}

// RetryConnection reconnects after the retry budget ran out.
func (c *Client) RetryConnection(ctx context.Context) error {
	return c.manager.RetryConnection(ctx)
}

// Close stops following transitions, closes the connection and stops the
// coordinator. The session survives for reload recovery.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return errors.Join(c.manager.Close(), c.coord.Close())
}

func (c *Client) ready() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return ErrClosed
	case !c.started:
		return ErrNotStarted
	}
	return nil
}

// token is the manager's token source: whatever the session holds now.
func (c *Client) token(ctx context.Context) (string, error) {
	rec, err := c.coord.Session(ctx)
	if err != nil {
		return "", err
	}
	return rec.Token, nil
}

// follow applies session transitions to the connection until ctx ends.
func (c *Client) follow(ctx context.Context, sub broadcast.Subscriber[tabsync.Event], done chan struct{}) {
	defer close(done)

	for {
		for msg := range sub.Receive(ctx) {
			c.apply(ctx, msg.Data)
		}
		if ctx.Err() != nil {
			return
		}

		// Dropped as a slow consumer; catch up from the session itself.
		c.logger.WarnContext(ctx, "session event stream dropped, resubscribing")
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
		sub = c.coord.Events(ctx)
		c.reconcile(ctx)
	}
}

func (c *Client) apply(ctx context.Context, e tabsync.Event) {
	log := c.logger.With(logger.Event(string(e.Kind)), slog.Bool("remote", e.Remote))
	c.setEnded(e)

	switch e.Kind {
	case tabsync.EventLogin:
		log.DebugContext(ctx, "session started, connecting")
		c.connect(ctx)
	case tabsync.EventLogout, tabsync.EventExpired:
		log.InfoContext(ctx, "session ended, disconnecting")
		_ = c.manager.Disconnect(ctx)
	case tabsync.EventRoleSwitched, tabsync.EventTokenChanged:
		log.InfoContext(ctx, "credentials changed, reconnecting")
		if err := c.manager.RetryConnection(ctx); err != nil && !errors.Is(err, realtime.ErrClosed) {
			log.DebugContext(ctx, "reconnect failed", logger.Error(err))
		}
	}
}

func (c *Client) setEnded(e tabsync.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch e.Kind {
	case tabsync.EventExpired:
		c.ended = session.ErrSessionExpired
	case tabsync.EventLogin, tabsync.EventTokenChanged, tabsync.EventLogout:
		c.ended = nil
	}
}

// reconcile aligns the connection with the session after missed events.
func (c *Client) reconcile(ctx context.Context) {
	if _, err := c.coord.Session(ctx); err != nil {
		_ = c.manager.Disconnect(ctx)
		return
	}
	c.connect(ctx)
}

func (c *Client) connect(ctx context.Context) {
	if err := c.manager.Connect(ctx); err != nil && !errors.Is(err, realtime.ErrClosed) {
		c.logger.DebugContext(ctx, "connect failed", logger.Error(err))
	}
}

// onConnectError re-checks the session when the server rejects the token,
// so an expired token ends the session in every tab.
func (c *Client) onConnectError(e realtime.Event) {
	ce, ok := e.(realtime.ConnectError)
	if !ok || !realtime.IsAuthError(ce.Err) {
		return
	}
	if _, err := c.coord.Session(context.Background()); errors.Is(err, session.ErrSessionExpired) {
		c.logger.Info("session expired while connecting")
	}
}
