package tabsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tabsync/pkg/broadcast"
	"github.com/dmitrymomot/tabsync/pkg/logger"
	"github.com/dmitrymomot/tabsync/pkg/scheduler"
	"github.com/dmitrymomot/tabsync/pkg/session"
	"github.com/dmitrymomot/tabsync/pkg/storage"
)

// NewTabID returns a globally unique tab identifier.
func NewTabID() string {
	return uuid.NewString()
}

// Coordinator owns the identity, session and cross-tab signalling of one tab.
type Coordinator struct {
	tabID         string
	config        Config
	sessionConfig session.Config
	now           func() time.Time
	logger        *slog.Logger

	store   *session.Store
	signals *Signals
	sched   *scheduler.Scheduler
	events  *broadcast.MemoryBroadcaster[Event]

	mu       sync.Mutex
	started  bool
	closed   bool
	startup  Startup
	loggedIn bool // explicit login or token assignment in this tab
	cancel   context.CancelFunc
	listener <-chan struct{}
}

// New creates a coordinator for a tab backed by shared and local.
func New(shared storage.Shared, local storage.Local, opts ...Option) *Coordinator {
	c := &Coordinator{
		tabID:         NewTabID(),
		config:        DefaultConfig(),
		sessionConfig: session.DefaultConfig(),
		now:           time.Now,
		logger:        slog.New(slog.DiscardHandler),
		events:        broadcast.NewMemoryBroadcaster[Event](64),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("tabsync"), logger.TabID(c.tabID))
	c.sched = scheduler.New(scheduler.WithLogger(c.logger))
	c.store = session.New(shared, local, c.tabID,
		session.WithConfig(c.sessionConfig),
		session.WithClock(c.now),
		session.WithLogger(c.logger),
	)
	c.signals = NewSignals(shared, SignalsConfig{
		TabID:     c.tabID,
		Debounce:  c.config.SignalDebounce,
		Scheduler: c.sched,
		Now:       c.now,
		Logger:    c.logger,
	})
	return c
}

// TabID returns this tab's identity.
func (c *Coordinator) TabID() string { return c.tabID }

// Store returns the tab's session store.
func (c *Coordinator) Store() *session.Store { return c.store }

// Signals returns the tab's cross-tab signal channel.
func (c *Coordinator) Signals() *Signals { return c.signals }

// Start classifies the tab, begins listening for sibling signals and
// schedules background jobs. Calling it again returns the first result.
func (c *Coordinator) Start(ctx context.Context) (Startup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return StartupNewTab, ErrClosed
	}
	if c.started {
		return c.startup, nil
	}

	startup, err := c.classify(ctx)
	if err != nil {
		return StartupNewTab, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	listener, err := c.signals.Listen(runCtx, c.handleSignal)
	if err != nil {
		cancel()
		return StartupNewTab, err
	}
	if err := c.schedule(); err != nil {
		cancel()
		return StartupNewTab, err
	}

	c.cancel = cancel
	c.listener = listener
	c.started = true
	c.startup = startup
	c.logger.InfoContext(ctx, "tab started", slog.String("startup", startup.String()))
	return startup, nil
}

// Startup returns how the tab was classified by Start.
func (c *Coordinator) Startup() Startup {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startup
}

// IsNewTab reports whether the tab started without a session to continue and
// nobody has logged in since.
func (c *Coordinator) IsNewTab() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startup == StartupNewTab && !c.loggedIn
}

// Session returns the tab's current session; see session.Store.GetSession.
func (c *Coordinator) Session(ctx context.Context) (session.Record, error) {
	if c.detectExpiry(ctx) {
		return session.Record{}, session.ErrSessionExpired
	}
	return c.store.GetSession(ctx)
}

// Authorize grants access to a route. Protected routes are denied to new
// tabs until they log in explicitly. Login, AssignToken, SwitchRole and
// Logout likewise fail with ErrNotStarted before Start and ErrClosed after
// Close.
func (c *Coordinator) Authorize(ctx context.Context, protected bool) (session.Record, error) {
	if err := c.ready(); err != nil {
		return session.Record{}, err
	}
	if protected && c.IsNewTab() {
		return session.Record{}, ErrReauthRequired
	}
	rec, err := c.Session(ctx)
	if session.IsNoSession(err) {
		return session.Record{}, ErrNotAuthenticated
	}
	return rec, err
}

// Login creates a session for this tab.
func (c *Coordinator) Login(ctx context.Context, token string, user session.User, role session.Role) (session.Record, error) {
	if err := c.ready(); err != nil {
		return session.Record{}, err
	}
	rec, err := c.store.CreateSession(ctx, token, user, role)
	if err != nil {
		return session.Record{}, err
	}
	c.markLoggedIn(true)
	c.emit(ctx, Event{Kind: EventLogin, Record: rec, SourceTab: c.tabID})
	return rec, nil
}

// AssignToken creates or replaces the session from a token alone.
func (c *Coordinator) AssignToken(ctx context.Context, token string) (session.Record, error) {
	if err := c.ready(); err != nil {
		return session.Record{}, err
	}
	_, prevErr := c.store.Current(ctx)
	rec, err := c.store.AssignToken(ctx, token)
	if err != nil {
		return session.Record{}, err
	}
	c.markLoggedIn(true)

	kind := EventLogin
	if prevErr == nil {
		kind = EventTokenChanged
	}
	c.emit(ctx, Event{Kind: kind, Record: rec, SourceTab: c.tabID})
	return rec, nil
}

// SwitchRole changes the role of the current session.
func (c *Coordinator) SwitchRole(ctx context.Context, role session.Role) (session.Record, error) {
	if err := c.ready(); err != nil {
		return session.Record{}, err
	}
	rec, err := c.store.SwitchRole(ctx, role)
	if err != nil {
		return session.Record{}, err
	}
	c.emit(ctx, Event{Kind: EventRoleSwitched, Record: rec, SourceTab: c.tabID})
	return rec, nil
}

// Touch records user activity.
func (c *Coordinator) Touch(ctx context.Context) error {
	if c.detectExpiry(ctx) {
		return session.ErrSessionExpired
	}
	_, err := c.store.Touch(ctx)
	return err
}

// Logout ends the session in this tab and tells the user's other tabs.
// Logging out without a session is a no-op.
func (c *Coordinator) Logout(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.end(ctx, SignalLogout)
}

// Expire ends an expired session in this tab and tells the user's other tabs.
func (c *Coordinator) Expire(ctx context.Context) error {
	return c.end(ctx, SignalExpired)
}

// Events subscribes to session transitions of this tab until ctx is cancelled.
func (c *Coordinator) Events(ctx context.Context) broadcast.Subscriber[Event] {
	return c.events.Subscribe(ctx)
}

// Close stops every timer and the signal listener, then stamps the session
// for reload recovery. The tab-local pointer is kept.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel, listener := c.cancel, c.listener
	c.mu.Unlock()

	// Nothing may touch the record once it is stamped.
	c.sched.Stop()
	if cancel != nil {
		cancel()
		<-listener
	}

	ctx := context.Background()
	err := c.store.MarkUnloading(ctx)
	c.signals.Flush(ctx)
	return errors.Join(err, c.events.Close())
}

func (c *Coordinator) ready() error {
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

func (c *Coordinator) classify(ctx context.Context) (Startup, error) {
	_, err := c.store.Current(ctx)
	if err == nil {
		return StartupReload, nil
	}
	if !session.IsNoSession(err) {
		return StartupNewTab, err
	}

	_, err = c.store.Recover(ctx)
	switch {
	case err == nil:
		return StartupRecovered, nil
	case session.IsNoSession(err):
		return StartupNewTab, nil
	default:
		return StartupNewTab, err
	}
}

func (c *Coordinator) schedule() error {
	jobs := []struct {
		name     string
		interval time.Duration
		fn       scheduler.Func
	}{
		{"heartbeat", c.config.HeartbeatInterval, c.heartbeat},
		{"revalidate", c.config.RevalidateInterval, c.revalidate},
		{"cleanup", c.config.CleanupInterval, c.cleanup},
	}
	for _, j := range jobs {
		if j.interval <= 0 {
			continue
		}
		if err := c.sched.Every(j.name, j.interval, j.fn); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) heartbeat(ctx context.Context) {
	if err := c.Touch(ctx); err != nil && !session.IsNoSession(err) {
		c.logger.WarnContext(ctx, "heartbeat failed", logger.Error(err))
	}
}

func (c *Coordinator) revalidate(ctx context.Context) {
	c.detectExpiry(ctx)
}

func (c *Coordinator) cleanup(ctx context.Context) {
	if _, err := c.store.Registry().Evict(storage.WithOrigin(ctx, c.tabID)); err != nil {
		c.logger.WarnContext(ctx, "registry cleanup failed", logger.Error(err))
	}
}

// detectExpiry expires and broadcasts a session whose token has run out.
func (c *Coordinator) detectExpiry(ctx context.Context) bool {
	rec, err := c.store.Peek()
	if err != nil || !errors.Is(rec.Validate(c.now()), session.ErrSessionExpired) {
		return false
	}
	c.logger.InfoContext(ctx, "session token expired", logger.UserID(rec.User.ID))
	if err := c.Expire(ctx); err != nil {
		c.logger.WarnContext(ctx, "expiry handling failed", logger.Error(err))
	}
	return true
}

func (c *Coordinator) end(ctx context.Context, kind SignalKind) error {
	rec, err := c.store.Peek()
	if err != nil {
		if session.IsNoSession(err) {
			c.markLoggedIn(false)
			return nil
		}
		return err
	}

	if err := c.store.RemoveSession(ctx, ""); err != nil {
		return err
	}
	c.markLoggedIn(false)

	if _, err := c.signals.Publish(ctx, kind, rec.User); err != nil {
		c.logger.WarnContext(ctx, "failed to broadcast signal", slog.String("signal", string(kind)), logger.Error(err))
	}
	c.emit(ctx, Event{Kind: eventFor(kind), SourceTab: c.tabID})
	return nil
}

// handleSignal applies a sibling's logout or expiry. It never rebroadcasts.
func (c *Coordinator) handleSignal(ctx context.Context, sig Signal) {
	rec, err := c.store.Peek()
	if err != nil {
		return
	}
	if !rec.User.SameIdentity(sig.User) {
		return
	}
	if err := c.store.RemoveSession(ctx, ""); err != nil {
		c.logger.WarnContext(ctx, "failed to apply remote signal", logger.Error(err))
		return
	}
	c.markLoggedIn(false)
	c.logger.InfoContext(ctx, "session ended by sibling tab",
		slog.String("signal", string(sig.Kind)), slog.String("source_tab", sig.TabID))
	c.emit(ctx, Event{Kind: eventFor(sig.Kind), Remote: true, SourceTab: sig.TabID})
}

func (c *Coordinator) markLoggedIn(v bool) {
	c.mu.Lock()
	c.loggedIn = v
	c.mu.Unlock()
}

func (c *Coordinator) emit(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = c.now()
	}
	_ = c.events.Broadcast(ctx, broadcast.Message[Event]{Data: e})
}

func eventFor(kind SignalKind) EventKind {
	if kind == SignalExpired {
		return EventExpired
	}
	return EventLogout
}
