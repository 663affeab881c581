package tabsync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tabsync/pkg/backoff"
	"github.com/dmitrymomot/tabsync/pkg/broadcast"
	"github.com/dmitrymomot/tabsync/pkg/logger"
	"github.com/dmitrymomot/tabsync/pkg/scheduler"
	"github.com/dmitrymomot/tabsync/pkg/session"
	"github.com/dmitrymomot/tabsync/pkg/storage"
)

// SignalPrefix namespaces signal keys in the shared store.
const SignalPrefix = "tabsync:signal:"

// SignalKind is a cross-tab message type.
type SignalKind string

const (
	SignalLogout  SignalKind = "logout"
	SignalExpired SignalKind = "expired"
)

// Valid reports whether k is a known kind.
func (k SignalKind) Valid() bool {
	return k == SignalLogout || k == SignalExpired
}

// Key returns the shared store key a signal of kind k is written to.
func (k SignalKind) Key() string {
	return SignalPrefix + string(k)
}

// Signal is a one-shot cross-tab message.
type Signal struct {
	ID    string       `json:"id"`
	Kind  SignalKind   `json:"kind"`
	TabID string       `json:"tab_id"`
	User  session.User `json:"user"`
	At    time.Time    `json:"at"`
}

// SignalsConfig configures Signals.
type SignalsConfig struct {
	TabID     string
	Debounce  time.Duration
	Scheduler *scheduler.Scheduler
	Now       func() time.Time
	Logger    *slog.Logger
}

// Signals passes one-shot messages between tabs by writing a key to the
// shared store, letting the other tabs observe the write and clearing the key
// after a debounce. Delivery is best effort: receivers must be idempotent.
type Signals struct {
	shared   storage.Shared
	tabID    string
	debounce time.Duration
	sched    *scheduler.Scheduler
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[SignalKind]string
}

// NewSignals creates a signal channel for one tab.
func NewSignals(shared storage.Shared, cfg SignalsConfig) *Signals {
	s := &Signals{
		shared:   shared,
		tabID:    cfg.TabID,
		debounce: cfg.Debounce,
		sched:    cfg.Scheduler,
		now:      cfg.Now,
		logger:   cfg.Logger,
		pending:  make(map[SignalKind]string),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.sched == nil {
		s.sched = scheduler.New(scheduler.WithLogger(s.logger))
	}
	return s
}

// Publish writes a signal and schedules its removal after the debounce.
func (s *Signals) Publish(ctx context.Context, kind SignalKind, user session.User) (Signal, error) {
	if !kind.Valid() {
		return Signal{}, ErrUnknownSignal
	}
	sig := Signal{
		ID:    uuid.NewString(),
		Kind:  kind,
		TabID: s.tabID,
		User:  user,
		At:    s.now(),
	}
	data, err := json.Marshal(sig)
	if err != nil {
		return Signal{}, err
	}
	if err := s.shared.Set(storage.WithOrigin(ctx, s.tabID), kind.Key(), data); err != nil {
		return Signal{}, err
	}

	s.mu.Lock()
	s.pending[kind] = sig.ID
	s.mu.Unlock()

	err = s.sched.After("signal:clear:"+string(kind), s.debounce, func(ctx context.Context) {
		s.clear(ctx, kind, sig.ID)
	})
	if err != nil {
		// Scheduler already stopped: clear right away
		s.clear(ctx, kind, sig.ID)
	}
	return sig, nil
}

// Flush clears every signal this tab wrote and has not cleared yet.
func (s *Signals) Flush(ctx context.Context) {
	s.mu.Lock()
	pending := make(map[SignalKind]string, len(s.pending))
	for k, id := range s.pending {
		pending[k] = id
	}
	s.mu.Unlock()

	for kind, id := range pending {
		s.sched.Cancel("signal:clear:" + string(kind))
		s.clear(ctx, kind, id)
	}
}

// Listen delivers signals written by other tabs to handle until ctx is
// cancelled. It returns once the watch is established; the returned channel
// is closed when the listener has stopped.
func (s *Signals) Listen(ctx context.Context, handle func(context.Context, Signal)) (<-chan struct{}, error) {
	sub, err := s.shared.Watch(ctx)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			s.drain(ctx, sub, handle)
			if ctx.Err() != nil {
				return
			}
			// The feed dropped us for being slow; resubscribe
			s.logger.WarnContext(ctx, "signal watch interrupted, resubscribing")
			next, err := s.rewatch(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "signal watch lost", logger.Error(err))
				return
			}
			sub = next
		}
	}()
	return done, nil
}

var rewatchBackoff = backoff.Exponential{Base: 50 * time.Millisecond, Max: 5 * time.Second, Multiplier: 2}

// rewatch retries Watch until it succeeds, the store is closed or ctx ends.
func (s *Signals) rewatch(ctx context.Context) (broadcast.Subscriber[storage.Change], error) {
	for attempt := 0; ; attempt++ {
		sub, err := s.shared.Watch(ctx)
		if err == nil {
			return sub, nil
		}
		if errors.Is(err, storage.ErrClosed) {
			return nil, err
		}
		s.logger.WarnContext(ctx, "signal watch unavailable", logger.Attempt(attempt+1), logger.Error(err))

		timer := time.NewTimer(rewatchBackoff.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Signals) drain(ctx context.Context, sub broadcast.Subscriber[storage.Change], handle func(context.Context, Signal)) {
	defer sub.Close()
	ch := sub.Receive(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			sig, ok := s.decode(ctx, msg.Data)
			if !ok {
				continue
			}
			s.safeHandle(ctx, handle, sig)
		}
	}
}

func (s *Signals) decode(ctx context.Context, c storage.Change) (Signal, bool) {
	if c.Deleted || c.Field != "" || !strings.HasPrefix(c.Key, SignalPrefix) {
		return Signal{}, false
	}
	if c.Origin == s.tabID {
		return Signal{}, false
	}
	var sig Signal
	if err := json.Unmarshal(c.Value, &sig); err != nil {
		s.logger.WarnContext(ctx, "dropping malformed signal", slog.String("key", c.Key), logger.Error(err))
		return Signal{}, false
	}
	if !sig.Kind.Valid() || sig.TabID == s.tabID {
		return Signal{}, false
	}
	return sig, true
}

func (s *Signals) safeHandle(ctx context.Context, handle func(context.Context, Signal), sig Signal) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "signal handler panicked", slog.Any("panic", r), slog.String("signal", string(sig.Kind)))
		}
	}()
	handle(ctx, sig)
}

// clear removes the key only if it still holds the signal this tab wrote.
func (s *Signals) clear(ctx context.Context, kind SignalKind, id string) {
	s.mu.Lock()
	if s.pending[kind] == id {
		delete(s.pending, kind)
	}
	s.mu.Unlock()

	ctx = storage.WithOrigin(context.WithoutCancel(ctx), s.tabID)
	data, err := s.shared.Get(ctx, kind.Key())
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read signal key", logger.Error(err))
		return
	}
	var current Signal
	if json.Unmarshal(data, &current) == nil && current.ID != id {
		// A newer signal replaced ours; its writer clears it
		return
	}
	if err := s.shared.Delete(ctx, kind.Key()); err != nil {
		s.logger.WarnContext(ctx, "failed to clear signal key", logger.Error(err))
	}
}
