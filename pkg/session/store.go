package session

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/tabsync/pkg/logger"
	"github.com/dmitrymomot/tabsync/pkg/storage"
)

// Store is the session store of one tab. Its mutations are serialized, so
// they apply in call order.
type Store struct {
	mu       sync.Mutex
	tabID    string
	local    storage.Local
	registry *Registry
	config   Config
	now      func() time.Time
	logger   *slog.Logger
}

// New binds a store to tabID. Shared is the cross-tab store, local the
// tab-local one.
func New(shared storage.Shared, local storage.Local, tabID string, opts ...Option) *Store {
	s := &Store{
		tabID:  tabID,
		local:  local,
		config: DefaultConfig(),
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("session"), logger.TabID(tabID))
	s.registry = NewRegistry(shared, s.config.Retention, s.now, s.logger)
	return s
}

// TabID returns the tab the store is bound to.
func (s *Store) TabID() string { return s.tabID }

// Registry exposes the shared registry view.
func (s *Store) Registry() *Registry { return s.registry }

// CreateSession stores a fresh record for this tab and points the tab at it.
func (s *Store) CreateSession(ctx context.Context, token string, user User, role Role) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(ctx, token, user, role)
}

// AssignToken creates a session from the token alone, taking user and role
// from its claims. A token without a role claim acts as RoleUser.
func (s *Store) AssignToken(ctx context.Context, token string) (Record, error) {
	claims, err := ParseClaims(token)
	if err != nil {
		return Record{}, err
	}
	role := claims.Role
	if role == "" {
		role = RoleUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(ctx, token, claims.User(), role)
}

// GetSession returns this tab's session. Without a pointer it falls back to
// Recover. ErrSessionNotFound and ErrSessionExpired both mean "no session",
// see IsNoSession.
func (s *Store) GetSession(ctx context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.current(ctx)
	if errors.Is(err, ErrSessionNotFound) {
		return s.recover(ctx)
	}
	return rec, err
}

// Current is GetSession without recovery: it only follows the tab-local pointer.
func (s *Store) Current(ctx context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current(ctx)
}

// Peek returns the record the tab-local pointer holds without validating,
// refreshing or evicting it. Use it to learn who a session belonged to.
func (s *Store) Peek() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readPointer()
}

// Recover adopts the registry entry of a tab that unloaded within the refresh
// window. The entry is claimed atomically, so only one tab can adopt it.
func (s *Store) Recover(ctx context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recover(ctx)
}

// UpdateSession applies p to the current session.
func (s *Store) UpdateSession(ctx context.Context, p Patch) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.current(ctx)
	if err != nil {
		return Record{}, err
	}
	p.apply(&rec)
	rec.Timestamp = s.now()
	if err := rec.Validate(rec.Timestamp); err != nil {
		return Record{}, err
	}
	return rec, s.save(ctx, rec)
}

// SwitchRole changes the role of the current session.
func (s *Store) SwitchRole(ctx context.Context, role Role) (Record, error) {
	if !role.Valid() {
		return Record{}, ErrInvalidRole
	}
	return s.UpdateSession(ctx, Patch{Role: &role})
}

// Touch refreshes the activity timestamp of the current session.
func (s *Store) Touch(ctx context.Context) (Record, error) {
	return s.UpdateSession(ctx, Patch{})
}

// MarkUnloading refreshes the timestamp right before the tab goes away and
// flags the record so a reload can recover it. The pointer is kept.
func (s *Store) MarkUnloading(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.current(ctx)
	if err != nil {
		if IsNoSession(err) {
			return nil
		}
		return err
	}
	now := s.now()
	rec.Timestamp = now
	rec.UnloadedAt = now
	return s.save(ctx, rec)
}

// RemoveSession deletes the entry of tabID, or of this tab when tabID is
// empty. Removing this tab's entry also clears the pointer.
func (s *Store) RemoveSession(ctx context.Context, tabID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tabID == "" {
		tabID = s.tabID
	}
	ids := []string{tabID}
	clearPointer := tabID == s.tabID

	if ptr, err := s.readPointer(); err == nil {
		if ptr.TabID == tabID {
			clearPointer = true
		}
		if clearPointer && ptr.TabID != s.tabID && ptr.TabID != tabID {
			ids = append(ids, ptr.TabID)
		}
	}

	if _, err := s.registry.Remove(s.origin(ctx), ids...); err != nil {
		return err
	}
	if clearPointer {
		return s.local.Delete(PointerKey)
	}
	return nil
}

// ClearAllSessions empties the registry and this tab's pointer.
func (s *Store) ClearAllSessions(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.registry.Clear(s.origin(ctx)); err != nil {
		return err
	}
	return s.local.Delete(PointerKey)
}

// GetAllSessions returns every live registry entry.
func (s *Store) GetAllSessions(ctx context.Context) (map[string]Record, error) {
	return s.registry.All(s.origin(ctx))
}

// ActiveSessionsCount approximates how many tabs are logged in and active:
// entries touched within the activity window that are not unloading.
func (s *Store) ActiveSessionsCount(ctx context.Context) (int, error) {
	all, err := s.registry.All(s.origin(ctx))
	if err != nil {
		return 0, err
	}
	now := s.now()
	n := 0
	for _, rec := range all {
		if !rec.Unloading() && now.Sub(rec.Timestamp) <= s.config.ActivityWindow {
			n++
		}
	}
	return n, nil
}

// UserRoles returns the distinct roles held by sessions of the current user
// across all tabs, in privilege order. No session yields no roles.
func (s *Store) UserRoles(ctx context.Context) ([]Role, error) {
	rec, err := s.Current(ctx)
	if err != nil {
		if IsNoSession(err) {
			return nil, nil
		}
		return nil, err
	}
	return s.RolesOf(ctx, rec.User)
}

// RolesOf returns the distinct roles held by sessions of user.
func (s *Store) RolesOf(ctx context.Context, user User) ([]Role, error) {
	all, err := s.registry.All(s.origin(ctx))
	if err != nil {
		return nil, err
	}
	var roles []Role
	for _, rec := range all {
		if rec.User.SameIdentity(user) && !slices.Contains(roles, rec.Role) {
			roles = append(roles, rec.Role)
		}
	}
	slices.SortFunc(roles, func(a, b Role) int {
		return cmp.Compare(slices.Index(Roles, a), slices.Index(Roles, b))
	})
	return roles, nil
}

func (s *Store) create(ctx context.Context, token string, user User, role Role) (Record, error) {
	rec := Record{
		Token:     token,
		User:      user,
		Role:      role,
		Timestamp: s.now(),
		TabID:     s.tabID,
	}
	if err := rec.Validate(rec.Timestamp); err != nil {
		return Record{}, err
	}
	if err := s.save(ctx, rec); err != nil {
		return Record{}, err
	}
	s.logger.InfoContext(ctx, "session created", logger.UserID(user.ID), logger.Role(role))
	return rec, nil
}

// current follows the pointer and confirms validity, refreshing the timestamp.
// A pointer written by the previous incarnation of this tab is re-keyed under
// the current tab id.
func (s *Store) current(ctx context.Context) (Record, error) {
	ptr, err := s.readPointer()
	if err != nil {
		return Record{}, err
	}

	now := s.now()
	prevTabID := ptr.TabID
	if verr := ptr.Validate(now); verr != nil {
		s.logger.InfoContext(ctx, "dropping invalid session", logger.Error(verr))
		_ = s.local.Delete(PointerKey)
		if _, err := s.registry.Remove(s.origin(ctx), prevTabID); err != nil {
			s.logger.WarnContext(ctx, "failed to evict invalid session", logger.Error(err))
		}
		if errors.Is(verr, ErrSessionExpired) {
			return Record{}, ErrSessionExpired
		}
		return Record{}, ErrSessionNotFound
	}

	ptr.TabID = s.tabID
	ptr.Timestamp = now
	ptr.UnloadedAt = time.Time{}
	if err := s.save(ctx, ptr); err != nil {
		return Record{}, err
	}
	if prevTabID != s.tabID {
		if _, err := s.registry.Remove(s.origin(ctx), prevTabID); err != nil {
			return Record{}, err
		}
		s.logger.DebugContext(ctx, "session re-keyed after reload", slog.String("previous_tab_id", prevTabID))
	}
	return ptr, nil
}

func (s *Store) recover(ctx context.Context) (Record, error) {
	all, err := s.registry.All(s.origin(ctx))
	if err != nil {
		return Record{}, err
	}

	now := s.now()
	window := s.config.RefreshWindow
	candidates := make([]Record, 0, len(all))
	for id, rec := range all {
		if id == s.tabID || !rec.Unloading() {
			continue
		}
		if now.Sub(rec.Timestamp) > window || now.Sub(rec.UnloadedAt) > window {
			continue
		}
		candidates = append(candidates, rec)
	}
	// Most recently unloaded first
	slices.SortFunc(candidates, func(a, b Record) int {
		return b.UnloadedAt.Compare(a.UnloadedAt)
	})

	for _, rec := range candidates {
		n, err := s.registry.Remove(s.origin(ctx), rec.TabID)
		if err != nil {
			return Record{}, err
		}
		if n != 1 {
			// Another tab claimed it first
			continue
		}
		prev := rec.TabID
		rec.TabID = s.tabID
		rec.Timestamp = now
		rec.UnloadedAt = time.Time{}
		if err := s.save(ctx, rec); err != nil {
			return Record{}, err
		}
		s.logger.InfoContext(ctx, "session recovered from unloaded tab",
			slog.String("previous_tab_id", prev), logger.UserID(rec.User.ID))
		return rec, nil
	}
	return Record{}, ErrSessionNotFound
}

// save writes rec to the registry and the pointer.
func (s *Store) save(ctx context.Context, rec Record) error {
	if err := s.registry.Put(s.origin(ctx), rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.local.Set(PointerKey, data)
}

func (s *Store) readPointer() (Record, error) {
	data, err := s.local.Get(PointerKey)
	if errors.Is(err, storage.ErrNotFound) {
		return Record{}, ErrSessionNotFound
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("discarding corrupt session pointer", logger.Error(errors.Join(ErrCorruptRecord, err)))
		_ = s.local.Delete(PointerKey)
		return Record{}, ErrSessionNotFound
	}
	return rec, nil
}

func (s *Store) origin(ctx context.Context) context.Context {
	return storage.WithOrigin(ctx, s.tabID)
}
