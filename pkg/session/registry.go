package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/tabsync/pkg/logger"
	"github.com/dmitrymomot/tabsync/pkg/storage"
)

const (
	// RegistryKey is the shared hash holding one record per tab id.
	RegistryKey = "tabSessions"

	// PointerKey is the tab-local key holding the tab's current record.
	PointerKey = "currentSession"
)

// Registry is the tab id to Record map held in the shared store.
// Reads evict stale, expired and corrupt entries.
type Registry struct {
	shared    storage.Shared
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewRegistry wraps shared. Retention <= 0 disables age based eviction.
func NewRegistry(shared storage.Shared, retention time.Duration, now func() time.Time, log *slog.Logger) *Registry {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Registry{shared: shared, retention: retention, now: now, logger: log}
}

// Put writes rec under rec.TabID.
func (r *Registry) Put(ctx context.Context, rec Record) error {
	if rec.TabID == "" {
		return ErrNoTabID
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.shared.SetField(ctx, RegistryKey, rec.TabID, data)
}

// Get returns the live record for tabID, evicting it if it is no longer valid.
func (r *Registry) Get(ctx context.Context, tabID string) (Record, error) {
	data, err := r.shared.GetField(ctx, RegistryKey, tabID)
	if errors.Is(err, storage.ErrNotFound) {
		return Record{}, ErrSessionNotFound
	}
	if err != nil {
		return Record{}, err
	}

	rec, reason := r.check(tabID, data)
	if reason != nil {
		r.evict(ctx, map[string]error{tabID: reason})
		return Record{}, ErrSessionNotFound
	}
	return rec, nil
}

// All returns every live record keyed by tab id.
func (r *Registry) All(ctx context.Context) (map[string]Record, error) {
	raw, err := r.shared.Fields(ctx, RegistryKey)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Record, len(raw))
	stale := make(map[string]error)
	for tabID, data := range raw {
		rec, reason := r.check(tabID, data)
		if reason != nil {
			stale[tabID] = reason
			continue
		}
		out[tabID] = rec
	}
	r.evict(ctx, stale)
	return out, nil
}

// Remove deletes entries and returns how many existed.
func (r *Registry) Remove(ctx context.Context, tabIDs ...string) (int, error) {
	if len(tabIDs) == 0 {
		return 0, nil
	}
	return r.shared.DeleteFields(ctx, RegistryKey, tabIDs...)
}

// Clear removes every entry.
func (r *Registry) Clear(ctx context.Context) error {
	raw, err := r.shared.Fields(ctx, RegistryKey)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	_, err = r.Remove(ctx, ids...)
	return err
}

// Evict runs a read purely for its eviction side effect and returns how many
// entries survived.
func (r *Registry) Evict(ctx context.Context) (int, error) {
	all, err := r.All(ctx)
	return len(all), err
}

// check decodes and validates one entry; a non-nil reason means evict.
func (r *Registry) check(tabID string, data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, errors.Join(ErrCorruptRecord, err)
	}
	if rec.TabID != tabID {
		return rec, ErrCorruptRecord
	}

	now := r.now()
	if r.retention > 0 && now.Sub(rec.Timestamp) > r.retention {
		return rec, ErrSessionExpired
	}
	if err := rec.Validate(now); err != nil {
		return rec, err
	}
	return rec, nil
}

func (r *Registry) evict(ctx context.Context, stale map[string]error) {
	if len(stale) == 0 {
		return
	}
	ids := make([]string, 0, len(stale))
	for id, reason := range stale {
		ids = append(ids, id)
		r.logger.DebugContext(ctx, "evicting session registry entry",
			logger.TabID(id), logger.Error(reason))
	}
	if _, err := r.Remove(ctx, ids...); err != nil {
		r.logger.WarnContext(ctx, "session registry eviction failed", logger.Error(err))
	}
}
