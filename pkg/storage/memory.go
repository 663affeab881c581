package storage

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrymomot/tabsync/pkg/broadcast"
)

const defaultFeedBuffer = 256

// MemoryShared implements Shared in process memory.
type MemoryShared struct {
	mu     sync.RWMutex
	values map[string][]byte
	hashes map[string]map[string][]byte
	feed   *broadcast.MemoryBroadcaster[Change]
	now    func() time.Time
	closed bool
}

// NewMemoryShared creates an empty in-memory shared store.
func NewMemoryShared() *MemoryShared {
	return &MemoryShared{
		values: make(map[string][]byte),
		hashes: make(map[string]map[string][]byte),
		feed:   broadcast.NewMemoryBroadcaster[Change](defaultFeedBuffer),
		now:    time.Now,
	}
}

func (m *MemoryShared) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(v), nil
}

func (m *MemoryShared) Set(ctx context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.values[key] = cloneBytes(value)
	m.mu.Unlock()

	m.publish(ctx, Change{Key: key, Value: cloneBytes(value)})
	return nil
}

func (m *MemoryShared) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	_, existed := m.values[key]
	delete(m.values, key)
	m.mu.Unlock()

	if existed {
		m.publish(ctx, Change{Key: key, Deleted: true})
	}
	return nil
}

func (m *MemoryShared) GetField(ctx context.Context, key, field string) ([]byte, error) {
	if err := checkKey(key, field); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	v, ok := m.hashes[key][field]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(v), nil
}

func (m *MemoryShared) SetField(ctx context.Context, key, field string, value []byte) error {
	if err := checkKey(key, field); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string][]byte)
		m.hashes[key] = h
	}
	h[field] = cloneBytes(value)
	m.mu.Unlock()

	m.publish(ctx, Change{Key: key, Field: field, Value: cloneBytes(value)})
	return nil
}

func (m *MemoryShared) DeleteFields(ctx context.Context, key string, fields ...string) (int, error) {
	if err := checkKey(key); err != nil {
		return 0, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}
	h := m.hashes[key]
	removed := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := h[f]; ok {
			delete(h, f)
			removed = append(removed, f)
		}
	}
	if len(h) == 0 {
		delete(m.hashes, key)
	}
	m.mu.Unlock()

	for _, f := range removed {
		m.publish(ctx, Change{Key: key, Field: f, Deleted: true})
	}
	return len(removed), nil
}

func (m *MemoryShared) Fields(ctx context.Context, key string) (map[string][]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	out := make(map[string][]byte, len(m.hashes[key]))
	for f, v := range m.hashes[key] {
		out[f] = cloneBytes(v)
	}
	return out, nil
}

func (m *MemoryShared) Watch(ctx context.Context) (broadcast.Subscriber[Change], error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	return m.feed.Subscribe(ctx), nil
}

func (m *MemoryShared) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	return m.feed.Close()
}

func (m *MemoryShared) publish(ctx context.Context, c Change) {
	c.Origin = OriginFromContext(ctx)
	c.At = m.now()
	_ = m.feed.Broadcast(ctx, broadcast.Message[Change]{Data: c})
}

// MemoryLocal implements Local in memory.
type MemoryLocal struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryLocal creates an empty tab-local store.
func NewMemoryLocal() *MemoryLocal {
	return &MemoryLocal{values: make(map[string][]byte)}
}

func (l *MemoryLocal) Get(key string) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	v, ok := l.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(v), nil
}

func (l *MemoryLocal) Set(key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.values[key] = cloneBytes(value)
	return nil
}

func (l *MemoryLocal) Delete(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.values, key)
	return nil
}
