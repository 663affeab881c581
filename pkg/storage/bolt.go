package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/dmitrymomot/tabsync/pkg/broadcast"
)

var (
	boltValuesBucket = []byte("kv")
	boltHashesBucket = []byte("hash")
)

// BoltShared implements Shared on a bbolt file. bbolt holds an exclusive
// file lock, so all tabs sharing it must live in the opening process; the
// file survives restarts, which is what makes restart recovery possible.
type BoltShared struct {
	db   *bolt.DB
	feed *broadcast.MemoryBroadcaster[Change]
	now  func() time.Time

	mu     sync.RWMutex
	closed bool
}

// OpenBolt opens (or creates) the store file at path.
func OpenBolt(path string) (*BoltShared, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(boltValuesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(boltHashesBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltShared{
		db:   db,
		feed: broadcast.NewMemoryBroadcaster[Change](defaultFeedBuffer),
		now:  time.Now,
	}, nil
}

func (b *BoltShared) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	var out []byte
	err := b.view(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltValuesBucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		out = cloneBytes(v)
		return nil
	})
	return out, err
}

func (b *BoltShared) Set(ctx context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	err := b.update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltValuesBucket).Put([]byte(key), cloneBytes(value))
	})
	if err != nil {
		return err
	}
	b.publish(ctx, Change{Key: key, Value: cloneBytes(value)})
	return nil
}

func (b *BoltShared) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	existed := false
	err := b.update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(boltValuesBucket)
		if bk.Get([]byte(key)) == nil {
			return nil
		}
		existed = true
		return bk.Delete([]byte(key))
	})
	if err != nil {
		return err
	}
	if existed {
		b.publish(ctx, Change{Key: key, Deleted: true})
	}
	return nil
}

func (b *BoltShared) GetField(ctx context.Context, key, field string) ([]byte, error) {
	if err := checkKey(key, field); err != nil {
		return nil, err
	}
	var out []byte
	err := b.view(func(tx *bolt.Tx) error {
		h := tx.Bucket(boltHashesBucket).Bucket([]byte(key))
		if h == nil {
			return ErrNotFound
		}
		v := h.Get([]byte(field))
		if v == nil {
			return ErrNotFound
		}
		out = cloneBytes(v)
		return nil
	})
	return out, err
}

func (b *BoltShared) SetField(ctx context.Context, key, field string, value []byte) error {
	if err := checkKey(key, field); err != nil {
		return err
	}
	err := b.update(func(tx *bolt.Tx) error {
		h, err := tx.Bucket(boltHashesBucket).CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}
		return h.Put([]byte(field), cloneBytes(value))
	})
	if err != nil {
		return err
	}
	b.publish(ctx, Change{Key: key, Field: field, Value: cloneBytes(value)})
	return nil
}

func (b *BoltShared) DeleteFields(ctx context.Context, key string, fields ...string) (int, error) {
	if err := checkKey(key); err != nil {
		return 0, err
	}
	var removed []string
	err := b.update(func(tx *bolt.Tx) error {
		h := tx.Bucket(boltHashesBucket).Bucket([]byte(key))
		if h == nil {
			return nil
		}
		for _, f := range fields {
			if h.Get([]byte(f)) == nil {
				continue
			}
			if err := h.Delete([]byte(f)); err != nil {
				return err
			}
			removed = append(removed, f)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, f := range removed {
		b.publish(ctx, Change{Key: key, Field: f, Deleted: true})
	}
	return len(removed), nil
}

func (b *BoltShared) Fields(ctx context.Context, key string) (map[string][]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	out := make(map[string][]byte)
	err := b.view(func(tx *bolt.Tx) error {
		h := tx.Bucket(boltHashesBucket).Bucket([]byte(key))
		if h == nil {
			return nil
		}
		return h.ForEach(func(k, v []byte) error {
			out[string(k)] = cloneBytes(v)
			return nil
		})
	})
	return out, err
}

func (b *BoltShared) Watch(ctx context.Context) (broadcast.Subscriber[Change], error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	return b.feed.Subscribe(ctx), nil
}

// Close closes the change feed and the database file.
func (b *BoltShared) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	_ = b.feed.Close()
	return b.db.Close()
}

func (b *BoltShared) view(fn func(tx *bolt.Tx) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return b.db.View(fn)
}

func (b *BoltShared) update(fn func(tx *bolt.Tx) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return b.db.Update(fn)
}

func (b *BoltShared) publish(ctx context.Context, c Change) {
	c.Origin = OriginFromContext(ctx)
	c.At = b.now()
	_ = b.feed.Broadcast(ctx, broadcast.Message[Change]{Data: c})
}
