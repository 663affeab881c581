package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/tabsync/pkg/broadcast"
)

// RedisConfig configures RedisShared.
type RedisConfig struct {
	// Namespace prefixes every key ("<namespace>:<key>").
	Namespace string `env:"STORAGE_REDIS_NAMESPACE" envDefault:"tabsync"`
	// Channel is the pub/sub channel carrying change notifications.
	Channel string `env:"STORAGE_REDIS_CHANNEL" envDefault:"tabsync:changes"`
}

// DefaultRedisConfig returns the default RedisShared configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Namespace: "tabsync",
		Channel:   "tabsync:changes",
	}
}

// RedisShared implements Shared on top of Redis. Plain keys map to strings,
// hash keys to Redis hashes, and every mutation is published as JSON on the
// configured channel so that tabs in other processes observe it.
type RedisShared struct {
	db  redis.UniversalClient
	cfg RedisConfig
	now func() time.Time

	feed *broadcast.MemoryBroadcaster[Change]

	// feedMu guards the lazily started subscription; a failed start is
	// retried by the next Watch.
	feedMu   sync.Mutex
	feedStop context.CancelFunc
	feedDone chan struct{}
	closed   bool
}

// NewRedisShared wraps a connected client. The client is not closed by Close.
func NewRedisShared(client redis.UniversalClient, cfg RedisConfig) *RedisShared {
	def := DefaultRedisConfig()
	if cfg.Namespace == "" {
		cfg.Namespace = def.Namespace
	}
	if cfg.Channel == "" {
		cfg.Channel = def.Channel
	}
	return &RedisShared{
		db:   client,
		cfg:  cfg,
		now:  time.Now,
		feed: broadcast.NewMemoryBroadcaster[Change](defaultFeedBuffer),
	}
}

func (r *RedisShared) key(k string) string {
	return r.cfg.Namespace + ":" + k
}

func (r *RedisShared) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	v, err := r.db.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *RedisShared) Set(ctx context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	msg, err := r.encode(ctx, Change{Key: key, Value: value})
	if err != nil {
		return err
	}
	_, err = r.db.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.key(key), value, 0)
		p.Publish(ctx, r.cfg.Channel, msg)
		return nil
	})
	return err
}

func (r *RedisShared) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	n, err := r.db.Del(ctx, r.key(key)).Result()
	if err != nil || n == 0 {
		return err
	}
	return r.notify(ctx, Change{Key: key, Deleted: true})
}

func (r *RedisShared) GetField(ctx context.Context, key, field string) ([]byte, error) {
	if err := checkKey(key, field); err != nil {
		return nil, err
	}
	v, err := r.db.HGet(ctx, r.key(key), field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *RedisShared) SetField(ctx context.Context, key, field string, value []byte) error {
	if err := checkKey(key, field); err != nil {
		return err
	}
	msg, err := r.encode(ctx, Change{Key: key, Field: field, Value: value})
	if err != nil {
		return err
	}
	_, err = r.db.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, r.key(key), field, value)
		p.Publish(ctx, r.cfg.Channel, msg)
		return nil
	})
	return err
}

func (r *RedisShared) DeleteFields(ctx context.Context, key string, fields ...string) (int, error) {
	if err := checkKey(key); err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, nil
	}

	cmds := make([]*redis.IntCmd, len(fields))
	_, err := r.db.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for i, f := range fields {
			cmds[i] = p.HDel(ctx, r.key(key), f)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for i, cmd := range cmds {
		if cmd.Val() == 0 {
			continue
		}
		removed++
		if err := r.notify(ctx, Change{Key: key, Field: fields[i], Deleted: true}); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (r *RedisShared) Fields(ctx context.Context, key string) (map[string][]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	raw, err := r.db.HGetAll(ctx, r.key(key)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(raw))
	for f, v := range raw {
		out[f] = []byte(v)
	}
	return out, nil
}

// Watch subscribes to the change channel. The underlying Redis subscription
// is shared by all watchers of this store and established before Watch
// returns; ctx bounds the wait for it.
func (r *RedisShared) Watch(ctx context.Context) (broadcast.Subscriber[Change], error) {
	r.feedMu.Lock()
	defer r.feedMu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if r.feedStop == nil {
		if err := r.startFeed(ctx); err != nil {
			return nil, err
		}
	}
	return r.feed.Subscribe(ctx), nil
}

// Close stops the change feed.
func (r *RedisShared) Close() error {
	r.feedMu.Lock()
	defer r.feedMu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.feedStop != nil {
		r.feedStop()
		<-r.feedDone
	}
	return r.feed.Close()
}

// startFeed must be called with feedMu held.
func (r *RedisShared) startFeed(wait context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	ps := r.db.Subscribe(ctx, r.cfg.Channel)

	// Wait for the subscription confirmation so that writes issued after
	// Watch returns are never missed.
	if _, err := ps.Receive(wait); err != nil {
		cancel()
		_ = ps.Close()
		return errors.Join(ErrFeedUnavailable, err)
	}

	r.feedStop = cancel
	r.feedDone = make(chan struct{})
	go func() {
		defer close(r.feedDone)
		defer ps.Close()

		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var c Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					continue
				}
				_ = r.feed.Broadcast(ctx, broadcast.Message[Change]{Data: c})
			}
		}
	}()
	return nil
}

func (r *RedisShared) encode(ctx context.Context, c Change) ([]byte, error) {
	c.Origin = OriginFromContext(ctx)
	c.At = r.now()
	b, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Join(ErrChangeDecode, err)
	}
	return b, nil
}

func (r *RedisShared) notify(ctx context.Context, c Change) error {
	msg, err := r.encode(ctx, c)
	if err != nil {
		return err
	}
	return r.db.Publish(ctx, r.cfg.Channel, msg).Err()
}
