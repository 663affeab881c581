package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tabsync/pkg/broadcast"
	"github.com/dmitrymomot/tabsync/pkg/storage"
)

type storageMessage = broadcast.Message[storage.Change]

type sharedFactory func(t *testing.T) storage.Shared

func sharedImplementations() map[string]sharedFactory {
	return map[string]sharedFactory{
		"memory": func(t *testing.T) storage.Shared {
			s := storage.NewMemoryShared()
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"bolt": func(t *testing.T) storage.Shared {
			s, err := storage.OpenBolt(filepath.Join(t.TempDir(), "shared.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"redis": func(t *testing.T) storage.Shared {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			s := storage.NewRedisShared(client, storage.RedisConfig{})
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func nextChange(t *testing.T, ch <-chan storageMessage) storage.Change {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "change feed closed")
		return msg.Data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
	}
	return storage.Change{}
}

func TestShared_PlainKeys(t *testing.T) {
	t.Parallel()

	for name, factory := range sharedImplementations() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := factory(t)

			_, err := s.Get(ctx, "missing")
			assert.ErrorIs(t, err, storage.ErrNotFound)

			require.NoError(t, s.Set(ctx, "signal", []byte(`{"kind":"logout"}`)))
			v, err := s.Get(ctx, "signal")
			require.NoError(t, err)
			assert.JSONEq(t, `{"kind":"logout"}`, string(v))

			require.NoError(t, s.Delete(ctx, "signal"))
			_, err = s.Get(ctx, "signal")
			assert.ErrorIs(t, err, storage.ErrNotFound)

			require.NoError(t, s.Delete(ctx, "signal"), "deleting a missing key is not an error")

			assert.ErrorIs(t, s.Set(ctx, "", []byte("x")), storage.ErrEmptyKey)
		})
	}
}

func TestShared_HashFields(t *testing.T) {
	t.Parallel()

	for name, factory := range sharedImplementations() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := factory(t)

			fields, err := s.Fields(ctx, "tabSessions")
			require.NoError(t, err)
			assert.Empty(t, fields)

			require.NoError(t, s.SetField(ctx, "tabSessions", "tab-a", []byte("a")))
			require.NoError(t, s.SetField(ctx, "tabSessions", "tab-b", []byte("b")))

			v, err := s.GetField(ctx, "tabSessions", "tab-a")
			require.NoError(t, err)
			assert.Equal(t, []byte("a"), v)

			_, err = s.GetField(ctx, "tabSessions", "tab-z")
			assert.ErrorIs(t, err, storage.ErrNotFound)

			fields, err = s.Fields(ctx, "tabSessions")
			require.NoError(t, err)
			assert.Equal(t, map[string][]byte{"tab-a": []byte("a"), "tab-b": []byte("b")}, fields)

			n, err := s.DeleteFields(ctx, "tabSessions", "tab-a", "tab-z")
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			n, err = s.DeleteFields(ctx, "tabSessions", "tab-a")
			require.NoError(t, err)
			assert.Equal(t, 0, n, "second delete claims nothing")

			fields, err = s.Fields(ctx, "tabSessions")
			require.NoError(t, err)
			assert.Len(t, fields, 1)
		})
	}
}

func TestShared_Watch(t *testing.T) {
	t.Parallel()

	for name, factory := range sharedImplementations() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t)

			watchCtx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sub, err := s.Watch(watchCtx)
			require.NoError(t, err)
			defer sub.Close()
			ch := sub.Receive(watchCtx)

			writer := storage.WithOrigin(context.Background(), "tab-a")

			require.NoError(t, s.Set(writer, "tabsync:signal:logout", []byte("1")))
			c := nextChange(t, ch)
			assert.Equal(t, "tabsync:signal:logout", c.Key)
			assert.Equal(t, []byte("1"), c.Value)
			assert.Equal(t, "tab-a", c.Origin)
			assert.False(t, c.Deleted)
			assert.False(t, c.At.IsZero())

			require.NoError(t, s.SetField(writer, "tabSessions", "tab-a", []byte("rec")))
			c = nextChange(t, ch)
			assert.Equal(t, "tabSessions", c.Key)
			assert.Equal(t, "tab-a", c.Field)

			_, err = s.DeleteFields(writer, "tabSessions", "tab-a")
			require.NoError(t, err)
			c = nextChange(t, ch)
			assert.True(t, c.Deleted)
			assert.Equal(t, "tab-a", c.Field)

			require.NoError(t, s.Delete(writer, "tabsync:signal:logout"))
			c = nextChange(t, ch)
			assert.True(t, c.Deleted)
			assert.Equal(t, "tabsync:signal:logout", c.Key)
			assert.Empty(t, c.Field)
		})
	}
}

func TestMemoryShared_Closed(t *testing.T) {
	t.Parallel()

	s := storage.NewMemoryShared()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	ctx := context.Background()
	assert.ErrorIs(t, s.Set(ctx, "k", nil), storage.ErrClosed)
	_, err := s.Watch(ctx)
	assert.ErrorIs(t, err, storage.ErrClosed)
}

func TestRedisShared_WatchRecoversFromOutage(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })
	s := storage.NewRedisShared(client, storage.RedisConfig{})
	t.Cleanup(func() { _ = s.Close() })

	mr.Close()
	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := s.Watch(waitCtx)
	require.ErrorIs(t, err, storage.ErrFeedUnavailable)

	require.NoError(t, mr.Restart())
	ctx := context.Background()
	sub, err := s.Watch(ctx)
	require.NoError(t, err, "a failed start must not stick")
	defer sub.Close()

	require.NoError(t, s.Set(storage.WithOrigin(ctx, "tab-a"), "tabsync:signal:logout", []byte("1")))
	c := nextChange(t, sub.Receive(ctx))
	assert.Equal(t, "tabsync:signal:logout", c.Key)

	require.NoError(t, s.Close())
	_, err = s.Watch(ctx)
	assert.ErrorIs(t, err, storage.ErrClosed)
}

func TestBoltShared_SurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "shared.db")
	ctx := context.Background()

	s, err := storage.OpenBolt(path)
	require.NoError(t, err)
	require.NoError(t, s.SetField(ctx, "tabSessions", "tab-a", []byte("rec")))
	require.NoError(t, s.Close())

	s, err = storage.OpenBolt(path)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.GetField(ctx, "tabSessions", "tab-a")
	require.NoError(t, err)
	assert.Equal(t, []byte("rec"), v)
}

func TestRedisShared_Namespace(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := storage.NewRedisShared(client, storage.RedisConfig{Namespace: "rent"})
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.SetField(ctx, "tabSessions", "tab-a", []byte("rec")))

	assert.True(t, mr.Exists("rent:tabSessions"))
	assert.Equal(t, "rec", mr.HGet("rent:tabSessions", "tab-a"))
}

func TestMemoryLocal(t *testing.T) {
	t.Parallel()

	l := storage.NewMemoryLocal()

	_, err := l.Get("currentSession")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, l.Set("currentSession", []byte("rec")))
	v, err := l.Get("currentSession")
	require.NoError(t, err)
	assert.Equal(t, []byte("rec"), v)

	v[0] = 'X'
	v2, _ := l.Get("currentSession")
	assert.Equal(t, []byte("rec"), v2, "returned slices are copies")

	require.NoError(t, l.Delete("currentSession"))
	_, err = l.Get("currentSession")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOrigin(t *testing.T) {
	t.Parallel()

	assert.Empty(t, storage.OriginFromContext(context.Background()))
	ctx := storage.WithOrigin(context.Background(), "tab-1")
	assert.Equal(t, "tab-1", storage.OriginFromContext(ctx))
}
