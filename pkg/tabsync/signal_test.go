package tabsync_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tabsync/pkg/scheduler"
	"github.com/dmitrymomot/tabsync/pkg/session"
	"github.com/dmitrymomot/tabsync/pkg/storage"
	"github.com/dmitrymomot/tabsync/pkg/tabsync"
)

func TestSignals(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shared := newShared(t)

	sched := scheduler.New()
	defer sched.Stop()
	sender := tabsync.NewSignals(shared, tabsync.SignalsConfig{TabID: "tab-a", Debounce: 30 * time.Millisecond, Scheduler: sched})
	receiver := tabsync.NewSignals(shared, tabsync.SignalsConfig{TabID: "tab-b", Debounce: 30 * time.Millisecond})

	var mu sync.Mutex
	var got []tabsync.Signal
	var own []tabsync.Signal
	done, err := receiver.Listen(ctx, func(_ context.Context, s tabsync.Signal) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})
	require.NoError(t, err)
	_, err = sender.Listen(ctx, func(_ context.Context, s tabsync.Signal) {
		mu.Lock()
		own = append(own, s)
		mu.Unlock()
	})
	require.NoError(t, err)

	// Garbage on a signal key from another origin is dropped
	require.NoError(t, shared.Set(storage.WithOrigin(ctx, "tab-x"), tabsync.SignalLogout.Key(), []byte("{")))

	sig, err := sender.Publish(ctx, tabsync.SignalLogout, session.User{ID: "u1"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, sig.ID, got[0].ID)
	assert.Equal(t, "tab-a", got[0].TabID)
	assert.Equal(t, "u1", got[0].User.ID)
	assert.Empty(t, own, "writers do not hear themselves")
	mu.Unlock()

	assert.Eventually(t, func() bool {
		_, err := shared.Get(ctx, tabsync.SignalLogout.Key())
		return err != nil
	}, time.Second, 5*time.Millisecond)

	// Deleting the key does not produce a second delivery
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Len(t, got, 1)
	mu.Unlock()

	_, err = sender.Publish(ctx, "reboot", session.User{})
	assert.ErrorIs(t, err, tabsync.ErrUnknownSignal)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestSignalsFlush(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	shared := newShared(t)

	s := tabsync.NewSignals(shared, tabsync.SignalsConfig{TabID: "tab-a", Debounce: time.Hour})
	_, err := s.Publish(ctx, tabsync.SignalExpired, session.User{ID: "u1"})
	require.NoError(t, err)
	_, err = shared.Get(ctx, tabsync.SignalExpired.Key())
	require.NoError(t, err)

	s.Flush(ctx)
	_, err = shared.Get(ctx, tabsync.SignalExpired.Key())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
