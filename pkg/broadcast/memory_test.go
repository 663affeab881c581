package broadcast_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tabsync/pkg/broadcast"
)

// transition stands in for the session events fanned out to a tab.
type transition struct {
	Kind string
	Tab  string
}

func send(t *testing.T, b broadcast.Broadcaster[transition], kind string) {
	t.Helper()
	require.NoError(t, b.Broadcast(context.Background(), broadcast.Message[transition]{Data: transition{Kind: kind, Tab: "tab-1"}}))
}

func next(t *testing.T, sub broadcast.Subscriber[transition]) (transition, bool) {
	t.Helper()
	select {
	case msg, ok := <-sub.Receive(context.Background()):
		return msg.Data, ok
	case <-time.After(time.Second):
		t.Fatal("no message")
		return transition{}, false
	}
}

func TestMemoryBroadcaster(t *testing.T) {
	t.Parallel()

	t.Run("fans out in order", func(t *testing.T) {
		t.Parallel()
		b := broadcast.NewMemoryBroadcaster[transition](8)
		defer b.Close()

		subs := []broadcast.Subscriber[transition]{b.Subscribe(context.Background()), b.Subscribe(context.Background())}
		assert.Equal(t, 2, b.Len())

		send(t, b, "login")
		send(t, b, "logout")
		for _, sub := range subs {
			got, ok := next(t, sub)
			require.True(t, ok)
			assert.Equal(t, "login", got.Kind)
			got, _ = next(t, sub)
			assert.Equal(t, "logout", got.Kind)
		}
	})

	t.Run("cancelled context unsubscribes", func(t *testing.T) {
		t.Parallel()
		b := broadcast.NewMemoryBroadcaster[transition](1)
		defer b.Close()

		ctx, cancel := context.WithCancel(context.Background())
		sub := b.Subscribe(ctx)
		cancel()

		require.Eventually(t, func() bool { return b.Len() == 0 }, time.Second, 5*time.Millisecond)
		_, ok := next(t, sub)
		assert.False(t, ok)
	})

	t.Run("slow subscriber is dropped, others keep receiving", func(t *testing.T) {
		t.Parallel()
		b := broadcast.NewMemoryBroadcaster[transition](1)
		defer b.Close()

		slow := b.Subscribe(context.Background())
		fast := b.Subscribe(context.Background())

		send(t, b, "login")
		got, ok := next(t, fast)
		require.True(t, ok)
		assert.Equal(t, "login", got.Kind)

		// slow never read, so its buffer is full.
		send(t, b, "role_switched")
		require.Eventually(t, func() bool { return b.Len() == 1 }, time.Second, 5*time.Millisecond)

		got, ok = next(t, slow)
		require.True(t, ok)
		assert.Equal(t, "login", got.Kind)
		_, ok = next(t, slow)
		assert.False(t, ok, "dropped subscriber channel is closed")

		got, _ = next(t, fast)
		assert.Equal(t, "role_switched", got.Kind)
	})

	t.Run("close", func(t *testing.T) {
		t.Parallel()
		b := broadcast.NewMemoryBroadcaster[transition](0)

		// A live context must not hold Close up.
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sub := b.Subscribe(ctx)

		done := make(chan struct{})
		go func() {
			assert.NoError(t, b.Close())
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Close blocked on a live subscriber context")
		}

		_, ok := next(t, sub)
		assert.False(t, ok)
		assert.Zero(t, b.Len())
		assert.NoError(t, b.Close())
		send(t, b, "ignored")

		late := b.Subscribe(context.Background())
		_, ok = next(t, late)
		assert.False(t, ok)
		assert.NoError(t, late.Close())
	})
}

func TestMemoryBroadcasterConcurrent(t *testing.T) {
	t.Parallel()
	b := broadcast.NewMemoryBroadcaster[transition](1000)
	defer b.Close()

	const subscribers, messages = 5, 100
	subs := make([]broadcast.Subscriber[transition], subscribers)
	for i := range subs {
		subs[i] = b.Subscribe(context.Background())
	}

	var wg sync.WaitGroup
	for range messages {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Broadcast(context.Background(), broadcast.Message[transition]{Data: transition{Kind: "touch"}})
		}()
	}
	wg.Wait()

	for _, sub := range subs {
		n := 0
		for n < messages {
			if _, ok := next(t, sub); !ok {
				break
			}
			n++
		}
		assert.Equal(t, messages, n)
	}

	// Subscribing and cancelling while broadcasting is race free.
	var churn sync.WaitGroup
	for range 20 {
		churn.Add(1)
		go func() {
			defer churn.Done()
			ctx, cancel := context.WithCancel(context.Background())
			_ = b.Subscribe(ctx)
			_ = b.Broadcast(ctx, broadcast.Message[transition]{Data: transition{Kind: "touch"}})
			cancel()
		}()
	}
	churn.Wait()
}
