package livesync_test

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrymomot/tabsync/pkg/realtime"
)

type fakeConn struct {
	frames chan realtime.Envelope
	done   chan struct{}
	once   sync.Once

	mu   sync.Mutex
	sent []realtime.EventName
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan realtime.Envelope, 16),
		done:   make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) (realtime.Envelope, error) {
	select {
	case env := <-c.frames:
		return env, nil
	case <-c.done:
		return realtime.Envelope{}, &realtime.TransportError{Op: "read", Err: errors.New("closed")}
	case <-ctx.Done():
		return realtime.Envelope{}, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, env realtime.Envelope) error {
	select {
	case <-c.done:
		return &realtime.TransportError{Op: "write", Err: errors.New("closed")}
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, env.Event)
	return nil
}

func (c *fakeConn) Close(string) error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) push(name realtime.EventName, data any) {
	env, err := realtime.NewEnvelope(name, data)
	if err != nil {
		panic(err)
	}
	c.frames <- env
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeConn) count(name realtime.EventName) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, got := range c.sent {
		if got == name {
			n++
		}
	}
	return n
}

// fakeDialer accepts every token except the ones in reject.
type fakeDialer struct {
	mu     sync.Mutex
	tokens []string
	conns  []*fakeConn
	reject map[string]bool
}

func (d *fakeDialer) Dial(_ context.Context, _ string, token string) (realtime.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.tokens = append(d.tokens, token)
	if d.reject[token] {
		return nil, &realtime.AuthError{Reason: "rejected"}
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

func (d *fakeDialer) lastToken() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.tokens) == 0 {
		return ""
	}
	return d.tokens[len(d.tokens)-1]
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
