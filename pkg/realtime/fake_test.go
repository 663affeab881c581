package realtime_test

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrymomot/tabsync/pkg/realtime"
)

// frame is what a fakeConn hands to Read next.
type frame struct {
	env realtime.Envelope
	err error
}

type fakeConn struct {
	frames chan frame
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	sent   []realtime.Envelope
	reason string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan frame, 16),
		done:   make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) (realtime.Envelope, error) {
	select {
	case f := <-c.frames:
		return f.env, f.err
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
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeConn) Close(reason string) error {
	c.once.Do(func() {
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

// push delivers a server event.
func (c *fakeConn) push(name realtime.EventName, data any) {
	env, err := realtime.NewEnvelope(name, data)
	if err != nil {
		panic(err)
	}
	c.frames <- frame{env: env}
}

// drop simulates the server going away.
func (c *fakeConn) drop() {
	c.frames <- frame{err: &realtime.TransportError{Op: "read", Err: errors.New("connection reset")}}
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// count returns how many frames named name were written.
func (c *fakeConn) count(name realtime.EventName) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, env := range c.sent {
		if env.Event == name {
			n++
		}
	}
	return n
}

type fakeDialer struct {
	mu     sync.Mutex
	dials  int
	tokens []string
	conns  []*fakeConn
	// fail decides the outcome of the n-th dial, starting at 1.
	fail func(n int) error
}

func (d *fakeDialer) Dial(_ context.Context, _ string, token string) (realtime.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	d.tokens = append(d.tokens, token)
	if d.fail != nil {
		if err := d.fail(d.dials); err != nil {
			return nil, err
		}
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// recorder collects dispatched events.
type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) handle(e realtime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []realtime.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]realtime.Event(nil), r.events...)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// emitter records emitted event names.
type emitter struct {
	mu    sync.Mutex
	names []realtime.EventName
	err   error
}

func (e *emitter) Emit(_ context.Context, name realtime.EventName, _ any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.names = append(e.names, name)
	return nil
}

func (e *emitter) count(name realtime.EventName) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, got := range e.names {
		if got == name {
			n++
		}
	}
	return n
}
