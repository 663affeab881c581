package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
)

const (
	// Subprotocol is negotiated on every websocket handshake.
	Subprotocol = "tabsync.realtime.v1"

	// TokenQueryParam carries the token for proxies that strip headers.
	TokenQueryParam = "access_token"

	defaultReadLimit = 1 << 20 // 1MiB
)

// Conn is one open realtime channel. Read is called from a single
// goroutine; Write must be safe for concurrent use.
type Conn interface {
	// Read blocks for the next envelope. A *ProtocolError leaves the
	// connection usable; any other error means it is gone.
	Read(ctx context.Context) (Envelope, error)
	Write(ctx context.Context, env Envelope) error
	Close(reason string) error
}

// Dialer opens authenticated connections.
type Dialer interface {
	// Dial connects to rawURL presenting token. A rejected token must be
	// reported as an *AuthError.
	Dial(ctx context.Context, rawURL, token string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, rawURL, token string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, rawURL, token string) (Conn, error) {
	return f(ctx, rawURL, token)
}

// WebSocketDialer dials websocket endpoints.
type WebSocketDialer struct {
	HTTPClient *http.Client
	Header     http.Header
	// ReadLimit caps a single frame; zero means 1MiB.
	ReadLimit int64
}

// Dial implements Dialer.
func (d WebSocketDialer) Dial(ctx context.Context, rawURL, token string) (Conn, error) {
	if token == "" {
		return nil, &AuthError{Reason: "missing token"}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}
	q := u.Query()
	q.Set(TokenQueryParam, token)
	u.RawQuery = q.Encode()

	h := http.Header{}
	for k, v := range d.Header {
		h[k] = append([]string(nil), v...)
	}
	h.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient:   d.HTTPClient,
		HTTPHeader:   h,
		Subprotocols: []string{Subprotocol},
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &AuthError{Reason: fmt.Sprintf("handshake rejected with status %d", resp.StatusCode)}
		}
		return nil, &TransportError{Op: "dial", Err: err}
	}

	limit := d.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	conn.SetReadLimit(limit)
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) (Envelope, error) {
	mt, data, err := c.conn.Read(ctx)
	if err != nil {
		if status := websocket.CloseStatus(err); status != -1 {
			return Envelope{}, &TransportError{Op: "read", Err: fmt.Errorf("closed by peer: %d", status)}
		}
		return Envelope{}, &TransportError{Op: "read", Err: err}
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return Envelope{}, &ProtocolError{Err: fmt.Errorf("unsupported message type: %v", mt)}
	}
	return UnmarshalFrame(data)
}

func (c *wsConn) Write(ctx context.Context, env Envelope) error {
	b, err := MarshalFrame(env)
	if err != nil {
		return &ProtocolError{Event: env.Event, Err: err}
	}
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

func (c *wsConn) Close(reason string) error {
	err := c.conn.Close(websocket.StatusNormalClosure, reason)
	if err != nil && !errors.Is(err, context.Canceled) {
		// Closing an already broken connection is not interesting
		_ = c.conn.CloseNow()
	}
	return nil
}
