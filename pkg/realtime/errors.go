package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth is wrapped by every AuthError
	ErrAuth = errors.New("realtime.auth")

	// ErrRetryBudgetExhausted means automatic reconnects stopped; call RetryConnection
	ErrRetryBudgetExhausted = errors.New("realtime.retry_budget_exhausted")

	// ErrNotConnected is returned by Emit without an open connection
	ErrNotConnected = errors.New("realtime.not_connected")

	// ErrUnknownRoom indicates a room outside dashboard, bookings, notifications and analytics
	ErrUnknownRoom = errors.New("realtime.unknown_room")

	// ErrClosed indicates the manager was closed
	ErrClosed = errors.New("realtime.closed")
)

// AuthError is a missing, expired or rejected token. It is never retried.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "realtime: authentication failed: " + e.Reason
}

func (e *AuthError) Unwrap() error { return ErrAuth }

// TransportError is a recoverable handshake or network failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("realtime: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a malformed frame or event payload. The event is dropped.
type ProtocolError struct {
	Event EventName
	Err   error
}

func (e *ProtocolError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("realtime: malformed frame: %v", e.Err)
	}
	return fmt.Sprintf("realtime: malformed %q event: %v", e.Event, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is an AuthError.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuth)
}
