package tabsync

import "errors"

var (
	// ErrReauthRequired denies a new tab silent access to a protected route
	ErrReauthRequired = errors.New("tabsync.reauth_required")

	// ErrNotAuthenticated indicates the tab holds no valid session
	ErrNotAuthenticated = errors.New("tabsync.not_authenticated")

	// ErrNotStarted indicates Start has not been called
	ErrNotStarted = errors.New("tabsync.not_started")

	// ErrClosed indicates the coordinator was closed
	ErrClosed = errors.New("tabsync.closed")

	// ErrUnknownSignal indicates a signal kind other than logout or expired
	ErrUnknownSignal = errors.New("tabsync.unknown_signal")
)
