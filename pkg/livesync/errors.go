package livesync

import "errors"

var (
	ErrClosed     = errors.New("livesync.closed")
	ErrNotStarted = errors.New("livesync.not_started")
)
