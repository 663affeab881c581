package scheduler

import "errors"

var (
	ErrStopped         = errors.New("scheduler.stopped")
	ErrInvalidInterval = errors.New("scheduler.invalid_interval")
	ErrEmptyName       = errors.New("scheduler.empty_name")
)
