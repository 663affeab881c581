package storage

import "errors"

var (
	// ErrNotFound indicates the key or field does not exist
	ErrNotFound = errors.New("storage.not_found")

	// ErrClosed indicates the store has been closed
	ErrClosed = errors.New("storage.closed")

	// ErrEmptyKey indicates an empty key or field name
	ErrEmptyKey = errors.New("storage.empty_key")

	// ErrFeedUnavailable indicates the change feed subscription could not be established
	ErrFeedUnavailable = errors.New("storage.feed_unavailable")

	// ErrChangeDecode indicates a malformed change notification
	ErrChangeDecode = errors.New("storage.change_decode_failed")
)
