package session

import "errors"

var (
	// ErrSessionNotFound indicates the tab holds no session
	ErrSessionNotFound = errors.New("session.not_found")

	// ErrSessionExpired indicates the token's exp claim has passed
	ErrSessionExpired = errors.New("session.expired")

	// ErrInvalidToken indicates the token is missing, undecodable or has no exp claim
	ErrInvalidToken = errors.New("session.invalid_token")

	// ErrInvalidRole indicates a role outside user, owner and admin
	ErrInvalidRole = errors.New("session.invalid_role")

	// ErrCorruptRecord indicates a stored record could not be decoded
	ErrCorruptRecord = errors.New("session.corrupt_record")

	// ErrNoTabID indicates a store was built without a tab id
	ErrNoTabID = errors.New("session.no_tab_id")
)

// IsNoSession reports whether err means the tab simply has no usable session.
func IsNoSession(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired)
}
