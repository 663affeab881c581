package jwt

import "errors"

var (
	ErrMissingSigningKey       = errors.New("jwt.missing_signing_key")
	ErrInvalidSignature        = errors.New("jwt.invalid_signature")
	ErrUnexpectedSigningMethod = errors.New("jwt.unexpected_signing_method")
	ErrInvalidClaims           = errors.New("jwt.invalid_claims")
	ErrMissingClaims           = errors.New("jwt.missing_claims")

	// ErrInvalidToken covers malformed tokens and undecodable segments.
	ErrInvalidToken = errors.New("jwt.invalid_token")
	// ErrExpiredToken is returned once the exp claim has passed.
	ErrExpiredToken = errors.New("jwt.expired")
)
