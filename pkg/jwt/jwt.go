package jwt

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JWT header constants required by RFC 7519
const (
	HeaderType      = "JWT"
	HeaderAlgorithm = "HS256"
)

// Header represents the JWT header as defined in RFC 7515
type Header struct {
	Type      string `json:"typ"`
	Algorithm string `json:"alg"`
}

// StandardClaims represents the registered JWT claims defined in RFC 7519 Section 4.1.
// Temporal claims are Unix timestamps; zero means unset.
type StandardClaims struct {
	ID        string `json:"jti,omitempty"`
	Subject   string `json:"sub,omitempty"`
	Issuer    string `json:"iss,omitempty"`
	Audience  string `json:"aud,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	NotBefore int64  `json:"nbf,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
}

// Valid validates the temporal claims against the current time.
func (c StandardClaims) Valid() error {
	return c.ValidAt(time.Now())
}

// ValidAt validates the temporal claims against now.
func (c StandardClaims) ValidAt(now time.Time) error {
	if c.Expired(now) {
		return ErrExpiredToken
	}
	if c.NotBefore > 0 && now.Unix() < c.NotBefore {
		return ErrInvalidToken
	}
	return nil
}

// Expired reports whether the exp claim is set and lies before now.
func (c StandardClaims) Expired(now time.Time) bool {
	return c.ExpiresAt > 0 && now.Unix() >= c.ExpiresAt
}

// Expiry returns the exp claim as a time and whether it is set.
func (c StandardClaims) Expiry() (time.Time, bool) {
	if c.ExpiresAt <= 0 {
		return time.Time{}, false
	}
	return time.Unix(c.ExpiresAt, 0), true
}

// Service handles JWT token generation and validation using HMAC-SHA256.
type Service struct {
	signingKey []byte
}

// New creates a new JWT service with the provided signing key.
func New(signingKey []byte) (*Service, error) {
	if len(signingKey) == 0 {
		return nil, ErrMissingSigningKey
	}

	return &Service{
		signingKey: signingKey,
	}, nil
}

// NewFromString creates a new JWT service from a string signing key.
func NewFromString(signingKey string) (*Service, error) {
	if signingKey == "" {
		return nil, ErrMissingSigningKey
	}
	return New([]byte(signingKey))
}

// Generate creates a signed JWT carrying claims.
func (s *Service) Generate(claims any) (string, error) {
	if claims == nil {
		return "", ErrMissingClaims
	}

	headerJSON, err := json.Marshal(Header{Type: HeaderType, Algorithm: HeaderAlgorithm})
	if err != nil {
		return "", fmt.Errorf("failed to marshal header: %w", err)
	}

	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}

	payload := base64URLEncode(headerJSON) + "." + base64URLEncode(claimsJSON)
	return payload + "." + s.sign(payload), nil
}

// Parse verifies the signature of tokenString, unmarshals its claims into
// claims and, when claims implements Valid() error, validates them.
func (s *Service) Parse(tokenString string, claims any) error {
	parts, err := split(tokenString)
	if err != nil {
		return err
	}

	expected := s.sign(parts[0] + "." + parts[1])
	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(expected)) != 1 {
		return ErrInvalidSignature
	}

	if err := decode(parts, claims); err != nil {
		return err
	}

	if validator, ok := claims.(interface{ Valid() error }); ok {
		if err := validator.Valid(); err != nil {
			return err
		}
	}

	return nil
}

// ParseUnverified decodes the claims of tokenString without checking the
// signature or the temporal claims. It is meant for clients that hold a
// token but not the key; never use it to authorize anything server side.
func ParseUnverified(tokenString string, claims any) error {
	parts, err := split(tokenString)
	if err != nil {
		return err
	}
	return decode(parts, claims)
}

func split(tokenString string) ([]string, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, ErrInvalidToken
	}
	return parts, nil
}

func decode(parts []string, claims any) error {
	if claims == nil {
		return ErrMissingClaims
	}

	headerJSON, err := base64URLDecode(parts[0])
	if err != nil {
		return fmt.Errorf("%w: decode header: %v", ErrInvalidToken, err)
	}

	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return fmt.Errorf("%w: unmarshal header: %v", ErrInvalidToken, err)
	}

	// Reject unexpected algorithms to prevent algorithm confusion attacks
	if header.Algorithm != HeaderAlgorithm {
		return ErrUnexpectedSigningMethod
	}

	claimsJSON, err := base64URLDecode(parts[1])
	if err != nil {
		return fmt.Errorf("%w: decode claims: %v", ErrInvalidClaims, err)
	}

	if err := json.Unmarshal(claimsJSON, claims); err != nil {
		return fmt.Errorf("%w: unmarshal claims: %v", ErrInvalidClaims, err)
	}

	return nil
}

func (s *Service) sign(payload string) string {
	h := hmac.New(sha256.New, s.signingKey)
	h.Write([]byte(payload))
	return base64URLEncode(h.Sum(nil))
}

func base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
