package session

import (
	"errors"
	"strings"
	"time"

	"github.com/dmitrymomot/tabsync/pkg/jwt"
)

// Role is the marketplace role a session acts as.
type Role string

const (
	RoleUser  Role = "user"
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
)

// Roles lists every valid role in privilege order.
var Roles = []Role{RoleUser, RoleOwner, RoleAdmin}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleOwner, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts s to a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// User identifies the human behind a session.
type User struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// SameIdentity matches by ID when both sides have one, otherwise by email.
func (u User) SameIdentity(other User) bool {
	if u.ID != "" && other.ID != "" {
		return u.ID == other.ID
	}
	if u.Email != "" && other.Email != "" {
		return strings.EqualFold(u.Email, other.Email)
	}
	return false
}

// Empty reports whether u carries no identity at all.
func (u User) Empty() bool {
	return u.ID == "" && u.Email == ""
}

// Claims is the token payload the session layer understands.
type Claims struct {
	jwt.StandardClaims
	Role  Role   `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// User returns the identity embedded in the claims.
func (c Claims) User() User {
	return User{ID: c.Subject, Email: c.Email, Name: c.Name}
}

// ParseClaims decodes token without verifying its signature.
func ParseClaims(token string) (Claims, error) {
	var c Claims
	if token == "" {
		return c, ErrInvalidToken
	}
	if err := jwt.ParseUnverified(token, &c); err != nil {
		return c, errors.Join(ErrInvalidToken, err)
	}
	return c, nil
}

// TokenExpiry returns the exp claim of token. Tokens without one are invalid.
func TokenExpiry(token string) (time.Time, error) {
	c, err := ParseClaims(token)
	if err != nil {
		return time.Time{}, err
	}
	exp, ok := c.Expiry()
	if !ok {
		return time.Time{}, ErrInvalidToken
	}
	return exp, nil
}

// Record is the serializable authentication state of one tab.
type Record struct {
	Token     string    `json:"token"`
	User      User      `json:"user"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
	TabID     string    `json:"tabId"`

	// UnloadedAt is stamped right before the tab unloads and cleared when the
	// record is resumed.
	UnloadedAt time.Time `json:"unloadedAt,omitzero"`
}

// Validate checks the record's shape and that its token has not expired at now.
func (r Record) Validate(now time.Time) error {
	if r.TabID == "" {
		return ErrNoTabID
	}
	if !r.Role.Valid() {
		return ErrInvalidRole
	}
	exp, err := TokenExpiry(r.Token)
	if err != nil {
		return err
	}
	if !now.Before(exp) {
		return ErrSessionExpired
	}
	return nil
}

// ExpiresAt returns the token expiry, or the zero time for invalid tokens.
func (r Record) ExpiresAt() time.Time {
	exp, _ := TokenExpiry(r.Token)
	return exp
}

// Unloading reports whether the record was stamped by MarkUnloading.
func (r Record) Unloading() bool {
	return !r.UnloadedAt.IsZero()
}

// Patch is a partial update applied by UpdateSession. Nil fields are left alone.
type Patch struct {
	Token *string
	User  *User
	Role  *Role
}

func (p Patch) apply(r *Record) {
	if p.Token != nil {
		r.Token = *p.Token
	}
	if p.User != nil {
		r.User = *p.User
	}
	if p.Role != nil {
		r.Role = *p.Role
	}
}
