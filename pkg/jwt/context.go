package jwt

import "context"

type authKey struct{}

type auth struct {
	token  string
	claims any
}

// NewContext returns ctx carrying a verified token and the claims parsed from it.
func NewContext(ctx context.Context, token string, claims any) context.Context {
	return context.WithValue(ctx, authKey{}, auth{token: token, claims: claims})
}

// TokenFromContext returns the raw token stored by NewContext.
func TokenFromContext(ctx context.Context) (string, bool) {
	a, ok := ctx.Value(authKey{}).(auth)
	return a.token, ok
}

// ClaimsFromContext returns the stored claims if they are of type C.
func ClaimsFromContext[C any](ctx context.Context) (C, bool) {
	a, _ := ctx.Value(authKey{}).(auth)
	c, ok := a.claims.(C)
	return c, ok
}
