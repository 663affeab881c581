// Package jwt signs, verifies and inspects HS256 JSON Web Tokens.
//
// Two audiences use it. Services holding the signing key use Service to
// Generate and Parse (verify + validate) tokens, and Guard to protect HTTP
// endpoints such as the realtime handshake. Clients that never see the key,
// like the tab session layer, use ParseUnverified to read the embedded claims
// (most importantly "exp") of a token they were handed at login.
//
//	svc, _ := jwt.NewFromString("super-secret")
//	token, _ := svc.Generate(jwt.StandardClaims{
//		Subject:   "42",
//		ExpiresAt: time.Now().Add(time.Hour).Unix(),
//	})
//
//	var claims jwt.StandardClaims
//	_ = jwt.ParseUnverified(token, &claims)
//	if claims.Expired(time.Now()) { ... }
//
// Errors are sentinel values (ErrExpiredToken, ErrInvalidSignature, ...)
// comparable with errors.Is.
package jwt
