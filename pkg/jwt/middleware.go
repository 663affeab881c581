package jwt

import (
	"errors"
	"net/http"
	"strings"
)

// Extractor pulls a raw token out of a request; "" means none was sent.
type Extractor func(r *http.Request) string

// FromHeader reads an "Authorization: Bearer <token>" header.
func FromHeader(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// FromQuery reads the token from a query parameter. Browsers cannot set
// headers on a websocket handshake.
func FromQuery(param string) Extractor {
	return func(r *http.Request) string { return r.URL.Query().Get(param) }
}

// FromAny returns the first token any extractor finds.
func FromAny(extractors ...Extractor) Extractor {
	return func(r *http.Request) string {
		for _, ex := range extractors {
			if token := ex(r); token != "" {
				return token
			}
		}
		return ""
	}
}

// Guard rejects requests without a valid token with 401. Accepted requests
// carry the token and a *C parsed from it; see ClaimsFromContext.
func Guard[C any](svc *Service, extract Extractor) func(http.Handler) http.Handler {
	if extract == nil {
		extract = FromHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extract(r)
			if token == "" {
				unauthorized(w, ErrInvalidToken)
				return
			}
			claims := new(C)
			if err := svc.Parse(token, claims); err != nil {
				unauthorized(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), token, claims)))
		})
	}
}

func unauthorized(w http.ResponseWriter, err error) {
	desc := "invalid_token"
	if errors.Is(err, ErrExpiredToken) {
		desc = "token_expired"
	}
	w.Header().Set("WWW-Authenticate", `Bearer error="`+desc+`"`)
	http.Error(w, err.Error(), http.StatusUnauthorized)
}
