package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/tabsync/pkg/logger"
)

// Check is a readiness dependency.
type Check func(context.Context) error

// HealthCheckHandler serves liveness when no checks are given ("ALIVE") and
// readiness otherwise: "READY" when every check passes, 503 "NOT_READY"
// when one fails.
func HealthCheckHandler(log *slog.Logger, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if len(checks) == 0 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ALIVE"))
			return
		}

		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				log.ErrorContext(r.Context(), "readiness check failed", logger.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("NOT_READY"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	}
}
