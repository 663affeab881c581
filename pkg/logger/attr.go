package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Error puts err under "error"; nil yields an empty attribute.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Errors groups the non-nil errs under "errors", keyed by position.
func Errors(errs ...error) slog.Attr {
	attrs := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			attrs = append(attrs, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(attrs) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(attrs...)}
}

func nonEmpty(key, value string) slog.Attr {
	if value == "" {
		return slog.Attr{}
	}
	return slog.String(key, value)
}

func UserID(id string) slog.Attr { return nonEmpty("user_id", id) }

func TabID(id string) slog.Attr { return nonEmpty("tab_id", id) }

// Role accepts any string-backed role type.
func Role[R ~string](role R) slog.Attr { return nonEmpty("role", string(role)) }

// State accepts any string-backed state type.
func State[S ~string](state S) slog.Attr { return nonEmpty("state", string(state)) }

func Room(name string) slog.Attr { return slog.String("room", name) }

func Event(name string) slog.Attr { return slog.String("event", name) }

func Component(name string) slog.Attr { return slog.String("component", name) }

func Attempt(n int) slog.Attr { return slog.Int("attempt", n) }

func Duration(d time.Duration) slog.Attr { return slog.Duration("duration", d) }
