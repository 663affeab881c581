package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tabsync/pkg/logger"
)

type role string

func TestAttrs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		attr  slog.Attr
		key   string
		value string
	}{
		{"user", logger.UserID("u-1"), "user_id", "u-1"},
		{"tab", logger.TabID("tab-1"), "tab_id", "tab-1"},
		{"typed role", logger.Role(role("owner")), "role", "owner"},
		{"state", logger.State("connected"), "state", "connected"},
		{"room", logger.Room("bookings"), "room", "bookings"},
		{"event", logger.Event("logout"), "event", "logout"},
		{"component", logger.Component("realtime"), "component", "realtime"},
		{"attempt", logger.Attempt(3), "attempt", "3"},
		{"duration", logger.Duration(1500 * time.Millisecond), "duration", "1.5s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.key, tt.attr.Key)
			assert.Equal(t, tt.value, tt.attr.Value.String())
		})
	}
}

func TestEmptyAttrs(t *testing.T) {
	t.Parallel()

	for name, attr := range map[string]slog.Attr{
		"user":   logger.UserID(""),
		"tab":    logger.TabID(""),
		"role":   logger.Role(role("")),
		"error":  logger.Error(nil),
		"errors": logger.Errors(nil, nil),
	} {
		assert.True(t, attr.Equal(slog.Attr{}), name)
	}
}

func TestErrorAttrs(t *testing.T) {
	t.Parallel()
	dial := errors.New("dial refused")
	read := errors.New("read reset")

	attr := logger.Error(dial)
	assert.Equal(t, "error", attr.Key)
	assert.Equal(t, dial, attr.Value.Any())

	attr = logger.Errors(dial, nil, read)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	group := attr.Value.Group()
	require.Len(t, group, 2)
	assert.Equal(t, "0", group[0].Key)
	assert.Equal(t, "2", group[1].Key)
	assert.Equal(t, read, group[1].Value.Any())
}
