package realtime_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tabsync/pkg/realtime"
)

func TestEnvelope(t *testing.T) {
	t.Parallel()

	t.Run("frame round trip", func(t *testing.T) {
		env, err := realtime.NewEnvelope(realtime.EventBookingUpdate, realtime.BookingUpdate{BookingID: "b-7", Status: "cancelled"})
		require.NoError(t, err)

		b, err := realtime.MarshalFrame(env)
		require.NoError(t, err)
		assert.JSONEq(t, `{"event":"booking:update","data":{"bookingId":"b-7","status":"cancelled"}}`, string(b))

		back, err := realtime.UnmarshalFrame(b)
		require.NoError(t, err)
		assert.Equal(t, env.Event, back.Event)
		assert.JSONEq(t, string(env.Data), string(back.Data))
	})

	t.Run("nil data is omitted", func(t *testing.T) {
		env, err := realtime.NewEnvelope(realtime.RoomBookings.JoinEvent(), nil)
		require.NoError(t, err)
		b, err := realtime.MarshalFrame(env)
		require.NoError(t, err)
		assert.JSONEq(t, `{"event":"bookings:subscribe"}`, string(b))
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := realtime.NewEnvelope("", nil)
		assert.Error(t, err)

		_, err = realtime.UnmarshalFrame([]byte(`{"data":{}}`))
		var pe *realtime.ProtocolError
		assert.ErrorAs(t, err, &pe)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := realtime.UnmarshalFrame([]byte(`hello`))
		var pe *realtime.ProtocolError
		assert.ErrorAs(t, err, &pe)
	})
}

func TestDecode(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		env  realtime.Envelope
		want realtime.Event
	}{
		{
			name: "booking update",
			env:  realtime.Envelope{Event: realtime.EventBookingUpdate, Data: json.RawMessage(`{"bookingId":"b-1","propertyId":"p-1","status":"confirmed"}`)},
			want: realtime.BookingUpdate{BookingID: "b-1", PropertyID: "p-1", Status: "confirmed"},
		},
		{
			name: "new notification",
			env:  realtime.Envelope{Event: realtime.EventNotificationNew, Data: json.RawMessage(`{"id":"n-1","title":"Check-in today","createdAt":"2026-03-01T12:00:00Z"}`)},
			want: realtime.NotificationNew{ID: "n-1", Title: "Check-in today", CreatedAt: at},
		},
		{
			name: "notification read",
			env:  realtime.Envelope{Event: realtime.EventNotificationUpdate, Data: json.RawMessage(`{"id":"n-1","read":true}`)},
			want: realtime.NotificationUpdate{ID: "n-1", Read: true},
		},
		{
			name: "analytics",
			env:  realtime.Envelope{Event: realtime.EventAnalyticsUpdate, Data: json.RawMessage(`{"metric":"revenue","value":1250.5,"period":"day"}`)},
			want: realtime.AnalyticsUpdate{Metric: "revenue", Value: 1250.5, Period: "day"},
		},
		{
			name: "pong without data",
			env:  realtime.Envelope{Event: realtime.EventPong},
			want: realtime.Pong{},
		},
		{
			name: "unknown event",
			env:  realtime.Envelope{Event: "inventory:update", Data: json.RawMessage(`[1,2]`)},
			want: realtime.Raw{Name: "inventory:update", Data: json.RawMessage(`[1,2]`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := realtime.Decode(tt.env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.env.Event, got.EventName())
		})
	}

	t.Run("wrong payload shape", func(t *testing.T) {
		_, err := realtime.Decode(realtime.Envelope{Event: realtime.EventAnalyticsUpdate, Data: json.RawMessage(`{"value":"high"}`)})
		var pe *realtime.ProtocolError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, realtime.EventAnalyticsUpdate, pe.Event)
	})
}

func TestRoom(t *testing.T) {
	t.Parallel()

	for _, room := range realtime.Rooms {
		assert.True(t, room.Valid(), room)
	}
	assert.False(t, realtime.Room("lobby").Valid())
	assert.Equal(t, realtime.EventName("analytics:subscribe"), realtime.RoomAnalytics.JoinEvent())
	assert.Equal(t, realtime.EventName("notifications:unsubscribe"), realtime.RoomNotifications.LeaveEvent())
}

func TestErrors(t *testing.T) {
	t.Parallel()

	authErr := &realtime.AuthError{Reason: "token expired"}
	assert.True(t, realtime.IsAuthError(authErr))
	assert.True(t, realtime.IsAuthError(errors.Join(errors.New("ctx"), authErr)))
	assert.ErrorIs(t, authErr, realtime.ErrAuth)
	assert.Contains(t, authErr.Error(), "token expired")

	cause := errors.New("connection refused")
	te := &realtime.TransportError{Op: "dial", Err: cause}
	assert.False(t, realtime.IsAuthError(te))
	assert.ErrorIs(t, te, cause)
	assert.Equal(t, "realtime: dial: connection refused", te.Error())

	pe := &realtime.ProtocolError{Event: realtime.EventPong, Err: cause}
	assert.Contains(t, pe.Error(), `"pong"`)
}
