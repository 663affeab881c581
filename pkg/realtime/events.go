package realtime

import (
	"encoding/json"
	"time"
)

// EventName is the wire name of an event.
type EventName string

const (
	// Lifecycle events, raised locally by the Manager
	EventConnect      EventName = "connect"
	EventDisconnect   EventName = "disconnect"
	EventConnectError EventName = "connect_error"

	// Heartbeat
	EventPing EventName = "ping"
	EventPong EventName = "pong"

	// Domain events pushed by the server
	EventBookingUpdate      EventName = "booking:update"
	EventNotificationNew    EventName = "notification:new"
	EventNotificationUpdate EventName = "notification:update"
	EventAnalyticsUpdate    EventName = "analytics:update"
)

// Event is one of the typed events below. Implementations use value receivers.
type Event interface {
	EventName() EventName
}

// Connected is raised after every successful connect.
type Connected struct {
	At time.Time `json:"at"`
	// Rooms joined while replaying memberships.
	Rooms []Room `json:"rooms,omitempty"`
}

func (Connected) EventName() EventName { return EventConnect }

// Disconnected is raised whenever an open connection goes away.
type Disconnected struct {
	Reason      string    `json:"reason"`
	Intentional bool      `json:"intentional"`
	At          time.Time `json:"at"`
}

func (Disconnected) EventName() EventName { return EventDisconnect }

// ConnectError is raised for every failed connect attempt.
type ConnectError struct {
	Err     error     `json:"-"`
	Attempt int       `json:"attempt"`
	At      time.Time `json:"at"`
}

func (ConnectError) EventName() EventName { return EventConnectError }

// Ping is the heartbeat sent while connected.
type Ping struct {
	At time.Time `json:"at"`
}

func (Ping) EventName() EventName { return EventPing }

// Pong answers a Ping.
type Pong struct {
	At time.Time `json:"at,omitzero"`
}

func (Pong) EventName() EventName { return EventPong }

// BookingUpdate reports a booking status change.
type BookingUpdate struct {
	BookingID  string    `json:"bookingId"`
	PropertyID string    `json:"propertyId,omitempty"`
	Status     string    `json:"status"`
	UpdatedAt  time.Time `json:"updatedAt,omitzero"`
}

func (BookingUpdate) EventName() EventName { return EventBookingUpdate }

// NotificationNew delivers a new notification.
type NotificationNew struct {
	ID        string    `json:"id"`
	Type      string    `json:"type,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

func (NotificationNew) EventName() EventName { return EventNotificationNew }

// NotificationUpdate changes an existing notification, typically its read flag.
type NotificationUpdate struct {
	ID   string `json:"id"`
	Read bool   `json:"read"`
}

func (NotificationUpdate) EventName() EventName { return EventNotificationUpdate }

// AnalyticsUpdate carries a refreshed dashboard metric.
type AnalyticsUpdate struct {
	Metric string    `json:"metric"`
	Value  float64   `json:"value"`
	Period string    `json:"period,omitempty"`
	At     time.Time `json:"at,omitzero"`
}

func (AnalyticsUpdate) EventName() EventName { return EventAnalyticsUpdate }

// Raw is any server event without a typed representation.
type Raw struct {
	Name EventName
	Data json.RawMessage
}

func (r Raw) EventName() EventName { return r.Name }

type decoder func(json.RawMessage) (Event, error)

func typed[T Event]() decoder {
	return func(data json.RawMessage) (Event, error) {
		var v T
		if len(data) == 0 || string(data) == "null" {
			return v, nil
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

var decoders = map[EventName]decoder{
	EventPong:               typed[Pong](),
	EventBookingUpdate:      typed[BookingUpdate](),
	EventNotificationNew:    typed[NotificationNew](),
	EventNotificationUpdate: typed[NotificationUpdate](),
	EventAnalyticsUpdate:    typed[AnalyticsUpdate](),
}

// Decode turns an envelope into a typed event. Names without a typed
// representation decode to Raw.
func Decode(env Envelope) (Event, error) {
	if env.Event == "" {
		return nil, &ProtocolError{Err: errMissingEventName}
	}
	dec, ok := decoders[env.Event]
	if !ok {
		return Raw{Name: env.Event, Data: env.Data}, nil
	}
	e, err := dec(env.Data)
	if err != nil {
		return nil, &ProtocolError{Event: env.Event, Err: err}
	}
	return e, nil
}

// isDomain reports whether name is a server pushed domain event.
func isDomain(name EventName) bool {
	switch name {
	case EventBookingUpdate, EventNotificationNew, EventNotificationUpdate, EventAnalyticsUpdate:
		return true
	}
	return false
}
