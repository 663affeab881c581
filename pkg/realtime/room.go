package realtime

// Room is a named server-side channel grouping related events.
type Room string

const (
	RoomDashboard     Room = "dashboard"
	RoomBookings      Room = "bookings"
	RoomNotifications Room = "notifications"
	RoomAnalytics     Room = "analytics"
)

// Rooms lists every known room.
var Rooms = []Room{RoomDashboard, RoomBookings, RoomNotifications, RoomAnalytics}

// Valid reports whether r is a known room.
func (r Room) Valid() bool {
	switch r {
	case RoomDashboard, RoomBookings, RoomNotifications, RoomAnalytics:
		return true
	}
	return false
}

// JoinEvent is the event emitted to join r.
func (r Room) JoinEvent() EventName { return EventName(string(r) + ":subscribe") }

// LeaveEvent is the event emitted to leave r.
func (r Room) LeaveEvent() EventName { return EventName(string(r) + ":unsubscribe") }
