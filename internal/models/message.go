package models

import "time"

// Message is a chat message as persisted by the message store. ID and
// CreatedAt are assigned by the store, never by the broker.
type Message struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

// Venue is a room's directory record: an opaque identifier plus the
// reference coordinates the proximity gate measures against. Owned by
// the venue directory, read once at admission time.
type Venue struct {
	ID   string
	Name string
	Lat  float64
	Lng  float64
}
