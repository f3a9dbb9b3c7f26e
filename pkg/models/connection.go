package models

// ClientConnection is the Notification Bus's registered sink for one
// client window. A user may have many of these open at once; the bus
// fans every event for the user out to all of them.
type ClientConnection struct {
	UserID   string
	ClientID string
	Channel  chan *Event
}
