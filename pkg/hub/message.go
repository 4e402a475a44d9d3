// Package hub fans controller events out to websocket clients using a
// single goroutine that owns the client set.
package hub

import "encoding/json"

// EventType names the payload carried by an Event.
type EventType string

const (
	EventState  EventType = "state"
	EventHUD    EventType = "hud"
	EventLog    EventType = "log"
	EventStatus EventType = "status"
)

// Event is the envelope written to every client.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Message is a pre-encoded text frame.
type Message []byte

// Encode marshals an event into a Message.
func Encode(t EventType, data any) (Message, error) {
	b, err := json.Marshal(Event{Type: t, Data: data})
	if err != nil {
		return nil, err
	}
	return Message(b), nil
}
