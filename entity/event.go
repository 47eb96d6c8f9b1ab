package entity

import "time"

type EventName string

const (
	EventLinkAdded       EventName = "link-added"
	EventLinkRemoved     EventName = "link-removed"
	EventSwitchCommitted EventName = "switch-committed"
	EventSwitchFailed    EventName = "switch-failed"
	EventRequestPaid     EventName = "request-paid"
	EventRequestExpired  EventName = "request-expired"
)

// Event is the read-only notification handed to presentation subscribers.
type Event struct {
	Name    EventName      `json:"name"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload,omitempty"`
}
