package hub

import "incidentrelay/internal/incident"

// Event types sent over the real-time channel.
const (
	EventUpdateIncidents = "update-incidents"
	EventNotification    = "notification"
)

// Event is the envelope of every real-time message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Notification is the payload of a notification event, emitted when the
// number of incidents changes between two snapshots.
type Notification struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Count    int    `json:"count"`
	Previous int    `json:"previous"`
}

// UpdateIncidents builds the snapshot event. A nil slice is sent as [].
func UpdateIncidents(records []incident.Record) Event {
	if records == nil {
		records = []incident.Record{}
	}
	return Event{Type: EventUpdateIncidents, Data: records}
}

// Notify builds a notification event.
func Notify(n Notification) Event {
	return Event{Type: EventNotification, Data: n}
}
