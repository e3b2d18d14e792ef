package events

import "time"

// Event types
const (
	PersonCreated      = "person.created"
	PersonUpdated      = "person.updated"
	PersonDeleted      = "person.deleted"
	PersonImageChanged = "person.image_changed"
)

// Stream names
const (
	PersonEventsStream = "person.events"
)

// Base event structure
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type PersonCreatedEvent struct {
	PersonID string `json:"personId"`
	CityID   int    `json:"cityId"`
}

// PersonUpdatedEvent carries the previous city so projections can move the
// person between cities.
type PersonUpdatedEvent struct {
	PersonID       string `json:"personId"`
	CityID         int    `json:"cityId"`
	PreviousCityID int    `json:"previousCityId"`
}

type PersonDeletedEvent struct {
	PersonID string `json:"personId"`
	CityID   int    `json:"cityId"`
}

type PersonImageChangedEvent struct {
	PersonID  string `json:"personId"`
	ImagePath string `json:"imagePath"`
}
