// Package queue defines message payloads exchanged over the message broker.
package queue

// ContentChangedEvent is published whenever a city or POI is created,
// updated or deleted. Mobile clients consume it to resync geofence content
// without polling the API.
type ContentChangedEvent struct {
	Kind      string  `json:"kind"`   // "city" | "poi"
	Action    string  `json:"action"` // "created" | "updated" | "deleted"
	ID        uint64  `json:"id"`
	CityID    uint64  `json:"city_id,omitempty"` // set for POI events
	Name      string  `json:"name,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	ChangedAt string  `json:"changed_at"`
}
