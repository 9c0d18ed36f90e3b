package models

import "time"

// Event is the envelope for every message this system publishes to
// Kafka. Data carries the event-type specific payload.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}
