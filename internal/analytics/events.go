package analytics

import "time"

// EventType identifies the archive operation an event describes.
type EventType string

const (
	EventPublish  EventType = "publish"
	EventSearch   EventType = "search"
	EventRetrieve EventType = "retrieve"
	EventInvalid  EventType = "invalid_request"
)

// RequestEvent records a single request/response exchange.
type RequestEvent struct {
	Type      EventType `json:"type"`
	DocID     uint64    `json:"doc_id,omitempty"`
	Word      string    `json:"word,omitempty"`
	Results   int       `json:"results,omitempty"`
	Status    string    `json:"status"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}
