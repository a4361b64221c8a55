package event

import "time"

// TrafficEventEnvelope is the canonical envelope for traffic events on the
// broker. NOTE: message_id is optional for backward compatibility.
type TrafficEventEnvelope[T any] struct {
	Version    int       `json:"version"`
	Producer   string    `json:"producer"`
	TraceID    string    `json:"trace_id,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    T         `json:"payload"`
}

// VisitRecordedPayload carries one page-load from an edge producer.
// Keep fields tolerant: extra fields from producers are ignored by
// json.Unmarshal.
type VisitRecordedPayload struct {
	VisitorID    string `json:"visitor_id"`
	SessionID    string `json:"session_id"`
	PageURL      string `json:"page_url,omitempty"`
	Referrer     string `json:"referrer,omitempty"`
	IsNewVisitor bool   `json:"is_new_visitor,omitempty"`
}

type DurationUpdatedPayload struct {
	SessionID string `json:"session_id"`
	Duration  int    `json:"duration"`
}
