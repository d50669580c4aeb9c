package protocol

import "time"

// TranscriptToken is a single recognized token published by the transcription
// engine. Non-final tokens may be revised by a later final token for the same
// utterance.
type TranscriptToken struct {
	StreamID  string    `json:"stream_id"`
	Text      string    `json:"text"`
	Final     bool      `json:"final"`
	Timestamp time.Time `json:"timestamp"`
}

// SpotEvent is broadcast for UI/log consumers as a command session progresses.
type SpotEvent struct {
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	Field     string    `json:"field,omitempty"`
	Value     string    `json:"value,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DeliveryOutcome is one destination's result within a delivery report.
type DeliveryOutcome struct {
	Destination string `json:"destination"`
	Outcome     string `json:"outcome"`
	Reason      string `json:"reason,omitempty"`
}

// DeliveryReport summarizes dispatch of one spot record.
type DeliveryReport struct {
	SpotID    string            `json:"spot_id"`
	Callsign  string            `json:"callsign"`
	Outcomes  []DeliveryOutcome `json:"outcomes"`
	Timestamp time.Time         `json:"timestamp"`
}

const (
	SubjectTokenPrefix  = "stt.token"
	SubjectTokenPartial = "stt.token.partial"
	SubjectTokenFinal   = "stt.token.final"

	SubjectWakeDetected    = "spot.event.wake"
	SubjectFieldCaptured   = "spot.event.field"
	SubjectCommandComplete = "spot.event.completed"
	SubjectCommandAbandon  = "spot.event.abandoned"
	SubjectDeliveryReport  = "spot.event.delivery"
)
