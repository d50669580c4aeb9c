// Package command implements the voice-command state machine that turns a
// stream of recognized tokens into completed spot commands. Exactly one
// session is live per token stream; the surrounding driver owns the state
// value and feeds it through Advance and CheckIdle.
package command

import "time"

// Token is a recognized word (or short phrase) from the transcription
// engine. Only final tokens contribute command content; non-final tokens
// are scanned for the wake phrase so a restart is picked up without
// waiting for the engine to finalize.
type Token struct {
	Text      string
	Final     bool
	Timestamp time.Time
}

// Org identifies which activation program a reference belongs to.
type Org string

const (
	OrgPOTA Org = "pota"
	OrgSOTA Org = "sota"
)

// ActivationRef is a park or summit identifier, e.g. K-1234 or W4C/CM-001.
// The org is decided by the keyword that introduced the field, not by the
// reference text.
type ActivationRef struct {
	Org  Org
	Code string
}

// SpotCommand is the value emitted when a session completes. Callsign and
// FrequencyKHz are always present; Ref is optional.
type SpotCommand struct {
	SessionID    string
	Callsign     string
	FrequencyKHz float64
	Ref          *ActivationRef
	StartedAt    time.Time
}

// Field names the capture slot the session cursor points at.
type Field string

const (
	FieldNone      Field = ""
	FieldCallsign  Field = "callsign"
	FieldReference Field = "reference"
	FieldFrequency Field = "frequency"
)

// EventType classifies observable session events.
type EventType string

const (
	EventWakeDetected  EventType = "wake_detected"
	EventFieldCaptured EventType = "field_captured"
)

// Event is an observable side note of a transition, for logging/UI only.
// SessionID names the owning session at emission time; a wake event
// carries the id of the session it just started.
type Event struct {
	SessionID string
	Type      EventType
	Field     Field
	Value     string
}

// Result carries everything a transition produced. Command is non-nil only
// when the session completed with both mandatory fields decoded; Abandoned
// is set when the session timed out without them. A terminal transition
// returns an idle state, so SessionID preserves the id of the session it
// closed (for a completion, Command carries the same id).
type Result struct {
	Events    []Event
	Command   *SpotCommand
	SessionID string
	Abandoned bool
}
