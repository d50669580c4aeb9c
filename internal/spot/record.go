// Package spot defines the immutable spot record and the builder that
// turns a completed voice command into one.
package spot

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spotterlabs/talkspot/internal/command"
)

// Destination identifies a spot distribution network. The set is closed:
// dispatch selects clients by an explicit table keyed on these values.
type Destination int

const (
	DXCluster Destination = iota
	POTA
	SOTA
)

func (d Destination) String() string {
	switch d {
	case DXCluster:
		return "dxcluster"
	case POTA:
		return "pota"
	case SOTA:
		return "sota"
	default:
		return fmt.Sprintf("destination(%d)", int(d))
	}
}

// All lists every known destination, in dispatch order.
func All() []Destination {
	return []Destination{DXCluster, POTA, SOTA}
}

// Record is a spot ready for dispatch. Immutable once built.
type Record struct {
	ID           string
	SessionID    string
	Callsign     string
	FrequencyKHz float64
	Mode         string
	Ref          *command.ActivationRef
	Destinations []Destination
	CreatedAt    time.Time
}

// HasDestination reports membership in the record's destination set.
func (r Record) HasDestination(d Destination) bool {
	for _, dd := range r.Destinations {
		if dd == d {
			return true
		}
	}
	return false
}

// ErrIncomplete is returned when a command is missing a mandatory field.
// Unreachable for commands emitted by the state machine, which guarantees
// both fields on completion, but the builder re-validates anyway.
var ErrIncomplete = errors.New("spot command missing callsign or frequency")

// Build assembles a record from a completed command. A POTA or SOTA
// activation adds its program's destination on top of the DX cluster,
// which receives every spot by policy.
func Build(cmd command.SpotCommand, mode string, now time.Time) (Record, error) {
	if cmd.Callsign == "" || cmd.FrequencyKHz <= 0 {
		return Record{}, ErrIncomplete
	}
	rec := Record{
		ID:           uuid.NewString(),
		SessionID:    cmd.SessionID,
		Callsign:     cmd.Callsign,
		FrequencyKHz: cmd.FrequencyKHz,
		Mode:         mode,
		CreatedAt:    now,
		Destinations: []Destination{DXCluster},
	}
	if cmd.Ref != nil {
		ref := *cmd.Ref
		rec.Ref = &ref
		switch ref.Org {
		case command.OrgPOTA:
			rec.Destinations = append(rec.Destinations, POTA)
		case command.OrgSOTA:
			rec.Destinations = append(rec.Destinations, SOTA)
		}
	}
	return rec, nil
}
