package encounter

import (
	"encoding/json"
	"fmt"
)

// EventKind identifies the kind of state transition an Event records.
type EventKind string

const (
	EventInitiativeRolled EventKind = "initiative_rolled"
	EventTurnAdvanced     EventKind = "turn_advanced"
	EventRoundAdvanced    EventKind = "round_advanced"
	EventActionDeclared   EventKind = "action_declared"
	EventActionResolved   EventKind = "action_resolved"
	EventStatusApplied    EventKind = "status_applied"
	EventStatusExpired    EventKind = "status_expired"
	EventEncounterEnded   EventKind = "encounter_ended"
)

// Event is one immutable entry in an encounter's append-only log. Ordering
// is logical: Seq is a monotonically increasing sequence number, not a
// wall-clock timestamp. The payload carries the minimal state snapshot
// needed to reconstruct the transition.
type Event struct {
	Seq     uint64          `json:"seq"`
	Kind    EventKind       `json:"kind"`
	Round   int             `json:"round"`
	Actor   string          `json:"actor,omitempty"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// InitiativePayload is the payload for EventInitiativeRolled. It snapshots
// the combatant's starting state so a log replay can rebuild the encounter
// without external inputs.
type InitiativePayload struct {
	Name       string `json:"name"`
	Side       string `json:"side"`
	Initiative int    `json:"initiative"`
	Dice       []int  `json:"dice,omitempty"` // empty when initiative was pre-supplied
	Tiebreak   int    `json:"tiebreak"`
	HP         int    `json:"hp"`
	MaxHP      int    `json:"max_hp"`
	Defense    int    `json:"defense"`
	Speed      int    `json:"speed"`
}

// TurnPayload is the payload for EventTurnAdvanced and EventRoundAdvanced.
type TurnPayload struct {
	Round int `json:"round"`
	Turn  int `json:"turn"`
	// Skipped lists combatants passed over (defeated or incapacitated)
	// between the previous turn and this one.
	Skipped []string `json:"skipped,omitempty"`
}

// DeclaredPayload is the payload for EventActionDeclared.
type DeclaredPayload struct {
	Declaration Declaration `json:"declaration"`
}

// ResolvedPayload is the payload for EventActionResolved.
type ResolvedPayload struct {
	Resolution Resolution `json:"resolution"`
}

// StatusPayload is the payload for EventStatusApplied and EventStatusExpired.
type StatusPayload struct {
	Effect   string `json:"effect"`
	Stacks   int    `json:"stacks,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// EndedPayload is the payload for EventEncounterEnded.
type EndedPayload struct {
	Winner    string   `json:"winner"` // side name, or "none"
	Rounds    int      `json:"rounds"`
	Survivors []string `json:"survivors,omitempty"`
}

// Log is an append-only, totally ordered sequence of Events. Events are
// never retracted; later compensating events supersede earlier ones.
type Log struct {
	events []Event
	seq    uint64
}

// NewLog creates an empty Log.
func NewLog() *Log {
	return &Log{}
}

// Emit appends ev to the log and returns its assigned sequence number.
// The first event gets sequence number 1.
//
// Postcondition: sequence numbers are strictly increasing; prior events are
// never mutated.
func (l *Log) Emit(ev Event) uint64 {
	l.seq++
	ev.Seq = l.seq
	l.events = append(l.events, ev)
	return ev.Seq
}

// Events returns a copy of the log entries in order.
func (l *Log) Events() []Event {
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of events in the log.
func (l *Log) Len() int { return len(l.events) }

// Since returns a copy of all events with Seq > seq.
func (l *Log) Since(seq uint64) []Event {
	var out []Event
	for _, ev := range l.events {
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}

// marshalPayload encodes v as the payload of an event. Payload structs are
// plain data; encoding cannot fail in practice, so failure panics.
func marshalPayload(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("encounter: marshalling event payload: %v", err))
	}
	return data
}
