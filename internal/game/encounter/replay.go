package encounter

import (
	"encoding/json"
	"fmt"
	"sort"
)

// State is a structural snapshot of an encounter, comparable across a live
// encounter and a log replay. It deliberately omits transient per-turn data
// (pending declarations, action-slot usage) that the log supersedes.
type State struct {
	Round   int                 `json:"round"`
	Turn    int                 `json:"turn"`
	Over    bool                `json:"over"`
	Winner  string              `json:"winner,omitempty"`
	Order   []string            `json:"order"` // combatant IDs in initiative order
	HP      map[string]int      `json:"hp"`
	Effects map[string][]string `json:"effects,omitempty"` // active effect IDs, sorted
}

// State captures the encounter's current structural snapshot.
func (e *Encounter) State() State {
	s := State{
		Round:   e.round,
		Turn:    e.turn,
		Over:    e.over,
		Winner:  e.winner,
		Order:   make([]string, 0, len(e.combatants)),
		HP:      make(map[string]int, len(e.combatants)),
		Effects: make(map[string][]string),
	}
	for _, c := range e.combatants {
		s.Order = append(s.Order, c.ID)
		s.HP[c.ID] = c.HP
		if ids := c.Effects.IDs(); len(ids) > 0 {
			sort.Strings(ids)
			s.Effects[c.ID] = ids
		}
	}
	if len(s.Effects) == 0 {
		s.Effects = nil
	}
	return s
}

// Replay reconstructs an encounter's State purely from its event log. Every
// transition an Encounter performs is logged with enough payload to
// reproduce it here, so for any encounter e,
//
//	Replay(e.Log().Events()) == e.State()
//
// Precondition: events must be a prefix-complete log from a single
// encounter, in Seq order.
func Replay(events []Event) (State, error) {
	s := State{HP: make(map[string]int), Effects: make(map[string][]string)}
	effects := make(map[string]map[string]bool)
	inInitiativeBatch := false

	for _, ev := range events {
		batch := ev.Kind == EventInitiativeRolled
		if batch && !inInitiativeBatch {
			// A fresh batch replaces the order (per-round reroll).
			s.Order = s.Order[:0]
		}
		inInitiativeBatch = batch

		switch ev.Kind {
		case EventInitiativeRolled:
			var p InitiativePayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return State{}, fmt.Errorf("replay seq %d: %w", ev.Seq, err)
			}
			s.Order = append(s.Order, ev.Actor)
			if _, seen := s.HP[ev.Actor]; !seen {
				s.HP[ev.Actor] = p.HP
			}

		case EventTurnAdvanced, EventRoundAdvanced:
			var p TurnPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return State{}, fmt.Errorf("replay seq %d: %w", ev.Seq, err)
			}
			s.Round, s.Turn = p.Round, p.Turn

		case EventActionResolved:
			var p ResolvedPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return State{}, fmt.Errorf("replay seq %d: %w", ev.Seq, err)
			}
			r := p.Resolution
			if r.Damage > 0 && r.Target != "" {
				s.HP[r.Target] = r.TargetHP
			}

		case EventStatusApplied:
			var p StatusPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return State{}, fmt.Errorf("replay seq %d: %w", ev.Seq, err)
			}
			if effects[ev.Actor] == nil {
				effects[ev.Actor] = make(map[string]bool)
			}
			effects[ev.Actor][p.Effect] = true

		case EventStatusExpired:
			var p StatusPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return State{}, fmt.Errorf("replay seq %d: %w", ev.Seq, err)
			}
			delete(effects[ev.Actor], p.Effect)

		case EventEncounterEnded:
			var p EndedPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return State{}, fmt.Errorf("replay seq %d: %w", ev.Seq, err)
			}
			s.Over = true
			s.Winner = p.Winner

		case EventActionDeclared:
			// Declarations carry no durable state; their outcomes arrive
			// as EventActionResolved.

		default:
			return State{}, fmt.Errorf("replay seq %d: unknown event kind %q", ev.Seq, ev.Kind)
		}
	}

	for id, set := range effects {
		if len(set) == 0 {
			continue
		}
		ids := make([]string, 0, len(set))
		for e := range set {
			ids = append(ids, e)
		}
		sort.Strings(ids)
		s.Effects[id] = ids
	}
	if len(s.Effects) == 0 {
		s.Effects = nil
	}
	return s, nil
}
