package effect

import "fmt"

// Active tracks one applied effect on a combatant.
type Active struct {
	Def               *Definition
	Stacks            int
	DurationRemaining int // -1 = permanent
}

// ActiveSet tracks all effects currently applied to one combatant.
// It is not safe for concurrent use; the caller must serialise access.
type ActiveSet struct {
	effects map[string]*Active
}

// NewActiveSet creates an empty ActiveSet.
func NewActiveSet() *ActiveSet {
	return &ActiveSet{effects: make(map[string]*Active)}
}

// Apply adds or updates an effect on this combatant.
// If the effect is already present, stacks are incremented (capped at
// MaxStacks). If MaxStacks == 0 (unstackable), stacks is always stored as 1.
// duration is rounds remaining; use -1 for permanent.
//
// Precondition: def must not be nil.
// Postcondition: Has(def.ID) is true; stacks are incremented on re-apply
// (capped at MaxStacks); DurationRemaining is extended to max(existing, duration).
func (s *ActiveSet) Apply(def *Definition, stacks, duration int) error {
	if def == nil {
		return fmt.Errorf("Apply: def must not be nil")
	}

	if existing, ok := s.effects[def.ID]; ok {
		if def.MaxStacks == 0 {
			if duration > existing.DurationRemaining {
				existing.DurationRemaining = duration
			}
			return nil
		}
		newStacks := existing.Stacks + stacks
		if newStacks > def.MaxStacks {
			newStacks = def.MaxStacks
		}
		existing.Stacks = newStacks
		if duration > existing.DurationRemaining {
			existing.DurationRemaining = duration
		}
		return nil
	}

	effectiveStacks := stacks
	if def.MaxStacks == 0 {
		effectiveStacks = 1
	}
	capped := effectiveStacks
	if def.MaxStacks > 0 && capped > def.MaxStacks {
		capped = def.MaxStacks
	}
	s.effects[def.ID] = &Active{
		Def:               def,
		Stacks:            capped,
		DurationRemaining: duration,
	}
	return nil
}

// Remove deletes the effect with the given ID from the set.
// If the effect is not present, Remove is a no-op.
//
// Postcondition: Has(id) is false.
func (s *ActiveSet) Remove(id string) {
	delete(s.effects, id)
}

// Tick decrements the DurationRemaining of all "rounds"-type effects by 1.
// Effects that reach 0 are removed and their IDs returned. Permanent effects
// (DurationRemaining == -1) are not affected.
//
// Postcondition: For every id in the returned slice, Has(id) is false.
func (s *ActiveSet) Tick() []string {
	var expired []string
	// Deleting map entries during range iteration is safe per the Go specification.
	for id, a := range s.effects {
		if a.Def.DurationType != DurationRounds || a.DurationRemaining < 0 {
			continue
		}
		a.DurationRemaining--
		if a.DurationRemaining <= 0 {
			expired = append(expired, id)
			delete(s.effects, id)
		}
	}
	return expired
}

// Has reports whether the effect with id is currently active.
func (s *ActiveSet) Has(id string) bool {
	_, ok := s.effects[id]
	return ok
}

// Stacks returns the current stack count for effect id, or 0 if not present.
func (s *ActiveSet) Stacks(id string) int {
	if a, ok := s.effects[id]; ok {
		return a.Stacks
	}
	return 0
}

// All returns a slice of pointers to the active effects.
// The slice itself is a new allocation, but the pointed-to Active values are
// shared — callers must not modify them.
func (s *ActiveSet) All() []*Active {
	out := make([]*Active, 0, len(s.effects))
	for _, a := range s.effects {
		out = append(out, a)
	}
	return out
}

// IDs returns the IDs of all active effects.
func (s *ActiveSet) IDs() []string {
	out := make([]string, 0, len(s.effects))
	for id := range s.effects {
		out = append(out, id)
	}
	return out
}
