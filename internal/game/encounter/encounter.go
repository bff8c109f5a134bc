package encounter

import (
	"fmt"
	"sort"

	"github.com/hollowhost/hollowhost/internal/game/dice"
	"github.com/hollowhost/hollowhost/internal/game/effect"
	"github.com/hollowhost/hollowhost/internal/game/ruleset"
)

// Options configures engine behavior not owned by the ruleset binding.
type Options struct {
	// DefaultInitiative is the formula used when the binding declares none
	// (e.g. "1d20+DEX"). Empty means no default: a binding without an
	// initiative formula fails with ErrInvalidRuleset.
	DefaultInitiative string
}

// Encounter is the live state of one combat encounter. It owns its
// combatants for the lifetime of the encounter and an append-only event log.
//
// Invariant: Combatants is sorted descending by initiative (ties broken by
// the binding's tiebreak stat, then registration order) and is only
// reordered when the binding requests a per-round initiative re-roll.
type Encounter struct {
	// ID identifies the encounter (assigned by the caller, e.g. a session manager).
	ID string

	binding *ruleset.Binding
	effects *effect.Registry
	src     dice.Source
	opts    Options

	combatants []*Combatant
	byID       map[string]*Combatant

	round  int
	turn   int
	over   bool
	winner string

	log     *Log
	pending map[string]*Declaration
}

// Start initializes an encounter: rolls (or accepts pre-supplied) initiative
// for every combatant using the binding's initiative formula, produces the
// deterministic total order, and positions the turn pointer at index 0 of
// round 1.
//
// Precondition: src must be non-nil; effects may be nil when no status
// effects are used.
// Postcondition: Returns an Encounter in round 1 with an InitiativeRolled
// event per combatant (in final order) and an initial TurnAdvanced event,
// or ErrEmptyEncounter / ErrInvalidRuleset.
func Start(id string, combatants []*Combatant, binding *ruleset.Binding, defs *effect.Registry, src dice.Source, opts Options) (*Encounter, error) {
	if len(combatants) == 0 {
		return nil, ErrEmptyEncounter
	}
	formula := binding.Initiative
	if formula == "" {
		formula = opts.DefaultInitiative
	}
	if formula == "" {
		return nil, ErrInvalidRuleset
	}
	expr, err := dice.Parse(formula)
	if err != nil {
		return nil, fmt.Errorf("initiative formula: %w", err)
	}

	e := &Encounter{
		ID:         id,
		binding:    binding,
		effects:    defs,
		src:        src,
		opts:       opts,
		combatants: make([]*Combatant, len(combatants)),
		byID:       make(map[string]*Combatant, len(combatants)),
		round:      1,
		log:        NewLog(),
		pending:    make(map[string]*Declaration),
	}
	copy(e.combatants, combatants)

	rolls := make(map[string][]int, len(combatants))
	for i, c := range e.combatants {
		c.regIndex = i
		if c.Effects == nil {
			c.Effects = effect.NewActiveSet()
		}
		c.Slots = Slots{ReactionAvailable: true}
		if e.binding.TiebreakStat != "" {
			if v, ok := c.Stat(e.binding.TiebreakStat); ok {
				c.tiebreak = v
			}
		}
		if c.PresetInitiative != nil {
			c.Initiative = *c.PresetInitiative
			continue
		}
		r, err := dice.Roll(expr, c, src)
		if err != nil {
			return nil, fmt.Errorf("rolling initiative for %q: %w", c.ID, err)
		}
		c.Initiative = r.Total()
		rolls[c.ID] = r.Dice
	}

	e.sortByInitiative()
	for _, c := range e.combatants {
		e.byID[c.ID] = c
		e.log.Emit(Event{
			Kind:  EventInitiativeRolled,
			Round: e.round,
			Actor: c.ID,
			Payload: marshalPayload(InitiativePayload{
				Name:       c.Name,
				Side:       c.Side.String(),
				Initiative: c.Initiative,
				Dice:       rolls[c.ID],
				Tiebreak:   c.tiebreak,
				HP:         c.HP,
				MaxHP:      c.MaxHP,
				Defense:    c.Defense,
				Speed:      c.Speed,
			}),
		})
	}

	first := e.combatants[0]
	first.Slots.resetTurn()
	e.log.Emit(Event{
		Kind:    EventTurnAdvanced,
		Round:   e.round,
		Actor:   first.ID,
		Payload: marshalPayload(TurnPayload{Round: e.round, Turn: 0}),
	})
	return e, nil
}

// sortByInitiative orders combatants descending by initiative, breaking ties
// by the declared tiebreak stat descending, then by registration order.
func (e *Encounter) sortByInitiative() {
	sort.SliceStable(e.combatants, func(i, j int) bool {
		a, b := e.combatants[i], e.combatants[j]
		if a.Initiative != b.Initiative {
			return a.Initiative > b.Initiative
		}
		if a.tiebreak != b.tiebreak {
			return a.tiebreak > b.tiebreak
		}
		return a.regIndex < b.regIndex
	})
}

// Round returns the current round number (rounds start at 1).
func (e *Encounter) Round() int { return e.round }

// Turn returns the current turn pointer (index into the initiative order).
func (e *Encounter) Turn() int { return e.turn }

// Over reports whether the encounter is terminal.
func (e *Encounter) Over() bool { return e.over }

// Winner returns the winning side's name once the encounter is over, or "".
func (e *Encounter) Winner() string { return e.winner }

// Current returns the combatant whose turn it is.
func (e *Encounter) Current() *Combatant { return e.combatants[e.turn] }

// Combatant returns the combatant with the given ID.
func (e *Encounter) Combatant(id string) (*Combatant, bool) {
	c, ok := e.byID[id]
	return c, ok
}

// Combatants returns the initiative-ordered combatants. The slice is a copy;
// the pointed-to Combatants are live.
func (e *Encounter) Combatants() []*Combatant {
	out := make([]*Combatant, len(e.combatants))
	copy(out, e.combatants)
	return out
}

// Log returns the encounter's event log.
func (e *Encounter) Log() *Log { return e.log }

// Binding returns the immutable ruleset binding in force for this encounter.
func (e *Encounter) Binding() *ruleset.Binding { return e.binding }

// AdvanceTurn moves the turn pointer to the next active combatant, skipping
// defeated or incapacitated ones (they remain in the order). When the
// pointer wraps past the end of the sequence the round counter increments,
// reaction availability resets for everyone, and round-based status effects
// tick (expirations are logged).
//
// Any unresolved declaration by the outgoing combatant is discarded.
//
// Postcondition: Returns the new current combatant and round number, or
// ErrEncounterTerminal if the encounter is (or becomes) terminal.
func (e *Encounter) AdvanceTurn() (*Combatant, int, error) {
	if e.over {
		return nil, 0, ErrEncounterTerminal
	}

	delete(e.pending, e.combatants[e.turn].ID)

	var skipped []string
	for steps := 0; steps <= len(e.combatants); steps++ {
		e.turn++
		if e.turn >= len(e.combatants) {
			e.turn = 0
			e.beginRound()
			if e.over {
				return nil, e.round, ErrEncounterTerminal
			}
		}
		c := e.combatants[e.turn]
		if !c.Active() {
			skipped = append(skipped, c.ID)
			continue
		}
		c.Slots.resetTurn()
		e.log.Emit(Event{
			Kind:    EventTurnAdvanced,
			Round:   e.round,
			Actor:   c.ID,
			Payload: marshalPayload(TurnPayload{Round: e.round, Turn: e.turn, Skipped: skipped}),
		})
		return c, e.round, nil
	}

	// A full cycle found no active combatant: nobody can act again.
	e.turn = 0
	e.finish("none")
	return nil, e.round, ErrEncounterTerminal
}

// beginRound increments the round counter, resets reaction availability,
// ticks round-based status effects, and optionally re-rolls initiative when
// the binding requests it.
func (e *Encounter) beginRound() {
	e.round++
	for _, c := range e.combatants {
		c.Slots.ReactionAvailable = true
		for _, id := range c.Effects.Tick() {
			e.log.Emit(Event{
				Kind:    EventStatusExpired,
				Round:   e.round,
				Actor:   c.ID,
				Payload: marshalPayload(StatusPayload{Effect: id}),
			})
		}
	}

	if e.binding.RerollInitiativeEachRound {
		e.rerollInitiative()
	}

	e.log.Emit(Event{
		Kind:    EventRoundAdvanced,
		Round:   e.round,
		Payload: marshalPayload(TurnPayload{Round: e.round, Turn: 0}),
	})
}

// rerollInitiative re-rolls every combatant's initiative (honoring presets)
// and re-sorts the order. Only invoked when the binding explicitly opts in.
func (e *Encounter) rerollInitiative() {
	formula := e.binding.Initiative
	if formula == "" {
		formula = e.opts.DefaultInitiative
	}
	expr, err := dice.Parse(formula)
	if err != nil {
		// Validated at Start; a parse failure here is unreachable.
		panic(fmt.Sprintf("encounter: initiative formula became invalid: %v", err))
	}
	rolls := make(map[string][]int, len(e.combatants))
	for _, c := range e.combatants {
		if c.PresetInitiative != nil {
			c.Initiative = *c.PresetInitiative
			continue
		}
		r, err := dice.Roll(expr, c, e.src)
		if err != nil {
			continue // stat context cannot shrink mid-encounter
		}
		c.Initiative = r.Total()
		rolls[c.ID] = r.Dice
	}
	e.sortByInitiative()
	for _, c := range e.combatants {
		e.log.Emit(Event{
			Kind:  EventInitiativeRolled,
			Round: e.round,
			Actor: c.ID,
			Payload: marshalPayload(InitiativePayload{
				Name:       c.Name,
				Side:       c.Side.String(),
				Initiative: c.Initiative,
				Dice:       rolls[c.ID],
				Tiebreak:   c.tiebreak,
				HP:         c.HP,
				MaxHP:      c.MaxHP,
				Defense:    c.Defense,
				Speed:      c.Speed,
			}),
		})
	}
}

// Declare validates d against the actor's turn state and action economy.
// On success the corresponding availability flag (or movement budget) is
// consumed, the declaration is logged, and — when the action requires dice
// resolution — it is held pending until one of the Resolve methods or
// Withdraw consumes it.
//
// Postcondition: On error the encounter state is unchanged. Errors:
// ErrEncounterTerminal, ErrInvalidActionType, ErrUnknownCombatant,
// ErrNotYourTurn, ErrActionAlreadyUsed, ErrInsufficientMovement,
// ErrActionRestricted, ErrDeclarationPending.
func (e *Encounter) Declare(d Declaration) (*Declaration, error) {
	if e.over {
		return nil, ErrEncounterTerminal
	}
	if d.Type.String() == "unknown" {
		return nil, ErrInvalidActionType
	}
	actor, ok := e.byID[d.Actor]
	if !ok {
		return nil, fmt.Errorf("actor %q: %w", d.Actor, ErrUnknownCombatant)
	}
	if d.Target != "" {
		if _, ok := e.byID[d.Target]; !ok {
			return nil, fmt.Errorf("target %q: %w", d.Target, ErrUnknownCombatant)
		}
	}
	if _, inFlight := e.pending[d.Actor]; inFlight {
		return nil, ErrDeclarationPending
	}
	if effect.IsActionRestricted(actor.Effects, d.Type.String()) {
		return nil, fmt.Errorf("%s action by %q: %w", d.Type, d.Actor, ErrActionRestricted)
	}

	switch d.Type {
	case ActionReaction:
		// Reactions run out of turn but need a qualifying trigger.
		if d.Trigger == "" {
			return nil, fmt.Errorf("reaction requires a trigger: %w", ErrInvalidActionType)
		}
		if !actor.Slots.ReactionAvailable {
			return nil, ErrActionAlreadyUsed
		}
	case ActionStandard, ActionMove, ActionBonus:
		if e.Current().ID != d.Actor {
			return nil, ErrNotYourTurn
		}
		switch d.Type {
		case ActionStandard:
			if actor.Slots.StandardUsed {
				return nil, ErrActionAlreadyUsed
			}
		case ActionBonus:
			if actor.Slots.BonusUsed {
				return nil, ErrActionAlreadyUsed
			}
		case ActionMove:
			if d.Distance <= 0 {
				return nil, fmt.Errorf("move distance must be > 0: %w", ErrInvalidActionType)
			}
			if actor.Slots.moveClosed && !e.binding.SplitMovement {
				return nil, ErrActionAlreadyUsed
			}
			if actor.Slots.MovementUsed+d.Distance > actor.EffectiveSpeed() {
				return nil, fmt.Errorf("%d of %d remaining: %w",
					d.Distance, actor.EffectiveSpeed()-actor.Slots.MovementUsed, ErrInsufficientMovement)
			}
		}
	default:
		return nil, ErrInvalidActionType
	}

	// All checks passed: consume the slot.
	switch d.Type {
	case ActionReaction:
		actor.Slots.ReactionAvailable = false
	case ActionStandard:
		actor.Slots.StandardUsed = true
		if actor.Slots.moveStarted && !actor.Slots.moveClosed {
			actor.Slots.moveClosed = true
			d.closedMovement = true
		}
	case ActionBonus:
		actor.Slots.BonusUsed = true
		if actor.Slots.moveStarted && !actor.Slots.moveClosed {
			actor.Slots.moveClosed = true
			d.closedMovement = true
		}
	case ActionMove:
		actor.Slots.MovementUsed += d.Distance
		actor.Slots.moveStarted = true
	}

	e.log.Emit(Event{
		Kind:    EventActionDeclared,
		Round:   e.round,
		Actor:   d.Actor,
		Target:  d.Target,
		Payload: marshalPayload(DeclaredPayload{Declaration: d}),
	})

	if needsResolution(d) {
		e.pending[d.Actor] = &d
	}
	return &d, nil
}

// needsResolution reports whether a declaration must pass through one of the
// Resolve methods. Pure movement and flavor bonus actions resolve trivially
// at declaration time.
func needsResolution(d Declaration) bool {
	if d.Type == ActionMove {
		return false
	}
	return d.Check != "" || d.Formula != "" || d.Target != ""
}

// Withdraw cancels the actor's pending declaration before resolution begins
// and refunds the consumed availability flag. Once resolution has started
// the outcome is final; compensating events, not retraction, undo effects.
//
// Postcondition: Returns ErrNoDeclaration if nothing is pending for actorID.
func (e *Encounter) Withdraw(actorID string) error {
	d, ok := e.pending[actorID]
	if !ok {
		return ErrNoDeclaration
	}
	actor := e.byID[actorID]
	switch d.Type {
	case ActionStandard:
		actor.Slots.StandardUsed = false
	case ActionBonus:
		actor.Slots.BonusUsed = false
	case ActionReaction:
		actor.Slots.ReactionAvailable = true
	}
	if d.closedMovement {
		actor.Slots.moveClosed = false
	}
	delete(e.pending, actorID)
	return nil
}

// Pending returns the actor's unresolved declaration, if any.
func (e *Encounter) Pending(actorID string) (*Declaration, bool) {
	d, ok := e.pending[actorID]
	return d, ok
}

// End terminates the encounter explicitly, regardless of remaining sides.
//
// Postcondition: Over() is true; an EncounterEnded event is logged. Returns
// ErrEncounterTerminal if already over.
func (e *Encounter) End() error {
	if e.over {
		return ErrEncounterTerminal
	}
	e.finish(e.standingWinner())
	return nil
}

// standingWinner returns the name of the only side with combatants left
// standing, or "none" when zero or both sides still stand.
func (e *Encounter) standingWinner() string {
	var sides []Side
	for _, c := range e.combatants {
		if c.Defeated() {
			continue
		}
		found := false
		for _, s := range sides {
			if s == c.Side {
				found = true
				break
			}
		}
		if !found {
			sides = append(sides, c.Side)
		}
	}
	if len(sides) == 1 {
		return sides[0].String()
	}
	return "none"
}

// checkEnd finishes the encounter when at most one side has non-defeated
// combatants remaining.
func (e *Encounter) checkEnd() {
	standing := make(map[Side]bool)
	for _, c := range e.combatants {
		if !c.Defeated() {
			standing[c.Side] = true
		}
	}
	if len(standing) > 1 {
		return
	}
	e.finish(e.standingWinner())
}

// finish marks the encounter terminal and logs EncounterEnded.
func (e *Encounter) finish(winner string) {
	e.over = true
	e.winner = winner
	e.pending = make(map[string]*Declaration)
	var survivors []string
	for _, c := range e.combatants {
		if !c.Defeated() {
			survivors = append(survivors, c.ID)
		}
	}
	e.log.Emit(Event{
		Kind:  EventEncounterEnded,
		Round: e.round,
		Payload: marshalPayload(EndedPayload{
			Winner:    winner,
			Rounds:    e.round,
			Survivors: survivors,
		}),
	})
}
