package encounter

import (
	"fmt"

	"github.com/hollowhost/hollowhost/internal/game/dice"
	"github.com/hollowhost/hollowhost/internal/game/effect"
)

// Resolution kinds recorded in Resolution.Kind.
const (
	ResolutionAttack  = "attack"
	ResolutionOpposed = "opposed"
	ResolutionSkill   = "skill"
	ResolutionStatus  = "status"
)

// Resolution is the immutable outcome of one resolved action. Once produced
// it is appended to the encounter log and never modified.
type Resolution struct {
	Kind   string `json:"kind"`
	Actor  string `json:"actor"`
	Target string `json:"target,omitempty"`

	Roll       dice.RollResult `json:"roll"`
	Total      int             `json:"total"` // roll total after status-effect modifiers
	Success    bool            `json:"success"`
	Critical   bool            `json:"critical,omitempty"`
	Margin     int             `json:"margin,omitempty"`
	Defense    int             `json:"defense,omitempty"`    // attack: effective defense compared against
	Difficulty int             `json:"difficulty,omitempty"` // skill: threshold compared against

	DamageRoll *dice.RollResult `json:"damage_roll,omitempty"`
	Damage     int              `json:"damage"`
	TargetHP   int              `json:"target_hp,omitempty"` // target's HP after damage

	// Opposed-roll fields.
	OpposedRoll  *dice.RollResult `json:"opposed_roll,omitempty"`
	OpposedTotal int              `json:"opposed_total,omitempty"`
	Winner       string           `json:"winner,omitempty"`

	AppliedEffect string `json:"applied_effect,omitempty"`
}

// takePending consumes the actor's pending declaration, verifying one exists.
func (e *Encounter) takePending(actorID string) (*Declaration, error) {
	d, ok := e.pending[actorID]
	if !ok {
		return nil, fmt.Errorf("actor %q: %w", actorID, ErrNoDeclaration)
	}
	delete(e.pending, actorID)
	return d, nil
}

// checkFormula returns the parsed formula for d: an explicit Formula
// override wins, otherwise the binding's formula for d.Check (defaulting to
// fallbackCheck when d.Check is empty).
func (e *Encounter) checkFormula(d *Declaration, fallbackCheck string) (dice.Expression, error) {
	raw := d.Formula
	if raw == "" {
		check := d.Check
		if check == "" {
			check = fallbackCheck
		}
		var err error
		raw, err = e.binding.FormulaFor(check)
		if err != nil {
			return dice.Expression{}, err
		}
	}
	return dice.Parse(raw)
}

// isCritical reports whether a roll triggers the binding's critical rule.
// With no declared threshold there is no critical handling. The highest
// natural die is compared against the threshold.
func (e *Encounter) isCritical(r dice.RollResult) bool {
	if e.binding.Critical.Threshold <= 0 {
		return false
	}
	for _, d := range r.Dice {
		if d >= e.binding.Critical.Threshold {
			return true
		}
	}
	return false
}

// ResolveAttack resolves a pending attack declaration: rolls the attacker's
// check formula, compares the modified total against the target's effective
// defense, and on a hit rolls damage and applies it. A critical result (per
// the binding's declared threshold) multiplies damage by the binding's
// multiplier. The outcome is final once this method is invoked.
//
// Postcondition: Returns the Resolution (also logged as ActionResolved), or
// an error leaving the encounter unchanged. A hit that defeats the last
// opposing side logs EncounterEnded.
func (e *Encounter) ResolveAttack(d Declaration) (Resolution, error) {
	if e.over {
		return Resolution{}, ErrEncounterTerminal
	}
	actor, ok := e.byID[d.Actor]
	if !ok {
		return Resolution{}, fmt.Errorf("actor %q: %w", d.Actor, ErrUnknownCombatant)
	}
	target, ok := e.byID[d.Target]
	if !ok {
		return Resolution{}, fmt.Errorf("target %q: %w", d.Target, ErrUnknownCombatant)
	}

	attackExpr, err := e.checkFormula(&d, "attack")
	if err != nil {
		return Resolution{}, err
	}
	damageRaw, err := e.binding.DamageFor(d.Weapon)
	if err != nil {
		return Resolution{}, err
	}
	damageExpr, err := dice.Parse(damageRaw)
	if err != nil {
		return Resolution{}, err
	}

	if _, err := e.takePending(d.Actor); err != nil {
		return Resolution{}, err
	}

	roll, err := dice.Roll(attackExpr, actor, e.src)
	if err != nil {
		return Resolution{}, err
	}
	total := roll.Total() + effect.AttackBonus(actor.Effects)
	defense := target.EffectiveDefense()

	hit := total > defense || (total == defense && e.binding.HitsOnEqual())
	crit := e.isCritical(roll)

	res := Resolution{
		Kind:     ResolutionAttack,
		Actor:    d.Actor,
		Target:   d.Target,
		Roll:     roll,
		Total:    total,
		Defense:  defense,
		Success:  hit,
		Critical: crit,
		Margin:   total - defense,
		TargetHP: target.HP,
	}

	if hit {
		dmgRoll, err := dice.Roll(damageExpr, actor, e.src)
		if err != nil {
			return Resolution{}, err
		}
		dmg := dmgRoll.Total()
		if dmg < 0 {
			dmg = 0
		}
		if crit && e.binding.Critical.Multiplier > 1 {
			dmg *= e.binding.Critical.Multiplier
		}
		target.ApplyDamage(dmg)
		res.DamageRoll = &dmgRoll
		res.Damage = dmg
		res.TargetHP = target.HP
	}

	e.log.Emit(Event{
		Kind:    EventActionResolved,
		Round:   e.round,
		Actor:   d.Actor,
		Target:  d.Target,
		Payload: marshalPayload(ResolvedPayload{Resolution: res}),
	})

	if hit && d.ApplyEffect != "" && !target.Defeated() {
		e.applyStatus(target, d.ApplyEffect, 1, d.EffectDuration)
	}

	e.checkEnd()
	return res, nil
}

// ResolveOpposed resolves an opposed check between two declarations: both
// sides roll their respective formulas; the higher modified total wins, and
// an exact tie goes to the binding's configured winner (defender by
// default). declB is treated as the defending side.
//
// Postcondition: Returns the Resolution naming the winner and both totals,
// or an error leaving the encounter unchanged.
func (e *Encounter) ResolveOpposed(declA, declB Declaration) (Resolution, error) {
	if e.over {
		return Resolution{}, ErrEncounterTerminal
	}
	a, ok := e.byID[declA.Actor]
	if !ok {
		return Resolution{}, fmt.Errorf("actor %q: %w", declA.Actor, ErrUnknownCombatant)
	}
	b, ok := e.byID[declB.Actor]
	if !ok {
		return Resolution{}, fmt.Errorf("actor %q: %w", declB.Actor, ErrUnknownCombatant)
	}

	exprA, err := e.checkFormula(&declA, "opposed")
	if err != nil {
		return Resolution{}, err
	}
	exprB, err := e.checkFormula(&declB, "opposed")
	if err != nil {
		return Resolution{}, err
	}

	// Only the initiating side is required to hold a pending declaration;
	// the defender's response may be ad hoc.
	if _, held := e.pending[declA.Actor]; held {
		delete(e.pending, declA.Actor)
	}
	delete(e.pending, declB.Actor)

	rollA, err := dice.Roll(exprA, a, e.src)
	if err != nil {
		return Resolution{}, err
	}
	rollB, err := dice.Roll(exprB, b, e.src)
	if err != nil {
		return Resolution{}, err
	}
	totalA := rollA.Total() + effect.CheckBonus(a.Effects)
	totalB := rollB.Total() + effect.CheckBonus(b.Effects)

	winner := declA.Actor
	switch {
	case totalB > totalA:
		winner = declB.Actor
	case totalA == totalB && e.binding.DefenderWinsTies():
		winner = declB.Actor
	}

	res := Resolution{
		Kind:         ResolutionOpposed,
		Actor:        declA.Actor,
		Target:       declB.Actor,
		Roll:         rollA,
		Total:        totalA,
		OpposedRoll:  &rollB,
		OpposedTotal: totalB,
		Winner:       winner,
		Success:      winner == declA.Actor,
		Margin:       totalA - totalB,
	}

	e.log.Emit(Event{
		Kind:    EventActionResolved,
		Round:   e.round,
		Actor:   declA.Actor,
		Target:  declB.Actor,
		Payload: marshalPayload(ResolvedPayload{Resolution: res}),
	})
	return res, nil
}

// ResolveSkillCheck resolves a pending skill-check declaration against a
// fixed difficulty threshold. Success or failure only; no damage.
//
// Postcondition: Returns the Resolution, or an error leaving the encounter
// unchanged.
func (e *Encounter) ResolveSkillCheck(d Declaration, difficulty int) (Resolution, error) {
	if e.over {
		return Resolution{}, ErrEncounterTerminal
	}
	actor, ok := e.byID[d.Actor]
	if !ok {
		return Resolution{}, fmt.Errorf("actor %q: %w", d.Actor, ErrUnknownCombatant)
	}

	expr, err := e.checkFormula(&d, d.Check)
	if err != nil {
		return Resolution{}, err
	}

	if _, err := e.takePending(d.Actor); err != nil {
		return Resolution{}, err
	}

	roll, err := dice.Roll(expr, actor, e.src)
	if err != nil {
		return Resolution{}, err
	}
	total := roll.Total() + effect.CheckBonus(actor.Effects)

	res := Resolution{
		Kind:       ResolutionSkill,
		Actor:      d.Actor,
		Roll:       roll,
		Total:      total,
		Difficulty: difficulty,
		Success:    total >= difficulty,
		Critical:   e.isCritical(roll),
		Margin:     total - difficulty,
	}

	e.log.Emit(Event{
		Kind:    EventActionResolved,
		Round:   e.round,
		Actor:   d.Actor,
		Payload: marshalPayload(ResolvedPayload{Resolution: res}),
	})
	return res, nil
}

// ApplyStatus applies the named status effect to a combatant and logs
// StatusApplied. Used for declaration side effects and by external
// effect-hook runners (e.g. scripted ticks).
//
// Postcondition: Returns ErrUnknownCombatant or an error when the effect
// definition is unknown; otherwise the effect is active on the target.
func (e *Encounter) ApplyStatus(combatantID, effectID string, stacks, duration int) error {
	if e.over {
		return ErrEncounterTerminal
	}
	c, ok := e.byID[combatantID]
	if !ok {
		return fmt.Errorf("combatant %q: %w", combatantID, ErrUnknownCombatant)
	}
	return e.applyStatusTo(c, effectID, stacks, duration)
}

func (e *Encounter) applyStatus(c *Combatant, effectID string, stacks, duration int) {
	// Best effort for declaration side effects; unknown IDs are skipped
	// rather than failing a resolution that already completed.
	_ = e.applyStatusTo(c, effectID, stacks, duration)
}

func (e *Encounter) applyStatusTo(c *Combatant, effectID string, stacks, duration int) error {
	if e.effects == nil {
		return fmt.Errorf("no effect registry configured for effect %q", effectID)
	}
	def, ok := e.effects.Get(effectID)
	if !ok {
		return fmt.Errorf("unknown effect %q", effectID)
	}
	if err := c.Effects.Apply(def, stacks, duration); err != nil {
		return err
	}
	e.log.Emit(Event{
		Kind:  EventStatusApplied,
		Round: e.round,
		Actor: c.ID,
		Payload: marshalPayload(StatusPayload{
			Effect:   effectID,
			Stacks:   c.Effects.Stacks(effectID),
			Duration: duration,
		}),
	})
	return nil
}

// RemoveStatus removes an active status effect, logging a compensating
// StatusExpired event (the original StatusApplied is never retracted).
func (e *Encounter) RemoveStatus(combatantID, effectID string) error {
	c, ok := e.byID[combatantID]
	if !ok {
		return fmt.Errorf("combatant %q: %w", combatantID, ErrUnknownCombatant)
	}
	if !c.Effects.Has(effectID) {
		return nil
	}
	c.Effects.Remove(effectID)
	e.log.Emit(Event{
		Kind:    EventStatusExpired,
		Round:   e.round,
		Actor:   combatantID,
		Payload: marshalPayload(StatusPayload{Effect: effectID}),
	})
	return nil
}

// ApplyStatusDamage applies direct damage attributed to a status effect
// (e.g. a scripted poison tick) and logs it as a status-kind resolution.
//
// Postcondition: Damage is applied and logged; terminal detection runs.
func (e *Encounter) ApplyStatusDamage(combatantID, effectID string, amount int) error {
	if e.over {
		return ErrEncounterTerminal
	}
	c, ok := e.byID[combatantID]
	if !ok {
		return fmt.Errorf("combatant %q: %w", combatantID, ErrUnknownCombatant)
	}
	if amount < 0 {
		amount = 0
	}
	c.ApplyDamage(amount)
	res := Resolution{
		Kind:     ResolutionStatus,
		Actor:    effectID,
		Target:   combatantID,
		Success:  true,
		Damage:   amount,
		TargetHP: c.HP,
	}
	e.log.Emit(Event{
		Kind:    EventActionResolved,
		Round:   e.round,
		Actor:   effectID,
		Target:  combatantID,
		Payload: marshalPayload(ResolvedPayload{Resolution: res}),
	})
	e.checkEnd()
	return nil
}
