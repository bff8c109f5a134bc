// Package ruleset loads and validates ruleset bindings: the externally
// supplied mapping from abstract check names to dice formulas plus the
// policy knobs the combat engine consults during an encounter.
package ruleset

import (
	"errors"
	"fmt"

	"github.com/hollowhost/hollowhost/internal/game/dice"
)

// ErrUnknownCheck is returned when a check name has no bound formula.
var ErrUnknownCheck = errors.New("unknown check name")

// TiebreakDefender resolves opposed-roll ties in favor of the defender.
const TiebreakDefender = "defender"

// TiebreakAttacker resolves opposed-roll ties in favor of the attacker.
const TiebreakAttacker = "attacker"

// Critical configures critical-result handling. A zero Threshold disables
// criticals entirely; the engine never invents critical behavior the
// binding does not declare.
type Critical struct {
	// Threshold is the minimum natural die value that triggers a critical.
	// For a d20 ruleset this is typically 20. 0 = no critical handling.
	Threshold int `yaml:"threshold"`
	// Multiplier scales damage on a critical hit. Ignored when Threshold is 0.
	Multiplier int `yaml:"multiplier"`
}

// Binding is one complete ruleset binding, immutable for the duration of an
// encounter. Loaded from YAML; see content/rulesets for examples.
type Binding struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Initiative is the initiative formula (e.g. "1d20+DEX"). Required
	// unless the engine is configured with a default.
	Initiative string `yaml:"initiative"`
	// Checks maps abstract check names ("attack", "stealth", ...) to formulas.
	Checks map[string]string `yaml:"checks"`
	// Damage maps weapon/attack names to damage formulas; the key "default"
	// is used when a declaration names no weapon.
	Damage map[string]string `yaml:"damage"`

	Critical Critical `yaml:"critical"`

	// TiebreakStat names the combatant stat that breaks initiative ties.
	TiebreakStat string `yaml:"tiebreak_stat"`
	// OpposedTieWinner is "defender" (default) or "attacker".
	OpposedTieWinner string `yaml:"opposed_tie_winner"`
	// HitOnEqual controls the attack comparison: true = total >= defense
	// hits (default), false = total must exceed defense.
	HitOnEqual *bool `yaml:"hit_on_equal"`
	// SplitMovement permits splitting the movement budget around other
	// actions within the same turn.
	SplitMovement bool `yaml:"split_movement"`
	// RerollInitiativeEachRound re-rolls initiative at the top of every round.
	RerollInitiativeEachRound bool `yaml:"reroll_initiative_each_round"`
}

// FormulaFor returns the bound formula for the named check.
//
// Postcondition: Returns a parseable formula string or an error wrapping
// ErrUnknownCheck.
func (b *Binding) FormulaFor(check string) (string, error) {
	f, ok := b.Checks[check]
	if !ok {
		return "", fmt.Errorf("check %q in ruleset %q: %w", check, b.ID, ErrUnknownCheck)
	}
	return f, nil
}

// DamageFor returns the damage formula for the named weapon, falling back
// to the "default" entry.
//
// Postcondition: Returns a parseable formula string or an error wrapping
// ErrUnknownCheck.
func (b *Binding) DamageFor(weapon string) (string, error) {
	if weapon != "" {
		if f, ok := b.Damage[weapon]; ok {
			return f, nil
		}
	}
	if f, ok := b.Damage["default"]; ok {
		return f, nil
	}
	return "", fmt.Errorf("damage formula for %q in ruleset %q: %w", weapon, b.ID, ErrUnknownCheck)
}

// HitsOnEqual reports whether an attack total equal to the defense value hits.
func (b *Binding) HitsOnEqual() bool {
	if b.HitOnEqual == nil {
		return true
	}
	return *b.HitOnEqual
}

// DefenderWinsTies reports whether opposed-roll ties go to the defender.
func (b *Binding) DefenderWinsTies() bool {
	return b.OpposedTieWinner != TiebreakAttacker
}

// Validate checks all binding invariants, including that every formula parses.
//
// Postcondition: Returns nil if the binding is valid, or an error describing
// all violations.
func (b *Binding) Validate() error {
	var errs []error

	if b.ID == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if b.Initiative != "" {
		if _, err := dice.Parse(b.Initiative); err != nil {
			errs = append(errs, fmt.Errorf("initiative formula: %w", err))
		}
	}
	for name, f := range b.Checks {
		if _, err := dice.Parse(f); err != nil {
			errs = append(errs, fmt.Errorf("check %q: %w", name, err))
		}
	}
	for name, f := range b.Damage {
		if _, err := dice.Parse(f); err != nil {
			errs = append(errs, fmt.Errorf("damage %q: %w", name, err))
		}
	}
	if b.OpposedTieWinner != "" && b.OpposedTieWinner != TiebreakDefender && b.OpposedTieWinner != TiebreakAttacker {
		errs = append(errs, fmt.Errorf("opposed_tie_winner must be %q or %q, got %q",
			TiebreakDefender, TiebreakAttacker, b.OpposedTieWinner))
	}
	if b.Critical.Threshold < 0 {
		errs = append(errs, errors.New("critical.threshold must be >= 0"))
	}
	if b.Critical.Threshold > 0 && b.Critical.Multiplier < 1 {
		errs = append(errs, errors.New("critical.multiplier must be >= 1 when a threshold is set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("ruleset %q: %w", b.ID, errors.Join(errs...))
	}
	return nil
}
