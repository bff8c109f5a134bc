package encounter

// ActionType identifies which action-economy slot a declaration consumes.
// The zero value (ActionUnknown) is intentionally invalid.
type ActionType int

const (
	ActionUnknown ActionType = iota // zero value; intentionally invalid
	ActionStandard
	ActionMove
	ActionBonus
	ActionReaction
)

// String returns the human-readable name of the ActionType.
func (a ActionType) String() string {
	switch a {
	case ActionStandard:
		return "standard"
	case ActionMove:
		return "move"
	case ActionBonus:
		return "bonus"
	case ActionReaction:
		return "reaction"
	default:
		return "unknown"
	}
}

// ParseActionType maps a type name to its ActionType.
//
// Postcondition: Returns ActionUnknown for unrecognized names.
func ParseActionType(s string) ActionType {
	switch s {
	case "standard":
		return ActionStandard
	case "move":
		return ActionMove
	case "bonus":
		return ActionBonus
	case "reaction":
		return ActionReaction
	default:
		return ActionUnknown
	}
}

// Declaration is one declared action, created per action and consumed by
// resolution. At most one unresolved Declaration per actor is in flight.
type Declaration struct {
	// Actor is the declaring combatant's ID.
	Actor string `json:"actor"`
	// Type is the action-economy slot this declaration consumes.
	Type ActionType `json:"type"`
	// Target is the target combatant's ID, when the action has one.
	Target string `json:"target,omitempty"`

	// Check is the abstract check name resolved through the ruleset binding
	// (e.g. "attack", "stealth"). Defaults to "attack" for attack resolution.
	Check string `json:"check,omitempty"`
	// Weapon selects the damage formula; empty uses the binding's default.
	Weapon string `json:"weapon,omitempty"`
	// Formula, when set, overrides the bound check formula (e.g. /roll input).
	Formula string `json:"formula,omitempty"`

	// Distance is the movement requested by a Move declaration.
	Distance int `json:"distance,omitempty"`

	// Trigger names the qualifying external event for a Reaction declaration.
	Trigger string `json:"trigger,omitempty"`

	// ApplyEffect names a status effect applied to the target on success.
	ApplyEffect string `json:"apply_effect,omitempty"`
	// EffectDuration is the duration in rounds for ApplyEffect; -1 = permanent.
	EffectDuration int `json:"effect_duration,omitempty"`

	// closedMovement records that this declaration was the one that locked
	// the actor's remaining movement, so Withdraw can reopen it.
	closedMovement bool
}
