package encounter

import "errors"

// Validation errors surfaced synchronously to callers. Every rejected
// operation leaves the Encounter unchanged.
var (
	// ErrInvalidRuleset is returned when the ruleset binding lacks an
	// initiative formula and no engine default is configured.
	ErrInvalidRuleset = errors.New("ruleset has no initiative formula and no default is configured")

	// ErrEmptyEncounter is returned when an encounter is started with zero combatants.
	ErrEmptyEncounter = errors.New("encounter requires at least one combatant")

	// ErrEncounterTerminal is returned for any operation on a finished encounter.
	ErrEncounterTerminal = errors.New("encounter is terminal")

	// ErrNotYourTurn is returned when a non-reaction action is declared out of turn.
	ErrNotYourTurn = errors.New("not your turn")

	// ErrActionAlreadyUsed is returned when the action slot for the declared
	// type was already consumed this round.
	ErrActionAlreadyUsed = errors.New("action already used this round")

	// ErrInvalidActionType is returned for an unrecognized action type.
	ErrInvalidActionType = errors.New("invalid action type")

	// ErrInsufficientMovement is returned when a move exceeds the remaining
	// movement budget.
	ErrInsufficientMovement = errors.New("insufficient movement budget")

	// ErrActionRestricted is returned when an active status effect forbids
	// the declared action type.
	ErrActionRestricted = errors.New("action restricted by status effect")

	// ErrDeclarationPending is returned when an actor declares a second
	// action while one is still awaiting resolution.
	ErrDeclarationPending = errors.New("declaration already pending resolution")

	// ErrNoDeclaration is returned when resolution or withdrawal is requested
	// for an actor with no pending declaration.
	ErrNoDeclaration = errors.New("no pending declaration")

	// ErrUnknownCombatant is returned when a declaration names an actor or
	// target not present in the encounter.
	ErrUnknownCombatant = errors.New("unknown combatant")
)
