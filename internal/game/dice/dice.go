// Package dice provides the randomness abstraction, expression parsing, and
// roll-result types for the Hollow Host combat engine.
package dice

import (
	"errors"
	"fmt"
)

// ErrMalformedExpression is returned when a dice expression cannot be parsed.
var ErrMalformedExpression = errors.New("malformed dice expression")

// ErrUnknownStatReference is returned when an expression references a stat
// name that the supplied StatContext does not provide.
var ErrUnknownStatReference = errors.New("unknown stat reference")

// StatContext resolves named stat modifiers referenced by expressions such
// as "1d20+DEX". Implementations must treat names as case-sensitive.
type StatContext interface {
	// Stat returns the modifier value for name and whether it exists.
	Stat(name string) (int, bool)
}

// Stats is a map-backed StatContext.
type Stats map[string]int

// Stat returns the modifier for name, or (0, false) when absent.
func (s Stats) Stat(name string) (int, bool) {
	v, ok := s[name]
	return v, ok
}

// RollResult holds the full audit trail for a single dice roll evaluation.
//
// Postcondition: Total() == sum(Dice) + Modifier.
type RollResult struct {
	Expression string // original expression string, e.g. "2d6+3" or "1d20+DEX"
	Dice       []int  // individual die results before modifier
	Modifier   int    // resolved flat modifier (stat references already applied)
	StatRef    string // stat name the modifier came from, if any
}

// Total returns the sum of all die results plus the modifier.
//
// Postcondition: return value == sum(r.Dice) + r.Modifier.
func (r RollResult) Total() int {
	total := r.Modifier
	for _, d := range r.Dice {
		total += d
	}
	return total
}

// String returns a human-readable audit string in the format:
//
//	"2d6+3 → [4 5] +3 = 12"
//
// Precondition: r.Expression is non-empty.
func (r RollResult) String() string {
	if r.Expression == "" {
		panic("dice: RollResult.String() precondition violated: Expression must be non-empty")
	}
	diceStr := fmt.Sprintf("%v", r.Dice)
	modStr := fmt.Sprintf("%+d", r.Modifier)
	return fmt.Sprintf("%s → %s %s = %d", r.Expression, diceStr, modStr, r.Total())
}

// Source is the randomness provider for dice rolls.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}
