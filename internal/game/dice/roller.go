package dice

import (
	"fmt"
	"sort"
)

// Roll evaluates an Expression using the given Source and returns a RollResult.
// Stat references are resolved against ctx; a nil ctx resolves nothing.
//
// Precondition: expr must come from Parse (Count >= 1, Sides >= 2); src must be non-nil.
// Postcondition: len(result.Dice) == expr.Count when KeepHighest == 0, or
//
//	len(result.Dice) == expr.KeepHighest when KeepHighest > 0.
//	result.Total() == sum(result.Dice) + result.Modifier.
func Roll(expr Expression, ctx StatContext, src Source) (RollResult, error) {
	modifier := expr.Modifier
	if expr.StatRef != "" {
		if ctx == nil {
			return RollResult{}, fmt.Errorf("stat %q in %q: %w", expr.StatRef, expr.Raw, ErrUnknownStatReference)
		}
		v, ok := ctx.Stat(expr.StatRef)
		if !ok {
			return RollResult{}, fmt.Errorf("stat %q in %q: %w", expr.StatRef, expr.Raw, ErrUnknownStatReference)
		}
		modifier = expr.StatSign * v
	}

	rolled := make([]int, expr.Count)
	for i := range rolled {
		rolled[i] = src.Intn(expr.Sides) + 1
	}

	kept := rolled
	if expr.KeepHighest > 0 {
		sorted := make([]int, len(rolled))
		copy(sorted, rolled)
		sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
		kept = sorted[:expr.KeepHighest]
	}

	return RollResult{
		Expression: expr.Raw,
		Dice:       kept,
		Modifier:   modifier,
		StatRef:    expr.StatRef,
	}, nil
}

// RollExpr parses expr and rolls it using ctx and src in a single call.
//
// Precondition: expr must be a valid dice expression string; src must be non-nil.
// Postcondition: Returns a RollResult or a parse/roll error.
func RollExpr(expr string, ctx StatContext, src Source) (RollResult, error) {
	e, err := Parse(expr)
	if err != nil {
		return RollResult{}, err
	}
	return Roll(e, ctx, src)
}
