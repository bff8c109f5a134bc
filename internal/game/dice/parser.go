package dice

import (
	"fmt"
	"strconv"
	"strings"
)

// Expression represents a parsed dice expression ready to be rolled.
// The modifier is either a flat integer or a named stat reference resolved
// at roll time; at most one of Modifier/StatRef is set after a successful Parse.
//
// Precondition: Count >= 1, Sides >= 2 after successful Parse.
type Expression struct {
	Raw         string // original input string
	Count       int    // number of dice
	Sides       int    // faces per die
	Modifier    int    // flat modifier (may be negative); 0 when StatRef is set
	StatRef     string // stat name to look up at roll time, e.g. "DEX"
	StatSign    int    // +1 or -1 when StatRef is set
	KeepHighest int    // if > 0, keep only the N highest dice (e.g. 4d6kh3)
}

// Parse parses a dice expression string into an Expression.
// Supported forms: "d20", "2d6", "2d6+3", "4d8-2", "4d6kh3", "1d20+DEX".
//
// Precondition: expr must be a non-empty string.
// Postcondition: Returns an Expression or an error wrapping ErrMalformedExpression.
func Parse(expr string) (Expression, error) {
	if strings.TrimSpace(expr) == "" {
		return Expression{}, fmt.Errorf("empty expression: %w", ErrMalformedExpression)
	}

	raw := expr
	s := strings.ReplaceAll(expr, " ", "")

	dIdx := strings.IndexAny(s, "dD")
	if dIdx < 0 {
		return Expression{}, fmt.Errorf("missing 'd' in expression %q: %w", raw, ErrMalformedExpression)
	}

	// Parse count (the part before 'd'); defaults to 1 when omitted.
	var count int
	countStr := s[:dIdx]
	if countStr == "" {
		count = 1
	} else {
		var err error
		count, err = strconv.Atoi(countStr)
		if err != nil {
			return Expression{}, fmt.Errorf("invalid die count in %q: %w", raw, ErrMalformedExpression)
		}
		if count <= 0 {
			return Expression{}, fmt.Errorf("die count in %q must be >= 1: %w", raw, ErrMalformedExpression)
		}
	}

	// Everything after 'd'.
	rest := strings.ToLower(s[dIdx+1:])
	// Preserve original casing for the stat reference lookup.
	restRaw := s[dIdx+1:]

	// Extract KeepHighest suffix ("kh<N>") before any modifier.
	keepHighest := 0
	if khIdx := strings.Index(rest, "kh"); khIdx >= 0 {
		khPart := rest[khIdx+2:]
		rest = rest[:khIdx]
		restRaw = restRaw[:khIdx]

		// khPart may still carry a modifier suffix; split it off.
		modOffset := -1
		for i := 1; i < len(khPart); i++ {
			if khPart[i] == '+' || khPart[i] == '-' {
				modOffset = i
				break
			}
		}

		var khStr string
		if modOffset >= 0 {
			khStr = khPart[:modOffset]
			rest = rest + khPart[modOffset:]
			restRaw = restRaw + khPart[modOffset:]
		} else {
			khStr = khPart
		}

		kh, err := strconv.Atoi(khStr)
		if err != nil {
			return Expression{}, fmt.Errorf("invalid kh value in %q: %w", raw, ErrMalformedExpression)
		}
		if kh <= 0 || kh >= count {
			return Expression{}, fmt.Errorf("kh value %d must be > 0 and < count %d in %q: %w", kh, count, raw, ErrMalformedExpression)
		}
		keepHighest = kh
	}

	// Parse sides and optional modifier from rest.
	// Find the first '+' or '-' that is not at position 0 (to skip a leading sign).
	modOffset := -1
	for i := 1; i < len(rest); i++ {
		if rest[i] == '+' || rest[i] == '-' {
			modOffset = i
			break
		}
	}

	var sidesStr, modStr string
	if modOffset >= 0 {
		sidesStr = rest[:modOffset]
		modStr = restRaw[modOffset:]
	} else {
		sidesStr = rest
		modStr = ""
	}

	sides, err := strconv.Atoi(sidesStr)
	if err != nil {
		return Expression{}, fmt.Errorf("invalid die sides in %q: %w", raw, ErrMalformedExpression)
	}
	if sides < 2 {
		return Expression{}, fmt.Errorf("die sides in %q must be >= 2: %w", raw, ErrMalformedExpression)
	}

	out := Expression{
		Raw:         raw,
		Count:       count,
		Sides:       sides,
		KeepHighest: keepHighest,
	}

	if modStr != "" {
		sign := +1
		if modStr[0] == '-' {
			sign = -1
		}
		body := modStr[1:]
		if body == "" {
			return Expression{}, fmt.Errorf("dangling modifier sign in %q: %w", raw, ErrMalformedExpression)
		}
		if n, err := strconv.Atoi(body); err == nil {
			out.Modifier = sign * n
		} else if isStatName(body) {
			out.StatRef = body
			out.StatSign = sign
		} else {
			return Expression{}, fmt.Errorf("invalid modifier %q in %q: %w", modStr, raw, ErrMalformedExpression)
		}
	}

	return out, nil
}

// isStatName reports whether s is a valid stat reference: letters and
// underscores only, non-empty.
func isStatName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_') {
			return false
		}
	}
	return true
}

// MustParse parses expr and panics on error. Useful for package-level constants.
//
// Precondition: expr must be a valid dice expression.
func MustParse(expr string) Expression {
	e, err := Parse(expr)
	if err != nil {
		panic("dice: MustParse failed for expression " + expr + ": " + err.Error())
	}
	return e
}
