package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hollowhost/hollowhost/internal/game/encounter"
)

// ErrUsage is returned when a combat command's arguments are missing or
// malformed; the wrapping error carries the command's usage string.
var ErrUsage = errors.New("invalid command usage")

// BuildDeclaration translates a parsed combat command into the action
// declaration the encounter engine consumes. Only combat-category commands
// that declare actions are supported; info and system commands are handled
// by the session directly.
//
// Postcondition: Returns a Declaration attributed to actorID, or an error
// wrapping ErrUsage.
func BuildDeclaration(actorID string, cmd *Command, res ParseResult) (encounter.Declaration, error) {
	switch cmd.Handler {
	case HandlerAttack:
		if len(res.Args) < 1 {
			return encounter.Declaration{}, fmt.Errorf("%s: %w", cmd.Help, ErrUsage)
		}
		d := encounter.Declaration{
			Actor:  actorID,
			Type:   encounter.ActionStandard,
			Target: res.Args[0],
			Check:  "attack",
		}
		if len(res.Args) > 1 {
			d.Weapon = res.Args[1]
		}
		return d, nil

	case HandlerCheck:
		if len(res.Args) < 1 {
			return encounter.Declaration{}, fmt.Errorf("%s: %w", cmd.Help, ErrUsage)
		}
		return encounter.Declaration{
			Actor: actorID,
			Type:  encounter.ActionStandard,
			Check: res.Args[0],
		}, nil

	case HandlerMove:
		if len(res.Args) < 1 {
			return encounter.Declaration{}, fmt.Errorf("%s: %w", cmd.Help, ErrUsage)
		}
		dist, err := strconv.Atoi(res.Args[0])
		if err != nil || dist <= 0 {
			return encounter.Declaration{}, fmt.Errorf("distance must be a positive integer: %w", ErrUsage)
		}
		return encounter.Declaration{
			Actor:    actorID,
			Type:     encounter.ActionMove,
			Distance: dist,
		}, nil

	case HandlerBonus:
		return encounter.Declaration{
			Actor: actorID,
			Type:  encounter.ActionBonus,
		}, nil

	case HandlerReact:
		if res.RawArgs == "" {
			return encounter.Declaration{}, fmt.Errorf("%s: %w", cmd.Help, ErrUsage)
		}
		return encounter.Declaration{
			Actor:   actorID,
			Type:    encounter.ActionReaction,
			Trigger: res.RawArgs,
		}, nil

	case HandlerRoll:
		if len(res.Args) < 1 {
			return encounter.Declaration{}, fmt.Errorf("%s: %w", cmd.Help, ErrUsage)
		}
		return encounter.Declaration{
			Actor:   actorID,
			Type:    encounter.ActionStandard,
			Formula: res.Args[0],
		}, nil

	default:
		return encounter.Declaration{}, fmt.Errorf("command %q does not declare an action: %w", cmd.Name, ErrUsage)
	}
}

// CheckDifficulty extracts the optional difficulty argument of a check
// command (check <name> [difficulty]), defaulting to def.
func CheckDifficulty(res ParseResult, def int) (int, error) {
	if len(res.Args) < 2 {
		return def, nil
	}
	dc, err := strconv.Atoi(res.Args[1])
	if err != nil {
		return 0, fmt.Errorf("difficulty %q must be an integer: %w", res.Args[1], ErrUsage)
	}
	return dc, nil
}

// LogSince extracts the optional sequence argument of the log command.
func LogSince(res ParseResult) (uint64, error) {
	if len(res.Args) == 0 {
		return 0, nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(res.Args[0]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sequence %q must be a non-negative integer: %w", res.Args[0], ErrUsage)
	}
	return n, nil
}
