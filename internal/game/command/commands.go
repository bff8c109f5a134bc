// Package command provides the command parser, registry, and the mapping
// from player-entered text lines to combat action declarations.
package command

// Categories for organizing commands.
const (
	CategoryCombat = "combat"
	CategoryInfo   = "info"
	CategorySystem = "system"
)

// Handler identifiers mapping commands to session operations.
const (
	HandlerRoll     = "roll"
	HandlerAttack   = "attack"
	HandlerCheck    = "check"
	HandlerMove     = "move"
	HandlerBonus    = "bonus"
	HandlerReact    = "react"
	HandlerWithdraw = "withdraw"
	HandlerPass     = "pass"
	HandlerStatus   = "status"
	HandlerLog      = "log"
	HandlerOrder    = "order"
	HandlerEnd      = "end"
	HandlerHelp     = "help"
	HandlerQuit     = "quit"
)

// Command defines a player-invocable command.
type Command struct {
	// Name is the canonical command name.
	Name string
	// Aliases are alternate names for this command.
	Aliases []string
	// Help is the short help text displayed to players.
	Help string
	// Category groups the command (combat, info, system).
	Category string
	// Handler maps to the session operation that serves the command.
	Handler string
}

// BuiltinCommands returns all built-in commands for the combat host.
func BuiltinCommands() []Command {
	return []Command{
		// Combat commands
		{Name: "attack", Aliases: []string{"att", "a"}, Help: "Attack a target (attack <target> [weapon])", Category: CategoryCombat, Handler: HandlerAttack},
		{Name: "check", Aliases: []string{"ch"}, Help: "Make a skill check (check <name> [difficulty])", Category: CategoryCombat, Handler: HandlerCheck},
		{Name: "move", Aliases: []string{"mv"}, Help: "Spend movement (move <distance>)", Category: CategoryCombat, Handler: HandlerMove},
		{Name: "bonus", Aliases: []string{"b"}, Help: "Use your bonus action (bonus [description])", Category: CategoryCombat, Handler: HandlerBonus},
		{Name: "react", Aliases: []string{"r"}, Help: "Use your reaction out of turn (react <trigger>)", Category: CategoryCombat, Handler: HandlerReact},
		{Name: "withdraw", Aliases: []string{"wd"}, Help: "Cancel your unresolved declaration", Category: CategoryCombat, Handler: HandlerWithdraw},
		{Name: "pass", Aliases: []string{"p"}, Help: "End your turn", Category: CategoryCombat, Handler: HandlerPass},
		{Name: "roll", Aliases: nil, Help: "Roll dice (roll <formula>, e.g. roll 2d6+3)", Category: CategoryCombat, Handler: HandlerRoll},

		// Info commands
		{Name: "status", Aliases: []string{"st"}, Help: "Show combatants, hit points, and active effects", Category: CategoryInfo, Handler: HandlerStatus},
		{Name: "order", Aliases: []string{"init"}, Help: "Show the initiative order", Category: CategoryInfo, Handler: HandlerOrder},
		{Name: "log", Aliases: nil, Help: "Show the combat log (log [since])", Category: CategoryInfo, Handler: HandlerLog},

		// System commands
		{Name: "end", Aliases: nil, Help: "End the encounter", Category: CategorySystem, Handler: HandlerEnd},
		{Name: "help", Aliases: []string{"?"}, Help: "Show available commands", Category: CategorySystem, Handler: HandlerHelp},
		{Name: "quit", Aliases: []string{"exit"}, Help: "Leave the host", Category: CategorySystem, Handler: HandlerQuit},
	}
}
