// Package encounter implements the turn-based combat resolution engine:
// initiative ordering, turn and round progression, action economy
// enforcement, dice-based outcome resolution, and the append-only event log.
//
// An Encounter is a single-threaded state machine. Exactly one transition is
// applied at a time and the engine performs no internal locking; callers must
// serialise access to one Encounter (independent Encounters may run in
// parallel).
package encounter

import (
	"github.com/hollowhost/hollowhost/internal/game/dice"
	"github.com/hollowhost/hollowhost/internal/game/effect"
)

// Side distinguishes the two opposing groups in an encounter.
type Side int

const (
	SidePlayers Side = iota
	SideOpponents
)

// String returns a human-readable side label.
func (s Side) String() string {
	switch s {
	case SidePlayers:
		return "players"
	case SideOpponents:
		return "opponents"
	default:
		return "unknown"
	}
}

// Slots tracks one combatant's per-round action economy.
//
// Standard, move, and bonus availability resets at the start of the
// combatant's own turn; reaction availability resets for everyone at the
// start of each round and is consumed out of turn.
type Slots struct {
	StandardUsed      bool
	BonusUsed         bool
	ReactionAvailable bool

	// MovementUsed is the distance consumed from the movement budget this round.
	MovementUsed int
	// moveStarted is true once any movement was declared this round.
	moveStarted bool
	// moveClosed is true once a non-move action followed movement; without
	// the split_movement policy, further movement is then forbidden.
	moveClosed bool
}

// resetTurn restores the per-turn action slots (standard/move/bonus).
func (s *Slots) resetTurn() {
	s.StandardUsed = false
	s.BonusUsed = false
	s.MovementUsed = 0
	s.moveStarted = false
	s.moveClosed = false
}

// Combatant represents one participant for the lifetime of an encounter.
// The authoritative character record lives in an external character store
// and is synchronized at encounter start and end.
type Combatant struct {
	// ID uniquely identifies the combatant within the encounter.
	ID string
	// Name is the display name used in event payloads.
	Name string
	// Side is the combatant's team for terminal detection.
	Side Side

	// Stats provides named modifiers for formula references like "1d20+DEX".
	Stats dice.Stats

	MaxHP   int
	HP      int
	Defense int
	// Speed is the per-round movement budget.
	Speed int

	// Initiative is the score computed (or accepted) at encounter start.
	Initiative int
	// PresetInitiative, when non-nil, is used instead of rolling.
	PresetInitiative *int

	// tiebreak is the declared secondary stat value used to break
	// initiative ties, captured at encounter start.
	tiebreak int
	// regIndex is the stable registration order, the final tie-break.
	regIndex int

	Slots   Slots
	Effects *effect.ActiveSet
}

// Stat implements dice.StatContext.
func (c *Combatant) Stat(name string) (int, bool) {
	return c.Stats.Stat(name)
}

// Defeated reports whether the combatant is out of the fight (zero hit points).
func (c *Combatant) Defeated() bool { return c.HP <= 0 }

// Active reports whether the combatant takes turns: not defeated and not
// incapacitated by a status effect. Inactive combatants are passed over but
// remain in the order.
func (c *Combatant) Active() bool {
	return !c.Defeated() && !effect.Incapacitated(c.Effects)
}

// ApplyDamage reduces HP by amount, flooring at zero.
//
// Precondition: amount must be >= 0.
// Postcondition: HP >= 0.
func (c *Combatant) ApplyDamage(amount int) {
	c.HP -= amount
	if c.HP < 0 {
		c.HP = 0
	}
}

// EffectiveDefense is the defense value after status-effect penalties.
func (c *Combatant) EffectiveDefense() int {
	return c.Defense + effect.DefenseBonus(c.Effects)
}

// EffectiveSpeed is the movement budget after status-effect penalties,
// floored at zero.
func (c *Combatant) EffectiveSpeed() int {
	s := c.Speed + effect.SpeedBonus(c.Effects)
	if s < 0 {
		s = 0
	}
	return s
}
