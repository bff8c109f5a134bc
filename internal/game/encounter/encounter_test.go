package encounter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/hollowhost/hollowhost/internal/game/dice"
	"github.com/hollowhost/hollowhost/internal/game/effect"
	"github.com/hollowhost/hollowhost/internal/game/ruleset"
)

// scriptedSrc returns each queued value once, in order, then panics. The
// queued values are the Intn results, i.e. one less than the die face.
type scriptedSrc struct {
	values []int
	i      int
}

func (s *scriptedSrc) Intn(n int) int {
	if s.i >= len(s.values) {
		panic(fmt.Sprintf("scriptedSrc: exhausted after %d values", len(s.values)))
	}
	v := s.values[s.i]
	s.i++
	if v >= n {
		panic(fmt.Sprintf("scriptedSrc: value %d out of range for Intn(%d)", v, n))
	}
	return v
}

func testBinding() *ruleset.Binding {
	return &ruleset.Binding{
		ID:         "skirmish",
		Name:       "Skirmish",
		Initiative: "1d20+DEX",
		Checks: map[string]string{
			"attack":  "1d20+5",
			"opposed": "1d20",
			"stealth": "1d20+DEX",
		},
		Damage: map[string]string{
			"default": "1d8+2",
			"dagger":  "1d4+1",
		},
		TiebreakStat: "DEX",
	}
}

func fighter(id string, side Side, init int) *Combatant {
	i := init
	return &Combatant{
		ID:               id,
		Name:             id,
		Side:             side,
		Stats:            dice.Stats{"DEX": 2, "STR": 3},
		MaxHP:            10,
		HP:               10,
		Defense:          16,
		Speed:            30,
		PresetInitiative: &i,
	}
}

func mustStart(t *testing.T, combatants []*Combatant, b *ruleset.Binding, defs *effect.Registry, src dice.Source) *Encounter {
	t.Helper()
	e, err := Start("enc-1", combatants, b, defs, src, Options{})
	require.NoError(t, err)
	return e
}

func TestStart_OrdersByInitiativeDescending(t *testing.T) {
	a := fighter("a", SidePlayers, 15)
	b := fighter("b", SideOpponents, 10)
	e := mustStart(t, []*Combatant{b, a}, testBinding(), nil, dice.NewSeededSource(1))

	order := e.Combatants()
	require.Len(t, order, 2)
	assert.Equal(t, "a", order[0].ID)
	assert.Equal(t, "b", order[1].ID)
	assert.Equal(t, "a", e.Current().ID)
	assert.Equal(t, 1, e.Round())
	assert.Equal(t, 0, e.Turn())
}

func TestStart_TiebreakStatThenRegistrationOrder(t *testing.T) {
	a := fighter("a", SidePlayers, 12)
	b := fighter("b", SideOpponents, 12)
	c := fighter("c", SideOpponents, 12)
	b.Stats["DEX"] = 4 // highest tiebreak wins
	c.Stats["DEX"] = 2
	a.Stats["DEX"] = 2 // ties with c; a registered first

	e := mustStart(t, []*Combatant{a, b, c}, testBinding(), nil, dice.NewSeededSource(1))

	var ids []string
	for _, cb := range e.Combatants() {
		ids = append(ids, cb.ID)
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids)
}

func TestStart_EmptyEncounter(t *testing.T) {
	_, err := Start("enc-1", nil, testBinding(), nil, dice.NewSeededSource(1), Options{})
	assert.ErrorIs(t, err, ErrEmptyEncounter)
}

func TestStart_MissingInitiativeFormula(t *testing.T) {
	b := testBinding()
	b.Initiative = ""
	_, err := Start("enc-1", []*Combatant{fighter("a", SidePlayers, 1)}, b, nil, dice.NewSeededSource(1), Options{})
	assert.ErrorIs(t, err, ErrInvalidRuleset)

	// A configured default formula rescues a silent binding.
	e, err := Start("enc-1", []*Combatant{fighter("a", SidePlayers, 1)}, b, nil,
		dice.NewSeededSource(1), Options{DefaultInitiative: "1d20"})
	require.NoError(t, err)
	assert.Equal(t, 1, e.Round())
}

func TestStart_RolledInitiativeIsDeterministicPerSeed(t *testing.T) {
	mk := func() []*Combatant {
		a := fighter("a", SidePlayers, 0)
		b := fighter("b", SideOpponents, 0)
		a.PresetInitiative = nil
		b.PresetInitiative = nil
		b.Stats["DEX"] = 5
		return []*Combatant{a, b}
	}

	e1 := mustStart(t, mk(), testBinding(), nil, dice.NewSeededSource(42))
	e2 := mustStart(t, mk(), testBinding(), nil, dice.NewSeededSource(42))

	for i := range e1.Combatants() {
		assert.Equal(t, e1.Combatants()[i].ID, e2.Combatants()[i].ID)
		assert.Equal(t, e1.Combatants()[i].Initiative, e2.Combatants()[i].Initiative)
	}
}

func TestAdvanceTurn_WrapsIntoNextRound(t *testing.T) {
	a := fighter("a", SidePlayers, 15)
	b := fighter("b", SideOpponents, 10)
	e := mustStart(t, []*Combatant{a, b}, testBinding(), nil, dice.NewSeededSource(1))

	cur, round, err := e.AdvanceTurn()
	require.NoError(t, err)
	assert.Equal(t, "b", cur.ID)
	assert.Equal(t, 1, round)

	cur, round, err = e.AdvanceTurn()
	require.NoError(t, err)
	assert.Equal(t, "a", cur.ID)
	assert.Equal(t, 2, round)
	assert.Equal(t, 0, e.Turn())
}

func TestAdvanceTurn_FullCycleProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "combatants")
		var cs []*Combatant
		for i := 0; i < n; i++ {
			side := SidePlayers
			if i%2 == 1 {
				side = SideOpponents
			}
			cs = append(cs, fighter(fmt.Sprintf("c%d", i), side, 20-i))
		}
		e, err := Start("enc", cs, testBinding(), nil, dice.NewSeededSource(1), Options{})
		if err != nil {
			t.Fatalf("start: %v", err)
		}

		// Advancing exactly n times returns to the top of the order,
		// one round later.
		for i := 0; i < n; i++ {
			if _, _, err := e.AdvanceTurn(); err != nil {
				t.Fatalf("advance %d: %v", i, err)
			}
		}
		if e.Turn() != 0 {
			t.Fatalf("turn = %d, want 0", e.Turn())
		}
		if e.Round() != 2 {
			t.Fatalf("round = %d, want 2", e.Round())
		}
	})
}

func TestAdvanceTurn_SkipsDefeated(t *testing.T) {
	a := fighter("a", SidePlayers, 15)
	b := fighter("b", SidePlayers, 12)
	c := fighter("c", SideOpponents, 10)
	e := mustStart(t, []*Combatant{a, b, c}, testBinding(), nil, dice.NewSeededSource(1))

	b.ApplyDamage(10)
	cur, _, err := e.AdvanceTurn()
	require.NoError(t, err)
	assert.Equal(t, "c", cur.ID, "defeated combatant stays in order but is skipped")
}

func TestDeclare_NotYourTurn(t *testing.T) {
	a := fighter("a", SidePlayers, 15)
	b := fighter("b", SideOpponents, 10)
	e := mustStart(t, []*Combatant{a, b}, testBinding(), nil, dice.NewSeededSource(1))

	_, err := e.Declare(Declaration{Actor: "b", Type: ActionStandard, Target: "a", Check: "attack"})
	assert.ErrorIs(t, err, ErrNotYourTurn)
}

func TestDeclare_StandardTwiceInOneTurn(t *testing.T) {
	a := fighter("a", SidePlayers, 15)
	b := fighter("b", SideOpponents, 10)
	// Attack roll (die 13 -> 18 vs 16, hit) and damage roll.
	src := &scriptedSrc{values: []int{12, 4}}
	e := mustStart(t, []*Combatant{a, b}, testBinding(), nil, src)

	_, err := e.Declare(Declaration{Actor: "a", Type: ActionStandard, Target: "b", Check: "attack"})
	require.NoError(t, err)
	_, err = e.ResolveAttack(Declaration{Actor: "a", Type: ActionStandard, Target: "b", Check: "attack"})
	require.NoError(t, err)

	_, err = e.Declare(Declaration{Actor: "a", Type: ActionStandard, Target: "b", Check: "attack"})
	assert.ErrorIs(t, err, ErrActionAlreadyUsed)
}

func TestDeclare_SecondDeclarationWhilePending(t *testing.T) {
	a := fighter("a", SidePlayers, 15)
	b := fighter("b", SideOpponents, 10)
	e := mustStart(t, []*Combatant{a, b}, testBinding(), nil, dice.NewSeededSource(1))

	_, err := e.Declare(Declaration{Actor: "a", Type: ActionStandard, Target: "b", Check: "attack"})
	require.NoError(t, err)
	_, err = e.Declare(Declaration{Actor: "a", Type: ActionBonus})
	assert.ErrorIs(t, err, ErrDeclarationPending)
}

func TestDeclare_InvalidActionType(t *testing.T) {
	a := fighter("a", SidePlayers, 15)
	e := mustStart(t, []*Combatant{a, fighter("b", SideOpponents, 10)}, testBinding(), nil, dice.NewSeededSource(1))

	_, err := e.Declare(Declaration{Actor: "a", Type: ActionUnknown})
	assert.ErrorIs(t, err, ErrInvalidActionType)
	_, err = e.Declare(Declaration{Actor: "a", Type: ActionType(99)})
	assert.ErrorIs(t, err, ErrInvalidActionType)
}

func TestDeclare_MovementBudget(t *testing.T) {
	a := fighter("a", SidePlayers, 15) // speed 30
	b := fighter("b", SideOpponents, 10)
	e := mustStart(t, []*Combatant{a, b}, testBinding(), nil, dice.NewSeededSource(1))

	_, err := e.Declare(Declaration{Actor: "a", Type: ActionMove, Distance: 20})
	require.NoError(t, err)
	_, err = e.Declare(Declaration{Actor: "a", Type: ActionMove, Distance: 15})
	assert.ErrorIs(t, err, ErrInsufficientMovement)
	_, err = e.Declare(Declaration{Actor: "a", Type: ActionMove, Distance: 10})
	assert.NoError(t, err, "budget is additive within the turn")
}

func TestDeclare_MovementClosedByInterveningAction(t *testing.T) {
	a := fighter("a", SidePlayers, 15)
	b := fighter("b", SideOpponents, 10)
	e := mustStart(t, []*Combatant{a, b}, testBinding(), nil, dice.NewSeededSource(1))

	_, err := e.Declare(Declaration{Actor: "a", Type: ActionMove, Distance: 10})
	require.NoError(t, err)
	_, err = e.Declare(Declaration{Actor: "a", Type: ActionBonus})
	require.NoError(t, err)
	_, err = e.Declare(Declaration{Actor: "a", Type: ActionMove, Distance: 10})
	assert.ErrorIs(t, err, ErrActionAlreadyUsed, "non-contiguous movement requires split_movement")
}

func TestDeclare_SplitMovementPolicy(t *testing.T) {
	bind := testBinding()
	bind.SplitMovement = true
	a := fighter("a", SidePlayers, 15)
	b := fighter("b", SideOpponents, 10)
	e := mustStart(t, []*Combatant{a, b}, bind, nil, dice.NewSeededSource(1))

	_, err := e.Declare(Declaration{Actor: "a", Type: ActionMove, Distance: 10})
	require.NoError(t, err)
	_, err = e.Declare(Declaration{Actor: "a", Type: ActionBonus})
	require.NoError(t, err)
	_, err = e.Declare(Declaration{Actor: "a", Type: ActionMove, Distance: 10})
	assert.NoError(t, err)
}

func TestDeclare_ReactionOutOfTurnOncePerRound(t *testing.T) {
	a := fighter("a", SidePlayers, 15)
	b := fighter("b", SideOpponents, 10)
	e := mustStart(t, []*Combatant{a, b}, testBinding(), nil, dice.NewSeededSource(1))

	// It is a's turn; b reacts out of turn.
	_, err := e.Declare(Declaration{Actor: "b", Type: ActionReaction, Trigger: "a moves away"})
	require.NoError(t, err)

	_, err = e.Declare(Declaration{Actor: "b", Type: ActionReaction, Trigger: "a attacks"})
	assert.ErrorIs(t, err, ErrActionAlreadyUsed)

	// Reaction without a trigger is rejected outright.
	_, err = e.Declare(Declaration{Actor: "a", Type: ActionReaction})
	assert.ErrorIs(t, err, ErrInvalidActionType)

	// Reactions reset at the top of the next round.
	_, _, err = e.AdvanceTurn() // -> b
	require.NoError(t, err)
	_, _, err = e.AdvanceTurn() // -> a, round 2
	require.NoError(t, err)
	_, err = e.Declare(Declaration{Actor: "b", Type: ActionReaction, Trigger: "a moves away"})
	assert.NoError(t, err)
}

func TestDeclare_SlotsResetOnOwnTurn(t *testing.T) {
	a := fighter("a", SidePlayers, 15)
	b := fighter("b", SideOpponents, 10)
	e := mustStart(t, []*Combatant{a, b}, testBinding(), nil, dice.NewSeededSource(1))

	_, err := e.Declare(Declaration{Actor: "a", Type: ActionBonus})
	require.NoError(t, err)
	_, _, err = e.AdvanceTurn() // b
	require.NoError(t, err)
	_, _, err = e.AdvanceTurn() // a again, round 2
	require.NoError(t, err)

	_, err = e.Declare(Declaration{Actor: "a", Type: ActionBonus})
	assert.NoError(t, err, "bonus slot resets at the start of a's own turn")
}

func TestWithdraw_RefundsSlot(t *testing.T) {
	a := fighter("a", SidePlayers, 15)
	b := fighter("b", SideOpponents, 10)
	e := mustStart(t, []*Combatant{a, b}, testBinding(), nil, dice.NewSeededSource(1))

	_, err := e.Declare(Declaration{Actor: "a", Type: ActionStandard, Target: "b", Check: "attack"})
	require.NoError(t, err)
	require.NoError(t, e.Withdraw("a"))

	_, ok := e.Pending("a")
	assert.False(t, ok)
	_, err = e.Declare(Declaration{Actor: "a", Type: ActionStandard, Target: "b", Check: "attack"})
	assert.NoError(t, err, "withdrawn declaration refunds the standard slot")

	assert.ErrorIs(t, e.Withdraw("b"), ErrNoDeclaration)
}

func TestWithdraw_ReopensMovement(t *testing.T) {
	a := fighter("a", SidePlayers, 15)
	b := fighter("b", SideOpponents, 10)
	e := mustStart(t, []*Combatant{a, b}, testBinding(), nil, dice.NewSeededSource(1))

	_, err := e.Declare(Declaration{Actor: "a", Type: ActionMove, Distance: 10})
	require.NoError(t, err)
	_, err = e.Declare(Declaration{Actor: "a", Type: ActionStandard, Target: "b", Check: "attack"})
	require.NoError(t, err)
	require.NoError(t, e.Withdraw("a"))

	_, err = e.Declare(Declaration{Actor: "a", Type: ActionMove, Distance: 10})
	assert.NoError(t, err, "withdrawing the closing action reopens remaining movement")

	// A declaration made after movement was already closed does not reopen
	// it when withdrawn.
	_, err = e.Declare(Declaration{Actor: "a", Type: ActionBonus})
	require.NoError(t, err)
	_, err = e.Declare(Declaration{Actor: "a", Type: ActionStandard, Target: "b", Check: "attack"})
	require.NoError(t, err)
	require.NoError(t, e.Withdraw("a"))
	_, err = e.Declare(Declaration{Actor: "a", Type: ActionMove, Distance: 5})
	assert.ErrorIs(t, err, ErrActionAlreadyUsed)
}

func TestAdvanceTurn_DiscardsOutgoingPendingDeclaration(t *testing.T) {
	a := fighter("a", SidePlayers, 15)
	b := fighter("b", SideOpponents, 10)
	e := mustStart(t, []*Combatant{a, b}, testBinding(), nil, dice.NewSeededSource(1))

	_, err := e.Declare(Declaration{Actor: "a", Type: ActionStandard, Target: "b", Check: "attack"})
	require.NoError(t, err)
	_, _, err = e.AdvanceTurn()
	require.NoError(t, err)

	_, ok := e.Pending("a")
	assert.False(t, ok)
}

func TestEnd_ExplicitTermination(t *testing.T) {
	a := fighter("a", SidePlayers, 15)
	b := fighter("b", SideOpponents, 10)
	e := mustStart(t, []*Combatant{a, b}, testBinding(), nil, dice.NewSeededSource(1))

	require.NoError(t, e.End())
	assert.True(t, e.Over())
	assert.Equal(t, "none", e.Winner(), "both sides standing at explicit end")

	assert.ErrorIs(t, e.End(), ErrEncounterTerminal)
	_, err := e.Declare(Declaration{Actor: "a", Type: ActionStandard})
	assert.ErrorIs(t, err, ErrEncounterTerminal)
	_, _, err = e.AdvanceTurn()
	assert.ErrorIs(t, err, ErrEncounterTerminal)
}

func TestAdvanceTurn_AllInactiveEndsEncounter(t *testing.T) {
	a := fighter("a", SidePlayers, 15)
	b := fighter("b", SideOpponents, 10)
	e := mustStart(t, []*Combatant{a, b}, testBinding(), nil, dice.NewSeededSource(1))

	a.ApplyDamage(10)
	b.ApplyDamage(10)
	_, _, err := e.AdvanceTurn()
	assert.ErrorIs(t, err, ErrEncounterTerminal)
	assert.True(t, e.Over())
	assert.Equal(t, "none", e.Winner())
}

func TestBeginRound_RerollInitiativeReorders(t *testing.T) {
	bind := testBinding()
	bind.RerollInitiativeEachRound = true
	bind.Initiative = "1d20"

	a := fighter("a", SidePlayers, 0)
	b := fighter("b", SideOpponents, 0)
	a.PresetInitiative = nil
	b.PresetInitiative = nil

	// Round 1: a rolls 18, b rolls 3. Round 2 reroll: a rolls 2, b rolls 19.
	src := &scriptedSrc{values: []int{17, 2, 1, 18}}
	e := mustStart(t, []*Combatant{a, b}, bind, nil, src)
	require.Equal(t, "a", e.Current().ID)

	_, _, err := e.AdvanceTurn() // -> b
	require.NoError(t, err)
	cur, round, err := e.AdvanceTurn() // wrap: reroll, round 2
	require.NoError(t, err)
	assert.Equal(t, 2, round)
	assert.Equal(t, "b", cur.ID, "reroll moved b to the top of the order")
}

func TestIncapacitatedCombatantIsSkipped(t *testing.T) {
	defs := effect.NewRegistry()
	defs.Register(&effect.Definition{
		ID:            "stunned",
		Name:          "Stunned",
		DurationType:  effect.DurationRounds,
		Incapacitates: true,
	})

	a := fighter("a", SidePlayers, 15)
	b := fighter("b", SidePlayers, 12)
	c := fighter("c", SideOpponents, 10)
	e := mustStart(t, []*Combatant{a, b, c}, testBinding(), defs, dice.NewSeededSource(1))

	require.NoError(t, e.ApplyStatus("b", "stunned", 1, 2))
	cur, _, err := e.AdvanceTurn()
	require.NoError(t, err)
	assert.Equal(t, "c", cur.ID, "incapacitated combatant is passed over")
}

func TestEffectExpiresAtRoundStart(t *testing.T) {
	defs := effect.NewRegistry()
	defs.Register(&effect.Definition{
		ID:           "shaken",
		Name:         "Shaken",
		DurationType: effect.DurationRounds,
		CheckPenalty: 2,
	})

	a := fighter("a", SidePlayers, 15)
	b := fighter("b", SideOpponents, 10)
	e := mustStart(t, []*Combatant{a, b}, testBinding(), defs, dice.NewSeededSource(1))

	require.NoError(t, e.ApplyStatus("b", "shaken", 1, 1))
	require.True(t, b.Effects.Has("shaken"))

	_, _, err := e.AdvanceTurn() // -> b
	require.NoError(t, err)
	_, _, err = e.AdvanceTurn() // wrap to round 2: tick expires the effect
	require.NoError(t, err)

	assert.False(t, b.Effects.Has("shaken"))

	var expired []Event
	for _, ev := range e.Log().Events() {
		if ev.Kind == EventStatusExpired {
			expired = append(expired, ev)
		}
	}
	require.Len(t, expired, 1)
	assert.Equal(t, "b", expired[0].Actor)
}

func TestLog_SeqIsMonotonic(t *testing.T) {
	a := fighter("a", SidePlayers, 15)
	b := fighter("b", SideOpponents, 10)
	e := mustStart(t, []*Combatant{a, b}, testBinding(), nil, dice.NewSeededSource(1))

	_, _, _ = e.AdvanceTurn()
	_, _, _ = e.AdvanceTurn()
	_ = e.End()

	events := e.Log().Events()
	require.NotEmpty(t, events)
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Seq)
	}
	assert.Equal(t, EventEncounterEnded, events[len(events)-1].Kind)
}
