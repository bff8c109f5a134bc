package session_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hollowhost/hollowhost/internal/game/dice"
	"github.com/hollowhost/hollowhost/internal/game/effect"
	"github.com/hollowhost/hollowhost/internal/game/encounter"
	"github.com/hollowhost/hollowhost/internal/game/ruleset"
	"github.com/hollowhost/hollowhost/internal/scripting"
	"github.com/hollowhost/hollowhost/internal/session"
)

// scriptedSrc returns each queued value once, in order. Values are Intn
// results, one less than the die face.
type scriptedSrc struct {
	values []int
	i      int
}

func (s *scriptedSrc) Intn(n int) int {
	if s.i >= len(s.values) {
		panic("scriptedSrc exhausted")
	}
	v := s.values[s.i]
	s.i++
	return v
}

func testRulesets(t *testing.T) *ruleset.Registry {
	t.Helper()
	reg := ruleset.NewRegistry()
	reg.Register(&ruleset.Binding{
		ID:         "skirmish",
		Name:       "Skirmish",
		Initiative: "1d20",
		Checks:     map[string]string{"attack": "1d20+5"},
		Damage:     map[string]string{"default": "1d8+2"},
	})
	return reg
}

func testCombatants() []*encounter.Combatant {
	presetA, presetB := 15, 10
	return []*encounter.Combatant{
		{ID: "hero", Name: "Hero", Side: encounter.SidePlayers, MaxHP: 10, HP: 10,
			Defense: 16, Speed: 30, PresetInitiative: &presetA},
		{ID: "goblin", Name: "Goblin", Side: encounter.SideOpponents, MaxHP: 10, HP: 10,
			Defense: 16, Speed: 25, PresetInitiative: &presetB},
	}
}

func newManager(t *testing.T, src dice.Source, effects *effect.Registry) *session.Manager {
	t.Helper()
	return session.NewManager(testRulesets(t), effects, src, zap.NewNop(), encounter.Options{})
}

func writeScript(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
}

// collectorArchiver records every archived encounter.
type collectorArchiver struct {
	records []*session.Record
}

func (a *collectorArchiver) Archive(_ context.Context, rec *session.Record) error {
	a.records = append(a.records, rec)
	return nil
}

func TestManager_StartEncounter_UnknownRuleset(t *testing.T) {
	m := newManager(t, dice.NewSeededSource(1), nil)
	_, err := m.StartEncounter("chess", testCombatants())
	assert.ErrorIs(t, err, session.ErrUnknownRuleset)
}

func TestManager_FullSkirmishLifecycle(t *testing.T) {
	// Two attack rounds: hit 18 vs 16 for 7, then hit 19 vs 16 for 7.
	src := &scriptedSrc{values: []int{12, 4, 13, 4}}
	arch := &collectorArchiver{}
	m := newManager(t, src, nil)
	m.SetArchiver(arch)

	id, err := m.StartEncounter("skirmish", testCombatants())
	require.NoError(t, err)
	require.Equal(t, 1, m.Count())

	sub, err := m.Subscribe(id, 64)
	require.NoError(t, err)

	d := encounter.Declaration{Actor: "hero", Type: encounter.ActionStandard, Target: "goblin", Check: "attack"}
	_, err = m.Declare(id, d)
	require.NoError(t, err)
	res, err := m.ResolveAttack(id, d)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.TargetHP)

	cur, round, err := m.AdvanceTurn(id)
	require.NoError(t, err)
	assert.Equal(t, "goblin", cur)
	assert.Equal(t, 1, round)
	cur, round, err = m.AdvanceTurn(id)
	require.NoError(t, err)
	assert.Equal(t, "hero", cur)
	assert.Equal(t, 2, round)

	_, err = m.Declare(id, d)
	require.NoError(t, err)
	_, err = m.ResolveAttack(id, d)
	require.NoError(t, err)

	st, err := m.State(id)
	require.NoError(t, err)
	assert.True(t, st.Over)
	assert.Equal(t, "players", st.Winner)
	assert.Equal(t, 0, st.HP["goblin"])

	// The killing blow archived the encounter and closed the subscriber.
	require.Len(t, arch.records, 1)
	rec := arch.records[0]
	assert.Equal(t, id, rec.EncounterID)
	assert.Equal(t, "skirmish", rec.RulesetID)
	assert.Equal(t, "players", rec.Winner)
	assert.NotEmpty(t, rec.Events)
	require.Len(t, rec.Combatants, 2)

	var sawResolved, sawEnded bool
	deadline := time.After(time.Second)
	for !sub.IsClosed() || len(sub.Events()) > 0 {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				goto done
			}
			switch ev.Kind {
			case encounter.EventActionResolved:
				sawResolved = true
			case encounter.EventEncounterEnded:
				sawEnded = true
			}
		case <-deadline:
			t.Fatal("subscriber never closed")
		}
	}
done:
	assert.True(t, sawResolved)
	assert.True(t, sawEnded)

	// Terminal encounters reject further transitions but stay queryable
	// until removed.
	_, err = m.Declare(id, d)
	assert.ErrorIs(t, err, encounter.ErrEncounterTerminal)
	require.NoError(t, m.Remove(id))
	assert.Equal(t, 0, m.Count())
	_, err = m.State(id)
	assert.ErrorIs(t, err, session.ErrEncounterNotFound)
}

func TestManager_RemoveLiveEncounterRejected(t *testing.T) {
	m := newManager(t, dice.NewSeededSource(1), nil)
	id, err := m.StartEncounter("skirmish", testCombatants())
	require.NoError(t, err)

	assert.Error(t, m.Remove(id))
	require.NoError(t, m.End(id))
	assert.NoError(t, m.Remove(id))
}

func TestManager_EventsCatchUp(t *testing.T) {
	m := newManager(t, dice.NewSeededSource(1), nil)
	id, err := m.StartEncounter("skirmish", testCombatants())
	require.NoError(t, err)

	all, err := m.Events(id, 0)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, encounter.EventInitiativeRolled, all[0].Kind)

	tail, err := m.Events(id, all[0].Seq)
	require.NoError(t, err)
	assert.Len(t, tail, len(all)-1)
}

func TestManager_UnknownEncounter(t *testing.T) {
	m := newManager(t, dice.NewSeededSource(1), nil)
	_, err := m.Events("nope", 0)
	assert.ErrorIs(t, err, session.ErrEncounterNotFound)
	_, _, err = m.AdvanceTurn("nope")
	assert.ErrorIs(t, err, session.ErrEncounterNotFound)
}

func TestManager_ScriptedPoisonTick(t *testing.T) {
	defs := effect.NewRegistry()
	defs.Register(&effect.Definition{
		ID:           "poisoned",
		Name:         "Poisoned",
		DurationType: effect.DurationRounds,
		LuaOnTick:    "on_poison_tick",
	})

	m := newManager(t, dice.NewSeededSource(1), defs)

	logger := zap.NewNop()
	runner := scripting.NewRunner(dice.NewLoggedRoller(dice.NewSeededSource(1), logger), logger)
	defer runner.Close()
	dir := t.TempDir()
	writeScript(t, dir, "poison.lua", `
		function on_poison_tick(enc, target, eff)
			host.damage(enc, target, eff, 2)
		end
	`)
	require.NoError(t, runner.LoadDirectory(dir, 0))
	m.AttachRunner(runner)

	id, err := m.StartEncounter("skirmish", testCombatants())
	require.NoError(t, err)
	require.NoError(t, m.ApplyStatus(id, "goblin", "poisoned", 1, 3))

	// Advance through one full round; the round boundary ticks the poison.
	_, _, err = m.AdvanceTurn(id)
	require.NoError(t, err)
	_, _, err = m.AdvanceTurn(id)
	require.NoError(t, err)

	st, err := m.State(id)
	require.NoError(t, err)
	assert.Equal(t, 8, st.HP["goblin"], "scripted tick dealt 2 damage")
}

func TestManager_ApplyHookAppliesHookedEffect(t *testing.T) {
	defs := effect.NewRegistry()
	defs.Register(&effect.Definition{
		ID:           "venom",
		Name:         "Venom",
		DurationType: effect.DurationRounds,
		LuaOnApply:   "on_venom_apply",
	})
	defs.Register(&effect.Definition{
		ID:           "weakened",
		Name:         "Weakened",
		DurationType: effect.DurationRounds,
		LuaOnApply:   "on_weakened_apply",
	})

	m := newManager(t, dice.NewSeededSource(1), defs)

	logger := zap.NewNop()
	runner := scripting.NewRunner(dice.NewLoggedRoller(dice.NewSeededSource(1), logger), logger)
	defer runner.Close()
	dir := t.TempDir()
	writeScript(t, dir, "venom.lua", `
		function on_venom_apply(enc, target, eff)
			host.apply_effect(enc, target, "weakened", 1, 2)
		end

		function on_weakened_apply(enc, target, eff)
			host.damage(enc, target, eff, 1)
		end
	`)
	require.NoError(t, runner.LoadDirectory(dir, 0))
	m.AttachRunner(runner)

	id, err := m.StartEncounter("skirmish", testCombatants())
	require.NoError(t, err)

	// The venom apply hook reenters the Manager to apply a second effect
	// whose own apply hook must also run; the whole chain has to finish
	// before ApplyStatus returns.
	done := make(chan error, 1)
	go func() { done <- m.ApplyStatus(id, "goblin", "venom", 1, 3) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("chained apply hooks never completed")
	}

	st, err := m.State(id)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"venom", "weakened"}, st.Effects["goblin"])
	assert.Equal(t, 9, st.HP["goblin"], "second hook ran and dealt its damage")
}

func TestManager_ConcurrentTransitionsKeepSubscriberOrder(t *testing.T) {
	defs := effect.NewRegistry()
	defs.Register(&effect.Definition{
		ID:           "marked",
		Name:         "Marked",
		DurationType: effect.DurationRounds,
	})

	m := newManager(t, dice.NewSeededSource(1), defs)
	id, err := m.StartEncounter("skirmish", testCombatants())
	require.NoError(t, err)

	const workers, applies = 8, 25
	sub, err := m.Subscribe(id, workers*applies+8)
	require.NoError(t, err)

	targets := []string{"hero", "goblin"}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < applies; j++ {
				assert.NoError(t, m.ApplyStatus(id, targets[i%2], "marked", 1, 3))
			}
		}(i)
	}
	wg.Wait()

	// Every event must reach the subscriber in log order even when the
	// emitting transitions raced.
	var last uint64
	count := 0
	for drained := false; !drained; {
		select {
		case ev := <-sub.Events():
			assert.Greater(t, ev.Seq, last, "subscriber saw events out of order")
			last = ev.Seq
			count++
		default:
			drained = true
		}
	}
	assert.Equal(t, workers*applies, count)
}
