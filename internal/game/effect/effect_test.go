package effect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poisonDef() *Definition {
	return &Definition{
		ID:           "poisoned",
		Name:         "Poisoned",
		DurationType: DurationRounds,
		MaxStacks:    3,
		CheckPenalty: 2,
	}
}

func TestActiveSet_ApplyStacksAndCaps(t *testing.T) {
	s := NewActiveSet()
	def := poisonDef()

	require.NoError(t, s.Apply(def, 1, 2))
	assert.Equal(t, 1, s.Stacks("poisoned"))

	require.NoError(t, s.Apply(def, 1, 2))
	assert.Equal(t, 2, s.Stacks("poisoned"))

	require.NoError(t, s.Apply(def, 5, 2))
	assert.Equal(t, 3, s.Stacks("poisoned"), "stacks cap at MaxStacks")
}

func TestActiveSet_UnstackableAlwaysOne(t *testing.T) {
	s := NewActiveSet()
	def := &Definition{ID: "stunned", DurationType: DurationRounds, Incapacitates: true}

	require.NoError(t, s.Apply(def, 4, 1))
	assert.Equal(t, 1, s.Stacks("stunned"))
	require.NoError(t, s.Apply(def, 4, 1))
	assert.Equal(t, 1, s.Stacks("stunned"))
}

func TestActiveSet_ReapplyExtendsDuration(t *testing.T) {
	s := NewActiveSet()
	def := poisonDef()

	require.NoError(t, s.Apply(def, 1, 1))
	require.NoError(t, s.Apply(def, 1, 3))

	// Two ticks must not expire it: duration was extended to 3.
	assert.Empty(t, s.Tick())
	assert.Empty(t, s.Tick())
	assert.True(t, s.Has("poisoned"))
	assert.Equal(t, []string{"poisoned"}, s.Tick())
	assert.False(t, s.Has("poisoned"))
}

func TestActiveSet_TickSparesPermanent(t *testing.T) {
	s := NewActiveSet()
	require.NoError(t, s.Apply(&Definition{ID: "cursed", DurationType: DurationPermanent}, 1, -1))

	for i := 0; i < 5; i++ {
		assert.Empty(t, s.Tick())
	}
	assert.True(t, s.Has("cursed"))
}

func TestActiveSet_ApplyNilDef(t *testing.T) {
	assert.Error(t, NewActiveSet().Apply(nil, 1, 1))
}

func TestModifiers_ScaleWithStacks(t *testing.T) {
	s := NewActiveSet()
	require.NoError(t, s.Apply(poisonDef(), 2, 3))
	require.NoError(t, s.Apply(&Definition{
		ID: "blinded", DurationType: DurationRounds, AttackPenalty: 4, SpeedPenalty: 10,
	}, 1, 2))

	assert.Equal(t, -4, CheckBonus(s), "2 stacks of -2")
	assert.Equal(t, -4, AttackBonus(s))
	assert.Equal(t, -10, SpeedBonus(s))
	assert.Equal(t, 0, DefenseBonus(s))
	assert.False(t, Incapacitated(s))
}

func TestIncapacitatedAndRestrictions(t *testing.T) {
	s := NewActiveSet()
	require.NoError(t, s.Apply(&Definition{
		ID: "grappled", DurationType: DurationRounds, RestrictActions: []string{"move", "reaction"},
	}, 1, 2))

	assert.True(t, IsActionRestricted(s, "move"))
	assert.True(t, IsActionRestricted(s, "reaction"))
	assert.False(t, IsActionRestricted(s, "standard"))

	require.NoError(t, s.Apply(&Definition{ID: "stunned", DurationType: DurationRounds, Incapacitates: true}, 1, 1))
	assert.True(t, Incapacitated(s))
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	yaml := `id: poisoned
name: Poisoned
description: Takes ongoing check penalties.
duration_type: rounds
max_stacks: 3
check_penalty: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "poisoned.yaml"), []byte(yaml), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("ignored"), 0o644))

	reg, err := LoadDirectory(dir)
	require.NoError(t, err)
	assert.Len(t, reg.All(), 1)

	def, ok := reg.Get("poisoned")
	require.True(t, ok)
	assert.Equal(t, 3, def.MaxStacks)
	assert.Equal(t, 2, def.CheckPenalty)
}

func TestLoadDirectory_UnknownFieldRejected(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("id: bad\nsurprise: true\n"), 0o644))

	_, err := LoadDirectory(dir)
	assert.Error(t, err)
}
