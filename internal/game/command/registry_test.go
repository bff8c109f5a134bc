package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.NotNil(t, r)
	assert.Greater(t, len(r.Commands()), 0)
}

func TestResolve_CanonicalName(t *testing.T) {
	r := DefaultRegistry()

	cmd, ok := r.Resolve("attack")
	require.True(t, ok)
	assert.Equal(t, "attack", cmd.Name)
	assert.Equal(t, HandlerAttack, cmd.Handler)
}

func TestResolve_Alias(t *testing.T) {
	r := DefaultRegistry()

	cmd, ok := r.Resolve("att")
	require.True(t, ok)
	assert.Equal(t, "attack", cmd.Name)

	cmd, ok = r.Resolve("init")
	require.True(t, ok)
	assert.Equal(t, "order", cmd.Name)
}

func TestResolve_CaseInsensitive(t *testing.T) {
	r := DefaultRegistry()

	cmd, ok := r.Resolve("ATTACK")
	require.True(t, ok)
	assert.Equal(t, "attack", cmd.Name)

	cmd, ok = r.Resolve("Init")
	require.True(t, ok)
	assert.Equal(t, "order", cmd.Name)
}

func TestResolve_NotFound(t *testing.T) {
	r := DefaultRegistry()

	_, ok := r.Resolve("fireball")
	assert.False(t, ok)
}

func TestResolve_EveryBuiltinAndAlias(t *testing.T) {
	r := DefaultRegistry()
	for _, c := range BuiltinCommands() {
		got, ok := r.Resolve(c.Name)
		require.True(t, ok, "command %q", c.Name)
		assert.Equal(t, c.Name, got.Name)
		for _, alias := range c.Aliases {
			got, ok := r.Resolve(alias)
			require.True(t, ok, "alias %q", alias)
			assert.Equal(t, c.Name, got.Name)
		}
	}
}

func TestNewRegistry_DuplicateName(t *testing.T) {
	_, err := NewRegistry([]Command{{Name: "pass"}, {Name: "pass"}})
	assert.Error(t, err)
}

func TestNewRegistry_DuplicateAlias(t *testing.T) {
	_, err := NewRegistry([]Command{
		{Name: "pass", Aliases: []string{"p"}},
		{Name: "parry", Aliases: []string{"p"}},
	})
	assert.Error(t, err)
}

func TestNewRegistry_AliasConflictsWithName(t *testing.T) {
	_, err := NewRegistry([]Command{
		{Name: "pass"},
		{Name: "parry", Aliases: []string{"pass"}},
	})
	assert.Error(t, err)
}

func TestCommandsByCategory(t *testing.T) {
	r := DefaultRegistry()
	byCat := r.CommandsByCategory()
	assert.NotEmpty(t, byCat[CategoryCombat])
	assert.NotEmpty(t, byCat[CategoryInfo])
	assert.NotEmpty(t, byCat[CategorySystem])
}
