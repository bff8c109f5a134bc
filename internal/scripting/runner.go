package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/hollowhost/hollowhost/internal/game/dice"
)

// CombatantInfo is a snapshot of a combatant's state passed to Lua hooks.
type CombatantInfo struct {
	ID      string
	Name    string
	HP      int
	MaxHP   int
	Defense int
	Speed   int
	Effects []string
}

// Runner owns one sandboxed LState holding all loaded effect-hook scripts
// and dispatches named hooks into it.
//
// The LState is single-threaded; an internal mutex serializes hook calls so
// a Runner may be shared across encounters.
type Runner struct {
	mu        sync.Mutex
	state     *lua.LState
	cancel    func()
	instLimit int
	roller    *dice.Roller
	logger    *zap.Logger

	// Injected after construction. nil = no-op in host.* functions.
	GetCombatant func(encounterID, combatantID string) *CombatantInfo
	ApplyDamage  func(encounterID, combatantID, effectID string, amount int) error
	ApplyEffect  func(encounterID, combatantID, effectID string, stacks, duration int) error
	RemoveEffect func(encounterID, combatantID, effectID string) error
	Notify       func(encounterID, msg string)
}

// NewRunner creates a Runner with an empty VM.
//
// Precondition: roller and logger must be non-nil.
func NewRunner(roller *dice.Roller, logger *zap.Logger) *Runner {
	return &Runner{
		roller: roller,
		logger: logger,
	}
}

// LoadDirectory creates a fresh sandboxed VM, registers the host.* module,
// then executes every *.lua file in scriptDir in lexicographic order. Any
// previously loaded VM is replaced.
//
// Precondition: scriptDir must be a readable directory.
// Postcondition: The VM is ready for CallHook; returns error on Lua load failure.
func (r *Runner) LoadDirectory(scriptDir string, instLimit int) error {
	L, cancel := NewSandboxedState(instLimit)
	r.registerHostModule(L)

	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("scripting: reading script dir %q: %w", scriptDir, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	for _, path := range luaFiles {
		if err := L.DoFile(path); err != nil {
			cancel()
			L.Close()
			return fmt.Errorf("scripting: loading %q: %w", path, err)
		}
	}

	r.mu.Lock()
	if r.state != nil {
		r.cancel()
		r.state.Close()
	}
	r.state = L
	r.cancel = cancel
	r.instLimit = instLimit
	r.mu.Unlock()
	return nil
}

// Close releases the VM.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != nil {
		r.cancel()
		r.state.Close()
		r.state = nil
	}
}

// CallHook calls the named Lua global function with the given arguments.
// Returns (LNil, nil) if the hook is not defined or no VM is loaded. Lua
// runtime errors are logged at Warn level and never propagated: a broken
// effect script must not fail combat resolution.
//
// Postcondition: Returns the first return value of the hook, or LNil.
func (r *Runner) CallHook(hook string, args ...lua.LValue) (lua.LValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == nil {
		return lua.LNil, nil
	}
	L := r.state

	fn := L.GetGlobal(hook)
	if fn == lua.LNil {
		return lua.LNil, nil
	}

	// Each hook call gets a fresh instruction budget.
	limit := r.instLimit
	if limit <= 0 {
		limit = DefaultInstructionLimit
	}
	ctx, cancel := newCountingContext(limit)
	r.cancel()
	r.cancel = cancel
	L.SetContext(ctx)

	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		r.logger.Warn("scripting: Lua runtime error",
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil, nil
	}

	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

// EffectHook dispatches one of an effect's lifecycle hooks (the function
// names carried by the effect definition). A hook receives the encounter ID,
// the bearer's combatant ID, and the effect ID.
func (r *Runner) EffectHook(hook, encounterID, combatantID, effectID string) {
	if hook == "" {
		return
	}
	_, _ = r.CallHook(hook,
		lua.LString(encounterID),
		lua.LString(combatantID),
		lua.LString(effectID),
	)
}
