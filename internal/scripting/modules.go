package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// registerHostModule registers the host.* Lua table into L. Every function
// degrades to a no-op (or nil return) when its callback is not injected.
//
// Exposed functions:
//
//	host.roll(formula) -> total | nil, err
//	host.combatant(encounter_id, combatant_id) -> table | nil
//	host.damage(encounter_id, combatant_id, effect_id, amount) -> true | nil, err
//	host.apply_effect(encounter_id, combatant_id, effect_id, stacks, duration) -> true | nil, err
//	host.remove_effect(encounter_id, combatant_id, effect_id) -> true | nil, err
//	host.notify(encounter_id, msg)
//	host.log(msg)
func (r *Runner) registerHostModule(L *lua.LState) {
	host := L.NewTable()

	L.SetField(host, "roll", L.NewFunction(func(L *lua.LState) int {
		formula := L.CheckString(1)
		res, err := r.roller.RollExpr(formula, nil)
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LNumber(res.Total()))
		return 1
	}))

	L.SetField(host, "combatant", L.NewFunction(func(L *lua.LState) int {
		if r.GetCombatant == nil {
			L.Push(lua.LNil)
			return 1
		}
		info := r.GetCombatant(L.CheckString(1), L.CheckString(2))
		if info == nil {
			L.Push(lua.LNil)
			return 1
		}
		t := L.NewTable()
		L.SetField(t, "id", lua.LString(info.ID))
		L.SetField(t, "name", lua.LString(info.Name))
		L.SetField(t, "hp", lua.LNumber(info.HP))
		L.SetField(t, "max_hp", lua.LNumber(info.MaxHP))
		L.SetField(t, "defense", lua.LNumber(info.Defense))
		L.SetField(t, "speed", lua.LNumber(info.Speed))
		effects := L.NewTable()
		for i, id := range info.Effects {
			effects.RawSetInt(i+1, lua.LString(id))
		}
		L.SetField(t, "effects", effects)
		L.Push(t)
		return 1
	}))

	L.SetField(host, "damage", L.NewFunction(func(L *lua.LState) int {
		if r.ApplyDamage == nil {
			L.Push(lua.LNil)
			return 1
		}
		err := r.ApplyDamage(L.CheckString(1), L.CheckString(2), L.CheckString(3), L.CheckInt(4))
		return pushResult(L, err)
	}))

	L.SetField(host, "apply_effect", L.NewFunction(func(L *lua.LState) int {
		if r.ApplyEffect == nil {
			L.Push(lua.LNil)
			return 1
		}
		err := r.ApplyEffect(L.CheckString(1), L.CheckString(2), L.CheckString(3), L.CheckInt(4), L.CheckInt(5))
		return pushResult(L, err)
	}))

	L.SetField(host, "remove_effect", L.NewFunction(func(L *lua.LState) int {
		if r.RemoveEffect == nil {
			L.Push(lua.LNil)
			return 1
		}
		err := r.RemoveEffect(L.CheckString(1), L.CheckString(2), L.CheckString(3))
		return pushResult(L, err)
	}))

	L.SetField(host, "notify", L.NewFunction(func(L *lua.LState) int {
		if r.Notify != nil {
			r.Notify(L.CheckString(1), L.CheckString(2))
		}
		return 0
	}))

	L.SetField(host, "log", L.NewFunction(func(L *lua.LState) int {
		r.logger.Info("scripting: lua log", zap.String("msg", L.CheckString(1)))
		return 0
	}))

	L.SetGlobal("host", host)
}

// pushResult pushes (true) on success or (nil, message) on error.
func pushResult(L *lua.LState, err error) int {
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}
