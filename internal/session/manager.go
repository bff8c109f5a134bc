package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hollowhost/hollowhost/internal/game/dice"
	"github.com/hollowhost/hollowhost/internal/game/effect"
	"github.com/hollowhost/hollowhost/internal/game/encounter"
	"github.com/hollowhost/hollowhost/internal/game/ruleset"
	"github.com/hollowhost/hollowhost/internal/scripting"
)

// ErrEncounterNotFound is returned when an encounter ID is not registered.
var ErrEncounterNotFound = errors.New("encounter not found")

// ErrUnknownRuleset is returned when StartEncounter names an unloaded ruleset.
var ErrUnknownRuleset = errors.New("unknown ruleset")

// CombatantRecord is the final per-combatant state stored when an encounter
// is archived.
type CombatantRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Side       string `json:"side"`
	HP         int    `json:"hp"`
	MaxHP      int    `json:"max_hp"`
	Initiative int    `json:"initiative"`
	Defeated   bool   `json:"defeated"`
}

// Record is a finished encounter prepared for archival.
type Record struct {
	EncounterID string
	RulesetID   string
	Winner      string
	Rounds      int
	Events      []encounter.Event
	Combatants  []CombatantRecord
}

// Archiver persists finished encounters.
type Archiver interface {
	Archive(ctx context.Context, rec *Record) error
}

// handle pairs one live encounter with its serialization lock and
// subscribers. The encounter engine performs no internal locking; every
// transition on it goes through handle.mu.
type handle struct {
	mu        sync.Mutex
	enc       *encounter.Encounter
	rulesetID string
	subs      []*Subscriber
	delivered uint64
	archived  bool
}

// hookCall is one scripted effect hook to dispatch after a transition.
type hookCall struct {
	hook        string
	combatantID string
	effectID    string
}

// queuedHook is a hookCall bound to its encounter, waiting on the
// Manager's dispatch queue.
type queuedHook struct {
	encounterID string
	call        hookCall
}

// Manager owns all live encounters. All methods are safe for concurrent
// use; independent encounters resolve in parallel while transitions on one
// encounter are serialized.
type Manager struct {
	mu         sync.RWMutex
	encounters map[string]*handle

	rulesets *ruleset.Registry
	effects  *effect.Registry
	src      dice.Source
	opts     encounter.Options
	logger   *zap.Logger

	runner   *scripting.Runner
	archiver Archiver

	// Scripted hooks run on a single queue. A hook body may reenter the
	// Manager through the host callbacks and emit further hooks; those are
	// queued and drained by the outermost dispatcher instead of recursing,
	// which would deadlock on the runner's execution lock.
	hookMu    sync.Mutex
	hookQueue []queuedHook
	hooking   bool
}

// NewManager creates a Manager.
//
// Precondition: rulesets, src, and logger must be non-nil; effects may be
// nil when status effects are unused.
func NewManager(rulesets *ruleset.Registry, effects *effect.Registry, src dice.Source, logger *zap.Logger, opts encounter.Options) *Manager {
	return &Manager{
		encounters: make(map[string]*handle),
		rulesets:   rulesets,
		effects:    effects,
		src:        src,
		opts:       opts,
		logger:     logger,
	}
}

// SetArchiver installs the archival sink for finished encounters.
func (m *Manager) SetArchiver(a Archiver) { m.archiver = a }

// AttachRunner installs the Lua effect-hook runner and wires its host
// callbacks to this Manager. Hooks are dispatched after each transition's
// lock is released, so scripted callbacks may safely invoke Manager methods.
func (m *Manager) AttachRunner(r *scripting.Runner) {
	m.runner = r
	r.GetCombatant = func(encounterID, combatantID string) *scripting.CombatantInfo {
		var info *scripting.CombatantInfo
		_ = m.View(encounterID, func(e *encounter.Encounter) error {
			c, ok := e.Combatant(combatantID)
			if !ok {
				return nil
			}
			info = &scripting.CombatantInfo{
				ID:      c.ID,
				Name:    c.Name,
				HP:      c.HP,
				MaxHP:   c.MaxHP,
				Defense: c.EffectiveDefense(),
				Speed:   c.EffectiveSpeed(),
				Effects: c.Effects.IDs(),
			}
			return nil
		})
		return info
	}
	r.ApplyDamage = func(encounterID, combatantID, effectID string, amount int) error {
		return m.ApplyStatusDamage(encounterID, combatantID, effectID, amount)
	}
	r.ApplyEffect = func(encounterID, combatantID, effectID string, stacks, duration int) error {
		return m.ApplyStatus(encounterID, combatantID, effectID, stacks, duration)
	}
	r.RemoveEffect = func(encounterID, combatantID, effectID string) error {
		return m.RemoveStatus(encounterID, combatantID, effectID)
	}
	r.Notify = func(encounterID, msg string) {
		m.logger.Info("effect script notification",
			zap.String("encounter", encounterID),
			zap.String("message", msg),
		)
	}
}

// StartEncounter creates and registers a new encounter under the named
// ruleset binding and returns its generated ID.
//
// Postcondition: Returns the encounter ID, or ErrUnknownRuleset /
// an encounter.Start error.
func (m *Manager) StartEncounter(rulesetID string, combatants []*encounter.Combatant) (string, error) {
	binding, ok := m.rulesets.Get(rulesetID)
	if !ok {
		return "", fmt.Errorf("ruleset %q: %w", rulesetID, ErrUnknownRuleset)
	}

	id := uuid.NewString()
	enc, err := encounter.Start(id, combatants, binding, m.effects, m.src, m.opts)
	if err != nil {
		return "", err
	}

	h := &handle{enc: enc, rulesetID: rulesetID}
	m.mu.Lock()
	m.encounters[id] = h
	m.mu.Unlock()

	m.logger.Info("encounter started",
		zap.String("encounter", id),
		zap.String("ruleset", rulesetID),
		zap.Int("combatants", len(combatants)),
	)

	h.mu.Lock()
	events, hooks := m.drain(h)
	m.deliver(id, h, events)
	h.mu.Unlock()
	m.dispatch(id, h, events, hooks)
	return id, nil
}

func (m *Manager) handleFor(id string) (*handle, error) {
	m.mu.RLock()
	h, ok := m.encounters[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("encounter %q: %w", id, ErrEncounterNotFound)
	}
	return h, nil
}

// withEncounter runs fn on the encounter under its lock, fans out the
// transition's new events to subscribers before releasing it, then
// dispatches scripted hooks outside the lock.
func (m *Manager) withEncounter(id string, fn func(*encounter.Encounter) error) error {
	h, err := m.handleFor(id)
	if err != nil {
		return err
	}

	h.mu.Lock()
	ferr := fn(h.enc)
	events, hooks := m.drain(h)
	m.deliver(id, h, events)
	h.mu.Unlock()

	m.dispatch(id, h, events, hooks)
	return ferr
}

// View runs fn on the encounter under its lock without event fan-out. fn
// must not mutate the encounter.
func (m *Manager) View(id string, fn func(*encounter.Encounter) error) error {
	h, err := m.handleFor(id)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn(h.enc)
}

// drain collects the events emitted since the last delivery along with the
// scripted hooks they imply. Caller must hold h.mu.
func (m *Manager) drain(h *handle) ([]encounter.Event, []hookCall) {
	events := h.enc.Log().Since(h.delivered)
	if len(events) > 0 {
		h.delivered = events[len(events)-1].Seq
	}
	return events, m.collectHooks(h.enc, events)
}

// collectHooks maps status events to their Lua lifecycle hooks. A round
// advance triggers the tick hook of every effect still active.
func (m *Manager) collectHooks(enc *encounter.Encounter, events []encounter.Event) []hookCall {
	if m.runner == nil || m.effects == nil {
		return nil
	}
	var calls []hookCall
	for _, ev := range events {
		switch ev.Kind {
		case encounter.EventStatusApplied, encounter.EventStatusExpired:
			var p encounter.StatusPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				continue
			}
			def, ok := m.effects.Get(p.Effect)
			if !ok {
				continue
			}
			hook := def.LuaOnApply
			if ev.Kind == encounter.EventStatusExpired {
				hook = def.LuaOnExpire
			}
			if hook != "" {
				calls = append(calls, hookCall{hook: hook, combatantID: ev.Actor, effectID: p.Effect})
			}
		case encounter.EventRoundAdvanced:
			for _, c := range enc.Combatants() {
				for _, effID := range c.Effects.IDs() {
					def, ok := m.effects.Get(effID)
					if !ok || def.LuaOnTick == "" {
						continue
					}
					calls = append(calls, hookCall{hook: def.LuaOnTick, combatantID: c.ID, effectID: effID})
				}
			}
		}
	}
	return calls
}

// deliver pushes events to every subscriber. Caller must hold h.mu:
// delivering under the transition lock keeps each subscriber's stream in
// log order even when transitions race. Push never blocks, it drops when
// the subscriber's buffer is full.
func (m *Manager) deliver(id string, h *handle, events []encounter.Event) {
	for _, s := range h.subs {
		for _, ev := range events {
			if err := s.Push(ev); err != nil {
				m.logger.Warn("dropping combat event for subscriber",
					zap.String("encounter", id),
					zap.Uint64("seq", ev.Seq),
					zap.Error(err),
				)
			}
		}
	}
}

// dispatch runs scripted hooks and archives the encounter if it just became
// terminal. Must be called without h.mu held.
func (m *Manager) dispatch(id string, h *handle, events []encounter.Event, hooks []hookCall) {
	m.runHooks(id, hooks)

	terminal := false
	for _, ev := range events {
		if ev.Kind == encounter.EventEncounterEnded {
			terminal = true
		}
	}
	if terminal {
		m.archive(id, h)
	}
}

// runHooks queues the transition's hooks and drains the queue unless a
// drain is already underway. Hooks emitted while a hook executes, whether
// from the script's own callbacks on this goroutine or from a concurrent
// transition, land on the queue and run here in arrival order.
func (m *Manager) runHooks(id string, hooks []hookCall) {
	if m.runner == nil || len(hooks) == 0 {
		return
	}
	m.hookMu.Lock()
	for _, call := range hooks {
		m.hookQueue = append(m.hookQueue, queuedHook{encounterID: id, call: call})
	}
	if m.hooking {
		m.hookMu.Unlock()
		return
	}
	m.hooking = true
	for len(m.hookQueue) > 0 {
		next := m.hookQueue[0]
		m.hookQueue = m.hookQueue[1:]
		m.hookMu.Unlock()
		m.runner.EffectHook(next.call.hook, next.encounterID, next.call.combatantID, next.call.effectID)
		m.hookMu.Lock()
	}
	m.hooking = false
	m.hookMu.Unlock()
}

// archive persists a finished encounter and closes its subscribers. Archival
// runs at most once per encounter.
func (m *Manager) archive(id string, h *handle) {
	h.mu.Lock()
	if h.archived {
		h.mu.Unlock()
		return
	}
	h.archived = true

	rec := &Record{
		EncounterID: id,
		RulesetID:   h.rulesetID,
		Winner:      h.enc.Winner(),
		Rounds:      h.enc.Round(),
		Events:      h.enc.Log().Events(),
	}
	for _, c := range h.enc.Combatants() {
		rec.Combatants = append(rec.Combatants, CombatantRecord{
			ID:         c.ID,
			Name:       c.Name,
			Side:       c.Side.String(),
			HP:         c.HP,
			MaxHP:      c.MaxHP,
			Initiative: c.Initiative,
			Defeated:   c.Defeated(),
		})
	}
	subs := h.subs
	h.subs = nil
	h.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}

	if m.archiver == nil {
		return
	}
	if err := m.archiver.Archive(context.Background(), rec); err != nil {
		m.logger.Error("archiving encounter failed",
			zap.String("encounter", id),
			zap.Error(err),
		)
		return
	}
	m.logger.Info("encounter archived",
		zap.String("encounter", id),
		zap.String("winner", rec.Winner),
		zap.Int("rounds", rec.Rounds),
		zap.Int("events", len(rec.Events)),
	)
}

// Declare validates and records an action declaration.
func (m *Manager) Declare(encounterID string, d encounter.Declaration) (*encounter.Declaration, error) {
	var out *encounter.Declaration
	err := m.withEncounter(encounterID, func(e *encounter.Encounter) error {
		var err error
		out, err = e.Declare(d)
		return err
	})
	return out, err
}

// Withdraw cancels an unresolved declaration.
func (m *Manager) Withdraw(encounterID, actorID string) error {
	return m.withEncounter(encounterID, func(e *encounter.Encounter) error {
		return e.Withdraw(actorID)
	})
}

// ResolveAttack resolves a pending attack declaration.
func (m *Manager) ResolveAttack(encounterID string, d encounter.Declaration) (encounter.Resolution, error) {
	var res encounter.Resolution
	err := m.withEncounter(encounterID, func(e *encounter.Encounter) error {
		var err error
		res, err = e.ResolveAttack(d)
		return err
	})
	return res, err
}

// ResolveOpposed resolves an opposed check between two declarations.
func (m *Manager) ResolveOpposed(encounterID string, a, b encounter.Declaration) (encounter.Resolution, error) {
	var res encounter.Resolution
	err := m.withEncounter(encounterID, func(e *encounter.Encounter) error {
		var err error
		res, err = e.ResolveOpposed(a, b)
		return err
	})
	return res, err
}

// ResolveSkillCheck resolves a pending skill check against a difficulty.
func (m *Manager) ResolveSkillCheck(encounterID string, d encounter.Declaration, difficulty int) (encounter.Resolution, error) {
	var res encounter.Resolution
	err := m.withEncounter(encounterID, func(e *encounter.Encounter) error {
		var err error
		res, err = e.ResolveSkillCheck(d, difficulty)
		return err
	})
	return res, err
}

// AdvanceTurn moves the encounter to the next active combatant.
func (m *Manager) AdvanceTurn(encounterID string) (currentID string, round int, err error) {
	err = m.withEncounter(encounterID, func(e *encounter.Encounter) error {
		c, r, err := e.AdvanceTurn()
		if err != nil {
			return err
		}
		currentID, round = c.ID, r
		return nil
	})
	return currentID, round, err
}

// ApplyStatus applies a status effect to a combatant.
func (m *Manager) ApplyStatus(encounterID, combatantID, effectID string, stacks, duration int) error {
	return m.withEncounter(encounterID, func(e *encounter.Encounter) error {
		return e.ApplyStatus(combatantID, effectID, stacks, duration)
	})
}

// RemoveStatus removes an active status effect from a combatant.
func (m *Manager) RemoveStatus(encounterID, combatantID, effectID string) error {
	return m.withEncounter(encounterID, func(e *encounter.Encounter) error {
		return e.RemoveStatus(combatantID, effectID)
	})
}

// ApplyStatusDamage applies direct damage attributed to a status effect.
func (m *Manager) ApplyStatusDamage(encounterID, combatantID, effectID string, amount int) error {
	return m.withEncounter(encounterID, func(e *encounter.Encounter) error {
		return e.ApplyStatusDamage(combatantID, effectID, amount)
	})
}

// End terminates an encounter explicitly. The encounter is archived and its
// subscribers closed; the handle remains queryable until Remove.
func (m *Manager) End(encounterID string) error {
	return m.withEncounter(encounterID, func(e *encounter.Encounter) error {
		return e.End()
	})
}

// Remove drops a terminal encounter from the manager.
//
// Postcondition: Returns ErrEncounterNotFound if unknown, or an error if the
// encounter is still live.
func (m *Manager) Remove(encounterID string) error {
	h, err := m.handleFor(encounterID)
	if err != nil {
		return err
	}
	h.mu.Lock()
	over := h.enc.Over()
	h.mu.Unlock()
	if !over {
		return fmt.Errorf("encounter %q is still live", encounterID)
	}
	m.mu.Lock()
	delete(m.encounters, encounterID)
	m.mu.Unlock()
	return nil
}

// State returns the encounter's current structural snapshot.
func (m *Manager) State(encounterID string) (encounter.State, error) {
	var st encounter.State
	err := m.View(encounterID, func(e *encounter.Encounter) error {
		st = e.State()
		return nil
	})
	return st, err
}

// Events returns the encounter's log entries with Seq > since.
func (m *Manager) Events(encounterID string, since uint64) ([]encounter.Event, error) {
	var events []encounter.Event
	err := m.View(encounterID, func(e *encounter.Encounter) error {
		events = e.Log().Since(since)
		return nil
	})
	return events, err
}

// Subscribe registers a new event subscriber on the encounter. Events
// already logged are not replayed; use Events for catch-up.
func (m *Manager) Subscribe(encounterID string, bufferSize int) (*Subscriber, error) {
	h, err := m.handleFor(encounterID)
	if err != nil {
		return nil, err
	}
	s := NewSubscriber(encounterID, bufferSize)
	h.mu.Lock()
	h.subs = append(h.subs, s)
	h.mu.Unlock()
	return s, nil
}

// Count returns the number of registered encounters.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.encounters)
}
