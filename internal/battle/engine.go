package battle

import (
	"mechlane/arena/internal/economy"
	"mechlane/arena/internal/logging"
	"mechlane/arena/internal/skills"
)

// Engine is the solo battle: the human player against the enemy AI roster. It is single-threaded;
// callers serialise Tick and ActivateSkill.
type Engine struct {
	arena
	skills *skills.System
}

// New validates the configuration and builds an engine at tick zero.
func New(cfg Config, opts ...Option) (*Engine, error) {
	o := resolveOptions(opts)
	tuning := cfg.Tuning.resolve()
	problems := cfg.validate()

	player, err := newFaction(OwnerPlayer, cfg.Player, tuning)
	if err != nil {
		problems = append(problems, "player: "+err.Error())
	}
	enemy, err := newFaction(OwnerEnemy, cfg.Enemy, tuning)
	if err != nil {
		problems = append(problems, "enemy: "+err.Error())
	}
	system, err := skills.NewSystem(cfg.Deck, o.catalog, economy.NewPool(tuning.SPStart, tuning.SPMax, tuning.SPRate))
	if err != nil {
		problems = append(problems, "deck: "+err.Error())
	}
	if err := joinProblems(problems); err != nil {
		return nil, err
	}

	e := &Engine{arena: newArena(cfg, tuning, o), skills: system}
	e.inf = e
	e.factions[OwnerPlayer] = player
	e.factions[OwnerEnemy] = enemy
	if o.observer != nil {
		e.observers = append(e.observers, o.observer)
	}
	e.logger.Info("battle created", logging.Int("ticks_per_second", cfg.TicksPerSecond), logging.Int("limit_ticks", e.limitTicks))
	return e, nil
}

func (e *Engine) effectsOf(owner Owner) *skills.EffectSet {
	if owner == OwnerPlayer {
		return e.skills.Effects()
	}
	return nil
}

func (e *Engine) sideEffects(side Side) []*skills.EffectSet {
	if side == SidePlayer {
		return []*skills.EffectSet{e.skills.Effects()}
	}
	return nil
}

func (e *Engine) attackBonus(*Unit) float64 { return 1 }

// Tick advances the battle by one fixed step. It is a no-op once the battle has finished.
func (e *Engine) Tick() {
	if e.result != nil {
		return
	}
	//1.- Advance time and regenerate Watt.
	e.tick++
	e.regenWatt(OwnerPlayer)
	e.regenWatt(OwnerEnemy)
	//2.- One production attempt per faction.
	e.produce(OwnerPlayer)
	e.produce(OwnerEnemy)
	//3.- SP regeneration, effect expiry and cooldowns.
	e.maintain(OwnerPlayer, e.skills)
	//4.- Units act in insertion order.
	e.stepUnits()
	//5.- Settle the battle if a terminal condition holds.
	e.evaluate()
}

// ActivateSkill casts the player's skill in slot. It returns false and leaves the battle untouched
// when the slot is unbound, cooling down, unaffordable, or the battle is over.
func (e *Engine) ActivateSkill(slot int) bool {
	if e.result != nil {
		return false
	}
	skill, ok := e.skills.Activate(slot, skillApplier{a: &e.arena, owner: OwnerPlayer})
	if !ok {
		return false
	}
	e.emit(Event{Kind: EventSkill, Owner: OwnerPlayer, Side: SidePlayer, Build: -1, Skill: skill.Name})
	e.logger.Debug("skill activated", logging.String("skill", skill.Name), logging.Int("slot", slot), logging.Int("tick", e.tick))
	return true
}

// State returns a deep copy of the battle state.
func (e *Engine) State() State {
	return e.snapshot(e.skills)
}

// Snapshot returns State as a value for callers driving any engine through Battle.
func (e *Engine) Snapshot() any {
	return e.State()
}
