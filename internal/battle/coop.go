package battle

import (
	"fmt"

	"mechlane/arena/internal/bots"
	"mechlane/arena/internal/callouts"
	"mechlane/arena/internal/economy"
	"mechlane/arena/internal/logging"
	"mechlane/arena/internal/skills"
)

const (
	// HeavyTier is the minimum enemy tier announced as a heavy unit.
	HeavyTier = 3
	// KillStreakCount kills by the allied side within KillStreakWindow seconds raise a callout.
	KillStreakCount  = 3
	KillStreakWindow = 5.0
	// ComboWindow is the longest gap between player and partner casts that still counts as a combo.
	ComboWindow = 2.0
	// ComboSPBonus is granted to the second caster of a combo.
	ComboSPBonus = 10.0
)

var (
	alliedBaseMarks = []float64{0.75, 0.5, 0.25}
	enemyBaseMarks  = []float64{0.5, 0.25}
)

// PartnerConfig describes the AI-controlled partner faction.
type PartnerConfig struct {
	Roster      [3]BuildDerived          `json:"roster"`
	Ratio       [3]int                   `json:"ratio"`
	Deck        [skills.SlotCount]string `json:"deck"`
	Personality bots.Personality         `json:"personality"`
}

// CoopConfig extends the solo configuration with a partner faction.
type CoopConfig struct {
	Config
	Partner PartnerConfig `json:"partner"`
}

// CoopEngine runs the player, the AI partner and the enemy on one lane.
type CoopEngine struct {
	arena
	player   *skills.System
	partner  *skills.System
	brain    *bots.Controller
	callouts *callouts.Queue

	lastCast    [ownerCount]float64
	comboOpen   [ownerCount]float64
	lastSkill   [ownerCount]string
	alliedMarks []bool
	enemyMarks  []bool
	killTimes   []float64
}

// NewCoop validates the configuration and builds a co-op engine at tick zero.
func NewCoop(cfg CoopConfig, opts ...Option) (*CoopEngine, error) {
	o := resolveOptions(opts)
	tuning := cfg.Tuning.resolve()
	problems := cfg.validate()

	factions := [ownerCount]*faction{}
	sides := [ownerCount]SideConfig{
		OwnerPlayer:  cfg.Player,
		OwnerPartner: {Roster: cfg.Partner.Roster, Ratio: cfg.Partner.Ratio},
		OwnerEnemy:   cfg.Enemy,
	}
	for owner := OwnerPlayer; owner < ownerCount; owner++ {
		f, err := newFaction(owner, sides[owner], tuning)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", owner, err))
		}
		factions[owner] = f
	}
	player, err := skills.NewSystem(cfg.Deck, o.catalog, economy.NewPool(tuning.SPStart, tuning.SPMax, tuning.SPRate))
	if err != nil {
		problems = append(problems, "deck: "+err.Error())
	}
	partner, err := skills.NewSystem(cfg.Partner.Deck, o.catalog, economy.NewPool(tuning.SPStart, tuning.SPMax, tuning.SPRate))
	if err != nil {
		problems = append(problems, "partner deck: "+err.Error())
	}
	if cfg.Partner.Personality != "" {
		if _, err := bots.ParsePersonality(string(cfg.Partner.Personality)); err != nil {
			problems = append(problems, "partner: "+err.Error())
		}
	}
	if err := joinProblems(problems); err != nil {
		return nil, err
	}

	e := &CoopEngine{
		arena:       newArena(cfg.Config, tuning, o),
		player:      player,
		partner:     partner,
		brain:       bots.NewController(cfg.Partner.Personality),
		callouts:    callouts.NewQueue(),
		alliedMarks: make([]bool, len(alliedBaseMarks)),
		enemyMarks:  make([]bool, len(enemyBaseMarks)),
	}
	e.inf = e
	e.factions = factions
	for i := range e.lastCast {
		e.lastCast[i] = -1
		e.comboOpen[i] = -1
	}
	e.observers = append(e.observers, e.observe)
	if o.observer != nil {
		e.observers = append(e.observers, o.observer)
	}
	e.logger.Info("co-op battle created",
		logging.String("personality", string(e.brain.Personality())),
		logging.Int("ticks_per_second", cfg.TicksPerSecond),
	)
	return e, nil
}

func (e *CoopEngine) effectsOf(owner Owner) *skills.EffectSet {
	switch owner {
	case OwnerPlayer:
		return e.player.Effects()
	case OwnerPartner:
		return e.partner.Effects()
	default:
		return nil
	}
}

func (e *CoopEngine) sideEffects(side Side) []*skills.EffectSet {
	if side == SidePlayer {
		return []*skills.EffectSet{e.player.Effects(), e.partner.Effects()}
	}
	return nil
}

// attackBonus applies the synergy multiplier to player units sharing a movement archetype with
// at least one alive partner unit.
func (e *CoopEngine) attackBonus(u *Unit) float64 {
	if u.Owner != OwnerPlayer {
		return 1
	}
	for i := range e.units {
		p := &e.units[i]
		if p.Owner == OwnerPartner && !p.Decoy && p.Alive() && p.Stats.Movement == u.Stats.Movement {
			return SynergyMultiplier
		}
	}
	return 1
}

// Tick advances the co-op battle by one fixed step. It is a no-op once the battle has finished.
func (e *CoopEngine) Tick() {
	if e.result != nil {
		return
	}
	//1.- Advance time and regenerate every Watt pool.
	e.tick++
	for owner := OwnerPlayer; owner < ownerCount; owner++ {
		e.regenWatt(owner)
	}
	//2.- The partner brain looks at the lane before anything moves.
	decision := e.brain.Decide(e.partnerObservation())
	//3.- Production; the partner only builds when its policy says so.
	e.produce(OwnerPlayer)
	if decision.Produce {
		e.produce(OwnerPartner)
	}
	e.produce(OwnerEnemy)
	//4.- Skill upkeep for both allied systems, then the partner's cast.
	e.maintain(OwnerPlayer, e.player)
	e.maintain(OwnerPartner, e.partner)
	if decision.UseSkill {
		e.cast(OwnerPartner, e.partner, decision.Slot)
	}
	//5.- Units act, the battle is evaluated and the narrative catches up.
	e.stepUnits()
	e.evaluate()
	e.checkBaseMarks()
	e.callouts.Tick(e.dt)
}

func (e *CoopEngine) partnerObservation() bots.Observation {
	f := e.factions[OwnerPartner]
	usable := make([]bool, skills.SlotCount)
	for slot := range usable {
		usable[slot] = e.partner.CanUse(slot)
	}
	return bots.Observation{
		Now:                e.elapsed(),
		SPFraction:         e.partner.SP().Fraction(),
		Watt:               f.watt.Amount,
		NextCost:           f.roster[f.production.Next()].WattCost,
		AlliedBaseFraction: e.field.Bases[SidePlayer].Fraction(),
		EnemiesPresent:     e.aliveCount(OwnerEnemy) > 0,
		LastPlayerSkill:    e.lastCast[OwnerPlayer],
		Usable:             usable,
	}
}

// ActivateSkill casts the human player's skill in slot. Partner casts are autonomous.
func (e *CoopEngine) ActivateSkill(slot int) bool {
	if e.result != nil {
		return false
	}
	return e.cast(OwnerPlayer, e.player, slot)
}

func (e *CoopEngine) cast(owner Owner, system *skills.System, slot int) bool {
	skill, ok := system.Activate(slot, skillApplier{a: &e.arena, owner: owner})
	if !ok {
		return false
	}
	now := e.elapsed()
	if owner == OwnerPartner {
		e.brain.RecordCast(now)
	}
	e.emit(Event{Kind: EventSkill, Owner: owner, Side: SidePlayer, Build: -1, Skill: skill.Name})
	e.announceSkill(owner, skill.Name)

	//1.- A cast landing shortly after the other allied faction's cast is a combo.
	other := OwnerPartner
	if owner == OwnerPartner {
		other = OwnerPlayer
	}
	e.lastCast[owner] = now
	e.comboOpen[owner] = now
	if opened := e.comboOpen[other]; opened >= 0 && now-opened <= ComboWindow {
		system.SP().Grant(ComboSPBonus)
		e.callouts.Push(callouts.Callout{
			Key:      "combo",
			Text:     fmt.Sprintf("Combo! %s + %s", e.lastSkill[other], skill.Name),
			Priority: callouts.Critical,
			Speaker:  OwnerPartner.String(),
		})
		e.emit(Event{Kind: EventCombo, Owner: owner, Side: SidePlayer, Build: -1, Skill: skill.Name})
		//2.- Consume the pairing so one cast cannot feed two combos.
		e.comboOpen[other] = -1
		e.comboOpen[owner] = -1
	}
	e.lastSkill[owner] = skill.Name
	e.logger.Debug("skill activated",
		logging.String("owner", owner.String()),
		logging.String("skill", skill.Name),
		logging.Int("slot", slot),
		logging.Int("tick", e.tick),
	)
	return true
}

func (e *CoopEngine) announceSkill(owner Owner, name string) {
	text := fmt.Sprintf("%s online", name)
	if owner == OwnerPartner {
		text = fmt.Sprintf("Partner deploying %s", name)
	}
	e.callouts.Push(callouts.Callout{
		Key:      "skill_" + owner.String(),
		Text:     text,
		Priority: callouts.Normal,
		Speaker:  owner.String(),
	})
}

// observe turns battle events into callouts. It reads engine state but never changes the battle.
func (e *CoopEngine) observe(ev Event) {
	switch ev.Kind {
	case EventProduced:
		if ev.Owner == OwnerEnemy && ev.Tier >= HeavyTier {
			e.callouts.Push(callouts.Callout{
				Key:      "heavy_enemy",
				Text:     fmt.Sprintf("Heavy tier %d unit inbound", ev.Tier),
				Priority: callouts.High,
				Speaker:  OwnerPartner.String(),
			})
		}
	case EventKill:
		if ev.Side != SidePlayer {
			return
		}
		now := e.elapsed()
		kept := e.killTimes[:0]
		for _, at := range e.killTimes {
			if now-at <= KillStreakWindow {
				kept = append(kept, at)
			}
		}
		e.killTimes = append(kept, now)
		if len(e.killTimes) >= KillStreakCount {
			e.callouts.Push(callouts.Callout{
				Key:      "kill_streak",
				Text:     fmt.Sprintf("%d kills in a row", len(e.killTimes)),
				Priority: callouts.High,
				Speaker:  OwnerPartner.String(),
			})
			e.killTimes = e.killTimes[:0]
		}
	}
}

// checkBaseMarks announces each base HP threshold once.
func (e *CoopEngine) checkBaseMarks() {
	allied := e.field.Bases[SidePlayer].Fraction()
	for i, mark := range alliedBaseMarks {
		if e.alliedMarks[i] || allied > mark {
			continue
		}
		e.alliedMarks[i] = true
		priority := callouts.High
		if i == len(alliedBaseMarks)-1 {
			priority = callouts.Critical
		}
		e.callouts.Push(callouts.Callout{
			Key:      fmt.Sprintf("allied_base_%d", int(mark*100)),
			Text:     fmt.Sprintf("Our base is down to %d%%", int(mark*100)),
			Priority: priority,
			Speaker:  OwnerPartner.String(),
		})
	}
	enemy := e.field.Bases[SideEnemy].Fraction()
	for i, mark := range enemyBaseMarks {
		if e.enemyMarks[i] || enemy > mark {
			continue
		}
		e.enemyMarks[i] = true
		e.callouts.Push(callouts.Callout{
			Key:      fmt.Sprintf("enemy_base_%d", int(mark*100)),
			Text:     fmt.Sprintf("Enemy base at %d%%", int(mark*100)),
			Priority: callouts.Normal,
			Speaker:  OwnerPartner.String(),
		})
	}
}

// CoopState extends State with the partner and narrative layers.
type CoopState struct {
	State
	PartnerSkills skills.Snapshot   `json:"partner_skills"`
	Partner       bots.Snapshot     `json:"partner"`
	Callouts      callouts.Snapshot `json:"callouts"`
}

// State returns a deep copy of the co-op battle state.
func (e *CoopEngine) State() CoopState {
	return CoopState{
		State:         e.snapshot(e.player),
		PartnerSkills: e.partner.Snapshot(),
		Partner:       e.brain.Snapshot(),
		Callouts:      e.callouts.Snapshot(),
	}
}

// Snapshot returns CoopState as a value for callers driving any engine through Battle.
func (e *CoopEngine) Snapshot() any {
	return e.State()
}
