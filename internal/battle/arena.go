package battle

import (
	"math"
	"slices"
	"sort"

	"mechlane/arena/internal/combat"
	"mechlane/arena/internal/economy"
	"mechlane/arena/internal/logging"
	"mechlane/arena/internal/rng"
	"mechlane/arena/internal/skills"
)

// influence tells the shared step functions which effect sets buff or control a unit. The solo and
// co-op engines each provide one, so the tick body is written once.
type influence interface {
	// effectsOf returns the effect set cast by the owner, or nil when the faction has no skills.
	effectsOf(owner Owner) *skills.EffectSet
	// sideEffects returns every effect set cast by factions fighting for the side.
	sideEffects(side Side) []*skills.EffectSet
	// attackBonus returns an extra attack multiplier for the unit.
	attackBonus(u *Unit) float64
}

// faction is one unit population: roster, Watt pool, production cursor and tallies.
type faction struct {
	owner      Owner
	roster     [3]BuildDerived
	watt       economy.Pool
	production Production
	cap        int
	tally      Tally
}

func newFaction(owner Owner, cfg SideConfig, tuning constants) (*faction, error) {
	production, err := NewProduction(cfg.Ratio)
	if err != nil {
		return nil, err
	}
	return &faction{
		owner:      owner,
		roster:     cfg.Roster,
		watt:       economy.NewPool(tuning.WattStart, tuning.WattMax, tuning.WattRate),
		production: production,
		cap:        tuning.UnitCap,
	}, nil
}

// arena owns the mutable battle state shared by both engines.
type arena struct {
	battleID   string
	field      Battlefield
	units      []Unit
	nextID     int
	nextDecoy  int
	rng        *rng.Mulberry32
	factions   [ownerCount]*faction
	tick       int
	tps        int
	dt         float64
	limitTicks int
	result     *Result
	inf        influence
	logger     *logging.Logger
	observers  []func(Event)
}

func newArena(cfg Config, tuning constants, o options) arena {
	return arena{
		battleID:   cfg.BattleID,
		field:      NewBattlefield(tuning.Tiles, tuning.BaseHP, tuning.BaseDefense),
		rng:        rng.New(cfg.Seed),
		tps:        cfg.TicksPerSecond,
		dt:         1 / float64(cfg.TicksPerSecond),
		limitTicks: int(math.Ceil(cfg.TimeLimitSeconds*float64(cfg.TicksPerSecond) - 1e-9)),
		logger: o.logger.With(
			logging.String("battle_id", cfg.BattleID),
			logging.Uint32("seed", cfg.Seed),
		),
	}
}

func (a *arena) emit(ev Event) {
	ev.Tick = a.tick
	for _, observer := range a.observers {
		observer(ev)
	}
}

func (a *arena) elapsed() float64 {
	return float64(a.tick) / float64(a.tps)
}

// aliveCount counts alive non-decoy units of the owner.
func (a *arena) aliveCount(owner Owner) int {
	n := 0
	for i := range a.units {
		if u := &a.units[i]; u.Owner == owner && !u.Decoy && u.Alive() {
			n++
		}
	}
	return n
}

// aliveOnSide counts alive non-decoy units fighting for the side.
func (a *arena) aliveOnSide(side Side) int {
	n := 0
	for i := range a.units {
		if u := &a.units[i]; u.Side == side && !u.Decoy && u.Alive() {
			n++
		}
	}
	return n
}

func (a *arena) regenWatt(owner Owner) {
	f := a.factions[owner]
	if f == nil {
		return
	}
	f.watt.Regen(a.dt, a.inf.effectsOf(owner).Multiplier(skills.EffectWattBoost))
}

// produce attempts one production for the owner. A capped or unaffordable attempt mutates nothing.
func (a *arena) produce(owner Owner) bool {
	f := a.factions[owner]
	if f == nil {
		return false
	}
	//1.- Enforce the cap before touching the Watt pool.
	if a.aliveCount(owner) >= f.cap {
		return false
	}
	//2.- Spend for the queued build or give up untouched.
	slot := f.production.Next()
	build := f.roster[slot]
	if !f.watt.Spend(build.WattCost) {
		return false
	}
	//3.- Spawn at the base and advance the round robin.
	a.nextID++
	side := owner.Side()
	a.units = append(a.units, Unit{
		ID:       a.nextID,
		Owner:    owner,
		Side:     side,
		Build:    slot,
		Tier:     build.Tier,
		Cost:     build.WattCost,
		Position: a.field.BasePosition(side),
		HP:       build.Stats.HP,
		MaxHP:    build.Stats.HP,
		Stats:    build.Stats,
		State:    Moving,
	})
	f.production.Advance()
	f.tally[slot].Produced++
	a.emit(Event{Kind: EventProduced, Owner: owner, Side: side, UnitID: a.nextID, Build: slot, Tier: build.Tier})
	return true
}

// maintain runs SP regeneration and effect/cooldown upkeep, splicing out decoys whose effect ended.
func (a *arena) maintain(owner Owner, system *skills.System) {
	for _, expired := range system.Tick(a.dt) {
		if expired.Kind == skills.EffectDecoy {
			a.removeDecoys(owner, expired.DecoyIDs)
		}
	}
}

func (a *arena) removeDecoys(owner Owner, ids []int) {
	if len(ids) == 0 {
		return
	}
	a.units = slices.DeleteFunc(a.units, func(u Unit) bool {
		return u.Decoy && slices.Contains(ids, u.ID)
	})
	a.emit(Event{Kind: EventDecoysExpired, Owner: owner, Side: owner.Side(), Build: -1})
}

func (a *arena) hostileHas(u *Unit, kind skills.EffectKind) bool {
	for _, set := range a.inf.sideEffects(u.Side.Opponent()) {
		if set.Has(kind) {
			return true
		}
	}
	return false
}

// alliedHas reports whether any faction on the unit's side holds the effect.
func (a *arena) alliedHas(u *Unit, kind skills.EffectKind) bool {
	for _, set := range a.inf.sideEffects(u.Side) {
		if set.Has(kind) {
			return true
		}
	}
	return false
}

// alliedMultiplier combines the magnitudes of an effect held by any faction on the unit's side.
func (a *arena) alliedMultiplier(u *Unit, kind skills.EffectKind) float64 {
	m := 1.0
	for _, set := range a.inf.sideEffects(u.Side) {
		m *= set.Multiplier(kind)
	}
	return m
}

// enemiesOf lists alive units opposing the side in iteration order, plus their arena indices.
func (a *arena) enemiesOf(side Side) ([]combat.Candidate, []int) {
	candidates := make([]combat.Candidate, 0, len(a.units))
	indices := make([]int, 0, len(a.units))
	for i := range a.units {
		if u := &a.units[i]; u.Side != side && u.Alive() {
			candidates = append(candidates, u.candidate())
			indices = append(indices, i)
		}
	}
	return candidates, indices
}

// stepUnits lets every unit act once in stable insertion order.
func (a *arena) stepUnits() {
	for i := range a.units {
		u := &a.units[i]
		if !u.Alive() || u.Decoy {
			continue
		}
		//1.- Freeze from the opposing side or stun from the own faction skips the unit entirely.
		own := a.inf.effectsOf(u.Owner)
		if a.hostileHas(u, skills.EffectFreeze) || own.Has(skills.EffectStun) {
			continue
		}
		if u.Cooldown > 0 {
			u.Cooldown = skills.Countdown(u.Cooldown, a.dt)
		}

		//2.- Look for an enemy unit in range.
		focus := combat.NoFocus
		if effect, ok := own.Get(skills.EffectFocus); ok {
			focus = effect.TargetID
		}
		candidates, indices := a.enemiesOf(u.Side)
		attacker := combat.Attacker{Position: u.Position, Range: u.Stats.Range, Special: u.Stats.Special}
		if target, ok := combat.FindTarget(attacker, candidates, a.hostileHas(u, skills.EffectScramble), focus, a.rng); ok {
			u.State = Attacking
			u.TargetID = candidates[target].ID
			if a.ready(u) {
				a.fire(u, candidates, indices, target)
				a.resetCooldown(u)
			}
			continue
		}

		//3.- Otherwise shell the enemy base when it is in range.
		if u.InRange(a.field.BasePosition(u.Side.Opponent())) {
			u.State = Attacking
			u.TargetID = 0
			if a.ready(u) {
				a.hitBase(u)
				a.resetCooldown(u)
			}
			continue
		}

		//4.- Otherwise advance toward the enemy side.
		u.State = Moving
		u.TargetID = 0
		speed := u.Stats.TilesPerSecond * own.Multiplier(skills.EffectSpeedBoost)
		u.Position = a.field.Clamp(u.Position + u.Side.Direction()*speed*a.dt)
	}
}

func (a *arena) ready(u *Unit) bool {
	return u.Cooldown <= 0 && u.Stats.FireRate > 0
}

func (a *arena) resetCooldown(u *Unit) {
	rate := u.Stats.FireRate * a.inf.effectsOf(u.Owner).Multiplier(skills.EffectFireRateBoost)
	if rate > 0 {
		u.Cooldown = 1 / rate
	}
}

func (a *arena) effectiveAttack(u *Unit) float64 {
	return u.Stats.Attack * a.inf.effectsOf(u.Owner).Multiplier(skills.EffectAttackBoost) * a.inf.attackBonus(u)
}

// fire resolves one shot, fanning out to every splash victim around the primary target.
func (a *arena) fire(u *Unit, candidates []combat.Candidate, indices []int, primary int) {
	attack := a.effectiveAttack(u)
	victims := []int{primary}
	if profile := combat.HitProfileOf(u.Stats.Special); profile.Kind == combat.HitSplash {
		victims = combat.SplashVictims(primary, candidates, profile.Range)
	}
	for _, v := range victims {
		a.hitUnit(u, attack, &a.units[indices[v]], v != primary)
	}
}

func (a *arena) hitUnit(u *Unit, attack float64, target *Unit, splash bool) {
	strike := combat.Strike{AttackerID: u.ID, TargetID: target.ID, Splash: splash}
	switch {
	case a.alliedHas(target, skills.EffectInvincible):
		strike.Blocked = true
	case combat.Evades(u.Stats.Movement.CanFly(), target.Stats.Movement.CanFly(), a.rng):
		strike.Evaded = true
	default:
		defense := target.Stats.Defense * a.alliedMultiplier(target, skills.EffectDefenseBoost)
		damage := combat.PerHitDamage(attack, u.Stats.FireRate, defense, target.MaxHP, u.Stats.Special)
		strike.Damage, strike.Lethal = target.TakeDamage(damage)
		a.credit(u.Owner, u.Build, target, strike.Damage, strike.Lethal)
	}
	if a.logger.Enabled(logging.DebugLevel) {
		a.logger.Debug("strike resolved", append(strike.LoggingFields(), logging.Int("tick", a.tick))...)
	}
}

// credit books damage and kills. Decoys are not part of any tally; build is -1 for skill damage.
func (a *arena) credit(owner Owner, build int, target *Unit, damage float64, lethal bool) {
	if target.Decoy {
		return
	}
	if f := a.factions[owner]; f != nil && build >= 0 {
		f.tally[build].Damage += damage
		if lethal {
			f.tally[build].Kills++
		}
	}
	if !lethal {
		return
	}
	if f := a.factions[target.Owner]; f != nil && target.Build >= 0 {
		f.tally[target.Build].Deaths++
	}
	a.emit(Event{Kind: EventKill, Owner: owner, Side: owner.Side(), Build: build, TargetID: target.ID, Damage: damage})
}

func (a *arena) hitBase(u *Unit) {
	side := u.Side.Opponent()
	base := &a.field.Bases[side]
	damage := combat.PerHitDamage(a.effectiveAttack(u), u.Stats.FireRate, base.Defense, base.MaxHP, u.Stats.Special)
	applied := base.takeDamage(damage * a.shieldFactor(side))
	if f := a.factions[u.Owner]; f != nil {
		f.tally[u.Build].Damage += applied
	}
	if applied > 0 {
		a.emit(Event{Kind: EventBaseHit, Owner: u.Owner, Side: side, UnitID: u.ID, Build: u.Build, Damage: applied})
	}
}

func (a *arena) shieldFactor(side Side) float64 {
	factor := 1.0
	for _, set := range a.inf.sideEffects(side) {
		if effect, ok := set.Get(skills.EffectBaseShield); ok {
			factor *= 1 - math.Min(1, math.Max(0, effect.Magnitude))
		}
	}
	return factor
}

// evaluate settles the battle when a base falls or the time limit is reached.
func (a *arena) evaluate() {
	player, enemy := a.field.Bases[SidePlayer], a.field.Bases[SideEnemy]
	switch {
	case player.Destroyed() && enemy.Destroyed():
		a.finish(compare(float64(a.aliveOnSide(SidePlayer)), float64(a.aliveOnSide(SideEnemy))))
	case enemy.Destroyed():
		a.finish(PlayerWin)
	case player.Destroyed():
		a.finish(EnemyWin)
	case a.tick >= a.limitTicks:
		a.finish(compare(player.Fraction(), enemy.Fraction()))
	}
}

func compare(player, enemy float64) Outcome {
	switch {
	case player > enemy:
		return PlayerWin
	case enemy > player:
		return EnemyWin
	default:
		return Draw
	}
}

func (a *arena) finish(outcome Outcome) {
	result := &Result{
		BattleID:       a.battleID,
		Outcome:        outcome,
		ElapsedSeconds: a.elapsed(),
		Ticks:          a.tick,
	}
	if f := a.factions[OwnerPlayer]; f != nil {
		result.Player = f.tally
	}
	if f := a.factions[OwnerEnemy]; f != nil {
		result.Enemy = f.tally
	}
	if f := a.factions[OwnerPartner]; f != nil {
		partner := f.tally
		result.Partner = &partner
	}
	a.result = result
	a.logger.Info("battle finished",
		logging.String("outcome", string(outcome)),
		logging.Int("ticks", a.tick),
		logging.Float64("elapsed_seconds", result.ElapsedSeconds),
	)
	a.emit(Event{Kind: EventFinished, Outcome: outcome, Build: -1})
}

// frontmost returns the alive non-decoy enemy closest to the side's base, or NoFocus.
func (a *arena) frontmost(side Side) int {
	home := a.field.BasePosition(side)
	best, bestDist := combat.NoFocus, math.Inf(1)
	for i := range a.units {
		u := &a.units[i]
		if u.Side == side || u.Decoy || !u.Alive() {
			continue
		}
		if d := math.Abs(u.Position - home); d < bestDist {
			best, bestDist = u.ID, d
		}
	}
	return best
}

// skillApplier executes instant skill effects for one faction.
type skillApplier struct {
	a     *arena
	owner Owner
}

func (s skillApplier) HealAllies(percent float64) {
	side := s.owner.Side()
	for i := range s.a.units {
		if u := &s.a.units[i]; u.Side == side && !u.Decoy && u.Alive() {
			u.Heal(u.MaxHP * percent)
		}
	}
}

// Strike hits the count enemies nearest the centroid of the alive enemy formation.
func (s skillApplier) Strike(damage float64, count int) {
	a := s.a
	side := s.owner.Side().Opponent()
	var targets []int
	centroid := 0.0
	for i := range a.units {
		if u := &a.units[i]; u.Side == side && !u.Decoy && u.Alive() {
			targets = append(targets, i)
			centroid += u.Position
		}
	}
	if len(targets) == 0 {
		return
	}
	centroid /= float64(len(targets))
	sort.SliceStable(targets, func(i, j int) bool {
		return math.Abs(a.units[targets[i]].Position-centroid) < math.Abs(a.units[targets[j]].Position-centroid)
	})
	if len(targets) > count {
		targets = targets[:count]
	}
	for _, idx := range targets {
		target := &a.units[idx]
		if a.alliedHas(target, skills.EffectInvincible) {
			continue
		}
		applied, lethal := target.TakeDamage(damage)
		a.credit(s.owner, -1, target, applied, lethal)
	}
}

// Regroup pulls the faction's units back toward their base and patches them up.
func (s skillApplier) Regroup(retreat, healPercent float64) {
	a := s.a
	for i := range a.units {
		u := &a.units[i]
		if u.Owner != s.owner || u.Decoy || !u.Alive() {
			continue
		}
		u.Position = a.field.Clamp(u.Position - u.Side.Direction()*retreat)
		u.Heal(u.MaxHP * healPercent)
		u.State = Moving
		u.TargetID = 0
	}
}

func (s skillApplier) GrantWatt(amount float64) {
	if f := s.a.factions[s.owner]; f != nil {
		f.watt.Grant(amount)
	}
}

// SpawnDecoys places stationary decoys at the lane fractions, using the negative identity space.
func (s skillApplier) SpawnDecoys(slots []float64, hp float64) []int {
	a := s.a
	side := s.owner.Side()
	ids := make([]int, 0, len(slots))
	for _, slot := range slots {
		a.nextDecoy--
		a.units = append(a.units, Unit{
			ID:       a.nextDecoy,
			Owner:    s.owner,
			Side:     side,
			Build:    -1,
			Decoy:    true,
			Position: a.field.SlotPosition(side, slot),
			HP:       hp,
			MaxHP:    hp,
			Stats:    Stats{HP: hp, Movement: MovementBiped, Mount: MountArm},
			State:    Moving,
		})
		ids = append(ids, a.nextDecoy)
	}
	return ids
}

func (s skillApplier) FocusTarget() int {
	return s.a.frontmost(s.owner.Side())
}

// FactionState is the snapshot of one faction's economy.
type FactionState struct {
	Owner      Owner        `json:"owner"`
	Watt       economy.Pool `json:"watt"`
	Production Production   `json:"production"`
	Cap        int          `json:"cap"`
	Alive      int          `json:"alive"`
}

// State is a read-only snapshot of a battle.
type State struct {
	BattleID string          `json:"battle_id"`
	Tick     int             `json:"tick"`
	Elapsed  float64         `json:"elapsed"`
	Field    Battlefield     `json:"field"`
	Units    []Unit          `json:"units"`
	Factions []FactionState  `json:"factions"`
	Skills   skills.Snapshot `json:"skills"`
	RNG      uint32          `json:"rng"`
	Result   *Result         `json:"result,omitempty"`
}

func (a *arena) snapshot(player *skills.System) State {
	state := State{
		BattleID: a.battleID,
		Tick:     a.tick,
		Elapsed:  a.elapsed(),
		Field:    a.field,
		Units:    append([]Unit(nil), a.units...),
		Skills:   player.Snapshot(),
		RNG:      a.rng.State(),
		Result:   a.result.clone(),
	}
	for _, f := range a.factions {
		if f == nil {
			continue
		}
		state.Factions = append(state.Factions, FactionState{
			Owner:      f.owner,
			Watt:       f.watt,
			Production: f.production.clone(),
			Cap:        f.cap,
			Alive:      a.aliveCount(f.owner),
		})
	}
	return state
}
