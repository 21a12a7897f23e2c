package battle

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"mechlane/arena/internal/combat"
	"mechlane/arena/internal/logging"
	"mechlane/arena/internal/skills"
)

func testBuild(name string, attack float64, movement MovementType) BuildDerived {
	return BuildDerived{
		Name:        name,
		TotalWeight: 40,
		Tier:        1,
		WattCost:    100,
		Stats: Stats{
			Speed:          50,
			TilesPerSecond: 1,
			Defense:        10,
			Attack:         attack,
			Range:          2,
			FireRate:       1,
			HP:             200,
			Movement:       movement,
			Mount:          MountArm,
		},
	}
}

func testSide(attack float64) SideConfig {
	return SideConfig{
		Roster: [3]BuildDerived{
			testBuild("striker", attack, MovementBiped),
			testBuild("walker", attack, MovementQuad),
			testBuild("tank", attack, MovementTread),
		},
		Ratio: [3]int{2, 1, 1},
	}
}

func testConfig(playerAttack, enemyAttack float64) Config {
	return Config{
		BattleID:         "test-battle",
		Player:           testSide(playerAttack),
		Enemy:            testSide(enemyAttack),
		Deck:             [3]string{"rally", "barrage", "holo_decoys"},
		Seed:             42,
		TicksPerSecond:   10,
		TimeLimitSeconds: 180,
	}
}

func newTestEngine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(logging.NewTestLogger())}, opts...)
	engine, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(40, 40)
	cfg.TicksPerSecond = 0
	cfg.Enemy.Ratio = [3]int{0, 0, 0}
	cfg.Deck[1] = "warp_drive"

	_, err := New(cfg, WithLogger(logging.NewTestLogger()))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	for _, want := range []string{"ticks per second", "enemy", "warp_drive"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err.Error())
		}
	}
}

func TestTuningRejectsNegativeOptionalValues(t *testing.T) {
	cfg := testConfig(40, 40)
	cfg.Tuning.SPStart = Float64(-1)
	cfg.Tuning.BaseDefense = Float64(-2)
	_, err := New(cfg, WithLogger(logging.NewTestLogger()))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	for _, want := range []string{"sp_start", "base_defense"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err.Error())
		}
	}

	//1.- A zero start is honoured rather than replaced by the default.
	cfg = testConfig(40, 40)
	cfg.Tuning.SPStart = Float64(0)
	if sp := newTestEngine(t, cfg).State().Skills.SP.Amount; sp != 0 {
		t.Fatalf("sp start = %v, want 0", sp)
	}
}

func TestTickKeepsResourceAndCapBounds(t *testing.T) {
	cfg := testConfig(40, 35)
	cfg.Tuning.UnitCap = 4
	engine := newTestEngine(t, cfg)

	for i := 0; i < 1800 && !engine.IsFinished(); i++ {
		if i%100 == 0 {
			engine.ActivateSkill(i / 100 % 3)
		}
		engine.Tick()
		state := engine.State()
		for _, f := range state.Factions {
			//1.- Watt stays inside its bounds and the cap is never exceeded.
			if f.Watt.Amount < 0 || f.Watt.Amount > f.Watt.Max {
				t.Fatalf("tick %d: %s watt out of bounds: %v", state.Tick, f.Owner, f.Watt.Amount)
			}
			if f.Alive > f.Cap {
				t.Fatalf("tick %d: %s has %d alive units over cap %d", state.Tick, f.Owner, f.Alive, f.Cap)
			}
		}
		if sp := state.Skills.SP; sp.Amount < 0 || sp.Amount > sp.Max {
			t.Fatalf("tick %d: sp out of bounds: %v", state.Tick, sp.Amount)
		}
		for _, u := range state.Units {
			//2.- HP and positions stay clamped.
			if u.HP < 0 || u.HP > u.MaxHP {
				t.Fatalf("tick %d: unit %d hp %v outside [0,%v]", state.Tick, u.ID, u.HP, u.MaxHP)
			}
			if u.Position < 0 || u.Position > float64(state.Field.Tiles) {
				t.Fatalf("tick %d: unit %d left the lane at %v", state.Tick, u.ID, u.Position)
			}
		}
	}
}

func TestProductionWithoutWattChangesNothing(t *testing.T) {
	cfg := testConfig(40, 40)
	for i := range cfg.Player.Roster {
		cfg.Player.Roster[i].WattCost = 900
		cfg.Enemy.Roster[i].WattCost = 900
	}
	cfg.Tuning.WattStart = Float64(1)
	cfg.Tuning.WattRate = Float64(1)
	engine := newTestEngine(t, cfg)

	engine.Tick()
	state := engine.State()
	if len(state.Units) != 0 {
		t.Fatalf("expected no units, got %d", len(state.Units))
	}
	for _, f := range state.Factions {
		if f.Production.Cursor != 0 {
			t.Fatalf("%s cursor advanced to %d", f.Owner, f.Production.Cursor)
		}
		if diff := f.Watt.Amount - 1.1; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("%s watt = %v, want 1.1", f.Owner, f.Watt.Amount)
		}
	}
}

func TestProductionFollowsRatioBlocks(t *testing.T) {
	engine := newTestEngine(t, testConfig(0, 0))
	var builds []int
	for i := 0; i < 200 && len(builds) < 5; i++ {
		engine.Tick()
		builds = builds[:0]
		for _, u := range engine.State().Units {
			if u.Owner == OwnerPlayer {
				builds = append(builds, u.Build)
			}
		}
	}
	if want := []int{0, 0, 1, 2, 0}; !reflect.DeepEqual(builds, want) {
		t.Fatalf("production order = %v, want %v", builds, want)
	}
}

func TestSameSeedSameCommandsSameStates(t *testing.T) {
	cfg := testConfig(40, 38)
	cfg.Player.Roster[1].Stats.Movement = MovementFlying
	cfg.Enemy.Roster[2].Stats.Special = combat.Splash(1.5)
	first := newTestEngine(t, cfg)
	second := newTestEngine(t, cfg)

	for i := 0; i < 1200 && !first.IsFinished(); i++ {
		if i == 150 || i == 400 || i == 700 {
			//1.- Identical commands at identical ticks.
			if first.ActivateSkill(i%3) != second.ActivateSkill(i%3) {
				t.Fatalf("tick %d: activation results diverged", i)
			}
		}
		first.Tick()
		second.Tick()
		if !reflect.DeepEqual(first.State(), second.State()) {
			t.Fatalf("tick %d: states diverged", i)
		}
	}
}

func TestFinishedBattleIsStable(t *testing.T) {
	cfg := testConfig(0, 0)
	cfg.TimeLimitSeconds = 5
	engine := newTestEngine(t, cfg)

	for i := 0; i < 50; i++ {
		engine.Tick()
	}
	if !engine.IsFinished() {
		t.Fatalf("expected battle to finish at the time limit")
	}
	result, ok := engine.Result()
	if !ok || result.Outcome != Draw {
		t.Fatalf("expected draw, got %+v", result)
	}
	if result.Ticks != 50 || result.ElapsedSeconds != 5 {
		t.Fatalf("unexpected timing: ticks=%d elapsed=%v", result.Ticks, result.ElapsedSeconds)
	}

	engine.skills.SP().Grant(100)
	before := engine.State()
	if engine.ActivateSkill(0) {
		t.Fatalf("activation after the result must fail")
	}
	engine.Tick()
	engine.Tick()
	if !reflect.DeepEqual(before, engine.State()) {
		t.Fatalf("state changed after the battle finished")
	}
}

func TestZeroAttackSideLoses(t *testing.T) {
	engine := newTestEngine(t, testConfig(40, 0))
	for !engine.IsFinished() {
		engine.Tick()
	}
	result, _ := engine.Result()
	if result.Outcome != PlayerWin {
		t.Fatalf("expected player win, got %s", result.Outcome)
	}
	if result.BattleID != "test-battle" {
		t.Fatalf("battle id not propagated: %q", result.BattleID)
	}
	var produced, damage float64
	for _, tally := range result.Player {
		produced += float64(tally.Produced)
		damage += tally.Damage
	}
	if produced == 0 || damage == 0 {
		t.Fatalf("expected player tallies, got %+v", result.Player)
	}
	for _, tally := range result.Enemy {
		if tally.Damage != 0 {
			t.Fatalf("zero-attack enemy dealt damage: %+v", result.Enemy)
		}
	}
}

func TestActivateSkillGating(t *testing.T) {
	cfg := testConfig(0, 0)
	cfg.Deck[2] = ""
	engine := newTestEngine(t, cfg)
	engine.skills.SP().Drain()

	//1.- Unaffordable, unbound and out-of-range slots are rejected without side effects.
	before := engine.State()
	for _, slot := range []int{0, 2, -1, 3} {
		if engine.ActivateSkill(slot) {
			t.Fatalf("slot %d should be rejected", slot)
		}
	}
	if !reflect.DeepEqual(before, engine.State()) {
		t.Fatalf("rejected activation mutated state")
	}

	//2.- With SP the skill lands once, then the cooldown blocks it.
	engine.skills.SP().Grant(100)
	if !engine.ActivateSkill(0) {
		t.Fatalf("expected rally to activate")
	}
	state := engine.State()
	if state.Skills.SP.Amount != 60 {
		t.Fatalf("sp after rally = %v, want 60", state.Skills.SP.Amount)
	}
	if len(state.Skills.Effects) != 1 || state.Skills.Effects[0].Remaining != 10 {
		t.Fatalf("unexpected effects: %+v", state.Skills.Effects)
	}
	if engine.ActivateSkill(0) {
		t.Fatalf("cooldown should block a second rally")
	}
}

func TestSplashHitsClusterOnly(t *testing.T) {
	engine := newTestEngine(t, testConfig(0, 0))
	attacker := Unit{ID: 100, Owner: OwnerPlayer, Side: SidePlayer, Build: 0, HP: 200, MaxHP: 200, State: Moving,
		Stats: Stats{Attack: 40, FireRate: 1, Range: 6, Defense: 10, HP: 200, Movement: MovementBiped, Special: combat.Splash(2)}}
	engine.units = append(engine.units, attacker)
	for i, position := range []float64{5, 4, 6, 8} {
		engine.units = append(engine.units, Unit{ID: 101 + i, Owner: OwnerEnemy, Side: SideEnemy, Build: 0,
			Position: position, HP: 200, MaxHP: 200, State: Moving,
			Stats: Stats{FireRate: 1, Range: 1, Defense: 10, HP: 200, Movement: MovementBiped}})
	}

	engine.stepUnits()

	for _, u := range engine.units[1:4] {
		if u.HP != 168 {
			t.Fatalf("unit %d at %v: hp = %v, want 168", u.ID, u.Position, u.HP)
		}
	}
	if far := engine.units[4]; far.HP != 200 {
		t.Fatalf("unit outside the splash radius was hit: %v", far.HP)
	}
	if engine.units[0].TargetID != 101 {
		t.Fatalf("primary target = %d, want 101", engine.units[0].TargetID)
	}
	if engine.factions[OwnerPlayer].tally[0].Damage != 96 {
		t.Fatalf("tallied damage = %v, want 96", engine.factions[OwnerPlayer].tally[0].Damage)
	}
}

func TestStrikeHitsUnitsNearestCentroid(t *testing.T) {
	engine := newTestEngine(t, testConfig(0, 0))
	for i, position := range []float64{10, 12, 14, 20} {
		engine.units = append(engine.units, Unit{ID: 1 + i, Owner: OwnerEnemy, Side: SideEnemy, Build: 1,
			Position: position, HP: 300, MaxHP: 300, State: Moving, Stats: Stats{HP: 300}})
	}
	skillApplier{a: &engine.arena, owner: OwnerPlayer}.Strike(250, 3)

	for _, u := range engine.units[:3] {
		if u.HP != 50 {
			t.Fatalf("unit at %v: hp = %v, want 50", u.Position, u.HP)
		}
	}
	if engine.units[3].HP != 300 {
		t.Fatalf("outlier was struck: %v", engine.units[3].HP)
	}
}

func TestInvincibleBlocksDamage(t *testing.T) {
	engine := newTestEngine(t, testConfig(0, 0))
	engine.units = append(engine.units,
		Unit{ID: 1, Owner: OwnerEnemy, Side: SideEnemy, Position: 5, HP: 200, MaxHP: 200, State: Moving,
			Stats: Stats{Attack: 50, FireRate: 1, Range: 3, HP: 200, Movement: MovementBiped}},
		Unit{ID: 2, Owner: OwnerPlayer, Side: SidePlayer, Position: 4, HP: 200, MaxHP: 200, State: Moving,
			Stats: Stats{FireRate: 1, Range: 0.5, HP: 200, Movement: MovementBiped}},
	)
	engine.skills.Effects().Add(skills.ActiveEffect{Kind: skills.EffectInvincible, Remaining: 3, Duration: 3})

	engine.stepUnits()
	if engine.units[1].HP != 200 {
		t.Fatalf("invincible unit took damage: %v", engine.units[1].HP)
	}
}

func TestDecoysSpawnAndExpire(t *testing.T) {
	var expired int
	engine := newTestEngine(t, testConfig(0, 0), WithObserver(func(ev Event) {
		if ev.Kind == EventDecoysExpired {
			expired++
		}
	}))
	engine.skills.SP().Grant(100)
	if !engine.ActivateSkill(2) {
		t.Fatalf("expected decoys to deploy")
	}

	decoys := func() []Unit {
		var out []Unit
		for _, u := range engine.State().Units {
			if u.Decoy {
				out = append(out, u)
			}
		}
		return out
	}
	placed := decoys()
	if len(placed) != 3 {
		t.Fatalf("expected 3 decoys, got %d", len(placed))
	}
	for i, u := range placed {
		if u.ID >= 0 {
			t.Fatalf("decoy %d has non-negative id %d", i, u.ID)
		}
	}
	if math.Abs(placed[0].Position-0.3*DefaultTiles) > 1e-9 {
		t.Fatalf("first decoy at %v", placed[0].Position)
	}

	for i := 0; i < 70; i++ {
		engine.Tick()
	}
	if len(decoys()) != 3 || expired != 0 {
		t.Fatalf("decoys expired early")
	}
	for i := 0; i < 15; i++ {
		engine.Tick()
	}
	if len(decoys()) != 0 || expired != 1 {
		t.Fatalf("decoys still present: %d (expired events %d)", len(decoys()), expired)
	}
}
