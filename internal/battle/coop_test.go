package battle

import (
	"reflect"
	"testing"

	"mechlane/arena/internal/bots"
	"mechlane/arena/internal/callouts"
	"mechlane/arena/internal/logging"
	"mechlane/arena/internal/skills"
)

func testCoopConfig(playerAttack, enemyAttack float64, personality bots.Personality) CoopConfig {
	partner := testSide(playerAttack)
	return CoopConfig{
		Config: testConfig(playerAttack, enemyAttack),
		Partner: PartnerConfig{
			Roster:      partner.Roster,
			Ratio:       [3]int{1, 1, 1},
			Deck:        [3]string{"supply_drop", "afterburn", "repair_wave"},
			Personality: personality,
		},
	}
}

func newTestCoop(t *testing.T, cfg CoopConfig) *CoopEngine {
	t.Helper()
	engine, err := NewCoop(cfg, WithLogger(logging.NewTestLogger()))
	if err != nil {
		t.Fatalf("new co-op engine: %v", err)
	}
	return engine
}

func calloutKeys(snap callouts.Snapshot) map[string]callouts.Priority {
	keys := make(map[string]callouts.Priority)
	if snap.Active != nil {
		keys[snap.Active.Key] = snap.Active.Priority
	}
	for _, c := range snap.Pending {
		keys[c.Key] = c.Priority
	}
	return keys
}

func TestNewCoopRejectsBadPartner(t *testing.T) {
	cfg := testCoopConfig(40, 40, "berserk")
	cfg.Partner.Ratio = [3]int{}
	if _, err := NewCoop(cfg, WithLogger(logging.NewTestLogger())); err == nil {
		t.Fatalf("expected partner validation errors")
	}
}

func TestSynergyNeedsMatchingAlivePartner(t *testing.T) {
	engine := newTestCoop(t, testCoopConfig(40, 40, bots.Balanced))
	engine.units = append(engine.units,
		Unit{ID: 1, Owner: OwnerPlayer, Side: SidePlayer, HP: 10, MaxHP: 10, State: Moving, Stats: Stats{Movement: MovementBiped}},
		Unit{ID: 2, Owner: OwnerPlayer, Side: SidePlayer, HP: 10, MaxHP: 10, State: Moving, Stats: Stats{Movement: MovementHover}},
		Unit{ID: 3, Owner: OwnerPartner, Side: SidePlayer, HP: 10, MaxHP: 10, State: Moving, Stats: Stats{Movement: MovementBiped}},
	)

	if got := engine.attackBonus(&engine.units[0]); got != SynergyMultiplier {
		t.Fatalf("matching archetype bonus = %v", got)
	}
	if got := engine.attackBonus(&engine.units[1]); got != 1 {
		t.Fatalf("mismatched archetype bonus = %v", got)
	}
	if got := engine.attackBonus(&engine.units[2]); got != 1 {
		t.Fatalf("partner units never receive the bonus, got %v", got)
	}
	engine.units[2].TakeDamage(10)
	if got := engine.attackBonus(&engine.units[0]); got != 1 {
		t.Fatalf("dead partner still grants synergy: %v", got)
	}
}

func TestComboGrantsSPToSecondCaster(t *testing.T) {
	engine := newTestCoop(t, testCoopConfig(40, 40, bots.Balanced))
	engine.player.SP().Grant(100)

	//1.- Partner casts afterburn, then the player follows inside the combo window.
	if !engine.cast(OwnerPartner, engine.partner, 1) {
		t.Fatalf("partner cast failed")
	}
	if !engine.ActivateSkill(0) {
		t.Fatalf("player cast failed")
	}

	state := engine.State()
	if state.Skills.SP.Amount != 100-40+ComboSPBonus {
		t.Fatalf("player sp = %v", state.Skills.SP.Amount)
	}
	if state.PartnerSkills.SP.Amount != 0 {
		t.Fatalf("first caster should not receive the bonus: %v", state.PartnerSkills.SP.Amount)
	}
	keys := calloutKeys(state.Callouts)
	if keys["combo"] != callouts.Critical {
		t.Fatalf("expected critical combo callout, got %v", keys)
	}
	if _, ok := keys["skill_partner"]; !ok {
		t.Fatalf("expected partner announcement, got %v", keys)
	}
}

func TestBaseThresholdCalloutsFireOnce(t *testing.T) {
	engine := newTestCoop(t, testCoopConfig(40, 40, bots.Balanced))
	base := &engine.field.Bases[SidePlayer]

	base.HP = base.MaxHP * 0.7
	engine.checkBaseMarks()
	engine.checkBaseMarks()
	if snap := engine.callouts.Snapshot(); snap.Active == nil || snap.Active.Key != "allied_base_75" || len(snap.Pending) != 0 {
		t.Fatalf("unexpected callouts after first threshold: %+v", snap)
	}

	base.HP = base.MaxHP * 0.2
	engine.checkBaseMarks()
	keys := calloutKeys(engine.callouts.Snapshot())
	if keys["allied_base_50"] != callouts.High || keys["allied_base_25"] != callouts.Critical {
		t.Fatalf("unexpected threshold callouts: %v", keys)
	}
}

func TestHeavyEnemyAndKillStreakCallouts(t *testing.T) {
	engine := newTestCoop(t, testCoopConfig(40, 40, bots.Balanced))

	engine.observe(Event{Kind: EventProduced, Owner: OwnerEnemy, Side: SideEnemy, Tier: 2})
	if _, ok := engine.callouts.Current(); ok {
		t.Fatalf("light enemies must not be announced")
	}
	engine.observe(Event{Kind: EventProduced, Owner: OwnerEnemy, Side: SideEnemy, Tier: HeavyTier})
	if current, ok := engine.callouts.Current(); !ok || current.Key != "heavy_enemy" {
		t.Fatalf("expected heavy enemy callout, got %+v", current)
	}

	for i := 0; i < KillStreakCount; i++ {
		engine.observe(Event{Kind: EventKill, Owner: OwnerPartner, Side: SidePlayer})
	}
	if _, ok := calloutKeys(engine.callouts.Snapshot())["kill_streak"]; !ok {
		t.Fatalf("expected kill streak callout")
	}
	if len(engine.killTimes) != 0 {
		t.Fatalf("streak window should reset, got %v", engine.killTimes)
	}
}

func TestCoopBattleRunsToCompletion(t *testing.T) {
	engine := newTestCoop(t, testCoopConfig(40, 0, bots.Proactive))
	for !engine.IsFinished() {
		engine.Tick()
		state := engine.State()
		for _, f := range state.Factions {
			if f.Alive > f.Cap {
				t.Fatalf("tick %d: %s over cap", state.Tick, f.Owner)
			}
		}
	}
	result, _ := engine.Result()
	if result.Outcome != PlayerWin {
		t.Fatalf("expected player win, got %s", result.Outcome)
	}
	if result.Partner == nil {
		t.Fatalf("co-op result must carry the partner tally")
	}
	produced := 0
	for _, tally := range result.Partner {
		produced += tally.Produced
	}
	if produced == 0 {
		t.Fatalf("partner never produced")
	}
	if state := engine.State(); state.Partner.Casts == 0 {
		t.Fatalf("proactive partner never cast a skill")
	}
}

func TestCoopDeterminism(t *testing.T) {
	cfg := testCoopConfig(40, 42, bots.Reactive)
	first := newTestCoop(t, cfg)
	second := newTestCoop(t, cfg)
	for i := 0; i < 900 && !first.IsFinished(); i++ {
		if i%120 == 0 {
			first.ActivateSkill(1)
			second.ActivateSkill(1)
		}
		first.Tick()
		second.Tick()
		if !reflect.DeepEqual(first.State(), second.State()) {
			t.Fatalf("tick %d: co-op states diverged", i)
		}
	}
}

func TestPlayerProtectionCoversPartnerUnits(t *testing.T) {
	partnerDamage := func(t *testing.T, effect *skills.ActiveEffect) float64 {
		t.Helper()
		engine := newTestCoop(t, testCoopConfig(0, 0, bots.Balanced))
		engine.units = append(engine.units,
			laneUnit(1, OwnerEnemy, 5, Stats{Attack: 50, FireRate: 1, Range: 3, Movement: MovementBiped}),
			laneUnit(2, OwnerPartner, 4, Stats{Defense: 10, Range: 0.5, Movement: MovementBiped}),
		)
		if effect != nil {
			engine.player.Effects().Add(*effect)
		}
		engine.stepUnits()
		return engine.units[1].MaxHP - engine.units[1].HP
	}

	open := partnerDamage(t, nil)
	if open <= 0 {
		t.Fatalf("unprotected partner unit took no damage")
	}
	//1.- The player's invincibility blocks hits on partner units.
	if got := partnerDamage(t, &skills.ActiveEffect{Kind: skills.EffectInvincible, Remaining: 3, Duration: 3}); got != 0 {
		t.Fatalf("invincible partner unit took %v damage", got)
	}
	//2.- The player's defense boost hardens partner units.
	if got := partnerDamage(t, &skills.ActiveEffect{Kind: skills.EffectDefenseBoost, Remaining: 10, Duration: 10, Magnitude: 1.5}); got <= 0 || got >= open {
		t.Fatalf("defense boost damage = %v, want below %v", got, open)
	}

	//3.- Enemy strikes skip partner units while the player is invincible.
	engine := newTestCoop(t, testCoopConfig(0, 0, bots.Balanced))
	engine.units = append(engine.units, laneUnit(3, OwnerPartner, 10, Stats{HP: 300}))
	engine.player.Effects().Add(skills.ActiveEffect{Kind: skills.EffectInvincible, Remaining: 3, Duration: 3})
	skillApplier{a: &engine.arena, owner: OwnerEnemy}.Strike(250, 3)
	if engine.units[0].HP != 300 {
		t.Fatalf("strike hit an invincible partner unit: %v", engine.units[0].HP)
	}
}
