package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mechlane/arena/internal/battle"
	"mechlane/arena/internal/bots"
	"mechlane/arena/internal/combat"
	"mechlane/arena/internal/logging"
)

const coopDocument = `
name: duo
seed: 7
ticks_per_second: 20
time_limit_seconds: 90
deck: [rally]
tuning: {unit_cap: 6}
player:
  ratio: [1, 1, 1]
  roster:
    - {name: a, watt_cost: 100, stats: {tiles_per_second: 1, range: 2, fire_rate: 1, hp: 100, attack: 20}}
    - {name: b, watt_cost: 100, stats: {tiles_per_second: 1, range: 2, fire_rate: 1, hp: 100, attack: 20, movement: hover}}
    - {name: c, watt_cost: 100, stats: {tiles_per_second: 1, range: 2, fire_rate: 1, hp: 100, attack: 20, special: {kind: splash, splash_range: 2}}}
enemy:
  ratio: [1, 0, 0]
  roster:
    - {name: x, tier: 3, watt_cost: 100, stats: {tiles_per_second: 1, range: 2, fire_rate: 1, hp: 100, attack: 20}}
    - {name: y, watt_cost: 100, stats: {tiles_per_second: 1, range: 2, fire_rate: 1, hp: 100}}
    - {name: z, watt_cost: 100, stats: {tiles_per_second: 1, range: 2, fire_rate: 1, hp: 100}}
partner:
  personality: proactive
  deck: [supply_drop, afterburn]
  ratio: [1, 1, 0]
  roster:
    - {name: p, watt_cost: 80, stats: {tiles_per_second: 1, range: 2, fire_rate: 1, hp: 90, attack: 15}}
    - {name: q, watt_cost: 80, stats: {tiles_per_second: 1, range: 2, fire_rate: 1, hp: 90, attack: 15, movement: hover}}
    - {name: r, watt_cost: 80, stats: {tiles_per_second: 1, range: 2, fire_rate: 1, hp: 90, attack: 15}}
`

func TestDefaultScenarioBuildsAnEngine(t *testing.T) {
	doc := Default()
	if doc.IsCoop() {
		t.Fatalf("default skirmish should be solo")
	}
	cfg := doc.BattleConfig("default-1")
	if cfg.Player.Roster[2].Stats.Special.Kind != combat.SpecialSplash {
		t.Fatalf("unexpected special %+v", cfg.Player.Roster[2].Stats.Special)
	}
	if cfg.Enemy.Roster[0].Stats.Movement != battle.MovementQuad {
		t.Fatalf("unexpected movement %q", cfg.Enemy.Roster[0].Stats.Movement)
	}
	engine, err := battle.New(cfg, battle.WithLogger(logging.NewTestLogger()))
	if err != nil {
		t.Fatalf("default scenario rejected: %v", err)
	}
	engine.Tick()
	if engine.State().BattleID != "default-1" {
		t.Fatalf("battle id lost")
	}
	if slots := doc.CastsAt(900); len(slots) != 1 || slots[0] != 0 {
		t.Fatalf("unexpected scripted casts %v", slots)
	}
	if slots := doc.CastsAt(901); len(slots) != 0 {
		t.Fatalf("no casts expected at 901, got %v", slots)
	}
}

func TestDecodeCoopScenario(t *testing.T) {
	doc, err := Decode(strings.NewReader(coopDocument))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cfg, ok := doc.CoopConfig("duo-1")
	if !ok {
		t.Fatalf("expected a co-op configuration")
	}
	if cfg.Partner.Personality != bots.Proactive {
		t.Fatalf("unexpected personality %q", cfg.Partner.Personality)
	}
	if cfg.Partner.Deck != [3]string{"supply_drop", "afterburn", ""} {
		t.Fatalf("unexpected partner deck %v", cfg.Partner.Deck)
	}
	if cfg.Tuning.UnitCap != 6 || cfg.Deck[0] != "rally" {
		t.Fatalf("tuning or deck not carried: %+v", cfg.Config)
	}
	if cfg.Player.Roster[0].Stats.Movement != battle.MovementBiped {
		t.Fatalf("missing movement should default to biped")
	}
	if _, err := battle.NewCoop(cfg, battle.WithLogger(logging.NewTestLogger())); err != nil {
		t.Fatalf("co-op engine rejected scenario: %v", err)
	}
}

func TestDecodeAggregatesProblems(t *testing.T) {
	broken := strings.Replace(coopDocument, "movement: hover}}\n    - {name: c", "movement: wheels}}\n    - {name: c", 1)
	broken = strings.Replace(broken, "ticks_per_second: 20", "ticks_per_second: 0", 1)
	broken = strings.Replace(broken, "personality: proactive", "personality: sleepy", 1)
	broken += "script:\n  - {tick: 3, slot: 5}\n"

	_, err := Decode(strings.NewReader(broken))
	if !errors.Is(err, ErrInvalidScenario) {
		t.Fatalf("expected ErrInvalidScenario, got %v", err)
	}
	for _, want := range []string{"ticks_per_second", "wheels", "sleepy", "script entry 0"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestExplicitZeroTuningIsKept(t *testing.T) {
	doc, err := Decode(strings.NewReader(strings.Replace(coopDocument,
		"tuning: {unit_cap: 6}", "tuning: {unit_cap: 6, sp_start: 0, sp_rate: 0, watt_start: 0, base_defense: 0}", 1)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	engine, err := battle.New(doc.BattleConfig("zero"), battle.WithLogger(logging.NewTestLogger()))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	//1.- Zeroes survive decoding instead of falling back to the defaults.
	state := engine.State()
	if state.Skills.SP.Amount != 0 || state.Field.Bases[battle.SidePlayer].Defense != 0 {
		t.Fatalf("explicit zero tuning replaced: sp=%v defense=%v", state.Skills.SP.Amount, state.Field.Bases[battle.SidePlayer].Defense)
	}
	for _, f := range state.Factions {
		if f.Watt.Amount != 0 {
			t.Fatalf("%s watt start = %v, want 0", f.Owner, f.Watt.Amount)
		}
	}
	engine.Tick()
	if sp := engine.State().Skills.SP.Amount; sp != 0 {
		t.Fatalf("zero sp rate still regenerated %v", sp)
	}

	//2.- Omitted fields keep the defaults and negatives are rejected.
	defaults, err := Decode(strings.NewReader(coopDocument))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	engine, err = battle.New(defaults.BattleConfig("defaults"), battle.WithLogger(logging.NewTestLogger()))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if sp := engine.State().Skills.SP.Amount; sp != battle.DefaultSPStart {
		t.Fatalf("omitted sp_start = %v, want %v", sp, battle.DefaultSPStart)
	}
	_, err = Decode(strings.NewReader(strings.Replace(coopDocument, "tuning: {unit_cap: 6}", "tuning: {watt_start: -5}", 1)))
	if !errors.Is(err, ErrInvalidScenario) || !strings.Contains(err.Error(), "watt_start") {
		t.Fatalf("expected negative watt_start rejection, got %v", err)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader("name: x\nticks_per_second: 1\ntime_limit_seconds: 1\nturbo: true\n"))
	if !errors.Is(err, ErrInvalidScenario) {
		t.Fatalf("expected unknown field rejection, got %v", err)
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "duo.yaml")
	if err := os.WriteFile(path, []byte(coopDocument), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Name != "duo" || !doc.IsCoop() {
		t.Fatalf("unexpected document %+v", doc)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestSchemaDescribesDocument(t *testing.T) {
	data, err := Schema()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	for _, want := range []string{"ticks_per_second", "roster", "personality", "splash_range"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("schema missing %q", want)
		}
	}
}
