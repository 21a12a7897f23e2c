package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	_ "embed"

	"gopkg.in/yaml.v3"

	"mechlane/arena/internal/battle"
	"mechlane/arena/internal/bots"
	"mechlane/arena/internal/combat"
	"mechlane/arena/internal/skills"
)

// ErrInvalidScenario wraps every scenario decoding or validation failure.
var ErrInvalidScenario = errors.New("scenario: invalid document")

// Special is the weapon special as authored.
type Special struct {
	Kind             string  `yaml:"kind" json:"kind,omitempty" jsonschema:"enum=none,enum=pierce,enum=sniper,enum=splash,enum=true_damage"`
	PierceMultiplier float64 `yaml:"pierce_multiplier" json:"pierce_multiplier,omitempty" jsonschema:"minimum=0"`
	SplashRange      float64 `yaml:"splash_range" json:"splash_range,omitempty" jsonschema:"minimum=0"`
	Percent          float64 `yaml:"percent" json:"percent,omitempty" jsonschema:"minimum=0"`
}

// Stats is a build's resolved stat block.
type Stats struct {
	Speed          float64 `yaml:"speed" json:"speed" jsonschema:"minimum=0"`
	TilesPerSecond float64 `yaml:"tiles_per_second" json:"tiles_per_second" jsonschema:"required,minimum=0"`
	Defense        float64 `yaml:"defense" json:"defense" jsonschema:"minimum=0"`
	Attack         float64 `yaml:"attack" json:"attack" jsonschema:"minimum=0"`
	Range          float64 `yaml:"range" json:"range" jsonschema:"required,minimum=0"`
	FireRate       float64 `yaml:"fire_rate" json:"fire_rate" jsonschema:"required,minimum=0"`
	HP             float64 `yaml:"hp" json:"hp" jsonschema:"required,exclusiveMinimum=0"`
	Movement       string  `yaml:"movement" json:"movement,omitempty" jsonschema:"enum=biped,enum=quad,enum=tread,enum=hover,enum=flying"`
	Mount          string  `yaml:"mount" json:"mount,omitempty" jsonschema:"enum=arm,enum=shoulder,enum=back"`
	Special        Special `yaml:"special" json:"special,omitempty"`
}

// Build is one roster entry as produced by the upstream build resolver.
type Build struct {
	Name        string  `yaml:"name" json:"name" jsonschema:"required"`
	Tier        int     `yaml:"tier" json:"tier" jsonschema:"minimum=0"`
	WattCost    float64 `yaml:"watt_cost" json:"watt_cost" jsonschema:"required,minimum=0"`
	TotalWeight float64 `yaml:"total_weight" json:"total_weight,omitempty" jsonschema:"minimum=0"`
	Stats       Stats   `yaml:"stats" json:"stats" jsonschema:"required"`
}

// Side is one faction's roster and production ratio.
type Side struct {
	Ratio  []int   `yaml:"ratio" json:"ratio" jsonschema:"required,minItems=3,maxItems=3"`
	Roster []Build `yaml:"roster" json:"roster" jsonschema:"required,minItems=3,maxItems=3"`
}

// Partner adds the AI-controlled co-op faction.
type Partner struct {
	Side        `yaml:",inline"`
	Deck        []string `yaml:"deck" json:"deck,omitempty" jsonschema:"maxItems=3"`
	Personality string   `yaml:"personality" json:"personality,omitempty" jsonschema:"enum=proactive,enum=reactive,enum=balanced"`
}

// Tuning overrides the battle constants. Omitted fields keep the defaults. Starts, rates and base
// defense may be set to zero explicitly; the sizes treat zero as omitted.
type Tuning struct {
	Tiles       int      `yaml:"tiles" json:"tiles,omitempty" jsonschema:"minimum=0"`
	BaseHP      float64  `yaml:"base_hp" json:"base_hp,omitempty" jsonschema:"minimum=0"`
	BaseDefense *float64 `yaml:"base_defense" json:"base_defense,omitempty" jsonschema:"minimum=0"`
	UnitCap     int      `yaml:"unit_cap" json:"unit_cap,omitempty" jsonschema:"minimum=0"`
	WattMax     float64  `yaml:"watt_max" json:"watt_max,omitempty" jsonschema:"minimum=0"`
	WattRate    *float64 `yaml:"watt_rate" json:"watt_rate,omitempty" jsonschema:"minimum=0"`
	WattStart   *float64 `yaml:"watt_start" json:"watt_start,omitempty" jsonschema:"minimum=0"`
	SPMax       float64  `yaml:"sp_max" json:"sp_max,omitempty" jsonschema:"minimum=0"`
	SPRate      *float64 `yaml:"sp_rate" json:"sp_rate,omitempty" jsonschema:"minimum=0"`
	SPStart     *float64 `yaml:"sp_start" json:"sp_start,omitempty" jsonschema:"minimum=0"`
}

func (t Tuning) validate() []string {
	var problems []string
	for _, field := range []struct {
		name  string
		value *float64
	}{
		{"base_defense", t.BaseDefense},
		{"watt_rate", t.WattRate},
		{"watt_start", t.WattStart},
		{"sp_rate", t.SPRate},
		{"sp_start", t.SPStart},
	} {
		if field.value != nil && *field.value < 0 {
			problems = append(problems, fmt.Sprintf("tuning %s must not be negative", field.name))
		}
	}
	return problems
}

// Cast schedules a player skill activation for headless runs. The activation is attempted before
// the step that starts at Tick.
type Cast struct {
	Tick int `yaml:"tick" json:"tick" jsonschema:"minimum=0"`
	Slot int `yaml:"slot" json:"slot" jsonschema:"minimum=0,maximum=2"`
}

// Scenario is a complete battle description.
type Scenario struct {
	Name             string   `yaml:"name" json:"name" jsonschema:"required"`
	Seed             uint32   `yaml:"seed" json:"seed"`
	TicksPerSecond   int      `yaml:"ticks_per_second" json:"ticks_per_second" jsonschema:"required,exclusiveMinimum=0"`
	TimeLimitSeconds float64  `yaml:"time_limit_seconds" json:"time_limit_seconds" jsonschema:"required,exclusiveMinimum=0"`
	Deck             []string `yaml:"deck" json:"deck,omitempty" jsonschema:"maxItems=3"`
	Tuning           Tuning   `yaml:"tuning" json:"tuning,omitempty"`
	Player           Side     `yaml:"player" json:"player" jsonschema:"required"`
	Enemy            Side     `yaml:"enemy" json:"enemy" jsonschema:"required"`
	Partner          *Partner `yaml:"partner" json:"partner,omitempty"`
	Script           []Cast   `yaml:"script" json:"script,omitempty"`
}

// Decode reads and validates a YAML scenario.
func Decode(r io.Reader) (*Scenario, error) {
	var doc Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidScenario, err)
	}
	if problems := doc.validate(); len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidScenario, strings.Join(problems, "; "))
	}
	return &doc, nil
}

// Load reads a scenario file from disk.
func Load(path string) (*Scenario, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer file.Close()
	doc, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

//go:embed default.yaml
var defaultPayload []byte

// Default returns a fresh copy of the built-in skirmish.
func Default() *Scenario {
	doc, err := Decode(bytes.NewReader(defaultPayload))
	if err != nil {
		panic(err)
	}
	return doc
}

// IsCoop reports whether the scenario fields an AI partner.
func (s *Scenario) IsCoop() bool {
	return s.Partner != nil
}

func (s *Scenario) validate() []string {
	var problems []string
	if strings.TrimSpace(s.Name) == "" {
		problems = append(problems, "name is required")
	}
	if s.TicksPerSecond <= 0 {
		problems = append(problems, "ticks_per_second must be positive")
	}
	if s.TimeLimitSeconds <= 0 {
		problems = append(problems, "time_limit_seconds must be positive")
	}
	if len(s.Deck) > skills.SlotCount {
		problems = append(problems, fmt.Sprintf("deck holds at most %d skills", skills.SlotCount))
	}
	for i, cast := range s.Script {
		if cast.Tick < 0 || cast.Slot < 0 || cast.Slot >= skills.SlotCount {
			problems = append(problems, fmt.Sprintf("script entry %d: tick %d slot %d out of range", i, cast.Tick, cast.Slot))
		}
	}
	problems = append(problems, s.Tuning.validate()...)
	problems = append(problems, s.Player.validate("player")...)
	problems = append(problems, s.Enemy.validate("enemy")...)
	if s.Partner != nil {
		problems = append(problems, s.Partner.Side.validate("partner")...)
		if len(s.Partner.Deck) > skills.SlotCount {
			problems = append(problems, fmt.Sprintf("partner deck holds at most %d skills", skills.SlotCount))
		}
		if _, err := bots.ParsePersonality(s.Partner.Personality); err != nil {
			problems = append(problems, err.Error())
		}
	}
	return problems
}

// CastsAt returns the scripted slots due before the step starting at tick, in document order.
func (s *Scenario) CastsAt(tick int) []int {
	var slots []int
	for _, cast := range s.Script {
		if cast.Tick == tick {
			slots = append(slots, cast.Slot)
		}
	}
	return slots
}

func (s Side) validate(label string) []string {
	var problems []string
	if len(s.Ratio) != 3 {
		problems = append(problems, fmt.Sprintf("%s: ratio needs 3 weights, got %d", label, len(s.Ratio)))
	}
	if len(s.Roster) != 3 {
		problems = append(problems, fmt.Sprintf("%s: roster needs 3 builds, got %d", label, len(s.Roster)))
	}
	for i, build := range s.Roster {
		if _, err := build.derive(); err != nil {
			problems = append(problems, fmt.Sprintf("%s build %d: %v", label, i, err))
		}
	}
	return problems
}

func (b Build) derive() (battle.BuildDerived, error) {
	var problems []string
	movement, err := battle.ParseMovement(b.Stats.Movement)
	if err != nil {
		problems = append(problems, err.Error())
	}
	mount, err := battle.ParseMount(b.Stats.Mount)
	if err != nil {
		problems = append(problems, err.Error())
	}
	special, err := b.Stats.Special.resolve()
	if err != nil {
		problems = append(problems, err.Error())
	}
	for _, field := range []struct {
		name  string
		value float64
	}{
		{"speed", b.Stats.Speed},
		{"tiles_per_second", b.Stats.TilesPerSecond},
		{"defense", b.Stats.Defense},
		{"attack", b.Stats.Attack},
		{"range", b.Stats.Range},
		{"fire_rate", b.Stats.FireRate},
		{"watt_cost", b.WattCost},
	} {
		if field.value < 0 {
			problems = append(problems, fmt.Sprintf("%s must not be negative", field.name))
		}
	}
	if b.Stats.HP <= 0 {
		problems = append(problems, "hp must be positive")
	}
	if len(problems) > 0 {
		return battle.BuildDerived{}, errors.New(strings.Join(problems, ", "))
	}
	return battle.BuildDerived{
		Name:        b.Name,
		TotalWeight: b.TotalWeight,
		Tier:        b.Tier,
		WattCost:    b.WattCost,
		Stats: battle.Stats{
			Speed:          b.Stats.Speed,
			TilesPerSecond: b.Stats.TilesPerSecond,
			Defense:        b.Stats.Defense,
			Attack:         b.Stats.Attack,
			Range:          b.Stats.Range,
			FireRate:       b.Stats.FireRate,
			HP:             b.Stats.HP,
			Movement:       movement,
			Mount:          mount,
			Special:        special,
		},
	}, nil
}

func (s Special) resolve() (combat.WeaponSpecial, error) {
	kind, err := combat.ParseSpecialKind(s.Kind)
	if err != nil {
		return combat.WeaponSpecial{}, err
	}
	special := combat.WeaponSpecial{
		Kind:             kind,
		PierceMultiplier: s.PierceMultiplier,
		SplashRange:      s.SplashRange,
		Percent:          s.Percent,
	}
	return special, special.Validate()
}

func (s Side) config() battle.SideConfig {
	var cfg battle.SideConfig
	copy(cfg.Ratio[:], s.Ratio)
	for i := range cfg.Roster {
		if i < len(s.Roster) {
			//1.- Validation already rejected broken builds.
			cfg.Roster[i], _ = s.Roster[i].derive()
		}
	}
	return cfg
}

func deck(names []string) [skills.SlotCount]string {
	var out [skills.SlotCount]string
	copy(out[:], names)
	return out
}

// BattleConfig converts the scenario into a solo engine configuration.
func (s *Scenario) BattleConfig(battleID string) battle.Config {
	return battle.Config{
		BattleID:         battleID,
		Player:           s.Player.config(),
		Enemy:            s.Enemy.config(),
		Deck:             deck(s.Deck),
		Seed:             s.Seed,
		TicksPerSecond:   s.TicksPerSecond,
		TimeLimitSeconds: s.TimeLimitSeconds,
		Tuning:           battle.Tuning(s.Tuning),
	}
}

// CoopConfig converts the scenario into a co-op engine configuration. It reports false when the
// scenario has no partner.
func (s *Scenario) CoopConfig(battleID string) (battle.CoopConfig, bool) {
	if s.Partner == nil {
		return battle.CoopConfig{}, false
	}
	personality, _ := bots.ParsePersonality(s.Partner.Personality)
	partner := s.Partner.Side.config()
	return battle.CoopConfig{
		Config: s.BattleConfig(battleID),
		Partner: battle.PartnerConfig{
			Roster:      partner.Roster,
			Ratio:       partner.Ratio,
			Deck:        deck(s.Partner.Deck),
			Personality: personality,
		},
	}, true
}

// NewBattle builds the solo or co-op engine the scenario describes.
func (s *Scenario) NewBattle(battleID string, opts ...battle.Option) (battle.Battle, error) {
	if cfg, ok := s.CoopConfig(battleID); ok {
		engine, err := battle.NewCoop(cfg, opts...)
		if err != nil {
			return nil, err
		}
		return engine, nil
	}
	engine, err := battle.New(s.BattleConfig(battleID), opts...)
	if err != nil {
		return nil, err
	}
	return engine, nil
}
