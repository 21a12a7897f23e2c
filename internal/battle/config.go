package battle

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"mechlane/arena/internal/logging"
	"mechlane/arena/internal/skills"
)

// ErrInvalidConfig wraps construction failures.
var ErrInvalidConfig = errors.New("battle: invalid configuration")

const (
	// DefaultTiles is the lane length.
	DefaultTiles = 24
	// DefaultBaseHP is each base's starting HP.
	DefaultBaseHP = 3000.0
	// DefaultBaseDefense is each base's defense.
	DefaultBaseDefense = 20.0
	// DefaultUnitCap bounds alive units per faction.
	DefaultUnitCap = 12
	// DefaultWattMax, DefaultWattRate and DefaultWattStart tune the production economy.
	DefaultWattMax   = 1000.0
	DefaultWattRate  = 50.0
	DefaultWattStart = 150.0
	// DefaultSPMax, DefaultSPRate and DefaultSPStart tune the skill economy.
	DefaultSPMax   = 100.0
	DefaultSPRate  = 2.5
	DefaultSPStart = 20.0
	// SynergyMultiplier boosts player attackers sharing a movement archetype with an alive partner unit.
	SynergyMultiplier = 1.15
)

// Tuning holds the battle constants. Zero or negative sizes fall back to the defaults. The
// pointer fields fall back only when nil, so an explicit zero start, rate or defense is kept.
type Tuning struct {
	Tiles       int      `json:"tiles"`
	BaseHP      float64  `json:"base_hp"`
	BaseDefense *float64 `json:"base_defense,omitempty"`
	UnitCap     int      `json:"unit_cap"`
	WattMax     float64  `json:"watt_max"`
	WattRate    *float64 `json:"watt_rate,omitempty"`
	WattStart   *float64 `json:"watt_start,omitempty"`
	SPMax       float64  `json:"sp_max"`
	SPRate      *float64 `json:"sp_rate,omitempty"`
	SPStart     *float64 `json:"sp_start,omitempty"`
}

// Float64 returns a pointer to v for the optional Tuning fields.
func Float64(v float64) *float64 { return &v }

// constants is Tuning with every default applied.
type constants struct {
	Tiles       int
	BaseHP      float64
	BaseDefense float64
	UnitCap     int
	WattMax     float64
	WattRate    float64
	WattStart   float64
	SPMax       float64
	SPRate      float64
	SPStart     float64
}

func (t Tuning) resolve() constants {
	c := constants{
		Tiles:       t.Tiles,
		BaseHP:      t.BaseHP,
		BaseDefense: orDefault(t.BaseDefense, DefaultBaseDefense),
		UnitCap:     t.UnitCap,
		WattMax:     t.WattMax,
		WattRate:    orDefault(t.WattRate, DefaultWattRate),
		WattStart:   orDefault(t.WattStart, DefaultWattStart),
		SPMax:       t.SPMax,
		SPRate:      orDefault(t.SPRate, DefaultSPRate),
		SPStart:     orDefault(t.SPStart, DefaultSPStart),
	}
	if c.Tiles <= 0 {
		c.Tiles = DefaultTiles
	}
	if c.BaseHP <= 0 {
		c.BaseHP = DefaultBaseHP
	}
	if c.UnitCap <= 0 {
		c.UnitCap = DefaultUnitCap
	}
	if c.WattMax <= 0 {
		c.WattMax = DefaultWattMax
	}
	if c.SPMax <= 0 {
		c.SPMax = DefaultSPMax
	}
	return c
}

func orDefault(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

// validate rejects negative optional values, which have no default to fall back to.
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
		if field.value != nil && (*field.value < 0 || math.IsNaN(*field.value) || math.IsInf(*field.value, 0)) {
			problems = append(problems, fmt.Sprintf("tuning %s must be a non-negative finite number, got %v", field.name, *field.value))
		}
	}
	return problems
}

// SideConfig is one faction's roster and production ratio.
type SideConfig struct {
	Roster [3]BuildDerived `json:"roster"`
	Ratio  [3]int          `json:"ratio"`
}

// Config is the engine construction input.
type Config struct {
	//1.- BattleID is an opaque caller-assigned identifier copied into results and events.
	BattleID string `json:"battle_id"`
	//2.- Player and Enemy carry each side's roster and ratio; Deck binds the player's skill slots.
	Player SideConfig               `json:"player"`
	Enemy  SideConfig               `json:"enemy"`
	Deck   [skills.SlotCount]string `json:"deck"`
	//3.- Seed, TicksPerSecond and TimeLimitSeconds define the deterministic timeline.
	Seed             uint32  `json:"seed"`
	TicksPerSecond   int     `json:"ticks_per_second"`
	TimeLimitSeconds float64 `json:"time_limit_seconds"`
	Tuning           Tuning  `json:"tuning"`
}

func (c Config) validate() []string {
	var problems []string
	if c.TicksPerSecond <= 0 {
		problems = append(problems, fmt.Sprintf("ticks per second must be positive, got %d", c.TicksPerSecond))
	}
	if !(c.TimeLimitSeconds > 0) || math.IsInf(c.TimeLimitSeconds, 0) {
		problems = append(problems, fmt.Sprintf("time limit must be a positive finite number, got %v", c.TimeLimitSeconds))
	}
	return append(problems, c.Tuning.validate()...)
}

func joinProblems(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
}

// Option customises an engine.
type Option func(*options)

type options struct {
	logger   *logging.Logger
	catalog  *skills.Catalog
	observer func(Event)
}

// WithLogger routes engine logs to the provided logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCatalog overrides the skill catalog used to bind decks.
func WithCatalog(catalog *skills.Catalog) Option {
	return func(o *options) {
		if catalog != nil {
			o.catalog = catalog
		}
	}
}

// WithObserver registers a callback receiving every battle event synchronously.
func WithObserver(observer func(Event)) Option {
	return func(o *options) {
		o.observer = observer
	}
}

func resolveOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = logging.L()
	}
	if o.catalog == nil {
		o.catalog = skills.DefaultCatalog()
	}
	return o
}
