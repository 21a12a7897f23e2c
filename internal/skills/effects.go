package skills

import (
	"errors"
	"fmt"
	"strings"
)

// EffectKind enumerates the closed set of active effects a skill can register.
type EffectKind int

const (
	// EffectWattBoost multiplies the caster side's Watt regeneration.
	EffectWattBoost EffectKind = iota
	// EffectAttackBoost multiplies allied attack.
	EffectAttackBoost
	// EffectDefenseBoost multiplies allied defense.
	EffectDefenseBoost
	// EffectSpeedBoost multiplies allied movement speed.
	EffectSpeedBoost
	// EffectFireRateBoost multiplies allied fire rate.
	EffectFireRateBoost
	// EffectFreeze makes every enemy unit skip its turn.
	EffectFreeze
	// EffectScramble makes enemy units pick targets at random.
	EffectScramble
	// EffectFocus makes allied units prioritise a captured enemy.
	EffectFocus
	// EffectInvincible nullifies damage dealt to allied units.
	EffectInvincible
	// EffectStun makes allied units skip their turn while they regroup.
	EffectStun
	// EffectDecoy keeps spawned decoy units alive until it expires.
	EffectDecoy
	// EffectBaseShield reduces damage dealt to the allied base.
	EffectBaseShield

	effectKindCount
)

// TimerEpsilon is the residue below which a countdown counts as elapsed. Fixed steps such as 0.1
// are not exact in binary, so repeated subtraction leaves about 1e-16 behind.
const TimerEpsilon = 1e-9

// Countdown subtracts dt from a timer and snaps the rounding residue to zero.
func Countdown(remaining, dt float64) float64 {
	remaining -= dt
	if remaining <= TimerEpsilon {
		return 0
	}
	return remaining
}

// ErrUnknownEffect reports an effect name outside the closed set.
var ErrUnknownEffect = errors.New("skills: unknown effect kind")

// Audience identifies whose units an effect influences.
type Audience int

const (
	// AudienceAllies influences the caster's own units.
	AudienceAllies Audience = iota
	// AudienceEnemies influences the opposing units.
	AudienceEnemies
)

// Every kind must be present in each table; effects_test.go walks the full range.
var (
	effectNames = map[EffectKind]string{
		EffectWattBoost:     "watt_boost",
		EffectAttackBoost:   "attack_boost",
		EffectDefenseBoost:  "defense_boost",
		EffectSpeedBoost:    "speed_boost",
		EffectFireRateBoost: "fire_rate_boost",
		EffectFreeze:        "freeze",
		EffectScramble:      "scramble",
		EffectFocus:         "focus",
		EffectInvincible:    "invincible",
		EffectStun:          "stun",
		EffectDecoy:         "decoy",
		EffectBaseShield:    "base_shield",
	}
	effectAudiences = map[EffectKind]Audience{
		EffectWattBoost:     AudienceAllies,
		EffectAttackBoost:   AudienceAllies,
		EffectDefenseBoost:  AudienceAllies,
		EffectSpeedBoost:    AudienceAllies,
		EffectFireRateBoost: AudienceAllies,
		EffectFreeze:        AudienceEnemies,
		EffectScramble:      AudienceEnemies,
		EffectFocus:         AudienceAllies,
		EffectInvincible:    AudienceAllies,
		EffectStun:          AudienceAllies,
		EffectDecoy:         AudienceAllies,
		EffectBaseShield:    AudienceAllies,
	}
	effectVisuals = map[EffectKind]string{
		EffectWattBoost:     "surge",
		EffectAttackBoost:   "rally",
		EffectDefenseBoost:  "plating",
		EffectSpeedBoost:    "thrusters",
		EffectFireRateBoost: "overdrive",
		EffectFreeze:        "frost",
		EffectScramble:      "static",
		EffectFocus:         "reticle",
		EffectInvincible:    "barrier",
		EffectStun:          "daze",
		EffectDecoy:         "hologram",
		EffectBaseShield:    "dome",
	}
)

// String returns the configuration name of the kind.
func (k EffectKind) String() string {
	if name, ok := effectNames[k]; ok {
		return name
	}
	return fmt.Sprintf("effect(%d)", int(k))
}

// Audience reports whose units the kind influences.
func (k EffectKind) Audience() Audience {
	return effectAudiences[k]
}

// VisualTag returns the presentation tag of the kind.
func (k EffectKind) VisualTag() string {
	return effectVisuals[k]
}

// Valid reports whether k belongs to the closed set.
func (k EffectKind) Valid() bool {
	return k >= 0 && k < effectKindCount
}

// MarshalText encodes the kind by name.
func (k EffectKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEffect, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes the kind by name.
func (k *EffectKind) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for kind, candidate := range effectNames {
		if candidate == name {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownEffect, string(text))
}

// ActiveEffect is a time-limited modifier registered by a skill.
type ActiveEffect struct {
	Kind      EffectKind `json:"kind"`
	Remaining float64    `json:"remaining"`
	Duration  float64    `json:"duration"`
	//1.- Magnitude is the multiplier or fraction the kind interprets.
	Magnitude float64 `json:"magnitude,omitempty"`
	//2.- TargetID is the captured enemy for EffectFocus.
	TargetID int `json:"target_id,omitempty"`
	//3.- DecoyIDs lists the units spawned under EffectDecoy.
	DecoyIDs []int `json:"decoy_ids,omitempty"`
}

func (e ActiveEffect) clone() ActiveEffect {
	if e.DecoyIDs != nil {
		e.DecoyIDs = append([]int(nil), e.DecoyIDs...)
	}
	return e
}

// EffectSet holds at most one active effect per kind.
type EffectSet struct {
	effects [effectKindCount]ActiveEffect
	active  [effectKindCount]bool
}

// Add registers the effect, replacing any active effect of the same kind.
func (s *EffectSet) Add(effect ActiveEffect) {
	if !effect.Kind.Valid() {
		panic(fmt.Errorf("%w: %d", ErrUnknownEffect, int(effect.Kind)))
	}
	s.effects[effect.Kind] = effect.clone()
	s.active[effect.Kind] = true
}

// Get returns the active effect of the kind.
func (s *EffectSet) Get(kind EffectKind) (ActiveEffect, bool) {
	if s == nil || !kind.Valid() || !s.active[kind] {
		return ActiveEffect{}, false
	}
	return s.effects[kind].clone(), true
}

// Has reports whether an effect of the kind is active.
func (s *EffectSet) Has(kind EffectKind) bool {
	return s != nil && kind.Valid() && s.active[kind]
}

// Multiplier returns the magnitude of an active kind, or 1 when inactive.
func (s *EffectSet) Multiplier(kind EffectKind) float64 {
	if !s.Has(kind) {
		return 1
	}
	return s.effects[kind].Magnitude
}

// Len counts active effects.
func (s *EffectSet) Len() int {
	n := 0
	for _, on := range s.active {
		if on {
			n++
		}
	}
	return n
}

// Tick decrements every remaining duration and evicts effects at or below zero, returning them.
func (s *EffectSet) Tick(dt float64) []ActiveEffect {
	var expired []ActiveEffect
	for kind := range s.effects {
		if !s.active[kind] {
			continue
		}
		s.effects[kind].Remaining = Countdown(s.effects[kind].Remaining, dt)
		if s.effects[kind].Remaining == 0 {
			expired = append(expired, s.effects[kind])
			s.effects[kind] = ActiveEffect{}
			s.active[kind] = false
		}
	}
	return expired
}

// List returns copies of the active effects in kind order.
func (s *EffectSet) List() []ActiveEffect {
	out := make([]ActiveEffect, 0, s.Len())
	for kind, on := range s.active {
		if on {
			out = append(out, s.effects[kind].clone())
		}
	}
	return out
}
