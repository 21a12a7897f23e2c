package combat

import (
	"errors"
	"fmt"
	"math"

	"mechlane/arena/internal/logging"
	"mechlane/arena/internal/rng"
)

// ErrNegativeInput reports a damage-model call with a negative stat. It indicates a caller bug.
var ErrNegativeInput = errors.New("combat: negative damage input")

// EvasionChance is the probability a flying target dodges a ground-bound attacker.
const EvasionChance = 0.3

// ComputeDPS returns the damage per second an attacker deals to a target under the weapon special.
func ComputeDPS(attack, fireRate, defense, maxHP float64, special WeaponSpecial) float64 {
	//1.- Reject negative inputs loudly; the resolver never clamps caller mistakes.
	requireNonNegative("attack", attack)
	requireNonNegative("fire_rate", fireRate)
	requireNonNegative("defense", defense)
	requireNonNegative("max_hp", maxHP)
	requireNonNegative("pierce_multiplier", special.PierceMultiplier)
	requireNonNegative("percent", special.Percent)

	//2.- Dispatch on the formula family registered for the kind.
	formula, ok := specialFormulas[special.Kind]
	if !ok {
		panic(fmt.Errorf("%w: unknown kind %d", ErrInvalidSpecial, int(special.Kind)))
	}
	switch formula {
	case formulaTrue:
		return (attack + maxHP*special.Percent) * fireRate
	case formulaPierce:
		return diminishing(attack, defense*special.PierceMultiplier) * fireRate
	default:
		return diminishing(attack, defense) * fireRate
	}
}

// PerHitDamage converts the DPS of the weapon into a single shot's damage.
func PerHitDamage(attack, fireRate, defense, maxHP float64, special WeaponSpecial) float64 {
	dps := ComputeDPS(attack, fireRate, defense, maxHP, special)
	if fireRate == 0 {
		return 0
	}
	return dps / fireRate
}

// Evades rolls the evasion check. The RNG advances only when a ground-bound attacker fires on a flier.
func Evades(attackerCanFly, targetCanFly bool, src rng.Source) bool {
	if attackerCanFly || !targetCanFly {
		return false
	}
	return src.Float64() < EvasionChance
}

func diminishing(attack, defense float64) float64 {
	total := attack + defense
	if total == 0 {
		return 0
	}
	return attack * (attack / total)
}

func requireNonNegative(name string, value float64) {
	if value < 0 || math.IsNaN(value) {
		panic(fmt.Errorf("%w: %s=%v", ErrNegativeInput, name, value))
	}
}

// Strike records one resolved hit for logging and event streams.
type Strike struct {
	//1.- AttackerID and TargetID identify the participants; TargetID is zero for base hits.
	AttackerID int
	TargetID   int
	//2.- Damage is the amount subtracted from the target after resolution.
	Damage float64
	//3.- Splash marks secondary victims of a splash fan-out.
	Splash bool
	//4.- Evaded and Blocked capture the two short-circuit outcomes.
	Evaded  bool
	Blocked bool
	//5.- Lethal reports whether the hit destroyed the target.
	Lethal bool
}

// LoggingFields returns structured logging fields describing the strike.
func (s Strike) LoggingFields() []logging.Field {
	return []logging.Field{
		logging.Int("attacker_id", s.AttackerID),
		logging.Int("target_id", s.TargetID),
		logging.Float64("damage", roundDamage(s.Damage)),
		logging.Bool("splash", s.Splash),
		logging.Bool("evaded", s.Evaded),
		logging.Bool("blocked", s.Blocked),
		logging.Bool("lethal", s.Lethal),
	}
}

func roundDamage(amount float64) float64 {
	//1.- Clamp floating point noise so logs stay readable.
	if math.Abs(amount) < 1e-6 {
		return 0
	}
	return math.Round(amount*100) / 100
}
