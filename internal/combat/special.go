package combat

import (
	"errors"
	"fmt"
	"strings"
)

// SpecialKind enumerates the closed set of weapon specials.
type SpecialKind int

const (
	// SpecialNone is a standard weapon with no modifier.
	SpecialNone SpecialKind = iota
	// SpecialPierce reduces the effective defense of the target.
	SpecialPierce
	// SpecialSniper prefers the farthest target in range.
	SpecialSniper
	// SpecialSplash damages every enemy around the primary target.
	SpecialSplash
	// SpecialTrueDamage ignores defense and adds a share of the target's max HP.
	SpecialTrueDamage

	specialKindCount
)

// ErrInvalidSpecial reports a weapon special with an unusable payload.
var ErrInvalidSpecial = errors.New("combat: invalid weapon special")

// damageFormula selects the DPS formula family for a special.
type damageFormula int

const (
	formulaStandard damageFormula = iota
	formulaPierce
	formulaTrue
)

// targetHeuristic selects how an attacker chooses among in-range enemies.
type targetHeuristic int

const (
	heuristicClosest targetHeuristic = iota
	heuristicFarthest
	heuristicHighestHP
	heuristicClustered
)

// Every kind must appear in every table; special_test.go walks the full range.
var (
	specialNames = map[SpecialKind]string{
		SpecialNone:       "none",
		SpecialPierce:     "armor_piercing",
		SpecialSniper:     "sniper",
		SpecialSplash:     "splash",
		SpecialTrueDamage: "true_damage",
	}
	specialFormulas = map[SpecialKind]damageFormula{
		SpecialNone:       formulaStandard,
		SpecialPierce:     formulaPierce,
		SpecialSniper:     formulaStandard,
		SpecialSplash:     formulaStandard,
		SpecialTrueDamage: formulaTrue,
	}
	specialHeuristics = map[SpecialKind]targetHeuristic{
		SpecialNone:       heuristicClosest,
		SpecialPierce:     heuristicClosest,
		SpecialSniper:     heuristicFarthest,
		SpecialSplash:     heuristicClustered,
		SpecialTrueDamage: heuristicHighestHP,
	}
	// specialVisuals tags each kind for presentation layers consuming snapshots.
	specialVisuals = map[SpecialKind]string{
		SpecialNone:       "tracer",
		SpecialPierce:     "lance",
		SpecialSniper:     "longshot",
		SpecialSplash:     "burst",
		SpecialTrueDamage: "blade",
	}
)

// String returns the canonical configuration name of the kind.
func (k SpecialKind) String() string {
	if name, ok := specialNames[k]; ok {
		return name
	}
	return fmt.Sprintf("special(%d)", int(k))
}

// MarshalText encodes the kind by name for JSON and YAML documents.
func (k SpecialKind) MarshalText() ([]byte, error) {
	if _, ok := specialNames[k]; !ok {
		return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidSpecial, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind by name.
func (k *SpecialKind) UnmarshalText(text []byte) error {
	parsed, err := ParseSpecialKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseSpecialKind resolves a configuration name. An empty name is SpecialNone.
func ParseSpecialKind(raw string) (SpecialKind, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return SpecialNone, nil
	}
	for kind, candidate := range specialNames {
		if candidate == name {
			return kind, nil
		}
	}
	return SpecialNone, fmt.Errorf("%w: unknown kind %q", ErrInvalidSpecial, raw)
}

// VisualTag returns the presentation tag for the kind.
func (k SpecialKind) VisualTag() string {
	return specialVisuals[k]
}

// WeaponSpecial is the tagged payload attached to a weapon. Only the field matching Kind is read.
type WeaponSpecial struct {
	Kind SpecialKind `json:"kind" yaml:"kind"`
	//1.- PierceMultiplier scales target defense for SpecialPierce, expected in (0,1).
	PierceMultiplier float64 `json:"pierce_multiplier,omitempty" yaml:"pierce_multiplier,omitempty"`
	//2.- SplashRange is the fan-out radius in tiles for SpecialSplash.
	SplashRange float64 `json:"splash_range,omitempty" yaml:"splash_range,omitempty"`
	//3.- Percent is the share of max HP added per hit for SpecialTrueDamage.
	Percent float64 `json:"percent,omitempty" yaml:"percent,omitempty"`
}

// Pierce builds an armor-piercing special.
func Pierce(multiplier float64) WeaponSpecial {
	return WeaponSpecial{Kind: SpecialPierce, PierceMultiplier: multiplier}
}

// Splash builds a splash special with the provided fan-out radius.
func Splash(splashRange float64) WeaponSpecial {
	return WeaponSpecial{Kind: SpecialSplash, SplashRange: splashRange}
}

// TrueDamage builds a true-damage special adding percent of max HP per hit.
func TrueDamage(percent float64) WeaponSpecial {
	return WeaponSpecial{Kind: SpecialTrueDamage, Percent: percent}
}

// Sniper builds a farthest-target special.
func Sniper() WeaponSpecial {
	return WeaponSpecial{Kind: SpecialSniper}
}

// Validate checks the payload matching Kind.
func (s WeaponSpecial) Validate() error {
	switch s.Kind {
	case SpecialNone, SpecialSniper:
		return nil
	case SpecialPierce:
		if !(s.PierceMultiplier > 0 && s.PierceMultiplier <= 1) {
			return fmt.Errorf("%w: pierce multiplier %v outside (0,1]", ErrInvalidSpecial, s.PierceMultiplier)
		}
		return nil
	case SpecialSplash:
		if !(s.SplashRange > 0) {
			return fmt.Errorf("%w: splash range %v must be positive", ErrInvalidSpecial, s.SplashRange)
		}
		return nil
	case SpecialTrueDamage:
		if s.Percent < 0 {
			return fmt.Errorf("%w: true damage percent %v is negative", ErrInvalidSpecial, s.Percent)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidSpecial, int(s.Kind))
	}
}

// HitKind classifies how a weapon delivers damage.
type HitKind string

const (
	// HitSingle strikes only the chosen target.
	HitSingle HitKind = "single"
	// HitSplash strikes every enemy within Range of the chosen target.
	HitSplash HitKind = "splash"
)

// HitProfile describes the delivery of a weapon.
type HitProfile struct {
	Kind  HitKind `json:"kind"`
	Range float64 `json:"range,omitempty"`
}

// HitProfileOf classifies the weapon special.
func HitProfileOf(special WeaponSpecial) HitProfile {
	if special.Kind == SpecialSplash {
		return HitProfile{Kind: HitSplash, Range: special.SplashRange}
	}
	return HitProfile{Kind: HitSingle}
}
