package battle

import (
	"fmt"
	"math"
	"strings"

	"mechlane/arena/internal/combat"
)

// MovementType is the legs archetype of a build.
type MovementType string

const (
	MovementBiped  MovementType = "biped"
	MovementQuad   MovementType = "quad"
	MovementTread  MovementType = "tread"
	MovementHover  MovementType = "hover"
	MovementFlying MovementType = "flying"
)

// ParseMovement resolves a movement archetype name.
func ParseMovement(raw string) (MovementType, error) {
	switch m := MovementType(strings.ToLower(strings.TrimSpace(raw))); m {
	case MovementBiped, MovementQuad, MovementTread, MovementHover, MovementFlying:
		return m, nil
	case "":
		return MovementBiped, nil
	default:
		return "", fmt.Errorf("unknown movement type %q", raw)
	}
}

// CanFly reports whether the archetype is airborne for evasion purposes.
func (m MovementType) CanFly() bool {
	return m == MovementFlying
}

// MountType is the weapon mount archetype of a build.
type MountType string

const (
	MountArm      MountType = "arm"
	MountShoulder MountType = "shoulder"
	MountBack     MountType = "back"
)

// ParseMount resolves a mount archetype name.
func ParseMount(raw string) (MountType, error) {
	switch m := MountType(strings.ToLower(strings.TrimSpace(raw))); m {
	case MountArm, MountShoulder, MountBack:
		return m, nil
	case "":
		return MountArm, nil
	default:
		return "", fmt.Errorf("unknown mount type %q", raw)
	}
}

// Stats is the resolved stat block of a build.
type Stats struct {
	Speed          float64              `json:"speed"`
	TilesPerSecond float64              `json:"tiles_per_second"`
	Defense        float64              `json:"defense"`
	Attack         float64              `json:"attack"`
	Range          float64              `json:"range"`
	FireRate       float64              `json:"fire_rate"`
	HP             float64              `json:"hp"`
	Movement       MovementType         `json:"movement"`
	Mount          MountType            `json:"mount"`
	Special        combat.WeaponSpecial `json:"special"`
}

// BuildDerived is a pre-resolved build: stats plus the weight-bracketed production cost.
type BuildDerived struct {
	Name        string  `json:"name"`
	Stats       Stats   `json:"stats"`
	TotalWeight float64 `json:"total_weight"`
	Tier        int     `json:"tier"`
	WattCost    float64 `json:"watt_cost"`
}

// CombatState is the per-unit state machine.
type CombatState string

const (
	Moving    CombatState = "moving"
	Attacking CombatState = "attacking"
	Dead      CombatState = "dead"
)

// Unit is a produced combatant. Dead units stay in the arena; only decoys are ever removed.
type Unit struct {
	ID       int         `json:"id"`
	Owner    Owner       `json:"owner"`
	Side     Side        `json:"side"`
	Build    int         `json:"build"`
	Decoy    bool        `json:"decoy,omitempty"`
	Tier     int         `json:"tier"`
	Cost     float64     `json:"cost"`
	Position float64     `json:"position"`
	HP       float64     `json:"hp"`
	MaxHP    float64     `json:"max_hp"`
	Stats    Stats       `json:"stats"`
	State    CombatState `json:"state"`
	Cooldown float64     `json:"cooldown"`
	TargetID int         `json:"target_id,omitempty"`
}

// Alive reports whether the unit can still act or be targeted.
func (u *Unit) Alive() bool {
	return u.State != Dead
}

// TakeDamage subtracts damage, clamping at zero, and reports the amount applied and whether it was lethal.
func (u *Unit) TakeDamage(amount float64) (float64, bool) {
	if !u.Alive() || amount <= 0 {
		return 0, false
	}
	applied := math.Min(amount, u.HP)
	u.HP -= applied
	if u.HP <= 0 {
		u.HP = 0
		u.State = Dead
		u.TargetID = 0
		return applied, true
	}
	return applied, false
}

// Heal restores HP up to MaxHP.
func (u *Unit) Heal(amount float64) {
	if !u.Alive() || amount <= 0 {
		return
	}
	u.HP = math.Min(u.MaxHP, u.HP+amount)
}

// InRange reports whether position lies within the unit's inclusive weapon range.
func (u *Unit) InRange(position float64) bool {
	return math.Abs(position-u.Position) <= u.Stats.Range
}

func (u *Unit) candidate() combat.Candidate {
	return combat.Candidate{ID: u.ID, Position: u.Position, HP: u.HP, Alive: u.Alive()}
}
