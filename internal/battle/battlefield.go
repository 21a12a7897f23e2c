package battle

import "fmt"

// Side is one end of the lane.
type Side int

const (
	// SidePlayer holds the base at position zero and advances toward higher positions.
	SidePlayer Side = iota
	// SideEnemy holds the base at the far end and advances toward zero.
	SideEnemy
)

func (s Side) String() string {
	if s == SidePlayer {
		return "player"
	}
	return "enemy"
}

// MarshalText encodes the side by name.
func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == SidePlayer {
		return SideEnemy
	}
	return SidePlayer
}

// Direction is +1 for the player side and -1 for the enemy side.
func (s Side) Direction() float64 {
	if s == SidePlayer {
		return 1
	}
	return -1
}

// Owner tags which faction controls a unit.
type Owner int

const (
	OwnerPlayer Owner = iota
	OwnerPartner
	OwnerEnemy

	ownerCount
)

func (o Owner) String() string {
	switch o {
	case OwnerPlayer:
		return "player"
	case OwnerPartner:
		return "partner"
	case OwnerEnemy:
		return "enemy"
	default:
		return fmt.Sprintf("owner(%d)", int(o))
	}
}

// MarshalText encodes the owner by name.
func (o Owner) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Side reports which end of the lane the owner fights for. The partner shares the player side.
func (o Owner) Side() Side {
	if o == OwnerEnemy {
		return SideEnemy
	}
	return SidePlayer
}

// Base is a side's headquarters. It is only ever damaged.
type Base struct {
	HP      float64 `json:"hp"`
	MaxHP   float64 `json:"max_hp"`
	Defense float64 `json:"defense"`
}

// Fraction is HP as a share of MaxHP.
func (b Base) Fraction() float64 {
	if b.MaxHP <= 0 {
		return 0
	}
	return b.HP / b.MaxHP
}

// Destroyed reports whether the base has fallen.
func (b Base) Destroyed() bool {
	return b.HP <= 0
}

func (b *Base) takeDamage(amount float64) float64 {
	if amount <= 0 || b.HP <= 0 {
		return 0
	}
	if amount > b.HP {
		amount = b.HP
	}
	b.HP -= amount
	return amount
}

// Battlefield is the static lane geometry plus the two bases.
type Battlefield struct {
	Tiles int     `json:"tiles"`
	Bases [2]Base `json:"bases"`
}

// NewBattlefield builds a lane with identical bases on both ends.
func NewBattlefield(tiles int, baseHP, baseDefense float64) Battlefield {
	base := Base{HP: baseHP, MaxHP: baseHP, Defense: baseDefense}
	return Battlefield{Tiles: tiles, Bases: [2]Base{base, base}}
}

// BasePosition returns where the side's base stands.
func (f Battlefield) BasePosition(side Side) float64 {
	if side == SidePlayer {
		return 0
	}
	return float64(f.Tiles)
}

// Clamp bounds a position to the lane.
func (f Battlefield) Clamp(position float64) float64 {
	if position < 0 {
		return 0
	}
	if max := float64(f.Tiles); position > max {
		return max
	}
	return position
}

// SlotPosition converts a lane fraction measured from the side's base into a position.
func (f Battlefield) SlotPosition(side Side, fraction float64) float64 {
	return f.Clamp(f.BasePosition(side) + side.Direction()*fraction*float64(f.Tiles))
}
