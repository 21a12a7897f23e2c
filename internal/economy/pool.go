package economy

import (
	"errors"
	"fmt"
)

var (
	// ErrNegativeDelta reports a regeneration step with a negative time delta.
	ErrNegativeDelta = errors.New("economy: negative time delta")
	// ErrNegativeMultiplier reports a regeneration step with a negative rate multiplier.
	ErrNegativeMultiplier = errors.New("economy: negative regen multiplier")
	// ErrNegativeCost reports a spend or grant with a negative amount.
	ErrNegativeCost = errors.New("economy: negative amount")
)

// Pool is a bounded regenerating resource. Watt pools fund production and SP pools fund skills.
type Pool struct {
	Amount float64 `json:"amount"`
	Max    float64 `json:"max"`
	Rate   float64 `json:"rate"`
}

// NewPool constructs a pool with the starting amount clamped into [0,max].
func NewPool(start, max, rate float64) Pool {
	p := Pool{Max: max, Rate: rate}
	p.Amount = p.clamp(start)
	return p
}

// Regen adds rate*multiplier*dt clamped to [0,Max]. Negative inputs are caller bugs and panic.
func (p *Pool) Regen(dt, multiplier float64) {
	if dt < 0 {
		panic(fmt.Errorf("%w: %v", ErrNegativeDelta, dt))
	}
	if multiplier < 0 {
		panic(fmt.Errorf("%w: %v", ErrNegativeMultiplier, multiplier))
	}
	p.Amount = p.clamp(p.Amount + p.Rate*multiplier*dt)
}

// Spend deducts cost when affordable. An unaffordable spend reports false and leaves the pool untouched.
func (p *Pool) Spend(cost float64) bool {
	if cost < 0 {
		panic(fmt.Errorf("%w: %v", ErrNegativeCost, cost))
	}
	if cost > p.Amount {
		return false
	}
	p.Amount = p.clamp(p.Amount - cost)
	return true
}

// CanAfford reports whether Spend(cost) would succeed.
func (p Pool) CanAfford(cost float64) bool {
	return cost >= 0 && cost <= p.Amount
}

// Grant adds an instant bonus clamped to Max.
func (p *Pool) Grant(amount float64) {
	if amount < 0 {
		panic(fmt.Errorf("%w: %v", ErrNegativeCost, amount))
	}
	p.Amount = p.clamp(p.Amount + amount)
}

// Drain empties the pool.
func (p *Pool) Drain() {
	p.Amount = 0
}

// Fraction returns Amount/Max, or zero for an unbounded pool.
func (p Pool) Fraction() float64 {
	if p.Max <= 0 {
		return 0
	}
	return p.Amount / p.Max
}

func (p Pool) clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > p.Max {
		return p.Max
	}
	return v
}
