package battle

import "fmt"

// Production is the round-robin build order derived from a three-slot ratio.
type Production struct {
	Sequence []int `json:"sequence"`
	Cursor   int   `json:"cursor"`
}

// NewProduction expands the ratio in block order: [3,1,1] becomes [0,0,0,1,2].
func NewProduction(ratio [3]int) (Production, error) {
	var seq []int
	for build, weight := range ratio {
		if weight < 0 {
			return Production{}, fmt.Errorf("%w: ratio weight %d for build %d is negative", ErrInvalidConfig, weight, build)
		}
		for i := 0; i < weight; i++ {
			seq = append(seq, build)
		}
	}
	if len(seq) == 0 {
		return Production{}, fmt.Errorf("%w: ratio %v produces nothing", ErrInvalidConfig, ratio)
	}
	return Production{Sequence: seq}, nil
}

// Next returns the build index queued next.
func (p Production) Next() int {
	return p.Sequence[p.Cursor]
}

// Advance moves the cursor after a successful production.
func (p *Production) Advance() {
	p.Cursor = (p.Cursor + 1) % len(p.Sequence)
}

func (p Production) clone() Production {
	p.Sequence = append([]int(nil), p.Sequence...)
	return p
}
