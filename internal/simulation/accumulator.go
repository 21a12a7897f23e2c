package simulation

import "time"

// DefaultMaxCatchUp bounds how many fixed steps one Advance may release.
const DefaultMaxCatchUp = 8

// Accumulator converts wall-clock deltas into whole fixed-size simulation steps. It is pure:
// callers feed it elapsed time and run exactly the number of steps it returns.
type Accumulator struct {
	step     time.Duration
	speed    float64
	maxSteps int
	pending  time.Duration
	dropped  int
}

// NewAccumulator builds an accumulator for the fixed step. Non-positive steps fall back to 1/60 s.
func NewAccumulator(step time.Duration, maxSteps int) *Accumulator {
	if step <= 0 {
		step = time.Second / 60
	}
	if maxSteps <= 0 {
		maxSteps = DefaultMaxCatchUp
	}
	return &Accumulator{step: step, speed: 1, maxSteps: maxSteps}
}

// SetSpeed scales incoming wall-clock time. Non-positive values pause the accumulator.
func (a *Accumulator) SetSpeed(speed float64) {
	if speed < 0 {
		speed = 0
	}
	a.speed = speed
}

// Advance adds the elapsed wall time and returns how many whole steps are due. When more than
// maxSteps are due the surplus is discarded so a stalled process does not spiral.
func (a *Accumulator) Advance(elapsed time.Duration) int {
	if elapsed <= 0 || a.speed == 0 {
		return 0
	}
	a.pending += time.Duration(float64(elapsed) * a.speed)
	steps := int(a.pending / a.step)
	a.pending -= time.Duration(steps) * a.step
	if steps > a.maxSteps {
		a.dropped += steps - a.maxSteps
		steps = a.maxSteps
	}
	return steps
}

// Pending reports the leftover time below one step.
func (a *Accumulator) Pending() time.Duration {
	return a.pending
}

// Dropped reports how many steps were discarded by the catch-up bound.
func (a *Accumulator) Dropped() int {
	return a.dropped
}

// Step returns the fixed step size.
func (a *Accumulator) Step() time.Duration {
	return a.step
}
