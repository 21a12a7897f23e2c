package rng

// Source produces uniformly distributed floats in [0,1).
type Source interface {
	Float64() float64
}

// Mulberry32 is a 32-bit state generator. Every call to Float64 advances the state exactly once,
// which keeps battle trajectories reproducible from a seed and the ordered command sequence.
type Mulberry32 struct {
	state uint32
}

// New constructs a generator seeded with the provided value.
func New(seed uint32) *Mulberry32 {
	return &Mulberry32{state: seed}
}

// Float64 advances the generator and returns the next value in [0,1).
func (m *Mulberry32) Float64() float64 {
	m.state += 0x6D2B79F5
	t := m.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	t ^= t >> 14
	return float64(t) / 4294967296.0
}

// Intn returns a uniform integer in [0,n). It consumes exactly one Float64 draw. n must be positive.
func (m *Mulberry32) Intn(n int) int {
	return Intn(m, n)
}

// State exposes the internal state so snapshots can capture the generator position.
func (m *Mulberry32) State() uint32 {
	return m.state
}

// Intn draws a uniform index in [0,n) from any source using a single draw.
func Intn(src Source, n int) int {
	if n <= 0 {
		panic("rng: Intn called with non-positive bound")
	}
	idx := int(src.Float64() * float64(n))
	if idx >= n {
		idx = n - 1
	}
	return idx
}
