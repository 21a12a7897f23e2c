package battle

// Battle is the command and query surface shared by the solo and co-op engines.
type Battle interface {
	Tick()
	ActivateSkill(slot int) bool
	IsFinished() bool
	Result() (*Result, bool)
	TickCount() int
	TicksPerSecond() int
	Snapshot() any
}

var (
	_ Battle = (*Engine)(nil)
	_ Battle = (*CoopEngine)(nil)
)

// IsFinished reports whether a result exists.
func (a *arena) IsFinished() bool {
	return a.result != nil
}

// Result returns a copy of the battle result once the battle has finished.
func (a *arena) Result() (*Result, bool) {
	return a.result.clone(), a.result != nil
}

// TickCount reports how many ticks have run.
func (a *arena) TickCount() int {
	return a.tick
}

// TicksPerSecond reports the fixed step rate.
func (a *arena) TicksPerSecond() int {
	return a.tps
}
