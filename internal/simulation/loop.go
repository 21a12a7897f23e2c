package simulation

import (
	"context"
	"sync/atomic"
	"time"
)

// StepFunc advances the simulation by one fixed timestep. Returning false stops the loop.
type StepFunc func(step time.Duration) bool

// LoopOption customises a Loop.
type LoopOption func(*Loop)

// WithMonitor records every step duration in the monitor.
func WithMonitor(monitor *TickMonitor) LoopOption {
	return func(l *Loop) {
		l.monitor = monitor
	}
}

// WithSpeed scales simulated time against wall-clock time.
func WithSpeed(speed float64) LoopOption {
	return func(l *Loop) {
		l.speed = speed
	}
}

// WithClock replaces the wall clock, used by tests.
func WithClock(now func() time.Time) LoopOption {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}

// Loop drives a fixed timestep simulation at the configured target frequency.
type Loop struct {
	step     time.Duration
	speed    float64
	stepFunc StepFunc
	monitor  *TickMonitor
	now      func() time.Time
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	dropped  atomic.Int64
}

// NewLoop configures a loop that targets the provided steps per second.
func NewLoop(targetHz float64, step StepFunc, opts ...LoopOption) *Loop {
	if targetHz <= 0 {
		targetHz = 60
	}
	if step == nil {
		step = func(time.Duration) bool { return true }
	}
	interval := time.Duration(float64(time.Second) / targetHz)
	if interval <= 0 {
		interval = time.Second / 60
	}
	l := &Loop{step: interval, speed: 1, stepFunc: step, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start begins ticking until the context is cancelled, Stop is invoked or the step function
// reports completion.
func (l *Loop) Start(ctx context.Context) {
	if l == nil || l.stepFunc == nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	l.ctx, l.cancel = ctx, cancel
	l.done = make(chan struct{})
	acc := NewAccumulator(l.step, DefaultMaxCatchUp)
	acc.SetSpeed(l.speed)

	go func() {
		defer close(l.done)
		//1.- Release the derived context whichever way the loop ends.
		defer cancel()
		ticker := time.NewTicker(l.step)
		defer ticker.Stop()
		last := l.now()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				//2.- Convert the wall-clock delta into whole fixed steps.
				now := l.now()
				before := acc.Dropped()
				due := acc.Advance(now.Sub(last))
				l.dropped.Add(int64(acc.Dropped() - before))
				last = now
				//3.- Run each step, timing it for the monitor.
				for i := 0; i < due; i++ {
					started := l.now()
					more := l.stepFunc(l.step)
					l.monitor.Observe(l.now().Sub(started))
					if !more {
						return
					}
				}
			}
		}
	}()
}

// Done is closed once the loop goroutine exits.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Stop cancels the loop and waits for the goroutine to exit.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	if l.cancel != nil {
		l.cancel()
	}
	if l.done != nil {
		<-l.done
	}
}

// Dropped reports how many steps the catch-up bound has discarded since Start.
func (l *Loop) Dropped() int64 {
	if l == nil {
		return 0
	}
	return l.dropped.Load()
}

// StepDuration exposes the configured timestep for testing.
func (l *Loop) StepDuration() time.Duration {
	if l == nil {
		return 0
	}
	return l.step
}
