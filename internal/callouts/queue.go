package callouts

import (
	"fmt"

	"mechlane/arena/internal/skills"
)

// Priority ranks callouts; higher values displace lower ones.
type Priority int

const (
	Low Priority = iota
	Normal
	High
	Critical
)

func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case Normal:
		return "normal"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// MarshalText encodes the priority by name.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

const (
	// DefaultCapacity bounds the number of pending callouts.
	DefaultCapacity = 4
	// DefaultDisplayDuration is how long the active callout stays on screen, in seconds.
	DefaultDisplayDuration = 3.0
)

// Callout is a short narrative message.
type Callout struct {
	Key      string   `json:"key"`
	Text     string   `json:"text"`
	Priority Priority `json:"priority"`
	Speaker  string   `json:"speaker,omitempty"`
	//1.- Remaining is the display time left once the callout is active.
	Remaining float64 `json:"remaining,omitempty"`
}

// Option customises a Queue.
type Option func(*Queue)

// WithCapacity overrides the pending capacity.
func WithCapacity(capacity int) Option {
	return func(q *Queue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithDisplayDuration overrides how long each callout is displayed.
func WithDisplayDuration(seconds float64) Option {
	return func(q *Queue) {
		if seconds > 0 {
			q.display = seconds
		}
	}
}

// Queue is a bounded priority queue with one displayed message.
type Queue struct {
	capacity int
	display  float64
	pending  []Callout
	active   Callout
	showing  bool
	dropped  int
}

// NewQueue constructs an empty queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{capacity: DefaultCapacity, display: DefaultDisplayDuration}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push enqueues a callout. When the queue is full the lowest-priority pending entry is replaced if
// the new one ranks higher; otherwise the new callout is dropped. Duplicate keys are ignored.
func (q *Queue) Push(c Callout) bool {
	//1.- Ignore a key that is already showing or waiting.
	if q.showing && q.active.Key == c.Key {
		return false
	}
	for _, p := range q.pending {
		if p.Key == c.Key {
			return false
		}
	}
	c.Remaining = 0

	//2.- Show immediately when idle.
	if !q.showing && len(q.pending) == 0 {
		q.activate(c)
		return true
	}

	//3.- Append while capacity remains, else displace the newest of the lowest-priority entries.
	if len(q.pending) < q.capacity {
		q.pending = append(q.pending, c)
		return true
	}
	victim := -1
	for i, p := range q.pending {
		if victim < 0 || p.Priority <= q.pending[victim].Priority {
			victim = i
		}
	}
	if c.Priority <= q.pending[victim].Priority {
		q.dropped++
		return false
	}
	q.pending = append(q.pending[:victim], q.pending[victim+1:]...)
	q.pending = append(q.pending, c)
	q.dropped++
	return true
}

// Tick ages the active callout and promotes the best pending one when it expires.
func (q *Queue) Tick(dt float64) {
	if q.showing {
		q.active.Remaining = skills.Countdown(q.active.Remaining, dt)
		if q.active.Remaining == 0 {
			q.showing = false
			q.active = Callout{}
		}
	}
	if !q.showing && len(q.pending) > 0 {
		best := 0
		for i, p := range q.pending {
			if p.Priority > q.pending[best].Priority {
				best = i
			}
		}
		next := q.pending[best]
		q.pending = append(q.pending[:best], q.pending[best+1:]...)
		q.activate(next)
	}
}

func (q *Queue) activate(c Callout) {
	c.Remaining = q.display
	q.active = c
	q.showing = true
}

// Current returns the displayed callout.
func (q *Queue) Current() (Callout, bool) {
	if !q.showing {
		return Callout{}, false
	}
	return q.active, true
}

// Pending reports how many callouts are waiting.
func (q *Queue) Pending() int {
	return len(q.pending)
}

// Snapshot is a read-only copy of the queue.
type Snapshot struct {
	Active  *Callout  `json:"active,omitempty"`
	Pending []Callout `json:"pending"`
	Dropped int       `json:"dropped"`
}

// Snapshot copies the queue state.
func (q *Queue) Snapshot() Snapshot {
	snap := Snapshot{Pending: append([]Callout(nil), q.pending...), Dropped: q.dropped}
	if snap.Pending == nil {
		snap.Pending = []Callout{}
	}
	if q.showing {
		active := q.active
		snap.Active = &active
	}
	return snap
}
