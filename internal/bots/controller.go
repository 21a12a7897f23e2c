package bots

import (
	"fmt"
	"strings"
)

// Personality selects the partner's skill and production policy.
type Personality string

const (
	// Proactive spends SP whenever it is high and enemies are on the field.
	Proactive Personality = "proactive"
	// Reactive answers base damage and the human player's own skill use.
	Reactive Personality = "reactive"
	// Balanced blends both triggers at a lower SP threshold.
	Balanced Personality = "balanced"
)

const (
	// BaseDropWindow is how far back base HP samples are compared, in seconds.
	BaseDropWindow = 5.0
	// BaseDropThreshold is the base HP fraction lost inside the window that counts as a sharp drop.
	BaseDropThreshold = 0.10
	// PlayerSkillWindow is how recently the human must have used a skill to trigger a response.
	PlayerSkillWindow = 3.0
)

// policy holds the per-personality tuning.
type policy struct {
	//1.- spThreshold is the SP fraction that unlocks proactive casting; zero disables it.
	spThreshold float64
	//2.- reacts enables the base-drop and player-skill triggers.
	reacts bool
	//3.- produceFactor is how many times the next unit's cost must be banked before producing.
	produceFactor float64
}

var policies = map[Personality]policy{
	Proactive: {spThreshold: 0.7, reacts: false, produceFactor: 1.0},
	Reactive:  {spThreshold: 0, reacts: true, produceFactor: 2.0},
	Balanced:  {spThreshold: 0.5, reacts: true, produceFactor: 1.4},
}

// ParsePersonality resolves a configured personality. An empty value selects Balanced.
func ParsePersonality(raw string) (Personality, error) {
	value := Personality(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return Balanced, nil
	}
	if _, ok := policies[value]; !ok {
		return "", fmt.Errorf("unknown partner personality %q", raw)
	}
	return value, nil
}

// Observation is the battlefield summary the controller sees once per tick.
type Observation struct {
	//1.- Now is the elapsed battle time in seconds.
	Now float64
	//2.- SPFraction is the partner's SP as a share of its maximum.
	SPFraction float64
	//3.- Watt and NextCost drive the production decision.
	Watt     float64
	NextCost float64
	//4.- AlliedBaseFraction is the shared base's HP share.
	AlliedBaseFraction float64
	//5.- EnemiesPresent reports any alive enemy unit on the lane.
	EnemiesPresent bool
	//6.- LastPlayerSkill is when the human last activated a skill; negative when never.
	LastPlayerSkill float64
	//7.- Usable flags the partner's skill slots that can be activated right now.
	Usable []bool
}

// Decision is the controller output for one tick.
type Decision struct {
	UseSkill bool   `json:"use_skill"`
	Slot     int    `json:"slot"`
	Produce  bool   `json:"produce"`
	Reason   string `json:"reason,omitempty"`
}

// Snapshot exposes the controller state for battle snapshots.
type Snapshot struct {
	Personality  Personality `json:"personality"`
	LastDecision Decision    `json:"last_decision"`
	LastCastAt   float64     `json:"last_cast_at"`
	Casts        int         `json:"casts"`
}

type baseSample struct {
	at       float64
	fraction float64
}

// Controller is the rule-based partner brain. It is driven synchronously by the battle engine.
type Controller struct {
	personality Personality
	policy      policy
	history     []baseSample
	last        Decision
	lastCastAt  float64
	casts       int
}

// NewController constructs a controller for the personality, defaulting unknown values to Balanced.
func NewController(personality Personality) *Controller {
	p, ok := policies[personality]
	if !ok {
		personality = Balanced
		p = policies[Balanced]
	}
	return &Controller{personality: personality, policy: p, lastCastAt: -1}
}

// Decide evaluates the policy against the observation.
func (c *Controller) Decide(obs Observation) Decision {
	//1.- Record the base sample and drop anything older than the comparison window.
	c.history = append(c.history, baseSample{at: obs.Now, fraction: obs.AlliedBaseFraction})
	cutoff := obs.Now - BaseDropWindow
	trim := 0
	for trim < len(c.history) && c.history[trim].at < cutoff {
		trim++
	}
	c.history = c.history[trim:]

	decision := Decision{Slot: -1}

	//2.- Work out which trigger, if any, fires this tick.
	reason := ""
	if c.policy.spThreshold > 0 && obs.SPFraction >= c.policy.spThreshold && obs.EnemiesPresent {
		reason = "sp_ready"
	}
	if reason == "" && c.policy.reacts {
		if c.baseDropped() {
			reason = "base_under_fire"
		} else if obs.LastPlayerSkill >= 0 && obs.Now-obs.LastPlayerSkill <= PlayerSkillWindow {
			reason = "follow_player"
		}
	}
	if reason != "" {
		for slot, usable := range obs.Usable {
			if usable {
				decision.UseSkill = true
				decision.Slot = slot
				decision.Reason = reason
				break
			}
		}
	}

	//3.- Produce once the bank covers the personality's multiple of the next unit's cost.
	decision.Produce = obs.Watt >= obs.NextCost*c.policy.produceFactor

	c.last = decision
	return decision
}

// RecordCast notes a successful partner activation.
func (c *Controller) RecordCast(at float64) {
	c.lastCastAt = at
	c.casts++
}

// Personality reports the active personality.
func (c *Controller) Personality() Personality {
	return c.personality
}

// Snapshot returns the controller state.
func (c *Controller) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{Personality: c.personality, LastDecision: c.last, LastCastAt: c.lastCastAt, Casts: c.casts}
}

func (c *Controller) baseDropped() bool {
	if len(c.history) < 2 {
		return false
	}
	peak := c.history[0].fraction
	for _, sample := range c.history {
		if sample.fraction > peak {
			peak = sample.fraction
		}
	}
	current := c.history[len(c.history)-1].fraction
	return peak-current >= BaseDropThreshold
}
