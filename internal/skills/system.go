package skills

import (
	"errors"
	"fmt"

	"mechlane/arena/internal/economy"
)

// SlotCount is the fixed number of skill slots in a deck.
const SlotCount = 3

// ErrUnknownSkill reports a deck entry missing from the catalog.
var ErrUnknownSkill = errors.New("skills: unknown skill")

// Applier executes the instant part of a skill against the battlefield owned by the caller.
type Applier interface {
	HealAllies(percent float64)
	Strike(damage float64, count int)
	Regroup(retreat, healPercent float64)
	GrantWatt(amount float64)
	SpawnDecoys(slots []float64, hp float64) []int
	FocusTarget() int
}

// Slot is one deck entry and its cooldown.
type Slot struct {
	Skill     string  `json:"skill,omitempty"`
	Bound     bool    `json:"bound"`
	Remaining float64 `json:"remaining"`
}

// Ready reports whether the slot holds a skill with no remaining cooldown.
func (s Slot) Ready() bool {
	return s.Bound && s.Remaining <= 0
}

// System owns the SP pool, the three cooldown slots and the active effects of one faction.
type System struct {
	sp      economy.Pool
	slots   [SlotCount]Slot
	skills  [SlotCount]Skill
	effects EffectSet
}

// NewSystem binds the deck against the catalog. Empty deck entries leave the slot unbound.
func NewSystem(deck [SlotCount]string, catalog *Catalog, sp economy.Pool) (*System, error) {
	s := &System{sp: sp}
	for i, name := range deck {
		if name == "" {
			continue
		}
		skill, ok := catalog.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: slot %d %q", ErrUnknownSkill, i, name)
		}
		s.slots[i] = Slot{Skill: name, Bound: true}
		s.skills[i] = skill
	}
	return s, nil
}

// CanUse reports whether the slot is bound, off cooldown and affordable.
func (s *System) CanUse(slot int) bool {
	if slot < 0 || slot >= SlotCount {
		return false
	}
	return s.slots[slot].Ready() && s.sp.CanAfford(s.skills[slot].Cost)
}

// Activate applies the slot's skill atomically: verify, apply one effect, deduct SP, start the
// cooldown. A rejected activation leaves every piece of state untouched.
func (s *System) Activate(slot int, applier Applier) (Skill, bool) {
	//1.- Verify affordability and readiness before touching anything.
	if !s.CanUse(slot) {
		return Skill{}, false
	}
	skill := s.skills[slot].clone()
	desc := skill.Effect

	//2.- Apply exactly one effect.
	switch desc.Kind {
	case DescriptorBuff:
		effect := ActiveEffect{Kind: desc.Effect, Remaining: desc.Duration, Duration: desc.Duration, Magnitude: desc.Magnitude}
		if desc.Effect == EffectFocus {
			effect.TargetID = applier.FocusTarget()
		}
		s.effects.Add(effect)
	case DescriptorHeal:
		applier.HealAllies(desc.Percent)
	case DescriptorStrike:
		applier.Strike(desc.Damage, desc.Count)
	case DescriptorRegroup:
		applier.Regroup(desc.Retreat, desc.Percent)
		s.effects.Add(ActiveEffect{Kind: EffectStun, Remaining: desc.Duration, Duration: desc.Duration})
	case DescriptorGrant:
		applier.GrantWatt(desc.Amount)
	case DescriptorDecoys:
		ids := applier.SpawnDecoys(desc.Slots, desc.DecoyHP)
		s.effects.Add(ActiveEffect{Kind: EffectDecoy, Remaining: desc.Duration, Duration: desc.Duration, DecoyIDs: ids})
	default:
		panic(fmt.Errorf("%w: descriptor %q", ErrInvalidCatalog, desc.Kind))
	}

	//3.- Deduct SP and start the cooldown.
	s.sp.Spend(skill.Cost)
	s.slots[slot].Remaining = skill.Cooldown
	return skill, true
}

// RegenSP regenerates the SP pool.
func (s *System) RegenSP(dt float64) {
	s.sp.Regen(dt, 1)
}

// Maintain decrements effects and cooldowns, returning the effects that expired this step.
func (s *System) Maintain(dt float64) []ActiveEffect {
	expired := s.effects.Tick(dt)
	for i := range s.slots {
		if s.slots[i].Remaining > 0 {
			s.slots[i].Remaining = Countdown(s.slots[i].Remaining, dt)
		}
	}
	return expired
}

// Tick runs SP regeneration followed by effect and cooldown maintenance.
func (s *System) Tick(dt float64) []ActiveEffect {
	s.RegenSP(dt)
	return s.Maintain(dt)
}

// SP exposes the skill-point pool for grants and inspection.
func (s *System) SP() *economy.Pool {
	return &s.sp
}

// Effects exposes the active effect set.
func (s *System) Effects() *EffectSet {
	return &s.effects
}

// Skill returns the skill bound to the slot.
func (s *System) Skill(slot int) (Skill, bool) {
	if slot < 0 || slot >= SlotCount || !s.slots[slot].Bound {
		return Skill{}, false
	}
	return s.skills[slot].clone(), true
}

// Snapshot is a read-only copy of the system state.
type Snapshot struct {
	SP      economy.Pool   `json:"sp"`
	Slots   []Slot         `json:"slots"`
	Effects []ActiveEffect `json:"effects"`
}

// Snapshot copies the current state.
func (s *System) Snapshot() Snapshot {
	slots := make([]Slot, SlotCount)
	copy(slots, s.slots[:])
	return Snapshot{SP: s.sp, Slots: slots, Effects: s.effects.List()}
}
