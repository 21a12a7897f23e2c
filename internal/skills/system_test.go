package skills

import (
	"errors"
	"strings"
	"testing"

	"mechlane/arena/internal/economy"
)

type recordingApplier struct {
	healed   float64
	strikes  int
	regroups int
	granted  float64
	decoys   int
	focus    int
}

func (r *recordingApplier) HealAllies(percent float64)       { r.healed += percent }
func (r *recordingApplier) Strike(damage float64, count int) { r.strikes++ }
func (r *recordingApplier) Regroup(retreat, heal float64)    { r.regroups++ }
func (r *recordingApplier) GrantWatt(amount float64)         { r.granted += amount }
func (r *recordingApplier) FocusTarget() int                 { return r.focus }
func (r *recordingApplier) SpawnDecoys(slots []float64, hp float64) []int {
	ids := make([]int, len(slots))
	for i := range slots {
		r.decoys++
		ids[i] = -r.decoys
	}
	return ids
}

func newSystem(t *testing.T, deck [SlotCount]string, sp float64) *System {
	t.Helper()
	sys, err := NewSystem(deck, DefaultCatalog(), economy.NewPool(sp, 100, 2.5))
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	return sys
}

func TestDefaultCatalogCoversEveryDescriptor(t *testing.T) {
	catalog := DefaultCatalog()
	seen := map[DescriptorKind]bool{}
	buffs := map[EffectKind]bool{}
	for _, name := range catalog.Names() {
		skill, _ := catalog.Lookup(name)
		seen[skill.Effect.Kind] = true
		if skill.Effect.Kind == DescriptorBuff {
			buffs[skill.Effect.Effect] = true
		}
	}
	for _, kind := range []DescriptorKind{DescriptorBuff, DescriptorHeal, DescriptorStrike, DescriptorRegroup, DescriptorGrant, DescriptorDecoys} {
		if !seen[kind] {
			t.Fatalf("catalog lacks a %s skill", kind)
		}
	}
	if !buffs[EffectFocus] || !buffs[EffectFreeze] || !buffs[EffectBaseShield] {
		t.Fatalf("expected focus, freeze and base shield buffs, got %v", buffs)
	}
}

func TestLoadCatalogAggregatesProblems(t *testing.T) {
	doc := `
skills:
  - name: broken
    cost: -1
    cooldown: 1
    effect: {kind: heal, percent: 2}
  - name: broken
    cost: 1
    cooldown: 1
    effect: {kind: grant, amount: 5}
  - name: odd
    cost: 1
    cooldown: 1
    effect: {kind: teleport}
`
	_, err := LoadCatalog(strings.NewReader(doc))
	if !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("expected ErrInvalidCatalog, got %v", err)
	}
	for _, fragment := range []string{"negative cost", "heal percent", "defined twice", "unknown descriptor"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in %v", fragment, err)
		}
	}
	if _, err := LoadCatalog(strings.NewReader("skills:\n  - name: x\n    effect: {kind: buff, effect: warp, duration: 1}\n")); err == nil {
		t.Fatalf("expected unknown effect to fail decoding")
	}
}

func TestNewSystemRejectsUnknownSkill(t *testing.T) {
	_, err := NewSystem([SlotCount]string{"overclock", "nope", ""}, DefaultCatalog(), economy.NewPool(0, 100, 1))
	if !errors.Is(err, ErrUnknownSkill) {
		t.Fatalf("expected ErrUnknownSkill, got %v", err)
	}
}

func TestActivateGatedBySP(t *testing.T) {
	sys := newSystem(t, [SlotCount]string{"overclock", "rally", "bulwark"}, 50)
	sys.SP().Drain()
	applier := &recordingApplier{}
	if _, ok := sys.Activate(0, applier); ok {
		t.Fatalf("expected activation with zero SP to fail")
	}
	if sys.Snapshot().Slots[0].Remaining != 0 {
		t.Fatalf("failed activation started a cooldown")
	}
	if sys.Effects().Len() != 0 {
		t.Fatalf("failed activation registered an effect")
	}
}

func TestActivateIsAtomicAndStartsCooldown(t *testing.T) {
	sys := newSystem(t, [SlotCount]string{"overclock", "", "supply_drop"}, 100)
	applier := &recordingApplier{}
	skill, ok := sys.Activate(0, applier)
	if !ok || skill.Name != "overclock" {
		t.Fatalf("expected overclock activation")
	}
	if sys.SP().Amount != 70 {
		t.Fatalf("expected SP 70, got %v", sys.SP().Amount)
	}
	if sys.Snapshot().Slots[0].Remaining != 20 {
		t.Fatalf("expected cooldown 20, got %v", sys.Snapshot().Slots[0].Remaining)
	}
	if _, ok := sys.Activate(0, applier); ok {
		t.Fatalf("expected cooldown to block reactivation")
	}
	if _, ok := sys.Activate(1, applier); ok {
		t.Fatalf("expected unbound slot to fail")
	}
	if _, ok := sys.Activate(5, applier); ok || sys.CanUse(-1) {
		t.Fatalf("expected out-of-range slots to fail")
	}
	if _, ok := sys.Activate(2, applier); !ok || applier.granted != 200 {
		t.Fatalf("expected supply drop to grant watt, got %v", applier.granted)
	}
}

func TestEffectRefreshesInsteadOfStacking(t *testing.T) {
	cat, err := LoadCatalog(strings.NewReader(`
skills:
  - {name: boost_a, cost: 0, cooldown: 0, effect: {kind: buff, effect: attack_boost, duration: 5, magnitude: 1.2}}
  - {name: boost_b, cost: 0, cooldown: 0, effect: {kind: buff, effect: attack_boost, duration: 9, magnitude: 1.5}}
`))
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	sys, err := NewSystem([SlotCount]string{"boost_a", "boost_b", ""}, cat, economy.NewPool(0, 100, 0))
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	applier := &recordingApplier{}
	sys.Activate(0, applier)
	sys.Tick(1)
	sys.Activate(1, applier)
	effects := sys.Effects().List()
	if len(effects) != 1 {
		t.Fatalf("expected a single attack boost, got %d", len(effects))
	}
	if effects[0].Remaining != 9 || effects[0].Magnitude != 1.5 {
		t.Fatalf("expected refreshed effect, got %+v", effects[0])
	}
}

func TestTickExpiresEffectsAndFloorsCooldowns(t *testing.T) {
	sys := newSystem(t, [SlotCount]string{"holo_decoys", "fall_back", "mark_target"}, 100)
	applier := &recordingApplier{focus: 42}
	sys.Activate(0, applier)
	sys.Activate(1, applier)
	sys.Activate(2, applier)
	if applier.decoys != 3 || applier.regroups != 1 {
		t.Fatalf("expected decoys and regroup to run, got %+v", applier)
	}
	focus, ok := sys.Effects().Get(EffectFocus)
	if !ok || focus.TargetID != 42 {
		t.Fatalf("expected captured focus target, got %+v", focus)
	}
	if !sys.Effects().Has(EffectStun) {
		t.Fatalf("expected regroup to stun allies")
	}

	expired := sys.Tick(2)
	if len(expired) != 1 || expired[0].Kind != EffectStun {
		t.Fatalf("expected stun to expire first, got %+v", expired)
	}
	expired = sys.Tick(6)
	var decoyExpired bool
	for _, e := range expired {
		if e.Kind == EffectDecoy && len(e.DecoyIDs) == 3 {
			decoyExpired = true
		}
	}
	if !decoyExpired {
		t.Fatalf("expected decoy effect with ids to expire, got %+v", expired)
	}
	sys.Tick(100)
	for i, slot := range sys.Snapshot().Slots {
		if slot.Remaining != 0 {
			t.Fatalf("slot %d cooldown not floored: %v", i, slot.Remaining)
		}
	}
	if sys.SP().Amount > sys.SP().Max {
		t.Fatalf("SP exceeded max")
	}
}

func TestFixedStepTimersElapseOnExactTick(t *testing.T) {
	sys := newSystem(t, [SlotCount]string{"afterburn", "cryo_field", ""}, 100)
	applier := &recordingApplier{}
	if _, ok := sys.Activate(0, applier); !ok {
		t.Fatalf("expected afterburn to activate")
	}
	if _, ok := sys.Activate(1, applier); !ok {
		t.Fatalf("expected cryo_field to activate")
	}
	sys.SP().Grant(100)

	//1.- A 3 s freeze expires on the thirtieth 0.1 s step, and a 15 s cooldown clears on the 150th.
	freezeExpiredAt, readyAt := 0, 0
	for step := 1; step <= 200 && readyAt == 0; step++ {
		for _, e := range sys.Tick(0.1) {
			if e.Kind == EffectFreeze {
				freezeExpiredAt = step
			}
		}
		if sys.CanUse(0) {
			readyAt = step
		}
	}
	if freezeExpiredAt != 30 {
		t.Fatalf("freeze expired on step %d, want 30", freezeExpiredAt)
	}
	if readyAt != 150 {
		t.Fatalf("afterburn ready on step %d, want 150", readyAt)
	}
}
