package combat

import (
	"errors"
	"math"
	"testing"
)

type sequenceSource struct {
	values []float64
	calls  int
}

func (s *sequenceSource) Float64() float64 {
	v := s.values[s.calls%len(s.values)]
	s.calls++
	return v
}

func TestComputeDPSStandardFormula(t *testing.T) {
	//1.- attack 100, defense 100 halves the damage before fire rate is applied.
	got := ComputeDPS(100, 2, 100, 500, WeaponSpecial{})
	if got != 100 {
		t.Fatalf("expected 100 dps, got %v", got)
	}
	if sniper := ComputeDPS(100, 2, 100, 500, Sniper()); sniper != got {
		t.Fatalf("sniper should share the standard formula, got %v", sniper)
	}
	if splash := ComputeDPS(100, 2, 100, 500, Splash(2)); splash != got {
		t.Fatalf("splash should share the standard formula, got %v", splash)
	}
}

func TestComputeDPSPierceReducesDefense(t *testing.T) {
	got := ComputeDPS(100, 1, 100, 500, Pierce(0.5))
	want := 100 * (100.0 / 150.0)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got <= ComputeDPS(100, 1, 100, 500, WeaponSpecial{}) {
		t.Fatalf("pierce should outdamage the standard formula")
	}
}

func TestTrueDamagePerHitIsExact(t *testing.T) {
	got := PerHitDamage(100, 1, 9999, 1000, TrueDamage(0.02))
	if got != 120 {
		t.Fatalf("expected exactly 120, got %v", got)
	}
}

func TestZeroAttackDealsNothing(t *testing.T) {
	if got := ComputeDPS(0, 1, 0, 100, WeaponSpecial{}); got != 0 {
		t.Fatalf("expected zero dps, got %v", got)
	}
	if got := PerHitDamage(10, 0, 5, 100, WeaponSpecial{}); got != 0 {
		t.Fatalf("expected zero per-hit at zero fire rate, got %v", got)
	}
}

func TestComputeDPSRejectsNegativeInputs(t *testing.T) {
	cases := []struct {
		name string
		call func()
	}{
		{"attack", func() { ComputeDPS(-1, 1, 1, 1, WeaponSpecial{}) }},
		{"fire rate", func() { ComputeDPS(1, -1, 1, 1, WeaponSpecial{}) }},
		{"defense", func() { ComputeDPS(1, 1, -1, 1, WeaponSpecial{}) }},
		{"max hp", func() { ComputeDPS(1, 1, 1, -1, TrueDamage(0.1)) }},
		{"percent", func() { ComputeDPS(1, 1, 1, 1, TrueDamage(-0.1)) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				r := recover()
				err, ok := r.(error)
				if !ok || !errors.Is(err, ErrNegativeInput) {
					t.Fatalf("expected ErrNegativeInput panic, got %v", r)
				}
			}()
			tc.call()
		})
	}
}

func TestEvadesOnlyRollsForGroundAttackerAgainstFlier(t *testing.T) {
	src := &sequenceSource{values: []float64{0.1, 0.9}}
	if Evades(true, true, src) || Evades(false, false, src) {
		t.Fatalf("expected no evasion outside ground-vs-flier")
	}
	if src.calls != 0 {
		t.Fatalf("expected no RNG draws, got %d", src.calls)
	}
	if !Evades(false, true, src) {
		t.Fatalf("expected 0.1 roll to evade")
	}
	if Evades(false, true, src) {
		t.Fatalf("expected 0.9 roll to hit")
	}
}

func TestStrikeLoggingFields(t *testing.T) {
	fields := Strike{AttackerID: 3, TargetID: 9, Damage: 12.3456, Lethal: true}.LoggingFields()
	values := make(map[string]any, len(fields))
	for _, f := range fields {
		values[f.Key] = f.Value
	}
	if values["damage"] != 12.35 {
		t.Fatalf("expected rounded damage, got %v", values["damage"])
	}
	if values["lethal"] != true || values["target_id"] != 9 {
		t.Fatalf("unexpected fields: %#v", values)
	}
}
