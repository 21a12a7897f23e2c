package combat

import (
	"errors"
	"testing"
)

func TestEveryKindIsRegisteredInEveryTable(t *testing.T) {
	for kind := SpecialKind(0); kind < specialKindCount; kind++ {
		if _, ok := specialNames[kind]; !ok {
			t.Fatalf("kind %d missing from name table", kind)
		}
		if _, ok := specialFormulas[kind]; !ok {
			t.Fatalf("kind %s missing from damage table", kind)
		}
		if _, ok := specialHeuristics[kind]; !ok {
			t.Fatalf("kind %s missing from targeting table", kind)
		}
		if kind.VisualTag() == "" {
			t.Fatalf("kind %s missing from visual table", kind)
		}
	}
	if len(specialNames) != int(specialKindCount) || len(specialFormulas) != int(specialKindCount) ||
		len(specialHeuristics) != int(specialKindCount) || len(specialVisuals) != int(specialKindCount) {
		t.Fatalf("tables contain entries for unknown kinds")
	}
}

func TestSpecialKindTextRoundTrip(t *testing.T) {
	for kind := SpecialKind(0); kind < specialKindCount; kind++ {
		text, err := kind.MarshalText()
		if err != nil {
			t.Fatalf("marshal %d: %v", kind, err)
		}
		var parsed SpecialKind
		if err := parsed.UnmarshalText(text); err != nil || parsed != kind {
			t.Fatalf("round trip %s -> %v (%v)", text, parsed, err)
		}
	}
	if _, err := ParseSpecialKind("laser"); !errors.Is(err, ErrInvalidSpecial) {
		t.Fatalf("expected ErrInvalidSpecial, got %v", err)
	}
	if kind, err := ParseSpecialKind(""); err != nil || kind != SpecialNone {
		t.Fatalf("expected empty name to be none")
	}
}

func TestWeaponSpecialValidate(t *testing.T) {
	valid := []WeaponSpecial{{}, Sniper(), Pierce(0.5), Splash(2), TrueDamage(0.02)}
	for _, s := range valid {
		if err := s.Validate(); err != nil {
			t.Fatalf("expected %+v valid: %v", s, err)
		}
	}
	invalid := []WeaponSpecial{Pierce(0), Pierce(1.5), Splash(0), TrueDamage(-1), {Kind: specialKindCount}}
	for _, s := range invalid {
		if err := s.Validate(); !errors.Is(err, ErrInvalidSpecial) {
			t.Fatalf("expected %+v invalid, got %v", s, err)
		}
	}
}

func TestHitProfileOf(t *testing.T) {
	if p := HitProfileOf(Splash(2)); p.Kind != HitSplash || p.Range != 2 {
		t.Fatalf("unexpected splash profile %+v", p)
	}
	if p := HitProfileOf(Sniper()); p.Kind != HitSingle {
		t.Fatalf("unexpected sniper profile %+v", p)
	}
}
