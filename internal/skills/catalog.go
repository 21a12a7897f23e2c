package skills

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	_ "embed"

	"gopkg.in/yaml.v3"
)

// DescriptorKind enumerates how a skill applies its effect.
type DescriptorKind string

const (
	// DescriptorBuff registers or refreshes a duration-based active effect.
	DescriptorBuff DescriptorKind = "buff"
	// DescriptorHeal restores a percentage of max HP to every allied unit.
	DescriptorHeal DescriptorKind = "heal"
	// DescriptorStrike deals flat damage to the enemies nearest their cluster centroid.
	DescriptorStrike DescriptorKind = "strike"
	// DescriptorRegroup pulls allies back, heals them and stuns them briefly.
	DescriptorRegroup DescriptorKind = "regroup"
	// DescriptorGrant adds Watt instantly.
	DescriptorGrant DescriptorKind = "grant"
	// DescriptorDecoys spawns decoy units at preset lane slots.
	DescriptorDecoys DescriptorKind = "decoys"
)

// ErrInvalidCatalog wraps every catalog validation failure.
var ErrInvalidCatalog = errors.New("skills: invalid catalog")

// Descriptor is the tagged payload of a skill. Only the fields relevant to Kind are read.
type Descriptor struct {
	Kind DescriptorKind `yaml:"kind" json:"kind"`
	//1.- Effect, Duration and Magnitude configure buff descriptors; Duration is also the regroup stun
	// and the decoy lifetime.
	Effect    EffectKind `yaml:"effect" json:"effect"`
	Duration  float64    `yaml:"duration" json:"duration,omitempty"`
	Magnitude float64    `yaml:"magnitude" json:"magnitude,omitempty"`
	//2.- Percent is the healed share of max HP for heal and regroup.
	Percent float64 `yaml:"percent" json:"percent,omitempty"`
	//3.- Damage and Count configure strikes.
	Damage float64 `yaml:"damage" json:"damage,omitempty"`
	Count  int     `yaml:"count" json:"count,omitempty"`
	//4.- Amount is the Watt granted.
	Amount float64 `yaml:"amount" json:"amount,omitempty"`
	//5.- Retreat is how many tiles regrouping units fall back.
	Retreat float64 `yaml:"retreat" json:"retreat,omitempty"`
	//6.- Slots are decoy positions as fractions of the lane measured from the allied base.
	Slots   []float64 `yaml:"slots" json:"slots,omitempty"`
	DecoyHP float64   `yaml:"decoy_hp" json:"decoy_hp,omitempty"`
}

func (d Descriptor) validate() []string {
	var problems []string
	switch d.Kind {
	case DescriptorBuff:
		if !d.Effect.Valid() || d.Effect == EffectDecoy || d.Effect == EffectStun {
			problems = append(problems, fmt.Sprintf("buff effect %s is not registrable directly", d.Effect))
		}
		if d.Duration <= 0 {
			problems = append(problems, "buff duration must be positive")
		}
		if d.Magnitude < 0 {
			problems = append(problems, "buff magnitude must be non-negative")
		}
	case DescriptorHeal:
		if d.Percent <= 0 || d.Percent > 1 {
			problems = append(problems, "heal percent must be in (0,1]")
		}
	case DescriptorStrike:
		if d.Damage <= 0 || d.Count <= 0 {
			problems = append(problems, "strike damage and count must be positive")
		}
	case DescriptorRegroup:
		if d.Retreat < 0 || d.Percent < 0 || d.Percent > 1 || d.Duration <= 0 {
			problems = append(problems, "regroup needs non-negative retreat, percent in [0,1] and positive duration")
		}
	case DescriptorGrant:
		if d.Amount <= 0 {
			problems = append(problems, "grant amount must be positive")
		}
	case DescriptorDecoys:
		if len(d.Slots) == 0 || d.Duration <= 0 || d.DecoyHP <= 0 {
			problems = append(problems, "decoys need slots, positive duration and positive hp")
		}
		for _, slot := range d.Slots {
			if slot < 0 || slot > 1 {
				problems = append(problems, fmt.Sprintf("decoy slot %v outside [0,1]", slot))
			}
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown descriptor kind %q", d.Kind))
	}
	return problems
}

// Skill is one catalog entry.
type Skill struct {
	Name     string     `yaml:"name" json:"name"`
	Cost     float64    `yaml:"cost" json:"cost"`
	Cooldown float64    `yaml:"cooldown" json:"cooldown"`
	Effect   Descriptor `yaml:"effect" json:"effect"`
}

func (s Skill) clone() Skill {
	if s.Effect.Slots != nil {
		s.Effect.Slots = append([]float64(nil), s.Effect.Slots...)
	}
	return s
}

// Catalog maps skill names to their definitions. It is read-only once loaded.
type Catalog struct {
	skills map[string]Skill
}

type catalogFile struct {
	Skills []Skill `yaml:"skills"`
}

// LoadCatalog decodes and validates a YAML skill catalog.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var decoded catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidCatalog, err)
	}
	catalog := &Catalog{skills: make(map[string]Skill, len(decoded.Skills))}
	var problems []string
	for i, skill := range decoded.Skills {
		name := strings.TrimSpace(skill.Name)
		if name == "" {
			problems = append(problems, fmt.Sprintf("skill %d has no name", i))
			continue
		}
		if _, dup := catalog.skills[name]; dup {
			problems = append(problems, fmt.Sprintf("skill %q defined twice", name))
			continue
		}
		if skill.Cost < 0 || skill.Cooldown < 0 {
			problems = append(problems, fmt.Sprintf("skill %q has negative cost or cooldown", name))
		}
		for _, problem := range skill.Effect.validate() {
			problems = append(problems, fmt.Sprintf("skill %q: %s", name, problem))
		}
		skill.Name = name
		catalog.skills[name] = skill
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(problems, "; "))
	}
	return catalog, nil
}

// Lookup returns a copy of the named skill.
func (c *Catalog) Lookup(name string) (Skill, bool) {
	if c == nil {
		return Skill{}, false
	}
	skill, ok := c.skills[name]
	if !ok {
		return Skill{}, false
	}
	return skill.clone(), true
}

// Names lists the catalog entries alphabetically.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.skills))
	for name := range c.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

//go:embed skills.yaml
var defaultCatalogPayload []byte

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// DefaultCatalog returns the built-in skill catalog shared by every battle.
func DefaultCatalog() *Catalog {
	defaultOnce.Do(func() {
		//1.- Parse the embedded catalog exactly once.
		defaultCatalog, defaultErr = LoadCatalog(bytes.NewReader(defaultCatalogPayload))
	})
	//2.- A broken built-in catalog is a build defect, so surface it eagerly.
	if defaultErr != nil {
		panic(defaultErr)
	}
	return defaultCatalog
}
