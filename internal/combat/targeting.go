package combat

import (
	"fmt"
	"math"

	"mechlane/arena/internal/rng"
)

// Attacker carries the attacker attributes that matter for target selection.
type Attacker struct {
	Position float64
	Range    float64
	Special  WeaponSpecial
}

// Candidate is a potential target. Callers pass enemies in their stable iteration order.
type Candidate struct {
	ID       int
	Position float64
	HP       float64
	Alive    bool
}

// NoFocus disables the focus override in FindTarget. Unit identities are never zero.
const NoFocus = 0

// FindTarget selects the index of the enemy the attacker should fire on, or false when no alive
// enemy is in range. Scramble picks uniformly through the RNG; otherwise a focus override wins when
// it is in range, and finally the weapon-special heuristic decides. Ties keep the earliest enemy.
func FindTarget(attacker Attacker, enemies []Candidate, scrambled bool, focusID int, src rng.Source) (int, bool) {
	//1.- Restrict to alive enemies inside the inclusive range.
	inRange := make([]int, 0, len(enemies))
	for i, enemy := range enemies {
		if !enemy.Alive {
			continue
		}
		if math.Abs(enemy.Position-attacker.Position) <= attacker.Range {
			inRange = append(inRange, i)
		}
	}
	if len(inRange) == 0 {
		return -1, false
	}

	//2.- Scramble overrides every heuristic with a uniform pick.
	if scrambled {
		return inRange[rng.Intn(src, len(inRange))], true
	}

	//3.- A focus target is honoured whenever it is among the candidates.
	if focusID != NoFocus {
		for _, idx := range inRange {
			if enemies[idx].ID == focusID {
				return idx, true
			}
		}
	}

	//4.- Fall back to the heuristic registered for the weapon special.
	heuristic, ok := specialHeuristics[attacker.Special.Kind]
	if !ok {
		panic(fmt.Errorf("%w: unknown kind %d", ErrInvalidSpecial, int(attacker.Special.Kind)))
	}
	switch heuristic {
	case heuristicFarthest:
		return pickBest(inRange, func(i int) float64 { return math.Abs(enemies[i].Position - attacker.Position) }), true
	case heuristicHighestHP:
		return pickBest(inRange, func(i int) float64 { return enemies[i].HP }), true
	case heuristicClustered:
		return pickBest(inRange, func(i int) float64 {
			return float64(clusterCount(enemies, inRange, i, attacker.Special.SplashRange))
		}), true
	default:
		return pickBest(inRange, func(i int) float64 { return -math.Abs(enemies[i].Position - attacker.Position) }), true
	}
}

// SplashVictims returns the indices of alive enemies within splashRange of the primary target,
// primary included, in iteration order.
func SplashVictims(primary int, enemies []Candidate, splashRange float64) []int {
	if primary < 0 || primary >= len(enemies) {
		return nil
	}
	center := enemies[primary].Position
	victims := make([]int, 0, 4)
	for i, enemy := range enemies {
		if !enemy.Alive {
			continue
		}
		if math.Abs(enemy.Position-center) <= splashRange {
			victims = append(victims, i)
		}
	}
	return victims
}

// pickBest returns the candidate with the strictly greatest score; the first one wins ties.
func pickBest(indices []int, score func(int) float64) int {
	best := indices[0]
	bestScore := score(best)
	for _, idx := range indices[1:] {
		if s := score(idx); s > bestScore {
			best, bestScore = idx, s
		}
	}
	return best
}

// clusterCount counts the other candidates within radius of candidate idx.
func clusterCount(enemies []Candidate, inRange []int, idx int, radius float64) int {
	count := 0
	for _, other := range inRange {
		if other == idx {
			continue
		}
		if math.Abs(enemies[other].Position-enemies[idx].Position) <= radius {
			count++
		}
	}
	return count
}
