package battle

// Outcome is the terminal verdict of a battle.
type Outcome string

const (
	PlayerWin Outcome = "player_win"
	EnemyWin  Outcome = "enemy_win"
	Draw      Outcome = "draw"
)

// BuildTally accumulates per-build statistics.
type BuildTally struct {
	Damage   float64 `json:"damage"`
	Kills    int     `json:"kills"`
	Deaths   int     `json:"deaths"`
	Produced int     `json:"produced"`
}

// Tally holds one faction's per-build statistics indexed by roster slot.
type Tally [3]BuildTally

// Result is computed exactly once per battle and never changes afterwards.
type Result struct {
	BattleID       string  `json:"battle_id"`
	Outcome        Outcome `json:"outcome"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Ticks          int     `json:"ticks"`
	Player         Tally   `json:"player"`
	Enemy          Tally   `json:"enemy"`
	Partner        *Tally  `json:"partner,omitempty"`
}

func (r *Result) clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	if r.Partner != nil {
		partner := *r.Partner
		out.Partner = &partner
	}
	return &out
}

// EventKind enumerates battle events.
type EventKind string

const (
	EventProduced      EventKind = "produced"
	EventSkill         EventKind = "skill"
	EventKill          EventKind = "kill"
	EventBaseHit       EventKind = "base_hit"
	EventDecoysExpired EventKind = "decoys_expired"
	EventFinished      EventKind = "finished"
	EventCombo         EventKind = "combo"
)

// Event is emitted synchronously as the battle unfolds. Observers must not mutate the engine.
// Side names the acting faction's side, except for base hits where it names the damaged base.
type Event struct {
	Tick     int       `json:"tick"`
	Kind     EventKind `json:"kind"`
	Owner    Owner     `json:"owner"`
	UnitID   int       `json:"unit_id,omitempty"`
	TargetID int       `json:"target_id,omitempty"`
	Build    int       `json:"build"`
	Tier     int       `json:"tier,omitempty"`
	Side     Side      `json:"side"`
	Skill    string    `json:"skill,omitempty"`
	Damage   float64   `json:"damage,omitempty"`
	Outcome  Outcome   `json:"outcome,omitempty"`
}
