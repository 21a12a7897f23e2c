package replay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"mechlane/arena/internal/battle"
)

// ErrDiverged reports that re-simulating a bundle did not reproduce what was recorded.
var ErrDiverged = errors.New("replay: simulation diverged")

// Report summarises a verification run.
type Report struct {
	BattleID      string         `json:"battle_id"`
	Ticks         int            `json:"ticks"`
	Commands      int            `json:"commands"`
	FramesChecked int            `json:"frames_checked"`
	Complete      bool           `json:"complete"`
	Outcome       battle.Outcome `json:"outcome,omitempty"`
}

// Verify rebuilds the battle from the bundle's scenario and replays the recorded commands. Every
// recorded frame and the final result must match the re-simulation exactly. Bundles dumped
// mid-battle are verified up to their last frame.
func Verify(b *Bundle, opts ...battle.Option) (Report, error) {
	report := Report{BattleID: b.Header.BattleID}
	if b.Header.Scenario == nil {
		return report, fmt.Errorf("replay header carries no scenario")
	}
	commands, err := b.Commands()
	if err != nil {
		return report, err
	}
	sim, err := b.Header.Scenario.NewBattle(b.Header.BattleID, opts...)
	if err != nil {
		return report, fmt.Errorf("rebuild battle: %w", err)
	}

	frames := make(map[int]*structpb.Struct, len(b.Frames))
	limit := 0
	for _, frame := range b.Frames {
		frames[int(frame.Tick)] = frame.State
		limit = max(limit, int(frame.Tick))
	}
	if b.Header.Result != nil {
		report.Complete = true
		limit = b.Header.Result.Ticks
	}

	next := 0
	apply := func() error {
		//1.- Commands recorded before a step replay before the same step, in order.
		for next < len(commands) && commands[next].Tick == sim.TickCount() {
			cmd := commands[next]
			if ok := sim.ActivateSkill(cmd.Slot); ok != cmd.OK {
				return fmt.Errorf("%w: command slot %d at tick %d returned %t, recorded %t", ErrDiverged, cmd.Slot, cmd.Tick, ok, cmd.OK)
			}
			next++
			report.Commands++
		}
		return nil
	}

	for !sim.IsFinished() && sim.TickCount() < limit {
		if err := apply(); err != nil {
			return report, err
		}
		sim.Tick()
		report.Ticks = sim.TickCount()
		want, ok := frames[report.Ticks]
		if !ok {
			continue
		}
		got, err := EncodeState(sim.Snapshot())
		if err != nil {
			return report, err
		}
		if !proto.Equal(want, got) {
			return report, fmt.Errorf("%w: frame at tick %d differs", ErrDiverged, report.Ticks)
		}
		report.FramesChecked++
	}
	//2.- Commands issued after the final step must still be refused.
	if err := apply(); err != nil {
		return report, err
	}
	if next < len(commands) {
		return report, fmt.Errorf("%w: %d commands past tick %d never replayed", ErrDiverged, len(commands)-next, report.Ticks)
	}

	if !report.Complete {
		return report, nil
	}
	result, finished := sim.Result()
	if !finished {
		return report, fmt.Errorf("%w: battle still running at tick %d", ErrDiverged, report.Ticks)
	}
	report.Outcome = result.Outcome
	same, err := sameJSON(result, b.Header.Result)
	if err != nil {
		return report, err
	}
	if !same {
		return report, fmt.Errorf("%w: result differs (%s recorded, %s replayed)", ErrDiverged, b.Header.Result.Outcome, result.Outcome)
	}
	return report, nil
}

func sameJSON(a, b any) (bool, error) {
	left, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(left, right), nil
}
