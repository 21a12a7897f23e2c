package main

import (
	"fmt"

	"github.com/google/uuid"

	"mechlane/arena/internal/battle"
	"mechlane/arena/internal/logging"
	"mechlane/arena/internal/replay"
	"mechlane/arena/internal/scenario"
)

// session couples one battle with its scripted casts and, optionally, a replay recorder.
type session struct {
	id       string
	doc      *scenario.Scenario
	battle   battle.Battle
	recorder *replay.Recorder
}

type sessionOptions struct {
	replayDir  string
	frameEvery int
	logger     *logging.Logger
	observers  []func(battle.Event)
}

// newBattleID assigns identifiers outside the engine so replays and logs can reference them.
func newBattleID() string {
	return uuid.NewString()
}

func newSession(doc *scenario.Scenario, opts sessionOptions) (*session, error) {
	if opts.logger == nil {
		opts.logger = logging.L()
	}
	s := &session{id: newBattleID(), doc: doc}
	observers := opts.observers
	if opts.replayDir != "" {
		rec, err := replay.NewRecorder(opts.replayDir, s.id, doc, opts.frameEvery, opts.logger)
		if err != nil {
			return nil, fmt.Errorf("open replay: %w", err)
		}
		s.recorder = rec
		observers = append([]func(battle.Event){rec.Observe}, observers...)
	}
	engine, err := doc.NewBattle(s.id, battle.WithLogger(opts.logger), battle.WithObserver(fanOut(observers)))
	if err != nil {
		if s.recorder != nil {
			_ = s.recorder.Finish(nil)
		}
		return nil, err
	}
	s.battle = engine
	if s.recorder != nil {
		s.battle = s.recorder.Wrap(engine)
	}
	return s, nil
}

func fanOut(observers []func(battle.Event)) func(battle.Event) {
	if len(observers) == 0 {
		return nil
	}
	return func(ev battle.Event) {
		for _, observe := range observers {
			observe(ev)
		}
	}
}

// step casts the skills scripted for the current tick and advances one tick. It reports whether
// the battle is still running.
func (s *session) step() bool {
	if s.battle.IsFinished() {
		return false
	}
	for _, slot := range s.doc.CastsAt(s.battle.TickCount()) {
		s.battle.ActivateSkill(slot)
	}
	s.battle.Tick()
	return !s.battle.IsFinished()
}

// runToEnd steps the battle until it settles.
func (s *session) runToEnd() {
	for s.step() {
	}
}

// finish closes the replay, if any, and returns the result. Abandoned battles yield a nil result.
func (s *session) finish() (*battle.Result, error) {
	result, _ := s.battle.Result()
	if s.recorder == nil {
		return result, nil
	}
	return result, s.recorder.Finish(result)
}
