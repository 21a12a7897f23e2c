package replay

import (
	"fmt"
	"sync"
	"time"

	"mechlane/arena/internal/battle"
	"mechlane/arena/internal/logging"
	"mechlane/arena/internal/scenario"
)

// EventCommand marks a player skill activation in the event log.
const EventCommand = "command"

// Command is the payload of a recorded skill activation.
type Command struct {
	Tick int  `json:"tick"`
	Slot int  `json:"slot"`
	OK   bool `json:"ok"`
}

// Recorder streams one battle into a replay bundle: battle events, player commands and periodic
// state frames.
type Recorder struct {
	mu         sync.Mutex
	writer     *Writer
	log        *logging.Logger
	tps        int
	frameEvery int
	events     int64
	commands   int64
	frames     int64
	dumps      int64
	lastDump   time.Time
	lastFrame  int
	failed     bool
	closed     bool
}

// Stats summarises recorder health for monitoring endpoints.
type Stats struct {
	Directory    string
	Events       int64
	Commands     int64
	Frames       int64
	Dumps        int64
	LastDumpTime time.Time
	Failed       bool
}

// NewRecorder opens a bundle under root for the battle described by doc. frameEvery controls
// the frame cadence in ticks; the terminal frame is always captured.
func NewRecorder(root, battleID string, doc *scenario.Scenario, frameEvery int, logger *logging.Logger) (*Recorder, error) {
	if doc == nil {
		return nil, fmt.Errorf("replay scenario must be provided")
	}
	if frameEvery <= 0 {
		frameEvery = 1
	}
	if logger == nil {
		logger = logging.L()
	}
	writer, _, err := NewWriter(root, battleID, nil)
	if err != nil {
		return nil, err
	}
	writer.UpdateHeader(func(h *Header) {
		h.Seed = doc.Seed
		h.ScenarioName = doc.Name
		h.FrameEvery = frameEvery
		h.Scenario = doc
	})
	return &Recorder{
		writer:     writer,
		log:        logger.With(logging.String("battle_id", battleID), logging.String("replay_dir", writer.Directory())),
		tps:        doc.TicksPerSecond,
		frameEvery: frameEvery,
		lastFrame:  -1,
	}, nil
}

// Directory returns the bundle directory.
func (r *Recorder) Directory() string {
	if r == nil {
		return ""
	}
	return r.writer.Directory()
}

// Observe records a battle event. It matches the battle observer signature.
func (r *Recorder) Observe(ev battle.Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.check(r.writer.AppendEvent(uint64(ev.Tick), r.simulatedMs(ev.Tick), string(ev.Kind), ev))
	r.events++
}

// Command records a player skill activation attempted before the step starting at tick.
func (r *Recorder) Command(tick, slot int, ok bool) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.check(r.writer.AppendEvent(uint64(tick), r.simulatedMs(tick), EventCommand, Command{Tick: tick, Slot: slot, OK: ok}))
	r.commands++
}

// Frame captures state when tick falls on the cadence or when force is set.
func (r *Recorder) Frame(tick int, state any, force bool) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || tick == r.lastFrame {
		return
	}
	if !force && tick%r.frameEvery != 0 {
		return
	}
	frame, err := EncodeState(state)
	if err != nil {
		r.check(err)
		return
	}
	r.check(r.writer.AppendFrame(uint64(tick), r.simulatedMs(tick), frame))
	r.frames++
	r.lastFrame = tick
}

// Dump flushes everything captured so far and returns the bundle directory.
func (r *Recorder) Dump() (string, error) {
	if r == nil {
		return "", fmt.Errorf("recorder not configured")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writer.Flush(); err != nil {
		return "", err
	}
	r.dumps++
	r.lastDump = time.Now().UTC()
	return r.writer.Directory(), nil
}

// Finish stores the result in the header and closes the bundle.
func (r *Recorder) Finish(result *battle.Result) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.writer.UpdateHeader(func(h *Header) { h.Result = result })
	if err := r.writer.Close(); err != nil {
		r.log.Error("replay close failed", logging.Error(err))
		return err
	}
	r.log.Info("replay saved", logging.Int64("events", r.events), logging.Int64("frames", r.frames), logging.Int64("commands", r.commands))
	return nil
}

// Snapshot returns statistics describing the recorder state.
func (r *Recorder) Snapshot() Stats {
	if r == nil {
		return Stats{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Directory:    r.writer.Directory(),
		Events:       r.events,
		Commands:     r.commands,
		Frames:       r.frames,
		Dumps:        r.dumps,
		LastDumpTime: r.lastDump,
		Failed:       r.failed,
	}
}

// Wrap returns a battle that records commands and frames as it is driven. Battle events reach
// the recorder through the observer passed to the engine.
func (r *Recorder) Wrap(b battle.Battle) battle.Battle {
	return &recorded{Battle: b, rec: r}
}

func (r *Recorder) simulatedMs(tick int) int64 {
	if r.tps <= 0 {
		return 0
	}
	return int64(tick) * 1000 / int64(r.tps)
}

// check logs the first write failure; later failures are counted silently.
func (r *Recorder) check(err error) {
	if err == nil || r.failed {
		return
	}
	r.failed = true
	r.log.Error("replay write failed", logging.Error(err))
}

type recorded struct {
	battle.Battle
	rec *Recorder
}

func (b *recorded) Tick() {
	b.Battle.Tick()
	b.rec.Frame(b.Battle.TickCount(), b.Battle.Snapshot(), b.Battle.IsFinished())
}

func (b *recorded) ActivateSkill(slot int) bool {
	ok := b.Battle.ActivateSkill(slot)
	b.rec.Command(b.Battle.TickCount(), slot, ok)
	return ok
}
