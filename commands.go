package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"mechlane/arena/internal/auth"
	"mechlane/arena/internal/battle"
	"mechlane/arena/internal/config"
	"mechlane/arena/internal/logging"
	"mechlane/arena/internal/replay"
	"mechlane/arena/internal/scenario"
)

// errDiverged marks a verify run whose bundles did not re-simulate faithfully.
var errDiverged = errors.New("replay verification failed")

// headlessLogger writes to stderr at the requested level.
func headlessLogger(stderr io.Writer, level string) (*logging.Logger, error) {
	parsed, err := logging.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := logging.NewWriter(stderr, parsed)
	logging.ReplaceGlobals(logger)
	return logger, nil
}

// loadScenario reads path, or returns the built-in skirmish when path is empty. A non-negative
// seed overrides the document's seed.
func loadScenario(path string, seed int64) (*scenario.Scenario, error) {
	doc := scenario.Default()
	if path != "" {
		loaded, err := scenario.Load(path)
		if err != nil {
			return nil, err
		}
		doc = loaded
	}
	if seed >= 0 {
		doc.Seed = uint32(seed)
	}
	return doc, nil
}

// writeOutput writes JSON to path, or to stdout when path is "-".
func writeOutput(stdout io.Writer, path string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" || path == "-" {
		_, err = stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// flagParseError marks bad invocations; the message has already been printed.
type flagParseError struct{ err error }

func (e flagParseError) Error() string { return e.err.Error() }

func (e flagParseError) Unwrap() error { return e.err }

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return flagParseError{err: err}
	}
	return nil
}

func usageError(fs *flag.FlagSet, format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	fmt.Fprintf(fs.Output(), "%s: %v\n", fs.Name(), err)
	fs.Usage()
	return flagParseError{err: err}
}

// runCommand plays one battle headless and writes its result.
func runCommand(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("run", stderr)
	path := fs.String("scenario", "", "scenario YAML file (default: built-in skirmish)")
	seed := fs.Int64("seed", -1, "override the scenario seed")
	out := fs.String("out", "-", "result JSON file, - for stdout")
	replayDir := fs.String("replay", "", "record a replay bundle under this directory")
	frameEvery := fs.Int("frame-every", config.DefaultReplayFrameEvery, "ticks between recorded state frames")
	level := fs.String("log-level", "warn", "log level")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	logger, err := headlessLogger(stderr, *level)
	if err != nil {
		return err
	}
	doc, err := loadScenario(*path, *seed)
	if err != nil {
		return err
	}

	s, err := newSession(doc, sessionOptions{replayDir: *replayDir, frameEvery: *frameEvery, logger: logger})
	if err != nil {
		return err
	}
	s.runToEnd()
	result, err := s.finish()
	if err != nil {
		return err
	}
	if s.recorder != nil {
		logger.Info("replay written", logging.String("path", s.recorder.Directory()))
	}
	return writeOutput(stdout, *out, result)
}

// batchSummary aggregates many seeded runs of one scenario.
type batchSummary struct {
	Scenario       string                 `json:"scenario"`
	Runs           int                    `json:"runs"`
	FirstSeed      uint32                 `json:"first_seed"`
	Outcomes       map[battle.Outcome]int `json:"outcomes"`
	WinRate        float64                `json:"win_rate"`
	AvgElapsed     float64                `json:"avg_elapsed_seconds"`
	PlayerByBuild  map[string]buildTotals `json:"player_by_build"`
	EnemyByBuild   map[string]buildTotals `json:"enemy_by_build"`
	PartnerByBuild map[string]buildTotals `json:"partner_by_build,omitempty"`
}

type buildTotals struct {
	Damage   float64 `json:"damage"`
	Kills    int     `json:"kills"`
	Deaths   int     `json:"deaths"`
	Produced int     `json:"produced"`
}

// batchCommand runs n seeds of one scenario across a worker pool.
func batchCommand(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("batch", stderr)
	path := fs.String("scenario", "", "scenario YAML file (default: built-in skirmish)")
	seed := fs.Int64("seed", -1, "first seed (default: the scenario seed)")
	runs := fs.Int("n", 100, "number of battles")
	workers := fs.Int("workers", runtime.NumCPU(), "concurrent battles")
	out := fs.String("out", "-", "summary JSON file, - for stdout")
	level := fs.String("log-level", "warn", "log level")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *runs <= 0 || *workers <= 0 {
		return usageError(fs, "-n and -workers must be positive")
	}
	logger, err := headlessLogger(stderr, *level)
	if err != nil {
		return err
	}
	base, err := loadScenario(*path, *seed)
	if err != nil {
		return err
	}

	//1.- Results land in their run's slot so the summary does not depend on scheduling.
	results := make([]*battle.Result, *runs)
	errs := make([]error, *runs)
	jobs := make(chan int, *runs)
	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				doc := *base
				doc.Seed = base.Seed + uint32(i)
				s, err := newSession(&doc, sessionOptions{logger: logger})
				if err != nil {
					errs[i] = err
					continue
				}
				s.runToEnd()
				results[i], errs[i] = s.finish()
			}
		}()
	}
	for i := 0; i < *runs; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return err
	}
	return writeOutput(stdout, *out, summarise(base, results))
}

func summarise(doc *scenario.Scenario, results []*battle.Result) batchSummary {
	summary := batchSummary{
		Scenario:      doc.Name,
		Runs:          len(results),
		FirstSeed:     doc.Seed,
		Outcomes:      map[battle.Outcome]int{},
		PlayerByBuild: map[string]buildTotals{},
		EnemyByBuild:  map[string]buildTotals{},
	}
	if doc.Partner != nil {
		summary.PartnerByBuild = map[string]buildTotals{}
	}
	for _, result := range results {
		summary.Outcomes[result.Outcome]++
		summary.AvgElapsed += result.ElapsedSeconds
		addTally(summary.PlayerByBuild, doc.Player.Roster, result.Player)
		addTally(summary.EnemyByBuild, doc.Enemy.Roster, result.Enemy)
		if doc.Partner != nil && result.Partner != nil {
			addTally(summary.PartnerByBuild, doc.Partner.Roster, *result.Partner)
		}
	}
	if n := len(results); n > 0 {
		summary.WinRate = float64(summary.Outcomes[battle.PlayerWin]) / float64(n)
		summary.AvgElapsed /= float64(n)
	}
	return summary
}

func addTally(into map[string]buildTotals, roster []scenario.Build, tally battle.Tally) {
	for i, build := range roster {
		if i >= len(tally) {
			break
		}
		totals := into[build.Name]
		totals.Damage += tally[i].Damage
		totals.Kills += tally[i].Kills
		totals.Deaths += tally[i].Deaths
		totals.Produced += tally[i].Produced
		into[build.Name] = totals
	}
}

// verifyCommand re-simulates replay bundles and reports whether each reproduces exactly.
func verifyCommand(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("verify", stderr)
	showFrame := fs.Bool("last-frame", false, "print the last recorded frame of each bundle")
	level := fs.String("log-level", "warn", "log level")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usageError(fs, "at least one bundle directory is required")
	}
	logger, err := headlessLogger(stderr, *level)
	if err != nil {
		return err
	}

	type outcome struct {
		Bundle string        `json:"bundle"`
		Report replay.Report `json:"report"`
		Error  string        `json:"error,omitempty"`
	}
	failed := 0
	for _, dir := range fs.Args() {
		entry := outcome{Bundle: dir}
		bundle, err := replay.ReadBundle(dir)
		if err == nil {
			entry.Report, err = replay.Verify(bundle, battle.WithLogger(logger))
		}
		if err != nil {
			entry.Error = err.Error()
			failed++
		}
		if err := writeOutput(stdout, "-", entry); err != nil {
			return err
		}
		if *showFrame && bundle != nil && len(bundle.Frames) > 0 {
			data, err := replay.FrameJSON(bundle.Frames[len(bundle.Frames)-1].State)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%s\n", data)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d bundles", errDiverged, failed, fs.NArg())
	}
	return nil
}

// replaysCommand lists the bundles recorded under a directory.
func replaysCommand(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("replays", stderr)
	dir := fs.String("dir", config.DefaultReplayDir, "replay root directory")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	entries, err := replay.List(*dir)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []replay.Entry{}
	}
	return writeOutput(stdout, "-", entries)
}

// schemaCommand prints the scenario JSON Schema.
func schemaCommand(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("schema", stderr)
	out := fs.String("out", "-", "schema file, - for stdout")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	data, err := scenario.Schema()
	if err != nil {
		return err
	}
	if *out == "-" {
		_, err = stdout.Write(data)
		return err
	}
	return os.WriteFile(*out, data, 0o644)
}

// tokenCommand mints a spectator token signed with ARENA_SPECTATE_SECRET.
func tokenCommand(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("token", stderr)
	subject := fs.String("subject", "", "viewer name embedded in the token")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.SpectateSecret == "" {
		return fmt.Errorf("token: ARENA_SPECTATE_SECRET is not set")
	}
	tokens, err := auth.NewTokens(cfg.SpectateSecret, 0)
	if err != nil {
		return err
	}
	token, err := tokens.Issue(*subject, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, token)
	return err
}
