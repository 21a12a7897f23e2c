package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mechlane/arena/internal/auth"
	"mechlane/arena/internal/battle"
	"mechlane/arena/internal/replay"
	"mechlane/arena/internal/scenario"
)

func runArena(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestUsageExitCodes(t *testing.T) {
	if code, _, stderr := runArena(t); code != 2 || !strings.Contains(stderr, "usage: arena") {
		t.Fatalf("expected usage with exit 2, got %d: %q", code, stderr)
	}
	if code, _, stderr := runArena(t, "fly"); code != 2 || !strings.Contains(stderr, `unknown command "fly"`) {
		t.Fatalf("expected unknown command with exit 2, got %d: %q", code, stderr)
	}
	if code, stdout, _ := runArena(t, "help"); code != 0 || !strings.Contains(stdout, "verify") {
		t.Fatalf("expected help on stdout, got %d: %q", code, stdout)
	}
	if code, _, _ := runArena(t, "run", "-bogus"); code != 2 {
		t.Fatalf("expected exit 2 for an unknown flag, got %d", code)
	}
	if code, _, _ := runArena(t, "verify"); code != 2 {
		t.Fatalf("expected exit 2 without bundle arguments, got %d", code)
	}
}

func TestRunCommandPrintsResult(t *testing.T) {
	code, stdout, stderr := runArena(t, "run", "-seed", "7")
	if code != 0 {
		t.Fatalf("run failed with %d: %s", code, stderr)
	}
	var result battle.Result
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("decode result: %v\n%s", err, stdout)
	}
	if result.BattleID == "" || result.Ticks <= 0 || result.Outcome == "" {
		t.Fatalf("incomplete result: %+v", result)
	}
}

func TestBatchSummaryIsDeterministic(t *testing.T) {
	args := []string{"batch", "-n", "3", "-workers", "2", "-seed", "11"}
	code, first, stderr := runArena(t, args...)
	if code != 0 {
		t.Fatalf("batch failed with %d: %s", code, stderr)
	}
	//1.- Scheduling differs between runs but the summary must not.
	args[4] = "3"
	if _, second, _ := runArena(t, args...); second != first {
		t.Fatalf("batch summary changed with worker count:\n%s\n%s", first, second)
	}

	var summary batchSummary
	if err := json.Unmarshal([]byte(first), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	total := 0
	for _, n := range summary.Outcomes {
		total += n
	}
	if summary.Runs != 3 || total != 3 || summary.FirstSeed != 11 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if _, ok := summary.PlayerByBuild["lancer"]; !ok {
		t.Fatalf("expected per-build totals keyed by roster name, got %+v", summary.PlayerByBuild)
	}
}

func TestRecordedRunVerifies(t *testing.T) {
	dir := t.TempDir()
	if code, _, stderr := runArena(t, "run", "-replay", dir, "-frame-every", "60", "-out", filepath.Join(dir, "result.json")); code != 0 {
		t.Fatalf("run failed: %s", stderr)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read replay dir: %v", err)
	}
	var bundle string
	for _, entry := range entries {
		if entry.IsDir() {
			bundle = filepath.Join(dir, entry.Name())
		}
	}
	if bundle == "" {
		t.Fatalf("no bundle written under %s", dir)
	}

	code, listing, stderr := runArena(t, "replays", "-dir", dir)
	if code != 0 || !strings.Contains(listing, `"complete": true`) {
		t.Fatalf("replays listing failed with %d: %s%s", code, listing, stderr)
	}

	code, stdout, stderr := runArena(t, "verify", bundle)
	if code != 0 {
		t.Fatalf("verify failed with %d: %s%s", code, stdout, stderr)
	}
	var entry struct {
		Report replay.Report `json:"report"`
		Error  string        `json:"error"`
	}
	if err := json.Unmarshal([]byte(stdout), &entry); err != nil {
		t.Fatalf("decode verify output: %v", err)
	}
	if !entry.Report.Complete || entry.Error != "" || entry.Report.FramesChecked == 0 {
		t.Fatalf("unexpected verify report: %+v", entry)
	}

	//2.- A corrupted header must fail verification with exit 1.
	header, err := replay.ReadHeader(filepath.Join(bundle, "header.json"))
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	header.Scenario.Seed++
	if err := replay.WriteHeader(filepath.Join(bundle, "header.json"), header); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if code, _, _ := runArena(t, "verify", bundle); code != 1 {
		t.Fatalf("expected exit 1 for a diverged bundle, got %d", code)
	}
}

func TestSessionRecordsScriptedCasts(t *testing.T) {
	doc := scenario.Default()
	s, err := newSession(doc, sessionOptions{replayDir: t.TempDir(), frameEvery: 300})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	s.runToEnd()
	result, err := s.finish()
	if err != nil || result == nil {
		t.Fatalf("finish: %v %v", result, err)
	}

	bundle, err := replay.ReadBundle(s.recorder.Directory())
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	commands, err := bundle.Commands()
	if err != nil {
		t.Fatalf("decode commands: %v", err)
	}
	expected := 0
	for _, cast := range doc.Script {
		if cast.Tick < result.Ticks {
			expected++
		}
	}
	if len(commands) != expected {
		t.Fatalf("expected %d scripted commands, got %d", expected, len(commands))
	}
}

func TestSchemaCommandPrintsJSON(t *testing.T) {
	code, stdout, stderr := runArena(t, "schema")
	if code != 0 {
		t.Fatalf("schema failed: %s", stderr)
	}
	var schema map[string]any
	if err := json.Unmarshal([]byte(stdout), &schema); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if !strings.Contains(stdout, "ticks_per_second") {
		t.Fatalf("schema does not describe scenario fields")
	}
}

func TestTokenCommandMintsVerifiableToken(t *testing.T) {
	t.Setenv("ARENA_SPECTATE_SECRET", "")
	if code, _, stderr := runArena(t, "token"); code != 1 || !strings.Contains(stderr, "ARENA_SPECTATE_SECRET") {
		t.Fatalf("expected failure without a secret, got %d: %q", code, stderr)
	}

	t.Setenv("ARENA_SPECTATE_SECRET", "viewers")
	code, stdout, stderr := runArena(t, "token", "-subject", "caster")
	if code != 0 {
		t.Fatalf("token failed: %s", stderr)
	}
	tokens, err := auth.NewTokens("viewers", 0)
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	claims, err := tokens.Verify(strings.TrimSpace(stdout))
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if claims.Subject != "caster" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
}
