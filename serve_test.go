package main

import (
	"context"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"mechlane/arena/internal/config"
	"mechlane/arena/internal/logging"
	"mechlane/arena/internal/scenario"
	"mechlane/arena/internal/spectate"
)

func newTestService(t *testing.T) (*arenaService, *scenario.Scenario) {
	t.Helper()
	doc := scenario.Default()
	doc.TicksPerSecond = 10
	doc.TimeLimitSeconds = 2
	doc.Script = nil
	cfg := &config.Config{
		ReplayDir:        t.TempDir(),
		ReplayFrameEvery: 5,
		ReplayMaxBundles: 5,
		Speed:            8,
		SnapshotInterval: time.Second,
		RestartDelay:     time.Second,
	}
	hub := spectate.NewHub(spectate.WithLogger(logging.NewTestLogger()))
	t.Cleanup(hub.Close)
	return newArenaService(cfg, doc, nil, hub, logging.NewTestLogger()), doc
}

func battleHealth(t *testing.T, svc *arenaService) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := svc.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: battleHealthService})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	return resp.GetStatus()
}

func TestArenaServicePlaysBattleToCompletion(t *testing.T) {
	svc, doc := newTestService(t)
	if _, _, ok := svc.State(); ok {
		t.Fatalf("expected no state before the first battle")
	}
	if got := battleHealth(t, svc); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before a battle, got %v", got)
	}

	if err := svc.playBattle(context.Background(), doc); err != nil {
		t.Fatalf("play battle: %v", err)
	}

	//1.- The finished battle stays inspectable and is counted once.
	id, snapshot, ok := svc.State()
	if !ok || id == "" || snapshot == nil {
		t.Fatalf("expected the settled battle to remain visible, got %q %v", id, ok)
	}
	if svc.BattleRunning() {
		t.Fatalf("battle should no longer be running")
	}
	if got := battleHealth(t, svc); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after the battle, got %v", got)
	}
	metrics := svc.Metrics()
	total := int64(0)
	for _, n := range metrics.BattlesFinished {
		total += n
	}
	if total != 1 || metrics.Ticks.Ticks == 0 || metrics.Replay.Frames == 0 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}

func TestArenaServiceAbandonsCancelledBattle(t *testing.T) {
	svc, doc := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.playBattle(ctx, doc); err != nil {
		t.Fatalf("play battle: %v", err)
	}
	if len(svc.Metrics().BattlesFinished) != 0 {
		t.Fatalf("a cancelled battle must not be counted as finished")
	}
	if got := battleHealth(t, svc); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after cancellation, got %v", got)
	}
}

func TestArenaServiceReportsStartupError(t *testing.T) {
	hub := spectate.NewHub()
	defer hub.Close()
	svc := newArenaService(&config.Config{}, nil, scenario.ErrInvalidScenario, hub, logging.NewTestLogger())
	if svc.StartupError() == nil {
		t.Fatalf("expected the scenario error to surface")
	}
	//1.- Without a scenario the battle loop returns immediately.
	done := make(chan struct{})
	go func() {
		svc.runBattles(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("runBattles should not start without a scenario")
	}
	if m := svc.Metrics(); m.Ticks.Ticks != 0 {
		t.Fatalf("unexpected ticks without a battle: %+v", m.Ticks)
	}
}
