package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"mechlane/arena/internal/battle"
	"mechlane/arena/internal/config"
	httpapi "mechlane/arena/internal/http"
	"mechlane/arena/internal/logging"
	"mechlane/arena/internal/replay"
	"mechlane/arena/internal/scenario"
	"mechlane/arena/internal/simulation"
	"mechlane/arena/internal/spectate"
)

// battleHealthService is reported SERVING only while a battle is in progress.
const battleHealthService = "arena.Battle"

// arenaService plays battles back to back in real time and exposes them to spectators.
type arenaService struct {
	cfg        *config.Config
	log        *logging.Logger
	doc        *scenario.Scenario
	hub        *spectate.Hub
	monitor    *simulation.TickMonitor
	health     *health.Server
	cleaner    *replay.Cleaner
	started    time.Time
	startupErr error

	mu       sync.Mutex
	current  *session
	loop     *simulation.Loop
	dropped  int64
	finished map[battle.Outcome]int64
}

func newArenaService(cfg *config.Config, doc *scenario.Scenario, startupErr error, hub *spectate.Hub, logger *logging.Logger) *arenaService {
	s := &arenaService{
		cfg:        cfg,
		log:        logger,
		doc:        doc,
		hub:        hub,
		health:     health.NewServer(),
		started:    time.Now(),
		startupErr: startupErr,
		finished:   make(map[battle.Outcome]int64),
	}
	if doc != nil {
		s.monitor = simulation.NewTickMonitor(time.Second / time.Duration(doc.TicksPerSecond))
	}
	if cfg.ReplayDir != "" {
		s.cleaner = replay.NewCleaner(cfg.ReplayDir, replay.RetentionPolicy{MaxBundles: cfg.ReplayMaxBundles, MaxAge: cfg.ReplayMaxAge}, logger)
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(battleHealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// StartupError implements httpapi.StatusProvider.
func (s *arenaService) StartupError() error { return s.startupErr }

// Uptime implements httpapi.StatusProvider.
func (s *arenaService) Uptime() time.Duration { return time.Since(s.started) }

// BattleRunning implements httpapi.StatusProvider.
func (s *arenaService) BattleRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && !s.current.battle.IsFinished()
}

// State returns the running battle's snapshot.
func (s *arenaService) State() (string, any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return "", nil, false
	}
	return s.current.id, s.current.battle.Snapshot(), true
}

// DumpReplay flushes the running battle's replay bundle.
func (s *arenaService) DumpReplay(ctx context.Context) (string, error) {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current == nil || current.recorder == nil {
		return "", errors.New("no battle is being recorded")
	}
	return current.recorder.Dump()
}

// Metrics gathers the counters served on /metrics.
func (s *arenaService) Metrics() httpapi.Metrics {
	s.mu.Lock()
	finished := make(map[battle.Outcome]int64, len(s.finished))
	for outcome, n := range s.finished {
		finished[outcome] = n
	}
	dropped := s.dropped + s.loop.Dropped()
	var recorder replay.Stats
	if s.current != nil {
		recorder = s.current.recorder.Snapshot()
	}
	s.mu.Unlock()
	return httpapi.Metrics{
		Spectate:        s.hub.Stats(),
		Ticks:           s.monitor.Snapshot(),
		DroppedSteps:    dropped,
		BattlesFinished: finished,
		Replay:          recorder,
		Storage:         s.cleaner.Stats(),
	}
}

// runBattles plays battles until ctx is cancelled. Each battle uses the next seed.
func (s *arenaService) runBattles(ctx context.Context) {
	if s.doc == nil {
		return
	}
	seed := s.doc.Seed
	for ctx.Err() == nil {
		doc := *s.doc
		doc.Seed = seed
		seed++
		if err := s.playBattle(ctx, &doc); err != nil {
			s.log.Error("battle failed", logging.Error(err), logging.Uint32("seed", doc.Seed))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.RestartDelay):
		}
	}
}

func (s *arenaService) playBattle(ctx context.Context, doc *scenario.Scenario) error {
	sess, err := newSession(doc, sessionOptions{
		replayDir:  s.cfg.ReplayDir,
		frameEvery: s.cfg.ReplayFrameEvery,
		logger:     s.log,
		observers:  []func(battle.Event){s.publishEvent},
	})
	if err != nil {
		return err
	}
	every := int(math.Round(s.cfg.SnapshotInterval.Seconds() * float64(doc.TicksPerSecond)))
	if every < 1 {
		every = 1
	}

	//1.- Publish the battle before the first step so late viewers have a state to start from.
	s.monitor.Reset()
	s.mu.Lock()
	s.current = sess
	s.publishStateLocked()
	s.mu.Unlock()
	s.health.SetServingStatus(battleHealthService, healthpb.HealthCheckResponse_SERVING)
	log := s.log.With(logging.String("battle_id", sess.id), logging.Uint32("seed", doc.Seed))
	log.Info("battle started", logging.String("scenario", doc.Name), logging.Bool("coop", doc.IsCoop()))

	//2.- Step in real time, streaming snapshots on the configured cadence.
	loop := simulation.NewLoop(float64(doc.TicksPerSecond), func(time.Duration) bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		more := sess.step()
		if !more || sess.battle.TickCount()%every == 0 {
			s.publishStateLocked()
		}
		return more
	}, simulation.WithMonitor(s.monitor), simulation.WithSpeed(s.cfg.Speed))
	s.mu.Lock()
	s.loop = loop
	s.mu.Unlock()
	loop.Start(ctx)
	<-loop.Done()

	//3.- Settle the session; a cancelled battle closes its replay without a result.
	s.health.SetServingStatus(battleHealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	s.mu.Lock()
	s.dropped += loop.Dropped()
	s.loop = nil
	s.mu.Unlock()
	result, err := sess.finish()
	if err != nil {
		return fmt.Errorf("close replay: %w", err)
	}
	if result == nil {
		log.Info("battle abandoned", logging.Int("ticks", sess.battle.TickCount()))
		return nil
	}
	s.mu.Lock()
	s.finished[result.Outcome]++
	s.mu.Unlock()
	if err := s.hub.Publish("result", sess.id, result); err != nil {
		log.Warn("publish result failed", logging.Error(err))
	}
	log.Info("battle finished",
		logging.String("outcome", string(result.Outcome)),
		logging.Float64("elapsed_seconds", result.ElapsedSeconds),
	)
	return nil
}

func (s *arenaService) publishStateLocked() {
	if err := s.hub.Publish("state", s.current.id, s.current.battle.Snapshot()); err != nil && !errors.Is(err, spectate.ErrHubClosed) {
		s.log.Warn("publish state failed", logging.Error(err))
	}
}

// publishEvent forwards battle events to spectators. It runs inside the step, under s.mu.
func (s *arenaService) publishEvent(ev battle.Event) {
	if s.current == nil {
		return
	}
	if err := s.hub.Publish("event", s.current.id, ev); err != nil && !errors.Is(err, spectate.ErrHubClosed) {
		s.log.Warn("publish event failed", logging.Error(err))
	}
}

// serveCommand runs the arena service until SIGINT or SIGTERM.
func serveCommand(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("serve", stderr)
	path := fs.String("scenario", "", "scenario YAML file (default: ARENA_SCENARIO or the built-in skirmish)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *path != "" {
		cfg.ScenarioPath = *path
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, logger)
}

// serve wires the arena's network surfaces around the battle loop and blocks until ctx is
// cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	//1.- A broken scenario keeps the process up but not ready, so operators can inspect it.
	doc, startupErr := loadScenario(cfg.ScenarioPath, -1)
	if startupErr != nil {
		logger.Error("scenario rejected", logging.Error(startupErr), logging.String("path", cfg.ScenarioPath))
		doc = nil
	}
	if doc != nil && cfg.TickRate > 0 {
		doc.TicksPerSecond = cfg.TickRate
	}

	hubOpts := []spectate.Option{
		spectate.WithLogger(logger),
		spectate.WithAllowedOrigins(cfg.AllowedOrigins),
		spectate.WithMaxViewers(cfg.MaxViewers),
		spectate.WithPingInterval(cfg.PingInterval),
	}
	if cfg.SpectateSecret != "" {
		authenticator, err := spectate.NewTokenAuthenticator(cfg.SpectateSecret)
		if err != nil {
			return err
		}
		hubOpts = append(hubOpts, spectate.WithAuthenticator(authenticator))
	}
	hub := spectate.NewHub(hubOpts...)
	defer hub.Close()

	svc := newArenaService(cfg, doc, startupErr, hub, logger)

	//2.- HTTP surface: spectator socket plus operational handlers.
	mux := http.NewServeMux()
	mux.Handle("/spectate", hub)
	httpapi.NewHandlerSet(httpapi.Options{
		Logger:      logger,
		Status:      svc,
		Metrics:     svc.Metrics,
		State:       svc.State,
		Replay:      svc,
		AdminToken:  cfg.AdminToken,
		RateLimiter: httpapi.NewSlidingWindowLimiter(cfg.ReplayDumpWindow, cfg.ReplayDumpBurst, nil),
	}).Register(mux)
	httpServer := &http.Server{
		Addr:              cfg.Address,
		Handler:           logging.HTTPTraceMiddleware(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	//3.- gRPC surface: the standard health service, gated by the shared secret when set.
	grpcServer := grpc.NewServer(grpcServerOptions(cfg.GRPCSecret, logger)...)
	healthpb.RegisterHealthServer(grpcServer, svc.health)
	grpcListener, err := net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errs := make(chan error, 2)
	go func() {
		logger.Info("grpc listening", logging.String("address", grpcListener.Addr().String()))
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errs <- fmt.Errorf("grpc: %w", err)
		}
	}()
	go func() {
		logger.Info("arena listening",
			logging.String("url", listenerURL(cfg.Address, false)),
			logging.String("spectate", spectateURL(cfg.Address, false)),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http: %w", err)
		}
	}()

	//4.- Background work stops with ctx.
	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if svc.cleaner != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.cleaner.Run(runCtx, time.Minute)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.runBattles(runCtx)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errs:
		logger.Error("listener failed", logging.Error(serveErr))
	}

	cancel()
	wg.Wait()
	svc.health.Shutdown()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", logging.Error(err))
	}
	grpcServer.GracefulStop()
	return serveErr
}
