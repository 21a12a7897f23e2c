package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"mechlane/arena/internal/battle"
	"mechlane/arena/internal/logging"
	"mechlane/arena/internal/replay"
	"mechlane/arena/internal/simulation"
	"mechlane/arena/internal/spectate"
)

// StatusProvider exposes service state required for readiness checks.
type StatusProvider interface {
	StartupError() error
	Uptime() time.Duration
	BattleRunning() bool
}

// Metrics is a point-in-time copy of the service counters.
type Metrics struct {
	Spectate        spectate.Stats
	Ticks           simulation.TickStats
	DroppedSteps    int64
	BattlesFinished map[battle.Outcome]int64
	Replay          replay.Stats
	Storage         replay.StorageStats
}

// MetricsFunc returns the current counters.
type MetricsFunc func() Metrics

// StateFunc returns the running battle's identifier and snapshot. ok is false before the first
// battle starts.
type StateFunc func() (battleID string, snapshot any, ok bool)

// ReplayDumper flushes the running battle's replay and returns its location.
type ReplayDumper interface {
	DumpReplay(ctx context.Context) (string, error)
}

// ReplayDumperFunc adapts a function into a ReplayDumper.
type ReplayDumperFunc func(ctx context.Context) (string, error)

// DumpReplay implements ReplayDumper.
func (f ReplayDumperFunc) DumpReplay(ctx context.Context) (string, error) { return f(ctx) }

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Allow() bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger      *logging.Logger
	Status      StatusProvider
	Metrics     MetricsFunc
	State       StateFunc
	Replay      ReplayDumper
	AdminToken  string
	RateLimiter RateLimiter
	TimeSource  func() time.Time
}

// HandlerSet bundles the arena operational handlers.
type HandlerSet struct {
	logger      *logging.Logger
	status      StatusProvider
	metrics     MetricsFunc
	state       StateFunc
	replay      ReplayDumper
	adminToken  string
	rateLimiter RateLimiter
	now         func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	return &HandlerSet{
		logger:      logger,
		status:      opts.Status,
		metrics:     opts.Metrics,
		state:       opts.State,
		replay:      opts.Replay,
		adminToken:  strings.TrimSpace(opts.AdminToken),
		rateLimiter: opts.RateLimiter,
		now:         now,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/replay/dump", h.ReplayDumpHandler())
	mux.HandleFunc("/battle/state", h.StateHandler())
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports whether the service started cleanly and whether a battle is running.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		BattleRunning bool    `json:"battle_running"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok"}
		if h.status != nil {
			resp.UptimeSeconds = h.status.Uptime().Seconds()
			resp.BattleRunning = h.status.BattleRunning()
			if err := h.status.StartupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		writeJSON(w, status, resp)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m Metrics
		if h.metrics != nil {
			m = h.metrics()
		}
		uptime := 0.0
		if h.status != nil {
			uptime = h.status.Uptime().Seconds()
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		gauge(w, "arena_uptime_seconds", "Service uptime in seconds.", fmt.Sprintf("%.0f", uptime))
		gauge(w, "arena_viewers", "Connected spectator WebSockets.", strconv.Itoa(m.Spectate.Viewers))
		counter(w, "arena_broadcasts_total", "Messages published to spectators.", m.Spectate.Published)
		counter(w, "arena_viewers_dropped_total", "Spectators disconnected for falling behind.", m.Spectate.Dropped)
		counter(w, "arena_viewers_rejected_total", "Spectator connections refused.", m.Spectate.Rejected)

		counter(w, "arena_ticks_total", "Battle steps executed.", m.Ticks.Ticks)
		counter(w, "arena_tick_overruns_total", "Battle steps slower than the step budget.", m.Ticks.Overruns)
		counter(w, "arena_steps_dropped_total", "Steps discarded by the catch-up bound.", m.DroppedSteps)
		fmt.Fprintf(w, "# HELP arena_tick_duration_seconds Battle step duration.\n")
		fmt.Fprintf(w, "# TYPE arena_tick_duration_seconds gauge\n")
		fmt.Fprintf(w, "arena_tick_duration_seconds{stat=\"avg\"} %.6f\n", m.Ticks.Average.Seconds())
		fmt.Fprintf(w, "arena_tick_duration_seconds{stat=\"max\"} %.6f\n", m.Ticks.Max.Seconds())
		fmt.Fprintf(w, "arena_tick_duration_seconds{stat=\"last\"} %.6f\n", m.Ticks.Last.Seconds())

		fmt.Fprintf(w, "# HELP arena_battles_finished_total Battles settled per outcome.\n")
		fmt.Fprintf(w, "# TYPE arena_battles_finished_total counter\n")
		outcomes := make([]string, 0, len(m.BattlesFinished))
		for outcome := range m.BattlesFinished {
			outcomes = append(outcomes, string(outcome))
		}
		sort.Strings(outcomes)
		for _, outcome := range outcomes {
			fmt.Fprintf(w, "arena_battles_finished_total{outcome=%q} %d\n", outcome, m.BattlesFinished[battle.Outcome(outcome)])
		}

		counter(w, "arena_replay_events_total", "Battle events recorded in the current replay.", m.Replay.Events)
		counter(w, "arena_replay_frames_total", "State frames recorded in the current replay.", m.Replay.Frames)
		counter(w, "arena_replay_dumps_total", "Replay dumps completed successfully.", m.Replay.Dumps)
		gauge(w, "arena_replay_bundles", "Replay bundles retained on disk.", strconv.Itoa(m.Storage.Bundles))
		gauge(w, "arena_replay_bytes", "Disk footprint of retained replays.", strconv.FormatInt(m.Storage.Bytes, 10))
	}
}

// StateHandler returns the running battle's latest snapshot.
func (h *HandlerSet) StateHandler() http.HandlerFunc {
	type response struct {
		BattleID string `json:"battle_id"`
		State    any    `json:"state"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.state == nil {
			http.Error(w, "no battle", http.StatusNotFound)
			return
		}
		id, snapshot, ok := h.state()
		if !ok {
			http.Error(w, "no battle", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, response{BattleID: id, State: snapshot})
	}
}

// ReplayDumpHandler authorises and triggers a replay flush.
func (h *HandlerSet) ReplayDumpHandler() http.HandlerFunc {
	type response struct {
		Status   string `json:"status"`
		Location string `json:"location,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "replay_dump"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.adminToken == "" {
			reqLogger.Warn("replay dump denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("replay dump denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			if hinted, ok := h.rateLimiter.(interface{ RetryAfter() time.Duration }); ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(hinted.RetryAfter().Round(time.Second).Seconds())))
			}
			reqLogger.Warn("replay dump denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if h.replay == nil {
			reqLogger.Warn("replay dump denied: no dumper configured")
			http.Error(w, "replay dumping is unavailable", http.StatusServiceUnavailable)
			return
		}
		location, err := h.replay.DumpReplay(r.Context())
		if err != nil {
			reqLogger.Error("replay dump trigger failed", logging.Error(err))
			http.Error(w, "failed to trigger replay dump", http.StatusInternalServerError)
			return
		}
		reqLogger.Info("replay dump triggered", logging.String("location", location))
		writeJSON(w, http.StatusAccepted, response{Status: "accepted", Location: location})
	}
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func gauge(w http.ResponseWriter, name, help, value string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %s\n", name, help, name, name, value)
}

func counter(w http.ResponseWriter, name, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, value)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
