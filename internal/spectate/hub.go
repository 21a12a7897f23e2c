// Package spectate streams live battle snapshots to read-only WebSocket viewers.
package spectate

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mechlane/arena/internal/auth"
	"mechlane/arena/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 64
	// readLimit caps viewer frames; viewers only send control traffic.
	readLimit = 512
)

// ErrHubClosed is returned when publishing after Close.
var ErrHubClosed = errors.New("spectate: hub closed")

// Message is the envelope broadcast to viewers.
type Message struct {
	Type     string          `json:"type"`
	BattleID string          `json:"battle_id,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// Authenticator admits or refuses a viewer before the upgrade, returning its identifier.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

type allowAll struct{}

func (allowAll) Authenticate(r *http.Request) (string, error) { return r.RemoteAddr, nil }

// TokenAuthenticator admits viewers presenting a valid spectator token in the auth_token query
// parameter or the X-Auth-Token header.
type TokenAuthenticator struct {
	tokens *auth.Tokens
}

// NewTokenAuthenticator verifies tokens signed with secret.
func NewTokenAuthenticator(secret string) (*TokenAuthenticator, error) {
	tokens, err := auth.NewTokens(secret, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &TokenAuthenticator{tokens: tokens}, nil
}

// Authenticate validates the incoming token and returns the viewer subject.
func (a *TokenAuthenticator) Authenticate(r *http.Request) (string, error) {
	token := strings.TrimSpace(r.URL.Query().Get("auth_token"))
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Auth-Token"))
	}
	if token == "" {
		return "", errors.New("missing auth token")
	}
	claims, err := a.tokens.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Stats summarises hub activity for the metrics endpoint.
type Stats struct {
	Viewers   int
	Published int64
	Dropped   int64
	Rejected  int64
}

// Option configures a Hub.
type Option func(*Hub)

// WithAuthenticator gates upgrades behind a.
func WithAuthenticator(a Authenticator) Option {
	return func(h *Hub) {
		if a != nil {
			h.auth = a
		}
	}
}

// WithAllowedOrigins restricts browser origins. An empty list accepts every origin.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) { h.origins = origins }
}

// WithMaxViewers bounds concurrent viewers. Zero disables the limit.
func WithMaxViewers(limit int) Option {
	return func(h *Hub) { h.maxViewers = limit }
}

// WithPingInterval sets the keepalive cadence; a viewer silent for two intervals is dropped.
func WithPingInterval(interval time.Duration) Option {
	return func(h *Hub) {
		if interval > 0 {
			h.ping = interval
		}
	}
}

// WithLogger routes hub logs to logger.
func WithLogger(logger *logging.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.log = logger
		}
	}
}

type viewer struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

// Hub fans snapshots out to connected viewers. Viewers that fall behind are disconnected rather
// than slowing the battle down.
type Hub struct {
	mu         sync.Mutex
	viewers    map[*viewer]struct{}
	upgrader   websocket.Upgrader
	auth       Authenticator
	origins    []string
	maxViewers int
	ping       time.Duration
	log        *logging.Logger
	latest     []byte
	published  int64
	dropped    int64
	rejected   int64
	closed     bool
}

// NewHub constructs a hub ready to be mounted as an http.Handler.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		viewers: make(map[*viewer]struct{}),
		auth:    allowAll{},
		ping:    30 * time.Second,
		log:     logging.L(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.origins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

// Publish broadcasts payload to every viewer. State messages are also cached so new viewers
// receive the latest snapshot on connect.
func (h *Hub) Publish(kind, battleID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(Message{Type: kind, BattleID: battleID, Data: data})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	if kind == "state" {
		h.latest = msg
	}
	h.published++
	for v := range h.viewers {
		select {
		case v.send <- msg:
		default:
			//1.- A full buffer means the viewer is too slow; cut it loose.
			h.removeLocked(v)
			h.dropped++
			h.log.Warn("spectator dropped", logging.String("viewer", v.id))
		}
	}
	return nil
}

// ServeHTTP upgrades the request into a viewer connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := h.auth.Authenticate(r)
	if err != nil {
		h.reject()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	h.mu.Lock()
	full := h.maxViewers > 0 && len(h.viewers) >= h.maxViewers
	closed := h.closed
	h.mu.Unlock()
	if closed || full {
		h.reject()
		http.Error(w, "spectator capacity reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.reject()
		h.log.Warn("spectator upgrade failed", logging.Error(err))
		return
	}
	v := &viewer{conn: conn, send: make(chan []byte, sendBuffer), id: id}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.viewers[v] = struct{}{}
	if h.latest != nil {
		v.send <- h.latest
	}
	count := len(h.viewers)
	h.mu.Unlock()
	h.log.Info("spectator connected", logging.String("viewer", id), logging.Int("viewers", count))

	go h.writePump(v)
	go h.readPump(v)
}

// readPump discards viewer frames; it exists to process control traffic and notice departures.
func (h *Hub) readPump(v *viewer) {
	defer h.remove(v)
	wait := 2 * h.ping
	v.conn.SetReadLimit(readLimit)
	_ = v.conn.SetReadDeadline(time.Now().Add(wait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(v *viewer) {
	ticker := time.NewTicker(h.ping)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-v.send:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = v.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(v *viewer) {
	h.mu.Lock()
	removed := h.removeLocked(v)
	h.mu.Unlock()
	if removed {
		h.log.Info("spectator disconnected", logging.String("viewer", v.id))
	}
}

// removeLocked closes the send channel exactly once; callers hold the mutex.
func (h *Hub) removeLocked(v *viewer) bool {
	if _, ok := h.viewers[v]; !ok {
		return false
	}
	delete(h.viewers, v)
	close(v.send)
	return true
}

func (h *Hub) reject() {
	h.mu.Lock()
	h.rejected++
	h.mu.Unlock()
}

// Viewers reports the number of connected viewers.
func (h *Hub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// Stats returns a copy of the hub counters.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{Viewers: len(h.viewers), Published: h.published, Dropped: h.dropped, Rejected: h.rejected}
}

// Close disconnects every viewer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for v := range h.viewers {
		h.removeLocked(v)
	}
}
