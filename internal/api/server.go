// Package api provides the read-only HTTP API for observing a run.
// GET endpoints report status, the price path and snapshots; the websocket
// stream pushes each snapshot as the driver produces it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/market-abm/internal/engine"
	"github.com/talgya/market-abm/internal/persistence"
	"github.com/talgya/market-abm/internal/world"
)

const (
	maxStreamConns = 8
	streamBuffer   = 64
	catchUp        = 50
	writeWait      = 5 * time.Second
)

// Message is one frame on the live stream.
type Message struct {
	Type     string          `json:"type"` // "snapshot" or "complete"
	Snapshot *world.Snapshot `json:"snapshot,omitempty"`
	Status   map[string]any  `json:"status,omitempty"`
}

// Server serves a run over HTTP. Publish and Complete are called from the
// driver goroutine; handlers read under the same lock.
type Server struct {
	Name   string
	RunID  string
	Cycles int
	DB     *persistence.DB // optional; enables the run archive endpoints

	mu        sync.RWMutex
	state     engine.State
	snapshots []world.Snapshot
	prices    []float64
	partial   bool
	runErr    string

	streamConns atomic.Int32
	feed        *hub[Message]
	limiter     *RateLimiter
	upgrader    websocket.Upgrader
	srv         *http.Server
	ln          net.Listener
}

// NewServer creates a server for one run.
func NewServer(name, runID string, cycles int) *Server {
	return &Server{
		Name:     name,
		RunID:    runID,
		Cycles:   cycles,
		state:    engine.StateRunning,
		feed:     newHub[Message](),
		limiter:  NewRateLimiter(600, time.Minute),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Publish records a snapshot and pushes it to stream subscribers.
func (s *Server) Publish(snap world.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
	if p, ok := snap.WorldState["price"]; ok {
		s.prices = append(s.prices, p)
	}
	s.feed.Broadcast(Message{Type: "snapshot", Snapshot: &snap})
}

// Complete marks the run finished and ends every stream after its final
// status frame.
func (s *Server) Complete(res *engine.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = engine.StateCompleted
	if err != nil {
		s.state = engine.StateFailed
		s.runErr = err.Error()
	}
	if res != nil {
		s.partial = res.Partial
	}
	s.feed.Close()
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/status", RateLimitMiddleware(s.limiter, s.handleStatus))
	mux.HandleFunc("GET /api/v1/prices", RateLimitMiddleware(s.limiter, s.handlePrices))
	mux.HandleFunc("GET /api/v1/snapshots", RateLimitMiddleware(s.limiter, s.handleSnapshots))
	mux.HandleFunc("GET /api/v1/stream", s.handleStream)

	// Archive endpoints.
	mux.HandleFunc("GET /api/v1/runs", RateLimitMiddleware(s.limiter, s.handleRuns))
	mux.HandleFunc("GET /api/v1/runs/{id}/series/{name}", RateLimitMiddleware(s.limiter, s.handleRunSeries))
	mux.HandleFunc("GET /api/v1/runs/{id}/snapshots", RateLimitMiddleware(s.limiter, s.handleRunSnapshots))

	return corsMiddleware(mux)
}

// Start begins serving on addr in a goroutine.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	slog.Info("HTTP API starting", "addr", ln.Addr().String())

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown stops the server, waiting for in-flight requests up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusLocked builds the status document. Callers hold s.mu.
func (s *Server) statusLocked() map[string]any {
	status := map[string]any{
		"name":        s.Name,
		"run_id":      s.RunID,
		"state":       s.state.String(),
		"cycle":       len(s.snapshots),
		"cycles":      s.Cycles,
		"subscribers": s.feed.Len(),
		"partial":     s.partial,
	}
	if n := len(s.prices); n > 0 {
		status["price"] = s.prices[n-1]
	}
	if n := len(s.snapshots); n > 0 {
		status["agents"] = len(s.snapshots[n-1].AgentStates)
	}
	if s.runErr != "" {
		status["error"] = s.runErr
	}
	return status
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	status := s.statusLocked()
	s.mu.RUnlock()
	writeJSON(w, status)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	prices := append([]float64{}, s.prices...)
	s.mu.RUnlock()
	writeJSON(w, map[string]any{
		"cycle":  len(prices),
		"prices": prices,
	})
}

// handleSnapshots returns snapshots with cycle >= from, at most limit.
func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	from := 0
	limit := 100

	if f := r.URL.Query().Get("from"); f != "" {
		v, err := strconv.Atoi(f)
		if err != nil || v < 0 {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		from = v
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	s.mu.RLock()
	result := make([]world.Snapshot, 0, limit)
	for _, snap := range s.snapshots {
		if snap.Cycle < from {
			continue
		}
		result = append(result, snap)
		if len(result) == limit {
			break
		}
	}
	s.mu.RUnlock()
	writeJSON(w, result)
}

// handleStream upgrades to a websocket, replays the most recent snapshots
// and then forwards each new one. The final frame carries the run status.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	current := s.streamConns.Add(1)
	defer s.streamConns.Add(-1)
	if current > maxStreamConns {
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Subscribe and copy the backlog under one lock so no snapshot is
	// missed or sent twice.
	s.mu.RLock()
	sub := s.feed.Subscribe(streamBuffer)
	start := max(0, len(s.snapshots)-catchUp)
	backlog := append([]world.Snapshot(nil), s.snapshots[start:]...)
	s.mu.RUnlock()
	defer s.feed.Unsubscribe(sub)

	slog.Debug("stream client connected", "remote", r.RemoteAddr, "backlog", len(backlog))

	// Drain client frames so close and ping control messages are processed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(m Message) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(m) == nil
	}

	for i := range backlog {
		if !send(Message{Type: "snapshot", Snapshot: &backlog[i]}) {
			return
		}
	}

	for {
		select {
		case m, ok := <-sub.ch:
			if !ok {
				s.mu.RLock()
				status := s.statusLocked()
				s.mu.RUnlock()
				send(Message{Type: "complete", Status: status})
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
				return
			}
			if !send(m) {
				return
			}
		case <-gone:
			slog.Debug("stream client disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	runs, err := s.DB.Runs(limit)
	if err != nil {
		slog.Error("runs query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.Run{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleRunSeries(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	values, err := s.DB.RunSeries(r.PathValue("id"), r.PathValue("name"))
	if err != nil {
		slog.Error("series query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if len(values) == 0 {
		http.Error(w, "series not found", http.StatusNotFound)
		return
	}
	writeJSON(w, values)
}

func (s *Server) handleRunSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	from := 0
	if f := r.URL.Query().Get("from"); f != "" {
		v, err := strconv.Atoi(f)
		if err != nil || v < 0 {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		from = v
	}

	snaps, err := s.DB.RunSnapshots(r.PathValue("id"), from)
	if err != nil {
		slog.Error("snapshots query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, snaps)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
