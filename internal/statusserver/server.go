// Package statusserver implements an optional localhost status/progress
// server: /healthz, /stats, and a websocket progress feed.
package statusserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/vscan/vscan/internal/cache"
	"github.com/vscan/vscan/internal/progress"
)

// Server is a single-instance-guarded HTTP+WebSocket status surface for
// one scan. It is strictly observability: nothing it exposes is
// load-bearing for the scan's correctness.
type Server struct {
	addr     string
	store    *cache.Store
	router   *mux.Router
	hub      *hub
	httpSrv  *http.Server
	listener net.Listener

	mu      sync.Mutex
	started bool
}

// New builds a Server bound to addr (e.g. "127.0.0.1:8787"). store may be
// nil if cache stats should not be exposed.
func New(addr string, store *cache.Store) *Server {
	s := &Server{addr: addr, store: store, hub: newHub()}
	s.router = mux.NewRouter()
	s.router.Use(securityHeadersMiddleware)
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	s.router.HandleFunc("/progress", s.hub.handleWebsocket)
	return s
}

// Start binds the listener and begins serving in the background. It
// refuses to double-bind the same Server instance; binding conflicts with
// another process surface as a normal "address already in use" error from
// net.Listen.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("status server already started on %s", s.addr)
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("binding status server to %s: %w", s.addr, err)
	}
	s.listener = ln
	s.httpSrv = &http.Server{Handler: s.router}

	go s.hub.run()
	go s.httpSrv.Serve(ln)

	s.started = true
	return nil
}

// Addr returns the bound address, valid once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the HTTP server, used on engine cancellation
// or normal scan completion. The websocket hub goroutine started by Start
// is not stopped.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.store == nil {
		json.NewEncoder(w).Encode(map[string]string{"error": "cache disabled"})
		return
	}
	st, err := s.store.Stats(time.Now(), 7*24*time.Hour)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(st)
}

// Port adapts the Server into a ProgressPort, broadcasting every event to
// connected websocket clients as JSON.
func (s *Server) Port() progress.Port {
	return hubPort{hub: s.hub}
}

type hubPort struct {
	hub *hub
}

func (p hubPort) ScanStarted(e progress.ScanStartedEvent)           { p.hub.broadcast("scan_started", e) }
func (p hubPort) ExtensionStarted(e progress.ExtensionStartedEvent) { p.hub.broadcast("extension_started", e) }
func (p hubPort) CacheHit(e progress.CacheHitEvent)                 { p.hub.broadcast("cache_hit", e) }
func (p hubPort) FreshResult(e progress.FreshResultEvent)           { p.hub.broadcast("fresh_result", e) }
func (p hubPort) ExtensionFailed(e progress.ExtensionFailedEvent)   { p.hub.broadcast("extension_failed", e) }
func (p hubPort) Retry(e progress.RetryEvent)                       { p.hub.broadcast("retry", e) }
func (p hubPort) ScanCompleted(e progress.ScanCompletedEvent)       { p.hub.broadcast("scan_completed", e) }
