// Package eventbus embeds a NATS server in-process and exposes a
// ProgressPort that publishes scan events to it, so external tooling can
// subscribe without the scan core depending on any particular UI.
package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	nc "github.com/nats-io/nats.go"
)

// Config configures the embedded broker.
type Config struct {
	Port int // 0 picks an OS-assigned free port
}

// Server wraps an in-process NATS server used solely to fan out scan
// progress events; it is never a durable message store.
type Server struct {
	ns      *server.Server
	mu      sync.RWMutex
	running bool
}

// NewServer constructs a Server without starting it.
func NewServer(cfg Config) (*Server, error) {
	opts := &server.Options{
		Host:       "127.0.0.1",
		Port:       cfg.Port,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("creating embedded NATS server: %w", err)
	}
	return &Server{ns: ns}, nil
}

// Start runs the broker in the background and blocks until it is ready
// for connections or the given timeout elapses.
func (s *Server) Start(readyTimeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("event bus already running")
	}

	go s.ns.Start()
	if !s.ns.ReadyForConnections(readyTimeout) {
		return fmt.Errorf("embedded NATS server not ready for connections within %s", readyTimeout)
	}
	s.running = true
	return nil
}

// Shutdown gracefully stops the broker, used on engine cancellation or
// normal scan completion so no goroutine outlives the scan.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
	s.running = false
}

// URL returns the client connection URL. Only meaningful after Start has
// returned successfully, since Config.Port=0 defers the actual port
// assignment to the OS.
func (s *Server) URL() string {
	addr := s.ns.Addr()
	if addr == nil {
		return ""
	}
	return fmt.Sprintf("nats://%s", addr.String())
}

// Connect opens a nats.go connection to this embedded server.
func (s *Server) Connect() (*nc.Conn, error) {
	conn, err := nc.Connect(s.URL(), nc.MaxReconnects(-1), nc.ReconnectWait(time.Second))
	if err != nil {
		return nil, fmt.Errorf("connecting to embedded NATS server: %w", err)
	}
	return conn, nil
}
