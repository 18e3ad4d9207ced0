// Package proxy implements the Listener / Connection Acceptor (spec.md
// §4.8): it binds the configured address and serves HTTP/1.1 requests to a
// forward.Pipeline.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/webjingzi/mirror/internal/forward"
	"github.com/webjingzi/mirror/internal/log"
)

// Server wraps a forward.Pipeline in an HTTP server bound to a configured
// address. Each accepted connection is handled independently and
// concurrently by net/http's own per-connection goroutine dispatch.
type Server struct {
	pipeline *forward.Pipeline
	server   *http.Server
	listener net.Listener
	addr     string
	bindAddr string
	port     int
}

// NewServer creates a new Listener around pipeline. bindAddr defaults to
// "0.0.0.0" (this proxy serves a public mirror, not a local-only loopback
// tool).
func NewServer(pipeline *forward.Pipeline) *Server {
	return &Server{
		pipeline: pipeline,
		bindAddr: "0.0.0.0",
	}
}

// SetListenAddress parses a "host:port" string (as read from config's
// listen_address) and configures the bind address and port. Must be called
// before Start().
func (s *Server) SetListenAddress(listenAddress string) error {
	host, portStr, err := net.SplitHostPort(listenAddress)
	if err != nil {
		return fmt.Errorf("invalid listen_address %q: %w", listenAddress, err)
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return fmt.Errorf("invalid port in listen_address %q: %w", listenAddress, err)
	}
	if host == "" {
		host = "0.0.0.0"
	}
	s.bindAddr = host
	s.port = port
	return nil
}

// Start binds the configured address and begins serving in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.bindAddr, s.port))
	if err != nil {
		return fmt.Errorf("creating listener: %w", err)
	}

	s.listener = listener
	s.addr = listener.Addr().String()

	s.server = &http.Server{
		Handler:           s.pipeline,
		ReadHeaderTimeout: 60 * time.Second, // blunts Slowloris-style connections
		ErrorLog:          log.StdLogger(slog.LevelError),
	}

	go func() {
		// Serve blocks until Shutdown is called; anything else it returns
		// means the accept loop died and the listener is no longer serving.
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("proxy: listener stopped unexpectedly", "error", err, "addr", s.addr)
		}
	}()
	return nil
}

// Addr returns the server's bound address (host:port).
func (s *Server) Addr() string {
	return s.addr
}

// Port returns just the port number the server is listening on.
func (s *Server) Port() string {
	_, port, _ := net.SplitHostPort(s.addr)
	return port
}

// Stop gracefully shuts the server down, waiting for in-flight requests to
// complete or ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Pipeline returns the underlying forward.Pipeline.
func (s *Server) Pipeline() *forward.Pipeline {
	return s.pipeline
}
