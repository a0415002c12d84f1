package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wildland/wildland-go/internal/logger"
)

// Server is the admin HTTP server exposing /metrics and /healthz on a
// loopback address, built the same way as pkg/daemon's control server
// (context-driven graceful shutdown) but over TCP rather than a Unix
// socket, since it's meant to be scraped by a local Prometheus agent
// rather than dialed by this codebase's own CLI.
type Server struct {
	httpServer   *http.Server
	addr         string
	shutdownOnce sync.Once
}

// NewServer builds an admin Server listening on addr (e.g.
// "127.0.0.1:9090"), serving reg's metrics.
func NewServer(addr string) *Server {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if reg := GetRegistry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	return &Server{
		addr: addr,
		httpServer: &http.Server{
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Start binds addr and blocks, serving admin requests until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on metrics admin address %s: %w", s.addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics admin server listening", "addr", s.addr)
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			select {
			case errCh <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("metrics admin server failed: %w", err)
	}
}

// Stop gracefully shuts the server down. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var stopErr error
	s.shutdownOnce.Do(func() {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			stopErr = fmt.Errorf("metrics admin server shutdown: %w", err)
			logger.Error("metrics admin server shutdown error", "error", err)
			return
		}
		logger.Info("metrics admin server stopped")
	})
	return stopErr
}
