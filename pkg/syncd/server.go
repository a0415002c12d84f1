package syncd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	stdsync "sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wildland/wildland-go/internal/logger"
)

// Server is the sync control daemon's HTTP server, served over a
// Unix-domain socket, built the same way as the mount daemon's control
// server (request-id/real-ip/logging/recoverer/timeout middleware,
// context-driven graceful shutdown).
type Server struct {
	httpServer   *http.Server
	listener     net.Listener
	socketPath   string
	daemon       *Daemon
	shutdownOnce stdsync.Once
	cancel       context.CancelFunc
}

// NewServer builds a Server that will listen on socketPath once Start
// is called.
func NewServer(socketPath string, d *Daemon) *Server {
	s := &Server{socketPath: socketPath, daemon: d}
	s.httpServer = &http.Server{
		Handler:      newRouter(d, s.triggerShutdown),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start binds socketPath and blocks, serving control requests until ctx
// is cancelled or a "shutdown" control command fires.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("removing stale sync control socket: %w", err)
	}
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on sync control socket %s: %w", s.socketPath, err)
	}
	s.listener = ln

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sync control server listening", "socket", s.socketPath)
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			select {
			case errCh <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("sync control server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("sync control server failed: %w", err)
	}
}

// triggerShutdown implements the "shutdown" control command: stop every
// job, then cancel Start's context so the server itself exits,
// mirroring control_shutdown's call into self.stop().
func (s *Server) triggerShutdown() {
	s.daemon.Shutdown()
	if s.cancel != nil {
		s.cancel()
	}
}

// Stop gracefully shuts the server down and removes the socket file.
// Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var stopErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("sync control server shutdown initiated")
		if err := s.httpServer.Shutdown(ctx); err != nil {
			stopErr = fmt.Errorf("sync control server shutdown: %w", err)
			logger.Error("sync control server shutdown error", "error", err)
			return
		}
		_ = os.RemoveAll(s.socketPath)
		logger.Info("sync control server stopped")
	})
	return stopErr
}

func newRouter(d *Daemon, shutdown func()) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	h := &handlers{daemon: d, shutdownFn: shutdown}

	r.Route("/control", func(r chi.Router) {
		r.Post("/start", h.start)
		r.Post("/stop", h.stop)
		r.Post("/stop-all", h.stopAll)
		r.Get("/status", h.status)
		r.Get("/job-status", h.jobStatus)
		r.Post("/shutdown", h.shutdown)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("sync control request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
		)
		next.ServeHTTP(w, r)
		logger.Info("sync control request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
