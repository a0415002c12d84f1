package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wildland/wildland-go/internal/logger"
	"github.com/wildland/wildland-go/pkg/metrics"
)

// Server is the control-plane HTTP server for a Daemon, served over a
// Unix-domain socket rather than TCP: the original wildland-fuse's
// line-delimited JSON socket protocol, re-expressed as a chi-routed
// REST API the way this codebase's own control-plane API server is
// built (request-id/real-ip/logging/recoverer/timeout middleware,
// context-driven graceful shutdown).
type Server struct {
	httpServer   *http.Server
	listener     net.Listener
	socketPath   string
	daemon       *Daemon
	shutdownOnce sync.Once
}

// NewServer builds a Server that will listen on socketPath once Start is
// called.
func NewServer(socketPath string, d *Daemon) *Server {
	return &Server{
		socketPath: socketPath,
		daemon:     d,
		httpServer: &http.Server{
			Handler:      newRouter(d),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Start binds socketPath and blocks, serving control requests until ctx
// is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("removing stale control socket: %w", err)
	}
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on control socket %s: %w", s.socketPath, err)
	}
	s.listener = ln

	errCh := make(chan error, 1)
	go func() {
		logger.Info("control server listening", "socket", s.socketPath)
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			select {
			case errCh <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("control server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("control server failed: %w", err)
	}
}

// Stop gracefully shuts the server down and removes the socket file.
// Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var stopErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("control server shutdown initiated")
		if err := s.httpServer.Shutdown(ctx); err != nil {
			stopErr = fmt.Errorf("control server shutdown: %w", err)
			logger.Error("control server shutdown error", "error", err)
			return
		}
		_ = os.RemoveAll(s.socketPath)
		logger.Info("control server stopped")
	})
	return stopErr
}

func newRouter(d *Daemon) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(metricsMiddleware(d))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	h := &handlers{daemon: d}

	r.Route("/control", func(r chi.Router) {
		r.Post("/mount", h.mount)
		r.Post("/unmount", h.unmount)
		r.Get("/paths", h.paths)
		r.Get("/info", h.info)
		r.Get("/status", h.status)
		r.Get("/dirinfo", h.dirinfo)
		r.Get("/fileinfo", h.fileinfo)
		r.Post("/watch", h.addWatch)
		r.Get("/watch/{id}/events", h.watchEvents)
	})

	return r
}

// metricsMiddleware records one control-request observation per call,
// keyed by its route path (the command name, e.g. "/control/mount"),
// treating any 4xx/5xx response as a failed outcome.
func metricsMiddleware(d *Daemon) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			var err error
			if ww.Status() >= 400 {
				err = fmt.Errorf("control request failed with status %d", ww.Status())
			}
			metrics.RecordControlRequest(d.metrics, r.URL.Path, time.Since(start), err)
		})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("control request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
		)
		next.ServeHTTP(w, r)
		logger.Info("control request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
