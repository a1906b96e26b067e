// Package httpapi serves competition status and admin controls over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/siohaza/nightcup/internal/competition"
	"github.com/siohaza/nightcup/internal/standings"
)

// Backend is the competition surface the API needs. Implementations must be
// safe for concurrent use.
type Backend interface {
	Connected() bool
	Status(ctx context.Context) (competition.Status, error)
	Standings(ctx context.Context, viewer string) (standings.View, error)
	Settings(ctx context.Context) ([]competition.Setting, error)
	Start(ctx context.Context, admin string) error
	Stop(ctx context.Context, by string) error
	AddQualified(ctx context.Context, login string) error
	RemoveQualified(ctx context.Context, login string) error
	UpdateSetting(ctx context.Context, name, value string) error
}

type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// New builds the API. With an empty tokenHash the admin routes are not
// mounted.
func New(addr string, logger *slog.Logger, backend Backend, tokenHash string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(logger, backend, tokenHash),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

func NewRouter(logger *slog.Logger, backend Backend, tokenHash string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newStructuredLogger(logger))
	r.Use(middleware.Recoverer)

	addRoutes(r, logger, backend, tokenHash)
	return r
}

func (s *Server) Run(_ context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}

	s.logger.Info("http api listening", "addr", ln.Addr().String())
	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func newStructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
