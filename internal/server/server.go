// Package server hosts the HTTP status surface: health probes, build
// identity and the live simulation snapshot.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/SheetMetalConnect/metalfab-uns-simulator/internal/errors"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/internal/observability"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/internal/server/handlers"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/internal/server/middleware"
)

// Server is the HTTP status server.
type Server struct {
	host   string
	port   int
	router chi.Router
	http   *http.Server
}

// New builds the server with its routes and middleware chain.
func New(host string, port int) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, req, apperrors.New(apperrors.CodeNotFound, "resource not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, req, apperrors.New(apperrors.CodeMethodNotAllowed, "method not allowed"))
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler)
	r.Get("/status", handlers.StatusHandler)

	return &Server{host: host, port: port, router: r}
}

// Handler returns the routing tree for direct serving and tests.
func (s *Server) Handler() http.Handler { return s.router }

// Port returns the configured port.
func (s *Server) Port() int { return s.port }

// Addr returns the listen address.
func (s *Server) Addr() string { return net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port)) }

// Start serves until the context is cancelled, then shuts down within
// shutdownTimeout.
func (s *Server) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	s.http = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		observability.Logger().Info("status server listening", zap.String("addr", s.Addr()))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}
