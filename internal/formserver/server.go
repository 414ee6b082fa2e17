// File: internal/formserver/server.go
package formserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formbridge/api/schemas"
	"github.com/xkilldash9x/formbridge/internal/config"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// Server hosts the form rendering service over HTTP.
type Server struct {
	cfg      config.FormConfig
	service  *Service
	handlers *Handlers
	logger   *zap.Logger
}

// NewServer wires handlers around service.
func NewServer(cfg config.FormConfig, service *Service, logger *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		service:  service,
		handlers: NewHandlers(logger, service),
		logger:   logger.Named("form_server"),
	}
}

// Service returns the underlying service.
func (s *Server) Service() *Service { return s.service }

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", schemas.SessionHeader, schemas.CredentialHeader},
		MaxAge:         300,
	}))

	s.handlers.RegisterRoutes(r, RouteOptions{
		RateLimit:  s.cfg.RateLimit,
		RateBurst:  s.cfg.RateBurst,
		AuthSecret: s.cfg.AuthSecret,
	})
	return r
}

// Start listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Form server starting", zap.String("address", ln.Addr().String()))
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Form server stopped with error", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down form server gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Form server shutdown error", zap.Error(err))
		return err
	}
	<-errCh
	s.logger.Info("Form server stopped.")
	return nil
}
