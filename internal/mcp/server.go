// File: internal/mcp/server.go
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/formbridge/internal/config"
	"github.com/xkilldash9x/formbridge/internal/credentials"
	"github.com/xkilldash9x/formbridge/internal/formserver"
)

// ServerName identifies this server to MCP clients and in health responses.
const ServerName = "formbridge-mcp"

// shutdownTimeout bounds graceful shutdown of the SSE listener.
const shutdownTimeout = 10 * time.Second

const instructions = `Use collect_user_input whenever you need information only the human can provide ` +
	`(credentials, preferences, missing configuration). Pass every missing field at once. ` +
	`Share the returned form_url with the human if they have not seen it, and retry on timeout only if asked.`

// Server hosts the collect_user_input tool over stdio or SSE, optionally with
// the form server running in the same process.
type Server struct {
	cfg        config.Interface
	mcp        *server.MCPServer
	store      *credentials.Store
	handlers   *Handlers
	formServer *formserver.Server
	version    string
	log        *zap.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithEmbeddedFormServer runs fs alongside the transport.
func WithEmbeddedFormServer(fs *formserver.Server) Option {
	return func(s *Server) { s.formServer = fs }
}

// WithVersion sets the version reported to clients.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer registers the tool on a new MCP server.
func NewServer(cfg config.Interface, collector Collector, store *credentials.Store, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		version: "dev",
		log:     logger.Named("mcp_server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(
		ServerName,
		s.version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	tool := NewCollectTool(collector, store, cfg.LLM().ProcessDefaultCredential(), logger)
	s.mcp.AddTool(tool.Definition(), tool.Handle)

	s.handlers = NewHandlers(logger, cfg.Bridge().FormServerURL)
	return s
}

// MCPServer exposes the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// Run serves the configured transport until ctx is cancelled or the transport
// ends. The embedded form server, when present, stops with it.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if s.formServer != nil {
		g.Go(func() error { return s.formServer.Start(ctx) })
	}

	g.Go(func() error {
		defer cancel()
		switch s.cfg.MCP().Transport {
		case "sse":
			ln, err := net.Listen("tcp", s.cfg.MCP().ListenAddr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", s.cfg.MCP().ListenAddr, err)
			}
			return s.ServeSSE(ctx, ln)
		default:
			return s.ServeStdio(ctx, os.Stdin, os.Stdout)
		}
	})

	return g.Wait()
}

// ServeStdio speaks the protocol over in and out until in is exhausted or ctx
// is cancelled.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.log))

	s.log.Info("MCP server listening on stdio")
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return err
	}
	s.log.Info("MCP stdio session ended")
	return nil
}

func (s *Server) newSSEServer() *server.SSEServer {
	return server.NewSSEServer(s.mcp,
		server.WithSSEContextFunc(s.connectionContext),
		server.WithKeepAlive(true),
	)
}

// Router mounts health and the SSE endpoints.
func (s *Server) Router(sse *server.SSEServer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s.handlers.RegisterRoutes(r)
	r.Handle("/sse", sse.SSEHandler())
	r.Handle("/message", sse.MessageHandler())
	return r
}

// ServeSSE serves the SSE transport on ln until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, ln net.Listener) error {
	sse := s.newSSEServer()
	httpServer := &http.Server{
		Handler:           s.Router(sse),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("MCP server listening on SSE", zap.String("address", ln.Addr().String()))
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down MCP SSE server gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sse.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("SSE session shutdown error", zap.Error(err))
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("MCP SSE server shutdown error", zap.Error(err))
		return err
	}
	<-errCh
	return nil
}
