// File: cmd/wiring.go
package cmd

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formbridge/internal/bridge"
	"github.com/xkilldash9x/formbridge/internal/config"
	"github.com/xkilldash9x/formbridge/internal/formserver"
	"github.com/xkilldash9x/formbridge/internal/mcp"
	"github.com/xkilldash9x/formbridge/internal/schema"
	"github.com/xkilldash9x/formbridge/internal/submission"
)

// newFormServer builds the form server around channel. Eager schema
// generation through Gemini is enabled only when a model is configured.
func newFormServer(cfg config.Interface, channel submission.Channel, logger *zap.Logger) *formserver.Server {
	opts := []formserver.ServiceOption{formserver.WithPort(cfg.Form().Port())}
	if g := newGenerator(cfg.LLM(), logger); g != nil {
		opts = append(opts, formserver.WithGenerator(g, cfg.LLM().Timeout))
	}
	service := formserver.NewService(channel, logger, opts...)
	return formserver.NewServer(cfg.Form(), service, logger)
}

// newGenerator returns the Gemini generator, or nil when no model is set.
// Credentials are per session, so a missing process key does not disable it.
func newGenerator(llm config.LLMConfig, logger *zap.Logger) schema.Generator {
	if llm.Model == "" {
		return nil
	}
	return schema.NewGeminiGenerator(llm, logger)
}

// bridgeWiring carries what newBridge needs besides config.
type bridgeWiring struct {
	backend  *submission.Backend
	embedded bool
	announce io.Writer
}

// newBridge builds the bridge. It reads the shared backend directly when the
// form server runs in-process or bridge.source is "store"; otherwise it polls
// the form server over HTTP.
func newBridge(cfg config.Interface, w bridgeWiring, logger *zap.Logger) (*bridge.Bridge, error) {
	bcfg := cfg.Bridge()
	if bcfg.PublicURL == "" && w.embedded {
		bcfg.PublicURL = cfg.Form().PublicURL
	}

	opts := []bridge.Option{
		bridge.WithAnnouncer(mcp.NewAnnouncer(w.announce, logger)),
		bridge.WithAuthSecret(cfg.Form().AuthSecret),
	}
	if w.backend != nil && (w.embedded || bcfg.Source == config.SourceStore) {
		opts = append(opts, bridge.WithStore(w.backend.Channel, w.backend.Notifier))
	}
	return bridge.New(bcfg, logger, opts...)
}

// openBackendIfNeeded opens the submission backend only when this process
// reads or writes it.
func openBackendIfNeeded(ctx context.Context, cfg config.Interface, embedded bool, logger *zap.Logger) (*submission.Backend, error) {
	if !embedded && cfg.Bridge().Source != config.SourceStore {
		return nil, nil
	}
	return submission.Open(ctx, cfg, logger)
}
