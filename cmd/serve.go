// File: cmd/serve.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formbridge/internal/observability"
	"github.com/xkilldash9x/formbridge/internal/submission"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the form server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.SetFormListenAddr(addr)
			}
			logger := observability.GetLogger()

			backend, err := submission.Open(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to open submission backend: %w", err)
			}
			defer func() {
				if err := backend.Close(); err != nil {
					logger.Warn("Failed to close submission backend", zap.Error(err))
				}
			}()

			logger.Info("Form server configured",
				zap.String("listen_addr", cfg.Form().ListenAddr),
				zap.String("backend", string(cfg.Submission().Backend)),
				zap.String("cache_dir", cfg.Form().CacheDir))
			return newFormServer(cfg, backend.Channel, logger).Start(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides form.listen_addr)")
	return cmd
}
