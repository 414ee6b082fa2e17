// File: cmd/mcp.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formbridge/internal/credentials"
	"github.com/xkilldash9x/formbridge/internal/mcp"
	"github.com/xkilldash9x/formbridge/internal/observability"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		addr      string
		embedded  bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the collect_user_input tool to MCP clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("transport") {
				cfg.SetMCPTransport(transport)
			}
			if cmd.Flags().Changed("addr") {
				cfg.SetMCPListenAddr(addr)
			}
			if cmd.Flags().Changed("embedded-form-server") {
				cfg.SetMCPEmbeddedFormServer(embedded)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := observability.GetLogger()
			inProcess := cfg.MCP().EmbeddedFormServer

			backend, err := openBackendIfNeeded(ctx, cfg, inProcess, logger)
			if err != nil {
				return fmt.Errorf("failed to open submission backend: %w", err)
			}
			if backend != nil {
				defer func() {
					if err := backend.Close(); err != nil {
						logger.Warn("Failed to close submission backend", zap.Error(err))
					}
				}()
			}

			br, err := newBridge(cfg, bridgeWiring{backend: backend, embedded: inProcess, announce: os.Stderr}, logger)
			if err != nil {
				return fmt.Errorf("failed to build bridge: %w", err)
			}

			var opts []mcp.Option
			opts = append(opts, mcp.WithVersion(Version))
			if inProcess {
				opts = append(opts, mcp.WithEmbeddedFormServer(newFormServer(cfg, backend.Channel, logger)))
			}

			logger.Info("Starting MCP server",
				zap.String("transport", cfg.MCP().Transport),
				zap.Bool("embedded_form_server", inProcess),
				zap.String("form_server_url", br.FormServerURL()))
			return mcp.NewServer(cfg, br, credentials.NewStore(), logger, opts...).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "transport: stdio or sse (overrides mcp.transport)")
	cmd.Flags().StringVar(&addr, "addr", "", "SSE listen address (overrides mcp.listen_addr)")
	cmd.Flags().BoolVar(&embedded, "embedded-form-server", false, "run the form server in this process")
	return cmd
}
