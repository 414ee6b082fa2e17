// File: cmd/collect.go
package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formbridge/api/schemas"
	"github.com/xkilldash9x/formbridge/internal/observability"
	"github.com/xkilldash9x/formbridge/internal/schema"
)

func newCollectCmd() *cobra.Command {
	var (
		fields      string
		formContext string
		timeout     time.Duration
		credential  string
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Ask for input once and print the result as JSON",
		Example: `  formbridge collect --fields username,email --context "Create your account"
  formbridge collect --fields db_host,db_port --timeout 2m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			missing := schema.ParseFieldList(fields)
			if err := schema.ValidateFields(missing); err != nil {
				return err
			}

			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			backend, err := openBackendIfNeeded(ctx, cfg, false, logger)
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

			br, err := newBridge(cfg, bridgeWiring{backend: backend, announce: cmd.ErrOrStderr()}, logger)
			if err != nil {
				return fmt.Errorf("failed to build bridge: %w", err)
			}

			if credential == "" {
				credential = cfg.LLM().ProcessDefaultCredential()
			}
			result, err := br.Collect(ctx, schemas.CollectRequest{
				MissingFields: missing,
				Context:       formContext,
				Timeout:       timeout,
				Credential:    credential,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("failed to write result: %w", err)
			}
			if result.TimedOut() {
				return errors.New(result.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fields, "fields", "", "comma separated field names to collect (required)")
	cmd.Flags().StringVar(&formContext, "context", "", "why the information is needed")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "how long to wait (default bridge.default_timeout)")
	cmd.Flags().StringVar(&credential, "credential", "", "LLM API key used to generate a richer form")
	_ = cmd.MarkFlagRequired("fields")
	return cmd
}
