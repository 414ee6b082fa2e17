// File: internal/mcp/tool.go
package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formbridge/api/schemas"
	"github.com/xkilldash9x/formbridge/internal/credentials"
)

// Collector is the agent-facing half of the bridge.
type Collector interface {
	Collect(ctx context.Context, req schemas.CollectRequest) (schemas.CollectResult, error)
}

// CollectTool exposes a Collector as the collect_user_input tool.
type CollectTool struct {
	collector         Collector
	store             *credentials.Store
	defaultCredential string
	log               *zap.Logger
}

// NewCollectTool builds the tool. store may be nil.
func NewCollectTool(collector Collector, store *credentials.Store, defaultCredential string, logger *zap.Logger) *CollectTool {
	return &CollectTool{
		collector:         collector,
		store:             store,
		defaultCredential: defaultCredential,
		log:               logger.Named("collect_tool"),
	}
}

// Definition describes the tool to clients.
func (t *CollectTool) Definition() mcp.Tool {
	return mcp.NewTool(ToolName,
		mcp.WithDescription("Ask the human for information the agent is missing. "+
			"Opens a web form with one input per field, waits for the human to submit it, "+
			"and returns the submitted values. On timeout the result carries the form URL and an error."),
		mcp.WithArray("missing_fields",
			mcp.Required(),
			mcp.Description("Field names to collect, e.g. [\"username\", \"email\"]."),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("context",
			mcp.Description("Why the information is needed. Shown as the form title."),
		),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("How long to wait for the submission."),
			mcp.DefaultNumber(schemas.DefaultCollectTimeout.Seconds()),
			mcp.Min(1),
		),
		mcp.WithString("credential",
			mcp.Description("Optional LLM API key used to generate a richer form."),
		),
		mcp.WithString("openai_api_key",
			mcp.Description("Deprecated alias of credential."),
		),
	)
}

// Handle runs one tool call. Problems with the call itself come back as tool
// errors so the agent can correct them; the Go error is reserved for
// protocol failures.
func (t *CollectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decodeArgs(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := t.collector.Collect(ctx, schemas.CollectRequest{
		MissingFields: args.MissingFields,
		Context:       args.Context,
		Timeout:       args.Timeout(),
		Credential:    t.resolveCredential(ctx, args.ExplicitCredential()),
	})
	if err != nil {
		t.log.Warn("collect_user_input failed", zap.Error(err))
		return mcp.NewToolResultError(err.Error()), nil
	}

	body, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode collect result: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}

// resolveCredential applies the precedence connection > parameter > process default.
func (t *CollectTool) resolveCredential(ctx context.Context, explicit string) string {
	if c := CredentialFromContext(ctx); c != "" {
		return c
	}
	return t.store.Resolve(SessionFromContext(ctx), explicit, t.defaultCredential)
}
