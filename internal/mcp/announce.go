// File: internal/mcp/announce.go
package mcp

import (
	"context"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formbridge/internal/bridge"
	"github.com/xkilldash9x/formbridge/internal/formserver"
)

// NewAnnouncer surfaces form URLs on w and, when ctx belongs to an MCP
// client session, as a log notification to that client. w is stderr for the
// stdio transport because stdout carries protocol frames.
func NewAnnouncer(w io.Writer, logger *zap.Logger) bridge.URLAnnouncer {
	log := logger.Named("announcer")
	return func(ctx context.Context, sessionID, formURL string) {
		if w != nil {
			fmt.Fprintf(w, "Form URL: %s\n", formURL)
		}
		srv := server.ServerFromContext(ctx)
		if srv == nil {
			return
		}
		err := srv.SendNotificationToClient(ctx, "notifications/message", map[string]any{
			"level":  "info",
			"logger": formserver.ServiceName,
			"data": map[string]any{
				"message":    "Please fill out the form to continue",
				"form_url":   formURL,
				"session_id": sessionID,
			},
		})
		if err != nil {
			log.Debug("Could not notify client of form URL", zap.Error(err))
		}
	}
}
