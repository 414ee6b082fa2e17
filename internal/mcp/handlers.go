// File: internal/mcp/handlers.go
package mcp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formbridge/api/schemas"
)

// Handlers serves the plain HTTP routes next to the SSE transport.
type Handlers struct {
	log           *zap.Logger
	formServerURL string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(logger *zap.Logger, formServerURL string) *Handlers {
	return &Handlers{
		log:           logger.Named("mcp_handlers"),
		formServerURL: formServerURL,
	}
}

// RegisterRoutes mounts the health endpoint.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealthCheck)
}

// HandleHealthCheck reports liveness and where forms are served.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, schemas.HealthResponse{
		Status:        "healthy",
		Service:       ServerName,
		Transport:     "sse",
		FormServerURL: h.formServerURL,
	})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
