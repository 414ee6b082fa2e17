// File: internal/formserver/handlers.go
package formserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formbridge/api/schemas"
	"github.com/xkilldash9x/formbridge/internal/schema"
	"github.com/xkilldash9x/formbridge/internal/submission"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes caps request bodies on the JSON endpoints.
const maxBodyBytes = 1 << 20

// legacyCredentialHeader is accepted alongside schemas.CredentialHeader.
const legacyCredentialHeader = "X-OpenAI-API-Key"

// Handlers manages HTTP request handling for the form server.
type Handlers struct {
	log     *zap.Logger
	service *Service
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(logger *zap.Logger, service *Service) *Handlers {
	return &Handlers{
		log:     logger.Named("form_handlers"),
		service: service,
	}
}

// RouteOptions carries the middleware settings RegisterRoutes applies to /api.
type RouteOptions struct {
	RateLimit  float64
	RateBurst  int
	AuthSecret string
}

// RegisterRoutes mounts the browser-facing and API routes on r.
func (h *Handlers) RegisterRoutes(r chi.Router, opts RouteOptions) {
	r.Get("/health", h.HandleHealthCheck)

	r.Get("/", h.HandleShell)
	r.Get("/index.html", h.HandleShell)
	r.Get("/form/{sessionID}", h.HandleShell)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.RateLimit(opts.RateLimit, opts.RateBurst))

		r.With(h.RequireBearer(opts.AuthSecret)).Post("/forms", h.HandleCreateForm)
		r.Get("/form-config/{sessionID}", h.HandleFormConfig)
		r.Post("/submit", h.HandleSubmit)
		r.Get("/submission/{sessionID}", h.HandleGetSubmission)
		r.Get("/schema", h.HandleSchema)
	})
}

// HandleHealthCheck reports liveness.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, h.service.Health())
}

// HandleShell serves the form shell. The page itself decides, from its URL,
// whether to load a registered session or render from query parameters.
func (h *Handlers) HandleShell(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/form/") && chi.URLParam(r, "sessionID") == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(shellHTML); err != nil {
		h.log.Debug("Failed to write form shell", zap.Error(err))
	}
}

// HandleCreateForm handles POST /api/forms.
func (h *Handlers) HandleCreateForm(w http.ResponseWriter, r *http.Request) {
	var req schemas.CreateFormRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if len(req.Fields) == 0 {
		h.respondWithError(w, http.StatusBadRequest, "fields is required")
		return
	}

	credential := r.Header.Get(schemas.CredentialHeader)
	if credential == "" {
		credential = r.Header.Get(legacyCredentialHeader)
	}

	resp, err := h.service.CreateForm(r.Context(), req, credential)
	if err != nil {
		if errors.Is(err, schema.ErrInvalidFieldName) || errors.Is(err, submission.ErrInvalidSessionID) {
			h.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("Failed to create form", zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// HandleFormConfig handles GET /api/form-config/{sessionID}.
func (h *Handlers) HandleFormConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.GetFormConfig(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondWithError(w, http.StatusNotFound, "Form config not found")
		return
	}
	h.respondJSON(w, http.StatusOK, cfg)
}

// HandleSubmit handles POST /api/submit. The session comes from the
// _session_id body key, falling back to the X-Session-ID header.
func (h *Handlers) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := decodeBody(w, r, &payload); err != nil || payload == nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body: submission must be a JSON object")
		return
	}

	sessionID, _ := payload[schemas.SessionIDKey].(string)
	if sessionID == "" {
		sessionID = r.Header.Get(schemas.SessionHeader)
	}

	resp, err := h.service.SubmitForm(r.Context(), sessionID, payload)
	if err != nil {
		if errors.Is(err, submission.ErrInvalidSessionID) || errors.Is(err, ErrInvalidPayload) {
			h.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("Failed to store submission", zap.String("session_id", sessionID), zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// HandleGetSubmission handles GET /api/submission/{sessionID}.
func (h *Handlers) HandleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	status, err := h.service.GetSubmission(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, submission.ErrInvalidSessionID) {
			h.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Warn("Failed to read submission", zap.String("session_id", sessionID), zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !status.Submitted {
		h.respondJSON(w, http.StatusNotFound, status)
		return
	}
	h.respondJSON(w, http.StatusOK, status)
}

// HandleSchema handles GET /api/schema?fields=a,b&context=...
func (h *Handlers) HandleSchema(w http.ResponseWriter, r *http.Request) {
	fields := schema.ParseFieldList(r.URL.Query().Get("fields"))
	if len(fields) == 0 {
		h.respondWithError(w, http.StatusBadRequest, "fields parameter required")
		return
	}
	form, err := h.service.InferSchema(r.Context(), fields, strings.TrimSpace(r.URL.Query().Get("context")))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, form)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// respondWithError sends a standardized JSON error response.
func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, schemas.ErrorResponse{Success: false, Error: message})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
