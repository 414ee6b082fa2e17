// File: internal/formserver/service.go
package formserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formbridge/api/schemas"
	"github.com/xkilldash9x/formbridge/internal/schema"
	"github.com/xkilldash9x/formbridge/internal/submission"
)

// ServiceName identifies the form server in health responses.
const ServiceName = "formbridge-form"

var (
	// ErrNotFound is returned for unknown sessions.
	ErrNotFound = errors.New("form config not found")
	// ErrInvalidPayload is returned when a submission body is not a JSON object.
	ErrInvalidPayload = errors.New("submission must be a JSON object")
)

// Service owns the session registry and writes submissions into the channel.
// It holds no per-connection state, so any number of handlers may share it.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*schemas.Session

	channel    submission.Channel
	generator  schema.Generator
	heuristic  schema.HeuristicGenerator
	llmTimeout time.Duration
	port       int
	log        *zap.Logger
	now        func() time.Time
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithGenerator enables eager schema inference for sessions created with a credential.
func WithGenerator(g schema.Generator, timeout time.Duration) ServiceOption {
	return func(s *Service) {
		s.generator = g
		s.llmTimeout = timeout
	}
}

// WithPort sets the port reported by Health.
func WithPort(port int) ServiceOption {
	return func(s *Service) { s.port = port }
}

// NewService builds a Service writing into channel.
func NewService(channel submission.Channel, logger *zap.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		sessions: make(map[string]*schemas.Session),
		channel:  channel,
		log:      logger.Named("form_service"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSessionID mints a dash-free random identifier.
func NewSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// FormPath is the relative URL of the form shell for sessionID.
func FormPath(sessionID string) string {
	return "/form/" + sessionID
}

// CreateForm registers a session. A caller-supplied id that is already known
// is replaced, which lets a registering client retry safely. Schema inference
// failures are logged and never block the returned URL.
func (s *Service) CreateForm(ctx context.Context, req schemas.CreateFormRequest, credential string) (*schemas.CreateFormResponse, error) {
	if err := schema.ValidateFields(req.Fields); err != nil {
		return nil, err
	}
	id := req.SessionID
	if id == "" {
		id = NewSessionID()
	} else if err := submission.ValidateSessionID(id); err != nil {
		return nil, err
	}

	sess := &schemas.Session{
		ID:              id,
		RequestedFields: append([]string(nil), req.Fields...),
		Context:         req.Context,
		CreatedAt:       s.now().UTC(),
		Credential:      credential,
	}
	sess.PrecomputedSchema = s.precompute(ctx, sess)

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.log.Info("Form session created",
		zap.String("session_id", id),
		zap.Strings("fields", sess.RequestedFields),
		zap.Bool("has_credential", sess.HasCredential()),
		zap.Bool("schema_precomputed", sess.PrecomputedSchema != nil))

	return &schemas.CreateFormResponse{Success: true, SessionID: id, FormURL: FormPath(id)}, nil
}

func (s *Service) precompute(ctx context.Context, sess *schemas.Session) *schemas.FormSchema {
	if s.generator == nil || !sess.HasCredential() {
		return nil
	}
	if s.llmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.llmTimeout)
		defer cancel()
	}
	form, err := s.generator.Generate(ctx, schema.Request{
		FormID:     sess.ID,
		Fields:     sess.RequestedFields,
		Context:    sess.Context,
		Credential: sess.Credential,
	})
	if err != nil {
		s.log.Warn("Schema generation failed; form will render without it",
			zap.String("session_id", sess.ID), zap.Error(err))
		return nil
	}
	return form
}

// Session returns a registered session.
func (s *Service) Session(sessionID string) (*schemas.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	return sess, ok
}

// GetFormConfig projects a session for the browser shell.
func (s *Service) GetFormConfig(sessionID string) (*schemas.FormConfigResponse, error) {
	sess, ok := s.Session(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return &schemas.FormConfigResponse{
		Success:   true,
		SessionID: sess.ID,
		Fields:    append([]string(nil), sess.RequestedFields...),
		Context:   sess.Context,
		HasAPIKey: sess.HasCredential(),
		Schema:    sess.PrecomputedSchema,
	}, nil
}

// SubmitForm writes payload into the channel. A durability failure still
// reports success because readers in this process can see the payload; the
// response is marked non-durable instead. A submission without a session id
// is stored under a fresh one.
func (s *Service) SubmitForm(ctx context.Context, sessionID string, payload map[string]any) (*schemas.SubmitResponse, error) {
	if payload == nil {
		return nil, ErrInvalidPayload
	}
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	clean := schemas.StripCorrelation(payload)

	resp := &schemas.SubmitResponse{
		Success:   true,
		Message:   "Form submitted successfully",
		Durable:   true,
		SessionID: sessionID,
		Data:      clean,
	}
	if err := s.channel.Write(ctx, sessionID, clean); err != nil {
		var de *submission.DurabilityError
		if !errors.As(err, &de) {
			return nil, err
		}
		resp.Durable = false
		resp.Message = "Form submitted but file save failed: " + de.Err.Error()
	}

	s.log.Info("Form submitted",
		zap.String("session_id", sessionID),
		zap.Int("fields", len(clean)),
		zap.Bool("durable", resp.Durable))
	return resp, nil
}

// GetSubmission reports whether sessionID has been submitted.
func (s *Service) GetSubmission(ctx context.Context, sessionID string) (*schemas.SubmissionStatus, error) {
	payload, ok, err := s.channel.Read(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &schemas.SubmissionStatus{
		Success:   true,
		SessionID: sessionID,
		Submitted: ok,
		Data:      payload,
	}, nil
}

// InferSchema builds a schema from names alone.
func (s *Service) InferSchema(ctx context.Context, fields []string, formContext string) (*schemas.FormSchema, error) {
	return s.heuristic.Generate(ctx, schema.Request{
		FormID:  NewSessionID(),
		Fields:  fields,
		Context: formContext,
	})
}

// Health reports liveness only.
func (s *Service) Health() schemas.HealthResponse {
	return schemas.HealthResponse{Status: "healthy", Service: ServiceName, Port: s.port}
}
