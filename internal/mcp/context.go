// File: internal/mcp/context.go
package mcp

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formbridge/api/schemas"
)

type contextKey int

const (
	credentialKey contextKey = iota
	sessionKey
)

// legacyCredentialHeader is accepted alongside schemas.CredentialHeader.
const legacyCredentialHeader = "X-OpenAI-API-Key"

// WithConnection attaches the connection-scoped session correlator and
// credential to ctx. Empty values are not stored.
func WithConnection(ctx context.Context, sessionID, credential string) context.Context {
	if sessionID != "" {
		ctx = context.WithValue(ctx, sessionKey, sessionID)
	}
	if credential != "" {
		ctx = context.WithValue(ctx, credentialKey, credential)
	}
	return ctx
}

// CredentialFromContext returns the connection credential, if any.
func CredentialFromContext(ctx context.Context) string {
	c, _ := ctx.Value(credentialKey).(string)
	return c
}

// SessionFromContext returns the connection session correlator, if any.
func SessionFromContext(ctx context.Context) string {
	s, _ := ctx.Value(sessionKey).(string)
	return s
}

// connectionContext runs for every SSE and message request. A credential
// header is recorded in the store so later requests on the same logical
// session, which may not repeat the header, still resolve it.
func (s *Server) connectionContext(ctx context.Context, r *http.Request) context.Context {
	credential := r.Header.Get(schemas.CredentialHeader)
	if credential == "" {
		credential = r.Header.Get(legacyCredentialHeader)
	}
	sessionID := r.URL.Query().Get(schemas.SessionQueryParam)
	if credential != "" {
		s.store.Put(sessionID, credential)
		s.log.Debug("Connection credential recorded", zap.String("session_id", sessionID))
	}
	return WithConnection(ctx, sessionID, credential)
}
