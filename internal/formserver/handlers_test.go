// File: internal/formserver/handlers_test.go
package formserver

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formbridge/api/schemas"
	"github.com/xkilldash9x/formbridge/internal/config"
	"github.com/xkilldash9x/formbridge/internal/submission"
)

func newTestRouter(t *testing.T, mutate func(*config.FormConfig)) (http.Handler, *Service) {
	t.Helper()
	cfg := config.NewDefaultConfig().Form()
	cfg.RateLimit = 0
	if mutate != nil {
		mutate(&cfg)
	}
	logger := zaptest.NewLogger(t)
	svc := NewService(submission.NewMemoryChannel(), logger, WithPort(cfg.Port()))
	return NewServer(cfg, svc, logger).Router(), svc
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHandlers_Health(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	rec, body := doJSON(t, h, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, ServiceName, body["service"])
	assert.Equal(t, float64(9110), body["port"])
}

// Scenario: register, fetch config, submit, poll.
func TestHandlers_FullFlow(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec, created := doJSON(t, h, http.MethodPost, "/api/forms",
		schemas.CreateFormRequest{Fields: []string{"username", "email"}, Context: "signup"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, created["success"])
	id := created["session_id"].(string)
	assert.Equal(t, "/form/"+id, created["form_url"])

	rec, cfg := doJSON(t, h, http.MethodGet, "/api/form-config/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"username", "email"}, cfg["fields"])
	assert.Equal(t, "signup", cfg["context"])
	assert.Equal(t, false, cfg["has_api_key"])
	assert.NotContains(t, cfg, "schema")

	rec, _ = doJSON(t, h, http.MethodGet, "/api/submission/"+id, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, sub := doJSON(t, h, http.MethodPost, "/api/submit",
		map[string]any{"username": "alice", "email": "a@x.com", "_session_id": id}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, sub["success"])
	assert.Equal(t, id, sub["session_id"])
	assert.Equal(t, map[string]any{"username": "alice", "email": "a@x.com"}, sub["data"])

	rec, status := doJSON(t, h, http.MethodGet, "/api/submission/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, status["submitted"])
	assert.Equal(t, map[string]any{"username": "alice", "email": "a@x.com"}, status["data"])
}

func TestHandlers_SubmitWithSessionHeader(t *testing.T) {
	h, svc := newTestRouter(t, nil)
	rec, body := doJSON(t, h, http.MethodPost, "/api/submit",
		map[string]any{"port": 8080}, map[string]string{schemas.SessionHeader: "hdr123"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hdr123", body["session_id"])

	status, err := svc.GetSubmission(t.Context(), "hdr123")
	require.NoError(t, err)
	assert.True(t, status.Submitted)
}

func TestHandlers_CreateFormErrors(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec, body := doJSON(t, h, http.MethodPost, "/api/forms", schemas.CreateFormRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "fields is required", body["error"])
	assert.Equal(t, false, body["success"])

	rec, _ = doJSON(t, h, http.MethodPost, "/api/forms", schemas.CreateFormRequest{Fields: []string{"1bad"}}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, h, http.MethodPost, "/api/forms", "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_CredentialHeaderMarksSession(t *testing.T) {
	h, svc := newTestRouter(t, nil)
	_, created := doJSON(t, h, http.MethodPost, "/api/forms",
		schemas.CreateFormRequest{Fields: []string{"a"}}, map[string]string{schemas.CredentialHeader: "k"})
	sess, ok := svc.Session(created["session_id"].(string))
	require.True(t, ok)
	assert.Equal(t, "k", sess.Credential)

	_, cfg := doJSON(t, h, http.MethodGet, "/api/form-config/"+sess.ID, nil, nil)
	assert.Equal(t, true, cfg["has_api_key"])
	assert.NotContains(t, cfg, "credential", "credential must never be echoed")
}

func TestHandlers_FormConfigNotFound(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	rec, body := doJSON(t, h, http.MethodGet, "/api/form-config/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestHandlers_SubmitRejectsNonObject(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	for _, body := range []string{`[1,2]`, `"text"`, `null`, ``} {
		rec, _ := doJSON(t, h, http.MethodPost, "/api/submit", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestHandlers_SubmissionInvalidID(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	rec, _ := doJSON(t, h, http.MethodGet, "/api/submission/a.b", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_Schema(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	rec, body := doJSON(t, h, http.MethodGet, "/api/schema?fields=email,port&context=server", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "server", body["title"])
	props := body["schema"].(map[string]any)["properties"].(map[string]any)
	assert.Contains(t, props, "email")
	assert.Contains(t, props, "port")

	rec, _ = doJSON(t, h, http.MethodGet, "/api/schema", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_Shell(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	for _, path := range []string{"/", "/index.html", "/form/abc123", "/?fields=a,b&session_id=S"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html", path)
		assert.Contains(t, rec.Body.String(), "/api/submit", path)
	}
}

func TestHandlers_CORSPreflight(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/submit", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, X-Session-ID")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Contains(t, []int{http.StatusOK, http.StatusNoContent}, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandlers_RateLimit(t *testing.T) {
	h, _ := newTestRouter(t, func(c *config.FormConfig) {
		c.RateLimit = 0.001
		c.RateBurst = 2
	})
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec, _ := doJSON(t, h, http.MethodGet, "/api/form-config/x", nil, nil)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusNotFound, http.StatusNotFound, http.StatusTooManyRequests}, codes)

	rec, _ := doJSON(t, h, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health is not rate limited")
}

func TestHandlers_RateLimitPollingCannotStarveSubmit(t *testing.T) {
	h, _ := newTestRouter(t, func(c *config.FormConfig) {
		c.RateLimit = 0.001
		c.RateBurst = 3
	})
	poller := map[string]string{"X-Real-IP": "10.0.0.9"}
	human := map[string]string{"X-Real-IP": "192.168.1.5"}

	for i := 0; i < 3; i++ {
		rec, _ := doJSON(t, h, http.MethodGet, "/api/submission/pollsession", nil, poller)
		require.Equal(t, http.StatusNotFound, rec.Code)
	}
	rec, _ := doJSON(t, h, http.MethodGet, "/api/submission/pollsession", nil, poller)
	require.Equal(t, http.StatusTooManyRequests, rec.Code, "the polling client is throttled")

	rec, body := doJSON(t, h, http.MethodPost, "/api/submit",
		map[string]any{"username": "alice", "_session_id": "humansession"}, human)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	rec, _ = doJSON(t, h, http.MethodPost, "/api/submit",
		map[string]any{"username": "bob", "_session_id": "othersession"}, poller)
	assert.Equal(t, http.StatusOK, rec.Code, "polling and submitting use separate buckets")
}

func TestLimiterSet_SweepsIdleClients(t *testing.T) {
	s := newLimiterSet(1, 1)
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	first := s.get("10.0.0.1|api")
	s.get("10.0.0.2|api")
	assert.Same(t, first, s.get("10.0.0.1|api"))
	assert.Len(t, s.clients, 2)

	now = now.Add(2 * limiterIdleTTL)
	s.get("10.0.0.3|api")
	assert.Len(t, s.clients, 1, "idle buckets are released")
	assert.NotSame(t, first, s.get("10.0.0.1|api"))
}

func TestHandlers_BearerGuard(t *testing.T) {
	const secret = "test-secret"
	h, _ := newTestRouter(t, func(c *config.FormConfig) { c.AuthSecret = secret })
	req := schemas.CreateFormRequest{Fields: []string{"a"}}

	rec, _ := doJSON(t, h, http.MethodPost, "/api/forms", req, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = doJSON(t, h, http.MethodPost, "/api/forms", req, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	wrong, err := MintBearer("other-secret", time.Minute)
	require.NoError(t, err)
	rec, _ = doJSON(t, h, http.MethodPost, "/api/forms", req, map[string]string{"Authorization": "Bearer " + wrong})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := MintBearer(secret, -time.Minute)
	require.NoError(t, err)
	rec, _ = doJSON(t, h, http.MethodPost, "/api/forms", req, map[string]string{"Authorization": "Bearer " + expired})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	good, err := MintBearer(secret, time.Minute)
	require.NoError(t, err)
	rec, _ = doJSON(t, h, http.MethodPost, "/api/forms", req, map[string]string{"Authorization": "Bearer " + good})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, h, http.MethodPost, "/api/submit", map[string]any{"a": "b", "_session_id": "S"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "submissions come from browsers and are not guarded")
}

func TestMintBearerRequiresSecret(t *testing.T) {
	_, err := MintBearer("", time.Minute)
	assert.Error(t, err)
}
