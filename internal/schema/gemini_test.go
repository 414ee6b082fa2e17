// File: internal/schema/gemini_test.go
package schema

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formbridge/internal/config"
)

func geminiServer(t *testing.T, text string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"), r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]any{"text": text}},
				},
				"finishReason": "STOP",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGemini(srv *httptest.Server) *GeminiGenerator {
	return NewGeminiGenerator(config.LLMConfig{Model: "gemini-2.5-flash", Timeout: 5 * time.Second}, zap.NewNop(),
		WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
}

func TestGeminiGenerator_Generate(t *testing.T) {
	var calls atomic.Int32
	srv := geminiServer(t, `{"title":"Create your account","submit_button_text":"Sign up","fields":[
		{"name":"username","type":"string","title":"Username","required":true,"min_length":3},
		{"name":"invented","type":"string","title":"Not requested"}
	]}`, &calls)

	form, err := newTestGemini(srv).Generate(context.Background(), Request{
		FormID:     "S",
		Fields:     []string{"username", "email"},
		Context:    "signup",
		Credential: "test-key",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "Create your account", form.Title)
	assert.Equal(t, "Sign up", form.SubmitButtonText)

	props := form.Schema["properties"].(map[string]any)
	assert.Len(t, props, 2)
	assert.NotContains(t, props, "invented")
	username := props["username"].(map[string]any)
	assert.Equal(t, 3, username["minLength"])
	email := props["email"].(map[string]any)
	assert.Equal(t, "email", email["format"], "missing fields fall back to inference")
}

func TestGeminiGenerator_Errors(t *testing.T) {
	t.Run("no credential makes no call", func(t *testing.T) {
		var calls atomic.Int32
		srv := geminiServer(t, `{}`, &calls)
		_, err := newTestGemini(srv).Generate(context.Background(), Request{Fields: []string{"a"}})
		assert.ErrorIs(t, err, ErrNoCredential)
		assert.Zero(t, calls.Load())
	})

	t.Run("invalid fields make no call", func(t *testing.T) {
		var calls atomic.Int32
		srv := geminiServer(t, `{}`, &calls)
		_, err := newTestGemini(srv).Generate(context.Background(), Request{Credential: "test-key"})
		assert.ErrorIs(t, err, ErrEmptyFields)
		assert.Zero(t, calls.Load())
	})

	t.Run("non json output", func(t *testing.T) {
		var calls atomic.Int32
		srv := geminiServer(t, `I cannot help with that`, &calls)
		_, err := newTestGemini(srv).Generate(context.Background(), Request{Fields: []string{"a"}, Credential: "test-key"})
		assert.ErrorContains(t, err, "failed to decode gemini response")
	})
}

func TestParseGeminiForm_FencedJSON(t *testing.T) {
	form, err := parseGeminiForm(Request{Fields: []string{"port"}}, "```json\n{\"fields\":[]}\n```")
	require.NoError(t, err)
	props := form.Schema["properties"].(map[string]any)
	assert.Equal(t, "integer", props["port"].(map[string]any)["type"])
	assert.Equal(t, DefaultTitle(""), form.Title)
}
