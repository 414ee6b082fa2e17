// File: internal/bridge/bridge_test.go
package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/formbridge/api/schemas"
	"github.com/xkilldash9x/formbridge/internal/config"
	"github.com/xkilldash9x/formbridge/internal/formserver"
	"github.com/xkilldash9x/formbridge/internal/schema"
	"github.com/xkilldash9x/formbridge/internal/submission"
)

const testInterval = 20 * time.Millisecond

func testBridgeConfig(formServerURL string) config.BridgeConfig {
	cfg := config.NewDefaultConfig().Bridge()
	cfg.FormServerURL = formServerURL
	cfg.PollInterval = testInterval
	cfg.RegisterTimeout = time.Second
	cfg.RegisterMaxElapsed = 0
	return cfg
}

// newFormServer runs a real form server router sharing mem.
func newFormServer(t *testing.T, mem *submission.MemoryChannel, authSecret string) *httptest.Server {
	t.Helper()
	cfg := config.NewDefaultConfig().Form()
	cfg.RateLimit = 0
	cfg.AuthSecret = authSecret
	logger := zaptest.NewLogger(t)
	srv := httptest.NewServer(formserver.NewServer(cfg, formserver.NewService(mem, logger), logger).Router())
	t.Cleanup(srv.Close)
	return srv
}

// unreachableURL returns the address of a server that has already shut down.
func unreachableURL() string {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	return srv.URL
}

type announced struct {
	mu   sync.Mutex
	urls map[string]string
	ch   chan string
}

func newAnnounced() *announced {
	return &announced{urls: map[string]string{}, ch: make(chan string, 8)}
}

func (a *announced) hook(_ context.Context, sessionID, formURL string) {
	a.mu.Lock()
	a.urls[sessionID] = formURL
	a.mu.Unlock()
	a.ch <- sessionID
}

func TestCollect_ValidationBeforeNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	b, err := New(testBridgeConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)

	tests := []struct {
		name   string
		fields []string
		want   error
	}{
		{"empty", nil, schema.ErrEmptyFields},
		{"invalid name", []string{"user name"}, schema.ErrInvalidFieldName},
		{"duplicate", []string{"a", "a"}, schema.ErrInvalidFieldName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := b.Collect(context.Background(), schemas.CollectRequest{MissingFields: tt.fields})
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, res.FormURL)
			assert.Empty(t, res.SessionID)
		})
	}
	assert.Zero(t, hits.Load())
}

// Registration succeeds, the human submits through the form server, the
// bridge polls it over HTTP.
func TestCollect_HTTPSourceCompletes(t *testing.T) {
	mem := submission.NewMemoryChannel()
	srv := newFormServer(t, mem, "")
	ann := newAnnounced()

	b, err := New(testBridgeConfig(srv.URL), zaptest.NewLogger(t), WithAnnouncer(ann.hook))
	require.NoError(t, err)

	go func() {
		id := <-ann.ch
		writer, _ := submission.NewHTTPChannel(srv.URL, nil)
		_ = writer.Write(context.Background(), id, map[string]any{"username": "alice", "email": "a@x.com"})
	}()

	res, err := b.Collect(context.Background(), schemas.CollectRequest{
		MissingFields: []string{"username", "email"},
		Context:       "signup",
		Timeout:       5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, SuccessMessage, res.Message)
	assert.Empty(t, res.Error)
	assert.False(t, res.Degraded)
	assert.Equal(t, srv.URL+"/form/"+res.SessionID, res.FormURL)
	if diff := cmp.Diff(map[string]any{"username": "alice", "email": "a@x.com"}, res.Data); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, ann.urls[res.SessionID], res.FormURL)
}

// The form server is down: the human gets the local query-mode URL and the
// bridge still completes from the shared store.
func TestCollect_DegradedFallback(t *testing.T) {
	defer goleak.VerifyNone(t)

	mem := submission.NewMemoryChannel()
	ann := newAnnounced()
	cfg := testBridgeConfig(unreachableURL())
	cfg.PublicURL = "http://localhost:9110"

	b, err := New(cfg, zap.NewNop(), WithStore(mem, mem), WithAnnouncer(ann.hook),
		WithHTTPClient(&http.Client{Transport: &http.Transport{DisableKeepAlives: true}}))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		id := <-ann.ch
		_ = mem.Write(context.Background(), id, map[string]any{"port": "8080", schemas.SessionIDKey: id})
	}()

	res, err := b.Collect(context.Background(), schemas.CollectRequest{
		MissingFields: []string{"port"},
		Timeout:       5 * time.Second,
	})
	<-done
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, "http://localhost:9110/?fields=port&session_id="+res.SessionID, res.FormURL)
	assert.Equal(t, map[string]any{"port": "8080"}, res.Data)
}

func TestCollect_TimeoutReturnsIssuedURL(t *testing.T) {
	defer goleak.VerifyNone(t)

	mem := submission.NewMemoryChannel()
	cfg := testBridgeConfig(unreachableURL())
	core, logs := observer.New(zap.InfoLevel)

	b, err := New(cfg, zap.New(core), WithStore(mem, submission.NewTickerNotifier(testInterval)),
		WithHTTPClient(&http.Client{Transport: &http.Transport{DisableKeepAlives: true}}))
	require.NoError(t, err)

	timeout := 150 * time.Millisecond
	start := time.Now()
	res, err := b.Collect(context.Background(), schemas.CollectRequest{MissingFields: []string{"a"}, Timeout: timeout})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, res.TimedOut())
	assert.True(t, strings.HasPrefix(res.Error, "Timeout waiting for form submission after"))
	assert.Contains(t, res.FormURL, "session_id="+res.SessionID)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+testInterval+time.Second)

	transitions := logs.FilterMessage("Collect state changed").All()
	require.Len(t, transitions, 2)
	assert.Equal(t, "awaiting", transitions[0].ContextMap()["to"])
	assert.Equal(t, "timed_out", transitions[1].ContextMap()["to"])
}

func TestCollect_TimeoutMessageSeconds(t *testing.T) {
	mem := submission.NewMemoryChannel()
	b, err := New(testBridgeConfig(unreachableURL()), zap.NewNop(), WithStore(mem, mem))
	require.NoError(t, err)

	res, err := b.Collect(context.Background(), schemas.CollectRequest{MissingFields: []string{"a"}, Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "Timeout waiting for form submission after 1 seconds", res.Error)
}

func TestCollect_CancelledContextFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	mem := submission.NewMemoryChannel()
	b, err := New(testBridgeConfig(unreachableURL()), zap.NewNop(), WithStore(mem, mem),
		WithHTTPClient(&http.Client{Transport: &http.Transport{DisableKeepAlives: true}}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	res, err := b.Collect(ctx, schemas.CollectRequest{MissingFields: []string{"a"}, Timeout: time.Minute})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotEmpty(t, res.FormURL)
	assert.NotEmpty(t, res.Error)
}

// Two sessions wait at once; submissions land in reverse order and neither
// sees the other's data.
func TestCollect_SessionsAreIsolated(t *testing.T) {
	defer goleak.VerifyNone(t)

	mem := submission.NewMemoryChannel()
	ann := newAnnounced()
	b, err := New(testBridgeConfig(unreachableURL()), zap.NewNop(), WithStore(mem, mem), WithAnnouncer(ann.hook),
		WithHTTPClient(&http.Client{Transport: &http.Transport{DisableKeepAlives: true}}))
	require.NoError(t, err)

	results := make([]schemas.CollectResult, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = b.Collect(context.Background(), schemas.CollectRequest{
				MissingFields: []string{"value"},
				Timeout:       5 * time.Second,
			})
		}(i)
	}

	first, second := <-ann.ch, <-ann.ch
	require.NoError(t, mem.Write(context.Background(), second, map[string]any{"value": second}))
	require.NoError(t, mem.Write(context.Background(), first, map[string]any{"value": first}))
	wg.Wait()

	for _, res := range results {
		require.Empty(t, res.Error)
		assert.Equal(t, res.SessionID, res.Data["value"])
	}
	assert.NotEqual(t, results[0].SessionID, results[1].SessionID)
}

func TestCollect_ExistingPayloadCompletesOnFirstSignal(t *testing.T) {
	mem := submission.NewMemoryChannel()
	ann := newAnnounced()
	b, err := New(testBridgeConfig(unreachableURL()), zap.NewNop(), WithStore(mem, mem),
		WithAnnouncer(func(ctx context.Context, id, url string) {
			_ = mem.Write(ctx, id, map[string]any{"early": true})
			ann.hook(ctx, id, url)
		}))
	require.NoError(t, err)

	res, err := b.Collect(context.Background(), schemas.CollectRequest{MissingFields: []string{"early"}, Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"early": true}, res.Data)
}

func TestRegister_RetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req schemas.CreateFormRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "secret-key", r.Header.Get(schemas.CredentialHeader))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(schemas.CreateFormResponse{Success: true, SessionID: req.SessionID, FormURL: "/form/" + req.SessionID})
	}))
	defer srv.Close()

	cfg := testBridgeConfig(srv.URL)
	cfg.RegisterMaxElapsed = 2 * time.Second
	b, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	path, err := b.register(context.Background(), "S1", schemas.CollectRequest{
		MissingFields: []string{"a"},
		Credential:    "secret-key",
	})
	require.NoError(t, err)
	assert.Equal(t, "/form/S1", path)
	assert.Equal(t, int32(2), hits.Load())
}

func TestRegister_PermanentFailureIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, `{"success":false,"error":"fields is required"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	cfg := testBridgeConfig(srv.URL)
	cfg.RegisterMaxElapsed = 2 * time.Second
	b, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	_, err = b.register(context.Background(), "S1", schemas.CollectRequest{MissingFields: []string{"a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), hits.Load())
}

func TestRegister_BearerToken(t *testing.T) {
	const secret = "shared-secret"
	srv := newFormServer(t, submission.NewMemoryChannel(), secret)

	signed, err := New(testBridgeConfig(srv.URL), zap.NewNop(), WithAuthSecret(secret))
	require.NoError(t, err)
	_, err = signed.register(context.Background(), "S1", schemas.CollectRequest{MissingFields: []string{"a"}})
	assert.NoError(t, err)

	unsigned, err := New(testBridgeConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)
	_, err = unsigned.register(context.Background(), "S2", schemas.CollectRequest{MissingFields: []string{"a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestNew_Defaults(t *testing.T) {
	b, err := New(config.BridgeConfig{FormServerURL: "http://form-server:9110"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, b.cfg.PollInterval)
	assert.Equal(t, schemas.DefaultCollectTimeout, b.cfg.DefaultTimeout)
	assert.Equal(t, "http://localhost:9110", b.PublicURL())
	assert.Equal(t, "http://form-server:9110", b.FormServerURL())
	assert.IsType(t, &submission.HTTPChannel{}, b.channel)
}
