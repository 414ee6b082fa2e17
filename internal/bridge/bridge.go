// File: internal/bridge/bridge.go
package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formbridge/api/schemas"
	"github.com/xkilldash9x/formbridge/internal/config"
	"github.com/xkilldash9x/formbridge/internal/formserver"
	"github.com/xkilldash9x/formbridge/internal/schema"
	"github.com/xkilldash9x/formbridge/internal/submission"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SuccessMessage accompanies every completed collection.
const SuccessMessage = "User successfully submitted the form"

// bearerTTL is the lifetime of tokens minted for a single registration.
const bearerTTL = time.Minute

// URLAnnouncer is told the form URL as soon as it is known, before the wait
// starts, so a transport can show it to the human.
type URLAnnouncer func(ctx context.Context, sessionID, formURL string)

// Bridge turns one agent request into a form session and blocks until the
// human submits it or the deadline passes.
type Bridge struct {
	cfg        config.BridgeConfig
	authSecret string
	channel    submission.Channel
	notifier   submission.Notifier
	client     *http.Client
	announce   URLAnnouncer
	log        *zap.Logger
}

// Option customizes a Bridge.
type Option func(*Bridge)

// WithStore makes the bridge read submissions from channel directly instead
// of polling the form server's HTTP API.
func WithStore(channel submission.Channel, notifier submission.Notifier) Option {
	return func(b *Bridge) {
		b.channel = channel
		b.notifier = notifier
	}
}

// WithHTTPClient sets the client used for registration and HTTP polling.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Bridge) { b.client = c }
}

// WithAnnouncer installs a URL announcer.
func WithAnnouncer(a URLAnnouncer) Option {
	return func(b *Bridge) { b.announce = a }
}

// WithAuthSecret signs registration requests with a bearer token.
func WithAuthSecret(secret string) Option {
	return func(b *Bridge) { b.authSecret = secret }
}

// New builds a Bridge. Without WithStore it polls the form server over HTTP.
func New(cfg config.BridgeConfig, logger *zap.Logger, opts ...Option) (*Bridge, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = schemas.DefaultCollectTimeout
	}
	if cfg.RegisterTimeout <= 0 {
		cfg.RegisterTimeout = 30 * time.Second
	}

	b := &Bridge{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RegisterTimeout},
		log:    logger.Named("bridge"),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.channel == nil {
		hc, err := submission.NewHTTPChannel(cfg.FormServerURL, b.client)
		if err != nil {
			return nil, err
		}
		b.channel = hc
	}
	if b.notifier == nil {
		b.notifier = submission.NewTickerNotifier(cfg.PollInterval)
	}
	return b, nil
}

// FormServerURL is the address the bridge registers forms with.
func (b *Bridge) FormServerURL() string { return b.cfg.FormServerURL }

// PublicURL is the base of every URL handed to a human.
func (b *Bridge) PublicURL() string { return PublicBaseURL(b.cfg.FormServerURL, b.cfg.PublicURL) }

// Collect runs one request to completion. Invalid input fails before any
// session exists. Registration problems degrade to a local URL instead of
// failing. A timeout is a normal result carrying the issued URL. The returned
// error is non-nil only for invalid input or cancellation of ctx.
func (b *Bridge) Collect(ctx context.Context, req schemas.CollectRequest) (schemas.CollectResult, error) {
	if err := schema.ValidateFields(req.MissingFields); err != nil {
		b.log.Warn("Rejected collect request", zap.Error(err))
		return schemas.CollectResult{Error: err.Error()}, err
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = b.cfg.DefaultTimeout
	}

	c := newCall(formserver.NewSessionID(), b.log)
	c.log.Info("Collect requested",
		zap.Strings("fields", req.MissingFields),
		zap.Duration("timeout", timeout),
		zap.Bool("has_credential", req.Credential != ""))

	result := schemas.CollectResult{SessionID: c.sessionID}
	base := b.PublicURL()

	formPath, err := b.register(ctx, c.sessionID, req)
	if err != nil {
		result.FormURL = FallbackURL(base, c.sessionID, req.MissingFields, req.Context)
		result.Degraded = true
		c.log.Warn("Form server registration failed; using local form URL",
			zap.String("form_url", result.FormURL), zap.Error(err))
	} else {
		result.FormURL = absoluteURL(base, formPath)
	}

	if b.announce != nil {
		b.announce(ctx, c.sessionID, result.FormURL)
	}
	c.enter(StateAwaiting, zap.String("form_url", result.FormURL), zap.Bool("degraded", result.Degraded))

	payload, err := b.await(ctx, c, timeout)
	switch {
	case err == nil:
		result.Message = SuccessMessage
		result.Data = payload
		c.enter(StateCompleted, zap.Int("fields", len(payload)))
		return result, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		result.Error = fmt.Sprintf("Timeout waiting for form submission after %d seconds", int(timeout.Seconds()))
		c.enter(StateTimedOut)
		return result, nil
	default:
		result.Error = fmt.Sprintf("Collection cancelled: %v", err)
		c.enter(StateFailed, zap.Error(err))
		return result, err
	}
}

// await blocks on notifier signals until a payload is readable or the
// deadline passes. Read failures never end the wait.
func (b *Bridge) await(ctx context.Context, c *call, timeout time.Duration) (map[string]any, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	signal, unsubscribe := b.notifier.Subscribe(waitCtx, c.sessionID)
	defer unsubscribe()

	for {
		select {
		case <-waitCtx.Done():
			return nil, waitCtx.Err()
		case <-signal:
		}

		payload, ok, err := b.channel.Read(waitCtx, c.sessionID)
		if err != nil {
			if waitCtx.Err() != nil {
				return nil, waitCtx.Err()
			}
			c.log.Debug("Submission read failed; will retry", zap.Error(err))
			continue
		}
		if ok {
			return payload, nil
		}
	}
}

// register creates the session on the form server, retrying transient
// failures within register_max_elapsed.
func (b *Bridge) register(ctx context.Context, sessionID string, req schemas.CollectRequest) (string, error) {
	body, err := json.Marshal(schemas.CreateFormRequest{
		SessionID: sessionID,
		Fields:    req.MissingFields,
		Context:   req.Context,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal form request: %w", err)
	}
	endpoint := strings.TrimRight(b.cfg.FormServerURL, "/") + "/api/forms"

	var bo backoff.BackOff = &backoff.StopBackOff{}
	if b.cfg.RegisterMaxElapsed > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 100 * time.Millisecond
		eb.MaxInterval = time.Second
		eb.MaxElapsedTime = b.cfg.RegisterMaxElapsed
		bo = eb
	}

	var created schemas.CreateFormResponse
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if req.Credential != "" {
			httpReq.Header.Set(schemas.CredentialHeader, req.Credential)
		}
		if b.authSecret != "" {
			token, err := formserver.MintBearer(b.authSecret, bearerTTL)
			if err != nil {
				return backoff.Permanent(err)
			}
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := b.client.Do(httpReq)
		if err != nil {
			b.log.Debug("Form registration attempt failed, retrying...", zap.Error(err))
			return fmt.Errorf("failed to reach form server: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read registration response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return registrationError(resp.StatusCode, respBody)
		}
		if err := json.Unmarshal(respBody, &created); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode registration response: %w", err))
		}
		if !created.Success || created.FormURL == "" {
			return backoff.Permanent(fmt.Errorf("form server declined registration: %s", created.Error))
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return "", err
	}
	return created.FormURL, nil
}

func registrationError(status int, body []byte) error {
	err := fmt.Errorf("form server returned status %d: %s", status, strings.TrimSpace(string(body)))
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusInternalServerError:
		return err
	default:
		return backoff.Permanent(err)
	}
}
