// File: internal/submission/http.go
package submission

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xkilldash9x/formbridge/api/schemas"
)

// HTTPChannel reaches a form server over its JSON API. Reads use
// GET /api/submission/{id}; writes use POST /api/submit. It lets a bridge in
// one process wait on a form server in another.
type HTTPChannel struct {
	baseURL string
	client  *http.Client
}

// NewHTTPChannel targets the form server at baseURL.
func NewHTTPChannel(baseURL string, client *http.Client) (*HTTPChannel, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("http channel: invalid base url: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPChannel{baseURL: strings.TrimRight(baseURL, "/"), client: client}, nil
}

func (h *HTTPChannel) Write(ctx context.Context, sessionID string, payload map[string]any) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	body := copyPayload(payload)
	body[schemas.SessionIDKey] = sessionID
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("http channel: encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/api/submit", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("http channel: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(schemas.SessionHeader, sessionID)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("http channel: submit: %w", err)
	}
	defer resp.Body.Close()

	var out schemas.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("http channel: decode submit response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !out.Success {
		return fmt.Errorf("http channel: submit rejected with status %d: %s", resp.StatusCode, out.Message)
	}
	if !out.Durable {
		return &DurabilityError{SessionID: sessionID, Err: fmt.Errorf("%s", out.Message)}
	}
	return nil
}

func (h *HTTPChannel) Read(ctx context.Context, sessionID string) (map[string]any, bool, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/api/submission/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, false, fmt.Errorf("http channel: build request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("http channel: poll: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("http channel: unexpected status %d", resp.StatusCode)
	}

	var status schemas.SubmissionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		// Treated like a half-written artifact: try again next poll.
		return nil, false, nil
	}
	if !status.Submitted || status.Data == nil {
		return nil, false, nil
	}
	return schemas.StripCorrelation(status.Data), true, nil
}
