// File: internal/submission/channel.go
package submission

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"

	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/formbridge/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Channel is the rendezvous between the writer that accepts a submission and
// the reader waiting for it. A write is either invisible to readers or
// completely visible; Read never returns a partial payload.
type Channel interface {
	// Write publishes payload for sessionID. Correlation keys are stripped
	// before the payload becomes visible. A later write replaces an earlier one.
	Write(ctx context.Context, sessionID string, payload map[string]any) error
	// Read returns the payload for sessionID. ok is false while nothing has
	// been submitted; that state is never reported as an error.
	Read(ctx context.Context, sessionID string) (payload map[string]any, ok bool, err error)
}

var (
	// ErrInvalidSessionID is returned for ids that cannot key a submission.
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrNotReady marks a stored body that is empty or not yet parseable.
	ErrNotReady = errors.New("submission not ready")
)

// DurabilityError reports that a write reached the in-memory half of a
// channel but not its durable half. Readers in the same process still see
// the payload.
type DurabilityError struct {
	SessionID string
	Err       error
}

func (e *DurabilityError) Error() string {
	return fmt.Sprintf("submission %s stored in memory only: %v", e.SessionID, e.Err)
}

func (e *DurabilityError) Unwrap() error { return e.Err }

// IsDegraded reports whether err is a DurabilityError.
func IsDegraded(err error) bool {
	var de *DurabilityError
	return errors.As(err, &de)
}

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateSessionID rejects ids that could escape a cache directory or a key namespace.
func ValidateSessionID(id string) error {
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	return nil
}

// encodePayload strips correlation keys and serializes the payload.
func encodePayload(payload map[string]any) ([]byte, error) {
	clean := schemas.StripCorrelation(payload)
	data, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to encode submission: %w", err)
	}
	return data, nil
}

// decodePayload parses a stored body. Empty, whitespace-only, and malformed
// bodies all yield ErrNotReady.
func decodePayload(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNotReady
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	if payload == nil {
		return nil, ErrNotReady
	}
	return payload, nil
}

func copyPayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}
