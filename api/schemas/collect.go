// File: api/schemas/collect.go
package schemas

import "time"

// DefaultCollectTimeout is used when a tool call leaves timeout_seconds unset.
const DefaultCollectTimeout = 300 * time.Second

// CollectRequest is one agent request for missing information.
type CollectRequest struct {
	MissingFields []string
	Context       string
	// Timeout bounds the wait for a submission. Zero means DefaultCollectTimeout.
	Timeout time.Duration
	// Credential is the already resolved LLM credential, if any.
	Credential string
}

// CollectResult is what the agent receives. Exactly one of Data or Error is set.
type CollectResult struct {
	FormURL   string         `json:"form_url"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	// Degraded is true when the form server could not register the form.
	Degraded bool `json:"degraded,omitempty"`
}

// TimedOut reports whether the result is a timeout.
func (r CollectResult) TimedOut() bool {
	return r.Error != "" && r.Data == nil
}
