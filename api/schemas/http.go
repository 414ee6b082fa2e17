// File: api/schemas/http.go
package schemas

// CreateFormRequest is the body of POST /api/forms.
type CreateFormRequest struct {
	SessionID string   `json:"session_id,omitempty"`
	Fields    []string `json:"fields"`
	Context   string   `json:"context,omitempty"`
}

// CreateFormResponse is returned by POST /api/forms.
type CreateFormResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id,omitempty"`
	FormURL   string `json:"form_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FormConfigResponse is returned by GET /api/form-config/{session_id}.
type FormConfigResponse struct {
	Success   bool        `json:"success"`
	SessionID string      `json:"session_id,omitempty"`
	Fields    []string    `json:"fields,omitempty"`
	Context   string      `json:"context,omitempty"`
	HasAPIKey bool        `json:"has_api_key"`
	Schema    *FormSchema `json:"schema,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// SubmitResponse is returned by POST /api/submit.
type SubmitResponse struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Durable   bool           `json:"durable"`
	SessionID string         `json:"session_id"`
	Data      map[string]any `json:"data"`
}

// SubmissionStatus is returned by GET /api/submission/{session_id}.
type SubmissionStatus struct {
	Success   bool           `json:"success"`
	SessionID string         `json:"session_id"`
	Submitted bool           `json:"submitted"`
	Data      map[string]any `json:"data,omitempty"`
}

// HealthResponse is returned by the liveness endpoints.
type HealthResponse struct {
	Status        string `json:"status"`
	Service       string `json:"service"`
	Port          int    `json:"port,omitempty"`
	Transport     string `json:"transport,omitempty"`
	FormServerURL string `json:"form_server_url,omitempty"`
}

// ErrorResponse is the generic JSON error body.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
