// File: api/schemas/forms.go
package schemas

import (
	"strings"
	"time"
)

// Correlation keys and transport names shared by the form server, the bridge,
// and the browser shell.
const (
	// SessionIDKey is the payload key the browser uses to correlate a submission.
	SessionIDKey = "_session_id"
	// SessionHeader is the header alternative to SessionIDKey.
	SessionHeader = "X-Session-ID"
	// CredentialHeader carries a connection-scoped LLM credential.
	CredentialHeader = "X-LLM-API-Key"
	// SessionQueryParam carries the session correlator on transport URLs.
	SessionQueryParam = "session_id"
)

// Session is a single outstanding request for human input.
type Session struct {
	ID                string      `json:"session_id"`
	RequestedFields   []string    `json:"fields"`
	Context           string      `json:"context,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	Credential        string      `json:"-"`
	PrecomputedSchema *FormSchema `json:"schema,omitempty"`
}

// HasCredential reports whether a credential was bound when the session was created.
func (s *Session) HasCredential() bool {
	return s != nil && s.Credential != ""
}

// Submission is a completed form payload for a session.
type Submission struct {
	SessionID   string         `json:"session_id"`
	Payload     map[string]any `json:"data"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

// FieldSpec describes one inferred form field.
type FieldSpec struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Format      string   `json:"format,omitempty"`
	Required    bool     `json:"required"`
	MinLength   *int     `json:"min_length,omitempty"`
	MaxLength   *int     `json:"max_length,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
	Pattern     string   `json:"pattern,omitempty"`
	Enum        []string `json:"enum_values,omitempty"`
	Widget      string   `json:"ui_widget,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
}

// FormSchema is the rendered configuration the browser shell consumes.
type FormSchema struct {
	FormID           string         `json:"formId"`
	Title            string         `json:"title"`
	Description      string         `json:"description,omitempty"`
	Schema           map[string]any `json:"schema"`
	UISchema         map[string]any `json:"uiSchema"`
	SubmitButtonText string         `json:"submitButtonText"`
}

// JSONSchemaDraft is the dialect stamped on generated schemas.
const JSONSchemaDraft = "https://json-schema.org/draft/2020-12/schema"

// NewFormSchema projects field specs into JSON Schema and UI Schema documents.
func NewFormSchema(formID, title, description, submitText string, fields []FieldSpec) *FormSchema {
	properties := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))
	ui := make(map[string]any, len(fields))

	for _, f := range fields {
		prop := map[string]any{
			"type":  f.Type,
			"title": f.Title,
		}
		if f.Description != "" {
			prop["description"] = f.Description
		}
		if f.Format != "" {
			prop["format"] = f.Format
		}
		if f.MinLength != nil {
			prop["minLength"] = *f.MinLength
		}
		if f.MaxLength != nil {
			prop["maxLength"] = *f.MaxLength
		}
		if f.Minimum != nil {
			prop["minimum"] = *f.Minimum
		}
		if f.Maximum != nil {
			prop["maximum"] = *f.Maximum
		}
		if f.Pattern != "" {
			prop["pattern"] = f.Pattern
		}
		if len(f.Enum) > 0 {
			prop["enum"] = f.Enum
		}
		properties[f.Name] = prop
		if f.Required {
			required = append(required, f.Name)
		}

		fieldUI := map[string]any{}
		if f.Widget != "" {
			fieldUI["ui:widget"] = f.Widget
		}
		if f.Placeholder != "" {
			fieldUI["ui:placeholder"] = f.Placeholder
		}
		if len(fieldUI) > 0 {
			ui[f.Name] = fieldUI
		}
	}

	if submitText == "" {
		submitText = "Submit"
	}

	return &FormSchema{
		FormID:      formID,
		Title:       title,
		Description: description,
		Schema: map[string]any{
			"$schema":     JSONSchemaDraft,
			"type":        "object",
			"title":       title,
			"description": description,
			"properties":  properties,
			"required":    required,
		},
		UISchema:         ui,
		SubmitButtonText: submitText,
	}
}

// StripCorrelation returns a copy of payload without correlation keys.
// Only underscore-prefixed keys the protocol owns are removed; user fields are untouched.
func StripCorrelation(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if isCorrelationKey(k) {
			continue
		}
		out[k] = v
	}
	return out
}

func isCorrelationKey(k string) bool {
	return k == SessionIDKey || strings.EqualFold(k, "_sessionid")
}
