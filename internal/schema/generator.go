// File: internal/schema/generator.go
package schema

import (
	"context"

	"github.com/xkilldash9x/formbridge/api/schemas"
)

// Generator turns requested field names into a renderable form schema.
type Generator interface {
	Generate(ctx context.Context, req Request) (*schemas.FormSchema, error)
}

// Request carries what a generator needs. Credential is only consulted by
// generators backed by a hosted model.
type Request struct {
	FormID     string
	Fields     []string
	Context    string
	Credential string
}

// DefaultTitle derives a form title from the optional context.
func DefaultTitle(context string) string {
	if context == "" {
		return "Please provide the following information"
	}
	return context
}
