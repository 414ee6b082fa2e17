// File: internal/schema/heuristic.go
package schema

import (
	"context"
	"strings"

	"github.com/xkilldash9x/formbridge/api/schemas"
)

// HeuristicGenerator infers field types from their names alone. It is
// deterministic and needs no credential, so it backs GET /api/schema and
// stands in whenever a model-backed generator is unavailable.
type HeuristicGenerator struct{}

type rule struct {
	match func(name string) bool
	apply func(spec *schemas.FieldSpec)
}

func intp(v int) *int { return &v }

func floatp(v float64) *float64 { return &v }

func exact(names ...string) func(string) bool {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(name string) bool {
		_, ok := set[name]
		return ok
	}
}

func contains(parts ...string) func(string) bool {
	return func(name string) bool {
		for _, p := range parts {
			if strings.Contains(name, p) {
				return true
			}
		}
		return false
	}
}

func prefix(prefixes ...string) func(string) bool {
	return func(name string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(name, p) {
				return true
			}
		}
		return false
	}
}

func suffix(suffixes ...string) func(string) bool {
	return func(name string) bool {
		for _, s := range suffixes {
			if strings.HasSuffix(name, s) {
				return true
			}
		}
		return false
	}
}

// Order matters: the first matching rule wins.
var rules = []rule{
	{contains("password", "passwd", "pwd", "secret", "api_key", "apikey", "token"), func(s *schemas.FieldSpec) {
		s.Format, s.Widget, s.MinLength = "password", "password", intp(8)
	}},
	{contains("email", "e_mail"), func(s *schemas.FieldSpec) {
		s.Format, s.Widget, s.MaxLength = "email", "email", intp(254)
	}},
	{contains("url", "uri", "website", "homepage", "link", "endpoint"), func(s *schemas.FieldSpec) {
		s.Format, s.Widget = "uri", "url"
	}},
	{prefix("is_", "has_", "enable", "use_", "allow_"), boolean},
	{exact("agree", "accept", "terms", "subscribe", "newsletter", "active", "enabled", "debug", "verbose"), boolean},
	{suffix("_enabled", "_flag"), boolean},
	{exact("datetime", "timestamp", "created_at", "updated_at"), func(s *schemas.FieldSpec) {
		s.Format = "date-time"
	}},
	{exact("dob", "birthday", "birth_date", "date"), date},
	{suffix("_date"), date},
	{exact("time", "start_time", "end_time"), func(s *schemas.FieldSpec) {
		s.Format, s.Widget = "time", "time"
	}},
	{exact("port"), func(s *schemas.FieldSpec) {
		s.Type, s.Minimum, s.Maximum, s.Widget = "integer", floatp(1), floatp(65535), "updown"
	}},
	{exact("age"), func(s *schemas.FieldSpec) {
		s.Type, s.Minimum, s.Maximum, s.Widget = "integer", floatp(0), floatp(150), "updown"
	}},
	{exact("year"), func(s *schemas.FieldSpec) {
		s.Type, s.Minimum, s.Maximum, s.Widget = "integer", floatp(1900), floatp(2100), "updown"
	}},
	{contains("count", "quantity", "number_of", "retries", "replicas", "workers"), func(s *schemas.FieldSpec) {
		s.Type, s.Minimum, s.Widget = "integer", floatp(0), "updown"
	}},
	{contains("percent", "rate"), func(s *schemas.FieldSpec) {
		s.Type, s.Minimum, s.Maximum = "number", floatp(0), floatp(100)
	}},
	{contains("price", "cost", "amount", "total", "salary"), func(s *schemas.FieldSpec) {
		s.Type, s.Minimum = "number", floatp(0)
	}},
	{contains("phone", "mobile", "tel"), func(s *schemas.FieldSpec) {
		s.Widget, s.Pattern = "tel", `^[+0-9 ()-]{7,20}$`
	}},
	{exact("gender", "sex"), func(s *schemas.FieldSpec) {
		s.Enum, s.Widget = []string{"male", "female", "other"}, "radio"
	}},
	{exact("description", "bio", "about", "notes", "comment", "comments", "message", "address", "code"), func(s *schemas.FieldSpec) {
		s.Widget = "textarea"
	}},
	{exact("username", "user_name", "login"), func(s *schemas.FieldSpec) {
		s.MinLength, s.MaxLength = intp(3), intp(50)
	}},
	{exact("color", "colour"), func(s *schemas.FieldSpec) {
		s.Widget = "color"
	}},
}

func boolean(s *schemas.FieldSpec) { s.Type, s.Widget, s.Required = "boolean", "checkbox", false }
func date(s *schemas.FieldSpec)    { s.Format, s.Widget = "date", "date" }

// InferField returns the spec for a single field name.
func InferField(name string) schemas.FieldSpec {
	spec := schemas.FieldSpec{
		Name:     name,
		Type:     "string",
		Title:    Title(name),
		Required: true,
	}
	lower := strings.ToLower(name)
	for _, r := range rules {
		if r.match(lower) {
			r.apply(&spec)
			break
		}
	}
	if spec.Type == "string" && spec.Widget != "password" && spec.Format == "" {
		spec.Placeholder = "Enter " + strings.ToLower(spec.Title)
	}
	return spec
}

func (HeuristicGenerator) Generate(_ context.Context, req Request) (*schemas.FormSchema, error) {
	if err := ValidateFields(req.Fields); err != nil {
		return nil, err
	}
	specs := make([]schemas.FieldSpec, 0, len(req.Fields))
	for _, f := range req.Fields {
		specs = append(specs, InferField(f))
	}
	return schemas.NewFormSchema(req.FormID, DefaultTitle(req.Context), req.Context, "Submit", specs), nil
}
