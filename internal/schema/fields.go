// File: internal/schema/fields.go
package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxFieldNameLength bounds a single field name.
const MaxFieldNameLength = 100

var (
	// ErrEmptyFields is returned when no fields were requested.
	ErrEmptyFields = errors.New("missing_fields must contain at least one field name")
	// ErrInvalidFieldName is returned for names that cannot key a JSON Schema property.
	ErrInvalidFieldName = errors.New("invalid field name")
)

var fieldNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateFields checks that fields is non-empty and that every name is a
// usable identifier. Duplicates are rejected since they would collapse into
// one property.
func ValidateFields(fields []string) error {
	if len(fields) == 0 {
		return ErrEmptyFields
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		switch {
		case f == "":
			return fmt.Errorf("%w: empty name", ErrInvalidFieldName)
		case len(f) > MaxFieldNameLength:
			return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidFieldName, f[:20]+"...", MaxFieldNameLength)
		case !fieldNamePattern.MatchString(f):
			return fmt.Errorf("%w: %q must start with a letter or underscore and contain only letters, digits, and underscores", ErrInvalidFieldName, f)
		}
		if _, dup := seen[f]; dup {
			return fmt.Errorf("%w: %q is listed more than once", ErrInvalidFieldName, f)
		}
		seen[f] = struct{}{}
	}
	return nil
}

// ParseFieldList splits a comma separated list, trimming blanks.
func ParseFieldList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var acronyms = map[string]string{
	"id":  "ID",
	"url": "URL",
	"uri": "URI",
	"api": "API",
	"ip":  "IP",
	"dob": "Date of Birth",
}

// Title turns a snake_case field name into a label: "user_name" -> "User Name".
func Title(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' })
	for i, p := range parts {
		if a, ok := acronyms[strings.ToLower(p)]; ok {
			parts[i] = a
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
