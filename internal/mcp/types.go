// File: internal/mcp/types.go
package mcp

import (
	"fmt"
	"math"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ToolName is the tool agents call to ask a human for input.
const ToolName = "collect_user_input"

// CollectArgs are the decoded arguments of a collect_user_input call.
type CollectArgs struct {
	MissingFields  []string `json:"missing_fields"`
	Context        string   `json:"context,omitempty"`
	TimeoutSeconds float64  `json:"timeout_seconds,omitempty"`
	Credential     string   `json:"credential,omitempty"`
	// LegacyCredential is the older name of Credential.
	LegacyCredential string `json:"openai_api_key,omitempty"`
}

// ExplicitCredential returns the credential passed as a call parameter.
func (a CollectArgs) ExplicitCredential() string {
	if a.Credential != "" {
		return a.Credential
	}
	return a.LegacyCredential
}

// Timeout converts timeout_seconds. Zero means the bridge default.
func (a CollectArgs) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 || math.IsNaN(a.TimeoutSeconds) {
		return 0
	}
	return time.Duration(a.TimeoutSeconds * float64(time.Second))
}

// mapToStruct converts loosely typed tool arguments into T via JSON.
func mapToStruct[T any](m map[string]any) (T, error) {
	var result T
	if m == nil {
		return result, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return result, err
	}
	err = json.Unmarshal(data, &result)
	return result, err
}

func decodeArgs(raw map[string]any) (CollectArgs, error) {
	// Some clients send the field list as one comma separated string.
	if s, ok := raw["missing_fields"].(string); ok {
		fields := make([]any, 0)
		for _, f := range strings.Split(s, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
		copied := make(map[string]any, len(raw))
		for k, v := range raw {
			copied[k] = v
		}
		copied["missing_fields"] = fields
		raw = copied
	}
	args, err := mapToStruct[CollectArgs](raw)
	if err != nil {
		return CollectArgs{}, fmt.Errorf("invalid arguments: %w", err)
	}
	return args, nil
}
