// File: internal/schema/gemini.go
package schema

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/formbridge/api/schemas"
	"github.com/xkilldash9x/formbridge/internal/config"
)

// ErrNoCredential is returned when a model-backed generator has no credential to call with.
var ErrNoCredential = errors.New("no LLM credential available")

const systemInstruction = `You design web forms. Given field names and an optional purpose, infer for each field:
type (string, number, integer, boolean), format (email, uri, date, date-time, time, password) if any,
a human readable title, a short description, validation (min_length, max_length, minimum, maximum,
pattern, enum_values) where obvious, and a ui_widget (text, textarea, password, email, url, date,
time, checkbox, radio, select, updown, tel, color).
Respond with JSON only:
{"title": string, "description": string, "submit_button_text": string,
 "fields": [{"name": string, "type": string, "title": string, "description": string, "format": string,
 "required": bool, "min_length": int, "max_length": int, "minimum": number, "maximum": number,
 "pattern": string, "enum_values": [string], "ui_widget": string, "placeholder": string}]}
Use exactly the field names given, in the given order.`

type geminiForm struct {
	Title            string              `json:"title"`
	Description      string              `json:"description"`
	SubmitButtonText string              `json:"submit_button_text"`
	Fields           []schemas.FieldSpec `json:"fields"`
}

// GeminiGenerator asks a Gemini model to infer the form. A client is built per
// call because the credential is per session.
type GeminiGenerator struct {
	model      string
	timeout    time.Duration
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// GeminiOption customizes a GeminiGenerator.
type GeminiOption func(*GeminiGenerator)

// WithBaseURL points the client at a different API host.
func WithBaseURL(u string) GeminiOption {
	return func(g *GeminiGenerator) { g.baseURL = u }
}

// WithHTTPClient sets the transport used for API calls.
func WithHTTPClient(c *http.Client) GeminiOption {
	return func(g *GeminiGenerator) { g.httpClient = c }
}

// NewGeminiGenerator builds a generator from the LLM configuration.
func NewGeminiGenerator(cfg config.LLMConfig, logger *zap.Logger, opts ...GeminiOption) *GeminiGenerator {
	g := &GeminiGenerator{
		model:   cfg.Model,
		timeout: cfg.Timeout,
		log:     logger.Named("gemini_generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (*schemas.FormSchema, error) {
	if err := ValidateFields(req.Fields); err != nil {
		return nil, err
	}
	if req.Credential == "" {
		return nil, ErrNoCredential
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	cc := &genai.ClientConfig{
		APIKey:     req.Credential,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.httpClient,
	}
	if g.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	start := time.Now()
	resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(buildPrompt(req)), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generation failed: %w", err)
	}
	g.log.Debug("Schema generation complete", zap.Duration("duration", time.Since(start)), zap.Int("fields", len(req.Fields)))

	return parseGeminiForm(req, resp.Text())
}

func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Field Names: ")
	names, _ := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(req.Fields)
	b.Write(names)
	b.WriteString("\nContext: ")
	if req.Context == "" {
		b.WriteString("Not provided")
	} else {
		b.WriteString(req.Context)
	}
	return b.String()
}

// parseGeminiForm decodes the model output. Fields the model dropped are
// filled in heuristically; fields it invented are discarded.
func parseGeminiForm(req Request, text string) (*schemas.FormSchema, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(text, "```")), "```")
	if text == "" {
		return nil, errors.New("gemini returned an empty response")
	}

	var out geminiForm
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("failed to decode gemini response: %w", err)
	}

	byName := make(map[string]schemas.FieldSpec, len(out.Fields))
	for _, f := range out.Fields {
		byName[f.Name] = f
	}
	specs := make([]schemas.FieldSpec, 0, len(req.Fields))
	for _, name := range req.Fields {
		f, ok := byName[name]
		if !ok || f.Type == "" {
			f = InferField(name)
		}
		if f.Title == "" {
			f.Title = Title(name)
		}
		specs = append(specs, f)
	}

	title := out.Title
	if title == "" {
		title = DefaultTitle(req.Context)
	}
	return schemas.NewFormSchema(req.FormID, title, out.Description, out.SubmitButtonText, specs), nil
}
