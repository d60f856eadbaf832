package oracle

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// Backends accepted by GeminiConfig.Backend.
const (
	BackendGemini = "gemini"
	BackendVertex = "vertex"
)

// GeminiConfig configures a GeminiOracle.
type GeminiConfig struct {
	Model    string
	APIKey   string
	Backend  string
	Project  string
	Location string
	// BaseURL overrides the API endpoint; used against local fakes.
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiOracle is the Oracle backed by the Google GenAI SDK.
type GeminiOracle struct {
	client *genai.Client
	model  string
}

// NewGemini creates a GenAI client for the configured backend.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*GeminiOracle, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	cc := &genai.ClientConfig{
		HTTPClient:  cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	}
	switch strings.ToLower(cfg.Backend) {
	case "", BackendGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("NewGemini: oracle.api_key is required for the gemini backend")
		}
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	case BackendVertex:
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	default:
		return nil, fmt.Errorf("NewGemini: unknown backend %q", cfg.Backend)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("NewGemini: create genai client: %w", err)
	}
	return &GeminiOracle{client: client, model: model}, nil
}

// Model returns the model name requests are sent to.
func (g *GeminiOracle) Model() string {
	return g.model
}

// Invoke sends the developer prompt as system instruction and the user prompt
// together with the image as a single user turn.
func (g *GeminiOracle) Invoke(ctx context.Context, req Request) (*Response, error) {
	data, err := base64.StdEncoding.DecodeString(req.Image.Base64)
	if err != nil {
		return nil, fmt.Errorf("GeminiOracle.Invoke: decode image: %w", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(req.UserPrompt),
			genai.NewPartFromBytes(data, req.Image.MIMEType),
		}, genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		Tools: toolsToGenai(req.Tools),
	}
	if req.DeveloperPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.DeveloperPrompt, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("GeminiOracle.Invoke: generate content: %w", err)
	}

	out := &Response{Model: g.model, Calls: []FunctionCall{}}
	for _, call := range resp.FunctionCalls() {
		args := call.Args
		if args == nil {
			args = map[string]any{}
		}
		out.Calls = append(out.Calls, FunctionCall{Name: call.Name, Args: args})
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:  int64(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}
