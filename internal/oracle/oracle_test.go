package oracle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestPricingCost(t *testing.T) {
	p := DefaultPricing()

	cost := p.Cost(Usage{InputTokens: 1000, OutputTokens: 500})

	// 1000*0.000002 + 500*0.000008
	assert.True(t, cost.Equal(decimal.RequireFromString("0.006")), "got %s", cost)
	assert.True(t, p.Cost(Usage{}).IsZero())
}

func TestSchemaToGenai(t *testing.T) {
	s := &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"transactions": {
				Type:  TypeArray,
				Items: &Schema{Type: TypeObject, Required: []string{"amount"}},
			},
			"kind": {Type: TypeString, Enum: []string{"withdrawal", "deposit"}},
		},
		Required: []string{"transactions"},
	}

	g := s.toGenai()

	require.NotNil(t, g)
	assert.Equal(t, genai.TypeObject, g.Type)
	assert.Equal(t, []string{"transactions"}, g.Required)
	require.Contains(t, g.Properties, "transactions")
	assert.Equal(t, genai.TypeArray, g.Properties["transactions"].Type)
	assert.Equal(t, genai.TypeObject, g.Properties["transactions"].Items.Type)
	assert.Equal(t, []string{"withdrawal", "deposit"}, g.Properties["kind"].Enum)

	var nilSchema *Schema
	assert.Nil(t, nilSchema.toGenai())
}

func TestToolsToGenai(t *testing.T) {
	assert.Nil(t, toolsToGenai(nil))

	tools := toolsToGenai([]ToolSpec{
		{Name: "create_transactions", Description: "store", Parameters: &Schema{Type: TypeObject}},
	})

	require.Len(t, tools, 1)
	require.Len(t, tools[0].FunctionDeclarations, 1)
	assert.Equal(t, "create_transactions", tools[0].FunctionDeclarations[0].Name)
}

func TestNewGeminiConfigErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewGemini(ctx, GeminiConfig{Backend: BackendGemini})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")

	_, err = NewGemini(ctx, GeminiConfig{Backend: "openai", APIKey: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestGeminiInvoke(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/test-model:generateContent"), r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{
				"content": {
					"role": "model",
					"parts": [{
						"functionCall": {
							"name": "create_transactions",
							"args": {"transactions": [{"amount": "15.99", "description": "Coffee"}]}
						}
					}]
				}
			}],
			"usageMetadata": {"promptTokenCount": 120, "candidatesTokenCount": 30}
		}`))
	}))
	defer server.Close()

	o, err := NewGemini(context.Background(), GeminiConfig{
		Model:      "test-model",
		APIKey:     "secret",
		BaseURL:    server.URL + "/",
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)
	assert.Equal(t, "test-model", o.Model())

	resp, err := o.Invoke(context.Background(), Request{
		DeveloperPrompt: "You create transaction in a bookeeping system",
		UserPrompt:      "Analyze this image of a receipt",
		Image:           Image{MIMEType: "image/png", Base64: base64.StdEncoding.EncodeToString([]byte("png"))},
		Tools:           []ToolSpec{{Name: "create_transactions", Parameters: &Schema{Type: TypeObject}}},
	})
	require.NoError(t, err)

	require.Len(t, resp.Calls, 1)
	assert.Equal(t, "create_transactions", resp.Calls[0].Name)
	assert.Contains(t, resp.Calls[0].Args, "transactions")
	assert.Equal(t, Usage{InputTokens: 120, OutputTokens: 30}, resp.Usage)

	assert.Contains(t, captured, "systemInstruction")
	assert.Contains(t, captured, "tools")
}

func TestGeminiInvokeNoCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates": [{"content": {"role": "model", "parts": [{"text": "nothing here"}]}}]}`))
	}))
	defer server.Close()

	o, err := NewGemini(context.Background(), GeminiConfig{APIKey: "k", BaseURL: server.URL + "/", HTTPClient: server.Client()})
	require.NoError(t, err)

	resp, err := o.Invoke(context.Background(), Request{Image: Image{MIMEType: "image/jpeg"}})
	require.NoError(t, err)
	assert.Empty(t, resp.Calls)
	assert.NotNil(t, resp.Calls)
}

func TestGeminiInvokeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"code": 500, "message": "boom"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	o, err := NewGemini(context.Background(), GeminiConfig{APIKey: "k", BaseURL: server.URL + "/", HTTPClient: server.Client()})
	require.NoError(t, err)

	_, err = o.Invoke(context.Background(), Request{Image: Image{MIMEType: "image/jpeg"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate content")
}

func TestGeminiInvokeBadImage(t *testing.T) {
	o := &GeminiOracle{model: DefaultModel}

	_, err := o.Invoke(context.Background(), Request{Image: Image{Base64: "%%%"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode image")
}
