// Package oracle talks to the vision model that turns a receipt image into
// candidate tool calls.
package oracle

import (
	"context"

	"github.com/shopspring/decimal"
)

// Oracle sends one prompt and image to a model and returns the tool calls it proposed.
// The calls are untrusted and must be re-validated by the caller.
type Oracle interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// Image is a base64 payload plus its MIME type.
type Image struct {
	MIMEType string
	Base64   string
}

// Request is a single oracle invocation.
type Request struct {
	DeveloperPrompt string
	UserPrompt      string
	Image           Image
	Tools           []ToolSpec
}

// ToolSpec declares a function the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  *Schema
}

// FunctionCall is a raw tool call proposed by the model.
type FunctionCall struct {
	Name string
	Args map[string]any
}

// Usage reports the token counts of one invocation.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response carries the calls and token usage of one invocation.
type Response struct {
	Model string
	Calls []FunctionCall
	Usage Usage
}

// Pricing holds USD cost per token.
type Pricing struct {
	PromptTokenCost     decimal.Decimal
	CompletionTokenCost decimal.Decimal
}

// DefaultPricing returns the per-token prices used when none are configured.
func DefaultPricing() Pricing {
	return Pricing{
		PromptTokenCost:     decimal.RequireFromString("0.0000020"),
		CompletionTokenCost: decimal.RequireFromString("0.000008"),
	}
}

// Cost returns input*prompt + output*completion in USD.
func (p Pricing) Cost(u Usage) decimal.Decimal {
	in := decimal.NewFromInt(u.InputTokens).Mul(p.PromptTokenCost)
	out := decimal.NewFromInt(u.OutputTokens).Mul(p.CompletionTokenCost)
	return in.Add(out)
}
