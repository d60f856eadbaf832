package receipt

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/papermes/internal/accounts"
	"github.com/dvloznov/papermes/internal/imagestore"
	"github.com/dvloznov/papermes/internal/logger"
	"github.com/dvloznov/papermes/internal/oracle"
	"github.com/dvloznov/papermes/internal/tools"
)

// Step is one stage of receipt analysis.
type Step interface {
	Execute(ctx context.Context, state *State) error
}

// State is shared across the steps of one analysis.
type State struct {
	ImageRef string
	Image    *imagestore.Image
	Encoded  oracle.Image

	Accounts        []accounts.Account
	DeveloperPrompt string
	UserPrompt      string

	Response *oracle.Response
	Cost     decimal.Decimal

	ToolCalls []ToolCall
	Calls     []Call
}

// ImageFetcher loads an image by local path or gs:// URI. *imagestore.Store satisfies it.
type ImageFetcher interface {
	Fetch(ctx context.Context, ref string) (*imagestore.Image, error)
}

// PromptSource renders the two analysis prompts. *tools.Service satisfies it.
type PromptSource interface {
	DeveloperBookkeepingContext(accts []accounts.Account) (string, error)
	UserAnalyzeReceipt() (string, error)
}

// Step 1: EncodeImageStep loads the image (unless preloaded) and base64-encodes it.
type EncodeImageStep struct {
	Images ImageFetcher
}

func (s *EncodeImageStep) Execute(ctx context.Context, state *State) error {
	if state.Image == nil {
		img, err := s.Images.Fetch(ctx, state.ImageRef)
		if err != nil {
			return err
		}
		state.Image = img
	}
	state.Encoded = oracle.Image{
		MIMEType: state.Image.MIMEType,
		Base64:   base64.StdEncoding.EncodeToString(state.Image.Data),
	}
	return nil
}

// Step 2: ResolvePromptsStep renders the developer prompt from the live account
// list and the fixed user prompt.
type ResolvePromptsStep struct {
	Accounts tools.AccountSource
	Prompts  PromptSource
}

func (s *ResolvePromptsStep) Execute(ctx context.Context, state *State) error {
	state.Accounts = s.Accounts.List(ctx)

	dev, err := s.Prompts.DeveloperBookkeepingContext(state.Accounts)
	if err != nil {
		return fmt.Errorf("ResolvePromptsStep: developer prompt: %w", err)
	}
	user, err := s.Prompts.UserAnalyzeReceipt()
	if err != nil {
		return fmt.Errorf("ResolvePromptsStep: user prompt: %w", err)
	}
	state.DeveloperPrompt = dev
	state.UserPrompt = user

	log := logger.FromContext(ctx)
	log.Debug().
		Int("accounts", len(state.Accounts)).
		Msg("Prompts resolved")
	return nil
}

// Step 3: InvokeOracleStep makes the single oracle call and prices it.
type InvokeOracleStep struct {
	Oracle  oracle.Oracle
	Pricing oracle.Pricing
}

func (s *InvokeOracleStep) Execute(ctx context.Context, state *State) error {
	resp, err := s.Oracle.Invoke(ctx, oracle.Request{
		DeveloperPrompt: state.DeveloperPrompt,
		UserPrompt:      state.UserPrompt,
		Image:           state.Encoded,
		Tools:           []oracle.ToolSpec{tools.CreateTransactionsTool()},
	})
	if err != nil {
		return fmt.Errorf("InvokeOracleStep: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("InvokeOracleStep: oracle returned no response")
	}
	state.Response = resp
	state.Cost = s.Pricing.Cost(resp.Usage)

	log := logger.FromContext(ctx)
	log.Info().
		Int64("input_tokens", resp.Usage.InputTokens).
		Int64("output_tokens", resp.Usage.OutputTokens).
		Str("cost_usd", state.Cost.String()).
		Int("calls", len(resp.Calls)).
		Msg("Oracle invoked")
	return nil
}

// Step 4: NormalizeOutputStep forces every transaction to a withdrawal and
// decodes each call into its typed form.
type NormalizeOutputStep struct{}

func (s *NormalizeOutputStep) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx)

	state.ToolCalls = make([]ToolCall, 0, len(state.Response.Calls))
	state.Calls = make([]Call, 0, len(state.Response.Calls))
	for _, fc := range state.Response.Calls {
		args := fc.Args
		if args == nil {
			args = map[string]any{}
		}
		if fc.Name == tools.CreateTransactionsName {
			forceWithdrawal(args)
		}

		call := decodeCall(oracle.FunctionCall{Name: fc.Name, Args: args})
		if rejected, ok := call.(RejectedCall); ok {
			log.Warn().Str("tool", fc.Name).Err(rejected.Err).Msg("Rejected oracle tool call")
		}
		state.ToolCalls = append(state.ToolCalls, ToolCall{Name: fc.Name, Args: args})
		state.Calls = append(state.Calls, call)
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
