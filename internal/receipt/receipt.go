// Package receipt turns a receipt image into candidate ledger transactions.
package receipt

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/papermes/internal/imagestore"
	"github.com/dvloznov/papermes/internal/logger"
	"github.com/dvloznov/papermes/internal/mapper"
	"github.com/dvloznov/papermes/internal/oracle"
	"github.com/dvloznov/papermes/internal/tools"
)

// ToolCall is a normalized tool call as returned to callers.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Rejection summarizes a RejectedCall for output.
type Rejection struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// Analysis is the outcome of one receipt analysis. No ledger writes have happened yet.
type Analysis struct {
	RunID     string          `json:"run_id"`
	Image     string          `json:"image"`
	ToolCalls []ToolCall      `json:"tool_calls"`
	Rejected  []Rejection     `json:"rejected,omitempty"`
	Usage     oracle.Usage    `json:"usage"`
	CostUSD   decimal.Decimal `json:"cost_usd"`

	Calls []Call `json:"-"`
}

// Accepted returns the create_transactions calls that decoded cleanly.
func (a *Analysis) Accepted() []CreateTransactionsCall {
	var out []CreateTransactionsCall
	for _, c := range a.Calls {
		if ct, ok := c.(CreateTransactionsCall); ok {
			out = append(out, ct)
		}
	}
	return out
}

// Deps are the collaborators of an Analyzer.
type Deps struct {
	Images   ImageFetcher
	Accounts tools.AccountSource
	Prompts  PromptSource
	Oracle   oracle.Oracle
	Pricing  oracle.Pricing
	Logger   zerolog.Logger
}

// Analyzer runs the analysis pipeline.
type Analyzer struct {
	pipeline *Pipeline
	log      zerolog.Logger
}

// NewAnalyzer builds the standard four-step analysis pipeline.
func NewAnalyzer(deps Deps) *Analyzer {
	return &Analyzer{
		pipeline: NewPipeline(
			&EncodeImageStep{Images: deps.Images},
			&ResolvePromptsStep{Accounts: deps.Accounts, Prompts: deps.Prompts},
			&InvokeOracleStep{Oracle: deps.Oracle, Pricing: deps.Pricing},
			&NormalizeOutputStep{},
		),
		log: deps.Logger,
	}
}

// Analyze loads the image at ref (local path or gs:// URI) and extracts tool calls.
// A missing image yields an apperrors.NotFoundError; an oracle failure is fatal.
func (a *Analyzer) Analyze(ctx context.Context, ref string) (*Analysis, error) {
	return a.run(ctx, &State{ImageRef: ref})
}

// AnalyzeImage is Analyze for an image already in memory.
func (a *Analyzer) AnalyzeImage(ctx context.Context, img *imagestore.Image) (*Analysis, error) {
	return a.run(ctx, &State{ImageRef: img.Name, Image: img})
}

func (a *Analyzer) run(ctx context.Context, state *State) (*Analysis, error) {
	runID := uuid.NewString()
	log := a.log.With().Str("run_id", runID).Str("image", state.ImageRef).Logger()
	ctx = logger.WithContext(ctx, log)

	log.Info().Msg("Analyzing receipt")
	if err := a.pipeline.Execute(ctx, state); err != nil {
		log.Error().Err(err).Msg("Receipt analysis failed")
		return nil, fmt.Errorf("Analyze: %w", err)
	}

	out := &Analysis{
		RunID:     runID,
		Image:     state.ImageRef,
		ToolCalls: state.ToolCalls,
		Usage:     state.Response.Usage,
		CostUSD:   state.Cost,
		Calls:     state.Calls,
	}
	for _, c := range state.Calls {
		if r, ok := c.(RejectedCall); ok {
			out.Rejected = append(out.Rejected, Rejection{Name: r.Name, Error: r.Err.Error()})
		}
	}

	log.Info().
		Int("tool_calls", len(out.ToolCalls)).
		Int("rejected", len(out.Rejected)).
		Msg("Receipt analyzed")
	return out, nil
}

// Executor stores transactions. *tools.Service satisfies it.
type Executor interface {
	CreateTransactions(ctx context.Context, reqs []mapper.TransactionRequest, groupTitle string) tools.Result
}

// Post executes every accepted create_transactions call, in order.
// Rejected calls are skipped; they are already reported on the Analysis.
func (a *Analyzer) Post(ctx context.Context, analysis *Analysis, exec Executor) []tools.Result {
	results := []tools.Result{}
	for _, call := range analysis.Accepted() {
		res := exec.CreateTransactions(ctx, call.Batch.Transactions, call.Batch.GroupTitle)
		if !res.Success {
			a.log.Warn().Str("run_id", analysis.RunID).Str("error", res.Error).Msg("Posting transactions failed")
		}
		results = append(results, res)
	}
	return results
}
