package receipt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/papermes/internal/accounts"
	"github.com/dvloznov/papermes/internal/apperrors"
	"github.com/dvloznov/papermes/internal/imagestore"
	"github.com/dvloznov/papermes/internal/mapper"
	"github.com/dvloznov/papermes/internal/oracle"
	"github.com/dvloznov/papermes/internal/tools"
)

type mockImages struct {
	FetchFunc func(ctx context.Context, ref string) (*imagestore.Image, error)
}

func (m *mockImages) Fetch(ctx context.Context, ref string) (*imagestore.Image, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, ref)
	}
	return &imagestore.Image{Name: "receipt.jpg", MIMEType: "image/jpeg", Data: []byte("jpeg")}, nil
}

type mockAccounts struct{}

func (mockAccounts) List(context.Context) []accounts.Account {
	return []accounts.Account{{ID: "1", Name: "Checking Account", Type: "asset"}}
}

type mockPrompts struct{}

func (mockPrompts) DeveloperBookkeepingContext(accts []accounts.Account) (string, error) {
	return "developer with " + accts[0].Name, nil
}

func (mockPrompts) UserAnalyzeReceipt() (string, error) { return "user", nil }

type mockOracle struct {
	InvokeFunc func(ctx context.Context, req oracle.Request) (*oracle.Response, error)
	requests   []oracle.Request
}

func (m *mockOracle) Invoke(ctx context.Context, req oracle.Request) (*oracle.Response, error) {
	m.requests = append(m.requests, req)
	return m.InvokeFunc(ctx, req)
}

type mockExecutor struct {
	calls [][]mapper.TransactionRequest
}

func (m *mockExecutor) CreateTransactions(_ context.Context, reqs []mapper.TransactionRequest, _ string) tools.Result {
	m.calls = append(m.calls, reqs)
	return tools.Result{Success: true, TransactionID: "9"}
}

func respond(calls ...oracle.FunctionCall) func(context.Context, oracle.Request) (*oracle.Response, error) {
	return func(context.Context, oracle.Request) (*oracle.Response, error) {
		return &oracle.Response{Calls: calls, Usage: oracle.Usage{InputTokens: 1000, OutputTokens: 500}}, nil
	}
}

func newAnalyzer(images ImageFetcher, o oracle.Oracle) *Analyzer {
	return NewAnalyzer(Deps{
		Images:   images,
		Accounts: mockAccounts{},
		Prompts:  mockPrompts{},
		Oracle:   o,
		Pricing:  oracle.DefaultPricing(),
		Logger:   zerolog.Nop(),
	})
}

func TestAnalyze_ForcesWithdrawal(t *testing.T) {
	o := &mockOracle{InvokeFunc: respond(oracle.FunctionCall{
		Name: tools.CreateTransactionsName,
		Args: map[string]any{
			"transactions": []any{
				map[string]any{"amount": "15.99", "description": "Coffee", "source_account": "1", "destination_account": "Unknown"},
				map[string]any{"type": "deposit", "amount": "8.50", "description": "Bread", "source_account": "1", "destination_account": "Bakery"},
			},
		},
	})}

	a, err := newAnalyzer(&mockImages{}, o).Analyze(context.Background(), "/tmp/receipt.jpg")
	require.NoError(t, err)

	require.Len(t, a.ToolCalls, 1)
	txs := a.ToolCalls[0].Args["transactions"].([]any)
	for _, tx := range txs {
		assert.Equal(t, "withdrawal", tx.(map[string]any)["type"])
	}

	accepted := a.Accepted()
	require.Len(t, accepted, 1)
	require.Len(t, accepted[0].Batch.Transactions, 2)
	assert.Equal(t, "withdrawal", accepted[0].Batch.Transactions[1].Type)
	assert.Empty(t, a.Rejected)
	assert.Equal(t, "0.006", a.CostUSD.String())
	assert.NotEmpty(t, a.RunID)
}

func TestAnalyze_OracleRequest(t *testing.T) {
	o := &mockOracle{InvokeFunc: respond()}

	_, err := newAnalyzer(&mockImages{}, o).Analyze(context.Background(), "/tmp/receipt.jpg")
	require.NoError(t, err)

	require.Len(t, o.requests, 1)
	req := o.requests[0]
	assert.Equal(t, "developer with Checking Account", req.DeveloperPrompt)
	assert.Equal(t, "user", req.UserPrompt)
	assert.Equal(t, "image/jpeg", req.Image.MIMEType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("jpeg")), req.Image.Base64)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, tools.CreateTransactionsName, req.Tools[0].Name)
}

func TestAnalyze_ZeroCalls(t *testing.T) {
	o := &mockOracle{InvokeFunc: respond()}
	exec := &mockExecutor{}
	an := newAnalyzer(&mockImages{}, o)

	a, err := an.Analyze(context.Background(), "/tmp/receipt.jpg")
	require.NoError(t, err)

	assert.NotNil(t, a.ToolCalls)
	assert.Empty(t, a.ToolCalls)
	assert.Empty(t, an.Post(context.Background(), a, exec))
	assert.Empty(t, exec.calls)
}

func TestAnalyze_RejectsUnknownAndMalformed(t *testing.T) {
	o := &mockOracle{InvokeFunc: respond(
		oracle.FunctionCall{Name: "delete_everything", Args: map[string]any{}},
		oracle.FunctionCall{Name: tools.CreateTransactionsName, Args: map[string]any{"transactions": "oops"}},
	)}

	a, err := newAnalyzer(&mockImages{}, o).Analyze(context.Background(), "/tmp/receipt.jpg")
	require.NoError(t, err)

	require.Len(t, a.Calls, 2)
	rejected, ok := a.Calls[0].(RejectedCall)
	require.True(t, ok)
	var unknown *UnknownToolError
	assert.True(t, errors.As(rejected.Err, &unknown))
	assert.Equal(t, "delete_everything", unknown.Name)

	malformed, ok := a.Calls[1].(RejectedCall)
	require.True(t, ok)
	assert.True(t, errors.Is(malformed.Err, apperrors.ErrValidation))

	assert.Len(t, a.Rejected, 2)
	assert.Empty(t, a.Accepted())
}

func TestAnalyze_OracleErrorIsFatal(t *testing.T) {
	o := &mockOracle{InvokeFunc: func(context.Context, oracle.Request) (*oracle.Response, error) {
		return nil, errors.New("quota exceeded")
	}}

	a, err := newAnalyzer(&mockImages{}, o).Analyze(context.Background(), "/tmp/receipt.jpg")

	require.Error(t, err)
	assert.Nil(t, a)
	assert.Contains(t, err.Error(), "pipeline step 3 failed")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestAnalyze_MissingImage(t *testing.T) {
	images := &mockImages{FetchFunc: func(_ context.Context, ref string) (*imagestore.Image, error) {
		return nil, &apperrors.NotFoundError{Resource: "image", Path: ref}
	}}
	o := &mockOracle{InvokeFunc: respond()}

	_, err := newAnalyzer(images, o).Analyze(context.Background(), "/nope.jpg")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Empty(t, o.requests)
}

func TestAnalyzeImage_SkipsFetch(t *testing.T) {
	images := &mockImages{FetchFunc: func(context.Context, string) (*imagestore.Image, error) {
		t.Fatal("fetch must not be called for preloaded images")
		return nil, nil
	}}
	o := &mockOracle{InvokeFunc: respond()}

	a, err := newAnalyzer(images, o).AnalyzeImage(context.Background(), &imagestore.Image{Name: "upload.png", MIMEType: "image/png", Data: []byte("png")})

	require.NoError(t, err)
	assert.Equal(t, "upload.png", a.Image)
	assert.Equal(t, "image/png", o.requests[0].Image.MIMEType)
}

func TestPost_ExecutesAcceptedOnly(t *testing.T) {
	o := &mockOracle{InvokeFunc: respond(
		oracle.FunctionCall{Name: tools.CreateTransactionsName, Args: map[string]any{
			"transactions": []any{map[string]any{"amount": "3.20", "description": "Tea", "source_account": "1", "destination_account": "Cafe"}},
		}},
		oracle.FunctionCall{Name: "unknown_tool"},
	)}
	an := newAnalyzer(&mockImages{}, o)
	a, err := an.Analyze(context.Background(), "/tmp/receipt.jpg")
	require.NoError(t, err)

	exec := &mockExecutor{}
	results := an.Post(context.Background(), a, exec)

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	require.Len(t, exec.calls, 1)
	assert.Equal(t, "Tea", exec.calls[0][0].Description)
}

func TestAnalyze_NilOracleResponse(t *testing.T) {
	o := &mockOracle{InvokeFunc: func(context.Context, oracle.Request) (*oracle.Response, error) {
		return nil, nil
	}}

	var a *Analysis
	var err error
	require.NotPanics(t, func() {
		a, err = newAnalyzer(&mockImages{}, o).Analyze(context.Background(), "/tmp/receipt.jpg")
	})

	require.Error(t, err)
	assert.Nil(t, a)
	assert.Contains(t, err.Error(), "pipeline step 3 failed")
	assert.Contains(t, err.Error(), "no response")
}

func TestAnalyze_LogsOracleCost(t *testing.T) {
	var buf bytes.Buffer
	an := NewAnalyzer(Deps{
		Images:   &mockImages{},
		Accounts: mockAccounts{},
		Prompts:  mockPrompts{},
		Oracle:   &mockOracle{InvokeFunc: respond()},
		Pricing:  oracle.DefaultPricing(),
		Logger:   zerolog.New(&buf),
	})

	_, err := an.Analyze(context.Background(), "/tmp/receipt.jpg")
	require.NoError(t, err)

	var found map[string]any
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var line map[string]any
		require.NoError(t, dec.Decode(&line))
		if line["message"] == "Oracle invoked" {
			found = line
		}
	}
	require.NotNil(t, found, "no oracle cost line in %s", buf.String())

	want := oracle.DefaultPricing().Cost(oracle.Usage{InputTokens: 1000, OutputTokens: 500})
	assert.EqualValues(t, 1000, found["input_tokens"])
	assert.EqualValues(t, 500, found["output_tokens"])
	assert.Equal(t, want.String(), found["cost_usd"])
	assert.NotEmpty(t, found["run_id"])
}
