package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/papermes/internal/imagestore"
	"github.com/dvloznov/papermes/internal/mapper"
	"github.com/dvloznov/papermes/internal/receipt"
	"github.com/dvloznov/papermes/internal/tools"
)

type mockAnalyzer struct {
	AnalyzeFunc      func(ctx context.Context, ref string) (*receipt.Analysis, error)
	AnalyzeImageFunc func(ctx context.Context, img *imagestore.Image) (*receipt.Analysis, error)
	PostFunc         func(ctx context.Context, a *receipt.Analysis, exec receipt.Executor) []tools.Result
}

func (m *mockAnalyzer) Analyze(ctx context.Context, ref string) (*receipt.Analysis, error) {
	return m.AnalyzeFunc(ctx, ref)
}

func (m *mockAnalyzer) AnalyzeImage(ctx context.Context, img *imagestore.Image) (*receipt.Analysis, error) {
	return m.AnalyzeImageFunc(ctx, img)
}

func (m *mockAnalyzer) Post(ctx context.Context, a *receipt.Analysis, exec receipt.Executor) []tools.Result {
	if m.PostFunc != nil {
		return m.PostFunc(ctx, a, exec)
	}
	return []tools.Result{}
}

type nopExecutor struct{}

func (nopExecutor) CreateTransactions(context.Context, []mapper.TransactionRequest, string) tools.Result {
	return tools.Result{Success: true}
}

func TestAnalyzeReceiptHandler_ByURI(t *testing.T) {
	an := &mockAnalyzer{AnalyzeFunc: func(_ context.Context, ref string) (*receipt.Analysis, error) {
		assert.Equal(t, "gs://b/r.jpg", ref)
		return &receipt.Analysis{RunID: "run-1"}, nil
	}}
	job := &AnalyzeReceiptJob{JobID: "j1", ImageURI: "gs://b/r.jpg"}

	err := NewAnalyzeReceiptHandler(an, nopExecutor{}, zerolog.Nop())(context.Background(), job)

	require.NoError(t, err)
	require.NotNil(t, job.Analysis)
	assert.Equal(t, "run-1", job.Analysis.RunID)
	assert.Empty(t, job.Results)
}

func TestAnalyzeReceiptHandler_InlineImageAndPost(t *testing.T) {
	an := &mockAnalyzer{
		AnalyzeImageFunc: func(_ context.Context, img *imagestore.Image) (*receipt.Analysis, error) {
			assert.Equal(t, "upload.png", img.Name)
			assert.Equal(t, "image/png", img.MIMEType)
			return &receipt.Analysis{}, nil
		},
		PostFunc: func(context.Context, *receipt.Analysis, receipt.Executor) []tools.Result {
			return []tools.Result{{Success: true, TransactionID: "5"}}
		},
	}
	job := &AnalyzeReceiptJob{JobID: "j2", ImageName: "upload.png", ImageData: []byte("\x89PNG\r\n\x1a\n"), Post: true}

	err := NewAnalyzeReceiptHandler(an, nopExecutor{}, zerolog.Nop())(context.Background(), job)

	require.NoError(t, err)
	require.Len(t, job.Results, 1)
	assert.Equal(t, "5", job.Results[0].TransactionID)
}

func TestAnalyzeReceiptHandler_PostFailureFailsJob(t *testing.T) {
	an := &mockAnalyzer{
		AnalyzeFunc: func(context.Context, string) (*receipt.Analysis, error) { return &receipt.Analysis{}, nil },
		PostFunc: func(context.Context, *receipt.Analysis, receipt.Executor) []tools.Result {
			return []tools.Result{{Error: "Firefly API Error: Duplicate of transaction #1."}}
		},
	}
	job := &AnalyzeReceiptJob{JobID: "j3", ImageURI: "/tmp/r.jpg", Post: true}

	err := NewAnalyzeReceiptHandler(an, nopExecutor{}, zerolog.Nop())(context.Background(), job)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Duplicate")
	assert.NotNil(t, job.Analysis)
}

func TestAnalyzeReceiptHandler_AnalysisError(t *testing.T) {
	an := &mockAnalyzer{AnalyzeFunc: func(context.Context, string) (*receipt.Analysis, error) {
		return nil, errors.New("oracle down")
	}}
	job := &AnalyzeReceiptJob{JobID: "j4", ImageURI: "/tmp/r.jpg"}

	err := NewAnalyzeReceiptHandler(an, nopExecutor{}, zerolog.Nop())(context.Background(), job)

	assert.EqualError(t, err, "oracle down")
	assert.Nil(t, job.Analysis)
}

type otherJob struct{}

func (otherJob) GetID() string       { return "x" }
func (otherJob) GetType() JobType     { return "other" }
func (otherJob) GetStatus() JobStatus { return JobStatusPending }

func TestAnalyzeReceiptHandler_WrongType(t *testing.T) {
	err := NewAnalyzeReceiptHandler(&mockAnalyzer{}, nopExecutor{}, zerolog.Nop())(context.Background(), otherJob{})
	assert.Error(t, err)
}
