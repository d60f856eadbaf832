package jobs

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/papermes/internal/imagestore"
	"github.com/dvloznov/papermes/internal/receipt"
	"github.com/dvloznov/papermes/internal/tools"
)

// Analyzer runs receipt analyses. *receipt.Analyzer satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, ref string) (*receipt.Analysis, error)
	AnalyzeImage(ctx context.Context, img *imagestore.Image) (*receipt.Analysis, error)
	Post(ctx context.Context, analysis *receipt.Analysis, exec receipt.Executor) []tools.Result
}

// NewAnalyzeReceiptHandler returns the JobHandler that executes AnalyzeReceiptJobs.
// The analysis is stored on the job; with Post set, accepted calls are then stored
// in the ledger through exec.
func NewAnalyzeReceiptHandler(an Analyzer, exec receipt.Executor, log zerolog.Logger) JobHandler {
	return func(ctx context.Context, job Job) error {
		j, ok := job.(*AnalyzeReceiptJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		jobLog := log.With().Str("job_id", j.JobID).Str("image", j.ImageURI).Logger()
		jobLog.Info().Bool("post", j.Post).Msg("Processing analyze job")

		var (
			analysis *receipt.Analysis
			err      error
		)
		if len(j.ImageData) > 0 {
			analysis, err = an.AnalyzeImage(ctx, &imagestore.Image{
				Name:     j.ImageName,
				MIMEType: imagestore.DetectMIME(j.ImageData),
				Data:     j.ImageData,
			})
		} else {
			analysis, err = an.Analyze(ctx, j.ImageURI)
		}
		if err != nil {
			jobLog.Error().Err(err).Msg("Receipt analysis failed")
			return err
		}
		j.Analysis = analysis

		if j.Post {
			j.Results = an.Post(ctx, analysis, exec)
			for _, res := range j.Results {
				if !res.Success {
					return fmt.Errorf("posting transactions: %s", res.Error)
				}
			}
		}

		jobLog.Info().
			Int("tool_calls", len(analysis.ToolCalls)).
			Int("posted", len(j.Results)).
			Msg("Analyze job completed successfully")
		return nil
	}
}
