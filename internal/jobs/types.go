package jobs

import (
	"context"
	"time"

	"github.com/dvloznov/papermes/internal/receipt"
	"github.com/dvloznov/papermes/internal/tools"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeAnalyzeReceipt represents a receipt analysis job.
	JobTypeAnalyzeReceipt JobType = "analyze_receipt"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
)

// AnalyzeReceiptJob analyzes one receipt image and optionally posts the result.
// Jobs are not retried: a second run would bill the model again and could
// store the same transactions twice.
type AnalyzeReceiptJob struct {
	JobID string `json:"job_id"`

	// ImageURI is a gs:// URI, or a local path for CLI runs. Empty when the image
	// was uploaded inline.
	ImageURI string `json:"image_uri,omitempty"`

	// ImageName is the uploaded file name for inline images.
	ImageName string `json:"image_name,omitempty"`

	// ImageData holds inline image bytes until the job runs.
	ImageData []byte `json:"-"`

	// Post stores accepted transactions in the ledger after analysis.
	Post bool `json:"post"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`

	// Analysis is set once the oracle has answered.
	Analysis *receipt.Analysis `json:"analysis,omitempty"`

	// Results holds one create_transactions outcome per posted call.
	Results []tools.Result `json:"results,omitempty"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *AnalyzeReceiptJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *AnalyzeReceiptJob) GetType() JobType {
	return JobTypeAnalyzeReceipt
}

// GetStatus implements the Job interface.
func (j *AnalyzeReceiptJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishAnalyzeReceipt publishes a receipt analysis job.
	PublishAnalyzeReceipt(ctx context.Context, job *AnalyzeReceiptJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// A returned error marks the job failed.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *AnalyzeReceiptJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*AnalyzeReceiptJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*AnalyzeReceiptJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// ImageURI filters jobs by image reference.
	ImageURI string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
