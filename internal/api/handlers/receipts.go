package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/papermes/internal/api/middleware"
	"github.com/dvloznov/papermes/internal/apperrors"
	"github.com/dvloznov/papermes/internal/imagestore"
	"github.com/dvloznov/papermes/internal/jobs"
)

// MaxUploadBytes caps multipart receipt uploads.
const MaxUploadBytes = 20 << 20

// Uploader stores an uploaded image and returns its gs:// URI.
// *imagestore.Store satisfies it.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

// ReceiptsHandler handles receipt analysis endpoints.
type ReceiptsHandler struct {
	publisher jobs.Publisher
	uploader  Uploader
	log       zerolog.Logger
}

// NewReceiptsHandler creates a receipts handler. A nil uploader keeps
// uploaded images in the job instead of Cloud Storage.
func NewReceiptsHandler(publisher jobs.Publisher, uploader Uploader, log zerolog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{
		publisher: publisher,
		uploader:  uploader,
		log:       log,
	}
}

// Analyze handles POST /api/receipts/analyze
// Accepts either multipart/form-data with an "image" file (and optional "post"
// field) or JSON {"image_uri": "gs://...", "post": bool}.
func (h *ReceiptsHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var (
		job *jobs.AnalyzeReceiptJob
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		job, err = h.jobFromUpload(w, r)
	} else {
		job, err = jobFromJSON(r)
	}
	if err != nil {
		middleware.WriteErr(w, err)
		return
	}

	imageURI := job.ImageURI
	if err := h.publisher.PublishAnalyzeReceipt(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue analyze job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue analyze job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("image", imageURI).Msg("Analyze job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":    job.JobID,
		"image_uri": imageURI,
		"status":    jobs.JobStatusPending,
	})
}

func jobFromJSON(r *http.Request) (*jobs.AnalyzeReceiptJob, error) {
	var req struct {
		ImageURI string `json:"image_uri"`
		Post     bool   `json:"post"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, apperrors.NewValidationError("body", "Invalid request body")
	}
	if strings.TrimSpace(req.ImageURI) == "" {
		return nil, apperrors.NewValidationError("image_uri", "image_uri is required")
	}
	// Local paths are only accepted from the CLI.
	if !imagestore.IsGCSURI(req.ImageURI) {
		return nil, apperrors.NewValidationError("image_uri", "image_uri must be a gs:// URI")
	}
	if _, _, err := imagestore.ParseGCSURI(req.ImageURI); err != nil {
		return nil, apperrors.NewValidationError("image_uri", "image_uri must be gs://bucket/object")
	}
	return &jobs.AnalyzeReceiptJob{ImageURI: req.ImageURI, Post: req.Post}, nil
}

func (h *ReceiptsHandler) jobFromUpload(w http.ResponseWriter, r *http.Request) (*jobs.AnalyzeReceiptJob, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		return nil, apperrors.NewValidationError("image", "Invalid multipart upload: "+err.Error())
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, apperrors.NewValidationError("image", "image file is required")
	}
	defer file.Close()

	post, _ := strconv.ParseBool(r.FormValue("post"))
	filename := filepath.Base(header.Filename)

	if h.uploader != nil {
		uri, err := h.uploader.Upload(r.Context(), filename, file)
		if err != nil {
			h.log.Error().Err(err).Str("filename", filename).Msg("Failed to upload receipt")
			return nil, err
		}
		return &jobs.AnalyzeReceiptJob{ImageURI: uri, ImageName: filename, Post: post}, nil
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, apperrors.NewValidationError("image", "Failed to read image")
	}
	return &jobs.AnalyzeReceiptJob{ImageName: filename, ImageData: data, Post: post}, nil
}
