// internal/handlers/import.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/ammerola/stockroom/internal/workers"
)

// ImportQueue is the queue import tasks are enqueued on.
const ImportQueue = "default"

// TaskEnqueuer is the part of *asynq.Client the import handler needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskInspector is the part of *asynq.Inspector used for job status.
type TaskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
}

// ImportJobResponse describes a queued or finished import job.
type ImportJobResponse struct {
	JobID       string                   `json:"job_id"`
	Status      string                   `json:"status"`
	Message     string                   `json:"message,omitempty"`
	Error       string                   `json:"error,omitempty"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
	Result      *workers.ImportJobResult `json:"result,omitempty"`
}

// ImportHandler handles import operations
type ImportHandler struct {
	client      TaskEnqueuer
	inspector   TaskInspector
	logger      *slog.Logger
	maxFileSize int64
	uploadDir   string
}

// NewImportHandler creates a new import handler. inspector may be nil, in
// which case job status is unavailable.
func NewImportHandler(client TaskEnqueuer, inspector TaskInspector, logger *slog.Logger, maxFileSize int64, uploadDir string) *ImportHandler {
	return &ImportHandler{
		client:      client,
		inspector:   inspector,
		logger:      logger.With(slog.String("handler", "import")),
		maxFileSize: maxFileSize,
		uploadDir:   uploadDir,
	}
}

// ImportExcel handles POST /api/v1/import/excel. The spreadsheet is stored
// in the upload directory and a worker applies it; the response carries the
// job id to poll.
func (h *ImportHandler) ImportExcel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(ctx, w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		respondError(ctx, w, http.StatusBadRequest, "Failed to parse form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, "File is required")
		return
	}
	defer file.Close()

	if !isSpreadsheet(header.Filename, header.Header.Get("Content-Type")) {
		respondError(ctx, w, http.StatusBadRequest, "Only Excel files are allowed")
		return
	}
	if header.Size > h.maxFileSize {
		respondError(ctx, w, http.StatusRequestEntityTooLarge, "File too large")
		return
	}

	jobID := uuid.New().String()
	tempFile, err := h.saveUpload(jobID, file)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to save upload", slog.String("error", err.Error()))
		respondError(ctx, w, http.StatusInternalServerError, "Failed to save upload")
		return
	}

	task, err := workers.NewImportTask(workers.ImportJobPayload{
		JobID:    jobID,
		FilePath: tempFile,
		Filename: header.Filename,
	})
	if err == nil {
		_, err = h.client.EnqueueContext(ctx, task, asynq.Queue(ImportQueue), asynq.TaskID(jobID))
	}
	if err != nil {
		os.Remove(tempFile)
		h.logger.ErrorContext(ctx, "failed to enqueue task",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
		respondError(ctx, w, http.StatusServiceUnavailable, "Failed to queue import job")
		return
	}

	h.logger.InfoContext(ctx, "Excel import queued",
		slog.String("job_id", jobID),
		slog.String("filename", header.Filename),
		slog.Int64("size", header.Size))

	respondJSON(w, http.StatusAccepted, ImportJobResponse{
		JobID:   jobID,
		Status:  "queued",
		Message: "Excel import has been queued for processing",
	})
}

// ImportStatus handles GET /api/v1/import/jobs/{id}
func (h *ImportHandler) ImportStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := r.PathValue("id")

	if h.inspector == nil {
		respondError(ctx, w, http.StatusServiceUnavailable, "Job status is unavailable")
		return
	}
	if _, err := uuid.Parse(jobID); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "Invalid job ID format")
		return
	}

	info, err := h.inspector.GetTaskInfo(ImportQueue, jobID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Import job not found")
			return
		}
		h.logger.ErrorContext(ctx, "failed to get job status",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
		respondError(ctx, w, http.StatusInternalServerError, "Failed to get job status")
		return
	}

	resp := ImportJobResponse{
		JobID:  jobID,
		Status: info.State.String(),
		Error:  info.LastErr,
	}
	if !info.CompletedAt.IsZero() {
		completed := info.CompletedAt.UTC()
		resp.CompletedAt = &completed
	}
	if len(info.Result) > 0 {
		var result workers.ImportJobResult
		if err := json.Unmarshal(info.Result, &result); err == nil {
			resp.Result = &result
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (h *ImportHandler) saveUpload(jobID string, src io.Reader) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	path := filepath.Join(h.uploadDir, workers.ImportFilePrefix+jobID+".xlsx")
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return path, nil
}

func isSpreadsheet(filename, contentType string) bool {
	switch contentType {
	case xlsxContentType:
		return true
	case "", "application/octet-stream", "application/zip":
		return strings.EqualFold(filepath.Ext(filename), ".xlsx")
	}
	return false
}
