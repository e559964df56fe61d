// internal/workers/tasks.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockroom/internal/pkg/logger"
)

const (
	TypeImportExcel       = "inventory:import_excel"
	TypeSweepOrphanAssets = "assets:sweep_orphans"
	TypeCleanupTempFiles  = "maintenance:cleanup_temp"
)

// ImportFilePrefix marks spreadsheet uploads waiting for a worker, so the
// temp cleanup only ever touches files this service wrote.
const ImportFilePrefix = "stockroom-import-"

// ImportJobPayload is the payload for TypeImportExcel tasks.
type ImportJobPayload struct {
	JobID    string `json:"job_id"`
	FilePath string `json:"file_path"`
	Filename string `json:"filename,omitempty"`
}

// ImportJobResult is written back to the task once an import finishes.
type ImportJobResult struct {
	Rows           int      `json:"rows"`
	UnitsAdded     int      `json:"units_added"`
	RowsFailed     int      `json:"rows_failed"`
	Errors         []string `json:"errors,omitempty"`
	ProcessingTime string   `json:"processing_time"`
}

// NewImportTask builds an import task. Imports add units, so replaying one
// would double count; the task is never retried.
func NewImportTask(payload ImportJobPayload) (*asynq.Task, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal import payload: %w", err)
	}
	return asynq.NewTask(TypeImportExcel, b,
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(24*time.Hour),
	), nil
}

// Scheduler is the part of *asynq.Scheduler used to register periodic work.
type Scheduler interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

// RegisterPeriodicTasks schedules the orphan sweep and the temp cleanup.
func RegisterPeriodicTasks(s Scheduler, sweepSpec, cleanupSpec string) error {
	if _, err := s.Register(sweepSpec, asynq.NewTask(TypeSweepOrphanAssets, nil),
		asynq.Queue("low"), asynq.MaxRetry(1), asynq.Unique(time.Hour)); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", TypeSweepOrphanAssets, err)
	}
	if _, err := s.Register(cleanupSpec, asynq.NewTask(TypeCleanupTempFiles, nil),
		asynq.Queue("low"), asynq.MaxRetry(1)); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", TypeCleanupTempFiles, err)
	}
	return nil
}

// LoggingMiddleware tags the context with the task id and logs each task's
// outcome.
func LoggingMiddleware(log *slog.Logger) asynq.MiddlewareFunc {
	log = log.With(slog.String("component", "tasks"))
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			if id, ok := asynq.GetTaskID(ctx); ok {
				ctx = logger.WithTaskID(ctx, id)
			}

			start := time.Now()
			err := next.ProcessTask(ctx, t)

			attrs := []any{
				slog.String("type", t.Type()),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				log.ErrorContext(ctx, "task failed", append(attrs, slog.String("error", err.Error()))...)
			} else {
				log.InfoContext(ctx, "task completed", attrs...)
			}
			return err
		})
	}
}
