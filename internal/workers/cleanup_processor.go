// internal/workers/cleanup_processor.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// CleanupProcessor handles cleanup tasks
type CleanupProcessor struct {
	uploadDir string
	maxAge    time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewCleanupProcessor creates a new cleanup processor. Only files carrying
// ImportFilePrefix directly inside uploadDir are considered, since uploadDir
// is often the shared system temp directory.
func NewCleanupProcessor(uploadDir string, maxAge time.Duration, logger *slog.Logger) *CleanupProcessor {
	return &CleanupProcessor{
		uploadDir: uploadDir,
		maxAge:    maxAge,
		now:       time.Now,
		logger:    logger.With(slog.String("processor", "cleanup")),
	}
}

// CleanupTempFiles removes import uploads older than maxAge that no worker
// picked up.
func (p *CleanupProcessor) CleanupTempFiles(ctx context.Context, _ *asynq.Task) error {
	p.logger.InfoContext(ctx, "cleaning up temp files", slog.String("dir", p.uploadDir))

	entries, err := os.ReadDir(p.uploadDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read upload directory: %w", err)
	}

	cutoff := p.now().Add(-p.maxAge)
	var deletedCount int
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), ImportFilePrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(p.uploadDir, entry.Name())
		if err := os.Remove(path); err != nil {
			p.logger.WarnContext(ctx, "failed to delete temp file",
				slog.String("file", path),
				slog.String("error", err.Error()))
			continue
		}
		deletedCount++
	}

	p.logger.InfoContext(ctx, "temp files cleaned up",
		slog.Int("files_deleted", deletedCount))

	return nil
}
