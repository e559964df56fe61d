// internal/workers/excel_processor.go
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/tealeg/xlsx/v3"

	"github.com/ammerola/stockroom/internal/core/ports"
)

// MaxUnitsPerRow caps the quantity column so a typo cannot queue millions of
// AddItem calls.
const MaxUnitsPerRow = 10000

// ImportRow is one parsed spreadsheet line.
type ImportRow struct {
	Line     int
	ID       string
	Quantity int
}

// RowError reports a line that could not be parsed or applied.
type RowError struct {
	Line int
	ID   string
	Err  error
}

func (e RowError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d (%s): %v", e.Line, e.ID, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// ImportResult summarises an import run.
type ImportResult struct {
	Rows       int
	UnitsAdded int
	Errors     []RowError
}

// Failed reports whether any row failed.
func (r *ImportResult) Failed() bool {
	return len(r.Errors) > 0
}

// ReadImportRows opens the workbook at path and parses its first sheet.
func ReadImportRows(path string) ([]ImportRow, []RowError, error) {
	file, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	return parseWorkbook(file)
}

// ParseImportWorkbook parses an in-memory workbook.
func ParseImportWorkbook(data []byte) ([]ImportRow, []RowError, error) {
	file, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	return parseWorkbook(file)
}

// parseWorkbook reads column A as the item id and column B as the number of
// units, defaulting to 1. A first row whose A cell reads "id" is a header.
// Blank lines are skipped.
func parseWorkbook(file *xlsx.File) ([]ImportRow, []RowError, error) {
	if len(file.Sheets) == 0 {
		return nil, nil, nil
	}

	var (
		rows    []ImportRow
		invalid []RowError
	)

	err := file.Sheets[0].ForEachRow(func(r *xlsx.Row) error {
		line := r.GetCoordinate() + 1

		id := cellString(r, 0)
		qty := strings.TrimSpace(cellString(r, 1))

		if line == 1 && strings.EqualFold(strings.TrimSpace(id), "id") {
			return nil
		}
		if strings.TrimSpace(id) == "" && qty == "" {
			return nil
		}
		if strings.TrimSpace(id) == "" {
			invalid = append(invalid, RowError{Line: line, Err: errors.New("missing id")})
			return nil
		}

		n := 1
		if qty != "" {
			f, err := strconv.ParseFloat(qty, 64)
			if err != nil || f != float64(int(f)) || f < 1 || f > MaxUnitsPerRow {
				invalid = append(invalid, RowError{
					Line: line,
					ID:   id,
					Err:  fmt.Errorf("invalid quantity %q", qty),
				})
				return nil
			}
			n = int(f)
		}

		rows = append(rows, ImportRow{Line: line, ID: id, Quantity: n})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to process Excel rows: %w", err)
	}

	return rows, invalid, nil
}

// cellString returns the cell text. Ids keep their whitespace since it is
// significant.
func cellString(r *xlsx.Row, i int) string {
	c := r.GetCell(i)
	if c == nil {
		return ""
	}
	s, err := c.FormattedValue()
	if err != nil {
		return c.Value
	}
	return s
}

// ApplyImportRows adds each row's units one AddItem call at a time. A failing
// row is recorded and the rest continue; context cancellation stops the run.
func ApplyImportRows(ctx context.Context, svc ports.InventoryService, rows []ImportRow) (*ImportResult, error) {
	result := &ImportResult{Rows: len(rows)}

	for _, row := range rows {
		for i := 0; i < row.Quantity; i++ {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			if _, err := svc.AddItem(ctx, row.ID, nil); err != nil {
				result.Errors = append(result.Errors, RowError{Line: row.Line, ID: row.ID, Err: err})
				break
			}
			result.UnitsAdded++
		}
	}

	return result, nil
}

// ExcelProcessor handles spreadsheet import tasks
type ExcelProcessor struct {
	service ports.InventoryService
	logger  *slog.Logger
}

// NewExcelProcessor creates a new Excel processor
func NewExcelProcessor(service ports.InventoryService, logger *slog.Logger) *ExcelProcessor {
	return &ExcelProcessor{
		service: service,
		logger:  logger.With(slog.String("processor", "excel")),
	}
}

// ProcessImport imports the uploaded workbook named in the task payload. The
// upload is removed once read. Imports are not idempotent, so every failure
// skips retry.
func (p *ExcelProcessor) ProcessImport(ctx context.Context, t *asynq.Task) error {
	start := time.Now()

	var payload ImportJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.FilePath == "" {
		return fmt.Errorf("import payload has no file path: %w", asynq.SkipRetry)
	}

	p.logger.InfoContext(ctx, "processing Excel file",
		slog.String("job_id", payload.JobID),
		slog.String("file_path", payload.FilePath),
		slog.String("filename", payload.Filename))

	rows, invalid, err := ReadImportRows(payload.FilePath)
	p.removeUpload(ctx, payload.FilePath)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	result, err := ApplyImportRows(ctx, p.service, rows)
	result.Errors = append(invalid, result.Errors...)
	p.writeResult(ctx, t, result, time.Since(start))

	if err != nil {
		return fmt.Errorf("import %s interrupted after %d units: %v: %w",
			payload.JobID, result.UnitsAdded, err, asynq.SkipRetry)
	}

	p.logger.InfoContext(ctx, "Excel processing completed",
		slog.String("job_id", payload.JobID),
		slog.Int("rows", result.Rows),
		slog.Int("units_added", result.UnitsAdded),
		slog.Int("rows_failed", len(result.Errors)))

	if result.Failed() {
		return fmt.Errorf("import %s: %d rows failed, first: %v: %w",
			payload.JobID, len(result.Errors), result.Errors[0], asynq.SkipRetry)
	}
	return nil
}

func (p *ExcelProcessor) removeUpload(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.WarnContext(ctx, "failed to remove import upload",
			slog.String("file_path", path),
			slog.String("error", err.Error()))
	}
}

func (p *ExcelProcessor) writeResult(ctx context.Context, t *asynq.Task, result *ImportResult, took time.Duration) {
	w := t.ResultWriter()
	if w == nil {
		return
	}

	out := ImportJobResult{
		Rows:           result.Rows,
		UnitsAdded:     result.UnitsAdded,
		RowsFailed:     len(result.Errors),
		ProcessingTime: took.String(),
	}
	for _, e := range result.Errors {
		out.Errors = append(out.Errors, e.Error())
	}

	b, err := json.Marshal(out)
	if err == nil {
		_, err = w.Write(b)
	}
	if err != nil {
		p.logger.WarnContext(ctx, "failed to write import result", slog.String("error", err.Error()))
	}
}
