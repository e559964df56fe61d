// internal/handlers/export.go
package handlers

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tealeg/xlsx/v3"

	"github.com/ammerola/stockroom/internal/core/domain"
	"github.com/ammerola/stockroom/internal/core/ports"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHeaders is the header row of spreadsheet exports. The first two
// columns match what the import reads, so an export can be re-imported.
var ExportHeaders = []string{"id", "quantity", "asset_ref", "created_at", "updated_at"}

// JSONExportResponse represents the JSON export response structure
type JSONExportResponse struct {
	Inventory []*domain.InventoryItem `json:"inventory"`
	Metadata  ExportMetadata          `json:"metadata"`
}

// ExportMetadata contains metadata about the export
type ExportMetadata struct {
	ExportDate time.Time `json:"export_date"`
	TotalItems int       `json:"total_items"`
	TotalUnits int       `json:"total_units"`
	Query      string    `json:"query,omitempty"`
}

// ExportHandler handles export operations
type ExportHandler struct {
	service ports.InventoryService
	now     func() time.Time
	logger  *slog.Logger
}

// NewExportHandler creates a new export handler
func NewExportHandler(service ports.InventoryService, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{
		service: service,
		now:     time.Now,
		logger:  logger.With(slog.String("handler", "export")),
	}
}

// Export handles GET /api/v1/items/export?format=xlsx|json&q=
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query().Get("q")
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "xlsx"
	}
	if format != "xlsx" && format != "json" {
		respondError(ctx, w, http.StatusBadRequest, fmt.Sprintf("Unsupported export format %q", format))
		return
	}

	items, err := h.service.Search(ctx, query)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "failed to retrieve inventory data", err,
			slog.String("format", format))
		return
	}
	if items == nil {
		items = []*domain.InventoryItem{}
	}

	exportedAt := h.now().UTC()
	if format == "json" {
		respondJSON(w, http.StatusOK, JSONExportResponse{
			Inventory: items,
			Metadata: ExportMetadata{
				ExportDate: exportedAt,
				TotalItems: len(items),
				TotalUnits: totalUnits(items),
				Query:      query,
			},
		})
		h.logger.InfoContext(ctx, "JSON export completed", slog.Int("total_rows", len(items)))
		return
	}

	data, err := GenerateWorkbook(items)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate Excel file", slog.String("error", err.Error()))
		respondError(ctx, w, http.StatusInternalServerError, "Failed to generate Excel file")
		return
	}

	filename := fmt.Sprintf("inventory_export_%s.xlsx", exportedAt.Format("20060102_150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	if _, err := w.Write(data); err != nil {
		h.logger.ErrorContext(ctx, "failed to write Excel response", slog.String("error", err.Error()))
		return
	}

	h.logger.InfoContext(ctx, "Excel export completed",
		slog.Int("total_rows", len(items)),
		slog.String("filename", filename))
}

// GenerateWorkbook renders items as a single-sheet workbook.
func GenerateWorkbook(items []*domain.InventoryItem) ([]byte, error) {
	file := xlsx.NewFile()

	sheet, err := file.AddSheet("Inventory")
	if err != nil {
		return nil, fmt.Errorf("failed to add worksheet: %w", err)
	}

	headerRow := sheet.AddRow()
	for _, header := range ExportHeaders {
		cell := headerRow.AddCell()
		cell.Value = header
		cell.GetStyle().Font.Bold = true
		cell.GetStyle().Fill.PatternType = "solid"
		cell.GetStyle().Fill.FgColor = "CCCCCC"
	}

	for _, item := range items {
		row := sheet.AddRow()
		row.AddCell().SetString(item.ID)
		row.AddCell().SetInt(item.Quantity)
		row.AddCell().SetString(item.AssetRef)
		row.AddCell().SetString(formatTime(item.CreatedAt))
		row.AddCell().SetString(formatTime(item.UpdatedAt))
	}

	sheet.SetColWidth(1, 1, 30)
	sheet.SetColWidth(2, 2, 10)
	sheet.SetColWidth(3, 3, 60)
	sheet.SetColWidth(4, 5, 22)

	var buffer bytes.Buffer
	if err := file.Write(&buffer); err != nil {
		return nil, fmt.Errorf("failed to write Excel file to buffer: %w", err)
	}

	return buffer.Bytes(), nil
}

func totalUnits(items []*domain.InventoryItem) int {
	var n int
	for _, item := range items {
		n += item.Quantity
	}
	return n
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
