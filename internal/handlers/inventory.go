// internal/handlers/inventory.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/ammerola/stockroom/internal/core/domain"
	"github.com/ammerola/stockroom/internal/core/ports"
)

// DefaultMaxAssetBytes bounds multipart uploads when no limit is configured.
const DefaultMaxAssetBytes = 10 << 20

// InventoryHandler handles inventory-related HTTP requests
type InventoryHandler struct {
	service       ports.InventoryService
	maxAssetBytes int64
	logger        *slog.Logger
}

// NewInventoryHandler creates a new inventory handler. maxAssetBytes caps the
// asset accepted on create; zero means DefaultMaxAssetBytes.
func NewInventoryHandler(service ports.InventoryService, maxAssetBytes int64, logger *slog.Logger) *InventoryHandler {
	if maxAssetBytes <= 0 {
		maxAssetBytes = DefaultMaxAssetBytes
	}
	return &InventoryHandler{
		service:       service,
		maxAssetBytes: maxAssetBytes,
		logger:        logger.With(slog.String("handler", "inventory")),
	}
}

// ItemResponse is an item as returned by mutations. Exists is false once the
// last unit was removed, or when there was nothing to remove.
type ItemResponse struct {
	domain.InventoryItem
	Exists bool `json:"exists"`
}

// ListResponse is the body of GET /api/v1/items.
type ListResponse struct {
	Items []*domain.InventoryItem `json:"items"`
	Count int                     `json:"count"`
	Query string                  `json:"query,omitempty"`
}

// CreateItemRequest is the JSON form of POST /api/v1/items.
type CreateItemRequest struct {
	ID string `json:"id"`
}

// ListItems handles GET /api/v1/items?q=
func (h *InventoryHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query().Get("q")

	items, err := h.service.Search(ctx, query)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "failed to list inventory items", err,
			slog.String("query", query))
		return
	}
	if items == nil {
		items = []*domain.InventoryItem{}
	}

	respondJSON(w, http.StatusOK, ListResponse{Items: items, Count: len(items), Query: query})
}

// CreateItem handles POST /api/v1/items. Multipart requests carry an "id"
// field and an optional "asset" file; other requests send CreateItemRequest
// as JSON. Responds 201 when the item was created and 200 when an existing
// item was incremented.
func (h *InventoryHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, asset, status, msg := h.parseCreate(w, r)
	if status != 0 {
		h.logger.WarnContext(ctx, "rejected create request", slog.String("reason", msg))
		respondError(ctx, w, status, msg)
		return
	}

	item, err := h.service.AddItem(ctx, id, asset)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "failed to add inventory item", err,
			slog.String("item_id", id))
		return
	}

	status = http.StatusOK
	if item.Quantity == 1 && item.Version == 1 {
		status = http.StatusCreated
	}

	h.logger.InfoContext(ctx, "inventory item added",
		slog.String("item_id", item.ID),
		slog.Int("quantity", item.Quantity),
		slog.Bool("has_asset", item.HasAsset()))

	respondJSON(w, status, ItemResponse{InventoryItem: *item, Exists: true})
}

// IncrementItem handles POST /api/v1/items/{id}/increment
func (h *InventoryHandler) IncrementItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	item, err := h.service.AddItem(ctx, id, nil)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "failed to increment inventory item", err,
			slog.String("item_id", id))
		return
	}

	respondJSON(w, http.StatusOK, ItemResponse{InventoryItem: *item, Exists: true})
}

// DecrementItem handles POST /api/v1/items/{id}/decrement. Removing an
// absent item is not an error.
func (h *InventoryHandler) DecrementItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	item, err := h.service.RemoveItem(ctx, id)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "failed to decrement inventory item", err,
			slog.String("item_id", id))
		return
	}

	if item == nil {
		respondJSON(w, http.StatusOK, ItemResponse{InventoryItem: domain.InventoryItem{ID: id}})
		return
	}

	if item.Quantity == 0 {
		h.logger.InfoContext(ctx, "inventory item removed", slog.String("item_id", id))
	}
	respondJSON(w, http.StatusOK, ItemResponse{InventoryItem: *item, Exists: item.Quantity > 0})
}

// parseCreate extracts the id and optional asset. A non-zero status means the
// request was rejected with msg.
func (h *InventoryHandler) parseCreate(w http.ResponseWriter, r *http.Request) (string, *domain.Asset, int, string) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	// Room for the form fields on top of the asset itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxAssetBytes+1<<20)

	if mediaType != "multipart/form-data" {
		var req CreateItemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", nil, http.StatusBadRequest, "Invalid request body"
		}
		return req.ID, nil, 0, ""
	}

	if err := r.ParseMultipartForm(h.maxAssetBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, http.StatusRequestEntityTooLarge, "Request too large"
		}
		return "", nil, http.StatusBadRequest, "Invalid multipart form"
	}
	defer r.MultipartForm.RemoveAll()

	id := r.FormValue("id")

	file, header, err := r.FormFile("asset")
	if errors.Is(err, http.ErrMissingFile) {
		return id, nil, 0, ""
	}
	if err != nil {
		return "", nil, http.StatusBadRequest, "Invalid asset upload"
	}
	defer file.Close()

	if header.Size > h.maxAssetBytes {
		return "", nil, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Asset exceeds %d bytes", h.maxAssetBytes)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, http.StatusBadRequest, "Failed to read asset"
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = http.DetectContentType(data)
	}

	return id, &domain.Asset{Name: header.Filename, ContentType: contentType, Data: data}, 0, ""
}
