// internal/handlers/assets.go
package handlers

import (
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
)

// AssetHandler serves assets written by the local storage driver.
type AssetHandler struct {
	fs     http.Handler
	root   http.Dir
	logger *slog.Logger
}

// NewAssetHandler serves files under root.
func NewAssetHandler(root string, logger *slog.Logger) *AssetHandler {
	dir := http.Dir(root)
	return &AssetHandler{
		fs:     http.FileServer(dir),
		root:   dir,
		logger: logger.With(slog.String("handler", "assets")),
	}
}

// ServeAsset handles GET /assets/{path...}. Directories and in-flight
// uploads are not served.
func (h *AssetHandler) ServeAsset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := path.Clean("/" + r.PathValue("path"))

	if strings.HasPrefix(path.Base(name), ".upload-") {
		respondError(ctx, w, http.StatusNotFound, "Asset not found")
		return
	}

	f, err := h.root.Open(name)
	if err != nil {
		if !os.IsNotExist(err) {
			h.logger.WarnContext(ctx, "failed to open asset",
				slog.String("path", name),
				slog.String("error", err.Error()))
		}
		respondError(ctx, w, http.StatusNotFound, "Asset not found")
		return
	}
	info, err := f.Stat()
	f.Close()
	if err != nil || info.IsDir() {
		respondError(ctx, w, http.StatusNotFound, "Asset not found")
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")

	r2 := r.Clone(ctx)
	r2.URL.Path = name
	r2.URL.RawPath = ""
	h.fs.ServeHTTP(w, r2)
}
