// internal/handlers/router.go
package handlers

import "net/http"

// APIPrefix is the path prefix of the versioned API.
const APIPrefix = "/api/v1"

// Router groups the handlers served by the API binary. Nil handlers are
// left unrouted.
type Router struct {
	Inventory *InventoryHandler
	Export    *ExportHandler
	Import    *ImportHandler
	Health    *HealthHandler
	// Assets serves the local storage driver's files under AssetsPath.
	Assets     *AssetHandler
	AssetsPath string
}

// Register adds every route to mux using method-specific patterns.
func (rt *Router) Register(mux *http.ServeMux) {
	if rt.Health != nil {
		mux.HandleFunc("GET /health", rt.Health.Health)
		mux.HandleFunc("GET /ready", rt.Health.Readiness)
		mux.HandleFunc("GET "+APIPrefix+"/health", rt.Health.Health)
	}

	if rt.Inventory != nil {
		mux.HandleFunc("GET "+APIPrefix+"/items", rt.Inventory.ListItems)
		mux.HandleFunc("POST "+APIPrefix+"/items", rt.Inventory.CreateItem)
		mux.HandleFunc("POST "+APIPrefix+"/items/{id}/increment", rt.Inventory.IncrementItem)
		mux.HandleFunc("POST "+APIPrefix+"/items/{id}/decrement", rt.Inventory.DecrementItem)
	}

	if rt.Export != nil {
		mux.HandleFunc("GET "+APIPrefix+"/items/export", rt.Export.Export)
	}

	if rt.Import != nil {
		mux.HandleFunc("POST "+APIPrefix+"/import/excel", rt.Import.ImportExcel)
		mux.HandleFunc("GET "+APIPrefix+"/import/jobs/{id}", rt.Import.ImportStatus)
	}

	if rt.Assets != nil {
		prefix := rt.AssetsPath
		if prefix == "" {
			prefix = "/assets"
		}
		mux.HandleFunc("GET "+prefix+"/{path...}", rt.Assets.ServeAsset)
	}
}
