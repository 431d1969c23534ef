package routes

import (
	"github.com/go-chi/chi/v5"

	imagehandlers "Postdeck/internal/api/handlers/images"
)

// RegisterImageRoutes registers the image cache endpoints on the router.
//
// Routes:
//   - GET  /image/{platform}/{owner}/{imageKey} — serve a cached,
//     format-corrected image; query parameters t/ts/v/force/edited/nocache
//     (or any timestamp-like value) bypass the shared cache key.
//   - POST /internal/image/{platform}/{owner}/{imageKey}/edited — the
//     asset-edited invalidation trigger; internal callers only.
func RegisterImageRoutes(r chi.Router, handler *imagehandlers.Handler) {
	r.Get("/image/{platform}/{owner}/{imageKey}", handler.HandleImage)
	r.Post("/internal/image/{platform}/{owner}/{imageKey}/edited", handler.HandleAssetEdited)
}
