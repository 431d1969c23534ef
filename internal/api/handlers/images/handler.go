// Package images provides HTTP handlers for the image delivery cache.
// It serves cached, format-corrected media assets and exposes the
// internal asset-edited invalidation trigger.
package images

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"Postdeck/internal/core/imagecache"
)

// Service defines the interface for the image cache service.
// Implemented by imagecache.Service.
type Service interface {
	// GetImage retrieves an image for the given asset identity, honoring
	// any cache-bypass markers in the query.
	GetImage(ctx context.Context, id imagecache.AssetIdentity, query url.Values) (*imagecache.Result, error)

	// AssetEdited invalidates every cache key variant for the asset and
	// returns the number of entries removed.
	AssetEdited(id imagecache.AssetIdentity) int
}

// Handler handles HTTP requests for the image cache.
type Handler struct {
	service Service
}

// NewHandler creates a new image cache handler.
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// HandleImage handles GET /image/{platform}/{owner}/{imageKey}.
//
// The Content-Type always reflects the sniffed byte format, never the
// key's extension. Diagnostic headers: X-Cache (HIT/MISS),
// X-Image-Corrected when a re-encode happened, X-Image-Fallback with a
// failure class when the placeholder is served.
func (h *Handler) HandleImage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIdentity(r)
	if !ok {
		writeErrorResponse(w, http.StatusBadRequest, "missing required parameters")
		return
	}

	result, err := h.service.GetImage(r.Context(), id, r.URL.Query())
	if err != nil {
		if errors.Is(err, imagecache.ErrEmptyParameter) {
			writeErrorResponse(w, http.StatusBadRequest, "missing required parameters")
			return
		}
		if r.Context().Err() != nil {
			// Client went away; nothing useful to write.
			return
		}
		slog.Error("[IMAGE-CACHE] unhandled service error",
			"asset", id.String(),
			"error", err,
		)
		writeErrorResponse(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if result.Fallback {
		w.Header().Set("Content-Type", result.Format.ContentType())
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Cache", cacheStatus(result))
		w.Header().Set("X-Image-Fallback", fallbackClass(result.ErrClass))
		w.WriteHeader(http.StatusOK)
		writeBody(w, result.Data, id)
		return
	}

	// The ETag covers the payload, so an edited asset naturally gets a
	// new validator once invalidation lands.
	etag := fmt.Sprintf(`"%x"`, sha256.Sum256(result.Data))
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", result.Format.ContentType())
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("ETag", etag)
	w.Header().Set("X-Cache", cacheStatus(result))
	if result.Corrected {
		w.Header().Set("X-Image-Corrected", "true")
	}
	w.WriteHeader(http.StatusOK)
	writeBody(w, result.Data, id)
}

// HandleAssetEdited handles POST /internal/image/{platform}/{owner}/{imageKey}/edited,
// the invalidation trigger emitted by the editor/save pipeline. The 204
// response is written only after invalidation has completed.
func (h *Handler) HandleAssetEdited(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIdentity(r)
	if !ok {
		writeErrorResponse(w, http.StatusBadRequest, "missing required parameters")
		return
	}

	removed := h.service.AssetEdited(id)
	slog.Info("[IMAGE-CACHE] asset edited",
		"asset", id.String(),
		"entries_removed", removed,
	)
	w.WriteHeader(http.StatusNoContent)
}

func parseIdentity(r *http.Request) (imagecache.AssetIdentity, bool) {
	id := imagecache.AssetIdentity{
		Platform: chi.URLParam(r, "platform"),
		Owner:    chi.URLParam(r, "owner"),
		ImageKey: chi.URLParam(r, "imageKey"),
	}
	if id.Validate() != nil {
		return imagecache.AssetIdentity{}, false
	}
	return id, true
}

func cacheStatus(result *imagecache.Result) string {
	if result.CacheHit {
		return "HIT"
	}
	return "MISS"
}

// fallbackClass maps a failure class onto a short diagnostic token for
// the operational dashboards.
func fallbackClass(errClass error) string {
	switch {
	case errors.Is(errClass, imagecache.ErrNotFound):
		return "not_found"
	case errors.Is(errClass, imagecache.ErrForbidden):
		return "forbidden"
	case errors.Is(errClass, imagecache.ErrUpstream):
		return "upstream_error"
	case errors.Is(errClass, imagecache.ErrTimeout):
		return "timeout"
	case errors.Is(errClass, imagecache.ErrMalformed):
		return "malformed"
	case errors.Is(errClass, imagecache.ErrTooLarge):
		return "too_large"
	default:
		return "unknown"
	}
}

func writeBody(w http.ResponseWriter, data []byte, id imagecache.AssetIdentity) {
	if _, err := w.Write(data); err != nil {
		slog.Warn("[IMAGE-CACHE] failed to write image response",
			"asset", id.String(),
			"error", err,
		)
	}
}

// writeErrorResponse writes a plain text error response. The expected
// response body is binary image data, so errors stay plain text.
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(message)); err != nil {
		slog.Warn("[IMAGE-CACHE] failed to write error response",
			"status", status,
			"error", err,
		)
	}
}
