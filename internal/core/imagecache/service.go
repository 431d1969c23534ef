// Package imagecache implements the format-aware image delivery cache:
// fetching media assets from external CDNs or the internal object store,
// detecting and correcting their true byte format, caching results with
// request coalescing and negative caching, and invalidating every key
// variant when an asset is edited.
//
// The package is organized around six pieces:
//   - Sniff: byte-signature format detection, the single format authority
//   - OriginFetcher: bounded, classified, retry-free origin access
//   - FormatCorrector: re-encoding to the canonical serving format
//   - Store: coalescing in-memory cache with TTL and LRU bounds
//   - Invalidator: over-broad key enumeration and removal on edits
//   - Service: the serving-layer orchestration over all of the above
package imagecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// StoragePlatform is the platform name for dashboard-owned uploads,
// which live in the object store rather than behind an external CDN.
const StoragePlatform = "media"

// Result is the serving layer's answer for one image request.
type Result struct {
	// Data is the bytes to serve: image payload, or the placeholder when
	// Fallback is set.
	Data []byte
	// Format is the sniffed format of Data, never the declared one.
	Format Format
	// CacheHit reports whether a resident entry answered the request.
	CacheHit bool
	// Corrected reports whether the payload was re-encoded.
	Corrected bool
	// Fallback reports that the placeholder is being served.
	Fallback bool
	// ErrClass is the failure class behind a fallback, nil otherwise.
	ErrClass error
}

// Service orchestrates the cache store, origin fetcher, format corrector
// and write-back pool behind the serving layer. All dependencies are
// constructor-injected so tests run against isolated instances.
type Service struct {
	store       *Store
	fetcher     Fetcher
	corrector   Corrector
	writeback   *WriteBack
	invalidator *Invalidator
	config      Config
}

// NewService creates a Service. The write-back pool may be nil, in which
// case corrected persisted assets are served corrected but not persisted.
func NewService(store *Store, fetcher Fetcher, corrector Corrector, writeback *WriteBack, config Config) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store", ErrNilDependency)
	}
	if fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher", ErrNilDependency)
	}
	if corrector == nil {
		return nil, fmt.Errorf("%w: corrector", ErrNilDependency)
	}

	invalidator, err := NewInvalidator(store)
	if err != nil {
		return nil, err
	}

	return &Service{
		store:       store,
		fetcher:     fetcher,
		corrector:   corrector,
		writeback:   writeback,
		invalidator: invalidator,
		config:      config,
	}, nil
}

// GetImage serves one image request.
//
// Requests carrying a cache-busting marker load under a bypass key that
// is never shared with normal traffic. All origin failure classes become
// negative entries and a placeholder result; only unclassified errors
// (a dead caller context) propagate as errors.
func (s *Service) GetImage(ctx context.Context, id AssetIdentity, query url.Values) (*Result, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	key := CanonicalKey(id)
	if BypassRequested(query) {
		key = BypassKey(id, query)
	}

	entry, hit, err := s.store.GetOrLoad(ctx, key, id.String(), func(ctx context.Context) (*Entry, error) {
		return s.load(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	if entry.Kind == EntryNegative {
		return &Result{
			Data:     Placeholder(),
			Format:   CanonicalFormat,
			CacheHit: hit,
			Fallback: true,
			ErrClass: entry.ErrClass,
		}, nil
	}

	return &Result{
		Data:      entry.Payload,
		Format:    entry.Format,
		CacheHit:  hit,
		Corrected: entry.Corrected,
	}, nil
}

// load performs the origin fetch and correction for one asset and shapes
// the outcome into a cacheable entry.
func (s *Service) load(ctx context.Context, id AssetIdentity) (*Entry, error) {
	src := s.resolveSource(id)

	data, err := s.fetcher.Fetch(ctx, src)
	if err != nil {
		class := ClassifyFetchError(err)
		if class == nil {
			return nil, err
		}
		slog.Warn("[IMAGE-CACHE] origin fetch failed",
			"asset", id.String(),
			"class", class.Error(),
			"error", err,
		)
		return NewNegativeEntry(class, s.config.NegativeTTL), nil
	}

	out, format, corrected, err := s.corrector.Correct(data, DeclaredFormat(id.ImageKey))
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			slog.Warn("[IMAGE-CACHE] fetched payload is not an image",
				"asset", id.String(),
				"error", err,
			)
			return NewNegativeEntry(ErrMalformed, s.config.NegativeTTL), nil
		}
		return nil, err
	}

	// Persisted assets get their corrected bytes written back under the
	// same key so the next fetch is already correct. Off the request
	// path; a failed persist is the write-back pool's problem.
	if corrected && src.StoreKey != "" && s.writeback != nil {
		s.writeback.Enqueue(src.StoreKey, out)
		slog.Debug("[IMAGE-CACHE] scheduled write-back of corrected asset",
			"asset", id.String(),
			"store_key", src.StoreKey,
		)
	}

	return NewPositiveEntry(out, format, corrected, s.config.PositiveTTL), nil
}

// resolveSource maps an asset identity to its origin: dashboard uploads
// live in the object store, everything else behind the external CDN.
func (s *Service) resolveSource(id AssetIdentity) Source {
	if id.Platform == StoragePlatform {
		return Source{StoreKey: CanonicalKey(id)}
	}
	base := strings.TrimRight(s.config.CDNBaseURL, "/")
	return Source{URL: base + "/" +
		url.PathEscape(id.Platform) + "/" +
		url.PathEscape(id.Owner) + "/" +
		url.PathEscape(id.ImageKey)}
}

// AssetEdited is the invalidation trigger for the editor/save pipeline.
// It returns only after every cache key variant for id has been removed,
// so a read issued after the edit completes cannot see pre-edit bytes.
func (s *Service) AssetEdited(id AssetIdentity) int {
	return s.invalidator.Invalidate(id)
}
