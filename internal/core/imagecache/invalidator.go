package imagecache

import (
	"log/slog"
	"strings"
)

// Invalidator removes every cache key that could reference an asset.
// It runs synchronously on the edit path: the edit is not durable until
// Invalidate has returned, so no read issued after an observed edit can
// see pre-edit bytes.
type Invalidator struct {
	store *Store
}

// NewInvalidator creates an Invalidator over the given store.
func NewInvalidator(store *Store) (*Invalidator, error) {
	if store == nil {
		return nil, ErrNilDependency
	}
	return &Invalidator{store: store}, nil
}

// Invalidate clears every key variant for id and returns how many
// resident entries were removed.
//
// The sweep is deliberately over-broad: all derivation strategies are
// enumerated, then every resident key containing the image key's
// extension-stripped form is removed too. A false positive costs one
// cache refill; a false negative would reintroduce stale bytes.
// The identity's generation is bumped first so a fetch already in
// flight cannot reinstall pre-edit bytes after this call returns.
func (inv *Invalidator) Invalidate(id AssetIdentity) int {
	identity := id.String()
	inv.store.BumpGeneration(identity)

	removed := 0
	for _, key := range DerivedKeys(id) {
		if inv.store.Remove(key) {
			removed++
		}
	}

	needle := StripExt(id.ImageKey)
	if needle == "" {
		needle = id.ImageKey
	}
	for _, key := range inv.store.Keys() {
		if strings.Contains(key, needle) && inv.store.Remove(key) {
			removed++
		}
	}

	slog.Info("[IMAGE-CACHE] invalidated asset",
		"asset", identity,
		"entries_removed", removed,
	)
	return removed
}
