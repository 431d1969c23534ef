package imagecache

import (
	"net/url"
	"path"
	"strings"
)

// AssetIdentity is the stable logical identity of an image. ImageKey is
// an opaque locator chosen by the upstream producer; its extension is not
// trusted to describe the actual bytes. An edit replaces bytes under the
// same identity, it never creates a new one.
type AssetIdentity struct {
	Platform string
	Owner    string
	ImageKey string
}

// String returns the canonical identity string.
func (id AssetIdentity) String() string {
	return id.Platform + "/" + id.Owner + "/" + id.ImageKey
}

// Validate checks that all identity components are present.
func (id AssetIdentity) Validate() error {
	if id.Platform == "" || id.Owner == "" || id.ImageKey == "" {
		return ErrEmptyParameter
	}
	return nil
}

// KeyStrategy is one key-derivation convention used by producers.
// Strategies are consulted in order by both the serving layer and the
// invalidator; keeping them in one enumerable list replaces the ad hoc
// "try every filename pattern" string matching that used to be scattered
// across call sites.
type KeyStrategy struct {
	Name   string
	Derive func(AssetIdentity) string
}

// keyStrategies lists every key convention observed in the producer
// ecosystem, newest first. The canonical form is what current producers
// emit; the rest are legacy conventions that can still appear in flight.
var keyStrategies = []KeyStrategy{
	{
		Name: "canonical",
		Derive: func(id AssetIdentity) string {
			return id.Platform + "/" + id.Owner + "/" + id.ImageKey
		},
	},
	{
		Name: "flat-underscore",
		Derive: func(id AssetIdentity) string {
			return id.Platform + "_" + id.Owner + "_" + id.ImageKey
		},
	},
	{
		Name: "owner-scoped",
		Derive: func(id AssetIdentity) string {
			return id.Owner + "/" + id.ImageKey
		},
	},
	{
		Name: "canonical-noext",
		Derive: func(id AssetIdentity) string {
			return id.Platform + "/" + id.Owner + "/" + StripExt(id.ImageKey)
		},
	},
}

// CanonicalKey returns the cache key current producers use for id.
func CanonicalKey(id AssetIdentity) string {
	return keyStrategies[0].Derive(id)
}

// DerivedKeys returns every key form that could reference id, one per
// strategy, deduplicated, in strategy order.
func DerivedKeys(id AssetIdentity) []string {
	keys := make([]string, 0, len(keyStrategies))
	seen := make(map[string]struct{}, len(keyStrategies))
	for _, strat := range keyStrategies {
		key := strat.Derive(id)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// StripExt returns the image key without its extension. Keys without an
// extension are returned unchanged.
func StripExt(imageKey string) string {
	ext := path.Ext(imageKey)
	if ext == "" || ext == imageKey {
		return imageKey
	}
	return strings.TrimSuffix(imageKey, ext)
}

// bypassParams are the recognized cache-busting query parameter names.
var bypassParams = map[string]struct{}{
	"t":       {},
	"ts":      {},
	"v":       {},
	"force":   {},
	"edited":  {},
	"nocache": {},
}

// BypassRequested reports whether the query carries any cache-busting
// marker: a recognized parameter name, or any value that looks like a
// unix timestamp.
func BypassRequested(query url.Values) bool {
	for name, values := range query {
		if _, ok := bypassParams[strings.ToLower(name)]; ok {
			return true
		}
		for _, v := range values {
			if timestampLike(v) {
				return true
			}
		}
	}
	return false
}

// timestampLike reports whether s looks like a unix timestamp in seconds
// or milliseconds (10+ digits).
func timestampLike(s string) bool {
	if len(s) < 10 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// BypassKey returns a cache key for a cache-bypassing request. It is
// never shared with the canonical key, so bypass traffic cannot be
// intermingled with normal traffic, but it still contains the image key
// as a substring so the invalidator's resident-key sweep clears it.
func BypassKey(id AssetIdentity, query url.Values) string {
	return CanonicalKey(id) + "!bypass?" + query.Encode()
}
