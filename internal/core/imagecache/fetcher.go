package imagecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"Postdeck/internal/storage"
)

// Source names one origin for image bytes: an external CDN URL or an
// object-store key. Exactly one field is set.
type Source struct {
	URL      string
	StoreKey string
}

// Fetcher retrieves raw image bytes from an origin. Implementations do
// not retry; retry policy belongs to the caller (the negative-cache TTL
// provides the cooling-off period).
type Fetcher interface {
	Fetch(ctx context.Context, src Source) ([]byte, error)
}

// DefaultMaxSourceSizeMB is the maximum source image size if not configured.
const DefaultMaxSourceSizeMB = 10

// OriginFetcher implements Fetcher against external CDNs and the object
// store, with a bounded timeout and strict failure classification.
type OriginFetcher struct {
	client       *http.Client
	store        storage.ObjectStore
	maxSizeBytes int64
}

// NewOriginFetcher creates an OriginFetcher. maxSizeMB caps the source
// image size in megabytes (0 or negative uses the default).
func NewOriginFetcher(store storage.ObjectStore, timeout time.Duration, maxSizeMB int) *OriginFetcher {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxSourceSizeMB
	}
	return &OriginFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		store:        store,
		maxSizeBytes: int64(maxSizeMB) * 1024 * 1024,
	}
}

// Fetch retrieves the bytes for src. Failures are classified into the
// package error taxonomy:
//   - ErrNotFound for 404 responses and missing store objects
//   - ErrForbidden for 403 responses
//   - ErrUpstream for 5xx responses and transport failures
//   - ErrTimeout for client timeouts and cancelled contexts
//   - ErrMalformed for 200 responses whose body carries no image signature
//   - ErrTooLarge when the body exceeds the configured size cap
func (f *OriginFetcher) Fetch(ctx context.Context, src Source) ([]byte, error) {
	if src.StoreKey != "" {
		return f.fetchStore(ctx, src.StoreKey)
	}
	return f.fetchURL(ctx, src.URL)
}

func (f *OriginFetcher) fetchStore(ctx context.Context, key string) ([]byte, error) {
	data, err := f.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: store key %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: store read: %v", ErrUpstream, err)
	}
	if int64(len(data)) > f.maxSizeBytes {
		return nil, fmt.Errorf("%w: stored object is %d bytes, limit %d", ErrTooLarge, len(data), f.maxSizeBytes)
	}
	return data, nil
}

func (f *OriginFetcher) fetchURL(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrUpstream, err)
	}
	req.Header.Set("User-Agent", "Postdeck-ImageCache/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		if isTimeoutError(err) {
			return nil, fmt.Errorf("%w: request timed out", ErrTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Handled below.
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	case resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", ErrForbidden, rawURL)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUpstream, resp.StatusCode)
	}

	if resp.ContentLength > 0 && resp.ContentLength > f.maxSizeBytes {
		return nil, fmt.Errorf("%w: content length %d exceeds maximum %d bytes",
			ErrTooLarge, resp.ContentLength, f.maxSizeBytes)
	}

	// Limit the read even without a Content-Length header. Reading one
	// byte past the cap detects oversized bodies.
	limited := io.LimitReader(resp.Body, f.maxSizeBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		if ctx.Err() != nil || isTimeoutError(err) {
			return nil, fmt.Errorf("%w: reading response body", ErrTimeout)
		}
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrUpstream, err)
	}
	if int64(len(data)) > f.maxSizeBytes {
		return nil, fmt.Errorf("%w: response body exceeds maximum %d bytes", ErrTooLarge, f.maxSizeBytes)
	}

	// A 200 status is not proof of success: third-party CDNs serve HTML
	// error pages with 200. Only the byte signature decides.
	if Sniff(data) == FormatUnknown {
		return nil, fmt.Errorf("%w: 200 response with no image signature", ErrMalformed)
	}

	return data, nil
}

// isTimeoutError checks if the error is a timeout-related error.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if te, ok := err.(interface{ Timeout() bool }); ok {
		return te.Timeout()
	}
	var wrapped interface{ Timeout() bool }
	if errors.As(err, &wrapped) {
		return wrapped.Timeout()
	}
	return false
}
