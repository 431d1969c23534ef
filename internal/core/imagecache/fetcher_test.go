package imagecache

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOriginFetcher_FetchURL_Success(t *testing.T) {
	img := createTestJPEG(t, 20, 20)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(img)
	}))
	defer server.Close()

	fetcher := NewOriginFetcher(newMemStore(), 5*time.Second, 1)

	data, err := fetcher.Fetch(context.Background(), Source{URL: server.URL + "/img.jpg"})
	require.NoError(t, err)
	assert.True(t, bytes.Equal(img, data))
}

func TestOriginFetcher_FetchURL_StatusClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"forbidden", http.StatusForbidden, ErrForbidden},
		{"server error", http.StatusInternalServerError, ErrUpstream},
		{"bad gateway", http.StatusBadGateway, ErrUpstream},
		{"redirect not followed to image", http.StatusTeapot, ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			fetcher := NewOriginFetcher(newMemStore(), 5*time.Second, 1)

			_, err := fetcher.Fetch(context.Background(), Source{URL: server.URL})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOriginFetcher_FetchURL_HTMLErrorPageIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("<!DOCTYPE html><html><body>Image not available</body></html>"))
	}))
	defer server.Close()

	fetcher := NewOriginFetcher(newMemStore(), 5*time.Second, 1)

	_, err := fetcher.Fetch(context.Background(), Source{URL: server.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestOriginFetcher_FetchURL_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	fetcher := NewOriginFetcher(newMemStore(), 50*time.Millisecond, 1)

	_, err := fetcher.Fetch(context.Background(), Source{URL: server.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestOriginFetcher_FetchURL_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	fetcher := NewOriginFetcher(newMemStore(), 5*time.Second, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := fetcher.Fetch(ctx, Source{URL: server.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestOriginFetcher_FetchURL_TooLargeByContentLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "20971520")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	fetcher := NewOriginFetcher(newMemStore(), 5*time.Second, 1)

	_, err := fetcher.Fetch(context.Background(), Source{URL: server.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestOriginFetcher_FetchURL_TooLargeStreaming(t *testing.T) {
	// No Content-Length up front: the server streams past the cap.
	oversized := make([]byte, 1024*1024+512)
	copy(oversized, []byte{0xFF, 0xD8, 0xFF, 0xE0})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		w.Write(oversized)
	}))
	defer server.Close()

	fetcher := NewOriginFetcher(newMemStore(), 5*time.Second, 1)

	_, err := fetcher.Fetch(context.Background(), Source{URL: server.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestOriginFetcher_FetchURL_ConnectionRefused(t *testing.T) {
	fetcher := NewOriginFetcher(newMemStore(), 1*time.Second, 1)

	_, err := fetcher.Fetch(context.Background(), Source{URL: "http://127.0.0.1:1/img.jpg"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestOriginFetcher_FetchStore_Success(t *testing.T) {
	store := newMemStore()
	img := createTestPNG(t, 10, 10, false)
	store.set("media/acct_1/avatar.png", img)

	fetcher := NewOriginFetcher(store, 5*time.Second, 1)

	data, err := fetcher.Fetch(context.Background(), Source{StoreKey: "media/acct_1/avatar.png"})
	require.NoError(t, err)
	assert.True(t, bytes.Equal(img, data))
}

func TestOriginFetcher_FetchStore_Missing(t *testing.T) {
	fetcher := NewOriginFetcher(newMemStore(), 5*time.Second, 1)

	_, err := fetcher.Fetch(context.Background(), Source{StoreKey: "media/acct_1/gone.png"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOriginFetcher_FetchStore_TooLarge(t *testing.T) {
	store := newMemStore()
	store.set("media/acct_1/huge.jpg", make([]byte, 2*1024*1024))

	fetcher := NewOriginFetcher(store, 5*time.Second, 1)

	_, err := fetcher.Fetch(context.Background(), Source{StoreKey: "media/acct_1/huge.jpg"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooLarge)
}
