package imagecache

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"Postdeck/internal/storage"
)

// createTestJPEG creates a solid-color JPEG with the given dimensions.
func createTestJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 128, B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	require.NoError(t, err)
	return buf.Bytes()
}

// createTestPNG creates a PNG with the given dimensions. alpha selects a
// fully transparent fill to exercise flattening.
func createTestPNG(t *testing.T, width, height int, alpha bool) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill := color.RGBA{R: 64, G: 128, B: 255, A: 255}
	if alpha {
		fill = color.RGBA{}
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	err := png.Encode(&buf, img)
	require.NoError(t, err)
	return buf.Bytes()
}

// webpStub returns bytes carrying a valid WebP container signature.
// Enough for signature sniffing; not a decodable image.
func webpStub() []byte {
	return []byte("RIFF\x24\x00\x00\x00WEBPVP8 ")
}

var errSimulatedWrite = errors.New("simulated write failure")

// memStore is an in-memory ObjectStore with switchable write failures
// and a gate for holding writes open mid-flight.
type memStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failPut  bool
	putCount int
	blockCh  chan struct{}
	blocked  int
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *memStore) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	m.putCount++
	if m.failPut {
		m.mu.Unlock()
		return errSimulatedWrite
	}
	blockCh := m.blockCh
	if blockCh != nil {
		m.blocked++
	}
	m.mu.Unlock()

	if blockCh != nil {
		<-blockCh
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[key] = stored
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStore) set(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
}

func (m *memStore) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

func (m *memStore) setFailPut(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPut = fail
}

// setBlockPut gates in-flight writes: while enabled, every Put parks
// until the gate is released.
func (m *memStore) setBlockPut(block bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if block {
		if m.blockCh == nil {
			m.blockCh = make(chan struct{})
		}
		return
	}
	if m.blockCh != nil {
		close(m.blockCh)
		m.blockCh = nil
	}
}

func (m *memStore) blockedPuts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blocked
}

func (m *memStore) puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putCount
}

// waitFor polls cond until it holds or the timeout passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
