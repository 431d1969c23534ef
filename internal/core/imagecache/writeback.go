package imagecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"Postdeck/internal/storage"
)

// ErrInvalidWorkerCount is returned when the pool is sized non-positively.
var ErrInvalidWorkerCount = errors.New("write-back worker count must be positive")

// DefaultWriteBackTimeout bounds a single object-store write.
const DefaultWriteBackTimeout = 15 * time.Second

type writeTask struct {
	key  string
	data []byte
}

// WriteBack persists corrected bytes to the object store off the request
// path. A failed persist is logged and counted, never surfaced to the
// request that produced the correction; a later request for the same
// asset re-corrects and re-enqueues.
type WriteBack struct {
	store   storage.ObjectStore
	tasks   chan writeTask
	timeout time.Duration

	wg        sync.WaitGroup
	closeOnce sync.Once

	failures atomic.Int64
	dropped  atomic.Int64
}

// NewWriteBack starts a pool of workers draining a queue of queueSize
// pending writes. timeout bounds each store write (0 uses the default).
func NewWriteBack(store storage.ObjectStore, workers, queueSize int, timeout time.Duration) (*WriteBack, error) {
	if store == nil {
		return nil, ErrNilDependency
	}
	if workers <= 0 {
		return nil, ErrInvalidWorkerCount
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	if timeout <= 0 {
		timeout = DefaultWriteBackTimeout
	}

	w := &WriteBack{
		store:   store,
		tasks:   make(chan writeTask, queueSize),
		timeout: timeout,
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.run()
	}
	return w, nil
}

// Enqueue hands a corrected asset to the pool. It never blocks: when the
// queue is full the task is dropped and counted, and the asset stays
// uncorrected in the store until a later request re-corrects it.
// Must not be called after Close.
func (w *WriteBack) Enqueue(key string, data []byte) bool {
	select {
	case w.tasks <- writeTask{key: key, data: data}:
		return true
	default:
		w.dropped.Add(1)
		slog.Warn("[IMAGE-CACHE] write-back queue full, dropping task",
			"key", key,
			"total_dropped", w.dropped.Load(),
		)
		return false
	}
}

func (w *WriteBack) run() {
	defer w.wg.Done()
	for task := range w.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		err := w.store.Put(ctx, task.key, task.data)
		cancel()

		if err != nil {
			w.failures.Add(1)
			slog.Error("[IMAGE-CACHE] write-back failed",
				"key", task.key,
				"error", fmt.Errorf("%w: %v", ErrStorageWrite, err),
				"total_write_back_errors", w.failures.Load(),
			)
			continue
		}
		slog.Debug("[IMAGE-CACHE] persisted corrected asset",
			"key", task.key,
			"size_bytes", len(task.data),
		)
	}
}

// Close drains the queue and stops the workers.
func (w *WriteBack) Close() {
	w.closeOnce.Do(func() {
		close(w.tasks)
	})
	w.wg.Wait()
}

// Failures returns the total number of failed store writes.
func (w *WriteBack) Failures() int64 {
	return w.failures.Load()
}

// Dropped returns the total number of tasks dropped on a full queue.
func (w *WriteBack) Dropped() int64 {
	return w.dropped.Load()
}
