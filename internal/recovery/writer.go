package recovery

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/metocean/harvester/internal/crawl"
	"github.com/metocean/harvester/internal/metrics"
)

// maxItemsPerBatch bounds the size of one batch file; the writer
// rotates to a new file beyond it.
const maxItemsPerBatch = 500000

// Writer accumulates failed items and writes them out as a recovery
// batch. It implements the failure sink consumed by the crawler
// iterator and is safe for concurrent use.
type Writer struct {
	dir      string
	settings Settings
	logger   *zap.Logger

	mu    sync.Mutex
	batch Batch
}

// NewWriter builds a failure sink writing batches under dir.
func NewWriter(dir string, settings Settings, logger *zap.Logger) *Writer {
	metrics.Init()
	return &Writer{
		dir:      dir,
		settings: settings,
		logger:   logger,
		batch:    Batch{CreatedAt: time.Now(), Settings: settings},
	}
}

// Record appends one failed item to the pending batch.
func (w *Writer) Record(info crawl.DatasetInfo, kind crawl.ErrorKind, message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batch.Items = append(w.batch.Items, FailedItem{
		Info:     info,
		Kind:     kind,
		Message:  message,
		FailedAt: time.Now(),
	})
	if len(w.batch.Items) >= maxItemsPerBatch {
		return w.flushLocked()
	}
	return nil
}

// CaptureState attaches the interrupted crawler's cursor to the
// pending batch.
func (w *Writer) CaptureState(state crawl.State) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batch.CrawlerState = &state
	return nil
}

// Flush writes the pending batch to disk. A batch with no items and
// no captured state writes nothing.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *Writer) flushLocked() error {
	if len(w.batch.Items) == 0 && w.batch.CrawlerState == nil {
		return nil
	}
	path, err := WriteBatch(w.dir, w.batch)
	if err != nil {
		return err
	}
	metrics.ObserveRecoveryBatch("written")
	w.logger.Info("dumped failed items",
		zap.String("path", path), zap.Int("items", len(w.batch.Items)))
	w.batch = Batch{CreatedAt: time.Now(), Settings: w.settings}
	return nil
}
