// Package recovery persists failed or interrupted ingestion work to
// disk and replays it later.
package recovery

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/metocean/harvester/internal/crawl"
)

// RecoverySuffix is the fixed file name suffix recovery batches are
// globbed by.
const RecoverySuffix = "failed_ingestions.gob"

const timestampFormat = "2006-01-02T15-04-05.000000000"

func init() {
	// Descriptor metadata is a map of provider-native values; the
	// concrete types crossing the gob boundary must be registered.
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register([]string{})
	gob.Register(time.Time{})
}

// Settings is the snapshot of the ingestion configuration that
// produced a batch, replayed alongside its items.
type Settings struct {
	Provider string
	Update   bool
	Workers  int
}

// FailedItem is one descriptor whose processing failed, with the
// error classification recorded at failure time.
type FailedItem struct {
	Info     crawl.DatasetInfo
	Kind     crawl.ErrorKind
	Message  string
	FailedAt time.Time
}

// Batch is the unit of recovery: the ordered failures of one run plus
// the crawler cursor if the run was interrupted.
type Batch struct {
	CreatedAt time.Time
	Settings  Settings
	// CrawlerState is non-nil when the batch was produced by an
	// interruption rather than item-level failures.
	CrawlerState *crawl.State
	Items        []FailedItem
}

// BatchPath builds the file path for a batch created at the given
// time.
func BatchPath(dir string, createdAt time.Time) string {
	return filepath.Join(dir, createdAt.UTC().Format(timestampFormat)+"_"+RecoverySuffix)
}

// WriteBatch serializes a batch to its timestamped file, creating the
// directory if needed.
func WriteBatch(dir string, batch Batch) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create recovery directory: %w", err)
	}
	path := BatchPath(dir, batch.CreatedAt)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create recovery batch: %w", err)
	}
	defer file.Close() //nolint:errcheck // checked through Encode and Sync

	if err := gob.NewEncoder(file).Encode(batch); err != nil {
		return "", fmt.Errorf("encode recovery batch: %w", err)
	}
	if err := file.Sync(); err != nil {
		return "", fmt.Errorf("sync recovery batch: %w", err)
	}
	return path, nil
}

// LoadBatch reads a batch file and drops the items recorded with a
// non-retryable error: replaying those would fail identically.
func LoadBatch(path string) (Batch, error) {
	file, err := os.Open(path)
	if err != nil {
		return Batch{}, fmt.Errorf("open recovery batch: %w", err)
	}
	defer file.Close() //nolint:errcheck // read-only

	var batch Batch
	if err := gob.NewDecoder(file).Decode(&batch); err != nil {
		return Batch{}, fmt.Errorf("decode recovery batch %s: %w", path, err)
	}
	retryable := batch.Items[:0]
	for _, item := range batch.Items {
		if item.Kind.Retryable() {
			retryable = append(retryable, item)
		}
	}
	batch.Items = retryable
	return batch, nil
}

// ListBatches returns the batch files under dir, oldest first.
func ListBatches(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+RecoverySuffix))
	if err != nil {
		return nil, fmt.Errorf("list recovery batches: %w", err)
	}
	return paths, nil
}
