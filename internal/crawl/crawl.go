// Package crawl implements stateful, resumable crawlers over
// hierarchical and paginated dataset repositories. Crawlers yield
// DatasetInfo descriptors which identify one harvestable resource;
// normalizing a descriptor's raw attributes into a catalog record is a
// second, separately retryable step.
package crawl

import (
	"context"
	"errors"

	"github.com/metocean/harvester/internal/catalog"
)

// DatasetInfo identifies one harvestable resource plus the raw
// provider-native attributes gathered while crawling. It is immutable
// once yielded; equality is by value.
type DatasetInfo struct {
	URL      string
	Metadata map[string]any
}

// Equal reports whether two descriptors identify the same resource
// with the same raw attributes.
func (d DatasetInfo) Equal(other DatasetInfo) bool {
	if d.URL != other.URL || len(d.Metadata) != len(other.Metadata) {
		return false
	}
	for key, value := range d.Metadata {
		if other.Metadata[key] != value {
			return false
		}
	}
	return true
}

// State is the serializable cursor of a crawler: the frontier of
// not-yet-expanded folders or the current page offset, plus the buffer
// of descriptors ready to be yielded. Live connection handles are
// never part of the state; they are re-established lazily after
// RestoreState.
type State struct {
	// Frontier holds the paths of folders that still need expanding
	// (tree-walking crawlers).
	Frontier []string
	// Offset is the current page offset (paginated crawlers).
	Offset int
	// Buffer holds descriptors produced but not yet yielded.
	Buffer []DatasetInfo
}

// ErrDone is returned by Next when the resource space is exhausted.
var ErrDone = errors.New("crawler exhausted")

// ErrFiltered is returned by GetNormalizedAttributes when the
// normalized record is excluded by the search criteria. Filtered items
// are skipped silently rather than treated as failures.
var ErrFiltered = errors.New("record excluded by search criteria")

// Crawler is a stateful, restartable enumerator over a resource space.
//
// SetInitialState resets the cursor to the root of the resource space
// and clears the buffer; it must be idempotent so the same crawler can
// run multiple full passes. Next yields exactly one descriptor per
// call, draining the buffer first and expanding the frontier until a
// descriptor is available or the space is exhausted (ErrDone).
type Crawler interface {
	SetInitialState(ctx context.Context) error
	Next(ctx context.Context) (DatasetInfo, error)
	ExportState() State
	RestoreState(state State)
	// GetNormalizedAttributes completes the descriptor's metadata
	// (fetching from the provider if needed) and normalizes it into a
	// catalog record.
	GetNormalizedAttributes(ctx context.Context, info DatasetInfo) (catalog.NormalizedRecord, error)
}

// FailureSink receives items whose processing failed with a retryable
// error, or items captured during an interruption, so that a later
// recovery pass can replay them.
type FailureSink interface {
	Record(item DatasetInfo, kind ErrorKind, message string) error
	// CaptureState attaches the crawler's cursor at interruption time
	// to the persisted batch.
	CaptureState(state State) error
	Flush() error
}
