package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/metocean/harvester/internal/catalog"
	"github.com/metocean/harvester/internal/crawl"
	"github.com/metocean/harvester/internal/normalize"
	"github.com/metocean/harvester/internal/recovery"
)

// Replayer re-ingests recovery batches. Items are re-normalized from
// their stored raw metadata; failures during replay are captured in
// fresh batches under the same recovery directory.
type Replayer struct {
	store       catalog.Store
	normalizer  normalize.Normalizer
	recoveryDir string
	logger      *zap.Logger
}

// NewReplayer builds a Replayer writing re-failures under recoveryDir.
func NewReplayer(store catalog.Store, normalizer normalize.Normalizer, recoveryDir string, logger *zap.Logger) *Replayer {
	return &Replayer{
		store:       store,
		normalizer:  normalizer,
		recoveryDir: recoveryDir,
		logger:      logger,
	}
}

// Replay runs the stored items through a full ingestion pass using the
// settings recorded in the batch.
func (r *Replayer) Replay(ctx context.Context, settings recovery.Settings, items []crawl.DatasetInfo) error {
	ingester := New(r.store, Config{
		Provider: settings.Provider,
		Workers:  settings.Workers,
		Update:   settings.Update,
	}, r.logger)
	sink := recovery.NewWriter(r.recoveryDir, settings, r.logger)
	return ingester.Ingest(ctx, &replayCrawler{items: items, normalizer: r.normalizer}, sink)
}

// replayCrawler yields a fixed list of previously failed descriptors.
type replayCrawler struct {
	items      []crawl.DatasetInfo
	normalizer normalize.Normalizer
	position   int
}

func (c *replayCrawler) SetInitialState(context.Context) error {
	c.position = 0
	return nil
}

func (c *replayCrawler) Next(ctx context.Context) (crawl.DatasetInfo, error) {
	if err := ctx.Err(); err != nil {
		return crawl.DatasetInfo{}, err
	}
	if c.position >= len(c.items) {
		return crawl.DatasetInfo{}, crawl.ErrDone
	}
	info := c.items[c.position]
	c.position++
	return info, nil
}

func (c *replayCrawler) ExportState() crawl.State {
	return crawl.State{Offset: c.position, Buffer: c.items[c.position:]}
}

func (c *replayCrawler) RestoreState(state crawl.State) {
	c.position = state.Offset
}

func (c *replayCrawler) GetNormalizedAttributes(ctx context.Context, info crawl.DatasetInfo) (catalog.NormalizedRecord, error) {
	return c.normalizer.Normalize(ctx, info.URL, info.Metadata)
}
