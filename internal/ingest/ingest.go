// Package ingest drives the ingestion pipeline: it pulls normalized
// items from a crawler and writes them to the catalog across a bounded
// worker pool.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/metocean/harvester/internal/catalog"
	"github.com/metocean/harvester/internal/crawl"
	"github.com/metocean/harvester/internal/metrics"
)

// Config controls one ingestion run.
type Config struct {
	// Provider names the provider being harvested, used in logs and
	// metrics.
	Provider string
	// Workers bounds both the normalization pool and the catalog
	// write pool.
	Workers int
	// Update refreshes existing datasets' fields when a known entry
	// identifier is seen again.
	Update bool
}

// Ingester writes normalized records to the catalog.
type Ingester struct {
	store  catalog.Store
	cfg    Config
	logger *zap.Logger
}

// New builds an Ingester.
func New(store catalog.Store, cfg Config, logger *zap.Logger) *Ingester {
	metrics.Init()
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Ingester{store: store, cfg: cfg, logger: logger}
}

// Ready probes the catalog connection and schema before a run, so
// configuration problems abort the run instead of surfacing as
// per-item failures.
func (i *Ingester) Ready(ctx context.Context) error {
	if _, err := i.store.DatasetCount(ctx); err != nil {
		return fmt.Errorf("catalog is not ready: %w", err)
	}
	return nil
}

// Ingest drives a crawler to exhaustion, normalizing and writing its
// descriptors. Retryable failures go to the sink for later recovery;
// Ingest itself only fails on cancellation or a broken failure sink.
func (i *Ingester) Ingest(ctx context.Context, crawler crawl.Crawler, sink crawl.FailureSink) error {
	iterator := crawl.NewCrawlerIterator(crawler, sink, i.cfg.Workers, i.logger)
	results, wait := iterator.Run(ctx)

	var writers sync.WaitGroup
	for n := 0; n < i.cfg.Workers; n++ {
		writers.Add(1)
		go func() {
			defer writers.Done()
			for item := range results {
				i.writeItem(ctx, item, sink)
			}
		}()
	}
	writers.Wait()

	if err := wait(); err != nil {
		return fmt.Errorf("flush failure sink: %w", err)
	}
	return ctx.Err()
}

// writeItem performs the dedup-then-write cycle for one item. The URI
// check is a fast path; the storage layer's unique constraints are the
// real serialization point for concurrent writers.
func (i *Ingester) writeItem(ctx context.Context, item crawl.NormalizedItem, sink crawl.FailureSink) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	if ctx.Err() != nil {
		i.recordFailure(sink, item.Info, crawl.KindInterrupted, ctx.Err().Error())
		return
	}

	exists, err := i.store.URIExists(ctx, item.Info.URL)
	if err != nil {
		i.handleWriteError(sink, item.Info, err)
		return
	}
	if exists && !i.cfg.Update {
		i.observeOutcome(catalog.OutcomeNoop, item.Info.URL)
		return
	}

	outcome, err := i.store.IngestDataset(ctx, item.Record, item.Info.URL, i.cfg.Update)
	if err != nil {
		i.handleWriteError(sink, item.Info, err)
		return
	}
	i.observeOutcome(outcome, item.Info.URL)
}

func (i *Ingester) observeOutcome(outcome catalog.Outcome, uri string) {
	metrics.ObserveDataset(i.cfg.Provider, outcome.String())
	switch outcome {
	case catalog.OutcomeCreated:
		i.logger.Info("created dataset", zap.String("uri", uri))
	case catalog.OutcomeUpdated:
		i.logger.Info("updated dataset", zap.String("uri", uri))
	default:
		i.logger.Info("dataset already known, skipping", zap.String("uri", uri))
	}
}

// handleWriteError classifies a catalog write failure: retryable
// kinds are queued for recovery, the rest are logged and dropped.
func (i *Ingester) handleWriteError(sink crawl.FailureSink, info crawl.DatasetInfo, err error) {
	kind := crawl.Classify(err)
	metrics.ObserveItemFailure(i.cfg.Provider, kind.String())
	if kind.Retryable() {
		i.logger.Warn("could not ingest dataset, queuing for retry",
			zap.String("uri", info.URL), zap.String("kind", kind.String()), zap.Error(err))
		i.recordFailure(sink, info, kind, err.Error())
		return
	}
	i.logger.Error("could not ingest dataset, dropping",
		zap.String("uri", info.URL), zap.Error(err))
}

func (i *Ingester) recordFailure(sink crawl.FailureSink, info crawl.DatasetInfo, kind crawl.ErrorKind, message string) {
	if err := sink.Record(info, kind, message); err != nil {
		i.logger.Error("could not record failed item",
			zap.String("uri", info.URL), zap.Error(err))
	}
}
