package crawl

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/metocean/harvester/internal/catalog"
)

const iteratorQueueSize = 500

// NormalizedItem pairs a descriptor with its normalized record, ready
// for a catalog write.
type NormalizedItem struct {
	Info   DatasetInfo
	Record catalog.NormalizedRecord
}

// CrawlerIterator drives a crawler and normalizes the yielded
// descriptors across a bounded pool of goroutines. One item's failure
// never stops the run: retryable failures go to the failure sink,
// permanent ones are logged and dropped. On cancellation the crawler's
// cursor and every dequeued-but-unprocessed item are captured through
// the sink before Run returns.
type CrawlerIterator struct {
	crawler Crawler
	sink    FailureSink
	logger  *zap.Logger
	workers int
}

// NewCrawlerIterator builds an iterator. The sink must be safe for
// concurrent use.
func NewCrawlerIterator(crawler Crawler, sink FailureSink, workers int, logger *zap.Logger) *CrawlerIterator {
	if workers < 1 {
		workers = 1
	}
	return &CrawlerIterator{
		crawler: crawler,
		sink:    sink,
		logger:  logger,
		workers: workers,
	}
}

// Run returns a channel of normalized items. The channel is closed
// when the crawler is exhausted or the context is cancelled; Wait
// must be called afterwards to flush the failure sink.
func (it *CrawlerIterator) Run(ctx context.Context) (<-chan NormalizedItem, func() error) {
	items := make(chan DatasetInfo, iteratorQueueSize)
	results := make(chan NormalizedItem, iteratorQueueSize)

	var producerDone sync.WaitGroup
	producerDone.Add(1)
	go func() {
		defer producerDone.Done()
		defer close(items)
		it.produce(ctx, items)
	}()

	var workersDone sync.WaitGroup
	for i := 0; i < it.workers; i++ {
		workersDone.Add(1)
		go func() {
			defer workersDone.Done()
			for info := range items {
				it.processItem(ctx, info, results)
			}
		}()
	}

	go func() {
		workersDone.Wait()
		close(results)
	}()

	wait := func() error {
		producerDone.Wait()
		workersDone.Wait()
		return it.sink.Flush()
	}
	return results, wait
}

// produce pulls descriptors from the crawler until exhaustion or
// cancellation. On cancellation the cursor is captured so a recovery
// pass can resume where the crawl stopped.
func (it *CrawlerIterator) produce(ctx context.Context, items chan<- DatasetInfo) {
	for {
		info, err := it.crawler.Next(ctx)
		if errors.Is(err, ErrDone) {
			return
		}
		if err != nil {
			if Classify(err) == KindInterrupted {
				it.captureInterruption()
			} else {
				it.logger.Error("crawler stopped", zap.Error(err))
			}
			return
		}
		select {
		case items <- info:
		case <-ctx.Done():
			it.recordFailure(info, KindInterrupted, ctx.Err().Error())
			it.captureInterruption()
			return
		}
	}
}

// processItem normalizes one descriptor, isolating its failure from
// the rest of the run.
func (it *CrawlerIterator) processItem(ctx context.Context, info DatasetInfo, results chan<- NormalizedItem) {
	if ctx.Err() != nil {
		it.recordFailure(info, KindInterrupted, ctx.Err().Error())
		return
	}
	it.logger.Debug("getting metadata", zap.String("url", info.URL))
	record, err := it.crawler.GetNormalizedAttributes(ctx, info)
	if err != nil {
		if errors.Is(err, ErrFiltered) {
			it.logger.Debug("record excluded by search criteria", zap.String("url", info.URL))
			return
		}
		kind := Classify(err)
		if kind.Retryable() {
			it.logger.Warn("could not get metadata, queuing for retry",
				zap.String("url", info.URL), zap.String("kind", kind.String()), zap.Error(err))
			it.recordFailure(info, kind, err.Error())
		} else {
			it.logger.Error("could not get metadata, dropping",
				zap.String("url", info.URL), zap.Error(err))
		}
		return
	}
	select {
	case results <- NormalizedItem{Info: info, Record: record}:
	case <-ctx.Done():
		it.recordFailure(info, KindInterrupted, ctx.Err().Error())
	}
}

func (it *CrawlerIterator) recordFailure(info DatasetInfo, kind ErrorKind, message string) {
	if err := it.sink.Record(info, kind, message); err != nil {
		it.logger.Error("could not record failed item",
			zap.String("url", info.URL), zap.Error(err))
	}
}

func (it *CrawlerIterator) captureInterruption() {
	it.logger.Info("iteration interrupted, capturing crawler state")
	if err := it.sink.CaptureState(it.crawler.ExportState()); err != nil {
		it.logger.Error("could not capture crawler state", zap.Error(err))
	}
}
