package recovery

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/metocean/harvester/internal/crawl"
	"github.com/metocean/harvester/internal/metrics"
)

const (
	maxPasses       = 5
	initialWaitTime = 60 * time.Second
)

// Replayer re-ingests the items of a recovery batch. Failing again is
// acceptable: the ingestion pipeline produces fresh batches for items
// that fail a second time.
type Replayer interface {
	Replay(ctx context.Context, settings Settings, items []crawl.DatasetInfo) error
}

// Runner replays every batch under the recovery directory, retrying
// with exponential backoff while batches remain.
type Runner struct {
	dir      string
	replayer Replayer
	logger   *zap.Logger
	// sleep is replaceable so tests do not wait for real backoff.
	sleep func(context.Context, time.Duration) error
}

// NewRunner builds a recovery runner over dir.
func NewRunner(dir string, replayer Replayer, logger *zap.Logger) *Runner {
	metrics.Init()
	return &Runner{
		dir:      dir,
		replayer: replayer,
		logger:   logger,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run replays all pending batches, making up to 5 passes over the
// recovery directory. Between passes the wait doubles, starting at 60
// seconds. An error is returned when batches remain after the last
// pass.
func (r *Runner) Run(ctx context.Context) error {
	waitTime := initialWaitTime
	attempted := false

	for pass := 0; pass < maxPasses; pass++ {
		paths, err := ListBatches(r.dir)
		if err != nil {
			return err
		}
		for _, path := range paths {
			attempted = true
			if err := r.replayBatch(ctx, path); err != nil {
				if ctx.Err() != nil {
					return err
				}
				// One bad batch must not stop the recovery pass.
				r.logger.Error("did not manage to replay batch",
					zap.String("path", path), zap.Error(err))
			}
		}

		remaining, err := ListBatches(r.dir)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			break
		}
		r.logger.Warn("there were errors while replaying previous failures, will retry",
			zap.Duration("wait", waitTime), zap.Int("remaining", len(remaining)))
		if err := r.sleep(ctx, waitTime); err != nil {
			return err
		}
		waitTime *= 2
	}

	remaining, err := ListBatches(r.dir)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		r.logger.Error("recovery batches remain after the last pass",
			zap.Int("remaining", len(remaining)))
		return fmt.Errorf("%d recovery batches could not be replayed", len(remaining))
	}
	if attempted {
		r.logger.Info("all failed datasets have been successfully ingested")
	}
	return nil
}

// replayBatch loads one batch, hands its retryable items to the
// replayer and deletes the file. The file is removed even when some
// items fail again, because those failures are captured in new
// batches by the ingestion pipeline.
func (r *Runner) replayBatch(ctx context.Context, path string) error {
	r.logger.Info("getting failed ingestions", zap.String("path", path))
	batch, err := LoadBatch(path)
	if err != nil {
		return err
	}
	if len(batch.Items) == 0 {
		r.logger.Info("nothing to replay", zap.String("path", path))
		return os.Remove(path)
	}

	items := make([]crawl.DatasetInfo, 0, len(batch.Items))
	for _, item := range batch.Items {
		items = append(items, item.Info)
	}
	if err := r.replayer.Replay(ctx, batch.Settings, items); err != nil {
		return err
	}
	metrics.ObserveRecoveryBatch("replayed")
	return os.Remove(path)
}
