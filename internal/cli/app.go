package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/metocean/harvester/internal/api"
	"github.com/metocean/harvester/internal/catalog"
	"github.com/metocean/harvester/internal/config"
	"github.com/metocean/harvester/internal/ingest"
	"github.com/metocean/harvester/internal/logging"
	"github.com/metocean/harvester/internal/normalize"
)

// app bundles the dependencies shared by the commands: configuration,
// logger and the catalog store.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	store  *catalog.PostgresStore
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}

	store, err := catalog.NewPostgresStore(ctx, catalog.StoreConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxConns),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to catalog: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, store: store}, nil
}

func (a *app) Close() {
	a.store.Close()
	_ = a.logger.Sync()
}

// replayer re-ingests recovery batches through the regular pipeline.
func (a *app) replayer() *ingest.Replayer {
	return ingest.NewReplayer(a.store, normalize.NewAttributeNormalizer(), a.cfg.Recovery.Dir, a.logger)
}

// statusServer serves /healthz, /readyz and /metrics. Readiness probes
// the catalog.
func (a *app) statusServer() *http.Server {
	server := api.NewServer(func(ctx context.Context) error {
		_, err := a.store.DatasetCount(ctx)
		return err
	}, a.logger)
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
