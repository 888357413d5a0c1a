package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/metocean/harvester/internal/config"
	"github.com/metocean/harvester/internal/ingest"
	"github.com/metocean/harvester/internal/provider"
	"github.com/metocean/harvester/internal/recovery"
)

func newHarvestCmd() *cobra.Command {
	var harvestFile, searchFile string
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Runs the searches of a harvest document and ingests the results",
		Long: `Reads a harvest document describing providers and searches, runs
every search concurrently and writes the normalized metadata to the
catalog. Failed items are persisted under the recovery directory and
replayed at the end of the run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarvest(cmd.Context(), harvestFile, searchFile)
		},
	}
	cmd.Flags().StringVarP(&harvestFile, "harvest-file", "f", "harvest.yml",
		"harvest document listing providers and searches")
	cmd.Flags().StringVar(&searchFile, "search", "",
		"separate search-definitions document appended to the harvest document's searches")
	return cmd
}

func runHarvest(ctx context.Context, harvestFile, searchFile string) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	document, err := config.LoadHarvest(harvestFile)
	if err != nil {
		return err
	}
	if searchFile != "" {
		searches, err := config.LoadSearches(searchFile)
		if err != nil {
			return err
		}
		document.Searches = append(document.Searches, searches...)
		if err := document.Validate(); err != nil {
			return err
		}
	}
	if len(document.Searches) == 0 {
		return fmt.Errorf("no searches to run")
	}

	// Build every provider before any search runs, so configuration
	// errors abort the whole harvest up front.
	providers := make(map[string]provider.Provider, len(document.Providers))
	for name, settings := range document.Providers {
		p, err := provider.New(provider.Settings{
			Name:           name,
			Type:           settings.Type,
			URL:            settings.URL,
			Username:       settings.Username,
			Password:       settings.Password,
			EntryIDPattern: settings.EntryIDPattern,
		}, a.logger)
		if err != nil {
			return err
		}
		providers[name] = p
	}

	server := a.statusServer()
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("status server stopped", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	var wg sync.WaitGroup
	errs := make([]error, len(document.Searches))
	for i, search := range document.Searches {
		wg.Add(1)
		go func(i int, search config.Search) {
			defer wg.Done()
			errs[i] = a.runSearch(ctx, providers[search.Provider], search.Parameters)
		}(i, search)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		// Interrupted: leave the recovery batches for a later
		// `harvester recover`.
		return err
	}

	return recovery.NewRunner(a.cfg.Recovery.Dir, a.replayer(), a.logger).Run(ctx)
}

// runSearch validates one search against its provider and drives the
// resulting crawler to exhaustion.
func (a *app) runSearch(ctx context.Context, p provider.Provider, parameters map[string]any) error {
	results, err := p.Search(ctx, parameters)
	if err != nil {
		return fmt.Errorf("provider %q: %w", p.Name(), err)
	}

	cfg := results.Ingest
	if cfg.Workers <= 0 {
		cfg.Workers = a.cfg.Harvest.Workers
	}
	logger := a.logger.With(zap.String("provider", p.Name()))

	ingester := ingest.New(a.store, cfg, logger)
	if err := ingester.Ready(ctx); err != nil {
		return err
	}
	if err := results.Crawler.SetInitialState(ctx); err != nil {
		return fmt.Errorf("provider %q: initialize crawler: %w", p.Name(), err)
	}

	sink := recovery.NewWriter(a.cfg.Recovery.Dir, recovery.Settings{
		Provider: cfg.Provider,
		Update:   cfg.Update,
		Workers:  cfg.Workers,
	}, logger)

	logger.Info("starting search")
	if err := ingester.Ingest(ctx, results.Crawler, sink); err != nil {
		return fmt.Errorf("provider %q: %w", p.Name(), err)
	}
	logger.Info("search finished")
	return nil
}
