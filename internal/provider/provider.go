// Package provider maps provider configurations and search parameters
// to configured crawlers. Each provider type validates its search
// parameters declaratively and knows which crawler explores its
// resource space.
package provider

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/metocean/harvester/internal/arguments"
	"github.com/metocean/harvester/internal/catalog"
	"github.com/metocean/harvester/internal/crawl"
	"github.com/metocean/harvester/internal/ingest"
)

// Settings configures one provider instance, typically read from the
// providers configuration file.
type Settings struct {
	// Name identifies the provider in logs, metrics and recovery
	// batches.
	Name string
	// Type selects the provider implementation from the registry.
	Type string
	// URL is the root of the provider's resource space: a directory
	// URL for tree-walking providers, the service root for API
	// providers.
	URL      string
	Username string
	Password string
	// EntryIDPattern optionally extracts the catalog entry ID from
	// resource URLs instead of using the URL basename.
	EntryIDPattern string
}

// Provider validates search parameters and turns them into a
// ready-to-run search.
type Provider interface {
	Name() string
	Search(ctx context.Context, parameters map[string]any) (*SearchResults, error)
}

// SearchResults is one validated search: a crawler over the matching
// resource space plus the ingestion settings extracted from the search
// parameters.
type SearchResults struct {
	Crawler crawl.Crawler
	Ingest  ingest.Config
}

// Filter rejects normalized records that the crawler's resource-space
// restriction could not express, e.g. exact time bounds on providers
// that only filter by folder date.
type Filter func(record catalog.NormalizedRecord) bool

// Factory builds a provider from its settings.
type Factory func(settings Settings, logger *zap.Logger) (Provider, error)

var factories = map[string]Factory{}

// Register adds a provider type to the registry. Registering the same
// type twice is a programming error.
func Register(providerType string, factory Factory) {
	if _, exists := factories[providerType]; exists {
		panic(fmt.Sprintf("provider type %q registered twice", providerType))
	}
	factories[providerType] = factory
}

// Types lists the registered provider types.
func Types() []string {
	types := make([]string, 0, len(factories))
	for providerType := range factories {
		types = append(types, providerType)
	}
	sort.Strings(types)
	return types
}

// New builds a provider from its settings, failing fast on unknown
// types so that configuration errors surface before any harvest runs.
func New(settings Settings, logger *zap.Logger) (Provider, error) {
	factory, ok := factories[settings.Type]
	if !ok {
		return nil, fmt.Errorf("unknown provider type %q (available: %v)", settings.Type, Types())
	}
	return factory(settings, logger)
}

// commonArguments are the search parameters every provider accepts.
func commonArguments() []arguments.Argument {
	return []arguments.Argument{
		arguments.NewDatetime(arguments.NewSpec("start_time")),
		arguments.NewDatetime(arguments.NewSpec("end_time")),
		arguments.NewWKT(arguments.NewSpec("location"), arguments.GeometryPolygon),
		arguments.NewDict(arguments.NewSpec("ingester"), "update", "workers"),
	}
}

// commonParameterNames marks the parsed values consumed by
// searchCriteria, as opposed to provider-specific search terms.
var commonParameterNames = map[string]bool{
	"start_time": true,
	"end_time":   true,
	"location":   true,
	"ingester":   true,
}

// searchCriteria is the provider-independent part of a validated
// search.
type searchCriteria struct {
	timeRange crawl.TimeRange
	location  geom.T
	ingest    ingest.Config
}

// extractCriteria pulls the common criteria out of a parsed parameter
// map.
func extractCriteria(parsed map[string]any) (searchCriteria, error) {
	criteria := searchCriteria{}

	var start, end time.Time
	if value, ok := parsed["start_time"].(time.Time); ok {
		start = value
	}
	if value, ok := parsed["end_time"].(time.Time); ok {
		end = value
	}
	criteria.timeRange = crawl.NewTimeRange(start, end)

	if value, ok := parsed["location"].(geom.T); ok {
		criteria.location = value
	}

	if settings, ok := parsed["ingester"].(map[string]any); ok {
		if update, ok := settings["update"].(bool); ok {
			criteria.ingest.Update = update
		}
		switch workers := settings["workers"].(type) {
		case int:
			criteria.ingest.Workers = workers
		case int64:
			criteria.ingest.Workers = int(workers)
		case float64:
			criteria.ingest.Workers = int(workers)
		}
	}
	return criteria, nil
}

// timeFilters builds the post-normalization predicates enforcing the
// exact time bounds: the record's coverage must overlap the search
// range.
func timeFilters(timeRange crawl.TimeRange) []Filter {
	var filters []Filter
	if timeRange.Start != nil {
		start := *timeRange.Start
		filters = append(filters, func(record catalog.NormalizedRecord) bool {
			return record.TimeCoverageEnd.After(start)
		})
	}
	if timeRange.End != nil {
		end := *timeRange.End
		filters = append(filters, func(record catalog.NormalizedRecord) bool {
			return !record.TimeCoverageStart.After(end)
		})
	}
	return filters
}

// filteredCrawler applies post-normalization filters on top of an
// inner crawler. Rejected records surface as crawl.ErrFiltered, which
// the iteration layer skips silently.
type filteredCrawler struct {
	crawl.Crawler
	filters []Filter
}

func (c *filteredCrawler) GetNormalizedAttributes(ctx context.Context, info crawl.DatasetInfo) (catalog.NormalizedRecord, error) {
	record, err := c.Crawler.GetNormalizedAttributes(ctx, info)
	if err != nil {
		return record, err
	}
	for _, keep := range c.filters {
		if !keep(record) {
			return catalog.NormalizedRecord{}, crawl.ErrFiltered
		}
	}
	return record, nil
}

// newSearchResults assembles the search: the crawler is wrapped with
// the time filters and the ingestion settings are stamped with the
// provider name.
func newSearchResults(crawler crawl.Crawler, criteria searchCriteria, providerName string) *SearchResults {
	if filters := timeFilters(criteria.timeRange); len(filters) > 0 {
		crawler = &filteredCrawler{Crawler: crawler, filters: filters}
	}
	cfg := criteria.ingest
	cfg.Provider = providerName
	return &SearchResults{Crawler: crawler, Ingest: cfg}
}
