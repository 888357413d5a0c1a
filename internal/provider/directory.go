package provider

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/metocean/harvester/internal/arguments"
	"github.com/metocean/harvester/internal/crawl"
	"github.com/metocean/harvester/internal/normalize"
)

func init() {
	Register("local", directoryFactory(func(cfg crawl.DirectoryConfig, normalizer normalize.Normalizer, logger *zap.Logger) (crawl.Crawler, error) {
		return crawl.NewLocalCrawler(cfg, normalizer, logger)
	}))
	Register("ftp", directoryFactory(func(cfg crawl.DirectoryConfig, normalizer normalize.Normalizer, logger *zap.Logger) (crawl.Crawler, error) {
		return crawl.NewFTPCrawler(cfg, normalizer, logger)
	}))
	Register("http", directoryFactory(func(cfg crawl.DirectoryConfig, normalizer normalize.Normalizer, logger *zap.Logger) (crawl.Crawler, error) {
		return crawl.NewHTMLDirectoryCrawler(cfg, normalizer, logger)
	}))
	Register("opendap", directoryFactory(func(cfg crawl.DirectoryConfig, normalizer normalize.Normalizer, logger *zap.Logger) (crawl.Crawler, error) {
		return crawl.NewOpenDAPCrawler(cfg, normalizer, logger)
	}))
	Register("thredds", directoryFactory(func(cfg crawl.DirectoryConfig, normalizer normalize.Normalizer, logger *zap.Logger) (crawl.Crawler, error) {
		return crawl.NewThreddsCrawler(cfg, normalizer, logger)
	}))
}

// crawlerBuilder hides which tree-walking crawler a directory provider
// uses.
type crawlerBuilder func(cfg crawl.DirectoryConfig, normalizer normalize.Normalizer, logger *zap.Logger) (crawl.Crawler, error)

// directoryProvider serves the tree-walking provider types. Beyond the
// common criteria it accepts include and exclude regular expressions
// restricting the crawled paths.
type directoryProvider struct {
	settings       Settings
	build          crawlerBuilder
	entryIDPattern *regexp.Regexp
	logger         *zap.Logger
}

func directoryFactory(build crawlerBuilder) Factory {
	return func(settings Settings, logger *zap.Logger) (Provider, error) {
		if settings.URL == "" {
			return nil, fmt.Errorf("provider %q: a url is required", settings.Name)
		}
		provider := &directoryProvider{settings: settings, build: build, logger: logger}
		if settings.EntryIDPattern != "" {
			pattern, err := regexp.Compile(settings.EntryIDPattern)
			if err != nil {
				return nil, fmt.Errorf("provider %q: invalid entry ID pattern: %w", settings.Name, err)
			}
			provider.entryIDPattern = pattern
		}
		return provider, nil
	}
}

func (p *directoryProvider) Name() string { return p.settings.Name }

func (p *directoryProvider) Search(_ context.Context, parameters map[string]any) (*SearchResults, error) {
	args := append(commonArguments(),
		arguments.NewString(arguments.NewSpec("include")),
		arguments.NewString(arguments.NewSpec("exclude")))
	parsed, err := arguments.NewParser(true, args...).Parse(parameters)
	if err != nil {
		return nil, err
	}
	criteria, err := extractCriteria(parsed)
	if err != nil {
		return nil, err
	}

	cfg := crawl.DirectoryConfig{
		RootURL:   p.settings.URL,
		TimeRange: criteria.timeRange,
		Username:  p.settings.Username,
		Password:  p.settings.Password,
	}
	if cfg.Include, err = compiledPattern(parsed, "include"); err != nil {
		return nil, err
	}
	if cfg.Exclude, err = compiledPattern(parsed, "exclude"); err != nil {
		return nil, err
	}

	crawler, err := p.build(cfg, p.normalizer(), p.logger)
	if err != nil {
		return nil, err
	}
	return newSearchResults(crawler, criteria, p.settings.Name), nil
}

func (p *directoryProvider) normalizer() normalize.Normalizer {
	opts := []normalize.Option{normalize.WithProvider(p.settings.Name)}
	if p.entryIDPattern != nil {
		opts = append(opts, normalize.WithEntryIDPattern(p.entryIDPattern))
	}
	return normalize.NewAttributeNormalizer(opts...)
}

func compiledPattern(parsed map[string]any, key string) (*regexp.Regexp, error) {
	expression, ok := parsed[key].(string)
	if !ok || expression == "" {
		return nil, nil
	}
	pattern, err := regexp.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("argument %q: invalid regular expression: %w", key, err)
	}
	return pattern, nil
}
