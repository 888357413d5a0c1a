package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/antchfx/xmlquery"
	"github.com/twpayne/go-geom/encoding/wkt"
	"go.uber.org/zap"

	"github.com/metocean/harvester/internal/arguments"
	"github.com/metocean/harvester/internal/crawl"
	"github.com/metocean/harvester/internal/normalize"
)

func init() {
	Register("resto", func(settings Settings, logger *zap.Logger) (Provider, error) {
		return newRestoProvider(settings, logger)
	})
}

// restoProvider searches a Resto-based EO finder API. The accepted
// search parameters depend on the chosen collection: parsing the
// collection argument fetches the collection's OpenSearch description
// and registers its parameters as child arguments.
type restoProvider struct {
	settings Settings
	fetcher  *crawl.Fetcher
	logger   *zap.Logger

	mu          sync.Mutex
	collections []any
}

func newRestoProvider(settings Settings, logger *zap.Logger) (*restoProvider, error) {
	if settings.URL == "" {
		return nil, fmt.Errorf("provider %q: a url is required", settings.Name)
	}
	var fetcherOpts []crawl.FetcherOption
	if settings.Username != "" {
		fetcherOpts = append(fetcherOpts, crawl.WithCredentials(settings.Username, settings.Password))
	}
	return &restoProvider{
		settings: settings,
		fetcher:  crawl.NewFetcher(logger, fetcherOpts...),
		logger:   logger,
	}, nil
}

func (p *restoProvider) Name() string { return p.settings.Name }

func (p *restoProvider) baseURL() string {
	return strings.TrimRight(p.settings.URL, "/")
}

// loadCollections fetches the identifiers of the provider's searchable
// collections. The list is fetched once and cached for the provider's
// lifetime.
func (p *restoProvider) loadCollections(ctx context.Context) ([]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.collections != nil {
		return p.collections, nil
	}

	body, err := p.fetcher.Get(ctx, p.baseURL()+"/stac/collections", nil)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	var response struct {
		Collections []struct {
			ID string `json:"id"`
		} `json:"collections"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	collections := make([]any, 0, len(response.Collections))
	for _, collection := range response.Collections {
		if collection.ID != "" {
			collections = append(collections, collection.ID)
		}
	}
	if len(collections) == 0 {
		return nil, fmt.Errorf("provider %q exposes no searchable collections", p.settings.Name)
	}
	p.collections = collections
	return collections, nil
}

// staticParameterNames are search parameters declared up front, which
// the collection description must not override.
var staticParameterNames = map[string]bool{
	"collection":        true,
	"status":            true,
	"dataset":           true,
	"productIdentifier": true,
	// Pagination, sorting and time bounds are owned by the crawler.
	"page":           true,
	"maxRecords":     true,
	"sortParam":      true,
	"sortOrder":      true,
	"startDate":      true,
	"completionDate": true,
}

func (p *restoProvider) searchArguments(ctx context.Context, collections []any) []arguments.Argument {
	collection := arguments.NewChoice(arguments.NewSpec("collection").WithRequired(), collections...).
		WithChildLoader(func(value any) ([]arguments.Argument, error) {
			return p.collectionArguments(ctx, value.(string))
		})
	return append(commonArguments(),
		collection,
		arguments.NewString(arguments.NewSpec("status").WithDefault("all")),
		arguments.NewString(arguments.NewSpec("dataset").WithDefault("ESA-DATASET")),
		arguments.NewString(arguments.NewSpec("productIdentifier")),
	)
}

// collectionArguments fetches a collection's OpenSearch description
// and converts its parameters to argument definitions: enumerated
// options become choices, patterns become validated strings and
// numeric bounds become integers with inclusive ranges.
func (p *restoProvider) collectionArguments(ctx context.Context, collection string) ([]arguments.Argument, error) {
	describeURL := fmt.Sprintf("%s/resto/api/collections/%s/describe.xml", p.baseURL(), collection)
	body, err := p.fetcher.Get(ctx, describeURL, nil)
	if err != nil {
		return nil, err
	}
	document, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse collection description: %w", err)
	}

	var args []arguments.Argument
	for _, parameter := range xmlquery.Find(document, "//*[local-name()='Parameter']") {
		name := parameter.SelectAttr("name")
		if name == "" || staticParameterNames[name] || commonParameterNames[name] {
			continue
		}
		argument, err := openSearchArgument(name, parameter)
		if err != nil {
			return nil, fmt.Errorf("collection %q parameter %q: %w", collection, name, err)
		}
		args = append(args, argument)
	}
	return args, nil
}

// openSearchArgument maps one OpenSearch parameter description to an
// argument definition.
func openSearchArgument(name string, parameter *xmlquery.Node) (arguments.Argument, error) {
	if options := xmlquery.Find(parameter, "./*[local-name()='Option']"); len(options) > 0 {
		values := make([]any, 0, len(options))
		for _, option := range options {
			values = append(values, option.SelectAttr("value"))
		}
		return arguments.NewChoice(arguments.NewSpec(name), values...), nil
	}

	if expression := parameter.SelectAttr("pattern"); expression != "" {
		pattern, err := regexp.Compile(expression)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		return arguments.NewString(arguments.NewSpec(name)).WithPattern(pattern), nil
	}

	minValue, hasMin, err := integerBound(parameter, "minInclusive", "minExclusive", +1)
	if err != nil {
		return nil, err
	}
	maxValue, hasMax, err := integerBound(parameter, "maxInclusive", "maxExclusive", -1)
	if err != nil {
		return nil, err
	}
	if hasMin || hasMax {
		if !hasMin {
			minValue = math.MinInt32
		}
		if !hasMax {
			maxValue = math.MaxInt32
		}
		return arguments.NewInteger(arguments.NewSpec(name)).WithRange(minValue, maxValue), nil
	}

	return arguments.NewString(arguments.NewSpec(name)), nil
}

// integerBound reads an inclusive or exclusive bound attribute;
// exclusive bounds are shifted to their inclusive equivalent.
func integerBound(parameter *xmlquery.Node, inclusiveAttr, exclusiveAttr string, shift int) (int, bool, error) {
	if raw := parameter.SelectAttr(inclusiveAttr); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return 0, false, fmt.Errorf("invalid %s bound %q", inclusiveAttr, raw)
		}
		return value, true, nil
	}
	if raw := parameter.SelectAttr(exclusiveAttr); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return 0, false, fmt.Errorf("invalid %s bound %q", exclusiveAttr, raw)
		}
		return value + shift, true, nil
	}
	return 0, false, nil
}

func (p *restoProvider) Search(ctx context.Context, parameters map[string]any) (*SearchResults, error) {
	collections, err := p.loadCollections(ctx)
	if err != nil {
		return nil, err
	}
	parsed, err := arguments.NewParser(true, p.searchArguments(ctx, collections)...).Parse(parameters)
	if err != nil {
		return nil, err
	}
	criteria, err := extractCriteria(parsed)
	if err != nil {
		return nil, err
	}

	collection, _ := parsed["collection"].(string)
	terms := make(map[string]string)
	for key, value := range parsed {
		if commonParameterNames[key] || key == "collection" {
			continue
		}
		terms[key] = fmt.Sprintf("%v", value)
	}
	if criteria.location != nil {
		geometry, err := wkt.Marshal(criteria.location)
		if err != nil {
			return nil, fmt.Errorf("encode search geometry: %w", err)
		}
		terms["geometry"] = geometry
	}

	crawler := crawl.NewRestoCrawler(crawl.PaginatedConfig{
		URL:         fmt.Sprintf("%s/resto/api/collections/%s/search.json", p.baseURL(), collection),
		SearchTerms: terms,
		TimeRange:   criteria.timeRange,
		Username:    p.settings.Username,
		Password:    p.settings.Password,
	}, normalize.NewAttributeNormalizer(normalize.WithProvider(p.settings.Name)), p.logger)

	return newSearchResults(crawler, criteria, p.settings.Name), nil
}
