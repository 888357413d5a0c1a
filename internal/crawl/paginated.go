package crawl

import (
	"context"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

// PageParser extracts dataset descriptors from one page of API search
// results. An empty slice means the result space is exhausted.
type PageParser func(page []byte) ([]DatasetInfo, error)

// PaginatedConfig carries the parameters of a paginated API crawl.
type PaginatedConfig struct {
	// URL is the search endpoint.
	URL string
	// SearchTerms are passed through as query parameters.
	SearchTerms map[string]string
	TimeRange   TimeRange
	PageSize    int
	// InitialOffset overrides the protocol's minimum offset, allowing
	// a crawl to start mid-way through the result space.
	InitialOffset int
	Username      string
	Password      string
}

// paginationScheme describes how a concrete API names and counts its
// pages.
type paginationScheme struct {
	offsetName string
	sizeName   string
	minOffset  int
	// offsetStep is the increment applied after each fetched page.
	offsetStep int
}

// PaginatedAPICrawler walks a paginated HTTP search API. The state is
// the current page offset plus the buffer of descriptors extracted
// from the last fetched page.
type PaginatedAPICrawler struct {
	fetcher   *Fetcher
	cfg       PaginatedConfig
	scheme    paginationScheme
	parsePage PageParser
	logger    *zap.Logger

	offset int
	buffer []DatasetInfo
}

func newPaginatedAPICrawler(cfg PaginatedConfig, scheme paginationScheme, parsePage PageParser, logger *zap.Logger, fetcherOpts ...FetcherOption) *PaginatedAPICrawler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.InitialOffset == 0 {
		cfg.InitialOffset = scheme.minOffset
	}
	if scheme.offsetStep == 0 {
		scheme.offsetStep = 1
	}
	if cfg.Username != "" {
		fetcherOpts = append(fetcherOpts, WithCredentials(cfg.Username, cfg.Password))
	}
	return &PaginatedAPICrawler{
		fetcher:   NewFetcher(logger, fetcherOpts...),
		cfg:       cfg,
		scheme:    scheme,
		parsePage: parsePage,
		logger:    logger,
		offset:    cfg.InitialOffset,
	}
}

// SetInitialState rewinds the crawler to its initial page offset.
func (c *PaginatedAPICrawler) SetInitialState(_ context.Context) error {
	c.offset = c.cfg.InitialOffset
	c.buffer = nil
	return nil
}

// ExportState returns the serializable cursor.
func (c *PaginatedAPICrawler) ExportState() State {
	state := State{
		Offset: c.offset,
		Buffer: make([]DatasetInfo, len(c.buffer)),
	}
	copy(state.Buffer, c.buffer)
	return state
}

// RestoreState replaces the cursor with a previously exported one.
func (c *PaginatedAPICrawler) RestoreState(state State) {
	c.offset = state.Offset
	c.buffer = make([]DatasetInfo, len(state.Buffer))
	copy(c.buffer, state.Buffer)
}

// Next yields one descriptor, fetching the next page when the buffer
// runs dry. The crawl terminates when a page yields no entries.
func (c *PaginatedAPICrawler) Next(ctx context.Context) (DatasetInfo, error) {
	for len(c.buffer) == 0 {
		if err := ctx.Err(); err != nil {
			return DatasetInfo{}, err
		}
		page, err := c.nextPage(ctx)
		if err != nil {
			return DatasetInfo{}, err
		}
		entries, err := c.parsePage(page)
		if err != nil {
			return DatasetInfo{}, err
		}
		if len(entries) == 0 {
			c.logger.Debug("no more entries found",
				zap.String("url", c.cfg.URL), zap.Int("offset", c.offset))
			return DatasetInfo{}, ErrDone
		}
		c.buffer = append(c.buffer, entries...)
	}
	info := c.buffer[len(c.buffer)-1]
	c.buffer = c.buffer[:len(c.buffer)-1]
	return info, nil
}

func (c *PaginatedAPICrawler) nextPage(ctx context.Context) ([]byte, error) {
	params := c.requestParameters()
	c.logger.Debug("looking for resources",
		zap.String("url", c.cfg.URL), zap.String("params", params.Encode()))
	page, err := c.fetcher.Get(ctx, c.cfg.URL, params)
	if err != nil {
		return nil, err
	}
	c.offset += c.scheme.offsetStep
	return page, nil
}

func (c *PaginatedAPICrawler) requestParameters() url.Values {
	params := url.Values{}
	for key, value := range c.cfg.SearchTerms {
		params.Set(key, value)
	}
	params.Set(c.scheme.offsetName, strconv.Itoa(c.offset))
	params.Set(c.scheme.sizeName, strconv.Itoa(c.cfg.PageSize))
	return params
}
