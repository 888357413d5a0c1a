package crawl

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/metocean/harvester/internal/catalog"
	"github.com/metocean/harvester/internal/normalize"
)

// ThreddsCrawler walks a Thredds server's HTML catalog. Dataset pages
// advertise several access links; the HTTPServer (fileServer) link is
// the download URL, and the matching dodsC URL serves the DDX
// metadata.
type ThreddsCrawler struct {
	*DirectoryCrawler
	fetcher    *Fetcher
	normalizer normalize.Normalizer
}

var (
	threddsTopCatalog    = regexp.MustCompile(`/thredds/catalog\.html$`)
	threddsFileServerURL = regexp.MustCompile(`^(.*)/fileServer/(.*)$`)
)

// NewThreddsCrawler builds a crawler over a Thredds catalog.
func NewThreddsCrawler(cfg DirectoryConfig, normalizer normalize.Normalizer, logger *zap.Logger, fetcherOpts ...FetcherOption) (*ThreddsCrawler, error) {
	if cfg.Exclude == nil {
		cfg.Exclude = threddsTopCatalog
	}
	if cfg.Username != "" {
		fetcherOpts = append(fetcherOpts, WithCredentials(cfg.Username, cfg.Password))
	}
	crawler := &ThreddsCrawler{
		fetcher:    NewFetcher(logger, fetcherOpts...),
		normalizer: normalizer,
	}
	core, err := newDirectoryCrawler(crawler, cfg, logger)
	if err != nil {
		return nil, err
	}
	crawler.DirectoryCrawler = core
	return crawler, nil
}

// ListFolderContents fetches the catalog page and returns the linked
// paths.
func (c *ThreddsCrawler) ListFolderContents(ctx context.Context, folderPath string) ([]string, error) {
	body, err := c.fetcher.Get(ctx, c.resolveURL(folderPath), nil)
	if err != nil {
		return nil, err
	}
	return prependParentPath(stripFolderPage(folderPath), extractLinks(body)), nil
}

// IsFolder reports whether a linked path is a sub-catalog.
func (c *ThreddsCrawler) IsFolder(_ context.Context, path string) (bool, error) {
	return strings.HasSuffix(path, "/catalog.html"), nil
}

// DownloadURL fetches the dataset's access page and returns its
// HTTPServer link. An empty URL means the dataset has no direct
// download.
func (c *ThreddsCrawler) DownloadURL(ctx context.Context, path string) (string, error) {
	body, err := c.fetcher.Get(ctx, c.resolveURL(path), nil)
	if err != nil {
		return "", err
	}
	for _, link := range extractLinks(body) {
		if strings.Contains(link, "fileServer") && strings.HasSuffix(link, ".nc") {
			return c.baseURL() + link, nil
		}
	}
	return "", nil
}

// GetNormalizedAttributes fetches the dataset's DDX document through
// the dodsC service and normalizes the extracted attributes.
func (c *ThreddsCrawler) GetNormalizedAttributes(ctx context.Context, info DatasetInfo) (catalog.NormalizedRecord, error) {
	match := threddsFileServerURL.FindStringSubmatch(info.URL)
	if match == nil {
		return catalog.NormalizedRecord{}, fmt.Errorf("%s is not a Thredds HTTPServer URL", info.URL)
	}
	ddxURL := match[1] + "/dodsC/" + match[2] + ".ddx"
	raw, err := fetchDDXAttributes(ctx, c.fetcher, ddxURL)
	if err != nil {
		return catalog.NormalizedRecord{}, err
	}
	mergeRawMetadata(raw, info.Metadata)
	return c.normalizer.Normalize(ctx, info.URL, raw)
}
