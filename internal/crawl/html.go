package crawl

import (
	"bytes"
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/metocean/harvester/internal/catalog"
	"github.com/metocean/harvester/internal/normalize"
)

// HTMLDirectoryCrawler walks a directory tree rendered as HTML index
// pages (Apache/nginx style listings). A child path ending in "/" is a
// sub-folder; everything else is a file.
type HTMLDirectoryCrawler struct {
	*DirectoryCrawler
	fetcher    *Fetcher
	normalizer normalize.Normalizer
}

// NewHTMLDirectoryCrawler builds a crawler over an HTML-rendered
// directory listing.
func NewHTMLDirectoryCrawler(cfg DirectoryConfig, normalizer normalize.Normalizer, logger *zap.Logger, fetcherOpts ...FetcherOption) (*HTMLDirectoryCrawler, error) {
	if cfg.Username != "" {
		fetcherOpts = append(fetcherOpts, WithCredentials(cfg.Username, cfg.Password))
	}
	crawler := &HTMLDirectoryCrawler{
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

// ListFolderContents fetches the folder's index page and returns the
// linked paths, anchored at the folder.
func (c *HTMLDirectoryCrawler) ListFolderContents(ctx context.Context, folderPath string) ([]string, error) {
	body, err := c.fetcher.Get(ctx, c.resolveURL(folderPath), nil)
	if err != nil {
		return nil, err
	}
	return prependParentPath(stripFolderPage(folderPath), extractLinks(body)), nil
}

// IsFolder reports whether a linked path points to a sub-folder.
func (c *HTMLDirectoryCrawler) IsFolder(_ context.Context, path string) (bool, error) {
	return strings.HasSuffix(path, "/"), nil
}

// DownloadURL joins the file path with the crawler's base URL.
func (c *HTMLDirectoryCrawler) DownloadURL(_ context.Context, path string) (string, error) {
	return c.resolveURL(path), nil
}

// GetNormalizedAttributes normalizes the descriptor's raw attributes.
func (c *HTMLDirectoryCrawler) GetNormalizedAttributes(ctx context.Context, info DatasetInfo) (catalog.NormalizedRecord, error) {
	return c.normalizer.Normalize(ctx, info.URL, info.Metadata)
}

var folderPageMatcher = regexp.MustCompile(`/(\w+\.html)?$`)

// stripFolderPage removes a folder path's index page, e.g.
// /foo/bar/contents.html becomes /foo/bar.
func stripFolderPage(folderPath string) string {
	return folderPageMatcher.ReplaceAllString(folderPath, "")
}

// extractLinks returns the href targets of all anchors in an HTML
// page, skipping anchors without one.
func extractLinks(page []byte) []string {
	document, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil
	}
	var links []string
	document.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		if href, ok := selection.Attr("href"); ok && href != "" {
			links = append(links, href)
		}
	})
	return links
}

// prependParentPath anchors relative links at their parent folder.
// Absolute links already under the parent are kept as-is.
func prependParentPath(parentPath string, links []string) []string {
	prefix := strings.TrimRight(parentPath, "/") + "/"
	paths := make([]string, 0, len(links))
	for _, link := range links {
		if strings.Contains(link, "://") {
			continue
		}
		joined := link
		if !strings.HasPrefix(link, prefix) {
			joined = prefix + strings.TrimLeft(link, "/")
		}
		// "." and ".." segments in listing links would otherwise send
		// the frontier above the folder being expanded.
		cleaned := path.Clean(joined)
		if strings.HasSuffix(joined, "/") && !strings.HasSuffix(cleaned, "/") {
			cleaned += "/"
		}
		paths = append(paths, cleaned)
	}
	return paths
}
