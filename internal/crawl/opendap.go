package crawl

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/metocean/harvester/internal/catalog"
	"github.com/metocean/harvester/internal/normalize"
)

// OpenDAPCrawler walks an OpenDAP server's HTML catalog. Sub-folders
// are links ending in /contents.html; sorting links (containing "?")
// are always excluded.
type OpenDAPCrawler struct {
	*DirectoryCrawler
	fetcher    *Fetcher
	normalizer normalize.Normalizer
}

var opendapSortLinks = regexp.MustCompile(`\?`)

// NewOpenDAPCrawler builds a crawler over an OpenDAP catalog.
func NewOpenDAPCrawler(cfg DirectoryConfig, normalizer normalize.Normalizer, logger *zap.Logger, fetcherOpts ...FetcherOption) (*OpenDAPCrawler, error) {
	if cfg.Exclude == nil {
		cfg.Exclude = opendapSortLinks
	}
	if cfg.Username != "" {
		fetcherOpts = append(fetcherOpts, WithCredentials(cfg.Username, cfg.Password))
	}
	crawler := &OpenDAPCrawler{
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

// ListFolderContents fetches the folder's contents page and returns
// the linked paths.
func (c *OpenDAPCrawler) ListFolderContents(ctx context.Context, folderPath string) ([]string, error) {
	body, err := c.fetcher.Get(ctx, c.resolveURL(folderPath), nil)
	if err != nil {
		return nil, err
	}
	return prependParentPath(stripFolderPage(folderPath), extractLinks(body)), nil
}

// IsFolder reports whether a linked path is a sub-catalog.
func (c *OpenDAPCrawler) IsFolder(_ context.Context, path string) (bool, error) {
	return strings.HasSuffix(path, "/contents.html"), nil
}

// DownloadURL joins the file path with the crawler's base URL.
func (c *OpenDAPCrawler) DownloadURL(_ context.Context, path string) (string, error) {
	return c.resolveURL(path), nil
}

// GetNormalizedAttributes fetches the dataset's DDX document, extracts
// its global attributes and variables, and normalizes them.
func (c *OpenDAPCrawler) GetNormalizedAttributes(ctx context.Context, info DatasetInfo) (catalog.NormalizedRecord, error) {
	ddxURL, err := ddxURLFor(info.URL)
	if err != nil {
		return catalog.NormalizedRecord{}, err
	}
	raw, err := fetchDDXAttributes(ctx, c.fetcher, ddxURL)
	if err != nil {
		return catalog.NormalizedRecord{}, err
	}
	mergeRawMetadata(raw, info.Metadata)
	return c.normalizer.Normalize(ctx, info.URL, raw)
}

// ddxURLFor converts a download URL into the URL of its DDX metadata
// document.
func ddxURLFor(datasetURL string) (string, error) {
	switch {
	case strings.HasSuffix(datasetURL, ".ddx"):
		return datasetURL, nil
	case strings.HasSuffix(datasetURL, ".dods"):
		return strings.TrimSuffix(datasetURL, "dods") + "ddx", nil
	default:
		return datasetURL + ".ddx", nil
	}
}

// fetchDDXAttributes downloads and parses a DDX document. The global
// attributes end up as top-level keys; the variables declaring a
// standard_name are collected under "raw_dataset_parameters", grid
// axes excluded.
func fetchDDXAttributes(ctx context.Context, fetcher *Fetcher, ddxURL string) (map[string]any, error) {
	body, err := fetcher.Get(ctx, ddxURL, nil)
	if err != nil {
		return nil, err
	}
	document, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse DDX %s: %w", ddxURL, err)
	}

	raw := make(map[string]any)
	globals := xmlquery.Find(document,
		"//*[local-name()='Attribute'][@name='NC_GLOBAL']/*[local-name()='Attribute']")
	for _, attribute := range globals {
		value := xmlquery.FindOne(attribute, "./*[local-name()='value']")
		if value == nil {
			continue
		}
		raw[attribute.SelectAttr("name")] = strings.TrimSpace(value.InnerText())
	}

	var parameters []string
	variables := xmlquery.Find(document,
		"//*[local-name()='Grid']/*[local-name()='Attribute'][@name='standard_name']")
	for _, attribute := range variables {
		value := xmlquery.FindOne(attribute, "./*[local-name()='value']")
		if value == nil {
			continue
		}
		name := strings.TrimSpace(value.InnerText())
		if name == "latitude" || name == "longitude" {
			continue
		}
		parameters = append(parameters, name)
	}
	raw["raw_dataset_parameters"] = parameters
	return raw, nil
}

// mergeRawMetadata overlays descriptor metadata onto fetched
// attributes; descriptor values win.
func mergeRawMetadata(raw, overlay map[string]any) {
	for key, value := range overlay {
		raw[key] = value
	}
}
