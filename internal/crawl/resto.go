package crawl

import (
	"context"
	"encoding/json"
	"fmt"

	geom "github.com/twpayne/go-geom"
	geojson "github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkt"
	"go.uber.org/zap"

	"github.com/metocean/harvester/internal/catalog"
	"github.com/metocean/harvester/internal/normalize"
)

const restoDateFormat = "2006-01-02T15:04:05Z"

// RestoCrawler searches a Resto-based EO finder API (Creodias and
// friends). Results are sorted by publication date ascending so that
// products published during the harvest are not skipped.
type RestoCrawler struct {
	*PaginatedAPICrawler
	normalizer normalize.Normalizer
}

// NewRestoCrawler builds a crawler over a Resto search endpoint.
func NewRestoCrawler(cfg PaginatedConfig, normalizer normalize.Normalizer, logger *zap.Logger, fetcherOpts ...FetcherOption) *RestoCrawler {
	searchTerms := map[string]string{
		"sortParam": "published",
		"sortOrder": "ascending",
	}
	for key, value := range cfg.SearchTerms {
		searchTerms[key] = value
	}
	if cfg.TimeRange.Start != nil {
		searchTerms["startDate"] = cfg.TimeRange.Start.Format(restoDateFormat)
	}
	if cfg.TimeRange.End != nil {
		searchTerms["completionDate"] = cfg.TimeRange.End.Format(restoDateFormat)
	}
	cfg.SearchTerms = searchTerms

	crawler := &RestoCrawler{normalizer: normalizer}
	crawler.PaginatedAPICrawler = newPaginatedAPICrawler(cfg, paginationScheme{
		offsetName: "page",
		sizeName:   "maxRecords",
		minOffset:  1,
	}, parseRestoPage, logger, fetcherOpts...)
	return crawler
}

// restoFeature is one entry of a Resto search response.
type restoFeature struct {
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

// parseRestoPage extracts descriptors from one page of GeoJSON search
// results. The entry's geometry is converted to WKT and merged into
// the raw metadata.
func parseRestoPage(page []byte) ([]DatasetInfo, error) {
	var response struct {
		Features []restoFeature `json:"features"`
	}
	if err := json.Unmarshal(page, &response); err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}
	infos := make([]DatasetInfo, 0, len(response.Features))
	for _, feature := range response.Features {
		downloadURL, err := restoDownloadURL(feature.Properties)
		if err != nil {
			return nil, err
		}
		metadata := feature.Properties
		if geometryWKT, err := geoJSONToWKT(feature.Geometry); err == nil {
			metadata["geometry"] = geometryWKT
		}
		infos = append(infos, DatasetInfo{URL: downloadURL, Metadata: metadata})
	}
	return infos, nil
}

func restoDownloadURL(properties map[string]any) (string, error) {
	services, ok := properties["services"].(map[string]any)
	if !ok {
		return "", fmt.Errorf("search result has no services")
	}
	download, ok := services["download"].(map[string]any)
	if !ok {
		return "", fmt.Errorf("search result has no download service")
	}
	downloadURL, ok := download["url"].(string)
	if !ok || downloadURL == "" {
		return "", fmt.Errorf("search result has no download URL")
	}
	return downloadURL, nil
}

func geoJSONToWKT(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("empty geometry")
	}
	var geometry geom.T
	if err := geojson.Unmarshal(raw, &geometry); err != nil {
		return "", err
	}
	return wkt.Marshal(geometry)
}

// GetNormalizedAttributes normalizes the metadata gathered from the
// search results; no extra fetch is needed.
func (c *RestoCrawler) GetNormalizedAttributes(ctx context.Context, info DatasetInfo) (catalog.NormalizedRecord, error) {
	return c.normalizer.Normalize(ctx, info.URL, info.Metadata)
}
