package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/metocean/harvester/internal/normalize"
)

func restoFeatureJSON(id int) map[string]any {
	return map[string]any{
		"geometry": map[string]any{
			"type":        "Point",
			"coordinates": []float64{2.5, 44.0},
		},
		"properties": map[string]any{
			"title":          fmt.Sprintf("product-%d", id),
			"startDate":      "2020-05-04T10:00:00Z",
			"completionDate": "2020-05-04T10:05:00Z",
			"services": map[string]any{
				"download": map[string]any{
					"url": fmt.Sprintf("https://zipper.example.com/download/%d", id),
				},
			},
		},
	}
}

// restoServer serves two pages of two products each, then an empty
// page.
func restoServer(t *testing.T, requests *[]map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		seen := map[string]string{}
		for key := range query {
			seen[key] = query.Get(key)
		}
		*requests = append(*requests, seen)

		page, _ := strconv.Atoi(query.Get("page"))
		var features []map[string]any
		if page <= 2 {
			features = []map[string]any{
				restoFeatureJSON(page * 10),
				restoFeatureJSON(page*10 + 1),
			}
		}
		response, err := json.Marshal(map[string]any{"features": features})
		require.NoError(t, err)
		w.Write(response) //nolint:errcheck
	}))
}

func TestRestoCrawlerPaginates(t *testing.T) {
	t.Parallel()

	var requests []map[string]string
	server := restoServer(t, &requests)
	defer server.Close()

	crawler := NewRestoCrawler(PaginatedConfig{
		URL:         server.URL + "/resto/api/collections/Sentinel1/search.json",
		SearchTerms: map[string]string{"processingLevel": "LEVEL1"},
		TimeRange: NewTimeRange(
			time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)),
		PageSize: 2,
	}, normalize.NewAttributeNormalizer(), zaptest.NewLogger(t), WithRetryWait(time.Millisecond))

	urls := crawlAll(t, crawler)
	assert.Len(t, urls, 4)
	assert.Contains(t, urls, "https://zipper.example.com/download/10")
	assert.Contains(t, urls, "https://zipper.example.com/download/21")

	// Three requests: two full pages plus the empty terminating one.
	require.Len(t, requests, 3)
	first := requests[0]
	assert.Equal(t, "1", first["page"])
	assert.Equal(t, "2", first["maxRecords"])
	assert.Equal(t, "LEVEL1", first["processingLevel"])
	assert.Equal(t, "published", first["sortParam"])
	assert.Equal(t, "ascending", first["sortOrder"])
	assert.Equal(t, "2020-05-01T00:00:00Z", first["startDate"])
	assert.Equal(t, "2020-06-01T00:00:00Z", first["completionDate"])
	assert.Equal(t, "3", requests[2]["page"])
}

func TestRestoCrawlerExportRestore(t *testing.T) {
	t.Parallel()

	var requests []map[string]string
	server := restoServer(t, &requests)
	defer server.Close()

	newCrawler := func() *RestoCrawler {
		return NewRestoCrawler(PaginatedConfig{
			URL:      server.URL + "/search.json",
			PageSize: 2,
		}, normalize.NewAttributeNormalizer(), zaptest.NewLogger(t), WithRetryWait(time.Millisecond))
	}

	crawler := newCrawler()
	require.NoError(t, crawler.SetInitialState(context.Background()))
	first, err := crawler.Next(context.Background())
	require.NoError(t, err)
	state := crawler.ExportState()
	assert.Equal(t, 2, state.Offset)

	restored := newCrawler()
	restored.RestoreState(state)
	var rest []string
	for {
		info, nextErr := restored.Next(context.Background())
		if errors.Is(nextErr, ErrDone) {
			break
		}
		require.NoError(t, nextErr)
		rest = append(rest, info.URL)
	}
	assert.NotContains(t, rest, first.URL)
	assert.Len(t, rest, 3)
}

func TestRestoCrawlerNormalizesSearchMetadata(t *testing.T) {
	t.Parallel()

	feature, err := json.Marshal(restoFeatureJSON(1))
	require.NoError(t, err)
	infos, err := parseRestoPage([]byte(`{"features":[` + string(feature) + `]}`))
	require.NoError(t, err)
	require.Len(t, infos, 1)

	crawler := NewRestoCrawler(PaginatedConfig{URL: "https://finder.example.com/search.json"},
		normalize.NewAttributeNormalizer(), zaptest.NewLogger(t))
	record, err := crawler.GetNormalizedAttributes(context.Background(), infos[0])
	require.NoError(t, err)
	assert.Equal(t, "product-1", record.Title)
	assert.Equal(t, time.Date(2020, 5, 4, 10, 0, 0, 0, time.UTC), record.TimeCoverageStart)
	assert.Equal(t, "POINT (2.5 44)", record.GeometryWKT)
}

func TestParseRestoPageRejectsMalformedResults(t *testing.T) {
	t.Parallel()

	_, err := parseRestoPage([]byte(`{"features":[{"properties":{}}]}`))
	require.ErrorContains(t, err, "services")
}
