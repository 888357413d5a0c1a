package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/metocean/harvester/internal/crawl"
)

const describeDocument = `<?xml version="1.0" encoding="UTF-8"?>
<OpenSearchDescription xmlns="http://a9.com/-/spec/opensearch/1.1/"
    xmlns:parameters="http://a9.com/-/spec/opensearch/extensions/parameters/1.0/">
  <Url type="application/json" rel="results" template="search.json">
    <parameters:Parameter name="processingLevel" value="{eo:processingLevel}">
      <parameters:Option value="LEVEL1"/>
      <parameters:Option value="LEVEL2"/>
    </parameters:Parameter>
    <parameters:Parameter name="cloudCover" value="{eo:cloudCover}" minInclusive="0" maxExclusive="101"/>
    <parameters:Parameter name="productType" value="{eo:productType}" pattern="^[A-Z0-9_]+$"/>
    <parameters:Parameter name="page" value="{startPage}" minInclusive="1"/>
  </Url>
</OpenSearchDescription>`

// restoServer fakes the endpoints a Resto provider talks to and
// records the search queries it receives.
type restoServer struct {
	*httptest.Server
	mu       sync.Mutex
	searches []url.Values
}

func newRestoServer(t *testing.T) *restoServer {
	t.Helper()
	server := &restoServer{}
	server.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/stac/collections":
			_, _ = w.Write([]byte(`{"collections": [{"id": "SENTINEL-1"}, {"id": "SENTINEL-2"}]}`))
		case "/resto/api/collections/SENTINEL-1/describe.xml":
			_, _ = w.Write([]byte(describeDocument))
		case "/resto/api/collections/SENTINEL-1/search.json":
			server.mu.Lock()
			server.searches = append(server.searches, r.URL.Query())
			server.mu.Unlock()
			_, _ = w.Write([]byte(`{"features": []}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestRestoProvider(t *testing.T, serverURL string) Provider {
	t.Helper()
	p, err := New(Settings{Name: "creodias", Type: "resto", URL: serverURL}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return p
}

func TestRestoSearchBuildsSearchTerms(t *testing.T) {
	t.Parallel()

	server := newRestoServer(t)
	p := newTestRestoProvider(t, server.URL)

	results, err := p.Search(context.Background(), map[string]any{
		"collection":      "SENTINEL-1",
		"processingLevel": "LEVEL1",
		"cloudCover":      50,
		"start_time":      "2020-01-01T00:00:00Z",
		"end_time":        "2020-02-01T00:00:00Z",
		"location":        "POLYGON((0 0,10 0,10 10,0 10,0 0))",
	})
	require.NoError(t, err)
	assert.Equal(t, "creodias", results.Ingest.Provider)

	require.NoError(t, results.Crawler.SetInitialState(context.Background()))
	_, err = results.Crawler.Next(context.Background())
	require.ErrorIs(t, err, crawl.ErrDone)

	require.Len(t, server.searches, 1)
	query := server.searches[0]
	assert.Equal(t, "1", query.Get("page"))
	assert.Equal(t, "100", query.Get("maxRecords"))
	assert.Equal(t, "published", query.Get("sortParam"))
	assert.Equal(t, "ascending", query.Get("sortOrder"))
	assert.Equal(t, "all", query.Get("status"))
	assert.Equal(t, "ESA-DATASET", query.Get("dataset"))
	assert.Equal(t, "LEVEL1", query.Get("processingLevel"))
	assert.Equal(t, "50", query.Get("cloudCover"))
	assert.Equal(t, "2020-01-01T00:00:00Z", query.Get("startDate"))
	assert.Equal(t, "2020-02-01T00:00:00Z", query.Get("completionDate"))
	assert.Equal(t, "POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0))", query.Get("geometry"))
	// The collection selects the endpoint, it is not a search term.
	assert.Empty(t, query.Get("collection"))
}

func TestRestoSearchRequiresCollection(t *testing.T) {
	t.Parallel()

	server := newRestoServer(t)
	p := newTestRestoProvider(t, server.URL)

	_, err := p.Search(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection")
}

func TestRestoSearchRejectsUnknownCollection(t *testing.T) {
	t.Parallel()

	server := newRestoServer(t)
	p := newTestRestoProvider(t, server.URL)

	_, err := p.Search(context.Background(), map[string]any{"collection": "LANDSAT-9"})
	require.Error(t, err)
}

func TestRestoSearchValidatesCollectionParameters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		parameters map[string]any
	}{
		{
			name: "option outside the enumerated set",
			parameters: map[string]any{
				"collection":      "SENTINEL-1",
				"processingLevel": "LEVEL3",
			},
		},
		{
			name: "integer above the exclusive bound",
			parameters: map[string]any{
				"collection": "SENTINEL-1",
				"cloudCover": 101,
			},
		},
		{
			name: "string not matching the pattern",
			parameters: map[string]any{
				"collection":  "SENTINEL-1",
				"productType": "not valid!",
			},
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := newRestoServer(t)
			p := newTestRestoProvider(t, server.URL)
			_, err := p.Search(context.Background(), tc.parameters)
			require.Error(t, err)
		})
	}
}

func TestRestoSearchAcceptsBoundaryInteger(t *testing.T) {
	t.Parallel()

	server := newRestoServer(t)
	p := newTestRestoProvider(t, server.URL)

	// maxExclusive="101" admits 100.
	_, err := p.Search(context.Background(), map[string]any{
		"collection": "SENTINEL-1",
		"cloudCover": 100,
	})
	require.NoError(t, err)
}

func TestRestoProviderFailsWithoutCollections(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"collections": []}`))
	}))
	t.Cleanup(server.Close)

	p := newTestRestoProvider(t, server.URL)
	_, err := p.Search(context.Background(), map[string]any{"collection": "SENTINEL-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no searchable collections")
}
