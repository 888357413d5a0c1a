package crawl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/metocean/harvester/internal/normalize"
)

const sampleDDX = `<?xml version="1.0" encoding="UTF-8"?>
<Dataset xmlns="http://xml.opendap.org/ns/DAP/3.2#" name="a.nc">
  <Attribute name="NC_GLOBAL" type="Container">
    <Attribute name="title" type="String">
      <value>VIIRS L2P SST</value>
    </Attribute>
    <Attribute name="time_coverage_start" type="String">
      <value>2020-01-01T00:00:00Z</value>
    </Attribute>
    <Attribute name="time_coverage_end" type="String">
      <value>2020-01-01T00:10:00Z</value>
    </Attribute>
    <Attribute name="footprint" type="String">
      <value>POLYGON((0 0,0 1,1 1,1 0,0 0))</value>
    </Attribute>
  </Attribute>
  <Grid name="sea_surface_temperature">
    <Attribute name="standard_name" type="String">
      <value>sea_surface_temperature</value>
    </Attribute>
  </Grid>
  <Grid name="lat">
    <Attribute name="standard_name" type="String">
      <value>latitude</value>
    </Attribute>
  </Grid>
</Dataset>`

func opendapServer(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/opendap/contents.html": `<html><body>
			<a href="2020/contents.html">2020/</a>
			<a href="contents.html?C=N;O=D">sort</a>
		</body></html>`,
		"/opendap/2020/contents.html": `<html><body>
			<a href="a.nc.html">a.nc</a>
			<a href="a.nc">a.nc</a>
		</body></html>`,
		"/opendap/2020/a.nc.ddx": sampleDDX,
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(page)) //nolint:errcheck
	}))
}

func TestOpenDAPCrawlerWalksCatalog(t *testing.T) {
	t.Parallel()

	server := opendapServer(t)
	defer server.Close()

	crawler, err := NewOpenDAPCrawler(DirectoryConfig{
		RootURL: server.URL + "/opendap/contents.html",
		Include: regexp.MustCompile(`\.nc$`),
	}, normalize.NewAttributeNormalizer(), zaptest.NewLogger(t), WithRetryWait(time.Millisecond))
	require.NoError(t, err)

	urls := crawlAll(t, crawler)
	assert.Equal(t, []string{server.URL + "/opendap/2020/a.nc"}, urls)
}

func TestOpenDAPGetNormalizedAttributes(t *testing.T) {
	t.Parallel()

	server := opendapServer(t)
	defer server.Close()

	crawler, err := NewOpenDAPCrawler(DirectoryConfig{
		RootURL: server.URL + "/opendap/contents.html",
		Include: regexp.MustCompile(`\.nc$`),
	}, normalize.NewAttributeNormalizer(), zaptest.NewLogger(t), WithRetryWait(time.Millisecond))
	require.NoError(t, err)

	record, err := crawler.GetNormalizedAttributes(context.Background(),
		DatasetInfo{URL: server.URL + "/opendap/2020/a.nc"})
	require.NoError(t, err)

	assert.Equal(t, "VIIRS L2P SST", record.Title)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), record.TimeCoverageStart)
	assert.Equal(t, "POLYGON((0 0,0 1,1 1,1 0,0 0))", record.GeometryWKT)
	// The latitude axis is not a dataset parameter.
	require.Len(t, record.Parameters, 1)
	assert.Equal(t, "sea_surface_temperature", record.Parameters[0].StandardName)
}

func TestDDXURLFor(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"http://x/a.nc":     "http://x/a.nc.ddx",
		"http://x/a.nc.ddx": "http://x/a.nc.ddx",
		"http://x/a.dods":   "http://x/a.ddx",
	}
	for input, expected := range cases {
		actual, err := ddxURLFor(input)
		require.NoError(t, err)
		assert.Equal(t, expected, actual)
	}
}

func TestThreddsDownloadURLPicksFileServerLink(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/thredds/dodsC/sst/a.nc.html">OPENDAP</a>
			<a href="/thredds/fileServer/sst/a.nc">HTTPServer</a>
		</body></html>`)) //nolint:errcheck
	}))
	defer server.Close()

	crawler, err := NewThreddsCrawler(DirectoryConfig{
		RootURL: server.URL + "/thredds/catalog/sst/catalog.html",
		Include: regexp.MustCompile(`\.nc$`),
	}, normalize.NewAttributeNormalizer(), zaptest.NewLogger(t), WithRetryWait(time.Millisecond))
	require.NoError(t, err)

	downloadURL, err := crawler.DownloadURL(context.Background(), "/thredds/catalog/sst/a.nc")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/thredds/fileServer/sst/a.nc", downloadURL)
}

func TestThreddsDDXURLRewrite(t *testing.T) {
	t.Parallel()

	crawler := &ThreddsCrawler{}
	_, err := crawler.GetNormalizedAttributes(context.Background(),
		DatasetInfo{URL: "http://x/thredds/dodsC/sst/a.nc"})
	require.ErrorContains(t, err, "not a Thredds HTTPServer URL")
}
