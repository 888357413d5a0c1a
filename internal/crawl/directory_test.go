package crawl

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeBackend serves a directory tree held in memory. Keys are folder
// paths, values their children; any path not present as a key is a
// file.
type fakeBackend struct {
	tree     map[string][]string
	failures map[string]error
	listed   []string
}

func (b *fakeBackend) ListFolderContents(_ context.Context, folderPath string) ([]string, error) {
	if err := b.failures[folderPath]; err != nil {
		return nil, err
	}
	b.listed = append(b.listed, folderPath)
	return b.tree[folderPath], nil
}

func (b *fakeBackend) IsFolder(_ context.Context, path string) (bool, error) {
	_, ok := b.tree[path]
	return ok, nil
}

func (b *fakeBackend) DownloadURL(_ context.Context, path string) (string, error) {
	return "http://archive.example.com" + path, nil
}

func newTestCrawler(t *testing.T, backend *fakeBackend, cfg DirectoryConfig) *DirectoryCrawler {
	t.Helper()
	crawler, err := newDirectoryCrawler(backend, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, crawler.SetInitialState(context.Background()))
	return crawler
}

func collectURLs(t *testing.T, crawler *DirectoryCrawler) []string {
	t.Helper()
	var urls []string
	for {
		info, err := crawler.Next(context.Background())
		if errors.Is(err, ErrDone) {
			break
		}
		require.NoError(t, err)
		urls = append(urls, info.URL)
	}
	sort.Strings(urls)
	return urls
}

func archiveTree() map[string][]string {
	return map[string][]string{
		"/data":          {"/data/2020/", "/data/2021/"},
		"/data/2020/":    {"/data/2020/01/"},
		"/data/2021/":    {"/data/2021/01/"},
		"/data/2020/01/": {"/data/2020/01/a.nc", "/data/2020/01/b.nc.gz"},
		"/data/2021/01/": {"/data/2021/01/c.nc"},
	}
}

func TestDirectoryCrawlerIncludePattern(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{tree: archiveTree()}
	crawler := newTestCrawler(t, backend, DirectoryConfig{
		RootURL: "http://archive.example.com/data",
		Include: regexp.MustCompile(`\.nc$`),
	})

	urls := collectURLs(t, crawler)
	assert.Equal(t, []string{
		"http://archive.example.com/data/2020/01/a.nc",
		"http://archive.example.com/data/2021/01/c.nc",
	}, urls)
}

func TestDirectoryCrawlerTimeRangeFilter(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{tree: archiveTree()}
	crawler := newTestCrawler(t, backend, DirectoryConfig{
		RootURL: "http://archive.example.com/data",
		Include: regexp.MustCompile(`\.nc$`),
		TimeRange: NewTimeRange(
			time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)),
	})

	// 2020/01 is outside the range, so only c.nc survives; the pruned
	// folder is never listed.
	urls := collectURLs(t, crawler)
	assert.Equal(t, []string{"http://archive.example.com/data/2021/01/c.nc"}, urls)
	assert.NotContains(t, backend.listed, "/data/2020/01/")
}

func TestDirectoryCrawlerExcludeWins(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{tree: archiveTree()}
	crawler := newTestCrawler(t, backend, DirectoryConfig{
		RootURL: "http://archive.example.com/data",
		Include: regexp.MustCompile(`\.nc$`),
		Exclude: regexp.MustCompile(`/2020/`),
	})

	urls := collectURLs(t, crawler)
	assert.Equal(t, []string{"http://archive.example.com/data/2021/01/c.nc"}, urls)
}

func TestDirectoryCrawlerSkipsParentLinks(t *testing.T) {
	t.Parallel()

	tree := archiveTree()
	// Listings frequently contain a link back to the parent.
	tree["/data/2020/"] = append(tree["/data/2020/"], "/data")
	backend := &fakeBackend{tree: tree}
	crawler := newTestCrawler(t, backend, DirectoryConfig{
		RootURL: "http://archive.example.com/data",
		Include: regexp.MustCompile(`\.nc$`),
	})

	urls := collectURLs(t, crawler)
	assert.Len(t, urls, 2)
}

func TestDirectoryCrawlerContinuesPastListingFailure(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		tree:     archiveTree(),
		failures: map[string]error{"/data/2020/01/": errors.New("boom")},
	}
	crawler := newTestCrawler(t, backend, DirectoryConfig{
		RootURL: "http://archive.example.com/data",
		Include: regexp.MustCompile(`\.nc$`),
	})

	urls := collectURLs(t, crawler)
	assert.Equal(t, []string{"http://archive.example.com/data/2021/01/c.nc"}, urls)
}

func TestDirectoryCrawlerIdempotentReset(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{tree: archiveTree()}
	crawler := newTestCrawler(t, backend, DirectoryConfig{
		RootURL: "http://archive.example.com/data",
		Include: regexp.MustCompile(`\.nc$`),
	})

	first := collectURLs(t, crawler)
	require.NoError(t, crawler.SetInitialState(context.Background()))
	second := collectURLs(t, crawler)
	assert.Equal(t, first, second)
}

func TestDirectoryCrawlerExportRestoreResumes(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{tree: archiveTree()}
	crawler := newTestCrawler(t, backend, DirectoryConfig{
		RootURL: "http://archive.example.com/data",
		Include: regexp.MustCompile(`\.nc$`),
	})

	first, err := crawler.Next(context.Background())
	require.NoError(t, err)
	state := crawler.ExportState()

	// A fresh crawler restored from the state yields exactly the
	// remaining descriptors.
	restored := newTestCrawler(t, &fakeBackend{tree: archiveTree()}, DirectoryConfig{
		RootURL: "http://archive.example.com/data",
		Include: regexp.MustCompile(`\.nc$`),
	})
	restored.RestoreState(state)

	remaining := collectURLs(t, restored)
	assert.NotContains(t, remaining, first.URL)
	assert.Len(t, remaining, 1)
}

func TestDirectoryCrawlerCancellation(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{tree: archiveTree()}
	crawler := newTestCrawler(t, backend, DirectoryConfig{
		RootURL: "http://archive.example.com/data",
		Include: regexp.MustCompile(`\.nc$`),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := crawler.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, KindInterrupted, Classify(err))
}

func TestDatasetInfoEqual(t *testing.T) {
	t.Parallel()

	a := DatasetInfo{URL: "http://x/a.nc", Metadata: map[string]any{"k": "v"}}
	b := DatasetInfo{URL: "http://x/a.nc", Metadata: map[string]any{"k": "v"}}
	c := DatasetInfo{URL: "http://x/a.nc", Metadata: map[string]any{"k": "w"}}
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(DatasetInfo{URL: "http://x/b.nc"}))
}
