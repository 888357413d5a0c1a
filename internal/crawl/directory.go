package crawl

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// directoryBackend abstracts how a concrete repository lists folders
// and distinguishes files from sub-folders. All frontier management,
// filtering and time-range logic is shared by DirectoryCrawler.
type directoryBackend interface {
	// ListFolderContents returns the absolute paths of a folder's
	// children.
	ListFolderContents(ctx context.Context, folderPath string) ([]string, error)
	// IsFolder reports whether a path points to a folder.
	IsFolder(ctx context.Context, path string) (bool, error)
	// DownloadURL derives the download URL for a matched file path.
	// An empty URL means the path has no downloadable resource.
	DownloadURL(ctx context.Context, path string) (string, error)
}

// DirectoryConfig carries the parameters common to all tree-walking
// crawlers.
type DirectoryConfig struct {
	// RootURL is the URL of the repository to explore.
	RootURL string
	// TimeRange restricts the crawl to folders whose inferred date
	// coverage intersects it.
	TimeRange TimeRange
	// Include filters the yielded files; only matching paths are
	// returned.
	Include *regexp.Regexp
	// Exclude always wins over Include and also prunes folders.
	Exclude *regexp.Regexp
	// Username and Password are passed to backends that support
	// authentication.
	Username string
	Password string
}

// DirectoryCrawler walks a directory-like resource space. The frontier
// is a stack of unexplored folder paths; expanding one folder
// classifies each child as sub-folder (queued, subject to the folder
// time filter) or file (buffered as a descriptor when it matches the
// include pattern).
type DirectoryCrawler struct {
	backend directoryBackend
	cfg     DirectoryConfig
	rootURL *url.URL
	logger  *zap.Logger

	frontier []string
	buffer   []DatasetInfo
}

func newDirectoryCrawler(backend directoryBackend, cfg DirectoryConfig, logger *zap.Logger) (*DirectoryCrawler, error) {
	rootURL, err := url.Parse(cfg.RootURL)
	if err != nil {
		return nil, err
	}
	return &DirectoryCrawler{
		backend: backend,
		cfg:     cfg,
		rootURL: rootURL,
		logger:  logger,
	}, nil
}

// baseURL returns the root URL without its path.
func (c *DirectoryCrawler) baseURL() string {
	return c.rootURL.Scheme + "://" + c.rootURL.Host
}

// SetInitialState resets the frontier to the root folder and clears
// the buffer. It is idempotent: the crawler can be reset and re-run
// any number of times.
func (c *DirectoryCrawler) SetInitialState(_ context.Context) error {
	c.buffer = nil
	rootPath := c.rootURL.Path
	if rootPath == "" {
		rootPath = "/"
	}
	c.frontier = []string{rootPath}
	return nil
}

// ExportState returns the serializable cursor.
func (c *DirectoryCrawler) ExportState() State {
	state := State{
		Frontier: make([]string, len(c.frontier)),
		Buffer:   make([]DatasetInfo, len(c.buffer)),
	}
	copy(state.Frontier, c.frontier)
	copy(state.Buffer, c.buffer)
	return state
}

// RestoreState replaces the cursor with a previously exported one.
func (c *DirectoryCrawler) RestoreState(state State) {
	c.frontier = make([]string, len(state.Frontier))
	copy(c.frontier, state.Frontier)
	c.buffer = make([]DatasetInfo, len(state.Buffer))
	copy(c.buffer, state.Buffer)
}

// Next yields one descriptor, expanding frontier folders until the
// buffer is non-empty or the tree is exhausted.
func (c *DirectoryCrawler) Next(ctx context.Context) (DatasetInfo, error) {
	for len(c.buffer) == 0 {
		if err := ctx.Err(); err != nil {
			return DatasetInfo{}, err
		}
		if len(c.frontier) == 0 {
			return DatasetInfo{}, ErrDone
		}
		folder := c.frontier[len(c.frontier)-1]
		c.frontier = c.frontier[:len(c.frontier)-1]
		c.processFolder(ctx, folder)
	}
	info := c.buffer[len(c.buffer)-1]
	c.buffer = c.buffer[:len(c.buffer)-1]
	return info, nil
}

// processFolder expands one folder into frontier entries and buffered
// descriptors. Listing failures are logged and the folder skipped so
// one bad resource does not abort the crawl.
func (c *DirectoryCrawler) processFolder(ctx context.Context, folderPath string) {
	c.logger.Debug("looking for resources", zap.String("folder", folderPath))
	contents, err := c.backend.ListFolderContents(ctx, folderPath)
	if err != nil {
		c.logger.Error("could not list folder, skipping",
			zap.String("folder", folderPath), zap.Error(err))
		return
	}
	for _, path := range contents {
		if c.cfg.Exclude != nil && c.cfg.Exclude.MatchString(path) {
			continue
		}
		// Links back to the root (or above it) would loop forever.
		if strings.HasPrefix(strings.TrimRight(c.rootURL.Path, "/"), strings.TrimRight(path, "/")) {
			continue
		}
		isFolder, err := c.backend.IsFolder(ctx, path)
		if err != nil {
			c.logger.Error("could not classify path, skipping",
				zap.String("path", path), zap.Error(err))
			continue
		}
		if isFolder {
			c.addFolderToProcess(path)
		}
		if c.cfg.Include != nil && c.cfg.Include.MatchString(path) {
			c.addResult(ctx, path)
		}
	}
}

// addFolderToProcess queues a folder unless its inferred date coverage
// falls outside the crawler's time range.
func (c *DirectoryCrawler) addFolderToProcess(path string) {
	if !c.cfg.TimeRange.Intersects(FolderCoverage(path)) {
		c.logger.Debug("folder outside time range, skipping", zap.String("folder", path))
		return
	}
	for _, queued := range c.frontier {
		if queued == path {
			return
		}
	}
	c.frontier = append(c.frontier, path)
}

// addResult buffers a descriptor for a matched file path.
func (c *DirectoryCrawler) addResult(ctx context.Context, path string) {
	downloadURL, err := c.backend.DownloadURL(ctx, path)
	if err != nil {
		c.logger.Error("could not resolve download URL, skipping",
			zap.String("path", path), zap.Error(err))
		return
	}
	if downloadURL == "" {
		return
	}
	info := DatasetInfo{URL: downloadURL}
	for _, buffered := range c.buffer {
		if buffered.Equal(info) {
			return
		}
	}
	c.logger.Debug("adding resource", zap.String("url", downloadURL))
	c.buffer = append(c.buffer, info)
}

// resolveURL joins a repository path with the crawler's base URL.
func (c *DirectoryCrawler) resolveURL(path string) string {
	reference, err := url.Parse(path)
	if err != nil {
		return c.baseURL() + path
	}
	return c.rootURL.ResolveReference(reference).String()
}
