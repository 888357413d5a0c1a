package crawl

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/metocean/harvester/internal/catalog"
	"github.com/metocean/harvester/internal/normalize"
)

// LocalCrawler walks a directory tree on the local filesystem.
type LocalCrawler struct {
	*DirectoryCrawler
	normalizer normalize.Normalizer
}

// NewLocalCrawler builds a crawler rooted at a local directory path.
func NewLocalCrawler(cfg DirectoryConfig, normalizer normalize.Normalizer, logger *zap.Logger) (*LocalCrawler, error) {
	crawler := &LocalCrawler{normalizer: normalizer}
	core, err := newDirectoryCrawler(crawler, cfg, logger)
	if err != nil {
		return nil, err
	}
	crawler.DirectoryCrawler = core
	return crawler, nil
}

// ListFolderContents returns the absolute paths of a directory's
// entries.
func (c *LocalCrawler) ListFolderContents(_ context.Context, folderPath string) ([]string, error) {
	entries, err := os.ReadDir(folderPath)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		paths = append(paths, filepath.Join(folderPath, entry.Name()))
	}
	return paths, nil
}

// IsFolder reports whether a path is a directory.
func (c *LocalCrawler) IsFolder(_ context.Context, path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// DownloadURL returns the file path itself; local datasets are
// referenced by path.
func (c *LocalCrawler) DownloadURL(_ context.Context, path string) (string, error) {
	return path, nil
}

// GetNormalizedAttributes normalizes the descriptor's raw attributes.
func (c *LocalCrawler) GetNormalizedAttributes(ctx context.Context, info DatasetInfo) (catalog.NormalizedRecord, error) {
	return c.normalizer.Normalize(ctx, info.URL, info.Metadata)
}
