package crawl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"

	"github.com/metocean/harvester/internal/catalog"
	"github.com/metocean/harvester/internal/normalize"
)

const ftpMaxTries = 5

// FTPCrawler walks an FTP server's directory tree. The control
// connection is a live handle: it is excluded from the exported state
// and re-established lazily after a restore.
type FTPCrawler struct {
	*DirectoryCrawler
	normalizer normalize.Normalizer
	conn       *ftp.ServerConn
}

// NewFTPCrawler builds a crawler rooted at an ftp:// URL. Missing
// credentials default to anonymous access.
func NewFTPCrawler(cfg DirectoryConfig, normalizer normalize.Normalizer, logger *zap.Logger) (*FTPCrawler, error) {
	if !strings.HasPrefix(cfg.RootURL, "ftp://") {
		return nil, fmt.Errorf("the root url must start with 'ftp://'")
	}
	if cfg.Username == "" {
		cfg.Username = "anonymous"
	}
	if cfg.Password == "" {
		cfg.Password = "anonymous"
	}
	crawler := &FTPCrawler{normalizer: normalizer}
	core, err := newDirectoryCrawler(crawler, cfg, logger)
	if err != nil {
		return nil, err
	}
	crawler.DirectoryCrawler = core
	return crawler, nil
}

// SetInitialState resets the cursor and (re)connects.
func (c *FTPCrawler) SetInitialState(ctx context.Context) error {
	if err := c.DirectoryCrawler.SetInitialState(ctx); err != nil {
		return err
	}
	return c.connect(ctx)
}

// RestoreState replaces the cursor; the control connection is dropped
// and re-established on the next operation.
func (c *FTPCrawler) RestoreState(state State) {
	c.disconnect()
	c.DirectoryCrawler.RestoreState(state)
}

// Close terminates the control connection.
func (c *FTPCrawler) Close() {
	c.disconnect()
}

func (c *FTPCrawler) disconnect() {
	if c.conn != nil {
		c.conn.Quit() //nolint:errcheck // best-effort teardown
		c.conn = nil
	}
}

func (c *FTPCrawler) connect(ctx context.Context) error {
	c.disconnect()
	address := c.rootURL.Host
	if c.rootURL.Port() == "" {
		address = net.JoinHostPort(c.rootURL.Hostname(), "21")
	}
	conn, err := ftp.Dial(address, ftp.DialWithContext(ctx), ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("connect %s: %w", address, err)
	}
	if err := conn.Login(c.cfg.Username, c.cfg.Password); err != nil {
		// Logging in twice answers 503 or 230, which is harmless.
		var protoErr *textproto.Error
		if !errors.As(err, &protoErr) || (protoErr.Code != 503 && protoErr.Code != 230) {
			conn.Quit() //nolint:errcheck // already failing
			return fmt.Errorf("login %s: %w", address, err)
		}
	}
	c.conn = conn
	return nil
}

func (c *FTPCrawler) ensureConnected(ctx context.Context) error {
	if c.conn == nil {
		return c.connect(ctx)
	}
	return nil
}

// retryReconnect runs an FTP operation, re-creating the connection and
// retrying when the server times the session out (421) or the network
// drops. Other protocol errors propagate unchanged.
func (c *FTPCrawler) retryReconnect(ctx context.Context, operation func() error) error {
	var lastErr error
	for try := 0; try < ftpMaxTries; try++ {
		if err := c.ensureConnected(ctx); err != nil {
			lastErr = err
			continue
		}
		err := operation()
		if err == nil {
			return nil
		}
		var protoErr *textproto.Error
		if errors.As(err, &protoErr) && protoErr.Code != ftp.StatusNotAvailable {
			return err
		}
		lastErr = err
		c.logger.Info("re-initializing the FTP connection", zap.Error(err))
		c.disconnect()
	}
	return lastErr
}

// ListFolderContents lists a folder's entries as absolute paths.
func (c *FTPCrawler) ListFolderContents(ctx context.Context, folderPath string) (contents []string, err error) {
	err = c.retryReconnect(ctx, func() error {
		contents, err = c.conn.NameList(folderPath)
		return err
	})
	return contents, err
}

// IsFolder probes a path by attempting to change into it.
func (c *FTPCrawler) IsFolder(ctx context.Context, path string) (isFolder bool, err error) {
	err = c.retryReconnect(ctx, func() error {
		changeErr := c.conn.ChangeDir(path)
		var protoErr *textproto.Error
		if errors.As(changeErr, &protoErr) && protoErr.Code >= 500 {
			isFolder = false
			return nil
		}
		if changeErr != nil {
			return changeErr
		}
		isFolder = true
		return nil
	})
	return isFolder, err
}

// DownloadURL rebuilds the full ftp:// URL of a file path.
func (c *FTPCrawler) DownloadURL(_ context.Context, path string) (string, error) {
	return "ftp://" + c.rootURL.Host + path, nil
}

// GetNormalizedAttributes normalizes the descriptor's raw attributes.
func (c *FTPCrawler) GetNormalizedAttributes(ctx context.Context, info DatasetInfo) (catalog.NormalizedRecord, error) {
	return c.normalizer.Normalize(ctx, info.URL, info.Metadata)
}
