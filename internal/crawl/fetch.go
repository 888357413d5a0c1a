package crawl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/metocean/harvester/internal/metrics"
)

const (
	fetchMaxTries    = 5
	fetchInitialWait = 30 * time.Second
)

// Fetcher performs HTTP GET requests with retries. Connection errors,
// timeouts and 5xx responses are retried with exponential backoff
// (base 30s, doubling) up to 5 attempts; 4xx and other responses fail
// immediately.
type Fetcher struct {
	client      *http.Client
	username    string
	password    string
	logger      *zap.Logger
	initialWait time.Duration
	maxTries    uint64
}

// FetcherOption customizes a Fetcher.
type FetcherOption func(*Fetcher)

// WithCredentials attaches basic-auth credentials to every request.
// The credentials survive redirects within the same parent domain
// (e.g. scihub.example.org to apihub.example.org) but are stripped
// when redirected elsewhere.
func WithCredentials(username, password string) FetcherOption {
	return func(f *Fetcher) {
		f.username = username
		f.password = password
	}
}

// WithRetryWait overrides the initial retry wait. Used by tests to
// avoid multi-second sleeps.
func WithRetryWait(wait time.Duration) FetcherOption {
	return func(f *Fetcher) { f.initialWait = wait }
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = client }
}

// NewFetcher builds a Fetcher.
func NewFetcher(logger *zap.Logger, opts ...FetcherOption) *Fetcher {
	metrics.Init()
	fetcher := &Fetcher{
		client:      &http.Client{Timeout: 2 * time.Minute},
		logger:      logger,
		initialWait: fetchInitialWait,
		maxTries:    fetchMaxTries,
	}
	for _, opt := range opts {
		opt(fetcher)
	}
	if fetcher.username != "" {
		fetcher.installAuthRedirectPolicy()
	}
	return fetcher
}

// installAuthRedirectPolicy re-adds the Authorization header when a
// redirect stays within the same parent domain. net/http strips it on
// any cross-host redirect.
func (f *Fetcher) installAuthRedirectPolicy() {
	base := *f.client
	base.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return fmt.Errorf("stopped after 10 redirects")
		}
		if sameParentDomain(req.URL.Hostname(), via[0].URL.Hostname()) {
			req.SetBasicAuth(f.username, f.password)
		}
		return nil
	}
	f.client = &base
}

// sameParentDomain reports whether two hostnames share all labels
// except the first, e.g. "scihub.copernicus.eu" and
// "apihub.copernicus.eu".
func sameParentDomain(a, b string) bool {
	aParts := strings.Split(a, ".")
	bParts := strings.Split(b, ".")
	if len(aParts) != len(bParts) || len(aParts) <= 2 {
		return a == b
	}
	for i := 1; i < len(aParts); i++ {
		if aParts[i] != bParts[i] {
			return false
		}
	}
	return true
}

// Get fetches a URL, optionally with query parameters. On failure the
// returned error is a *FetchError carrying the retry classification.
func (f *Fetcher) Get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	requestURL := rawURL
	if len(params) > 0 {
		separator := "?"
		if strings.Contains(rawURL, "?") {
			separator = "&"
		}
		requestURL = rawURL + separator + params.Encode()
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), f.maxTries-1), ctx)
	var body []byte
	permanentFailure := false
	operation := func() error {
		var err error
		body, err = f.getOnce(ctx, requestURL)
		if err == nil {
			return nil
		}
		if fetchErr, ok := err.(*FetchError); ok && !fetchErr.Kind().Retryable() {
			permanentFailure = true
			f.logger.Error("could not get page", zap.String("url", requestURL), zap.Error(err))
			return backoff.Permanent(err)
		}
		metrics.ObserveFetchRetry()
		f.logger.Warn("error while sending request, will retry",
			zap.String("url", requestURL), zap.Error(err))
		return err
	}
	if err := backoff.Retry(operation, policy); err != nil {
		if !permanentFailure {
			f.logger.Error("max retries reached", zap.String("url", requestURL))
		}
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) newBackOff() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.initialWait
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = 16 * f.initialWait
	policy.MaxElapsedTime = 0
	return policy
}

func (f *Fetcher) getOnce(ctx context.Context, requestURL string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, &FetchError{URL: requestURL, Err: err}
	}
	if f.username != "" {
		request.SetBasicAuth(f.username, f.password)
	}

	response, err := f.client.Do(request)
	if err != nil {
		return nil, &FetchError{URL: requestURL, Err: err}
	}
	defer response.Body.Close()

	if response.StatusCode >= 400 {
		io.Copy(io.Discard, response.Body) //nolint:errcheck // drain for connection reuse
		return nil, &FetchError{URL: requestURL, StatusCode: response.StatusCode}
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, &FetchError{URL: requestURL, Err: err}
	}
	return body, nil
}
