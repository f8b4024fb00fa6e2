package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultUserAgent is a desktop browser string; several sources reject
	// obvious bot agents.
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	defaultTimeout    = 30 * time.Second
	defaultMaxBody    = 10 << 20
	defaultMaxRetries = 3
)

// StatusError is a non-2xx upstream response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d %s", e.URL, e.Status, http.StatusText(e.Status))
}

// Fetcher performs GET requests with retries on transient failures
// (network errors, 429 and 5xx).
type Fetcher struct {
	client     *http.Client
	userAgent  string
	maxBody    int64
	maxRetries uint64
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

func WithHTTPClient(c *http.Client) FetcherOption { return func(f *Fetcher) { f.client = c } }
func WithUserAgent(ua string) FetcherOption       { return func(f *Fetcher) { f.userAgent = ua } }
func WithMaxRetries(n uint64) FetcherOption       { return func(f *Fetcher) { f.maxRetries = n } }
func WithFetchLogger(l *slog.Logger) FetcherOption { return func(f *Fetcher) { f.logger = l } }

// WithBackOff sets the retry schedule. Tests use backoff.ZeroBackOff.
func WithBackOff(fn func() backoff.BackOff) FetcherOption {
	return func(f *Fetcher) { f.newBackOff = fn }
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: defaultTimeout,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		userAgent:  DefaultUserAgent,
		maxBody:    defaultMaxBody,
		maxRetries: defaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = time.Minute
			return b
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Get fetches url and returns the body.
func (f *Fetcher) Get(ctx context.Context, url, accept string) ([]byte, error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), f.maxRetries), ctx)
	return backoff.RetryNotifyWithData(func() ([]byte, error) {
		return f.get(ctx, url, accept)
	}, policy, func(err error, wait time.Duration) {
		f.logger.Debug("fetch retry", "url", url, "wait", wait, "error", err)
	})
}

// GetJSON fetches url and decodes the JSON body into v.
func (f *Fetcher) GetJSON(ctx context.Context, url string, v any) error {
	body, err := f.Get(ctx, url, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("GET %s: decode: %w", url, err)
	}
	return nil
}

func (f *Fetcher) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		serr := &StatusError{URL: url, Status: resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("GET %s: read body: %w", url, err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, backoff.Permanent(fmt.Errorf("GET %s: body exceeds %d bytes", url, f.maxBody))
	}
	return body, nil
}
