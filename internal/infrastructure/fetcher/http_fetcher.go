package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"TrafficFeeds/internal/domain"
	"TrafficFeeds/internal/metrics"
	"TrafficFeeds/internal/ports"
)

const (
	defaultUserAgent    = "TrafficFeeds/1.0"
	defaultMaxBodyBytes = 32 << 20
)

var errBodyTooLarge = errors.New("response body exceeds limit")

// Options tunes the HTTP fetcher. Zero values fall back to defaults.
type Options struct {
	Timeout           time.Duration
	UserAgent         string
	MaxBodyBytes      int64
	RequestsPerSecond float64
}

// HTTPFetcher downloads CWWP2 feed envelopes, one attempt per call.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
	limiter      *rate.Limiter
	logger       *slog.Logger
}

var _ ports.FeedFetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher wires an HTTP client; a nil client gets one with opts.Timeout (20s by default).
func NewHTTPFetcher(client *http.Client, opts Options, logger *slog.Logger) *HTTPFetcher {
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &HTTPFetcher{
		client:       client,
		userAgent:    opts.UserAgent,
		maxBodyBytes: opts.MaxBodyBytes,
		limiter:      limiter,
		logger:       logger,
	}
}

// Fetch performs a GET on ep.URL and decodes the {"data": [...]} envelope.
func (f *HTTPFetcher) Fetch(ctx context.Context, ep domain.Endpoint) (domain.Envelope, error) {
	start := time.Now()
	env, err := f.fetch(ctx, ep)

	outcome := "ok"
	var fetchErr *domain.FetchError
	if errors.As(err, &fetchErr) {
		outcome = string(fetchErr.Kind)
	}
	metrics.RecordFetch(string(ep.Type), outcome, time.Since(start))
	f.debug("feed fetched", "url", ep.URL, "outcome", outcome, "records", len(env.Data), "elapsed", time.Since(start))

	return env, err
}

func (f *HTTPFetcher) fetch(ctx context.Context, ep domain.Endpoint) (domain.Envelope, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return domain.Envelope{}, transportError(ep.URL, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL, nil)
	if err != nil {
		return domain.Envelope{}, transportError(ep.URL, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.Envelope{}, transportError(ep.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return domain.Envelope{}, &domain.FetchError{Kind: domain.FetchBadStatus, URL: ep.URL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return domain.Envelope{}, transportError(ep.URL, fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > f.maxBodyBytes {
		return domain.Envelope{}, &domain.FetchError{Kind: domain.FetchDecode, URL: ep.URL, Status: resp.StatusCode, Err: errBodyTooLarge}
	}

	var env domain.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.Envelope{}, &domain.FetchError{Kind: domain.FetchDecode, URL: ep.URL, Status: resp.StatusCode, Err: err}
	}

	return env, nil
}

func transportError(url string, err error) *domain.FetchError {
	return &domain.FetchError{Kind: domain.FetchTransport, URL: url, Err: err}
}

func (f *HTTPFetcher) debug(msg string, args ...any) {
	if f.logger == nil {
		return
	}
	f.logger.Debug(msg, args...)
}
