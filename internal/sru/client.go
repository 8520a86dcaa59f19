// Package sru fetches pages of records from an SRU 2.0 searchRetrieve endpoint
// and extracts normalized documents from them.
package sru

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/retry"
)

// Observer receives fetch attempt outcomes, e.g. for metrics.
type Observer interface {
	ObserveFetch(duration time.Duration, err error)
	ObserveRetry()
}

// Client issues searchRetrieve requests with retry and backoff.
type Client struct {
	cfg        Config
	httpClient *http.Client
	policy     retry.Config
	log        logger.Interface
	observer   Observer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithObserver attaches an observer for fetch attempts.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates a new SRU client. The retry policy's IsRetryable is
// replaced by IsRetryable when unset.
func NewClient(cfg Config, policy retry.Config, log logger.Interface, opts ...Option) *Client {
	cfg = cfg.WithDefaults()
	if policy.IsRetryable == nil {
		policy.IsRetryable = IsRetryable
	}
	if log == nil {
		log = logger.NewNoOp()
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		policy:     policy,
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPage fetches up to pageSize records starting at offset. An empty slice
// means the stream is exhausted. Transient failures are retried according to
// the policy; the returned error is final.
func (c *Client) FetchPage(ctx context.Context, offset, pageSize int) ([]RawRecord, error) {
	if pageSize <= 0 {
		pageSize = c.cfg.PageSize
	}

	var page *Page
	policy := c.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		if c.observer != nil {
			c.observer.ObserveRetry()
		}
		c.log.Warn("Fetch failed, retrying",
			"start_record", offset,
			"attempt", attempt,
			"retry_in", delay,
			"error", err,
		)
	}

	err := retry.Do(ctx, policy, func(int) error {
		p, fetchErr := c.fetch(ctx, offset, pageSize)
		if fetchErr != nil {
			return fetchErr
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch page at %d: %w", offset, err)
	}

	return page.Records, nil
}

// Count returns numberOfRecords for the configured query, or -1 when the
// server does not report it.
func (c *Client) Count(ctx context.Context) (int, error) {
	var page *Page
	err := retry.Do(ctx, c.policy, func(int) error {
		p, fetchErr := c.fetch(ctx, 1, 0)
		if fetchErr != nil {
			return fetchErr
		}
		page = p
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return page.Total, nil
}

// fetch performs one searchRetrieve request under the per-call timeout.
func (c *Client) fetch(ctx context.Context, offset, maximumRecords int) (page *Page, err error) {
	started := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveFetch(time.Since(started), err)
		}
	}()

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	reqURL := c.requestURL(offset, maximumRecords)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/xml, text/xml")

	c.log.Debug("Fetching SRU page", "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.cfg.MaxResponseBytes))
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: reqURL}
	}

	limited := &limitedReader{r: resp.Body, remaining: c.cfg.MaxResponseBytes}
	page, err = ParsePage(limited, offset)
	if limited.exceeded {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrResponseTooLarge, c.cfg.MaxResponseBytes)
	}
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("read response: %w", reqCtx.Err())
		}
		return nil, err
	}

	return page, nil
}

func (c *Client) requestURL(offset, maximumRecords int) string {
	params := url.Values{}
	params.Set("version", c.cfg.Version)
	params.Set("operation", "searchRetrieve")
	params.Set("query", c.cfg.Query)
	params.Set("startRecord", strconv.Itoa(offset))
	params.Set("maximumRecords", strconv.Itoa(maximumRecords))
	params.Set("recordSchema", c.cfg.RecordSchema)

	return c.cfg.Endpoint + "?" + params.Encode()
}

// limitedReader fails the read once more than remaining bytes are consumed,
// so an oversized body is reported rather than silently truncated.
type limitedReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
}

var errBodyTooLarge = errors.New("response body too large")

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		var probe [1]byte
		if n, _ := l.r.Read(probe[:]); n > 0 {
			l.exceeded = true
			return 0, errBodyTooLarge
		}
		return 0, io.EOF
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}
