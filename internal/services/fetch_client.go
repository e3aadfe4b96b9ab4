package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/Vinke1/collectorverse-tcg-sub002/internal/metrics"
)

const (
	fetchDefaultTimeout = 30 * time.Second
	fetchUserAgent      = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

	// 429 handling: start around 2s, double up to the cap, give up
	// after a bounded number of retries. Everything else fails fast;
	// only explicit rate limiting earns a retry.
	defaultBackoffInitial = 2 * time.Second
	defaultBackoffCap     = 30 * time.Second
	defaultMaxRetries     = 5
)

// FetchClient is the shared HTTP plumbing for every source: fixed
// politeness spacing between requests, bounded exponential backoff on
// HTTP 429, browser User-Agent. One client per request class (listing
// pages vs detail fetches) so each keeps its own spacing.
type FetchClient struct {
	client  *http.Client
	limiter *rate.Limiter
	source  string

	backoffInitial time.Duration
	backoffCap     time.Duration
	maxRetries     int
}

// NewFetchClient builds a client that spaces requests at least
// minInterval apart.
func NewFetchClient(source string, minInterval time.Duration) *FetchClient {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	return &FetchClient{
		client: &http.Client{
			Timeout: fetchDefaultTimeout,
		},
		limiter:        rate.NewLimiter(rate.Every(minInterval), 1),
		source:         source,
		backoffInitial: defaultBackoffInitial,
		backoffCap:     defaultBackoffCap,
		maxRetries:     defaultMaxRetries,
	}
}

// Get fetches a URL and returns the body bytes. A 404 returns
// (nil, nil): the caller decides whether missing is an error.
func (c *FetchClient) Get(ctx context.Context, rawURL string) ([]byte, error) {
	body, _, err := c.fetch(ctx, rawURL, "")
	return body, err
}

// GetDocument fetches a URL and parses it as HTML. A 404 returns
// (nil, nil).
func (c *FetchClient) GetDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	body, _, err := c.fetch(ctx, rawURL, "")
	if err != nil || body == nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", rawURL, err)
	}
	return doc, nil
}

// GetJSON fetches a URL and decodes the JSON body into v. found is
// false on 404.
func (c *FetchClient) GetJSON(ctx context.Context, rawURL string, v interface{}) (bool, error) {
	body, _, err := c.fetch(ctx, rawURL, "")
	if err != nil {
		return false, err
	}
	if body == nil {
		return false, nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return false, fmt.Errorf("failed to decode response from %s: %w", rawURL, err)
	}
	return true, nil
}

// Download fetches binary content, optionally with a Referer header for
// sources that hotlink-protect their images. Returns body bytes and the
// Content-Type; (nil, "", nil) on 404.
func (c *FetchClient) Download(ctx context.Context, rawURL, referer string) ([]byte, string, error) {
	return c.fetch(ctx, rawURL, referer)
}

func (c *FetchClient) fetch(ctx context.Context, rawURL, referer string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%s returned status %d for %s", c.source, resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response from %s: %w", rawURL, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// do sends the request, waiting out the politeness interval first and
// retrying with exponential backoff when the source answers 429.
func (c *FetchClient) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	backoff := c.backoffInitial

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		metrics.FetchRequestsTotal.WithLabelValues(c.source).Inc()
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", req.URL, err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		resp.Body.Close()

		if attempt >= c.maxRetries {
			return nil, fmt.Errorf("%s still rate limited after %d retries", c.source, c.maxRetries)
		}

		metrics.FetchBackoffsTotal.Inc()
		log.Printf("[Fetcher] %s rate limited (429), backing off %s", c.source, backoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.backoffCap {
			backoff = c.backoffCap
		}
	}
}
