// Package fetcher is the feed-fetch collaborator: it turns a feed URL into an
// ordered list of entries or reports a feed-data error. No retries here, any
// retry policy belongs to the caller.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/umputun/feedbot/pkg/feed"
)

// maxBodySize caps the feed document we are willing to read
const maxBodySize = 5 * 1024 * 1024

// Fetcher retrieves and parses RSS/Atom feeds over HTTP.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// New creates a Fetcher with the given timeout and user agent.
func New(timeout time.Duration, userAgent string) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: userAgent,
	}
}

// Fetch downloads and parses the feed at url, returning its entries in
// document order. A malformed document or a document with no entries fails
// with feed.ErrFeedData carrying the parser's message.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]feed.Entry, error) {
	body, err := f.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer body.Close()

	parsed, err := gofeed.NewParser().Parse(io.LimitReader(body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", feed.ErrFeedData, err)
	}
	if len(parsed.Items) == 0 {
		return nil, fmt.Errorf("%w: no entries in %s", feed.ErrFeedData, url)
	}

	entries := make([]feed.Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		entries = append(entries, convertItem(item))
	}
	return entries, nil
}

// convertItem maps a gofeed item to a core entry
func convertItem(item *gofeed.Item) feed.Entry {
	e := feed.Entry{
		Title:   item.Title,
		Summary: item.Description,
		Link:    item.Link,
	}

	// link is the entry identity, fall back to guid when absent
	if e.Link == "" {
		e.Link = item.GUID
	}

	if item.Author != nil {
		e.Author = item.Author.Name
	}

	if item.PublishedParsed != nil {
		e.Published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		e.Published = *item.UpdatedParsed
	}

	return e
}

// get retrieves content from a URL
func (f *Fetcher) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)

	// add browser-like headers
	addBrowserHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return resp.Body, nil
}
