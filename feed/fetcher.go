package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Fetcher retrieves the raw feed document. The client's timeout is the
// run's only hard deadline; if it fires the whole run aborts before any
// destructive step.
type Fetcher struct {
	client *http.Client
	url    string
}

func NewFetcher(client *http.Client, url string) *Fetcher {
	return &Fetcher{client: client, url: url}
}

// URL returns the configured feed location.
func (f *Fetcher) URL() string {
	return f.url
}

// Fetch downloads the feed document.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}
	return data, nil
}
