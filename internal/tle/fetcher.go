package tle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const celestrakBase = "https://celestrak.org/NORAD/elements/gp.php"

// Fetcher downloads raw TLE text for Celestrak catalog groups
// (e.g. "starlink", "oneweb", "active").
type Fetcher struct {
	baseURL    string
	httpClient *http.Client
}

// NewFetcher creates a Fetcher. baseURL overrides the Celestrak endpoint,
// mainly for tests; pass "" for the default.
func NewFetcher(baseURL string) *Fetcher {
	if baseURL == "" {
		baseURL = celestrakBase
	}
	return &Fetcher{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchGroup performs an HTTP GET for the given group and returns the raw
// TLE text. The caller is responsible for persisting it.
func (f *Fetcher) FetchGroup(ctx context.Context, group string) ([]byte, error) {
	u := fmt.Sprintf("%s?GROUP=%s&FORMAT=tle", f.baseURL, url.QueryEscape(group))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching TLE group %q: %w", group, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d fetching group %q", resp.StatusCode, group)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return body, nil
}
