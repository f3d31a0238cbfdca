package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sambabib/dependency-inspector/pkg/cache"
)

const userAgent = "depinspect (+https://github.com/sambabib/dependency-inspector)"

// get fetches url, consulting and filling the disk cache. Only 200 responses
// are cached; a 404 or 410 maps to ErrNotFound.
func get(ctx context.Context, hc *http.Client, c *cache.Cache, url, accept string) ([]byte, error) {
	if data, ok := c.Get(url); ok {
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	_ = c.Set(url, data)
	return data, nil
}
