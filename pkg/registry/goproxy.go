package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/mod/module"
	"golang.org/x/mod/semver"

	"github.com/sambabib/dependency-inspector/pkg/cache"
)

// DefaultGoProxyURL is the public module proxy.
const DefaultGoProxyURL = "https://proxy.golang.org"

// GoProxySource lists module versions through the GOPROXY protocol.
type GoProxySource struct {
	ProxyURL   string
	httpClient *http.Client
	cache      *cache.Cache
}

// NewGoProxySource creates a GoProxySource. Only the first entry of a
// comma separated GOPROXY list is used.
func NewGoProxySource(proxyURL string, hc *http.Client, c *cache.Cache) *GoProxySource {
	if i := strings.IndexAny(proxyURL, ",|"); i >= 0 {
		proxyURL = proxyURL[:i]
	}
	if proxyURL == "" || proxyURL == "direct" || proxyURL == "off" {
		proxyURL = DefaultGoProxyURL
	}
	return &GoProxySource{ProxyURL: strings.TrimRight(proxyURL, "/"), httpClient: hc, cache: c}
}

type goProxyInfo struct {
	Version string `json:"Version"`
}

// Metadata implements Source.
func (s *GoProxySource) Metadata(ctx context.Context, path string) (*Metadata, error) {
	escaped, err := module.EscapePath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid module path %q: %w", path, err)
	}
	base := fmt.Sprintf("%s/%s/@v", s.ProxyURL, escaped)

	data, err := get(ctx, s.httpClient, s.cache, base+"/list", "text/plain")
	if err != nil {
		return nil, err
	}

	meta := &Metadata{Name: path, Tags: map[string]string{}}
	for _, line := range strings.Split(string(data), "\n") {
		v := strings.TrimSpace(line)
		if semver.IsValid(v) {
			meta.Versions = append(meta.Versions, v)
		}
	}
	semver.Sort(meta.Versions)

	// @latest also covers modules that only have pseudo-versions
	latest := ""
	if raw, err := get(ctx, s.httpClient, s.cache, fmt.Sprintf("%s/%s/@latest", s.ProxyURL, escaped), "application/json"); err == nil {
		var info goProxyInfo
		if json.Unmarshal(raw, &info) == nil && semver.IsValid(info.Version) {
			latest = info.Version
		}
	}
	if latest == "" {
		for _, v := range meta.Versions {
			if semver.Prerelease(v) == "" && semver.Compare(v, latest) > 0 {
				latest = v
			}
		}
	}
	if latest != "" {
		meta.Tags["latest"] = latest
	}
	return meta, nil
}
