// Package audit looks up known vulnerabilities for an installed package and
// normalizes every upstream advisory shape into Advisory.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sambabib/dependency-inspector/pkg/cache"
	"github.com/sambabib/dependency-inspector/pkg/registry"
)

// Advisory is one vulnerability affecting a package version.
type Advisory struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Severity           string   `json:"severity"`
	VulnerableVersions string   `json:"vulnerable_versions"`
	CVEs               []string `json:"cves"`
	Aliases            []string `json:"aliases,omitempty"`
	FixedIn            []string `json:"fixed_in,omitempty"`
	Overview           string   `json:"overview,omitempty"`
	Recommendation     string   `json:"recommendation,omitempty"`
	URL                string   `json:"url"`
	Source             string   `json:"source"`
}

// Fetcher returns the advisories for name at version. An empty slice means
// nothing is known; callers treat errors as "no advisories".
type Fetcher interface {
	Fetch(ctx context.Context, name, version string) ([]Advisory, error)
}

// Options configures ForEcosystem.
type Options struct {
	NpmAuditURL string
	OSVURL      string
	PyPIURL     string
	PreferOSV   bool // use OSV for every ecosystem
	HTTPClient  *http.Client
	Cache       *cache.Cache
}

// ForEcosystem picks the advisory source for a graph ecosystem. Ecosystems
// without a native audit endpoint go to OSV.
func ForEcosystem(ecosystem string, opts Options) Fetcher {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.PreferOSV {
		return NewOSVFetcher(opts.OSVURL, ecosystem, hc, opts.Cache)
	}
	switch ecosystem {
	case "npm":
		return NewNpmFetcher(opts.NpmAuditURL, hc, opts.Cache)
	case "PyPI":
		return NewPyPIFetcher(registry.NewPyPISource(opts.PyPIURL, hc, opts.Cache))
	default:
		return NewOSVFetcher(opts.OSVURL, ecosystem, hc, opts.Cache)
	}
}

// cveIDs collects the CVE identifiers among id and aliases, deduplicated.
func cveIDs(id string, aliases []string) []string {
	seen := make(map[string]bool)
	cves := []string{}
	for _, s := range append([]string{id}, aliases...) {
		if strings.HasPrefix(s, "CVE-") && !seen[s] {
			cves = append(cves, s)
			seen[s] = true
		}
	}
	return cves
}

// postJSON posts body and decodes the reply into out. Responses are cached by
// url and body since audit endpoints are POST only.
func postJSON(ctx context.Context, hc *http.Client, c *cache.Cache, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error encoding request: %w", err)
	}

	key := url + "\n" + string(payload)
	data, ok := c.Get(key)
	if !ok {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := hc.Do(req)
		if err != nil {
			return fmt.Errorf("HTTP request error: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("audit endpoint %s returned status %d", url, resp.StatusCode)
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("error reading response: %w", err)
		}
		_ = c.Set(key, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("error decoding JSON: %w", err)
	}
	return nil
}
