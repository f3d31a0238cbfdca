package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/sambabib/dependency-inspector/pkg/cache"
)

// DefaultNpmAuditURL is the npm registry quick audit endpoint.
const DefaultNpmAuditURL = "https://registry.npmjs.org/-/npm/v1/security/audits/quick"

// NpmFetcher queries the npm quick audit endpoint with a one-package tree.
type NpmFetcher struct {
	URL        string
	httpClient *http.Client
	cache      *cache.Cache
}

// NewNpmFetcher creates an NpmFetcher; an empty URL selects the public registry.
func NewNpmFetcher(url string, hc *http.Client, c *cache.Cache) *NpmFetcher {
	if url == "" {
		url = DefaultNpmAuditURL
	}
	return &NpmFetcher{URL: url, httpClient: hc, cache: c}
}

type npmAuditRequest struct {
	Name         string                       `json:"name"`
	Version      string                       `json:"version"`
	Requires     map[string]string            `json:"requires"`
	Dependencies map[string]npmAuditedVersion `json:"dependencies"`
}

type npmAuditedVersion struct {
	Version string `json:"version"`
}

type npmAdvisory struct {
	ID                 json.Number `json:"id"`
	Title              string      `json:"title"`
	Severity           string      `json:"severity"`
	VulnerableVersions string      `json:"vulnerable_versions"`
	PatchedVersions    string      `json:"patched_versions"`
	CVEs               []string    `json:"cves"`
	GitHubAdvisoryID   string      `json:"github_advisory_id"`
	Overview           string      `json:"overview"`
	Recommendation     string      `json:"recommendation"`
	URL                string      `json:"url"`
}

type npmAuditResponse struct {
	Advisories map[string]npmAdvisory `json:"advisories"`
}

// Fetch implements Fetcher.
func (f *NpmFetcher) Fetch(ctx context.Context, name, version string) ([]Advisory, error) {
	body := npmAuditRequest{
		Name:         "npm_audit_test",
		Version:      "1.0.0",
		Requires:     map[string]string{name: "^" + version},
		Dependencies: map[string]npmAuditedVersion{name: {Version: version}},
	}

	var resp npmAuditResponse
	if err := postJSON(ctx, f.httpClient, f.cache, f.URL, body, &resp); err != nil {
		return nil, err
	}
	return normalizeNpm(resp.Advisories), nil
}

// normalizeNpm flattens the advisories map. Keys are numeric ids and come out
// in ascending numeric order.
func normalizeNpm(advisories map[string]npmAdvisory) []Advisory {
	keys := make([]string, 0, len(advisories))
	for k := range advisories {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.ParseUint(keys[i], 10, 64)
		b, errB := strconv.ParseUint(keys[j], 10, 64)
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})

	out := make([]Advisory, 0, len(keys))
	for _, k := range keys {
		adv := advisories[k]
		id := adv.ID.String()
		if id == "" {
			id = k
		}
		cves := adv.CVEs
		if cves == nil {
			cves = []string{}
		}
		var aliases []string
		if adv.GitHubAdvisoryID != "" {
			aliases = []string{adv.GitHubAdvisoryID}
		}
		out = append(out, Advisory{
			ID:                 id,
			Title:              adv.Title,
			Severity:           adv.Severity,
			VulnerableVersions: adv.VulnerableVersions,
			CVEs:               cves,
			Aliases:            aliases,
			FixedIn:            patched(adv.PatchedVersions),
			Overview:           adv.Overview,
			Recommendation:     adv.Recommendation,
			URL:                adv.URL,
			Source:             "npm",
		})
	}
	return out
}

func patched(rng string) []string {
	if rng == "" || rng == "<0.0.0" {
		return nil
	}
	return []string{rng}
}
