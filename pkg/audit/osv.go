package audit

import (
	"context"
	"net/http"
	"strings"

	"github.com/sambabib/dependency-inspector/pkg/cache"
)

// DefaultOSVURL is the OSV single package query endpoint.
const DefaultOSVURL = "https://api.osv.dev/v1/query"

// OSVFetcher queries osv.dev for one package version.
type OSVFetcher struct {
	URL        string
	Ecosystem  string // OSV ecosystem name: npm, PyPI, Go
	httpClient *http.Client
	cache      *cache.Cache
}

func NewOSVFetcher(url, ecosystem string, hc *http.Client, c *cache.Cache) *OSVFetcher {
	if url == "" {
		url = DefaultOSVURL
	}
	return &OSVFetcher{URL: url, Ecosystem: ecosystem, httpClient: hc, cache: c}
}

type osvQuery struct {
	Package struct {
		Name      string `json:"name"`
		Ecosystem string `json:"ecosystem"`
	} `json:"package"`
	Version string `json:"version"`
}

type osvVulnerability struct {
	ID       string   `json:"id"`
	Aliases  []string `json:"aliases"`
	Summary  string   `json:"summary"`
	Details  string   `json:"details"`
	Severity []struct {
		Type  string `json:"type"`
		Score string `json:"score"`
	} `json:"severity"`
	Affected []struct {
		Package struct {
			Name      string `json:"name"`
			Ecosystem string `json:"ecosystem"`
		} `json:"package"`
		Ranges []struct {
			Type   string `json:"type"`
			Events []struct {
				Introduced   string `json:"introduced,omitempty"`
				Fixed        string `json:"fixed,omitempty"`
				LastAffected string `json:"last_affected,omitempty"`
			} `json:"events"`
		} `json:"ranges"`
	} `json:"affected"`
	References []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"references"`
	DatabaseSpecific struct {
		Severity string `json:"severity"`
	} `json:"database_specific"`
}

type osvResponse struct {
	Vulns []osvVulnerability `json:"vulns"`
}

// Fetch implements Fetcher.
func (f *OSVFetcher) Fetch(ctx context.Context, name, version string) ([]Advisory, error) {
	var q osvQuery
	q.Package.Name = name
	q.Package.Ecosystem = f.Ecosystem
	q.Version = version

	var resp osvResponse
	if err := postJSON(ctx, f.httpClient, f.cache, f.URL, q, &resp); err != nil {
		return nil, err
	}

	out := make([]Advisory, 0, len(resp.Vulns))
	for _, v := range resp.Vulns {
		out = append(out, normalizeOSV(v, name))
	}
	return out, nil
}

func normalizeOSV(v osvVulnerability, name string) Advisory {
	adv := Advisory{
		ID:       v.ID,
		Title:    v.Summary,
		Severity: strings.ToLower(v.DatabaseSpecific.Severity),
		CVEs:     cveIDs(v.ID, v.Aliases),
		Aliases:  v.Aliases,
		Overview: v.Details,
		URL:      "https://osv.dev/vulnerability/" + v.ID,
		Source:   "osv",
	}
	if adv.Title == "" {
		adv.Title = v.ID
	}
	if adv.Severity == "" && len(v.Severity) > 0 {
		adv.Severity = v.Severity[0].Score
	}
	for _, ref := range v.References {
		if ref.Type == "ADVISORY" {
			adv.URL = ref.URL
			break
		}
	}

	var ranges []string
	for _, a := range v.Affected {
		if a.Package.Name != "" && a.Package.Name != name {
			continue
		}
		for _, r := range a.Ranges {
			if r.Type == "GIT" {
				continue
			}
			var lower string
			for _, e := range r.Events {
				switch {
				case e.Introduced != "":
					lower = ">=" + e.Introduced
				case e.Fixed != "":
					ranges = append(ranges, strings.TrimSpace(lower+" <"+e.Fixed))
					adv.FixedIn = append(adv.FixedIn, e.Fixed)
					lower = ""
				case e.LastAffected != "":
					ranges = append(ranges, strings.TrimSpace(lower+" <="+e.LastAffected))
					lower = ""
				}
			}
			if lower != "" {
				ranges = append(ranges, lower)
			}
		}
	}
	adv.VulnerableVersions = strings.Join(ranges, " || ")
	return adv
}
