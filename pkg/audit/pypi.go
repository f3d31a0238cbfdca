package audit

import (
	"context"

	"github.com/sambabib/dependency-inspector/pkg/registry"
)

// PyPIFetcher reads the vulnerabilities PyPI lists for a release.
type PyPIFetcher struct {
	source *registry.PyPISource
}

func NewPyPIFetcher(source *registry.PyPISource) *PyPIFetcher {
	return &PyPIFetcher{source: source}
}

// Fetch implements Fetcher.
func (f *PyPIFetcher) Fetch(ctx context.Context, name, version string) ([]Advisory, error) {
	doc, err := f.source.Project(ctx, name, version)
	if err != nil {
		return nil, err
	}
	return normalizePyPI(doc.Vulnerabilities), nil
}

func normalizePyPI(vulns []registry.PyPIVulnerability) []Advisory {
	out := make([]Advisory, 0, len(vulns))
	for _, v := range vulns {
		if v.Withdrawn != nil {
			continue
		}
		title := v.Summary
		if title == "" {
			title = v.ID
		}
		out = append(out, Advisory{
			ID:       v.ID,
			Title:    title,
			CVEs:     cveIDs(v.ID, v.Aliases),
			Aliases:  v.Aliases,
			FixedIn:  v.FixedIn,
			Overview: v.Details,
			URL:      v.Link,
			Source:   "pypi",
		})
	}
	return out
}
