package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/sambabib/dependency-inspector/pkg/cache"
)

// DefaultPyPIURL is the PyPI JSON API base.
const DefaultPyPIURL = "https://pypi.org/pypi"

// PyPISource reads release lists from the PyPI JSON API.
type PyPISource struct {
	BaseURL    string
	httpClient *http.Client
	cache      *cache.Cache
}

// NewPyPISource creates a PyPISource; an empty URL selects pypi.org.
func NewPyPISource(baseURL string, hc *http.Client, c *cache.Cache) *PyPISource {
	if baseURL == "" {
		baseURL = DefaultPyPIURL
	}
	return &PyPISource{BaseURL: strings.TrimRight(baseURL, "/"), httpClient: hc, cache: c}
}

// PyPIProject is the subset of https://pypi.org/pypi/<name>/json we read.
type PyPIProject struct {
	Info struct {
		Name    string `json:"name"`
		Version string `json:"version"` // latest overall version
		Summary string `json:"summary"`
		License string `json:"license"`
	} `json:"info"`
	Releases        map[string][]PyPIFile `json:"releases"`
	Vulnerabilities []PyPIVulnerability   `json:"vulnerabilities"`
}

// PyPIFile is one distribution file of a release.
type PyPIFile struct {
	Filename string `json:"filename"`
	Yanked   bool   `json:"yanked"`
}

// PyPIVulnerability is an entry of the per-release vulnerabilities list.
type PyPIVulnerability struct {
	ID        string   `json:"id"`
	Aliases   []string `json:"aliases"`
	Details   string   `json:"details"`
	Summary   string   `json:"summary"`
	FixedIn   []string `json:"fixed_in"`
	Link      string   `json:"link"`
	Withdrawn *string  `json:"withdrawn"`
}

var pypiNameSeparators = regexp.MustCompile(`[-_.]+`)

// NormalizePyPIName applies PEP 503 name normalization.
func NormalizePyPIName(name string) string {
	return strings.ToLower(pypiNameSeparators.ReplaceAllString(name, "-"))
}

// Project fetches the project document. When release is set the
// release-specific endpoint is used, which also lists known vulnerabilities.
func (s *PyPISource) Project(ctx context.Context, name, release string) (*PyPIProject, error) {
	url := fmt.Sprintf("%s/%s/json", s.BaseURL, NormalizePyPIName(name))
	if release != "" {
		url = fmt.Sprintf("%s/%s/%s/json", s.BaseURL, NormalizePyPIName(name), release)
	}
	data, err := get(ctx, s.httpClient, s.cache, url, "application/json")
	if err != nil {
		return nil, err
	}
	var doc PyPIProject
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error unmarshalling PyPI data for %s: %w", name, err)
	}
	return &doc, nil
}

// Metadata implements Source. Releases whose files are all yanked, or which
// have no files at all, are not offered.
func (s *PyPISource) Metadata(ctx context.Context, name string) (*Metadata, error) {
	doc, err := s.Project(ctx, name, "")
	if err != nil {
		return nil, err
	}

	meta := &Metadata{Name: name, Tags: map[string]string{}}
	for v, files := range doc.Releases {
		if allYanked(files) {
			continue
		}
		meta.Versions = append(meta.Versions, v)
	}
	sort.Strings(meta.Versions)
	if doc.Info.Version != "" {
		meta.Tags["latest"] = doc.Info.Version
	}
	return meta, nil
}

func allYanked(files []PyPIFile) bool {
	for _, f := range files {
		if !f.Yanked {
			return false
		}
	}
	return true
}
