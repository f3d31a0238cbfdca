package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/sambabib/dependency-inspector/pkg/cache"
)

// DefaultNpmRegistryURL is the public npm registry.
const DefaultNpmRegistryURL = "https://registry.npmjs.org"

// abbreviated packuments are much smaller and carry everything we need
const npmAccept = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8"

// NpmSource reads packuments from an npm-compatible registry (npm, yarn).
type NpmSource struct {
	RegistryURL string // Allow overriding the registry URL for testing
	httpClient  *http.Client
	cache       *cache.Cache
}

// NewNpmSource creates an NpmSource; an empty URL selects the public registry.
func NewNpmSource(registryURL string, hc *http.Client, c *cache.Cache) *NpmSource {
	if registryURL == "" {
		registryURL = DefaultNpmRegistryURL
	}
	return &NpmSource{RegistryURL: strings.TrimRight(registryURL, "/"), httpClient: hc, cache: c}
}

type packument struct {
	Name     string                     `json:"name"`
	DistTags map[string]string          `json:"dist-tags"`
	Versions map[string]json.RawMessage `json:"versions"`
}

// Metadata implements Source.
func (s *NpmSource) Metadata(ctx context.Context, name string) (*Metadata, error) {
	url := fmt.Sprintf("%s/%s", s.RegistryURL, escapeNpmName(name))
	data, err := get(ctx, s.httpClient, s.cache, url, npmAccept)
	if err != nil {
		return nil, err
	}

	var doc packument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid packument for %s: %w", name, err)
	}

	meta := &Metadata{Name: name, Tags: doc.DistTags}
	for v := range doc.Versions {
		meta.Versions = append(meta.Versions, v)
	}
	sort.Strings(meta.Versions)
	if meta.Tags == nil {
		meta.Tags = map[string]string{}
	}
	return meta, nil
}

// escapeNpmName encodes the scope separator the way the registry expects.
func escapeNpmName(name string) string {
	if strings.HasPrefix(name, "@") {
		return strings.Replace(name, "/", "%2f", 1)
	}
	return name
}
