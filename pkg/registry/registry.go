package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/sambabib/dependency-inspector/pkg/cache"
	"github.com/sambabib/dependency-inspector/pkg/logger"
	"github.com/sambabib/dependency-inspector/pkg/version"
)

// ErrNotFound is returned when the registry does not know the package.
var ErrNotFound = errors.New("package not found in registry")

// Candidate is the best concrete version a registry offers for a range.
type Candidate struct {
	Name    string
	Version string
}

// Resolver answers "which published version best satisfies this range".
// It must be safe for concurrent use. A nil candidate with a nil error means
// nothing matched.
type Resolver interface {
	BestCandidate(ctx context.Context, name, rng string) (*Candidate, error)
}

// Metadata is the part of a registry document the resolver needs.
type Metadata struct {
	Name     string
	Versions []string
	Tags     map[string]string // dist-tags; "latest" when the registry has one
}

// Source fetches package metadata from one registry.
type Source interface {
	Metadata(ctx context.Context, name string) (*Metadata, error)
}

// DefaultMemoSize bounds the number of packages kept in memory per run.
const DefaultMemoSize = 2048

// Client resolves ranges against a Source. Metadata is memoized in an LRU so
// the in-range and latest probes for one package share a single fetch.
type Client struct {
	source Source
	memo   *lru.Cache[string, *Metadata]
	flight singleflight.Group
}

// NewClient wraps source with an in-memory memo of the given size.
func NewClient(source Source, size int) (*Client, error) {
	if size <= 0 {
		size = DefaultMemoSize
	}
	memo, err := lru.New[string, *Metadata](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}
	return &Client{source: source, memo: memo}, nil
}

// BestCandidate implements Resolver.
func (c *Client) BestCandidate(ctx context.Context, name, rng string) (*Candidate, error) {
	meta, err := c.metadata(ctx, name)
	if err != nil {
		return nil, err
	}
	best, err := Best(meta, rng)
	if err != nil {
		return nil, err
	}
	if best == "" {
		return nil, nil
	}
	return &Candidate{Name: name, Version: best}, nil
}

func (c *Client) metadata(ctx context.Context, name string) (*Metadata, error) {
	if meta, ok := c.memo.Get(name); ok {
		return meta, nil
	}
	v, err, _ := c.flight.Do(name, func() (interface{}, error) {
		if meta, ok := c.memo.Get(name); ok {
			return meta, nil
		}
		logger.Debugf("Registry: fetching metadata for %s", name)
		meta, err := c.source.Metadata(ctx, name)
		if err != nil {
			return nil, err
		}
		c.memo.Add(name, meta)
		return meta, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Metadata), nil
}

// Best picks the highest version in meta satisfying rng. Dist-tags are honoured,
// "latest" without a tag means the highest stable release. It returns "" when
// nothing matches and an error when rng cannot be parsed.
func Best(meta *Metadata, rng string) (string, error) {
	rng = strings.TrimSpace(rng)
	if tagged, ok := meta.Tags[rng]; ok && tagged != "" {
		return tagged, nil
	}
	if rng == "" || rng == version.LatestTag {
		rng = "*"
	}

	constraint, err := semver.NewConstraint(rng)
	if err != nil {
		return "", fmt.Errorf("invalid range %q for %s: %w", rng, meta.Name, err)
	}

	var best *semver.Version
	bestRaw := ""
	for _, raw := range meta.Versions {
		v, err := semver.NewVersion(raw)
		if err != nil {
			continue // not semver shaped, e.g. PEP 440 post releases
		}
		if !constraint.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestRaw = v, raw
		}
	}
	return bestRaw, nil
}

// Options configures NewResolver.
type Options struct {
	NpmURL     string
	PyPIURL    string
	GoProxyURL string
	HTTPClient *http.Client
	Cache      *cache.Cache
	MemoSize   int
}

// NewResolver returns the resolver for a registry ecosystem (npm, PyPI, Go).
func NewResolver(ecosystem string, opts Options) (*Client, error) {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	var source Source
	switch ecosystem {
	case "npm":
		source = NewNpmSource(opts.NpmURL, hc, opts.Cache)
	case "PyPI":
		source = NewPyPISource(opts.PyPIURL, hc, opts.Cache)
	case "Go":
		source = NewGoProxySource(opts.GoProxyURL, hc, opts.Cache)
	default:
		return nil, fmt.Errorf("no registry for ecosystem %q", ecosystem)
	}
	return NewClient(source, opts.MemoSize)
}
