package lockfile

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sambabib/dependency-inspector/pkg/graph"
	"github.com/sambabib/dependency-inspector/pkg/logger"
)

// YarnProvider reads a yarn berry (v2+) yarn.lock together with the
// package.json of every workspace it lists.
type YarnProvider struct{}

func (p *YarnProvider) Name() string { return "yarn" }

func (p *YarnProvider) Detect(dir string) bool {
	return fileExists(filepath.Join(dir, "yarn.lock"))
}

type yarnEntry struct {
	Version          string            `yaml:"version"`
	Resolution       string            `yaml:"resolution"`
	Dependencies     map[string]string `yaml:"dependencies"`
	PeerDependencies map[string]string `yaml:"peerDependencies"`
	LanguageName     string            `yaml:"languageName"`
	LinkType         string            `yaml:"linkType"`
}

func (p *YarnProvider) Load(_ context.Context, dir string) (*graph.Graph, error) {
	data, err := readFile(dir, "yarn.lock")
	if err != nil {
		return nil, err
	}
	if bytes.Contains(data, []byte("# yarn lockfile v1")) {
		return nil, fmt.Errorf("%w: yarn classic lockfile, only yarn 2+ lockfiles are read", ErrUnsupportedLockfile)
	}

	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse yarn.lock: %w", err)
	}
	if _, ok := doc["__metadata"]; !ok {
		return nil, fmt.Errorf("%w: yarn.lock has no __metadata block", ErrUnsupportedLockfile)
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		if k != "__metadata" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	g := &graph.Graph{
		Ecosystem:      "npm",
		PackageManager: "yarn",
		Resolutions:    map[string]string{},
	}
	for _, key := range keys {
		node := doc[key]
		var entry yarnEntry
		if err := node.Decode(&entry); err != nil {
			return nil, fmt.Errorf("failed to parse yarn.lock entry %q: %w", key, err)
		}

		ident, reference := splitLocator(entry.Resolution)
		if ident == "" {
			logger.Warnf("Skipping yarn.lock entry %q without resolution", key)
			continue
		}
		pkg := graph.Package{
			Ident:        graph.ParseIdent(ident),
			Version:      entry.Version,
			Reference:    reference,
			Dependencies: descriptors(entry.Dependencies),
			Virtual:      strings.HasPrefix(reference, "virtual:"),
			Workspace:    strings.HasPrefix(reference, "workspace:"),
		}

		if pkg.Workspace {
			wsPath := strings.TrimPrefix(reference, "workspace:")
			m, err := readManifest(filepath.Join(dir, wsPath, "package.json"))
			if err != nil {
				return nil, fmt.Errorf("workspace %s: %w", wsPath, err)
			}
			pkg.Description = m.Description
			pkg.License = licenseString(m.License)
			g.Declared = append(g.Declared, m.declared(wsPath)...)
		} else if !pkg.Virtual {
			// nodeLinker: node-modules installs; pnp projects have no such folder
			describeInstalled(&pkg, filepath.Join(dir, "node_modules", filepath.FromSlash(ident)))
		}
		g.Packages = append(g.Packages, pkg)

		for _, desc := range strings.Split(key, ",") {
			desc = strings.TrimSpace(desc)
			g.Resolutions[desc] = entry.Version
			// package.json ranges omit the default npm: protocol
			if name, rng := splitLocator(desc); strings.HasPrefix(rng, "npm:") {
				g.Resolutions[name+"@"+strings.TrimPrefix(rng, "npm:")] = entry.Version
			}
		}
	}

	if len(g.Declared) == 0 {
		m, err := readManifest(filepath.Join(dir, "package.json"))
		if err != nil {
			return nil, err
		}
		g.Declared = m.declared(".")
	}
	return g, nil
}

// splitLocator splits "name@reference". Scoped names keep their leading @.
func splitLocator(s string) (string, string) {
	if len(s) < 2 {
		return "", ""
	}
	i := strings.Index(s[1:], "@")
	if i < 0 {
		return s, ""
	}
	return s[:i+1], s[i+2:]
}
