package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sambabib/dependency-inspector/pkg/graph"
	"github.com/sambabib/dependency-inspector/pkg/logger"
)

// manifest is a package.json.
type manifest struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Description          string            `json:"description"`
	License              any               `json:"license"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

func readManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read package.json: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse package.json: %w", err)
	}
	return &m, nil
}

// declared lists the manifest's dependency sections as top-level declarations.
func (m *manifest) declared(workspace string) []graph.DeclaredDependency {
	var out []graph.DeclaredDependency
	out = append(out, declare(workspace, graph.KindDependencies, m.Dependencies)...)
	out = append(out, declare(workspace, graph.KindDevDependencies, m.DevDependencies)...)
	out = append(out, declare(workspace, graph.KindPeerDependencies, m.PeerDependencies)...)
	out = append(out, declare(workspace, graph.KindOptionalDependencies, m.OptionalDependencies)...)
	return out
}

// licenseString accepts both the SPDX string and the legacy {"type": ...} object.
func licenseString(v any) string {
	switch l := v.(type) {
	case string:
		return l
	case map[string]any:
		if t, ok := l["type"].(string); ok {
			return t
		}
	}
	return ""
}

// describeInstalled fills description and license from the package.json of an
// installed copy when one exists in dir and carries the locked version. Values
// the lockfile already provided are kept.
func describeInstalled(pkg *graph.Package, dir string) {
	path := filepath.Join(dir, "package.json")
	if !fileExists(path) {
		return
	}
	m, err := readManifest(path)
	if err != nil {
		logger.Debugf("Ignoring manifest of %s: %v", pkg.Name(), err)
		return
	}
	if m.Version != "" && pkg.Version != "" && m.Version != pkg.Version {
		return
	}
	if pkg.Description == "" {
		pkg.Description = m.Description
	}
	if pkg.License == "" {
		pkg.License = licenseString(m.License)
	}
}
