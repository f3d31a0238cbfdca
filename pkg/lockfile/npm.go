package lockfile

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sambabib/dependency-inspector/pkg/graph"
)

// NpmProvider reads package-lock.json (lockfileVersion 2 and 3).
type NpmProvider struct{}

func (p *NpmProvider) Name() string { return "npm" }

func (p *NpmProvider) Detect(dir string) bool {
	return fileExists(filepath.Join(dir, "package-lock.json")) ||
		fileExists(filepath.Join(dir, "npm-shrinkwrap.json"))
}

type npmLock struct {
	Name            string                  `json:"name"`
	LockfileVersion int                     `json:"lockfileVersion"`
	Packages        map[string]npmLockEntry `json:"packages"`
}

type npmLockEntry struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Resolved             string            `json:"resolved"`
	Link                 bool              `json:"link"`
	Dev                  bool              `json:"dev"`
	License              any               `json:"license"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

func (p *NpmProvider) Load(_ context.Context, dir string) (*graph.Graph, error) {
	name := "package-lock.json"
	if !fileExists(filepath.Join(dir, name)) {
		name = "npm-shrinkwrap.json"
	}
	data, err := readFile(dir, name)
	if err != nil {
		return nil, err
	}
	var lock npmLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	if lock.LockfileVersion < 2 || lock.Packages == nil {
		return nil, fmt.Errorf("%w: %s lockfileVersion %d, run npm install with npm 7 or later", ErrUnsupportedLockfile, name, lock.LockfileVersion)
	}
	return parseNpmLock(dir, &lock), nil
}

// npmInstallName extracts the package name from a packages key such as
// "node_modules/a/node_modules/@scope/b".
func npmInstallName(key string) string {
	i := strings.LastIndex(key, "node_modules/")
	if i < 0 {
		return ""
	}
	return key[i+len("node_modules/"):]
}

// parseNpmLock builds the graph of lock. Installed manifests under dir fill in
// package descriptions, which the lockfile does not record.
func parseNpmLock(dir string, lock *npmLock) *graph.Graph {
	g := &graph.Graph{
		Ecosystem:      "npm",
		PackageManager: "npm",
		Resolutions:    map[string]string{},
	}

	keys := make([]string, 0, len(lock.Packages))
	for k := range lock.Packages {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[string]bool)
	for _, key := range keys {
		entry := lock.Packages[key]
		if entry.Link {
			continue
		}

		installName := npmInstallName(key)
		if installName == "" {
			// the root project or a workspace folder
			wsName := entry.Name
			switch {
			case wsName != "":
			case key == "":
				wsName = lock.Name
			default:
				wsName = filepath.Base(key)
			}
			ws := graph.Package{
				Ident:        graph.ParseIdent(wsName),
				Version:      entry.Version,
				Reference:    "workspace:" + workspaceKey(key),
				Dependencies: descriptors(entry.Dependencies, entry.DevDependencies, entry.OptionalDependencies),
				Workspace:    true,
				License:      licenseString(entry.License),
			}
			describeInstalled(&ws, filepath.Join(dir, filepath.FromSlash(key)))
			g.Packages = append(g.Packages, ws)
			g.Declared = append(g.Declared, npmDeclared(lock, key, entry)...)
			continue
		}

		id := installName + "@" + entry.Version
		if seen[id] {
			continue
		}
		seen[id] = true
		pkg := graph.Package{
			Ident:        graph.ParseIdent(installName),
			Version:      entry.Version,
			Reference:    "npm:" + entry.Version,
			Dependencies: descriptors(entry.Dependencies, entry.OptionalDependencies),
			License:      licenseString(entry.License),
		}
		describeInstalled(&pkg, filepath.Join(dir, filepath.FromSlash(key)))
		g.Packages = append(g.Packages, pkg)
	}

	for _, d := range g.Declared {
		if v, ok := npmResolve(lock, d.Workspace, d.Descriptor.Ident.String()); ok {
			g.Resolutions[d.Descriptor.String()] = v
		}
	}
	return g
}

func workspaceKey(key string) string {
	if key == "" {
		return "."
	}
	return key
}

// npmDeclared lists a workspace's declarations. Names that npm installed as a
// link to a local folder keep a link: range so they are not reported.
func npmDeclared(lock *npmLock, key string, entry npmLockEntry) []graph.DeclaredDependency {
	m := manifest{
		Dependencies:         entry.Dependencies,
		DevDependencies:      entry.DevDependencies,
		PeerDependencies:     entry.PeerDependencies,
		OptionalDependencies: entry.OptionalDependencies,
	}
	declared := m.declared(workspaceKey(key))
	for i, d := range declared {
		name := d.Descriptor.Ident.String()
		for _, candidate := range npmLookupKeys(key, name) {
			if e, ok := lock.Packages[candidate]; ok {
				if e.Link {
					declared[i].Descriptor.Range = "link:" + e.Resolved
				}
				break
			}
		}
	}
	return declared
}

// npmLookupKeys lists where node would find name from a workspace folder.
func npmLookupKeys(wsKey, name string) []string {
	if wsKey == "" {
		return []string{"node_modules/" + name}
	}
	return []string{wsKey + "/node_modules/" + name, "node_modules/" + name}
}

func npmResolve(lock *npmLock, wsKey, name string) (string, bool) {
	if wsKey == "." {
		wsKey = ""
	}
	for _, k := range npmLookupKeys(wsKey, name) {
		if e, ok := lock.Packages[k]; ok && !e.Link {
			return e.Version, true
		}
	}
	return "", false
}
