package lockfile

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/sambabib/dependency-inspector/pkg/graph"
	"github.com/sambabib/dependency-inspector/pkg/registry"
)

// PoetryProvider reads poetry.lock and the groups declared in pyproject.toml.
type PoetryProvider struct{}

func (p *PoetryProvider) Name() string { return "poetry" }

func (p *PoetryProvider) Detect(dir string) bool {
	return fileExists(filepath.Join(dir, "poetry.lock"))
}

type poetryLock struct {
	Package []struct {
		Name         string         `toml:"name"`
		Version      string         `toml:"version"`
		Description  string         `toml:"description"`
		Dependencies map[string]any `toml:"dependencies"`
		Source       struct {
			Type string `toml:"type"`
			URL  string `toml:"url"`
		} `toml:"source"`
	} `toml:"package"`
	Metadata struct {
		LockVersion string `toml:"lock-version"`
	} `toml:"metadata"`
}

type pyproject struct {
	Project struct {
		Name                 string              `toml:"name"`
		Version              string              `toml:"version"`
		Description          string              `toml:"description"`
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Name            string         `toml:"name"`
			Version         string         `toml:"version"`
			Description     string         `toml:"description"`
			License         string         `toml:"license"`
			Dependencies    map[string]any `toml:"dependencies"`
			DevDependencies map[string]any `toml:"dev-dependencies"`
			Group           map[string]struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"group"`
		} `toml:"poetry"`
	} `toml:"tool"`
	DependencyGroups map[string][]any `toml:"dependency-groups"`
}

func (p *PoetryProvider) Load(_ context.Context, dir string) (*graph.Graph, error) {
	data, err := readFile(dir, "poetry.lock")
	if err != nil {
		return nil, err
	}
	var lock poetryLock
	if err := toml.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse poetry.lock: %w", err)
	}

	data, err = readFile(dir, "pyproject.toml")
	if err != nil {
		return nil, err
	}
	var proj pyproject
	if err := toml.Unmarshal(data, &proj); err != nil {
		return nil, fmt.Errorf("failed to parse pyproject.toml: %w", err)
	}

	g := &graph.Graph{Ecosystem: "PyPI", PackageManager: "poetry", Resolutions: map[string]string{}}

	root := poetryRoot(&proj)
	g.Declared = poetryDeclared(&proj, root.Name())
	var rootDeps []graph.Descriptor
	for _, d := range g.Declared {
		rootDeps = append(rootDeps, d.Descriptor)
	}
	root.Dependencies = rootDeps
	g.Packages = append(g.Packages, root)

	for _, pkg := range lock.Package {
		deps := make(map[string]string, len(pkg.Dependencies))
		for name, spec := range pkg.Dependencies {
			deps[registry.NormalizePyPIName(name)] = poetryConstraint(spec)
		}
		ref := "pypi:" + pkg.Version
		if pkg.Source.Type == "directory" || pkg.Source.Type == "file" {
			ref = "file:" + pkg.Source.URL
		} else if pkg.Source.Type == "git" {
			ref = "git:" + pkg.Source.URL
		}
		g.Packages = append(g.Packages, graph.Package{
			Ident:        graph.Ident{Name: registry.NormalizePyPIName(pkg.Name)},
			Version:      pkg.Version,
			Reference:    ref,
			Dependencies: descriptors(deps),
			Description:  pkg.Description,
		})
	}

	locked := make(map[string]string, len(lock.Package))
	for _, pkg := range lock.Package {
		locked[registry.NormalizePyPIName(pkg.Name)] = pkg.Version
	}
	for _, d := range g.Declared {
		if v, ok := locked[d.Descriptor.Ident.Name]; ok {
			g.Resolutions[d.Descriptor.String()] = v
		}
	}
	return g, nil
}

func poetryRoot(proj *pyproject) graph.Package {
	name, ver, desc := proj.Tool.Poetry.Name, proj.Tool.Poetry.Version, proj.Tool.Poetry.Description
	if proj.Project.Name != "" {
		name, ver, desc = proj.Project.Name, proj.Project.Version, proj.Project.Description
	}
	if name == "" {
		name = "root"
	}
	return graph.Package{
		Ident:       graph.Ident{Name: registry.NormalizePyPIName(name)},
		Version:     ver,
		Reference:   "workspace:.",
		Workspace:   true,
		Description: desc,
		License:     proj.Tool.Poetry.License,
	}
}

// poetryDeclared maps pyproject sections onto declarations: the main group to
// dependencies, "dev" to devDependencies and any other group to its own name.
func poetryDeclared(proj *pyproject, workspace string) []graph.DeclaredDependency {
	groups := map[string]map[string]string{}
	add := func(group, name, rng string) {
		name = registry.NormalizePyPIName(name)
		if name == "python" {
			return
		}
		if groups[group] == nil {
			groups[group] = map[string]string{}
		}
		if _, ok := groups[group][name]; !ok {
			groups[group][name] = rng
		}
	}

	for _, spec := range proj.Project.Dependencies {
		if name, rng := parsePEP508(spec); name != "" {
			add("main", name, rng)
		}
	}
	for name, spec := range proj.Tool.Poetry.Dependencies {
		add("main", name, poetryConstraint(spec))
	}
	for name, spec := range proj.Tool.Poetry.DevDependencies {
		add("dev", name, poetryConstraint(spec))
	}
	for group, body := range proj.Tool.Poetry.Group {
		for name, spec := range body.Dependencies {
			add(group, name, poetryConstraint(spec))
		}
	}
	for group, specs := range proj.DependencyGroups {
		for _, s := range specs {
			if str, ok := s.(string); ok {
				if name, rng := parsePEP508(str); name != "" {
					add(group, name, rng)
				}
			}
		}
	}

	names := make([]string, 0, len(groups))
	for group := range groups {
		names = append(names, group)
	}
	sort.Strings(names)

	var out []graph.DeclaredDependency
	for _, group := range names {
		kind := graph.DeclarationKind(group)
		switch group {
		case "main":
			kind = graph.KindDependencies
		case "dev":
			kind = graph.KindDevDependencies
		}
		out = append(out, declare(workspace, kind, groups[group])...)
	}
	return out
}

// poetryConstraint reads the version out of the string or inline-table forms.
// Path, git and url dependencies get a protocol so they are never probed.
func poetryConstraint(spec any) string {
	switch v := spec.(type) {
	case string:
		return pep440Range(v)
	case map[string]any:
		if s, ok := v["version"].(string); ok {
			return pep440Range(s)
		}
		if s, ok := v["path"].(string); ok {
			return "file:" + s
		}
		if s, ok := v["git"].(string); ok {
			return "git:" + s
		}
		if s, ok := v["url"].(string); ok {
			return s
		}
	case []any:
		// multiple constraints with markers; the first one is representative
		if len(v) > 0 {
			return poetryConstraint(v[0])
		}
	}
	return "*"
}

// parsePEP508 splits "requests[socks]>=2.28; python_version>'3.8'" into name and range.
func parsePEP508(spec string) (string, string) {
	if i := strings.Index(spec, ";"); i >= 0 {
		spec = spec[:i]
	}
	if i := strings.Index(spec, "["); i > 0 {
		if j := strings.Index(spec, "]"); j > i {
			spec = spec[:i] + spec[j+1:]
		}
	}
	spec = strings.TrimSpace(spec)
	if i := strings.Index(spec, " @ "); i > 0 {
		return strings.TrimSpace(spec[:i]), strings.TrimSpace(spec[i+3:])
	}
	i := strings.IndexAny(spec, "<>=!~ (")
	if i < 0 {
		return spec, "*"
	}
	rng := strings.Trim(strings.TrimSpace(spec[i:]), "()")
	return strings.TrimSpace(spec[:i]), pep440Range(rng)
}
