package lockfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambabib/dependency-inspector/pkg/graph"
	"github.com/sambabib/dependency-inspector/pkg/probe"
	"github.com/sambabib/dependency-inspector/pkg/registry"
	"github.com/sambabib/dependency-inspector/pkg/version"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

func findPackage(g *graph.Graph, name, version string) *graph.Package {
	for i := range g.Packages {
		if g.Packages[i].Name() == name && (version == "" || g.Packages[i].Version == version) {
			return &g.Packages[i]
		}
	}
	return nil
}

func declaredKinds(g *graph.Graph) map[string]graph.DeclarationKind {
	out := map[string]graph.DeclarationKind{}
	for _, d := range g.Declared {
		out[d.Descriptor.Ident.String()] = d.Kind
	}
	return out
}

const npmLockFixture = `{
  "name": "root",
  "version": "1.0.0",
  "lockfileVersion": 3,
  "packages": {
    "": {
      "name": "root",
      "version": "1.0.0",
      "workspaces": ["packages/*"],
      "dependencies": {"foo": "^1.0.0", "bar": "1.0.0", "local-a": "^0.1.0"},
      "devDependencies": {"@types/node": "^20.0.0"}
    },
    "node_modules/foo": {
      "version": "1.2.0",
      "license": "MIT",
      "dependencies": {"joe": "^1.0.0"}
    },
    "node_modules/bar": {"version": "1.0.0", "license": {"type": "ISC"}},
    "node_modules/joe": {"version": "1.1.0"},
    "node_modules/foo/node_modules/joe": {"version": "0.9.0"},
    "node_modules/@types/node": {"version": "20.1.0", "dev": true},
    "node_modules/local-a": {"resolved": "packages/a", "link": true},
    "packages/a": {"name": "local-a", "version": "0.1.0", "dependencies": {"bar": "^1.0.0"}}
  }
}`

func TestNpmProvider_Load(t *testing.T) {
	dir := writeFiles(t, map[string]string{"package-lock.json": npmLockFixture})

	p := &NpmProvider{}
	require.True(t, p.Detect(dir))
	g, err := p.Load(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, "npm", g.Ecosystem)
	assert.Equal(t, "npm", g.PackageManager)

	foo := findPackage(g, "foo", "1.2.0")
	require.NotNil(t, foo)
	assert.Equal(t, "MIT", foo.License)
	assert.Equal(t, []graph.Descriptor{{Ident: graph.Ident{Name: "joe"}, Range: "^1.0.0"}}, foo.Dependencies)

	assert.Equal(t, "ISC", findPackage(g, "bar", "").License)
	assert.NotNil(t, findPackage(g, "joe", "1.1.0"))
	assert.NotNil(t, findPackage(g, "joe", "0.9.0"))
	assert.NotNil(t, findPackage(g, "@types/node", "20.1.0"))

	ws := findPackage(g, "local-a", "")
	require.NotNil(t, ws)
	assert.True(t, ws.Workspace)

	kinds := declaredKinds(g)
	assert.Equal(t, graph.KindDependencies, kinds["foo"])
	assert.Equal(t, graph.KindDevDependencies, kinds["@types/node"])

	for _, d := range g.Declared {
		if d.Descriptor.Ident.Name == "local-a" {
			assert.True(t, d.Descriptor.IsLink(), "workspace links are not top-level")
		}
	}
	assert.Equal(t, "1.2.0", g.Resolutions["foo@^1.0.0"])
}

func TestNpmProvider_WalkAllTransitive(t *testing.T) {
	dir := writeFiles(t, map[string]string{"package-lock.json": npmLockFixture})
	g, err := (&NpmProvider{}).Load(context.Background(), dir)
	require.NoError(t, err)

	entries := graph.Walk(*g, graph.WalkOptions{Mode: graph.AllTransitive})
	var names []string
	for _, e := range entries {
		names = append(names, e.Package.Name())
	}
	assert.Equal(t, []string{"@types/node", "bar", "foo", "joe"}, names)
	assert.Equal(t, "1.1.0", entries[3].Package.Version, "highest installed version wins for transitive packages")
	assert.Equal(t, []string{"foo"}, entries[3].RequiredBy)
	assert.Equal(t, []string{"local-a", "root"}, entries[1].RequiredBy)
}

func TestNpmProvider_InstalledManifests(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"package-lock.json":                              npmLockFixture,
		"node_modules/foo/package.json":                  `{"name": "foo", "version": "1.2.0", "description": "the foo", "license": "Apache-2.0"}`,
		"node_modules/foo/node_modules/joe/package.json": `{"name": "joe", "version": "0.9.0", "description": "old joe"}`,
		"node_modules/joe/package.json":                  `{"name": "joe", "version": "1.0.0", "description": "stale joe"}`,
		"node_modules/@types/node/package.json":          `{"name": "@types/node", "version": "20.1.0", "description": "TypeScript definitions for node", "license": {"type": "MIT"}}`,
	})
	g, err := (&NpmProvider{}).Load(context.Background(), dir)
	require.NoError(t, err)

	foo := findPackage(g, "foo", "1.2.0")
	require.NotNil(t, foo)
	assert.Equal(t, "the foo", foo.Description)
	assert.Equal(t, "MIT", foo.License, "the lockfile license wins")

	assert.Equal(t, "old joe", findPackage(g, "joe", "0.9.0").Description)
	assert.Empty(t, findPackage(g, "joe", "1.1.0").Description, "a manifest of another version is ignored")

	types := findPackage(g, "@types/node", "20.1.0")
	assert.Equal(t, "TypeScript definitions for node", types.Description)
	assert.Equal(t, "MIT", types.License)

	assert.Empty(t, findPackage(g, "bar", "").Description, "packages without an installed manifest keep empty fields")
}

func TestNpmProvider_LockfileV1Unsupported(t *testing.T) {
	dir := writeFiles(t, map[string]string{"package-lock.json": `{"lockfileVersion": 1, "dependencies": {}}`})
	_, err := (&NpmProvider{}).Load(context.Background(), dir)
	assert.ErrorIs(t, err, ErrUnsupportedLockfile)
}

const yarnLockFixture = `# This file is generated by running "yarn install" inside your project.

__metadata:
  version: 8
  cacheKey: 10c0

"bar@npm:1.0.0":
  version: 1.0.0
  resolution: "bar@npm:1.0.0"
  languageName: node
  linkType: hard

"foo@npm:^1.0.0":
  version: 1.2.0
  resolution: "foo@npm:1.2.0"
  dependencies:
    joe: "npm:^1.0.0"
  languageName: node
  linkType: hard

"joe@npm:^1.0.0":
  version: 1.0.1
  resolution: "joe@npm:1.0.1"
  languageName: node
  linkType: hard

"@scope/peer@npm:^2.0.0":
  version: 2.0.0
  resolution: "@scope/peer@npm:2.0.0"
  languageName: node
  linkType: hard

"root@workspace:.":
  version: 0.0.0-use.local
  resolution: "root@workspace:."
  dependencies:
    bar: "npm:1.0.0"
    foo: "npm:^1.0.0"
    tools: "link:./tools"
  languageName: unknown
  linkType: soft
`

func TestYarnProvider_Load(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"yarn.lock": yarnLockFixture,
		"package.json": `{
			"name": "root",
			"description": "the project",
			"license": "MIT",
			"dependencies": {"foo": "^1.0.0", "bar": "1.0.0", "tools": "link:./tools"},
			"peerDependencies": {"@scope/peer": "^2.0.0"}
		}`,
	})

	p := &YarnProvider{}
	require.True(t, p.Detect(dir))
	g, err := p.Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "yarn", g.PackageManager)

	root := findPackage(g, "root", "")
	require.NotNil(t, root)
	assert.True(t, root.Workspace)
	assert.Equal(t, "the project", root.Description)

	foo := findPackage(g, "foo", "")
	require.NotNil(t, foo)
	assert.Equal(t, "npm:1.2.0", foo.Reference)
	assert.Equal(t, "^1.0.0", foo.Dependencies[0].Selector())

	peer := findPackage(g, "@scope/peer", "")
	require.NotNil(t, peer)
	assert.Equal(t, graph.Ident{Scope: "scope", Name: "peer"}, peer.Ident)

	assert.Equal(t, graph.KindPeerDependencies, declaredKinds(g)["@scope/peer"])
	assert.Equal(t, "1.2.0", g.Resolutions["foo@^1.0.0"])
	assert.Equal(t, "1.2.0", g.Resolutions["foo@npm:^1.0.0"])

	top := graph.TopLevelNames(graph.TopLevel(g.Declared))
	assert.Equal(t, []string{"@scope/peer", "bar", "foo"}, top)
}

func TestYarnProvider_InstalledManifests(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"yarn.lock":                             yarnLockFixture,
		"package.json":                          `{"name": "root", "dependencies": {"foo": "^1.0.0", "bar": "1.0.0"}}`,
		"node_modules/foo/package.json":         `{"name": "foo", "version": "1.2.0", "description": "the foo", "license": "MIT"}`,
		"node_modules/@scope/peer/package.json": `{"name": "@scope/peer", "version": "2.0.0", "license": {"type": "ISC"}}`,
		"node_modules/joe/package.json":         `{"name": "joe", "version": "0.1.0", "description": "not the locked joe"}`,
	})
	g, err := (&YarnProvider{}).Load(context.Background(), dir)
	require.NoError(t, err)

	foo := findPackage(g, "foo", "")
	require.NotNil(t, foo)
	assert.Equal(t, "the foo", foo.Description)
	assert.Equal(t, "MIT", foo.License)

	assert.Equal(t, "ISC", findPackage(g, "@scope/peer", "").License)
	assert.Empty(t, findPackage(g, "joe", "").Description)
	assert.Empty(t, findPackage(g, "bar", "").License)
}

func TestYarnProvider_ClassicUnsupported(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"yarn.lock":    "# THIS IS AN AUTOGENERATED FILE. DO NOT EDIT THIS FILE DIRECTLY.\n# yarn lockfile v1\n\nfoo@^1.0.0:\n  version \"1.2.0\"\n",
		"package.json": `{"name": "root"}`,
	})
	_, err := (&YarnProvider{}).Load(context.Background(), dir)
	assert.ErrorIs(t, err, ErrUnsupportedLockfile)
}

func TestSplitLocator(t *testing.T) {
	tests := []struct{ in, name, ref string }{
		{"foo@npm:1.0.0", "foo", "npm:1.0.0"},
		{"@scope/foo@npm:1.0.0", "@scope/foo", "npm:1.0.0"},
		{"root@workspace:.", "root", "workspace:."},
		{"bar@virtual:abc123#npm:1.0.0", "bar", "virtual:abc123#npm:1.0.0"},
		{"noversion", "noversion", ""},
	}
	for _, tt := range tests {
		name, ref := splitLocator(tt.in)
		assert.Equal(t, tt.name, name, tt.in)
		assert.Equal(t, tt.ref, ref, tt.in)
	}
}

const poetryLockFixture = `
[[package]]
name = "requests"
version = "2.31.0"
description = "Python HTTP for Humans."
optional = false
python-versions = ">=3.7"

[package.dependencies]
certifi = ">=2017.4.17"
urllib3 = {version = ">=1.21.1,<3", markers = "python_version >= '3.7'"}

[[package]]
name = "certifi"
version = "2024.2.2"
description = "Python package for providing Mozilla's CA Bundle."
optional = false
python-versions = ">=3.6"

[[package]]
name = "urllib3"
version = "2.2.1"
description = "HTTP library"
optional = false
python-versions = ">=3.8"

[[package]]
name = "pendulum"
version = "2.1.2"
description = "Python datetimes made easy"
optional = false
python-versions = ">=2.7"

[[package]]
name = "pytest"
version = "7.4.0"
description = "pytest: simple powerful testing with Python"
optional = false
python-versions = ">=3.7"

[metadata]
lock-version = "2.0"
python-versions = "^3.9"
content-hash = "abc"
`

const pyprojectFixture = `
[tool.poetry]
name = "demo"
version = "0.1.0"
description = "demo project"
license = "MIT"

[tool.poetry.dependencies]
python = "^3.9"
requests = "^2.31.0"

[tool.poetry.group.time.dependencies]
pendulum = {version = "^2.0.0"}

[tool.poetry.group.dev.dependencies]
pytest = "^7.0.0"
`

func TestPoetryProvider_Load(t *testing.T) {
	dir := writeFiles(t, map[string]string{"poetry.lock": poetryLockFixture, "pyproject.toml": pyprojectFixture})

	p := &PoetryProvider{}
	require.True(t, p.Detect(dir))
	g, err := p.Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "PyPI", g.Ecosystem)
	assert.Equal(t, "poetry", g.PackageManager)

	kinds := declaredKinds(g)
	assert.Equal(t, graph.KindDependencies, kinds["requests"])
	assert.Equal(t, graph.DeclarationKind("time"), kinds["pendulum"])
	assert.Equal(t, graph.KindDevDependencies, kinds["pytest"])
	_, hasPython := kinds["python"]
	assert.False(t, hasPython)

	req := findPackage(g, "requests", "2.31.0")
	require.NotNil(t, req)
	assert.Equal(t, "Python HTTP for Humans.", req.Description)
	assert.Equal(t, []graph.Descriptor{
		{Ident: graph.Ident{Name: "certifi"}, Range: ">=2017.4.17"},
		{Ident: graph.Ident{Name: "urllib3"}, Range: ">=1.21.1,<3"},
	}, req.Dependencies)

	entries := graph.Walk(*g, graph.WalkOptions{Mode: graph.AllTransitive})
	groups := map[string]graph.Group{}
	for _, e := range entries {
		groups[e.Package.Name()] = e.Group
	}
	assert.Equal(t, map[string]graph.Group{
		"certifi":  graph.GroupTransitive,
		"pendulum": "time",
		"pytest":   graph.GroupDev,
		"requests": graph.GroupMain,
		"urllib3":  graph.GroupTransitive,
	}, groups)
}

func TestParsePEP508(t *testing.T) {
	tests := []struct{ in, name, rng string }{
		{"requests>=2.28.0", "requests", ">=2.28.0"},
		{"flask[async]>=2.0", "flask", ">=2.0"},
		{"django==4.2", "django", "4.2"},
		{"numpy", "numpy", "*"},
		{"attrs>=22.0,<24 ; python_version > '3.8'", "attrs", ">=22.0,<24"},
		{"pkg @ file:///tmp/pkg", "pkg", "file:///tmp/pkg"},
		{"httpx~=0.27", "httpx", ">=0.27,<1.0"},
		{"httpx~=0.27.2", "httpx", ">=0.27.2,<0.28.0"},
		{"httpx==0.27.*", "httpx", "0.27.x"},
		{"httpx>=0.20,!=0.24.*", "httpx", ">=0.20,!=0.24.x"},
	}
	for _, tt := range tests {
		name, rng := parsePEP508(tt.in)
		assert.Equal(t, tt.name, name, tt.in)
		assert.Equal(t, tt.rng, rng, tt.in)
	}
}

func TestPEP440Range(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", "*"},
		{"*", "*"},
		{"^2.31.0", "^2.31.0"},
		{"~=1.4", ">=1.4,<2.0"},
		{"~=1.4.5", ">=1.4.5,<1.5.0"},
		{"~=2", ">=2"},
		{"==1.4.*", "1.4.x"},
		{"===1.4.0", "1.4.0"},
		{"!=1.5.0", "!=1.5.0"},
		{">=1.0, <2.0", ">=1.0,<2.0"},
		{"^1.0 || ~=2.1", "^1.0 || >=2.1,<3.0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pep440Range(tt.in), tt.in)
	}
}

type staticSource map[string][]string

func (s staticSource) Metadata(_ context.Context, name string) (*registry.Metadata, error) {
	versions := s[name]
	return &registry.Metadata{
		Name:     name,
		Versions: versions,
		Tags:     map[string]string{"latest": versions[len(versions)-1]},
	}, nil
}

func TestPoetryProvider_PEP440RangesResolveInRange(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"poetry.lock": `
[[package]]
name = "httpx"
version = "0.27.0"

[[package]]
name = "anyio"
version = "4.2.0"

[metadata]
lock-version = "2.0"
`,
		"pyproject.toml": `
[project]
name = "demo"
version = "0.1.0"
dependencies = ["httpx~=0.27", "anyio==4.2.*"]
`,
	})
	g, err := (&PoetryProvider{}).Load(context.Background(), dir)
	require.NoError(t, err)

	client, err := registry.NewClient(staticSource{
		"httpx": {"0.27.0", "0.28.1"},
		"anyio": {"4.2.0", "4.2.3"},
	}, 0)
	require.NoError(t, err)
	p := probe.New(client, version.ModifierCaret)

	results := map[string]probe.Result{}
	for _, e := range graph.Walk(*g, graph.WalkOptions{Mode: graph.DirectOnly}) {
		results[e.Package.Name()] = p.Run(context.Background(), e.Descriptor, e.Package.Version)
	}

	require.Contains(t, results, "httpx")
	assert.Equal(t, version.StatusSemverSafeUpdate, results["httpx"].Status)
	assert.Equal(t, "0.28.1", results["httpx"].LatestVersion)

	require.Contains(t, results, "anyio")
	assert.Equal(t, version.StatusSemverSafeUpdate, results["anyio"].Status)
	assert.Equal(t, "4.2.3", results["anyio"].LatestVersion)
}

const goModFixture = `module example.com/app

go 1.22

require (
	github.com/spf13/cobra v1.9.1
	golang.org/x/mod v0.31.0
	example.com/local v0.0.0
	github.com/spf13/pflag v1.0.6 // indirect
)

replace example.com/local => ../local
`

func TestGoProvider_Load(t *testing.T) {
	dir := writeFiles(t, map[string]string{"go.mod": goModFixture})

	p := &GoProvider{ModGraph: func(ctx context.Context, dir string) ([]byte, error) {
		return []byte("example.com/app github.com/spf13/cobra@v1.9.1\n" +
			"example.com/app golang.org/x/mod@v0.31.0\n" +
			"example.com/app github.com/spf13/pflag@v1.0.6\n" +
			"example.com/app go@1.22\n" +
			"github.com/spf13/cobra@v1.9.1 github.com/spf13/pflag@v1.0.6\n"), nil
	}}
	require.True(t, p.Detect(dir))
	g, err := p.Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "Go", g.Ecosystem)

	kinds := declaredKinds(g)
	assert.Contains(t, kinds, "github.com/spf13/cobra")
	assert.NotContains(t, kinds, "github.com/spf13/pflag", "indirect requirements are not top-level")

	top := graph.TopLevelNames(graph.TopLevel(g.Declared))
	assert.Equal(t, []string{"github.com/spf13/cobra", "golang.org/x/mod"}, top)
	assert.Nil(t, findPackage(g, "example.com/local", ""), "locally replaced modules are not installs")

	entries := graph.Walk(*g, graph.WalkOptions{Mode: graph.AllTransitive})
	require.Len(t, entries, 3)
	assert.Equal(t, "github.com/spf13/pflag", entries[1].Package.Name())
	assert.Equal(t, graph.GroupTransitive, entries[1].Group)
	assert.Equal(t, []string{"example.com/app", "github.com/spf13/cobra"}, entries[1].RequiredBy)
}

func TestGoProvider_WithoutModGraph(t *testing.T) {
	dir := writeFiles(t, map[string]string{"go.mod": goModFixture})
	p := &GoProvider{ModGraph: func(context.Context, string) ([]byte, error) {
		return nil, errors.New("go: command not found")
	}}
	g, err := p.Load(context.Background(), dir)
	require.NoError(t, err)

	root := findPackage(g, "example.com/app", "")
	require.NotNil(t, root)
	assert.Len(t, root.Dependencies, 4)

	entries := graph.Walk(*g, graph.WalkOptions{Mode: graph.DirectOnly})
	assert.Len(t, entries, 2)
}

func TestDetect(t *testing.T) {
	_, err := Detect(t.TempDir())
	assert.ErrorIs(t, err, ErrNoLockfile)

	dir := writeFiles(t, map[string]string{"yarn.lock": yarnLockFixture, "package-lock.json": npmLockFixture})
	p, err := Detect(dir)
	require.NoError(t, err)
	assert.Equal(t, "yarn", p.Name())

	p, err = ForName("poetry")
	require.NoError(t, err)
	assert.Equal(t, "poetry", p.Name())
	_, err = ForName("maven")
	assert.Error(t, err)
}
