package lockfile

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/sambabib/dependency-inspector/pkg/graph"
	"github.com/sambabib/dependency-inspector/pkg/logger"
)

// GoProvider reads go.mod. Edges between modules come from `go mod graph`
// when the go tool is available; otherwise every requirement hangs off the
// main module.
type GoProvider struct {
	// ModGraph returns `go mod graph` output for dir. Nil disables it.
	ModGraph func(ctx context.Context, dir string) ([]byte, error)
}

func NewGoProvider() *GoProvider {
	return &GoProvider{ModGraph: runModGraph}
}

func (p *GoProvider) Name() string { return "go" }

func (p *GoProvider) Detect(dir string) bool {
	return fileExists(filepath.Join(dir, "go.mod"))
}

func runModGraph(ctx context.Context, dir string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "go", "mod", "graph")
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("go mod graph: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

func (p *GoProvider) Load(ctx context.Context, dir string) (*graph.Graph, error) {
	data, err := readFile(dir, "go.mod")
	if err != nil {
		return nil, err
	}
	mf, err := modfile.Parse(filepath.Join(dir, "go.mod"), data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse go.mod: %w", err)
	}
	if mf.Module == nil {
		return nil, fmt.Errorf("go.mod has no module directive")
	}
	mainPath := mf.Module.Mod.Path

	// local replacements point at directories, not published versions
	local := make(map[string]string)
	replaced := make(map[string]string)
	for _, r := range mf.Replace {
		if r.New.Version == "" {
			local[r.Old.Path] = r.New.Path
		} else if r.Old.Version == "" || r.Old.Version == r.New.Version {
			replaced[r.Old.Path] = r.New.Version
		}
	}

	g := &graph.Graph{Ecosystem: "Go", PackageManager: "go", Resolutions: map[string]string{}}

	selected := make(map[string]string, len(mf.Require))
	var rootDeps []graph.Descriptor
	for _, req := range mf.Require {
		path, ver := req.Mod.Path, req.Mod.Version
		if v, ok := replaced[path]; ok {
			ver = v
		}
		selected[path] = ver

		d := graph.Descriptor{Ident: graph.Ident{Name: path}, Range: ver}
		if dirPath, ok := local[path]; ok {
			d.Range = "link:" + dirPath
		}
		rootDeps = append(rootDeps, d)
		if !req.Indirect {
			g.Declared = append(g.Declared, graph.DeclaredDependency{Descriptor: d, Workspace: ".", Kind: graph.KindDependencies})
			g.Resolutions[d.String()] = ver
		}
	}

	edges := p.edges(ctx, dir)
	if deps, ok := edges[mainPath]; ok {
		rootDeps = deps
	}
	g.Packages = append(g.Packages, graph.Package{
		Ident:        graph.Ident{Name: mainPath},
		Reference:    "workspace:.",
		Dependencies: rootDeps,
		Workspace:    true,
	})

	for _, req := range mf.Require {
		path := req.Mod.Path
		if _, ok := local[path]; ok {
			continue
		}
		ver := selected[path]
		g.Packages = append(g.Packages, graph.Package{
			Ident:        graph.Ident{Name: path},
			Version:      ver,
			Reference:    "proxy:" + ver,
			Dependencies: edges[path+"@"+ver],
		})
	}
	return g, nil
}

// edges parses `go mod graph` into "path@version" -> requirements. The main
// module appears without a version.
func (p *GoProvider) edges(ctx context.Context, dir string) map[string][]graph.Descriptor {
	edges := make(map[string][]graph.Descriptor)
	if p.ModGraph == nil {
		return edges
	}
	out, err := p.ModGraph(ctx, dir)
	if err != nil {
		logger.Debugf("Falling back to go.mod requirements only: %v", err)
		return edges
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		to := fields[1]
		i := strings.LastIndex(to, "@")
		if i <= 0 || strings.HasPrefix(to, "go@") || strings.HasPrefix(to, "toolchain@") {
			continue
		}
		edges[fields[0]] = append(edges[fields[0]], graph.Descriptor{
			Ident: graph.Ident{Name: to[:i]},
			Range: to[i+1:],
		})
	}
	return edges
}
