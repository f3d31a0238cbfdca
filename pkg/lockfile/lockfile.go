// Package lockfile reads the resolved dependency graph of a project from the
// lockfile its package manager wrote.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sambabib/dependency-inspector/pkg/graph"
	"github.com/sambabib/dependency-inspector/pkg/logger"
)

var (
	// ErrNoLockfile is returned when no provider recognizes the project.
	ErrNoLockfile = errors.New("no supported lockfile found")
	// ErrUnsupportedLockfile is returned for lockfile formats that are recognized but not read.
	ErrUnsupportedLockfile = errors.New("unsupported lockfile format")
)

// Provider turns one package manager's on-disk state into a graph.Graph.
type Provider interface {
	Name() string
	Detect(dir string) bool
	Load(ctx context.Context, dir string) (*graph.Graph, error)
}

// Providers returns every provider in detection order.
func Providers() []Provider {
	return []Provider{
		&YarnProvider{},
		&NpmProvider{},
		&PoetryProvider{},
		NewGoProvider(),
	}
}

// ForName returns the provider for a package manager name.
func ForName(name string) (Provider, error) {
	for _, p := range Providers() {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown package manager %q", name)
}

// Detect returns the first provider that recognizes dir.
func Detect(dir string) (Provider, error) {
	for _, p := range Providers() {
		if p.Detect(dir) {
			logger.Debugf("Detected %s project in %s", p.Name(), dir)
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w in %s", ErrNoLockfile, dir)
}

// Load detects the package manager of dir and loads its graph.
func Load(ctx context.Context, dir string) (*graph.Graph, error) {
	p, err := Detect(dir)
	if err != nil {
		return nil, err
	}
	return p.Load(ctx, dir)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func readFile(dir, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// descriptors turns a name -> range map into descriptors sorted by name.
func descriptors(deps ...map[string]string) []graph.Descriptor {
	seen := make(map[string]bool)
	var out []graph.Descriptor
	for _, m := range deps {
		for name, rng := range m {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, graph.Descriptor{Ident: graph.ParseIdent(name), Range: rng})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ident.String() < out[j].Ident.String() })
	return out
}

// declare builds declarations of one kind, sorted by name.
func declare(workspace string, kind graph.DeclarationKind, deps map[string]string) []graph.DeclaredDependency {
	var out []graph.DeclaredDependency
	for _, d := range descriptors(deps) {
		out = append(out, graph.DeclaredDependency{Descriptor: d, Workspace: workspace, Kind: kind})
	}
	return out
}
