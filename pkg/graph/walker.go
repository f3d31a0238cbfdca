package graph

import (
	"sort"

	"github.com/sambabib/dependency-inspector/pkg/version"
)

// Mode selects which packages a walk emits.
type Mode int

const (
	// DirectOnly emits only packages a workspace declares.
	DirectOnly Mode = iota
	// AllTransitive emits every package reachable from the declared set.
	AllTransitive
)

func (m Mode) String() string {
	if m == AllTransitive {
		return "all-transitive"
	}
	return "direct-only"
}

// WalkOptions tunes a walk.
type WalkOptions struct {
	Mode   Mode
	Ignore func(name string) bool
}

// Entry is one normalized record produced by a walk.
type Entry struct {
	Package    Package
	Descriptor Descriptor // the request that pulled the package in
	Group      Group
	TopLevel   bool
	RequiredBy []string // only filled in AllTransitive mode
}

// Walk visits the graph once and returns one entry per unique package name,
// sorted by name. Virtual placeholders and workspaces are never emitted.
func Walk(g Graph, opts WalkOptions) []Entry {
	top := TopLevel(g.Declared)

	byName := make(map[string][]Package)
	var physical []Package
	for _, p := range g.Packages {
		if p.Virtual {
			continue
		}
		physical = append(physical, p)
		if p.Workspace {
			continue
		}
		byName[p.Name()] = append(byName[p.Name()], p)
	}

	descriptors := reachable(top, byName)

	names := make([]string, 0, len(descriptors))
	for name := range descriptors {
		if _, declared := top[name]; opts.Mode == DirectOnly && !declared {
			continue
		}
		if opts.Ignore != nil && opts.Ignore(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var index ReverseIndex
	if opts.Mode == AllTransitive {
		index = NewReverseIndex(physical)
	}

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		_, declared := top[name]
		e := Entry{
			Package:    pick(g, top, name, byName[name]),
			Descriptor: descriptors[name],
			Group:      ClassifyGroup(name, top),
			TopLevel:   declared,
			RequiredBy: []string{},
		}
		if index != nil {
			e.RequiredBy = index.RequiredBy(name)
		}
		entries = append(entries, e)
	}
	return entries
}

// reachable walks breadth-first from the installed top-level packages and
// records, per name, the first descriptor that requested it. Top-level
// declarations take precedence over transitive requests.
func reachable(top map[string]DeclaredDependency, byName map[string][]Package) map[string]Descriptor {
	descriptors := make(map[string]Descriptor)
	var queue []string
	for _, name := range TopLevelNames(top) {
		if len(byName[name]) == 0 {
			continue // declared but not installed
		}
		descriptors[name] = top[name].Descriptor
		queue = append(queue, name)
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, p := range byName[name] {
			for _, dep := range p.Dependencies {
				if dep.IsVirtual() {
					continue
				}
				depName := dep.Ident.String()
				if _, seen := descriptors[depName]; seen || len(byName[depName]) == 0 {
					continue
				}
				descriptors[depName] = dep
				queue = append(queue, depName)
			}
		}
	}
	return descriptors
}

// pick chooses the install reported for a name: the version the top-level
// declaration resolved to when known, otherwise the highest version.
func pick(g Graph, top map[string]DeclaredDependency, name string, candidates []Package) Package {
	if d, ok := top[name]; ok && g.Resolutions != nil {
		if v, ok := g.Resolutions[d.Descriptor.String()]; ok {
			for _, p := range candidates {
				if p.Version == v {
					return p
				}
			}
		}
	}
	best := candidates[0]
	for _, p := range candidates[1:] {
		if version.Compare(p.Version, best.Version) > 0 {
			best = p
		}
	}
	return best
}
