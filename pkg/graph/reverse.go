package graph

import "sort"

// RequiredBy scans every non-virtual package once and returns the sorted names
// of those that directly depend on target. It costs O(packages x deps) per call;
// walks over a whole graph should build a ReverseIndex instead.
func RequiredBy(target string, pkgs []Package) []string {
	seen := make(map[string]struct{})
	for _, p := range pkgs {
		if p.Virtual {
			continue
		}
		for _, dep := range p.Dependencies {
			if dep.Ident.String() == target {
				seen[p.Name()] = struct{}{}
				break
			}
		}
	}
	return sortedKeys(seen)
}

// ReverseIndex maps a package name to the names of packages depending on it.
type ReverseIndex map[string][]string

// NewReverseIndex builds the index in a single pass over pkgs.
func NewReverseIndex(pkgs []Package) ReverseIndex {
	sets := make(map[string]map[string]struct{})
	for _, p := range pkgs {
		if p.Virtual {
			continue
		}
		for _, dep := range p.Dependencies {
			target := dep.Ident.String()
			if sets[target] == nil {
				sets[target] = make(map[string]struct{})
			}
			sets[target][p.Name()] = struct{}{}
		}
	}
	idx := make(ReverseIndex, len(sets))
	for target, set := range sets {
		idx[target] = sortedKeys(set)
	}
	return idx
}

// RequiredBy returns the dependents of name, never nil.
func (r ReverseIndex) RequiredBy(name string) []string {
	if deps, ok := r[name]; ok {
		out := make([]string, len(deps))
		copy(out, deps)
		return out
	}
	return []string{}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
