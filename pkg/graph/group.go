package graph

import "sort"

// Group is the report bucket a package belongs to.
type Group string

const (
	GroupMain Group = "main"
	GroupDev  Group = "dev"
	GroupPeer Group = "peer"
	// GroupTransitive is the default bucket for packages no workspace declares.
	GroupTransitive Group = "transitive"
)

// kindRank decides which declaration wins when a name is declared more than once.
func kindRank(k DeclarationKind) int {
	switch k {
	case KindDependencies:
		return 0
	case KindOptionalDependencies:
		return 1
	case KindPeerDependencies:
		return 2
	case KindDevDependencies:
		return 3
	default:
		return 4
	}
}

// TopLevel indexes declared dependencies by package name. Declarations that
// resolve through a local link are not top-level packages and are dropped.
func TopLevel(declared []DeclaredDependency) map[string]DeclaredDependency {
	top := make(map[string]DeclaredDependency, len(declared))
	for _, d := range declared {
		if d.Descriptor.IsLink() {
			continue
		}
		name := d.Descriptor.Ident.String()
		prev, ok := top[name]
		if !ok || kindRank(d.Kind) < kindRank(prev.Kind) {
			top[name] = d
		}
	}
	return top
}

// TopLevelNames returns the sorted names of the top-level set.
func TopLevelNames(top map[string]DeclaredDependency) []string {
	names := make([]string, 0, len(top))
	for name := range top {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClassifyGroup maps a package onto its group using the declaration that pulled
// it into the project. Packages no workspace declares are transitive.
func ClassifyGroup(name string, top map[string]DeclaredDependency) Group {
	d, ok := top[name]
	if !ok {
		return GroupTransitive
	}
	switch d.Kind {
	case KindDependencies, KindOptionalDependencies:
		return GroupMain
	case KindDevDependencies:
		return GroupDev
	case KindPeerDependencies:
		return GroupPeer
	case "":
		return GroupTransitive
	default:
		return Group(d.Kind)
	}
}

// SortGroups orders groups main, dev, peer, named groups alphabetically, transitive.
func SortGroups(groups []Group) {
	rank := func(g Group) int {
		switch g {
		case GroupMain:
			return 0
		case GroupDev:
			return 1
		case GroupPeer:
			return 2
		case GroupTransitive:
			return 4
		default:
			return 3
		}
	}
	sort.SliceStable(groups, func(i, j int) bool {
		ri, rj := rank(groups[i]), rank(groups[j])
		if ri != rj {
			return ri < rj
		}
		return groups[i] < groups[j]
	})
}
