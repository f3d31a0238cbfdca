package graph

import (
	"regexp"
	"strings"
)

// Ident identifies a package independently of its version.
type Ident struct {
	Scope string // without the leading @
	Name  string
}

// ParseIdent splits "@scope/name" or "name".
func ParseIdent(s string) Ident {
	if strings.HasPrefix(s, "@") {
		if i := strings.Index(s, "/"); i > 0 {
			return Ident{Scope: s[1:i], Name: s[i+1:]}
		}
	}
	return Ident{Name: s}
}

func (i Ident) String() string {
	if i.Scope != "" {
		return "@" + i.Scope + "/" + i.Name
	}
	return i.Name
}

// Descriptor is a request for a package within a range, before resolution.
// Range is kept as written, protocol included ("npm:^1.0.0").
type Descriptor struct {
	Ident Ident
	Range string
}

func (d Descriptor) String() string {
	return d.Ident.String() + "@" + d.Range
}

var protocolPattern = regexp.MustCompile(`^([a-z][a-z0-9+.-]*):`)

// Protocol returns the range protocol without the colon, or "" for bare ranges.
func (d Descriptor) Protocol() string {
	m := protocolPattern.FindStringSubmatch(d.Range)
	if m == nil {
		return ""
	}
	return m[1]
}

// Selector is the range with its protocol removed ("npm:^1.0.0" -> "^1.0.0").
// URL-shaped ranges are returned whole.
func (d Descriptor) Selector() string {
	if strings.Contains(d.Range, "://") {
		return d.Range
	}
	sel := d.Range
	if i := strings.LastIndex(sel, ":"); i >= 0 {
		sel = sel[i+1:]
	}
	if sel == "" {
		return "*"
	}
	return sel
}

// IsVirtual reports whether the descriptor points at a peer-dependency
// placeholder rather than a physical install.
func (d Descriptor) IsVirtual() bool {
	return strings.HasPrefix(d.Range, "virtual:")
}

var linkProtocols = map[string]bool{
	"link":      true,
	"portal":    true,
	"workspace": true,
	"file":      true,
}

// IsLink reports whether the descriptor resolves to a local filesystem location.
func (d Descriptor) IsLink() bool {
	if linkProtocols[d.Protocol()] {
		return true
	}
	r := d.Range
	return strings.HasPrefix(r, ".") || strings.HasPrefix(r, "/") || strings.HasPrefix(r, "~/")
}

var tagPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9._-]*$`)

// IsRegistry reports whether the descriptor can be answered by a package registry,
// i.e. it is a semver range or a dist-tag without a non-registry protocol.
func (d Descriptor) IsRegistry() bool {
	switch d.Protocol() {
	case "", "npm":
	default:
		return false
	}
	if d.IsLink() {
		return false
	}
	sel := d.Selector()
	if strings.Contains(sel, "/") || strings.Contains(sel, "#") {
		return false
	}
	return sel != "" && (strings.ContainsAny(sel, "0123456789*") || tagPattern.MatchString(sel))
}

// Package is one physical install of a package at a version.
type Package struct {
	Ident        Ident
	Version      string
	Reference    string // full resolution, e.g. "npm:1.2.0" or "virtual:abc#npm:1.2.0"
	Dependencies []Descriptor
	Virtual      bool
	Workspace    bool // a project workspace, not an installed dependency
	Description  string
	License      string
}

// Name is the stringified ident.
func (p Package) Name() string {
	return p.Ident.String()
}

// DeclarationKind is the manifest section a top-level dependency was declared in.
type DeclarationKind string

const (
	KindDependencies         DeclarationKind = "dependencies"
	KindDevDependencies      DeclarationKind = "devDependencies"
	KindPeerDependencies     DeclarationKind = "peerDependencies"
	KindOptionalDependencies DeclarationKind = "optionalDependencies"
)

// DeclaredDependency is a dependency declared directly by a workspace manifest.
// Kind holds either one of the constants above or a named group (poetry).
type DeclaredDependency struct {
	Descriptor Descriptor
	Workspace  string
	Kind       DeclarationKind
}

// Graph is an already-resolved dependency graph as handed over by a provider.
type Graph struct {
	Ecosystem      string // registry ecosystem: npm, PyPI, Go
	PackageManager string // yarn, npm, poetry, go
	Packages       []Package
	Declared       []DeclaredDependency
	// Resolutions maps Descriptor.String() of a declaration to the version it
	// resolved to, when the provider knows it.
	Resolutions map[string]string
}
