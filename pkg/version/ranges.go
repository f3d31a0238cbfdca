package version

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Range modifiers kept when a newer selector is proposed.
const (
	ModifierCaret = "^"
	ModifierTilde = "~"
	ModifierExact = ""
)

// LatestTag is the pseudo-range asking a resolver for the newest release.
const LatestTag = "latest"

var simpleSemver = regexp.MustCompile(`^([\^~]?)v?[0-9]+(?:\.[0-9]+){0,2}(?:-\S+)?$`)

var exactSemver = regexp.MustCompile(`^v?[0-9]+\.[0-9]+\.[0-9]+(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?$`)

// ExtractModifier returns the ^, ~ or empty modifier of a simple semver range.
// Anything more complex (unions, comparators, tags) gets fallback.
func ExtractModifier(rng, fallback string) string {
	m := simpleSemver.FindStringSubmatch(strings.TrimSpace(rng))
	if m == nil {
		return fallback
	}
	return m[1]
}

// IsExact reports whether s is a bare, fully specified version.
func IsExact(s string) bool {
	return exactSemver.MatchString(strings.TrimSpace(s))
}

// ReferenceRange widens an exact version to a caret range so the probe can see
// compatible releases. Any other range is returned unchanged.
func ReferenceRange(declared string) string {
	declared = strings.TrimSpace(declared)
	if IsExact(declared) {
		return ModifierCaret + declared
	}
	return declared
}

// StripSpecifier removes range operators, leaving the bare version.
func StripSpecifier(s string) string {
	r := strings.NewReplacer("^", "", "~", "", "<", "", ">", "", "=", "", " ", "", "\t", "")
	return strings.TrimSpace(r.Replace(s))
}

// SameSelector reports whether two selectors request the same thing. Selectors
// with the same modifier and semver-equal versions ("^1.2" and "^1.2.0") match.
func SameSelector(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == b {
		return true
	}
	ma, mb := simpleSemver.FindStringSubmatch(a), simpleSemver.FindStringSubmatch(b)
	if ma == nil || mb == nil || ma[1] != mb[1] {
		return false
	}
	va, err := semver.NewVersion(StripSpecifier(a))
	if err != nil {
		return false
	}
	vb, err := semver.NewVersion(StripSpecifier(b))
	if err != nil {
		return false
	}
	return va.Equal(vb)
}
