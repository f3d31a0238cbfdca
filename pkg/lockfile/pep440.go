package lockfile

import (
	"strconv"
	"strings"
)

// pep440Range rewrites the PEP 440 specifiers that semver constraints reject
// (~=, ===, == and != with .* wildcards) so registry lookups can match them.
// Poetry's own ^ and ~ forms pass through unchanged.
func pep440Range(rng string) string {
	rng = strings.TrimSpace(rng)
	if rng == "" || rng == "*" {
		return "*"
	}

	alternatives := strings.Split(rng, "||")
	for i, alt := range alternatives {
		var clauses []string
		for _, clause := range strings.Split(alt, ",") {
			if clause = strings.TrimSpace(clause); clause != "" {
				clauses = append(clauses, pep440Clause(clause)...)
			}
		}
		alternatives[i] = strings.Join(clauses, ",")
	}
	return strings.Join(alternatives, " || ")
}

func pep440Clause(c string) []string {
	switch {
	case strings.HasPrefix(c, "~="):
		return compatibleRelease(strings.TrimSpace(c[2:]))
	case strings.HasPrefix(c, "==="):
		return []string{strings.TrimSpace(c[3:])}
	case strings.HasPrefix(c, "=="):
		return []string{wildcard(strings.TrimSpace(c[2:]))}
	case strings.HasPrefix(c, "!="):
		return []string{"!=" + wildcard(strings.TrimSpace(c[2:]))}
	}
	return []string{wildcard(c)}
}

// compatibleRelease expands ~=X.Y to >=X.Y,<X+1.0 and ~=X.Y.Z to >=X.Y.Z,<X.Y+1.0.
func compatibleRelease(v string) []string {
	parts := strings.Split(v, ".")
	if len(parts) < 2 {
		return []string{">=" + v}
	}
	upper := append([]string(nil), parts[:len(parts)-1]...)
	n, err := strconv.Atoi(upper[len(upper)-1])
	if err != nil {
		return []string{">=" + v}
	}
	upper[len(upper)-1] = strconv.Itoa(n + 1)
	if len(upper) < 3 {
		upper = append(upper, "0")
	}
	return []string{">=" + v, "<" + strings.Join(upper, ".")}
}

func wildcard(v string) string {
	if strings.HasSuffix(v, ".*") {
		return strings.TrimSuffix(v, ".*") + ".x"
	}
	return v
}
