package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// UpdateType is the magnitude of the change between an installed and a newer version.
type UpdateType string

const (
	UpToDate    UpdateType = "Up-to-date"
	MajorUpdate UpdateType = "Major Update"
	MinorUpdate UpdateType = "Minor Update"
	PatchUpdate UpdateType = "Patch Update"
	Unknown     UpdateType = "Unknown"
)

// UpdateStatus is the reduced status set used in reports.
type UpdateStatus string

const (
	StatusUpToDate         UpdateStatus = "up-to-date"
	StatusSemverSafeUpdate UpdateStatus = "semver-safe-update"
	StatusUpdatePossible   UpdateStatus = "update-possible"
	StatusUnknown          UpdateStatus = "unknown"
)

// Classify compares current against latest and buckets the difference.
// It never fails: anything that does not parse as semver yields Unknown.
func Classify(current, latest string) UpdateType {
	if strings.TrimSpace(current) == "" || strings.TrimSpace(latest) == "" {
		return Unknown
	}
	cur, err := semver.NewVersion(current)
	if err != nil {
		return Unknown
	}
	lat, err := semver.NewVersion(latest)
	if err != nil {
		return Unknown
	}
	return classifyParsed(cur, lat)
}

func classifyParsed(current, latest *semver.Version) UpdateType {
	if !current.LessThan(latest) {
		return UpToDate
	}
	if latest.Major() != current.Major() {
		return MajorUpdate // potentially breaking
	}
	if latest.Minor() != current.Minor() {
		return MinorUpdate
	}
	return PatchUpdate
}

// Valid reports whether s parses as a semantic version.
func Valid(s string) bool {
	_, err := semver.NewVersion(s)
	return err == nil
}

// Compare orders two version strings by semver precedence. Strings that do not
// parse sort before those that do and fall back to plain string order among
// themselves.
func Compare(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA != nil && errB == nil:
		return -1
	case errA == nil && errB != nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
