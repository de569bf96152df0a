package version

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Parse parses a version string into a semantic version.
// A leading 'v' is tolerated (common in release tags).
func Parse(s string) (*semver.Version, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return v, nil
}

// MustParse parses a version string and panics on failure. Intended for
// tests and constants.
func MustParse(s string) *semver.Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare compares two version strings semantically.
// Returns:
// - -1 if a < b
// - 0 if a == b
// - 1 if a > b
// - error if either version string is invalid
func Compare(a, b string) (int, error) {
	va, err := Parse(a)
	if err != nil {
		return 0, err
	}
	vb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

// IsNewer reports whether b is newer than a.
func IsNewer(a, b string) (bool, error) {
	cmp, err := Compare(a, b)
	if err != nil {
		return false, err
	}
	return cmp < 0, nil
}

// IsValid reports whether s is a valid semantic version string.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// IsPrerelease reports whether v carries a prerelease qualifier.
func IsPrerelease(v *semver.Version) bool {
	return v != nil && v.Prerelease() != ""
}

// Sort sorts versions ascending by semver precedence. Versions with equal
// precedence (differing only in build metadata) are ordered by their
// original string, lexically, so sorting is deterministic.
func Sort(versions []*semver.Version) {
	sort.Slice(versions, func(i, j int) bool {
		cmp := versions[i].Compare(versions[j])
		if cmp != 0 {
			return cmp < 0
		}
		return versions[i].Original() < versions[j].Original()
	})
}
