package version

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrInvalidConstraint is returned when a constraint expression cannot be
// parsed.
var ErrInvalidConstraint = errors.New("invalid version constraint")

// Constraint is a requirement expression over semantic versions.
//
// Supported forms: exact ("1.2.3", "==1.2.3"), comparisons (">1.0.0",
// ">=1.0.0", "<2.0.0", "<=2.0.0"), caret ("^1.2.3"), tilde ("~1.2.3"),
// wildcard ("1.2.*"), hyphen ranges ("1.2.3 - 2.0.0"), AND combinations
// (">=1.0.0, <2.0.0") and OR alternatives ("<1.0.0 || >=2.0.0").
//
// The pseudo-constraints "latest" and "minimum" accept every version; which
// version is finally chosen from the eligible set is up to the resolution
// strategy.
type Constraint struct {
	raw string
	c   *semver.Constraints
}

// ParseConstraint parses a constraint expression.
func ParseConstraint(s string) (Constraint, error) {
	raw := strings.TrimSpace(s)

	switch strings.ToLower(raw) {
	case "", "*", "latest", "minimum":
		return Constraint{raw: strings.ToLower(raw)}, nil
	}

	expr := normalizeConstraint(raw)
	c, err := semver.NewConstraint(expr)
	if err != nil {
		return Constraint{}, fmt.Errorf("%w: %q: %v", ErrInvalidConstraint, s, err)
	}
	return Constraint{raw: raw, c: c}, nil
}

// MustParseConstraint parses a constraint and panics on failure. Intended
// for tests.
func MustParseConstraint(s string) Constraint {
	c, err := ParseConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// normalizeConstraint rewrites operator spellings the upstream library does
// not accept ("==" for exact matches) and strips stray 'v' prefixes from
// bare versions.
func normalizeConstraint(s string) string {
	s = strings.ReplaceAll(s, "==", "=")
	parts := strings.Fields(s)
	for i, p := range parts {
		if len(p) > 1 && p[0] == 'v' && p[1] >= '0' && p[1] <= '9' {
			parts[i] = p[1:]
		}
	}
	return strings.Join(parts, " ")
}

// IsAny reports whether the constraint accepts every version and defers the
// final choice to the resolution strategy ("latest", "minimum", "*" or
// empty).
func (c Constraint) IsAny() bool {
	return c.c == nil
}

// IsMinimum reports whether the constraint is the "minimum" pseudo-form.
func (c Constraint) IsMinimum() bool {
	return c.raw == "minimum"
}

// Allows reports whether v satisfies the constraint.
//
// The upstream library rejects prerelease versions unless the constraint
// itself names a prerelease. When includePrereleases is set, a prerelease
// candidate is additionally checked with its qualifier stripped so that a
// range such as ">=1.0.0" admits "1.1.0-beta.1".
func (c Constraint) Allows(v *semver.Version, includePrereleases bool) bool {
	if v == nil {
		return false
	}
	if c.IsAny() {
		return true
	}
	if c.c.Check(v) {
		return true
	}
	if includePrereleases && v.Prerelease() != "" {
		stripped, err := v.SetPrerelease("")
		if err != nil {
			return false
		}
		return c.c.Check(&stripped)
	}
	return false
}

// Check reports whether v satisfies the constraint under strict semver
// prerelease rules.
func (c Constraint) Check(v *semver.Version) bool {
	return c.Allows(v, false)
}

func (c Constraint) String() string {
	if c.raw == "" {
		return "latest"
	}
	return c.raw
}

// Intersect returns the subset of candidates accepted by every constraint
// in cs. An empty result signals a version conflict; it is an ordinary
// value, not an error.
func Intersect(candidates []*semver.Version, cs []Constraint, includePrereleases bool) []*semver.Version {
	out := make([]*semver.Version, 0, len(candidates))
	for _, v := range candidates {
		ok := true
		for _, c := range cs {
			if !c.Allows(v, includePrereleases) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, v)
		}
	}
	return out
}
