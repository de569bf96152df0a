// Package version provides semantic version parsing, comparison, and
// constraint handling for plugin resolution.
//
// # Overview
//
// This package wraps github.com/Masterminds/semver/v3 with the conventions
// used across the distribution engine: a leading "v" on version strings is
// tolerated, build metadata is ignored for precedence, and the
// pseudo-constraints "latest" and "minimum" are accepted and deferred to the
// resolution strategy.
//
// # Usage Example
//
// Parse and compare versions:
//
//	a, _ := version.Parse("v1.2.0")
//	b, _ := version.Parse("1.10.0")
//	a.LessThan(b) // true
//
// Parse and check constraints:
//
//	c, _ := version.ParseConstraint(">=1.0.0, <2.0.0")
//	c.Allows(a, false) // true
//
// # Related Packages
//
//   - pkg/resolver: uses constraints for dependency resolution
//   - pkg/registry: orders releases by version
package version
