package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ConflictType classifies why a plugin could not be assigned a version.
type ConflictType string

const (
	// ConflictVersion means the accumulated constraints admit no common
	// version.
	ConflictVersion ConflictType = "version"

	// ConflictCircular means the plugin participates in a dependency cycle.
	ConflictCircular ConflictType = "circular"

	// ConflictMissing means the plugin has no eligible releases at all.
	ConflictMissing ConflictType = "missing"
)

// Conflict describes one unsatisfiable plugin. Conflicts are ordinary
// result values; a resolution that produces them did not fail.
type Conflict struct {
	Type     ConflictType
	PluginID string

	// Requesters and Constraints are parallel: Constraints[i] was imposed
	// by Requesters[i]. Populated for version and missing conflicts.
	Requesters  []string
	Constraints []string

	// Path is the dependency cycle for circular conflicts, entry node
	// repeated at the end.
	Path []string
}

func (c Conflict) String() string {
	switch c.Type {
	case ConflictCircular:
		return fmt.Sprintf("circular dependency: %s", strings.Join(c.Path, " -> "))
	case ConflictMissing:
		return fmt.Sprintf("no releases found for %s", c.PluginID)
	default:
		pairs := make([]string, len(c.Requesters))
		for i := range c.Requesters {
			pairs[i] = fmt.Sprintf("%s requires %s", c.Requesters[i], c.Constraints[i])
		}
		return fmt.Sprintf("no version of %s satisfies: %s", c.PluginID, strings.Join(pairs, "; "))
	}
}

// Assignment binds one plugin to the version the strategy selected.
type Assignment struct {
	PluginID string
	Version  *semver.Version

	// Requesters lists who asked for this plugin, "root" for direct
	// requests.
	Requesters []string

	// Direct marks plugins named by a direct request rather than pulled in
	// transitively.
	Direct bool
}

// Result is the outcome of one resolution.
type Result struct {
	// Assignments holds the selected versions, sorted by plugin identity.
	Assignments []Assignment

	// Conflicts holds every plugin that could not be assigned, sorted by
	// plugin identity with cycles last.
	Conflicts []Conflict

	// Passes is the number of selection passes the fixpoint loop took.
	Passes int
}

// OK reports whether every requested plugin was assigned a version.
func (r *Result) OK() bool {
	return len(r.Conflicts) == 0
}

// Assignment returns the assignment for a plugin, if present.
func (r *Result) Assignment(pluginID string) (Assignment, bool) {
	for _, a := range r.Assignments {
		if a.PluginID == pluginID {
			return a, true
		}
	}
	return Assignment{}, false
}

func (r *Result) normalize() {
	sort.Slice(r.Assignments, func(i, j int) bool {
		return r.Assignments[i].PluginID < r.Assignments[j].PluginID
	})
	for i := range r.Assignments {
		sort.Strings(r.Assignments[i].Requesters)
	}
	sort.Slice(r.Conflicts, func(i, j int) bool {
		a, b := r.Conflicts[i], r.Conflicts[j]
		if (a.Type == ConflictCircular) != (b.Type == ConflictCircular) {
			return b.Type == ConflictCircular
		}
		if a.PluginID != b.PluginID {
			return a.PluginID < b.PluginID
		}
		return strings.Join(a.Path, ",") < strings.Join(b.Path, ",")
	})
}
