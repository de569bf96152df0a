// Package resolver computes a complete, conflict-checked set of plugin
// versions from a set of direct requests.
//
// Resolution walks the dependency closure breadth-first, accumulating
// version constraints per plugin and re-selecting versions when a later
// discovery narrows an earlier choice. Unsatisfiable constraint sets and
// circular dependencies are reported as values on the Result, not as
// errors; an error return means the resolver itself could not proceed
// (source failure, cancelled context).
//
// The same inputs always produce the same Result: plugins are visited in
// sorted order and ties between equal versions are broken lexically.
package resolver
