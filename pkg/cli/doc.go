// Package cli implements the aimux-plugin command line tool for
// installing, resolving, and managing plugins.
package cli
