// Package distribution ties plugin discovery, version resolution, and
// installation together behind a single engine. Callers that want the
// whole pipeline (resolve a plugin spec, fetch release assets, install
// the closure) use the engine; callers that need only one stage use the
// underlying packages directly.
package distribution
