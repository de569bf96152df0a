// Package registry discovers plugin metadata from a hosted source-code
// registry (GitHub) and enforces publishing policy.
//
// # Overview
//
// This package resolves a plugin identity of the form "owner/name" to its
// repository metadata, release list, and plugin manifest. Owners must appear
// on a trusted-organization allowlist and identities must match the host's
// repository-naming grammar before any network call is issued; lookalike
// organizations are rejected as not-found.
//
// # Key Features
//
// Discovery: repository metadata, releases, and per-version manifests
// Policy: trusted-organization allowlist, naming-grammar spoofing checks,
// blocked-plugin list
// Caching: expirable in-memory LRU keyed by plugin identity with a bounded
// freshness window and an explicit refresh/clear lifecycle
// Rate limiting: host rate-limit responses surface as the retryable
// ErrRateLimited, never as a fatal failure
//
// # Usage Example
//
//	client := registry.NewClient(registry.DefaultClientConfig(), nil)
//	reg := registry.New(client, registry.DefaultConfig(), nil)
//
//	info, err := reg.GetPluginInfo(ctx, "aimux-org/markdown-normalizer")
//	releases, err := reg.GetPluginReleases(ctx, "aimux-org/markdown-normalizer", false)
//
// # Related Packages
//
//   - pkg/resolver: queries releases and manifests during resolution
//   - pkg/downloader: fetches release assets chosen by the resolver
package registry
