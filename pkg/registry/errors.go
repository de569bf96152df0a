package registry

import "errors"

var (
	// ErrNotFound is returned when a plugin, repository, release, or file
	// does not exist on the host.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited is returned when the host rejects a request due to
	// rate limiting. It is transient; callers may retry after the reset
	// window.
	ErrRateLimited = errors.New("rate limited by registry host")

	// ErrInvalidPluginID is returned when a plugin identity does not match
	// the "owner/name" grammar of the host.
	ErrInvalidPluginID = errors.New("invalid plugin id")

	// ErrUntrustedOwner is returned when the owning organization is not on
	// the trusted allowlist. Rejected before any network transfer.
	ErrUntrustedOwner = errors.New("owner not in trusted organizations")

	// ErrPluginBlocked is returned when a plugin appears on the configured
	// blocklist. Rejected before any network transfer.
	ErrPluginBlocked = errors.New("plugin is blocked")

	// ErrOffline is returned for any request that would reach the network
	// while offline mode is enabled. Cached data is still served.
	ErrOffline = errors.New("registry is in offline mode")
)
