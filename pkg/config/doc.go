// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Registry settings:
//
//	AIMUX_GITHUB_BASE_URL="https://api.github.com"
//	AIMUX_GITHUB_TOKEN=""
//	AIMUX_TRUSTED_ORGS="aimux-org,aimux,aimux-plugins,awesome-aimux"
//	AIMUX_CACHE_TTL="24h"
//	AIMUX_MAX_CACHE_ENTRIES="1000"
//	AIMUX_BLOCKED_PLUGINS=""
//
// Resolver settings:
//
//	AIMUX_RESOLUTION_STRATEGY="stable"  # latest, minimum, stable
//	AIMUX_INCLUDE_PRERELEASES="false"
//	AIMUX_INCLUDE_OPTIONAL="false"
//
// Downloader settings:
//
//	AIMUX_DOWNLOAD_DIR="download"
//	AIMUX_INSTALL_DIR="installation"
//	AIMUX_BACKUP_DIR="backup"
//	AIMUX_PARALLEL_DOWNLOADS="true"
//	AIMUX_MAX_PARALLEL_DOWNLOADS="3"
//	AIMUX_MAX_RETRIES="3"
//	AIMUX_DOWNLOAD_TIMEOUT="30s"
//	AIMUX_VERIFY_CHECKSUMS="true"
//	AIMUX_OFFLINE="false"
//
// Observability settings:
//
//	AIMUX_LOG_LEVEL="info"  # debug, info, warn, error
//	AIMUX_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Strategy: %s\n", cfg.Resolver.Strategy)
//	fmt.Printf("Install dir: %s\n", cfg.Downloader.InstallDir)
//
// # Related Packages
//
//   - pkg/registry: Uses registry configuration
//   - pkg/resolver: Uses resolver configuration
//   - pkg/downloader: Uses downloader configuration
package config
