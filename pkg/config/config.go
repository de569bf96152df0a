package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aimux-org/aimux/pkg/downloader"
	"github.com/aimux-org/aimux/pkg/registry"
	"github.com/aimux-org/aimux/pkg/resolver"
)

// Config holds all application configuration
type Config struct {
	// Registry configuration
	Registry RegistryConfig

	// Resolver configuration
	Resolver ResolverConfig

	// Downloader configuration
	Downloader DownloaderConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// RegistryConfig holds plugin registry settings
type RegistryConfig struct {
	BaseURL         string
	APIToken        string
	TrustedOrgs     []string
	BlockedPlugins  []string
	CacheTTL        time.Duration
	MaxCacheEntries int
	RequestTimeout  time.Duration
}

// ResolverConfig holds dependency resolution settings
type ResolverConfig struct {
	Strategy           string
	IncludePrereleases bool
	IncludeOptional    bool
}

// DownloaderConfig holds download and installation settings
type DownloaderConfig struct {
	DownloadDir       string
	InstallDir        string
	BackupDir         string
	ParallelDownloads bool
	MaxParallel       int
	MaxRetries        int
	DownloadTimeout   time.Duration
	VerifyChecksums   bool
	Offline           bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       logrus.Level
	MetricsEnabled bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Registry:      loadRegistryConfig(),
		Resolver:      loadResolverConfig(),
		Downloader:    loadDownloaderConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadRegistryConfig() RegistryConfig {
	defaults := registry.DefaultClientConfig()
	return RegistryConfig{
		BaseURL:         getEnv("AIMUX_GITHUB_BASE_URL", defaults.BaseURL),
		APIToken:        getEnv("AIMUX_GITHUB_TOKEN", ""),
		TrustedOrgs:     getEnvList("AIMUX_TRUSTED_ORGS", defaults.TrustedOrganizations),
		BlockedPlugins:  getEnvList("AIMUX_BLOCKED_PLUGINS", nil),
		CacheTTL:        getEnvDuration("AIMUX_CACHE_TTL", 24*time.Hour),
		MaxCacheEntries: getEnvInt("AIMUX_MAX_CACHE_ENTRIES", 1000),
		RequestTimeout:  getEnvDuration("AIMUX_REQUEST_TIMEOUT", defaults.Timeout),
	}
}

func loadResolverConfig() ResolverConfig {
	return ResolverConfig{
		Strategy:           getEnv("AIMUX_RESOLUTION_STRATEGY", "stable"),
		IncludePrereleases: getEnvBool("AIMUX_INCLUDE_PRERELEASES", false),
		IncludeOptional:    getEnvBool("AIMUX_INCLUDE_OPTIONAL", false),
	}
}

func loadDownloaderConfig() DownloaderConfig {
	defaults := downloader.DefaultConfig()
	return DownloaderConfig{
		DownloadDir:       getEnv("AIMUX_DOWNLOAD_DIR", defaults.DownloadDir),
		InstallDir:        getEnv("AIMUX_INSTALL_DIR", defaults.InstallDir),
		BackupDir:         getEnv("AIMUX_BACKUP_DIR", defaults.BackupDir),
		ParallelDownloads: getEnvBool("AIMUX_PARALLEL_DOWNLOADS", true),
		MaxParallel:       getEnvInt("AIMUX_MAX_PARALLEL_DOWNLOADS", defaults.MaxParallel),
		MaxRetries:        getEnvInt("AIMUX_MAX_RETRIES", defaults.MaxRetries),
		DownloadTimeout:   getEnvDuration("AIMUX_DOWNLOAD_TIMEOUT", 30*time.Second),
		VerifyChecksums:   getEnvBool("AIMUX_VERIFY_CHECKSUMS", true),
		Offline:           getEnvBool("AIMUX_OFFLINE", false),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("AIMUX_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("AIMUX_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := resolver.ParseStrategy(c.Resolver.Strategy); err != nil {
		return err
	}
	if c.Downloader.MaxParallel <= 0 {
		return fmt.Errorf("max parallel downloads must be positive")
	}
	if c.Downloader.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	if c.Downloader.DownloadDir == c.Downloader.InstallDir {
		return fmt.Errorf("download and installation directories must be different")
	}
	if c.Registry.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.Registry.MaxCacheEntries <= 0 {
		return fmt.Errorf("max cache entries must be positive")
	}
	return nil
}

// RegistryClientConfig converts to the registry client's configuration.
func (c *Config) RegistryClientConfig() registry.ClientConfig {
	cfg := registry.DefaultClientConfig()
	cfg.BaseURL = c.Registry.BaseURL
	cfg.APIToken = c.Registry.APIToken
	cfg.Timeout = c.Registry.RequestTimeout
	cfg.TrustedOrganizations = c.Registry.TrustedOrgs
	cfg.Offline = c.Downloader.Offline
	return cfg
}

// RegistryCacheConfig converts to the registry's cache configuration.
func (c *Config) RegistryCacheConfig() registry.Config {
	return registry.Config{
		CacheTTL:        c.Registry.CacheTTL,
		MaxCacheEntries: c.Registry.MaxCacheEntries,
		BlockedPlugins:  c.Registry.BlockedPlugins,
	}
}

// BuildResolverConfig converts to the resolver's configuration.
func (c *Config) BuildResolverConfig() resolver.Config {
	strategy, _ := resolver.ParseStrategy(c.Resolver.Strategy)
	cfg := resolver.DefaultConfig()
	cfg.Strategy = strategy
	cfg.IncludePrereleases = c.Resolver.IncludePrereleases
	cfg.IncludeOptional = c.Resolver.IncludeOptional
	return cfg
}

// BuildDownloaderConfig converts to the downloader's configuration. With
// parallel downloads disabled the parallelism bound collapses to one.
func (c *Config) BuildDownloaderConfig() downloader.Config {
	maxParallel := c.Downloader.MaxParallel
	if !c.Downloader.ParallelDownloads {
		maxParallel = 1
	}
	return downloader.Config{
		DownloadDir:     c.Downloader.DownloadDir,
		InstallDir:      c.Downloader.InstallDir,
		BackupDir:       c.Downloader.BackupDir,
		MaxParallel:     maxParallel,
		MaxRetries:      c.Downloader.MaxRetries,
		Strategy:        c.Resolver.Strategy,
		VerifyChecksums: c.Downloader.VerifyChecksums,
		Offline:         c.Downloader.Offline,
	}
}

// TransportConfig converts to the HTTP transport configuration.
func (c *Config) TransportConfig() downloader.HTTPTransportConfig {
	cfg := downloader.DefaultHTTPTransportConfig()
	cfg.Timeout = c.Downloader.DownloadTimeout
	cfg.MaxRetries = c.Downloader.MaxRetries
	return cfg
}

// NewLogger builds a logger honoring the configured level.
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(c.Observability.LogLevel)
	return log
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable as a slice or
// a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
