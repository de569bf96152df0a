package config

import (
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{name: "true string", envValue: "true", want: true},
		{name: "one string", envValue: "1", want: true},
		{name: "false string", envValue: "false", defaultValue: true, want: false},
		{name: "unset uses default", envValue: "", defaultValue: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("TEST_BOOL_VAR", tt.envValue)
				defer os.Unsetenv("TEST_BOOL_VAR")
			}

			got := getEnvBool("TEST_BOOL_VAR", tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvList tests the getEnvList helper function
func TestGetEnvList(t *testing.T) {
	os.Setenv("TEST_LIST_VAR", "aimux-org, aimux-plugins ,,awesome-aimux")
	defer os.Unsetenv("TEST_LIST_VAR")

	got := getEnvList("TEST_LIST_VAR", nil)
	want := []string{"aimux-org", "aimux-plugins", "awesome-aimux"}
	if len(got) != len(want) {
		t.Fatalf("getEnvList() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("getEnvList()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	def := []string{"fallback"}
	if got := getEnvList("TEST_LIST_VAR_NOT_SET", def); len(got) != 1 || got[0] != "fallback" {
		t.Errorf("getEnvList() = %v, want %v", got, def)
	}
}

// TestLoadDefaults tests that Load produces valid defaults
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Registry.BaseURL != "https://api.github.com" {
		t.Errorf("BaseURL = %v", cfg.Registry.BaseURL)
	}
	if cfg.Registry.CacheTTL != 24*time.Hour {
		t.Errorf("CacheTTL = %v", cfg.Registry.CacheTTL)
	}
	if cfg.Resolver.Strategy != "stable" {
		t.Errorf("Strategy = %v", cfg.Resolver.Strategy)
	}
	if cfg.Downloader.MaxParallel != 3 {
		t.Errorf("MaxParallel = %v", cfg.Downloader.MaxParallel)
	}
	if !cfg.Downloader.ParallelDownloads {
		t.Error("ParallelDownloads should default to true")
	}
	if !cfg.Downloader.VerifyChecksums {
		t.Error("VerifyChecksums should default to true")
	}
	if cfg.Observability.LogLevel != logrus.InfoLevel {
		t.Errorf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

// TestLoadFromEnvironment tests environment variable overrides
func TestLoadFromEnvironment(t *testing.T) {
	vars := map[string]string{
		"AIMUX_RESOLUTION_STRATEGY":   "minimum",
		"AIMUX_MAX_PARALLEL_DOWNLOADS": "5",
		"AIMUX_OFFLINE":               "true",
		"AIMUX_CACHE_TTL":             "1h",
		"AIMUX_TRUSTED_ORGS":          "my-org",
		"AIMUX_LOG_LEVEL":             "debug",
	}
	for k, v := range vars {
		os.Setenv(k, v)
		defer os.Unsetenv(k)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Resolver.Strategy != "minimum" {
		t.Errorf("Strategy = %v", cfg.Resolver.Strategy)
	}
	if cfg.Downloader.MaxParallel != 5 {
		t.Errorf("MaxParallel = %v", cfg.Downloader.MaxParallel)
	}
	if !cfg.Downloader.Offline {
		t.Error("Offline should be true")
	}
	if cfg.Registry.CacheTTL != time.Hour {
		t.Errorf("CacheTTL = %v", cfg.Registry.CacheTTL)
	}
	if len(cfg.Registry.TrustedOrgs) != 1 || cfg.Registry.TrustedOrgs[0] != "my-org" {
		t.Errorf("TrustedOrgs = %v", cfg.Registry.TrustedOrgs)
	}
	if cfg.Observability.LogLevel != logrus.DebugLevel {
		t.Errorf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

// TestValidate tests configuration validation
func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Registry: RegistryConfig{
				BaseURL:         "https://api.github.com",
				CacheTTL:        time.Hour,
				MaxCacheEntries: 100,
			},
			Resolver: ResolverConfig{Strategy: "stable"},
			Downloader: DownloaderConfig{
				DownloadDir: "download",
				InstallDir:  "installation",
				BackupDir:   "backup",
				MaxParallel: 3,
			},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg := base()
	cfg.Resolver.Strategy = "newest"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown strategy accepted")
	}

	cfg = base()
	cfg.Downloader.MaxParallel = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero parallelism accepted")
	}

	cfg = base()
	cfg.Downloader.InstallDir = cfg.Downloader.DownloadDir
	if err := cfg.Validate(); err == nil {
		t.Error("shared download/install directory accepted")
	}

	cfg = base()
	cfg.Registry.CacheTTL = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero cache TTL accepted")
	}
}

// TestBuildDownloaderConfig tests the parallelism collapse
func TestBuildDownloaderConfig(t *testing.T) {
	cfg := &Config{Downloader: DownloaderConfig{ParallelDownloads: true, MaxParallel: 5}}
	if got := cfg.BuildDownloaderConfig().MaxParallel; got != 5 {
		t.Errorf("MaxParallel = %v", got)
	}

	cfg.Downloader.ParallelDownloads = false
	if got := cfg.BuildDownloaderConfig().MaxParallel; got != 1 {
		t.Errorf("MaxParallel with parallel downloads disabled = %v", got)
	}
}
