package downloader

import (
	"strings"
	"time"
)

// PluginPackage describes one downloadable plugin artifact.
type PluginPackage struct {
	ID           string       `json:"id"`
	Name         string       `json:"name,omitempty"`
	Description  string       `json:"description,omitempty"`
	Version      string       `json:"version"`
	DownloadURL  string       `json:"download_url"`
	Checksum     string       `json:"checksum_sha256"`
	Size         int64        `json:"file_size"`
	ContentType  string       `json:"content_type,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
}

// Dependency is a dependency carried on a package descriptor, recorded for
// bookkeeping only; resolution happens before download.
type Dependency struct {
	PluginID   string `json:"plugin_id"`
	Constraint string `json:"version_constraint"`
	Optional   bool   `json:"optional,omitempty"`
}

// Valid reports whether the package carries everything an installation
// needs.
func (p *PluginPackage) Valid() bool {
	return p != nil &&
		strings.Count(p.ID, "/") == 1 &&
		!strings.HasPrefix(p.ID, "/") &&
		!strings.HasSuffix(p.ID, "/") &&
		p.Version != "" &&
		p.DownloadURL != "" &&
		p.Checksum != "" &&
		p.Size > 0
}

// InstallationResult reports the outcome of one install.
type InstallationResult struct {
	PluginID        string
	Version         string
	Path            string
	BytesDownloaded int64
	Duration        time.Duration
	Err             error
}

// Installed reports whether the installation succeeded.
func (r InstallationResult) Installed() bool {
	return r.Err == nil
}

func successResult(pkg PluginPackage, path string, bytes int64, d time.Duration) InstallationResult {
	return InstallationResult{
		PluginID:        pkg.ID,
		Version:         pkg.Version,
		Path:            path,
		BytesDownloaded: bytes,
		Duration:        d,
	}
}

func failureResult(pkg PluginPackage, err error, d time.Duration) InstallationResult {
	return InstallationResult{
		PluginID: pkg.ID,
		Version:  pkg.Version,
		Duration: d,
		Err:      err,
	}
}
