package registry

import (
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/aimux-org/aimux/pkg/version"
)

// RepoInfo describes the source repository backing a plugin.
type RepoInfo struct {
	Owner         string    `json:"owner"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	DefaultBranch string    `json:"default_branch"`
	Topics        []string  `json:"topics"`
	License       string    `json:"license"`
	Stars         int       `json:"stars"`
	Forks         int       `json:"forks"`
	UpdatedAt     time.Time `json:"updated_at"`
	Archived      bool      `json:"archived"`
}

// Valid reports whether the repository info identifies a usable source.
func (r *RepoInfo) Valid() bool {
	return r != nil && r.Owner != "" && r.Name != ""
}

// PluginID returns the "owner/name" identity for this repository.
func (r *RepoInfo) PluginID() string {
	return r.Owner + "/" + r.Name
}

// Asset is a downloadable artifact attached to a release.
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Checksum    string `json:"checksum_sha256"`
}

// Release is a published version of a plugin.
type Release struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Body        string    `json:"body"`
	Prerelease  bool      `json:"prerelease"`
	Draft       bool      `json:"draft"`
	PublishedAt time.Time `json:"published_at"`
	Assets      []Asset   `json:"assets"`
}

// Version parses the release tag as a semantic version. Returns nil when
// the tag is not a valid version; such releases are skipped during
// resolution.
func (r *Release) Version() *semver.Version {
	v, err := version.Parse(r.TagName)
	if err != nil {
		return nil
	}
	return v
}

// PrimaryAsset returns the asset carrying the plugin payload: the first
// asset whose name contains the repository name, falling back to the first
// asset. Returns nil when the release has no assets.
func (r *Release) PrimaryAsset(repoName string) *Asset {
	if len(r.Assets) == 0 {
		return nil
	}
	for i := range r.Assets {
		if strings.Contains(r.Assets[i].Name, repoName) {
			return &r.Assets[i]
		}
	}
	return &r.Assets[0]
}

// ManifestDependency is a dependency declaration inside a plugin manifest.
type ManifestDependency struct {
	PluginID   string `json:"plugin_id"`
	Constraint string `json:"version_constraint"`
	Optional   bool   `json:"optional"`
}

// PluginManifest is the aimux-plugin.json document published in a plugin
// repository. It carries the metadata the resolver needs; plugin content is
// never interpreted here.
type PluginManifest struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	Version             string               `json:"version"`
	Description         string               `json:"description"`
	Dependencies        []ManifestDependency `json:"dependencies"`
	MinimumAimuxVersion string               `json:"minimum_aimux_version"`
}

// SplitPluginID splits an "owner/name" identity into its parts.
func SplitPluginID(pluginID string) (owner, name string, err error) {
	idx := strings.Index(pluginID, "/")
	if idx <= 0 || idx == len(pluginID)-1 || strings.Count(pluginID, "/") != 1 {
		return "", "", ErrInvalidPluginID
	}
	return pluginID[:idx], pluginID[idx+1:], nil
}
