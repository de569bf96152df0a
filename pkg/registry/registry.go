package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/aimux-org/aimux/pkg/observability"
)

// ManifestFilename is the manifest file a plugin repository must publish at
// its root.
const ManifestFilename = "aimux-plugin.json"

// Config configures the registry cache and policy.
type Config struct {
	// CacheTTL bounds the freshness window of cached metadata.
	CacheTTL time.Duration

	// MaxCacheEntries bounds the number of cached plugins.
	MaxCacheEntries int

	// BlockedPlugins are rejected before any network call.
	BlockedPlugins []string
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		CacheTTL:        24 * time.Hour,
		MaxCacheEntries: 1000,
	}
}

// Registry discovers and validates plugin source metadata, caching
// responses keyed by plugin identity.
type Registry struct {
	config  Config
	client  *Client
	log     *logrus.Logger
	metrics *observability.Metrics

	repos    *lru.LRU[string, *RepoInfo]
	releases *lru.LRU[string, []Release]

	lookups   atomic.Int64
	cacheHits atomic.Int64
	apiErrors atomic.Int64
}

// New creates a registry backed by the given API client.
func New(client *Client, config Config, log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultConfig().CacheTTL
	}
	if config.MaxCacheEntries <= 0 {
		config.MaxCacheEntries = DefaultConfig().MaxCacheEntries
	}

	return &Registry{
		config:   config,
		client:   client,
		log:      log,
		repos:    lru.NewLRU[string, *RepoInfo](config.MaxCacheEntries, nil, config.CacheTTL),
		releases: lru.NewLRU[string, []Release](config.MaxCacheEntries, nil, config.CacheTTL),
	}
}

// SetMetrics attaches prometheus metrics. Optional; a nil metrics handle
// disables recording.
func (r *Registry) SetMetrics(m *observability.Metrics) {
	r.metrics = m
}

// GetPluginInfo resolves a plugin identity to its repository metadata.
//
// Policy failures (untrusted owner, malformed identity, blocked plugin) are
// reported without any network transfer. All failures are ordinary errors;
// callers distinguish them with errors.Is.
func (r *Registry) GetPluginInfo(ctx context.Context, pluginID string) (*RepoInfo, error) {
	r.lookups.Add(1)

	owner, name, err := r.validate(pluginID)
	if err != nil {
		return nil, err
	}

	if cached, ok := r.repos.Get(pluginID); ok {
		r.cacheHits.Add(1)
		r.metrics.RecordCacheHit()
		return cached, nil
	}
	r.metrics.RecordCacheMiss()

	info, err := r.client.GetRepository(ctx, owner, name)
	if err != nil {
		r.apiErrors.Add(1)
		r.metrics.RecordRegistryRequest("error")
		return nil, fmt.Errorf("failed to fetch repository %s: %w", pluginID, err)
	}
	r.metrics.RecordRegistryRequest("ok")

	r.repos.Add(pluginID, info)
	return info, nil
}

// GetPluginReleases returns the releases of a plugin, newest first by
// semantic version. Draft releases are excluded unconditionally; prerelease
// releases are included only when the caller's strategy permits them.
// Releases whose tags are not valid semantic versions are skipped.
func (r *Registry) GetPluginReleases(ctx context.Context, pluginID string, includePrereleases bool) ([]Release, error) {
	r.lookups.Add(1)

	owner, name, err := r.validate(pluginID)
	if err != nil {
		return nil, err
	}

	all, ok := r.releases.Get(pluginID)
	if ok {
		r.cacheHits.Add(1)
		r.metrics.RecordCacheHit()
	} else {
		r.metrics.RecordCacheMiss()
		all, err = r.client.GetReleases(ctx, owner, name)
		if err != nil {
			r.apiErrors.Add(1)
			r.metrics.RecordRegistryRequest("error")
			return nil, fmt.Errorf("failed to fetch releases for %s: %w", pluginID, err)
		}
		r.metrics.RecordRegistryRequest("ok")
		r.releases.Add(pluginID, all)
	}

	eligible := make([]Release, 0, len(all))
	for _, rel := range all {
		if rel.Draft {
			continue
		}
		if rel.Prerelease && !includePrereleases {
			continue
		}
		if rel.Version() == nil {
			r.log.Debugf("Skipping release %s of %s: tag is not a semantic version", rel.TagName, pluginID)
			continue
		}
		eligible = append(eligible, rel)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		vi, vj := eligible[i].Version(), eligible[j].Version()
		if cmp := vi.Compare(vj); cmp != 0 {
			return cmp > 0
		}
		return eligible[i].TagName > eligible[j].TagName
	})

	return eligible, nil
}

// GetPluginManifest fetches the plugin manifest published at the given
// release tag ("" means the default branch).
func (r *Registry) GetPluginManifest(ctx context.Context, pluginID, ref string) (*PluginManifest, error) {
	owner, name, err := r.validate(pluginID)
	if err != nil {
		return nil, err
	}

	data, err := r.client.GetFileContent(ctx, owner, name, ManifestFilename, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest for %s@%s: %w", pluginID, ref, err)
	}

	var manifest PluginManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest for %s@%s: %w", pluginID, ref, err)
	}
	return &manifest, nil
}

// DiscoverPlugins lists the non-archived repositories of a trusted
// organization.
func (r *Registry) DiscoverPlugins(ctx context.Context, org string) ([]RepoInfo, error) {
	if !r.client.IsTrustedOrganization(org) {
		return nil, fmt.Errorf("%w: %q", ErrUntrustedOwner, org)
	}

	repos, err := r.client.ListOrgRepositories(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories for %s: %w", org, err)
	}

	active := make([]RepoInfo, 0, len(repos))
	for _, repo := range repos {
		if repo.Archived {
			continue
		}
		active = append(active, repo)
	}
	return active, nil
}

// Refresh invalidates the cached metadata for one plugin.
func (r *Registry) Refresh(pluginID string) {
	r.repos.Remove(pluginID)
	r.releases.Remove(pluginID)
}

// ClearCache drops all cached metadata.
func (r *Registry) ClearCache() {
	r.repos.Purge()
	r.releases.Purge()
}

// Statistics returns a snapshot of registry counters.
func (r *Registry) Statistics() map[string]int64 {
	return map[string]int64{
		"lookups":    r.lookups.Load(),
		"cache_hits": r.cacheHits.Load(),
		"api_errors": r.apiErrors.Load(),
	}
}

// validate applies policy checks to a plugin identity: grammar, blocklist,
// and the trusted-organization allowlist. All checks run before any network
// transfer.
func (r *Registry) validate(pluginID string) (owner, name string, err error) {
	owner, name, err = SplitPluginID(pluginID)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPluginID, pluginID)
	}
	if !ownerPattern.MatchString(owner) || !repoNamePattern.MatchString(name) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPluginID, pluginID)
	}
	for _, blocked := range r.config.BlockedPlugins {
		if blocked == pluginID {
			return "", "", fmt.Errorf("%w: %q", ErrPluginBlocked, pluginID)
		}
	}
	if !r.client.IsTrustedOrganization(owner) {
		return "", "", fmt.Errorf("%w: %q", ErrUntrustedOwner, owner)
	}
	return owner, name, nil
}
