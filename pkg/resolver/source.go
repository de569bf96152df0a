package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/aimux-org/aimux/pkg/registry"
	"github.com/aimux-org/aimux/pkg/version"
)

// RegistrySource adapts a registry to the Source interface. It remembers
// the release tag behind each version so manifests can be fetched at the
// right ref.
type RegistrySource struct {
	registry *registry.Registry

	mu   sync.Mutex
	tags map[string]string // id@version -> release tag
}

// NewRegistrySource wraps a registry as a resolver source.
func NewRegistrySource(reg *registry.Registry) *RegistrySource {
	return &RegistrySource{
		registry: reg,
		tags:     make(map[string]string),
	}
}

// Releases implements Source. Prereleases are always included here; the
// resolver applies its own eligibility rules.
func (s *RegistrySource) Releases(ctx context.Context, pluginID string) ([]*semver.Version, error) {
	releases, err := s.registry.GetPluginReleases(ctx, pluginID, true)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, pluginID)
		}
		return nil, err
	}

	versions := make([]*semver.Version, 0, len(releases))
	s.mu.Lock()
	for _, rel := range releases {
		v := rel.Version()
		if v == nil {
			continue
		}
		versions = append(versions, v)
		s.tags[pluginID+"@"+v.String()] = rel.TagName
	}
	s.mu.Unlock()
	return versions, nil
}

// Dependencies implements Source by reading the plugin manifest published
// at the release tag of the given version. A missing manifest means the
// plugin declares no dependencies.
func (s *RegistrySource) Dependencies(ctx context.Context, pluginID string, v *semver.Version) ([]Dependency, error) {
	tag, err := s.tagFor(ctx, pluginID, v)
	if err != nil {
		return nil, err
	}

	manifest, err := s.registry.GetPluginManifest(ctx, pluginID, tag)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	deps := make([]Dependency, 0, len(manifest.Dependencies))
	for _, d := range manifest.Dependencies {
		c, err := version.ParseConstraint(d.Constraint)
		if err != nil {
			return nil, fmt.Errorf("manifest of %s@%s declares a bad constraint for %s: %w", pluginID, v, d.PluginID, err)
		}
		deps = append(deps, Dependency{
			PluginID:   d.PluginID,
			Constraint: c,
			Optional:   d.Optional,
		})
	}
	return deps, nil
}

func (s *RegistrySource) tagFor(ctx context.Context, pluginID string, v *semver.Version) (string, error) {
	key := pluginID + "@" + v.String()

	s.mu.Lock()
	tag, ok := s.tags[key]
	s.mu.Unlock()
	if ok {
		return tag, nil
	}

	// Tag unknown; repopulate from the release list.
	if _, err := s.Releases(ctx, pluginID); err != nil {
		return "", err
	}
	s.mu.Lock()
	tag, ok = s.tags[key]
	s.mu.Unlock()
	if ok {
		return tag, nil
	}
	return "v" + v.String(), nil
}
