package distribution

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aimux-org/aimux/pkg/downloader"
	"github.com/aimux-org/aimux/pkg/registry"
	"github.com/aimux-org/aimux/pkg/resolver"
	"github.com/aimux-org/aimux/pkg/version"
)

// Engine orchestrates the registry, resolver, and downloader.
type Engine struct {
	registry   *registry.Registry
	resolver   *resolver.Resolver
	downloader *downloader.Downloader
	log        *logrus.Logger
}

// New creates an engine over already-constructed components.
func New(reg *registry.Registry, res *resolver.Resolver, dl *downloader.Downloader, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		registry:   reg,
		resolver:   res,
		downloader: dl,
		log:        log,
	}
}

// Registry exposes the engine's registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Resolver exposes the engine's resolver.
func (e *Engine) Resolver() *resolver.Resolver { return e.resolver }

// Downloader exposes the engine's downloader.
func (e *Engine) Downloader() *downloader.Downloader { return e.downloader }

// Resolve resolves the given requests against the currently installed
// set from the lockfile.
func (e *Engine) Resolve(ctx context.Context, requests []resolver.Request) (*resolver.Result, error) {
	return e.resolver.Resolve(ctx, requests, e.downloader.Lockfile().Versions())
}

// PackageFor builds the downloadable package descriptor for a resolved
// assignment from its release assets.
func (e *Engine) PackageFor(ctx context.Context, a resolver.Assignment) (downloader.PluginPackage, error) {
	releases, err := e.registry.GetPluginReleases(ctx, a.PluginID, true)
	if err != nil {
		return downloader.PluginPackage{}, err
	}

	for _, rel := range releases {
		v := rel.Version()
		if v == nil || !v.Equal(a.Version) {
			continue
		}
		_, name, err := registry.SplitPluginID(a.PluginID)
		if err != nil {
			return downloader.PluginPackage{}, err
		}
		asset := rel.PrimaryAsset(name)
		if asset == nil {
			return downloader.PluginPackage{}, fmt.Errorf("release %s of %s has no assets", rel.TagName, a.PluginID)
		}
		pkg := downloader.PluginPackage{
			ID:          a.PluginID,
			Name:        name,
			Version:     a.Version.String(),
			DownloadURL: asset.DownloadURL,
			Checksum:    asset.Checksum,
			Size:        asset.Size,
			ContentType: asset.ContentType,
		}
		// The manifest, when published, carries the display name and
		// description; a plugin without one keeps the repository name.
		if m, err := e.registry.GetPluginManifest(ctx, a.PluginID, rel.TagName); err == nil {
			if m.Name != "" {
				pkg.Name = m.Name
			}
			pkg.Description = m.Description
		}
		return pkg, nil
	}
	return downloader.PluginPackage{}, fmt.Errorf("no release found for %s@%s", a.PluginID, a.Version)
}

// InstallPlugin resolves pluginID under the constraint together with the
// installed set, then downloads and installs the chosen version and any
// missing dependencies. Dependencies install first; the channel delivers
// the result for the requested plugin.
func (e *Engine) InstallPlugin(ctx context.Context, pluginID string, constraint version.Constraint, progress downloader.ProgressFunc) <-chan downloader.InstallationResult {
	ch := make(chan downloader.InstallationResult, 1)
	go func() {
		ch <- e.InstallPluginSync(ctx, pluginID, constraint, progress)
		close(ch)
	}()
	return ch
}

// InstallPluginSync is InstallPlugin without the goroutine.
func (e *Engine) InstallPluginSync(ctx context.Context, pluginID string, constraint version.Constraint, progress downloader.ProgressFunc) downloader.InstallationResult {
	start := time.Now()
	fail := func(err error) downloader.InstallationResult {
		return downloader.InstallationResult{
			PluginID: pluginID,
			Duration: time.Since(start),
			Err:      err,
		}
	}

	result, err := e.Resolve(ctx, []resolver.Request{{PluginID: pluginID, Constraint: constraint}})
	if err != nil {
		return fail(fmt.Errorf("resolution failed: %w", err))
	}
	if !result.OK() {
		return fail(fmt.Errorf("resolution produced %d conflict(s), first: %s",
			len(result.Conflicts), result.Conflicts[0]))
	}

	installed := e.downloader.Lockfile().Versions()
	var target *resolver.Assignment
	deps := make([]resolver.Assignment, 0, len(result.Assignments))
	for i := range result.Assignments {
		a := result.Assignments[i]
		if a.PluginID == pluginID {
			target = &a
			continue
		}
		deps = append(deps, a)
	}
	if target == nil {
		return fail(fmt.Errorf("resolution chose no version for %s", pluginID))
	}

	for _, a := range deps {
		if v, ok := installed[a.PluginID]; ok && v == a.Version.String() {
			continue
		}
		e.log.WithFields(logrus.Fields{
			"plugin":     pluginID,
			"dependency": a.PluginID,
			"version":    a.Version.String(),
		}).Info("Installing dependency")
		if res := e.installAssignment(ctx, a, nil); res.Err != nil {
			return fail(fmt.Errorf("dependency %s@%s: %w", a.PluginID, a.Version, res.Err))
		}
	}

	return e.installAssignment(ctx, *target, progress)
}

func (e *Engine) installAssignment(ctx context.Context, a resolver.Assignment, progress downloader.ProgressFunc) downloader.InstallationResult {
	pkg, err := e.PackageFor(ctx, a)
	if err != nil {
		return downloader.InstallationResult{
			PluginID: a.PluginID,
			Version:  a.Version.String(),
			Err:      err,
		}
	}
	return e.downloader.InstallSync(ctx, pkg, progress)
}

// UninstallPlugin removes an installed plugin. Returns false with no
// error when the plugin is not installed.
func (e *Engine) UninstallPlugin(pluginID string) (bool, error) {
	return e.downloader.Uninstall(pluginID)
}

// RollbackPlugin restores the backed-up previous version of a plugin.
func (e *Engine) RollbackPlugin(pluginID string) error {
	return e.downloader.Rollback(pluginID)
}

// InstalledPlugins lists every installed plugin.
func (e *Engine) InstalledPlugins() ([]downloader.InstalledPlugin, error) {
	return e.downloader.InstalledPlugins()
}

// DownloadStatistics returns the downloader's counters.
func (e *Engine) DownloadStatistics() map[string]float64 {
	return e.downloader.Statistics()
}
