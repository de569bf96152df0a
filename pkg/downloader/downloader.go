package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"gopkg.in/yaml.v3"

	"github.com/aimux-org/aimux/pkg/lockfile"
	"github.com/aimux-org/aimux/pkg/observability"
)

// manifestFilename is the metadata file written next to every installed
// payload.
const manifestFilename = "plugin.yaml"

// Config configures a Downloader.
type Config struct {
	// DownloadDir holds in-flight downloads and staging directories.
	DownloadDir string

	// InstallDir holds one directory per installed plugin.
	InstallDir string

	// BackupDir holds the previous version of each reinstalled plugin.
	BackupDir string

	// LockfilePath defaults to aimux-lock.json inside InstallDir.
	LockfilePath string

	// MaxParallel bounds concurrent installs across plugins.
	MaxParallel int

	// MaxRetries bounds download retry attempts after the first try.
	MaxRetries int

	// Strategy is the resolution strategy that produced the versions being
	// installed; recorded on lockfile entries.
	Strategy string

	// VerifyChecksums enables payload verification after download.
	VerifyChecksums bool

	// Offline rejects every download attempt.
	Offline bool
}

// DefaultConfig returns the default downloader configuration, rooted in
// the current directory.
func DefaultConfig() Config {
	return Config{
		DownloadDir:     "download",
		InstallDir:      "installation",
		BackupDir:       "backup",
		MaxParallel:     3,
		MaxRetries:      3,
		Strategy:        "stable",
		VerifyChecksums: true,
	}
}

// InstalledPlugin describes one plugin present in the installation
// directory.
type InstalledPlugin struct {
	ID          string    `yaml:"id"`
	Version     string    `yaml:"version"`
	Checksum    string    `yaml:"checksum_sha256"`
	Size        int64     `yaml:"size"`
	Payload     string    `yaml:"payload"`
	InstalledAt time.Time `yaml:"installed_at"`

	Path string `yaml:"-"`
}

// Downloader downloads and installs plugin packages.
type Downloader struct {
	config    Config
	transport Transport
	log       *logrus.Logger
	metrics   *observability.Metrics

	lock  *lockfile.File
	sem   *semaphore.Weighted
	stats Stats

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a downloader, creating its working directories and loading
// the lockfile. A nil transport gets the default HTTP transport.
func New(config Config, transport Transport, log *logrus.Logger) (*Downloader, error) {
	if log == nil {
		log = logrus.New()
	}
	if transport == nil {
		transport = NewHTTPTransport(DefaultHTTPTransportConfig())
	}
	def := DefaultConfig()
	if config.DownloadDir == "" {
		config.DownloadDir = def.DownloadDir
	}
	if config.InstallDir == "" {
		config.InstallDir = def.InstallDir
	}
	if config.BackupDir == "" {
		config.BackupDir = def.BackupDir
	}
	if config.MaxParallel <= 0 {
		config.MaxParallel = def.MaxParallel
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.Strategy == "" {
		config.Strategy = def.Strategy
	}
	if config.LockfilePath == "" {
		config.LockfilePath = filepath.Join(config.InstallDir, "aimux-lock.json")
	}

	for _, dir := range []string{config.DownloadDir, config.InstallDir, config.BackupDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	lock, err := lockfile.Load(config.LockfilePath)
	if err != nil {
		return nil, err
	}

	return &Downloader{
		config:    config,
		transport: transport,
		log:       log,
		lock:      lock,
		sem:       semaphore.NewWeighted(int64(config.MaxParallel)),
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

// SetMetrics attaches prometheus metrics. Optional.
func (d *Downloader) SetMetrics(m *observability.Metrics) {
	d.metrics = m
}

// Lockfile exposes the downloader's lockfile.
func (d *Downloader) Lockfile() *lockfile.File {
	return d.lock
}

// Install downloads, verifies, and installs a plugin package. The result
// is delivered on the returned channel; installs for distinct plugins run
// concurrently up to the configured bound, installs for the same plugin
// are serialized.
func (d *Downloader) Install(ctx context.Context, pkg PluginPackage, progress ProgressFunc) <-chan InstallationResult {
	ch := make(chan InstallationResult, 1)
	go func() {
		ch <- d.install(ctx, pkg, progress)
		close(ch)
	}()
	return ch
}

// InstallSync is Install without the goroutine.
func (d *Downloader) InstallSync(ctx context.Context, pkg PluginPackage, progress ProgressFunc) InstallationResult {
	return d.install(ctx, pkg, progress)
}

func (d *Downloader) install(ctx context.Context, pkg PluginPackage, progress ProgressFunc) InstallationResult {
	start := time.Now()

	if d.config.Offline {
		d.stats.RecordFailure()
		d.metrics.RecordDownload("offline", 0, time.Since(start))
		return failureResult(pkg, ErrOfflineMode, time.Since(start))
	}
	if !pkg.Valid() {
		d.stats.RecordFailure()
		return failureResult(pkg, fmt.Errorf("%w: %+v", ErrInvalidPackage, pkg), time.Since(start))
	}

	lock := d.pluginLock(pkg.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.stats.RecordFailure()
		return failureResult(pkg, err, time.Since(start))
	}
	defer d.sem.Release(1)

	key := pluginKey(pkg.ID)
	staging := filepath.Join(d.config.DownloadDir,
		fmt.Sprintf("%s-%s-%s.partial", key, pkg.Version, shortID()))
	defer os.Remove(staging)

	d.log.WithFields(logrus.Fields{
		"plugin":  pkg.ID,
		"version": pkg.Version,
	}).Info("Installing plugin")

	bytes, err := d.download(ctx, pkg, staging, progress)
	if err != nil {
		d.stats.RecordFailure()
		d.metrics.RecordDownload("error", bytes, time.Since(start))
		return failureResult(pkg, err, time.Since(start))
	}

	if err := d.verify(pkg, staging, bytes); err != nil {
		d.stats.RecordFailure()
		d.metrics.RecordDownload("integrity_error", bytes, time.Since(start))
		return failureResult(pkg, err, time.Since(start))
	}

	path, err := d.place(pkg, key, staging, bytes)
	if err != nil {
		d.stats.RecordFailure()
		d.metrics.RecordDownload("error", bytes, time.Since(start))
		return failureResult(pkg, err, time.Since(start))
	}

	d.lock.Upsert(lockfile.Entry{
		PluginID:        pkg.ID,
		ResolvedVersion: pkg.Version,
		Checksum:        pkg.Checksum,
		Strategy:        d.config.Strategy,
		ResolvedAt:      time.Now().UTC(),
	})
	if err := d.lock.Save(); err != nil {
		d.log.WithError(err).Warn("Failed to persist lockfile")
	}

	elapsed := time.Since(start)
	d.stats.RecordSuccess(bytes, elapsed)
	d.metrics.RecordDownload("success", bytes, elapsed)
	d.metrics.SetInstalledPlugins(d.installedCount())

	d.log.WithFields(logrus.Fields{
		"plugin":   pkg.ID,
		"version":  pkg.Version,
		"bytes":    bytes,
		"duration": elapsed,
	}).Info("Plugin installed")

	return successResult(pkg, path, bytes, elapsed)
}

// download fetches the payload with exponential backoff. Transport errors
// are retried up to MaxRetries; a cancelled context aborts immediately.
func (d *Downloader) download(ctx context.Context, pkg PluginPackage, dest string, progress ProgressFunc) (int64, error) {
	var total int64
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(d.config.MaxRetries)),
		ctx,
	)
	err := backoff.Retry(func() error {
		var n int64
		var err error
		if info, serr := os.Stat(dest); serr == nil && info.Size() > 0 && d.transport.SupportsResume() {
			n, err = d.transport.Resume(ctx, pkg.DownloadURL, dest, info.Size(), progress)
		} else {
			n, err = d.transport.Download(ctx, pkg.DownloadURL, dest, progress)
		}
		total = n
		if err != nil {
			d.log.WithError(err).WithField("plugin", pkg.ID).Warn("Download attempt failed")
			var status *StatusError
			if errors.As(err, &status) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}, bo)
	if err != nil {
		return total, fmt.Errorf("failed to download %s@%s: %w", pkg.ID, pkg.Version, err)
	}
	return total, nil
}

// verify checks the payload size and checksum. Integrity failures are
// final; the staged payload is discarded and never retried.
func (d *Downloader) verify(pkg PluginPackage, path string, size int64) error {
	if pkg.Size > 0 && size != pkg.Size {
		return fmt.Errorf("%w for %s@%s: expected %d bytes, got %d",
			ErrSizeMismatch, pkg.ID, pkg.Version, pkg.Size, size)
	}
	if !d.config.VerifyChecksums {
		return nil
	}
	sum, err := sha256File(path)
	if err != nil {
		return fmt.Errorf("failed to hash payload: %w", err)
	}
	if !strings.EqualFold(sum, pkg.Checksum) {
		return fmt.Errorf("%w for %s@%s: expected %s, got %s",
			ErrChecksumMismatch, pkg.ID, pkg.Version, pkg.Checksum, sum)
	}
	return nil
}

// place moves the verified payload into the installation directory. The
// previous version, if any, is backed up and the final switch is a
// rename, so a failure leaves the old installation in place.
func (d *Downloader) place(pkg PluginPackage, key, staging string, size int64) (string, error) {
	payloadName := fmt.Sprintf("%s-%s.pkg", key, pkg.Version)
	stageDir := filepath.Join(d.config.DownloadDir, "stage-"+shortID())
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stageDir)

	if err := os.Rename(staging, filepath.Join(stageDir, payloadName)); err != nil {
		return "", fmt.Errorf("failed to stage payload: %w", err)
	}

	manifest := InstalledPlugin{
		ID:          pkg.ID,
		Version:     pkg.Version,
		Checksum:    pkg.Checksum,
		Size:        size,
		Payload:     payloadName,
		InstalledAt: time.Now().UTC(),
	}
	data, err := yaml.Marshal(&manifest)
	if err != nil {
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(stageDir, manifestFilename), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}

	pluginDir := filepath.Join(d.config.InstallDir, key)
	if _, err := os.Stat(pluginDir); err == nil {
		backup := filepath.Join(d.config.BackupDir, key)
		os.RemoveAll(backup)
		if err := copyDir(pluginDir, backup); err != nil {
			return "", fmt.Errorf("failed to back up previous version: %w", err)
		}

		trash := pluginDir + ".trash-" + shortID()
		if err := os.Rename(pluginDir, trash); err != nil {
			return "", fmt.Errorf("failed to displace previous version: %w", err)
		}
		if err := os.Rename(stageDir, pluginDir); err != nil {
			// Put the old version back; the install failed cleanly.
			if rerr := os.Rename(trash, pluginDir); rerr != nil {
				d.log.WithError(rerr).Error("Failed to restore previous version")
			}
			return "", fmt.Errorf("failed to install new version: %w", err)
		}
		os.RemoveAll(trash)
	} else {
		if err := os.Rename(stageDir, pluginDir); err != nil {
			return "", fmt.Errorf("failed to install: %w", err)
		}
	}

	return pluginDir, nil
}

// Uninstall removes an installed plugin. Returns false with no error when
// the plugin is not installed; uninstalling is idempotent.
func (d *Downloader) Uninstall(pluginID string) (bool, error) {
	lock := d.pluginLock(pluginID)
	lock.Lock()
	defer lock.Unlock()

	pluginDir := filepath.Join(d.config.InstallDir, pluginKey(pluginID))
	if _, err := os.Stat(pluginDir); os.IsNotExist(err) {
		if d.lock.Remove(pluginID) {
			if err := d.lock.Save(); err != nil {
				d.log.WithError(err).Warn("Failed to persist lockfile")
			}
		}
		return false, nil
	}

	if err := os.RemoveAll(pluginDir); err != nil {
		return false, fmt.Errorf("failed to remove %s: %w", pluginID, err)
	}
	d.lock.Remove(pluginID)
	if err := d.lock.Save(); err != nil {
		d.log.WithError(err).Warn("Failed to persist lockfile")
	}
	d.metrics.SetInstalledPlugins(d.installedCount())

	d.log.WithField("plugin", pluginID).Info("Plugin uninstalled")
	return true, nil
}

// Rollback restores the backed-up previous version of a plugin. The
// backup is consumed by the restore.
func (d *Downloader) Rollback(pluginID string) error {
	lock := d.pluginLock(pluginID)
	lock.Lock()
	defer lock.Unlock()

	key := pluginKey(pluginID)
	backup := filepath.Join(d.config.BackupDir, key)
	if _, err := os.Stat(backup); os.IsNotExist(err) {
		return fmt.Errorf("%w for %s", ErrNoBackup, pluginID)
	}

	restored, err := readManifest(backup)
	if err != nil {
		return fmt.Errorf("backup of %s is unreadable: %w", pluginID, err)
	}

	pluginDir := filepath.Join(d.config.InstallDir, key)
	trash := pluginDir + ".trash-" + shortID()
	hadCurrent := false
	if _, err := os.Stat(pluginDir); err == nil {
		hadCurrent = true
		if err := os.Rename(pluginDir, trash); err != nil {
			return fmt.Errorf("failed to displace current version: %w", err)
		}
	}
	if err := os.Rename(backup, pluginDir); err != nil {
		if hadCurrent {
			os.Rename(trash, pluginDir)
		}
		return fmt.Errorf("failed to restore backup: %w", err)
	}
	if hadCurrent {
		os.RemoveAll(trash)
	}

	d.lock.Upsert(lockfile.Entry{
		PluginID:        pluginID,
		ResolvedVersion: restored.Version,
		Checksum:        restored.Checksum,
		Strategy:        d.config.Strategy,
		ResolvedAt:      time.Now().UTC(),
	})
	if err := d.lock.Save(); err != nil {
		d.log.WithError(err).Warn("Failed to persist lockfile")
	}

	d.log.WithFields(logrus.Fields{
		"plugin":  pluginID,
		"version": restored.Version,
	}).Info("Plugin rolled back")
	return nil
}

// InstalledPlugins lists every plugin in the installation directory,
// sorted by identity. Directories without a readable manifest are skipped
// with a warning.
func (d *Downloader) InstalledPlugins() ([]InstalledPlugin, error) {
	entries, err := os.ReadDir(d.config.InstallDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read installation directory: %w", err)
	}

	plugins := make([]InstalledPlugin, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(d.config.InstallDir, entry.Name())
		m, err := readManifest(dir)
		if err != nil {
			d.log.WithError(err).WithField("dir", entry.Name()).Warn("Skipping unreadable plugin directory")
			continue
		}
		plugins = append(plugins, *m)
	}

	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].ID < plugins[j].ID
	})
	return plugins, nil
}

// Statistics returns download counters keyed the way the stats endpoint
// reports them.
func (d *Downloader) Statistics() map[string]float64 {
	return d.stats.Snapshot()
}

// ResetStatistics zeroes the download counters.
func (d *Downloader) ResetStatistics() {
	d.stats.Reset()
}

func (d *Downloader) installedCount() int {
	plugins, err := d.InstalledPlugins()
	if err != nil {
		return 0
	}
	return len(plugins)
}

func (d *Downloader) pluginLock(pluginID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[pluginID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[pluginID] = l
	}
	return l
}

func readManifest(dir string) (*InstalledPlugin, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFilename))
	if err != nil {
		return nil, err
	}
	var m InstalledPlugin
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	m.Path = dir
	return &m, nil
}

func shortID() string {
	return uuid.NewString()[:8]
}
