package downloader_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimux-org/aimux/pkg/downloader"
)

func checksumOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func testConfig(t *testing.T) downloader.Config {
	t.Helper()
	root := t.TempDir()
	cfg := downloader.DefaultConfig()
	cfg.DownloadDir = filepath.Join(root, "download")
	cfg.InstallDir = filepath.Join(root, "installation")
	cfg.BackupDir = filepath.Join(root, "backup")
	return cfg
}

func newDownloader(t *testing.T, cfg downloader.Config) *downloader.Downloader {
	t.Helper()
	d, err := downloader.New(cfg, nil, nil)
	require.NoError(t, err)
	return d
}

func servePayload(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	t.Cleanup(server.Close)
	return server
}

func pkgFor(id, version string, data []byte, url string) downloader.PluginPackage {
	return downloader.PluginPackage{
		ID:          id,
		Version:     version,
		DownloadURL: url,
		Checksum:    checksumOf(data),
		Size:        int64(len(data)),
	}
}

func TestInstallFreshPlugin(t *testing.T) {
	payload := []byte("plugin payload v1")
	server := servePayload(t, payload)
	cfg := testConfig(t)
	d := newDownloader(t, cfg)

	res := <-d.Install(context.Background(), pkgFor("aimux-org/formatter", "1.0.0", payload, server.URL), nil)
	require.NoError(t, res.Err)
	assert.True(t, res.Installed())
	assert.Equal(t, int64(len(payload)), res.BytesDownloaded)

	installed, err := d.InstalledPlugins()
	require.NoError(t, err)
	require.Len(t, installed, 1)
	assert.Equal(t, "aimux-org/formatter", installed[0].ID)
	assert.Equal(t, "1.0.0", installed[0].Version)

	got, err := os.ReadFile(filepath.Join(res.Path, installed[0].Payload))
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	entry, ok := d.Lockfile().Get("aimux-org/formatter")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", entry.ResolvedVersion)

	stats := d.Statistics()
	assert.Equal(t, float64(1), stats["total_downloads"])
	assert.Equal(t, float64(1), stats["successful_downloads"])
	assert.Equal(t, float64(len(payload)), stats["total_bytes_downloaded"])
}

func TestInstallChecksumMismatch(t *testing.T) {
	payload := []byte("plugin payload")
	server := servePayload(t, payload)
	cfg := testConfig(t)
	d := newDownloader(t, cfg)

	pkg := pkgFor("aimux-org/formatter", "1.0.0", payload, server.URL)
	pkg.Checksum = strings.Repeat("ab", 32)

	res := <-d.Install(context.Background(), pkg, nil)
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, downloader.ErrChecksumMismatch)

	installed, err := d.InstalledPlugins()
	require.NoError(t, err)
	assert.Empty(t, installed, "nothing may be installed after an integrity failure")

	leftovers, err := os.ReadDir(cfg.DownloadDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers, "staged payload must be discarded")

	stats := d.Statistics()
	assert.Equal(t, float64(1), stats["failed_downloads"])
}

func TestInstallSizeMismatch(t *testing.T) {
	payload := []byte("plugin payload")
	server := servePayload(t, payload)
	d := newDownloader(t, testConfig(t))

	pkg := pkgFor("aimux-org/formatter", "1.0.0", payload, server.URL)
	pkg.Size = int64(len(payload)) + 10

	res := d.InstallSync(context.Background(), pkg, nil)
	assert.ErrorIs(t, res.Err, downloader.ErrSizeMismatch)
}

func TestUpgradeKeepsOldVersionOnFailure(t *testing.T) {
	v1 := []byte("payload version one")
	v2 := []byte("payload version two, longer")
	server := servePayload(t, v1)
	cfg := testConfig(t)
	d := newDownloader(t, cfg)

	res := d.InstallSync(context.Background(), pkgFor("aimux-org/formatter", "1.0.0", v1, server.URL), nil)
	require.NoError(t, res.Err)

	// Upgrade attempt with a corrupt checksum must leave v1 untouched.
	bad := pkgFor("aimux-org/formatter", "2.0.0", v1, server.URL)
	bad.Checksum = checksumOf(v2)
	res = d.InstallSync(context.Background(), bad, nil)
	require.ErrorIs(t, res.Err, downloader.ErrChecksumMismatch)

	installed, err := d.InstalledPlugins()
	require.NoError(t, err)
	require.Len(t, installed, 1)
	assert.Equal(t, "1.0.0", installed[0].Version)

	entry, ok := d.Lockfile().Get("aimux-org/formatter")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", entry.ResolvedVersion)
}

func TestUpgradeAndRollback(t *testing.T) {
	v1 := []byte("payload version one")
	v2 := []byte("payload version two, longer")
	var serving atomic.Pointer[[]byte]
	serving.Store(&v1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(*serving.Load())
	}))
	defer server.Close()

	cfg := testConfig(t)
	d := newDownloader(t, cfg)

	res := d.InstallSync(context.Background(), pkgFor("aimux-org/formatter", "1.0.0", v1, server.URL), nil)
	require.NoError(t, res.Err)

	serving.Store(&v2)
	res = d.InstallSync(context.Background(), pkgFor("aimux-org/formatter", "2.0.0", v2, server.URL), nil)
	require.NoError(t, res.Err)

	installed, err := d.InstalledPlugins()
	require.NoError(t, err)
	require.Len(t, installed, 1)
	assert.Equal(t, "2.0.0", installed[0].Version)

	require.NoError(t, d.Rollback("aimux-org/formatter"))

	installed, err = d.InstalledPlugins()
	require.NoError(t, err)
	require.Len(t, installed, 1)
	assert.Equal(t, "1.0.0", installed[0].Version)

	entry, ok := d.Lockfile().Get("aimux-org/formatter")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", entry.ResolvedVersion)

	assert.ErrorIs(t, d.Rollback("aimux-org/formatter"), downloader.ErrNoBackup,
		"rollback consumes the backup")
}

func TestInstallRetriesTransientFailures(t *testing.T) {
	payload := []byte("eventually available payload")
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(payload)
	}))
	defer server.Close()

	d := newDownloader(t, testConfig(t))
	res := d.InstallSync(context.Background(), pkgFor("aimux-org/flaky", "1.0.0", payload, server.URL), nil)
	require.NoError(t, res.Err)
	assert.Equal(t, int64(3), attempts.Load())
}

func TestInstallRecordsStrategy(t *testing.T) {
	payload := []byte("payload")
	server := servePayload(t, payload)

	cfg := testConfig(t)
	cfg.Strategy = "minimum"
	d := newDownloader(t, cfg)

	res := d.InstallSync(context.Background(), pkgFor("aimux-org/formatter", "1.0.0", payload, server.URL), nil)
	require.NoError(t, res.Err)

	entry, ok := d.Lockfile().Get("aimux-org/formatter")
	require.True(t, ok)
	assert.Equal(t, "minimum", entry.Strategy)

	// Unset strategy falls back to the default.
	d = newDownloader(t, testConfig(t))
	res = d.InstallSync(context.Background(), pkgFor("aimux-org/formatter", "1.0.0", payload, server.URL), nil)
	require.NoError(t, res.Err)

	entry, ok = d.Lockfile().Get("aimux-org/formatter")
	require.True(t, ok)
	assert.Equal(t, "stable", entry.Strategy)
}

func TestInstallDoesNotRetryDefinitiveFailures(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	d := newDownloader(t, testConfig(t))
	res := d.InstallSync(context.Background(), pkgFor("aimux-org/gone", "1.0.0", []byte("x"), server.URL), nil)
	require.Error(t, res.Err)

	var status *downloader.StatusError
	require.ErrorAs(t, res.Err, &status)
	assert.Equal(t, http.StatusNotFound, status.Code)
	assert.Equal(t, int64(1), attempts.Load(), "definitive failures spend no retry budget")
}

func TestInstallOfflineMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Offline = true
	d := newDownloader(t, cfg)

	res := d.InstallSync(context.Background(), downloader.PluginPackage{
		ID:          "aimux-org/formatter",
		Version:     "1.0.0",
		DownloadURL: "http://127.0.0.1:1/unreachable",
		Checksum:    strings.Repeat("ab", 32),
		Size:        1,
	}, nil)
	assert.ErrorIs(t, res.Err, downloader.ErrOfflineMode)
}

func TestInstallRejectsInvalidPackage(t *testing.T) {
	d := newDownloader(t, testConfig(t))

	bad := []downloader.PluginPackage{
		{},
		{ID: "aimux-org/x", Version: "1.0.0", DownloadURL: "http://x", Checksum: "aa"},           // no size
		{ID: "aimux-org/x", Version: "1.0.0", DownloadURL: "http://x", Size: 1},                 // no checksum
		{ID: "no-slash", Version: "1.0.0", DownloadURL: "http://x", Checksum: "aa", Size: 1},    // bad id
		{ID: "aimux-org/x", DownloadURL: "http://x", Checksum: "aa", Size: 1},                   // no version
	}
	for i, pkg := range bad {
		res := d.InstallSync(context.Background(), pkg, nil)
		assert.ErrorIs(t, res.Err, downloader.ErrInvalidPackage, "case %d", i)
	}
}

func TestUninstallIsIdempotent(t *testing.T) {
	payload := []byte("payload")
	server := servePayload(t, payload)
	d := newDownloader(t, testConfig(t))

	res := d.InstallSync(context.Background(), pkgFor("aimux-org/formatter", "1.0.0", payload, server.URL), nil)
	require.NoError(t, res.Err)

	removed, err := d.Uninstall("aimux-org/formatter")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = d.Uninstall("aimux-org/formatter")
	require.NoError(t, err)
	assert.False(t, removed, "second uninstall is a no-op, not an error")

	_, ok := d.Lockfile().Get("aimux-org/formatter")
	assert.False(t, ok)
}

func TestParallelInstalls(t *testing.T) {
	payload := []byte("shared payload for all plugins")
	server := servePayload(t, payload)
	d := newDownloader(t, testConfig(t))

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pkg := pkgFor(fmt.Sprintf("aimux-org/plugin-%d", i), "1.0.0", payload, server.URL)
			errs[i] = d.InstallSync(context.Background(), pkg, nil).Err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "plugin-%d", i)
	}

	installed, err := d.InstalledPlugins()
	require.NoError(t, err)
	assert.Len(t, installed, n)

	stats := d.Statistics()
	assert.Equal(t, float64(n), stats["total_downloads"])
	assert.Equal(t, float64(n), stats["successful_downloads"])
	assert.Equal(t, float64(n*len(payload)), stats["total_bytes_downloaded"])
}

func TestProgressCallback(t *testing.T) {
	payload := make([]byte, 256*1024)
	server := servePayload(t, payload)
	d := newDownloader(t, testConfig(t))

	var calls atomic.Int64
	var last atomic.Int64
	res := d.InstallSync(context.Background(),
		pkgFor("aimux-org/big", "1.0.0", payload, server.URL),
		func(p downloader.DownloadProgress) {
			calls.Add(1)
			last.Store(p.BytesReceived)
		})
	require.NoError(t, res.Err)
	assert.Greater(t, calls.Load(), int64(0))
	assert.Equal(t, int64(len(payload)), last.Load())
}
