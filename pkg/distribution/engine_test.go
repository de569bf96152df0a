package distribution_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimux-org/aimux/pkg/distribution"
	"github.com/aimux-org/aimux/pkg/downloader"
	"github.com/aimux-org/aimux/pkg/registry"
	"github.com/aimux-org/aimux/pkg/resolver"
	"github.com/aimux-org/aimux/pkg/version"
)

func checksumOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// fakeHub is a plugin host double serving release listings, manifests,
// and payloads from one in-memory catalog keyed by "owner/name@tag".
type fakeHub struct {
	payloads  map[string][]byte
	manifests map[string]*registry.PluginManifest
	downloads atomic.Int64

	server *httptest.Server
}

func newFakeHub(t *testing.T) *fakeHub {
	t.Helper()
	h := &fakeHub{
		payloads:  make(map[string][]byte),
		manifests: make(map[string]*registry.PluginManifest),
	}
	h.server = httptest.NewServer(http.HandlerFunc(h.handle))
	t.Cleanup(h.server.Close)
	return h
}

func (h *fakeHub) addRelease(pluginID, tag string, payload []byte, deps ...registry.ManifestDependency) {
	h.payloads[pluginID+"@"+tag] = payload
	if len(deps) > 0 {
		h.manifests[pluginID+"@"+tag] = &registry.PluginManifest{
			ID:           pluginID,
			Dependencies: deps,
		}
	}
}

func (h *fakeHub) handle(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")

	// /payload/{owner}/{name}/{tag}
	if parts[0] == "payload" && len(parts) == 4 {
		h.downloads.Add(1)
		w.Write(h.payloads[parts[1]+"/"+parts[2]+"@"+parts[3]])
		return
	}

	// /repos/{owner}/{name}/...
	if parts[0] != "repos" || len(parts) < 4 {
		http.NotFound(w, r)
		return
	}
	pluginID := parts[1] + "/" + parts[2]

	switch {
	case parts[3] == "releases":
		var releases []registry.Release
		for key, payload := range h.payloads {
			id, tag, _ := strings.Cut(key, "@")
			if id != pluginID {
				continue
			}
			releases = append(releases, registry.Release{
				TagName: tag,
				Assets: []registry.Asset{{
					Name:        parts[2] + "-" + tag + ".pkg",
					DownloadURL: h.server.URL + "/payload/" + pluginID + "/" + tag,
					Size:        int64(len(payload)),
					ContentType: "application/octet-stream",
					Checksum:    checksumOf(payload),
				}},
			})
		}
		json.NewEncoder(w).Encode(releases)

	case parts[3] == "contents":
		tag := r.URL.Query().Get("ref")
		manifest, ok := h.manifests[pluginID+"@"+tag]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(manifest)

	default:
		http.NotFound(w, r)
	}
}

func newTestEngine(t *testing.T, hub *fakeHub) *distribution.Engine {
	t.Helper()

	clientCfg := registry.DefaultClientConfig()
	clientCfg.BaseURL = hub.server.URL
	client := registry.NewClient(clientCfg, nil)
	reg := registry.New(client, registry.DefaultConfig(), nil)

	res := resolver.New(resolver.NewRegistrySource(reg), resolver.DefaultConfig(), nil)

	root := t.TempDir()
	dlCfg := downloader.DefaultConfig()
	dlCfg.DownloadDir = filepath.Join(root, "download")
	dlCfg.InstallDir = filepath.Join(root, "installation")
	dlCfg.BackupDir = filepath.Join(root, "backup")
	dl, err := downloader.New(dlCfg, nil, nil)
	require.NoError(t, err)

	return distribution.New(reg, res, dl, nil)
}

func TestInstallPluginWithDependencies(t *testing.T) {
	hub := newFakeHub(t)
	hub.addRelease("aimux-org/markdown-normalizer", "v1.2.0", []byte("normalizer payload"))
	hub.addRelease("aimux-org/formatter", "v1.0.0", []byte("formatter payload"),
		registry.ManifestDependency{PluginID: "aimux-org/markdown-normalizer", Constraint: "^1.0.0"})

	e := newTestEngine(t, hub)

	res := <-e.InstallPlugin(context.Background(), "aimux-org/formatter",
		version.MustParseConstraint("^1.0.0"), nil)
	require.NoError(t, res.Err)
	assert.Equal(t, "aimux-org/formatter", res.PluginID)
	assert.Equal(t, "1.0.0", res.Version)

	installed, err := e.InstalledPlugins()
	require.NoError(t, err)
	require.Len(t, installed, 2, "dependency must be installed alongside the plugin")
	assert.Equal(t, "aimux-org/formatter", installed[0].ID)
	assert.Equal(t, "aimux-org/markdown-normalizer", installed[1].ID)
	assert.Equal(t, "1.2.0", installed[1].Version)

	stats := e.DownloadStatistics()
	assert.Equal(t, float64(2), stats["successful_downloads"])
}

func TestPackageForCarriesReleaseMetadata(t *testing.T) {
	hub := newFakeHub(t)
	hub.addRelease("aimux-org/formatter", "v1.0.0", []byte("formatter payload"))
	hub.manifests["aimux-org/formatter@v1.0.0"] = &registry.PluginManifest{
		ID:          "aimux-org/formatter",
		Name:        "Formatter",
		Description: "Formats model responses",
	}

	e := newTestEngine(t, hub)

	pkg, err := e.PackageFor(context.Background(), resolver.Assignment{
		PluginID: "aimux-org/formatter",
		Version:  version.MustParse("1.0.0"),
	})
	require.NoError(t, err)
	assert.True(t, pkg.Valid())
	assert.Equal(t, "Formatter", pkg.Name)
	assert.Equal(t, "Formats model responses", pkg.Description)
	assert.Equal(t, "application/octet-stream", pkg.ContentType)
}

func TestPackageForDefaultsNameWithoutManifest(t *testing.T) {
	hub := newFakeHub(t)
	hub.addRelease("aimux-org/formatter", "v1.0.0", []byte("formatter payload"))

	e := newTestEngine(t, hub)

	pkg, err := e.PackageFor(context.Background(), resolver.Assignment{
		PluginID: "aimux-org/formatter",
		Version:  version.MustParse("1.0.0"),
	})
	require.NoError(t, err)
	assert.Equal(t, "formatter", pkg.Name)
	assert.Empty(t, pkg.Description)
}

func TestInstallPluginReportsConflicts(t *testing.T) {
	hub := newFakeHub(t)
	hub.addRelease("aimux-org/formatter", "v1.0.0", []byte("formatter payload"),
		registry.ManifestDependency{PluginID: "aimux-org/markdown-normalizer", Constraint: ">=9.0.0"})
	hub.addRelease("aimux-org/markdown-normalizer", "v1.2.0", []byte("normalizer payload"))

	e := newTestEngine(t, hub)

	res := e.InstallPluginSync(context.Background(), "aimux-org/formatter",
		version.MustParseConstraint("^1.0.0"), nil)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "conflict")

	installed, err := e.InstalledPlugins()
	require.NoError(t, err)
	assert.Empty(t, installed, "nothing installs when resolution fails")
}

func TestInstallPluginSkipsSatisfiedDependencies(t *testing.T) {
	hub := newFakeHub(t)
	hub.addRelease("aimux-org/markdown-normalizer", "v1.2.0", []byte("normalizer payload"))
	hub.addRelease("aimux-org/formatter", "v1.0.0", []byte("formatter payload"),
		registry.ManifestDependency{PluginID: "aimux-org/markdown-normalizer", Constraint: "^1.0.0"})

	e := newTestEngine(t, hub)
	ctx := context.Background()

	res := e.InstallPluginSync(ctx, "aimux-org/markdown-normalizer",
		version.MustParseConstraint(""), nil)
	require.NoError(t, res.Err)
	hub.downloads.Store(0)

	res = e.InstallPluginSync(ctx, "aimux-org/formatter",
		version.MustParseConstraint("^1.0.0"), nil)
	require.NoError(t, res.Err)

	assert.Equal(t, int64(1), hub.downloads.Load(),
		"already-installed dependency must not be downloaded again")
}

func TestUninstallPlugin(t *testing.T) {
	hub := newFakeHub(t)
	hub.addRelease("aimux-org/formatter", "v1.0.0", []byte("formatter payload"))

	e := newTestEngine(t, hub)
	ctx := context.Background()

	res := e.InstallPluginSync(ctx, "aimux-org/formatter", version.MustParseConstraint(""), nil)
	require.NoError(t, res.Err)

	removed, err := e.UninstallPlugin("aimux-org/formatter")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = e.UninstallPlugin("aimux-org/formatter")
	require.NoError(t, err)
	assert.False(t, removed)
}
