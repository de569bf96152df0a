package lockfile_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimux-org/aimux/pkg/lockfile"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	f, err := lockfile.Load(filepath.Join(t.TempDir(), "aimux-lock.json"))
	require.NoError(t, err)
	assert.Empty(t, f.Entries())
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aimux-lock.json")

	f, err := lockfile.Load(path)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	f.Upsert(lockfile.Entry{
		PluginID:        "aimux-org/formatter",
		ResolvedVersion: "1.2.0",
		Checksum:        "deadbeef",
		Strategy:        "stable",
		ResolvedAt:      now,
	})
	f.Upsert(lockfile.Entry{
		PluginID:        "aimux-org/cache",
		ResolvedVersion: "2.0.0",
		ResolvedAt:      now,
	})
	require.NoError(t, f.Save())

	reloaded, err := lockfile.Load(path)
	require.NoError(t, err)
	entries := reloaded.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "aimux-org/cache", entries[0].PluginID, "entries sorted by plugin id")
	assert.Equal(t, "aimux-org/formatter", entries[1].PluginID)
	assert.Equal(t, "deadbeef", entries[1].Checksum)
	assert.True(t, entries[1].ResolvedAt.Equal(now))
}

func TestUpsertReplaces(t *testing.T) {
	f, err := lockfile.Load(filepath.Join(t.TempDir(), "aimux-lock.json"))
	require.NoError(t, err)

	f.Upsert(lockfile.Entry{PluginID: "aimux-org/formatter", ResolvedVersion: "1.0.0"})
	f.Upsert(lockfile.Entry{PluginID: "aimux-org/formatter", ResolvedVersion: "1.2.0"})

	e, ok := f.Get("aimux-org/formatter")
	require.True(t, ok)
	assert.Equal(t, "1.2.0", e.ResolvedVersion)
	assert.Len(t, f.Entries(), 1)
}

func TestRemove(t *testing.T) {
	f, err := lockfile.Load(filepath.Join(t.TempDir(), "aimux-lock.json"))
	require.NoError(t, err)

	f.Upsert(lockfile.Entry{PluginID: "aimux-org/formatter", ResolvedVersion: "1.0.0"})
	assert.True(t, f.Remove("aimux-org/formatter"))
	assert.False(t, f.Remove("aimux-org/formatter"))
	_, ok := f.Get("aimux-org/formatter")
	assert.False(t, ok)
}

func TestVersionsMap(t *testing.T) {
	f, err := lockfile.Load(filepath.Join(t.TempDir(), "aimux-lock.json"))
	require.NoError(t, err)

	f.Upsert(lockfile.Entry{PluginID: "aimux-org/a", ResolvedVersion: "1.0.0"})
	f.Upsert(lockfile.Entry{PluginID: "aimux-org/b", ResolvedVersion: "2.1.0"})

	assert.Equal(t, map[string]string{
		"aimux-org/a": "1.0.0",
		"aimux-org/b": "2.1.0",
	}, f.Versions())
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aimux-lock.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := lockfile.Load(path)
	assert.Error(t, err)
}

func TestSaveCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "aimux-lock.json")
	f, err := lockfile.Load(path)
	require.NoError(t, err)

	f.Upsert(lockfile.Entry{PluginID: "aimux-org/a", ResolvedVersion: "1.0.0"})
	require.NoError(t, f.Save())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
