// Package lockfile persists resolved plugin versions so later runs can
// reproduce an installation without re-resolving.
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Entry records one resolved plugin.
type Entry struct {
	PluginID        string    `json:"plugin_id"`
	ResolvedVersion string    `json:"resolved_version"`
	Checksum        string    `json:"checksum_sha256,omitempty"`
	Strategy        string    `json:"strategy,omitempty"`
	ResolvedAt      time.Time `json:"resolved_at"`
}

// File is a lockfile bound to one path. All operations are safe for
// concurrent use.
type File struct {
	path string

	mu      sync.RWMutex
	entries map[string]Entry
}

// Load reads the lockfile at path. A missing file yields an empty
// lockfile, not an error.
func Load(path string) (*File, error) {
	f := &File{
		path:    path,
		entries: make(map[string]Entry),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lockfile %s: %w", path, err)
	}

	var doc struct {
		Version int     `json:"version"`
		Plugins []Entry `json:"plugins"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse lockfile %s: %w", path, err)
	}
	for _, e := range doc.Plugins {
		f.entries[e.PluginID] = e
	}
	return f, nil
}

// Save writes the lockfile atomically, via a temporary file renamed into
// place.
func (f *File) Save() error {
	f.mu.RLock()
	doc := struct {
		Version int     `json:"version"`
		Plugins []Entry `json:"plugins"`
	}{
		Version: 1,
		Plugins: make([]Entry, 0, len(f.entries)),
	}
	for _, e := range f.entries {
		doc.Plugins = append(doc.Plugins, e)
	}
	f.mu.RUnlock()

	sort.Slice(doc.Plugins, func(i, j int) bool {
		return doc.Plugins[i].PluginID < doc.Plugins[j].PluginID
	})

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode lockfile: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create lockfile directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".aimux-lock-*")
	if err != nil {
		return fmt.Errorf("failed to create lockfile temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write lockfile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close lockfile temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace lockfile: %w", err)
	}
	return nil
}

// Upsert records or replaces the entry for a plugin.
func (f *File) Upsert(e Entry) {
	f.mu.Lock()
	f.entries[e.PluginID] = e
	f.mu.Unlock()
}

// Remove drops the entry for a plugin. Reports whether it existed.
func (f *File) Remove(pluginID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[pluginID]
	delete(f.entries, pluginID)
	return ok
}

// Get returns the entry for a plugin, if present.
func (f *File) Get(pluginID string) (Entry, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.entries[pluginID]
	return e, ok
}

// Entries returns all entries sorted by plugin identity.
func (f *File) Entries() []Entry {
	f.mu.RLock()
	out := make([]Entry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	f.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].PluginID < out[j].PluginID
	})
	return out
}

// Versions returns a plugin-to-version map of every entry, the shape the
// resolver takes as its installed set.
func (f *File) Versions() map[string]string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]string, len(f.entries))
	for id, e := range f.entries {
		out[id] = e.ResolvedVersion
	}
	return out
}

// Path returns the lockfile's location on disk.
func (f *File) Path() string {
	return f.path
}
