package instance

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hostlink/hostlink/internal/domain"
)

// RegistryFileName is the well-known file in the OS temp directory where
// concurrent hostlink processes publish their presence.
const RegistryFileName = ".hostlink_instances.json"

// DefaultRegistryPath returns the shared cross-process registry location.
func DefaultRegistryPath() string {
	return filepath.Join(os.TempDir(), RegistryFileName)
}

// Registry is the file-backed map of live instances, keyed by instance id.
// The file is advisory: discovery is the source of truth for liveness, the
// registry only speeds it up and records token hashes.  All writes go
// through a temp-file rename so readers never observe a torn file.
type Registry struct {
	path string
	log  *slog.Logger
}

// NewRegistry opens a registry at path, falling back to the default
// location when path is empty.
func NewRegistry(path string, logger *slog.Logger) *Registry {
	if path == "" {
		path = DefaultRegistryPath()
	}
	return &Registry{path: path, log: logger}
}

// Path returns the registry file location.
func (r *Registry) Path() string {
	return r.path
}

// Load reads all registered entries.  A missing or corrupt file is treated
// as an empty registry; registration must never fail startup.
func (r *Registry) Load() map[string]domain.RegistryEntry {
	b, err := os.ReadFile(r.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.log.Warn("instance registry unreadable, treating as empty", "path", r.path, "err", err)
		}
		return map[string]domain.RegistryEntry{}
	}
	entries := map[string]domain.RegistryEntry{}
	if err := json.Unmarshal(b, &entries); err != nil {
		r.log.Warn("instance registry corrupt, treating as empty", "path", r.path, "err", err)
		return map[string]domain.RegistryEntry{}
	}
	return entries
}

// Upsert adds or replaces one instance's entry.
func (r *Registry) Upsert(e domain.RegistryEntry) error {
	entries := r.Load()
	entries[e.InstanceID] = e
	return r.save(entries)
}

// Remove deletes one instance's entry.  Removing an absent entry is a
// no-op.
func (r *Registry) Remove(instanceID string) error {
	entries := r.Load()
	if _, ok := entries[instanceID]; !ok {
		return nil
	}
	delete(entries, instanceID)
	return r.save(entries)
}

// Prune rewrites the registry keeping only entries the predicate accepts,
// and returns how many were dropped.
func (r *Registry) Prune(keep func(domain.RegistryEntry) bool) (int, error) {
	entries := r.Load()
	dropped := 0
	for id, e := range entries {
		if !keep(e) {
			delete(entries, id)
			dropped++
		}
	}
	if dropped == 0 {
		return 0, nil
	}
	return dropped, r.save(entries)
}

func (r *Registry) save(entries map[string]domain.RegistryEntry) error {
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(r.path), RegistryFileName+".*")
	if err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}
