// Package config reads and writes an outpack repository's config.json and
// validates the invariants required to serve it over HTTP.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mrc-ide/outpack-go/pkg/hash"
)

var (
	// ErrNotFound is returned when config.json does not exist under root.
	ErrNotFound = errors.New("config not found")

	// ErrInvariant is returned when a config fails the server-mode
	// invariants checked by Check.
	ErrInvariant = errors.New("config invariant violated")

	// ErrCoreChanged is returned when reinitialising a repository would
	// change its persisted core configuration.
	ErrCoreChanged = errors.New("trying to change config on reinitialisation")

	// ErrNoLocalLocation is returned when a config has no location named
	// "local".
	ErrNoLocalLocation = errors.New("no local location configured")
)

// Location names one origin a repository knows packets from.
type Location struct {
	Name     string `json:"name"`
	ID       string `json:"id"`
	Priority int    `json:"priority"`
}

// Core holds the options that must remain stable across the life of a
// repository; Init refuses to change any of these on reinitialisation.
type Core struct {
	HashAlgorithm       hash.Algorithm `json:"hash_algorithm"`
	PathArchive         *string        `json:"path_archive"`
	UseFileStore        bool           `json:"use_file_store"`
	RequireCompleteTree bool           `json:"require_complete_tree"`
}

// Config is the parsed content of a repository's .outpack/config.json.
type Config struct {
	SchemaVersion string     `json:"schema_version"`
	Locations     []Location `json:"location"`
	Core          Core       `json:"core"`
}

// LocalID returns the id of the location named "local".
func (c Config) LocalID() (string, error) {
	for _, l := range c.Locations {
		if l.Name == "local" {
			return l.ID, nil
		}
	}

	return "", ErrNoLocalLocation
}

// Check validates the invariants required to expose a repository over the
// HTTP surface: a plain file store, a complete tree, SHA-256 hashing, and no
// archive path.
func Check(c Config) error {
	if !c.Core.UseFileStore {
		return fmt.Errorf("%w: outpack must be configured to use a file store", ErrInvariant)
	}

	if !c.Core.RequireCompleteTree {
		return fmt.Errorf("%w: outpack must be configured to require a complete tree", ErrInvariant)
	}

	if c.Core.HashAlgorithm != hash.SHA256 {
		return fmt.Errorf("%w: outpack must be configured to use hash algorithm %q, but uses %q",
			ErrInvariant, hash.SHA256, c.Core.HashAlgorithm)
	}

	if c.Core.PathArchive != nil {
		return fmt.Errorf("%w: outpack must be configured to not use an archive, but path_archive is %q",
			ErrInvariant, *c.Core.PathArchive)
	}

	return nil
}

//nolint:gochecknoglobals
var cache sync.Map // map[string]Config, keyed by absolute root path

func configPath(root string) string {
	return filepath.Join(root, ".outpack", "config.json")
}

// Read returns the configuration for the repository at root. Repeated calls
// for the same root are served from a process-wide cache until ClearCache or
// Write invalidates it.
func Read(ctx context.Context, root string) (Config, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Config{}, fmt.Errorf("error resolving %q: %w", root, err)
	}

	if cached, ok := cache.Load(abs); ok {
		return cached.(Config), nil //nolint:forcetypeassert
	}

	path := configPath(abs)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}

		return Config{}, fmt.Errorf("error reading %q: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing %q: %w", path, err)
	}

	cache.Store(abs, cfg)

	zerolog.Ctx(ctx).Debug().Str("root", abs).Msg("config read and cached")

	return cfg, nil
}

// Write serializes cfg to root's config.json, creating the .outpack
// directory if necessary, and invalidates the cache entry for root.
func Write(ctx context.Context, root string, cfg Config) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("error resolving %q: %w", root, err)
	}

	path := configPath(abs)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("error creating %q: %w", filepath.Dir(path), err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshalling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:mnd
		return fmt.Errorf("error writing %q: %w", path, err)
	}

	cache.Delete(abs)

	zerolog.Ctx(ctx).Debug().Str("root", abs).Msg("config written, cache invalidated")

	return nil
}

// ClearCache flushes the entire process-wide config cache. Intended for use
// by tests so they can observe a freshly-read config deterministically.
func ClearCache() {
	cache.Range(func(key, _ any) bool {
		cache.Delete(key)

		return true
	})
}
