// Package repo materialises the on-disk repository layout: the directory
// tree under a root's .outpack, initialised once and reinitialised safely
// as long as its core configuration never changes.
package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrc-ide/outpack-go/pkg/config"
	"github.com/mrc-ide/outpack-go/pkg/hash"
)

const schemaVersion = "0.1.1"

// Options configures a new repository's core settings.
type Options struct {
	PathArchive         *string
	UseFileStore        bool
	RequireCompleteTree bool
}

// Init creates the repository layout at root if it does not already exist.
// If root/.outpack already exists, its persisted core configuration must
// match opts exactly; otherwise Init fails with config.ErrCoreChanged.
func Init(ctx context.Context, root string, opts Options) error {
	outpackDir := filepath.Join(root, ".outpack")

	wanted := config.Config{
		SchemaVersion: schemaVersion,
		Locations: []config.Location{
			{Name: "local", ID: uuid.NewString(), Priority: 0},
		},
		Core: config.Core{
			HashAlgorithm:       hash.SHA256,
			PathArchive:         opts.PathArchive,
			UseFileStore:        opts.UseFileStore,
			RequireCompleteTree: opts.RequireCompleteTree,
		},
	}

	if _, err := os.Stat(outpackDir); err == nil {
		existing, err := config.Read(ctx, root)
		if err != nil {
			return err
		}

		if !coresEqual(existing.Core, wanted.Core) {
			return fmt.Errorf("%w", config.ErrCoreChanged)
		}

		zerolog.Ctx(ctx).Debug().Str("root", root).Msg("repository already initialised, config unchanged")

		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("error stat'ing %q: %w", outpackDir, err)
	}

	if err := config.Write(ctx, root, wanted); err != nil {
		return err
	}

	dirs := []string{
		filepath.Join(outpackDir, "location", wanted.Locations[0].ID),
		filepath.Join(outpackDir, "metadata"),
	}

	if opts.UseFileStore {
		dirs = append(dirs, filepath.Join(outpackDir, "files"))
	}

	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil { //nolint:mnd
			return fmt.Errorf("error creating %q: %w", d, err)
		}
	}

	zerolog.Ctx(ctx).Info().Str("root", root).Msg("repository initialised")

	return nil
}

func coresEqual(a, b config.Core) bool {
	if a.HashAlgorithm != b.HashAlgorithm || a.UseFileStore != b.UseFileStore || a.RequireCompleteTree != b.RequireCompleteTree {
		return false
	}

	switch {
	case a.PathArchive == nil && b.PathArchive == nil:
		return true
	case a.PathArchive == nil || b.PathArchive == nil:
		return false
	default:
		return *a.PathArchive == *b.PathArchive
	}
}
