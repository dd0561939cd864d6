package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrc-ide/outpack-go/pkg/config"
	"github.com/mrc-ide/outpack-go/pkg/hash"
)

func validConfig() config.Config {
	return config.Config{
		SchemaVersion: "0.1.1",
		Locations: []config.Location{
			{Name: "local", ID: "local", Priority: 0},
		},
		Core: config.Core{
			HashAlgorithm:       hash.SHA256,
			UseFileStore:        true,
			RequireCompleteTree: true,
		},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()
	config.ClearCache()

	root := t.TempDir()
	cfg := validConfig()

	require.NoError(t, config.Write(context.Background(), root, cfg))

	got, err := config.Read(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestReadIsCached(t *testing.T) {
	t.Parallel()
	config.ClearCache()

	root := t.TempDir()
	cfg := validConfig()
	require.NoError(t, config.Write(context.Background(), root, cfg))

	_, err := config.Read(context.Background(), root)
	require.NoError(t, err)

	// Remove the file on disk; a cached Read must still succeed.
	require.NoError(t, os.Remove(filepath.Join(root, ".outpack", "config.json")))

	got, err := config.Read(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestWriteInvalidatesCache(t *testing.T) {
	t.Parallel()
	config.ClearCache()

	root := t.TempDir()
	cfg := validConfig()
	require.NoError(t, config.Write(context.Background(), root, cfg))

	_, err := config.Read(context.Background(), root)
	require.NoError(t, err)

	cfg.SchemaVersion = "0.2.0"
	require.NoError(t, config.Write(context.Background(), root, cfg))

	got, err := config.Read(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, "0.2.0", got.SchemaVersion)
}

func TestReadMissing(t *testing.T) {
	t.Parallel()
	config.ClearCache()

	_, err := config.Read(context.Background(), t.TempDir())
	require.ErrorIs(t, err, config.ErrNotFound)
}

func TestCheck(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	require.NoError(t, config.Check(cfg))

	bad := cfg
	bad.Core.UseFileStore = false
	require.ErrorIs(t, config.Check(bad), config.ErrInvariant)

	bad = cfg
	bad.Core.RequireCompleteTree = false
	require.ErrorIs(t, config.Check(bad), config.ErrInvariant)

	bad = cfg
	bad.Core.HashAlgorithm = hash.MD5
	require.ErrorIs(t, config.Check(bad), config.ErrInvariant)

	bad = cfg
	archive := "archive"
	bad.Core.PathArchive = &archive
	require.ErrorIs(t, config.Check(bad), config.ErrInvariant)
}

func TestLocalID(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	id, err := cfg.LocalID()
	require.NoError(t, err)
	assert.Equal(t, "local", id)

	cfg.Locations = nil
	_, err = cfg.LocalID()
	require.ErrorIs(t, err, config.ErrNoLocalLocation)
}
