package location_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrc-ide/outpack-go/pkg/config"
	"github.com/mrc-ide/outpack-go/pkg/hash"
	"github.com/mrc-ide/outpack-go/pkg/location"
)

func setup(t *testing.T) string {
	t.Helper()
	config.ClearCache()

	root := t.TempDir()
	cfg := config.Config{
		SchemaVersion: "0.1.1",
		Locations: []config.Location{
			{Name: "local", ID: "local-id", Priority: 0},
			{Name: "upstream", ID: "upstream-id", Priority: 1},
		},
		Core: config.Core{HashAlgorithm: hash.SHA256, UseFileStore: true, RequireCompleteTree: true},
	}
	require.NoError(t, config.Write(context.Background(), root, cfg))

	return root
}

func TestMarkKnownAndReadOne(t *testing.T) {
	t.Parallel()

	root := setup(t)
	ctx := context.Background()

	require.NoError(t, location.MarkKnown(ctx, root, "local-id", "20170818-164847-7574883b", "sha256:abc", time.Now()))
	require.NoError(t, location.MarkKnown(ctx, root, "local-id", "20170818-164830-33e0ab01", "sha256:def", time.Now()))

	entries, err := location.ReadOne(root, "local-id")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "20170818-164830-33e0ab01", entries[0].Packet)
	assert.Equal(t, "20170818-164847-7574883b", entries[1].Packet)
}

func TestMarkKnownFirstWriterWins(t *testing.T) {
	t.Parallel()

	root := setup(t)
	ctx := context.Background()

	require.NoError(t, location.MarkKnown(ctx, root, "local-id", "20170818-164847-7574883b", "sha256:abc", time.Now()))
	require.NoError(t, location.MarkKnown(ctx, root, "local-id", "20170818-164847-7574883b", "sha256:different", time.Now()))

	entries, err := location.ReadOne(root, "local-id")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sha256:abc", entries[0].Hash)
}

func TestReadOneMissingLocation(t *testing.T) {
	t.Parallel()

	root := setup(t)

	entries, err := location.ReadOne(root, "nonexistent")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadOneCachesEntries(t *testing.T) {
	t.Parallel()

	root := setup(t)
	ctx := context.Background()

	require.NoError(t, location.MarkKnown(ctx, root, "local-id", "20170818-164847-7574883b", "sha256:abc", time.Now()))

	entries, err := location.ReadOne(root, "local-id")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sha256:abc", entries[0].Hash)

	// Location entries are write-once: overwrite the file behind the
	// cache's back and confirm ReadOne still serves the memoized value
	// rather than re-reading the now-corrupted bytes off disk.
	path := filepath.Join(root, ".outpack", "location", "local-id", "20170818-164847-7574883b")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644)) //nolint:mnd

	entries, err = location.ReadOne(root, "local-id")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sha256:abc", entries[0].Hash)
}

func TestReadAllOrdersByPriorityThenID(t *testing.T) {
	t.Parallel()

	root := setup(t)
	ctx := context.Background()

	require.NoError(t, location.MarkKnown(ctx, root, "upstream-id", "20180818-164043-7cdcde4b", "sha256:1", time.Now()))
	require.NoError(t, location.MarkKnown(ctx, root, "local-id", "20170818-164847-7574883b", "sha256:2", time.Now()))
	require.NoError(t, location.MarkKnown(ctx, root, "local-id", "20170818-164830-33e0ab01", "sha256:3", time.Now()))

	entries, err := location.ReadAll(ctx, root)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "20170818-164830-33e0ab01", entries[0].Packet)
	assert.Equal(t, "20170818-164847-7574883b", entries[1].Packet)
	assert.Equal(t, "20180818-164043-7cdcde4b", entries[2].Packet)
}
