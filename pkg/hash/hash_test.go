package hash_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrc-ide/outpack-go/pkg/hash"
)

func TestParseAndFormat(t *testing.T) {
	t.Parallel()

	h, err := hash.Parse("  sha256:03ac674216f3e15c761ee1a5e255f067953623c8b388b4459e13f978d7c846f4  ")
	require.NoError(t, err)
	assert.Equal(t, hash.SHA256, h.Algorithm)
	assert.Equal(t, "sha256:03ac674216f3e15c761ee1a5e255f067953623c8b388b4459e13f978d7c846f4", h.String())
}

func TestParseRejectsInvalidFormat(t *testing.T) {
	t.Parallel()

	_, err := hash.Parse("123456")
	require.ErrorIs(t, err, hash.ErrInvalidFormat)
}

func TestParseRejectsInvalidAlgorithm(t *testing.T) {
	t.Parallel()

	_, err := hash.Parse("crc32:deadbeef")
	require.ErrorIs(t, err, hash.ErrInvalidAlgorithm)
}

func TestBytesKnownVectors(t *testing.T) {
	t.Parallel()

	h, err := hash.Bytes([]byte("1234"), hash.MD5)
	require.NoError(t, err)
	assert.Equal(t, "md5:81dc9bdb52d04dc20036dbd8313ed055", h.String())

	h, err = hash.Bytes([]byte("1234"), hash.SHA256)
	require.NoError(t, err)
	assert.Equal(t, "sha256:03ac674216f3e15c761ee1a5e255f067953623c8b388b4459e13f978d7c846f4", h.String())
}

func TestParseFormatRoundTrip(t *testing.T) {
	t.Parallel()

	for _, alg := range []hash.Algorithm{hash.MD5, hash.SHA1, hash.SHA256, hash.SHA384, hash.SHA512} {
		h, err := hash.Bytes([]byte("the quick brown fox"), alg)
		require.NoError(t, err)

		parsed, err := hash.Parse(h.String())
		require.NoError(t, err)
		assert.True(t, parsed.Equal(h))
	}
}

func TestFileAndValidate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("1234"), 0o600))

	h, err := hash.File(path, hash.SHA256)
	require.NoError(t, err)
	assert.Equal(t, "sha256:03ac674216f3e15c761ee1a5e255f067953623c8b388b4459e13f978d7c846f4", h.String())

	require.NoError(t, hash.ValidateFile(path, h.String()))
	require.ErrorIs(t, hash.ValidateFile(path, "sha256:0000"), hash.ErrHashesDontMatch)

	wrong := "sha256:" + strings.Repeat("0", 64)
	err = hash.ValidateFile(path, wrong)
	require.ErrorIs(t, err, hash.ErrHashesDontMatch)
}

func TestFileMissing(t *testing.T) {
	t.Parallel()

	_, err := hash.File(filepath.Join(t.TempDir(), "missing"), hash.SHA256)
	require.ErrorIs(t, err, hash.ErrFileReadFailed)
}
