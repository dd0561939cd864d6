// Package hash implements the algorithm-tagged content hashes used to
// address every file and packet id digest in an outpack repository.
package hash

import (
	"crypto/md5"  //nolint:gosec
	"crypto/sha1" //nolint:gosec
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"regexp"
	"strings"
)

// Algorithm is one of the closed set of digest algorithms an outpack
// repository may be configured to use.
type Algorithm string

// The supported hash algorithms. Display form is always the lowercase name.
const (
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA384 Algorithm = "sha384"
	SHA512 Algorithm = "sha512"
)

var (
	// ErrInvalidFormat is returned when a hash string does not match the
	// `alg:hex` grammar.
	ErrInvalidFormat = errors.New("invalid hash format")

	// ErrInvalidAlgorithm is returned when a hash string names an algorithm
	// outside of the closed set.
	ErrInvalidAlgorithm = errors.New("invalid hash algorithm")

	// ErrHashesDontMatch is returned by Validate when the computed digest
	// does not equal the expected one.
	ErrHashesDontMatch = errors.New("hashes don't match")

	// ErrFileReadFailed wraps I/O errors encountered while hashing a file.
	ErrFileReadFailed = errors.New("failed to read file")

	hashPattern = regexp.MustCompile(`^[[:alnum:]]+:[[:xdigit:]]+$`)
)

// Hash is a parsed, algorithm-tagged content digest.
type Hash struct {
	Algorithm Algorithm
	Value     string
}

// String renders the canonical "algorithm:hex" form.
func (h Hash) String() string { return string(h.Algorithm) + ":" + h.Value }

// Equal reports whether two hashes are byte-for-byte identical.
func (h Hash) Equal(other Hash) bool {
	return h.Algorithm == other.Algorithm && h.Value == other.Value
}

// Parse parses a canonical "algorithm:hex" string, tolerating leading and
// trailing whitespace.
func Parse(s string) (Hash, error) {
	s = strings.TrimSpace(s)

	if !hashPattern.MatchString(s) {
		return Hash{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	idx := strings.IndexByte(s, ':')

	alg := Algorithm(strings.ToLower(s[:idx]))
	if !alg.valid() {
		return Hash{}, fmt.Errorf("%w: %q", ErrInvalidAlgorithm, alg)
	}

	return Hash{Algorithm: alg, Value: strings.ToLower(s[idx+1:])}, nil
}

func (a Algorithm) valid() bool {
	switch a {
	case MD5, SHA1, SHA256, SHA384, SHA512:
		return true
	default:
		return false
	}
}

func (a Algorithm) newHasher() (hash.Hash, error) {
	switch a {
	case MD5:
		return md5.New(), nil //nolint:gosec
	case SHA1:
		return sha1.New(), nil //nolint:gosec
	case SHA256:
		return sha256.New(), nil
	case SHA384:
		return sha512.New384(), nil
	case SHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAlgorithm, a)
	}
}

// Bytes computes the digest of data under alg.
func Bytes(data []byte, alg Algorithm) (Hash, error) {
	h, err := alg.newHasher()
	if err != nil {
		return Hash{}, err
	}

	h.Write(data)

	return Hash{Algorithm: alg, Value: fmt.Sprintf("%x", h.Sum(nil))}, nil
}

// File computes the digest of the file at path under alg, reading the whole
// file through the hasher in a single pass.
func File(path string, alg Algorithm) (Hash, error) {
	h, err := alg.newHasher()
	if err != nil {
		return Hash{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %w", ErrFileReadFailed, err)
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return Hash{}, fmt.Errorf("%w: %w", ErrFileReadFailed, err)
	}

	return Hash{Algorithm: alg, Value: fmt.Sprintf("%x", h.Sum(nil))}, nil
}

// Validate reports whether found matches expected.
func Validate(found, expected Hash) error {
	if !found.Equal(expected) {
		return fmt.Errorf("%w: expected %s, got %s", ErrHashesDontMatch, expected, found)
	}

	return nil
}

// ValidateFile hashes the file at path using the algorithm named by
// expectedStr and compares the result against it.
func ValidateFile(path, expectedStr string) error {
	expected, err := Parse(expectedStr)
	if err != nil {
		return err
	}

	found, err := File(path, expected.Algorithm)
	if err != nil {
		return err
	}

	return Validate(found, expected)
}
