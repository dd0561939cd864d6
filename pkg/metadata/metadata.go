// Package metadata reads and filters the packet metadata bodies under
// .outpack/metadata/{packet_id}, and derives the indexed Packet projection
// used by the query engine.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mrc-ide/outpack-go/pkg/config"
	"github.com/mrc-ide/outpack-go/pkg/hash"
	"github.com/mrc-ide/outpack-go/pkg/location"
)

// ErrNotFound is returned when a requested packet id has no metadata.
var ErrNotFound = errors.New("packet not found")

// ErrInvalidID is returned when a packet id does not match the packet-id
// grammar.
var ErrInvalidID = errors.New("invalid packet id")

//nolint:gochecknoglobals
var idPattern = regexp.MustCompile(`^\d{8}-\d{6}-[0-9a-f]{8}$`)

// ValidID reports whether id matches the packet-id grammar.
func ValidID(id string) bool {
	return idPattern.MatchString(strings.TrimSpace(id))
}

// Packet is the indexed projection of a packet's metadata: the subset of
// fields the query evaluator can look up.
type Packet struct {
	ID         string
	Name       string
	Parameters map[string]any
	Custom     json.RawMessage
}

func metadataPath(root, id string) string {
	return filepath.Join(root, ".outpack", "metadata", id)
}

// GetText returns the raw metadata document for id.
func GetText(root, id string) (string, error) {
	path := metadataPath(root, id)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		return "", fmt.Errorf("error reading %q: %w", path, err)
	}

	return string(data), nil
}

// GetJSON parses the metadata document for id into a Packet projection.
func GetJSON(root, id string) (Packet, error) {
	text, err := GetText(root, id)
	if err != nil {
		return Packet{}, err
	}

	var raw struct {
		ID         string          `json:"id"`
		Name       string          `json:"name"`
		Parameters map[string]any  `json:"parameters"`
		Custom     json.RawMessage `json:"custom"`
	}

	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Packet{}, fmt.Errorf("error parsing metadata for %q: %w", id, err)
	}

	return Packet{ID: raw.ID, Name: raw.Name, Parameters: raw.Parameters, Custom: raw.Custom}, nil
}

// List returns every packet id with metadata present, in filesystem order
// (unsorted); callers that need a deterministic order must sort.
func List(root string) ([]string, error) {
	dir := filepath.Join(root, ".outpack", "metadata")

	dirents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("error reading %q: %w", dir, err)
	}

	ids := make([]string, 0, len(dirents))
	for _, d := range dirents {
		ids = append(ids, d.Name())
	}

	return ids, nil
}

// ListUnpacked returns every packet id present under .outpack/unpacked.
func ListUnpacked(root string) ([]string, error) {
	dir := filepath.Join(root, ".outpack", "unpacked")

	dirents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("error reading %q: %w", dir, err)
	}

	ids := make([]string, 0, len(dirents))
	for _, d := range dirents {
		ids = append(ids, d.Name())
	}

	return ids, nil
}

// FromDate returns every packet, sorted by id ascending. When since is
// non-nil, only packets with a location-time at some known location
// strictly greater than *since are included.
func FromDate(ctx context.Context, root string, since *float64) ([]Packet, error) {
	ids, err := List(root)
	if err != nil {
		return nil, err
	}

	sort.Strings(ids)

	var allowed map[string]bool

	if since != nil {
		allowed, err = idsKnownSince(ctx, root, *since)
		if err != nil {
			return nil, err
		}
	}

	packets := make([]Packet, 0, len(ids))

	for _, id := range ids {
		if allowed != nil && !allowed[id] {
			continue
		}

		p, err := GetJSON(root, id)
		if err != nil {
			return nil, err
		}

		packets = append(packets, p)
	}

	return packets, nil
}

func idsKnownSince(ctx context.Context, root string, since float64) (map[string]bool, error) {
	entries, err := location.ReadAll(ctx, root)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool)

	for _, e := range entries {
		if e.Time > since {
			allowed[e.Packet] = true
		}
	}

	return allowed, nil
}

// MissingIDs validates every id in wanted against the packet-id grammar and
// returns those not present in root. If unpacked is true, presence is
// checked against .outpack/unpacked instead of .outpack/metadata.
func MissingIDs(root string, wanted []string, unpacked bool) ([]string, error) {
	var (
		present []string
		err     error
	)

	if unpacked {
		present, err = ListUnpacked(root)
	} else {
		present, err = List(root)
	}

	if err != nil {
		return nil, err
	}

	have := make(map[string]bool, len(present))
	for _, id := range present {
		have[id] = true
	}

	missing := make([]string, 0, len(wanted))

	for _, id := range wanted {
		trimmed := strings.TrimSpace(id)
		if !ValidID(trimmed) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
		}

		if !have[trimmed] {
			missing = append(missing, trimmed)
		}
	}

	return missing, nil
}

// IDsDigest hashes the concatenation (no separator) of every known packet
// id, sorted ascending, under alg (or the repository's configured
// algorithm when alg is empty).
func IDsDigest(ctx context.Context, root string, alg hash.Algorithm) (string, error) {
	if alg == "" {
		cfg, err := config.Read(ctx, root)
		if err != nil {
			return "", err
		}

		alg = cfg.Core.HashAlgorithm
	}

	ids, err := List(root)
	if err != nil {
		return "", err
	}

	sort.Strings(ids)

	h, err := hash.Bytes([]byte(strings.Join(ids, "")), alg)
	if err != nil {
		return "", err
	}

	zerolog.Ctx(ctx).Debug().Str("algorithm", string(alg)).Int("packets", len(ids)).Msg("computed ids digest")

	return h.String(), nil
}
