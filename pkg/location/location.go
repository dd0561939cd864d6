// Package location reads and writes the per-location packet manifests under
// .outpack/location/<location id>/<packet id>, the record of which packets
// this repository knows about and from where.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrc-ide/outpack-go/pkg/config"
)

const otelPackageName = "github.com/mrc-ide/outpack-go/pkg/location"

//nolint:gochecknoglobals
var tracer trace.Tracer

//nolint:gochecknoinits
func init() {
	tracer = otel.Tracer(otelPackageName)
}

// ErrMalformed is returned when a location manifest entry cannot be parsed.
var ErrMalformed = errors.New("malformed location entry")

// Entry records that a packet was known to a location at a point in time,
// together with the hash of its metadata as published by that location.
type Entry struct {
	Packet        string  `json:"packet"`
	Time          float64 `json:"time"`
	Hash          string  `json:"hash"`
	SchemaVersion string  `json:"schema_version"`
}

func locationDir(root, locationID string) string {
	return filepath.Join(root, ".outpack", "location", locationID)
}

func isPacketID(name string) bool {
	return len(name) == 19 && name[8] == '-' && name[15] == '-'
}

// ReadOne reads every entry recorded for a single location, ordered by
// packet id ascending.
func ReadOne(root, locationID string) ([]Entry, error) {
	dir := locationDir(root, locationID)

	dirents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("error reading %q: %w", dir, err)
	}

	entries := make([]Entry, 0, len(dirents))

	for _, d := range dirents {
		if !isPacketID(d.Name()) {
			continue
		}

		entry, err := readEntry(filepath.Join(dir, d.Name()))
		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Packet < entries[j].Packet })

	return entries, nil
}

//nolint:gochecknoglobals
var entryCache sync.Map // map[string]Entry, keyed by absolute entry-file path

// readEntry reads and parses a single location-entry file, memoizing by
// absolute path. Location entries are write-once: once a (location, packet)
// manifest file exists its content never changes, so the cache needs no
// invalidation counterpart to config.Write's.
func readEntry(path string) (Entry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Entry{}, fmt.Errorf("error resolving %q: %w", path, err)
	}

	if cached, ok := entryCache.Load(abs); ok {
		return cached.(Entry), nil //nolint:forcetypeassert
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return Entry{}, fmt.Errorf("error reading %q: %w", abs, err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("%w: %s: %w", ErrMalformed, abs, err)
	}

	entryCache.Store(abs, e)

	return e, nil
}

// ReadAll reads every location's manifest, walked in the order locations are
// configured by priority (ascending), and returns the concatenation. Within
// a location, entries are ordered by packet id ascending.
func ReadAll(ctx context.Context, root string) ([]Entry, error) {
	cfg, err := config.Read(ctx, root)
	if err != nil {
		return nil, err
	}

	locs := append([]config.Location(nil), cfg.Locations...)
	sort.Slice(locs, func(i, j int) bool { return locs[i].Priority < locs[j].Priority })

	var all []Entry

	for _, l := range locs {
		entries, err := ReadOne(root, l.ID)
		if err != nil {
			return nil, err
		}

		all = append(all, entries...)
	}

	return all, nil
}

// MarkKnown records that packetID, with the given metadata hash, is known to
// locationID. Writing is first-writer-wins: if an entry already exists for
// this (location, packet) pair, MarkKnown leaves it untouched.
func MarkKnown(ctx context.Context, root, locationID, packetID, hashValue string, at time.Time) error {
	ctx, span := tracer.Start(
		ctx,
		"location.MarkKnown",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("packet", packetID), attribute.String("location", locationID)),
	)
	defer span.End()

	dir := locationDir(root, locationID)
	path := filepath.Join(dir, packetID)

	if _, err := os.Stat(path); err == nil {
		zerolog.Ctx(ctx).Debug().Str("packet", packetID).Str("location", locationID).
			Msg("packet already known to location, leaving entry untouched")

		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("error stat'ing %q: %w", path, err)
	}

	cfg, err := config.Read(ctx, root)
	if err != nil {
		return err
	}

	entry := Entry{
		Packet:        packetID,
		Time:          float64(at.UnixNano()) / float64(time.Second),
		Hash:          hashValue,
		SchemaVersion: cfg.SchemaVersion,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("error marshalling location entry: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("error creating %q: %w", dir, err)
	}

	tmp := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:mnd
		return fmt.Errorf("error writing %q: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("error moving %q to %q: %w", tmp, path, err)
	}

	zerolog.Ctx(ctx).Debug().Str("packet", packetID).Str("location", locationID).Msg("packet marked known")

	return nil
}
