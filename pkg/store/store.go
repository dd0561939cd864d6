// Package store implements outpack's content-addressed file store: files are
// written once under a path derived purely from their hash, and ingestion is
// atomic and idempotent.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrc-ide/outpack-go/pkg/hash"
)

const (
	dirMode  = 0o755
	fileMode = 0o644

	otelPackageName = "github.com/mrc-ide/outpack-go/pkg/store"
)

//nolint:gochecknoglobals
var tracer trace.Tracer

//nolint:gochecknoinits
func init() {
	tracer = otel.Tracer(otelPackageName)
}

// FilePath returns the canonical on-disk path for hashStr under root:
// root/.outpack/files/<algorithm>/<first two hex chars>/<rest>.
func FilePath(root, hashStr string) (string, error) {
	h, err := hash.Parse(hashStr)
	if err != nil {
		return "", err
	}

	if len(h.Value) < 2 { //nolint:mnd
		return "", fmt.Errorf("%w: hash value too short: %q", hash.ErrInvalidFormat, hashStr)
	}

	return filepath.Join(root, ".outpack", "files", string(h.Algorithm), h.Value[:2], h.Value[2:]), nil
}

// Exists reports whether root's store already has a file for hashStr.
func Exists(root, hashStr string) (bool, error) {
	path, err := FilePath(root, hashStr)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, fmt.Errorf("error stat'ing %q: %w", path, err)
}

// Missing filters wanted down to the hashes not yet present in root's
// store, preserving input order and duplicates.
func Missing(root string, wanted []string) ([]string, error) {
	missing := make([]string, 0, len(wanted))

	for _, h := range wanted {
		ok, err := Exists(root, h)
		if err != nil {
			return nil, err
		}

		if !ok {
			missing = append(missing, h)
		}
	}

	return missing, nil
}

// Put ingests the file at tempSource into root's store under hashStr.
// The source is staged into a fresh temporary file on the same filesystem
// as root (so the final rename is atomic), then its hash is verified
// against hashStr. If the target already exists, the staged copy is
// discarded and Put succeeds without touching the existing file —
// concurrent Put calls for the same hash always succeed, and only one
// rename wins.
func Put(ctx context.Context, root string, tempSource io.Reader, hashStr string) error {
	ctx, span := tracer.Start(
		ctx,
		"store.Put",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("hash", hashStr)),
	)
	defer span.End()

	target, err := FilePath(root, hashStr)
	if err != nil {
		return err
	}

	staged, cleanup, err := stageFile(root, hashStr, tempSource)
	defer cleanup()

	if err != nil {
		return err
	}

	if err := hash.ValidateFile(staged, hashStr); err != nil {
		return err
	}

	if ok, err := Exists(root, hashStr); err != nil {
		return err
	} else if ok {
		zerolog.Ctx(ctx).Debug().Str("hash", hashStr).Msg("file already present, skipping rename")

		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), dirMode); err != nil {
		return fmt.Errorf("error creating %q: %w", filepath.Dir(target), err)
	}

	if err := os.Rename(staged, target); err != nil {
		// A concurrent Put may have won the race between our Exists check
		// and this rename; that is success, not failure.
		if ok, existsErr := Exists(root, hashStr); existsErr == nil && ok {
			return nil
		}

		return fmt.Errorf("error moving staged file to %q: %w", target, err)
	}

	return os.Chmod(target, fileMode)
}

func stageFile(root, hashStr string, source io.Reader) (string, func(), error) {
	tmpDir := filepath.Join(root, ".outpack", "tmp")
	if err := os.MkdirAll(tmpDir, dirMode); err != nil {
		return "", func() {}, fmt.Errorf("error creating %q: %w", tmpDir, err)
	}

	staged := filepath.Join(tmpDir, hashStr+"-"+uuid.NewString()+".tmp")

	f, err := os.OpenFile(staged, os.O_CREATE|os.O_EXCL|os.O_WRONLY, fileMode)
	if err != nil {
		return "", func() {}, fmt.Errorf("error creating staging file %q: %w", staged, err)
	}

	cleanup := func() { os.Remove(staged) }

	if _, err := io.Copy(f, source); err != nil {
		f.Close()

		return "", cleanup, fmt.Errorf("error writing staging file %q: %w", staged, err)
	}

	if err := f.Close(); err != nil {
		return "", cleanup, fmt.Errorf("error closing staging file %q: %w", staged, err)
	}

	return staged, cleanup, nil
}

// Open opens the stored file for hashStr for reading.
// NOTE: the caller must close the returned io.ReadCloser.
func Open(root, hashStr string) (io.ReadCloser, error) {
	path, err := FilePath(root, hashStr)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, hashStr)
		}

		return nil, fmt.Errorf("error opening %q: %w", path, err)
	}

	return f, nil
}

// ErrNotFound is returned when a requested hash has no stored file.
var ErrNotFound = errors.New("hash not found in store")
