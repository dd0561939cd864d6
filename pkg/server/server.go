package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrc-ide/outpack-go/pkg/config"
	"github.com/mrc-ide/outpack-go/pkg/hash"
	"github.com/mrc-ide/outpack-go/pkg/location"
	"github.com/mrc-ide/outpack-go/pkg/metadata"
	"github.com/mrc-ide/outpack-go/pkg/query"
	"github.com/mrc-ide/outpack-go/pkg/store"
)

const (
	contentType     = "Content-Type"
	contentTypeJSON = "application/json"
	contentTypeText = "text/plain; charset=utf-8"
)

// Server is the HTTP surface over a single repository root.
type Server struct {
	root   string
	logger zerolog.Logger
	router *chi.Mux
}

// New constructs a Server for root. New refuses to build a router unless
// the repository's persisted configuration satisfies config.Check.
func New(ctx context.Context, logger zerolog.Logger, root string) (Server, error) {
	cfg, err := config.Read(ctx, root)
	if err != nil {
		return Server{}, err
	}

	if err := config.Check(cfg); err != nil {
		return Server{}, err
	}

	s := Server{root: root, logger: logger}
	s.router = createRouter(s)

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func createRouter(s Server) *chi.Mux {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(s.logger))
	router.Use(middleware.Recoverer)

	router.Get("/", s.getRoot)
	router.Get("/metadata/list", s.getMetadataList)
	router.Get("/packit/metadata", s.getPacketsKnownSince)
	router.Get("/metadata/{id}/json", s.getMetadataJSON)
	router.Get("/metadata/{id}/text", s.getMetadataText)
	router.Get("/file/{hash}", s.getFile)
	router.Get("/checksum", s.getChecksum)
	router.Post("/packets/missing", s.postPacketsMissing)
	router.Post("/files/missing", s.postFilesMissing)
	router.Post("/file/{hash}", s.postFile)
	router.Post("/packet/{hash}", s.postPacket)

	return router
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startedAt := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("elapsed", time.Since(startedAt)).
					Str("reqID", middleware.GetReqID(r.Context())).
					Msg("request handled")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// envelope is the JSON response wrapper every endpoint replies with.
type envelope struct {
	Status string     `json:"status"`
	Data   any        `json:"data"`
	Errors []apiError `json:"errors"`
}

type apiError struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, logger zerolog.Logger, status int, data any) {
	w.Header().Set(contentType, contentTypeJSON)
	w.WriteHeader(status)

	env := envelope{Status: "success", Data: data, Errors: []apiError{}}

	if err := json.NewEncoder(w).Encode(env); err != nil {
		logger.Error().Err(err).Msg("error writing the response body")
	}
}

func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status, kind := classify(err)

	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Msg("internal error serving request")
	}

	w.Header().Set(contentType, contentTypeJSON)
	w.WriteHeader(status)

	env := envelope{
		Status: "failure",
		Data:   nil,
		Errors: []apiError{{Error: kind, Detail: err.Error()}},
	}

	if encErr := json.NewEncoder(w).Encode(env); encErr != nil {
		logger.Error().Err(encErr).Msg("error writing the error body")
	}
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, metadata.ErrNotFound), errors.Is(err, store.ErrNotFound),
		errors.Is(err, config.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, hash.ErrInvalidFormat), errors.Is(err, hash.ErrHashesDontMatch),
		errors.Is(err, hash.ErrInvalidAlgorithm), errors.Is(err, query.ErrSyntax),
		errors.Is(err, config.ErrInvariant), errors.Is(err, metadata.ErrInvalidID):
		return http.StatusBadRequest, "INVALID_INPUT"
	default:
		return http.StatusInternalServerError, "SERVER_ERROR"
	}
}

func (s Server) getRoot(w http.ResponseWriter, r *http.Request) {
	cfg, err := config.Read(r.Context(), s.root)
	if err != nil {
		writeError(w, s.logger, err)

		return
	}

	writeJSON(w, s.logger, http.StatusOK, struct {
		SchemaVersion string `json:"schema_version"`
	}{SchemaVersion: cfg.SchemaVersion})
}

func (s Server) getMetadataList(w http.ResponseWriter, r *http.Request) {
	entries, err := location.ReadAll(r.Context(), s.root)
	if err != nil {
		writeError(w, s.logger, err)

		return
	}

	writeJSON(w, s.logger, http.StatusOK, entries)
}

func (s Server) getPacketsKnownSince(w http.ResponseWriter, r *http.Request) {
	var since *float64

	if raw := r.URL.Query().Get("known_since"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, s.logger, fmt.Errorf("%w: invalid known_since %q", hash.ErrInvalidFormat, raw))

			return
		}

		since = &v
	}

	packets, err := metadata.FromDate(r.Context(), s.root, since)
	if err != nil {
		writeError(w, s.logger, err)

		return
	}

	writeJSON(w, s.logger, http.StatusOK, packets)
}

func (s Server) getMetadataJSON(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	pkt, err := metadata.GetJSON(s.root, id)
	if err != nil {
		writeError(w, s.logger, err)

		return
	}

	writeJSON(w, s.logger, http.StatusOK, pkt)
}

func (s Server) getMetadataText(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	text, err := metadata.GetText(s.root, id)
	if err != nil {
		writeError(w, s.logger, err)

		return
	}

	w.Header().Set(contentType, contentTypeText)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte(text)); err != nil {
		s.logger.Error().Err(err).Msg("error writing metadata text")
	}
}

func (s Server) getFile(w http.ResponseWriter, r *http.Request) {
	hashStr := chi.URLParam(r, "hash")

	f, err := store.Open(s.root, hashStr)
	if err != nil {
		writeError(w, s.logger, err)

		return
	}
	defer f.Close()

	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, f); err != nil {
		s.logger.Error().Err(err).Str("hash", hashStr).Msg("error streaming file")
	}
}

func (s Server) getChecksum(w http.ResponseWriter, r *http.Request) {
	alg := hash.Algorithm(r.URL.Query().Get("alg"))

	digest, err := metadata.IDsDigest(r.Context(), s.root, alg)
	if err != nil {
		writeError(w, s.logger, err)

		return
	}

	writeJSON(w, s.logger, http.StatusOK, digest)
}

func (s Server) postPacketsMissing(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs      []string `json:"ids"`
		Unpacked bool     `json:"unpacked"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, s.logger, fmt.Errorf("%w: %w", hash.ErrInvalidFormat, err))

		return
	}

	missing, err := metadata.MissingIDs(s.root, body.IDs, body.Unpacked)
	if err != nil {
		writeError(w, s.logger, err)

		return
	}

	writeJSON(w, s.logger, http.StatusOK, missing)
}

func (s Server) postFilesMissing(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Hashes []string `json:"hashes"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, s.logger, fmt.Errorf("%w: %w", hash.ErrInvalidFormat, err))

		return
	}

	missing, err := store.Missing(s.root, body.Hashes)
	if err != nil {
		writeError(w, s.logger, err)

		return
	}

	writeJSON(w, s.logger, http.StatusOK, missing)
}

func (s Server) postFile(w http.ResponseWriter, r *http.Request) {
	hashStr := chi.URLParam(r, "hash")

	if err := store.Put(r.Context(), s.root, r.Body, hashStr); err != nil {
		writeError(w, s.logger, err)

		return
	}

	writeJSON(w, s.logger, http.StatusOK, nil)
}

func (s Server) postPacket(w http.ResponseWriter, r *http.Request) {
	hashStr := chi.URLParam(r, "hash")

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, s.logger, fmt.Errorf("%w: %w", hash.ErrInvalidFormat, err))

		return
	}

	expected, err := hash.Parse(hashStr)
	if err != nil {
		writeError(w, s.logger, err)

		return
	}

	found, err := hash.Bytes(data, expected.Algorithm)
	if err != nil {
		writeError(w, s.logger, err)

		return
	}

	if err := hash.Validate(found, expected); err != nil {
		writeError(w, s.logger, err)

		return
	}

	var body struct {
		ID string `json:"id"`
	}

	if err := json.Unmarshal(data, &body); err != nil {
		writeError(w, s.logger, fmt.Errorf("%w: %w", hash.ErrInvalidFormat, err))

		return
	}

	if !metadata.ValidID(body.ID) {
		writeError(w, s.logger, fmt.Errorf("%w: %q", metadata.ErrInvalidID, body.ID))

		return
	}

	if err := writeMetadataOnce(s.root, body.ID, data); err != nil {
		writeError(w, s.logger, err)

		return
	}

	writeJSON(w, s.logger, http.StatusOK, nil)
}

// writeMetadataOnce persists a packet's metadata body the first time it is
// submitted. The on-disk store is append-only for metadata: an existing
// file for the same packet id is left untouched rather than overwritten.
func writeMetadataOnce(root, id string, data []byte) error {
	dir := filepath.Join(root, ".outpack", "metadata")
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("error creating %q: %w", dir, err)
	}

	path := filepath.Join(dir, id)

	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("error stat'ing %q: %w", path, err)
	}

	tmp := path + "." + uuid.NewString() + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:mnd
		return fmt.Errorf("error writing %q: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)

		if _, statErr := os.Stat(path); statErr == nil {
			return nil
		}

		return fmt.Errorf("error renaming %q to %q: %w", tmp, path, err)
	}

	return nil
}
