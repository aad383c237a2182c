// Package catalog persists the gallery catalog as a single JSON document.
//
// Reads never fail: a missing or unreadable catalog is served as an empty
// document, and LoadResult tells the caller which case happened. Writes
// replace the whole document atomically and always report failures.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fclairamb/gallerystore/internal/apperrors"
)

const (
	// FileName is the catalog file inside the data directory.
	FileName = "data.json"

	// File and directory permissions.
	dirPerm  = 0750 // Directory permissions: rwxr-x---
	filePerm = 0600 // File permissions: rw-------
)

// Source tells where a loaded document came from.
type Source string

const (
	// SourceFile means the document was read from disk.
	SourceFile Source = "file"
	// SourceDefault means no catalog file exists yet.
	SourceDefault Source = "default"
	// SourceDegraded means the catalog could not be read and the default was served instead.
	SourceDegraded Source = "degraded"
)

// LoadResult is the outcome of Load.
type LoadResult struct {
	Document Document
	Source   Source
	Err      error // Reason for a degraded load
}

// Degraded returns true if the document is a fallback for an unreadable catalog.
func (r LoadResult) Degraded() bool {
	return r.Source == SourceDegraded
}

// Recorder is notified after every successful save.
type Recorder interface {
	Record(ctx context.Context, path, message string) error
}

// Store reads and replaces the catalog file under a data directory.
type Store struct {
	dir      string
	path     string
	logger   *slog.Logger
	recorder Recorder
	mu       sync.Mutex // serializes saves
}

// Option configures Store.
type Option func(*Store)

// WithLogger sets a custom logger for the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithRecorder sets a recorder called after each save.
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		s.recorder = r
	}
}

// NewStore creates a store for <dataDir>/data.json. Nothing is touched on disk.
func NewStore(dataDir string, opts ...Option) *Store {
	s := &Store{
		dir:    dataDir,
		path:   filepath.Join(dataDir, FileName),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the catalog file path.
func (s *Store) Path() string {
	return s.path
}

// Dir returns the data directory.
func (s *Store) Dir() string {
	return s.dir
}

// Load reads the catalog. It creates the data directory if needed but
// never the catalog file itself.
func (s *Store) Load(ctx context.Context) LoadResult {
	s.logger.DebugContext(ctx, "loading catalog", "path", s.path)

	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return s.degraded(ctx, apperrors.IOFailure("create data dir", err))
	}

	data, err := os.ReadFile(s.path) //nolint:gosec // path is application controlled
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.DebugContext(ctx, "catalog file does not exist, serving default", "path", s.path)
			return LoadResult{Document: DefaultDocument(), Source: SourceDefault}
		}
		return s.degraded(ctx, apperrors.IOFailure("read catalog", err))
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return s.degraded(ctx, apperrors.IOFailure("parse catalog", err))
	}

	s.logger.DebugContext(ctx, "catalog loaded",
		"galleries", len(doc.Galleries),
		"artworks", len(doc.Artworks),
		"users", len(doc.Users))
	return LoadResult{Document: doc, Source: SourceFile}
}

func (s *Store) degraded(ctx context.Context, err error) LoadResult {
	s.logger.WarnContext(ctx, "catalog unreadable, serving default document", "path", s.path, "error", err)
	return LoadResult{Document: DefaultDocument(), Source: SourceDegraded, Err: err}
}

// Save replaces the catalog with doc. Readers see either the previous or
// the new document, never a partial one.
func (s *Store) Save(ctx context.Context, doc Document) error {
	data, err := json.MarshalIndent(doc.Normalized(), "", "  ")
	if err != nil {
		return apperrors.IOFailure("encode catalog", err)
	}

	if err := s.write(ctx, data); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "catalog saved",
		"galleries", len(doc.Galleries),
		"artworks", len(doc.Artworks),
		"users", len(doc.Users))

	if s.recorder != nil {
		message := fmt.Sprintf("catalog: %d galleries, %d artworks, %d users",
			len(doc.Galleries), len(doc.Artworks), len(doc.Users))
		// The catalog is already durable; history is best effort and runs
		// outside the save lock since it may push to a remote
		if err := s.recorder.Record(ctx, s.path, message); err != nil {
			s.logger.WarnContext(ctx, "record catalog history failed", "error", err)
		}
	}

	return nil
}

// write replaces the catalog file while holding the save lock.
func (s *Store) write(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.DebugContext(ctx, "saving catalog", "path", s.path, "size", len(data))

	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return apperrors.IOFailure("create data dir", err)
	}

	if err := writeFileAtomic(s.dir, s.path, data); err != nil {
		s.logger.ErrorContext(ctx, "save catalog failed", "path", s.path, "error", err)
		return apperrors.IOFailure("write catalog", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in dir and renames it onto path.
func writeFileAtomic(dir, path string, data []byte) error {
	tmpFile, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, err = tmpFile.Write(data)
	if err == nil {
		err = tmpFile.Sync()
	}
	if closeErr := tmpFile.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpPath, filePerm)
	}
	if err == nil {
		err = os.Rename(tmpPath, path)
	}
	if err != nil {
		return errors.Join(err, removeIfExists(tmpPath))
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
