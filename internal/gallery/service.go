// Package gallery coordinates the catalog and the upload directories for
// operations that touch both.
package gallery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/fclairamb/gallerystore/internal/apperrors"
	"github.com/fclairamb/gallerystore/internal/assets"
	"github.com/fclairamb/gallerystore/internal/catalog"
)

// Notifier is told when the catalog and the upload directories diverge.
type Notifier interface {
	Notify()
}

// RemoveResult describes what RemoveGallery changed.
type RemoveResult struct {
	GalleryID       string `json:"galleryId"`
	GalleryName     string `json:"galleryName,omitempty"`
	ArtworksRemoved int    `json:"artworksRemoved"`
	CatalogUpdated  bool   `json:"catalogUpdated"`
	AssetsRemoved   bool   `json:"assetsRemoved"`
}

// DefaultMinAge is how long an unknown upload directory is left alone.
// Files are often uploaded before the catalog entry of their gallery is saved.
const DefaultMinAge = 10 * time.Minute

// Report contains the result of a reconciliation pass.
type Report struct {
	Orphans []string `json:"orphans"`
	Recent  []string `json:"recent"` // Unknown directories younger than the minimum age, never pruned
	Removed []string `json:"removed"`
	Failed  []string `json:"failed"`
	Pruned  bool     `json:"pruned"`
}

// Service removes galleries and reconciles upload directories against the catalog.
type Service struct {
	store    *catalog.Store
	manager  *assets.Manager
	logger   *slog.Logger
	notifier Notifier
	minAge   time.Duration
	now      func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithMinAge sets how old an unknown upload directory must be before
// Reconcile reports it as orphaned. Zero disables the grace period.
func WithMinAge(d time.Duration) Option {
	return func(s *Service) {
		s.minAge = d
	}
}

// NewService creates a new gallery service.
func NewService(store *catalog.Store, manager *assets.Manager, opts ...Option) *Service {
	s := &Service{
		store:   store,
		manager: manager,
		logger:  slog.Default(),
		minAge:  DefaultMinAge,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetNotifier registers who to wake up after a partial removal.
// It must be called before the service is used concurrently.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// entryRef holds the few fields the service reads from opaque entries.
type entryRef struct {
	ID        json.RawMessage `json:"id"`
	Name      string          `json:"name"`
	GalleryID json.RawMessage `json:"galleryId"`
}

func peek(raw json.RawMessage) entryRef {
	var ref entryRef
	// Entries are opaque; anything that is not an object simply has no fields
	_ = json.Unmarshal(raw, &ref)
	return ref
}

// idKey turns an id value into a comparable string, so that "7" and 7 match.
func idKey(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		if s, err := strconv.Unquote(string(raw)); err == nil {
			return s
		}
	}
	return string(raw)
}

// RemoveGallery deletes a gallery, its artworks and its upload directory.
// The catalog is saved before the directory is deleted.
func (s *Service) RemoveGallery(ctx context.Context, id string) (RemoveResult, error) {
	result := RemoveResult{GalleryID: id}
	if id == "" {
		return result, apperrors.InvalidRequest(fmt.Errorf("%w: gallery id", apperrors.ErrArgumentRequired))
	}

	loaded := s.store.Load(ctx)
	if loaded.Degraded() {
		return result, apperrors.IOFailure("load catalog",
			fmt.Errorf("%w: %w", apperrors.ErrCatalogDegraded, loaded.Err))
	}
	doc := loaded.Document

	found := false
	galleries := make([]json.RawMessage, 0, len(doc.Galleries))
	for _, entry := range doc.Galleries {
		ref := peek(entry)
		if !found && idKey(ref.ID) == id {
			found = true
			result.GalleryName = ref.Name
			continue
		}
		galleries = append(galleries, entry)
	}
	if !found {
		return result, fmt.Errorf("%w: gallery %s", apperrors.ErrNotFound, id)
	}

	artworks := make([]json.RawMessage, 0, len(doc.Artworks))
	for _, entry := range doc.Artworks {
		if idKey(peek(entry).GalleryID) == id {
			result.ArtworksRemoved++
			continue
		}
		artworks = append(artworks, entry)
	}

	doc.Galleries = galleries
	doc.Artworks = artworks
	if err := s.store.Save(ctx, doc); err != nil {
		return result, err
	}
	result.CatalogUpdated = true

	if result.GalleryName == "" {
		s.logger.WarnContext(ctx, "removed gallery has no name, upload directory left for reconciliation",
			"gallery_id", id)
		s.notify()
		return result, nil
	}

	if dir := assets.SanitizeName(result.GalleryName); sharesDir(galleries, dir) {
		s.logger.WarnContext(ctx, "upload directory still used by another gallery, keeping it",
			"gallery_id", id,
			"gallery_name", result.GalleryName,
			"dir", dir)
		return result, nil
	}

	if err := s.manager.DeleteGalleryDir(ctx, id, result.GalleryName); err != nil {
		s.logger.ErrorContext(ctx, "gallery removed from catalog but upload directory remains",
			"gallery_id", id,
			"gallery_name", result.GalleryName,
			"error", err)
		s.notify()
		return result, nil
	}
	result.AssetsRemoved = true

	s.logger.InfoContext(ctx, "gallery removed",
		"gallery_id", id,
		"gallery_name", result.GalleryName,
		"artworks_removed", result.ArtworksRemoved)
	return result, nil
}

// sharesDir tells whether one of the galleries maps to the upload directory dir.
func sharesDir(galleries []json.RawMessage, dir string) bool {
	if dir == "" {
		return false
	}
	for _, entry := range galleries {
		if assets.SanitizeName(peek(entry).Name) == dir {
			return true
		}
	}
	return false
}

func (s *Service) notify() {
	if s.notifier != nil {
		s.notifier.Notify()
	}
}

// Reconcile lists upload directories that match no catalog gallery and,
// when prune is set, deletes them. Directories modified within the minimum
// age are only reported as recent.
func (s *Service) Reconcile(ctx context.Context, prune bool) (Report, error) {
	report := Report{Orphans: []string{}, Recent: []string{}, Removed: []string{}, Failed: []string{}, Pruned: prune}

	loaded := s.store.Load(ctx)
	if loaded.Degraded() {
		// Every directory would look orphaned against an empty fallback catalog
		return report, apperrors.IOFailure("load catalog",
			fmt.Errorf("%w: %w", apperrors.ErrCatalogDegraded, loaded.Err))
	}

	known := make(map[string]bool, len(loaded.Document.Galleries))
	for _, entry := range loaded.Document.Galleries {
		if name := assets.SanitizeName(peek(entry).Name); name != "" {
			known[name] = true
		}
	}

	dirs, err := s.manager.GalleryDirs(ctx)
	if err != nil {
		return report, err
	}

	cutoff := s.now().Add(-s.minAge)
	for _, dir := range dirs {
		if known[dir.Name] {
			continue
		}
		if s.minAge > 0 && dir.ModTime.After(cutoff) {
			s.logger.DebugContext(ctx, "unknown upload directory too recent, keeping it",
				"dir", dir.Name, "mod_time", dir.ModTime)
			report.Recent = append(report.Recent, dir.Name)
			continue
		}
		report.Orphans = append(report.Orphans, dir.Name)
		s.logger.InfoContext(ctx, "found orphaned upload directory", "dir", dir.Name, "prune", prune)

		if !prune {
			continue
		}
		if err := s.manager.RemoveDirByName(ctx, dir.Name); err != nil {
			s.logger.WarnContext(ctx, "failed to remove orphaned directory", "dir", dir.Name, "error", err)
			report.Failed = append(report.Failed, dir.Name)
			continue
		}
		report.Removed = append(report.Removed, dir.Name)
	}

	s.logger.InfoContext(ctx, "reconcile complete",
		"directories", len(dirs),
		"orphans", len(report.Orphans),
		"recent", len(report.Recent),
		"removed", len(report.Removed),
		"failed", len(report.Failed),
		"prune", prune)
	return report, nil
}
