package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fclairamb/gallerystore/internal/apperrors"
	"github.com/fclairamb/gallerystore/internal/assets"
	"github.com/fclairamb/gallerystore/internal/catalog"
)

type countingNotifier struct {
	count atomic.Int32
}

func (n *countingNotifier) Notify() {
	n.count.Add(1)
}

type fixture struct {
	service  *Service
	store    *catalog.Store
	manager  *assets.Manager
	notifier *countingNotifier
	uploads  string
}

func newFixture(t *testing.T, catalogJSON string) *fixture {
	t.Helper()

	root := t.TempDir()
	store := catalog.NewStore(filepath.Join(root, "data"))
	manager := assets.NewManager(filepath.Join(root, "uploads"))

	if catalogJSON != "" {
		doc, err := catalog.ParseDocument([]byte(catalogJSON))
		if err != nil {
			t.Fatalf("invalid test catalog: %v", err)
		}
		if err := store.Save(context.Background(), doc); err != nil {
			t.Fatalf("failed to save catalog: %v", err)
		}
	}

	notifier := &countingNotifier{}
	service := NewService(store, manager)
	service.SetNotifier(notifier)

	return &fixture{
		service:  service,
		store:    store,
		manager:  manager,
		notifier: notifier,
		uploads:  manager.Root(),
	}
}

func (f *fixture) addFile(t *testing.T, dir, name string) {
	t.Helper()

	path := filepath.Join(f.uploads, dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte("img"), 0600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
}

// age backdates the modification time of an upload directory.
func (f *fixture) age(t *testing.T, dir string, d time.Duration) {
	t.Helper()

	when := time.Now().Add(-d)
	if err := os.Chtimes(filepath.Join(f.uploads, dir), when, when); err != nil {
		t.Fatalf("failed to change times: %v", err)
	}
}

func (f *fixture) dirNames(t *testing.T) string {
	t.Helper()

	dirs, err := f.manager.GalleryDirs(context.Background())
	if err != nil {
		t.Fatalf("GalleryDirs failed: %v", err)
	}
	names := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		names = append(names, dir.Name)
	}
	return strings.Join(names, ",")
}

func ids(t *testing.T, entries []json.RawMessage) []string {
	t.Helper()

	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, idKey(peek(entry).ID))
	}
	return out
}

const sampleCatalog = `{
	"galleries":[{"id":"g1","name":"Spring Show"},{"id":2,"name":"Winter"}],
	"artworks":[
		{"id":"a1","galleryId":"g1"},
		{"id":"a2","galleryId":"g1"},
		{"id":"a3","galleryId":2}
	],
	"users":[{"id":"u1"}]
}`

func TestRemoveGallery(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sampleCatalog)
	f.addFile(t, "spring-show", "a.jpg")
	f.addFile(t, "winter", "b.jpg")
	ctx := context.Background()

	result, err := f.service.RemoveGallery(ctx, "g1")
	if err != nil {
		t.Fatalf("RemoveGallery failed: %v", err)
	}
	if !result.CatalogUpdated || !result.AssetsRemoved || result.ArtworksRemoved != 2 {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.GalleryName != "Spring Show" {
		t.Errorf("expected gallery name, got %q", result.GalleryName)
	}

	doc := f.store.Load(ctx).Document
	if got := strings.Join(ids(t, doc.Galleries), ","); got != "2" {
		t.Errorf("expected galleries [2], got %s", got)
	}
	if got := strings.Join(ids(t, doc.Artworks), ","); got != "a3" {
		t.Errorf("expected artworks [a3], got %s", got)
	}
	if len(doc.Users) != 1 {
		t.Errorf("users must be untouched, got %d", len(doc.Users))
	}

	if _, err := os.Stat(filepath.Join(f.uploads, "spring-show")); !os.IsNotExist(err) {
		t.Errorf("expected gallery directory to be removed, stat err: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.uploads, "winter", "b.jpg")); err != nil {
		t.Errorf("other gallery must be untouched: %v", err)
	}
	if f.notifier.count.Load() != 0 {
		t.Error("no divergence expected")
	}
}

func TestRemoveGallery_NumericID(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sampleCatalog)

	result, err := f.service.RemoveGallery(context.Background(), "2")
	if err != nil {
		t.Fatalf("RemoveGallery failed: %v", err)
	}
	if result.ArtworksRemoved != 1 || result.GalleryName != "Winter" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestRemoveGallery_NotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sampleCatalog)

	_, err := f.service.RemoveGallery(context.Background(), "missing")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	_, err = f.service.RemoveGallery(context.Background(), "")
	if !errors.Is(err, apperrors.ErrInvalidRequest) {
		t.Errorf("expected invalid request, got %v", err)
	}
}

func TestRemoveGallery_DegradedCatalogIsNotOverwritten(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	corrupt := []byte("{broken")
	if err := os.MkdirAll(filepath.Dir(f.store.Path()), 0750); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(f.store.Path(), corrupt, 0600); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	_, err := f.service.RemoveGallery(context.Background(), "g1")
	if !errors.Is(err, apperrors.ErrIOFailure) || !errors.Is(err, apperrors.ErrCatalogDegraded) {
		t.Fatalf("expected degraded catalog failure, got %v", err)
	}

	data, err := os.ReadFile(f.store.Path())
	if err != nil {
		t.Fatalf("failed to read catalog: %v", err)
	}
	if string(data) != string(corrupt) {
		t.Errorf("corrupt catalog must be left as is, got %s", data)
	}
}

func TestRemoveGallery_DirectoryFailureIsReported(t *testing.T) {
	t.Parallel()

	// Gallery name that sanitizes to nothing cannot map to a directory
	f := newFixture(t, `{"galleries":[{"id":"g1","name":"!!!"}],"artworks":[],"users":[]}`)

	result, err := f.service.RemoveGallery(context.Background(), "g1")
	if err != nil {
		t.Fatalf("RemoveGallery failed: %v", err)
	}
	if !result.CatalogUpdated || result.AssetsRemoved {
		t.Errorf("expected catalog updated without assets, got %+v", result)
	}
	if f.notifier.count.Load() != 1 {
		t.Errorf("expected one notification, got %d", f.notifier.count.Load())
	}
	if n := len(f.store.Load(context.Background()).Document.Galleries); n != 0 {
		t.Errorf("expected gallery removed from catalog, %d left", n)
	}
}

func TestRemoveGallery_WithoutName(t *testing.T) {
	t.Parallel()

	f := newFixture(t, `{"galleries":[{"id":"g1"}],"artworks":[],"users":[]}`)

	result, err := f.service.RemoveGallery(context.Background(), "g1")
	if err != nil {
		t.Fatalf("RemoveGallery failed: %v", err)
	}
	if !result.CatalogUpdated || result.AssetsRemoved {
		t.Errorf("unexpected result: %+v", result)
	}
	if f.notifier.count.Load() != 1 {
		t.Errorf("expected one notification, got %d", f.notifier.count.Load())
	}
}

func TestRemoveGallery_KeepsSharedDirectory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, `{"galleries":[{"id":"g1","name":"Blue Period"},{"id":"g2","name":"blue-period"}],`+
		`"artworks":[],"users":[]}`)
	f.addFile(t, "blue-period", "a.jpg")

	result, err := f.service.RemoveGallery(context.Background(), "g1")
	if err != nil {
		t.Fatalf("RemoveGallery failed: %v", err)
	}
	if !result.CatalogUpdated || result.AssetsRemoved {
		t.Errorf("unexpected result: %+v", result)
	}
	if _, err := os.Stat(filepath.Join(f.uploads, "blue-period", "a.jpg")); err != nil {
		t.Errorf("directory of the remaining gallery must be kept: %v", err)
	}
	if f.notifier.count.Load() != 0 {
		t.Errorf("expected no notification, got %d", f.notifier.count.Load())
	}
}

func TestReconcile(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sampleCatalog)
	f.addFile(t, "spring-show", "a.jpg")
	f.addFile(t, "old-show", "b.jpg")
	f.addFile(t, "abandoned", "c.jpg")
	f.age(t, "old-show", 2*DefaultMinAge)
	f.age(t, "abandoned", 2*DefaultMinAge)
	ctx := context.Background()

	report, err := f.service.Reconcile(ctx, false)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if got := strings.Join(report.Orphans, ","); got != "abandoned,old-show" {
		t.Errorf("unexpected orphans: %s", got)
	}
	if len(report.Removed) != 0 {
		t.Errorf("dry run must not remove anything, got %v", report.Removed)
	}
	if _, err := os.Stat(filepath.Join(f.uploads, "abandoned")); err != nil {
		t.Errorf("dry run removed a directory: %v", err)
	}

	report, err = f.service.Reconcile(ctx, true)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if got := strings.Join(report.Removed, ","); got != "abandoned,old-show" {
		t.Errorf("unexpected removed: %s", got)
	}

	if got := f.dirNames(t); got != "spring-show" {
		t.Errorf("expected only spring-show left, got %s", got)
	}
}

func TestReconcile_KeepsRecentUploads(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sampleCatalog)
	f.addFile(t, "abandoned", "c.jpg")
	f.age(t, "abandoned", 2*DefaultMinAge)

	// Files of a gallery whose catalog entry is not saved yet
	if _, err := f.manager.SaveFile(context.Background(), "New Show", "a.jpg", strings.NewReader("img")); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}

	report, err := f.service.Reconcile(context.Background(), true)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if got := strings.Join(report.Recent, ","); got != "new-show" {
		t.Errorf("unexpected recent directories: %s", got)
	}
	if got := strings.Join(report.Removed, ","); got != "abandoned" {
		t.Errorf("unexpected removed: %s", got)
	}
	if _, err := os.Stat(filepath.Join(f.uploads, "new-show", "a.jpg")); err != nil {
		t.Errorf("freshly uploaded file must survive pruning: %v", err)
	}
}

func TestReconcile_WithoutMinAge(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sampleCatalog)
	f.addFile(t, "abandoned", "c.jpg")
	service := NewService(f.store, f.manager, WithMinAge(0))

	report, err := service.Reconcile(context.Background(), true)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if got := strings.Join(report.Removed, ","); got != "abandoned" || len(report.Recent) != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestReconcile_SkipsDegradedCatalog(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	f.addFile(t, "spring-show", "a.jpg")
	if err := os.MkdirAll(filepath.Dir(f.store.Path()), 0750); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(f.store.Path(), []byte("nope"), 0600); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	_, err := f.service.Reconcile(context.Background(), true)
	if !errors.Is(err, apperrors.ErrCatalogDegraded) {
		t.Fatalf("expected degraded catalog failure, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.uploads, "spring-show", "a.jpg")); err != nil {
		t.Errorf("nothing must be pruned on a degraded catalog: %v", err)
	}
}

func TestIDKey(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		`"g1"`:  "g1",
		`7`:     "7",
		` "7" `: "7",
		`null`:  "",
		``:      "",
	}
	for raw, want := range tests {
		if got := idKey(json.RawMessage(raw)); got != want {
			t.Errorf("idKey(%q) = %q, want %q", raw, got, want)
		}
	}
}
