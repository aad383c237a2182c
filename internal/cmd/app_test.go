package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fclairamb/gallerystore/internal/apperrors"
	"github.com/fclairamb/gallerystore/internal/catalog"
)

// runApp runs the CLI against temporary directories. Commands share the
// package level configuration, so these tests do not run in parallel.
func runApp(t *testing.T, dataDir, uploadsDir string, args ...string) error {
	t.Helper()

	full := append([]string{"gallerystore", "--data-dir", dataDir, "--uploads-dir", uploadsDir}, args...)
	return NewApp().Run(context.Background(), full)
}

func TestApp_ImportRemoveReconcile(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	uploadsDir := filepath.Join(root, "uploads")

	doc := filepath.Join(root, "catalog.json")
	content := `{"galleries":[{"id":"g1","name":"Spring"},{"id":"g2","name":"Autumn"}],` +
		`"artworks":[{"id":"a1","galleryId":"g1"}],"users":[]}`
	if err := os.WriteFile(doc, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}
	for _, dir := range []string{"spring", "autumn", "leftover"} {
		if err := os.MkdirAll(filepath.Join(uploadsDir, dir), 0750); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
	}

	if err := runApp(t, dataDir, uploadsDir, "catalog", "import", doc); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	if err := runApp(t, dataDir, uploadsDir, "remove-gallery", "g1"); err != nil {
		t.Fatalf("remove-gallery failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(uploadsDir, "spring")); !os.IsNotExist(err) {
		t.Errorf("expected spring directory removed, stat err: %v", err)
	}

	result := catalog.NewStore(dataDir).Load(context.Background())
	if len(result.Document.Galleries) != 1 || len(result.Document.Artworks) != 0 {
		t.Errorf("unexpected catalog after removal: %+v", result.Document)
	}

	if err := runApp(t, dataDir, uploadsDir, "reconcile", "--prune", "--min-age", "0s"); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(uploadsDir, "leftover")); !os.IsNotExist(err) {
		t.Errorf("expected leftover directory pruned, stat err: %v", err)
	}
	if _, err := os.Stat(filepath.Join(uploadsDir, "autumn")); err != nil {
		t.Errorf("autumn directory must be kept: %v", err)
	}

	if err := runApp(t, dataDir, uploadsDir, "stats"); err != nil {
		t.Errorf("stats failed: %v", err)
	}
}

func TestApp_DeleteCommands(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	uploadsDir := filepath.Join(root, "uploads")

	file := filepath.Join(uploadsDir, "spring-show", "a.jpg")
	if err := os.MkdirAll(filepath.Dir(file), 0750); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(file, []byte("x"), 0600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if err := runApp(t, dataDir, uploadsDir, "delete-file", "g1", "Spring Show", "a.jpg"); err != nil {
		t.Fatalf("delete-file failed: %v", err)
	}
	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Errorf("expected file deleted, stat err: %v", err)
	}

	if err := runApp(t, dataDir, uploadsDir, "delete-gallery", "g1", "Spring Show"); err != nil {
		t.Fatalf("delete-gallery failed: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(file)); !os.IsNotExist(err) {
		t.Errorf("expected gallery directory deleted, stat err: %v", err)
	}

	err := runApp(t, dataDir, uploadsDir, "delete-file", "g1", "Spring Show")
	if !errors.Is(err, apperrors.ErrArgumentRequired) {
		t.Errorf("expected missing argument error, got %v", err)
	}
}

func TestApp_HistoryDisabled(t *testing.T) {
	root := t.TempDir()

	err := runApp(t, filepath.Join(root, "data"), filepath.Join(root, "uploads"), "history")
	if !errors.Is(err, apperrors.ErrHistoryDisabled) {
		t.Errorf("expected history disabled error, got %v", err)
	}
}

func TestApp_ImportRejectsInvalidDocument(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")

	doc := filepath.Join(root, "catalog.json")
	if err := os.WriteFile(doc, []byte(`{"galleries":[]}`), 0600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	err := runApp(t, dataDir, filepath.Join(root, "uploads"), "catalog", "import", doc)
	if !errors.Is(err, apperrors.ErrInvalidDocument) {
		t.Errorf("expected invalid document error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dataDir, catalog.FileName)); !os.IsNotExist(err) {
		t.Errorf("rejected import must not write the catalog, stat err: %v", err)
	}
}
