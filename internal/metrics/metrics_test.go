package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fclairamb/gallerystore/internal/assets"
	"github.com/fclairamb/gallerystore/internal/gallery"
)

type fakeStats struct {
	stats assets.Stats
	err   error
}

func (f fakeStats) Stats(context.Context) (assets.Stats, error) {
	return f.stats, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestObserveRequest(t *testing.T) {
	t.Parallel()

	m := New(nil, discardLogger())
	m.ObserveRequest(http.MethodGet, "GET /api/data", http.StatusOK, 5*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "GET /api/data", http.StatusOK, 7*time.Millisecond)
	m.ObserveRequest(http.MethodPost, "POST /api/data", http.StatusBadRequest, time.Millisecond)

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues(http.MethodGet, "GET /api/data", "200")); got != 2 {
		t.Errorf("expected 2 GET requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues(http.MethodPost, "POST /api/data", "400")); got != 1 {
		t.Errorf("expected 1 POST request, got %v", got)
	}
}

func TestObserveReconcile(t *testing.T) {
	t.Parallel()

	m := New(nil, discardLogger())
	m.ObserveReconcile(gallery.Report{Orphans: []string{"a", "b", "c"}, Removed: []string{"a"}})

	if got := testutil.ToFloat64(m.reconcileOrphans); got != 2 {
		t.Errorf("expected 2 remaining orphans, got %v", got)
	}
	if got := testutil.ToFloat64(m.reconcileRemoved); got != 1 {
		t.Errorf("expected 1 removed, got %v", got)
	}
	if got := testutil.ToFloat64(m.reconcileRuns); got != 1 {
		t.Errorf("expected 1 run, got %v", got)
	}
}

func TestStorageCollector(t *testing.T) {
	t.Parallel()

	c := newStorageCollector(fakeStats{stats: assets.Stats{TotalFiles: 3, TotalSize: 35, GalleriesCount: 2}}, discardLogger())
	expected := `
# HELP gallerystore_storage_bytes Bytes stored across all gallery directories
# TYPE gallerystore_storage_bytes gauge
gallerystore_storage_bytes 35
# HELP gallerystore_storage_files Files stored across all gallery directories
# TYPE gallerystore_storage_files gauge
gallerystore_storage_files 3
# HELP gallerystore_storage_galleries Gallery directories under the uploads root
# TYPE gallerystore_storage_galleries gauge
gallerystore_storage_galleries 2
# HELP gallerystore_storage_scan_success Whether the last storage scan succeeded
# TYPE gallerystore_storage_scan_success gauge
gallerystore_storage_scan_success 1
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestStorageCollector_Failure(t *testing.T) {
	t.Parallel()

	c := newStorageCollector(fakeStats{err: errors.New("permission denied")}, discardLogger())
	if n := testutil.CollectAndCount(c); n != 1 {
		t.Errorf("expected only the scan status metric, got %d", n)
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()

	m := New(fakeStats{stats: assets.Stats{TotalFiles: 1}}, discardLogger())
	m.ObserveRequest(http.MethodGet, "GET /health", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"http_requests_total", "gallerystore_storage_files 1", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}
