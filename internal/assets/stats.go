package assets

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fclairamb/gallerystore/internal/apperrors"
)

// Stats is a storage usage snapshot of the uploads tree.
type Stats struct {
	TotalFiles     int64 `json:"totalFiles"`
	TotalSize      int64 `json:"totalSize"`
	GalleriesCount int   `json:"galleriesCount"`
}

// Stats walks the uploads root one gallery level deep and sums the files
// of every gallery directory. A missing root yields the zero snapshot.
//
// Top-level regular files are not galleries and are ignored, as are
// nested directories inside a gallery. Any other failure aborts the walk
// so that "no usage" and "usage unknown" stay distinguishable.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	entries, err := os.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			m.logger.DebugContext(ctx, "uploads root does not exist", "root", m.root)
			return stats, nil
		}
		return Stats{}, apperrors.IOFailure("read uploads root", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return Stats{}, err
		}
		if !entry.IsDir() {
			continue
		}

		files, err := readGalleryFiles(filepath.Join(m.root, entry.Name()))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Deleted while walking
				continue
			}
			return Stats{}, apperrors.IOFailure("read gallery "+entry.Name(), err)
		}

		stats.GalleriesCount++
		for _, f := range files {
			stats.TotalFiles++
			stats.TotalSize += f.Size
		}
	}

	m.logger.DebugContext(ctx, "storage stats computed",
		"total_files", stats.TotalFiles,
		"total_size", stats.TotalSize,
		"galleries", stats.GalleriesCount)
	return stats, nil
}
