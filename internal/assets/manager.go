// Package assets manages the per-gallery upload directories.
//
// Files live at <uploads-root>/<sanitized gallery name>/<file name>.
// Nothing is tracked outside the filesystem: existence and size are
// always read live.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fclairamb/gallerystore/internal/apperrors"
)

const (
	// File and directory permissions.
	dirPerm  = 0750 // Directory permissions: rwxr-x---
	filePerm = 0640 // File permissions: rw-r-----

	tempPrefix = ".tmp-"
)

// FileInfo describes one asset file.
type FileInfo struct {
	Gallery string    `json:"gallery"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// DirInfo describes a directory under the uploads root. ModTime changes
// whenever a file is added to or removed from it.
type DirInfo struct {
	Name    string
	ModTime time.Time
}

// Manager owns every mutation of the uploads tree.
type Manager struct {
	root   string
	logger *slog.Logger
}

// ManagerOption configures Manager.
type ManagerOption func(*Manager)

// WithLogger sets a custom logger for the manager.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a manager rooted at uploadsDir. The directory does
// not need to exist yet.
func NewManager(uploadsDir string, opts ...ManagerOption) *Manager {
	m := &Manager{
		root:   filepath.Clean(uploadsDir),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the uploads root directory.
func (m *Manager) Root() string {
	return m.root
}

// GalleryPath returns the absolute directory of a gallery.
func (m *Manager) GalleryPath(galleryName string) (string, error) {
	dir, err := GalleryDir(galleryName)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.root, dir), nil
}

// filePath resolves a gallery file and checks it stays inside the gallery directory.
func (m *Manager) filePath(galleryName, fileName string) (string, error) {
	if err := ValidateFileName(fileName); err != nil {
		return "", err
	}
	galleryPath, err := m.GalleryPath(galleryName)
	if err != nil {
		return "", err
	}

	fullPath := filepath.Join(galleryPath, fileName)
	rel, err := filepath.Rel(galleryPath, fullPath)
	if err != nil || rel != fileName {
		return "", apperrors.InvalidRequest(apperrors.ErrPathTraversal)
	}
	return fullPath, nil
}

// DeleteFile removes a single file of a gallery. The gallery directory is
// derived from galleryName; galleryID is only recorded in logs.
// Deleting a file that does not exist succeeds.
func (m *Manager) DeleteFile(ctx context.Context, galleryID, galleryName, fileName string) error {
	if galleryID == "" || galleryName == "" || fileName == "" {
		return apperrors.InvalidRequest(errors.New("galleryId, galleryName and fileName are required"))
	}

	fullPath, err := m.filePath(galleryName, fileName)
	if err != nil {
		m.logger.WarnContext(ctx, "rejected file delete",
			"gallery_id", galleryID,
			"gallery_name", galleryName,
			"file_name", fileName,
			"error", err)
		return err
	}

	m.logger.DebugContext(ctx, "deleting asset file", "gallery_id", galleryID, "path", fullPath)

	info, err := os.Lstat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			m.logger.DebugContext(ctx, "asset file already absent", "path", fullPath)
			return nil
		}
		return apperrors.IOFailure("stat "+fileName, err)
	}
	if info.IsDir() {
		return apperrors.InvalidRequest(apperrors.ErrNotAFile)
	}

	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.ErrorContext(ctx, "delete asset file failed", "path", fullPath, "error", err)
		return apperrors.IOFailure("delete "+fileName, err)
	}

	m.logger.InfoContext(ctx, "asset file deleted", "gallery_id", galleryID, "path", fullPath)
	return nil
}

// DeleteGalleryDir removes a gallery directory and everything in it.
// A missing directory is a success.
func (m *Manager) DeleteGalleryDir(ctx context.Context, galleryID, galleryName string) error {
	if galleryID == "" || galleryName == "" {
		return apperrors.InvalidRequest(errors.New("galleryId and galleryName are required"))
	}

	galleryPath, err := m.GalleryPath(galleryName)
	if err != nil {
		m.logger.WarnContext(ctx, "rejected gallery delete",
			"gallery_id", galleryID,
			"gallery_name", galleryName,
			"error", err)
		return err
	}

	return m.removeDir(ctx, galleryID, galleryPath)
}

// removeDir deletes an already resolved gallery directory.
func (m *Manager) removeDir(ctx context.Context, galleryID, galleryPath string) error {
	if _, err := os.Lstat(galleryPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			m.logger.DebugContext(ctx, "gallery directory already absent", "path", galleryPath)
			return nil
		}
		return apperrors.IOFailure("stat gallery directory", err)
	}

	// RemoveAll ignores entries that disappear while it walks.
	if err := os.RemoveAll(galleryPath); err != nil {
		m.logger.ErrorContext(ctx, "delete gallery directory failed", "path", galleryPath, "error", err)
		return apperrors.IOFailure("delete gallery directory", err)
	}

	m.logger.InfoContext(ctx, "gallery directory deleted", "gallery_id", galleryID, "path", galleryPath)
	return nil
}

// SaveFile streams reader into a gallery file, replacing any previous
// file of the same name. The content becomes visible only once complete.
func (m *Manager) SaveFile(ctx context.Context, galleryName, fileName string, reader io.Reader) (FileInfo, error) {
	// Dot files are never listed, counted or served
	if strings.HasPrefix(fileName, ".") {
		return FileInfo{}, apperrors.InvalidRequest(apperrors.ErrHiddenFileName)
	}

	fullPath, err := m.filePath(galleryName, fileName)
	if err != nil {
		return FileInfo{}, err
	}
	galleryPath := filepath.Dir(fullPath)

	if err := os.MkdirAll(galleryPath, dirPerm); err != nil {
		return FileInfo{}, apperrors.IOFailure("create gallery directory", err)
	}

	tmpPath := filepath.Join(galleryPath, tempPrefix+uuid.NewString())
	tmpFile, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm) //nolint:gosec // path built from validated names
	if err != nil {
		return FileInfo{}, apperrors.IOFailure("create temp file", err)
	}

	written, err := io.Copy(tmpFile, reader)
	if err == nil {
		err = tmpFile.Sync()
	}
	if closeErr := tmpFile.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpPath, fullPath)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		m.logger.ErrorContext(ctx, "save asset file failed", "path", fullPath, "error", err)
		return FileInfo{}, apperrors.IOFailure("write "+fileName, err)
	}

	m.logger.InfoContext(ctx, "asset file saved", "path", fullPath, "size", written)
	return FileInfo{
		Gallery: filepath.Base(galleryPath),
		Name:    fileName,
		Size:    written,
		ModTime: time.Now(),
	}, nil
}

// ListFiles lists the files of one gallery, sorted by name. A gallery
// without a directory has no files.
func (m *Manager) ListFiles(ctx context.Context, galleryName string) ([]FileInfo, error) {
	galleryPath, err := m.GalleryPath(galleryName)
	if err != nil {
		return nil, err
	}

	files, err := readGalleryFiles(galleryPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []FileInfo{}, nil
		}
		return nil, apperrors.IOFailure("list gallery directory", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	m.logger.DebugContext(ctx, "listed gallery files", "path", galleryPath, "count", len(files))
	return files, nil
}

// GalleryDirs returns the directories directly under the uploads root,
// sorted by name. A missing root yields no directories.
func (m *Manager) GalleryDirs(_ context.Context) ([]DirInfo, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, apperrors.IOFailure("read uploads root", err)
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, apperrors.IOFailure("stat "+entry.Name(), err)
		}
		dirs = append(dirs, DirInfo{Name: entry.Name(), ModTime: info.ModTime()})
	}
	return dirs, nil
}

// RemoveDirByName deletes a directory directly under the uploads root,
// given its already sanitized name. Used to prune orphaned directories.
func (m *Manager) RemoveDirByName(ctx context.Context, dirName string) error {
	if err := ValidateFileName(dirName); err != nil {
		return err
	}
	if SanitizeName(dirName) != dirName {
		return apperrors.InvalidRequest(fmt.Errorf("not a gallery directory name: %q", dirName))
	}
	return m.removeDir(ctx, "", filepath.Join(m.root, dirName))
}

// readGalleryFiles lists the regular files directly inside dir.
// Files that vanish while listing are skipped.
func readGalleryFiles(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	gallery := filepath.Base(dir)
	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		files = append(files, FileInfo{
			Gallery: gallery,
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return files, nil
}
