package assets

import (
	"path/filepath"
	"strings"

	"github.com/fclairamb/gallerystore/internal/apperrors"
)

// SanitizeName turns a gallery display name into a directory name.
// The result only contains [a-z0-9-] and has no leading, trailing or
// consecutive dashes. It may be empty, and distinct names may collide.
func SanitizeName(name string) string {
	name = strings.ToLower(name)

	var result strings.Builder
	result.Grow(len(name))
	pendingDash := false
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && result.Len() > 0 {
				result.WriteByte('-')
			}
			pendingDash = false
			result.WriteRune(r)
			continue
		}
		// Everything else, including non-ASCII, becomes a separator
		pendingDash = true
	}

	return result.String()
}

// GalleryDir returns the directory name for a gallery, refusing names
// that sanitize to nothing.
func GalleryDir(galleryName string) (string, error) {
	dir := SanitizeName(galleryName)
	if dir == "" {
		return "", apperrors.InvalidRequest(apperrors.ErrEmptyGalleryDir)
	}
	return dir, nil
}

// ValidateFileName rejects file names that are not a single plain path element.
func ValidateFileName(name string) error {
	if name == "" || name == "." || name == ".." {
		return apperrors.InvalidRequest(apperrors.ErrPathTraversal)
	}
	if strings.ContainsAny(name, `/\`+"\x00") {
		return apperrors.InvalidRequest(apperrors.ErrPathTraversal)
	}
	if filepath.Base(name) != name || filepath.VolumeName(name) != "" {
		return apperrors.InvalidRequest(apperrors.ErrPathTraversal)
	}
	return nil
}
