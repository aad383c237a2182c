// Package apperrors provides common static errors used throughout the application.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError represents an HTTP error with a status code.
type HTTPError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// NewHTTPError creates a new HTTPError.
func NewHTTPError(statusCode int, body string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Body: body}
}

// Error taxonomy. Every error returned by the catalog, assets and gallery
// packages wraps exactly one of these three.
var (
	// ErrInvalidRequest is returned when a required field is missing or an input is rejected.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound is returned when a file, directory or catalog entry does not exist.
	// Delete operations treat it as success and never return it.
	ErrNotFound = errors.New("not found")

	// ErrIOFailure is returned when a read, write, delete or traversal on disk fails.
	ErrIOFailure = errors.New("i/o failure")
)

// Detailed causes, always wrapped together with one of the taxonomy errors.
var (
	// ErrEmptyGalleryDir is returned when a gallery name sanitizes to an empty directory name.
	ErrEmptyGalleryDir = errors.New("gallery name has no usable characters")

	// ErrPathTraversal is returned when a file name would escape its gallery directory.
	ErrPathTraversal = errors.New("file name must not contain path separators or dot segments")

	// ErrHiddenFileName is returned when an uploaded file name starts with a dot.
	ErrHiddenFileName = errors.New("file name must not start with a dot")

	// ErrNotAFile is returned when a delete targets a directory instead of a file.
	ErrNotAFile = errors.New("target is not a regular file")

	// ErrCatalogDegraded is returned when a write needs the current catalog but it could not be read.
	ErrCatalogDegraded = errors.New("catalog could not be read")

	// ErrInvalidDocument is returned when a catalog body does not match the document schema.
	ErrInvalidDocument = errors.New("invalid catalog document")

	// ErrHistoryDisabled is returned when catalog history is requested but not configured.
	ErrHistoryDisabled = errors.New("catalog history not enabled (set GLS_HISTORY)")

	// ErrRemoteNotConfigured is returned when a git remote operation is attempted but no remote is configured.
	ErrRemoteNotConfigured = errors.New("no remote configured")

	// ErrHTTPSPasswordRequired is returned when HTTPS git URL is used without GLS_GIT_PASS.
	ErrHTTPSPasswordRequired = errors.New("GLS_GIT_PASS required for HTTPS URLs")

	// ErrArgumentRequired is returned when a CLI command is missing a positional argument.
	ErrArgumentRequired = errors.New("missing required argument")

	// ErrInvalidConfig is returned when a GLS_ setting has an unusable value.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// InvalidRequest wraps cause so that it matches ErrInvalidRequest.
func InvalidRequest(cause error) error {
	return fmt.Errorf("%w: %w", ErrInvalidRequest, cause)
}

// IOFailure wraps cause with an operation description so that it matches ErrIOFailure.
func IOFailure(op string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrIOFailure, op, cause)
}

// StatusCode maps an error to the HTTP status the API answers with.
func StatusCode(err error) int {
	var httpErr *HTTPError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &httpErr):
		return httpErr.StatusCode
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
