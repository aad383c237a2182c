package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/fclairamb/gallerystore/internal/apperrors"
	"github.com/fclairamb/gallerystore/internal/assets"
	"github.com/fclairamb/gallerystore/internal/catalog"
	"github.com/fclairamb/gallerystore/internal/gallery"
	"github.com/fclairamb/gallerystore/internal/history"
	"github.com/fclairamb/gallerystore/internal/version"
)

const (
	// Maximum accepted catalog body.
	maxCatalogSize = 50 << 20

	// Maximum accepted body for small JSON commands.
	maxCommandSize = 64 << 10

	// Multipart parts kept in memory before spilling to disk.
	uploadMemory = 1 << 20

	defaultHistoryLimit = 20

	// Header telling where a served catalog came from.
	headerCatalogSource = "X-Catalog-Source"
)

// HistoryReader lists catalog revisions.
type HistoryReader interface {
	Log(ctx context.Context, path string, limit int) ([]history.Entry, error)
}

// Handler serves the gallery API.
type Handler struct {
	store         *catalog.Store
	manager       *assets.Manager
	service       *gallery.Service
	history       HistoryReader
	logger        *slog.Logger
	maxUploadSize int64
}

// NewHandler creates a new API handler. history may be nil.
func NewHandler(
	store *catalog.Store,
	manager *assets.Manager,
	service *gallery.Service,
	hist HistoryReader,
	maxUploadSize int64,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		store:         store,
		manager:       manager,
		service:       service,
		history:       hist,
		logger:        logger,
		maxUploadSize: maxUploadSize,
	}
}

// deleteFileRequest is the body of POST /api/delete-file.
type deleteFileRequest struct {
	GalleryID   string `json:"galleryId"`
	FileName    string `json:"fileName"`
	GalleryName string `json:"galleryName"`
}

// deleteGalleryRequest is the body of POST /api/delete-gallery.
type deleteGalleryRequest struct {
	GalleryID   string `json:"galleryId"`
	GalleryName string `json:"galleryName"`
}

// successResponse is returned by mutating endpoints.
type successResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// errorResponse is returned on failures that do not carry a success flag.
type errorResponse struct {
	Error string `json:"error"`
}

// HandleGetData serves the whole catalog. It never fails.
func (h *Handler) HandleGetData(writer http.ResponseWriter, req *http.Request) {
	result := h.store.Load(req.Context())

	writer.Header().Set(headerCatalogSource, string(result.Source))
	h.writeJSON(req.Context(), writer, http.StatusOK, result.Document)
}

// HandlePostData replaces the whole catalog.
func (h *Handler) HandlePostData(writer http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	body, err := io.ReadAll(http.MaxBytesReader(writer, req.Body, maxCatalogSize))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read catalog body", "error", err)
		h.writeJSON(ctx, writer, bodyErrorStatus(err), errorResponse{Error: "Invalid request body"})
		return
	}

	doc, err := catalog.ParseDocument(body)
	if err != nil {
		h.logger.WarnContext(ctx, "rejected catalog body", "error", err)
		h.writeJSON(ctx, writer, http.StatusBadRequest, errorResponse{Error: "Invalid catalog document"})
		return
	}

	if err := h.store.Save(ctx, doc); err != nil {
		h.writeJSON(ctx, writer, http.StatusInternalServerError, errorResponse{Error: "Failed to save data"})
		return
	}

	h.writeJSON(ctx, writer, http.StatusOK, successResponse{Success: true})
}

// HandleDeleteFile deletes one asset file.
func (h *Handler) HandleDeleteFile(writer http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var body deleteFileRequest
	if err := decodeJSON(writer, req, &body); err != nil {
		h.logger.WarnContext(ctx, "invalid delete-file body", "error", err)
		h.writeJSON(ctx, writer, bodyErrorStatus(err), errorResponse{Error: "Invalid request body"})
		return
	}

	if err := h.manager.DeleteFile(ctx, body.GalleryID, body.GalleryName, body.FileName); err != nil {
		status := apperrors.StatusCode(err)
		h.writeJSON(ctx, writer, status, errorResponse{Error: clientMessage(status, err, "Failed to delete file")})
		return
	}

	h.writeJSON(ctx, writer, http.StatusOK, successResponse{Success: true})
}

// HandleDeleteGallery deletes the asset directory of a gallery.
func (h *Handler) HandleDeleteGallery(writer http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var body deleteGalleryRequest
	if err := decodeJSON(writer, req, &body); err != nil {
		h.logger.WarnContext(ctx, "invalid delete-gallery body", "error", err)
		h.writeJSON(ctx, writer, bodyErrorStatus(err), successResponse{Error: "Invalid request body"})
		return
	}

	if err := h.manager.DeleteGalleryDir(ctx, body.GalleryID, body.GalleryName); err != nil {
		status := apperrors.StatusCode(err)
		h.writeJSON(ctx, writer, status, successResponse{Error: clientMessage(status, err, "Failed to delete gallery")})
		return
	}

	h.writeJSON(ctx, writer, http.StatusOK, successResponse{Success: true})
}

// HandleStorageStats reports storage usage. Failures are served as zeros.
func (h *Handler) HandleStorageStats(writer http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	stats, err := h.manager.Stats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "storage stats failed, serving zeros", "error", err)
		stats = assets.Stats{}
	}

	h.writeJSON(ctx, writer, http.StatusOK, stats)
}

// HandleRemoveGallery removes a gallery from the catalog along with its artworks and assets.
func (h *Handler) HandleRemoveGallery(writer http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	result, err := h.service.RemoveGallery(ctx, req.PathValue("id"))
	if err != nil {
		status := apperrors.StatusCode(err)
		h.writeJSON(ctx, writer, status, successResponse{Error: clientMessage(status, err, "Failed to remove gallery")})
		return
	}

	h.writeJSON(ctx, writer, http.StatusOK, struct {
		Success bool `json:"success"`
		gallery.RemoveResult
	}{Success: true, RemoveResult: result})
}

// HandleUpload stores one file sent as multipart form data.
func (h *Handler) HandleUpload(writer http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	req.Body = http.MaxBytesReader(writer, req.Body, h.maxUploadSize)
	if err := req.ParseMultipartForm(uploadMemory); err != nil {
		h.logger.WarnContext(ctx, "invalid upload", "error", err)
		h.writeJSON(ctx, writer, bodyErrorStatus(err), errorResponse{Error: "Invalid upload"})
		return
	}
	defer func() {
		if err := req.MultipartForm.RemoveAll(); err != nil {
			h.logger.WarnContext(ctx, "failed to clean multipart temp files", "error", err)
		}
	}()

	file, header, err := req.FormFile("file")
	if err != nil {
		h.writeJSON(ctx, writer, http.StatusBadRequest, errorResponse{Error: "Missing file"})
		return
	}
	defer func() { _ = file.Close() }()

	info, err := h.manager.SaveFile(ctx, req.FormValue("galleryName"), header.Filename, file)
	if err != nil {
		status := apperrors.StatusCode(err)
		h.writeJSON(ctx, writer, status, errorResponse{Error: clientMessage(status, err, "Failed to save file")})
		return
	}

	h.writeJSON(ctx, writer, http.StatusCreated, struct {
		Success bool   `json:"success"`
		URL     string `json:"url"`
		assets.FileInfo
	}{
		Success:  true,
		URL:      "/uploads/" + url.PathEscape(info.Gallery) + "/" + url.PathEscape(info.Name),
		FileInfo: info,
	})
}

// HandleListFiles lists the files of one gallery.
func (h *Handler) HandleListFiles(writer http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	files, err := h.manager.ListFiles(ctx, req.URL.Query().Get("galleryName"))
	if err != nil {
		status := apperrors.StatusCode(err)
		h.writeJSON(ctx, writer, status, errorResponse{Error: clientMessage(status, err, "Failed to list files")})
		return
	}

	h.writeJSON(ctx, writer, http.StatusOK, map[string]any{"files": files})
}

// HandleHistory lists the latest catalog revisions.
func (h *Handler) HandleHistory(writer http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	if h.history == nil {
		h.writeJSON(ctx, writer, http.StatusNotFound, errorResponse{Error: apperrors.ErrHistoryDisabled.Error()})
		return
	}

	limit := defaultHistoryLimit
	if raw := req.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeJSON(ctx, writer, http.StatusBadRequest, errorResponse{Error: "Invalid limit"})
			return
		}
		limit = parsed
	}

	entries, err := h.history.Log(ctx, h.store.Path(), limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read catalog history", "error", err)
		h.writeJSON(ctx, writer, http.StatusInternalServerError, errorResponse{Error: "Failed to read history"})
		return
	}

	h.writeJSON(ctx, writer, http.StatusOK, map[string]any{"revisions": entries})
}

// HandleVersion handles the /api/version endpoint.
func (h *Handler) HandleVersion(writer http.ResponseWriter, req *http.Request) {
	response := map[string]string{
		"version":    version.Version,
		"commit":     version.Commit,
		"build_time": version.GitTime,
	}

	h.writeJSON(req.Context(), writer, http.StatusOK, response)
}

// HandleHealth handles the /health endpoint for health checks.
func (h *Handler) HandleHealth(writer http.ResponseWriter, req *http.Request) {
	h.writeJSON(req.Context(), writer, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(ctx context.Context, writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(value); err != nil {
		h.logger.ErrorContext(ctx, "failed to encode response", "status", status, "error", err)
	}
}

// decodeJSON reads a small JSON command body.
func decodeJSON(writer http.ResponseWriter, req *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(writer, req.Body, maxCommandSize))
	if err := decoder.Decode(dst); err != nil {
		return bodyError(err)
	}
	return nil
}

// bodyError classifies a body read failure: oversized bodies answer 413,
// anything else is the client's fault.
func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: %w", apperrors.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large"), err)
	}
	return apperrors.InvalidRequest(fmt.Errorf("decode body: %w", err))
}

// bodyErrorStatus maps a body read failure to a status.
func bodyErrorStatus(err error) int {
	return apperrors.StatusCode(bodyError(err))
}

// clientMessage hides server side details from 5xx responses.
func clientMessage(status int, err error, fallback string) string {
	if status >= http.StatusInternalServerError {
		return fallback
	}
	return err.Error()
}
