package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/driftbox/driftbox/internal/logger"
	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/content"
	"github.com/driftbox/driftbox/pkg/namespace"
	"github.com/driftbox/driftbox/pkg/vpath"
)

// defaultActivityLimit bounds GET /activity when no limit is given.
const defaultActivityLimit = 50

// FilesHandler handles the file and folder endpoints of a namespace.
type FilesHandler struct {
	ns       *namespace.Service
	pipeline *content.Service
	maxBody  int64
}

// NewFilesHandler creates a new files handler. maxBody caps upload
// request bodies in bytes.
func NewFilesHandler(ns *namespace.Service, pipeline *content.Service, maxBody int64) *FilesHandler {
	return &FilesHandler{ns: ns, pipeline: pipeline, maxBody: maxBody}
}

// List handles GET /namespaces/{ns}/files?path= - folder listing.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	files, err := h.ns.Files().ListFolder(r.Context(), chi.URLParam(r, "ns"), pathQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(files))
}

// Get handles GET /namespaces/{ns}/file?path= - single entry metadata.
func (h *FilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePathQuery(w, r)
	if !ok {
		return
	}
	file, err := h.ns.Files().GetAtPath(r.Context(), chi.URLParam(r, "ns"), path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(file))
}

// Upload handles POST /namespaces/{ns}/files?path= - raw body upload.
//
// The request body is the file content. Content-Length is required so
// the upload limit and the storage quota are enforced before any bytes
// are stored.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePathQuery(w, r)
	if !ok {
		return
	}
	if r.ContentLength < 0 {
		writeError(w, apperror.MalformedPath("Content-Length is required for uploads."))
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.maxBody)
	defer func() { _ = body.Close() }()

	file, err := h.ns.AddFile(r.Context(), chi.URLParam(r, "ns"), path, body, r.ContentLength)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, okResponse(file))
}

// Download handles GET /namespaces/{ns}/download?path= - content stream.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePathQuery(w, r)
	if !ok {
		return
	}
	rc, file, err := h.ns.Files().Download(r.Context(), chi.URLParam(r, "ns"), path)
	if err != nil {
		writeError(w, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", file.MediaType)
	w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.VPath().Name()))
	if _, err := io.Copy(w, rc); err != nil {
		// Headers are gone; all we can do is log the broken transfer.
		logger.WarnCtx(r.Context(), "download aborted", "path", file.Path, "error", err)
	}
}

// Delete handles DELETE /namespaces/{ns}/files?path= - immediate delete.
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePathQuery(w, r)
	if !ok {
		return
	}
	if err := h.ns.DeleteItem(r.Context(), chi.URLParam(r, "ns"), path); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(nil))
}

// CreateFolder handles POST /namespaces/{ns}/folders.
func (h *FilesHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	folder, err := h.ns.Files().CreateFolder(r.Context(), chi.URLParam(r, "ns"), vpath.New(req.Path))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, okResponse(folder))
}

// Move handles POST /namespaces/{ns}/move.
func (h *FilesHandler) Move(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	file, err := h.ns.MoveItem(r.Context(), chi.URLParam(r, "ns"), vpath.New(req.From), vpath.New(req.To))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(file))
}

// Trash handles POST /namespaces/{ns}/trash - move an item to the trash.
func (h *FilesHandler) Trash(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	file, err := h.ns.MoveItemToTrash(r.Context(), chi.URLParam(r, "ns"), vpath.New(req.Path))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(file))
}

// EmptyTrash handles POST /namespaces/{ns}/trash/empty.
func (h *FilesHandler) EmptyTrash(w http.ResponseWriter, r *http.Request) {
	if err := h.ns.EmptyTrash(r.Context(), chi.URLParam(r, "ns")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(nil))
}

// Duplicates handles GET /namespaces/{ns}/duplicates?path= - perceptual
// duplicate groups under a folder.
func (h *FilesHandler) Duplicates(w http.ResponseWriter, r *http.Request) {
	groups, err := h.ns.FindDuplicates(r.Context(), chi.URLParam(r, "ns"), pathQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(groups))
}

// Reindex handles POST /namespaces/{ns}/reindex - rebuild metadata rows
// from the blob store. With ?contents=true the content pipeline re-runs
// over every file afterwards.
func (h *FilesHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	ns := chi.URLParam(r, "ns")
	if err := h.ns.Reindex(r.Context(), ns); err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("contents") == "true" {
		if err := h.pipeline.ReindexContents(r.Context(), ns); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, okResponse(nil))
}

// Activity handles GET /namespaces/{ns}/activity?limit= - the audit
// trail of the namespace owner, newest first.
func (h *FilesHandler) Activity(w http.ResponseWriter, r *http.Request) {
	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, apperror.MalformedPath("Invalid limit."))
			return
		}
		limit = parsed
	}
	entries, err := h.ns.Activity(r.Context(), chi.URLParam(r, "ns"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(entries))
}

// Thumbnail handles GET /files/{id}/thumbnail?size= - the rendered
// preview bytes, generated on first use.
func (h *FilesHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	size := 0
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, apperror.MalformedPath("Invalid size."))
			return
		}
		size = parsed
	}
	if size == 0 {
		size = h.pipeline.Thumbnails().Sizes()[0]
	}

	data, err := h.pipeline.Thumbnails().Thumbnail(r.Context(), chi.URLParam(r, "id"), size)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}
