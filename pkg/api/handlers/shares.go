package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/driftbox/driftbox/internal/logger"
	"github.com/driftbox/driftbox/pkg/fileservice"
	"github.com/driftbox/driftbox/pkg/sharing"
	"github.com/driftbox/driftbox/pkg/vpath"
)

// SharesHandler handles the public link and member endpoints.
type SharesHandler struct {
	sharing *sharing.Service
	files   *fileservice.Service
}

// NewSharesHandler creates a new shares handler.
func NewSharesHandler(svc *sharing.Service, files *fileservice.Service) *SharesHandler {
	return &SharesHandler{sharing: svc, files: files}
}

// CreateLink handles POST /namespaces/{ns}/links - mint a public token
// for a file. Repeated calls return the existing link.
func (h *SharesHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePathQuery(w, r)
	if !ok {
		return
	}
	link, err := h.sharing.CreateLink(r.Context(), chi.URLParam(r, "ns"), path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, okResponse(link))
}

// RevokeLink handles DELETE /namespaces/{ns}/links?path=.
func (h *SharesHandler) RevokeLink(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePathQuery(w, r)
	if !ok {
		return
	}
	if err := h.sharing.RevokeLink(r.Context(), chi.URLParam(r, "ns"), path); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(nil))
}

// ResolveShared handles GET /shared/{token} - file metadata behind a
// public link, without the content.
func (h *SharesHandler) ResolveShared(w http.ResponseWriter, r *http.Request) {
	_, file, err := h.sharing.ResolveToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(file))
}

// DownloadShared handles GET /shared/{token}/content - the content
// stream behind a public link.
func (h *SharesHandler) DownloadShared(w http.ResponseWriter, r *http.Request) {
	_, file, err := h.sharing.ResolveToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	rc, file, err := h.files.Core().DownloadByID(r.Context(), file.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", file.MediaType)
	w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.VPath().Name()))
	if _, err := io.Copy(w, rc); err != nil {
		logger.WarnCtx(r.Context(), "shared download aborted", "file_id", file.ID, "error", err)
	}
}

// memberRequest is the body of the member add and remove endpoints.
type memberRequest struct {
	Path     string `json:"path"`
	Username string `json:"username"`
}

// ListMembers handles GET /namespaces/{ns}/members?path=.
func (h *SharesHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePathQuery(w, r)
	if !ok {
		return
	}
	members, err := h.sharing.ListMembers(r.Context(), chi.URLParam(r, "ns"), path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(members))
}

// AddMember handles POST /namespaces/{ns}/members - grant a user access
// to a folder and mount it into their namespace.
func (h *SharesHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	member, mnt, err := h.sharing.AddMember(r.Context(), chi.URLParam(r, "ns"), vpath.New(req.Path), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, okResponse(map[string]any{
		"member":      member,
		"mount_point": mnt,
	}))
}

// RemoveMember handles DELETE /namespaces/{ns}/members.
func (h *SharesHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	err := h.sharing.RemoveMember(r.Context(), chi.URLParam(r, "ns"), vpath.New(req.Path), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(nil))
}
