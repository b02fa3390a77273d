package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/driftbox/driftbox/pkg/namespace"
	"github.com/driftbox/driftbox/pkg/store/metadata"
)

// UsersHandler handles the user and namespace provisioning endpoints.
type UsersHandler struct {
	store *metadata.Store
	ns    *namespace.Service
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(store *metadata.Store, ns *namespace.Service) *UsersHandler {
	return &UsersHandler{store: store, ns: ns}
}

// Create handles POST /users - register an account holder. An optional
// storage quota in bytes caps the sum of file sizes across the user's
// namespaces.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username     string `json:"username"`
		Email        string `json:"email"`
		StorageQuota *int64 `json:"storage_quota"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}

	user, err := h.store.Users.Save(r.Context(), &metadata.User{
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if req.StorageQuota != nil {
		err := h.store.Accounts.Save(r.Context(), &metadata.Account{
			UserID:       user.ID,
			StorageQuota: req.StorageQuota,
		})
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, okResponse(user))
}

// Get handles GET /users/{username}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.Users.GetByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(user))
}

// CreateNamespace handles POST /namespaces - create a namespace owned
// by an existing user.
func (h *UsersHandler) CreateNamespace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path  string `json:"path"`
		Owner string `json:"owner"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}

	user, err := h.store.Users.GetByUsername(r.Context(), req.Owner)
	if err != nil {
		writeError(w, err)
		return
	}
	ns, err := h.ns.Create(r.Context(), req.Path, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, okResponse(ns))
}
