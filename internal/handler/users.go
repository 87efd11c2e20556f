package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sluicedb/sluice/internal/auth"
	"github.com/sluicedb/sluice/internal/model"
	"github.com/sluicedb/sluice/internal/store"
)

// UsersHandler is the administrative surface over user records. Routes using
// it are mounted behind the admin capability gate; errors here are surfaced
// verbatim since the caller is already privileged.
type UsersHandler struct {
	engine *auth.Engine
}

// NewUsersHandler creates a new UsersHandler.
func NewUsersHandler(engine *auth.Engine) *UsersHandler {
	return &UsersHandler{engine: engine}
}

// List returns all user records ordered by username.
// GET /api/v1/users
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.engine.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "List users: "+err.Error())
		return
	}

	views := make([]userView, len(users))
	for i, u := range users {
		views[i] = viewOf(u)
	}
	writeJSON(w, http.StatusOK, views)
}

// createUserRequest is the expected payload for the Create endpoint.
type createUserRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

// Create adds a new user account.
// POST /api/v1/users
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	role, err := model.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	u, err := h.engine.CreateUser(r.Context(), req.Username, req.Password, role, req.DisplayName)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(*u))
}

// passwordRequest is the expected payload for the SetPassword endpoint.
type passwordRequest struct {
	Password string `json:"password"`
}

// SetPassword replaces a user's password.
// POST /api/v1/users/{username}/password
func (h *UsersHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.engine.SetPassword(r.Context(), chi.URLParam(r, "username"), req.Password); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}

// roleRequest is the expected payload for the SetRole endpoint.
type roleRequest struct {
	Role string `json:"role"`
}

// SetRole changes a user's role.
// POST /api/v1/users/{username}/role
func (h *UsersHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	role, err := model.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.engine.SetRole(r.Context(), chi.URLParam(r, "username"), role); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "role changed"})
}

// Activate re-enables a deactivated account.
// POST /api/v1/users/{username}/activate
func (h *UsersHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// Deactivate disables an account without deleting it.
// POST /api/v1/users/{username}/deactivate
func (h *UsersHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *UsersHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	if err := h.engine.SetActive(r.Context(), chi.URLParam(r, "username"), active); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_active": active})
}

// Unlock clears a user's lockout and failure counter.
// POST /api/v1/users/{username}/unlock
func (h *UsersHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Unlock(r.Context(), chi.URLParam(r, "username")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
}

// Delete removes a user account permanently.
// DELETE /api/v1/users/{username}
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteUser(r.Context(), chi.URLParam(r, "username")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// writeEngineError maps engine and store errors onto HTTP statuses for the
// administrative caller.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, "Username already exists")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrLastAdmin):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
