package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/sluicedb/sluice/internal/auth"
	"github.com/sluicedb/sluice/internal/server/middleware"
	"github.com/sluicedb/sluice/internal/session"
)

// AuthHandler serves the login/logout/identity endpoints consumed by the
// presentation layer.
type AuthHandler struct {
	engine   *auth.Engine
	sessions *session.Manager
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(engine *auth.Engine, sessions *session.Manager) *AuthHandler {
	return &AuthHandler{engine: engine, sessions: sessions}
}

// loginRequest is the expected payload for the Login endpoint.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response payload for a successful login.
type loginResponse struct {
	Token       string `json:"session_token"`
	TokenType   string `json:"token_type"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// Login authenticates a username/password pair and opens a session.
// POST /api/v1/auth/session
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	identity, err := h.engine.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		var locked *auth.AccountLockedError
		switch {
		case errors.As(err, &locked):
			// The lockout itself is reported, but not the failure history
			// behind it; Retry-After lets well-behaved clients back off.
			w.Header().Set("Retry-After", strconv.Itoa(int(locked.Remaining.Seconds())))
			writeError(w, http.StatusTooManyRequests, "Account temporarily locked")
		case errors.Is(err, auth.ErrAccountDisabled):
			writeError(w, http.StatusUnauthorized, "Account is disabled")
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
		default:
			writeError(w, http.StatusInternalServerError, "Authentication error")
		}
		return
	}

	token, err := h.sessions.Create(*identity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to open session")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:       token,
		TokenType:   "bearer",
		Username:    identity.Username,
		DisplayName: identity.DisplayName,
		Role:        string(identity.Role),
	})
}

// Logout destroys the caller's session immediately.
// DELETE /api/v1/auth/session
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := bearerToken(r); ok {
		h.sessions.Logout(token)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Identity returns the authenticated identity for the current session.
// GET /api/v1/auth/identity
func (h *AuthHandler) Identity(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(h, "Bearer "), true
}
