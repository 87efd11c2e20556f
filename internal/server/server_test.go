package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sluicedb/sluice/internal/auth"
	"github.com/sluicedb/sluice/internal/keyring"
	"github.com/sluicedb/sluice/internal/model"
	"github.com/sluicedb/sluice/internal/session"
	"github.com/sluicedb/sluice/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	st, err := store.OpenDataDir("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	keys, err := keyring.New(bytes.Repeat([]byte{0x42}, keyring.KeySize))
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := auth.NewEngine(st, keys, auth.DefaultPolicy(), logger)
	sessions := session.NewManager(keys.SessionSecret(), time.Hour)

	cfg := DefaultConfig()
	cfg.LoginRatePerMinute = 1000 // keep the IP limiter out of the way

	return New(cfg, engine, sessions, logger)
}

func seedUser(t *testing.T, s *Server, username, password string, role model.Role) {
	t.Helper()
	if _, err := s.engine.CreateUser(context.Background(), username, password, role, ""); err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
}

func doJSON(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, s *Server, username, password string) string {
	t.Helper()
	rec := doJSON(t, s, "POST", "/api/v1/auth/session", "", map[string]string{
		"username": username,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status = %d, body = %s", username, rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"session_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.Token
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, "GET", "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestLoginFlow(t *testing.T) {
	s := newTestServer(t)
	seedUser(t, s, "mario", "Sub4Life!", model.RoleUser)

	token := login(t, s, "mario", "Sub4Life!")

	rec := doJSON(t, s, "GET", "/api/v1/auth/identity", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("identity: status = %d", rec.Code)
	}
	var id model.Identity
	if err := json.Unmarshal(rec.Body.Bytes(), &id); err != nil {
		t.Fatalf("decode identity: %v", err)
	}
	if id.Username != "mario" || id.Role != model.RoleUser {
		t.Errorf("identity = %+v, want mario/user", id)
	}

	// Logout invalidates the session.
	rec = doJSON(t, s, "DELETE", "/api/v1/auth/session", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: status = %d", rec.Code)
	}
	rec = doJSON(t, s, "GET", "/api/v1/auth/identity", token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("identity after logout: status = %d, want 401", rec.Code)
	}
}

func TestLoginFailureIndistinguishable(t *testing.T) {
	s := newTestServer(t)
	seedUser(t, s, "mario", "Sub4Life!", model.RoleUser)

	wrongPass := doJSON(t, s, "POST", "/api/v1/auth/session", "", map[string]string{
		"username": "mario", "password": "nope",
	})
	noUser := doJSON(t, s, "POST", "/api/v1/auth/session", "", map[string]string{
		"username": "ghost", "password": "nope",
	})

	if wrongPass.Code != http.StatusUnauthorized || noUser.Code != http.StatusUnauthorized {
		t.Fatalf("statuses = %d, %d, want both 401", wrongPass.Code, noUser.Code)
	}
	if wrongPass.Body.String() != noUser.Body.String() {
		t.Errorf("wrong-password and unknown-user responses differ:\n%s\n%s",
			wrongPass.Body.String(), noUser.Body.String())
	}
}

func TestLoginLockout(t *testing.T) {
	s := newTestServer(t)
	seedUser(t, s, "mario", "Sub4Life!", model.RoleUser)

	for i := 0; i < 5; i++ {
		rec := doJSON(t, s, "POST", "/api/v1/auth/session", "", map[string]string{
			"username": "mario", "password": "wrong",
		})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, rec.Code)
		}
	}

	// Correct password is refused while locked, with a Retry-After hint.
	rec := doJSON(t, s, "POST", "/api/v1/auth/session", "", map[string]string{
		"username": "mario", "password": "Sub4Life!",
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("locked login: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("locked login: missing Retry-After header")
	}

	// An admin unlock restores access.
	seedUser(t, s, "root", "RootPass1", model.RoleAdmin)
	adminToken := login(t, s, "root", "RootPass1")
	rec = doJSON(t, s, "POST", "/api/v1/users/mario/unlock", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unlock: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	login(t, s, "mario", "Sub4Life!")
}

func TestUsersRequireAdmin(t *testing.T) {
	s := newTestServer(t)
	seedUser(t, s, "mario", "Sub4Life!", model.RoleUser)
	seedUser(t, s, "root", "RootPass1", model.RoleAdmin)

	// Unauthenticated.
	rec := doJSON(t, s, "GET", "/api/v1/users/", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous list: status = %d, want 401", rec.Code)
	}

	// Authenticated but not admin.
	userToken := login(t, s, "mario", "Sub4Life!")
	rec = doJSON(t, s, "GET", "/api/v1/users/", userToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("user list: status = %d, want 403", rec.Code)
	}

	// Admin.
	adminToken := login(t, s, "root", "RootPass1")
	rec = doJSON(t, s, "GET", "/api/v1/users/", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin list: status = %d", rec.Code)
	}
	if body := rec.Body.String(); strings.Contains(body, "password_hash") || strings.Contains(body, "salt") {
		t.Errorf("user listing leaks credential material: %s", body)
	}
}

func TestUserLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	seedUser(t, s, "root", "RootPass1", model.RoleAdmin)
	adminToken := login(t, s, "root", "RootPass1")

	// Create.
	rec := doJSON(t, s, "POST", "/api/v1/users/", adminToken, map[string]string{
		"username": "pat", "password": "Secret123", "role": "user", "display_name": "Pat",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Duplicate username conflicts.
	rec = doJSON(t, s, "POST", "/api/v1/users/", adminToken, map[string]string{
		"username": "pat", "password": "Other1234", "role": "user",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate create: status = %d, want 409", rec.Code)
	}

	// Invalid role is rejected before touching the engine.
	rec = doJSON(t, s, "POST", "/api/v1/users/", adminToken, map[string]string{
		"username": "kim", "password": "Secret123", "role": "superuser",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad role: status = %d, want 400", rec.Code)
	}

	// Promote, deactivate, reactivate.
	rec = doJSON(t, s, "POST", "/api/v1/users/pat/role", adminToken, map[string]string{"role": "admin"})
	if rec.Code != http.StatusOK {
		t.Fatalf("set role: status = %d", rec.Code)
	}
	rec = doJSON(t, s, "POST", "/api/v1/users/pat/deactivate", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate: status = %d", rec.Code)
	}
	rec = doJSON(t, s, "POST", "/api/v1/auth/session", "", map[string]string{
		"username": "pat", "password": "Secret123",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("disabled login: status = %d, want 401", rec.Code)
	}
	rec = doJSON(t, s, "POST", "/api/v1/users/pat/activate", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("activate: status = %d", rec.Code)
	}

	// Password change takes effect immediately.
	rec = doJSON(t, s, "POST", "/api/v1/users/pat/password", adminToken, map[string]string{
		"password": "NewSecret9",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("set password: status = %d", rec.Code)
	}
	login(t, s, "pat", "NewSecret9")

	// Delete.
	rec = doJSON(t, s, "DELETE", "/api/v1/users/pat", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	rec = doJSON(t, s, "DELETE", "/api/v1/users/pat", adminToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete missing: status = %d, want 404", rec.Code)
	}
}

func TestLastAdminProtectedOverHTTP(t *testing.T) {
	s := newTestServer(t)
	seedUser(t, s, "root", "RootPass1", model.RoleAdmin)
	adminToken := login(t, s, "root", "RootPass1")

	rec := doJSON(t, s, "DELETE", "/api/v1/users/root", adminToken, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("delete last admin: status = %d, want 409", rec.Code)
	}
	rec = doJSON(t, s, "POST", "/api/v1/users/root/deactivate", adminToken, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("deactivate last admin: status = %d, want 409", rec.Code)
	}
}
