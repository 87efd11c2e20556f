package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sluicedb/sluice/internal/access"
	"github.com/sluicedb/sluice/internal/model"
	"github.com/sluicedb/sluice/internal/session"
)

func okHandler(t *testing.T, sawIdentity *model.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := GetIdentity(r.Context()); id != nil && sawIdentity != nil {
			*sawIdentity = *id
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate(t *testing.T) {
	sessions := session.NewManager(bytes.Repeat([]byte{0x01}, 32), time.Hour)
	token, err := sessions.Create(model.Identity{Username: "mario", Role: model.RoleUser})
	if err != nil {
		t.Fatalf("Create session: %v", err)
	}

	var seen model.Identity
	h := Authenticate(sessions)(okHandler(t, &seen))

	// No token.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	// Bad token.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rec.Code)
	}

	// Valid token.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, want 200", rec.Code)
	}
	if seen.Username != "mario" {
		t.Errorf("identity in context = %q, want mario", seen.Username)
	}
}

func TestRequireCapability(t *testing.T) {
	sessions := session.NewManager(bytes.Repeat([]byte{0x02}, 32), time.Hour)
	userToken, _ := sessions.Create(model.Identity{Username: "mario", Role: model.RoleUser})
	adminToken, _ := sessions.Create(model.Identity{Username: "root", Role: model.RoleAdmin})

	h := Authenticate(sessions)(RequireCapability(access.Admin)(okHandler(t, nil)))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("user hitting admin route: status = %d, want 403", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("admin hitting admin route: status = %d, want 200", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	var got string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if got == "" {
		t.Error("no request ID generated")
	}
	if rec.Header().Get("X-Request-ID") != got {
		t.Error("request ID not echoed in response header")
	}

	// Client-provided IDs are preserved.
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "abc-123" {
		t.Errorf("request ID = %q, want abc-123", got)
	}
}
