package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"noteszone/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	identity token.Identity
}

func (s stubVerifier) Verify(credential string) (token.Identity, error) {
	if credential != "valid" {
		return token.Identity{}, errors.New("bad token")
	}
	return s.identity, nil
}

func TestAuthMiddleware(t *testing.T) {
	alice := token.Identity{ID: "alice", Email: "alice@example.com", Name: "Alice"}
	var seen token.Identity
	handler := AuthMiddleware(stubVerifier{identity: alice})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ok bool
		seen, ok = IdentityFrom(r)
		require.True(t, ok)
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"no credential", "", http.StatusUnauthorized},
		{"bad credential", "Bearer forged", http.StatusUnauthorized},
		{"valid credential", "Bearer valid", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/notes/owned", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
	assert.Equal(t, alice, seen)
}

func TestGetUserIDWithoutIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", GetUserID(req))
	req = req.WithContext(WithIdentity(req.Context(), token.Identity{ID: "bob"}))
	assert.Equal(t, "bob", GetUserID(req))
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := CORSMiddleware("http://localhost:5173, https://notes.example.com", "GET,POST", "Authorization,Content-Type")(next)

	req := httptest.NewRequest(http.MethodOptions, "/api/notes", nil)
	req.Header.Set("Origin", "https://notes.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://notes.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAllowOrigin(t *testing.T) {
	check := AllowOrigin("http://localhost:5173")
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))
	req.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, check(req))
	req.Header.Set("Origin", "http://other")
	assert.False(t, check(req))

	assert.True(t, AllowOrigin("*")(req))
}

func TestLoggerMiddlewareRecordsStatus(t *testing.T) {
	handler := LoggerMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
