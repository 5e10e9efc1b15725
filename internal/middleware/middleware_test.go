package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/libraryhub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenTable map[string]models.Identity

func (t tokenTable) CurrentIdentity(_ context.Context, token string) models.Identity {
	return t[token]
}

func TestIdentify(t *testing.T) {
	resolver := tokenTable{"admin-token": models.AdminIdentity(1)}

	var seen models.Identity
	handler := Identify(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFrom(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		want   models.Identity
	}{
		{"valid token", "Bearer admin-token", models.AdminIdentity(1)},
		{"unknown token", "Bearer nope", models.Anonymous},
		{"no header", "", models.Anonymous},
		{"wrong scheme", "Basic admin-token", models.Anonymous},
		{"extra parts", "Bearer admin-token extra", models.Anonymous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, seen)
		})
	}
}

func TestIdentityFrom_Empty(t *testing.T) {
	assert.True(t, IdentityFrom(context.Background()).IsAnonymous())
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestCoverServer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "9780134190440.png"), []byte("png-bytes"), 0o644))
	server := CoverServer(dir)

	t.Run("existing cover", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/9780134190440.png", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "png-bytes", w.Body.String())
	})

	t.Run("missing cover", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unknown.png", nil))
		assert.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), "BOOK")
	})

	t.Run("no escaping the directory", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.URL.Path = "/../../etc/passwd"
		server.ServeHTTP(w, req)
		assert.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))
	})
}
