package api_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/fileadmin/internal/api"
	"github.com/charlesng35/fileadmin/internal/app"
	"github.com/charlesng35/fileadmin/internal/handlers/testutil"
)

func TestNewRouterRequiresDependencies(t *testing.T) {
	_, err := api.NewRouter(api.Deps{})
	require.Error(t, err)

	_, err = api.NewRouter(api.Deps{Config: &app.Config{}})
	require.ErrorContains(t, err, "database")
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	env := testutil.NewEnv(t)

	require.Equal(t, http.StatusOK, env.Request(http.MethodGet, "/health", nil, "").Code)

	for _, path := range []string{"/api/auth/me", "/api/rbac/roles", "/api/rbac/users", "/api/files"} {
		w := env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
		require.Equal(t, "UNAUTHORIZED", testutil.DecodeResponse(t, w).Error.Code, path)
	}
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	env := testutil.NewEnv(t)

	missing := env.Request(http.MethodGet, "/api/nope", nil, "")
	require.Equal(t, http.StatusNotFound, missing.Code)
	payload := testutil.DecodeResponse(t, missing)
	require.False(t, payload.Success)
	require.Equal(t, "NOT_FOUND", payload.Error.Code)

	wrongMethod := env.Request(http.MethodDelete, "/api/auth/login", nil, "")
	require.Equal(t, http.StatusMethodNotAllowed, wrongMethod.Code)
	require.Equal(t, "METHOD_NOT_ALLOWED", testutil.DecodeResponse(t, wrongMethod).Error.Code)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	env := testutil.NewEnv(t)

	require.Equal(t, http.StatusOK, env.Request(http.MethodGet, "/health", nil, "").Code)

	w := env.Request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "fileadmin_api_latency_seconds")
}

func TestRouter_GlobalMiddleware(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	preflight := httptest.NewRecorder()
	env.Router.ServeHTTP(preflight, req)

	require.Less(t, preflight.Code, 300)
	require.NotEmpty(t, preflight.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, strings.ToUpper(preflight.Header().Get("Access-Control-Allow-Methods")), http.MethodPost)
}
