package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/fileadmin/internal/handlers/testutil"
)

func TestHealthEndpoints(t *testing.T) {
	env := testutil.NewEnv(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		w := env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusOK, w.Code, path)
		require.Contains(t, w.Body.String(), `"status":"up"`)
	}
}

func TestHealthReportsDatabaseOutage(t *testing.T) {
	env := testutil.NewEnv(t)

	sqlDB, err := env.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w := env.Request(http.MethodGet, "/health/ready", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"component":"database"`)
}
