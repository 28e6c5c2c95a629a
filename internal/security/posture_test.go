package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	testutil "github.com/charlesng35/fileadmin/internal/database/testutil"
)

func findCheck(t *testing.T, result Result, id string) Check {
	t.Helper()
	for _, check := range result.Checks {
		if check.ID == id {
			return check
		}
	}
	t.Fatalf("check %q not found", id)
	return Check{}
}

func TestPostureServiceRun(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithDemoUsers("password123"))

	svc := NewPostureService(db, Settings{
		JWTSecret:      "0123456789abcdef0123456789abcdef0123456789abcdef",
		TokenTTL:       720 * time.Hour,
		AllowedOrigins: []string{"https://admin.example.com"},
		RateLimit:      100,
	})
	fixed := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })

	result := svc.Run(context.Background())
	require.Equal(t, fixed, result.CheckedAt)
	require.Len(t, result.Checks, 5)
	require.Equal(t, 5, result.Summary[string(StatusPass)], result.Checks)
}

func TestPostureServiceDetectsMissingAdmin(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	result := NewPostureService(db, Settings{}).Run(context.Background())

	require.Equal(t, StatusFail, findCheck(t, result, "admin_user_present").Status)
	require.Equal(t, StatusFail, findCheck(t, result, "jwt_secret_strength").Status)
	require.Equal(t, StatusWarn, findCheck(t, result, "token_ttl").Status)
	require.Equal(t, StatusWarn, findCheck(t, result, "cors_origins").Status)
	require.Equal(t, StatusWarn, findCheck(t, result, "rate_limit").Status)
}

func TestPostureServiceSecretThresholds(t *testing.T) {
	cases := map[string]CheckStatus{
		"short":                            StatusFail,
		"0123456789abcdef0123456789abcdef": StatusWarn,
		"0123456789abcdef0123456789abcdef0123456789abcdef": StatusPass,
	}
	for secret, want := range cases {
		result := NewPostureService(nil, Settings{JWTSecret: secret}).Run(context.Background())
		require.Equal(t, want, findCheck(t, result, "jwt_secret_strength").Status, secret)
		require.Equal(t, StatusWarn, findCheck(t, result, "admin_user_present").Status)
	}
}

func TestPostureServiceFlagsLongTTLAndWildcard(t *testing.T) {
	result := NewPostureService(nil, Settings{
		TokenTTL:       90 * 24 * time.Hour,
		AllowedOrigins: []string{"*"},
	}).Run(context.Background())

	require.Equal(t, StatusWarn, findCheck(t, result, "token_ttl").Status)
	require.Equal(t, StatusWarn, findCheck(t, result, "cors_origins").Status)
}
