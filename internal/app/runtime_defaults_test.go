package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/fileadmin/internal/database"
	"github.com/charlesng35/fileadmin/internal/database/testutil"
)

func TestApplyRuntimeDefaultsGeneratesMissingSecrets(t *testing.T) {
	cfg := &Config{}

	generated, err := ApplyRuntimeDefaults(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("ApplyRuntimeDefaults returned error: %v", err)
	}

	if cfg.Auth.JWT.Secret == "" {
		t.Fatal("expected JWT secret to be generated")
	}
	if !generated["auth.jwt.secret"] {
		t.Fatalf("expected generated map to include jwt secret: %#v", generated)
	}
}

func TestApplyRuntimeDefaultsPersistsSecret(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	ctx := context.Background()

	first := &Config{}
	generated, err := ApplyRuntimeDefaults(ctx, first, db)
	require.NoError(t, err)
	require.True(t, generated["auth.jwt.secret"])

	stored, err := database.GetSystemSetting(ctx, db, database.JWTSecretSetting)
	require.NoError(t, err)
	require.Equal(t, first.Auth.JWT.Secret, stored)

	second := &Config{}
	generated, err = ApplyRuntimeDefaults(ctx, second, db)
	require.NoError(t, err)
	require.Empty(t, generated)
	require.Equal(t, first.Auth.JWT.Secret, second.Auth.JWT.Secret)
}

func TestApplyRuntimeDefaultsPreservesExistingSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Auth.JWT.Secret = strings.Repeat("a", 32)

	generated, err := ApplyRuntimeDefaults(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("ApplyRuntimeDefaults returned error: %v", err)
	}

	if len(generated) != 0 {
		t.Fatalf("expected no keys generated, got %#v", generated)
	}
	if cfg.Auth.JWT.Secret != strings.Repeat("a", 32) {
		t.Fatal("expected configured secret to be kept")
	}
}

func TestApplyRuntimeDefaultsNilConfig(t *testing.T) {
	_, err := ApplyRuntimeDefaults(context.Background(), nil, nil)
	if err == nil || !strings.Contains(err.Error(), "config is nil") {
		t.Fatalf("expected nil config error, got %v", err)
	}
}
