package app

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/fileadmin/internal/database"
	"github.com/charlesng35/fileadmin/pkg/crypto"
)

const jwtSecretBytes = 48

// ApplyRuntimeDefaults ensures critical secrets are populated even when no configuration file is supplied.
// A missing JWT secret is loaded from, or generated into, the system settings table so tokens
// survive restarts. Without a database the secret is generated for this process only.
// It returns a map describing which keys were generated so callers can log the event without exposing values.
func ApplyRuntimeDefaults(ctx context.Context, cfg *Config, db *gorm.DB) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		created := false
		generate := func() (string, error) {
			created = true
			return crypto.GenerateToken(jwtSecretBytes)
		}

		var (
			secret string
			err    error
		)
		if db != nil {
			secret, err = database.EnsureSecret(ctx, db, database.JWTSecretSetting, generate)
		} else {
			secret, err = generate()
		}
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}

		cfg.Auth.JWT.Secret = secret
		if created {
			generated["auth.jwt.secret"] = true
		}
	}

	return generated, nil
}
