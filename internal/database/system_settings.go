package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/fileadmin/internal/models"
)

// Setting keys persisted in the system_settings table.
const (
	JWTSecretSetting  = "auth.jwt.secret"
	DemoSeededSetting = "setup.demo_users_seeded"
)

// GetSystemSetting retrieves a system setting by key. Returns an empty string when not found.
func GetSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("system settings: db is nil")
	}

	var setting models.SystemSetting
	err := db.WithContext(ctx).Where(&models.SystemSetting{Key: key}).Take(&setting).Error
	if err == nil {
		return setting.Value, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return "", nil
	}
	return "", fmt.Errorf("system settings: get %q: %w", key, err)
}

// UpsertSystemSetting stores or updates a system setting value.
func UpsertSystemSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	if db == nil {
		return fmt.Errorf("system settings: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("system settings: key is required")
	}

	record := models.SystemSetting{
		Key:   key,
		Value: value,
	}

	if err := db.WithContext(ctx).
		Where(&models.SystemSetting{Key: key}).
		Assign(map[string]any{"value": value}).
		FirstOrCreate(&record).Error; err != nil {
		return fmt.Errorf("system settings: upsert %q: %w", key, err)
	}

	return nil
}

// EnsureSecret returns the stored value for key, generating and persisting one
// when nothing is stored yet. The first writer wins across restarts.
func EnsureSecret(ctx context.Context, db *gorm.DB, key string, generate func() (string, error)) (string, error) {
	if generate == nil {
		return "", fmt.Errorf("system settings: generator is required")
	}

	current, err := GetSystemSetting(ctx, db, key)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(current) != "" {
		return current, nil
	}

	value, err := generate()
	if err != nil {
		return "", fmt.Errorf("system settings: generate %q: %w", key, err)
	}
	if err := UpsertSystemSetting(ctx, db, key, value); err != nil {
		return "", err
	}
	return value, nil
}
