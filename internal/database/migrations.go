package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/fileadmin/internal/models"
	"github.com/charlesng35/fileadmin/internal/permissions"
	"github.com/charlesng35/fileadmin/pkg/crypto"
)

// SeedOption customises SeedData.
type SeedOption func(*seedConfig)

type seedConfig struct {
	demoUsers    bool
	demoPassword string
}

// WithDemoUsers seeds the demo accounts once, all sharing password.
func WithDemoUsers(password string) SeedOption {
	return func(cfg *seedConfig) {
		cfg.demoUsers = true
		cfg.demoPassword = password
	}
}

// DemoUser describes a seeded account and its roles.
type DemoUser struct {
	Name  string
	Email string
	Roles []string
}

// DemoUsers lists the accounts created by WithDemoUsers.
func DemoUsers() []DemoUser {
	return []DemoUser{
		{Name: "Admin User", Email: "admin@example.com", Roles: []string{permissions.RoleAdmin}},
		{Name: "Management User", Email: "management.user@example.com", Roles: []string{permissions.RoleManagementUser}},
		{Name: "Management File", Email: "management.file@example.com", Roles: []string{permissions.RoleManagementFile}},
		{Name: "Multi Role User 1", Email: "multi1@example.com", Roles: []string{permissions.RoleAdmin, permissions.RoleManagementUser}},
		{Name: "Multi Role User 2", Email: "multi2@example.com", Roles: []string{permissions.RoleAdmin, permissions.RoleManagementFile}},
		{Name: "Multi Role User 3", Email: "multi3@example.com", Roles: []string{permissions.RoleManagementUser, permissions.RoleManagementFile}},
		{Name: "Multi Role User 4", Email: "multi4@example.com", Roles: []string{permissions.RoleAdmin, permissions.RoleManagementUser, permissions.RoleManagementFile}},
	}
}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := models.SetupJoinTables(db); err != nil {
		return fmt.Errorf("setup join tables: %w", err)
	}

	return db.AutoMigrate(
		&models.Permission{},
		&models.Role{},
		&models.User{},
		&models.RolePermission{},
		&models.UserRole{},
		&models.Session{},
		&models.File{},
		&models.AuditLog{},
		&models.CacheEntry{},
		&models.SystemSetting{},
	)
}

// SeedData populates the permission catalog, the default roles and optionally the demo users.
func SeedData(db *gorm.DB, opts ...SeedOption) error {
	cfg := seedConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()

	if err := permissions.Sync(ctx, db); err != nil {
		return err
	}
	if err := permissions.SyncDefaultRoles(ctx, db); err != nil {
		return err
	}

	if !cfg.demoUsers {
		return nil
	}

	seeded, err := GetSystemSetting(ctx, db, DemoSeededSetting)
	if err != nil {
		return err
	}
	if seeded != "" {
		return nil
	}

	hash, err := crypto.HashPassword(cfg.demoPassword)
	if err != nil {
		return fmt.Errorf("hash demo password: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		for _, demo := range DemoUsers() {
			if err := seedUser(tx, demo, hash); err != nil {
				return fmt.Errorf("seed %s: %w", demo.Email, err)
			}
		}
		return UpsertSystemSetting(ctx, tx, DemoSeededSetting, "true")
	})
}
