package models

import (
	"time"

	"gorm.io/gorm"
)

// RolePermission is the explicit membership row linking a role to a permission.
type RolePermission struct {
	RoleID       string `gorm:"primaryKey;type:uuid"`
	PermissionID string `gorm:"primaryKey;type:uuid;index"`
	CreatedAt    time.Time
}

// UserRole is the explicit membership row linking a user to a role.
type UserRole struct {
	UserID    string `gorm:"primaryKey;type:uuid"`
	RoleID    string `gorm:"primaryKey;type:uuid;index"`
	CreatedAt time.Time
}

// SetupJoinTables registers the explicit membership models for every many2many
// relation. It must run before AutoMigrate.
func SetupJoinTables(db *gorm.DB) error {
	joins := []struct {
		model any
		field string
		join  any
	}{
		{&Role{}, "Permissions", &RolePermission{}},
		{&Permission{}, "Roles", &RolePermission{}},
		{&User{}, "Roles", &UserRole{}},
		{&Role{}, "Users", &UserRole{}},
	}
	for _, j := range joins {
		if err := db.SetupJoinTable(j.model, j.field, j.join); err != nil {
			return err
		}
	}
	return nil
}
