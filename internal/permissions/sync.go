package permissions

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/fileadmin/internal/models"
)

// Sync persists registered permissions to the backing database.
func Sync(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("permission: db is required")
	}
	ctx = ensureContext(ctx)

	tx := db.WithContext(ctx)
	for _, perm := range All() {
		record := models.Permission{
			Name:        perm.Name,
			Guard:       Guard,
			Description: perm.Description,
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}, {Name: "guard_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"description", "updated_at"}),
		}).Create(&record).Error; err != nil {
			return fmt.Errorf("permission: sync %s: %w", perm.Name, err)
		}
	}

	return nil
}

// SyncDefaultRoles creates any missing default role with its seed permissions.
// Roles that already exist keep whatever permissions an administrator gave them.
func SyncDefaultRoles(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("permission: db is required")
	}
	ctx = ensureContext(ctx)

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, def := range DefaultRoles() {
			var existing models.Role
			err := tx.Where("name = ? AND guard_name = ?", def.Name, Guard).Take(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("permission: load role %s: %w", def.Name, err)
			}

			role := models.Role{Name: def.Name, Guard: Guard}
			if err := tx.Create(&role).Error; err != nil {
				return fmt.Errorf("permission: create role %s: %w", def.Name, err)
			}

			var perms []models.Permission
			if err := tx.Where("name IN ? AND guard_name = ?", def.Permissions, Guard).Find(&perms).Error; err != nil {
				return fmt.Errorf("permission: load permissions for %s: %w", def.Name, err)
			}
			if len(perms) != len(def.Permissions) {
				return fmt.Errorf("permission: role %s references unsynced permissions", def.Name)
			}

			links := make([]models.RolePermission, 0, len(perms))
			for _, perm := range perms {
				links = append(links, models.RolePermission{RoleID: role.ID, PermissionID: perm.ID})
			}
			if err := tx.Create(&links).Error; err != nil {
				return fmt.Errorf("permission: attach permissions to %s: %w", def.Name, err)
			}
		}
		return nil
	})
}
