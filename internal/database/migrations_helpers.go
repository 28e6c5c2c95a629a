package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/charlesng35/fileadmin/internal/models"
	"github.com/charlesng35/fileadmin/internal/permissions"
)

// seedUser creates the user when missing and attaches any of its roles it does not hold yet.
func seedUser(tx *gorm.DB, demo DemoUser, passwordHash string) error {
	var user models.User
	err := tx.Where("email = ?", demo.Email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{Name: demo.Name, Email: demo.Email, Password: passwordHash}
		err = tx.Create(&user).Error
	}
	if err != nil {
		return err
	}

	var roles []models.Role
	if err := tx.Where("name IN ? AND guard_name = ?", demo.Roles, permissions.Guard).Find(&roles).Error; err != nil {
		return err
	}
	if len(roles) != len(demo.Roles) {
		return errors.New("default roles are missing")
	}

	var existing []models.UserRole
	if err := tx.Where("user_id = ?", user.ID).Find(&existing).Error; err != nil {
		return err
	}
	held := make(map[string]struct{}, len(existing))
	for _, link := range existing {
		held[link.RoleID] = struct{}{}
	}

	for _, role := range roles {
		if _, ok := held[role.ID]; ok {
			continue
		}
		if err := tx.Create(&models.UserRole{UserID: user.ID, RoleID: role.ID}).Error; err != nil {
			return err
		}
	}
	return nil
}
