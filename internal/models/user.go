package models

import (
	"time"
)

// User is an authenticated principal. Permissions always derive from Roles;
// there is no direct user to permission grant.
type User struct {
	BaseModel

	Name     string `gorm:"not null;size:255" json:"name"`
	Email    string `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Password string `gorm:"not null" json:"-"`

	Roles    []Role    `gorm:"many2many:user_roles;" json:"roles"`
	Sessions []Session `gorm:"foreignKey:UserID" json:"-"`
	Files    []File    `gorm:"foreignKey:UserID" json:"-"`

	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP     string     `json:"-"`
}

// RoleNames returns the names of the loaded roles.
func (u User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, role := range u.Roles {
		names = append(names, role.Name)
	}
	return names
}
