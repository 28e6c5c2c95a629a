package models

// DefaultGuard is the single namespace shared by every role and permission.
const DefaultGuard = "web"

// Permission is an atomic named capability. Rows are written by the seeder only.
type Permission struct {
	BaseModel

	Name        string `gorm:"not null;size:125;uniqueIndex:idx_permissions_name_guard" json:"name"`
	Guard       string `gorm:"column:guard_name;not null;size:125;default:web;uniqueIndex:idx_permissions_name_guard" json:"guard_name"`
	Description string `json:"description,omitempty"`

	Roles []Role `gorm:"many2many:role_permissions;" json:"roles,omitempty"`
}
