package models

// Role bundles permissions and is assigned to users.
type Role struct {
	BaseModel

	Name  string `gorm:"not null;size:125;uniqueIndex:idx_roles_name_guard" json:"name"`
	Guard string `gorm:"column:guard_name;not null;size:125;default:web;uniqueIndex:idx_roles_name_guard" json:"guard_name"`

	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions"`
	Users       []User       `gorm:"many2many:user_roles;" json:"users,omitempty"`
}

// PermissionNames flattens the loaded permission set.
func (r Role) PermissionNames() []string {
	names := make([]string, 0, len(r.Permissions))
	for _, perm := range r.Permissions {
		names = append(names, perm.Name)
	}
	return names
}
