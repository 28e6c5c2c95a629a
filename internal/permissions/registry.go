package permissions

import (
	"sort"
	"strings"

	"github.com/charlesng35/fileadmin/internal/models"
)

// Permission names known to the system.
const (
	ManageRoles = "manage-roles"
	ManageUsers = "manage-users"
	ManageFiles = "manage-files"
)

// Role names seeded at setup.
const (
	RoleAdmin          = "admin"
	RoleManagementUser = "management-user"
	RoleManagementFile = "management-file"

	// OverrideRole bypasses ownership checks on owned resources.
	OverrideRole = RoleAdmin
	// DefaultRegistrationRole is assigned to self-registered users.
	DefaultRegistrationRole = RoleManagementFile
)

// Guard is the namespace shared by every role and permission.
const Guard = models.DefaultGuard

// Permission describes a registered capability.
type Permission struct {
	Name        string
	Description string
}

// RoleDefinition describes a role seeded at setup together with its initial permissions.
type RoleDefinition struct {
	Name        string
	Permissions []string
}

var catalog = map[string]Permission{
	ManageRoles: {Name: ManageRoles, Description: "Create, update and delete roles"},
	ManageUsers: {Name: ManageUsers, Description: "Create, update and delete users"},
	ManageFiles: {Name: ManageFiles, Description: "Upload, view and delete files"},
}

var defaultRoles = []RoleDefinition{
	{Name: RoleAdmin, Permissions: []string{ManageRoles, ManageUsers, ManageFiles}},
	{Name: RoleManagementUser, Permissions: []string{ManageRoles}},
	{Name: RoleManagementFile, Permissions: []string{ManageFiles}},
}

var protectedRoles = map[string]struct{}{
	RoleAdmin:          {},
	RoleManagementUser: {},
	RoleManagementFile: {},
}

// Get returns the definition for name when registered.
func Get(name string) (Permission, bool) {
	perm, ok := catalog[strings.TrimSpace(name)]
	return perm, ok
}

// All returns every registered permission ordered by name.
func All() []Permission {
	out := make([]Permission, 0, len(catalog))
	for _, perm := range catalog {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DefaultRoles returns the roles created at setup.
func DefaultRoles() []RoleDefinition {
	out := make([]RoleDefinition, len(defaultRoles))
	for i, def := range defaultRoles {
		out[i] = RoleDefinition{Name: def.Name, Permissions: append([]string(nil), def.Permissions...)}
	}
	return out
}

// IsProtectedRole reports whether a role with this name can never be deleted or renamed.
func IsProtectedRole(name string) bool {
	_, ok := protectedRoles[name]
	return ok
}

// ProtectedRoles lists the protected role names ordered by name.
func ProtectedRoles() []string {
	out := make([]string, 0, len(protectedRoles))
	for name := range protectedRoles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
