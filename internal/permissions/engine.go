package permissions

import (
	"sort"

	"github.com/charlesng35/fileadmin/internal/models"
	appErrors "github.com/charlesng35/fileadmin/pkg/errors"
)

// Reason explains why a decision denied access.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonUnauthenticated   Reason = "unauthenticated"
	ReasonMissingPermission Reason = "missing_permission"
	ReasonNotOwner          Reason = "not_owner"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed    bool
	Reason     Reason
	Permission string
}

// Err maps a denied decision to the matching application error; it returns nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonUnauthenticated:
		return appErrors.ErrUnauthorized
	case ReasonNotOwner:
		return appErrors.ErrNotOwner
	default:
		return appErrors.ErrMissingPermission
	}
}

// Owned is implemented by resources that belong to a single user.
type Owned interface {
	OwnerID() string
}

func allow(perm string) Decision {
	return Decision{Allowed: true, Permission: perm}
}

func deny(perm string, reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason, Permission: perm}
}

// EffectivePermissions returns the sorted union of permission names across the user's roles.
// The user must have Roles.Permissions loaded.
func EffectivePermissions(user *models.User) []string {
	set := permissionSet(user)
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func permissionSet(user *models.User) map[string]struct{} {
	set := make(map[string]struct{})
	if user == nil {
		return set
	}
	for _, role := range user.Roles {
		for _, perm := range role.Permissions {
			set[perm.Name] = struct{}{}
		}
	}
	return set
}

// HasPermission reports whether any of the user's roles grants perm.
func HasPermission(user *models.User, perm string) bool {
	if user == nil {
		return false
	}
	for _, role := range user.Roles {
		for _, p := range role.Permissions {
			if p.Name == perm {
				return true
			}
		}
	}
	return false
}

// HasRole reports whether the user holds a role named name.
func HasRole(user *models.User, name string) bool {
	if user == nil {
		return false
	}
	for _, role := range user.Roles {
		if role.Name == name {
			return true
		}
	}
	return false
}

// Authorize decides whether user may exercise perm independent of any resource.
func Authorize(user *models.User, perm string) Decision {
	if user == nil || user.ID == "" {
		return deny(perm, ReasonUnauthenticated)
	}
	if !HasPermission(user, perm) {
		return deny(perm, ReasonMissingPermission)
	}
	return allow(perm)
}

// AuthorizeResource decides whether user may exercise perm on resource. Holders of
// OverrideRole pass the ownership check; everyone else must own the resource.
func AuthorizeResource(user *models.User, perm string, resource Owned) Decision {
	decision := Authorize(user, perm)
	if !decision.Allowed || resource == nil {
		return decision
	}
	if HasRole(user, OverrideRole) {
		return decision
	}
	if resource.OwnerID() != user.ID {
		return deny(perm, ReasonNotOwner)
	}
	return decision
}

// Scope restricts list queries over owned resources.
type Scope struct {
	// All is true when the principal may see every owner's resources.
	All bool
	// OwnerID limits results to this owner when All is false.
	OwnerID string
}

// OwnershipScope returns the list filter applied to owned resources for user.
func OwnershipScope(user *models.User) Scope {
	if HasRole(user, OverrideRole) {
		return Scope{All: true}
	}
	if user == nil {
		return Scope{}
	}
	return Scope{OwnerID: user.ID}
}
