package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/fileadmin/internal/models"
	"github.com/charlesng35/fileadmin/internal/permissions"
	apperrors "github.com/charlesng35/fileadmin/pkg/errors"
)

func TestRoleServiceCreate(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	manageFiles := svc.permission(t, permissions.ManageFiles)

	role, err := svc.roles.Create(ctx, CreateRoleInput{Name: " editors ", PermissionIDs: []string{manageFiles.ID, manageFiles.ID}})
	require.NoError(t, err)
	require.Equal(t, "editors", role.Name)
	require.Equal(t, permissions.Guard, role.Guard)
	require.Equal(t, []string{permissions.ManageFiles}, role.PermissionNames())

	_, err = svc.roles.Create(ctx, CreateRoleInput{Name: "editors"})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.ErrValidation.Code, appErr.Code)
	require.Equal(t, msgRoleNameTaken, appErr.Fields["name"])

	_, err = svc.roles.Create(ctx, CreateRoleInput{Name: "Editors"})
	require.NoError(t, err, "names are case-sensitive")

	_, err = svc.roles.Create(ctx, CreateRoleInput{Name: "ghosts", PermissionIDs: []string{"missing"}})
	require.ErrorAs(t, err, &appErr)
	require.Contains(t, appErr.Fields, "permissions")

	var count int64
	require.NoError(t, svc.db.Model(&models.Role{}).Where("name = ?", "ghosts").Count(&count).Error)
	require.Zero(t, count)

	_, err = svc.roles.Create(ctx, CreateRoleInput{Name: "  "})
	require.ErrorAs(t, err, &appErr)
	require.Contains(t, appErr.Fields, "name")
}

func TestRoleServiceUpdateReplacesPermissions(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	roles := svc.permission(t, permissions.ManageRoles)
	users := svc.permission(t, permissions.ManageUsers)
	files := svc.permission(t, permissions.ManageFiles)

	role, err := svc.roles.Create(ctx, CreateRoleInput{Name: "auditors", PermissionIDs: []string{roles.ID, users.ID}})
	require.NoError(t, err)

	updated, err := svc.roles.Update(ctx, role.ID, UpdateRoleInput{Name: "auditors", PermissionIDs: []string{files.ID}})
	require.NoError(t, err)
	require.Equal(t, []string{permissions.ManageFiles}, updated.PermissionNames())

	renamed, err := svc.roles.Update(ctx, role.ID, UpdateRoleInput{Name: "reviewers"})
	require.NoError(t, err)
	require.Equal(t, "reviewers", renamed.Name)
	require.Equal(t, []string{permissions.ManageFiles}, renamed.PermissionNames(), "nil permission ids leave the set untouched")

	cleared, err := svc.roles.Update(ctx, role.ID, UpdateRoleInput{Name: "reviewers", PermissionIDs: []string{}})
	require.NoError(t, err)
	require.Empty(t, cleared.Permissions)

	_, err = svc.roles.Update(ctx, role.ID, UpdateRoleInput{Name: permissions.RoleAdmin})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, msgRoleNameTaken, appErr.Fields["name"])

	_, err = svc.roles.Update(ctx, "missing", UpdateRoleInput{Name: "x"})
	require.ErrorIs(t, err, ErrRoleNotFound)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRoleServiceSyncPermissionsIsFullReplacement(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	roles := svc.permission(t, permissions.ManageRoles)
	users := svc.permission(t, permissions.ManageUsers)

	role, err := svc.roles.Create(ctx, CreateRoleInput{Name: "ops", PermissionIDs: []string{roles.ID}})
	require.NoError(t, err)

	synced, err := svc.roles.SyncPermissions(ctx, role.ID, []string{users.ID})
	require.NoError(t, err)
	require.Equal(t, []string{permissions.ManageUsers}, synced.PermissionNames())

	_, err = svc.roles.SyncPermissions(ctx, role.ID, []string{users.ID, "missing"})
	require.Error(t, err)

	reloaded, err := svc.roles.Get(ctx, role.ID)
	require.NoError(t, err)
	require.Equal(t, []string{permissions.ManageUsers}, reloaded.PermissionNames(), "failed sync must not change the set")

	var links int64
	require.NoError(t, svc.db.Model(&models.RolePermission{}).Where("role_id = ?", role.ID).Count(&links).Error)
	require.EqualValues(t, 1, links)
}

func TestRoleServiceDeleteCascades(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	users := svc.permission(t, permissions.ManageUsers)
	role, err := svc.roles.Create(ctx, CreateRoleInput{Name: "r1", PermissionIDs: []string{users.ID}})
	require.NoError(t, err)

	u1 := svc.createUser(t, "u1@example.com")
	_, err = svc.users.SyncRoles(ctx, u1.ID, []string{role.ID})
	require.NoError(t, err)

	principal, err := svc.users.GetByID(ctx, u1.ID)
	require.NoError(t, err)
	require.True(t, permissions.Authorize(principal, permissions.ManageUsers).Allowed)

	require.NoError(t, svc.roles.Delete(ctx, role.ID))

	principal, err = svc.users.GetByID(ctx, u1.ID)
	require.NoError(t, err)
	require.Empty(t, principal.Roles)
	decision := permissions.Authorize(principal, permissions.ManageUsers)
	require.False(t, decision.Allowed)
	require.Equal(t, permissions.ReasonMissingPermission, decision.Reason)

	var links int64
	require.NoError(t, svc.db.Model(&models.RolePermission{}).Where("role_id = ?", role.ID).Count(&links).Error)
	require.Zero(t, links)
	require.NoError(t, svc.db.Model(&models.UserRole{}).Where("role_id = ?", role.ID).Count(&links).Error)
	require.Zero(t, links)

	var perms int64
	require.NoError(t, svc.db.Model(&models.Permission{}).Count(&perms).Error)
	require.EqualValues(t, 3, perms, "permissions survive role deletion")

	require.ErrorIs(t, svc.roles.Delete(ctx, role.ID), ErrRoleNotFound)
}

func TestRoleServiceDeleteProtected(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	for _, name := range permissions.ProtectedRoles() {
		role := svc.role(t, name)
		err := svc.roles.Delete(ctx, role.ID)
		require.ErrorIs(t, err, ErrRoleProtected)

		var count int64
		require.NoError(t, svc.db.Model(&models.Role{}).Where("id = ?", role.ID).Count(&count).Error)
		require.EqualValues(t, 1, count)
	}

	var failures int64
	require.NoError(t, svc.db.Model(&models.AuditLog{}).
		Where("action = ? AND result = ?", "role.delete", auditFailure).
		Count(&failures).Error)
	require.EqualValues(t, 3, failures)
}

func TestRoleServiceUpdateProtectedKeepsName(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	for _, name := range permissions.ProtectedRoles() {
		role := svc.role(t, name)
		_, err := svc.roles.Update(ctx, role.ID, UpdateRoleInput{Name: "ex-" + name})
		require.ErrorIs(t, err, ErrRoleRenameProtected)
		require.Equal(t, name, svc.role(t, name).Name)
		require.ErrorIs(t, svc.roles.Delete(ctx, role.ID), ErrRoleProtected)
	}

	admin := svc.role(t, permissions.RoleAdmin)
	manageFiles := svc.permission(t, permissions.ManageFiles)
	updated, err := svc.roles.Update(ctx, admin.ID, UpdateRoleInput{
		Name:          permissions.RoleAdmin,
		PermissionIDs: []string{manageFiles.ID},
	})
	require.NoError(t, err)
	require.Equal(t, []string{permissions.ManageFiles}, updated.PermissionNames())

	user, err := svc.users.Register(ctx, RegisterInput{Name: "New", Email: "new@example.com", Password: "password123"})
	require.NoError(t, err)
	require.Len(t, user.Roles, 1)
	require.Equal(t, permissions.DefaultRegistrationRole, user.Roles[0].Name)
}

func TestRoleServiceListAndPermissions(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.roles.Create(ctx, CreateRoleInput{Name: "support-desk"})
	require.NoError(t, err)

	all, total, err := svc.roles.List(ctx, RoleListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 4, total)
	require.Len(t, all, 4)

	found, total, err := svc.roles.List(ctx, RoleListOptions{Search: "MANAGEMENT"})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	for _, role := range found {
		require.Contains(t, role.Name, "management")
		require.NotEmpty(t, role.Permissions)
	}

	page, total, err := svc.roles.List(ctx, RoleListOptions{PageRequest: PageRequest{Page: 2, PerPage: 3}})
	require.NoError(t, err)
	require.EqualValues(t, 4, total)
	require.Len(t, page, 1)

	perms, err := svc.roles.ListPermissions(ctx)
	require.NoError(t, err)
	require.Len(t, perms, 3)
	require.Equal(t, permissions.ManageFiles, perms[0].Name)
}
