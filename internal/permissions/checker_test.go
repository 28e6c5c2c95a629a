package permissions

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/charlesng35/fileadmin/internal/models"
)

func TestSyncIsIdempotent(t *testing.T) {
	db := setupPermissionTestDB(t)

	require.NoError(t, Sync(context.Background(), db))
	require.NoError(t, SyncDefaultRoles(context.Background(), db))

	var permCount, roleCount, linkCount int64
	require.NoError(t, db.Model(&models.Permission{}).Count(&permCount).Error)
	require.NoError(t, db.Model(&models.Role{}).Count(&roleCount).Error)
	require.NoError(t, db.Model(&models.RolePermission{}).Count(&linkCount).Error)
	require.EqualValues(t, 3, permCount)
	require.EqualValues(t, 3, roleCount)
	require.EqualValues(t, 5, linkCount)

	var admin models.Role
	require.NoError(t, db.Preload("Permissions").Take(&admin, "name = ?", RoleAdmin).Error)
	require.ElementsMatch(t, []string{ManageRoles, ManageUsers, ManageFiles}, admin.PermissionNames())
}

func TestSyncDefaultRolesKeepsCustomisedPermissions(t *testing.T) {
	db := setupPermissionTestDB(t)

	var role models.Role
	require.NoError(t, db.Take(&role, "name = ?", RoleManagementUser).Error)
	require.NoError(t, db.Where("role_id = ?", role.ID).Delete(&models.RolePermission{}).Error)

	require.NoError(t, SyncDefaultRoles(context.Background(), db))

	var count int64
	require.NoError(t, db.Model(&models.RolePermission{}).Where("role_id = ?", role.ID).Count(&count).Error)
	require.Zero(t, count)
}

func TestCheckerLoadsRolePermissions(t *testing.T) {
	db := setupPermissionTestDB(t)

	user := createUserWithRoles(t, db, "files@example.com", RoleManagementFile)

	checker, err := NewChecker(db)
	require.NoError(t, err)

	principal, err := checker.LoadPrincipal(context.Background(), user.ID)
	require.NoError(t, err)
	require.True(t, Authorize(principal, ManageFiles).Allowed)
	require.Equal(t, ReasonMissingPermission, Authorize(principal, ManageRoles).Reason)
	require.Equal(t, []string{ManageFiles}, EffectivePermissions(principal))
}

func TestCheckerMissingUser(t *testing.T) {
	db := setupPermissionTestDB(t)

	checker, err := NewChecker(db)
	require.NoError(t, err)

	_, err = checker.LoadPrincipal(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = checker.LoadPrincipal(context.Background(), "  ")
	require.Error(t, err)
}

func TestCheckerObservesRoleRemovalImmediately(t *testing.T) {
	db := setupPermissionTestDB(t)
	user := createUserWithRoles(t, db, "user@example.com", RoleManagementUser)

	checker, err := NewChecker(db)
	require.NoError(t, err)

	principal, err := checker.LoadPrincipal(context.Background(), user.ID)
	require.NoError(t, err)
	require.True(t, Authorize(principal, ManageRoles).Allowed)

	require.NoError(t, db.Where("user_id = ?", user.ID).Delete(&models.UserRole{}).Error)

	principal, err = checker.LoadPrincipal(context.Background(), user.ID)
	require.NoError(t, err)
	require.False(t, Authorize(principal, ManageRoles).Allowed)
}

func TestCheckerPrincipalOwnership(t *testing.T) {
	db := setupPermissionTestDB(t)
	owner := createUserWithRoles(t, db, "owner@example.com", RoleManagementFile)
	admin := createUserWithRoles(t, db, "root@example.com", RoleAdmin)

	checker, err := NewChecker(db)
	require.NoError(t, err)

	foreign := models.File{UserID: "someone-else"}

	principal, err := checker.LoadPrincipal(context.Background(), owner.ID)
	require.NoError(t, err)
	require.Equal(t, ReasonNotOwner, AuthorizeResource(principal, ManageFiles, foreign).Reason)

	principal, err = checker.LoadPrincipal(context.Background(), admin.ID)
	require.NoError(t, err)
	require.True(t, AuthorizeResource(principal, ManageFiles, foreign).Allowed)
}

func TestNewCheckerRequiresDB(t *testing.T) {
	_, err := NewChecker(nil)
	require.Error(t, err)
}

func setupPermissionTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, models.SetupJoinTables(db))
	require.NoError(t, db.AutoMigrate(
		&models.Permission{},
		&models.Role{},
		&models.User{},
		&models.RolePermission{},
		&models.UserRole{},
	))
	require.NoError(t, Sync(context.Background(), db))
	require.NoError(t, SyncDefaultRoles(context.Background(), db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func createUserWithRoles(t *testing.T, db *gorm.DB, email string, roleNames ...string) *models.User {
	t.Helper()

	user := &models.User{Name: email, Email: email, Password: "hashed"}
	require.NoError(t, db.Create(user).Error)

	var roles []models.Role
	require.NoError(t, db.Where("name IN ?", roleNames).Find(&roles).Error)
	require.Len(t, roles, len(roleNames))
	for _, r := range roles {
		require.NoError(t, db.Create(&models.UserRole{UserID: user.ID, RoleID: r.ID}).Error)
	}
	return user
}
