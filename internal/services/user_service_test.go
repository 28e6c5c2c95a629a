package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/fileadmin/internal/auth"
	"github.com/charlesng35/fileadmin/internal/models"
	"github.com/charlesng35/fileadmin/internal/permissions"
	"github.com/charlesng35/fileadmin/pkg/crypto"
	apperrors "github.com/charlesng35/fileadmin/pkg/errors"
)

func TestUserServiceCreate(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	fileRole := svc.role(t, permissions.RoleManagementFile)

	user, err := svc.users.Create(ctx, CreateUserInput{
		Name:     "Jane",
		Email:    " Jane@Example.COM ",
		Password: "password123",
		RoleIDs:  []string{fileRole.ID},
	})
	require.NoError(t, err)
	require.Equal(t, "jane@example.com", user.Email)
	require.Equal(t, []string{permissions.RoleManagementFile}, user.RoleNames())
	require.NotEqual(t, "password123", user.Password)
	require.True(t, crypto.VerifyPassword(user.Password, "password123"))
	require.Nil(t, user.EmailVerifiedAt)

	bare, err := svc.users.Create(ctx, CreateUserInput{Name: "Bare", Email: "bare@example.com", Password: "password123"})
	require.NoError(t, err)
	require.Empty(t, bare.Roles)
	require.Empty(t, permissions.EffectivePermissions(bare))

	_, err = svc.users.Create(ctx, CreateUserInput{Name: "Dup", Email: "JANE@example.com", Password: "password123"})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, msgEmailTaken, appErr.Fields["email"])

	_, err = svc.users.Create(ctx, CreateUserInput{Name: "Ghost", Email: "ghost@example.com", Password: "password123", RoleIDs: []string{"missing"}})
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, msgUnknownRoles, appErr.Fields["roles"])

	var count int64
	require.NoError(t, svc.db.Model(&models.User{}).Where("email = ?", "ghost@example.com").Count(&count).Error)
	require.Zero(t, count)

	_, err = svc.users.Create(ctx, CreateUserInput{})
	require.ErrorAs(t, err, &appErr)
	require.Len(t, appErr.Fields, 3)
}

func TestUserServiceRegisterAssignsDefaultRole(t *testing.T) {
	svc := newTestServices(t)

	user, err := svc.users.Register(context.Background(), RegisterInput{
		Name:     "New User",
		Email:    "new@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	require.Equal(t, []string{permissions.DefaultRegistrationRole}, user.RoleNames())
	require.Equal(t, []string{permissions.ManageFiles}, permissions.EffectivePermissions(user))
	require.NotNil(t, user.EmailVerifiedAt)
}

func TestUserServiceUpdate(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	user := svc.createUser(t, "update@example.com", permissions.RoleManagementFile)
	originalHash := user.Password

	name := "Renamed"
	updated, err := svc.users.Update(ctx, user.ID, UpdateUserInput{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Name)
	require.Equal(t, originalHash, updated.Password, "password untouched when omitted")
	require.Equal(t, []string{permissions.RoleManagementFile}, updated.RoleNames(), "roles untouched when omitted")

	empty := ""
	updated, err = svc.users.Update(ctx, user.ID, UpdateUserInput{Password: &empty})
	require.NoError(t, err)
	require.Equal(t, originalHash, updated.Password)

	password := "new-password"
	updated, err = svc.users.Update(ctx, user.ID, UpdateUserInput{Password: &password})
	require.NoError(t, err)
	require.True(t, crypto.VerifyPassword(updated.Password, "new-password"))

	userRole := svc.role(t, permissions.RoleManagementUser)
	updated, err = svc.users.Update(ctx, user.ID, UpdateUserInput{RoleIDs: []string{userRole.ID}})
	require.NoError(t, err)
	require.Equal(t, []string{permissions.RoleManagementUser}, updated.RoleNames(), "roles replaced, not merged")

	updated, err = svc.users.SyncRoles(ctx, user.ID, nil)
	require.NoError(t, err)
	require.Empty(t, updated.Roles)

	other := svc.createUser(t, "other@example.com")
	taken := "OTHER@example.com"
	_, err = svc.users.Update(ctx, user.ID, UpdateUserInput{Email: &taken})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, msgEmailTaken, appErr.Fields["email"])

	same := other.Email
	_, err = svc.users.Update(ctx, other.ID, UpdateUserInput{Email: &same})
	require.NoError(t, err, "keeping one's own email is not a conflict")

	_, err = svc.users.Update(ctx, "missing", UpdateUserInput{Name: &name})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserServiceDeleteSelf(t *testing.T) {
	svc := newTestServices(t)

	admin := svc.createUser(t, "admin-self@example.com", permissions.RoleAdmin)

	err := svc.users.Delete(context.Background(), admin.ID, admin.ID)
	require.ErrorIs(t, err, ErrUserSelfDelete)

	_, err = svc.users.GetByID(context.Background(), admin.ID)
	require.NoError(t, err)
}

func TestUserServiceDeleteCascades(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	admin := svc.createUser(t, "admin-del@example.com", permissions.RoleAdmin)
	victim := svc.createUser(t, "victim@example.com", permissions.RoleManagementFile)

	token, _, err := svc.sessions.Issue(ctx, victim.ID, auth.SessionMetadata{})
	require.NoError(t, err)

	result, err := svc.files.Upload(ctx, victim, []UploadItem{pngItem("photo.png")})
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	stored := result.Files[0]

	exists, err := svc.store.Exists(ctx, stored.Path)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, svc.users.Delete(ctx, victim.ID, admin.ID))

	_, err = svc.users.GetByID(ctx, victim.ID)
	require.ErrorIs(t, err, ErrUserNotFound)

	for _, model := range []any{&models.UserRole{}, &models.Session{}, &models.File{}} {
		var count int64
		require.NoError(t, svc.db.Model(model).Where("user_id = ?", victim.ID).Count(&count).Error)
		require.Zero(t, count)
	}

	exists, err = svc.store.Exists(ctx, stored.Path)
	require.NoError(t, err)
	require.False(t, exists)

	_, err = svc.sessions.Resolve(ctx, token)
	require.ErrorIs(t, err, auth.ErrSessionNotFound)

	require.ErrorIs(t, svc.users.Delete(ctx, victim.ID, admin.ID), ErrUserNotFound)
}

func TestUserServiceListFilters(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	svc.createUser(t, "alice@example.com", permissions.RoleAdmin)
	svc.createUser(t, "bob@example.com", permissions.RoleManagementFile)
	svc.createUser(t, "carol@corp.test", permissions.RoleManagementFile, permissions.RoleManagementUser)

	users, total, err := svc.users.List(ctx, UserListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, users, 3)

	users, total, err = svc.users.List(ctx, UserListOptions{Search: "EXAMPLE.com"})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)

	users, total, err = svc.users.List(ctx, UserListOptions{Role: permissions.RoleManagementFile})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	for _, user := range users {
		require.Contains(t, user.RoleNames(), permissions.RoleManagementFile)
	}

	users, total, err = svc.users.List(ctx, UserListOptions{Role: permissions.RoleManagementFile, Search: "carol"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.True(t, strings.HasPrefix(users[0].Email, "carol"))

	roles, err := svc.users.ListAssignableRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 3)
}
