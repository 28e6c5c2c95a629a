package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/fileadmin/internal/auth"
	"github.com/charlesng35/fileadmin/internal/database/testutil"
	"github.com/charlesng35/fileadmin/internal/models"
	"github.com/charlesng35/fileadmin/internal/permissions"
	"github.com/charlesng35/fileadmin/internal/storage"
)

type testServices struct {
	db       *gorm.DB
	audit    *AuditService
	roles    *RoleService
	users    *UserService
	files    *FileService
	sessions *auth.SessionService
	auth     *AuthService
	store    *storage.LocalStorage
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	jwtSvc, err := auth.NewJWTService(auth.JWTConfig{Secret: "services-test-signing-key", TokenTTL: time.Hour})
	require.NoError(t, err)
	sessions, err := auth.NewSessionService(db, jwtSvc, auth.SessionConfig{})
	require.NoError(t, err)

	audit, err := NewAuditService(db)
	require.NoError(t, err)
	roles, err := NewRoleService(db, audit)
	require.NoError(t, err)
	users, err := NewUserService(db, audit, WithUserStorage(store), WithSessionInvalidator(sessions))
	require.NoError(t, err)
	files, err := NewFileService(db, store, audit, UploadPolicy{})
	require.NoError(t, err)
	authSvc, err := NewAuthService(db, users, sessions, audit)
	require.NoError(t, err)

	return &testServices{
		db:       db,
		audit:    audit,
		roles:    roles,
		users:    users,
		files:    files,
		sessions: sessions,
		auth:     authSvc,
		store:    store,
	}
}

func (s *testServices) role(t *testing.T, name string) models.Role {
	t.Helper()
	var role models.Role
	require.NoError(t, s.db.Preload("Permissions").Where("name = ? AND guard_name = ?", name, permissions.Guard).Take(&role).Error)
	return role
}

func (s *testServices) permission(t *testing.T, name string) models.Permission {
	t.Helper()
	var perm models.Permission
	require.NoError(t, s.db.Where("name = ? AND guard_name = ?", name, permissions.Guard).Take(&perm).Error)
	return perm
}

// createUser provisions a user holding the named roles and returns the loaded principal.
func (s *testServices) createUser(t *testing.T, email string, roleNames ...string) *models.User {
	t.Helper()

	ids := make([]string, 0, len(roleNames))
	for _, name := range roleNames {
		ids = append(ids, s.role(t, name).ID)
	}

	user, err := s.users.Create(context.Background(), CreateUserInput{
		Name:     email,
		Email:    email,
		Password: "password123",
		RoleIDs:  ids,
	})
	require.NoError(t, err)
	return user
}
