package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/fileadmin/internal/database"
	"github.com/charlesng35/fileadmin/internal/models"
	"github.com/charlesng35/fileadmin/internal/permissions"
	"github.com/charlesng35/fileadmin/internal/storage"
	"github.com/charlesng35/fileadmin/pkg/crypto"
	apperrors "github.com/charlesng35/fileadmin/pkg/errors"
	"github.com/charlesng35/fileadmin/pkg/metrics"
)

// CreateUserInput describes the fields accepted when creating a user.
type CreateUserInput struct {
	Name     string
	Email    string
	Password string
	// RoleIDs lists the roles to assign; nil or empty assigns none.
	RoleIDs []string
}

// RegisterInput describes a self-registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// UpdateUserInput enumerates mutable user attributes. Nil fields are left
// unchanged; an empty Password keeps the current hash.
type UpdateUserInput struct {
	Name     *string
	Email    *string
	Password *string
	RoleIDs  []string
	// ReplaceRoles applies RoleIDs even when it is empty.
	ReplaceRoles bool
}

// UserListOptions controls filtering and pagination for user listing.
type UserListOptions struct {
	PageRequest
	Search string
	Role   string
}

// SessionInvalidator drops cached state for sessions removed outside the session manager.
type SessionInvalidator interface {
	Forget(ctx context.Context, sessionIDs ...string)
}

// UserServiceOption customises a UserService.
type UserServiceOption func(*UserService)

// WithUserStorage lets Delete remove the stored bytes of the user's files.
func WithUserStorage(store storage.Storage) UserServiceOption {
	return func(s *UserService) {
		s.storage = store
	}
}

// WithSessionInvalidator lets Delete evict cached sessions of the removed user.
func WithSessionInvalidator(sessions SessionInvalidator) UserServiceOption {
	return func(s *UserService) {
		s.sessions = sessions
	}
}

// UserService manages principals and their role assignments.
type UserService struct {
	db           *gorm.DB
	auditService *AuditService
	storage      storage.Storage
	sessions     SessionInvalidator
	now          func() time.Time
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, auditService *AuditService, opts ...UserServiceOption) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	svc := &UserService{
		db:           db,
		auditService: auditService,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create provisions a user with the explicitly requested roles.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.create(ctx, input.Name, input.Email, input.Password, nil, func(tx *gorm.DB) ([]models.Role, error) {
		return resolveRoles(tx, input.RoleIDs)
	})
	if err != nil {
		return nil, err
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "user.create",
		Resource: user.ID,
		Result:   auditSuccess,
		Metadata: map[string]any{
			"email": user.Email,
			"roles": user.RoleNames(),
		},
	})

	return user, nil
}

// Register provisions a self-registered user holding exactly the default registration role.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	verifiedAt := s.now()
	user, err := s.create(ctx, input.Name, input.Email, input.Password, &verifiedAt, func(tx *gorm.DB) ([]models.Role, error) {
		var role models.Role
		err := tx.Where("name = ? AND guard_name = ?", permissions.DefaultRegistrationRole, permissions.Guard).
			Take(&role).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user service: default role %q has not been seeded", permissions.DefaultRegistrationRole)
		}
		if err != nil {
			return nil, fmt.Errorf("user service: load default role: %w", err)
		}
		return []models.Role{role}, nil
	})
	if err != nil {
		return nil, err
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &user.ID,
		Email:    user.Email,
		Action:   "user.register",
		Resource: user.ID,
		Result:   auditSuccess,
	})

	return user, nil
}

func (s *UserService) create(ctx context.Context, name, email, password string, verifiedAt *time.Time, roles func(tx *gorm.DB) ([]models.Role, error)) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = normaliseEmail(email)

	fields := map[string]string{}
	if name == "" {
		fields["name"] = "The name field is required."
	}
	if email == "" {
		fields["email"] = "The email field is required."
	}
	if password == "" {
		fields["password"] = "The password field is required."
	}
	if len(fields) > 0 {
		return nil, apperrors.NewValidationFields(fields)
	}

	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	var created *models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureEmailAvailable(tx, email, ""); err != nil {
			return err
		}

		assigned, err := roles(tx)
		if err != nil {
			return err
		}

		user := &models.User{
			Name:            name,
			Email:           email,
			Password:        hashed,
			EmailVerifiedAt: verifiedAt,
		}
		if err := tx.Create(user).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return apperrors.NewValidation("email", msgEmailTaken)
			}
			return fmt.Errorf("user service: create user: %w", err)
		}

		if err := replaceUserRoles(tx, user.ID, assigned); err != nil {
			return err
		}

		created, err = loadUser(tx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// GetByID loads a user with roles and their permissions.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	return loadUser(s.db.WithContext(ensureContext(ctx)), id)
}

// List retrieves users matching the supplied filters with pagination.
func (s *UserService) List(ctx context.Context, opts UserListOptions) ([]models.User, int64, error) {
	ctx = ensureContext(ctx)
	_, perPage := opts.Normalise()

	query := s.db.WithContext(ctx).Model(&models.User{})
	if search := strings.TrimSpace(opts.Search); search != "" {
		pattern := likePattern(search)
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern)
	}
	if role := strings.TrimSpace(opts.Role); role != "" {
		holders := s.db.WithContext(ctx).
			Table("user_roles").
			Select("user_roles.user_id").
			Joins("JOIN roles ON roles.id = user_roles.role_id").
			Where("roles.name = ? AND roles.guard_name = ?", role, permissions.Guard)
		query = query.Where("id IN (?)", holders)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count users: %w", err)
	}

	var users []models.User
	if err := query.
		Preload("Roles").
		Order("created_at DESC").
		Offset(opts.offset()).
		Limit(perPage).
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: list users: %w", err)
	}

	return users, total, nil
}

// Update persists mutable attributes for an existing user.
func (s *UserService) Update(ctx context.Context, id string, input UpdateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	updates := map[string]any{}
	changed := []string{}

	var updated *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := loadUser(tx, id)
		if err != nil {
			return err
		}

		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return apperrors.NewValidation("name", "The name field is required.")
			}
			if name != user.Name {
				updates["name"] = name
				changed = append(changed, "name")
			}
		}
		if input.Email != nil {
			email := normaliseEmail(*input.Email)
			if email == "" {
				return apperrors.NewValidation("email", "The email field is required.")
			}
			if email != user.Email {
				if err := ensureEmailAvailable(tx, email, user.ID); err != nil {
					return err
				}
				updates["email"] = email
				changed = append(changed, "email")
			}
		}
		if input.Password != nil && *input.Password != "" {
			hashed, err := crypto.HashPassword(*input.Password)
			if err != nil {
				return fmt.Errorf("user service: hash password: %w", err)
			}
			updates["password"] = hashed
			changed = append(changed, "password")
		}

		if len(updates) > 0 {
			if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
				if database.IsUniqueViolation(err) {
					return apperrors.NewValidation("email", msgEmailTaken)
				}
				return fmt.Errorf("user service: update user: %w", err)
			}
		}

		if input.RoleIDs != nil || input.ReplaceRoles {
			roles, err := resolveRoles(tx, input.RoleIDs)
			if err != nil {
				return err
			}
			if err := replaceUserRoles(tx, user.ID, roles); err != nil {
				return err
			}
			changed = append(changed, "roles")
		}

		updated, err = loadUser(tx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "user.update",
		Resource: updated.ID,
		Result:   auditSuccess,
		Metadata: map[string]any{
			"changed": changed,
			"roles":   updated.RoleNames(),
		},
	})

	return updated, nil
}

// SyncRoles replaces the user's role set with exactly roleIDs.
func (s *UserService) SyncRoles(ctx context.Context, userID string, roleIDs []string) (*models.User, error) {
	return s.Update(ctx, userID, UpdateUserInput{RoleIDs: roleIDs, ReplaceRoles: true})
}

// Delete removes a user together with role links, sessions and owned file records.
// Stored file bytes are removed after the transaction commits. A user cannot
// delete their own account.
func (s *UserService) Delete(ctx context.Context, id, actingID string) error {
	ctx = ensureContext(ctx)

	id = strings.TrimSpace(id)
	if id != "" && id == strings.TrimSpace(actingID) {
		recordAudit(s.auditService, ctx, AuditEntry{
			Action:   "user.delete",
			Resource: id,
			Result:   auditFailure,
			Metadata: map[string]any{"reason": "self_delete"},
		})
		return ErrUserSelfDelete
	}

	var (
		user          models.User
		sessionIDs    []string
		activeRemoved int64
		files         []models.File
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Take(&user, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("user service: load user: %w", err)
		}

		if err := tx.Model(&models.Session{}).Where("user_id = ?", user.ID).Pluck("id", &sessionIDs).Error; err != nil {
			return fmt.Errorf("user service: list sessions: %w", err)
		}
		if err := tx.Model(&models.Session{}).
			Where("user_id = ? AND revoked_at IS NULL AND expires_at >= ?", user.ID, s.now()).
			Count(&activeRemoved).Error; err != nil {
			return fmt.Errorf("user service: count sessions: %w", err)
		}
		if err := tx.Where("user_id = ?", user.ID).Find(&files).Error; err != nil {
			return fmt.Errorf("user service: list files: %w", err)
		}

		if err := tx.Where("user_id = ?", user.ID).Delete(&models.UserRole{}).Error; err != nil {
			return fmt.Errorf("user service: delete role assignments: %w", err)
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.Session{}).Error; err != nil {
			return fmt.Errorf("user service: delete sessions: %w", err)
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.File{}).Error; err != nil {
			return fmt.Errorf("user service: delete files: %w", err)
		}
		if err := tx.Delete(&models.User{}, "id = ?", user.ID).Error; err != nil {
			return fmt.Errorf("user service: delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.sessions != nil && len(sessionIDs) > 0 {
		s.sessions.Forget(ctx, sessionIDs...)
	}
	if activeRemoved > 0 {
		metrics.ActiveSessions.Sub(float64(activeRemoved))
	}
	purgeStoredFiles(ctx, s.storage, files)

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "user.delete",
		Resource: user.ID,
		Result:   auditSuccess,
		Metadata: map[string]any{
			"email":    user.Email,
			"sessions": len(sessionIDs),
			"files":    len(files),
		},
	})

	return nil
}

// ListAssignableRoles returns every role of the web guard.
func (s *UserService) ListAssignableRoles(ctx context.Context) ([]models.Role, error) {
	ctx = ensureContext(ctx)

	var roles []models.Role
	if err := s.db.WithContext(ctx).
		Where("guard_name = ?", permissions.Guard).
		Order("name ASC").
		Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("user service: list roles: %w", err)
	}
	return roles, nil
}

func loadUser(db *gorm.DB, id string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrUserNotFound
	}

	var user models.User
	err := db.Preload("Roles", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("name ASC")
	}).Preload("Roles.Permissions").First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	return &user, nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ensureEmailAvailable(tx *gorm.DB, email, exceptID string) error {
	query := tx.Model(&models.User{}).Where("email = ?", email)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("user service: check email: %w", err)
	}
	if count > 0 {
		return apperrors.NewValidation("email", msgEmailTaken)
	}
	return nil
}

// resolveRoles loads the roles named by ids, failing validation when any is unknown.
func resolveRoles(tx *gorm.DB, ids []string) ([]models.Role, error) {
	clean := normaliseIDs(ids)
	if len(clean) == 0 {
		return nil, nil
	}

	var roles []models.Role
	if err := tx.Where("id IN ? AND guard_name = ?", clean, permissions.Guard).Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("user service: load roles: %w", err)
	}
	if len(roles) != len(clean) {
		return nil, apperrors.NewValidation("roles", msgUnknownRoles)
	}
	return roles, nil
}

// replaceUserRoles swaps the user's role links for roles.
func replaceUserRoles(tx *gorm.DB, userID string, roles []models.Role) error {
	if err := tx.Where("user_id = ?", userID).Delete(&models.UserRole{}).Error; err != nil {
		return fmt.Errorf("user service: clear user roles: %w", err)
	}
	if len(roles) == 0 {
		return nil
	}

	links := make([]models.UserRole, 0, len(roles))
	for _, role := range roles {
		links = append(links, models.UserRole{UserID: userID, RoleID: role.ID})
	}
	if err := tx.Create(&links).Error; err != nil {
		return fmt.Errorf("user service: attach user roles: %w", err)
	}
	return nil
}
