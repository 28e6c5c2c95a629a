package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/fileadmin/internal/database"
	"github.com/charlesng35/fileadmin/internal/models"
	"github.com/charlesng35/fileadmin/internal/permissions"
	apperrors "github.com/charlesng35/fileadmin/pkg/errors"
)

// RoleListOptions controls filtering and pagination for role listing.
type RoleListOptions struct {
	PageRequest
	Search string
}

// CreateRoleInput describes the payload accepted by Create.
type CreateRoleInput struct {
	Name          string
	PermissionIDs []string
}

// UpdateRoleInput describes mutable fields on a role. A nil PermissionIDs
// leaves the permission set untouched; an empty slice clears it.
type UpdateRoleInput struct {
	Name          string
	PermissionIDs []string
}

// RoleService manages roles of the web guard and their permission sets.
type RoleService struct {
	db           *gorm.DB
	auditService *AuditService
}

// NewRoleService constructs a RoleService using the provided database handle.
func NewRoleService(db *gorm.DB, audit *AuditService) (*RoleService, error) {
	if db == nil {
		return nil, errors.New("role service: db is required")
	}
	return &RoleService{db: db, auditService: audit}, nil
}

// List returns roles with their permissions, optionally filtered by a name substring.
func (s *RoleService) List(ctx context.Context, opts RoleListOptions) ([]models.Role, int64, error) {
	ctx = ensureContext(ctx)
	_, perPage := opts.Normalise()

	query := s.db.WithContext(ctx).Model(&models.Role{}).Where("guard_name = ?", permissions.Guard)
	if search := strings.TrimSpace(opts.Search); search != "" {
		query = query.Where("LOWER(name) LIKE ?", likePattern(search))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("role service: count roles: %w", err)
	}

	var roles []models.Role
	if err := query.
		Preload("Permissions").
		Order("name ASC").
		Offset(opts.offset()).
		Limit(perPage).
		Find(&roles).Error; err != nil {
		return nil, 0, fmt.Errorf("role service: list roles: %w", err)
	}

	return roles, total, nil
}

// Get loads a single role with its permissions.
func (s *RoleService) Get(ctx context.Context, id string) (*models.Role, error) {
	return s.load(s.db.WithContext(ensureContext(ctx)), id)
}

// Create registers a new role and attaches the requested permissions.
func (s *RoleService) Create(ctx context.Context, input CreateRoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidation("name", "Role name is required.")
	}

	var created *models.Role
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureRoleNameAvailable(tx, name, ""); err != nil {
			return err
		}

		perms, err := resolvePermissions(tx, input.PermissionIDs)
		if err != nil {
			return err
		}

		role := &models.Role{Name: name, Guard: permissions.Guard}
		if err := tx.Create(role).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return apperrors.NewValidation("name", msgRoleNameTaken)
			}
			return fmt.Errorf("role service: create role: %w", err)
		}

		if err := replaceRolePermissions(tx, role.ID, perms); err != nil {
			return err
		}

		created, err = s.load(tx, role.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "role.create",
		Resource: created.ID,
		Result:   auditSuccess,
		Metadata: map[string]any{
			"name":        created.Name,
			"permissions": created.PermissionNames(),
		},
	})

	return created, nil
}

// Update renames a role and, when PermissionIDs is non-nil, replaces its permission set.
// The seeded system roles keep their names; only their permissions may change.
func (s *RoleService) Update(ctx context.Context, id string, input UpdateRoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidation("name", "Role name is required.")
	}

	var updated *models.Role
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role, err := s.load(tx, id)
		if err != nil {
			return err
		}

		if name != role.Name {
			if permissions.IsProtectedRole(role.Name) {
				return ErrRoleRenameProtected
			}
			if err := ensureRoleNameAvailable(tx, name, role.ID); err != nil {
				return err
			}
			if err := tx.Model(&models.Role{}).Where("id = ?", role.ID).Update("name", name).Error; err != nil {
				if database.IsUniqueViolation(err) {
					return apperrors.NewValidation("name", msgRoleNameTaken)
				}
				return fmt.Errorf("role service: update role: %w", err)
			}
		}

		if input.PermissionIDs != nil {
			perms, err := resolvePermissions(tx, input.PermissionIDs)
			if err != nil {
				return err
			}
			if err := replaceRolePermissions(tx, role.ID, perms); err != nil {
				return err
			}
		}

		updated, err = s.load(tx, role.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "role.update",
		Resource: updated.ID,
		Result:   auditSuccess,
		Metadata: map[string]any{
			"name":        updated.Name,
			"permissions": updated.PermissionNames(),
		},
	})

	return updated, nil
}

// SyncPermissions replaces the role's permission set with exactly ids.
func (s *RoleService) SyncPermissions(ctx context.Context, roleID string, ids []string) (*models.Role, error) {
	ctx = ensureContext(ctx)
	if ids == nil {
		ids = []string{}
	}

	var synced *models.Role
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role, err := s.load(tx, roleID)
		if err != nil {
			return err
		}
		perms, err := resolvePermissions(tx, ids)
		if err != nil {
			return err
		}
		if err := replaceRolePermissions(tx, role.ID, perms); err != nil {
			return err
		}
		synced, err = s.load(tx, role.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "role.sync_permissions",
		Resource: synced.ID,
		Result:   auditSuccess,
		Metadata: map[string]any{"permissions": synced.PermissionNames()},
	})

	return synced, nil
}

// Delete removes a role together with its permission links and user assignments.
// The seeded system roles cannot be deleted.
func (s *RoleService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	var role models.Role
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.load(tx, id)
		if err != nil {
			return err
		}
		role = *loaded

		if permissions.IsProtectedRole(role.Name) {
			return ErrRoleProtected
		}

		if err := tx.Where("role_id = ?", role.ID).Delete(&models.RolePermission{}).Error; err != nil {
			return fmt.Errorf("role service: delete role permissions: %w", err)
		}
		if err := tx.Where("role_id = ?", role.ID).Delete(&models.UserRole{}).Error; err != nil {
			return fmt.Errorf("role service: delete role assignments: %w", err)
		}
		if err := tx.Delete(&models.Role{}, "id = ?", role.ID).Error; err != nil {
			return fmt.Errorf("role service: delete role: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRoleProtected) {
			recordAudit(s.auditService, ctx, AuditEntry{
				Action:   "role.delete",
				Resource: role.ID,
				Result:   auditFailure,
				Metadata: map[string]any{"name": role.Name, "reason": "protected"},
			})
		}
		return err
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "role.delete",
		Resource: role.ID,
		Result:   auditSuccess,
		Metadata: map[string]any{"name": role.Name},
	})

	return nil
}

// ListPermissions returns every permission of the web guard, ordered by name.
func (s *RoleService) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	ctx = ensureContext(ctx)

	var perms []models.Permission
	if err := s.db.WithContext(ctx).
		Where("guard_name = ?", permissions.Guard).
		Order("name ASC").
		Find(&perms).Error; err != nil {
		return nil, fmt.Errorf("role service: list permissions: %w", err)
	}
	return perms, nil
}

func (s *RoleService) load(db *gorm.DB, id string) (*models.Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrRoleNotFound
	}

	var role models.Role
	err := db.Preload("Permissions", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("name ASC")
	}).Where("guard_name = ?", permissions.Guard).First(&role, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("role service: load role: %w", err)
	}
	return &role, nil
}

func ensureRoleNameAvailable(tx *gorm.DB, name, exceptID string) error {
	query := tx.Model(&models.Role{}).Where("name = ? AND guard_name = ?", name, permissions.Guard)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("role service: check role name: %w", err)
	}
	if count > 0 {
		return apperrors.NewValidation("name", msgRoleNameTaken)
	}
	return nil
}

// resolvePermissions loads the permissions named by ids, failing validation when any is unknown.
func resolvePermissions(tx *gorm.DB, ids []string) ([]models.Permission, error) {
	clean := normaliseIDs(ids)
	if len(clean) == 0 {
		return nil, nil
	}

	var perms []models.Permission
	if err := tx.Where("id IN ? AND guard_name = ?", clean, permissions.Guard).Find(&perms).Error; err != nil {
		return nil, fmt.Errorf("role service: load permissions: %w", err)
	}
	if len(perms) != len(clean) {
		return nil, apperrors.NewValidation("permissions", msgUnknownPermissions)
	}
	return perms, nil
}

// replaceRolePermissions swaps the role's permission links for perms.
func replaceRolePermissions(tx *gorm.DB, roleID string, perms []models.Permission) error {
	if err := tx.Where("role_id = ?", roleID).Delete(&models.RolePermission{}).Error; err != nil {
		return fmt.Errorf("role service: clear role permissions: %w", err)
	}
	if len(perms) == 0 {
		return nil
	}

	links := make([]models.RolePermission, 0, len(perms))
	for _, perm := range perms {
		links = append(links, models.RolePermission{RoleID: roleID, PermissionID: perm.ID})
	}
	if err := tx.Create(&links).Error; err != nil {
		return fmt.Errorf("role service: attach role permissions: %w", err)
	}
	return nil
}
