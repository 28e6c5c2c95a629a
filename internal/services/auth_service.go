package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/fileadmin/internal/auth"
	"github.com/charlesng35/fileadmin/internal/models"
	"github.com/charlesng35/fileadmin/internal/permissions"
	"github.com/charlesng35/fileadmin/pkg/crypto"
	apperrors "github.com/charlesng35/fileadmin/pkg/errors"
	"github.com/charlesng35/fileadmin/pkg/metrics"
)

// TokenType is reported alongside issued tokens.
const TokenType = "Bearer"

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User      *models.User `json:"user"`
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Profile describes the authenticated principal for the me endpoint.
type Profile struct {
	*models.User
	RoleNames   []string `json:"role_names"`
	Permissions []string `json:"all_permissions"`
}

// AuthService wires credentials checks, registration and token sessions together.
type AuthService struct {
	db           *gorm.DB
	users        *UserService
	sessions     *auth.SessionService
	auditService *AuditService
	now          func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(db *gorm.DB, users *UserService, sessions *auth.SessionService, audit *AuditService) (*AuthService, error) {
	if db == nil {
		return nil, errors.New("auth service: db is required")
	}
	if users == nil {
		return nil, errors.New("auth service: user service is required")
	}
	if sessions == nil {
		return nil, errors.New("auth service: session service is required")
	}
	return &AuthService{
		db:           db,
		users:        users,
		sessions:     sessions,
		auditService: audit,
		now:          time.Now,
	}, nil
}

// Register creates a self-registered account holding the default role and signs it in.
func (s *AuthService) Register(ctx context.Context, input RegisterInput, meta auth.SessionMetadata) (*AuthResult, error) {
	ctx = ensureContext(ctx)

	user, err := s.users.Register(ctx, input)
	if err != nil {
		return nil, err
	}

	return s.issue(ctx, user, meta)
}

// Login verifies credentials and issues a new token. Tokens issued earlier stay valid.
func (s *AuthService) Login(ctx context.Context, email, password string, meta auth.SessionMetadata) (*AuthResult, error) {
	ctx = ensureContext(ctx)
	email = normaliseEmail(email)

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("auth service: load user: %w", err)
	}

	if err != nil || !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		entry := AuditEntry{
			Email:     email,
			Action:    "auth.login",
			Resource:  "auth",
			Result:    auditFailure,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
		}
		if user.ID != "" {
			entry.UserID = &user.ID
		}
		recordAudit(s.auditService, ctx, entry)
		return nil, apperrors.ErrInvalidCredentials
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]any{
		"last_login_at": now,
		"last_login_ip": strings.TrimSpace(meta.IPAddress),
	}).Error; err != nil {
		return nil, fmt.Errorf("auth service: record login: %w", err)
	}

	loaded, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return s.issue(ctx, loaded, meta)
}

func (s *AuthService) issue(ctx context.Context, user *models.User, meta auth.SessionMetadata) (*AuthResult, error) {
	token, session, err := s.sessions.Issue(ctx, user.ID, meta)
	if err != nil {
		return nil, fmt.Errorf("auth service: issue token: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:    &user.ID,
		Email:     user.Email,
		Action:    "auth.token_issued",
		Resource:  session.ID,
		Result:    auditSuccess,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})

	return &AuthResult{
		User:      user,
		Token:     token,
		TokenType: TokenType,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Me builds the profile of an already loaded principal.
func (s *AuthService) Me(principal *models.User) (*Profile, error) {
	if principal == nil || principal.ID == "" {
		return nil, apperrors.ErrUnauthorized
	}
	return &Profile{
		User:        principal,
		RoleNames:   principal.RoleNames(),
		Permissions: permissions.EffectivePermissions(principal),
	}, nil
}

// Logout revokes the session behind the current token only.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	ctx = ensureContext(ctx)

	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) {
			return apperrors.ErrUnauthorized
		}
		return fmt.Errorf("auth service: logout: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "auth.logout",
		Resource: sessionID,
		Result:   auditSuccess,
	})
	return nil
}

// LogoutAll revokes every session of the user and returns how many were revoked.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	revoked, err := s.sessions.RevokeAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("auth service: logout all: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "auth.logout_all",
		Resource: userID,
		Result:   auditSuccess,
		Metadata: map[string]any{"revoked": revoked},
	})
	return revoked, nil
}
