package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/fileadmin/internal/models"
	"github.com/charlesng35/fileadmin/internal/permissions"
)

// CheckStatus captures the outcome of a posture check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

const (
	minSecretLength       = 32
	preferredSecretLength = 48
	maxRecommendedTTL     = 30 * 24 * time.Hour
)

// Check contains the result of a single verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
}

// Result aggregates all checks with a per-status count.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// Settings is the slice of runtime configuration the posture checks inspect.
type Settings struct {
	JWTSecret      string
	TokenTTL       time.Duration
	AllowedOrigins []string
	RateLimit      int
}

// PostureService evaluates deployment settings and seeded data for weak spots.
type PostureService struct {
	db       *gorm.DB
	settings Settings
	now      func() time.Time
}

// NewPostureService constructs the service. A nil db degrades the admin check to a warning.
func NewPostureService(db *gorm.DB, settings Settings) *PostureService {
	return &PostureService{db: db, settings: settings, now: time.Now}
}

// WithClock overrides the clock used in results.
func (s *PostureService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all checks and returns their outcome.
func (s *PostureService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkAdminPresent(ctx),
		s.checkJWTSecret(),
		s.checkTokenTTL(),
		s.checkCORS(),
		s.checkRateLimit(),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

func (s *PostureService) checkAdminPresent(ctx context.Context) Check {
	const id = "admin_user_present"
	if s.db == nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Database unavailable; unable to confirm an administrator exists.",
			Remediation: "Ensure database connectivity before running the checks.",
		}
	}

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.UserRole{}).
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("roles.name = ? AND roles.guard_name = ?", permissions.OverrideRole, permissions.Guard).
		Distinct("user_roles.user_id").
		Count(&count).Error
	if err != nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Could not count administrators: %v", err),
			Remediation: "Retry after resolving database errors.",
		}
	}

	if count == 0 {
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     fmt.Sprintf("No user holds the %q role.", permissions.OverrideRole),
			Remediation: "Assign the admin role to at least one account so roles and users stay manageable.",
		}
	}

	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: fmt.Sprintf("%d administrator(s) present.", count),
	}
}

func (s *PostureService) checkJWTSecret() Check {
	const id = "jwt_secret_strength"
	length := len(strings.TrimSpace(s.settings.JWTSecret))

	switch {
	case length == 0:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "Missing JWT signing secret.",
			Remediation: "Provide a random signing secret of at least 32 bytes.",
		}
	case length < minSecretLength:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     fmt.Sprintf("JWT signing secret is too short (%d bytes).", length),
			Remediation: "Use a randomly generated secret of at least 32 bytes.",
		}
	case length < preferredSecretLength:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("JWT signing secret is %d bytes. Consider 48 or more.", length),
			Remediation: "Increase FILEADMIN_AUTH_JWT_SECRET to at least 48 bytes.",
		}
	default:
		return Check{
			ID:      id,
			Status:  StatusPass,
			Message: fmt.Sprintf("JWT signing secret length is %d bytes.", length),
		}
	}
}

func (s *PostureService) checkTokenTTL() Check {
	const id = "token_ttl"
	ttl := s.settings.TokenTTL
	if ttl <= 0 {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Token TTL is not configured; the default lifetime applies.",
			Remediation: "Set FILEADMIN_AUTH_JWT_TOKEN_TTL to control token lifetime.",
		}
	}
	if ttl > maxRecommendedTTL {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Token TTL (%s) exceeds the recommended maximum (%s).", ttl, maxRecommendedTTL),
			Remediation: "Reduce the token TTL to 30 days or lower.",
		}
	}
	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: fmt.Sprintf("Token TTL is %s.", ttl),
	}
}

func (s *PostureService) checkCORS() Check {
	const id = "cors_origins"
	origins := s.settings.AllowedOrigins
	wildcard := len(origins) == 0
	for _, origin := range origins {
		if strings.TrimSpace(origin) == "*" {
			wildcard = true
		}
	}
	if wildcard {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Any origin may call the API from a browser.",
			Remediation: "List trusted origins in server.cors.allowed_origins.",
		}
	}
	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: fmt.Sprintf("%d trusted origin(s) configured.", len(origins)),
	}
}

func (s *PostureService) checkRateLimit() Check {
	const id = "rate_limit"
	if s.settings.RateLimit <= 0 {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Request rate limiting is disabled.",
			Remediation: "Set server.rate_limit.requests to a positive value.",
		}
	}
	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: fmt.Sprintf("Rate limit is %d requests per window.", s.settings.RateLimit),
	}
}
