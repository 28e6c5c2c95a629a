package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/charlesng35/fileadmin/internal/models"
	"github.com/charlesng35/fileadmin/pkg/logger"
	"github.com/charlesng35/fileadmin/pkg/metrics"
	"go.uber.org/zap"
)

const (
	// DefaultSessionTTL is the fallback lifetime of an issued bearer token.
	DefaultSessionTTL = DefaultTokenTTL
	// DefaultSessionCacheTTL bounds how long a resolved session may be served from cache.
	DefaultSessionCacheTTL = 5 * time.Minute
	// DefaultTouchInterval is the minimum gap between last_used_at writes for one session.
	DefaultTouchInterval = time.Minute
)

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	TTL           time.Duration
	CacheTTL      time.Duration
	TouchInterval time.Duration
	Clock         func() time.Time
	Cache         SessionCache
}

// SessionMetadata captures contextual information about the client.
type SessionMetadata struct {
	Name      string
	IPAddress string
	UserAgent string
}

var (
	// ErrSessionNotFound indicates that no session matches the token or identifier.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionRevoked marks a session that has been logged out.
	ErrSessionRevoked = errors.New("session: revoked")
	// ErrSessionExpired signals that the session has reached its expiry.
	ErrSessionExpired = errors.New("session: expired")
	// ErrSessionInvalidToken is returned when the bearer token cannot be trusted.
	ErrSessionInvalidToken = errors.New("session: invalid token")
)

var errSessionCacheMiss = errors.New("session cache miss")

// SessionCache stores resolved sessions keyed by session ID. A cached copy is
// only trusted while no revocation marker exists for the same ID.
type SessionCache interface {
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	Set(ctx context.Context, session *models.Session, ttl time.Duration) error
	Delete(ctx context.Context, sessionIDs ...string) error
	MarkRevoked(ctx context.Context, ttl time.Duration, sessionIDs ...string) error
	Revoked(ctx context.Context, sessionID string) (bool, error)
}

// SessionService issues, resolves and revokes bearer tokens. Every token is a
// signed JWT naming a session row; the row is the source of truth for validity.
type SessionService struct {
	db            *gorm.DB
	jwt           *JWTService
	ttl           time.Duration
	cacheTTL      time.Duration
	touchInterval time.Duration
	now           func() time.Time
	cache         SessionCache
}

// NewSessionService constructs a session manager backed by the provided database and JWT service.
func NewSessionService(db *gorm.DB, jwtService *JWTService, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}
	if jwtService == nil {
		return nil, errors.New("session service: jwt service is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = jwtService.TTL()
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = DefaultSessionCacheTTL
	}
	touch := cfg.TouchInterval
	if touch <= 0 {
		touch = DefaultTouchInterval
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &SessionService{
		db:            db,
		jwt:           jwtService,
		ttl:           ttl,
		cacheTTL:      cacheTTL,
		touchInterval: touch,
		now:           clock,
		cache:         cfg.Cache,
	}, nil
}

// Issue persists a new session for userID and returns its bearer token. Existing
// sessions of the user are left untouched.
func (s *SessionService) Issue(ctx context.Context, userID string, meta SessionMetadata) (string, *models.Session, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", nil, errors.New("session service: user id is required")
	}

	now := s.now()
	name := strings.TrimSpace(meta.Name)
	if name == "" {
		name = "api"
	}

	session := &models.Session{
		UserID:     userID,
		Name:       name,
		IPAddress:  strings.TrimSpace(meta.IPAddress),
		UserAgent:  truncate(strings.TrimSpace(meta.UserAgent), 512),
		ExpiresAt:  now.Add(s.ttl),
		LastUsedAt: now,
	}

	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return "", nil, fmt.Errorf("session service: create session: %w", err)
	}

	token, err := s.jwt.GenerateToken(TokenInput{
		UserID:    userID,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return "", nil, fmt.Errorf("session service: generate token: %w", err)
	}

	metrics.ActiveSessions.Inc()
	s.cacheSet(ctx, session)

	return token, session, nil
}

// Resolve validates a bearer token and returns the active session it names.
func (s *SessionService) Resolve(ctx context.Context, token string) (*models.Session, error) {
	ctx = ensureContext(ctx)

	claims, err := s.jwt.ValidateToken(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalidToken, err)
	}

	session, err := s.load(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}

	if session.UserID != claims.UserID {
		return nil, ErrSessionInvalidToken
	}

	now := s.now()
	if session.RevokedAt != nil {
		return nil, ErrSessionRevoked
	}
	if !session.Active(now) {
		return nil, ErrSessionExpired
	}

	if now.Sub(session.LastUsedAt) >= s.touchInterval {
		result := s.db.WithContext(ctx).
			Model(&models.Session{}).
			Where("id = ? AND revoked_at IS NULL", session.ID).
			Update("last_used_at", now)
		switch {
		case result.Error != nil:
			logger.WithModule("auth").Warn("failed to touch session", zap.String("session_id", session.ID), zap.Error(result.Error))
		case result.RowsAffected == 0:
			// Revoked or removed after it was loaded.
			s.cacheDelete(ctx, session.ID)
			return nil, ErrSessionRevoked
		default:
			session.LastUsedAt = now
			s.cacheSet(ctx, session)
		}
	}

	return session, nil
}

// Revoke marks a single session as revoked so its token stops authenticating.
func (s *SessionService) Revoke(ctx context.Context, sessionID string) error {
	ctx = ensureContext(ctx)
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrSessionNotFound
	}

	result := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("revoked_at", s.now())
	if result.Error != nil {
		return fmt.Errorf("session service: revoke session: %w", result.Error)
	}

	s.cacheRevoke(ctx, sessionID)

	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}

	metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	return nil
}

// RevokeAll revokes every active session belonging to a user and returns how many were revoked.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ErrSessionNotFound
	}

	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("session service: list user sessions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id IN ? AND revoked_at IS NULL", ids).
		Update("revoked_at", s.now())
	if result.Error != nil {
		return 0, fmt.Errorf("session service: revoke user sessions: %w", result.Error)
	}

	s.cacheRevoke(ctx, ids...)

	if result.RowsAffected > 0 {
		metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// Forget drops cached copies of the given sessions. Callers that delete session
// rows directly use it to keep the cache consistent.
func (s *SessionService) Forget(ctx context.Context, sessionIDs ...string) {
	s.cacheDelete(ensureContext(ctx), sessionIDs...)
}

// CleanupExpired removes expired and revoked sessions and updates active session metrics accordingly.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	now := s.now()

	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("expires_at < ?", now).
		Or("revoked_at IS NOT NULL").
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("session service: list stale sessions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var activeExpired int64
	if err := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id IN ? AND revoked_at IS NULL", ids).
		Count(&activeExpired).Error; err != nil {
		return 0, fmt.Errorf("session service: count expired sessions: %w", err)
	}

	result := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session service: cleanup expired sessions: %w", result.Error)
	}

	s.cacheDelete(ctx, ids...)

	if activeExpired > 0 {
		metrics.ActiveSessions.Sub(float64(activeExpired))
	}

	return result.RowsAffected, nil
}

// RefreshActiveGauge resets the active session gauge from the database.
func (s *SessionService) RefreshActiveGauge(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("revoked_at IS NULL AND expires_at >= ?", s.now()).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("session service: count active sessions: %w", err)
	}

	metrics.ActiveSessions.Set(float64(count))
	return count, nil
}

func (s *SessionService) load(ctx context.Context, sessionID string) (*models.Session, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, sessionID)
		if err == nil && cached != nil && !s.revokedInCache(ctx, sessionID) {
			return cached, nil
		}
		if err != nil && !errors.Is(err, errSessionCacheMiss) {
			logger.WithModule("auth").Debug("session cache lookup failed", zap.Error(err))
		}
	}

	var session models.Session
	err := s.db.WithContext(ctx).Take(&session, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session service: find session: %w", err)
	}

	if session.Active(s.now()) {
		s.cacheSet(ctx, &session)
	}
	return &session, nil
}

func (s *SessionService) cacheSet(ctx context.Context, session *models.Session) {
	if s.cache == nil || session == nil {
		return
	}

	ttl := s.cacheTTL
	if remaining := session.ExpiresAt.Sub(s.now()); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}

	if err := s.cache.Set(ctx, session, ttl); err != nil {
		logger.WithModule("auth").Debug("session cache write failed", zap.Error(err))
	}
}

// revokedInCache reports whether a cached copy must be ignored. Lookup errors
// count as revoked so the database decides.
func (s *SessionService) revokedInCache(ctx context.Context, sessionID string) bool {
	revoked, err := s.cache.Revoked(ctx, sessionID)
	if err != nil {
		logger.WithModule("auth").Debug("session revocation lookup failed", zap.Error(err))
		return true
	}
	return revoked
}

// cacheRevoke keeps revocation markers for the longest token lifetime so any
// copy cached before the revocation is rejected until the token itself expires.
func (s *SessionService) cacheRevoke(ctx context.Context, ids ...string) {
	if s.cache == nil || len(ids) == 0 {
		return
	}
	if err := s.cache.MarkRevoked(ctx, s.ttl, ids...); err != nil {
		logger.WithModule("auth").Warn("session cache revocation failed", zap.Strings("session_ids", ids), zap.Error(err))
	}
}

func (s *SessionService) cacheDelete(ctx context.Context, ids ...string) {
	if s.cache == nil || len(ids) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, ids...); err != nil {
		logger.WithModule("auth").Warn("session cache invalidation failed", zap.Strings("session_ids", ids), zap.Error(err))
	}
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// truncate cuts value to at most max bytes without splitting a UTF-8 sequence.
func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
