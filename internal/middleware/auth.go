package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/fileadmin/internal/auditctx"
	"github.com/charlesng35/fileadmin/internal/models"
	appErrors "github.com/charlesng35/fileadmin/pkg/errors"
	"github.com/charlesng35/fileadmin/pkg/logger"
	"github.com/charlesng35/fileadmin/pkg/response"
)

const (
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
	CtxSessionKey   = "session"
	CtxPrincipalKey = "principal"
)

// TokenResolver turns a bearer token into the live session it belongs to.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (*models.Session, error)
}

// PrincipalLoader loads a user together with the roles and permissions used for authorization.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID string) (*models.User, error)
}

// Auth enforces bearer token authentication. On success the session, the
// principal and an audit actor are attached to the request.
func Auth(resolver TokenResolver, loader PrincipalLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c)
			return
		}

		session, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			unauthorized(c)
			return
		}

		principal, err := loader.LoadPrincipal(c.Request.Context(), session.UserID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				logger.WithModule("http").Warn("load principal failed",
					zap.String("user_id", session.UserID),
					zap.Error(err),
				)
			}
			unauthorized(c)
			return
		}

		c.Set(CtxUserIDKey, principal.ID)
		c.Set(CtxSessionIDKey, session.ID)
		c.Set(CtxSessionKey, session)
		c.Set(CtxPrincipalKey, principal)

		c.Request = c.Request.WithContext(auditctx.WithActor(c.Request.Context(), auditctx.Actor{
			UserID:    principal.ID,
			Email:     principal.Email,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}))

		c.Next()
	}
}

// CurrentPrincipal returns the authenticated user attached by Auth.
func CurrentPrincipal(c *gin.Context) (*models.User, bool) {
	value, ok := c.Get(CtxPrincipalKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok && user != nil
}

// CurrentSession returns the session attached by Auth.
func CurrentSession(c *gin.Context) (*models.Session, bool) {
	value, ok := c.Get(CtxSessionKey)
	if !ok {
		return nil, false
	}
	session, ok := value.(*models.Session)
	return session, ok && session != nil
}

func bearerToken(header string) (string, bool) {
	if len(header) < 8 || !strings.EqualFold(header[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	response.Error(c, appErrors.ErrUnauthorized)
	c.Abort()
}
