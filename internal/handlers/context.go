package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/fileadmin/internal/auth"
	"github.com/charlesng35/fileadmin/internal/middleware"
	"github.com/charlesng35/fileadmin/internal/models"
	"github.com/charlesng35/fileadmin/pkg/errors"
	"github.com/charlesng35/fileadmin/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// principal returns the authenticated user or writes a 401 and returns false.
func principal(c *gin.Context) (*models.User, bool) {
	user, ok := middleware.CurrentPrincipal(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return nil, false
	}
	return user, true
}

func sessionMetadata(c *gin.Context) iauth.SessionMetadata {
	return iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
