package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/fileadmin/internal/permissions"
	"github.com/charlesng35/fileadmin/pkg/metrics"
	"github.com/charlesng35/fileadmin/pkg/response"
)

// RequirePermission checks that the principal attached by Auth holds permission.
// Without a principal the request is rejected as unauthenticated.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, _ := CurrentPrincipal(c)

		decision := permissions.Authorize(principal, permission)
		if !decision.Allowed {
			metrics.PermissionChecks.WithLabelValues(permission, "deny").Inc()
			response.Error(c, decision.Err())
			c.Abort()
			return
		}

		metrics.PermissionChecks.WithLabelValues(permission, "allow").Inc()
		c.Next()
	}
}
