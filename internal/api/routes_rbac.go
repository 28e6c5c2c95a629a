package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/fileadmin/internal/handlers"
	"github.com/charlesng35/fileadmin/internal/middleware"
	"github.com/charlesng35/fileadmin/internal/permissions"
)

func registerRBACRoutes(api *gin.RouterGroup, roles *handlers.RoleHandler, users *handlers.UserHandler) {
	rbac := api.Group("/rbac")

	roleRoutes := rbac.Group("/roles")
	roleRoutes.Use(middleware.RequirePermission(permissions.ManageRoles))
	{
		roleRoutes.GET("", roles.List)
		roleRoutes.POST("", roles.Create)
		roleRoutes.GET("/permissions", roles.Permissions)
		roleRoutes.GET("/:id", roles.Get)
		roleRoutes.PUT("/:id", roles.Update)
		roleRoutes.PATCH("/:id", roles.Update)
		roleRoutes.DELETE("/:id", roles.Delete)
	}

	userRoutes := rbac.Group("/users")
	userRoutes.Use(middleware.RequirePermission(permissions.ManageUsers))
	{
		userRoutes.GET("", users.List)
		userRoutes.POST("", users.Create)
		userRoutes.GET("/roles", users.Roles)
		userRoutes.GET("/:id", users.Get)
		userRoutes.PUT("/:id", users.Update)
		userRoutes.PATCH("/:id", users.Update)
		userRoutes.DELETE("/:id", users.Delete)
	}
}
