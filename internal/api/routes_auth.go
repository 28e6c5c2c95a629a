package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/fileadmin/internal/handlers"
)

func registerAuthRoutes(public, protected *gin.RouterGroup, handler *handlers.AuthHandler) {
	auth := public.Group("/auth")
	{
		auth.POST("/register", handler.Register)
		auth.POST("/login", handler.Login)
	}

	session := protected.Group("/auth")
	{
		session.GET("/me", handler.Me)
		session.POST("/logout", handler.Logout)
		session.POST("/logout-all", handler.LogoutAll)
	}
}
