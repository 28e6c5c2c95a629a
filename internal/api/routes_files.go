package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/fileadmin/internal/handlers"
	"github.com/charlesng35/fileadmin/internal/middleware"
	"github.com/charlesng35/fileadmin/internal/permissions"
)

func registerFileRoutes(api *gin.RouterGroup, handler *handlers.FileHandler) {
	files := api.Group("/files")
	files.Use(middleware.RequirePermission(permissions.ManageFiles))
	{
		files.GET("", handler.List)
		files.POST("/upload", handler.Upload)
		files.GET("/:id", handler.Get)
		files.GET("/:id/download", handler.Download)
		files.DELETE("/:id", handler.Delete)
	}
}
