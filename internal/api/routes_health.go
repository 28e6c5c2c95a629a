package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/fileadmin/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, handler *handlers.HealthHandler) {
	r.GET("/health", handler.Summary)
	r.GET("/health/live", handler.Live)
	r.GET("/health/ready", handler.Ready)
}
