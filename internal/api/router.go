package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/fileadmin/internal/app"
	iauth "github.com/charlesng35/fileadmin/internal/auth"
	"github.com/charlesng35/fileadmin/internal/handlers"
	"github.com/charlesng35/fileadmin/internal/middleware"
	"github.com/charlesng35/fileadmin/internal/monitoring"
	"github.com/charlesng35/fileadmin/internal/permissions"
	"github.com/charlesng35/fileadmin/internal/services"
)

// Deps carries the services the HTTP layer is built from.
type Deps struct {
	Config    *app.Config
	DB        *gorm.DB
	Sessions  *iauth.SessionService
	Auth      *services.AuthService
	Roles     *services.RoleService
	Users     *services.UserService
	Files     *services.FileService
	Health    *monitoring.HealthManager
	RateStore middleware.RateStore
}

func (d Deps) validate() error {
	switch {
	case d.Config == nil:
		return errors.New("router: config must be provided")
	case d.DB == nil:
		return errors.New("router: database handle must be provided")
	case d.Sessions == nil:
		return errors.New("router: session service must be provided")
	case d.Auth == nil:
		return errors.New("router: auth service must be provided")
	case d.Roles == nil:
		return errors.New("router: role service must be provided")
	case d.Users == nil:
		return errors.New("router: user service must be provided")
	case d.Files == nil:
		return errors.New("router: file service must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders(middleware.SecurityConfig{
		SSLRedirect: cfg.Server.Security.SSLRedirect,
		ForceHSTS:   cfg.Server.Security.ForceHSTS,
		Development: cfg.Server.Security.Development,
	}))
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.Server.CORS.AllowedOrigins}))
	r.Use(middleware.RateLimit(deps.RateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))

	registerHealthRoutes(r, handlers.NewHealthHandler(deps.Health))
	registerMetricsRoute(r, cfg.Monitoring.Prometheus)

	checker, err := permissions.NewChecker(deps.DB)
	if err != nil {
		return nil, err
	}

	api := r.Group("/api")
	protected := api.Group("")
	protected.Use(middleware.Auth(deps.Sessions, checker))

	registerAuthRoutes(api, protected, handlers.NewAuthHandler(deps.Auth))
	registerRBACRoutes(protected, handlers.NewRoleHandler(deps.Roles), handlers.NewUserHandler(deps.Users))
	registerFileRoutes(protected, handlers.NewFileHandler(deps.Files))

	r.NoRoute(middleware.NotFoundHandler)
	r.NoMethod(middleware.MethodNotAllowedHandler)

	return r, nil
}
