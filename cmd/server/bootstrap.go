package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/fileadmin/internal/api"
	"github.com/charlesng35/fileadmin/internal/app"
	"github.com/charlesng35/fileadmin/internal/app/maintenance"
	iauth "github.com/charlesng35/fileadmin/internal/auth"
	"github.com/charlesng35/fileadmin/internal/cache"
	"github.com/charlesng35/fileadmin/internal/database"
	"github.com/charlesng35/fileadmin/internal/middleware"
	"github.com/charlesng35/fileadmin/internal/monitoring"
	"github.com/charlesng35/fileadmin/internal/security"
	"github.com/charlesng35/fileadmin/internal/services"
	"github.com/charlesng35/fileadmin/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Redis      *cache.RedisStore
	SessionSvc *iauth.SessionService
	Cleaner    *maintenance.Cleaner
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, caches, storage, services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			if shutdownErr := stack.Shutdown(context.Background()); shutdownErr != nil {
				log.Warn("partial bootstrap cleanup failed", zap.Error(shutdownErr))
			}
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	generated, err := app.ApplyRuntimeDefaults(ctx, cfg, stack.DB)
	if err != nil {
		return nil, err
	}
	for key := range generated {
		log.Info("generated runtime secret", zap.String("key", key))
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	var (
		store     cache.Store       = dbStore
		cacheName                   = "cache"
		pinger    monitoring.Pinger = dbStore
	)
	if cfg.Cache.Redis.Enabled {
		redisStore, redisErr := cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig())
		if redisErr != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(redisErr))
		} else {
			stack.Redis = redisStore
			store, cacheName, pinger = redisStore, "redis", redisStore
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.SessionSvc, err = iauth.NewSessionService(stack.DB, jwtSvc, cfg.Auth.SessionServiceConfig(iauth.NewSessionCache(store)))
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}
	if _, err := stack.SessionSvc.RefreshActiveGauge(ctx); err != nil {
		log.Warn("refresh active session gauge", zap.Error(err))
	}

	fileStore, err := cfg.Storage.OpenStorage(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise storage: %w", err)
	}
	log.Info("file storage ready", zap.String("driver", fileStore.Name()))

	auditSvc, err := services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}
	roleSvc, err := services.NewRoleService(stack.DB, auditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise role service: %w", err)
	}
	userSvc, err := services.NewUserService(stack.DB, auditSvc,
		services.WithUserStorage(fileStore),
		services.WithSessionInvalidator(stack.SessionSvc),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}
	fileSvc, err := services.NewFileService(stack.DB, fileStore, auditSvc, cfg.Uploads.UploadPolicy())
	if err != nil {
		return nil, fmt.Errorf("initialise file service: %w", err)
	}
	authSvc, err := services.NewAuthService(stack.DB, userSvc, stack.SessionSvc, auditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise auth service: %w", err)
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.SessionSvc, auditSvc,
			maintenance.WithCache(dbStore),
			maintenance.WithSessionSchedule(cfg.Maintenance.SessionSchedule),
			maintenance.WithCacheSchedule(cfg.Maintenance.CacheSchedule),
			maintenance.WithAuditSchedule(cfg.Maintenance.AuditSchedule),
			maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	reportPosture(ctx, stack.DB, cfg, log)

	health := monitoring.NewHealthManager(2 * time.Second)
	health.RegisterReadiness(monitoring.DatabaseCheck(stack.DB))
	health.RegisterReadiness(monitoring.CacheCheck(cacheName, pinger))

	stack.Router, err = api.NewRouter(api.Deps{
		Config:    cfg,
		DB:        stack.DB,
		Sessions:  stack.SessionSvc,
		Auth:      authSvc,
		Roles:     roleSvc,
		Users:     userSvc,
		Files:     fileSvc,
		Health:    health,
		RateStore: middleware.NewCacheRateStore(store),
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func reportPosture(ctx context.Context, db *gorm.DB, cfg *app.Config, log *zap.Logger) {
	result := security.NewPostureService(db, security.Settings{
		JWTSecret:      cfg.Auth.JWT.Secret,
		TokenTTL:       cfg.Auth.JWT.TTL,
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
		RateLimit:      cfg.Server.RateLimit.Requests,
	}).Run(ctx)

	for _, check := range result.Checks {
		fields := []zap.Field{zap.String("check", check.ID), zap.String("remediation", check.Remediation)}
		switch check.Status {
		case security.StatusFail:
			log.Error(check.Message, fields...)
		case security.StatusWarn:
			log.Warn(check.Message, fields...)
		}
	}
	log.Info("security posture evaluated",
		zap.Int("pass", result.Summary[string(security.StatusPass)]),
		zap.Int("warn", result.Summary[string(security.StatusWarn)]),
		zap.Int("fail", result.Summary[string(security.StatusFail)]),
	)
}

// Shutdown stops background jobs and releases resources. Every step runs;
// failures are combined into the returned error.
func (s *runtimeStack) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}

	var errs error
	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
		}
		errs = multierr.Append(errs, s.Cleaner.RunOnce(ctx))
	}

	if s.Redis != nil {
		errs = multierr.Append(errs, s.Redis.Close())
	}

	if s.DB != nil {
		errs = multierr.Append(errs, closeDatabase(s.DB))
	}
	return errs
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseOptions()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var seedOpts []database.SeedOption
	if cfg.Setup.SeedDemoUsers {
		seedOpts = append(seedOpts, database.WithDemoUsers(cfg.Setup.DemoPassword))
	}
	if err := database.AutoMigrateAndSeed(db, seedOpts...); err != nil {
		_ = closeDatabase(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected",
		zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))),
		zap.Bool("demo_users", cfg.Setup.SeedDemoUsers),
	)
	return db, nil
}

func closeDatabase(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("obtain sql db: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
