package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/fileadmin/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultSessionSpec        = "@hourly"
	defaultAuditSpec          = "@daily"
	defaultCacheSpec          = "@every 10m"
)

// SessionPruner removes expired and revoked sessions.
type SessionPruner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// AuditPruner removes audit entries older than the retention window.
type AuditPruner interface {
	CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

// CachePurger drops cache entries whose expiry has passed.
type CachePurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Cleaner coordinates background maintenance: purging stale sessions, pruning
// audit logs and sweeping expired database cache rows.
type Cleaner struct {
	sessions  SessionPruner
	audit     AuditPruner
	cache     CachePurger
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int

	sessionSchedule string
	auditSchedule   string
	cacheSchedule   string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cache expiry comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithSessionSchedule overrides the cron specification for session cleanup.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron specification for cache sweeping.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// WithCache enables sweeping of the database backed cache.
func WithCache(cache CachePurger) Option {
	return func(cleaner *Cleaner) {
		cleaner.cache = cache
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency results in
// the corresponding cleanup job being skipped.
func NewCleaner(sessions SessionPruner, audit AuditPruner, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sessions:        sessions,
		audit:           audit,
		now:             time.Now,
		retention:       defaultAuditRetentionDays,
		sessionSchedule: defaultSessionSpec,
		auditSchedule:   defaultAuditSpec,
		cacheSchedule:   defaultCacheSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	jobs := 0

	if c.sessions != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, func() {
			if _, err := c.cleanSessions(context.Background()); err != nil {
				c.log.Warn("session cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule session cleanup: %w", err)
		}
		jobs++
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			if _, err := c.pruneAudit(context.Background()); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule audit cleanup: %w", err)
		}
		jobs++
	}

	if c.cache != nil {
		if _, err := c.cron.AddFunc(c.cacheSchedule, func() {
			if _, err := c.sweepCache(context.Background()); err != nil {
				c.log.Warn("cache sweep failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule cache sweep: %w", err)
		}
		jobs++
	}

	if jobs == 0 {
		return nil
	}
	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler; the returned context is done once running jobs complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		done, cancel := context.WithCancel(context.Background())
		cancel()
		return done
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially, collecting every failure.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if c.sessions != nil {
		_, err := c.cleanSessions(ctx)
		errs = multierr.Append(errs, err)
	}
	if c.audit != nil && c.retention > 0 {
		_, err := c.pruneAudit(ctx)
		errs = multierr.Append(errs, err)
	}
	if c.cache != nil {
		_, err := c.sweepCache(ctx)
		errs = multierr.Append(errs, err)
	}
	return errs
}

func (c *Cleaner) cleanSessions(ctx context.Context) (int64, error) {
	removed, err := c.sessions.CleanupExpired(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		c.log.Info("removed stale sessions", zap.Int64("count", removed))
	}
	return removed, nil
}

func (c *Cleaner) pruneAudit(ctx context.Context) (int64, error) {
	removed, err := c.audit.CleanupOlderThan(ctx, c.retention)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		c.log.Info("pruned audit logs", zap.Int64("count", removed), zap.Int("retention_days", c.retention))
	}
	return removed, nil
}

func (c *Cleaner) sweepCache(ctx context.Context) (int64, error) {
	removed, err := c.cache.PurgeExpired(ctx, c.now())
	if err != nil {
		return 0, fmt.Errorf("maintenance: purge cache: %w", err)
	}
	return removed, nil
}
