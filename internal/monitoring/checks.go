package monitoring

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Pinger is implemented by cache stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseCheck pings the underlying SQL connection pool.
func DatabaseCheck(db *gorm.DB) Check {
	return Check{Name: "database", Run: func(ctx context.Context) error {
		if db == nil {
			return errors.New("database not configured")
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}}
}

// CacheCheck pings a cache store. Name distinguishes redis from the database fallback.
func CacheCheck(name string, store Pinger) Check {
	return Check{Name: name, Run: func(ctx context.Context) error {
		if store == nil {
			return errors.New("cache not configured")
		}
		return store.Ping(ctx)
	}}
}
