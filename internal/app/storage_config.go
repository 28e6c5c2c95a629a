package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/charlesng35/fileadmin/internal/database"
	"github.com/charlesng35/fileadmin/internal/services"
	"github.com/charlesng35/fileadmin/internal/storage"
)

// OpenStorage builds the configured file storage backend.
func (c StorageConfig) OpenStorage(ctx context.Context) (storage.Storage, error) {
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "", "local":
		local, err := storage.NewLocalStorage(c.Local.Root)
		if err != nil {
			return nil, err
		}
		return local, nil
	case "s3":
		bucket, err := storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:       c.S3.Bucket,
			Region:       c.S3.Region,
			Endpoint:     c.S3.Endpoint,
			AccessKey:    c.S3.AccessKey,
			SecretKey:    c.S3.SecretKey,
			Prefix:       c.S3.Prefix,
			UsePathStyle: c.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return bucket, nil
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", c.Driver)
	}
}

// UploadPolicy converts UploadConfig into the FileService policy.
func (c UploadConfig) UploadPolicy() services.UploadPolicy {
	return services.UploadPolicy{
		MaxFileSize:       c.MaxFileSize,
		AllowedExtensions: c.AllowedExtensions,
		KeyPrefix:         c.KeyPrefix,
	}
}

// DatabaseOptions converts DatabaseConfig into database.Config. Host based
// settings apply only when the matching block is enabled.
func (c DatabaseConfig) DatabaseOptions() database.Config {
	cfg := database.Config{
		Driver: c.Driver,
		Path:   c.Path,
		DSN:    c.DSN,
	}

	var host DBAuthConfig
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "postgres", "postgresql", "pgsql":
		host = c.Postgres
	case "mysql", "mariadb":
		host = c.MySQL
	}
	if host.Enabled {
		cfg.Host = host.Host
		cfg.Port = host.Port
		cfg.Name = host.Database
		cfg.User = host.Username
		cfg.Password = host.Password
	}
	return cfg
}
