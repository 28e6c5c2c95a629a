package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/fileadmin/internal/cache"
	"github.com/charlesng35/fileadmin/internal/models"
)

const (
	sessionCacheKeyPrefix = "auth:sessions:"
	revokedKeyPrefix      = "auth:sessions:revoked:"
)

// NewSessionCache wraps a shared cache store (Redis or database backed) inside a SessionCache.
func NewSessionCache(store cache.Store) SessionCache {
	if store == nil {
		return nil
	}
	return &sessionStoreCache{store: store}
}

type sessionStoreCache struct {
	store cache.Store
}

func (c *sessionStoreCache) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	key := cacheKey(sessionID)
	if key == "" {
		return nil, errSessionCacheMiss
	}

	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errSessionCacheMiss
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("session cache: decode: %w", err)
	}
	return &session, nil
}

func (c *sessionStoreCache) Set(ctx context.Context, session *models.Session, ttl time.Duration) error {
	if session == nil {
		return errors.New("session cache: session is nil")
	}
	key := cacheKey(session.ID)
	if key == "" {
		return errors.New("session cache: session id missing")
	}

	snapshot := *session
	snapshot.User = nil

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("session cache: marshal: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Second
	}

	return c.store.Set(ctx, key, payload, ttl)
}

func (c *sessionStoreCache) Delete(ctx context.Context, sessionIDs ...string) error {
	keys := make([]string, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		if key := cacheKey(id); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return c.store.Delete(ctx, keys...)
}

// MarkRevoked records a revocation marker for each session and drops its cached
// copy. Markers are only ever written here, so a copy cached by a request that
// raced the revocation is still rejected on the next lookup.
func (c *sessionStoreCache) MarkRevoked(ctx context.Context, ttl time.Duration, sessionIDs ...string) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	for _, id := range sessionIDs {
		key := revokedKey(id)
		if key == "" {
			continue
		}
		if err := c.store.Set(ctx, key, []byte("1"), ttl); err != nil {
			return fmt.Errorf("session cache: mark revoked: %w", err)
		}
	}
	return c.Delete(ctx, sessionIDs...)
}

func (c *sessionStoreCache) Revoked(ctx context.Context, sessionID string) (bool, error) {
	key := revokedKey(sessionID)
	if key == "" {
		return false, nil
	}
	_, found, err := c.store.Get(ctx, key)
	return found, err
}

func revokedKey(sessionID string) string {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return ""
	}
	return revokedKeyPrefix + id
}

func cacheKey(sessionID string) string {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return ""
	}
	return sessionCacheKeyPrefix + id
}
