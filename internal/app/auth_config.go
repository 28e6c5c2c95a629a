package app

import (
	"github.com/charlesng35/fileadmin/internal/auth"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultTokenTTL
	}

	return auth.JWTConfig{
		Secret:   c.JWT.Secret,
		Issuer:   c.JWT.Issuer,
		TokenTTL: ttl,
	}
}

// SessionServiceConfig converts AuthConfig into SessionService parameters. The
// session lifetime always follows the token lifetime.
func (c AuthConfig) SessionServiceConfig(cache auth.SessionCache) auth.SessionConfig {
	cacheTTL := c.Session.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = auth.DefaultSessionCacheTTL
	}

	touch := c.Session.TouchInterval
	if touch <= 0 {
		touch = auth.DefaultTouchInterval
	}

	return auth.SessionConfig{
		TTL:           c.JWTServiceConfig().TokenTTL,
		CacheTTL:      cacheTTL,
		TouchInterval: touch,
		Cache:         cache,
	}
}
