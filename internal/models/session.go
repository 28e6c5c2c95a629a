package models

import (
	"time"
)

// Session backs an issued bearer token. The token carries the session ID, so
// revoking the row invalidates the token.
type Session struct {
	BaseModel

	UserID     string     `gorm:"type:uuid;not null;index" json:"user_id"`
	User       *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Name       string     `gorm:"size:255" json:"name"`
	IPAddress  string     `json:"ip_address"`
	UserAgent  string     `json:"user_agent"`
	ExpiresAt  time.Time  `gorm:"index" json:"expires_at"`
	LastUsedAt time.Time  `json:"last_used_at"`
	RevokedAt  *time.Time `gorm:"index" json:"revoked_at"`
}

// Active reports whether the session may still authenticate requests at now.
func (s Session) Active(now time.Time) bool {
	if s.RevokedAt != nil {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}
