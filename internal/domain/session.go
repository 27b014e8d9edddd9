package domain

import (
	"context"
	"time"
)

// RevokedReason records why a session stopped being usable
type RevokedReason string

const (
	RevokedLogout  RevokedReason = "logout"
	RevokedExpired RevokedReason = "expired"
)

// Session is a persisted refresh-token record bound to one device and one account
type Session struct {
	ID            string        `bson:"_id,omitempty" json:"id"`
	AccountID     string        `bson:"account_id" json:"accountId"`
	DeviceID      string        `bson:"device_id" json:"deviceId"`
	Token         string        `bson:"token" json:"-"`
	ExpiresAt     time.Time     `bson:"expires_at" json:"expiresAt"`
	RevokedAt     *time.Time    `bson:"revoked_at" json:"revokedAt,omitempty"`
	RevokedReason RevokedReason `bson:"revoked_reason,omitempty" json:"revokedReason,omitempty"`
	CreatedAt     time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time     `bson:"updated_at" json:"updatedAt"`
}

// IsRevoked reports whether the session reached a terminal state
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// IsExpired reports whether the expiry has passed at now
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// IsValid is true iff the session is unrevoked and unexpired at now
func (s *Session) IsValid(now time.Time) bool {
	return !s.IsRevoked() && !s.IsExpired(now)
}

// SessionRepository defines the refresh-token store
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error

	// FindByToken returns every session on the given devices whose token
	// equals token, revoked or not, oldest first
	FindByToken(ctx context.Context, deviceIDs []string, token string) ([]*Session, error)

	// FindActive returns unrevoked sessions for a device regardless of expiry, oldest first
	FindActive(ctx context.Context, deviceID string) ([]*Session, error)

	// FindLatest returns the most recently issued session for a device
	FindLatest(ctx context.Context, deviceID string) (*Session, error)

	// Revoke marks an unrevoked session revoked. ErrAlreadyRevoked is
	// returned when another writer got there first.
	Revoke(ctx context.Context, session *Session, reason RevokedReason) error

	// RevokeExpired revokes every unrevoked session past its expiry
	RevokeExpired(ctx context.Context, now time.Time) (int64, error)
}
