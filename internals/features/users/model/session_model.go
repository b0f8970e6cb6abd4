package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserSession is one login. session_wrapped_key is the admin's data key
// rewrapped under the session KEK derived from the token id, so any request
// carrying a valid token can deterministically recover the key — and a session
// whose key can no longer be unwrapped (master-secret rotation) is deleted at
// authentication time instead of limping on with undecryptable PII.
type UserSession struct {
	SessionID     uuid.UUID `gorm:"column:session_id;type:uuid;default:gen_random_uuid();primaryKey" json:"session_id"`
	SessionUserID uuid.UUID `gorm:"column:session_user_id;type:uuid;not null;index" json:"session_user_id"`

	SessionTokenID    string `gorm:"column:session_token_id;uniqueIndex;not null" json:"-"`
	SessionWrappedKey []byte `gorm:"column:session_wrapped_key;not null" json:"-"`

	SessionExpiresAt time.Time `gorm:"column:session_expires_at;not null" json:"session_expires_at"`
	CreatedAt        time.Time `gorm:"column:session_created_at;autoCreateTime" json:"session_created_at"`
}

func (UserSession) TableName() string { return "user_sessions" }

func (s *UserSession) BeforeCreate(tx *gorm.DB) error {
	if s.SessionID == uuid.Nil {
		s.SessionID = uuid.New()
	}
	return nil
}

func (s *UserSession) Expired(now time.Time) bool {
	return now.After(s.SessionExpiresAt)
}
