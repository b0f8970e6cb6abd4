package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

/* ===================== Model ===================== */

// User is an event admin. The two wrapped blobs hold the SAME random data key:
//   - user_wrapped_data_key: wrapped under the password-derived KEK, opened at
//     login only.
//   - user_server_wrapped_key: wrapped under the server KEK so the webhook
//     pipeline can encrypt attendee PII for this admin without a session.
//
// Neither copy is readable after DB_ENCRYPTION_KEY rotation; that is a hard
// failure, not a silent one.
type User struct {
	UserID uuid.UUID `gorm:"column:user_id;type:uuid;default:gen_random_uuid();primaryKey" json:"user_id"`

	UserEmail        string `gorm:"column:user_email;uniqueIndex;not null" json:"user_email"`
	UserName         string `gorm:"column:user_name;not null" json:"user_name"`
	UserPasswordHash string `gorm:"column:user_password_hash;not null" json:"-"`

	UserKeySalt          []byte `gorm:"column:user_key_salt;not null" json:"-"`
	UserWrappedDataKey   []byte `gorm:"column:user_wrapped_data_key;not null" json:"-"`
	UserServerWrappedKey []byte `gorm:"column:user_server_wrapped_key;not null" json:"-"`

	CreatedAt time.Time      `gorm:"column:user_created_at;autoCreateTime" json:"user_created_at"`
	UpdatedAt time.Time      `gorm:"column:user_updated_at;autoUpdateTime" json:"user_updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:user_deleted_at;index" json:"user_deleted_at,omitempty"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UserID == uuid.Nil {
		u.UserID = uuid.New()
	}
	return nil
}
