package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"tickethub_backend/internals/features/users/model"
	"tickethub_backend/internals/helpers/encryption"
)

var (
	ErrInvalidCredentials = errors.New("users: invalid email or password")
	// ErrSessionInvalid covers expired sessions and sessions whose wrapped key
	// can no longer be opened (master-secret rotation). Both force
	// re-authentication; a "logged in" session that cannot decrypt PII never
	// survives authentication.
	ErrSessionInvalid = errors.New("users: session is no longer valid")
)

const sessionTTL = 24 * time.Hour

// KeyService owns the envelope-key lifecycle: activation wraps a fresh data
// key, login rewraps it for the session, every authenticated request unwraps
// the session copy (through the cache), and rotation/tamper failures
// invalidate the session eagerly.
type KeyService struct {
	DB           *gorm.DB
	MasterSecret string
	JWTSecret    string
	Cache        *encryption.KeyCache
}

func NewKeyService(db *gorm.DB, masterSecret, jwtSecret string, cache *encryption.KeyCache) *KeyService {
	return &KeyService{DB: db, MasterSecret: masterSecret, JWTSecret: jwtSecret, Cache: cache}
}

/* ===================== Activation ===================== */

func (s *KeyService) Register(ctx context.Context, email, name, password string) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	dataKey, err := encryption.GenerateDataKey()
	if err != nil {
		return nil, err
	}
	salt, err := encryption.GenerateSalt()
	if err != nil {
		return nil, err
	}

	// The id is generated here, not by the database, because the server-wrap
	// KEK is derived from it.
	userID := uuid.New()

	pwWrapped, err := encryption.WrapDataKey(dataKey, encryption.PasswordKEK(password, salt, s.MasterSecret))
	if err != nil {
		return nil, err
	}
	serverKEK, err := encryption.ServerKEK(s.MasterSecret, userID)
	if err != nil {
		return nil, err
	}
	serverWrapped, err := encryption.WrapDataKey(dataKey, serverKEK)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		UserID:               userID,
		UserEmail:            email,
		UserName:             name,
		UserPasswordHash:     string(hash),
		UserKeySalt:          salt,
		UserWrappedDataKey:   pwWrapped,
		UserServerWrappedKey: serverWrapped,
	}
	if err := s.DB.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

/* ===================== Login ===================== */

func (s *KeyService) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	var user model.User
	err := s.DB.WithContext(ctx).First(&user, "user_email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", time.Time{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.UserPasswordHash), []byte(password)) != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}

	dataKey, err := encryption.UnwrapDataKey(user.UserWrappedDataKey,
		encryption.PasswordKEK(password, user.UserKeySalt, s.MasterSecret))
	if err != nil {
		// Correct password but unopenable key: the master secret rotated
		// underneath this account. Fail login loudly instead of issuing a
		// session that cannot decrypt anything.
		return "", time.Time{}, fmt.Errorf("account key unavailable after secret rotation: %w", err)
	}

	tokenID := uuid.NewString()
	sessionKEK, err := encryption.SessionKEK(s.MasterSecret, tokenID)
	if err != nil {
		return "", time.Time{}, err
	}
	sessionWrapped, err := encryption.WrapDataKey(dataKey, sessionKEK)
	if err != nil {
		return "", time.Time{}, err
	}

	expires := time.Now().UTC().Add(sessionTTL)
	session := &model.UserSession{
		SessionUserID:     user.UserID,
		SessionTokenID:    tokenID,
		SessionWrappedKey: sessionWrapped,
		SessionExpiresAt:  expires,
	}
	if err := s.DB.WithContext(ctx).Create(session).Error; err != nil {
		return "", time.Time{}, err
	}

	claims := jwt.MapClaims{
		"sub": user.UserID.String(),
		"jti": tokenID,
		"exp": expires.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	s.Cache.Put(tokenID, dataKey)
	return signed, expires, nil
}

/* ===================== Per-request key resolution ===================== */

// SessionKey authenticates a session's envelope key. Unwrap-ability is part of
// authentication: if the wrapped key cannot be opened the session row is
// deleted and ErrSessionInvalid returned so the admin is sent back to login.
func (s *KeyService) SessionKey(ctx context.Context, tokenID string) ([]byte, uuid.UUID, error) {
	var session model.UserSession
	err := s.DB.WithContext(ctx).First(&session, "session_token_id = ?", tokenID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.Cache.Invalidate(tokenID)
		return nil, uuid.Nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, uuid.Nil, err
	}
	if session.Expired(time.Now().UTC()) {
		s.drop(ctx, &session)
		return nil, uuid.Nil, ErrSessionInvalid
	}

	if key, ok := s.Cache.Get(tokenID); ok {
		return key, session.SessionUserID, nil
	}

	sessionKEK, err := encryption.SessionKEK(s.MasterSecret, tokenID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	key, err := encryption.UnwrapDataKey(session.SessionWrappedKey, sessionKEK)
	if err != nil {
		s.drop(ctx, &session)
		return nil, uuid.Nil, ErrSessionInvalid
	}
	s.Cache.Put(tokenID, key)
	return key, session.SessionUserID, nil
}

func (s *KeyService) Logout(ctx context.Context, tokenID string) {
	var session model.UserSession
	if err := s.DB.WithContext(ctx).First(&session, "session_token_id = ?", tokenID).Error; err == nil {
		s.drop(ctx, &session)
	} else {
		s.Cache.Invalidate(tokenID)
	}
}

func (s *KeyService) drop(ctx context.Context, session *model.UserSession) {
	s.DB.WithContext(ctx).Delete(session)
	s.Cache.Invalidate(session.SessionTokenID)
}

/* ===================== Password change ===================== */

// ChangePassword rewraps the data key under the new password and invalidates
// every session for the user; old tokens stop decrypting immediately.
func (s *KeyService) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	var user model.User
	if err := s.DB.WithContext(ctx).First(&user, "user_id = ?", userID).Error; err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.UserPasswordHash), []byte(currentPassword)) != nil {
		return ErrInvalidCredentials
	}

	dataKey, err := encryption.UnwrapDataKey(user.UserWrappedDataKey,
		encryption.PasswordKEK(currentPassword, user.UserKeySalt, s.MasterSecret))
	if err != nil {
		return fmt.Errorf("account key unavailable: %w", err)
	}

	newSalt, err := encryption.GenerateSalt()
	if err != nil {
		return err
	}
	newWrapped, err := encryption.WrapDataKey(dataKey,
		encryption.PasswordKEK(newPassword, newSalt, s.MasterSecret))
	if err != nil {
		return err
	}
	newHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	updates := map[string]any{
		"user_password_hash":    string(newHash),
		"user_key_salt":         newSalt,
		"user_wrapped_data_key": newWrapped,
	}
	if err := s.DB.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return err
	}

	if err := s.DB.WithContext(ctx).
		Where("session_user_id = ?", userID).
		Delete(&model.UserSession{}).Error; err != nil {
		return err
	}
	s.Cache.InvalidateAll()
	return nil
}
