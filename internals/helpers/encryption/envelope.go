package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// ErrUnwrap is returned whenever a wrapped data key cannot be opened. This is
// the expected failure after DB_ENCRYPTION_KEY rotation or tampering and must
// be treated as a hard authentication failure by callers, never skipped.
var ErrUnwrap = errors.New("encryption: wrapped data key cannot be unwrapped")

const (
	DataKeySize = 32
	SaltSize    = 16
)

// GenerateDataKey creates the per-admin random data key at account activation.
func GenerateDataKey() ([]byte, error) {
	key := make([]byte, DataKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// PasswordKEK derives the key-encryption key from the admin password, a stored
// per-user salt and the server-side master secret. Deterministic: the same
// inputs always produce the same KEK.
func PasswordKEK(password string, salt []byte, masterSecret string) []byte {
	material := append([]byte(password), []byte(masterSecret)...)
	return argon2.IDKey(material, salt, 1, 64*1024, 4, DataKeySize)
}

// ServerKEK derives the KEK wrapping the server-side copy of a data key. The
// webhook pipeline uses this copy to encrypt attendee PII without an admin
// session being present.
func ServerKEK(masterSecret string, userID uuid.UUID) ([]byte, error) {
	return deriveKEK(masterSecret, "tickethub/server-wrap/"+userID.String())
}

// SessionKEK derives the KEK wrapping the per-login copy of a data key. The
// token id (jti) is the only per-session input, so unwrap is deterministic
// given (wrapped key, token, master secret).
func SessionKEK(masterSecret string, tokenID string) ([]byte, error) {
	return deriveKEK(masterSecret, "tickethub/session-wrap/"+tokenID)
}

func deriveKEK(masterSecret, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(masterSecret), nil, []byte(info))
	kek := make([]byte, DataKeySize)
	if _, err := io.ReadFull(r, kek); err != nil {
		return nil, err
	}
	return kek, nil
}

// WrapDataKey seals a raw data key under the given KEK.
func WrapDataKey(rawKey, kek []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aesgcm.Seal(nonce, nonce, rawKey, nil), nil
}

// UnwrapDataKey opens a wrapped data key. It never panics; every failure mode
// (rotated master secret, wrong password, corrupted blob) comes back as
// ErrUnwrap so the caller can force re-authentication.
func UnwrapDataKey(wrapped, kek []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, ErrUnwrap
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrUnwrap
	}
	if len(wrapped) < aesgcm.NonceSize() {
		return nil, ErrUnwrap
	}
	nonce, ct := wrapped[:aesgcm.NonceSize()], wrapped[aesgcm.NonceSize():]
	raw, err := aesgcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrUnwrap
	}
	return raw, nil
}
