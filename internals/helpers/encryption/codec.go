// Package encryption implements the field-level AES-GCM codec and the
// envelope-key scheme protecting attendee PII. Each admin owns a random data
// key; the data key is only ever stored wrapped (see envelope.go) and attendee
// fields are encrypted one by one so that fields an event never collects are
// simply absent rather than encrypted empties.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
)

// ErrDecrypt is returned for any ciphertext that cannot be authenticated and
// decrypted: wrong key, truncated value, master-secret rotation. Callers must
// render the field as unavailable; garbled plaintext is never produced because
// GCM authenticates before returning.
var ErrDecrypt = errors.New("encryption: field cannot be decrypted")

const fieldPrefix = "v1:"

// EncryptField encrypts a single PII field. Empty plaintext is stored as the
// empty string so "field not collected" survives round trips unencrypted.
func EncryptField(plaintext string, key []byte) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aesgcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aesgcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return fieldPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptField reverses EncryptField. An empty stored value decrypts to the
// empty string; anything else that fails authentication returns ErrDecrypt.
func DecryptField(stored string, key []byte) (string, error) {
	if stored == "" {
		return "", nil
	}
	if !strings.HasPrefix(stored, fieldPrefix) {
		return "", ErrDecrypt
	}
	sealed, err := base64.StdEncoding.DecodeString(stored[len(fieldPrefix):])
	if err != nil {
		return "", ErrDecrypt
	}
	aesgcm, err := newGCM(key)
	if err != nil {
		return "", ErrDecrypt
	}
	if len(sealed) < aesgcm.NonceSize() {
		return "", ErrDecrypt
	}
	nonce, ct := sealed[:aesgcm.NonceSize()], sealed[aesgcm.NonceSize():]
	plaintext, err := aesgcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
