package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var secretKey []byte

const secretKeySalt = "nodeadmin-two-factor-secret"

var ErrSecretKeyNotConfigured = errors.New("secret key not configured")

// ConfigureSecretKey derives the AES key used to keep two-factor seeds
// encrypted at rest. An empty secret leaves sealing disabled.
func ConfigureSecretKey(secret string) {
	if secret == "" {
		return
	}
	reader := hkdf.New(sha256.New, []byte(secret), []byte(secretKeySalt), []byte("two-factor-seed"))
	secretKey = make([]byte, 32)
	if _, err := io.ReadFull(reader, secretKey); err != nil {
		panic(fmt.Sprintf("failed to derive secret key: %v", err))
	}
}

func newGCM() (cipher.AEAD, error) {
	if secretKey == nil {
		return nil, ErrSecretKeyNotConfigured
	}
	block, err := aes.NewCipher(secretKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// SealSecret encrypts plaintext with AES-GCM and returns nonce||ciphertext
// as base64.
func SealSecret(plaintext string) (string, error) {
	gcm, err := newGCM()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func OpenSecret(sealed string) (string, error) {
	gcm, err := newGCM()
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
