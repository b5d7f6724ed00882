package sealed

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Algorithm names a supported AEAD cipher.
type Algorithm string

const (
	// ChaCha20 is ChaCha20-Poly1305 (default).
	ChaCha20 Algorithm = "chacha20-poly1305"
	// AESGCM is AES-256-GCM.
	AESGCM Algorithm = "aes-256-gcm"
)

// newAEAD derives a 32-byte key from secret with SHA-256 and builds the cipher.
func newAEAD(secret string, alg Algorithm) (cipher.AEAD, error) {
	sum := sha256.Sum256([]byte(secret))

	switch alg {
	case AESGCM:
		block, err := aes.NewCipher(sum[:])
		if err != nil {
			return nil, fmt.Errorf("create cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("create GCM: %w", err)
		}
		return gcm, nil
	case ChaCha20, "":
		aead, err := chacha20poly1305.New(sum[:])
		if err != nil {
			return nil, fmt.Errorf("create chacha20: %w", err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", alg)
	}
}

// seal encrypts plaintext bound to key and returns nonce||ciphertext in base64.
func seal(aead cipher.AEAD, key, plaintext string) (string, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := aead.Seal(nonce, nonce, []byte(plaintext), []byte(key))
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// open reverses seal. A value moved to another key fails authentication.
func open(aead cipher.AEAD, key, encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}

	nonceSize := aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
