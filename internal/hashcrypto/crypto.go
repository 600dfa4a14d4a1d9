package hashcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

const (
	nonceSize = 12
	// Values written by older producers used a 16 byte IV; they still decrypt.
	legacyNonceSize = 16
	tagSize         = 16
)

var (
	// ErrInvalidKey is returned when a key is not exactly 32 bytes (64 hex chars).
	ErrInvalidKey = errors.New("encryption key must be 64 hex characters (32 bytes)")

	// ErrMalformedCiphertext is returned when a value is not "iv:authTag:ciphertext".
	ErrMalformedCiphertext = errors.New("malformed ciphertext")

	// ErrAuthentication is returned when the auth tag does not match. The
	// plaintext is never returned in that case.
	ErrAuthentication = errors.New("ciphertext authentication failed")
)

// Key is a validated AES-256 key.
type Key [KeySize]byte

// ParseKey decodes a 64 character hex string into a Key.
func ParseKey(hexKey string) (Key, error) {
	var k Key
	hexKey = strings.TrimSpace(hexKey)
	if len(hexKey) != 2*KeySize {
		return k, fmt.Errorf("%w: got %d characters", ErrInvalidKey, len(hexKey))
	}
	if _, err := hex.Decode(k[:], []byte(hexKey)); err != nil {
		return k, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return k, nil
}

// GenerateKey returns a fresh random key in hex form.
func GenerateKey() (string, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(k[:]), nil
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random IV and
// returns "iv:authTag:ciphertext", each part hex encoded.
func Encrypt(plaintext string, key Key) (string, error) {
	gcm, err := newGCM(key, nonceSize)
	if err != nil {
		return "", err
	}
	iv := make([]byte, nonceSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt is the inverse of Encrypt. Any modification of the IV, tag or
// ciphertext yields ErrAuthentication.
func Decrypt(value string, key Key) (string, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 parts, got %d", ErrMalformedCiphertext, len(parts))
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: iv: %v", ErrMalformedCiphertext, err)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: auth tag: %v", ErrMalformedCiphertext, err)
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %v", ErrMalformedCiphertext, err)
	}
	if len(tag) != tagSize {
		return "", fmt.Errorf("%w: auth tag is %d bytes", ErrAuthentication, len(tag))
	}
	if len(iv) != nonceSize && len(iv) != legacyNonceSize {
		return "", fmt.Errorf("%w: iv is %d bytes", ErrMalformedCiphertext, len(iv))
	}

	gcm, err := newGCM(key, len(iv))
	if err != nil {
		return "", err
	}
	plain, err := gcm.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", ErrAuthentication
	}
	return string(plain), nil
}

func newGCM(key Key, ivSize int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	if ivSize == nonceSize {
		return cipher.NewGCM(block)
	}
	return cipher.NewGCMWithNonceSize(block, ivSize)
}
