package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

// Cipher seals tokens before they reach the database.
type Cipher interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

// NewCipher returns an AES-256-GCM cipher for a hex key, or a passthrough
// cipher when hexKey is empty.
func NewCipher(hexKey string) (Cipher, error) {
	if hexKey == "" {
		return nopCipher{}, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode token key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("token key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &gcmCipher{aead: aead}, nil
}

type nopCipher struct{}

func (nopCipher) Seal(plain string) (string, error)  { return plain, nil }
func (nopCipher) Open(sealed string) (string, error) { return sealed, nil }

type gcmCipher struct {
	aead cipher.AEAD
}

// Seal stores nonce || ciphertext as raw base64.
func (c *gcmCipher) Seal(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	out := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.RawStdEncoding.EncodeToString(out), nil
}

func (c *gcmCipher) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	payload, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode sealed token: %w", err)
	}
	n := c.aead.NonceSize()
	if len(payload) < n {
		return "", fmt.Errorf("sealed token is too short")
	}
	plain, err := c.aead.Open(nil, payload[:n], payload[n:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt token: %w", err)
	}
	return string(plain), nil
}
