package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealInfo = "cookiepool/record-seal/v1"

// ErrSealedTooShort is returned when a sealed blob cannot hold a nonce.
var ErrSealedTooShort = errors.New("sealed value too short")

// Sealer encrypts credential values with XChaCha20-Poly1305.
// A nil *Sealer passes values through unchanged.
type Sealer struct {
	key []byte
}

// NewSealer derives a 32-byte key from secret using HKDF-SHA256.
// An empty secret yields a nil Sealer (plaintext storage).
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, nil
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(sealInfo)), key); err != nil {
		return nil, err
	}
	return &Sealer{key: key}, nil
}

// Enabled reports whether values are actually encrypted.
func (s *Sealer) Enabled() bool { return s != nil }

// Seal encrypts plaintext; output is nonce || ciphertext || tag.
// The identity is bound as associated data so records cannot be swapped.
func (s *Sealer) Seal(plaintext []byte, identity string) ([]byte, error) {
	if s == nil {
		return append([]byte(nil), plaintext...), nil
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, []byte(identity)), nil
}

// Open decrypts a blob produced by Seal.
func (s *Sealer) Open(sealed []byte, identity string) ([]byte, error) {
	if s == nil {
		return append([]byte(nil), sealed...), nil
	}
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, ErrSealedTooShort
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce, ct := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	return aead.Open(nil, nonce, ct, []byte(identity))
}
