package storage

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var _ KV = (*Sealed)(nil)

// ErrSealedValue is returned when a stored value fails authentication.
var ErrSealedValue = errors.New("sealed value rejected")

const sealSalt = "beegreen-kv-v1"

// Sealed encrypts every value with XChaCha20-Poly1305 before handing it to
// the wrapped store. The key name is bound as additional data so values
// cannot be swapped between keys.
type Sealed struct {
	inner KV
	aead  cipher.AEAD
}

// NewSealed derives a 256-bit key from secret and wraps inner.
func NewSealed(inner KV, secret string) (*Sealed, error) {
	if secret == "" {
		return nil, fmt.Errorf("sealed store: empty secret")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), []byte(sealSalt), []byte("kv"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("sealed store: derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("sealed store: %w", err)
	}
	return &Sealed{inner: inner, aead: aead}, nil
}

func (s *Sealed) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	ns := s.aead.NonceSize()
	if len(raw) < ns+s.aead.Overhead() {
		return nil, ErrSealedValue
	}
	plain, err := s.aead.Open(nil, raw[:ns], raw[ns:], []byte(key))
	if err != nil {
		return nil, ErrSealedValue
	}
	return plain, nil
}

func (s *Sealed) Set(ctx context.Context, key string, value []byte) error {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	return s.inner.Set(ctx, key, s.aead.Seal(nonce, nonce, value, []byte(key)))
}

func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *Sealed) Close() error {
	return s.inner.Close()
}
