package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// ErrOpen is returned when sealed data fails authentication.
var ErrOpen = errors.New("sealed data failed authentication")

// SecretBoxSealer seals cached credentials with NaCl secretbox under a key
// that never leaves the process.
type SecretBoxSealer struct {
	key [keySize]byte
}

// NewSealer creates a sealer with a fresh random key.
func NewSealer() (*SecretBoxSealer, error) {
	var s SecretBoxSealer
	if _, err := io.ReadFull(rand.Reader, s.key[:]); err != nil {
		return nil, fmt.Errorf("generate sealing key: %w", err)
	}
	return &s, nil
}

// NewSealerWithKey creates a sealer with a caller supplied 32-byte key.
func NewSealerWithKey(key []byte) (*SecretBoxSealer, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("sealing key must be %d bytes, got %d", keySize, len(key))
	}
	var s SecretBoxSealer
	copy(s.key[:], key)
	return &s, nil
}

// Seal encrypts plaintext. The random nonce is prepended to the output.
func (s *SecretBoxSealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

// Open decrypts data produced by Seal.
func (s *SecretBoxSealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrOpen
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrOpen
	}
	return plain, nil
}
