// Package cryptox implements the at-rest encryption used by the credential
// store: argon2id key derivation and AES-256-GCM sealing.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// KeySize is the length of keys produced by DeriveKey (AES-256).
const KeySize = 32

// ErrMalformed is returned by Open when the sealed blob is shorter than a nonce.
var ErrMalformed = errors.New("malformed ciphertext")

// DeriveKey stretches a device secret into an AES-256 key with argon2id.
func DeriveKey(secret []byte, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, KeySize)
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	return b, nil
}

// Seal encrypts plaintext with AES-GCM under key and returns nonce||ciphertext.
//
// aad is authenticated but not encrypted; the credential store passes the
// entry name so a value copied under another key fails to open.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce, err := RandomBytes(aead.NonceSize())
	if err != nil {
		return nil, err
	}

	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open reverses Seal.
func Open(key, sealed, aad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	ns := aead.NonceSize()
	if len(sealed) < ns {
		return nil, ErrMalformed
	}

	plaintext, err := aead.Open(nil, sealed[:ns], sealed[ns:], aad)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
