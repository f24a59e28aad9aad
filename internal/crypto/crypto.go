// Package crypto seals pinned clipboard payloads at rest with NaCl secretbox.
//
// The 32-byte key is derived from a user passphrase with HKDF-SHA256. Every
// sealed blob carries its own random nonce:
//
//	[ 24-byte nonce ][ ciphertext ]
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var hkdfInfo = []byte("clipdeck-pinstore-v1")

// ErrOpen is returned when a blob fails authentication, usually because the
// passphrase differs from the one it was sealed with.
var ErrOpen = errors.New("decryption failed (wrong passphrase?)")

// Key is a derived secretbox key.
type Key [keySize]byte

// DeriveKey derives a key from passphrase. salt scopes the key, e.g. to one
// database file; it may be nil.
func DeriveKey(passphrase string, salt []byte) (*Key, error) {
	h := hkdf.New(sha256.New, []byte(passphrase), salt, hkdfInfo)
	var key Key
	if _, err := io.ReadFull(h, key[:]); err != nil {
		return nil, fmt.Errorf("key derivation: %w", err)
	}
	return &key, nil
}

// Seal encrypts plaintext with key, prepending a random nonce.
func Seal(plaintext []byte, key *Key) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("nonce generation: %w", err)
	}
	k := (*[keySize]byte)(key)
	return secretbox.Seal(nonce[:], plaintext, &nonce, k), nil
}

// Open decrypts a blob produced by Seal.
func Open(sealed []byte, key *Key) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("sealed payload too short: %d bytes", len(sealed))
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, (*[keySize]byte)(key))
	if !ok {
		return nil, ErrOpen
	}
	return plain, nil
}
