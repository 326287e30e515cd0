package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultKDFIterations is the PBKDF2 work factor (OWASP 2023).
	DefaultKDFIterations = 600000

	saltFile = "KEYSALT"
	saltSize = 32
)

// DeriveKey stretches passphrase into a 32-byte AES-256 key with
// PBKDF2-SHA256. Iterations <= 0 selects DefaultKDFIterations.
func DeriveKey(passphrase string, salt []byte, iterations int) []byte {
	if iterations <= 0 {
		iterations = DefaultKDFIterations
	}
	return pbkdf2.Key([]byte(passphrase), salt, iterations, 32, sha256.New)
}

// LoadOrCreateSalt returns the salt stored in dir, generating and writing a
// random one on first use. The salt is not secret but must not change for the
// lifetime of the data directory.
func LoadOrCreateSalt(dir string) ([]byte, error) {
	path := filepath.Join(dir, saltFile)
	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) != saltSize {
			return nil, fmt.Errorf("%w: %s has %d bytes", ErrInvalidData, path, len(salt))
		}
		return salt, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	salt = make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, fmt.Errorf("writing salt: %w", err)
	}
	return salt, nil
}
