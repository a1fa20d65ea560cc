package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultKeyCost is the bcrypt work factor used by HashKey.
const DefaultKeyCost = 12

// ErrAdminDisabled is returned by Verify when no admin key hash is configured.
var ErrAdminDisabled = errors.New("auth: admin endpoints disabled")

// KeyVerifier checks the X-Admin-Key header against a bcrypt hash, so the
// plaintext key never appears in configuration.
type KeyVerifier struct {
	hash []byte
}

// NewKeyVerifier accepts an empty hash, which disables admin access.
func NewKeyVerifier(hash string) (*KeyVerifier, error) {
	if hash == "" {
		return &KeyVerifier{}, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("auth: admin key hash is not a bcrypt hash: %w", err)
	}
	return &KeyVerifier{hash: []byte(hash)}, nil
}

func (v *KeyVerifier) Enabled() bool {
	return len(v.hash) > 0
}

// Verify returns nil only if key matches the configured hash.
func (v *KeyVerifier) Verify(key string) error {
	if !v.Enabled() {
		return ErrAdminDisabled
	}
	if key == "" {
		return fmt.Errorf("auth: missing admin key")
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(key)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("auth: invalid admin key")
		}
		return fmt.Errorf("auth: comparing admin key: %w", err)
	}
	return nil
}

// HashKey produces the value for auth.admin_key_hash. Keys longer than 72
// bytes are rejected because bcrypt would silently truncate them.
func HashKey(key string, cost int) (string, error) {
	if key == "" {
		return "", fmt.Errorf("auth: admin key must not be empty")
	}
	if len(key) > 72 {
		return "", fmt.Errorf("auth: admin key must be 72 bytes or fewer")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing admin key: %w", err)
	}
	return string(hashed), nil
}
