package vault

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

func DefaultKDFParams() *KDFParams { return &KDFParams{Iterations: MinIterations} }

// CheckIterations reports whether n is an iteration count a vault header can
// carry and Open will accept.
func CheckIterations(n int) error {
	if n < MinIterations || n > MaxIterations {
		return fmt.Errorf("iterations must be between %d and %d, got %d", MinIterations, MaxIterations, n)
	}
	return nil
}

// DeriveKey stretches password into a KeyLen-byte key with PBKDF2-HMAC-SHA256.
func DeriveKey(password, salt []byte, iterations int) ([]byte, error) {
	switch {
	case len(password) == 0:
		return nil, fmt.Errorf("%w: empty password", ErrKeyDerivation)
	case len(salt) != SaltLen:
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrKeyDerivation, SaltLen, len(salt))
	}
	if err := CheckIterations(iterations); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyDerivation, err)
	}
	return pbkdf2.Key(password, salt, iterations, KeyLen, sha256.New), nil
}
