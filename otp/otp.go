package otp

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"hash"
	"strings"
)

const (
	DefaultDigits    = 6
	DefaultPeriod    = 30
	DefaultAlgorithm = SHA1

	MinDigits = 6
	MaxDigits = 10
)

var (
	ErrInvalidSecret        = errors.New("otp: invalid secret")
	ErrInvalidDigits        = errors.New("otp: digits must be between 6 and 10")
	ErrInvalidPeriod        = errors.New("otp: period must be positive")
	ErrUnsupportedAlgorithm = errors.New("otp: unsupported algorithm")
	ErrUnsupportedType      = errors.New("otp: unsupported type")
	ErrInvalidTime          = errors.New("otp: time before unix epoch")
)

// Algorithm is the HMAC hash used to compute codes.
type Algorithm string

const (
	SHA1   Algorithm = "SHA1"
	SHA256 Algorithm = "SHA256"
	SHA512 Algorithm = "SHA512"
)

// ParseAlgorithm accepts the usual spellings ("sha1", "SHA-256", ...).
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "") {
	case "", "SHA1":
		return SHA1, nil
	case "SHA256":
		return SHA256, nil
	case "SHA512":
		return SHA512, nil
	}
	return "", ErrUnsupportedAlgorithm
}

func (a Algorithm) hash() (func() hash.Hash, error) {
	switch a {
	case SHA1:
		return sha1.New, nil
	case SHA256:
		return sha256.New, nil
	case SHA512:
		return sha512.New, nil
	}
	return nil, ErrUnsupportedAlgorithm
}

// Type distinguishes time-based from counter-based keys.
type Type string

const (
	TOTP Type = "totp"
	HOTP Type = "hotp"
)

func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "totp":
		return TOTP, nil
	case "hotp":
		return HOTP, nil
	}
	return "", ErrUnsupportedType
}

// Key holds everything needed to compute a code for one credential.
type Key struct {
	Type      Type      `json:"type"`
	Secret    []byte    `json:"secret"`
	Algorithm Algorithm `json:"algorithm"`
	Digits    int       `json:"digits"`
	Period    int       `json:"period,omitempty"`
	Counter   uint64    `json:"counter,omitempty"`
}

// WithDefaults returns a copy of k with zero-valued parameters filled in.
func (k Key) WithDefaults() Key {
	if k.Type == "" {
		k.Type = TOTP
	}
	if k.Algorithm == "" {
		k.Algorithm = DefaultAlgorithm
	}
	if k.Digits == 0 {
		k.Digits = DefaultDigits
	}
	if k.Period == 0 && k.Type == TOTP {
		k.Period = DefaultPeriod
	}
	return k
}

// Validate reports the first parameter that makes k unusable.
func (k Key) Validate() error {
	if len(k.Secret) == 0 {
		return ErrInvalidSecret
	}
	if k.Digits < MinDigits || k.Digits > MaxDigits {
		return ErrInvalidDigits
	}
	if _, err := k.Algorithm.hash(); err != nil {
		return err
	}
	switch k.Type {
	case TOTP:
		if k.Period <= 0 {
			return ErrInvalidPeriod
		}
	case HOTP:
	default:
		return ErrUnsupportedType
	}
	return nil
}

// Clone returns a copy of k that does not share the secret's backing array.
func (k Key) Clone() Key {
	if k.Secret != nil {
		s := make([]byte, len(k.Secret))
		copy(s, k.Secret)
		k.Secret = s
	}
	return k
}
