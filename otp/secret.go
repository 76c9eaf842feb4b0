package otp

import (
	"encoding/base32"
	"fmt"
	"strings"
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// DecodeSecret decodes a user supplied Base32 secret. Whitespace, dashes and
// padding are ignored and lowercase input is accepted.
func DecodeSecret(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '-', '=':
			return -1
		}
		return r
	}, strings.ToUpper(s))

	b, err := b32.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	if len(b) == 0 {
		return nil, ErrInvalidSecret
	}
	return b, nil
}

// EncodeSecret is the inverse of DecodeSecret: unpadded uppercase Base32.
func EncodeSecret(b []byte) string {
	return b32.EncodeToString(b)
}
