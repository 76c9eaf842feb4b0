package otp

import (
	"crypto/hmac"
	"encoding/binary"
	"fmt"
)

var pow10 = [MaxDigits + 1]uint64{
	1, 10, 100, 1000, 10000, 100000, 1000000,
	10000000, 100000000, 1000000000, 10000000000,
}

// HOTPCode implements RFC 4226 for the given counter.
func HOTPCode(secret []byte, counter uint64, digits int, alg Algorithm) (string, error) {
	if len(secret) == 0 {
		return "", ErrInvalidSecret
	}
	if digits < MinDigits || digits > MaxDigits {
		return "", ErrInvalidDigits
	}
	newHash, err := alg.hash()
	if err != nil {
		return "", err
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(newHash, secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation: low nibble of the last byte selects a 31-bit window.
	offset := sum[len(sum)-1] & 0x0f
	code := uint64(binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff)

	return fmt.Sprintf("%0*d", digits, code%pow10[digits]), nil
}
