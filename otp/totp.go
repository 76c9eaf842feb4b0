package otp

import "time"

// GenerateAt returns the code for k at the given instant and the number of
// seconds it stays valid. HOTP keys use k.Counter and report 0 seconds.
func GenerateAt(k Key, at time.Time) (string, int, error) {
	k = k.WithDefaults()
	if err := k.Validate(); err != nil {
		return "", 0, err
	}
	if k.Type == HOTP {
		code, err := HOTPCode(k.Secret, k.Counter, k.Digits, k.Algorithm)
		return code, 0, err
	}

	unix := at.Unix()
	if unix < 0 {
		return "", 0, ErrInvalidTime
	}
	period := int64(k.Period)
	code, err := HOTPCode(k.Secret, uint64(unix/period), k.Digits, k.Algorithm)
	if err != nil {
		return "", 0, err
	}
	return code, int(period - unix%period), nil
}

// Generator computes codes against an injected clock.
type Generator struct {
	now func() time.Time
}

// NewGenerator uses time.Now when now is nil.
func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

func (g *Generator) Code(k Key) (string, int, error) {
	return GenerateAt(k, g.now())
}

// ValidUntil is the first instant at which the current TOTP code is replaced.
// It is the zero time for HOTP keys.
func (g *Generator) ValidUntil(k Key) (time.Time, error) {
	now := g.now()
	_, remaining, err := GenerateAt(k, now)
	if err != nil || k.Type == HOTP {
		return time.Time{}, err
	}
	return time.Unix(now.Unix()+int64(remaining), 0).In(now.Location()), nil
}
