package transfer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/fahmaliyi/dotp/otp"
	"github.com/fahmaliyi/dotp/vault"
)

// ParseURI parses a single otpauth://totp/... or otpauth://hotp/... URI.
// Missing parameters take their defaults and unknown ones are ignored.
func ParseURI(s string) (vault.Entry, error) {
	var e vault.Entry

	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return e, err
	}
	if !strings.EqualFold(u.Scheme, "otpauth") {
		return e, errors.New("not an otpauth:// URI")
	}
	if u.Host == "" {
		return e, errors.New("missing otp type")
	}
	if e.Type, err = otp.ParseType(u.Host); err != nil {
		return e, fmt.Errorf("%w %q", err, u.Host)
	}

	e.Label = strings.TrimPrefix(u.Path, "/")
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return e, err
	}
	if issuer := strings.TrimSpace(q.Get("issuer")); issuer != "" && !strings.HasPrefix(e.Label, issuer+":") {
		if e.Label == "" {
			e.Label = issuer
		} else {
			e.Label = issuer + ":" + e.Label
		}
	}
	if strings.TrimSpace(e.Label) == "" {
		return e, errors.New("missing label")
	}

	if !q.Has("secret") {
		return e, errors.New("missing secret")
	}
	if e.Secret, err = otp.DecodeSecret(q.Get("secret")); err != nil {
		return e, err
	}
	if e.Algorithm, err = otp.ParseAlgorithm(q.Get("algorithm")); err != nil {
		return e, fmt.Errorf("%w %q", err, q.Get("algorithm"))
	}
	if q.Has("digits") {
		if e.Digits, err = strconv.Atoi(q.Get("digits")); err != nil || e.Digits <= 0 {
			return e, fmt.Errorf("%w: %q", otp.ErrInvalidDigits, q.Get("digits"))
		}
	}
	if q.Has("period") {
		if e.Period, err = strconv.Atoi(q.Get("period")); err != nil || e.Period <= 0 {
			return e, fmt.Errorf("%w: %q", otp.ErrInvalidPeriod, q.Get("period"))
		}
	}
	if q.Has("counter") {
		if e.Counter, err = strconv.ParseUint(q.Get("counter"), 10, 64); err != nil {
			return e, fmt.Errorf("invalid counter %q", q.Get("counter"))
		}
	}
	return e, nil
}

// URI renders e with every parameter spelled out.
func URI(e vault.Entry) string {
	k := e.Key.WithDefaults()
	var b strings.Builder
	fmt.Fprintf(&b, "otpauth://%s/%s?secret=%s&algorithm=%s&digits=%d",
		k.Type, url.PathEscape(e.Label), otp.EncodeSecret(k.Secret), k.Algorithm, k.Digits)
	if k.Type == otp.HOTP {
		fmt.Fprintf(&b, "&counter=%d", k.Counter)
	} else {
		fmt.Fprintf(&b, "&period=%d", k.Period)
	}
	return b.String()
}

// ImportOTPAuth reads one URI per line. Blank lines and lines starting with
// '#' are skipped.
func ImportOTPAuth(r io.Reader) (*vault.Store, error) {
	s := &vault.Store{}
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if n == 1 {
			line = strings.TrimPrefix(line, "\uFEFF")
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		e, err := ParseURI(line)
		if err == nil {
			err = s.Add(e)
		}
		if err != nil {
			return nil, &ImportFormatError{Format: FormatOTPAuth, Line: n, Err: err}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &ImportFormatError{Format: FormatOTPAuth, Err: err}
	}
	return s, nil
}

func ExportOTPAuth(w io.Writer, entries []vault.Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if _, err := fmt.Fprintln(bw, URI(e)); err != nil {
			return err
		}
	}
	return bw.Flush()
}
