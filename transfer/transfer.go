// Package transfer converts vault entries to and from the text formats used by
// other authenticator apps: otpauth:// URI lists and Aegis JSON exports.
//
// Imports are all-or-nothing. Any malformed line or entry rejects the whole
// input with an *ImportFormatError that points at the offending position.
package transfer

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fahmaliyi/dotp/vault"
)

type Format string

const (
	FormatOTPAuth Format = "otpauth"
	FormatAegis   Format = "aegis"
)

var (
	ErrUnknownFormat = errors.New("transfer: unknown format")
	ErrImportFormat  = errors.New("transfer: malformed import")
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "otpauth", "text", "txt", "uri":
		return FormatOTPAuth, nil
	case "aegis", "json":
		return FormatAegis, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ImportFormatError locates a malformed record. Line is set for otpauth input,
// Entry (1-based index into the entries array) for Aegis input.
type ImportFormatError struct {
	Format Format
	Line   int
	Entry  int
	Err    error
}

func (e *ImportFormatError) Error() string {
	switch {
	case e.Line > 0:
		return fmt.Sprintf("%s import: line %d: %v", e.Format, e.Line, e.Err)
	case e.Entry > 0:
		return fmt.Sprintf("%s import: entry %d: %v", e.Format, e.Entry, e.Err)
	}
	return fmt.Sprintf("%s import: %v", e.Format, e.Err)
}

func (e *ImportFormatError) Unwrap() error { return e.Err }

func (e *ImportFormatError) Is(target error) bool { return target == ErrImportFormat }

// Import parses r in format f into a new store.
func Import(r io.Reader, f Format) (*vault.Store, error) {
	switch f {
	case FormatOTPAuth:
		return ImportOTPAuth(r)
	case FormatAegis:
		return ImportAegis(r)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// Export writes entries to w in format f.
func Export(w io.Writer, entries []vault.Entry, f Format) error {
	switch f {
	case FormatOTPAuth:
		return ExportOTPAuth(w, entries)
	case FormatAegis:
		return ExportAegis(w, entries)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}
