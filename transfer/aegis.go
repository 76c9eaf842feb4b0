package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/fahmaliyi/dotp/otp"
	"github.com/fahmaliyi/dotp/vault"
)

// Namespace for the v5 UUIDs given to exported entries, so exporting the same
// vault twice produces identical files.
var aegisNamespace = uuid.MustParse("5d0c8f4e-6a0b-4b52-9c1e-3f7a2d9e8b61")

var errAegisEncrypted = errors.New("encrypted Aegis exports are not supported, export as plain JSON")

type aegisFile struct {
	Version int             `json:"version"`
	Header  aegisHeader     `json:"header"`
	DB      json.RawMessage `json:"db,omitempty"`
	// Older Aegis builds wrote the database under this key.
	Database json.RawMessage `json:"database,omitempty"`
}

type aegisHeader struct {
	Slots  any `json:"slots"`
	Params any `json:"params"`
}

type aegisDB struct {
	Version int               `json:"version"`
	Entries []json.RawMessage `json:"entries"`
	Groups  []any             `json:"groups"`
}

type aegisEntry struct {
	Type     string    `json:"type"`
	UUID     string    `json:"uuid,omitempty"`
	Name     string    `json:"name"`
	Issuer   string    `json:"issuer"`
	Note     string    `json:"note"`
	Favorite bool      `json:"favorite"`
	Icon     *string   `json:"icon"`
	Info     aegisInfo `json:"info"`
}

type aegisInfo struct {
	Secret    string  `json:"secret"`
	Algo      string  `json:"algo"`
	Algorithm string  `json:"algorithm,omitempty"`
	Digits    int     `json:"digits"`
	Period    int     `json:"period,omitempty"`
	Counter   *uint64 `json:"counter,omitempty"`
}

// ImportAegis reads an unencrypted Aegis JSON export.
func ImportAegis(r io.Reader) (*vault.Store, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, &ImportFormatError{Format: FormatAegis, Err: err}
	}

	var f aegisFile
	if err := json.Unmarshal(raw, &f); err != nil {
		ife := &ImportFormatError{Format: FormatAegis, Err: err}
		var se *json.SyntaxError
		if errors.As(err, &se) {
			ife.Line = lineAt(raw, se.Offset)
		}
		return nil, ife
	}

	db := f.DB
	if len(db) == 0 || bytes.Equal(db, []byte("null")) {
		db = f.Database
	}
	db = bytes.TrimSpace(db)
	switch {
	case len(db) == 0 || bytes.Equal(db, []byte("null")):
		return nil, &ImportFormatError{Format: FormatAegis, Err: errors.New("missing db")}
	case db[0] == '"':
		return nil, &ImportFormatError{Format: FormatAegis, Err: errAegisEncrypted}
	}

	var d aegisDB
	if err := json.Unmarshal(db, &d); err != nil {
		return nil, &ImportFormatError{Format: FormatAegis, Err: err}
	}

	s := &vault.Store{}
	for i, rawEntry := range d.Entries {
		e, err := parseAegisEntry(rawEntry)
		if err == nil {
			err = s.Add(e)
		}
		if err != nil {
			return nil, &ImportFormatError{Format: FormatAegis, Entry: i + 1, Err: err}
		}
	}
	return s, nil
}

func parseAegisEntry(raw json.RawMessage) (vault.Entry, error) {
	var (
		ae  aegisEntry
		e   vault.Entry
		err error
	)
	if err = json.Unmarshal(raw, &ae); err != nil {
		return e, err
	}

	if ae.Type == "" {
		return e, errors.New("missing type")
	}
	if e.Type, err = otp.ParseType(ae.Type); err != nil {
		return e, fmt.Errorf("%w %q", err, ae.Type)
	}

	switch {
	case ae.Issuer == "":
		e.Label = ae.Name
	case ae.Name == "":
		e.Label = ae.Issuer
	default:
		e.Label = ae.Issuer + ": " + ae.Name
	}

	if ae.Info.Secret == "" {
		return e, errors.New("missing secret")
	}
	if e.Secret, err = otp.DecodeSecret(ae.Info.Secret); err != nil {
		return e, err
	}
	algo := ae.Info.Algo
	if algo == "" {
		algo = ae.Info.Algorithm
	}
	if e.Algorithm, err = otp.ParseAlgorithm(algo); err != nil {
		return e, fmt.Errorf("%w %q", err, algo)
	}
	e.Digits = ae.Info.Digits
	e.Period = ae.Info.Period
	if ae.Info.Counter != nil {
		e.Counter = *ae.Info.Counter
	}
	return e, nil
}

// ExportAegis writes entries as an unencrypted Aegis vault. Labels of the
// form "issuer: name" are split back into their two fields.
func ExportAegis(w io.Writer, entries []vault.Entry) error {
	d := struct {
		Version int          `json:"version"`
		Entries []aegisEntry `json:"entries"`
		Groups  []any        `json:"groups"`
	}{Version: 2, Entries: make([]aegisEntry, 0, len(entries)), Groups: []any{}}

	for _, e := range entries {
		k := e.Key.WithDefaults()
		ae := aegisEntry{
			Type: string(k.Type),
			UUID: uuid.NewSHA1(aegisNamespace, []byte(e.Label)).String(),
			Name: e.Label,
			Info: aegisInfo{
				Secret: otp.EncodeSecret(k.Secret),
				Algo:   string(k.Algorithm),
				Digits: k.Digits,
			},
		}
		if issuer, name, ok := strings.Cut(e.Label, ": "); ok && issuer != "" && name != "" {
			ae.Issuer, ae.Name = issuer, name
		}
		if k.Type == otp.HOTP {
			counter := k.Counter
			ae.Info.Counter = &counter
		} else {
			ae.Info.Period = k.Period
		}
		d.Entries = append(d.Entries, ae)
	}

	f := struct {
		Version int         `json:"version"`
		Header  aegisHeader `json:"header"`
		DB      any         `json:"db"`
	}{Version: 1, DB: d}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(f)
}

func lineAt(b []byte, offset int64) int {
	if offset > int64(len(b)) {
		offset = int64(len(b))
	}
	return bytes.Count(b[:offset], []byte("\n")) + 1
}
