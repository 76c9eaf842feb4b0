package vault

import (
	"errors"

	"github.com/fahmaliyi/dotp/otp"
)

const (
	KeyLen        = 32
	SaltLen       = 16
	NonceLen      = 24
	MinIterations = 480000
	// MaxIterations bounds the work a crafted header can demand before the
	// AEAD tag is checked.
	MaxIterations = 100_000_000
	Magic         = "DOTP"
	Version       = 0x01

	kdfPBKDF2SHA256 = 0x01
)

// Header flags.
const (
	FlagCompressed uint16 = 1 << iota
)

var (
	ErrKeyDerivation      = errors.New("vault: key derivation failed")
	ErrDecryption         = errors.New("vault: invalid password or corrupted file")
	ErrVaultNotFound      = errors.New("vault: file not found")
	ErrVaultAlreadyExists = errors.New("vault: file already exists")
	ErrPersistence        = errors.New("vault: could not persist vault")
	ErrLocked             = errors.New("vault: locked")
	ErrDuplicateLabel     = errors.New("vault: duplicate label")
	ErrEntryNotFound      = errors.New("vault: entry not found")
	ErrInvalidEntry       = errors.New("vault: invalid entry")
)

// Entry is one OTP credential.
type Entry struct {
	Label string `json:"label"`
	otp.Key
}

func (e Entry) Clone() Entry {
	e.Key = e.Key.Clone()
	return e
}

// KDFParams are fixed at creation time and stored in the header.
type KDFParams struct {
	Iterations int
	Salt       []byte
}

// State tracks where the in-memory store stands relative to the file.
type State int

const (
	Unloaded State = iota
	Loaded
	Modified
	Persisted
)

func (s State) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Modified:
		return "modified"
	case Persisted:
		return "persisted"
	}
	return "unloaded"
}

type fileHeader struct {
	Flags      uint16
	KDFAlgo    uint8
	Iterations uint32
	Salt       []byte
}
