package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
)

type plaintextVault struct {
	Entries []Entry `json:"entries"`
}

// Vault owns one vault file and the decrypted store loaded from it. It is not
// safe for concurrent use, and two processes saving the same file race with
// the last writer winning.
type Vault struct {
	Filename string
	KDF      *KDFParams

	key    []byte
	flags  uint16
	state  State
	store  *Store
	logger *log.Logger
}

// ImportResult lists what Import applied and what it left alone.
type ImportResult struct {
	Added   []string
	Skipped []string
}

func NewVault(filename string, kdf *KDFParams) *Vault {
	if kdf == nil {
		kdf = DefaultKDFParams()
	}
	return &Vault{
		Filename: filename,
		KDF:      kdf,
		logger:   log.New(io.Discard),
	}
}

func (v *Vault) SetLogger(l *log.Logger) {
	if l != nil {
		v.logger = l
	}
}

func (v *Vault) State() State { return v.state }

// Create writes a new empty vault. The file must not exist yet, and a file
// appearing at the path while the key is derived is never overwritten.
func (v *Vault) Create(password []byte) error {
	if _, err := os.Stat(v.Filename); err == nil {
		return fmt.Errorf("%w: %s", ErrVaultAlreadyExists, v.Filename)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if v.KDF.Iterations == 0 {
		v.KDF.Iterations = MinIterations
	}
	salt, err := randBytes(SaltLen)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyDerivation, err)
	}
	key, err := DeriveKey(password, salt, v.KDF.Iterations)
	if err != nil {
		return err
	}

	v.KDF.Salt = salt
	v.key = key
	v.flags = FlagCompressed
	v.store = &Store{}
	if err := v.write(installNew); err != nil {
		v.Close()
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrVaultAlreadyExists, v.Filename)
		}
		return err
	}
	v.state = Persisted
	v.logger.Debug("vault created", "path", v.Filename, "iterations", v.KDF.Iterations)
	return nil
}

// Open reads and decrypts the vault using the salt and iteration count stored
// in its header.
func (v *Vault) Open(password []byte) error {
	raw, err := os.ReadFile(v.Filename)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrVaultNotFound, v.Filename)
	}
	if err != nil {
		return err
	}

	header, aad, sealed, err := decodeHeader(raw)
	if err != nil {
		return err
	}

	key, err := DeriveKey(password, header.Salt, int(header.Iterations))
	if err != nil {
		return err
	}

	pt, err := Open(key, sealed, aad)
	if err != nil {
		zero(key)
		return err
	}
	// pt is reassigned below, so wipe whatever it holds on return.
	defer func() { zero(pt) }()

	if header.Flags&FlagCompressed != 0 {
		inflated, err := decompress(pt)
		if err != nil {
			zero(key)
			return ErrDecryption
		}
		zero(pt)
		pt = inflated
	}

	var data plaintextVault
	if err := json.Unmarshal(pt, &data); err != nil {
		zero(key)
		return ErrDecryption
	}
	store, err := NewStore(data.Entries...)
	for i := range data.Entries {
		zero(data.Entries[i].Secret)
	}
	if err != nil {
		zero(key)
		return fmt.Errorf("%w: %w", ErrDecryption, err)
	}

	v.Close()
	v.KDF.Iterations = int(header.Iterations)
	v.KDF.Salt = header.Salt
	v.key = key
	v.flags = header.Flags
	v.store = store
	v.state = Loaded
	v.logger.Debug("vault opened", "path", v.Filename, "entries", store.Len())
	return nil
}

// Save re-encrypts the store under the current key and atomically replaces
// the file. On failure the previous file is left as it was.
func (v *Vault) Save() error {
	if v.state == Unloaded {
		return ErrLocked
	}
	if err := v.write(atomicWriteFile); err != nil {
		return err
	}
	v.state = Persisted
	v.logger.Debug("vault saved", "path", v.Filename, "entries", v.store.Len())
	return nil
}

// Rekey switches to a new password with a fresh salt and saves immediately.
func (v *Vault) Rekey(password []byte) error {
	if v.state == Unloaded {
		return ErrLocked
	}
	salt, err := randBytes(SaltLen)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyDerivation, err)
	}
	iterations := max(v.KDF.Iterations, MinIterations)
	key, err := DeriveKey(password, salt, iterations)
	if err != nil {
		return err
	}

	oldKey, oldSalt, oldIterations := v.key, v.KDF.Salt, v.KDF.Iterations
	v.key, v.KDF.Salt, v.KDF.Iterations = key, salt, iterations
	if err := v.write(atomicWriteFile); err != nil {
		v.key, v.KDF.Salt, v.KDF.Iterations = oldKey, oldSalt, oldIterations
		zero(key)
		return err
	}
	zero(oldKey)
	v.state = Persisted
	v.logger.Debug("vault rekeyed", "path", v.Filename)
	return nil
}

func (v *Vault) write(install func(string, []byte, os.FileMode) error) error {
	if err := CheckIterations(v.KDF.Iterations); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	header := fileHeader{
		Flags:      v.flags,
		KDFAlgo:    kdfPBKDF2SHA256,
		Iterations: uint32(v.KDF.Iterations),
		Salt:       v.KDF.Salt,
	}
	hdrBytes, err := encodeHeader(header)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	pt, err := json.Marshal(plaintextVault{Entries: v.store.entries})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	defer func() { zero(pt) }()

	if v.flags&FlagCompressed != 0 {
		deflated, err := compress(pt)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		zero(pt)
		pt = deflated
	}

	sealed, err := Seal(v.key, pt, hdrBytes)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	raw := append(hdrBytes, sealed...)
	if err := install(v.Filename, raw, 0600); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// Close wipes the key and all secrets and returns the vault to Unloaded.
func (v *Vault) Close() {
	zero(v.key)
	v.key = nil
	if v.store != nil {
		v.store.Zero()
		v.store = nil
	}
	v.state = Unloaded
}

// CRUD operations. None of them touch the file until Save.

func (v *Vault) List() []Entry {
	if v.state == Unloaded {
		return nil
	}
	return v.store.Entries()
}

func (v *Vault) Get(label string) (Entry, error) {
	if v.state == Unloaded {
		return Entry{}, ErrLocked
	}
	e, ok := v.store.Get(label)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrEntryNotFound, label)
	}
	return e, nil
}

func (v *Vault) Resolve(query string) (Entry, error) {
	if v.state == Unloaded {
		return Entry{}, ErrLocked
	}
	e, ok := v.store.Resolve(query)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrEntryNotFound, query)
	}
	return e, nil
}

func (v *Vault) Search(query string) []Entry {
	if v.state == Unloaded {
		return nil
	}
	return v.store.Search(query)
}

func (v *Vault) Add(e Entry) error {
	if v.state == Unloaded {
		return ErrLocked
	}
	if err := v.store.Add(e); err != nil {
		return err
	}
	v.state = Modified
	return nil
}

func (v *Vault) Update(label string, e Entry) error {
	if v.state == Unloaded {
		return ErrLocked
	}
	if err := v.store.Replace(label, e); err != nil {
		return err
	}
	v.state = Modified
	return nil
}

func (v *Vault) Delete(label string) error {
	if v.state == Unloaded {
		return ErrLocked
	}
	if err := v.store.Remove(label); err != nil {
		return err
	}
	v.state = Modified
	return nil
}

// Checkpoint captures the entries and state so an unsaved change can be
// undone. Every checkpoint must be released with Discard or Restore.
type Checkpoint struct {
	v       *Vault
	entries []Entry
	state   State
}

func (v *Vault) Checkpoint() *Checkpoint {
	c := &Checkpoint{v: v, state: v.state}
	if v.store != nil {
		c.entries = v.store.Entries()
	}
	return c
}

// Restore puts the vault back to the captured entries and state. It does
// nothing once the vault has been closed.
func (c *Checkpoint) Restore() {
	if c.v.state == Unloaded || c.v.store == nil {
		c.Discard()
		return
	}
	c.v.store.Zero()
	c.v.store = &Store{entries: c.entries}
	c.v.state = c.state
	c.entries = nil
}

// Discard wipes the captured secrets.
func (c *Checkpoint) Discard() {
	for i := range c.entries {
		zero(c.entries[i].Secret)
	}
	c.entries = nil
}

// Import merges s into the vault. Labels already present are skipped, and if
// any incoming entry is invalid nothing is applied.
func (v *Vault) Import(s *Store) (ImportResult, error) {
	if v.state == Unloaded {
		return ImportResult{}, ErrLocked
	}
	added, skipped, err := v.store.Merge(s)
	if err != nil {
		return ImportResult{}, err
	}
	if len(added) > 0 {
		v.state = Modified
	}
	v.logger.Debug("entries imported", "added", len(added), "skipped", len(skipped))
	return ImportResult{Added: added, Skipped: skipped}, nil
}

// Zero securely wipes a byte slice from memory.
func Zero(b []byte) {
	zero(b)
}
