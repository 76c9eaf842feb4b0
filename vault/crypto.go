package vault

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/chacha20poly1305"
)

// renameFile installs the temp file over the vault and linkFile installs it
// only if nothing exists at the target yet. Replaced in tests.
var (
	renameFile = os.Rename
	linkFile   = os.Link
)

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func randBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Seal encrypts plaintext with XChaCha20-Poly1305 under a fresh random nonce
// and returns nonce||ciphertext.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce, err := randBytes(NonceLen)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, NonceLen+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, aad), nil
}

// Open reverses Seal. Every failure is reported as ErrDecryption.
func Open(key, sealed, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, ErrDecryption
	}
	if len(sealed) < NonceLen+aead.Overhead() {
		return nil, ErrDecryption
	}
	pt, err := aead.Open(nil, sealed[:NonceLen], sealed[NonceLen:], aad)
	if err != nil {
		return nil, ErrDecryption
	}
	return pt, nil
}

func compress(pt []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(pt, nil), nil
}

func decompress(b []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(b, nil)
}

func encodeHeader(h fileHeader) ([]byte, error) {
	if len(h.Salt) > 255 {
		return nil, errors.New("salt too long")
	}
	buf := &bytes.Buffer{}
	buf.WriteString(Magic)
	buf.WriteByte(Version)
	_ = binary.Write(buf, binary.BigEndian, h.Flags)
	buf.WriteByte(h.KDFAlgo)
	_ = binary.Write(buf, binary.BigEndian, h.Iterations)
	buf.WriteByte(uint8(len(h.Salt)))
	buf.Write(h.Salt)
	return buf.Bytes(), nil
}

// decodeHeader splits raw into the parsed header, the header bytes (used as
// AAD) and the sealed payload.
func decodeHeader(raw []byte) (fileHeader, []byte, []byte, error) {
	var h fileHeader
	r := bytes.NewReader(raw)

	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != Magic {
		return h, nil, nil, ErrDecryption
	}

	var version uint8
	if err := binary.Read(r, binary.BigEndian, &version); err != nil || version != Version {
		return h, nil, nil, ErrDecryption
	}

	if err := binary.Read(r, binary.BigEndian, &h.Flags); err != nil {
		return h, nil, nil, ErrDecryption
	}
	if err := binary.Read(r, binary.BigEndian, &h.KDFAlgo); err != nil || h.KDFAlgo != kdfPBKDF2SHA256 {
		return h, nil, nil, ErrDecryption
	}
	if err := binary.Read(r, binary.BigEndian, &h.Iterations); err != nil {
		return h, nil, nil, ErrDecryption
	}
	if CheckIterations(int(h.Iterations)) != nil {
		return h, nil, nil, ErrDecryption
	}

	var saltLen uint8
	if err := binary.Read(r, binary.BigEndian, &saltLen); err != nil || saltLen != SaltLen {
		return h, nil, nil, ErrDecryption
	}
	h.Salt = make([]byte, saltLen)
	if _, err := io.ReadFull(r, h.Salt); err != nil {
		return h, nil, nil, ErrDecryption
	}

	n := len(raw) - r.Len()
	return h, raw[:n], raw[n:], nil
}

// atomicWriteFile writes data to a temp file in the target directory, syncs
// it and hands it to install. With installNew the target must not exist.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return writeAndInstall(path, data, perm, renameFile)
}

func installNew(path string, data []byte, perm os.FileMode) error {
	return writeAndInstall(path, data, perm, func(tmpPath, path string) error {
		if err := linkFile(tmpPath, path); err != nil {
			return err
		}
		_ = os.Remove(tmpPath)
		return nil
	})
}

func writeAndInstall(path string, data []byte, perm os.FileMode, install func(tmpPath, path string) error) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".dotp-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	installed := false
	defer func() {
		tmpFile.Close()
		if !installed {
			os.Remove(tmpPath)
		}
	}()

	if err := tmpFile.Chmod(perm); err != nil {
		return err
	}
	if _, err := tmpFile.Write(data); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := install(tmpPath, path); err != nil {
		return fmt.Errorf("install %s: %w", filepath.Base(path), err)
	}
	installed = true

	_ = syncDir(dir)
	return nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
