package vault

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahmaliyi/dotp/otp"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	k, err := randBytes(KeyLen)
	require.NoError(t, err)
	return k
}

func TestSealOpen_RoundTrip(t *testing.T) {
	t.Parallel()
	key := testKey(t)
	for _, pt := range [][]byte{nil, []byte("x"), bytes.Repeat([]byte("entries"), 1000)} {
		sealed, err := Seal(key, pt, []byte("aad"))
		require.NoError(t, err)
		got, err := Open(key, sealed, []byte("aad"))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(pt, got))
	}
}

func TestSealOpen_FreshNoncePerCall(t *testing.T) {
	t.Parallel()
	key := testKey(t)
	a, err := Seal(key, []byte("same"), nil)
	require.NoError(t, err)
	b, err := Seal(key, []byte("same"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, a[:NonceLen], b[:NonceLen])
	assert.NotEqual(t, a, b)
}

func TestOpen_RejectsTampering(t *testing.T) {
	t.Parallel()
	key := testKey(t)
	sealed, err := Seal(key, []byte("payload"), []byte("header"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		key    []byte
		sealed []byte
		aad    []byte
	}{
		{"wrong key", testKey(t), sealed, []byte("header")},
		{"wrong aad", key, sealed, []byte("HEADER")},
		{"flipped tag", key, append(append([]byte(nil), sealed[:len(sealed)-1]...), sealed[len(sealed)-1]^1), []byte("header")},
		{"truncated", key, sealed[:len(sealed)-1], []byte("header")},
		{"shorter than nonce", key, sealed[:NonceLen-1], []byte("header")},
		{"short key", key[:16], sealed, []byte("header")},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pt, err := Open(tt.key, tt.sealed, tt.aad)
			assert.ErrorIs(t, err, ErrDecryption)
			assert.Nil(t, pt)
		})
	}
}

func TestHeader_RoundTrip(t *testing.T) {
	t.Parallel()
	salt := bytes.Repeat([]byte{0xab}, SaltLen)
	h := fileHeader{Flags: FlagCompressed, KDFAlgo: kdfPBKDF2SHA256, Iterations: 600000, Salt: salt}
	hdr, err := encodeHeader(h)
	require.NoError(t, err)
	assert.Len(t, hdr, 29)

	got, aad, rest, err := decodeHeader(append(hdr, []byte("sealed")...))
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, hdr, aad)
	assert.Equal(t, []byte("sealed"), rest)
}

func TestHeader_Rejects(t *testing.T) {
	t.Parallel()
	good, err := encodeHeader(fileHeader{KDFAlgo: kdfPBKDF2SHA256, Iterations: MinIterations, Salt: make([]byte, SaltLen)})
	require.NoError(t, err)

	mutate := func(f func(b []byte)) []byte {
		b := append([]byte(nil), good...)
		f(b)
		return b
	}
	tests := map[string][]byte{
		"bad magic":           mutate(func(b []byte) { b[0] = 'X' }),
		"future version":      mutate(func(b []byte) { b[4] = 0x02 }),
		"unknown kdf":         mutate(func(b []byte) { b[7] = 0x09 }),
		"too few iterations":  mutate(func(b []byte) { b[9] = 0 }),
		"too many iterations": mutate(func(b []byte) { b[8] = 0xff }),
		"wrong salt length":   mutate(func(b []byte) { b[12] = 8 }),
		"truncated salt":      good[:20],
	}
	for name, raw := range tests {
		_, _, _, err := decodeHeader(raw)
		assert.ErrorIs(t, err, ErrDecryption, name)
	}
}

func TestDeriveKey(t *testing.T) {
	t.Parallel()
	salt := bytes.Repeat([]byte{1}, SaltLen)

	k1, err := DeriveKey([]byte("pw"), salt, MinIterations)
	require.NoError(t, err)
	assert.Len(t, k1, KeyLen)
	k2, err := DeriveKey([]byte("pw"), salt, MinIterations)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	_, err = DeriveKey(nil, salt, MinIterations)
	assert.ErrorIs(t, err, ErrKeyDerivation)
	_, err = DeriveKey([]byte("pw"), salt[:8], MinIterations)
	assert.ErrorIs(t, err, ErrKeyDerivation)
	_, err = DeriveKey([]byte("pw"), salt, MinIterations-1)
	assert.ErrorIs(t, err, ErrKeyDerivation)
	_, err = DeriveKey([]byte("pw"), salt, MaxIterations+1)
	assert.ErrorIs(t, err, ErrKeyDerivation)
}

func TestCheckIterations(t *testing.T) {
	t.Parallel()
	assert.NoError(t, CheckIterations(MinIterations))
	assert.NoError(t, CheckIterations(MaxIterations))
	assert.Error(t, CheckIterations(0))
	assert.Error(t, CheckIterations(MinIterations-1))
	assert.Error(t, CheckIterations(MaxIterations+1))
}

func TestCompress_RoundTrip(t *testing.T) {
	t.Parallel()
	pt := []byte(`{"entries":[{"label":"GitHub"},{"label":"GitLab"}]}`)
	c, err := compress(pt)
	require.NoError(t, err)
	got, err := decompress(c)
	require.NoError(t, err)
	assert.Equal(t, pt, got)

	_, err = decompress([]byte("not zstd"))
	assert.Error(t, err)
}

// Not parallel: swaps the package-level rename hook.
func TestSave_FailedInstallKeepsPreviousVault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".vault.dotp")
	pw := []byte("483920")

	v := NewVault(path, nil)
	require.NoError(t, v.Create(pw))
	require.NoError(t, v.Add(Entry{Label: "GitHub", Key: otp.Key{Secret: []byte("secret")}}))
	require.NoError(t, v.Save())
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	renameFile = func(string, string) error { return errors.New("no space left on device") }
	t.Cleanup(func() { renameFile = os.Rename })

	require.NoError(t, v.Add(Entry{Label: "GitLab", Key: otp.Key{Secret: []byte("secret")}}))
	err = v.Save()
	require.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, Modified, v.State())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1, "temp file left behind")

	renameFile = os.Rename
	v2 := NewVault(path, nil)
	require.NoError(t, v2.Open(pw))
	assert.Len(t, v2.List(), 1)
}

// Not parallel: swaps the package-level link hook.
func TestCreate_NeverOverwritesFileCreatedMeanwhile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".vault.dotp")

	linkFile = func(oldname, newname string) error {
		if err := os.WriteFile(newname, []byte("other writer"), 0600); err != nil {
			return err
		}
		return os.Link(oldname, newname)
	}
	t.Cleanup(func() { linkFile = os.Link })

	v := NewVault(path, nil)
	err := v.Create([]byte("483920"))
	require.ErrorIs(t, err, ErrVaultAlreadyExists)
	assert.Equal(t, Unloaded, v.State())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "other writer", string(raw))

	files, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, files, 1, "temp file left behind")
}

func TestClose_ZeroesSecrets(t *testing.T) {
	t.Parallel()
	secret := []byte("secret")
	s := &Store{}
	require.NoError(t, s.Add(Entry{Label: "a", Key: otp.Key{Secret: secret}}))
	held := s.entries[0].Secret

	v := &Vault{key: []byte{1, 2, 3}, store: s, state: Loaded}
	key := v.key
	v.Close()

	assert.Equal(t, []byte{0, 0, 0}, key)
	assert.Equal(t, make([]byte, len(held)), held)
	assert.Equal(t, Unloaded, v.State())
	assert.Equal(t, []byte("secret"), secret, "caller's slice must not be wiped")
}
