package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahmaliyi/dotp/vault"
)

// RFC 6238 / RFC 4226 test seed "12345678901234567890".
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

type harness struct {
	t      *testing.T
	path   string
	now    time.Time
	copied string
}

// newHarness isolates config and password lookup. Tests using it cannot run
// in parallel because they set environment variables.
func newHarness(t *testing.T) *harness {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DOTP_PASSWD", "483920")
	t.Setenv("DOTP_VAULT", "")
	return &harness{
		t:    t,
		path: filepath.Join(t.TempDir(), "codes", ".vault.dotp"),
		now:  time.Unix(59, 0),
	}
}

func (h *harness) run(stdin string, args ...string) (string, string, error) {
	h.t.Helper()
	a := &app{
		now:  func() time.Time { return h.now },
		clip: func(s string) error { h.copied = s; return nil },
	}
	cmd := newRootCmd(a)
	var out, errOut bytes.Buffer
	cmd.SetArgs(append([]string{"--path", h.path}, args...))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, _, err := h.run("", args...)
	require.NoError(h.t, err, strings.Join(args, " "))
	return out
}

func TestCLI_InitAddGetList(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("init")
	assert.Contains(t, out, "Created vault at "+h.path)
	info, err := os.Stat(h.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	h.mustRun("add", "GitHub: alice", "--secret", rfcSecret)
	h.mustRun("add", "AWS", "--secret", rfcSecret, "--digits", "8")

	out = h.mustRun("get", "github")
	assert.Equal(t, "287082 (1s left)\n", out)

	out = h.mustRun("get", "aws")
	assert.Equal(t, "94287082 (1s left)\n", out)

	out = h.mustRun("list")
	assert.Contains(t, out, "Valid until "+time.Unix(60, 0).Format(time.TimeOnly))
	assert.Contains(t, out, "GitHub: alice")
	assert.Contains(t, out, "287082")
	assert.Contains(t, out, "94287082")

	out = h.mustRun("list", "--search", "aws")
	assert.NotContains(t, out, "GitHub")
}

func TestCLI_InitRefusesExistingVault(t *testing.T) {
	h := newHarness(t)
	h.mustRun("init")

	_, _, err := h.run("", "init")
	assert.ErrorIs(t, err, vault.ErrVaultAlreadyExists)
}

func TestCLI_InitPromptsTwice(t *testing.T) {
	h := newHarness(t)
	t.Setenv("DOTP_PASSWD", "")

	_, _, err := h.run("hunter2\nhunter3\n", "init")
	assert.ErrorIs(t, err, errPasswordMismatch)
	assert.NoFileExists(t, h.path)

	_, stderr, err := h.run("hunter2\nhunter2\n", "init")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Repeat password: ")

	_, _, err = h.run("hunter2\n", "list")
	assert.NoError(t, err)
}

func TestCLI_WeakIterationsOnlyBlockInit(t *testing.T) {
	h := newHarness(t)
	h.mustRun("init")
	h.mustRun("add", "GitHub", "--secret", rfcSecret)

	dir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "dotp")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("iterations = 1000\n"), 0600))

	assert.Equal(t, "287082 (1s left)\n", h.mustRun("get", "GitHub"))

	other := filepath.Join(t.TempDir(), ".vault.dotp")
	h.path = other
	_, _, err := h.run("", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iterations")
	assert.NoFileExists(t, other)
}

func TestCLI_WrongPassword(t *testing.T) {
	h := newHarness(t)
	h.mustRun("init")

	t.Setenv("DOTP_PASSWD", "000000")
	_, _, err := h.run("", "list")
	require.ErrorIs(t, err, vault.ErrDecryption)
	assert.Equal(t, "invalid password or corrupted vault", describe(err))
}

func TestCLI_MissingVault(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run("", "list")
	require.ErrorIs(t, err, vault.ErrVaultNotFound)
	assert.Contains(t, describe(err), "dotp init")
}

func TestCLI_AddRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	h.mustRun("init")
	h.mustRun("add", "GitHub", "--secret", rfcSecret)

	_, _, err := h.run("", "add", "GitHub", "--secret", rfcSecret)
	assert.ErrorIs(t, err, vault.ErrDuplicateLabel)

	_, _, err = h.run("", "add", "x", "--secret", "not base32!")
	assert.Error(t, err)

	_, _, err = h.run("", "add", "x", "--secret", rfcSecret, "--digits", "4")
	assert.ErrorIs(t, err, vault.ErrInvalidEntry)
}

func TestCLI_AddPromptsAndURI(t *testing.T) {
	h := newHarness(t)
	h.mustRun("init")

	_, _, err := h.run("Prompted\n"+rfcSecret+"\n", "add")
	require.NoError(t, err)

	h.mustRun("add", "--uri", "otpauth://totp/alice?secret="+rfcSecret+"&issuer=GitLab&digits=8")

	out := h.mustRun("export", "-", "--format", "otpauth")
	assert.Contains(t, out, "otpauth://totp/Prompted?secret="+rfcSecret+"&algorithm=SHA1&digits=6&period=30")
	assert.Contains(t, out, "otpauth://totp/GitLab:alice?secret="+rfcSecret+"&algorithm=SHA1&digits=8&period=30")
}

func TestCLI_GetCopyAndHOTP(t *testing.T) {
	h := newHarness(t)
	h.mustRun("init")
	h.mustRun("add", "GitHub", "--secret", rfcSecret)
	h.mustRun("add", "token", "--secret", rfcSecret, "--hotp")

	_, stderr, err := h.run("", "get", "GitHub", "--copy")
	require.NoError(t, err)
	assert.Equal(t, "287082", h.copied)
	assert.Contains(t, stderr, "Copied code for GitHub")

	assert.Equal(t, "755224\n", h.mustRun("get", "token"))
	assert.Equal(t, "287082\n", h.mustRun("get", "token"))
	assert.Equal(t, "359152\n", h.mustRun("get", "token"))
}

func TestCLI_Remove(t *testing.T) {
	h := newHarness(t)
	h.mustRun("init")
	h.mustRun("add", "GitHub", "--secret", rfcSecret)

	_, _, err := h.run("", "remove", "git")
	assert.ErrorIs(t, err, vault.ErrEntryNotFound)

	assert.Equal(t, "Removed GitHub\n", h.mustRun("remove", "GitHub"))
	_, _, err = h.run("", "get", "GitHub")
	assert.ErrorIs(t, err, vault.ErrEntryNotFound)
}

func TestCLI_ImportExport(t *testing.T) {
	h := newHarness(t)
	h.mustRun("init")
	h.mustRun("add", "GitHub", "--secret", rfcSecret)

	dir := t.TempDir()
	in := filepath.Join(dir, "codes.txt")
	require.NoError(t, os.WriteFile(in, []byte(
		"otpauth://totp/GitHub?secret=JBSWY3DPEHPK3PXP\n"+
			"otpauth://totp/GitLab?secret=JBSWY3DPEHPK3PXP\n"), 0600))

	out := h.mustRun("import", in)
	assert.Equal(t, "Imported 1 entries, skipped 1 already present\n", out)
	assert.Equal(t, "287082 (1s left)\n", h.mustRun("get", "GitHub"), "existing entry must not be overwritten")

	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("otpauth://totp/AWS?secret=JBSWY3DPEHPK3PXP\nnot a uri\n"), 0600))
	_, _, err := h.run("", "import", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	_, _, err = h.run("", "get", "AWS")
	assert.ErrorIs(t, err, vault.ErrEntryNotFound)

	aegis := filepath.Join(dir, "export.json")
	h.mustRun("export", aegis)
	raw, err := os.ReadFile(aegis)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"issuer"`)

	other := newHarness(t)
	other.mustRun("init")
	out = other.mustRun("import", aegis)
	assert.Equal(t, "Imported 2 entries, skipped 0 already present\n", out)
}

func TestCLI_QR(t *testing.T) {
	h := newHarness(t)
	h.mustRun("init")
	h.mustRun("add", "GitHub", "--secret", rfcSecret)

	assert.NotEmpty(t, strings.TrimSpace(h.mustRun("qr", "GitHub")))

	png := filepath.Join(t.TempDir(), "github.png")
	h.mustRun("qr", "GitHub", "--png", png, "--size", "128")
	raw, err := os.ReadFile(png)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("\x89PNG")))
}

func TestCLI_Passwd(t *testing.T) {
	h := newHarness(t)
	h.mustRun("init")
	h.mustRun("add", "GitHub", "--secret", rfcSecret)

	_, _, err := h.run("new-pass\nnew-pass\n", "passwd")
	require.NoError(t, err)

	_, _, err = h.run("", "list")
	assert.ErrorIs(t, err, vault.ErrDecryption)

	t.Setenv("DOTP_PASSWD", "new-pass")
	assert.Equal(t, "287082 (1s left)\n", h.mustRun("get", "GitHub"))
}

func TestPickFormat(t *testing.T) {
	t.Parallel()
	f, err := pickFormat(false, "", "backup.JSON")
	require.NoError(t, err)
	assert.Equal(t, "aegis", string(f))

	f, err = pickFormat(false, "", "codes.txt")
	require.NoError(t, err)
	assert.Equal(t, "otpauth", string(f))

	f, err = pickFormat(true, "", "codes.txt")
	require.NoError(t, err)
	assert.Equal(t, "aegis", string(f))

	_, err = pickFormat(true, "otpauth", "x")
	assert.Error(t, err)
	_, err = pickFormat(false, "csv", "x")
	assert.Error(t, err)
}
