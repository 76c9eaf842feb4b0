package cli

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/atotto/clipboard"
	"golang.org/x/term"

	"github.com/fahmaliyi/dotp/vault"
)

var (
	errPasswordMismatch = errors.New("passwords do not match")
	errEmptyPassword    = errors.New("password must not be empty")
)

// readHidden prompts on stderr and reads without echo when stdin is a
// terminal. Otherwise it reads one line, so passwords can be piped in.
func (a *app) readHidden(prompt string) ([]byte, error) {
	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.errOut, prompt)
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.errOut)
		return pw, err
	}
	line, err := a.readLine(prompt)
	return []byte(line), err
}

func (a *app) readLine(prompt string) (string, error) {
	fmt.Fprint(a.errOut, prompt)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// password returns DOTP_PASSWD when set and prompts otherwise.
func (a *app) password(prompt string) ([]byte, error) {
	if a.env.Password != "" {
		return []byte(a.env.Password), nil
	}
	return a.readHidden(prompt)
}

// newPassword returns DOTP_PASSWD when set and otherwise asks twice.
func (a *app) newPassword() ([]byte, error) {
	if a.env.Password != "" {
		return []byte(a.env.Password), nil
	}
	return a.promptNewPassword()
}

func (a *app) promptNewPassword() ([]byte, error) {
	pw, err := a.readHidden("New password: ")
	if err != nil {
		return nil, err
	}
	if len(pw) == 0 {
		return nil, errEmptyPassword
	}
	again, err := a.readHidden("Repeat password: ")
	defer vault.Zero(again)
	if err != nil {
		vault.Zero(pw)
		return nil, err
	}
	if subtle.ConstantTimeCompare(pw, again) != 1 {
		vault.Zero(pw)
		return nil, errPasswordMismatch
	}
	return pw, nil
}

func (a *app) newVault() *vault.Vault {
	v := vault.NewVault(a.vaultPath, &vault.KDFParams{Iterations: a.cfg.Iterations})
	v.SetLogger(a.logger)
	return v
}

// openVault prompts for the password and decrypts the vault. Callers must
// Close it.
func (a *app) openVault() (*vault.Vault, error) {
	if _, err := os.Stat(a.vaultPath); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", vault.ErrVaultNotFound, a.vaultPath)
	}
	pw, err := a.password("Password: ")
	defer vault.Zero(pw)
	if err != nil {
		return nil, err
	}

	v := a.newVault()
	if err := v.Open(pw); err != nil {
		return nil, err
	}
	return v, nil
}

// copyText sends text to clipboard_command on stdin when configured, and to
// the system clipboard otherwise.
func (a *app) copyText(text string) error {
	if a.clip != nil {
		return a.clip(text)
	}
	args := strings.Fields(a.cfg.ClipboardCommand)
	if len(args) == 0 {
		return clipboard.WriteAll(text)
	}

	c := exec.Command(args[0], args[1:]...)
	c.Stdin = strings.NewReader(text)
	if out, err := c.CombinedOutput(); err != nil {
		return fmt.Errorf("clipboard command %q: %w: %s", a.cfg.ClipboardCommand, err, bytes.TrimSpace(out))
	}
	return nil
}
