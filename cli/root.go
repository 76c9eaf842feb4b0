package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/fahmaliyi/dotp/vault"
)

var version = "dev"

// app carries what every command needs once flags, config and environment
// have been resolved.
type app struct {
	cfgFile   string
	pathFlag  string
	verbose   bool
	cfg       Config
	env       Env
	vaultPath string

	logger *log.Logger
	stdin  io.Reader
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
	now    func() time.Time
	// clip replaces the clipboard in tests.
	clip func(string) error
}

// NewRootCmd builds the dotp command tree. Running it without a subcommand
// starts the TUI.
func NewRootCmd() *cobra.Command {
	a := &app{now: time.Now}
	return newRootCmd(a)
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dotp",
		Short: "An encrypted TOTP/HOTP vault for the terminal",
		Long: `dotp keeps one-time-password secrets in a password-protected file
and prints the current codes.

Running without a subcommand launches the interactive TUI.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTUI()
		},
	}

	cmd.PersistentFlags().StringVarP(&a.pathFlag, "path", "p", "", "vault file (default $DOTP_VAULT, config vault_path, ./.vault.dotp or $XDG_CONFIG_HOME/dotp/.vault.dotp)")
	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/dotp/config.toml)")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")

	cmd.AddCommand(
		newInitCmd(a),
		newAddCmd(a),
		newListCmd(a),
		newGetCmd(a),
		newRemoveCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newQRCmd(a),
		newPasswdCmd(a),
		newTUICmd(a),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	a.stdin = cmd.InOrStdin()
	a.in = bufio.NewReader(a.stdin)
	a.out = cmd.OutOrStdout()
	a.errOut = cmd.ErrOrStderr()

	a.logger = log.NewWithOptions(a.errOut, log.Options{Prefix: "dotp", Level: log.WarnLevel})
	if a.verbose {
		a.logger.SetLevel(log.DebugLevel)
	}

	var err error
	if a.env, err = LoadEnv(); err != nil {
		return err
	}
	if a.cfg, err = LoadConfig(a.cfgFile); err != nil {
		return err
	}
	if a.vaultPath, err = ResolveVaultPath(a.pathFlag, a.env, a.cfg); err != nil {
		return err
	}
	a.logger.Debug("using vault", "path", a.vaultPath)
	return nil
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describe(err))
		return 1
	}
	return 0
}

func describe(err error) string {
	switch {
	case errors.Is(err, vault.ErrDecryption):
		return "invalid password or corrupted vault"
	case errors.Is(err, vault.ErrVaultNotFound):
		return err.Error() + " (run `dotp init` to create one)"
	}
	return err.Error()
}
