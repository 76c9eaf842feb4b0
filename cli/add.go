package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fahmaliyi/dotp/otp"
	"github.com/fahmaliyi/dotp/transfer"
	"github.com/fahmaliyi/dotp/vault"
)

type addOptions struct {
	uri       string
	secret    string
	algorithm string
	digits    int
	period    int
	hotp      bool
	counter   uint64
}

func newAddCmd(a *app) *cobra.Command {
	var o addOptions
	cmd := &cobra.Command{
		Use:   "add [label]",
		Short: "Add an entry to the vault",
		Long: `Add an entry from a Base32 secret or an otpauth:// URI.

The label and secret are prompted for when not given on the command line.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label := ""
			if len(args) == 1 {
				label = args[0]
			}
			e, err := a.buildEntry(label, o)
			if err != nil {
				return err
			}
			defer vault.Zero(e.Secret)

			v, err := a.openVault()
			if err != nil {
				return err
			}
			defer v.Close()

			if err := v.Add(e); err != nil {
				return err
			}
			if err := v.Save(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Added %s\n", e.Label)
			return nil
		},
	}

	cmd.Flags().StringVar(&o.uri, "uri", "", "otpauth:// URI to add")
	cmd.Flags().StringVar(&o.secret, "secret", "", "Base32 secret (prompted when omitted)")
	cmd.Flags().StringVar(&o.algorithm, "algo", string(otp.DefaultAlgorithm), "HMAC algorithm: SHA1, SHA256 or SHA512")
	cmd.Flags().IntVar(&o.digits, "digits", otp.DefaultDigits, "code length")
	cmd.Flags().IntVar(&o.period, "period", otp.DefaultPeriod, "TOTP period in seconds")
	cmd.Flags().BoolVar(&o.hotp, "hotp", false, "counter-based (HOTP) entry")
	cmd.Flags().Uint64Var(&o.counter, "counter", 0, "initial HOTP counter")
	cmd.MarkFlagsMutuallyExclusive("uri", "secret")
	return cmd
}

// buildEntry assembles and validates the new entry before the vault is
// unlocked, so a typo never costs a password prompt.
func (a *app) buildEntry(label string, o addOptions) (vault.Entry, error) {
	var e vault.Entry
	if o.uri != "" {
		parsed, err := transfer.ParseURI(o.uri)
		if err != nil {
			return e, fmt.Errorf("invalid URI: %w", err)
		}
		if label != "" {
			parsed.Label = label
		}
		return vault.Prepare(parsed)
	}

	var err error
	if strings.TrimSpace(label) == "" {
		if label, err = a.readLine("Label: "); err != nil {
			return e, err
		}
	}
	e.Label = strings.TrimSpace(label)

	raw := []byte(o.secret)
	if len(raw) == 0 {
		if raw, err = a.readHidden("Secret: "); err != nil {
			return e, err
		}
		defer vault.Zero(raw)
	}
	if e.Secret, err = otp.DecodeSecret(string(raw)); err != nil {
		return e, err
	}
	if e.Algorithm, err = otp.ParseAlgorithm(o.algorithm); err != nil {
		return e, fmt.Errorf("%w %q", err, o.algorithm)
	}
	e.Digits = o.digits
	e.Type = otp.TOTP
	e.Period = o.period
	if o.hotp {
		e.Type = otp.HOTP
		e.Period = 0
		e.Counter = o.counter
	}
	return vault.Prepare(e)
}
