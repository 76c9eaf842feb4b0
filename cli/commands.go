package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/fahmaliyi/dotp/otp"
	"github.com/fahmaliyi/dotp/vault"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := vault.CheckIterations(a.cfg.Iterations); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(a.vaultPath), 0700); err != nil {
				return fmt.Errorf("creating vault directory: %w", err)
			}
			pw, err := a.newPassword()
			defer vault.Zero(pw)
			if err != nil {
				return err
			}

			v := a.newVault()
			if err := v.Create(pw); err != nil {
				return err
			}
			defer v.Close()
			fmt.Fprintf(a.out, "Created vault at %s\n", a.vaultPath)
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Print the current code of every entry",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := a.openVault()
			if err != nil {
				return err
			}
			defer v.Close()

			entries := v.Search(search)
			if len(entries) == 0 {
				fmt.Fprintln(a.out, "No entries.")
				return nil
			}
			out, err := renderList(entries, otp.NewGenerator(a.now))
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "only show labels containing this text")
	return cmd
}

// renderList draws the code table. HOTP codes are not shown because showing
// one consumes the counter; use get for those.
func renderList(entries []vault.Entry, gen *otp.Generator) (string, error) {
	var (
		rows  [][]string
		until time.Time
	)
	for _, e := range entries {
		if e.Type == otp.HOTP {
			rows = append(rows, []string{e.Label, "hotp", "#" + strconv.FormatUint(e.Counter, 10)})
			continue
		}
		code, left, err := gen.Code(e.Key)
		if err != nil {
			return "", fmt.Errorf("%s: %w", e.Label, err)
		}
		rows = append(rows, []string{e.Label, code, fmt.Sprintf("%ds", left)})

		vu, err := gen.ValidUntil(e.Key)
		if err != nil {
			return "", fmt.Errorf("%s: %w", e.Label, err)
		}
		if until.IsZero() || vu.Before(until) {
			until = vu
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("LABEL", "CODE", "LEFT").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	title := "Codes"
	if !until.IsZero() {
		title = "Valid until " + until.Format(time.TimeOnly)
	}
	return titleStyle.Render(title) + "\n" + t.Render(), nil
}

func newGetCmd(a *app) *cobra.Command {
	var copyCode bool
	cmd := &cobra.Command{
		Use:   "get <label>",
		Short: "Print the current code for one entry",
		Long: `Print the current code for the entry matching label. The label is matched
exactly, then ignoring case, then as a prefix.

For HOTP entries the stored counter is advanced and saved after the code is shown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVault()
			if err != nil {
				return err
			}
			defer v.Close()

			e, err := v.Resolve(args[0])
			if err != nil {
				return err
			}
			defer vault.Zero(e.Secret)

			code, left, err := otp.NewGenerator(a.now).Code(e.Key)
			if err != nil {
				return err
			}
			if e.Type == otp.HOTP {
				next := e.Clone()
				next.Counter++
				if err := v.Update(e.Label, next); err != nil {
					return err
				}
				if err := v.Save(); err != nil {
					return err
				}
			}

			if copyCode {
				if err := a.copyText(code); err != nil {
					return err
				}
				fmt.Fprintf(a.errOut, "Copied code for %s to clipboard\n", e.Label)
			}
			if e.Type == otp.HOTP {
				fmt.Fprintf(a.out, "%s\n", code)
			} else {
				fmt.Fprintf(a.out, "%s (%ds left)\n", code, left)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&copyCode, "copy", "c", false, "copy the code to the clipboard")
	return cmd
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <label>",
		Aliases: []string{"rm"},
		Short:   "Remove an entry; the label must match exactly",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVault()
			if err != nil {
				return err
			}
			defer v.Close()

			if err := v.Delete(args[0]); err != nil {
				return err
			}
			if err := v.Save(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Removed %s\n", args[0])
			return nil
		},
	}
}

func newPasswdCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the vault password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := a.openVault()
			if err != nil {
				return err
			}
			defer v.Close()

			pw, err := a.promptNewPassword()
			defer vault.Zero(pw)
			if err != nil {
				return err
			}
			if err := v.Rekey(pw); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Password changed")
			return nil
		},
	}
}

func newTUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse codes interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTUI()
		},
	}
}
