package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fahmaliyi/dotp/transfer"
)

// pickFormat resolves --aegis/--format, falling back to the file extension.
func pickFormat(aegis bool, format, path string) (transfer.Format, error) {
	switch {
	case aegis && format != "":
		return "", errors.New("--aegis and --format are mutually exclusive")
	case aegis:
		return transfer.FormatAegis, nil
	case format != "":
		return transfer.ParseFormat(format)
	case strings.EqualFold(filepath.Ext(path), ".json"):
		return transfer.FormatAegis, nil
	}
	return transfer.FormatOTPAuth, nil
}

func newImportCmd(a *app) *cobra.Command {
	var (
		aegis  bool
		format string
	)
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import entries from an otpauth:// list or an Aegis JSON export",
		Long: `Import entries from a file ("-" reads stdin). Entries whose label already
exists in the vault are skipped. A malformed file imports nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := pickFormat(aegis, format, args[0])
			if err != nil {
				return err
			}

			var r io.Reader = a.in
			if args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				r = file
			}
			incoming, err := transfer.Import(r, f)
			if err != nil {
				return err
			}
			defer incoming.Zero()

			v, err := a.openVault()
			if err != nil {
				return err
			}
			defer v.Close()

			res, err := v.Import(incoming)
			if err != nil {
				return err
			}
			if len(res.Added) > 0 {
				if err := v.Save(); err != nil {
					return err
				}
			}
			for _, label := range res.Skipped {
				a.logger.Info("skipped existing entry", "label", label)
			}
			fmt.Fprintf(a.out, "Imported %d entries, skipped %d already present\n", len(res.Added), len(res.Skipped))
			return nil
		},
	}
	cmd.Flags().BoolVar(&aegis, "aegis", false, "read an Aegis JSON export")
	cmd.Flags().StringVarP(&format, "format", "f", "", "input format: otpauth or aegis (default from the file extension)")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var (
		aegis  bool
		format string
	)
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export all entries as an otpauth:// list or Aegis JSON",
		Long: `Export every entry to a file ("-" writes stdout). The export is NOT
encrypted; anyone holding it can generate your codes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := pickFormat(aegis, format, args[0])
			if err != nil {
				return err
			}

			v, err := a.openVault()
			if err != nil {
				return err
			}
			defer v.Close()
			entries := v.List()

			if args[0] == "-" {
				return transfer.Export(a.out, entries, f)
			}
			file, err := os.OpenFile(args[0], os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
			if err != nil {
				return err
			}
			if err := transfer.Export(file, entries, f); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			a.logger.Warn("export is not encrypted", "path", args[0])
			fmt.Fprintf(a.out, "Exported %d entries to %s\n", len(entries), args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&aegis, "aegis", false, "write an Aegis JSON export")
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: otpauth or aegis (default from the file extension)")
	return cmd
}

func newQRCmd(a *app) *cobra.Command {
	var (
		png  string
		size int
	)
	cmd := &cobra.Command{
		Use:   "qr <label>",
		Short: "Show an entry as a QR code for scanning into another app",
		Args:  cobra.ExactArgs(1),
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
			if png == "" {
				text, err := transfer.QRText(e)
				if err != nil {
					return err
				}
				fmt.Fprint(a.out, text)
				return nil
			}

			img, err := transfer.QRCode(e, size)
			if err != nil {
				return err
			}
			if err := os.WriteFile(png, img, 0600); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Wrote QR code for %s to %s\n", e.Label, png)
			return nil
		},
	}
	cmd.Flags().StringVar(&png, "png", "", "write a PNG to this file instead of printing")
	cmd.Flags().IntVar(&size, "size", transfer.DefaultQRSize, "PNG width in pixels")
	return cmd
}
