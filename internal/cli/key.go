package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"
)

func (r *RootCmd) keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the master key",
	}
	cmd.AddCommand(r.keyPathCmd(), r.keyRegenerateCmd())
	return cmd
}

func (r *RootCmd) keyPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the master key file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := r.loadConfig()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cfg.KeyPath())
			return err
		},
	}
}

func (r *RootCmd) keyRegenerateCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "regenerate",
		Short: "Replace the master key with a new random key",
		Long: `Replaces the master key with a new random key and overwrites the key file.

Existing encrypted values are NOT re-encrypted. Anything encrypted with the
previous key becomes permanently unreadable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				failure(cmd, "Regenerating the master key makes all existing encrypted data unreadable")
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), color.CyanString("→")+" Re-run with "+color.YellowString("--yes")+" to continue")
				return errFailed
			}

			e, err := r.setup(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if _, err := e.keys.RegenerateKey(cmd.Context()); err != nil {
				return xerrors.Errorf("regenerate master key: %w", err)
			}
			success(cmd, "Master key regenerated at "+color.YellowString(e.keys.Path()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm that existing encrypted data will become unreadable")
	return cmd
}
