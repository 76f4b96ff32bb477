package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ai8future/ledgercrypt"
)

func (r *RootCmd) tempfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tempfile [PREFIX]",
		Short: "Create an owner-only temporary file and print its path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := r.loadConfig()
			if err != nil {
				return err
			}
			prefix := cfg.TempPrefix
			if len(args) == 1 {
				prefix = args[0]
			}
			path, err := ledgercrypt.CreateSecureTempFile(cmd.Context(), prefix, ledgercrypt.WithLogger(r.logger(cmd)))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}
}
