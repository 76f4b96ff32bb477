package cli

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ai8future/ledgercrypt"
)

func (r *RootCmd) fileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Encrypt and decrypt export files",
	}
	cmd.AddCommand(
		r.fileTransformCmd("encrypt", "Encrypt IN into an envelope file OUT", (*ledgercrypt.FileCodec).EncryptFile),
		r.fileTransformCmd("decrypt", "Decrypt the envelope file IN into OUT", (*ledgercrypt.FileCodec).DecryptFile),
	)
	return cmd
}

type fileOp func(*ledgercrypt.FileCodec, context.Context, string, string) error

func (r *RootCmd) fileTransformCmd(use, short string, op fileOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " IN OUT",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := r.setup(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			codec := ledgercrypt.NewFileCodec(e.cipher, e.options()...)
			if err := op(codec, cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			e.warnEphemeral(cmd)
			success(cmd, "Wrote "+color.YellowString(args[1]))
			return nil
		},
	}
}
