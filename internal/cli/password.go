package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/ai8future/ledgercrypt"
)

func (r *RootCmd) passwordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Hash and verify login passwords",
	}
	cmd.AddCommand(r.passwordHashCmd(), r.passwordVerifyCmd())
	return cmd
}

func (*RootCmd) passwordHashCmd() *cobra.Command {
	var salt string
	cmd := &cobra.Command{
		Use:   "hash PASSWORD",
		Short: "Print the PBKDF2 hash and salt of PASSWORD",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, usedSalt, err := ledgercrypt.HashPassword(args[0], salt)
			if err != nil {
				return xerrors.Errorf("hash password: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "hash: %s\nsalt: %s\n", hash, usedSalt)
			return err
		},
	}
	cmd.Flags().StringVar(&salt, "salt", "", "hex salt to use instead of a random one")
	return cmd
}

func (*RootCmd) passwordVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify PASSWORD HASH SALT",
		Short: "Check PASSWORD against a stored hash and salt",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !ledgercrypt.VerifyPassword(args[0], args[1], args[2]) {
				failure(cmd, "Password does not match")
				return errFailed
			}
			success(cmd, "Password matches")
			return nil
		},
	}
}
