package cli

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/ai8future/ledgercrypt"
)

func (r *RootCmd) dbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Read and write records with encrypted sensitive columns",
	}
	cmd.AddCommand(r.dbAddCmd(), r.dbListCmd(), r.dbCheckCmd())
	return cmd
}

func (r *RootCmd) dbAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "add TABLE COLUMN=VALUE...",
		Short:   "Insert a row, encrypting its sensitive columns",
		Example: `  ledgercrypt db add income date=2024-04-01 amount=500 description="April salary" category=salary`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			table := args[0]

			e, err := r.setup(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			store, db, err := e.records(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			row, err := parseRow(store.Schema(), table, args[1:])
			if err != nil {
				return err
			}
			if err := store.Write(ctx, table, row); err != nil {
				return err
			}
			e.warnEphemeral(cmd)
			success(cmd, "Added row to "+color.YellowString(table))
			return nil
		},
	}
}

func (r *RootCmd) dbListCmd() *cobra.Command {
	var (
		where string
		args  []string
	)
	cmd := &cobra.Command{
		Use:   "list TABLE",
		Short: "Print rows as JSON lines, decrypting sensitive columns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			ctx := cmd.Context()
			table := posArgs[0]

			e, err := r.setup(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			store, db, err := e.records(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			var filter *ledgercrypt.Filter
			if where != "" {
				filter = &ledgercrypt.Filter{Where: where}
				for _, a := range args {
					filter.Args = append(filter.Args, parseScalar(a))
				}
			}

			rows, err := store.Read(ctx, table, filter)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, row := range rows {
				if err := enc.Encode(row); err != nil {
					return xerrors.Errorf("write row: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&where, "where", "", "SQL condition with ? placeholders")
	cmd.Flags().StringArrayVar(&args, "arg", nil, "value bound to the next ? placeholder (repeatable)")
	return cmd
}

func (r *RootCmd) dbCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run the database integrity check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := r.setup(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			store, db, err := e.records(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if !store.IntegrityCheck(ctx) {
				failure(cmd, "Database integrity check failed for "+color.YellowString(e.cfg.DatabasePath()))
				return errFailed
			}
			success(cmd, "Database integrity check passed")
			return nil
		},
	}
}

// parseRow turns COLUMN=VALUE arguments into a row. Sensitive columns are
// always text; other integer-looking values are stored as integers.
func parseRow(schema ledgercrypt.Schema, table string, pairs []string) (ledgercrypt.Row, error) {
	row := make(ledgercrypt.Row, len(pairs))
	for _, pair := range pairs {
		col, value, ok := strings.Cut(pair, "=")
		if !ok || col == "" {
			return nil, xerrors.Errorf("invalid column assignment %q: expected COLUMN=VALUE", pair)
		}
		if _, dup := row[col]; dup {
			return nil, xerrors.Errorf("column %q assigned twice", col)
		}
		if schema.Sensitive(table, col) {
			row[col] = value
			continue
		}
		row[col] = parseScalar(value)
	}
	return row, nil
}

func parseScalar(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

