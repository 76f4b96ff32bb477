// Package cli implements the ledgercrypt command tree. It is the only place
// configuration is read and the library components are wired together.
package cli

import (
	"context"
	"errors"
	"fmt"

	"cdr.dev/slog/v3"
	"cdr.dev/slog/v3/sloggers/sloghuman"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/ai8future/ledgercrypt"
	"github.com/ai8future/ledgercrypt/internal/config"
	"github.com/ai8future/ledgercrypt/sqlitestore"
)

// RootCmd holds the global flags shared by every subcommand.
type RootCmd struct {
	configPath string
	verbose    bool
	debug      bool
}

// New returns the ledgercrypt root command.
func New() *cobra.Command {
	r := &RootCmd{}
	cmd := &cobra.Command{
		Use:           "ledgercrypt",
		Short:         "Field-level encryption for the accounting database",
		Long:          `Manages the master key, encrypts and decrypts export files, and reads and writes records whose sensitive columns are encrypted at rest.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&r.configPath, "config", "", "path to the config file (default "+config.DefaultPath()+")")
	cmd.PersistentFlags().BoolVarP(&r.verbose, "verbose", "v", false, "enable verbose output")
	cmd.PersistentFlags().BoolVarP(&r.debug, "debug", "d", false, "enable debug output")

	cmd.AddCommand(
		r.keyCmd(),
		r.fileCmd(),
		r.dbCmd(),
		r.tempfileCmd(),
		r.passwordCmd(),
	)
	return cmd
}

func (r *RootCmd) logger(cmd *cobra.Command) slog.Logger {
	level := slog.LevelWarn
	switch {
	case r.debug:
		level = slog.LevelDebug
	case r.verbose:
		level = slog.LevelInfo
	}
	return slog.Make(sloghuman.Sink(cmd.ErrOrStderr())).Leveled(level)
}

func (r *RootCmd) loadConfig() (*config.Config, error) {
	path := r.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

// env is the set of components a command works with.
type env struct {
	cfg    *config.Config
	logger slog.Logger
	keys   *ledgercrypt.KeyStore
	cipher *ledgercrypt.Cipher
}

func (r *RootCmd) setup(cmd *cobra.Command) (*env, error) {
	cfg, err := r.loadConfig()
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: r.logger(cmd)}
	e.logger.Debug(cmd.Context(), "configuration loaded",
		slog.F("data_dir", cfg.DataDir), slog.F("key_file", cfg.KeyPath()))

	e.keys = ledgercrypt.NewKeyStore(cfg.KeyPath(), e.options()...)
	e.cipher, err = ledgercrypt.New(e.keys, e.options()...)
	if err != nil {
		e.keys.Close()
		return nil, err
	}
	return e, nil
}

func (e *env) options() []ledgercrypt.Option {
	opts := []ledgercrypt.Option{
		ledgercrypt.WithLogger(e.logger),
		ledgercrypt.WithAssociatedData(e.cfg.AssociatedData),
	}
	if e.cfg.StrictKeyPersistence {
		opts = append(opts, ledgercrypt.WithStrictPersistence())
	}
	if e.cfg.CompressExports {
		opts = append(opts, ledgercrypt.WithCompression())
	}
	return opts
}

// records opens the database, creating its tables, and returns a
// RecordStore over it. The caller closes the returned database.
func (e *env) records(ctx context.Context) (*ledgercrypt.RecordStore, *sqlitestore.DB, error) {
	db, err := sqlitestore.Open(ctx, e.cfg.DatabasePath(), e.logger)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return ledgercrypt.NewRecordStore(db, e.cipher, e.cfg.Schema(), e.options()...), db, nil
}

func (e *env) Close() {
	e.keys.Close()
}

// warnEphemeral tells the user when data written now will not survive a restart.
func (e *env) warnEphemeral(cmd *cobra.Command) {
	if e.keys.Ephemeral() {
		cmd.PrintErrln(color.YellowString("!") + " Master key could not be saved to " + color.YellowString(e.keys.Path()) +
			"; data encrypted in this session will be unreadable after it ends")
	}
}

func success(cmd *cobra.Command, msg string) {
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("✓")+" "+msg)
}

func failure(cmd *cobra.Command, msg string) {
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), color.RedString("✗")+" "+msg)
}

var errFailed = xerrors.New("command failed")

// IsReported reports whether err was already explained to the user, so
// main only needs to set the exit status.
func IsReported(err error) bool {
	return errors.Is(err, errFailed)
}
