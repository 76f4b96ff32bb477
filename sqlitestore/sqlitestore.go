package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"cdr.dev/slog/v3"
	"github.com/jmoiron/sqlx"
	"golang.org/x/xerrors"

	// Pure-Go SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/ai8future/ledgercrypt"
)

// DefaultFileName is the database file name inside the per-user data directory.
const DefaultFileName = "accounting.db"

// ErrInvalidIdentifier indicates a table or column name that is not a plain SQL identifier.
var ErrInvalidIdentifier = errors.New("sqlitestore: invalid identifier")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// schema mirrors the accounting application's tables.
const schema = `
CREATE TABLE IF NOT EXISTS income (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL,
	amount INTEGER NOT NULL,
	description TEXT NOT NULL,
	category TEXT NOT NULL,
	notes TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS expense (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL,
	amount INTEGER NOT NULL,
	description TEXT NOT NULL,
	category TEXT NOT NULL,
	notes TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// DB is a SQLite database implementing ledgercrypt.Engine.
type DB struct {
	db     *sqlx.DB
	logger slog.Logger
}

var _ ledgercrypt.Engine = (*DB)(nil)

// Open opens (creating if needed) the database at path and restricts the
// file to owner-only permissions. Use ":memory:" for a private in-memory
// database.
func Open(ctx context.Context, path string, logger slog.Logger) (*DB, error) {
	logger = logger.Named("sqlitestore")
	logger.Info(ctx, "opening database", slog.F("path", path))

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, xerrors.Errorf("create database directory: %w", err)
		}
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, xerrors.Errorf("open %s: %w", path, err)
	}
	// In-memory databases are per connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, xerrors.Errorf("%s: %w", pragma, err)
		}
	}

	if path != ":memory:" {
		if err := os.Chmod(path, 0o600); err != nil {
			_ = db.Close()
			return nil, xerrors.Errorf("restrict database permissions: %w", err)
		}
	}

	return &DB{db: db, logger: logger}, nil
}

// Migrate creates the income, expense and settings tables if they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	d.logger.Info(ctx, "initializing database tables")
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return xerrors.Errorf("migrate: %w", err)
	}
	return nil
}

// Insert implements ledgercrypt.Engine.
func (d *DB) Insert(ctx context.Context, table string, row ledgercrypt.Row) error {
	if err := checkIdentifier(table); err != nil {
		return err
	}

	columns := make([]string, 0, len(row))
	for col := range row {
		if err := checkIdentifier(col); err != nil {
			return err
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var query string
	args := make([]any, 0, len(columns))
	if len(columns) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quote(table))
	} else {
		quoted := make([]string, len(columns))
		for i, col := range columns {
			quoted[i] = quote(col)
			args = append(args, row[col])
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quote(table), strings.Join(quoted, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "))
	}

	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return xerrors.Errorf("insert into %s: %w", table, err)
	}
	d.logger.Debug(ctx, "row inserted", slog.F("table", table), slog.F("columns", columns))
	return nil
}

// Select implements ledgercrypt.Engine. filter.Where is appended verbatim
// after WHERE and must use ? placeholders for its Args.
func (d *DB) Select(ctx context.Context, table string, filter *ledgercrypt.Filter) ([]ledgercrypt.Row, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, err
	}

	query := "SELECT * FROM " + quote(table)
	var args []any
	if filter != nil && filter.Where != "" {
		query += " WHERE " + filter.Where
		args = filter.Args
	}

	rows, err := d.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Errorf("select from %s: %w", table, err)
	}
	defer rows.Close()

	var out []ledgercrypt.Row
	for rows.Next() {
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return nil, xerrors.Errorf("scan %s: %w", table, err)
		}
		out = append(out, ledgercrypt.Row(m))
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

// IntegrityCheck implements ledgercrypt.Engine using PRAGMA integrity_check.
func (d *DB) IntegrityCheck(ctx context.Context) ([]string, error) {
	var report []string
	if err := d.db.SelectContext(ctx, &report, "PRAGMA integrity_check"); err != nil {
		return nil, xerrors.Errorf("integrity check: %w", err)
	}
	d.logger.Debug(ctx, "integrity check result", slog.F("report", report))
	return report, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func checkIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return xerrors.Errorf("%q: %w", name, ErrInvalidIdentifier)
	}
	return nil
}

func quote(identifier string) string {
	return `"` + identifier + `"`
}
