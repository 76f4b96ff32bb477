package ledgercrypt

import (
	"context"

	"cdr.dev/slog/v3"
	"golang.org/x/xerrors"
)

// Row is a column to value mapping as exchanged with the storage engine.
type Row map[string]any

// Filter restricts a Select. Where is an engine-specific condition with
// positional placeholders bound to Args.
type Filter struct {
	Where string
	Args  []any
}

// Engine is the relational storage engine RecordStore wraps.
type Engine interface {
	// Insert stores row in table using a parameterized statement.
	Insert(ctx context.Context, table string, row Row) error
	// Select returns the rows of table matching filter (all rows if nil).
	Select(ctx context.Context, table string, filter *Filter) ([]Row, error)
	// IntegrityCheck runs the engine's consistency check and returns its
	// report. A single "ok" line means fully consistent.
	IntegrityCheck(ctx context.Context) ([]string, error)
}

// RecordStore encrypts the schema's sensitive columns on the way into an
// Engine and decrypts them on the way out. Other columns pass through
// untouched. Sensitive columns written before encryption was introduced
// are returned as-is.
type RecordStore struct {
	engine Engine
	cipher *Cipher
	schema Schema
	logger slog.Logger
}

// NewRecordStore wraps engine. Only WithLogger is honoured.
func NewRecordStore(engine Engine, cipher *Cipher, schema Schema, opts ...Option) *RecordStore {
	cfg := applyOptions(opts)
	return &RecordStore{
		engine: engine,
		cipher: cipher,
		schema: schema,
		logger: cfg.logger.Named("records"),
	}
}

// Schema returns the schema the store enforces.
func (s *RecordStore) Schema() Schema {
	return s.schema
}

// Write encrypts the string values of row's sensitive columns and inserts
// the result. Non-string values in sensitive columns are stored unchanged.
// row itself is not modified.
func (s *RecordStore) Write(ctx context.Context, table string, row Row) error {
	if !s.schema.Declares(table) {
		return xerrors.Errorf("write %q: %w", table, ErrUnknownTable)
	}

	out := make(Row, len(row))
	for col, value := range row {
		str, ok := value.(string)
		if !ok || !s.schema.Sensitive(table, col) {
			out[col] = value
			continue
		}
		sealed, err := s.cipher.SealString(ctx, str)
		if err != nil {
			s.logger.Error(ctx, "failed to encrypt field",
				slog.F("table", table), slog.F("column", col), slog.Error(err))
			return xerrors.Errorf("encrypt %s.%s: %w", table, col, err)
		}
		out[col] = sealed
	}

	if err := s.engine.Insert(ctx, table, out); err != nil {
		s.logger.Error(ctx, "failed to insert row", slog.F("table", table), slog.Error(err))
		return xerrors.Errorf("insert into %s: %w", table, err)
	}
	s.logger.Debug(ctx, "encrypted row inserted", slog.F("table", table))
	return nil
}

// Read selects rows from table and decrypts their sensitive columns.
//
// A sensitive value that is not an envelope is returned unchanged. A value
// shaped like an envelope that fails to decrypt aborts the read with a
// *FieldIntegrityError; corruption is never passed off as legacy data.
// When the master key cannot be loaded the read fails with the key error
// instead, since no value can be checked.
func (s *RecordStore) Read(ctx context.Context, table string, filter *Filter) ([]Row, error) {
	if !s.schema.Declares(table) {
		return nil, xerrors.Errorf("read %q: %w", table, ErrUnknownTable)
	}

	rows, err := s.engine.Select(ctx, table, filter)
	if err != nil {
		s.logger.Error(ctx, "failed to select rows", slog.F("table", table), slog.Error(err))
		return nil, xerrors.Errorf("select from %s: %w", table, err)
	}

	out := make([]Row, 0, len(rows))
	for i, row := range rows {
		decrypted := make(Row, len(row))
		for col, value := range row {
			decrypted[col] = value
			if !s.schema.Sensitive(table, col) {
				continue
			}
			stored, ok := textValue(value)
			if !ok {
				continue
			}
			plaintext, state, err := s.cipher.Open(ctx, stored)
			switch state {
			case FieldEncrypted:
				decrypted[col] = plaintext
			case FieldLegacy:
				s.logger.Debug(ctx, "field not encrypted, using as-is",
					slog.F("table", table), slog.F("column", col))
			case FieldCorrupt:
				s.logger.Error(ctx, "encrypted field failed integrity check",
					slog.F("table", table), slog.F("column", col), slog.F("row", i), slog.Error(err))
				return nil, &FieldIntegrityError{Table: table, Column: col, Row: i, Cause: err}
			case FieldUnverified:
				s.logger.Error(ctx, "master key unavailable, cannot decrypt field",
					slog.F("table", table), slog.F("column", col), slog.Error(err))
				return nil, xerrors.Errorf("read %s.%s: %w", table, col, err)
			}
		}
		out = append(out, decrypted)
	}
	return out, nil
}

// IntegrityCheck runs the engine's consistency check. It returns true only
// when the engine reports full consistency; engine errors yield false.
func (s *RecordStore) IntegrityCheck(ctx context.Context) bool {
	report, err := s.engine.IntegrityCheck(ctx)
	if err != nil {
		s.logger.Error(ctx, "database integrity check failed", slog.Error(err))
		return false
	}
	ok := len(report) == 1 && report[0] == "ok"
	if ok {
		s.logger.Info(ctx, "database integrity check passed")
	} else {
		s.logger.Error(ctx, "database integrity check reported problems", slog.F("report", report))
	}
	return ok
}

// textValue returns value as a string when the engine delivered text.
func textValue(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}
