package ledgercrypt

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

// memEngine is an in-memory Engine that keeps rows exactly as inserted.
type memEngine struct {
	mu        sync.Mutex
	tables    map[string][]Row
	report    []string
	checkErr  error
	insertErr error
}

func newMemEngine() *memEngine {
	return &memEngine{tables: make(map[string][]Row), report: []string{"ok"}}
}

func (e *memEngine) Insert(_ context.Context, table string, row Row) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.insertErr != nil {
		return e.insertErr
	}
	stored := make(Row, len(row))
	for k, v := range row {
		stored[k] = v
	}
	e.tables[table] = append(e.tables[table], stored)
	return nil
}

// Select supports a single equality filter on "id" for tests.
func (e *memEngine) Select(_ context.Context, table string, filter *Filter) ([]Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Row
	for _, row := range e.tables[table] {
		if filter != nil && len(filter.Args) == 1 && row["id"] != filter.Args[0] {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (e *memEngine) IntegrityCheck(context.Context) ([]string, error) {
	return e.report, e.checkErr
}

func (e *memEngine) raw(table string) []Row {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tables[table]
}

func newTestRecordStore(t *testing.T) (*memEngine, *RecordStore, *Cipher) {
	t.Helper()
	engine := newMemEngine()
	cipher := newTestCipher(t, "v1")
	return engine, NewRecordStore(engine, cipher, DefaultSchema(), WithLogger(testLogger(t))), cipher
}

func TestRecordStore_SelectiveEncryption(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := newTestRecordStore(t)

	row := Row{"id": 1, "amount": 500, "description": "メモ", "category": "salary"}
	require.NoError(t, store.Write(ctx, "income", row))

	// Input row is not modified.
	require.Equal(t, "メモ", row["description"])

	raw := engine.raw("income")
	require.Len(t, raw, 1)
	require.Equal(t, 500, raw[0]["amount"])
	require.Equal(t, "salary", raw[0]["category"])

	stored, ok := raw[0]["description"].(string)
	require.True(t, ok)
	require.NotContains(t, stored, "メモ")
	var env map[string]string
	require.NoError(t, json.Unmarshal([]byte(stored), &env))
	require.Len(t, env, 3)
	require.Contains(t, env, "encrypted")
	require.Len(t, env["iv"], 32)
	require.Len(t, env["tag"], 32)

	rows, err := store.Read(ctx, "income", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 500, rows[0]["amount"])
	require.Equal(t, "メモ", rows[0]["description"])
	require.Equal(t, "salary", rows[0]["category"])
	require.Equal(t, 1, rows[0]["id"])
}

func TestRecordStore_NonStringSensitiveValuePassesThrough(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := newTestRecordStore(t)

	require.NoError(t, store.Write(ctx, "expense", Row{"id": 2, "description": nil, "notes": 42}))

	raw := engine.raw("expense")
	require.Nil(t, raw[0]["description"])
	require.Equal(t, 42, raw[0]["notes"])

	rows, err := store.Read(ctx, "expense", nil)
	require.NoError(t, err)
	require.Nil(t, rows[0]["description"])
	require.Equal(t, 42, rows[0]["notes"])
}

func TestRecordStore_LegacyPlaintext(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := newTestRecordStore(t)

	legacy := []string{
		"old note",
		"",
		"500",
		`"quoted"`,
		`{"encrypted":"abcd","iv":"00"}`,
		`{"encrypted":1,"iv":"00","tag":"00"}`,
		`["encrypted","iv","tag"]`,
		"{not json",
	}
	for i, v := range legacy {
		require.NoError(t, engine.Insert(ctx, "income", Row{"id": i, "description": v}))
	}

	rows, err := store.Read(ctx, "income", nil)
	require.NoError(t, err)
	require.Len(t, rows, len(legacy))
	for i, row := range rows {
		require.Equal(t, legacy[i], row["description"])
	}
}

func TestRecordStore_CorruptionIsNotLegacy(t *testing.T) {
	ctx := context.Background()
	engine, store, cipher := newTestRecordStore(t)

	env, err := cipher.Encrypt(ctx, "genuine note")
	require.NoError(t, err)
	env.Tag = flipBit(t, env.Tag, 5)
	tampered, err := env.Marshal()
	require.NoError(t, err)

	require.NoError(t, engine.Insert(ctx, "income", Row{"id": 1, "description": "legacy row"}))
	require.NoError(t, engine.Insert(ctx, "income", Row{"id": 2, "description": tampered}))

	rows, err := store.Read(ctx, "income", nil)
	require.Nil(t, rows)
	require.ErrorIs(t, err, ErrCorruptEnvelope)

	var integrityErr *FieldIntegrityError
	require.ErrorAs(t, err, &integrityErr)
	require.Equal(t, "income", integrityErr.Table)
	require.Equal(t, "description", integrityErr.Column)
	require.Equal(t, 1, integrityErr.Row)
	require.ErrorIs(t, err, ErrDecryptionFailed, "cause is kept")
	require.NotContains(t, err.Error(), "genuine note")
}

func TestRecordStore_BrokenKeyFileIsNotCorruption(t *testing.T) {
	ctx := context.Background()
	engine, writer, _ := newTestRecordStore(t)
	require.NoError(t, writer.Write(ctx, "income", Row{"id": 1, "description": "sealed note"}))
	require.NoError(t, engine.Insert(ctx, "income", Row{"id": 2, "description": "legacy row"}))

	path := filepath.Join(t.TempDir(), DefaultKeyFileName)
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))
	cipher, err := New(newTestKeyStore(t, path))
	require.NoError(t, err)
	reader := NewRecordStore(engine, cipher, DefaultSchema(), WithLogger(testLogger(t)))

	rows, err := reader.Read(ctx, "income", nil)
	require.Nil(t, rows)
	require.ErrorIs(t, err, ErrKeyFileCorrupt)
	require.NotErrorIs(t, err, ErrCorruptEnvelope)
	var integrityErr *FieldIntegrityError
	require.False(t, errors.As(err, &integrityErr))
}

func TestRecordStore_MalformedHexInEnvelopeIsCorrupt(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := newTestRecordStore(t)

	require.NoError(t, engine.Insert(ctx, "expense", Row{
		"notes": `{"encrypted":"zz","iv":"00","tag":"00"}`,
	}))

	_, err := store.Read(ctx, "expense", nil)
	require.ErrorIs(t, err, ErrCorruptEnvelope)
}

func TestRecordStore_NonSensitiveColumnsUntouched(t *testing.T) {
	ctx := context.Background()
	engine, store, cipher := newTestRecordStore(t)

	// An envelope in a column outside the schema is neither decrypted nor checked.
	sealed, err := cipher.SealString(ctx, "hidden")
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, "income", Row{"category": sealed}))
	require.Equal(t, sealed, engine.raw("income")[0]["category"])

	rows, err := store.Read(ctx, "income", nil)
	require.NoError(t, err)
	require.Equal(t, sealed, rows[0]["category"])
}

func TestRecordStore_Filter(t *testing.T) {
	ctx := context.Background()
	_, store, _ := newTestRecordStore(t)

	require.NoError(t, store.Write(ctx, "income", Row{"id": 1, "description": "first"}))
	require.NoError(t, store.Write(ctx, "income", Row{"id": 2, "description": "second"}))

	rows, err := store.Read(ctx, "income", &Filter{Where: "id = ?", Args: []any{2}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "second", rows[0]["description"])
}

func TestRecordStore_UnknownTable(t *testing.T) {
	ctx := context.Background()
	_, store, _ := newTestRecordStore(t)

	err := store.Write(ctx, "accounts", Row{"description": "x"})
	require.ErrorIs(t, err, ErrUnknownTable)

	_, err = store.Read(ctx, "accounts", nil)
	require.ErrorIs(t, err, ErrUnknownTable)
}

func TestRecordStore_EncryptionFailure(t *testing.T) {
	ctx := context.Background()
	engine := newMemEngine()
	cipher, err := New(failingProvider{err: ErrKeyUnavailable})
	require.NoError(t, err)
	store := NewRecordStore(engine, cipher, DefaultSchema(), WithLogger(testLogger(t)))

	err = store.Write(ctx, "income", Row{"description": "never stored"})
	require.ErrorIs(t, err, ErrEncryptionFailed)
	require.Empty(t, engine.raw("income"), "nothing may be inserted when encryption fails")
}

func TestRecordStore_InsertFailure(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := newTestRecordStore(t)
	engine.insertErr = xerrors.New("disk full")

	err := store.Write(ctx, "income", Row{"description": "x"})
	require.ErrorIs(t, err, engine.insertErr)
}

func TestRecordStore_IntegrityCheck(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		report []string
		err    error
		want   bool
	}{
		{"consistent", []string{"ok"}, nil, true},
		{"problems", []string{"row 3 missing from index", "page 7 never used"}, nil, false},
		{"empty report", nil, nil, false},
		{"engine error", nil, xerrors.New("database is locked"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, store, _ := newTestRecordStore(t)
			engine.report = tt.report
			engine.checkErr = tt.err
			require.Equal(t, tt.want, store.IntegrityCheck(ctx))
		})
	}
}

func TestSchema(t *testing.T) {
	schema := NewSchema(map[string][]string{
		"income":   {"notes", "description"},
		"settings": {},
	})

	require.True(t, schema.Declares("income"))
	require.True(t, schema.Declares("settings"))
	require.False(t, schema.Declares("expense"))

	require.True(t, schema.Sensitive("income", "description"))
	require.False(t, schema.Sensitive("income", "amount"))
	require.False(t, schema.Sensitive("settings", "value"))
	require.False(t, schema.Sensitive("expense", "description"))

	require.Equal(t, []string{"income", "settings"}, schema.Tables())
	require.Equal(t, []string{"description", "notes"}, schema.SensitiveColumns("income"))
	require.Empty(t, schema.SensitiveColumns("settings"))

	require.Equal(t, []string{"expense", "income", "settings"}, DefaultSchema().Tables())
}
