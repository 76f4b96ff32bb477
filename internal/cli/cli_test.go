package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cdr.dev/slog/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ai8future/ledgercrypt"
	"github.com/ai8future/ledgercrypt/internal/config"
	"github.com/ai8future/ledgercrypt/sqlitestore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// writeConfig writes a config whose data directory is private to the test.
func writeConfig(t *testing.T, edit func(*config.Config)) (string, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	if edit != nil {
		edit(cfg)
	}
	path := filepath.Join(dir, config.FileName)
	require.NoError(t, config.Save(path, cfg))
	return path, cfg
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := New()
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestKeyPath(t *testing.T) {
	path, cfg := writeConfig(t, nil)

	out, err := run(t, path, "key", "path")
	require.NoError(t, err)
	require.Equal(t, cfg.KeyPath()+"\n", out)
	require.Equal(t, filepath.Join(cfg.DataDir, ".master_key"), cfg.KeyPath())
}

func TestKeyRegenerate(t *testing.T) {
	path, cfg := writeConfig(t, nil)

	out, err := run(t, path, "key", "regenerate")
	require.Error(t, err)
	require.True(t, IsReported(err))
	require.Contains(t, out, "--yes")
	require.NoFileExists(t, cfg.KeyPath())

	_, err = run(t, path, "db", "add", "income", "date=2024-04-01", "amount=500", "description=salary", "category=salary")
	require.NoError(t, err)
	before, err := os.ReadFile(cfg.KeyPath())
	require.NoError(t, err)

	out, err = run(t, path, "key", "regenerate", "--yes")
	require.NoError(t, err)
	require.Contains(t, out, "✓")
	after, err := os.ReadFile(cfg.KeyPath())
	require.NoError(t, err)
	require.Len(t, after, 32)
	require.NotEqual(t, before, after)

	// The row written under the old key is now an integrity violation.
	_, err = run(t, path, "db", "list", "income")
	require.ErrorIs(t, err, ledgercrypt.ErrCorruptEnvelope)
}

func TestFileRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "compressed"}[compress], func(t *testing.T) {
			path, _ := writeConfig(t, func(c *config.Config) { c.CompressExports = compress })
			dir := t.TempDir()
			in := filepath.Join(dir, "export.csv")
			sealed := filepath.Join(dir, "export.enc")
			restored := filepath.Join(dir, "restored.csv")

			content := []byte(strings.Repeat("2024-04-01,500,April salary,salary\n", 200))
			require.NoError(t, os.WriteFile(in, content, 0o600))

			out, err := run(t, path, "file", "encrypt", in, sealed)
			require.NoError(t, err)
			require.Contains(t, out, "✓")

			data, err := os.ReadFile(sealed)
			require.NoError(t, err)
			require.NotContains(t, string(data), "April salary")
			_, ok := ledgercrypt.ParseEnvelope(string(data))
			require.True(t, ok)
			require.Equal(t, compress, strings.Contains(string(data), `"compression":"zstd"`))

			_, err = run(t, path, "file", "decrypt", sealed, restored)
			require.NoError(t, err)
			got, err := os.ReadFile(restored)
			require.NoError(t, err)
			require.Equal(t, content, got)
		})
	}
}

func TestFileDecrypt_RejectsPlaintext(t *testing.T) {
	path, _ := writeConfig(t, nil)
	in := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(in, []byte("not an envelope"), 0o600))

	_, err := run(t, path, "file", "decrypt", in, filepath.Join(t.TempDir(), "out"))
	require.ErrorIs(t, err, ledgercrypt.ErrDecryptionFailed)
}

func TestDBAddList(t *testing.T) {
	ctx := context.Background()
	path, cfg := writeConfig(t, nil)

	_, err := run(t, path, "db", "add", "income", "date=2024-04-01", "amount=500", "description=メモ", "category=salary")
	require.NoError(t, err)
	_, err = run(t, path, "db", "add", "income", "date=2024-05-01", "amount=700", "description=May", "category=bonus")
	require.NoError(t, err)

	out, err := run(t, path, "db", "list", "income")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "メモ", first["description"])
	require.Equal(t, float64(500), first["amount"])
	require.Equal(t, "salary", first["category"])

	out, err = run(t, path, "db", "list", "income", "--where", "amount > ?", "--arg", "600")
	require.NoError(t, err)
	require.Contains(t, out, `"description":"May"`)
	require.NotContains(t, out, "メモ")

	// At rest the description is an envelope.
	db, err := sqlitestore.Open(ctx, cfg.DatabasePath(), slog.Make())
	require.NoError(t, err)
	defer db.Close()
	raw, err := db.Select(ctx, "income", nil)
	require.NoError(t, err)
	require.Len(t, raw, 2)
	for _, row := range raw {
		stored, ok := row["description"].(string)
		require.True(t, ok)
		_, isEnvelope := ledgercrypt.ParseEnvelope(stored)
		require.True(t, isEnvelope)
	}
	require.Equal(t, int64(500), raw[0]["amount"])
}

func TestDBAdd_Errors(t *testing.T) {
	path, _ := writeConfig(t, nil)

	_, err := run(t, path, "db", "add", "accounts", "description=x")
	require.ErrorIs(t, err, ledgercrypt.ErrUnknownTable)

	_, err = run(t, path, "db", "add", "income", "description")
	require.Error(t, err)
}

func TestDBCheck(t *testing.T) {
	path, _ := writeConfig(t, nil)

	out, err := run(t, path, "db", "check")
	require.NoError(t, err)
	require.Contains(t, out, "✓")
}

func TestPassword(t *testing.T) {
	path, _ := writeConfig(t, nil)

	out, err := run(t, path, "password", "hash", "hunter2")
	require.NoError(t, err)
	var hash, salt string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		k, v, ok := strings.Cut(line, ": ")
		require.True(t, ok)
		switch k {
		case "hash":
			hash = v
		case "salt":
			salt = v
		}
	}
	require.Len(t, hash, 64)
	require.Len(t, salt, 32)

	out, err = run(t, path, "password", "verify", "hunter2", hash, salt)
	require.NoError(t, err)
	require.Contains(t, out, "✓")

	out, err = run(t, path, "password", "verify", "hunter3", hash, salt)
	require.True(t, IsReported(err))
	require.Contains(t, out, "✗")
}

func TestTempfile(t *testing.T) {
	path, _ := writeConfig(t, nil)

	out, err := run(t, path, "tempfile", "ledgercrypt_test_")
	require.NoError(t, err)
	tmp := strings.TrimSpace(out)
	t.Cleanup(func() { _ = os.Remove(tmp) })

	require.True(t, strings.HasPrefix(filepath.Base(tmp), "ledgercrypt_test_"))
	info, err := os.Stat(tmp)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	require.Zero(t, info.Size())
}

func TestParseRow(t *testing.T) {
	schema := ledgercrypt.DefaultSchema()

	row, err := parseRow(schema, "expense", []string{"amount=1200", "description=42", "category=a=b", "notes="})
	require.NoError(t, err)
	require.Equal(t, ledgercrypt.Row{
		"amount":      int64(1200),
		"description": "42",
		"category":    "a=b",
		"notes":       "",
	}, row)

	_, err = parseRow(schema, "expense", []string{"=x"})
	require.Error(t, err)
	_, err = parseRow(schema, "expense", []string{"amount=1", "amount=2"})
	require.Error(t, err)
}
