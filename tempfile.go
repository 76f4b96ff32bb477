package ledgercrypt

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"

	"cdr.dev/slog/v3"
)

// DefaultTempPrefix is used by CreateSecureTempFile when prefix is empty.
const DefaultTempPrefix = "dcs_temp_"

// CreateSecureTempFile creates a new, empty, owner-only file in the OS
// temporary directory named prefix followed by 16 random hex characters,
// and returns its path. The caller owns the file and must remove it.
//
// WithFs and WithLogger are honoured.
func CreateSecureTempFile(ctx context.Context, prefix string, opts ...Option) (string, error) {
	cfg := applyOptions(opts)
	if prefix == "" {
		prefix = DefaultTempPrefix
	}

	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return "", fileIOError("generate name for", prefix, err)
	}
	path := filepath.Join(os.TempDir(), prefix+hex.EncodeToString(suffix))

	// O_EXCL so an existing file (or symlink) at path is never reused.
	file, err := cfg.fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, fileMode)
	if err != nil {
		return "", fileIOError("create", path, err)
	}
	if err := file.Close(); err != nil {
		return "", fileIOError("close", path, err)
	}
	if err := cfg.fs.Chmod(path, fileMode); err != nil {
		return "", fileIOError("chmod", path, err)
	}
	cfg.logger.Named("tempfile").Debug(ctx, "secure temp file created", slog.F("path", path))
	return path, nil
}
