package ledgercrypt

import (
	"context"
	"fmt"
	"os"

	"cdr.dev/slog/v3"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

const fileMode os.FileMode = 0o600

// FileCodec encrypts whole files into a single JSON envelope and back, for
// exports and backups. Unlike RecordStore there is no plaintext fallback:
// an input that is not a valid envelope fails.
type FileCodec struct {
	cipher      *Cipher
	fs          afero.Fs
	logger      slog.Logger
	compression string
	threshold   int
}

// NewFileCodec creates a FileCodec. WithFs, WithLogger, WithCompression and
// WithCompressionThreshold are honoured.
func NewFileCodec(c *Cipher, opts ...Option) *FileCodec {
	cfg := applyOptions(opts)
	return &FileCodec{
		cipher:      c,
		fs:          cfg.fs,
		logger:      cfg.logger.Named("filecodec"),
		compression: cfg.compressionAlgorithm,
		threshold:   cfg.compressionThreshold,
	}
}

// EncryptFile reads inputPath, seals its contents and writes the envelope
// JSON to outputPath with owner-only permissions.
func (f *FileCodec) EncryptFile(ctx context.Context, inputPath, outputPath string) error {
	data, err := afero.ReadFile(f.fs, inputPath)
	if err != nil {
		return f.fail(ctx, "read", inputPath, fileIOError("read", inputPath, err))
	}

	payload, algorithm := maybeCompress(data, f.threshold, f.compression)
	env, err := f.cipher.seal(ctx, payload, algorithm)
	if err != nil {
		return f.fail(ctx, "encrypt", inputPath, xerrors.Errorf("encrypt %s: %w", inputPath, err))
	}
	out, err := env.Marshal()
	if err != nil {
		return f.fail(ctx, "encode", inputPath, encryptionFailed(err))
	}

	if err := f.writeFile(outputPath, []byte(out)); err != nil {
		return f.fail(ctx, "write", outputPath, err)
	}
	f.logger.Info(ctx, "file encrypted",
		slog.F("input", inputPath), slog.F("output", outputPath), slog.F("compression", algorithm))
	return nil
}

// DecryptFile reads the envelope at inputPath, verifies and decrypts it, and
// writes the plaintext to outputPath with owner-only permissions.
func (f *FileCodec) DecryptFile(ctx context.Context, inputPath, outputPath string) error {
	data, err := afero.ReadFile(f.fs, inputPath)
	if err != nil {
		return f.fail(ctx, "read", inputPath, fileIOError("read", inputPath, err))
	}

	env, ok := ParseEnvelope(string(data))
	if !ok {
		return f.fail(ctx, "parse", inputPath,
			xerrors.Errorf("decrypt %s: %w", inputPath, decryptionFailed(xerrors.New("input is not an envelope"))))
	}
	plaintext, err := f.cipher.Decrypt(ctx, env)
	if err != nil {
		return f.fail(ctx, "decrypt", inputPath, xerrors.Errorf("decrypt %s: %w", inputPath, err))
	}

	if err := f.writeFile(outputPath, []byte(plaintext)); err != nil {
		return f.fail(ctx, "write", outputPath, err)
	}
	f.logger.Info(ctx, "file decrypted", slog.F("input", inputPath), slog.F("output", outputPath))
	return nil
}

// writeFile writes data to path, restricting permissions even if path
// already existed with a wider mode.
func (f *FileCodec) writeFile(path string, data []byte) error {
	if err := afero.WriteFile(f.fs, path, data, fileMode); err != nil {
		return fileIOError("write", path, err)
	}
	if err := f.fs.Chmod(path, fileMode); err != nil {
		return fileIOError("chmod", path, err)
	}
	return nil
}

func (f *FileCodec) fail(ctx context.Context, step, path string, err error) error {
	f.logger.Error(ctx, "file operation failed", slog.F("step", step), slog.F("path", path), slog.Error(err))
	return err
}

// fileIOError wraps err with ErrFileIO and the failing step.
func fileIOError(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrFileIO, op, path, err)
}
