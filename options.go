package ledgercrypt

import (
	"cdr.dev/slog/v3"
	"github.com/spf13/afero"
)

// DefaultAssociatedData is bound into every authentication tag. Ciphertexts
// produced under a different associated data string do not decrypt.
const DefaultAssociatedData = "dcs-accounting-app"

// Option is a functional option shared by KeyStore, Cipher, RecordStore and
// FileCodec. Each constructor reads only the settings relevant to it.
type Option func(*config)

// config holds the settings assembled from options.
type config struct {
	logger               slog.Logger
	associatedData       []byte
	strictPersistence    bool
	fs                   afero.Fs
	compressionAlgorithm string
	compressionThreshold int
}

// defaultConfig returns the default configuration.
func defaultConfig() *config {
	return &config{
		logger:               slog.Make(),
		associatedData:       []byte(DefaultAssociatedData),
		fs:                   afero.NewOsFs(),
		compressionThreshold: defaultCompressionThreshold,
	}
}

func applyOptions(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithLogger sets the logger. Log entries never contain plaintext or key material.
func WithLogger(logger slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithAssociatedData overrides the associated data bound into authentication tags.
// Every Cipher that must read the same data has to use the same value.
func WithAssociatedData(ad string) Option {
	return func(c *config) {
		c.associatedData = []byte(ad)
	}
}

// WithStrictPersistence makes KeyStore fail with ErrKeyUnavailable instead of
// falling back to an in-memory key when the key file cannot be read or written.
func WithStrictPersistence() Option {
	return func(c *config) {
		c.strictPersistence = true
	}
}

// WithFs sets the filesystem used by FileCodec and CreateSecureTempFile.
// Defaults to the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(c *config) {
		c.fs = fs
	}
}

// WithCompression makes FileCodec zstd-compress file contents before sealing
// when they exceed the compression threshold. Decryption always honours the
// envelope's compression field, whether or not this option is set.
func WithCompression() Option {
	return func(c *config) {
		c.compressionAlgorithm = compressionAlgorithmZstd
	}
}

// WithCompressionThreshold sets the minimum size in bytes before compression is attempted.
// Default is 1024 (1KB).
func WithCompressionThreshold(bytes int) Option {
	return func(c *config) {
		c.compressionThreshold = bytes
	}
}
