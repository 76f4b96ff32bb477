// Package config loads and saves the ledgercrypt TOML configuration.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"golang.org/x/xerrors"

	"github.com/ai8future/ledgercrypt"
	"github.com/ai8future/ledgercrypt/sqlitestore"
)

// FileName is the configuration file name inside the per-user config directory.
const FileName = "config.toml"

const appName = "ledgercrypt"

// Config is the on-disk configuration. Relative KeyFile and Database paths
// are resolved against DataDir.
type Config struct {
	DataDir              string              `toml:"data_dir"`
	KeyFile              string              `toml:"key_file"`
	Database             string              `toml:"database"`
	AssociatedData       string              `toml:"associated_data"`
	TempPrefix           string              `toml:"temp_prefix"`
	CompressExports      bool                `toml:"compress_exports"`
	StrictKeyPersistence bool                `toml:"strict_key_persistence"`
	Sensitive            map[string][]string `toml:"sensitive"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DataDir:        filepath.Join(xdg.DataHome, appName),
		KeyFile:        ledgercrypt.DefaultKeyFileName,
		Database:       sqlitestore.DefaultFileName,
		AssociatedData: ledgercrypt.DefaultAssociatedData,
		TempPrefix:     ledgercrypt.DefaultTempPrefix,
		Sensitive:      DefaultSensitive(),
	}
}

// DefaultSensitive returns the sensitive columns of the accounting schema.
func DefaultSensitive() map[string][]string {
	schema := ledgercrypt.DefaultSchema()
	out := make(map[string][]string)
	for _, table := range schema.Tables() {
		out[table] = schema.SensitiveColumns(table)
	}
	return out
}

// DefaultPath returns the per-user configuration file path.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, FileName)
}

// Load reads the configuration at path. A missing file yields Default.
// Keys absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, xerrors.Errorf("load config %s: %w", path, err)
	}
	// An explicit [sensitive] table replaces the default one wholesale.
	if meta.IsDefined("sensitive") {
		for table := range cfg.Sensitive {
			if !meta.IsDefined("sensitive", table) {
				delete(cfg.Sensitive, table)
			}
		}
	}
	return cfg, nil
}

// Save writes cfg to path, creating the parent directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return xerrors.Errorf("create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return xerrors.Errorf("create config %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return xerrors.Errorf("encode config: %w", err)
	}
	return nil
}

// KeyPath returns the master key file path.
func (c *Config) KeyPath() string {
	return c.resolve(c.KeyFile)
}

// DatabasePath returns the SQLite database path. ":memory:" is returned as is.
func (c *Config) DatabasePath() string {
	if c.Database == ":memory:" {
		return c.Database
	}
	return c.resolve(c.Database)
}

// Schema returns the sensitive-column schema.
func (c *Config) Schema() ledgercrypt.Schema {
	return ledgercrypt.NewSchema(c.Sensitive)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}
