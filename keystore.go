package ledgercrypt

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"cdr.dev/slog/v3"
	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
	"golang.org/x/xerrors"
)

const (
	// DefaultKeyFileName is the conventional key file name inside the per-user data directory.
	DefaultKeyFileName = ".master_key"

	keySize     = 32
	keyFileMode = 0o600
	keyDirMode  = 0o700
)

// KeyStore loads, generates and persists the installation's master key.
// It is safe for concurrent use: the first call to Key determines the key
// for the rest of the process, and every caller observes the same key.
//
// Construct one KeyStore in the application's composition root and share it.
type KeyStore struct {
	path   string
	strict bool
	logger slog.Logger

	mu        sync.Mutex
	key       []byte
	ephemeral bool
	closed    bool
}

// NewKeyStore creates a KeyStore backed by the key file at path.
// Nothing is read from disk until Key is first called.
func NewKeyStore(path string, opts ...Option) *KeyStore {
	cfg := applyOptions(opts)
	return &KeyStore{
		path:   path,
		strict: cfg.strictPersistence,
		logger: cfg.logger.Named("keystore"),
	}
}

// Path returns the key file path.
func (s *KeyStore) Path() string {
	return s.path
}

// Ephemeral reports whether the key only lives in memory because the key
// file could not be read or written. Data encrypted with an ephemeral key
// is unreadable after the process exits.
func (s *KeyStore) Ephemeral() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ephemeral
}

// Key implements KeyProvider. On first use it reads the key file, or
// generates and persists a new key if the file does not exist.
// The returned slice is a copy owned by the caller.
//
// A key file that exists but does not hold exactly 32 bytes fails with
// ErrKeyFileCorrupt; it is neither regenerated nor replaced in memory.
func (s *KeyStore) Key(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrKeyStoreClosed
	}
	if s.key == nil {
		key, err := s.loadOrGenerate(ctx)
		if err != nil {
			return nil, err
		}
		s.key = key
	}
	return cloneKey(s.key), nil
}

// RegenerateKey replaces the master key with a fresh random key and
// overwrites the key file.
//
// This is destructive: existing ciphertexts are not re-encrypted and can
// never be decrypted again. Use Rotate to migrate values beforehand.
//
// If the new key cannot be persisted, the current key stays in effect and
// an error wrapping ErrKeyUnavailable is returned. The returned slice is a
// copy owned by the caller.
func (s *KeyStore) RegenerateKey(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrKeyStoreClosed
	}

	s.logger.Info(ctx, "regenerating master key", slog.F("path", s.path))
	key, err := generateKey()
	if err != nil {
		return nil, err
	}

	unlock := s.lockFile(ctx)
	err = s.persist(key)
	unlock()
	if err != nil {
		zero(key)
		s.logger.Error(ctx, "failed to save regenerated master key", slog.F("path", s.path), slog.Error(err))
		return nil, keyUnavailable(xerrors.Errorf("save regenerated key: %w", err))
	}

	zero(s.key)
	s.key = key
	s.ephemeral = false
	s.logger.Info(ctx, "master key regenerated", slog.F("path", s.path))
	return cloneKey(key), nil
}

// Close zeros out the cached key.
// After calling Close, Key and RegenerateKey return ErrKeyStoreClosed.
func (s *KeyStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	zero(s.key)
	s.key = nil
	s.closed = true
}

func (s *KeyStore) loadOrGenerate(ctx context.Context) ([]byte, error) {
	unlock := s.lockFile(ctx)
	defer unlock()

	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if len(data) != keySize {
			zero(data)
			s.logger.Error(ctx, "master key file has wrong length",
				slog.F("path", s.path), slog.F("length", len(data)))
			return nil, xerrors.Errorf("read %s: %w", s.path, ErrKeyFileCorrupt)
		}
		s.logger.Debug(ctx, "master key loaded from file", slog.F("path", s.path))
		return data, nil
	case errors.Is(err, fs.ErrNotExist):
		key, genErr := generateKey()
		if genErr != nil {
			return nil, genErr
		}
		if err := s.persist(key); err != nil {
			return s.fallback(ctx, key, err)
		}
		s.logger.Info(ctx, "generated new master key", slog.F("path", s.path))
		return key, nil
	default:
		key, genErr := generateKey()
		if genErr != nil {
			return nil, genErr
		}
		return s.fallback(ctx, key, err)
	}
}

// fallback keeps key in memory only, or fails when strict persistence is on.
func (s *KeyStore) fallback(ctx context.Context, key []byte, cause error) ([]byte, error) {
	if s.strict {
		zero(key)
		s.logger.Error(ctx, "master key file unavailable", slog.F("path", s.path), slog.Error(cause))
		return nil, keyUnavailable(cause)
	}
	s.logger.Warn(ctx, "master key file unavailable, using in-memory key for this process; data encrypted now will not survive a restart",
		slog.F("path", s.path), slog.Error(cause))
	s.ephemeral = true
	return key, nil
}

// persist writes key with write-then-rename so a partial write never replaces a valid key.
func (s *KeyStore) persist(key []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), keyDirMode); err != nil {
		return xerrors.Errorf("create key directory: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(key)); err != nil {
		return xerrors.Errorf("write key file: %w", err)
	}
	if err := os.Chmod(s.path, keyFileMode); err != nil {
		return xerrors.Errorf("restrict key file permissions: %w", err)
	}
	return nil
}

// lockFile takes an inter-process lock next to the key file. A lock that
// cannot be taken (e.g. read-only directory) is logged and skipped.
func (s *KeyStore) lockFile(ctx context.Context) func() {
	_ = os.MkdirAll(filepath.Dir(s.path), keyDirMode)
	fl := flock.New(s.path + ".lock")
	if err := fl.Lock(); err != nil {
		s.logger.Debug(ctx, "key file lock unavailable", slog.Error(err))
		return func() {}
	}
	return func() {
		_ = fl.Unlock()
	}
}

// keyUnavailable wraps cause with ErrKeyUnavailable, keeping both matchable.
func keyUnavailable(cause error) error {
	return fmt.Errorf("%w: %w", ErrKeyUnavailable, cause)
}

// generateKey returns 32 bytes from crypto/rand.
func generateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, xerrors.Errorf("generate key: %w", err)
	}
	return key, nil
}
