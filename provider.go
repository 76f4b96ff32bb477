package ledgercrypt

import (
	"context"
	"sync"
)

// KeyProvider supplies the 32-byte master key used by a Cipher.
// KeyStore is the file-backed implementation; StaticKeyProvider is for tests
// and callers that manage the key themselves.
type KeyProvider interface {
	// Key returns the current master key. Implementations must return the
	// same key to every caller until it is explicitly replaced. The returned
	// slice is owned by the caller, which may zero it after use.
	Key(ctx context.Context) ([]byte, error)
}

// StaticKeyProvider is a simple in-memory implementation of KeyProvider.
// It is safe for concurrent use, including Close.
type StaticKeyProvider struct {
	mu  sync.RWMutex
	key []byte
}

// NewStaticKeyProvider creates a StaticKeyProvider holding a copy of key.
func NewStaticKeyProvider(key []byte) (*StaticKeyProvider, error) {
	if len(key) != keySize {
		return nil, ErrInvalidKeySize
	}
	return &StaticKeyProvider{key: cloneKey(key)}, nil
}

// Key implements KeyProvider. It returns a copy of the key.
func (p *StaticKeyProvider) Key(context.Context) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.key == nil {
		return nil, ErrKeyStoreClosed
	}
	return cloneKey(p.key), nil
}

// Close zeros out the key material.
// After calling Close, Key returns ErrKeyStoreClosed.
func (p *StaticKeyProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	zero(p.key)
	p.key = nil
}

func cloneKey(key []byte) []byte {
	out := make([]byte, len(key))
	copy(out, key)
	return out
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
