package ledgercrypt

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/xerrors"
)

// Cipher encrypts and decrypts individual values with AES-256-GCM under the
// master key supplied by a KeyProvider. Each call uses a fresh random 16-byte
// IV, and the associated data string is bound into every tag.
//
// The key is fetched from the provider on every call, so a KeyStore
// regeneration takes effect immediately. Cipher is safe for concurrent use.
type Cipher struct {
	keys           KeyProvider
	associatedData []byte
}

// New creates a Cipher drawing its key from keys.
//
// Example:
//
//	store := ledgercrypt.NewKeyStore(filepath.Join(dataDir, ledgercrypt.DefaultKeyFileName))
//	cipher, err := ledgercrypt.New(store)
func New(keys KeyProvider, opts ...Option) (*Cipher, error) {
	if keys == nil {
		return nil, xerrors.New("ledgercrypt: nil key provider")
	}
	cfg := applyOptions(opts)
	ad := make([]byte, len(cfg.associatedData))
	copy(ad, cfg.associatedData)
	return &Cipher{keys: keys, associatedData: ad}, nil
}

// Encrypt seals plaintext into a new Envelope.
// Failures return an error wrapping ErrEncryptionFailed whose message is generic.
func (c *Cipher) Encrypt(ctx context.Context, plaintext string) (*Envelope, error) {
	return c.seal(ctx, []byte(plaintext), "")
}

// Decrypt verifies and opens env. No plaintext is returned unless the tag
// verifies; any tag mismatch, malformed hex or wrong-length IV or tag fails
// with an error wrapping ErrDecryptionFailed. Compressed envelopes produced
// by FileCodec are decompressed after verification.
func (c *Cipher) Decrypt(ctx context.Context, env *Envelope) (string, error) {
	plaintext, err := c.open(ctx, env)
	if err != nil {
		return "", err
	}
	plaintext, err = decompress(plaintext, env.Compression)
	if err != nil {
		return "", decryptionFailed(err)
	}
	return string(plaintext), nil
}

// seal encrypts plaintext that has already been compressed with compression
// ("" for none). The compression name is authenticated along with the data.
func (c *Cipher) seal(ctx context.Context, plaintext []byte, compression string) (*Envelope, error) {
	aead, err := c.aead(ctx)
	if err != nil {
		return nil, encryptionFailed(err)
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, encryptionFailed(err)
	}

	sealed := aead.Seal(nil, iv, plaintext, c.additionalData(compression))
	split := len(sealed) - tagSize
	return &Envelope{
		Ciphertext:  hex.EncodeToString(sealed[:split]),
		IV:          hex.EncodeToString(iv),
		Tag:         hex.EncodeToString(sealed[split:]),
		Compression: compression,
	}, nil
}

func (c *Cipher) open(ctx context.Context, env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, decryptionFailed(xerrors.New("nil envelope"))
	}
	iv, err := decodeHexField("iv", env.IV, ivSize)
	if err != nil {
		return nil, decryptionFailed(err)
	}
	tag, err := decodeHexField("tag", env.Tag, tagSize)
	if err != nil {
		return nil, decryptionFailed(err)
	}
	ciphertext, err := decodeHexField("encrypted", env.Ciphertext, -1)
	if err != nil {
		return nil, decryptionFailed(err)
	}

	aead, err := c.aead(ctx)
	if err != nil {
		return nil, decryptionFailed(err)
	}

	plaintext, err := aead.Open(nil, iv, append(ciphertext, tag...), c.additionalData(env.Compression))
	if err != nil {
		return nil, decryptionFailed(err)
	}
	return plaintext, nil
}

// additionalData returns the associated data for an envelope. Uncompressed
// envelopes use the bare associated data string.
func (c *Cipher) additionalData(compression string) []byte {
	if compression == "" {
		return c.associatedData
	}
	ad := make([]byte, 0, len(c.associatedData)+1+len(compression))
	ad = append(ad, c.associatedData...)
	ad = append(ad, '|')
	return append(ad, compression...)
}

// aead builds an AES-256-GCM instance for the provider's current key.
// Failures to obtain a usable key are returned as *keyError.
func (c *Cipher) aead(ctx context.Context) (cipher.AEAD, error) {
	key, err := c.keys.Key(ctx)
	if err != nil {
		return nil, &keyError{err: err}
	}
	defer zero(key)
	if len(key) != keySize {
		return nil, &keyError{err: ErrInvalidKeySize}
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, ivSize)
}

// decodeHexField decodes s, requiring exactly size bytes unless size is
// negative. Only the lower-case form Encrypt produces is accepted, so every
// stored field has a single valid spelling.
func decodeHexField(name, s string, size int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, xerrors.Errorf("decode %s: %w", name, err)
	}
	if hex.EncodeToString(b) != s {
		return nil, xerrors.Errorf("%s is not lower-case hex", name)
	}
	if size >= 0 && len(b) != size {
		return nil, xerrors.Errorf("%s must be %d bytes, got %d", name, size, len(b))
	}
	return b, nil
}
