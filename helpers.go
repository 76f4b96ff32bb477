package ledgercrypt

import (
	"context"

	"golang.org/x/xerrors"
)

// SealString encrypts s and returns the serialized envelope for a TEXT column.
func (c *Cipher) SealString(ctx context.Context, s string) (string, error) {
	env, err := c.Encrypt(ctx, s)
	if err != nil {
		return "", err
	}
	out, err := env.Marshal()
	if err != nil {
		return "", encryptionFailed(err)
	}
	return out, nil
}

// Open classifies and, where possible, decrypts a stored sensitive value.
//
//   - Not an envelope: returns stored unchanged with FieldLegacy and no error.
//   - Envelope that decrypts: returns the plaintext with FieldEncrypted.
//   - Envelope that fails to decrypt: returns "" with FieldCorrupt and an
//     error wrapping both ErrCorruptEnvelope and ErrDecryptionFailed.
//   - Envelope but no usable key: returns "" with FieldUnverified and an
//     error wrapping ErrDecryptionFailed and the key provider's error
//     (e.g. ErrKeyFileCorrupt, ErrKeyUnavailable), never ErrCorruptEnvelope.
func (c *Cipher) Open(ctx context.Context, stored string) (string, FieldState, error) {
	env, ok := ParseEnvelope(stored)
	if !ok {
		return stored, FieldLegacy, nil
	}
	plaintext, err := c.Decrypt(ctx, env)
	if isKeyError(err) {
		return "", FieldUnverified, err
	}
	if err != nil {
		return "", FieldCorrupt, &opError{kind: ErrCorruptEnvelope, cause: err}
	}
	return plaintext, FieldEncrypted, nil
}

// OpenString decrypts a stored value that must be an envelope.
// Unlike Open, legacy plaintext is rejected with ErrDecryptionFailed.
func (c *Cipher) OpenString(ctx context.Context, stored string) (string, error) {
	env, ok := ParseEnvelope(stored)
	if !ok {
		return "", decryptionFailed(xerrors.New("value is not an envelope"))
	}
	return c.Decrypt(ctx, env)
}
