package ledgercrypt

import (
	"context"
)

// Rotate re-seals a stored sensitive value under to. The value is opened
// with from; legacy plaintext is sealed for the first time.
//
// KeyStore.RegenerateKey does not migrate data. Callers that want to keep
// existing values must rotate them (with from bound to the old key and to
// bound to the new one) and rewrite the rows themselves.
//
// Returns an error wrapping ErrCorruptEnvelope if the value does not decrypt,
// or the key provider's error if from has no usable key.
func Rotate(ctx context.Context, from, to *Cipher, stored string) (string, error) {
	plaintext, _, err := from.Open(ctx, stored)
	if err != nil {
		return "", err
	}
	return to.SealString(ctx, plaintext)
}

// NeedsRotation reports whether a stored value is not readable by c: it is
// legacy plaintext, or an envelope sealed under a different key. It returns
// an error instead of an answer when c's key cannot be loaded.
func NeedsRotation(ctx context.Context, c *Cipher, stored string) (bool, error) {
	_, state, err := c.Open(ctx, stored)
	if state == FieldUnverified {
		return false, err
	}
	return state != FieldEncrypted, nil
}
