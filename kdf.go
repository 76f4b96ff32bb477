package ledgercrypt

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/xerrors"
)

// Password hashing parameters. Changing any of them invalidates stored hashes.
const (
	passwordIterations = 100000
	passwordHashSize   = 32
	passwordSaltSize   = 16
)

// HashPassword derives a hex-encoded PBKDF2-HMAC-SHA256 hash of password.
// If salt is empty, a random 16-byte salt is generated; the salt actually
// used is returned in hex alongside the hash and must be stored with it.
//
// The salt string is used as-is (its text, not its decoded bytes) so hashes
// stay comparable with those produced from the same stored salt.
func HashPassword(password, salt string) (hash, usedSalt string, err error) {
	if salt == "" {
		b := make([]byte, passwordSaltSize)
		if _, err := rand.Read(b); err != nil {
			return "", "", xerrors.Errorf("generate salt: %w", err)
		}
		salt = hex.EncodeToString(b)
	}
	derived := pbkdf2.Key([]byte(password), []byte(salt), passwordIterations, passwordHashSize, sha256.New)
	return hex.EncodeToString(derived), salt, nil
}

// VerifyPassword reports whether password hashes to hash under salt.
// The comparison is constant-time.
func VerifyPassword(password, hash, salt string) bool {
	if salt == "" {
		return false
	}
	computed, _, err := HashPassword(password, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
