package ledgercrypt

import (
	"errors"
	"fmt"
)

var (
	// ErrEncryptionFailed indicates a field or file could not be encrypted.
	ErrEncryptionFailed = errors.New("ledgercrypt: encryption failed")

	// ErrDecryptionFailed indicates authentication failed, or the envelope hex/IV/tag was malformed.
	ErrDecryptionFailed = errors.New("ledgercrypt: decryption failed")

	// ErrCorruptEnvelope indicates a stored value looked like an envelope but did not decrypt.
	// It is never treated as legacy plaintext.
	ErrCorruptEnvelope = errors.New("ledgercrypt: corrupt envelope")

	// ErrInvalidKeySize indicates the master key is not exactly 32 bytes.
	ErrInvalidKeySize = errors.New("ledgercrypt: key must be 32 bytes")

	// ErrKeyUnavailable indicates the key file could not be read or written.
	// The key store degrades to an in-memory key unless strict persistence is enabled.
	ErrKeyUnavailable = errors.New("ledgercrypt: key file unavailable")

	// ErrKeyFileCorrupt indicates the key file exists but does not hold exactly 32 bytes.
	ErrKeyFileCorrupt = errors.New("ledgercrypt: key file is corrupt")

	// ErrKeyStoreClosed indicates the key store was used after Close() was called.
	ErrKeyStoreClosed = errors.New("ledgercrypt: key store is closed")

	// ErrUnknownTable indicates a table is not declared in the schema.
	ErrUnknownTable = errors.New("ledgercrypt: table not declared in schema")

	// ErrFileIO indicates a file export, import or temp file operation failed.
	ErrFileIO = errors.New("ledgercrypt: file operation failed")

	// ErrDecompressionFailed indicates zstd decompression failed.
	ErrDecompressionFailed = errors.New("ledgercrypt: decompression failed")

	// ErrUnsupportedCompression indicates an envelope names an unknown compression algorithm.
	ErrUnsupportedCompression = errors.New("ledgercrypt: unsupported compression algorithm")
)

// FieldIntegrityError is returned by RecordStore.Read when a sensitive column
// holds a well-formed envelope that fails to decrypt. Its message names the
// location only; Cause holds the decryption error.
type FieldIntegrityError struct {
	Table  string
	Column string
	Row    int
	Cause  error
}

func (e *FieldIntegrityError) Error() string {
	return fmt.Sprintf("ledgercrypt: integrity violation in %s.%s (row %d)", e.Table, e.Column, e.Row)
}

func (e *FieldIntegrityError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrCorruptEnvelope}
	}
	return []error{ErrCorruptEnvelope, e.Cause}
}

// keyError reports that the master key could not be obtained or used. It
// says nothing about the envelope being processed.
type keyError struct {
	err error
}

func (e *keyError) Error() string {
	return "load key: " + e.err.Error()
}

func (e *keyError) Unwrap() error {
	return e.err
}

func isKeyError(err error) bool {
	var ke *keyError
	return errors.As(err, &ke)
}

// opError reports only its generic kind while keeping the underlying cause
// reachable through errors.Is and errors.As.
type opError struct {
	kind  error
	cause error
}

func (e *opError) Error() string {
	return e.kind.Error()
}

func (e *opError) Unwrap() []error {
	return []error{e.kind, e.cause}
}

func encryptionFailed(cause error) error {
	return &opError{kind: ErrEncryptionFailed, cause: cause}
}

func decryptionFailed(cause error) error {
	return &opError{kind: ErrDecryptionFailed, cause: cause}
}
