// Package ledgercrypt provides field-level encryption for locally stored
// personal-finance records.
//
// Free-text columns (descriptions, notes) are encrypted before they reach the
// storage engine, so inspecting the database file does not reveal them, while
// numeric and enumerated columns stay plaintext and queryable.
//
// # Encryption
//
// Values are sealed with AES-256-GCM using a fresh random 16-byte IV per call.
// A constant associated data string identifying the application is bound
// into every authentication tag, so ciphertexts do not verify outside this
// context. Each encrypted value is stored as a JSON envelope:
//
//	{"encrypted": "<hex>", "iv": "<32 hex chars>", "tag": "<32 hex chars>"}
//
// # Master Key
//
// A single 32-byte master key per installation lives in a key file with
// owner-only permissions (conventionally ".master_key" in the per-user data
// directory). KeyStore reads it on first use, or generates and persists it
// with write-then-rename if it does not exist yet:
//
//	keys := ledgercrypt.NewKeyStore(filepath.Join(dataDir, ledgercrypt.DefaultKeyFileName))
//	defer keys.Close()
//
//	cipher, err := ledgercrypt.New(keys)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// If the key file cannot be read or written, KeyStore falls back to an
// in-memory key for the life of the process and logs a warning; data
// encrypted in that state is lost on restart. WithStrictPersistence turns
// this into an error. A key file of the wrong length is always an error.
//
// KeyStore.RegenerateKey replaces the key and is destructive: everything
// encrypted before becomes permanently unreadable. Rotate re-seals values
// for callers that migrate data first.
//
// # Records
//
// RecordStore wraps a storage Engine (package sqlitestore provides one over
// SQLite) and a Schema naming the sensitive columns of each table:
//
//	store := ledgercrypt.NewRecordStore(engine, cipher, ledgercrypt.DefaultSchema())
//	err := store.Write(ctx, "income", ledgercrypt.Row{"amount": 500, "description": "salary"})
//	rows, err := store.Read(ctx, "income", nil)
//
// Sensitive values that are not envelopes are legacy plaintext and are
// returned unchanged. An envelope that fails authentication is an integrity
// violation and aborts the read with a *FieldIntegrityError.
//
// # Files
//
// FileCodec encrypts whole files into the same envelope format for exports
// and backups, optionally zstd-compressing large inputs first.
// CreateSecureTempFile creates owner-only temporary files.
package ledgercrypt
