// Package sqlitestore is the SQLite storage engine behind ledgercrypt's
// RecordStore. It knows nothing about encryption: it inserts and selects
// rows exactly as given, and exposes SQLite's integrity check.
//
// Table and column names are interpolated into SQL, so they are restricted
// to plain identifiers; values are always bound as parameters.
package sqlitestore
