package ledgercrypt

import (
	"sort"
)

// Schema declares, per table, which columns hold encrypted content.
// Tables absent from the schema are rejected by RecordStore.
type Schema struct {
	tables map[string]map[string]struct{}
}

// NewSchema builds a Schema from table name to sensitive column names.
// A table with an empty list is declared but has no sensitive columns.
func NewSchema(sensitive map[string][]string) Schema {
	tables := make(map[string]map[string]struct{}, len(sensitive))
	for table, columns := range sensitive {
		set := make(map[string]struct{}, len(columns))
		for _, col := range columns {
			set[col] = struct{}{}
		}
		tables[table] = set
	}
	return Schema{tables: tables}
}

// DefaultSchema returns the accounting schema: free-text columns of the
// income and expense tables are sensitive, settings holds none.
func DefaultSchema() Schema {
	return NewSchema(map[string][]string{
		"income":   {"description", "notes"},
		"expense":  {"description", "notes"},
		"settings": nil,
	})
}

// Declares reports whether table is part of the schema.
func (s Schema) Declares(table string) bool {
	_, ok := s.tables[table]
	return ok
}

// Sensitive reports whether column of table must be encrypted.
func (s Schema) Sensitive(table, column string) bool {
	_, ok := s.tables[table][column]
	return ok
}

// Tables returns the declared table names, sorted alphabetically.
func (s Schema) Tables() []string {
	return sortedMapKeys(s.tables)
}

// SensitiveColumns returns the sensitive columns of table, sorted alphabetically.
func (s Schema) SensitiveColumns(table string) []string {
	return sortedMapKeys(s.tables[table])
}

// sortedMapKeys returns map keys sorted alphabetically.
func sortedMapKeys[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
