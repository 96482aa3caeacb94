// Package refstore manages the curated text-correction reference table.
//
// Corrections map a field ("country", "city") and an exact standardized bad
// value to its curated replacement. The table is tiny, human-edited, and
// keyed on (field, bad_value) so re-applying the same curation file is
// idempotent. There is no delete: a correction that stops being wanted is
// overwritten with a new good value, never silently removed.
package refstore

import (
	"context"
	"fmt"
	"strings"

	"medallion/internal/textnorm"
	"medallion/internal/warehouse"
)

// Field names the column family a correction applies to.
type Field string

const (
	FieldCountry Field = "country"
	FieldCity    Field = "city"
)

// Entry is one correction row.
type Entry struct {
	Field     Field
	BadValue  string
	GoodValue string
}

// Validate reports whether the entry is storable.
func (e Entry) Validate() error {
	if strings.TrimSpace(string(e.Field)) == "" {
		return fmt.Errorf("refstore: empty field")
	}
	if strings.TrimSpace(e.BadValue) == "" {
		return fmt.Errorf("refstore: empty bad_value for field %s", e.Field)
	}
	if strings.TrimSpace(e.GoodValue) == "" {
		return fmt.Errorf("refstore: empty good_value for field %s", e.Field)
	}
	return nil
}

// Corrections is an in-memory snapshot of the table, shaped for the mapping
// applier's inner loop.
type Corrections map[Field]map[string]string

// Lookup returns the curated replacement for an exact standardized value.
func (c Corrections) Lookup(field Field, value string) (string, bool) {
	m, ok := c[field]
	if !ok {
		return "", false
	}
	good, ok := m[value]
	return good, ok
}

// Len returns the total number of corrections across all fields.
func (c Corrections) Len() int {
	n := 0
	for _, m := range c {
		n += len(m)
	}
	return n
}

var columns = []warehouse.Column{
	{Name: "field", Type: warehouse.TypeText},
	{Name: "bad_value", Type: warehouse.TypeText},
	{Name: "good_value", Type: warehouse.TypeText},
}

var keyCols = []string{"field", "bad_value"}

// Store wraps a warehouse.Store with the correction-table operations.
type Store struct {
	wh    warehouse.Store
	table string
}

// New binds the store to the named table in the silver tier.
func New(wh warehouse.Store, tier, table string) *Store {
	return &Store{wh: wh, table: wh.Table(tier, table)}
}

// Table returns the fully qualified correction table name.
func (s *Store) Table() string { return s.table }

// Ensure creates the correction table if it does not exist.
func (s *Store) Ensure(ctx context.Context) error {
	return s.wh.EnsureTable(ctx, s.table, columns, keyCols)
}

// Upsert writes entries keyed on (field, bad_value). Re-running the same
// entries is a no-op; a changed good_value overwrites.
func (s *Store) Upsert(ctx context.Context, entries []Entry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return 0, err
		}
	}

	rs := warehouse.NewRowSet(columns, len(entries))
	for _, e := range entries {
		rs.Append([]any{string(e.Field), e.BadValue, e.GoodValue})
	}
	return s.wh.Upsert(ctx, s.table, keyCols, rs)
}

// Snapshot loads the full table into memory.
func (s *Store) Snapshot(ctx context.Context) (Corrections, error) {
	rs, err := s.wh.Read(ctx, s.table)
	if err != nil {
		return nil, fmt.Errorf("refstore: read %s: %w", s.table, err)
	}

	fi := rs.ColumnIndex("field")
	bi := rs.ColumnIndex("bad_value")
	gi := rs.ColumnIndex("good_value")
	if fi < 0 || bi < 0 || gi < 0 {
		return nil, fmt.Errorf("refstore: %s is missing correction columns", s.table)
	}

	out := Corrections{}
	for _, row := range rs.Rows {
		field, _ := warehouse.AsString(row[fi])
		bad, _ := warehouse.AsString(row[bi])
		good, _ := warehouse.AsString(row[gi])
		if field == "" || bad == "" {
			continue
		}
		m := out[Field(field)]
		if m == nil {
			m = map[string]string{}
			out[Field(field)] = m
		}
		m[bad] = good
	}
	return out, nil
}

// List returns all entries sorted by the backend's natural order. Used by the
// curation CLI.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, snap.Len())
	for field, m := range snap {
		for bad, good := range m {
			out = append(out, Entry{Field: field, BadValue: bad, GoodValue: good})
		}
	}
	return out, nil
}

// Suggest proposes corrections for values that carry encoding damage. For
// each distinct value with mojibake markers it strips the damaged runes and
// folds the remainder to ASCII; when something readable survives, that
// becomes the proposed good value. Proposals are for human review, never
// auto-applied.
func Suggest(field Field, values []string) []Entry {
	seen := map[string]bool{}
	var out []Entry
	for _, v := range values {
		if v == "" || seen[v] || !textnorm.HasMojibake(v) {
			continue
		}
		seen[v] = true

		repaired := textnorm.FoldASCII(textnorm.StripMojibake(v))
		repaired = textnorm.Std(repaired)
		if repaired == "" || repaired == v {
			continue
		}
		out = append(out, Entry{Field: field, BadValue: v, GoodValue: repaired})
	}
	return out
}
