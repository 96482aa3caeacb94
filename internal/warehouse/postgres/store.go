// Package postgres implements warehouse.Store on jackc/pgx.
//
// Tiers map to real schemas; bulk table writes go through COPY, which is the
// fast path for whole-table overwrite semantics.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"medallion/internal/warehouse"
)

// maxBindArgs keeps upsert statements well under the 65535 parameter limit.
const maxBindArgs = 32000

type store struct {
	pool *pgxpool.Pool
}

func init() {
	warehouse.Register("postgres", New)
}

func New(ctx context.Context, cfg warehouse.Config) (warehouse.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &store{pool: pool}, nil
}

func (s *store) Close() { s.pool.Close() }

func (s *store) EnsureTier(ctx context.Context, tier string) error {
	_, err := s.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+ident(tier))
	if err != nil {
		return fmt.Errorf("postgres: ensure schema %s: %w", tier, err)
	}
	return nil
}

func (s *store) Table(tier, name string) string {
	if tier == "" {
		return ident(name)
	}
	return ident(tier) + "." + ident(name)
}

func (s *store) Read(ctx context.Context, table string) (*warehouse.RowSet, error) {
	return s.query(ctx, "SELECT * FROM "+table)
}

func (s *store) Write(ctx context.Context, table string, rs *warehouse.RowSet, mode warehouse.WriteMode) error {
	_ = mode

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("postgres: drop %s: %w", table, err)
	}
	if _, err := tx.Exec(ctx, createSQL(table, rs.Columns, nil)); err != nil {
		return fmt.Errorf("postgres: create %s: %w", table, err)
	}

	if rs.Len() > 0 {
		if _, err := tx.CopyFrom(ctx, tableIdentifier(table), rs.Names(), pgx.CopyFromRows(rs.Rows)); err != nil {
			return fmt.Errorf("postgres: copy into %s: %w", table, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *store) EnsureTable(ctx context.Context, table string, cols []warehouse.Column, uniqueCols []string) error {
	q := strings.Replace(createSQL(table, cols, uniqueCols), "CREATE TABLE ", "CREATE TABLE IF NOT EXISTS ", 1)
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("postgres: ensure %s: %w", table, err)
	}
	return nil
}

func (s *store) Upsert(ctx context.Context, table string, keyCols []string, rs *warehouse.RowSet) (int64, error) {
	if rs.Len() == 0 {
		return 0, nil
	}

	names := rs.Names()
	nonKey := nonKeyColumns(names, keyCols)

	quotedKeys := make([]string, len(keyCols))
	for i, k := range keyCols {
		quotedKeys[i] = ident(k)
	}
	suffix := " ON CONFLICT (" + strings.Join(quotedKeys, ", ") + ")"
	if len(nonKey) == 0 {
		suffix += " DO NOTHING"
	} else {
		sets := make([]string, len(nonKey))
		for i, c := range nonKey {
			sets[i] = ident(c) + " = EXCLUDED." + ident(c)
		}
		suffix += " DO UPDATE SET " + strings.Join(sets, ", ")
	}

	per := maxBindArgs / len(names)
	if per < 1 {
		per = 1
	}

	var affected int64
	for start := 0; start < rs.Len(); start += per {
		end := start + per
		if end > rs.Len() {
			end = rs.Len()
		}
		q, args := insertSQL(table, names, rs.Rows[start:end], suffix)
		tag, err := s.pool.Exec(ctx, q, args...)
		if err != nil {
			return affected, fmt.Errorf("postgres: upsert %s: %w", table, err)
		}
		affected += tag.RowsAffected()
	}
	return affected, nil
}

func (s *store) CreateView(ctx context.Context, view, source string) error {
	// DROP first rather than CREATE OR REPLACE: REPLACE cannot change the
	// column set, and the source table gains columns between silver versions.
	if _, err := s.pool.Exec(ctx, "DROP VIEW IF EXISTS "+view); err != nil {
		return fmt.Errorf("postgres: drop view %s: %w", view, err)
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("CREATE VIEW %s AS SELECT * FROM %s", view, source)); err != nil {
		return fmt.Errorf("postgres: create view %s: %w", view, err)
	}
	return nil
}

func (s *store) Query(ctx context.Context, q string) (*warehouse.RowSet, error) {
	return s.query(ctx, q)
}

func (s *store) query(ctx context.Context, q string) (*warehouse.RowSet, error) {
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]warehouse.Column, len(fields))
	for i, f := range fields {
		cols[i] = warehouse.Column{Name: f.Name, Type: warehouse.TypeText}
	}

	rs := warehouse.NewRowSet(cols, 0)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, vals)
	}
	return rs, rows.Err()
}

// ---- SQL building ----

func ident(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// tableIdentifier splits a qualified quoted name back into parts for CopyFrom.
func tableIdentifier(table string) pgx.Identifier {
	parts := strings.Split(table, ".")
	out := make(pgx.Identifier, len(parts))
	for i, p := range parts {
		out[i] = strings.ReplaceAll(strings.Trim(p, `"`), `""`, `"`)
	}
	return out
}

func ddlType(t warehouse.Type) string {
	switch t {
	case warehouse.TypeInt:
		return "INTEGER"
	case warehouse.TypeBigInt:
		return "BIGINT"
	case warehouse.TypeFloat:
		return "DOUBLE PRECISION"
	case warehouse.TypeTimestamp:
		return "TIMESTAMPTZ"
	case warehouse.TypeDate:
		return "DATE"
	default:
		return "TEXT"
	}
}

func createSQL(table string, cols []warehouse.Column, uniqueCols []string) string {
	parts := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		parts = append(parts, ident(c.Name)+" "+ddlType(c.Type))
	}
	if len(uniqueCols) > 0 {
		quoted := make([]string, len(uniqueCols))
		for i, c := range uniqueCols {
			quoted[i] = ident(c)
		}
		parts = append(parts, "UNIQUE ("+strings.Join(quoted, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", table, strings.Join(parts, ",\n  "))
}

func insertSQL(table string, names []string, chunk [][]any, suffix string) (string, []any) {
	colList := make([]string, len(names))
	for i, c := range names {
		colList[i] = ident(c)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(chunk)*len(names))
	n := 0
	for i, row := range chunk {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range names {
			if j > 0 {
				b.WriteString(", ")
			}
			n++
			fmt.Fprintf(&b, "$%d", n)
			args = append(args, row[j])
		}
		b.WriteByte(')')
	}
	b.WriteString(suffix)
	return b.String(), args
}

func nonKeyColumns(all []string, keys []string) []string {
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	out := make([]string, 0, len(all))
	for _, c := range all {
		if !isKey[c] {
			out = append(out, c)
		}
	}
	return out
}
