// Package sqlite implements warehouse.Store on modernc.org/sqlite.
//
// SQLite notes that shape this backend:
//   - There are no schemas, so tier qualification is done by name prefix
//     ("bronze_dataco_raw"), not by a real namespace.
//   - There is no timestamp type. Timestamps are stored as RFC3339Nano TEXT
//     and calendar dates as "2006-01-02" TEXT; warehouse.AsTime/AsDate parse
//     them back, so round-trips are reliable and the stored values stay
//     human-readable when debugging with the sqlite3 shell.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"medallion/internal/warehouse"
)

// maxBindArgs caps bind variables per statement, below SQLite's default
// SQLITE_MAX_VARIABLE_NUMBER. Inserts are chunked to stay under it.
const maxBindArgs = 30000

type store struct {
	db *sql.DB
}

func init() {
	warehouse.Register("sqlite", New)
}

// New opens a SQLite-backed store. An in-memory DSN is pinned to a single
// connection, otherwise every new pool connection would see a fresh empty
// database.
func New(ctx context.Context, cfg warehouse.Config) (warehouse.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if strings.Contains(cfg.DSN, ":memory:") || strings.Contains(cfg.DSN, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &store{db: db}, nil
}

func (s *store) Close() { _ = s.db.Close() }

// EnsureTier is a no-op: tiers are name prefixes here.
func (s *store) EnsureTier(ctx context.Context, tier string) error { return nil }

func (s *store) Table(tier, name string) string {
	if tier == "" {
		return ident(name)
	}
	return ident(tier + "_" + name)
}

func (s *store) Read(ctx context.Context, table string) (*warehouse.RowSet, error) {
	return s.query(ctx, "SELECT * FROM "+table)
}

func (s *store) Write(ctx context.Context, table string, rs *warehouse.RowSet, mode warehouse.WriteMode) error {
	_ = mode // both modes are drop-and-recreate for this backend

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("sqlite: drop %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, createSQL(table, rs.Columns, nil)); err != nil {
		return fmt.Errorf("sqlite: create %s: %w", table, err)
	}
	if err := insertAll(ctx, tx, table, rs, ""); err != nil {
		return fmt.Errorf("sqlite: insert %s: %w", table, err)
	}
	return tx.Commit()
}

func (s *store) EnsureTable(ctx context.Context, table string, cols []warehouse.Column, uniqueCols []string) error {
	q := strings.Replace(createSQL(table, cols, uniqueCols), "CREATE TABLE ", "CREATE TABLE IF NOT EXISTS ", 1)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("sqlite: ensure %s: %w", table, err)
	}
	return nil
}

// Upsert relies on a UNIQUE constraint over keyCols (EnsureTable creates it).
func (s *store) Upsert(ctx context.Context, table string, keyCols []string, rs *warehouse.RowSet) (int64, error) {
	if rs.Len() == 0 {
		return 0, nil
	}

	nonKey := nonKeyColumns(rs.Names(), keyCols)
	var conflict strings.Builder
	conflict.WriteString(" ON CONFLICT (")
	for i, k := range keyCols {
		if i > 0 {
			conflict.WriteString(", ")
		}
		conflict.WriteString(ident(k))
	}
	conflict.WriteString(") DO UPDATE SET ")
	for i, c := range nonKey {
		if i > 0 {
			conflict.WriteString(", ")
		}
		conflict.WriteString(ident(c) + " = excluded." + ident(c))
	}
	if len(nonKey) == 0 {
		conflict.Reset()
		conflict.WriteString(" ON CONFLICT DO NOTHING")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var affected int64
	if err := forEachChunk(rs, len(rs.Columns), func(chunk [][]any) error {
		q, args := insertSQL(table, rs.Columns, chunk, conflict.String())
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		affected += n
		return nil
	}); err != nil {
		return affected, fmt.Errorf("sqlite: upsert %s: %w", table, err)
	}
	return affected, tx.Commit()
}

func (s *store) CreateView(ctx context.Context, view, source string) error {
	if _, err := s.db.ExecContext(ctx, "DROP VIEW IF EXISTS "+view); err != nil {
		return fmt.Errorf("sqlite: drop view %s: %w", view, err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("CREATE VIEW %s AS SELECT * FROM %s", view, source)); err != nil {
		return fmt.Errorf("sqlite: create view %s: %w", view, err)
	}
	return nil
}

func (s *store) Query(ctx context.Context, q string) (*warehouse.RowSet, error) {
	return s.query(ctx, q)
}

func (s *store) query(ctx context.Context, q string) (*warehouse.RowSet, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	cols := make([]warehouse.Column, len(names))
	for i, n := range names {
		cols[i] = warehouse.Column{Name: n, Type: warehouse.TypeText}
	}
	if cts, err := rows.ColumnTypes(); err == nil {
		for i, ct := range cts {
			cols[i].Type = typeFromDecl(ct.DatabaseTypeName())
		}
	}

	rs := warehouse.NewRowSet(cols, 0)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, vals)
	}
	return rs, rows.Err()
}

// ---- SQL building ----

func ident(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func ddlType(t warehouse.Type) string {
	switch t {
	case warehouse.TypeInt, warehouse.TypeBigInt:
		return "INTEGER"
	case warehouse.TypeFloat:
		return "REAL"
	default:
		// text, timestamp and date all live as TEXT
		return "TEXT"
	}
}

func typeFromDecl(decl string) warehouse.Type {
	switch strings.ToUpper(decl) {
	case "INTEGER", "INT", "BIGINT":
		return warehouse.TypeBigInt
	case "REAL", "DOUBLE", "FLOAT":
		return warehouse.TypeFloat
	default:
		return warehouse.TypeText
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

func insertSQL(table string, cols []warehouse.Column, chunk [][]any, suffix string) (string, []any) {
	colList := make([]string, len(cols))
	for i, c := range cols {
		colList[i] = ident(c.Name)
	}
	placeholder := "(" + strings.TrimRight(strings.Repeat("?,", len(cols)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(chunk)*len(cols))
	for i, row := range chunk {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholder)
		for j, v := range row {
			args = append(args, bindValue(cols[j].Type, v))
		}
	}
	b.WriteString(suffix)
	return b.String(), args
}

func insertAll(ctx context.Context, tx *sql.Tx, table string, rs *warehouse.RowSet, suffix string) error {
	if rs.Len() == 0 {
		return nil
	}
	return forEachChunk(rs, len(rs.Columns), func(chunk [][]any) error {
		q, args := insertSQL(table, rs.Columns, chunk, suffix)
		_, err := tx.ExecContext(ctx, q, args...)
		return err
	})
}

func forEachChunk(rs *warehouse.RowSet, width int, fn func(chunk [][]any) error) error {
	if width == 0 {
		return nil
	}
	per := maxBindArgs / width
	if per < 1 {
		per = 1
	}
	for start := 0; start < rs.Len(); start += per {
		end := start + per
		if end > rs.Len() {
			end = rs.Len()
		}
		if err := fn(rs.Rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// bindValue encodes a Go value for SQLite storage according to the declared
// column type. Timestamps and dates become TEXT.
func bindValue(t warehouse.Type, v any) any {
	if v == nil {
		return nil
	}
	ts, isTime := v.(time.Time)
	if !isTime {
		return v
	}
	if t == warehouse.TypeDate {
		return ts.UTC().Format("2006-01-02")
	}
	return ts.UTC().Format(time.RFC3339Nano)
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
