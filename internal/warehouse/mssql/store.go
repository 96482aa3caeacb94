// Package mssql implements warehouse.Store for Microsoft SQL Server via
// database/sql and the go-mssqldb driver.
//
// SQL Server particulars handled here:
//   - @pN placeholders and the 2100-parameter statement limit (chunked inserts).
//   - Schemas cannot be created with IF NOT EXISTS; a sys.schemas probe guards
//     the CREATE SCHEMA.
//   - Upsert uses MERGE (there is no ON CONFLICT).
//   - Key columns use NVARCHAR(400) so they stay indexable; NVARCHAR(MAX)
//     cannot participate in a unique constraint.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"medallion/internal/warehouse"
)

const maxBindArgs = 2000

type store struct {
	db *sql.DB
}

func init() {
	warehouse.Register("mssql", New)
}

func New(ctx context.Context, cfg warehouse.Config) (warehouse.Store, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(16)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &store{db: db}, nil
}

func (s *store) Close() { _ = s.db.Close() }

func (s *store) EnsureTier(ctx context.Context, tier string) error {
	q := fmt.Sprintf(
		"IF NOT EXISTS (SELECT 1 FROM sys.schemas WHERE name = '%s') EXEC('CREATE SCHEMA %s')",
		strings.ReplaceAll(tier, "'", "''"), ident(tier),
	)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("mssql: ensure schema %s: %w", tier, err)
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("IF OBJECT_ID('%s', 'U') IS NOT NULL DROP TABLE %s", unquote(table), table)); err != nil {
		return fmt.Errorf("mssql: drop %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, createSQL(table, rs.Columns, nil)); err != nil {
		return fmt.Errorf("mssql: create %s: %w", table, err)
	}

	if rs.Len() > 0 {
		per := maxBindArgs / len(rs.Columns)
		if per < 1 {
			per = 1
		}
		for start := 0; start < rs.Len(); start += per {
			end := start + per
			if end > rs.Len() {
				end = rs.Len()
			}
			q, args := insertSQL(table, rs.Names(), rs.Rows[start:end])
			if _, err := tx.ExecContext(ctx, q, args...); err != nil {
				return fmt.Errorf("mssql: insert %s: %w", table, err)
			}
		}
	}
	return tx.Commit()
}

func (s *store) EnsureTable(ctx context.Context, table string, cols []warehouse.Column, uniqueCols []string) error {
	q := fmt.Sprintf("IF OBJECT_ID('%s', 'U') IS NULL %s", unquote(table), createSQL(table, cols, uniqueCols))
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("mssql: ensure %s: %w", table, err)
	}
	return nil
}

// Upsert applies MERGE per chunk, matching on keyCols.
func (s *store) Upsert(ctx context.Context, table string, keyCols []string, rs *warehouse.RowSet) (int64, error) {
	if rs.Len() == 0 {
		return 0, nil
	}

	names := rs.Names()
	nonKey := nonKeyColumns(names, keyCols)

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
		q, args := mergeSQL(table, names, keyCols, nonKey, rs.Rows[start:end])
		res, err := s.db.ExecContext(ctx, q, args...)
		if err != nil {
			return affected, fmt.Errorf("mssql: upsert %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		affected += n
	}
	return affected, nil
}

func (s *store) CreateView(ctx context.Context, view, source string) error {
	q := fmt.Sprintf("CREATE OR ALTER VIEW %s AS SELECT * FROM %s", view, source)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("mssql: create view %s: %w", view, err)
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
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// unquote strips bracket quoting for OBJECT_ID probes, which want the plain
// 'schema.name' form.
func unquote(table string) string {
	return strings.NewReplacer("[", "", "]", "").Replace(table)
}

func ddlType(t warehouse.Type, unique bool) string {
	switch t {
	case warehouse.TypeInt:
		return "INT"
	case warehouse.TypeBigInt:
		return "BIGINT"
	case warehouse.TypeFloat:
		return "FLOAT"
	case warehouse.TypeTimestamp:
		return "DATETIME2"
	case warehouse.TypeDate:
		return "DATE"
	default:
		if unique {
			return "NVARCHAR(400)"
		}
		return "NVARCHAR(MAX)"
	}
}

func createSQL(table string, cols []warehouse.Column, uniqueCols []string) string {
	isUnique := make(map[string]bool, len(uniqueCols))
	for _, c := range uniqueCols {
		isUnique[c] = true
	}

	parts := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		parts = append(parts, ident(c.Name)+" "+ddlType(c.Type, isUnique[c.Name]))
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

func insertSQL(table string, names []string, chunk [][]any) (string, []any) {
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
			fmt.Fprintf(&b, "@p%d", n)
			args = append(args, row[j])
		}
		b.WriteByte(')')
	}
	return b.String(), args
}

// mergeSQL builds a MERGE over a VALUES-derived source:
//
//	MERGE t USING (VALUES ...) AS src (cols) ON t.k = src.k
//	WHEN MATCHED THEN UPDATE ... WHEN NOT MATCHED THEN INSERT ...;
func mergeSQL(table string, names, keyCols, nonKey []string, chunk [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("MERGE ")
	b.WriteString(table)
	b.WriteString(" AS tgt USING (VALUES ")

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
			fmt.Fprintf(&b, "@p%d", n)
			args = append(args, row[j])
		}
		b.WriteByte(')')
	}

	b.WriteString(") AS src (")
	for i, c := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(c))
	}
	b.WriteString(") ON ")
	for i, k := range keyCols {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString("tgt." + ident(k) + " = src." + ident(k))
	}

	if len(nonKey) > 0 {
		b.WriteString(" WHEN MATCHED THEN UPDATE SET ")
		for i, c := range nonKey {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(ident(c) + " = src." + ident(c))
		}
	}

	b.WriteString(" WHEN NOT MATCHED THEN INSERT (")
	for i, c := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(c))
	}
	b.WriteString(") VALUES (")
	for i, c := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("src." + ident(c))
	}
	b.WriteString(");")

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
