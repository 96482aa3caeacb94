// Package ingest loads the external CSV extract into the raw landing table.
//
// The extract arrives with display-oriented headers ("Order Id", "Benefit per
// order") and, frequently, latin-1 encoding. The loader normalizes headers on
// the way in and stores every field as text; typing is a later stage's job.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"medallion/internal/schema"
	"medallion/internal/warehouse"
)

// Logger is the minimal logging interface used by the loader.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Options controls CSV parsing.
type Options struct {
	// Encoding: "utf8" (default) or "latin1".
	Encoding string

	// Comma is the field delimiter; zero means ','.
	Comma rune

	// LazyQuotes tolerates bare quotes inside fields, which the extract
	// needs for free-text product descriptions.
	LazyQuotes bool
}

// CSVLoader reads a delimited extract and writes the raw table.
type CSVLoader struct {
	Store  warehouse.Store
	Logger Logger
}

func (l *CSVLoader) logf(format string, v ...any) {
	if l.Logger != nil {
		l.Logger.Printf(format, v...)
	}
}

// Run loads path into table (overwrite). Headers are normalized with
// schema.UniqueNames; all columns are Text. Returns the number of data rows
// loaded.
//
// Edge cases:
//   - A UTF-8 BOM on the first header cell is stripped.
//   - Records shorter than the header are padded with nils; longer records
//     are an error (the extract is rectangular; extra fields mean the
//     delimiter or quoting is wrong).
func (l *CSVLoader) Run(ctx context.Context, path, table string, opts Options) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	switch opts.Encoding {
	case "", "utf8":
	case "latin1":
		r = transform.NewReader(f, charmap.ISO8859_1.NewDecoder())
	default:
		return 0, fmt.Errorf("ingest: unsupported encoding %q", opts.Encoding)
	}

	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	cr.LazyQuotes = opts.LazyQuotes
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("ingest: read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	names := schema.UniqueNames(header)

	cols := make([]warehouse.Column, len(names))
	for i, n := range names {
		cols[i] = warehouse.Column{Name: n, Type: warehouse.TypeText}
	}
	rs := warehouse.NewRowSet(cols, 1024)

	line := 1
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return 0, fmt.Errorf("ingest: line %d: %w", line, err)
		}
		if len(rec) > len(cols) {
			return 0, fmt.Errorf("ingest: line %d: %d fields, header has %d", line, len(rec), len(cols))
		}

		row := make([]any, len(cols))
		for i := range cols {
			if i < len(rec) {
				row[i] = rec[i]
			}
		}
		rs.Append(row)
	}

	if err := l.Store.Write(ctx, table, rs, warehouse.Overwrite); err != nil {
		return 0, fmt.Errorf("ingest: write %s: %w", table, err)
	}
	l.logf("ingest: loaded %d rows, %d columns from %s", rs.Len(), len(cols), path)
	return rs.Len(), nil
}
