// Command reffix curates the reference correction store.
//
// Corrections never flow into the pipeline automatically: a human reviews a
// damaged value, records the fix here, and re-runs the downstream stages.
//
// Usage:
//
//	reffix -config cfg.json -list
//	reffix -config cfg.json -add field=country,bad=M�xico,good=Mexico
//	reffix -config cfg.json -seed fixes.csv
//	reffix -config cfg.json -scan dataco_clean_v2 -column order_country_std -field country
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"medallion/internal/config"
	"medallion/internal/refstore"
	"medallion/internal/warehouse"

	_ "medallion/internal/warehouse/all"
)

func main() {
	var (
		cfgPath   string
		addSpec   string
		seedPath  string
		scanTable string
		scanCol   string
		scanTier  string
		fieldName string
		list      bool
	)

	flag.StringVar(&cfgPath, "config", "configs/pipelines/dataco.json", "pipeline config JSON path")
	flag.StringVar(&addSpec, "add", "", "upsert one correction: field=...,bad=...,good=...")
	flag.StringVar(&seedPath, "seed", "", "bulk upsert corrections from a 3-column CSV (field,bad_value,good_value)")
	flag.StringVar(&scanTable, "scan", "", "table to scan for encoding damage")
	flag.StringVar(&scanCol, "column", "", "column to scan (with -scan)")
	flag.StringVar(&scanTier, "tier", "silver", "tier of the scanned table (with -scan)")
	flag.StringVar(&fieldName, "field", "", "correction field label for scan suggestions (with -scan)")
	flag.BoolVar(&list, "list", false, "print every stored correction")

	flag.Parse()

	p, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}

	ctx := context.Background()
	wh, err := warehouse.Open(ctx, warehouse.Config{Kind: p.Storage.Kind, DSN: p.Storage.DSN})
	if err != nil {
		fatalf("%v", err)
	}
	defer wh.Close()

	ref := refstore.New(wh, "silver", p.Tables.Fixes)
	if err := ref.Ensure(ctx); err != nil {
		fatalf("%v", err)
	}

	switch {
	case addSpec != "":
		entry, err := parseEntry(addSpec)
		if err != nil {
			fatalf("%v", err)
		}
		n, err := ref.Upsert(ctx, []refstore.Entry{entry})
		if err != nil {
			fatalf("%v", err)
		}
		log.Printf("upserted %d correction(s) into %s", n, ref.Table())

	case seedPath != "":
		entries, err := readSeed(seedPath)
		if err != nil {
			fatalf("%v", err)
		}
		n, err := ref.Upsert(ctx, entries)
		if err != nil {
			fatalf("%v", err)
		}
		log.Printf("upserted %d correction(s) from %s into %s", n, seedPath, ref.Table())

	case scanTable != "":
		if scanCol == "" || fieldName == "" {
			fatalf("-scan requires -column and -field")
		}
		if err := scan(ctx, wh, scanTier, scanTable, scanCol, refstore.Field(fieldName)); err != nil {
			fatalf("%v", err)
		}

	case list:
		entries, err := ref.List(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		for _, e := range entries {
			fmt.Printf("%s\t%s\t%s\n", e.Field, e.BadValue, e.GoodValue)
		}
		log.Printf("%d correction(s) in %s", len(entries), ref.Table())

	default:
		flag.Usage()
		os.Exit(2)
	}
}

// parseEntry parses "field=country,bad=M�xico,good=Mexico". Values must not
// contain commas; fixes that need them go through -seed.
func parseEntry(spec string) (refstore.Entry, error) {
	var e refstore.Entry
	for _, part := range strings.Split(spec, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return e, fmt.Errorf("reffix: bad -add segment %q, want key=value", part)
		}
		switch strings.TrimSpace(k) {
		case "field":
			e.Field = refstore.Field(v)
		case "bad":
			e.BadValue = v
		case "good":
			e.GoodValue = v
		default:
			return e, fmt.Errorf("reffix: unknown -add key %q", k)
		}
	}
	return e, e.Validate()
}

// readSeed loads a 3-column correction CSV. A header row naming the columns
// is skipped.
func readSeed(path string) ([]refstore.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reffix: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 3

	var entries []refstore.Entry
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reffix: read %s: %w", path, err)
		}
		if strings.EqualFold(rec[0], "field") {
			continue
		}
		e := refstore.Entry{
			Field:     refstore.Field(rec[0]),
			BadValue:  rec[1],
			GoodValue: rec[2],
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("reffix: %s: %w", path, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// scan reports column values carrying encoding damage and prints suggested
// corrections in -seed CSV form for human review. Nothing is written.
func scan(ctx context.Context, wh warehouse.Store, tier, table, column string, field refstore.Field) error {
	rs, err := wh.Read(ctx, wh.Table(tier, table))
	if err != nil {
		return err
	}
	idx := rs.ColumnIndex(column)
	if idx < 0 {
		return fmt.Errorf("reffix: table %s has no column %s", table, column)
	}

	var values []string
	for _, row := range rs.Rows {
		if s, ok := warehouse.AsString(row[idx]); ok {
			values = append(values, s)
		}
	}

	suggestions := refstore.Suggest(field, values)
	if len(suggestions) == 0 {
		log.Printf("no damaged values found in %s.%s", table, column)
		return nil
	}
	for _, s := range suggestions {
		fmt.Printf("%s,%s,%s\n", s.Field, s.BadValue, s.GoodValue)
	}
	log.Printf("%d suggestion(s); review and apply with -seed or -add", len(suggestions))
	return nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
