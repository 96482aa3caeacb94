package refstore

import (
	"context"
	"testing"

	"medallion/internal/warehouse"
	_ "medallion/internal/warehouse/sqlite"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	wh, err := warehouse.Open(context.Background(), warehouse.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open warehouse: %v", err)
	}
	t.Cleanup(wh.Close)

	s := New(wh, "silver", "ref_text_fixes")
	if err := s.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	return s
}

func TestUpsertAndSnapshot(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	entries := []Entry{
		{Field: FieldCountry, BadValue: "M�xico", GoodValue: "Mexico"},
		{Field: FieldCity, BadValue: "Bogot�", GoodValue: "Bogota"},
	}
	if _, err := s.Upsert(ctx, entries); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Len() != 2 {
		t.Fatalf("Len = %d, want 2", snap.Len())
	}
	if good, ok := snap.Lookup(FieldCountry, "M�xico"); !ok || good != "Mexico" {
		t.Fatalf("Lookup country = (%q, %v)", good, ok)
	}
	if _, ok := snap.Lookup(FieldCountry, "Mexico"); ok {
		t.Fatal("Lookup matched a value with no correction")
	}
	if _, ok := snap.Lookup(FieldCity, "M�xico"); ok {
		t.Fatal("Lookup crossed fields")
	}
}

func TestUpsertIdempotentAndOverwriting(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	e := Entry{Field: FieldCountry, BadValue: "EE. UU.", GoodValue: "USA"}
	if _, err := s.Upsert(ctx, []Entry{e}); err != nil {
		t.Fatalf("first Upsert: %v", err)
	}
	if _, err := s.Upsert(ctx, []Entry{e}); err != nil {
		t.Fatalf("repeat Upsert: %v", err)
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Len() != 1 {
		t.Fatalf("repeat upsert duplicated the key: %d entries", snap.Len())
	}

	e.GoodValue = "United States"
	if _, err := s.Upsert(ctx, []Entry{e}); err != nil {
		t.Fatalf("overwrite Upsert: %v", err)
	}
	snap, err = s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if good, _ := snap.Lookup(FieldCountry, "EE. UU."); good != "United States" {
		t.Fatalf("good_value not overwritten: %q", good)
	}
}

func TestUpsertRejectsInvalidEntries(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	bad := []Entry{
		{Field: "", BadValue: "x", GoodValue: "y"},
		{Field: FieldCity, BadValue: "", GoodValue: "y"},
		{Field: FieldCity, BadValue: "x", GoodValue: " "},
	}
	for _, e := range bad {
		if _, err := s.Upsert(ctx, []Entry{e}); err == nil {
			t.Fatalf("Upsert accepted invalid entry %+v", e)
		}
	}
}

func TestSuggestProposesMojibakeRepairs(t *testing.T) {
	values := []string{
		"M�xico",
		"M�xico", // duplicate, one proposal only
		"Mexico", // clean, no proposal
		"",
		"���", // nothing readable survives
	}

	got := Suggest(FieldCountry, values)
	if len(got) != 1 {
		t.Fatalf("Suggest returned %d entries, want 1: %v", len(got), got)
	}
	e := got[0]
	if e.Field != FieldCountry || e.BadValue != "M�xico" {
		t.Fatalf("entry = %+v", e)
	}
	if e.GoodValue != "Mxico" {
		t.Fatalf("GoodValue = %q, want %q (damaged rune stripped, accents folded)", e.GoodValue, "Mxico")
	}
}
