package main

import (
	"os"
	"path/filepath"
	"testing"

	"medallion/internal/refstore"
)

func TestParseEntry(t *testing.T) {
	e, err := parseEntry("field=country,bad=M�xico,good=Mexico")
	if err != nil {
		t.Fatalf("parseEntry: %v", err)
	}
	want := refstore.Entry{Field: refstore.FieldCountry, BadValue: "M�xico", GoodValue: "Mexico"}
	if e != want {
		t.Errorf("parseEntry = %+v, want %+v", e, want)
	}

	for _, spec := range []string{
		"",
		"field=country",
		"field=country,bad=x",
		"bogus",
		"field=country,bad=x,good=y,extra=z",
	} {
		if _, err := parseEntry(spec); err == nil {
			t.Errorf("parseEntry(%q) err = nil, want error", spec)
		}
	}
}

func TestReadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixes.csv")
	data := "field,bad_value,good_value\ncountry,M�xico,Mexico\ncity,Bogot�,Bogota\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	entries, err := readSeed(path)
	if err != nil {
		t.Fatalf("readSeed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Field != refstore.FieldCountry || entries[0].GoodValue != "Mexico" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].Field != refstore.FieldCity || entries[1].BadValue != "Bogot�" {
		t.Errorf("entries[1] = %+v", entries[1])
	}
}

func TestReadSeedRejectsBadRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixes.csv")
	if err := os.WriteFile(path, []byte("country,M�xico,\n"), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if _, err := readSeed(path); err == nil {
		t.Fatalf("readSeed err = nil, want error for empty good_value")
	}
}
