package warehouse

import (
	"testing"
	"time"
)

func TestAsInt64(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want int64
		ok   bool
	}{
		{"nil", nil, 0, false},
		{"int64", int64(42), 42, true},
		{"int", 7, 7, true},
		{"float64", 3.9, 3, true},
		{"numeric string", "123", 123, true},
		{"float string", "123.0", 123, true},
		{"padded string", " 55 ", 55, true},
		{"empty string", "", 0, false},
		{"garbage", "abc", 0, false},
		{"bytes", []byte("9"), 9, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := AsInt64(tc.in)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("AsInt64(%v) = (%d, %v), want (%d, %v)", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestAsFloat64(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"nil", nil, 0, false},
		{"float64", 1.5, 1.5, true},
		{"int64", int64(2), 2, true},
		{"string", "3.25", 3.25, true},
		{"empty", "", 0, false},
		{"garbage", "x", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := AsFloat64(tc.in)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("AsFloat64(%v) = (%g, %v), want (%g, %v)", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestAsTime(t *testing.T) {
	want := time.Date(2017, 10, 2, 14, 30, 0, 0, time.UTC)

	for _, in := range []any{
		"2017-10-02T14:30:00Z",
		"2017-10-02 14:30:00",
		want,
	} {
		got, ok := AsTime(in)
		if !ok || !got.Equal(want) {
			t.Fatalf("AsTime(%v) = (%v, %v), want %v", in, got, ok, want)
		}
	}

	if _, ok := AsTime("not a time"); ok {
		t.Fatal("AsTime accepted garbage")
	}
	if _, ok := AsTime(nil); ok {
		t.Fatal("AsTime accepted nil")
	}
}

func TestAsDateTruncates(t *testing.T) {
	got, ok := AsDate("2017-10-02T14:30:00Z")
	if !ok {
		t.Fatal("AsDate failed")
	}
	want := time.Date(2017, 10, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("AsDate = %v, want %v", got, want)
	}
}

func TestNormalizeKey(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{" Puerto Rico ", "Puerto Rico"},
		{int64(42), "42"},
		{42.0, "42"},
		{[]byte("x"), "x"},
	}
	for _, tc := range cases {
		if got := NormalizeKey(tc.in); got != tc.want {
			t.Fatalf("NormalizeKey(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
