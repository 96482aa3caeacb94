// Package textnorm provides the text canonicalization rules used by the silver
// layer: display-grade standardization (_std), join-grade keying (_key), and
// helpers for spotting encoding corruption in geographic fields.
//
// Every function here is pure and deterministic; the same input always yields
// the same output. Std and Key are idempotent, which is what makes re-running a
// silver stage safe.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Std standardizes a value for display and downstream matching:
// surrounding whitespace is trimmed and internal whitespace runs collapse to a
// single space. Casing and all other characters are preserved.
func Std(s string) string {
	return collapseWhitespace(strings.TrimSpace(s))
}

// Key derives a stable grouping key from a standardized value:
// uppercase, strip everything that is not a Unicode letter, digit or space,
// then collapse whitespace runs again (stripping can expose new runs).
func Key(s string) string {
	upper := strings.ToUpper(s)

	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	return collapseWhitespace(strings.TrimSpace(b.String()))
}

// usaVariants enumerates the spellings of "United States" observed in the
// source data. The generic Key rule cannot recover these (stripping turns
// "EE. UU." into "EE UU", not "USA"), so the variant check runs first.
//
// The set is maintained, not derived: extend it when new spellings show up.
var usaVariants = map[string]struct{}{
	"EE. UU.":        {},
	"EE.UU.":         {},
	"EE UU":          {},
	"ESTADOS UNIDOS": {},
	"Estados Unidos": {},
	"United States":  {},
	"USA":            {},
}

// CountryKey derives the join key for a country field. Known "United States"
// variants map to the literal token USA before the generic Key rule applies.
// The input is expected to already be in Std form.
func CountryKey(std string) string {
	if _, ok := usaVariants[std]; ok {
		return "USA"
	}
	return Key(std)
}

// IsUSAVariant reports whether std is one of the enumerated United States
// spellings. Exposed for curation tooling; CountryKey is the pipeline entry.
func IsUSAVariant(std string) bool {
	_, ok := usaVariants[std]
	return ok
}

// mojibakeMarkers are byte sequences left behind by decoding the source extract
// with the wrong charset: the UTF-8 replacement character itself, and the
// "ï¿½" triple produced when an already-replaced rune is decoded as latin-1
// once more.
var mojibakeMarkers = []string{
	string(utf8.RuneError),
	"ï¿½",
}

// HasMojibake reports whether s carries a recognizable encoding-corruption
// artifact. Used for data-quality counts and for curation scans; the pipeline
// never repairs values automatically.
func HasMojibake(s string) bool {
	for _, m := range mojibakeMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inRun := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inRun = true
			continue
		}
		if inRun && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inRun = false
		b.WriteRune(r)
	}
	return b.String()
}
