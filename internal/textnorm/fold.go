package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// asciiFolder decomposes to NFD, drops combining marks, recomposes.
// "México" -> "Mexico", "São Paulo" -> "Sao Paulo".
var asciiFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldASCII strips diacritics from s. Characters that have no unaccented
// equivalent are left alone. Returns the input unchanged if the transform
// fails (malformed UTF-8).
func FoldASCII(s string) string {
	out, _, err := transform.String(asciiFolder, s)
	if err != nil {
		return s
	}
	return out
}

// StripMojibake removes corruption artifacts from s and tidies the whitespace
// that removing them can leave behind. It is a curation aid for proposing
// correction-store entries ("M<artifact>xico" -> "Mxico" is still wrong, but
// "Per<artifact>" -> "Per" + human review gets to "Peru" quickly); the
// pipeline itself never applies it to data.
func StripMojibake(s string) string {
	for _, m := range mojibakeMarkers {
		s = strings.ReplaceAll(s, m, "")
	}
	return Std(s)
}

// ValidUTF8 reports whether s is well-formed UTF-8. Curation scans use it to
// separate byte-level corruption from replacement-character corruption.
func ValidUTF8(s string) bool {
	return utf8.ValidString(s)
}
