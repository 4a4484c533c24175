// Package codes parses free-form text into student codes.
package codes

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/upeu-eventos/gateway/internal/models"
)

var (
	codeShape = regexp.MustCompile(`^\d{7,8}$`)
	scanShape = regexp.MustCompile(`\d{7,8}`)
)

// IsValid reports whether s is exactly 7 or 8 decimal digits.
func IsValid(s string) bool {
	return codeShape.MatchString(s)
}

// Normalize splits raw on whitespace, commas and semicolons, drops empty tokens,
// deduplicates in first-seen order and partitions the tokens by format.
func Normalize(raw string) models.CodeBatch {
	batch := models.CodeBatch{Valid: []string{}, Invalid: []string{}}
	seen := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(raw, isSeparator) {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if IsValid(tok) {
			batch.Valid = append(batch.Valid, tok)
		} else {
			batch.Invalid = append(batch.Invalid, tok)
		}
	}
	return batch
}

// isSeparator matches any Unicode space (NBSP, vertical tab and line
// separators included), commas and semicolons.
func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || r == ',' || r == ';'
}

// NormalizeList runs Normalize over already-split input, e.g. a JSON array.
func NormalizeList(items []string) models.CodeBatch {
	return Normalize(strings.Join(items, "\n"))
}

// ParseCSV normalizes an uploaded CSV or text file. A leading UTF-8 byte order
// mark, as written by spreadsheet exports, is dropped first.
func ParseCSV(text string) models.CodeBatch {
	return Normalize(strings.TrimPrefix(text, "\ufeff"))
}

// ExtractFromScan returns the first run of 7 or 8 digits in a scanned payload.
// A longer run yields its first 8 digits.
func ExtractFromScan(s string) (string, bool) {
	m := scanShape.FindString(s)
	return m, m != ""
}
