package services

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxNameRunes bounds usernames and chat names.
const MaxNameRunes = 64

// normalizeName trims and NFC-normalizes a username or chat name so that
// visually identical names map to the same row. It returns ErrInvalidName for
// empty, oversized or control-character names.
func normalizeName(s string) (string, error) {
	s = norm.NFC.String(strings.TrimSpace(s))
	n := utf8.RuneCountInString(s)
	if n == 0 || n > MaxNameRunes {
		return "", ErrInvalidName
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return "", ErrInvalidName
		}
	}
	return s, nil
}
