package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrQueryEmpty is returned when a required input is empty or whitespace-only.
var ErrQueryEmpty = errors.New("query is required")

// ErrQueryTooLong is returned when the input exceeds the maximum length.
var ErrQueryTooLong = errors.New("query too long")

// ErrQueryInvalidChars is returned when the input contains disallowed characters.
var ErrQueryInvalidChars = errors.New("query contains invalid characters")

// ValidateLocation trims a city name, enforces maxLen (in runes, 0 = unlimited)
// and restricts it to letters (Unicode), digits, space, comma, hyphen, period
// and apostrophe. Returns the trimmed string.
func ValidateLocation(input string, maxLen int) (string, error) {
	s, err := trimAndBound(input, maxLen)
	if err != nil {
		return "", err
	}
	for _, c := range s {
		if !isAllowedLocationRune(c) {
			return "", ErrQueryInvalidChars
		}
	}
	return s, nil
}

// ValidateSearchTerm trims a free-text search term (photo search, news
// category), enforces maxLen and rejects control characters.
func ValidateSearchTerm(input string, maxLen int) (string, error) {
	s, err := trimAndBound(input, maxLen)
	if err != nil {
		return "", err
	}
	for _, c := range s {
		if unicode.IsControl(c) {
			return "", ErrQueryInvalidChars
		}
	}
	return s, nil
}

func trimAndBound(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	n := len([]rune(s))
	if n == 0 {
		return "", ErrQueryEmpty
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrQueryTooLong
	}
	return s, nil
}

func isAllowedLocationRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}
