package photo

import (
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
)

// SequenceNumber extracts the camera frame number embedded in a file name.
// The first all-digit token (split on "_", "-", " " and ".") wins, e.g.
// "IMG_0042.JPG" -> 42; otherwise the last run of digits, e.g.
// "DSC00042.jpg" -> 42. ok is false when the name has no digits.
func SequenceNumber(name string) (int, bool) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	tokens := strings.FieldsFunc(stem, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	})
	for _, tok := range tokens {
		if isDigits(tok) {
			if n, err := strconv.Atoi(tok); err == nil {
				return n, true
			}
		}
	}

	end := strings.LastIndexFunc(stem, unicode.IsDigit)
	if end < 0 {
		return 0, false
	}
	start := end
	for start > 0 && unicode.IsDigit(rune(stem[start-1])) {
		start--
	}
	n, err := strconv.Atoi(stem[start : end+1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
