package util

import (
	"strings"
	"unicode"
)

// MaxInputRunes caps a single chat message.
const MaxInputRunes = 2000

// CleanInput trims, drops control characters (newlines and tabs kept) and
// truncates the text to maxRunes.
func CleanInput(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		if maxRunes > 0 && n >= maxRunes {
			break
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimSpace(b.String())
}

// ContainsSuspicious reports markup or template-injection looking input.
func ContainsSuspicious(s string) bool {
	lower := strings.ToLower(s)
	for _, c := range []string{"<script", "onerror", "onload", "javascript:", "${", "{{"} {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}
