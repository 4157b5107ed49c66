package moderation

import (
	"strings"
	"unicode"
)

var keyboardRuns = func() []string {
	rows := []string{"qwertyuiop", "asdfghjkl", "zxcvbnm"}
	var runs []string
	for _, row := range rows {
		for i := 0; i+4 <= len(row); i++ {
			seq := row[i : i+4]
			runs = append(runs, seq, reverse(seq))
		}
	}
	return runs
}()

const (
	minLength           = 2
	maxConsonantRun     = 5
	minVowelRatio       = 0.1
	maxVowelRatio       = 0.8
	repeatedLetterLimit = 4
)

// DetectGibberish applies cheap structural checks. It returns true with a
// reason when text looks like noise rather than an inquiry.
func DetectGibberish(text string) (bool, string) {
	clean := strings.ToLower(strings.TrimSpace(text))
	if len([]rune(clean)) < minLength {
		return true, "Message too short"
	}

	distinct := map[rune]struct{}{}
	for _, r := range clean {
		distinct[r] = struct{}{}
	}
	if len(distinct) <= 2 && len([]rune(clean)) > 5 {
		return true, "Excessive character repetition detected"
	}

	var vowels, consonants int
	run, maxRun := 0, 0
	repeat, last := 0, rune(0)
	for _, r := range clean {
		switch {
		case isVowel(r):
			vowels++
			run = 0
		case r >= 'a' && r <= 'z':
			consonants++
			if r == 'y' {
				run = 0
			} else {
				run++
			}
		default:
			run = 0
		}
		if run > maxRun {
			maxRun = run
		}

		if unicode.IsLetter(r) && r == last {
			repeat++
		} else {
			repeat = 1
		}
		last = r
		if repeat >= repeatedLetterLimit {
			return true, "Repeated character pattern detected"
		}
	}

	if total := vowels + consonants; total > 5 {
		ratio := float64(vowels) / float64(total)
		if ratio < minVowelRatio || ratio > maxVowelRatio {
			return true, "Unusual character pattern detected"
		}
	}
	if maxRun > maxConsonantRun {
		return true, "Excessive consecutive consonants detected"
	}

	for _, word := range strings.FieldsFunc(clean, func(r rune) bool { return !unicode.IsLetter(r) }) {
		for _, seq := range keyboardRuns {
			if strings.HasPrefix(word, seq) {
				return true, "Keyboard sequence pattern detected"
			}
		}
	}
	if strings.Contains(clean, "test123") {
		return true, "Common gibberish pattern detected: test123"
	}
	return false, ""
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
