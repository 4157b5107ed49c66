package matcher

import (
	"math"
	"regexp"
	"strings"
)

const (
	phraseScore  = 5.0
	wordScore    = 2.0
	overlapScore = 0.5
	exactBonus   = 5.0
	closeBonus   = 3.0
	scoreScale   = 8.0
	minPrefixLen = 3
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// stopWords never count towards word overlap.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "for": {}, "how": {}, "i": {},
	"in": {}, "is": {}, "it": {}, "of": {}, "on": {}, "or": {}, "the": {},
	"to": {}, "we": {}, "what": {}, "with": {}, "you": {}, "your": {},
}

// Match is the outcome of scoring one query. Category is empty when nothing scored.
type Match struct {
	Category        string   `json:"category"`
	Confidence      float64  `json:"confidence"`
	Score           float64  `json:"score"`
	MatchedKeywords []string `json:"matched_keywords"`
}

// Found reports whether any category scored.
func (m Match) Found() bool { return m.Category != "" }

type keyword struct {
	text   string
	phrase bool
	words  []string
}

type compiled struct {
	key     string
	all     []keyword
	primary []keyword
	wordSet map[string]struct{} // stems
}

// Matcher scores queries against the catalog. It holds only data built at
// construction and is safe for concurrent use.
type Matcher struct {
	catalog    *Catalog
	categories []compiled // lexical key order
	shared     map[string]struct{}
}

func New(c *Catalog) *Matcher {
	m := &Matcher{catalog: c}
	for _, key := range c.Keys() {
		cat, _ := c.Category(key)
		cc := compiled{key: key, wordSet: map[string]struct{}{}}
		for i, kw := range cat.Keywords {
			words := tokenize(kw)
			if len(words) == 0 {
				continue
			}
			k := keyword{text: kw, phrase: len(words) > 1, words: words}
			cc.all = append(cc.all, k)
			if i < PrimaryKeywords {
				cc.primary = append(cc.primary, k)
			}
			for _, w := range words {
				if _, stop := stopWords[w]; !stop {
					cc.wordSet[stem(w)] = struct{}{}
				}
			}
		}
		m.categories = append(m.categories, cc)
	}

	// A stem used by more than one category says nothing about which one
	// a short query means, so it never earns the close-match bonus.
	seen := map[string]int{}
	for _, cc := range m.categories {
		for w := range cc.wordSet {
			seen[w]++
		}
	}
	m.shared = map[string]struct{}{}
	for w, n := range seen {
		if n > 1 {
			m.shared[w] = struct{}{}
		}
	}
	return m
}

func (m *Matcher) Catalog() *Catalog { return m.catalog }

// Match returns the highest scoring category. Equal scores resolve to the
// lexically smallest category key.
func (m *Matcher) Match(query string) Match {
	lower := strings.ToLower(strings.TrimSpace(query))
	tokens := tokenize(lower)
	if len(tokens) == 0 {
		return Match{}
	}
	stems := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		stems[stem(t)] = struct{}{}
	}
	normalized := strings.Join(tokens, " ")

	var best Match
	for _, cc := range m.categories {
		score, matched := m.score(&cc, lower, normalized, tokens, stems)
		if score > best.Score {
			best = Match{Category: cc.key, Score: score, MatchedKeywords: matched}
		}
	}
	if best.Score <= 0 {
		return Match{}
	}
	best.Confidence = math.Min(best.Score/scoreScale, 1.0)
	return best
}

func (m *Matcher) score(cc *compiled, lower, normalized string, tokens []string, stems map[string]struct{}) (float64, []string) {
	var score float64
	var matched []string

	for _, kw := range cc.all {
		if kw.phrase {
			if strings.Contains(lower, kw.text) || strings.Contains(normalized, strings.Join(kw.words, " ")) {
				score += phraseScore
				matched = append(matched, kw.text)
			}
			continue
		}
		if _, ok := stems[stem(kw.words[0])]; ok {
			score += wordScore
			matched = append(matched, kw.text)
		}
	}

	for w := range stems {
		if _, ok := cc.wordSet[w]; ok {
			score += overlapScore
		}
	}

	if len(tokens) <= 2 {
		score += m.primaryBonus(cc, normalized, tokens)
	}
	return score, matched
}

func (m *Matcher) primaryBonus(cc *compiled, normalized string, tokens []string) float64 {
	bonus := 0.0
	for _, kw := range cc.primary {
		if normalized == strings.Join(kw.words, " ") {
			return exactBonus
		}
		if bonus == 0 && m.closeMatch(tokens, kw.words) {
			bonus = closeBonus
		}
	}
	return bonus
}

func (m *Matcher) closeMatch(tokens, words []string) bool {
	for _, t := range tokens {
		if _, stop := stopWords[t]; stop {
			continue
		}
		st := stem(t)
		if _, ok := m.shared[st]; ok {
			continue
		}
		for _, w := range words {
			if t == w || st == stem(w) {
				return true
			}
			if len(t) >= minPrefixLen && strings.HasPrefix(w, t) {
				return true
			}
			if len(w) >= minPrefixLen && strings.HasPrefix(t, w) {
				return true
			}
		}
	}
	return false
}

func tokenize(s string) []string {
	return tokenPattern.FindAllString(strings.ToLower(s), -1)
}

// stem folds common English inflections so "inventories" and "inventory",
// or "spare" and "spares", compare equal. Words of four letters or fewer
// are left alone.
func stem(w string) string {
	if len(w) <= 4 {
		return w
	}
	switch {
	case strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "sses"), strings.HasSuffix(w, "uses"),
		strings.HasSuffix(w, "xes"), strings.HasSuffix(w, "ches"), strings.HasSuffix(w, "shes"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "ss"), strings.HasSuffix(w, "us"), strings.HasSuffix(w, "is"):
		return w
	case strings.HasSuffix(w, "s"):
		return w[:len(w)-1]
	case len(w) > 5 && strings.HasSuffix(w, "ing"):
		return w[:len(w)-3]
	case len(w) > 5 && strings.HasSuffix(w, "ed"):
		return w[:len(w)-2]
	}
	return w
}
