package router

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Matcher scores a normalized utterance. A score greater than zero is a
// match; zero means no match. Implementations must be safe for concurrent use.
type Matcher interface {
	Match(normalized string) float64
}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(normalized string) float64

func (f MatcherFunc) Match(normalized string) float64 {
	return f(normalized)
}

// Normalize lower-cases text, replaces punctuation with spaces (apostrophes
// inside words are kept) and collapses runs of whitespace.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	space := true
	runes := []rune(text)
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			space = false
		case r == '\'' && i > 0 && i < len(runes)-1 && unicode.IsLetter(runes[i-1]) && unicode.IsLetter(runes[i+1]):
			b.WriteRune(r)
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}

	return strings.TrimSpace(b.String())
}

type regexMatcher struct {
	re *regexp.Regexp
}

// Regex returns a Matcher that matches when pattern is found anywhere in the
// normalized utterance. Matching is case-insensitive. The score is the
// fraction of the utterance covered by the leftmost match.
func Regex(pattern string) (Matcher, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid pattern %q: %v", ErrInvalidRule, pattern, err)
	}
	return regexMatcher{re: re}, nil
}

// MustRegex is like Regex but panics on an invalid pattern.
func MustRegex(pattern string) Matcher {
	m, err := Regex(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

func (m regexMatcher) Match(normalized string) float64 {
	loc := m.re.FindStringIndex(normalized)
	if loc == nil {
		return 0
	}
	return coverage(loc[1]-loc[0], len(normalized))
}

type phraseMatcher struct {
	phrase string
}

// Phrase returns a Matcher that matches when the normalized phrase appears in
// the utterance on word boundaries.
func Phrase(phrase string) Matcher {
	return phraseMatcher{phrase: Normalize(phrase)}
}

func (m phraseMatcher) Match(normalized string) float64 {
	if m.phrase == "" {
		return 0
	}
	padded := " " + normalized + " "
	if !strings.Contains(padded, " "+m.phrase+" ") {
		return 0
	}
	return coverage(len(m.phrase), len(normalized))
}

type keywordMatcher struct {
	keywords []string
	all      bool
}

// AllKeywords returns a Matcher requiring every keyword to be present as a
// whole word or phrase. The score is the share of keywords found.
func AllKeywords(keywords ...string) Matcher {
	return keywordMatcher{keywords: normalizeAll(keywords), all: true}
}

// AnyKeyword returns a Matcher requiring at least one keyword to be present.
func AnyKeyword(keywords ...string) Matcher {
	return keywordMatcher{keywords: normalizeAll(keywords)}
}

func (m keywordMatcher) Match(normalized string) float64 {
	if len(m.keywords) == 0 {
		return 0
	}
	found := countKeywords(normalized, m.keywords)
	if found == 0 || (m.all && found != len(m.keywords)) {
		return 0
	}
	return float64(found) / float64(len(m.keywords))
}

func normalizeAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if n := Normalize(w); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// countKeywords counts keywords present in normalized on word boundaries.
// keywords must already be normalized.
func countKeywords(normalized string, keywords []string) int {
	padded := " " + normalized + " "
	n := 0
	for _, k := range keywords {
		if k != "" && strings.Contains(padded, " "+k+" ") {
			n++
		}
	}
	return n
}

func coverage(matched, total int) float64 {
	if total == 0 {
		return 1
	}
	score := float64(matched) / float64(total)
	if score <= 0 {
		// zero-width regex matches still count as a match
		return 1e-6
	}
	return score
}
