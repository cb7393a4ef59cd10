package transcribe

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.88

	// concatThreshold applies when window and term token counts differ and
	// the comparison runs on space-stripped strings.
	concatThreshold = 0.95
)

// DefaultVocabulary lists technical terms that small whisper models commonly
// mangle when spoken with a Bangla accent. Loaded into the [Corrector] unless
// a course-specific vocabulary is configured.
var DefaultVocabulary = []string{
	"binary search tree",
	"linked list",
	"hash table",
	"quicksort",
	"merge sort",
	"heap sort",
	"dynamic programming",
	"breadth first search",
	"depth first search",
	"dijkstra",
	"recursion",
	"time complexity",
	"space complexity",
	"big o notation",
	"adjacency matrix",
	"topological sort",
}

// Correction records one replacement made by the [Corrector].
type Correction struct {
	Original   string
	Corrected  string
	Confidence float64
}

// CorrectorOption is a functional option for configuring a [Corrector].
type CorrectorOption func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) CorrectorOption {
	return func(c *Corrector) { c.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the corrector falls back to pure string
// similarity. Default: 0.88.
func WithFuzzyThreshold(threshold float64) CorrectorOption {
	return func(c *Corrector) { c.fuzzyThreshold = threshold }
}

// term is one vocabulary entry with precomputed phonetic codes.
type term struct {
	text   string
	tokens []string
	codes  map[string]struct{}
}

// Corrector aligns mangled transcript words with a known technical
// vocabulary. It combines Double Metaphone phonetic filtering with
// Jaro-Winkler ranking:
//
//  1. A window of transcript tokens is a phonetic candidate for a term when
//     any Double Metaphone code of the window overlaps any code of the term.
//  2. Among candidates the highest Jaro-Winkler score wins, provided it
//     clears the phonetic threshold. Without phonetic overlap a stricter
//     fuzzy threshold applies.
//
// Multi-word terms are matched with n-gram windows, longest window first, so
// "binary search tree" beats a partial match on "tree". Only ASCII tokens are
// considered; Bangla script passes through untouched.
//
// The Corrector is read-only after construction and safe for concurrent use.
type Corrector struct {
	terms             []term
	maxTermWords      int
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewCorrector builds a Corrector over vocabulary. Empty entries are ignored;
// an empty vocabulary yields a Corrector that never corrects.
func NewCorrector(vocabulary []string, opts ...CorrectorOption) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	for _, v := range vocabulary {
		text := strings.TrimSpace(strings.ToLower(v))
		if text == "" {
			continue
		}
		tokens := strings.Fields(text)
		c.terms = append(c.terms, term{
			text:   text,
			tokens: tokens,
			codes:  codesForTokens(tokens),
		})
		if len(tokens) > c.maxTermWords {
			c.maxTermWords = len(tokens)
		}
	}
	return c
}

// Correct replaces windows of text that phonetically match a vocabulary term.
// It returns the corrected text and the corrections applied, in order.
func (c *Corrector) Correct(text string) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || len(c.terms) == 0 {
		return text, nil
	}

	var (
		output      []string
		corrections []Correction
	)

	i := 0
	for i < len(tokens) {
		maxN := c.maxTermWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1 && !matched; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			if !isASCIIWord(window) {
				continue
			}
			best, conf, ok := c.match(window)
			if !ok || strings.EqualFold(window, best) {
				continue
			}
			output = append(output, strings.Fields(best)...)
			corrections = append(corrections, Correction{
				Original:   window,
				Corrected:  best,
				Confidence: conf,
			})
			i += n
			matched = true
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// match ranks all vocabulary terms against window and returns the best
// acceptable one.
func (c *Corrector) match(window string) (string, float64, bool) {
	windowLower := strings.ToLower(window)
	windowTokens := strings.Fields(windowLower)
	windowCodes := codesForTokens(windowTokens)

	var (
		bestTerm     string
		bestScore    float64
		bestPhonetic bool
	)

	for _, t := range c.terms {
		phonetic := codesOverlap(windowCodes, t.codes)

		// A window with the same token count as the term is compared on the
		// full strings. A mismatched count only matches on the space-stripped
		// forms, and strictly, so "quick sort" can claim "quicksort" without
		// "linked list is" claiming "linked list" and swallowing a word.
		var score float64
		var acceptable bool
		if len(windowTokens) == len(t.tokens) {
			score = matchr.JaroWinkler(windowLower, t.text, false)
			min := c.fuzzyThreshold
			if phonetic {
				min = c.phoneticThreshold
			}
			acceptable = score >= min
		} else {
			concatWindow := strings.Join(windowTokens, "")
			concatTerm := strings.Join(t.tokens, "")
			score = matchr.JaroWinkler(concatWindow, concatTerm, false)
			acceptable = score >= concatThreshold
		}
		if !acceptable {
			continue
		}

		switch {
		case phonetic:
			if !bestPhonetic || score > bestScore {
				bestTerm, bestScore, bestPhonetic = t.text, score, true
			}
		case !bestPhonetic && score > bestScore:
			bestTerm, bestScore = t.text, score
		}
	}

	if bestTerm == "" {
		return window, 0, false
	}
	return bestTerm, bestScore, true
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// isASCIIWord reports whether s contains only ASCII runes. Phonetic encoding
// is latin-only, so anything else is left alone.
func isASCIIWord(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}
