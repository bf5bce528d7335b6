// Package phonetic scores how closely a transcript contains a spoken phrase,
// using Double Metaphone encoding for sound-alike filtering and Jaro-Winkler
// similarity for ranking.
//
// Score slides windows of transcript tokens (the phrase length, plus or minus
// a configurable slack) across the transcript and keeps the best window. A
// window is scored as the highest of three Jaro-Winkler strategies:
//
//  1. Full-string comparison ("hey jervis" vs "hey jarvis").
//  2. Space-stripped comparison ("jar vis" vs "jarvis").
//  3. Mean over phrase tokens of the best pairwise token score.
//
// Windows whose Double Metaphone codes do not cover every phrase token are
// scaled by the fuzzy weight (default 0.5), so a spelling-only near miss never
// clears a 0.5 trigger threshold.
package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultWindowSlack = 1
	defaultFuzzyWeight = 0.5
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithWindowSlack sets how many tokens a window may differ from the phrase
// length. Default: 1.
func WithWindowSlack(n int) Option {
	return func(m *Matcher) {
		if n >= 0 {
			m.windowSlack = n
		}
	}
}

// WithFuzzyWeight sets the factor applied to windows without phonetic
// overlap. Default: 0.5.
func WithFuzzyWeight(w float64) Option {
	return func(m *Matcher) {
		if w >= 0 && w <= 1 {
			m.fuzzyWeight = w
		}
	}
}

// Matcher scores phrases against transcripts. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	windowSlack int
	fuzzyWeight float64
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		windowSlack: defaultWindowSlack,
		fuzzyWeight: defaultFuzzyWeight,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Tokenize lowercases s and splits it into words, dropping punctuation.
// Apostrophes inside words are kept ("o'clock").
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// Score returns a similarity in [0, 1] between phrase and the best-matching
// span of transcript. Empty input scores 0.
func (m *Matcher) Score(transcript, phrase string) float64 {
	pt := Tokenize(phrase)
	tt := Tokenize(transcript)
	if len(pt) == 0 || len(tt) == 0 {
		return 0
	}

	lo := max(1, len(pt)-m.windowSlack)
	hi := min(len(tt), len(pt)+m.windowSlack)
	if lo > len(tt) {
		return m.scoreWindow(tt, pt)
	}

	var best float64
	for size := lo; size <= hi; size++ {
		for start := 0; start+size <= len(tt); start++ {
			if s := m.scoreWindow(tt[start:start+size], pt); s > best {
				best = s
			}
		}
	}
	return best
}

func (m *Matcher) scoreWindow(window, phrase []string) float64 {
	score := bestJWScore(window, phrase)
	if !phoneticCover(window, phrase) {
		score *= m.fuzzyWeight
	}
	return score
}

// phoneticCover reports whether every phrase token shares a Double Metaphone
// code with some window token, or the concatenated forms share a code.
func phoneticCover(window, phrase []string) bool {
	if codesOverlap(codesForTokens([]string{strings.Join(window, "")}), codesForTokens([]string{strings.Join(phrase, "")})) {
		return true
	}
	windowCodes := codesForTokens(window)
	for _, p := range phrase {
		if !codesOverlap(codesForTokens([]string{p}), windowCodes) {
			return false
		}
	}
	return true
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (words with no consonants) are excluded.
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

// bestJWScore returns the highest Jaro-Winkler similarity between window and
// phrase across the three strategies listed in the package doc.
func bestJWScore(window, phrase []string) float64 {
	score := matchr.JaroWinkler(strings.Join(window, " "), strings.Join(phrase, " "), false)

	if len(window) > 1 || len(phrase) > 1 {
		if s := matchr.JaroWinkler(strings.Join(window, ""), strings.Join(phrase, ""), false); s > score {
			score = s
		}
	}

	var sum float64
	for _, p := range phrase {
		var tokenBest float64
		for _, w := range window {
			if s := matchr.JaroWinkler(w, p, false); s > tokenBest {
				tokenBest = s
			}
		}
		sum += tokenBest
	}
	if mean := sum / float64(len(phrase)); mean > score {
		score = mean
	}
	return score
}
