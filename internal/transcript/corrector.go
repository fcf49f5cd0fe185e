// Package transcript corrects speech-to-text output against a known technical
// vocabulary using Double Metaphone phonetic encoding combined with
// Jaro-Winkler string similarity.
//
// Interview transcripts are full of terms an acoustic model rarely gets right
// ("kubernetes" heard as "kubernetties", "goroutine" as "go routine"). The
// corrector aligns mishearings with the configured vocabulary in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each word in the input and for each vocabulary term. If any code from
//     the input overlaps with any code from a term, the term becomes a
//     phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates, the term with the
//     highest Jaro-Winkler similarity (computed on the original strings,
//     case-insensitive) is selected, provided its score exceeds the phonetic
//     threshold. When no phonetic candidate exists, a secondary pass tests
//     pure Jaro-Winkler similarity against all terms using a stricter fuzzy
//     threshold.
//
// Multi-word terms (e.g., "dependency injection") are supported: the
// corrector slides n-gram windows over the input and accepts the longest
// matching window at each position.
package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Correction records a single substitution applied by the corrector.
type Correction struct {
	// Original is the span of input text that was replaced.
	Original string
	// Corrected is the vocabulary term it was replaced with.
	Corrected string
	// Confidence is the Jaro-Winkler score of the match.
	Confidence float64
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the corrector falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.fuzzyThreshold = threshold
	}
}

// Corrector aligns transcript text with a technical vocabulary. It is
// read-only after construction and safe for concurrent use.
type Corrector struct {
	terms             []term
	maxTermWords      int
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// term is a vocabulary entry with its precomputed phonetic codes.
type term struct {
	original string
	lower    string
	tokens   []string
	codes    map[string]struct{}
}

// New returns a [Corrector] for the given vocabulary. Phonetic codes for the
// vocabulary are computed once here so that [Corrector.Correct] only encodes
// the input text.
func New(vocabulary []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}

	for _, v := range vocabulary {
		lower := strings.ToLower(strings.TrimSpace(v))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		c.terms = append(c.terms, term{
			original: strings.TrimSpace(v),
			lower:    lower,
			tokens:   tokens,
			codes:    codesForTokens(tokens),
		})
		if len(tokens) > c.maxTermWords {
			c.maxTermWords = len(tokens)
		}
	}
	return c
}

// Correct replaces vocabulary mishearings in text and returns the corrected
// text along with the list of substitutions applied. Text that matches no
// term is returned unchanged with a nil correction list.
//
// The input is tokenised on whitespace. At each position, n-gram windows from
// the longest vocabulary term down to a single word are tested; the longest
// matching window wins so multi-word terms take precedence over partial
// single-word matches.
func (c *Corrector) Correct(text string) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || len(c.terms) == 0 {
		return text, nil
	}

	var output []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		maxN := c.maxTermWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			t, conf, ok := c.match(window)
			if !ok {
				continue
			}
			if t.lower == strings.ToLower(window) {
				// Already spelled correctly, nothing to substitute.
				break
			}

			output = append(output, strings.Fields(t.original)...)
			corrections = append(corrections, Correction{
				Original:   window,
				Corrected:  t.original,
				Confidence: conf,
			})
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// match finds the vocabulary term most similar to window, or ok=false when no
// term clears its threshold.
func (c *Corrector) match(window string) (best term, confidence float64, ok bool) {
	windowLower := strings.ToLower(window)
	windowTokens := strings.Fields(windowLower)
	inputCodes := codesForTokens(windowTokens)

	var (
		bestScore    float64
		bestPhonetic bool
		found        bool
	)

	for _, t := range c.terms {
		phoneticMatch := codesOverlap(inputCodes, t.codes)
		jwScore := bestJWScore(windowTokens, t.tokens, windowLower, t.lower)

		if phoneticMatch {
			if jwScore >= c.phoneticThreshold && (!bestPhonetic || jwScore > bestScore) {
				best, bestScore, bestPhonetic, found = t, jwScore, true, true
			}
		} else if !bestPhonetic {
			if jwScore >= c.fuzzyThreshold && jwScore > bestScore {
				best, bestScore, found = t, jwScore, true
			}
		}
	}

	return best, bestScore, found
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (produced when the word is too short or contains
// no consonants) are excluded.
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

// bestJWScore computes the highest Jaro-Winkler similarity between the input
// and the term using three strategies:
//
//  1. Full-string comparison (e.g., "kubernetties" vs "kubernetes").
//  2. Space-stripped comparison (e.g., "go routine" vs "goroutine").
//  3. Best pairwise word comparison, the maximum score between any input
//     token and any term token. Applied only when both sides have the same
//     token count, otherwise a window containing one correctly-spelled word
//     would swallow its neighbours.
func bestJWScore(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	score := matchr.JaroWinkler(inputFull, termFull, false)

	if len(inputTokens) > 1 || len(termTokens) > 1 {
		concat1 := strings.Join(inputTokens, "")
		concat2 := strings.Join(termTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	if len(inputTokens) == len(termTokens) {
		for _, it := range inputTokens {
			for _, tt := range termTokens {
				if s := matchr.JaroWinkler(it, tt, false); s > score {
					score = s
				}
			}
		}
	}

	return score
}
