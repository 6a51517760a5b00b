package crawl

import (
	"strings"
	"unicode"
)

// textStats accumulates the counts behind sentence length and readability.
type textStats struct {
	Words     int
	Sentences int
	Syllables int
}

func (s *textStats) add(o textStats) {
	s.Words += o.Words
	s.Sentences += o.Sentences
	s.Syllables += o.Syllables
}

// AvgSentenceLength is words per sentence.
func (s textStats) AvgSentenceLength() float64 {
	if s.Sentences == 0 {
		return 0
	}
	return float64(s.Words) / float64(s.Sentences)
}

// Readability is the Flesch reading ease, clamped to [0,100].
func (s textStats) Readability() float64 {
	if s.Words == 0 || s.Sentences == 0 {
		return 0
	}
	score := 206.835 -
		1.015*(float64(s.Words)/float64(s.Sentences)) -
		84.6*(float64(s.Syllables)/float64(s.Words))
	return min(100, max(0, score))
}

func analyzeText(text string) textStats {
	var st textStats
	for _, sentence := range splitSentences(text) {
		words := strings.Fields(sentence)
		if len(words) == 0 {
			continue
		}
		st.Sentences++
		for _, w := range words {
			st.Words++
			st.Syllables += syllables(w)
		}
	}
	return st
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
}

// firstSentence returns text up to the first terminator.
func firstSentence(text string) string {
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		return text[:i]
	}
	return text
}

// syllables estimates English syllables by counting vowel groups.
func syllables(word string) int {
	w := strings.ToLower(strings.TrimFunc(word, func(r rune) bool { return !unicode.IsLetter(r) }))
	if w == "" {
		return 0
	}
	count, prevVowel := 0, false
	for _, r := range w {
		vowel := strings.ContainsRune("aeiouy", r)
		if vowel && !prevVowel {
			count++
		}
		prevVowel = vowel
	}
	if strings.HasSuffix(w, "e") && !strings.HasSuffix(w, "le") && count > 1 {
		count--
	}
	return max(1, count)
}
