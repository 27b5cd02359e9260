package sanitize

import (
	"regexp"
	"unicode"
	"unicode/utf8"
)

var tokenRE = regexp.MustCompile(`[\p{L}\p{N}_]+(?:'[\p{L}\p{N}_]+)*|[^\p{L}\p{N}_\s]`)

// Tokenize splits text into words (apostrophes kept inside words) and single
// punctuation runes.
func Tokenize(text string) []string {
	return tokenRE.FindAllString(text, -1)
}

// EntityTagger marks which tokens belong to a named entity. Adjacent marked
// tokens form a single entity.
type EntityTagger interface {
	Tag(tokens []string) []bool
}

// CapitalizedTagger treats capitalized words as entities. A sentence-initial
// word only counts when the next word is capitalized too ("John Smith said"),
// and the pronoun "I" never counts.
type CapitalizedTagger struct{}

func (CapitalizedTagger) Tag(tokens []string) []bool {
	tags := make([]bool, len(tokens))
	for i, tok := range tokens {
		if !capitalized(tok) {
			continue
		}
		if sentenceStart(tokens, i) {
			tags[i] = i+1 < len(tokens) && capitalized(tokens[i+1])
			continue
		}
		tags[i] = true
	}
	return tags
}

func capitalized(tok string) bool {
	if tok == "I" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(tok)
	return unicode.IsUpper(r)
}

func sentenceStart(tokens []string, i int) bool {
	if i == 0 {
		return true
	}
	switch tokens[i-1] {
	case ".", "!", "?", "\"", "(":
		return true
	}
	return false
}
