// Package sanitize rewrites comment bodies into normalized training text.
// Transform is pure: the same text and options always give the same output.
package sanitize

import (
	"regexp"
	"strings"
)

// WordlistThreshold is the largest wordlist that still leaves text
// unfiltered: unknown-word substitution needs more than WordlistThreshold
// words.
const WordlistThreshold = 3

// Options select the transformation steps. Steps run in field order.
type Options struct {
	PunctuationRemoval     bool     `yaml:"punctuation_removal"`
	PunctuationString      string   `yaml:"punctuation_string"`
	NameEntityRemoval      bool     `yaml:"name_entity_removal"`
	NameEntityPlaceholder  string   `yaml:"name_entity_placeholder"`
	NumberRemoval          bool     `yaml:"number_removal"`
	NumberPlaceholder      string   `yaml:"number_placeholder"`
	LowerCaseString        bool     `yaml:"lower_case_string"`
	Wordlist               []string `yaml:"wordlist"`
	UnknownWordPlaceholder string   `yaml:"unknown_word_placeholder"`
	AddEndOfUtteranceToken bool     `yaml:"add_end_of_utterance_token"`
	EndOfUtteranceToken    string   `yaml:"end_of_utterance_token"`

	// Tagger finds named entities. Nil uses CapitalizedTagger.
	Tagger EntityTagger `yaml:"-"`
}

var digits = regexp.MustCompile(`\d+`)

// Sanitizer is a prepared set of Options. It is immutable and safe for
// concurrent use.
type Sanitizer struct {
	opts   Options
	punct  map[rune]struct{}
	words  map[string]struct{}
	tagger EntityTagger
}

// New prepares opts: lookup sets are built once here rather than per call.
func New(opts Options) *Sanitizer {
	s := &Sanitizer{opts: opts, tagger: opts.Tagger}
	if s.tagger == nil {
		s.tagger = CapitalizedTagger{}
	}
	if opts.PunctuationRemoval {
		s.punct = make(map[rune]struct{}, len(opts.PunctuationString))
		for _, r := range opts.PunctuationString {
			s.punct[r] = struct{}{}
		}
	}
	if len(opts.Wordlist) > WordlistThreshold {
		s.words = make(map[string]struct{}, len(opts.Wordlist)+6)
		for _, w := range opts.Wordlist {
			s.words[w] = struct{}{}
		}
		// Placeholders must survive the filter, including after lower-casing.
		for _, p := range []string{opts.NameEntityPlaceholder, opts.NumberPlaceholder, opts.UnknownWordPlaceholder} {
			if p == "" {
				continue
			}
			s.words[p] = struct{}{}
			if opts.LowerCaseString {
				s.words[strings.ToLower(p)] = struct{}{}
			}
		}
	}
	return s
}

// Transform applies the configured steps to text.
func Transform(text string, opts Options) string {
	return New(opts).Transform(text)
}

// FilteringWords reports whether unknown-word substitution is active.
func (s *Sanitizer) FilteringWords() bool { return s.words != nil }

// Transform applies the configured steps to text.
func (s *Sanitizer) Transform(text string) string {
	out := text

	if s.opts.PunctuationRemoval && len(s.punct) > 0 {
		out = strings.Map(func(r rune) rune {
			if _, drop := s.punct[r]; drop {
				return -1
			}
			return r
		}, out)
	}

	if s.opts.NameEntityRemoval {
		out = s.replaceEntities(out)
	}

	if s.opts.NumberRemoval {
		out = digits.ReplaceAllLiteralString(out, s.opts.NumberPlaceholder)
	}

	if s.opts.LowerCaseString {
		out = strings.ToLower(out)
	}

	if s.words != nil {
		fields := strings.Fields(out)
		for i, w := range fields {
			if _, ok := s.words[w]; !ok {
				fields[i] = s.opts.UnknownWordPlaceholder
			}
		}
		out = strings.Join(fields, " ")
	}

	if s.opts.AddEndOfUtteranceToken {
		out += " " + s.opts.EndOfUtteranceToken
	}
	return out
}

// replaceEntities tokenizes text, collapses each tagged entity chunk into one
// placeholder and rejoins tokens with single spaces.
func (s *Sanitizer) replaceEntities(text string) string {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return ""
	}
	tags := s.tagger.Tag(tokens)
	parts := make([]string, 0, len(tokens))
	for i, tok := range tokens {
		if i < len(tags) && tags[i] {
			if i > 0 && tags[i-1] {
				continue
			}
			parts = append(parts, s.opts.NameEntityPlaceholder)
			continue
		}
		parts = append(parts, tok)
	}
	return strings.Join(parts, " ")
}
