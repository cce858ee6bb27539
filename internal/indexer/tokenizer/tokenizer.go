// Package tokenizer provides text tokenisation for the indexing engine.
// Tokenizers lower-case their input and split it on runs of
// non-alphanumeric characters; there is no stemming and no stop-word list.
package tokenizer

import (
	"fmt"
	"iter"
	"unicode"
	"unicode/utf8"
)

// Token represents a single normalised term and its ordinal position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Tokenizer turns raw text into a lazy sequence of tokens. Implementations
// hold no mutable state, so one value may be shared by many goroutines.
type Tokenizer interface {
	Tokenize(text string) iter.Seq[Token]
}

// ASCII treats [A-Za-z0-9] as term characters. Every other byte, including
// any part of a multi-byte UTF-8 sequence, is a delimiter.
type ASCII struct{}

// Unicode treats letters and digits of any script as term characters.
type Unicode struct{}

// Default is the tokenizer used when none is configured.
var Default Tokenizer = ASCII{}

// ByName resolves a configured tokenizer name.
func ByName(name string) (Tokenizer, error) {
	switch name {
	case "", "ascii":
		return ASCII{}, nil
	case "unicode":
		return Unicode{}, nil
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", name)
	}
}

func (ASCII) Tokenize(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		pos := 0
		i := 0
		for i < len(text) {
			for i < len(text) && !isASCIIAlnum(text[i]) {
				i++
			}
			start := i
			for i < len(text) && isASCIIAlnum(text[i]) {
				i++
			}
			if start == i {
				continue
			}
			if !yield(Token{Term: asciiLower(text[start:i]), Position: pos}) {
				return
			}
			pos++
		}
	}
}

func (Unicode) Tokenize(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		pos := 0
		start := -1
		for i, r := range text {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				if !yield(Token{Term: unicodeLower(text[start:i]), Position: pos}) {
					return
				}
				pos++
				start = -1
			}
		}
		if start >= 0 {
			yield(Token{Term: unicodeLower(text[start:]), Position: pos})
		}
	}
}

// Terms collects the terms of text in order.
func Terms(tok Tokenizer, text string) []string {
	var terms []string
	for t := range tok.Tokenize(text) {
		terms = append(terms, t.Term)
	}
	return terms
}

func isASCIIAlnum(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// asciiLower avoids an allocation when the word is already lower case.
func asciiLower(word string) string {
	upper := false
	for i := 0; i < len(word); i++ {
		if 'A' <= word[i] && word[i] <= 'Z' {
			upper = true
			break
		}
	}
	if !upper {
		return word
	}
	b := make([]byte, len(word))
	for i := 0; i < len(word); i++ {
		c := word[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		b[i] = c
	}
	return string(b)
}

func unicodeLower(word string) string {
	buf := make([]byte, 0, len(word))
	for _, r := range word {
		buf = utf8.AppendRune(buf, unicode.ToLower(r))
	}
	return string(buf)
}
