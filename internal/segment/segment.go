// Package segment splits cleaned document text into ordered sentence units.
//
// Every unit records its byte span in the source, so the text between two
// consecutive units is exactly the whitespace the document had there. Units
// never overlap and appear in document order.
package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"debiasapi/internal/model"
)

var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {},
	"st": {}, "vs": {}, "etc": {}, "e.g": {}, "i.e": {}, "no": {}, "fig": {},
	"inc": {}, "ltd": {}, "co": {}, "mt": {}, "approx": {}, "dept": {},
	"jan": {}, "feb": {}, "mar": {}, "apr": {}, "jun": {}, "jul": {},
	"aug": {}, "sep": {}, "sept": {}, "oct": {}, "nov": {}, "dec": {},
}

// Split segments text. Leading and trailing whitespace of each sentence stays
// outside its span.
func Split(text string) []model.SentenceUnit {
	var (
		units     []model.SentenceUnit
		start     = -1
		ambiguous bool
	)

	emit := func(end int) {
		body := strings.TrimRightFunc(text[start:end], unicode.IsSpace)
		if body != "" {
			units = append(units, model.SentenceUnit{
				Index:                len(units),
				Text:                 body,
				Start:                start,
				End:                  start + len(body),
				SegmentedAmbiguously: ambiguous || !endsWithTerminator(body),
			})
		}
		start = -1
		ambiguous = false
	}

	for i := 0; i < len(text); {
		r, w := utf8.DecodeRuneInString(text[i:])

		if start < 0 {
			if !unicode.IsSpace(r) {
				start = i
			}
			i += w
			continue
		}

		if r == '\n' && paragraphBreak(text, i+w) {
			emit(i)
			i += w
			continue
		}

		if !isTerminator(r) {
			i += w
			continue
		}

		j := consumeTrailing(text, i+w)
		if j < len(text) {
			next, _ := utf8.DecodeRuneInString(text[j:])
			if !unicode.IsSpace(next) {
				// "3.14", "example.com", "a?b"
				i = j
				continue
			}
		}

		if r == '.' && !periodEndsSentence(text, start, i, j) {
			ambiguous = true
			i = j
			continue
		}

		emit(j)
		i = j
	}

	if start >= 0 {
		emit(len(text))
	}
	return units
}

// AmbiguousCount reports how many units carry the ambiguity flag.
func AmbiguousCount(units []model.SentenceUnit) int {
	n := 0
	for _, u := range units {
		if u.SegmentedAmbiguously {
			n++
		}
	}
	return n
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '।', '॥', '…':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', '”', '’', ')', ']', '}', '»':
		return true
	}
	return false
}

func endsWithTerminator(s string) bool {
	for len(s) > 0 {
		r, w := utf8.DecodeLastRuneInString(s)
		if isCloser(r) {
			s = s[:len(s)-w]
			continue
		}
		return isTerminator(r)
	}
	return false
}

// consumeTrailing skips further terminators and closing quotes/brackets.
func consumeTrailing(text string, j int) int {
	for j < len(text) {
		r, w := utf8.DecodeRuneInString(text[j:])
		if !isTerminator(r) && !isCloser(r) {
			break
		}
		j += w
	}
	return j
}

// paragraphBreak reports whether another newline follows before any
// non-blank character.
func paragraphBreak(text string, j int) bool {
	for j < len(text) {
		r, w := utf8.DecodeRuneInString(text[j:])
		switch {
		case r == '\n':
			return true
		case r == ' ' || r == '\t' || r == '\r':
			j += w
		default:
			return false
		}
	}
	return false
}

// periodEndsSentence decides a '.' at position dot, where after is the index
// just past the trailing punctuation run.
func periodEndsSentence(text string, start, dot, after int) bool {
	k := dot
	for k > start {
		r, w := utf8.DecodeLastRuneInString(text[start:k])
		if unicode.IsSpace(r) {
			break
		}
		k -= w
	}
	token := strings.ToLower(strings.TrimLeft(text[k:dot], "([{\"'“‘"))

	if _, ok := abbreviations[token]; ok {
		return false
	}
	if utf8.RuneCountInString(token) == 1 {
		r, _ := utf8.DecodeRuneInString(token)
		if unicode.IsLetter(r) {
			return false
		}
	}
	if k == start && token != "" && strings.Trim(token, "0123456789") == "" {
		// list enumerator such as "1. Introduction"
		return false
	}

	for j := after; j < len(text); {
		r, w := utf8.DecodeRuneInString(text[j:])
		if unicode.IsSpace(r) {
			j += w
			continue
		}
		return !unicode.IsLower(r)
	}
	return true
}
