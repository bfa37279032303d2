package dialogue

import (
	"strings"
)

var abbreviations = map[string]bool{
	"dr": true, "mr": true, "mrs": true, "ms": true, "jr": true, "sr": true,
	"prof": true, "rev": true, "gen": true, "col": true, "lt": true, "sgt": true,
	"inc": true, "ltd": true, "corp": true, "co": true, "vs": true, "etc": true,
	"i.e": true, "e.g": true, "a.m": true, "p.m": true, "u.s": true, "u.k": true,
	"st": true,
}

// IsSentenceBoundary reports whether text ends a sentence: it must end in
// '.', '?' or '!' and a trailing period must not close a known abbreviation.
func IsSentenceBoundary(text string) bool {
	trimmed := strings.TrimRight(text, " \t\r\n")
	if strings.TrimSpace(trimmed) == "" {
		return false
	}
	last := trimmed[len(trimmed)-1]
	switch last {
	case '?', '!':
		return true
	case '.':
		return !endsWithAbbreviation(trimmed)
	default:
		return false
	}
}

// endsWithAbbreviation expects s to end with '.'
func endsWithAbbreviation(s string) bool {
	word := s
	if i := strings.LastIndexAny(s, " \t\r\n"); i >= 0 {
		word = s[i+1:]
	}
	word = strings.TrimLeft(word, `"'(`)
	word = strings.TrimSuffix(word, ".")
	return abbreviations[strings.ToLower(word)]
}

// SplitSentences breaks a reply at sentence boundaries so each piece can be
// synthesized as soon as the previous one finishes. Trailing text without a
// terminal mark is returned as the last piece.
func SplitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '?' && c != '!' {
			continue
		}
		// keep runs like "?!" or "..." together
		if i+1 < len(text) && strings.IndexByte(".?!", text[i+1]) >= 0 {
			continue
		}
		if i+1 < len(text) && !isSpace(text[i+1]) {
			continue
		}
		candidate := text[start : i+1]
		if !IsSentenceBoundary(candidate) {
			continue
		}
		if s := strings.TrimSpace(candidate); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
