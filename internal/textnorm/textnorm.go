// Package textnorm holds the text normalization shared by the catalog,
// matcher and extractor, so every layer compares phrases the same way.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize lower-cases s, turns every non letter/digit rune into a space
// and collapses runs of spaces.
func Normalize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	space := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(unicode.ToLower(r))
			space = false
			continue
		}
		if !space {
			sb.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

// Compact is Normalize without the spaces: "API Gateway" and "APIGateway"
// both become "apigateway".
func Compact(s string) string {
	return strings.ReplaceAll(Normalize(s), " ", "")
}

// Singular strips a plural suffix from a single lower-case word.
func Singular(word string) string {
	n := len(word)
	switch {
	case n <= 3:
		return word
	case strings.HasSuffix(word, "ies") && n > 4:
		return word[:n-3] + "y"
	case strings.HasSuffix(word, "sses"), strings.HasSuffix(word, "xes"):
		return word[:n-2]
	case strings.HasSuffix(word, "ss"), strings.HasSuffix(word, "us"), strings.HasSuffix(word, "is"):
		return word
	case strings.HasSuffix(word, "s"):
		return word[:n-1]
	}
	return word
}

// SingularPhrase normalizes s and singularizes each word.
func SingularPhrase(s string) string {
	words := strings.Fields(Normalize(s))
	for i, w := range words {
		words[i] = Singular(w)
	}
	return strings.Join(words, " ")
}

// ContainsPhrase reports whether the normalized phrase occurs in the
// normalized text on word boundaries.
func ContainsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

// Token is a word of the source text with its byte offsets.
type Token struct {
	Text  string
	Start int
	End   int
}

// Tokenize splits s into letter/digit runs, keeping byte offsets into s.
func Tokenize(s string) []Token {
	var tokens []Token
	start := -1
	for i, r := range s {
		word := unicode.IsLetter(r) || unicode.IsDigit(r)
		switch {
		case word && start < 0:
			start = i
		case !word && start >= 0:
			tokens = append(tokens, Token{Text: s[start:i], Start: start, End: i})
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, Token{Text: s[start:], Start: start, End: len(s)})
	}
	return tokens
}

// IsCamelCase reports identifiers such as "FooCache" or "DynamoDB":
// an upper-case first letter followed by at least one more upper-case
// letter after a lower-case one.
func IsCamelCase(word string) bool {
	first, size := utf8.DecodeRuneInString(word)
	if !unicode.IsUpper(first) {
		return false
	}
	sawLower := false
	for _, r := range word[size:] {
		switch {
		case unicode.IsLower(r):
			sawLower = true
		case unicode.IsUpper(r) && sawLower:
			return true
		}
	}
	return false
}
