package extract

import (
	"strings"
	"unicode"

	"github.com/tvqphuoc01/diagram-mcp/decision/catalog"
	"github.com/tvqphuoc01/diagram-mcp/decision/rules"
	"github.com/tvqphuoc01/diagram-mcp/internal/textnorm"
)

// lexicon is the set of keyword phrases the segmenter recognizes: every
// catalog alias, every purpose phrase, and canonical service names.
type lexicon struct {
	phrases map[string]bool
	names   map[string]bool
	common  map[string]bool
}

func buildLexicon(cat *catalog.Catalog, rs *rules.Rules) *lexicon {
	l := &lexicon{
		phrases: make(map[string]bool),
		names:   make(map[string]bool),
		common:  make(map[string]bool),
	}
	addPhrase := func(s string) {
		if n := textnorm.Normalize(s); n != "" {
			l.phrases[n] = true
			l.phrases[textnorm.SingularPhrase(n)] = true
		}
	}
	for _, rec := range cat.All() {
		for _, a := range rec.Aliases {
			addPhrase(a)
		}
		l.names[strings.ToLower(rec.Name)] = true
	}
	for _, p := range rs.Purposes {
		addPhrase(p.Phrase)
	}
	for _, w := range rs.CommonWords {
		l.common[w] = true
	}
	return l
}

// has reports whether the window starting with token first is a keyword.
// Aliases and purpose phrases match in any case. A bare canonical name
// matches in lower case ("lambda", "dynamodb") unless it is a common word,
// and otherwise only when it is written like a product name, so ordinary
// words that happen to be service names ("Run", "Backup") are not picked
// up at the start of a sentence.
func (l *lexicon) has(phrase, first string, words int, sentenceStart bool) bool {
	if l.phrases[phrase] || l.phrases[textnorm.SingularPhrase(phrase)] {
		return true
	}
	if words != 1 || !l.names[phrase] {
		return false
	}
	if first == strings.ToLower(first) && !l.common[phrase] {
		return true
	}
	return looksLikeProductName(first, sentenceStart)
}

func looksLikeProductName(word string, sentenceStart bool) bool {
	if strings.IndexFunc(word, unicode.IsDigit) >= 0 {
		return true
	}
	upper := 0
	for _, r := range word {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	switch {
	case upper >= 2:
		return true
	case upper == 1 && unicode.IsUpper([]rune(word)[0]):
		return !sentenceStart
	}
	return false
}
