// Package extract finds the infrastructure components mentioned in a free-text
// description and resolves each one against the service catalog.
package extract

import (
	"strconv"
	"strings"

	"github.com/tvqphuoc01/diagram-mcp/decision/catalog"
	"github.com/tvqphuoc01/diagram-mcp/decision/matcher"
	"github.com/tvqphuoc01/diagram-mcp/decision/rules"
	"github.com/tvqphuoc01/diagram-mcp/internal/textnorm"
)

// Span is a byte range of the description.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Entity is one distinct component of the description. Resolved is nil
// when no catalog service matched well enough.
type Entity struct {
	ID       string               `json:"id"`
	RoleText string               `json:"role_text"`
	Resolved *matcher.MatchResult `json:"resolved,omitempty"`
	Position int                  `json:"position"`
	Mentions []Span               `json:"mentions"`
	Count    int                  `json:"count"`
}

// IsResolved reports whether the entity maps to a catalog service.
func (e Entity) IsResolved() bool { return e.Resolved != nil }

// Ambiguity records a near tie between the two best services of one provider.
type Ambiguity struct {
	EntityID string              `json:"entity_id"`
	Phrase   string              `json:"phrase"`
	Chosen   matcher.MatchResult `json:"chosen"`
	RunnerUp matcher.MatchResult `json:"runner_up"`
}

// Extraction is the outcome of one Extract call.
type Extraction struct {
	Entities    []Entity    `json:"entities"`
	Ambiguities []Ambiguity `json:"ambiguities,omitempty"`
}

// Resolved returns the entities that map to catalog services.
func (x *Extraction) Resolved() []Entity {
	var out []Entity
	for _, e := range x.Entities {
		if e.IsResolved() {
			out = append(out, e)
		}
	}
	return out
}

// Unresolved returns the entities that matched nothing.
func (x *Extraction) Unresolved() []Entity {
	var out []Entity
	for _, e := range x.Entities {
		if !e.IsResolved() {
			out = append(out, e)
		}
	}
	return out
}

// Extractor is safe for concurrent use; each call works on its own state.
type Extractor struct {
	matcher *matcher.Matcher
	rules   *rules.Rules
	lexicon *lexicon
}

// New builds an extractor whose keyword lexicon comes from the matcher's
// catalog and purpose table.
func New(m *matcher.Matcher) *Extractor {
	return &Extractor{
		matcher: m,
		rules:   m.Rules(),
		lexicon: buildLexicon(m.Catalog(), m.Rules()),
	}
}

// candidate is a phrase the segmenter picked out of the description.
type candidate struct {
	text  string
	norm  string
	start int
	end   int
}

// Extract segments description into candidate phrases, resolves each one
// and merges repeated mentions. One entity is kept per distinct resolved
// service, and per distinct phrase for unresolved candidates; the first
// mention fixes the position and every mention is listed.
func (e *Extractor) Extract(description string, prefer catalog.Provider) *Extraction {
	result := &Extraction{Entities: []Entity{}}
	index := make(map[string]int)

	for _, c := range e.segment(description) {
		top, runnerUp := e.resolve(c.text, prefer)

		key := "phrase:" + textnorm.SingularPhrase(c.norm)
		if top != nil {
			key = "service:" + top.Record.Key()
		}

		if i, seen := index[key]; seen {
			ent := &result.Entities[i]
			ent.Mentions = append(ent.Mentions, Span{Start: c.start, End: c.end})
			ent.Count++
			continue
		}

		ent := Entity{
			ID:       entityID(len(result.Entities)),
			RoleText: c.text,
			Resolved: top,
			Position: c.start,
			Mentions: []Span{{Start: c.start, End: c.end}},
			Count:    1,
		}
		index[key] = len(result.Entities)
		result.Entities = append(result.Entities, ent)

		if top != nil && runnerUp != nil {
			result.Ambiguities = append(result.Ambiguities, Ambiguity{
				EntityID: ent.ID,
				Phrase:   c.text,
				Chosen:   *top,
				RunnerUp: *runnerUp,
			})
		}
	}
	return result
}

// resolve returns the accepted match for phrase, plus the runner-up when
// the two are too close to call. The preferred provider is searched first;
// the whole catalog is the fallback.
func (e *Extractor) resolve(phrase string, prefer catalog.Provider) (*matcher.MatchResult, *matcher.MatchResult) {
	var results []matcher.MatchResult
	if prefer != "" {
		results = e.matcher.Match(matcher.Request{Query: phrase, Provider: prefer, Limit: 2})
	}
	if len(results) == 0 {
		results = e.matcher.Match(matcher.Request{Query: phrase, Prefer: prefer, Limit: 2})
	}
	if len(results) == 0 || results[0].Score < e.rules.Thresholds.ResolveThreshold {
		return nil, nil
	}

	top := results[0]
	if len(results) < 2 {
		return &top, nil
	}
	second := results[1]
	if second.Record.Provider != top.Record.Provider {
		return &top, nil
	}
	delta := top.Decimal().Sub(second.Decimal()).InexactFloat64()
	if delta <= e.rules.Thresholds.AmbiguityDelta {
		return &top, &second
	}
	return &top, nil
}

// segment walks the tokens left to right trying the longest keyword window
// first. Windows never cross a clause boundary.
func (e *Extractor) segment(description string) []candidate {
	tokens := textnorm.Tokenize(description)
	clause, sentenceStart := clauseIDs(description, tokens)
	maxWindow := e.rules.Thresholds.MaxWindow

	var out []candidate
	for i := 0; i < len(tokens); {
		matched := 0
		for w := min(maxWindow, len(tokens)-i); w >= 1; w-- {
			if clause[i] != clause[i+w-1] {
				continue
			}
			words := make([]string, w)
			for k := 0; k < w; k++ {
				words[k] = strings.ToLower(tokens[i+k].Text)
			}
			phrase := strings.Join(words, " ")
			if e.lexicon.has(phrase, tokens[i].Text, w, sentenceStart[i]) {
				matched = w
				break
			}
		}

		if matched == 0 && textnorm.IsCamelCase(tokens[i].Text) {
			matched = 1
		}
		if matched == 0 {
			i++
			continue
		}

		first, last := tokens[i], tokens[i+matched-1]
		text := description[first.Start:last.End]
		out = append(out, candidate{
			text:  text,
			norm:  textnorm.Normalize(text),
			start: first.Start,
			end:   last.End,
		})
		i += matched
	}
	return out
}

// clauseIDs numbers the clause each token belongs to and flags the tokens
// that open a sentence. Sentence punctuation, commas, semicolons and line
// breaks between tokens start a new clause.
func clauseIDs(description string, tokens []textnorm.Token) ([]int, []bool) {
	ids := make([]int, len(tokens))
	starts := make([]bool, len(tokens))
	if len(tokens) > 0 {
		starts[0] = true
	}
	id := 0
	for i := 1; i < len(tokens); i++ {
		gap := description[tokens[i-1].End:tokens[i].Start]
		if strings.ContainsAny(gap, ".;!?,\n") {
			id++
		}
		starts[i] = strings.ContainsAny(gap, ".!?\n")
		ids[i] = id
	}
	return ids, starts
}

func entityID(i int) string {
	return "n" + strconv.Itoa(i+1)
}
