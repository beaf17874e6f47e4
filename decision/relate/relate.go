// Package relate infers the edges between extracted entities from the
// connective language between their mentions and, for diagram types that
// expect a connected graph, from the order the components are mentioned in.
package relate

import (
	"sort"
	"strings"

	"github.com/tvqphuoc01/diagram-mcp/decision/diagram"
	"github.com/tvqphuoc01/diagram-mcp/decision/extract"
	"github.com/tvqphuoc01/diagram-mcp/decision/rules"
	"github.com/tvqphuoc01/diagram-mcp/internal/textnorm"
)

// Inference records which signal produced an edge.
type Inference string

const (
	InferredConnective Inference = "connective"
	InferredPositional Inference = "positional"
)

// Edge links two entities of one extraction by ID. Positional edges are
// stored earlier -> later but are not directed.
type Edge struct {
	From     string    `json:"from"`
	To       string    `json:"to"`
	Label    string    `json:"label,omitempty"`
	Directed bool      `json:"directed"`
	Inferred Inference `json:"inferred"`
}

type connective struct {
	rules.Connective
	singular string
}

// Inferrer is read-only after New and safe for concurrent use.
type Inferrer struct {
	rules       *rules.Rules
	connectives []connective
}

// New prepares the connective table of rs. A nil rs uses the defaults.
func New(rs *rules.Rules) *Inferrer {
	if rs == nil {
		rs = rules.Default()
	}
	in := &Inferrer{rules: rs}
	for _, c := range rs.Connectives {
		cc := connective{Connective: c}
		if !c.Symbolic() {
			cc.singular = textnorm.SingularPhrase(c.Phrase)
		}
		in.connectives = append(in.connectives, cc)
	}
	return in
}

type mention struct {
	entity string
	start  int
	end    int
}

type pair struct{ a, b string }

// unordered returns the key shared by both directions of a pair.
func (p pair) unordered() pair {
	if p.b < p.a {
		return pair{p.b, p.a}
	}
	return p
}

// Infer returns the edges between the resolved entities in the order their
// linking text appears in description. Unresolved entities take no part.
func (in *Inferrer) Infer(entities []extract.Entity, description string, t diagram.Type) []Edge {
	mentions := resolvedMentions(entities)
	connected := in.rules.ExpectsConnected(string(t))

	var candidates []Edge
	linked := make(map[pair]bool)
	for i := 1; i < len(mentions); i++ {
		prev, next := mentions[i-1], mentions[i]
		if prev.entity == next.entity || next.start < prev.end {
			continue
		}
		gap := description[prev.end:next.start]

		if c, ok := in.findConnective(gap); ok {
			e := Edge{From: prev.entity, To: next.entity, Label: c.Phrase, Directed: true, Inferred: InferredConnective}
			if c.Reverse {
				e.From, e.To = e.To, e.From
			}
			candidates = append(candidates, e)
			linked[pair{e.From, e.To}.unordered()] = true
			continue
		}
		if connected && !in.disconnected(gap) &&
			!in.disconnected(sentenceAt(description, prev)) &&
			!in.disconnected(sentenceAt(description, next)) {
			candidates = append(candidates, Edge{From: prev.entity, To: next.entity, Inferred: InferredPositional})
		}
	}

	edges := make([]Edge, 0, len(candidates))
	seen := make(map[Edge]bool)
	for _, e := range candidates {
		if seen[e] {
			continue
		}
		if e.Inferred == InferredPositional {
			key := pair{e.From, e.To}.unordered()
			if linked[key] {
				continue
			}
			linked[key] = true
		}
		seen[e] = true
		edges = append(edges, e)
	}
	return edges
}

// findConnective returns the longest connective found in gap. Word
// connectives match on word boundaries, in the written or the singular
// form ("reads from" also matches "read from"); symbolic ones match the
// raw text.
func (in *Inferrer) findConnective(gap string) (rules.Connective, bool) {
	norm := textnorm.Normalize(gap)
	singular := textnorm.SingularPhrase(gap)
	for _, c := range in.connectives {
		if c.Symbolic() {
			if strings.Contains(gap, c.Phrase) {
				return c.Connective, true
			}
			continue
		}
		if textnorm.ContainsPhrase(norm, c.Phrase) || textnorm.ContainsPhrase(singular, c.singular) {
			return c.Connective, true
		}
	}
	return rules.Connective{}, false
}

func (in *Inferrer) disconnected(gap string) bool {
	norm := textnorm.Normalize(gap)
	for _, m := range in.rules.DisconnectMarkers {
		if textnorm.ContainsPhrase(norm, m) {
			return true
		}
	}
	return false
}

// sentenceBreaks end a sentence for disconnect marker scoping.
const sentenceBreaks = ".;!?\n"

// sentenceAt returns the sentence of description that contains m. A marker
// there ("a cache and a database are deployed separately") keeps the
// mention out of the positional chain.
func sentenceAt(description string, m mention) string {
	start := strings.LastIndexAny(description[:m.start], sentenceBreaks) + 1
	end := len(description)
	if i := strings.IndexAny(description[m.end:], sentenceBreaks); i >= 0 {
		end = m.end + i
	}
	return description[start:end]
}

func resolvedMentions(entities []extract.Entity) []mention {
	var out []mention
	for _, e := range entities {
		if !e.IsResolved() {
			continue
		}
		for _, s := range e.Mentions {
			out = append(out, mention{entity: e.ID, start: s.Start, end: s.End})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].start != out[j].start {
			return out[i].start < out[j].start
		}
		return out[i].entity < out[j].entity
	})
	return out
}
