// Package matcher ranks catalog services against a free-text query using
// four ordered tiers: exact name, alias, fuzzy similarity and purpose.
package matcher

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tvqphuoc01/diagram-mcp/decision/catalog"
	"github.com/tvqphuoc01/diagram-mcp/decision/rules"
	"github.com/tvqphuoc01/diagram-mcp/internal/textnorm"
)

// Kind is the tier that qualified a match.
type Kind string

const (
	KindExact    Kind = "exact"
	KindAlias    Kind = "alias"
	KindFuzzy    Kind = "fuzzy"
	KindSemantic Kind = "semantic"
)

// scorePlaces is the precision scores are compared at.
const scorePlaces = 4

// MatchResult is one ranked candidate. Record points into the catalog and
// is shared, not owned.
type MatchResult struct {
	Record    *catalog.ServiceRecord `json:"service"`
	Score     float64                `json:"score"`
	Kind      Kind                   `json:"match_kind"`
	MatchedOn string                 `json:"matched_on"`
}

// Decimal returns the score at comparison precision.
func (m MatchResult) Decimal() decimal.Decimal {
	return decimal.NewFromFloat(m.Score).Round(scorePlaces)
}

// Request is a single lookup.
type Request struct {
	Query string
	// Provider restricts candidates before scoring. Empty means all providers.
	Provider catalog.Provider
	// Prefer moves a provider to the front of the tie-break order.
	Prefer catalog.Provider
	// Category restricts candidates before scoring. Empty means all categories.
	Category catalog.Category
	// Limit caps the result count; zero or negative means unlimited.
	Limit int
}

// Matcher is stateless apart from its read-only inputs and is safe for
// concurrent use.
type Matcher struct {
	catalog *catalog.Catalog
	rules   *rules.Rules
}

// New creates a matcher over cat using the tables and thresholds in rs.
func New(cat *catalog.Catalog, rs *rules.Rules) *Matcher {
	if rs == nil {
		rs = rules.Default()
	}
	return &Matcher{catalog: cat, rules: rs}
}

// Catalog returns the catalog the matcher reads.
func (m *Matcher) Catalog() *catalog.Catalog { return m.catalog }

// Rules returns the rule set in use.
func (m *Matcher) Rules() *rules.Rules { return m.rules }

// query holds the precomputed forms of the request text.
type query struct {
	norm     string
	singular string
	compact  string
	purposes []rules.Purpose
}

func (m *Matcher) prepare(text string) query {
	q := query{
		norm:     textnorm.Normalize(text),
		singular: textnorm.SingularPhrase(text),
	}
	q.compact = strings.ReplaceAll(q.norm, " ", "")
	for _, p := range m.rules.Purposes {
		if textnorm.ContainsPhrase(q.norm, p.Phrase) || textnorm.ContainsPhrase(q.singular, p.Phrase) {
			q.purposes = append(q.purposes, p)
		}
	}
	return q
}

// Match returns the ranked matches for req. Entries that qualify for no
// tier are left out.
func (m *Matcher) Match(req Request) []MatchResult {
	q := m.prepare(req.Query)
	if q.norm == "" {
		return nil
	}

	var candidates []*catalog.ServiceRecord
	if req.Provider != "" {
		candidates = m.catalog.Records(req.Provider)
	} else {
		candidates = m.catalog.All()
	}

	var results []MatchResult
	for _, rec := range candidates {
		if req.Category != "" && rec.Category != req.Category {
			continue
		}
		if res, ok := m.score(q, rec); ok {
			results = append(results, res)
		}
	}

	prefer := req.Prefer
	if prefer == "" {
		prefer = req.Provider
	}
	m.rank(results, m.rules.ProviderPreference(prefer))

	if req.Limit > 0 && len(results) > req.Limit {
		results = results[:req.Limit]
	}
	return results
}

// score applies the tiers in order; the first qualifying tier wins.
func (m *Matcher) score(q query, rec *catalog.ServiceRecord) (MatchResult, bool) {
	name := textnorm.Normalize(rec.Name)
	nameCompact := strings.ReplaceAll(name, " ", "")

	if q.norm == name || q.singular == name || q.compact == nameCompact {
		return MatchResult{Record: rec, Score: rules.ScoreExact, Kind: KindExact, MatchedOn: rec.Name}, true
	}

	for _, alias := range rec.Aliases {
		an := textnorm.Normalize(alias)
		if q.norm == an || q.singular == an {
			return MatchResult{Record: rec, Score: rules.ScoreAlias, Kind: KindAlias, MatchedOn: alias}, true
		}
	}

	th := m.rules.Thresholds
	if len([]rune(q.compact)) >= th.MinFuzzyLength {
		best, on := similarity(q.norm, rec.Name), rec.Name
		for _, alias := range rec.Aliases {
			if s := similarity(q.norm, alias); s > best {
				best, on = s, alias
			}
		}
		if best >= th.FuzzyThreshold {
			return MatchResult{Record: rec, Score: round(fuzzyScore(best, th)), Kind: KindFuzzy, MatchedOn: on}, true
		}
	}

	for _, p := range q.purposes {
		for _, t := range p.Targets {
			if t.Matches(rec) {
				return MatchResult{Record: rec, Score: rules.ScoreSemantic, Kind: KindSemantic, MatchedOn: p.Phrase}, true
			}
		}
	}
	return MatchResult{}, false
}

// rank orders by score, then provider preference, then canonical name.
func (m *Matcher) rank(results []MatchResult, order []catalog.Provider) {
	pos := make(map[catalog.Provider]int, len(order))
	for i, p := range order {
		pos[p] = i
	}
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if c := a.Decimal().Cmp(b.Decimal()); c != 0 {
			return c > 0
		}
		if pa, pb := pos[a.Record.Provider], pos[b.Record.Provider]; pa != pb {
			return pa < pb
		}
		la, lb := strings.ToLower(a.Record.Name), strings.ToLower(b.Record.Name)
		if la != lb {
			return la < lb
		}
		return a.Record.Name < b.Record.Name
	})
}

// fuzzyScore maps a similarity in [threshold, 1] onto [threshold, ceiling].
// The mapping keeps the order of similarities, so a closer typo still ranks
// first, while every fuzzy score stays below the alias score.
func fuzzyScore(sim float64, th rules.Thresholds) float64 {
	if sim <= th.FuzzyThreshold || th.FuzzyThreshold >= 1 {
		return sim
	}
	return th.FuzzyThreshold + (sim-th.FuzzyThreshold)*(th.FuzzyCeiling-th.FuzzyThreshold)/(1-th.FuzzyThreshold)
}

func round(f float64) float64 {
	v, _ := decimal.NewFromFloat(f).Round(scorePlaces).Float64()
	return v
}
