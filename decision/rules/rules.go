// Package rules holds the versioned phrase tables and thresholds that drive
// matching, extraction and relationship inference. The tables are data: they
// can be replaced at startup without touching the algorithms that read them.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tvqphuoc01/diagram-mcp/decision/catalog"
	"github.com/tvqphuoc01/diagram-mcp/internal/textnorm"
)

//go:embed rules.yaml
var defaultRules []byte

// CurrentVersion is the rules schema version this build understands.
const CurrentVersion = 1

// Tier scores. Fuzzy similarities are scaled into
// [Thresholds.FuzzyThreshold, Thresholds.FuzzyCeiling], and the ceiling must
// stay below ScoreAlias.
const (
	ScoreExact    = 1.0
	ScoreAlias    = 0.9
	ScoreSemantic = 0.7
)

// Thresholds tune the matcher and extractor.
type Thresholds struct {
	FuzzyThreshold   float64 `yaml:"fuzzy_threshold" json:"fuzzy_threshold"`
	FuzzyCeiling     float64 `yaml:"fuzzy_ceiling" json:"fuzzy_ceiling"`
	MinFuzzyLength   int     `yaml:"min_fuzzy_length" json:"min_fuzzy_length"`
	ResolveThreshold float64 `yaml:"resolve_threshold" json:"resolve_threshold"`
	AmbiguityDelta   float64 `yaml:"ambiguity_delta" json:"ambiguity_delta"`
	MaxWindow        int     `yaml:"max_window" json:"max_window"`
}

// Connective is a phrase that links two components in a description.
// Reverse connectives point from the later component to the earlier one
// ("A sits behind B" means B -> A).
type Connective struct {
	Phrase  string `yaml:"phrase" json:"phrase"`
	Reverse bool   `yaml:"reverse,omitempty" json:"reverse,omitempty"`
}

// Symbolic reports connectives made of punctuation only, such as "->".
func (c Connective) Symbolic() bool {
	return textnorm.Normalize(c.Phrase) == ""
}

// TargetKind tags a purpose target variant.
type TargetKind string

const (
	TargetService  TargetKind = "service"
	TargetCategory TargetKind = "category"
)

// Target is either a specific service or a whole category, optionally
// scoped to one provider.
type Target struct {
	Kind     TargetKind       `yaml:"kind" json:"kind"`
	Provider catalog.Provider `yaml:"provider,omitempty" json:"provider,omitempty"`
	Name     string           `yaml:"name,omitempty" json:"name,omitempty"`
	Category catalog.Category `yaml:"category,omitempty" json:"category,omitempty"`
}

// Matches reports whether rec is covered by the target.
func (t Target) Matches(rec *catalog.ServiceRecord) bool {
	if t.Provider != "" && t.Provider != rec.Provider {
		return false
	}
	switch t.Kind {
	case TargetService:
		return strings.EqualFold(t.Name, rec.Name)
	case TargetCategory:
		return t.Category == rec.Category
	}
	return false
}

// Purpose maps a functional phrase ("container orchestration") to services
// regardless of how they are spelled.
type Purpose struct {
	Phrase  string   `yaml:"phrase" json:"phrase"`
	Targets []Target `yaml:"targets" json:"targets"`
}

// Rules is the full rule set. Treat a loaded value as read-only.
type Rules struct {
	Version           int                `yaml:"version" json:"version"`
	Thresholds        Thresholds         `yaml:"thresholds" json:"thresholds"`
	ProviderOrder     []catalog.Provider `yaml:"provider_order" json:"provider_order"`
	ConnectedTypes    []string           `yaml:"connected_types" json:"connected_types"`
	Connectives       []Connective       `yaml:"connectives" json:"connectives"`
	DisconnectMarkers []string           `yaml:"disconnect_markers" json:"disconnect_markers"`
	Purposes          []Purpose          `yaml:"purposes" json:"purposes"`
	// CommonWords are service names that are also ordinary English words.
	// Written in lower case they are read as words, not as services.
	CommonWords []string `yaml:"common_words" json:"common_words"`
}

// Default returns the rule set compiled into the binary.
func Default() *Rules {
	r, err := parse(defaultRules, &Rules{})
	if err != nil {
		panic(fmt.Sprintf("embedded rules are invalid: %v", err))
	}
	return r
}

// Parse decodes a rules document. Keys missing from data keep their
// default values; tables present in data replace the default table.
func Parse(data []byte) (*Rules, error) {
	return parse(data, Default())
}

// LoadFile reads and parses a rules document from disk.
func LoadFile(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func parse(data []byte, base *Rules) (*Rules, error) {
	if err := yaml.Unmarshal(data, base); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}
	base.normalize()
	if err := base.Validate(); err != nil {
		return nil, err
	}
	return base, nil
}

func (r *Rules) normalize() {
	for i, c := range r.Connectives {
		if !c.Symbolic() {
			r.Connectives[i].Phrase = textnorm.Normalize(c.Phrase)
		} else {
			r.Connectives[i].Phrase = strings.TrimSpace(c.Phrase)
		}
	}
	// longest phrase wins when several occur in the same gap
	sort.SliceStable(r.Connectives, func(i, j int) bool {
		return len(r.Connectives[i].Phrase) > len(r.Connectives[j].Phrase)
	})

	for i, m := range r.DisconnectMarkers {
		r.DisconnectMarkers[i] = textnorm.Normalize(m)
	}
	for i := range r.Purposes {
		r.Purposes[i].Phrase = textnorm.Normalize(r.Purposes[i].Phrase)
		for j, t := range r.Purposes[i].Targets {
			t.Provider = catalog.Provider(strings.ToLower(string(t.Provider)))
			t.Category = catalog.Category(strings.ToLower(string(t.Category)))
			r.Purposes[i].Targets[j] = t
		}
	}
	for i, w := range r.CommonWords {
		r.CommonWords[i] = strings.ToLower(strings.TrimSpace(w))
	}
	for i, p := range r.ProviderOrder {
		r.ProviderOrder[i] = catalog.Provider(strings.ToLower(string(p)))
	}
	for i, t := range r.ConnectedTypes {
		r.ConnectedTypes[i] = strings.ToLower(strings.TrimSpace(t))
	}
}

// Validate checks versions, threshold ranges and table entries.
func (r *Rules) Validate() error {
	if r.Version != CurrentVersion {
		return fmt.Errorf("unsupported rules version %d (want %d)", r.Version, CurrentVersion)
	}

	t := r.Thresholds
	switch {
	case t.FuzzyThreshold <= 0 || t.FuzzyThreshold > 1:
		return fmt.Errorf("fuzzy_threshold must be in (0, 1], got %v", t.FuzzyThreshold)
	case t.FuzzyCeiling <= 0 || t.FuzzyCeiling >= ScoreAlias:
		return fmt.Errorf("fuzzy_ceiling must be in (0, %v), got %v", ScoreAlias, t.FuzzyCeiling)
	case t.FuzzyCeiling < t.FuzzyThreshold:
		return fmt.Errorf("fuzzy_ceiling %v is below fuzzy_threshold %v", t.FuzzyCeiling, t.FuzzyThreshold)
	case t.ResolveThreshold < 0 || t.ResolveThreshold > 1:
		return fmt.Errorf("resolve_threshold must be in [0, 1], got %v", t.ResolveThreshold)
	case t.AmbiguityDelta < 0 || t.AmbiguityDelta >= 1:
		return fmt.Errorf("ambiguity_delta must be in [0, 1), got %v", t.AmbiguityDelta)
	case t.MaxWindow < 1 || t.MaxWindow > 8:
		return fmt.Errorf("max_window must be between 1 and 8, got %d", t.MaxWindow)
	case t.MinFuzzyLength < 1:
		return fmt.Errorf("min_fuzzy_length must be positive, got %d", t.MinFuzzyLength)
	}

	for _, p := range r.ProviderOrder {
		if !p.Valid() {
			return fmt.Errorf("provider_order: unknown provider %q", p)
		}
	}
	for _, c := range r.Connectives {
		if c.Phrase == "" {
			return fmt.Errorf("connectives: empty phrase")
		}
	}
	for _, p := range r.Purposes {
		if p.Phrase == "" {
			return fmt.Errorf("purposes: empty phrase")
		}
		if len(p.Targets) == 0 {
			return fmt.Errorf("purpose %q has no targets", p.Phrase)
		}
		for _, t := range p.Targets {
			switch t.Kind {
			case TargetService:
				if t.Name == "" {
					return fmt.Errorf("purpose %q: service target without name", p.Phrase)
				}
			case TargetCategory:
				if t.Category == "" {
					return fmt.Errorf("purpose %q: category target without category", p.Phrase)
				}
			default:
				return fmt.Errorf("purpose %q: unknown target kind %q", p.Phrase, t.Kind)
			}
		}
	}
	return nil
}

// ExpectsConnected reports whether a diagram type should get positional
// edges between components that no connective links.
func (r *Rules) ExpectsConnected(diagramType string) bool {
	for _, t := range r.ConnectedTypes {
		if t == diagramType {
			return true
		}
	}
	return false
}

// ProviderPreference returns the provider tie-break order with prefer moved
// to the front. Providers missing from the configured order are appended.
func (r *Rules) ProviderPreference(prefer catalog.Provider) []catalog.Provider {
	base := r.ProviderOrder
	if len(base) == 0 {
		base = catalog.DefaultProviderOrder
	}
	out := make([]catalog.Provider, 0, len(catalog.DefaultProviderOrder))
	seen := make(map[catalog.Provider]bool)
	add := func(p catalog.Provider) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	add(prefer)
	for _, p := range base {
		add(p)
	}
	for _, p := range catalog.DefaultProviderOrder {
		add(p)
	}
	return out
}
