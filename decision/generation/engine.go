// Package generation is the request-level engine: it validates a request,
// extracts and resolves the components of the description, infers their
// relationships and renders the diagram source.
package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tvqphuoc01/diagram-mcp/decision/catalog"
	"github.com/tvqphuoc01/diagram-mcp/decision/codegen"
	"github.com/tvqphuoc01/diagram-mcp/decision/codegen/templates"
	"github.com/tvqphuoc01/diagram-mcp/decision/diagram"
	"github.com/tvqphuoc01/diagram-mcp/decision/extract"
	"github.com/tvqphuoc01/diagram-mcp/decision/matcher"
	"github.com/tvqphuoc01/diagram-mcp/decision/relate"
	"github.com/tvqphuoc01/diagram-mcp/decision/rules"
	diagerr "github.com/tvqphuoc01/diagram-mcp/pkg/errors"
)

const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100
)

// Engine is the Diagram Generation Engine. It holds only read-only state
// and is safe for concurrent use.
type Engine struct {
	catalog   *catalog.Catalog
	rules     *rules.Rules
	matcher   *matcher.Matcher
	extractor *extract.Extractor
	inferrer  *relate.Inferrer
	generator *codegen.Generator
	logger    zerolog.Logger
}

// NewEngine creates an engine over cat with every template registered.
// A nil rs uses the compiled-in rules.
func NewEngine(cat *catalog.Catalog, rs *rules.Rules) *Engine {
	if rs == nil {
		rs = rules.Default()
	}
	m := matcher.New(cat, rs)
	return &Engine{
		catalog:   cat,
		rules:     rs,
		matcher:   m,
		extractor: extract.New(m),
		inferrer:  relate.New(rs),
		generator: templates.NewGenerator(),
		logger:    log.Logger,
	}
}

// WithGenerator replaces the template set
func (e *Engine) WithGenerator(g *codegen.Generator) *Engine {
	e.generator = g
	return e
}

// WithLogger sets the logger used for request summaries
func (e *Engine) WithLogger(l zerolog.Logger) *Engine {
	e.logger = l
	return e
}

// Catalog returns the catalog the engine resolves against.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Rules returns the rule set in use.
func (e *Engine) Rules() *rules.Rules { return e.rules }

// DiagramTypes describes the diagram types the engine can render.
func (e *Engine) DiagramTypes() []diagram.Info {
	var out []diagram.Info
	for _, info := range diagram.Describe() {
		if e.generator.Supports(info.Type) {
			info.Format = e.generator.DefaultFormat(info.Type)
			info.Formats = e.generator.Formats(info.Type)
			out = append(out, info)
		}
	}
	return out
}

// Request contains the inputs of one generation
type Request struct {
	Description string `json:"description"`
	// Provider is preferred when resolving components; empty means the
	// default provider order.
	Provider    string `json:"provider,omitempty"`
	DiagramType string `json:"diagram_type"`
	Title       string `json:"title,omitempty"`
	// Format selects the source language; empty means the type's default.
	Format string `json:"format,omitempty"`
}

// Result contains the complete generation output
type Result struct {
	ID          uuid.UUID      `json:"id"`
	DiagramType diagram.Type   `json:"diagram_type"`
	Format      diagram.Format `json:"format"`
	Title       string         `json:"title"`
	SourceCode  string         `json:"source_code"`

	Entities []extract.Entity `json:"entities"`
	Edges    []relate.Edge    `json:"edges"`

	// Warnings lists unresolved components in description order, then
	// ambiguous matches. Issues carries the same warnings structured.
	Warnings []string                `json:"warnings"`
	Issues   []*diagerr.DiagramError `json:"issues,omitempty"`

	Stats Stats `json:"stats"`
	Audit Audit `json:"audit"`
}

// Stats summarizes the extraction and inference steps
type Stats struct {
	EntitiesFound      int `json:"entities_found"`
	EntitiesResolved   int `json:"entities_resolved"`
	EntitiesUnresolved int `json:"entities_unresolved"`
	Ambiguities        int `json:"ambiguities"`
	ConnectiveEdges    int `json:"connective_edges"`
	PositionalEdges    int `json:"positional_edges"`
}

// Audit records what the result was computed from
type Audit struct {
	GeneratedAt   time.Time        `json:"generated_at"`
	Provider      catalog.Provider `json:"provider,omitempty"`
	CatalogSource string           `json:"catalog_source"`
	CatalogHash   string           `json:"catalog_hash"`
	RulesVersion  int              `json:"rules_version"`
}

// Generate turns a description into diagram source. The diagram type is
// validated before any other work, then the output format. Components that
// resolve to nothing and near ties are reported as warnings; only an
// unsupported type or format, an invalid request or an empty architecture
// fail the call. A blank description is an empty architecture.
func (e *Engine) Generate(ctx context.Context, req Request) (*Result, error) {
	typ, err := diagram.ParseType(req.DiagramType)
	if err != nil {
		return nil, err
	}
	if !e.generator.Supports(typ) {
		return nil, diagerr.NewUnsupportedDiagramTypeError(req.DiagramType)
	}
	format, err := diagram.ParseFormat(req.Format)
	if err != nil {
		return nil, err
	}
	if err := e.generator.CheckFormat(typ, format); err != nil {
		return nil, err
	}
	provider, err := catalog.ParseProvider(req.Provider)
	if err != nil {
		return nil, diagerr.NewInvalidRequestError(err.Error())
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, diagerr.NewEmptyArchitectureError()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	extraction := e.extractor.Extract(req.Description, provider)
	edges := e.inferrer.Infer(extraction.Entities, req.Description, typ)

	out, err := e.generator.GenerateAs(extraction.Entities, edges, typ, format, req.Title)
	if err != nil {
		e.logger.Debug().
			Err(err).
			Str("diagram_type", string(typ)).
			Str("format", string(format)).
			Int("entities", len(extraction.Entities)).
			Msg("Generation failed")
		return nil, err
	}

	result := &Result{
		ID:          uuid.New(),
		DiagramType: out.DiagramType,
		Format:      out.Format,
		Title:       out.Title,
		SourceCode:  out.SourceCode,
		Entities:    extraction.Entities,
		Edges:       edges,
		Warnings:    make([]string, 0),
		Audit: Audit{
			GeneratedAt:   time.Now().UTC(),
			Provider:      provider,
			CatalogSource: e.catalog.Source(),
			CatalogHash:   e.catalog.Hash(),
			RulesVersion:  e.rules.Version,
		},
	}

	for _, ent := range extraction.Unresolved() {
		result.addIssue(diagerr.NewUnresolvedEntityWarning(ent.RoleText))
	}
	for _, amb := range extraction.Ambiguities {
		result.addIssue(diagerr.NewAmbiguousMatchWarning(amb.Phrase, amb.Chosen.Record.Key(), amb.RunnerUp.Record.Key()))
	}

	result.Stats = Stats{
		EntitiesFound:      len(extraction.Entities),
		EntitiesResolved:   len(extraction.Resolved()),
		EntitiesUnresolved: len(extraction.Unresolved()),
		Ambiguities:        len(extraction.Ambiguities),
	}
	for _, edge := range edges {
		switch edge.Inferred {
		case relate.InferredConnective:
			result.Stats.ConnectiveEdges++
		case relate.InferredPositional:
			result.Stats.PositionalEdges++
		}
	}

	e.logger.Info().
		Str("id", result.ID.String()).
		Str("diagram_type", string(typ)).
		Str("format", string(result.Format)).
		Int("entities", result.Stats.EntitiesFound).
		Int("resolved", result.Stats.EntitiesResolved).
		Int("edges", len(edges)).
		Int("warnings", len(result.Warnings)).
		Msg("Diagram generated")

	return result, nil
}

func (r *Result) addIssue(w *diagerr.DiagramError) {
	r.Issues = append(r.Issues, w)
	r.Warnings = append(r.Warnings, fmt.Sprintf("%q: %s", w.Phrase, w.Message))
}

// SearchRequest is one catalog lookup
type SearchRequest struct {
	Query    string `json:"query"`
	Provider string `json:"provider,omitempty"`
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Search ranks catalog services against a free-text query. The provider
// and category filters apply before ranking.
func (e *Engine) Search(ctx context.Context, req SearchRequest) ([]matcher.MatchResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, diagerr.NewInvalidRequestError("query is required")
	}
	provider, err := catalog.ParseProvider(req.Provider)
	if err != nil {
		return nil, diagerr.NewInvalidRequestError(err.Error())
	}
	limit := req.Limit
	switch {
	case limit <= 0:
		limit = DefaultSearchLimit
	case limit > MaxSearchLimit:
		limit = MaxSearchLimit
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := e.matcher.Match(matcher.Request{
		Query:    query,
		Provider: provider,
		Category: catalog.Category(strings.ToLower(strings.TrimSpace(req.Category))),
		Limit:    limit,
	})
	if results == nil {
		results = make([]matcher.MatchResult, 0)
	}

	e.logger.Debug().
		Str("query", query).
		Str("provider", string(provider)).
		Int("results", len(results)).
		Msg("Catalog searched")
	return results, nil
}
