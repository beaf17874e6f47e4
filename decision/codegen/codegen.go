// Package codegen turns resolved entities and inferred edges into diagram
// source code. Output shapes live in templates registered per diagram type.
package codegen

import (
	"fmt"
	"strings"

	"github.com/tvqphuoc01/diagram-mcp/decision/diagram"
	"github.com/tvqphuoc01/diagram-mcp/decision/extract"
	"github.com/tvqphuoc01/diagram-mcp/decision/relate"
	diagerr "github.com/tvqphuoc01/diagram-mcp/pkg/errors"
)

// Template renders a model for one diagram type. Render must be pure: the
// same model always yields byte-identical source.
type Template interface {
	// DiagramType returns the diagram type this template handles
	DiagramType() diagram.Type

	// Format returns the source language the template writes
	Format() diagram.Format

	Render(m *Model) (string, error)
}

// Output is the generated source plus what it was built from.
type Output struct {
	DiagramType diagram.Type   `json:"diagram_type"`
	Format      diagram.Format `json:"format"`
	Title       string         `json:"title"`
	SourceCode  string         `json:"source_code"`
	Nodes       int            `json:"nodes"`
	Links       int            `json:"links"`
}

// templateKey identifies a template by diagram type and source format.
type templateKey struct {
	typ    diagram.Type
	format diagram.Format
}

// Generator dispatches to the template registered for a diagram type and
// format. Register templates before first use; afterwards it is read-only.
type Generator struct {
	templates map[templateKey]Template
}

// NewGenerator creates a generator with no templates.
func NewGenerator() *Generator {
	return &Generator{templates: make(map[templateKey]Template)}
}

// RegisterTemplate adds a template, replacing any previous one for its
// type and format.
func (g *Generator) RegisterTemplate(t Template) {
	g.templates[templateKey{t.DiagramType(), t.Format()}] = t
}

// RegisterTemplates adds multiple templates
func (g *Generator) RegisterTemplates(ts ...Template) {
	for _, t := range ts {
		g.RegisterTemplate(t)
	}
}

// Types returns the registered diagram types in canonical order.
func (g *Generator) Types() []diagram.Type {
	var out []diagram.Type
	for _, t := range diagram.AllTypes() {
		if g.Supports(t) {
			out = append(out, t)
		}
	}
	return out
}

// Supports reports whether any template is registered for t.
func (g *Generator) Supports(t diagram.Type) bool {
	return len(g.Formats(t)) > 0
}

// SupportsFormat reports whether a template is registered for t in f.
func (g *Generator) SupportsFormat(t diagram.Type, f diagram.Format) bool {
	_, ok := g.templates[templateKey{t, f}]
	return ok
}

// Formats lists the formats t can be written in, default first.
func (g *Generator) Formats(t diagram.Type) []diagram.Format {
	var out []diagram.Format
	if g.SupportsFormat(t, t.Format()) {
		out = append(out, t.Format())
	}
	for _, f := range diagram.AllFormats() {
		if f != t.Format() && g.SupportsFormat(t, f) {
			out = append(out, f)
		}
	}
	return out
}

// DefaultFormat is the format t is written in when the caller names none.
func (g *Generator) DefaultFormat(t diagram.Type) diagram.Format {
	if fs := g.Formats(t); len(fs) > 0 {
		return fs[0]
	}
	return t.Format()
}

// Generate renders entities and edges as a diagram of type t in its
// default format.
func (g *Generator) Generate(entities []extract.Entity, edges []relate.Edge, t diagram.Type, title string) (*Output, error) {
	return g.GenerateAs(entities, edges, t, "", title)
}

// GenerateAs renders in format f; an empty f means the default. Type and
// format are checked before anything else; an empty title falls back to
// the type's default heading.
func (g *Generator) GenerateAs(entities []extract.Entity, edges []relate.Edge, t diagram.Type, f diagram.Format, title string) (*Output, error) {
	if !g.Supports(t) {
		return nil, diagerr.NewUnsupportedDiagramTypeError(string(t))
	}
	if f == "" {
		f = g.DefaultFormat(t)
	}
	if err := g.checkFormat(t, f); err != nil {
		return nil, err
	}
	m, err := BuildModel(entities, edges, t, title)
	if err != nil {
		return nil, err
	}
	m.Format = f
	return g.Render(m)
}

// CheckFormat returns an UnsupportedFormat error when t has no template in
// f. An empty f is always accepted.
func (g *Generator) CheckFormat(t diagram.Type, f diagram.Format) error {
	if f == "" {
		return nil
	}
	return g.checkFormat(t, f)
}

func (g *Generator) checkFormat(t diagram.Type, f diagram.Format) error {
	if g.SupportsFormat(t, f) {
		return nil
	}
	var names []string
	for _, sf := range g.Formats(t) {
		names = append(names, string(sf))
	}
	return diagerr.NewUnsupportedFormatError(string(t), string(f), names)
}

// Render writes an already built model. A model without a format uses the
// type's default.
func (g *Generator) Render(m *Model) (*Output, error) {
	f := m.Format
	if f == "" {
		f = g.DefaultFormat(m.Type)
	}
	tmpl, ok := g.templates[templateKey{m.Type, f}]
	if !ok {
		if !g.Supports(m.Type) {
			return nil, diagerr.NewUnsupportedDiagramTypeError(string(m.Type))
		}
		return nil, g.checkFormat(m.Type, f)
	}
	src, err := tmpl.Render(m)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s diagram: %w", m.Type, err)
	}
	if !strings.HasSuffix(src, "\n") {
		src += "\n"
	}
	return &Output{
		DiagramType: m.Type,
		Format:      tmpl.Format(),
		Title:       m.Title,
		SourceCode:  src,
		Nodes:       len(m.Nodes),
		Links:       len(m.Links),
	}, nil
}
