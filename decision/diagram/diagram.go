// Package diagram defines the diagram types the generator can emit and the
// source format each one is written in.
package diagram

import (
	"strings"

	diagerr "github.com/tvqphuoc01/diagram-mcp/pkg/errors"
)

// Type selects the output template family.
type Type string

const (
	Infrastructure Type = "infrastructure"
	Sequence       Type = "sequence"
	Flowchart      Type = "flowchart"
	Class          Type = "class"
	Network        Type = "network"
	Dataflow       Type = "dataflow"
)

// Format is the source language handed to the external renderer.
type Format string

const (
	// PythonDiagrams is a script for the Python "diagrams" package, laid
	// out by graphviz.
	PythonDiagrams Format = "python-diagrams"
	Mermaid        Format = "mermaid"
	PlantUML       Format = "plantuml"
)

var formats = []Format{PythonDiagrams, Mermaid, PlantUML}

var formatSynonyms = map[string]Format{
	"python_diagrams": PythonDiagrams,
	"python":          PythonDiagrams,
	"diagrams":        PythonDiagrams,
	"puml":            PlantUML,
}

var types = []Type{Infrastructure, Sequence, Flowchart, Class, Network, Dataflow}

// synonyms are accepted spellings that map onto a supported type.
var synonyms = map[string]Type{
	"architecture": Infrastructure,
	"infra":        Infrastructure,
	"data_flow":    Dataflow,
	"data-flow":    Dataflow,
}

// AllTypes returns the supported types in their canonical order.
func AllTypes() []Type {
	out := make([]Type, len(types))
	copy(out, types)
	return out
}

// ParseType resolves s case-insensitively. Unknown names yield an
// UnsupportedDiagramType error.
func ParseType(s string) (Type, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, t := range types {
		if string(t) == key {
			return t, nil
		}
	}
	if t, ok := synonyms[key]; ok {
		return t, nil
	}
	return "", diagerr.NewUnsupportedDiagramTypeError(s)
}

// AllFormats returns every source format in canonical order.
func AllFormats() []Format {
	out := make([]Format, len(formats))
	copy(out, formats)
	return out
}

// ParseFormat resolves s case-insensitively. An empty s yields an empty
// Format, meaning the type's default.
func ParseFormat(s string) (Format, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return "", nil
	}
	for _, f := range formats {
		if string(f) == key {
			return f, nil
		}
	}
	if f, ok := formatSynonyms[key]; ok {
		return f, nil
	}
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	return "", diagerr.NewUnsupportedFormatError("", s, names)
}

// Valid reports whether t is one of the supported types.
func (t Type) Valid() bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

// Format returns the default source format of the type.
func (t Type) Format() Format {
	switch t {
	case Sequence, Flowchart, Class:
		return Mermaid
	}
	return PythonDiagrams
}

// Clustered reports whether the type groups nodes that share a category.
func (t Type) Clustered() bool {
	switch t {
	case Infrastructure, Network, Dataflow:
		return true
	}
	return false
}

// Title is the diagram heading used when the request does not name one.
func (t Type) Title() string {
	switch t {
	case Network:
		return "Network Topology"
	case Dataflow:
		return "Data Flow"
	case Sequence:
		return "Request Sequence"
	case Flowchart:
		return "Process Flow"
	case Class:
		return "Service Model"
	}
	return "Generated Architecture"
}

// Info describes one supported type for listings.
type Info struct {
	Type      Type     `json:"type"`
	Format    Format   `json:"format"`
	Formats   []Format `json:"formats"`
	Clustered bool     `json:"clustered"`
	Title     string   `json:"default_title"`
}

// Describe lists every supported type with its default format. Formats
// holds only the default; the generator fills in what its templates add.
func Describe() []Info {
	out := make([]Info, 0, len(types))
	for _, t := range types {
		out = append(out, Info{Type: t, Format: t.Format(), Formats: []Format{t.Format()}, Clustered: t.Clustered(), Title: t.Title()})
	}
	return out
}
