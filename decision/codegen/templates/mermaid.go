package templates

import (
	"fmt"
	"strings"

	"github.com/tvqphuoc01/diagram-mcp/decision/codegen"
	"github.com/tvqphuoc01/diagram-mcp/decision/diagram"
)

// mermaidHeader writes the front matter carrying the title, then the
// diagram keyword.
func mermaidHeader(b *strings.Builder, title, keyword string) {
	fmt.Fprintf(b, "---\ntitle: %s\n---\n%s\n", codegen.MermaidLabel(title, false), keyword)
}

// =============================================================================
// Sequence
// =============================================================================

type SequenceTemplate struct{}

func NewSequenceTemplate() *SequenceTemplate { return &SequenceTemplate{} }

func (t *SequenceTemplate) DiagramType() diagram.Type { return diagram.Sequence }

func (t *SequenceTemplate) Format() diagram.Format { return diagram.Mermaid }

// Render declares one participant per node in mention order and one message
// per link. Undirected links become a dotted reply arrow.
func (t *SequenceTemplate) Render(m *codegen.Model) (string, error) {
	var b strings.Builder
	mermaidHeader(&b, m.Title, "sequenceDiagram")
	for _, n := range m.Nodes {
		fmt.Fprintf(&b, "    participant %s as %s\n", n.Var, codegen.MermaidLabel(n.Label, false))
	}
	for _, l := range m.Links {
		arrow := "->>"
		if !l.Directed {
			arrow = "-->>"
		}
		label := codegen.MermaidLabel(l.Label, false)
		if label == "" {
			label = l.To.Label
		}
		fmt.Fprintf(&b, "    %s%s%s: %s\n", l.From.Var, arrow, l.To.Var, codegen.MermaidLabel(label, false))
	}
	return b.String(), nil
}

// =============================================================================
// Flowchart
// =============================================================================

type FlowchartTemplate struct{}

func NewFlowchartTemplate() *FlowchartTemplate { return &FlowchartTemplate{} }

func (t *FlowchartTemplate) DiagramType() diagram.Type { return diagram.Flowchart }

func (t *FlowchartTemplate) Format() diagram.Format { return diagram.Mermaid }

func (t *FlowchartTemplate) Render(m *codegen.Model) (string, error) {
	var b strings.Builder
	mermaidHeader(&b, m.Title, "flowchart LR")
	for _, n := range m.Nodes {
		fmt.Fprintf(&b, "    %s[\"%s\"]\n", n.Var, codegen.MermaidLabel(n.Label, false))
	}
	for _, l := range m.Links {
		arrow := "-->"
		if !l.Directed {
			arrow = "---"
		}
		if label := codegen.MermaidLabel(l.Label, true); label != "" {
			fmt.Fprintf(&b, "    %s %s|%s| %s\n", l.From.Var, arrow, label, l.To.Var)
		} else {
			fmt.Fprintf(&b, "    %s %s %s\n", l.From.Var, arrow, l.To.Var)
		}
	}
	return b.String(), nil
}

// =============================================================================
// Class
// =============================================================================

type ClassTemplate struct{}

func NewClassTemplate() *ClassTemplate { return &ClassTemplate{} }

func (t *ClassTemplate) DiagramType() diagram.Type { return diagram.Class }

func (t *ClassTemplate) Format() diagram.Format { return diagram.Mermaid }

// Render writes one class per node with its category as stereotype. Class
// diagrams have no clusters.
func (t *ClassTemplate) Render(m *codegen.Model) (string, error) {
	var b strings.Builder
	mermaidHeader(&b, m.Title, "classDiagram")
	for _, n := range m.Nodes {
		fmt.Fprintf(&b, "    class %s {\n", n.Var)
		fmt.Fprintf(&b, "        <<%s>>\n", n.Record.Category)
		fmt.Fprintf(&b, "        +role %s\n", codegen.MermaidLabel(n.Label, false))
		fmt.Fprintf(&b, "        +provider %s\n", n.Record.Provider)
		fmt.Fprintf(&b, "        +service %s\n", n.Record.Name)
		fmt.Fprintf(&b, "        +import %s\n", n.Record.ImportPath)
		b.WriteString("    }\n")
	}
	for _, l := range m.Links {
		arrow := "-->"
		if !l.Directed {
			arrow = "--"
		}
		if label := classLabel(l.Label); label != "" {
			fmt.Fprintf(&b, "    %s %s %s : %s\n", l.From.Var, arrow, l.To.Var, label)
		} else {
			fmt.Fprintf(&b, "    %s %s %s\n", l.From.Var, arrow, l.To.Var)
		}
	}
	return b.String(), nil
}

// classLabel also drops the characters Mermaid reads as relation syntax
// after the colon.
func classLabel(s string) string {
	s = strings.NewReplacer("<", "", ">", "", ":", " ").Replace(s)
	return codegen.MermaidLabel(s, false)
}
