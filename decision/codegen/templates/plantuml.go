package templates

import (
	"fmt"
	"strings"

	"github.com/tvqphuoc01/diagram-mcp/decision/codegen"
	"github.com/tvqphuoc01/diagram-mcp/decision/diagram"
)

func plantUMLHeader(b *strings.Builder, title string) {
	b.WriteString("@startuml\n")
	if t := codegen.PlantUMLLabel(title); t != "" {
		fmt.Fprintf(b, "title %s\n", t)
	}
	b.WriteString("\n")
}

func plantUMLFooter(b *strings.Builder) {
	b.WriteString("\n@enduml\n")
}

// =============================================================================
// Sequence
// =============================================================================

type PlantUMLSequenceTemplate struct{}

func NewPlantUMLSequenceTemplate() *PlantUMLSequenceTemplate { return &PlantUMLSequenceTemplate{} }

func (t *PlantUMLSequenceTemplate) DiagramType() diagram.Type { return diagram.Sequence }

func (t *PlantUMLSequenceTemplate) Format() diagram.Format { return diagram.PlantUML }

// Render declares databases as "database" participants, everything else as
// "participant", then one message per link. Undirected links become a
// dashed return arrow.
func (t *PlantUMLSequenceTemplate) Render(m *codegen.Model) (string, error) {
	var b strings.Builder
	plantUMLHeader(&b, m.Title)
	for _, n := range m.Nodes {
		kind := "participant"
		if n.Record.Category == "database" {
			kind = "database"
		}
		fmt.Fprintf(&b, "%s \"%s\" as %s\n", kind, codegen.PlantUMLLabel(n.Label), n.Var)
	}
	if len(m.Links) > 0 {
		b.WriteString("\n")
	}
	for _, l := range m.Links {
		arrow := "->"
		if !l.Directed {
			arrow = "-->"
		}
		label := codegen.PlantUMLLabel(l.Label)
		if label == "" {
			label = codegen.PlantUMLLabel(l.To.Label)
		}
		fmt.Fprintf(&b, "%s %s %s : %s\n", l.From.Var, arrow, l.To.Var, label)
	}
	plantUMLFooter(&b)
	return b.String(), nil
}

// =============================================================================
// Class
// =============================================================================

type PlantUMLClassTemplate struct{}

func NewPlantUMLClassTemplate() *PlantUMLClassTemplate { return &PlantUMLClassTemplate{} }

func (t *PlantUMLClassTemplate) DiagramType() diagram.Type { return diagram.Class }

func (t *PlantUMLClassTemplate) Format() diagram.Format { return diagram.PlantUML }

func (t *PlantUMLClassTemplate) Render(m *codegen.Model) (string, error) {
	var b strings.Builder
	plantUMLHeader(&b, m.Title)
	for _, n := range m.Nodes {
		fmt.Fprintf(&b, "class \"%s\" as %s <<%s>> {\n", codegen.PlantUMLLabel(n.Label), n.Var, n.Record.Category)
		fmt.Fprintf(&b, "  +provider %s\n", n.Record.Provider)
		fmt.Fprintf(&b, "  +service %s\n", n.Record.Name)
		b.WriteString("  --\n")
		fmt.Fprintf(&b, "  +import %s\n", n.Record.ImportPath)
		b.WriteString("}\n")
	}
	if len(m.Links) > 0 {
		b.WriteString("\n")
	}
	for _, l := range m.Links {
		arrow := "-->"
		if !l.Directed {
			arrow = "--"
		}
		if label := codegen.PlantUMLLabel(strings.ReplaceAll(l.Label, ":", " ")); label != "" {
			fmt.Fprintf(&b, "%s %s %s : %s\n", l.From.Var, arrow, l.To.Var, label)
		} else {
			fmt.Fprintf(&b, "%s %s %s\n", l.From.Var, arrow, l.To.Var)
		}
	}
	plantUMLFooter(&b)
	return b.String(), nil
}
